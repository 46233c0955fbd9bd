// Package reports archives every incident summary that was sent to a contact.
package reports

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/firstline/internal/triage"
)

// Record is one summary delivered to one recipient.
type Record struct {
	ID             string             `json:"id"`
	DraftID        string             `json:"draft_id"`
	ConversationID string             `json:"conversation_id"`
	ParticipantID  string             `json:"participant_id"`
	RecipientKey   string             `json:"recipient_key"`
	RecipientTier  string             `json:"recipient_tier"`
	System         triage.System      `json:"system"`
	Symptom        triage.Symptom     `json:"symptom"`
	Environment    triage.Environment `json:"environment"`
	Severity       triage.Severity    `json:"severity"`
	Node           string             `json:"node,omitempty"`
	EventTimestamp string             `json:"event_timestamp,omitempty"`
	Summary        string             `json:"summary"`
	SentAt         time.Time          `json:"sent_at"`
}

// NewRecord snapshots d as sent to r at the given time.
func NewRecord(d *triage.Draft, conversationID, participantID string, r triage.Recipient, summary string, at time.Time) *Record {
	return &Record{
		ID:             ulid.Make().String(),
		DraftID:        d.ID,
		ConversationID: conversationID,
		ParticipantID:  participantID,
		RecipientKey:   r.Key,
		RecipientTier:  r.Tier,
		System:         d.System,
		Symptom:        d.Symptom,
		Environment:    d.Environment,
		Severity:       d.Severity(),
		Node:           d.Node,
		EventTimestamp: d.EventTimestamp,
		Summary:        summary,
		SentAt:         at,
	}
}

// Archive persists sent summaries.
type Archive interface {
	Save(ctx context.Context, rec *Record) error
}

// Reader looks archived records up again.
type Reader interface {
	Get(ctx context.Context, id string) (*Record, bool, error)
	ListByDraft(ctx context.Context, draftID string) ([]*Record, error)
}

// Multi fans a record out to every archive. All archives are attempted;
// failures are joined.
type Multi []Archive

// Save implements Archive.
func (m Multi) Save(ctx context.Context, rec *Record) error {
	var errs []error
	for _, a := range m {
		if err := a.Save(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
