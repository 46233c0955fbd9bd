package triage

import (
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
)

// System is the affected platform of an incident.
type System string

const (
	SystemUnknown System = "unknown"
	SystemSAP     System = "sap"
	SystemInfra   System = "infra"
	SystemOther   System = "other"
)

// Symptom is the observed failure mode.
type Symptom string

const (
	SymptomUnknown  Symptom = "unknown"
	SymptomFailover Symptom = "failover"
	SymptomDown     Symptom = "down"
	SymptomQueueing Symptom = "queueing"
	SymptomSlow     Symptom = "slow"
	SymptomErrors   Symptom = "errors"
)

// Environment is the deployment stage the alert came from.
type Environment string

const (
	EnvProduction Environment = "production"
	EnvQA         Environment = "qa"
	EnvDev        Environment = "dev"
)

// Stage tracks where a draft is in the reporting wizard. A conversation
// without a draft is idle.
type Stage string

const (
	StageIdle                Stage = "idle"
	StageAwaitingSystem      Stage = "awaiting_system"
	StageAwaitingEnvironment Stage = "awaiting_environment"
	StageAwaitingSymptom     Stage = "awaiting_symptom"
	StageSummaryReady        Stage = "summary_ready"
	StageAwaitingL3Auth      Stage = "awaiting_l3_auth"
)

// ParseSystem maps a wizard value to a System. Only selectable systems are accepted.
func ParseSystem(s string) (System, bool) {
	switch sys := System(Normalize(s)); sys {
	case SystemSAP, SystemInfra, SystemOther:
		return sys, true
	}
	return SystemUnknown, false
}

// ParseSymptom maps a wizard value to a Symptom. Only selectable symptoms are accepted.
func ParseSymptom(s string) (Symptom, bool) {
	switch sym := Symptom(Normalize(s)); sym {
	case SymptomFailover, SymptomDown, SymptomQueueing, SymptomSlow, SymptomErrors:
		return sym, true
	}
	return SymptomUnknown, false
}

// ParseEnvironment maps a wizard value to an Environment.
func ParseEnvironment(s string) (Environment, bool) {
	switch env := Environment(Normalize(s)); env {
	case EnvProduction, EnvQA, EnvDev:
		return env, true
	}
	return "", false
}

// Draft is the incident being reported in one conversation by one participant.
type Draft struct {
	ID             string               `json:"id"`
	System         System               `json:"system"`
	Symptom        Symptom              `json:"symptom"`
	Environment    Environment          `json:"environment"`
	Node           string               `json:"node,omitempty"`
	EventTimestamp string               `json:"event_timestamp,omitempty"`
	DetectedAt     time.Time            `json:"detected_at"`
	RawAlertText   string               `json:"raw_alert_text,omitempty"`
	L3Enabled      bool                 `json:"l3_enabled"`
	AwaitingL3Auth bool                 `json:"awaiting_l3_auth"`
	ReportSentTo   map[string]time.Time `json:"report_sent_to,omitempty"`
	Stage          Stage                `json:"stage"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// NewDraft returns an empty draft detected at now. Environment defaults to
// production until told otherwise.
func NewDraft(now time.Time) *Draft {
	return &Draft{
		ID:          ulid.Make().String(),
		System:      SystemUnknown,
		Symptom:     SymptomUnknown,
		Environment: EnvProduction,
		DetectedAt:  now,
		Stage:       StageAwaitingSystem,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy of d.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	cp := *d
	if d.ReportSentTo != nil {
		cp.ReportSentTo = make(map[string]time.Time, len(d.ReportSentTo))
		for k, v := range d.ReportSentTo {
			cp.ReportSentTo[k] = v
		}
	}
	return &cp
}

// Coerce enforces the queueing-is-SAP rule. Every mutation path calls it.
func (d *Draft) Coerce() {
	if d.Symptom == SymptomQueueing {
		d.System = SystemSAP
	}
}

// Severity is always derived from the current classification.
func (d *Draft) Severity() Severity {
	return Classify(d.System, d.Symptom, d.Environment)
}

// Sent reports whether a summary already went to recipient.
func (d *Draft) Sent(recipient string) bool {
	_, ok := d.ReportSentTo[recipient]
	return ok
}

// MarkSent records recipient and returns false if it was already recorded.
func (d *Draft) MarkSent(recipient string, at time.Time) bool {
	if d.Sent(recipient) {
		return false
	}
	if d.ReportSentTo == nil {
		d.ReportSentTo = make(map[string]time.Time)
	}
	d.ReportSentTo[recipient] = at
	return true
}

// Apply copies the signals of a detection onto the draft. Unset signals keep
// whatever the draft already had: the defaulted environment never replaces a
// chosen one, and the first alert text stays as the excerpt source.
func (d *Draft) Apply(det Detection, raw string) {
	if det.System != SystemUnknown {
		d.System = det.System
	}
	if det.Symptom != SymptomUnknown {
		d.Symptom = det.Symptom
	}
	if det.EnvironmentMatched {
		d.Environment = det.Environment
	}
	if det.Node != "" {
		d.Node = det.Node
	}
	if det.Timestamp != "" {
		d.EventTimestamp = det.Timestamp
	}
	if d.RawAlertText == "" {
		d.RawAlertText = raw
	}
	d.Coerce()
}

// SessionKey identifies the draft of one participant in one conversation.
type SessionKey string

// NewSessionKey derives the key for (conversationID, participantID). The
// conversation id is length-prefixed so that no two distinct pairs share a key.
func NewSessionKey(conversationID, participantID string) SessionKey {
	return SessionKey(strconv.Itoa(len(conversationID)) + ":" + conversationID + "|" + participantID)
}
