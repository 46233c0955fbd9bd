package chatapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/firstline/internal/dialog"
)

// messageRequest is the connector-facing shape of a dialog event.
type messageRequest struct {
	Type           string            `json:"type"`
	ConversationID string            `json:"conversation_id"`
	ParticipantID  string            `json:"participant_id"`
	Name           string            `json:"name"`
	Text           string            `json:"text"`
	Action         string            `json:"action"`
	Fields         map[string]string `json:"fields"`
}

type messageResponse struct {
	Responses []dialog.Response `json:"responses"`
}

func (m *messageRequest) event() (dialog.Event, bool) {
	caller := dialog.Caller{
		ConversationID: m.ConversationID,
		ParticipantID:  m.ParticipantID,
		Name:           m.Name,
	}
	switch m.Type {
	case "", dialog.KindMessage:
		return dialog.TextEvent{Caller: caller, Text: m.Text}, true
	case dialog.KindAction:
		return dialog.ActionEvent{Caller: caller, Action: m.Action, Fields: m.Fields}, true
	case dialog.KindMemberJoined:
		return dialog.MemberJoinedEvent{Caller: caller}, true
	}
	return nil, false
}

func (a *API) handleMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" || strings.TrimSpace(req.ParticipantID) == "" {
		http.Error(w, `{"error":"conversation_id and participant_id are required"}`, http.StatusBadRequest)
		return
	}
	ev, ok := req.event()
	if !ok {
		http.Error(w, `{"error":"unknown event type"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("firstline.event", ev.Kind()),
		attribute.String("firstline.conversation_id", req.ConversationID),
	)

	resp := a.dialog.Handle(r.Context(), ev)
	if resp == nil {
		resp = []dialog.Response{}
	}
	writeJSON(w, http.StatusOK, messageResponse{Responses: resp})
}
