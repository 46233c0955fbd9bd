package chatapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/firstline/internal/triage"
)

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Detection  triage.Detection `json:"detection"`
	Classified bool             `json:"classified"`
	Severity   triage.Severity  `json:"severity,omitempty"`
	Runbook    *triage.Runbook  `json:"runbook,omitempty"`
}

type draftResponse struct {
	Draft    *triage.Draft   `json:"draft"`
	Severity triage.Severity `json:"severity"`
}

// classify runs detection without touching any session. Severity and
// runbook are only reported once both system and symptom are known.
func (a *API) classify(text string) classifyResponse {
	det := a.detector.Detect(text)
	resp := classifyResponse{Detection: det, Classified: det.Classified()}
	if !resp.Classified {
		return resp
	}
	d := triage.Draft{System: det.System, Symptom: det.Symptom, Environment: det.Environment}
	d.Coerce()
	resp.Severity = d.Severity()
	rb := triage.SelectRunbook(d.System, d.Symptom, resp.Severity)
	resp.Runbook = &rb
	return resp
}

func (a *API) handleClassify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	resp := a.classify(req.Text)

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("triage.system", string(resp.Detection.System)),
		attribute.String("triage.symptom", string(resp.Detection.Symptom)),
	)

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	conv := chi.URLParam(r, "conversationID")
	participant := chi.URLParam(r, "participantID")

	d, ok, err := a.drafts.Get(r.Context(), triage.NewSessionKey(conv, participant))
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get draft", "conversation_id", conv, "participant_id", participant)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("triage.draft_id", d.ID))

	writeJSON(w, http.StatusOK, draftResponse{Draft: d, Severity: d.Severity()})
}
