package chatapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/firstline/internal/reports"
)

type reportsResponse struct {
	Reports []*reports.Record `json:"reports"`
}

func (a *API) handleListReports(w http.ResponseWriter, r *http.Request) {
	draftID := chi.URLParam(r, "draftID")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("triage.draft_id", draftID))

	recs, err := a.reports.ListByDraft(r.Context(), draftID)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list reports", "draft_id", draftID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []*reports.Record{}
	}
	writeJSON(w, http.StatusOK, reportsResponse{Reports: recs})
}

func (a *API) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reportID")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("report.id", id))

	rec, ok, err := a.reports.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get report", "report_id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
