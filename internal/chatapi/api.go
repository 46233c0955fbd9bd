// Package chatapi exposes the dialog controller over HTTP for chat
// connectors, plus stateless classification and draft inspection endpoints.
package chatapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/firstline/internal/dialog"
	"github.com/linnemanlabs/firstline/internal/reports"
	"github.com/linnemanlabs/firstline/internal/triage"
)

// maxBodyBytes bounds inbound request bodies.
const maxBodyBytes = 64 << 10

// Dialog handles one inbound conversation event.
type Dialog interface {
	Handle(ctx context.Context, ev dialog.Event) []dialog.Response
}

// DraftReader looks up the current draft of a session.
type DraftReader interface {
	Get(ctx context.Context, key triage.SessionKey) (*triage.Draft, bool, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	dialog   Dialog
	drafts   DraftReader
	detector *triage.Detector
	reports  reports.Reader
	auth     func(http.Handler) http.Handler
}

// Option configures an API.
type Option func(*API)

// WithAuth protects every /api/v1 route with mw.
func WithAuth(mw func(http.Handler) http.Handler) Option {
	return func(a *API) { a.auth = mw }
}

// WithReports exposes the report archive read endpoints backed by rd.
func WithReports(rd reports.Reader) Option {
	return func(a *API) { a.reports = rd }
}

// New creates a new API handler.
func New(logger log.Logger, d Dialog, drafts DraftReader, opts ...Option) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if d == nil {
		panic(xerrors.New("dialog is required"))
	}
	if drafts == nil {
		panic(xerrors.New("draft reader is required"))
	}
	a := &API{
		logger:   logger,
		dialog:   d,
		drafts:   drafts,
		detector: triage.NewDetector(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		if a.auth != nil {
			r.Use(a.auth)
		}
		r.Post("/messages", a.handleMessage)
		r.Post("/classify", a.handleClassify)
		r.Get("/conversations/{conversationID}/participants/{participantID}/draft", a.handleGetDraft)
		if a.reports != nil {
			r.Get("/drafts/{draftID}/reports", a.handleListReports)
			r.Get("/reports/{reportID}", a.handleGetReport)
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}
