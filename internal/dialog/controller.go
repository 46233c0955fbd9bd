// Package dialog turns inbound chat events into draft mutations and card
// responses. It owns the reporting wizard, L3 escalation and summary delivery.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/linnemanlabs/firstline/internal/directory"
	"github.com/linnemanlabs/firstline/internal/reports"
	"github.com/linnemanlabs/firstline/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/firstline/internal/dialog")

const (
	// DefaultMaxInflight bounds concurrent background deliveries.
	DefaultMaxInflight = 16

	deliveryTimeout = 30 * time.Second
)

var (
	errL3NotEnabled  = errors.New("l3 escalation not authorized")
	errNotClassified = errors.New("draft not classified")
	errNoPendingAuth = errors.New("no pending l3 authorization")
)

// Notifier delivers a rendered summary to a contact.
type Notifier interface {
	Notify(ctx context.Context, to directory.Contact, d *triage.Draft, summary string) error
}

// Hooks receives controller events for instrumentation. Nil fields are skipped.
type Hooks struct {
	OnEvent     func(kind string, duration float64)
	OnDetection func(det triage.Detection)
	OnSummary   func(tier string, sev triage.Severity, sent bool)
	OnL3Auth    func(granted bool)
	OnFallback  func(reason string)
	OnDelivery  func(sink string, err error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithNotifier sets where summaries are delivered.
func WithNotifier(n Notifier) Option { return func(c *Controller) { c.notifier = n } }

// WithArchive sets where sent summaries are recorded.
func WithArchive(a reports.Archive) Option { return func(c *Controller) { c.archive = a } }

// WithHooks sets instrumentation hooks.
func WithHooks(h Hooks) Option { return func(c *Controller) { c.hooks = h } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// WithDetector overrides the default detector.
func WithDetector(dt *triage.Detector) Option { return func(c *Controller) { c.detector = dt } }

// WithMaxInflight bounds concurrent background deliveries.
func WithMaxInflight(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxInflight = int64(n)
		}
	}
}

// Controller handles chat events. It is safe for concurrent use.
type Controller struct {
	store       triage.SessionStore
	gate        *triage.Gate
	dir         *directory.Directory
	detector    *triage.Detector
	notifier    Notifier
	archive     reports.Archive
	hooks       Hooks
	logger      log.Logger
	now         func() time.Time
	maxInflight int64
	sem         *semaphore.Weighted
	wg          sync.WaitGroup
}

// New creates a controller. store, gate and dir are required.
func New(store triage.SessionStore, gate *triage.Gate, dir *directory.Directory, logger log.Logger, opts ...Option) *Controller {
	if store == nil {
		panic(xerrors.New("session store is required"))
	}
	if gate == nil {
		panic(xerrors.New("escalation gate is required"))
	}
	if dir == nil {
		panic(xerrors.New("directory is required"))
	}
	c := &Controller{
		store:       store,
		gate:        gate,
		dir:         dir,
		detector:    triage.NewDetector(),
		logger:      logger,
		now:         time.Now,
		maxInflight: DefaultMaxInflight,
	}
	for _, o := range opts {
		o(c)
	}
	c.sem = semaphore.NewWeighted(c.maxInflight)
	return c
}

// Wait blocks until every background delivery has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Handle processes one event and returns the responses to show the caller.
// It never fails: internal errors degrade to the fallback response.
func (c *Controller) Handle(ctx context.Context, ev Event) (resp []Response) {
	start := time.Now()
	caller := ev.From()

	ctx, span := tracer.Start(ctx, "dialog.handle", trace.WithAttributes(
		attribute.String("dialog.event", ev.Kind()),
		attribute.String("dialog.conversation_id", caller.ConversationID),
	))
	defer span.End()

	L := c.logger.With(
		"conversation_id", caller.ConversationID,
		"participant_id", caller.ParticipantID,
		"event", ev.Kind(),
	)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic handling %s event: %v", ev.Kind(), r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			L.Error(ctx, err, "recovered from panic")
			c.fallback("panic")
			resp = []Response{textResponse(textFallback)}
		}
		if c.hooks.OnEvent != nil {
			c.hooks.OnEvent(ev.Kind(), time.Since(start).Seconds())
		}
	}()

	h := &handler{c: c, caller: caller, key: triage.NewSessionKey(caller.ConversationID, caller.ParticipantID), L: L, span: span}

	switch e := ev.(type) {
	case TextEvent:
		return h.text(ctx, e.Text)
	case ActionEvent:
		return h.action(ctx, e.Action, e.Fields)
	case MemberJoinedEvent:
		return []Response{textResponse(textJoined), cardResponse(mainMenuCard())}
	}
	c.fallback("unknown_event")
	return []Response{textResponse(textFallback)}
}

func (c *Controller) fallback(reason string) {
	if c.hooks.OnFallback != nil {
		c.hooks.OnFallback(reason)
	}
}

// handler carries per-event state.
type handler struct {
	c      *Controller
	caller Caller
	key    triage.SessionKey
	L      log.Logger
	span   trace.Span
}

func (h *handler) fallback(reason string) []Response {
	h.c.fallback(reason)
	return []Response{textResponse(textFallback)}
}

// storeFailure logs an unexpected store error and degrades to the fallback.
func (h *handler) storeFailure(ctx context.Context, err error, op string) []Response {
	h.span.RecordError(err)
	h.span.SetStatus(codes.Error, op)
	h.L.Error(ctx, err, "session store operation failed", "op", op)
	return h.fallback("store_error")
}

func (h *handler) stage(s triage.Stage) {
	h.span.SetAttributes(attribute.String("dialog.stage", string(s)))
}

func (h *handler) text(ctx context.Context, text string) []Response {
	raw := strings.TrimSpace(text)
	norm := triage.Normalize(raw)

	// A single token typed while an authorization is pending is the code.
	if raw != "" && !strings.ContainsAny(raw, " \t\n") && !isCommandWord(norm) {
		d, ok, err := h.c.store.Get(ctx, h.key)
		if err != nil {
			return h.storeFailure(ctx, err, "get")
		}
		if ok && d.Stage == triage.StageAwaitingL3Auth {
			return h.submitCode(ctx, raw)
		}
	}

	if resp, ok := h.command(ctx, norm); ok {
		return resp
	}

	det := h.c.detector.Detect(raw)
	if h.c.hooks.OnDetection != nil {
		h.c.hooks.OnDetection(det)
	}
	h.span.SetAttributes(
		attribute.String("triage.system", string(det.System)),
		attribute.String("triage.symptom", string(det.Symptom)),
	)

	if det.System == triage.SystemUnknown && det.Symptom == triage.SymptomUnknown {
		if resp, ok := h.smallTalk(norm); ok {
			return resp
		}
		if len([]rune(raw)) < minFreeTextRunes {
			return h.fallback("short_text")
		}
		return []Response{textResponse(textGuidance), cardResponse(mainMenuCard())}
	}

	now := h.c.now()
	d, err := h.c.store.Update(ctx, h.key, func(d *triage.Draft, ok bool) (*triage.Draft, error) {
		// A new alert after a finished classification starts a new incident.
		if !ok || d.Stage == triage.StageSummaryReady || d.Stage == triage.StageAwaitingL3Auth {
			d = triage.NewDraft(now)
		}
		d.Apply(det, raw)
		switch {
		case d.System != triage.SystemUnknown && d.Symptom != triage.SymptomUnknown:
			d.Stage = triage.StageSummaryReady
		case d.System == triage.SystemUnknown:
			d.Stage = triage.StageAwaitingSystem
		default:
			d.Stage = triage.StageAwaitingSymptom
		}
		return d, nil
	})
	if err != nil {
		return h.storeFailure(ctx, err, "update")
	}
	h.stage(d.Stage)

	switch d.Stage {
	case triage.StageAwaitingSystem:
		prompt := fmt.Sprintf("Detecté el síntoma \"%s\", pero no el sistema afectado.", triage.SymptomLabel(d.System, d.Symptom))
		return []Response{cardResponse(systemCard(prompt))}
	case triage.StageAwaitingSymptom:
		prompt := fmt.Sprintf("Detecté el sistema %s, pero no el síntoma.", triage.SystemLabel(d.System))
		return []Response{cardResponse(symptomCard(d.System, prompt))}
	}
	h.L.Info(ctx, "incident classified",
		"draft_id", d.ID,
		"system", d.System,
		"symptom", d.Symptom,
		"environment", d.Environment,
		"severity", d.Severity(),
	)
	return []Response{cardResponse(summaryCard(d, h.c.dir))}
}

func (h *handler) action(ctx context.Context, action string, fields map[string]string) []Response {
	h.span.SetAttributes(attribute.String("dialog.action", action))

	switch action {
	case ActionReportIncident:
		return h.reportIncident(ctx)
	case ActionSelectSystem:
		sys, ok := triage.ParseSystem(fields[FieldSystem])
		if !ok {
			return h.fallback("invalid_field")
		}
		return h.selectSystem(ctx, sys)
	case ActionSelectEnvironment:
		env, ok := triage.ParseEnvironment(fields[FieldEnvironment])
		if !ok {
			return h.fallback("invalid_field")
		}
		return h.selectEnvironment(ctx, env)
	case ActionSelectSymptom:
		sym, ok := triage.ParseSymptom(fields[FieldSymptom])
		if !ok {
			return h.fallback("invalid_field")
		}
		return h.selectSymptom(ctx, sym)
	case ActionShowRunbook:
		return h.showRunbook(ctx)
	case ActionContactL2:
		return h.contact(ctx, directory.TierL2, fields[FieldRecipient])
	case ActionEscalateL3:
		return h.escalateL3(ctx)
	case ActionSubmitL3Code:
		return h.submitCode(ctx, fields[FieldCode])
	case ActionContactL3:
		return h.contact(ctx, directory.TierL3, fields[FieldRecipient])
	case ActionKeepL2:
		return h.keepL2(ctx)
	case ActionMenu:
		return h.menu(ctx)
	}
	return h.fallback("unknown_action")
}

func (h *handler) reportIncident(ctx context.Context) []Response {
	now := h.c.now()
	_, err := h.c.store.Update(ctx, h.key, func(*triage.Draft, bool) (*triage.Draft, error) {
		return triage.NewDraft(now), nil
	})
	if err != nil {
		return h.storeFailure(ctx, err, "update")
	}
	h.stage(triage.StageAwaitingSystem)
	return []Response{cardResponse(systemCard(""))}
}

// orNew returns d, or a fresh draft when there is none.
func (h *handler) orNew(d *triage.Draft, ok bool) *triage.Draft {
	if !ok {
		return triage.NewDraft(h.c.now())
	}
	return d
}

func (h *handler) selectSystem(ctx context.Context, sys triage.System) []Response {
	d, err := h.c.store.Update(ctx, h.key, func(d *triage.Draft, ok bool) (*triage.Draft, error) {
		d = h.orNew(d, ok)
		d.System = sys
		d.Coerce()
		d.Stage = triage.StageAwaitingEnvironment
		return d, nil
	})
	if err != nil {
		return h.storeFailure(ctx, err, "update")
	}
	h.stage(d.Stage)
	return []Response{cardResponse(environmentCard())}
}

func (h *handler) selectEnvironment(ctx context.Context, env triage.Environment) []Response {
	d, err := h.c.store.Update(ctx, h.key, func(d *triage.Draft, ok bool) (*triage.Draft, error) {
		d = h.orNew(d, ok)
		d.Environment = env
		d.Coerce()
		d.Stage = triage.StageAwaitingSymptom
		return d, nil
	})
	if err != nil {
		return h.storeFailure(ctx, err, "update")
	}
	h.stage(d.Stage)
	return []Response{cardResponse(symptomCard(d.System, ""))}
}

func (h *handler) selectSymptom(ctx context.Context, sym triage.Symptom) []Response {
	d, err := h.c.store.Update(ctx, h.key, func(d *triage.Draft, ok bool) (*triage.Draft, error) {
		d = h.orNew(d, ok)
		d.Symptom = sym
		d.Coerce()
		if d.System == triage.SystemUnknown {
			d.Stage = triage.StageAwaitingSystem
		} else {
			d.Stage = triage.StageSummaryReady
		}
		return d, nil
	})
	if err != nil {
		return h.storeFailure(ctx, err, "update")
	}
	h.stage(d.Stage)
	if d.Stage == triage.StageAwaitingSystem {
		return []Response{cardResponse(systemCard(""))}
	}
	return []Response{cardResponse(summaryCard(d, h.c.dir))}
}

// classified loads the current draft and checks it is ready for escalation.
func (h *handler) classified(ctx context.Context) (*triage.Draft, []Response) {
	d, ok, err := h.c.store.Get(ctx, h.key)
	if err != nil {
		return nil, h.storeFailure(ctx, err, "get")
	}
	if !ok {
		return nil, []Response{textResponse(textNoDraft), cardResponse(mainMenuCard())}
	}
	if d.System == triage.SystemUnknown || d.Symptom == triage.SymptomUnknown {
		return nil, []Response{textResponse(textNotReady)}
	}
	return d, nil
}

func (h *handler) showRunbook(ctx context.Context) []Response {
	d, resp := h.classified(ctx)
	if d == nil {
		return resp
	}
	return []Response{cardResponse(runbookCard(d, h.c.dir))}
}

func (h *handler) escalateL3(ctx context.Context) []Response {
	d, err := h.c.store.Update(ctx, h.key, func(d *triage.Draft, ok bool) (*triage.Draft, error) {
		if !ok {
			return nil, triage.ErrNoDraft
		}
		if d.System == triage.SystemUnknown || d.Symptom == triage.SymptomUnknown {
			return nil, errNotClassified
		}
		if !d.L3Enabled {
			d.AwaitingL3Auth = true
			d.Stage = triage.StageAwaitingL3Auth
		}
		return d, nil
	})
	switch {
	case errors.Is(err, triage.ErrNoDraft):
		return []Response{textResponse(textNoDraft), cardResponse(mainMenuCard())}
	case errors.Is(err, errNotClassified):
		return []Response{textResponse(textNotReady)}
	case err != nil:
		return h.storeFailure(ctx, err, "update")
	}
	h.stage(d.Stage)
	if d.L3Enabled {
		return []Response{cardResponse(l3Card(d, h.c.dir))}
	}
	return []Response{cardResponse(l3AuthCard())}
}

func (h *handler) submitCode(ctx context.Context, code string) []Response {
	var granted bool
	d, err := h.c.store.Update(ctx, h.key, func(d *triage.Draft, ok bool) (*triage.Draft, error) {
		if !ok {
			return nil, triage.ErrNoDraft
		}
		if !d.AwaitingL3Auth {
			return nil, errNoPendingAuth
		}
		granted = h.c.gate.Grant(d, code)
		return d, nil
	})
	switch {
	case errors.Is(err, triage.ErrNoDraft):
		return []Response{textResponse(textNoDraft), cardResponse(mainMenuCard())}
	case errors.Is(err, errNoPendingAuth):
		return h.fallback("no_pending_auth")
	case err != nil:
		return h.storeFailure(ctx, err, "update")
	}

	if h.c.hooks.OnL3Auth != nil {
		h.c.hooks.OnL3Auth(granted)
	}
	h.stage(d.Stage)
	if !granted {
		h.L.Warn(ctx, "l3 authorization rejected", "draft_id", d.ID)
		return []Response{textResponse(textBadCode), cardResponse(l3AuthCard())}
	}
	h.L.Info(ctx, "l3 escalation authorized", "draft_id", d.ID)
	return []Response{cardResponse(l3Card(d, h.c.dir))}
}

func (h *handler) keepL2(ctx context.Context) []Response {
	d, err := h.c.store.Update(ctx, h.key, func(d *triage.Draft, ok bool) (*triage.Draft, error) {
		if !ok {
			return nil, triage.ErrNoDraft
		}
		h.c.gate.Revoke(d)
		return d, nil
	})
	switch {
	case errors.Is(err, triage.ErrNoDraft):
		return []Response{textResponse(textNoDraft), cardResponse(mainMenuCard())}
	case err != nil:
		return h.storeFailure(ctx, err, "update")
	}
	h.stage(d.Stage)
	if d.System == triage.SystemUnknown || d.Symptom == triage.SymptomUnknown {
		return []Response{textResponse(textKeptL2)}
	}
	return []Response{textResponse(textKeptL2), cardResponse(summaryCard(d, h.c.dir))}
}

func (h *handler) menu(ctx context.Context) []Response {
	if err := h.c.store.Clear(ctx, h.key); err != nil {
		return h.storeFailure(ctx, err, "clear")
	}
	h.stage(triage.StageIdle)
	return []Response{cardResponse(mainMenuCard())}
}

// contact sends the summary to a recipient of the given tier. The draft is
// re-read inside the atomic update so an L3 revocation is always honored.
func (h *handler) contact(ctx context.Context, tier, key string) []Response {
	to, ok := h.c.dir.Contact(key)
	if !ok || to.Tier != tier {
		return h.fallback("unknown_recipient")
	}

	now := h.c.now()
	var (
		first    bool
		snapshot *triage.Draft
	)
	_, err := h.c.store.Update(ctx, h.key, func(d *triage.Draft, ok bool) (*triage.Draft, error) {
		if !ok {
			return nil, triage.ErrNoDraft
		}
		if d.System == triage.SystemUnknown || d.Symptom == triage.SymptomUnknown {
			return nil, errNotClassified
		}
		if tier == directory.TierL3 && !d.L3Enabled {
			return nil, errL3NotEnabled
		}
		first = d.MarkSent(to.Key, now)
		snapshot = d.Clone()
		return d, nil
	})
	switch {
	case errors.Is(err, triage.ErrNoDraft):
		return []Response{textResponse(textNoDraft), cardResponse(mainMenuCard())}
	case errors.Is(err, errNotClassified):
		return []Response{textResponse(textNotReady)}
	case errors.Is(err, errL3NotEnabled):
		return []Response{textResponse(textL3Denied), cardResponse(l3AuthCard())}
	case err != nil:
		return h.storeFailure(ctx, err, "update")
	}

	sev := snapshot.Severity()
	if h.c.hooks.OnSummary != nil {
		h.c.hooks.OnSummary(tier, sev, first)
	}
	if !first {
		sentAt := snapshot.ReportSentTo[to.Key]
		return []Response{textResponse(fmt.Sprintf("El resumen ya fue enviado a %s (%s).", to.Name, sentAt.UTC().Format("15:04 UTC")))}
	}

	summary := triage.RenderSummary(snapshot, to.Recipient())
	rec := reports.NewRecord(snapshot, h.caller.ConversationID, h.caller.ParticipantID, to.Recipient(), summary, now)
	h.c.deliver(ctx, h.L, to, snapshot, rec)

	h.L.Info(ctx, "summary sent",
		"draft_id", snapshot.ID,
		"recipient", to.Key,
		"tier", tier,
		"severity", sev,
	)
	return []Response{cardResponse(sentCard(to, summary))}
}

// deliver notifies and archives in the background. Delivery is best effort:
// failures are logged and counted, never retried.
func (c *Controller) deliver(ctx context.Context, L log.Logger, to directory.Contact, d *triage.Draft, rec *reports.Record) {
	if c.notifier == nil && c.archive == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		if err := c.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer c.sem.Release(1)

		ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
		defer cancel()

		if c.notifier != nil {
			err := c.notifier.Notify(ctx, to, d, rec.Summary)
			c.delivered(ctx, L, "notify", err, rec)
		}
		if c.archive != nil {
			err := c.archive.Save(ctx, rec)
			c.delivered(ctx, L, "archive", err, rec)
		}
	}()
}

func (c *Controller) delivered(ctx context.Context, L log.Logger, sink string, err error, rec *reports.Record) {
	if c.hooks.OnDelivery != nil {
		c.hooks.OnDelivery(sink, err)
	}
	if err != nil {
		L.Error(ctx, err, "summary delivery failed", "sink", sink, "record_id", rec.ID, "recipient", rec.RecipientKey)
	}
}
