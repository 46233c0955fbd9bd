package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestShortenFuncName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"full path", "github.com/linnemanlabs/firstline/internal/reports/pgstore.(*Store).Save", "(*Store).Save"},
		{"already short", "(*Store).Save", "Save"},
		{"empty string", "", ""},
		{"no dots", "main", "main"},
		{"no slashes", "pgstore.(*Store).Save", "(*Store).Save"},
		{"single segment", "foo.Bar", "Bar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := shortenFuncName(tt.in); got != tt.want {
				t.Errorf("shortenFuncName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestOperationName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tag  pgconn.CommandTag
		sql  string
		want string
	}{
		{"from tag", pgconn.NewCommandTag("INSERT 0 1"), "insert into x", "INSERT"},
		{"from sql when tag empty", pgconn.CommandTag{}, "  select 1", "SELECT"},
		{"lowercase sql", pgconn.CommandTag{}, "create table if not exists t ()", "CREATE"},
		{"nothing", pgconn.CommandTag{}, "", "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := operationName(tt.tag, tt.sql); got != tt.want {
				t.Errorf("operationName = %q, want %q", got, tt.want)
			}
		})
	}
}

type recordingTracer struct {
	started, ended int
}

func (r *recordingTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryStartData) context.Context {
	r.started++
	return ctx
}

func (r *recordingTracer) TraceQueryEnd(context.Context, *pgx.Conn, pgx.TraceQueryEndData) {
	r.ended++
}

type observation struct {
	op, caller, outcome string
}

// Not parallel: swaps the global query observer.
func TestLoggingTracer_ObservesQueries(t *testing.T) {
	var (
		mu  sync.Mutex
		got []observation
	)
	SetQueryObserver(QueryObserverFunc(func(_ context.Context, op, caller, outcome string, _ time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, observation{op, caller, outcome})
	}))
	defer SetQueryObserver(nil)

	inner := &recordingTracer{}
	tr := wrapQueryTracer(inner)
	ctx := context.Background()

	qctx := tr.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "INSERT INTO summary_reports VALUES ($1)", Args: []any{"x"}})
	tr.TraceQueryEnd(qctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("INSERT 0 1")})

	qctx = tr.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT broken"})
	tr.TraceQueryEnd(qctx, nil, pgx.TraceQueryEndData{Err: &pgconn.PgError{Code: "42703"}})

	if inner.started != 2 || inner.ended != 2 {
		t.Errorf("inner tracer start/end = %d/%d, want 2/2", inner.started, inner.ended)
	}
	if len(got) != 2 {
		t.Fatalf("observations = %d, want 2", len(got))
	}
	if got[0].op != "INSERT" || got[0].outcome != "ok" {
		t.Errorf("first observation = %+v, want INSERT ok", got[0])
	}
	if got[1].op != "SELECT" || got[1].outcome != "error" {
		t.Errorf("second observation = %+v, want SELECT error", got[1])
	}
	for _, o := range got {
		if o.caller == "" {
			t.Errorf("observation %+v has empty caller", o)
		}
	}
}

func TestLoggingTracer_EndWithoutStart(t *testing.T) {
	t.Parallel()

	// A missing start must not panic.
	wrapQueryTracer(nil).TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{Err: errors.New("boom")})
}

// Not parallel: swaps the global query observer.
func TestSetQueryObserver(t *testing.T) {
	defer SetQueryObserver(nil)

	called := false
	SetQueryObserver(QueryObserverFunc(func(_ context.Context, _, _, _ string, _ time.Duration) {
		called = true
	}))
	got := getQueryObserver()
	if got == nil {
		t.Fatal("expected non-nil observer after Set")
	}
	got.ObserveQuery(context.Background(), "SELECT", "Save", "ok", time.Millisecond)
	if !called {
		t.Error("observer was not called")
	}

	SetQueryObserver(nil)
	if got := getQueryObserver(); got != nil {
		t.Errorf("expected nil observer after Set(nil), got %v", got)
	}
}
