// Package pgstore archives sent summaries in PostgreSQL.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/firstline/internal/reports"
	"github.com/linnemanlabs/firstline/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/firstline/internal/reports/pgstore")

//go:embed schema.sql
var schema string

var (
	_ reports.Archive = (*Store)(nil)
	_ reports.Reader  = (*Store)(nil)
)

// Store persists report records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const reportColumns = `id, draft_id, conversation_id, participant_id, recipient_key, recipient_tier,
	system, symptom, environment, severity, node, event_timestamp, summary, sent_at`

// Save inserts rec. A second record for the same draft and recipient is
// ignored.
func (s *Store) Save(ctx context.Context, rec *reports.Record) error {
	ctx, span := tracer.Start(ctx, "pgstore.Save", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
		attribute.String("report.id", rec.ID),
	))
	defer span.End()

	_, err := s.pool.Exec(ctx, `INSERT INTO summary_reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING`,
		rec.ID, rec.DraftID, rec.ConversationID, rec.ParticipantID, rec.RecipientKey, rec.RecipientTier,
		string(rec.System), string(rec.Symptom), string(rec.Environment), string(rec.Severity),
		rec.Node, rec.EventTimestamp, rec.Summary, rec.SentAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*reports.Record, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rec, err := scanRecord(s.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM summary_reports WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	return rec, true, nil
}

// ListByDraft returns every record sent for a draft, oldest first.
func (s *Store) ListByDraft(ctx context.Context, draftID string) ([]*reports.Record, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListByDraft", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT `+reportColumns+` FROM summary_reports WHERE draft_id = $1 ORDER BY sent_at, id`, draftID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []*reports.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*reports.Record, error) {
	var (
		rec                reports.Record
		sys, sym, env, sev string
	)
	err := row.Scan(
		&rec.ID, &rec.DraftID, &rec.ConversationID, &rec.ParticipantID, &rec.RecipientKey, &rec.RecipientTier,
		&sys, &sym, &env, &sev, &rec.Node, &rec.EventTimestamp, &rec.Summary, &rec.SentAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan report: %w", err)
	}
	rec.System = triage.System(sys)
	rec.Symptom = triage.Symptom(sym)
	rec.Environment = triage.Environment(env)
	rec.Severity = triage.Severity(sev)
	return &rec, nil
}
