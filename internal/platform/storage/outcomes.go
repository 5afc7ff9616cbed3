package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/marko911/chainkit/internal/platform/outcome"
)

// OutcomeRepository reads and writes the watch_outcomes table.
type OutcomeRepository struct {
	db *DB
}

// NewOutcomeRepository returns a repository over db.
func NewOutcomeRepository(db *DB) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

// Save inserts rec. A record whose session was already stored is left
// untouched and reported as not inserted.
func (r *OutcomeRepository) Save(ctx context.Context, rec outcome.Record) (bool, error) {
	var value []byte
	if len(rec.Value) > 0 {
		value = rec.Value
	}

	tag, err := r.db.pool.Exec(ctx, `
		INSERT INTO watch_outcomes (
			session_id, kind, subject, outcome, value,
			attempts, via_push, elapsed_ms, observed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO NOTHING`,
		rec.SessionID, rec.Kind, rec.Subject, rec.Outcome, value,
		rec.Attempts, rec.ViaPush, rec.ElapsedMs, rec.ObservedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert outcome: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const selectOutcome = `
	SELECT session_id::text, kind, subject, outcome, value,
	       attempts, via_push, elapsed_ms, observed_at
	FROM watch_outcomes`

func scanOutcome(row pgx.Row) (outcome.Record, error) {
	var rec outcome.Record
	var value []byte
	err := row.Scan(
		&rec.SessionID, &rec.Kind, &rec.Subject, &rec.Outcome, &value,
		&rec.Attempts, &rec.ViaPush, &rec.ElapsedMs, &rec.ObservedAt,
	)
	if err != nil {
		return outcome.Record{}, err
	}
	rec.Value = value
	rec.ObservedAt = rec.ObservedAt.UTC()
	return rec, nil
}

// Get returns the record of sessionID, or nil when none is stored.
func (r *OutcomeRepository) Get(ctx context.Context, sessionID string) (*outcome.Record, error) {
	rec, err := scanOutcome(r.db.pool.QueryRow(ctx, selectOutcome+` WHERE session_id = $1`, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get outcome: %w", err)
	}
	return &rec, nil
}

// ListBySubject returns the newest limit records for subject.
func (r *OutcomeRepository) ListBySubject(ctx context.Context, subject string, limit int) ([]outcome.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.pool.Query(ctx, selectOutcome+` WHERE subject = $1 ORDER BY observed_at DESC LIMIT $2`, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var out []outcome.Record
	for rows.Next() {
		rec, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Publisher is the outcome sink that stores records in Postgres.
type Publisher struct {
	db     *DB
	repo   *OutcomeRepository
	logger *slog.Logger
}

// NewPublisher connects, applies pending migrations and returns the sink.
func NewPublisher(ctx context.Context, cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "outcome-postgres")
	db, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open outcome store: %w", err)
	}
	return &Publisher{
		db:     db,
		repo:   NewOutcomeRepository(db),
		logger: logger,
	}, nil
}

// Publish stores rec. Publishing the same session twice is not an error.
func (p *Publisher) Publish(ctx context.Context, rec outcome.Record) error {
	inserted, err := p.repo.Save(ctx, rec)
	if err != nil {
		return err
	}
	p.logger.Debug("stored outcome",
		"session_id", rec.SessionID,
		"outcome", rec.Outcome,
		"duplicate", !inserted,
	)
	return nil
}

// Close closes the connection pool.
func (p *Publisher) Close() error {
	p.db.Close()
	return nil
}

var _ outcome.Publisher = (*Publisher)(nil)
