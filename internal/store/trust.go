package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MikeSquared-Agency/refinery/internal/extractor"
	"github.com/MikeSquared-Agency/refinery/internal/trust"
)

// GetTrust fetches the trust record for a segment. A segment with no grades
// yet returns nil and no error.
func (s *Store) GetTrust(ctx context.Context, segment string) (*trust.Record, error) {
	if s == nil {
		return nil, ErrDisabled
	}
	rec, err := scanTrust(s.db.QueryRow(ctx, `
		SELECT segment, trust_score, total_grades, exact_matches, lost_deals, updated_at
		FROM agent_trust
		WHERE segment = $1`,
		segment,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trust: %w", err)
	}
	return rec, nil
}

// ApplyGrade folds one grade into the segment's trust record inside a
// transaction, so concurrent grades for a segment are not lost.
func (s *Store) ApplyGrade(ctx context.Context, segment string, outcome extractor.Outcome, grade float64) (trust.Record, error) {
	if s == nil {
		return trust.Record{}, ErrDisabled
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return trust.Record{}, fmt.Errorf("begin trust tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec := trust.Record{Segment: segment}
	cur, err := scanTrust(tx.QueryRow(ctx, `
		SELECT segment, trust_score, total_grades, exact_matches, lost_deals, updated_at
		FROM agent_trust
		WHERE segment = $1
		FOR UPDATE`,
		segment,
	))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return trust.Record{}, fmt.Errorf("lock trust: %w", err)
	default:
		rec = *cur
	}

	rec = trust.Apply(rec, outcome, grade, time.Now().UTC())
	if err := upsertTrust(ctx, tx, rec); err != nil {
		return trust.Record{}, fmt.Errorf("upsert trust: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return trust.Record{}, fmt.Errorf("commit trust: %w", err)
	}
	return rec, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertTrust(ctx context.Context, db execer, rec trust.Record) error {
	_, err := db.Exec(ctx, `
		INSERT INTO agent_trust (segment, trust_score, total_grades, exact_matches, lost_deals, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (segment)
		DO UPDATE SET
			trust_score = $2,
			total_grades = $3,
			exact_matches = $4,
			lost_deals = $5,
			updated_at = $6`,
		rec.Segment, rec.Score, rec.TotalGrades, rec.ExactMatches, rec.LostDeals, rec.UpdatedAt,
	)
	return err
}

func scanTrust(row pgx.Row) (*trust.Record, error) {
	var r trust.Record
	if err := row.Scan(&r.Segment, &r.Score, &r.TotalGrades, &r.ExactMatches, &r.LostDeals, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}
