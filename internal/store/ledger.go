package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RoutingRecord is one completed call and what the routing policy did with it.
type RoutingRecord struct {
	ID                 uuid.UUID `json:"id"`
	CallID             string    `json:"call_id"`
	Segment            string    `json:"segment"`
	SpeakerRole        string    `json:"speaker_role"`
	Outcome            string    `json:"outcome"`
	OutcomeDefaulted   bool      `json:"outcome_defaulted"`
	Action             string    `json:"action"`
	Objection          string    `json:"objection"`
	QualityScore       float64   `json:"quality_score"`
	Grade              *float64  `json:"grade,omitempty"`
	OptimizationStatus *string   `json:"optimization_status,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// OptimizationRecord is one prompt optimization attempt. CandidatePrompt is
// only kept for accepted attempts.
type OptimizationRecord struct {
	ID              uuid.UUID `json:"id"`
	CallID          string    `json:"call_id"`
	Segment         string    `json:"segment"`
	Status          string    `json:"status"`
	MeanScore       float64   `json:"mean_score"`
	Cases           int       `json:"cases"`
	PreviousPrompt  string    `json:"previous_prompt"`
	CandidatePrompt *string   `json:"candidate_prompt,omitempty"`
	Error           *string   `json:"error,omitempty"`
	DurationMS      int64     `json:"duration_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// RecordRouting writes a routing result and returns its id.
func (s *Store) RecordRouting(ctx context.Context, r RoutingRecord) (uuid.UUID, error) {
	if s == nil {
		return uuid.Nil, ErrDisabled
	}
	id := uuid.New()
	_, err := s.db.Exec(ctx, `
		INSERT INTO routing_results (id, call_id, segment, speaker_role, outcome, outcome_defaulted, action, objection, quality_score, grade, optimization_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id, r.CallID, r.Segment, r.SpeakerRole, r.Outcome, r.OutcomeDefaulted, r.Action, r.Objection, r.QualityScore, r.Grade, r.OptimizationStatus,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert routing result: %w", err)
	}
	return id, nil
}

// RecordOptimization writes an optimization attempt and returns its id.
func (s *Store) RecordOptimization(ctx context.Context, o OptimizationRecord) (uuid.UUID, error) {
	if s == nil {
		return uuid.Nil, ErrDisabled
	}
	if o.Status != "accepted" {
		o.CandidatePrompt = nil
	}
	id := uuid.New()
	_, err := s.db.Exec(ctx, `
		INSERT INTO optimization_attempts (id, call_id, segment, status, mean_score, cases, previous_prompt, candidate_prompt, error, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, o.CallID, o.Segment, o.Status, o.MeanScore, o.Cases, o.PreviousPrompt, o.CandidatePrompt, o.Error, o.DurationMS,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert optimization attempt: %w", err)
	}
	return id, nil
}

// ListOptimizations returns the newest attempts first, optionally for one
// segment.
func (s *Store) ListOptimizations(ctx context.Context, segment string, limit int) ([]OptimizationRecord, error) {
	if s == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, call_id, segment, status, mean_score, cases, previous_prompt, candidate_prompt, error, duration_ms, created_at
		FROM optimization_attempts
		WHERE ($1 = '' OR segment = $1)
		ORDER BY created_at DESC
		LIMIT $2`,
		segment, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query optimization attempts: %w", err)
	}
	defer rows.Close()

	var out []OptimizationRecord
	for rows.Next() {
		var o OptimizationRecord
		if err := rows.Scan(&o.ID, &o.CallID, &o.Segment, &o.Status, &o.MeanScore, &o.Cases, &o.PreviousPrompt, &o.CandidatePrompt, &o.Error, &o.DurationMS, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan optimization attempt: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate optimization attempts: %w", err)
	}
	return out, nil
}
