//go:build integration

package store

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/refinery/internal/extractor"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	if err := Migrate(dbURL, -1, slog.Default()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestIntegration_OptimizationLedger(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	segment := "IT:" + uuid.New().String()[:8]

	candidate := "Acknowledge the budget concern before quoting ROI."
	for _, status := range []string{"rejected", "accepted"} {
		if _, err := s.RecordOptimization(ctx, OptimizationRecord{
			CallID:          "integration-" + status,
			Segment:         segment,
			Status:          status,
			MeanScore:       0.6,
			Cases:           3,
			PreviousPrompt:  "You are a helpful sales agent.",
			CandidatePrompt: &candidate,
			DurationMS:      1500,
		}); err != nil {
			t.Fatalf("RecordOptimization(%s): %v", status, err)
		}
	}

	recs, err := s.ListOptimizations(ctx, segment, 10)
	if err != nil {
		t.Fatalf("ListOptimizations: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	for _, r := range recs {
		switch r.Status {
		case "accepted":
			if r.CandidatePrompt == nil || *r.CandidatePrompt != candidate {
				t.Errorf("accepted attempt should keep its candidate, got %v", r.CandidatePrompt)
			}
		case "rejected":
			if r.CandidatePrompt != nil {
				t.Errorf("rejected attempt stored candidate %q", *r.CandidatePrompt)
			}
		}
	}
}

func TestIntegration_RoutingAndTrust(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	segment := "IT:" + uuid.New().String()[:8]

	grade := 1.0
	if _, err := s.RecordRouting(ctx, RoutingRecord{
		CallID:       "integration-call",
		Segment:      segment,
		SpeakerRole:  "AI_AGENT",
		Outcome:      string(extractor.OutcomeClosed),
		Action:       "graded_agent",
		Objection:    "Too expensive",
		QualityScore: 0.7,
		Grade:        &grade,
	}); err != nil {
		t.Fatalf("RecordRouting: %v", err)
	}

	if rec, err := s.GetTrust(ctx, segment); err != nil || rec != nil {
		t.Fatalf("expected no trust record yet, got %+v, %v", rec, err)
	}

	if _, err := s.ApplyGrade(ctx, segment, extractor.OutcomeClosed, 1.0); err != nil {
		t.Fatalf("ApplyGrade: %v", err)
	}
	rec, err := s.ApplyGrade(ctx, segment, extractor.OutcomeLost, 0.5)
	if err != nil {
		t.Fatalf("ApplyGrade: %v", err)
	}
	if rec.TotalGrades != 2 || rec.ExactMatches != 1 || rec.LostDeals != 1 {
		t.Errorf("unexpected counters: %+v", rec)
	}

	stored, err := s.GetTrust(ctx, segment)
	if err != nil || stored == nil {
		t.Fatalf("GetTrust: %+v, %v", stored, err)
	}
	if stored.Score != rec.Score {
		t.Errorf("stored score %f != applied %f", stored.Score, rec.Score)
	}
}
