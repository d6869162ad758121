package trust

import (
	"time"

	"github.com/MikeSquared-Agency/refinery/internal/extractor"
)

// ExactMatchGrade is the grade an agent earns when its rebuttal equals the
// learned one.
const ExactMatchGrade = 1.0

// Record is the running trust in the AI agent for one segment.
type Record struct {
	Segment      string    `json:"segment"`
	Score        float64   `json:"trust_score"`
	TotalGrades  int       `json:"total_grades"`
	ExactMatches int       `json:"exact_matches"`
	LostDeals    int       `json:"lost_deals"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SignalWeight returns the trust step for a graded call. Lost deals move trust
// further than closed ones.
func SignalWeight(outcome extractor.Outcome) float64 {
	switch outcome {
	case extractor.OutcomeLost:
		return 0.03
	case extractor.OutcomeClosed:
		return 0.01
	default:
		return 0.01
	}
}

// UpdateScore calculates the new trust score after a graded call.
// Degradation is asymmetric: non-matching grades count 2x.
func UpdateScore(currentScore float64, outcome extractor.Outcome, correct bool) float64 {
	weight := SignalWeight(outcome)
	if correct {
		return clamp(currentScore + weight)
	}
	return clamp(currentScore - weight*2.0)
}

// Apply folds one grade into rec and returns the updated copy.
func Apply(rec Record, outcome extractor.Outcome, grade float64, now time.Time) Record {
	correct := grade >= ExactMatchGrade
	rec.Score = UpdateScore(rec.Score, outcome, correct)
	rec.TotalGrades++
	if correct {
		rec.ExactMatches++
	}
	if outcome == extractor.OutcomeLost {
		rec.LostDeals++
	}
	rec.UpdatedAt = now
	return rec
}

// DecayScore applies daily decay for stale trust scores.
// decayRate is typically 0.01, days is the number of days since last grade.
func DecayScore(currentScore float64, decayRate float64, days int) float64 {
	score := currentScore
	for i := 0; i < days; i++ {
		score *= (1.0 - decayRate)
	}
	return clamp(score)
}

// Current returns rec's score decayed to now.
func Current(rec Record, decayRate float64, now time.Time) float64 {
	if rec.UpdatedAt.IsZero() {
		return rec.Score
	}
	days := int(now.Sub(rec.UpdatedAt).Hours() / 24)
	return DecayScore(rec.Score, decayRate, days)
}

func clamp(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
