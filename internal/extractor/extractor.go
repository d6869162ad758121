package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/refinery/internal/llm"
)

// ErrExtraction marks a transcript the judge could not distill. There is no
// safe default for it, so the learning pass for that call stops.
var ErrExtraction = errors.New("objection extraction failed")

type Extractor struct {
	llm    llm.Generator
	logger *slog.Logger
}

func New(gen llm.Generator, logger *slog.Logger) *Extractor {
	return &Extractor{llm: gen, logger: logger}
}

// Extract pulls the pivot objection and rebuttal out of a transcript,
// regardless of who was speaking or how the call ended.
func (e *Extractor) Extract(ctx context.Context, transcript string) (*ObjectionAnalysis, error) {
	e.logger.Info("extracting objection", "transcript_len", len(transcript))

	raw, err := e.llm.Generate(ctx, fmt.Sprintf(extractionPrompt, transcript), true)
	if err != nil {
		return nil, fmt.Errorf("%w: llm: %w", ErrExtraction, err)
	}

	analysis, err := llm.Parse[ObjectionAnalysis](raw)
	if err != nil {
		e.logger.Error("failed to parse extraction response", "error", err, "raw", raw)
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	analysis.Objection = strings.TrimSpace(analysis.Objection)
	analysis.Rebuttal = strings.TrimSpace(analysis.Rebuttal)
	if analysis.Objection == "" {
		return nil, fmt.Errorf("%w: empty objection", ErrExtraction)
	}
	analysis.QualityScore = clamp(analysis.QualityScore)

	e.logger.Info("extraction complete",
		"objection", truncate(analysis.Objection, 80),
		"quality_score", analysis.QualityScore,
	)
	return &analysis, nil
}

// Classifier labels a transcript as a closed or lost deal.
type Classifier struct {
	llm     llm.Generator
	timeout time.Duration
	logger  *slog.Logger
}

func NewClassifier(gen llm.Generator, timeout time.Duration, logger *slog.Logger) *Classifier {
	return &Classifier{llm: gen, timeout: timeout, logger: logger}
}

// Classify never fails. A missing, late or malformed answer resolves to
// LOST_DEAL so that ambiguous calls are never mined as successes.
func (c *Classifier) Classify(ctx context.Context, transcript string) Classification {
	lost := Classification{Outcome: OutcomeLost, Defaulted: true}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := c.llm.Generate(ctx, fmt.Sprintf(classifyPrompt, transcript), true)
	if err != nil {
		c.logger.Warn("outcome classification failed, defaulting to LOST_DEAL", "error", err)
		return lost
	}

	resp, ok := llm.ParseOr(raw, classifyResponse{})
	if !ok {
		c.logger.Warn("could not parse outcome, defaulting to LOST_DEAL", "raw", truncate(raw, 200))
		return lost
	}
	label := Outcome(strings.ToUpper(strings.TrimSpace(resp.Outcome)))
	if label != OutcomeClosed && label != OutcomeLost {
		c.logger.Warn("unknown outcome label, defaulting to LOST_DEAL", "outcome", resp.Outcome)
		return lost
	}

	out := Classification{
		Outcome:    label,
		Confidence: clamp(resp.Confidence),
		Reason:     resp.Reason,
	}
	c.logger.Info("outcome classified",
		"outcome", string(out.Outcome),
		"confidence", out.Confidence,
		"reason", out.Reason,
	)
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
