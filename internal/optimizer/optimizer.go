// Package optimizer proposes a rewritten segment prompt after a lost call,
// scores it against the regression corpus, and only promotes it when it
// clears the quality gate.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/refinery/internal/corpus"
	"github.com/MikeSquared-Agency/refinery/internal/extractor"
	"github.com/MikeSquared-Agency/refinery/internal/llm"
	"github.com/MikeSquared-Agency/refinery/internal/metrics"
	"github.com/MikeSquared-Agency/refinery/internal/prompts"
)

// GateThreshold is the minimum mean score, inclusive, a candidate needs to
// replace the live prompt.
const GateThreshold = 0.5

const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

var ErrEmptyCandidate = errors.New("optimizer: empty candidate prompt")

var tracer trace.Tracer = otel.Tracer("refinery/optimizer")

// EvaluationResult is the judge's verdict on one simulated answer.
type EvaluationResult struct {
	Input              string  `json:"input"`
	AddressesObjection bool    `json:"addresses_objection"`
	ProfessionalTone   bool    `json:"professional_tone"`
	AlignsWithTarget   bool    `json:"aligns_with_target"`
	OverallScore       float64 `json:"overall_score"`
}

// Result describes one optimization attempt that reached the gate.
type Result struct {
	Segment     string             `json:"segment"`
	Status      string             `json:"status"`
	MeanScore   float64            `json:"mean_score"`
	Cases       int                `json:"cases"`
	Previous    string             `json:"previous_prompt"`
	Candidate   string             `json:"candidate_prompt,omitempty"`
	Evaluations []EvaluationResult `json:"evaluations"`
	Duration    time.Duration      `json:"duration_ns"`
}

func (r *Result) Accepted() bool { return r != nil && r.Status == StatusAccepted }

// PromptStore is the subset of the prompt store the optimizer needs.
type PromptStore interface {
	Resolve(ctx context.Context, seg prompts.Segment) (prompts.Resolution, error)
	SetSegment(ctx context.Context, seg prompts.Segment, prompt string) error
}

// Corpus supplies the regression cases, seeding them if needed.
type Corpus interface {
	EnsureSeeded(ctx context.Context) ([]corpus.TestCase, error)
}

type Optimizer struct {
	llm         llm.Generator
	prompts     PromptStore
	corpus      Corpus
	locks       *SegmentLocks
	timeout     time.Duration
	concurrency int
	metrics     *metrics.Refinery
	logger      *slog.Logger
}

type Options struct {
	Timeout     time.Duration
	Concurrency int
	Metrics     *metrics.Refinery
}

func New(gen llm.Generator, ps PromptStore, c Corpus, opts Options, logger *slog.Logger) *Optimizer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Optimizer{
		llm:         gen,
		prompts:     ps,
		corpus:      c,
		locks:       NewSegmentLocks(),
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		metrics:     opts.Metrics,
		logger:      logger,
	}
}

// InFlight lists segments with an attempt in progress.
func (o *Optimizer) InFlight() []string {
	return o.locks.InFlight()
}

// Optimize runs one mutate-evaluate-gate cycle for a segment. A candidate that
// fails the gate is a normal rejected Result; errors mean the attempt could
// not complete and nothing was written.
func (o *Optimizer) Optimize(ctx context.Context, seg prompts.Segment, transcript string, outcome extractor.Outcome) (*Result, error) {
	ctx, span := tracer.Start(ctx, "optimizer.optimize", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(attribute.String("segment", seg.Key()), attribute.String("outcome", string(outcome)))

	start := time.Now()
	res, err := o.optimize(ctx, seg, transcript, outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.ObserveOptimization(StatusFailed, 0)
		o.logger.Error("prompt optimization failed", "segment", seg.Key(), "error", err)
		return nil, err
	}
	res.Duration = time.Since(start)
	span.SetAttributes(attribute.String("status", res.Status), attribute.Float64("mean_score", res.MeanScore))
	o.metrics.ObserveOptimization(res.Status, res.MeanScore)
	return res, nil
}

func (o *Optimizer) optimize(ctx context.Context, seg prompts.Segment, transcript string, outcome extractor.Outcome) (*Result, error) {
	release, err := o.locks.Acquire(ctx, seg.Key())
	if err != nil {
		return nil, fmt.Errorf("acquire segment %s: %w", seg.Key(), err)
	}
	defer release()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	current, err := o.prompts.Resolve(ctx, seg)
	if err != nil {
		return nil, fmt.Errorf("resolve current prompt: %w", err)
	}

	candidate, err := o.mutate(ctx, seg, current.Prompt, transcript, outcome)
	if err != nil {
		return nil, err
	}

	cases, err := o.corpus.EnsureSeeded(ctx)
	if err != nil {
		return nil, fmt.Errorf("load test cases: %w", err)
	}

	o.logger.Info("evaluating candidate prompt", "segment", seg.Key(), "cases", len(cases), "prompt_level", string(current.Level))
	evals, err := o.evaluate(ctx, candidate, cases)
	if err != nil {
		return nil, err
	}

	mean := meanScore(evals)
	res := &Result{
		Segment:     seg.Key(),
		MeanScore:   mean,
		Cases:       len(evals),
		Previous:    current.Prompt,
		Evaluations: evals,
	}

	if len(evals) == 0 || !passesGate(mean) {
		res.Status = StatusRejected
		o.logger.Warn("candidate prompt failed gate, discarding", "segment", seg.Key(), "mean_score", mean)
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("optimization deadline: %w", err)
	}
	if err := o.prompts.SetSegment(ctx, seg, candidate); err != nil {
		return nil, fmt.Errorf("promote prompt: %w", err)
	}
	res.Status = StatusAccepted
	res.Candidate = candidate
	o.logger.Info("candidate prompt promoted", "segment", seg.Key(), "mean_score", mean)
	return res, nil
}

func (o *Optimizer) mutate(ctx context.Context, seg prompts.Segment, current, transcript string, outcome extractor.Outcome) (string, error) {
	instr := fmt.Sprintf(mutatePrompt, seg.Industry, seg.Country, current, transcript, outcome)
	out, err := o.llm.Generate(ctx, instr, false)
	if err != nil {
		return "", fmt.Errorf("generate candidate: %w", err)
	}
	candidate := strings.TrimSpace(out)
	if candidate == "" {
		return "", ErrEmptyCandidate
	}
	return candidate, nil
}

// evaluate simulates and judges every case. Cases are independent and run
// concurrently; the first gateway error cancels the rest.
func (o *Optimizer) evaluate(ctx context.Context, candidate string, cases []corpus.TestCase) ([]EvaluationResult, error) {
	evals := make([]EvaluationResult, len(cases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, tc := range cases {
		g.Go(func() error {
			ev, err := o.evaluateCase(gctx, candidate, tc)
			if err != nil {
				return err
			}
			evals[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return evals, nil
}

func (o *Optimizer) evaluateCase(ctx context.Context, candidate string, tc corpus.TestCase) (EvaluationResult, error) {
	answer, err := o.llm.Generate(ctx, fmt.Sprintf(simulatePrompt, candidate, tc.Input), false)
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("simulate answer: %w", err)
	}
	raw, err := o.llm.Generate(ctx, fmt.Sprintf(judgePrompt, tc.Input, strings.TrimSpace(answer), tc.Target), true)
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("judge answer: %w", err)
	}

	ev, ok := llm.ParseOr(raw, EvaluationResult{})
	if !ok {
		o.logger.Warn("unparsable judge response, scoring case 0", "input", tc.Input)
	}
	ev.Input = tc.Input
	ev.OverallScore = clamp(ev.OverallScore)
	return ev, nil
}

func meanScore(evals []EvaluationResult) float64 {
	if len(evals) == 0 {
		return 0
	}
	var sum float64
	for _, e := range evals {
		sum += e.OverallScore
	}
	return sum / float64(len(evals))
}

// gateTolerance absorbs float accumulation error so a corpus whose exact
// mean is the threshold still passes.
const gateTolerance = 1e-9

func passesGate(mean float64) bool {
	return mean >= GateThreshold-gateTolerance
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
