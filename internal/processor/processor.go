package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/refinery/internal/corpus"
	"github.com/MikeSquared-Agency/refinery/internal/extractor"
	"github.com/MikeSquared-Agency/refinery/internal/hermes"
	"github.com/MikeSquared-Agency/refinery/internal/llm"
	"github.com/MikeSquared-Agency/refinery/internal/metrics"
	"github.com/MikeSquared-Agency/refinery/internal/optimizer"
	"github.com/MikeSquared-Agency/refinery/internal/prompts"
	"github.com/MikeSquared-Agency/refinery/internal/skills"
	"github.com/MikeSquared-Agency/refinery/internal/slack"
	"github.com/MikeSquared-Agency/refinery/internal/store"
	"github.com/MikeSquared-Agency/refinery/internal/trust"
)

type Classifier interface {
	Classify(ctx context.Context, transcript string) extractor.Classification
}

type Extractor interface {
	Extract(ctx context.Context, transcript string) (*extractor.ObjectionAnalysis, error)
}

type SkillStore interface {
	Upsert(ctx context.Context, sk skills.Skill) error
	GetRebuttal(ctx context.Context, objection string) (string, bool, error)
}

type Corpus interface {
	AddFromLesson(ctx context.Context, objection, rebuttal string) (corpus.TestCase, error)
}

type Optimizer interface {
	Optimize(ctx context.Context, seg prompts.Segment, transcript string, outcome extractor.Outcome) (*optimizer.Result, error)
}

// Ledger is the audit trail. A nil *store.Store satisfies it and reports
// store.ErrDisabled, which is ignored.
type Ledger interface {
	RecordRouting(ctx context.Context, r store.RoutingRecord) (uuid.UUID, error)
	RecordOptimization(ctx context.Context, o store.OptimizationRecord) (uuid.UUID, error)
	ApplyGrade(ctx context.Context, segment string, outcome extractor.Outcome, grade float64) (trust.Record, error)
}

type Publisher interface {
	Publish(subject string, data any) error
}

type Notifier interface {
	NotifySkillLearned(ctx context.Context, s slack.SkillLearned) error
	NotifyPromptPromoted(ctx context.Context, pp slack.PromptPromoted) error
}

// Deps wires the processor. Ledger, Publisher and Notifier are optional.
type Deps struct {
	Classifier Classifier
	Extractor  Extractor
	Embedder   llm.Embedder
	Skills     SkillStore
	Corpus     Corpus
	Optimizer  Optimizer
	Ledger     Ledger
	Publisher  Publisher
	Notifier   Notifier
	Metrics    *metrics.Refinery
}

// Processor runs the routing policy for completed calls.
type Processor struct {
	classifier Classifier
	extractor  Extractor
	embedder   llm.Embedder
	skills     SkillStore
	corpus     Corpus
	optimizer  Optimizer
	ledger     Ledger
	hermes     Publisher
	slack      Notifier
	metrics    *metrics.Refinery
	logger     *slog.Logger
}

func New(d Deps, logger *slog.Logger) *Processor {
	return &Processor{
		classifier: d.Classifier,
		extractor:  d.Extractor,
		embedder:   d.Embedder,
		skills:     d.Skills,
		corpus:     d.Corpus,
		optimizer:  d.Optimizer,
		ledger:     d.Ledger,
		hermes:     d.Publisher,
		slack:      d.Notifier,
		metrics:    d.Metrics,
		logger:     logger,
	}
}

// Call is one completed call. An empty Outcome means the classifier decides.
type Call struct {
	ID         string            `json:"call_id"`
	Transcript string            `json:"transcript"`
	Role       Role              `json:"speaker_role"`
	Outcome    extractor.Outcome `json:"outcome,omitempty"`
	Segment    prompts.Segment   `json:"segment"`
}

// CallFromEvent converts a call.completed payload. Structured turns are used
// only when no flat transcript was sent.
func CallFromEvent(evt hermes.CallCompletedEvent) Call {
	transcript := evt.Transcript
	if strings.TrimSpace(transcript) == "" && len(evt.Turns) > 0 {
		turns := make([]extractor.Turn, len(evt.Turns))
		for i, t := range evt.Turns {
			turns[i] = extractor.Turn{Speaker: t.Speaker, Text: t.Text}
		}
		transcript = extractor.FormatTranscript(turns)
	}
	c := Call{
		ID:         evt.CallID,
		Transcript: transcript,
		Role:       ParseRole(evt.SpeakerRole),
		Segment:    prompts.NewSegment(evt.Country, evt.Industry),
	}
	if strings.TrimSpace(evt.Outcome) != "" {
		c.Outcome = extractor.ParseOutcome(evt.Outcome)
	}
	return c
}

// OptimizationSummary reports an optimization attempt triggered by a call.
type OptimizationSummary struct {
	Status    string  `json:"status"`
	MeanScore float64 `json:"mean_score"`
	Cases     int     `json:"cases"`
	Error     string  `json:"error,omitempty"`
}

// Result is the routing outcome for one call.
type Result struct {
	CallID           string                       `json:"call_id"`
	Status           string                       `json:"status"`
	Segment          string                       `json:"segment"`
	Outcome          extractor.Outcome            `json:"outcome"`
	OutcomeDefaulted bool                         `json:"outcome_defaulted,omitempty"`
	Score            *float64                     `json:"score,omitempty"`
	Optimized        bool                         `json:"optimized,omitempty"`
	Data             *extractor.ObjectionAnalysis `json:"data,omitempty"`
	Optimization     *OptimizationSummary         `json:"optimization,omitempty"`
}

// HandleCallCompleted is the NATS handler for swarm.call.completed.
func (p *Processor) HandleCallCompleted(subject string, data []byte) {
	evt, err := hermes.ParseCallCompleted(data)
	if err != nil {
		p.logger.Error("failed to parse call event", "subject", subject, "error", err)
		return
	}
	if _, err := p.Process(context.Background(), CallFromEvent(evt)); err != nil {
		p.logger.Error("call processing failed", "call_id", evt.CallID, "error", err)
	}
}

// Process classifies, extracts and routes one call. Extraction and learning
// failures are returned; optimization failures are reported in the Result.
func (p *Processor) Process(ctx context.Context, call Call) (*Result, error) {
	if strings.TrimSpace(call.Transcript) == "" {
		return nil, errors.New("process call: empty transcript")
	}
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.Segment == (prompts.Segment{}) {
		call.Segment = prompts.NewSegment("", "")
	}

	res := &Result{CallID: call.ID, Segment: call.Segment.Key(), Outcome: call.Outcome}
	if res.Outcome == "" {
		c := p.classifier.Classify(ctx, call.Transcript)
		res.Outcome = c.Outcome
		res.OutcomeDefaulted = c.Defaulted
		if c.Defaulted {
			p.metrics.ObserveClassifierDefault()
		}
	}

	analysis, err := p.extractor.Extract(ctx, call.Transcript)
	if err != nil {
		return nil, fmt.Errorf("process call %s: %w", call.ID, err)
	}

	d := Decide(call.Role, res.Outcome, analysis.QualityScore)
	res.Status = d.Action
	p.logger.Info("routing call",
		"call_id", call.ID,
		"segment", res.Segment,
		"role", string(call.Role),
		"outcome", string(res.Outcome),
		"quality", analysis.QualityScore,
		"action", d.Action,
	)

	if d.Action == ActionLearned {
		if err := p.learn(ctx, call, analysis); err != nil {
			return nil, fmt.Errorf("process call %s: %w", call.ID, err)
		}
		res.Data = analysis
	}
	if d.Grade {
		score := p.grade(ctx, call, res.Outcome, analysis)
		res.Score = &score
	}
	if d.Optimize {
		res.Optimized = true
		res.Optimization = p.optimize(ctx, call, res.Outcome)
	}

	p.metrics.ObserveRouting(d.Action)
	p.record(ctx, call, res, analysis)
	return res, nil
}

func (p *Processor) learn(ctx context.Context, call Call, a *extractor.ObjectionAnalysis) error {
	vec, err := p.embedder.Embed(ctx, a.Objection)
	if err != nil {
		return fmt.Errorf("embed objection: %w", err)
	}
	sk := skills.Skill{
		Fingerprint: skills.Fingerprint(a.Objection),
		Trigger:     a.Objection,
		Rebuttal:    a.Rebuttal,
		Embedding:   vec,
	}
	// A skill is only written once its test case is in the corpus.
	if _, err := p.corpus.AddFromLesson(ctx, a.Objection, a.Rebuttal); err != nil {
		return err
	}
	if err := p.skills.Upsert(ctx, sk); err != nil {
		return err
	}
	p.metrics.ObserveSkillLearned()
	p.logger.Info("learned new skill", "call_id", call.ID, "fingerprint", sk.Fingerprint, "objection", a.Objection)

	p.publish(hermes.SubjectSkillLearned, hermes.SkillLearnedEvent{
		CallID:       call.ID,
		Segment:      call.Segment.Key(),
		Fingerprint:  sk.Fingerprint,
		Objection:    a.Objection,
		QualityScore: a.QualityScore,
	})
	if p.slack != nil {
		if err := p.slack.NotifySkillLearned(ctx, slack.SkillLearned{
			Segment:      call.Segment.Key(),
			Objection:    a.Objection,
			Rebuttal:     a.Rebuttal,
			QualityScore: a.QualityScore,
		}); err != nil {
			p.logger.Error("slack notify failed", "error", err)
		}
	}
	return nil
}

func (p *Processor) grade(ctx context.Context, call Call, outcome extractor.Outcome, a *extractor.ObjectionAnalysis) float64 {
	known, found, err := p.skills.GetRebuttal(ctx, a.Objection)
	if err != nil {
		p.logger.Warn("skill lookup failed, grading as mismatch", "call_id", call.ID, "error", err)
	}
	score := GradeRebuttal(a.Rebuttal, known, found)

	if p.ledger != nil {
		rec, err := p.ledger.ApplyGrade(ctx, call.Segment.Key(), outcome, score)
		switch {
		case errors.Is(err, store.ErrDisabled):
		case err != nil:
			p.logger.Error("failed to update agent trust", "segment", call.Segment.Key(), "error", err)
		default:
			p.logger.Info("agent trust updated", "segment", rec.Segment, "trust", rec.Score)
		}
	}

	p.publish(hermes.SubjectAgentGraded, hermes.AgentGradedEvent{
		CallID:    call.ID,
		Segment:   call.Segment.Key(),
		Outcome:   string(outcome),
		Objection: a.Objection,
		Score:     score,
	})
	return score
}

func (p *Processor) optimize(ctx context.Context, call Call, outcome extractor.Outcome) *OptimizationSummary {
	start := time.Now()
	rec := store.OptimizationRecord{CallID: call.ID, Segment: call.Segment.Key()}

	res, err := p.optimizer.Optimize(ctx, call.Segment, call.Transcript, outcome)
	if err != nil {
		msg := err.Error()
		rec.Status = optimizer.StatusFailed
		rec.Error = &msg
		rec.DurationMS = time.Since(start).Milliseconds()
		p.recordOptimization(ctx, rec)
		return &OptimizationSummary{Status: optimizer.StatusFailed, Error: msg}
	}

	rec.Status = res.Status
	rec.MeanScore = res.MeanScore
	rec.Cases = res.Cases
	rec.PreviousPrompt = res.Previous
	rec.DurationMS = res.Duration.Milliseconds()
	if res.Accepted() {
		candidate := res.Candidate
		rec.CandidatePrompt = &candidate
	}
	p.recordOptimization(ctx, rec)

	evt := hermes.PromptEvent{
		CallID:    call.ID,
		Segment:   res.Segment,
		Status:    res.Status,
		MeanScore: res.MeanScore,
		Cases:     res.Cases,
	}
	if res.Accepted() {
		p.publish(hermes.SubjectPromptPromoted, evt)
		if p.slack != nil {
			if err := p.slack.NotifyPromptPromoted(ctx, slack.PromptPromoted{
				Segment:   res.Segment,
				MeanScore: res.MeanScore,
				Cases:     res.Cases,
				Previous:  res.Previous,
				Candidate: res.Candidate,
			}); err != nil {
				p.logger.Error("slack notify failed", "error", err)
			}
		}
	} else {
		p.publish(hermes.SubjectPromptRejected, evt)
	}

	return &OptimizationSummary{Status: res.Status, MeanScore: res.MeanScore, Cases: res.Cases}
}

func (p *Processor) record(ctx context.Context, call Call, res *Result, a *extractor.ObjectionAnalysis) {
	if p.ledger == nil {
		return
	}
	rec := store.RoutingRecord{
		CallID:           call.ID,
		Segment:          res.Segment,
		SpeakerRole:      string(call.Role),
		Outcome:          string(res.Outcome),
		OutcomeDefaulted: res.OutcomeDefaulted,
		Action:           res.Status,
		Objection:        a.Objection,
		QualityScore:     a.QualityScore,
		Grade:            res.Score,
	}
	if res.Optimization != nil {
		status := res.Optimization.Status
		rec.OptimizationStatus = &status
	}
	if _, err := p.ledger.RecordRouting(ctx, rec); err != nil && !errors.Is(err, store.ErrDisabled) {
		p.logger.Error("failed to record routing result", "call_id", call.ID, "error", err)
	}
}

func (p *Processor) recordOptimization(ctx context.Context, rec store.OptimizationRecord) {
	if p.ledger == nil {
		return
	}
	if _, err := p.ledger.RecordOptimization(ctx, rec); err != nil && !errors.Is(err, store.ErrDisabled) {
		p.logger.Error("failed to record optimization", "segment", rec.Segment, "error", err)
	}
}

func (p *Processor) publish(subject string, data any) {
	if p.hermes == nil {
		return
	}
	if err := p.hermes.Publish(subject, data); err != nil {
		p.logger.Error("failed to publish", "subject", subject, "error", err)
	}
}
