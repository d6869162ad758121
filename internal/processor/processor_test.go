package processor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/refinery/internal/corpus"
	"github.com/MikeSquared-Agency/refinery/internal/extractor"
	"github.com/MikeSquared-Agency/refinery/internal/hermes"
	"github.com/MikeSquared-Agency/refinery/internal/llm"
	"github.com/MikeSquared-Agency/refinery/internal/metrics"
	"github.com/MikeSquared-Agency/refinery/internal/optimizer"
	"github.com/MikeSquared-Agency/refinery/internal/prompts"
	"github.com/MikeSquared-Agency/refinery/internal/skills"
	"github.com/MikeSquared-Agency/refinery/internal/store"
	"github.com/MikeSquared-Agency/refinery/internal/trust"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		role    Role
		outcome extractor.Outcome
		quality float64
		want    Decision
	}{
		{"human close high quality", RoleHumanManager, extractor.OutcomeClosed, 0.9, Decision{Action: ActionLearned}},
		{"human close at threshold", RoleHumanManager, extractor.OutcomeClosed, 0.8, Decision{Action: ActionNone}},
		{"human close low quality", RoleHumanManager, extractor.OutcomeClosed, 0.5, Decision{Action: ActionNone}},
		{"human lost", RoleHumanManager, extractor.OutcomeLost, 0.95, Decision{Action: ActionOptimized, Optimize: true}},
		{"agent closed", RoleAIAgent, extractor.OutcomeClosed, 0.1, Decision{Action: ActionGraded, Grade: true}},
		{"agent lost", RoleAIAgent, extractor.OutcomeLost, 0.99, Decision{Action: ActionGraded, Grade: true, Optimize: true}},
		{"other lost", Role("INTERN"), extractor.OutcomeLost, 0.9, Decision{Action: ActionOptimized, Optimize: true}},
		{"other closed", Role("INTERN"), extractor.OutcomeClosed, 0.9, Decision{Action: ActionNone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.role, tt.outcome, tt.quality))
		})
	}
}

func TestGradeRebuttal(t *testing.T) {
	assert.Equal(t, GradeMatch, GradeRebuttal("Same words.", "Same words.", true))
	assert.Equal(t, GradeMismatch, GradeRebuttal("Same words", "Same words.", true))
	assert.Equal(t, GradeMismatch, GradeRebuttal("", "", false))
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleAIAgent, ParseRole(" ai_agent "))
	assert.Equal(t, RoleHumanManager, ParseRole("HUMAN_MANAGER"))
	assert.Equal(t, Role("INTERN"), ParseRole("intern"))
}

func TestCallFromEvent(t *testing.T) {
	c := CallFromEvent(hermes.CallCompletedEvent{
		CallID:      "call-9",
		Turns:       []hermes.Turn{{Speaker: "Customer", Text: "Too pricey"}, {Speaker: "Agent", Text: "Let me show ROI"}},
		SpeakerRole: "ai_agent",
		Outcome:     "closed_deal",
		Industry:    "saas",
	})
	assert.Equal(t, "call-9", c.ID)
	assert.Equal(t, "Customer: Too pricey\nAgent: Let me show ROI\n", c.Transcript)
	assert.Equal(t, RoleAIAgent, c.Role)
	assert.Equal(t, extractor.OutcomeClosed, c.Outcome)
	assert.Equal(t, "US:saas", c.Segment.Key())

	c = CallFromEvent(hermes.CallCompletedEvent{Transcript: "hi", SpeakerRole: "AI_AGENT"})
	assert.Equal(t, extractor.Outcome(""), c.Outcome)
}

// fakes

type fakeClassifier struct {
	out   extractor.Classification
	calls int
}

func (f *fakeClassifier) Classify(context.Context, string) extractor.Classification {
	f.calls++
	return f.out
}

type fakeExtractor struct {
	out *extractor.ObjectionAnalysis
	err error
}

func (f *fakeExtractor) Extract(context.Context, string) (*extractor.ObjectionAnalysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	a := *f.out
	return &a, nil
}

type fakeOptimizer struct {
	res  *optimizer.Result
	err  error
	segs []prompts.Segment
}

func (f *fakeOptimizer) Optimize(_ context.Context, seg prompts.Segment, _ string, _ extractor.Outcome) (*optimizer.Result, error) {
	f.segs = append(f.segs, seg)
	if f.err != nil {
		return nil, f.err
	}
	r := *f.res
	r.Segment = seg.Key()
	return &r, nil
}

type fakeLedger struct {
	routing []store.RoutingRecord
	opts    []store.OptimizationRecord
	grades  []float64
}

func (f *fakeLedger) RecordRouting(_ context.Context, r store.RoutingRecord) (uuid.UUID, error) {
	f.routing = append(f.routing, r)
	return uuid.New(), nil
}

func (f *fakeLedger) RecordOptimization(_ context.Context, o store.OptimizationRecord) (uuid.UUID, error) {
	f.opts = append(f.opts, o)
	return uuid.New(), nil
}

func (f *fakeLedger) ApplyGrade(_ context.Context, segment string, outcome extractor.Outcome, grade float64) (trust.Record, error) {
	f.grades = append(f.grades, grade)
	return trust.Record{Segment: segment, Score: grade}, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []any
}

func (f *fakePublisher) Publish(subject string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

type harness struct {
	proc       *Processor
	skills     *skills.RedisStore
	corpus     *corpus.RedisCorpus
	classifier *fakeClassifier
	extractor  *fakeExtractor
	optimizer  *fakeOptimizer
	ledger     *fakeLedger
	pub        *fakePublisher
	embedErr   error
}

func newHarness(t *testing.T, analysis extractor.ObjectionAnalysis) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	h := &harness{
		skills:     skills.NewRedisStore(rdb, discardLogger()),
		corpus:     corpus.NewRedisCorpus(rdb, discardLogger()),
		classifier: &fakeClassifier{out: extractor.Classification{Outcome: extractor.OutcomeLost, Defaulted: true}},
		extractor:  &fakeExtractor{out: &analysis},
		optimizer:  &fakeOptimizer{res: &optimizer.Result{Status: optimizer.StatusRejected, MeanScore: 0.3, Cases: 3, Previous: prompts.DefaultPrompt}},
		ledger:     &fakeLedger{},
		pub:        &fakePublisher{},
	}
	embed := llm.EmbedderFunc(func(context.Context, string) ([]float32, error) {
		if h.embedErr != nil {
			return nil, h.embedErr
		}
		return []float32{0.1, 0.2, 0.3}, nil
	})
	h.proc = New(Deps{
		Classifier: h.classifier,
		Extractor:  h.extractor,
		Embedder:   embed,
		Skills:     h.skills,
		Corpus:     h.corpus,
		Optimizer:  h.optimizer,
		Ledger:     h.ledger,
		Publisher:  h.pub,
		Metrics:    metrics.New(prometheus.NewRegistry()),
	}, discardLogger())
	return h
}

var pricing = extractor.ObjectionAnalysis{
	Objection:    "It is too expensive.",
	Rebuttal:     "It pays for itself in three months.",
	QualityScore: 0.9,
}

var ukSaaS = prompts.Segment{Country: "UK", Industry: "saas"}

func TestProcess_HumanWinLearnsSkill(t *testing.T) {
	h := newHarness(t, pricing)
	ctx := context.Background()

	res, err := h.proc.Process(ctx, Call{
		ID: "call-1", Transcript: "...", Role: RoleHumanManager, Outcome: extractor.OutcomeClosed, Segment: ukSaaS,
	})
	require.NoError(t, err)
	assert.Equal(t, ActionLearned, res.Status)
	assert.Equal(t, "UK:saas", res.Segment)
	require.NotNil(t, res.Data)
	assert.Equal(t, pricing.Objection, res.Data.Objection)
	assert.Nil(t, res.Score)

	sk, err := h.skills.Get(ctx, pricing.Objection)
	require.NoError(t, err)
	require.NotNil(t, sk)
	assert.Equal(t, pricing.Rebuttal, sk.Rebuttal)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, sk.Embedding)

	cases, err := h.corpus.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []corpus.TestCase{{Input: pricing.Objection, Target: pricing.Rebuttal}}, cases)

	assert.Zero(t, h.classifier.calls)
	assert.Empty(t, h.optimizer.segs)
	assert.Equal(t, []string{hermes.SubjectSkillLearned}, h.pub.subjects)
	require.Len(t, h.ledger.routing, 1)
	assert.Equal(t, ActionLearned, h.ledger.routing[0].Action)
}

func TestProcess_HumanWinLowQualityDoesNothing(t *testing.T) {
	low := pricing
	low.QualityScore = 0.5
	h := newHarness(t, low)
	ctx := context.Background()

	res, err := h.proc.Process(ctx, Call{Transcript: "...", Role: RoleHumanManager, Outcome: extractor.OutcomeClosed})
	require.NoError(t, err)
	assert.Equal(t, ActionNone, res.Status)
	assert.Equal(t, "US:general", res.Segment)
	assert.NotEmpty(t, res.CallID)

	n, err := h.skills.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	cases, err := h.corpus.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, cases)
	assert.Empty(t, h.pub.subjects)
}

func TestProcess_AgentExactMatchScoresOne(t *testing.T) {
	h := newHarness(t, pricing)
	ctx := context.Background()
	require.NoError(t, h.skills.Upsert(ctx, skills.Skill{Trigger: pricing.Objection, Rebuttal: pricing.Rebuttal, Embedding: []float32{1, 0}}))

	res, err := h.proc.Process(ctx, Call{Transcript: "...", Role: RoleAIAgent, Outcome: extractor.OutcomeClosed, Segment: ukSaaS})
	require.NoError(t, err)
	assert.Equal(t, ActionGraded, res.Status)
	require.NotNil(t, res.Score)
	assert.Equal(t, 1.0, *res.Score)
	assert.False(t, res.Optimized)
	assert.Nil(t, res.Optimization)
	assert.Empty(t, h.optimizer.segs)
	assert.Equal(t, []float64{1.0}, h.ledger.grades)
	assert.Equal(t, []string{hermes.SubjectAgentGraded}, h.pub.subjects)
}

func TestProcess_AgentLossGradesAndOptimizes(t *testing.T) {
	h := newHarness(t, pricing)
	ctx := context.Background()

	res, err := h.proc.Process(ctx, Call{Transcript: "...", Role: RoleAIAgent, Outcome: extractor.OutcomeLost, Segment: ukSaaS})
	require.NoError(t, err)
	assert.Equal(t, ActionGraded, res.Status)
	require.NotNil(t, res.Score)
	assert.Equal(t, 0.5, *res.Score)
	assert.True(t, res.Optimized)
	require.NotNil(t, res.Optimization)
	assert.Equal(t, optimizer.StatusRejected, res.Optimization.Status)
	assert.Equal(t, []prompts.Segment{ukSaaS}, h.optimizer.segs)
	assert.Equal(t, []string{hermes.SubjectAgentGraded, hermes.SubjectPromptRejected}, h.pub.subjects)

	require.Len(t, h.ledger.opts, 1)
	assert.Nil(t, h.ledger.opts[0].CandidatePrompt)
	require.Len(t, h.ledger.routing, 1)
	require.NotNil(t, h.ledger.routing[0].OptimizationStatus)
	assert.Equal(t, optimizer.StatusRejected, *h.ledger.routing[0].OptimizationStatus)

	// graded calls never grow the corpus
	cases, err := h.corpus.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, cases)
}

func TestProcess_HumanLossOptimizes(t *testing.T) {
	h := newHarness(t, pricing)
	h.optimizer.res = &optimizer.Result{Status: optimizer.StatusAccepted, MeanScore: 0.8, Cases: 3, Previous: "old", Candidate: "new"}

	res, err := h.proc.Process(context.Background(), Call{Transcript: "...", Role: RoleHumanManager, Outcome: extractor.OutcomeLost, Segment: ukSaaS})
	require.NoError(t, err)
	assert.Equal(t, ActionOptimized, res.Status)
	assert.Nil(t, res.Score)
	require.NotNil(t, res.Optimization)
	assert.Equal(t, optimizer.StatusAccepted, res.Optimization.Status)
	assert.Equal(t, []string{hermes.SubjectPromptPromoted}, h.pub.subjects)
	require.Len(t, h.ledger.opts, 1)
	require.NotNil(t, h.ledger.opts[0].CandidatePrompt)
	assert.Equal(t, "new", *h.ledger.opts[0].CandidatePrompt)
}

func TestProcess_ClassifiesMissingOutcome(t *testing.T) {
	h := newHarness(t, pricing)

	res, err := h.proc.Process(context.Background(), Call{Transcript: "...", Role: RoleHumanManager, Segment: ukSaaS})
	require.NoError(t, err)
	assert.Equal(t, 1, h.classifier.calls)
	assert.Equal(t, extractor.OutcomeLost, res.Outcome)
	assert.True(t, res.OutcomeDefaulted)
	assert.Equal(t, ActionOptimized, res.Status)
	require.Len(t, h.ledger.routing, 1)
	assert.True(t, h.ledger.routing[0].OutcomeDefaulted)
}

func TestProcess_ExtractionFailureAborts(t *testing.T) {
	h := newHarness(t, pricing)
	h.extractor.err = extractor.ErrExtraction

	_, err := h.proc.Process(context.Background(), Call{Transcript: "...", Role: RoleAIAgent, Outcome: extractor.OutcomeLost})
	require.ErrorIs(t, err, extractor.ErrExtraction)
	assert.Empty(t, h.optimizer.segs)
	assert.Empty(t, h.ledger.routing)
	assert.Empty(t, h.pub.subjects)
}

func TestProcess_OptimizerFailureIsReported(t *testing.T) {
	h := newHarness(t, pricing)
	h.optimizer.err = errors.New("gateway down")

	res, err := h.proc.Process(context.Background(), Call{Transcript: "...", Role: RoleHumanManager, Outcome: extractor.OutcomeLost, Segment: ukSaaS})
	require.NoError(t, err)
	require.NotNil(t, res.Optimization)
	assert.Equal(t, optimizer.StatusFailed, res.Optimization.Status)
	assert.Contains(t, res.Optimization.Error, "gateway down")
	require.Len(t, h.ledger.opts, 1)
	assert.Equal(t, optimizer.StatusFailed, h.ledger.opts[0].Status)
	require.NotNil(t, h.ledger.opts[0].Error)
	assert.Empty(t, h.pub.subjects)
}

func TestProcess_LearnFailureReturnsError(t *testing.T) {
	h := newHarness(t, pricing)
	h.embedErr = errors.New("embedding quota")
	ctx := context.Background()

	_, err := h.proc.Process(ctx, Call{Transcript: "...", Role: RoleHumanManager, Outcome: extractor.OutcomeClosed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed objection")

	n, err := h.skills.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, h.ledger.routing)
}

type failingCorpus struct{ err error }

func (f failingCorpus) AddFromLesson(context.Context, string, string) (corpus.TestCase, error) {
	return corpus.TestCase{}, f.err
}

func TestProcess_CorpusFailureStoresNoSkill(t *testing.T) {
	h := newHarness(t, pricing)
	h.proc.corpus = failingCorpus{err: errors.New("connection reset")}
	ctx := context.Background()

	_, err := h.proc.Process(ctx, Call{Transcript: "...", Role: RoleHumanManager, Outcome: extractor.OutcomeClosed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	n, err := h.skills.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, h.ledger.routing)
}

func TestProcess_EmptyTranscript(t *testing.T) {
	h := newHarness(t, pricing)
	_, err := h.proc.Process(context.Background(), Call{Transcript: "  ", Role: RoleAIAgent})
	require.Error(t, err)
}

func TestProcess_DisabledLedger(t *testing.T) {
	h := newHarness(t, pricing)
	var disabled *store.Store
	h.proc.ledger = disabled

	res, err := h.proc.Process(context.Background(), Call{Transcript: "...", Role: RoleAIAgent, Outcome: extractor.OutcomeLost})
	require.NoError(t, err)
	assert.Equal(t, ActionGraded, res.Status)
}

func TestHandleCallCompleted(t *testing.T) {
	h := newHarness(t, pricing)
	payload, err := json.Marshal(hermes.CallCompletedEvent{
		CallID:      "call-7",
		Turns:       []hermes.Turn{{Speaker: "Customer", Text: "Too expensive"}},
		SpeakerRole: "HUMAN_MANAGER",
		Outcome:     "CLOSED_DEAL",
		Country:     "UK",
		Industry:    "saas",
	})
	require.NoError(t, err)

	h.proc.HandleCallCompleted(hermes.SubjectCallCompleted, payload)

	require.Len(t, h.ledger.routing, 1)
	assert.Equal(t, "call-7", h.ledger.routing[0].CallID)
	assert.Equal(t, "UK:saas", h.ledger.routing[0].Segment)
	assert.Equal(t, ActionLearned, h.ledger.routing[0].Action)

	h.proc.HandleCallCompleted(hermes.SubjectCallCompleted, []byte(`{"transcript":""}`))
	assert.Len(t, h.ledger.routing, 1)
}
