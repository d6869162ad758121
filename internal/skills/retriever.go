package skills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/refinery/internal/llm"
	"github.com/MikeSquared-Agency/refinery/internal/metrics"
)

const (
	DefaultK = 3
	MaxK     = 20

	sourceLearnedSkill = "learned_skill"
)

var tracer = otel.Tracer("refinery/skills")

// Match is one retrieved skill rendered for the agent.
type Match struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Source  string  `json:"source"`
	Key     string  `json:"key"`
}

// Retriever finds the skills most similar to a query.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]Match, error)
}

// Scanner is the read side of the skill store used by retrieval.
type Scanner interface {
	ScanAll(ctx context.Context) ([]Skill, error)
}

// LinearRetriever scores every stored skill against the query. Exact, O(n).
type LinearRetriever struct {
	store    Scanner
	embedder llm.Embedder
	timeout  time.Duration
	metrics  *metrics.Refinery
	logger   *slog.Logger
}

func NewLinearRetriever(store Scanner, embedder llm.Embedder, timeout time.Duration, m *metrics.Refinery, logger *slog.Logger) *LinearRetriever {
	return &LinearRetriever{store: store, embedder: embedder, timeout: timeout, metrics: m, logger: logger}
}

// Search returns up to k matches, best first. Store trouble and deadline
// expiry degrade to an empty result; only a failed query embedding is an
// error.
func (r *LinearRetriever) Search(ctx context.Context, query string, k int) ([]Match, error) {
	ctx, span := tracer.Start(ctx, "skills.search")
	defer span.End()
	start := time.Now()

	if k <= 0 {
		k = DefaultK
	}
	if k > MaxK {
		k = MaxK
	}
	span.SetAttributes(attribute.Int("k", k))

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	qv, err := r.embedder.Embed(ctx, query)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		r.logger.Warn("skill search timed out, returning no context", "timeout", r.timeout)
		r.metrics.ObserveSearch("empty", time.Since(start).Seconds())
		return []Match{}, nil
	}
	if err != nil {
		span.RecordError(err)
		r.metrics.ObserveSearch("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("embed query: %w", err)
	}

	all, err := r.store.ScanAll(ctx)
	if err != nil {
		r.logger.Warn("skill scan failed, returning no context", "error", err)
		r.metrics.ObserveSearch("empty", time.Since(start).Seconds())
		return []Match{}, nil
	}

	matches, err := score(ctx, qv, all)
	if err != nil {
		r.logger.Warn("skill scoring interrupted, returning no context", "error", err)
		r.metrics.ObserveSearch("empty", time.Since(start).Seconds())
		return []Match{}, nil
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}

	outcome := "hit"
	if len(matches) == 0 {
		outcome = "empty"
	}
	r.metrics.ObserveSearch(outcome, time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("skills.scanned", len(all)), attribute.Int("skills.matched", len(matches)))
	return matches, nil
}

// score computes similarities, splitting large stores into scan-sized chunks
// scored concurrently.
func score(ctx context.Context, qv []float32, all []Skill) ([]Match, error) {
	chunks := (len(all) + scanBatch - 1) / scanBatch
	parts := make([][]Match, chunks)

	g, gctx := errgroup.WithContext(ctx)
	for c := 0; c < chunks; c++ {
		lo := c * scanBatch
		hi := min(lo+scanBatch, len(all))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var out []Match
			for _, sk := range all[lo:hi] {
				sim, err := Cosine(qv, sk.Embedding)
				if err != nil {
					continue
				}
				out = append(out, Match{
					Content: fmt.Sprintf("Objection: %s\nRebuttal: %s", sk.Trigger, sk.Rebuttal),
					Score:   sim,
					Source:  sourceLearnedSkill,
					Key:     skillKey(sk.Fingerprint),
				})
			}
			parts[c] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(all))
	for _, p := range parts {
		matches = append(matches, p...)
	}
	return matches, nil
}
