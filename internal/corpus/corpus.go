// Package corpus holds the regression set candidate prompts are scored
// against: an append-only Redis list of customer inputs and the approach a
// good answer should take.
package corpus

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

const listKey = "test_cases:list"

//go:embed seeds.yaml
var seedsYAML []byte

// TestCase is one regression example.
type TestCase struct {
	Input  string `json:"input" yaml:"input"`
	Target string `json:"target" yaml:"target"`
}

// DefaultSeeds returns the built-in starter cases.
func DefaultSeeds() ([]TestCase, error) {
	var seeds []TestCase
	if err := yaml.Unmarshal(seedsYAML, &seeds); err != nil {
		return nil, fmt.Errorf("parse seed cases: %w", err)
	}
	return seeds, nil
}

type RedisCorpus struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisCorpus(rdb *redis.Client, logger *slog.Logger) *RedisCorpus {
	if rdb == nil {
		panic("corpus: redis client cannot be nil")
	}
	return &RedisCorpus{rdb: rdb, logger: logger}
}

// Append adds a case to the end of the list. Duplicates are kept.
func (c *RedisCorpus) Append(ctx context.Context, tc TestCase) error {
	if strings.TrimSpace(tc.Input) == "" {
		return errors.New("corpus: empty input")
	}
	raw, err := json.Marshal(tc)
	if err != nil {
		return fmt.Errorf("marshal test case: %w", err)
	}
	if err := c.rdb.RPush(ctx, listKey, raw).Err(); err != nil {
		return fmt.Errorf("append test case: %w", err)
	}
	return nil
}

// AddFromLesson turns a learned objection/rebuttal pair into a test case.
func (c *RedisCorpus) AddFromLesson(ctx context.Context, objection, rebuttal string) (TestCase, error) {
	tc := TestCase{Input: objection, Target: rebuttal}
	if err := c.Append(ctx, tc); err != nil {
		return TestCase{}, err
	}
	c.logger.Info("added test case from lesson", "input", truncate(objection, 50))
	return tc, nil
}

// All returns every case in insertion order. Unreadable entries are skipped.
func (c *RedisCorpus) All(ctx context.Context) ([]TestCase, error) {
	raws, err := c.rdb.LRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list test cases: %w", err)
	}
	out := make([]TestCase, 0, len(raws))
	for _, raw := range raws {
		var tc TestCase
		if err := json.Unmarshal([]byte(raw), &tc); err != nil {
			c.logger.Warn("skipping malformed test case", "error", err)
			continue
		}
		out = append(out, tc)
	}
	return out, nil
}

// EnsureSeeded writes the default cases when the list does not exist yet and
// returns the full corpus. Concurrent callers seed at most once.
func (c *RedisCorpus) EnsureSeeded(ctx context.Context) ([]TestCase, error) {
	seeds, err := DefaultSeeds()
	if err != nil {
		return nil, err
	}
	payloads := make([]any, len(seeds))
	for i, s := range seeds {
		b, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("marshal seed: %w", err)
		}
		payloads[i] = b
	}

	seeded := false
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, listKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, listKey, payloads...)
			return nil
		})
		if err == nil {
			seeded = true
		}
		return err
	}, listKey)
	switch {
	case errors.Is(err, redis.TxFailedErr):
		// another writer touched the list first; it exists now
	case err != nil:
		return nil, fmt.Errorf("seed test cases: %w", err)
	}
	if seeded {
		c.logger.Info("initialized default test cases", "count", len(seeds))
	}
	return c.All(ctx)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
