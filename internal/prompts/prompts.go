// Package prompts resolves and stores the system prompt an agent uses for a
// market segment.
package prompts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultPrompt is served when nothing more specific has been configured.
const DefaultPrompt = "You are a helpful sales agent."

const (
	DefaultCountry  = "US"
	DefaultIndustry = "general"

	baseKey = "prompt:base"
)

// Level says which tier of the resolution chain produced a prompt.
type Level string

const (
	LevelSegment  Level = "segment"
	LevelIndustry Level = "industry"
	LevelBase     Level = "base"
	LevelDefault  Level = "default"
)

// Segment identifies a market slice: a country and an industry.
type Segment struct {
	Country  string `json:"country"`
	Industry string `json:"industry"`
}

// NewSegment fills empty parts with defaults. Non-empty parts are kept
// exactly as given: segment keys are case and whitespace sensitive.
func NewSegment(country, industry string) Segment {
	if country == "" {
		country = DefaultCountry
	}
	if industry == "" {
		industry = DefaultIndustry
	}
	return Segment{Country: country, Industry: industry}
}

// ParseSegment reads a "country:industry" key. Missing parts default.
func ParseSegment(s string) Segment {
	country, industry, _ := strings.Cut(s, ":")
	return NewSegment(country, industry)
}

func (s Segment) Key() string {
	return s.Country + ":" + s.Industry
}

func (s Segment) String() string { return s.Key() }

// Resolution is the prompt in effect for a segment and where it came from.
type Resolution struct {
	Prompt string `json:"prompt"`
	Level  Level  `json:"level"`
	Key    string `json:"key,omitempty"`
}

// RedisStore reads and writes prompts in Redis strings.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	if rdb == nil {
		panic("prompts: redis client cannot be nil")
	}
	return &RedisStore{rdb: rdb}
}

func segmentKey(country, industry string) string {
	return "prompt:segment:" + country + ":" + industry
}

// Resolve walks exact segment, then industry wildcard, then base, then the
// built-in default. It always yields a non-empty prompt.
func (s *RedisStore) Resolve(ctx context.Context, seg Segment) (Resolution, error) {
	chain := []struct {
		key   string
		level Level
	}{
		{segmentKey(seg.Country, seg.Industry), LevelSegment},
		{segmentKey("*", seg.Industry), LevelIndustry},
		{baseKey, LevelBase},
	}

	keys := make([]string, len(chain))
	for i, c := range chain {
		keys[i] = c.key
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return Resolution{Prompt: DefaultPrompt, Level: LevelDefault}, fmt.Errorf("resolve prompt: %w", err)
	}
	for i, v := range vals {
		if str, ok := v.(string); ok && str != "" {
			return Resolution{Prompt: str, Level: chain[i].level, Key: chain[i].key}, nil
		}
	}
	return Resolution{Prompt: DefaultPrompt, Level: LevelDefault}, nil
}

// SetSegment overwrites the prompt for one exact segment.
func (s *RedisStore) SetSegment(ctx context.Context, seg Segment, prompt string) error {
	return s.set(ctx, segmentKey(seg.Country, seg.Industry), prompt)
}

// SetIndustry overwrites the wildcard prompt shared by an industry.
func (s *RedisStore) SetIndustry(ctx context.Context, industry, prompt string) error {
	return s.set(ctx, segmentKey("*", industry), prompt)
}

func (s *RedisStore) SetBase(ctx context.Context, prompt string) error {
	return s.set(ctx, baseKey, prompt)
}

func (s *RedisStore) set(ctx context.Context, key, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return errors.New("prompts: empty prompt")
	}
	if err := s.rdb.Set(ctx, key, prompt, 0).Err(); err != nil {
		return fmt.Errorf("set prompt %s: %w", key, err)
	}
	return nil
}
