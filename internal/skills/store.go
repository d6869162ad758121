package skills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 100

// RedisStore keeps each Skill in a hash at skill:<fingerprint>.
type RedisStore struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisStore(rdb *redis.Client, logger *slog.Logger) *RedisStore {
	if rdb == nil {
		panic("skills: redis client cannot be nil")
	}
	return &RedisStore{rdb: rdb, logger: logger}
}

// Upsert writes the skill in a single HSET, replacing any skill with the same
// trigger text.
func (s *RedisStore) Upsert(ctx context.Context, sk Skill) error {
	if sk.Trigger == "" {
		return errors.New("skills: empty trigger")
	}
	if sk.Fingerprint == "" {
		sk.Fingerprint = Fingerprint(sk.Trigger)
	}
	if sk.UpdatedAt.IsZero() {
		sk.UpdatedAt = time.Now().UTC()
	}
	err := s.rdb.HSet(ctx, skillKey(sk.Fingerprint),
		"trigger", sk.Trigger,
		"rebuttal", sk.Rebuttal,
		"vector", packVector(sk.Embedding),
		"updated_at", sk.UpdatedAt.Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("upsert skill: %w", err)
	}
	return nil
}

// Get returns the skill for an objection, or nil when none has been learned.
func (s *RedisStore) Get(ctx context.Context, objection string) (*Skill, error) {
	fp := Fingerprint(objection)
	fields, err := s.rdb.HGetAll(ctx, skillKey(fp)).Result()
	if err != nil {
		return nil, fmt.Errorf("get skill: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	sk, err := decodeSkill(fp, fields)
	if err != nil {
		return nil, fmt.Errorf("decode skill %s: %w", fp, err)
	}
	return sk, nil
}

// GetRebuttal is the grading lookup: the stored rebuttal for an exact
// objection text.
func (s *RedisStore) GetRebuttal(ctx context.Context, objection string) (string, bool, error) {
	val, err := s.rdb.HGet(ctx, skillKey(Fingerprint(objection)), "rebuttal").Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get rebuttal: %w", err)
	}
	return val, true, nil
}

// ScanAll loads every skill. Entries that cannot be decoded are skipped.
func (s *RedisStore) ScanAll(ctx context.Context) ([]Skill, error) {
	var (
		cursor uint64
		out    []Skill
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, keyPrefix+"*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("scan skills: %w", err)
		}
		if len(keys) > 0 {
			batch, err := s.loadBatch(ctx, keys)
			if err != nil {
				return nil, err
			}
			out = append(out, batch...)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

func (s *RedisStore) loadBatch(ctx context.Context, keys []string) ([]Skill, error) {
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load skills: %w", err)
	}

	out := make([]Skill, 0, len(keys))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		fp := keys[i][len(keyPrefix):]
		sk, err := decodeSkill(fp, fields)
		if err != nil {
			s.logger.Debug("skipping malformed skill", "key", keys[i], "error", err)
			continue
		}
		out = append(out, *sk)
	}
	return out, nil
}

// Count returns the number of stored skills.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, keyPrefix+"*", scanBatch).Result()
		if err != nil {
			return 0, fmt.Errorf("count skills: %w", err)
		}
		n += len(keys)
		cursor = next
		if cursor == 0 {
			return n, nil
		}
	}
}

func decodeSkill(fp string, fields map[string]string) (*Skill, error) {
	trigger, ok := fields["trigger"]
	if !ok || trigger == "" {
		return nil, errors.New("missing trigger")
	}
	vec, err := unpackVector([]byte(fields["vector"]))
	if err != nil {
		return nil, err
	}
	sk := &Skill{
		Fingerprint: fp,
		Trigger:     trigger,
		Rebuttal:    fields["rebuttal"],
		Embedding:   vec,
	}
	if ts := fields["updated_at"]; ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			sk.UpdatedAt = t
		}
	}
	return sk, nil
}
