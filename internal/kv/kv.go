// Package kv connects to the Redis instance that holds skills, prompts and
// the regression corpus.
package kv

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	// MaxWait bounds the PING retries. Zero means 20s.
	MaxWait time.Duration
}

// Connect returns a client once the server answers PING, retrying with
// exponential backoff until ctx ends or MaxWait elapses.
func Connect(ctx context.Context, opts Options, logger *slog.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = opts.MaxWait
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = 20 * time.Second
	}

	attempt := 0
	ping := func() error {
		attempt++
		err := rdb.Ping(ctx).Err()
		if err != nil {
			logger.Warn("redis not ready", "addr", opts.Addr, "attempt", attempt, "error", err)
		}
		return err
	}
	if err := backoff.Retry(ping, backoff.WithContext(b, ctx)); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	logger.Info("redis connected", "addr", opts.Addr, "db", opts.DB)
	return rdb, nil
}
