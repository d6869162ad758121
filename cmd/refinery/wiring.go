package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/MikeSquared-Agency/refinery/internal/anthropic"
	"github.com/MikeSquared-Agency/refinery/internal/config"
	"github.com/MikeSquared-Agency/refinery/internal/corpus"
	"github.com/MikeSquared-Agency/refinery/internal/extractor"
	"github.com/MikeSquared-Agency/refinery/internal/hermes"
	"github.com/MikeSquared-Agency/refinery/internal/kv"
	"github.com/MikeSquared-Agency/refinery/internal/llm"
	"github.com/MikeSquared-Agency/refinery/internal/metrics"
	"github.com/MikeSquared-Agency/refinery/internal/optimizer"
	"github.com/MikeSquared-Agency/refinery/internal/processor"
	"github.com/MikeSquared-Agency/refinery/internal/prompts"
	"github.com/MikeSquared-Agency/refinery/internal/skills"
	"github.com/MikeSquared-Agency/refinery/internal/slack"
	"github.com/MikeSquared-Agency/refinery/internal/store"
)

// app holds every wired component. Optional pieces (db, hermes, slack) are
// nil when not configured.
type app struct {
	rdb       *redis.Client
	gemini    *llm.GeminiClient
	registry  *prometheus.Registry
	metrics   *metrics.Refinery
	skills    *skills.RedisStore
	prompts   *prompts.RedisStore
	corpus    *corpus.RedisCorpus
	retriever *skills.LinearRetriever
	optimizer *optimizer.Optimizer
	processor *processor.Processor
	db        *store.Store
	hermes    *hermes.Client
	slack     *slack.Poster
}

type wireOptions struct {
	llm  bool // model + embedding gateways
	nats bool
	db   bool
}

func buildApp(ctx context.Context, cfg config.Config, opts wireOptions) (*app, error) {
	logger := slog.Default()
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	rdb, err := kv.Connect(ctx, kv.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}, logger)
	if err != nil {
		return nil, err
	}
	a.rdb = rdb
	a.skills = skills.NewRedisStore(rdb, logger)
	a.prompts = prompts.NewRedisStore(rdb)
	a.corpus = corpus.NewRedisCorpus(rdb, logger)

	if opts.db && cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.db = db
		logger.Info("database connected")
	} else if opts.db {
		logger.Warn("DATABASE_URL not set, running without ledger")
	}

	if opts.nats && cfg.NatsURL != "" {
		hc, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.hermes = hc
		logger.Info("NATS connected", "url", cfg.NatsURL)
	} else if opts.nats {
		logger.Warn("NATS_URL not set, running without event bus")
	}

	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		a.slack = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, logger)
		logger.Info("slack poster ready", "channel", cfg.SlackChannel)
	}

	if !opts.llm {
		return a, nil
	}

	// Embeddings always come from Gemini; generation can be switched.
	gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.EmbeddingModel)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	a.gemini = gemini

	var gen llm.Generator = gemini
	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			a.close()
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
		gen = anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		logger.Info("anthropic client ready", "model", cfg.AnthropicModel)
	case "gemini", "":
		logger.Info("gemini client ready", "model", cfg.GeminiModel)
	default:
		a.close()
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}

	a.retriever = skills.NewLinearRetriever(a.skills, gemini, cfg.SearchTimeout, a.metrics, logger)
	a.optimizer = optimizer.New(gen, a.prompts, a.corpus, optimizer.Options{
		Timeout:     cfg.OptimizeTimeout,
		Concurrency: cfg.EvalConcurrency,
		Metrics:     a.metrics,
	}, logger)

	deps := processor.Deps{
		Classifier: extractor.NewClassifier(gen, cfg.ClassifyTimeout, logger),
		Extractor:  extractor.New(gen, logger),
		Embedder:   gemini,
		Skills:     a.skills,
		Corpus:     a.corpus,
		Optimizer:  a.optimizer,
		Ledger:     a.db,
		Metrics:    a.metrics,
	}
	// Interfaces must stay nil, not hold typed nil pointers.
	if a.hermes != nil {
		deps.Publisher = a.hermes
	}
	if a.slack != nil {
		deps.Notifier = a.slack
	}
	a.processor = processor.New(deps, logger)
	return a, nil
}

func (a *app) close() {
	if a.hermes != nil {
		if err := a.hermes.Drain(); err != nil {
			a.hermes.Close()
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.gemini != nil {
		_ = a.gemini.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}
