package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/refinery/internal/api"
	"github.com/MikeSquared-Agency/refinery/internal/hermes"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the call.completed subscriber",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	slog.Info("refinery starting", "port", cfg.Port, "llm_provider", cfg.LLMProvider)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, wireOptions{llm: true, nats: true, db: true})
	if err != nil {
		return err
	}
	defer a.close()

	if a.hermes != nil {
		if err := a.hermes.Subscribe(hermes.SubjectCallCompleted, a.processor.HandleCallCompleted); err != nil {
			return err
		}
	}

	deps := api.Deps{
		Processor: a.processor,
		Prompts:   a.prompts,
		Retriever: a.retriever,
		Skills:    a.skills,
		Corpus:    a.corpus,
		Ledger:    a.db,
		Gatherer:  a.registry,
		InFlight:  a.optimizer.InFlight,
		APIToken:  cfg.APIToken,
	}
	if a.hermes != nil {
		deps.Connected = a.hermes.Connected
	}
	srv := api.NewServer(cfg.Port, deps, slog.Default())
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	if a.hermes != nil {
		if err := a.hermes.Publish(hermes.SubjectRegistered, map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
			"ledger":    a.db.Enabled(),
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	slog.Info("refinery ready", "port", cfg.Port)

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown error", "error", err)
	}
	slog.Info("refinery stopped")
	return nil
}
