package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/refinery/internal/config"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "refinery",
	Short: "Learning engine for the sales voice agent",
	Long: `Refinery turns completed sales calls into better agent behaviour.

Human wins become reusable objection-handling skills, AI calls are graded
against those skills, and lost deals drive gated per-segment prompt updates.

Run without a subcommand to start the service.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		setupLogging(cfg.LogLevel)
	},
	RunE: runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("refinery failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
