package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/refinery/internal/replay"
)

var replayCfg replay.Config

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Process historical calls from JSONL files",
	Long: `Feed recorded calls through the routing pipeline. Each line of a *.jsonl
file is one call.completed payload. Progress is saved to a state file, so an
interrupted run picks up with the next unprocessed file.

Examples:
  refinery replay --dir ./calls --dry-run
  refinery replay --file ./calls/2026-03.jsonl --batch-size 20 --pause 30s`,
	Args: cobra.NoArgs,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayCfg.Dir, "dir", ".", "Directory to scan for *.jsonl files")
	replayCmd.Flags().StringVar(&replayCfg.SingleFile, "file", "", "Replay a single file")
	replayCmd.Flags().StringVar(&replayCfg.StatePath, "state", replay.DefaultStatePath, "State file for resuming")
	replayCmd.Flags().BoolVar(&replayCfg.DryRun, "dry-run", false, "Count calls without processing them")
	replayCmd.Flags().IntVar(&replayCfg.BatchSize, "batch-size", 10, "Calls between state saves")
	replayCmd.Flags().DurationVar(&replayCfg.Pause, "pause", 30*time.Second, "Pause after each batch")
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var proc replay.Processor
	if !replayCfg.DryRun {
		a, err := buildApp(ctx, cfg, wireOptions{llm: true, db: true})
		if err != nil {
			return err
		}
		defer a.close()
		proc = a.processor
	}

	state, err := replay.NewRunner(replayCfg, proc, slog.Default()).Run(ctx)
	if state != nil {
		fmt.Fprint(cmd.OutOrStdout(), replay.FormatSummary(state, replayCfg.DryRun))
	}
	return err
}
