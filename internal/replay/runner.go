// Package replay feeds historical calls through the routing pipeline.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/refinery/internal/processor"
)

type Config struct {
	Dir        string
	SingleFile string // replay one file only
	StatePath  string
	DryRun     bool
	BatchSize  int           // calls between state saves and pauses; 0 disables pausing
	Pause      time.Duration // sleep after each batch to stay under model rate limits
}

// Processor is satisfied by *processor.Processor.
type Processor interface {
	Process(ctx context.Context, call processor.Call) (*processor.Result, error)
}

type Runner struct {
	cfg    Config
	proc   Processor
	logger *slog.Logger
}

func NewRunner(cfg Config, proc Processor, logger *slog.Logger) *Runner {
	return &Runner{cfg: cfg, proc: proc, logger: logger}
}

// Run replays every unprocessed file. A dry run parses and counts calls but
// neither processes them nor writes the state file.
func (r *Runner) Run(ctx context.Context) (*State, error) {
	state, err := LoadState(r.cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	files, err := r.files()
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}

	var pending []string
	for _, f := range files {
		if !state.IsProcessed(f) {
			pending = append(pending, f)
		}
	}
	state.FilesRemaining = len(pending)
	r.logger.Info("files to replay", "total", len(files), "pending", len(pending), "dry_run", r.cfg.DryRun)

	save := func() {
		if r.cfg.DryRun {
			return
		}
		if err := state.Save(); err != nil {
			r.logger.Error("failed to save replay state", "error", err)
		}
	}

	inBatch := 0
	for _, path := range pending {
		if err := ctx.Err(); err != nil {
			r.logger.Info("replay interrupted, saving state")
			save()
			return state, err
		}

		calls, bad, err := ParseFile(path)
		if err != nil {
			r.logger.Warn("failed to parse file", "path", path, "error", err)
			state.AddError(fmt.Sprintf("parse %s: %v", path, err))
			continue
		}
		for _, e := range bad {
			state.AddError(e.Error())
		}
		r.logger.Info("replaying file", "path", path, "calls", len(calls), "invalid_lines", len(bad))

		failed := 0
		for _, call := range calls {
			if err := ctx.Err(); err != nil {
				save()
				return state, err
			}
			if r.cfg.DryRun {
				state.CallsProcessed++
				continue
			}
			if state.isCompleted(path, call.ID) {
				continue
			}

			res, err := r.proc.Process(ctx, call)
			if err != nil {
				r.logger.Error("call failed", "call_id", call.ID, "error", err)
				state.AddError(fmt.Sprintf("process %s: %v", call.ID, err))
				failed++
				continue
			}
			state.CallsProcessed++
			state.countAction(res.Status)
			state.markCompleted(path, call.ID)

			inBatch++
			if r.cfg.BatchSize > 0 && inBatch >= r.cfg.BatchSize {
				save()
				inBatch = 0
				if r.cfg.Pause > 0 {
					r.logger.Info("batch complete, pausing", "calls_processed", state.CallsProcessed, "pause", r.cfg.Pause)
					select {
					case <-ctx.Done():
						return state, ctx.Err()
					case <-time.After(r.cfg.Pause):
					}
				}
			}
		}

		if failed > 0 {
			r.logger.Warn("file has failed calls, retrying them on the next run", "path", path, "failed", failed)
			save()
			continue
		}
		state.MarkProcessed(path)
		state.FilesRemaining--
		save()
	}

	save()
	r.logger.Info("replay complete",
		"calls_processed", state.CallsProcessed,
		"errors", len(state.Errors),
		"dry_run", r.cfg.DryRun,
	)
	return state, nil
}

func (r *Runner) files() ([]string, error) {
	if r.cfg.SingleFile != "" {
		return []string{r.cfg.SingleFile}, nil
	}
	return DiscoverFiles(r.cfg.Dir)
}

// FormatSummary renders a run's totals for the terminal.
func FormatSummary(s *State, dryRun bool) string {
	var sb strings.Builder
	sb.WriteString("=== Replay Summary ===\n")
	fmt.Fprintf(&sb, "Files processed: %d\n", len(s.FilesProcessed))
	fmt.Fprintf(&sb, "Calls processed: %d\n", s.CallsProcessed)

	actions := make([]string, 0, len(s.Actions))
	for a := range s.Actions {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	for _, a := range actions {
		fmt.Fprintf(&sb, "  %s: %d\n", a, s.Actions[a])
	}
	fmt.Fprintf(&sb, "Errors: %d\n", len(s.Errors))
	if dryRun {
		sb.WriteString("Mode: DRY RUN (nothing processed)\n")
	} else {
		fmt.Fprintf(&sb, "State file: %s\n", s.Path())
	}
	return sb.String()
}
