package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/refinery/internal/extractor"
	"github.com/MikeSquared-Agency/refinery/internal/processor"
	"github.com/MikeSquared-Agency/refinery/internal/prompts"
)

var (
	processRole     string
	processOutcome  string
	processCountry  string
	processIndustry string
	processCallID   string
)

var processCmd = &cobra.Command{
	Use:   "process <transcript-file>",
	Short: "Route one transcript through the learning pipeline",
	Long: `Read a plain-text transcript and run it through classification,
extraction and the routing policy, printing the result as JSON.

Pass "-" to read the transcript from stdin.

Examples:
  refinery process call.txt --role HUMAN_MANAGER --outcome CLOSED_DEAL
  refinery process call.txt --role AI_AGENT --country UK --industry saas`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().StringVar(&processRole, "role", "", "Speaker role: HUMAN_MANAGER or AI_AGENT (required)")
	processCmd.Flags().StringVar(&processOutcome, "outcome", "", "CLOSED_DEAL or LOST_DEAL; classified from the transcript when omitted")
	processCmd.Flags().StringVar(&processCountry, "country", prompts.DefaultCountry, "Prospect country")
	processCmd.Flags().StringVar(&processIndustry, "industry", prompts.DefaultIndustry, "Prospect industry")
	processCmd.Flags().StringVar(&processCallID, "call-id", "", "Call identifier for the ledger")
	_ = processCmd.MarkFlagRequired("role")
}

func runProcess(cmd *cobra.Command, args []string) error {
	var (
		raw []byte
		err error
	)
	if args[0] == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, wireOptions{llm: true, db: true})
	if err != nil {
		return err
	}
	defer a.close()

	call := processor.Call{
		ID:         processCallID,
		Transcript: string(raw),
		Role:       processor.ParseRole(processRole),
		Segment:    prompts.NewSegment(processCountry, processIndustry),
	}
	if processOutcome != "" {
		call.Outcome = extractor.ParseOutcome(processOutcome)
	}

	res, err := a.processor.Process(ctx, call)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
