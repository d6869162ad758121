package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/refinery/internal/prompts"
)

var (
	promptCountry  string
	promptIndustry string
	promptLevel    string
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Inspect and edit segment prompts",
}

var promptGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the prompt a segment resolves to",
	Long: `Resolve the prompt for a segment: exact country:industry, then the
industry wildcard, then the base prompt, then the built-in default.

Examples:
  refinery prompt get --country UK --industry saas`,
	Args: cobra.NoArgs,
	RunE: runPromptGet,
}

var promptSetCmd = &cobra.Command{
	Use:   "set <prompt>",
	Short: "Set a prompt at segment, industry or base level",
	Long: `Write a prompt directly, bypassing the evaluation gate.

Examples:
  refinery prompt set --level base "You are a helpful sales agent."
  refinery prompt set --level industry --industry saas "..."
  refinery prompt set --country UK --industry saas "..."`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPromptSet,
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.AddCommand(promptGetCmd, promptSetCmd)
	promptCmd.PersistentFlags().StringVar(&promptCountry, "country", prompts.DefaultCountry, "Prospect country")
	promptCmd.PersistentFlags().StringVar(&promptIndustry, "industry", prompts.DefaultIndustry, "Prospect industry")
	promptSetCmd.Flags().StringVar(&promptLevel, "level", string(prompts.LevelSegment), "segment, industry or base")
}

func runPromptGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx, cfg, wireOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.prompts.Resolve(ctx, prompts.NewSegment(promptCountry, promptIndustry))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func runPromptSet(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	ctx := context.Background()
	a, err := buildApp(ctx, cfg, wireOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	seg := prompts.NewSegment(promptCountry, promptIndustry)
	switch prompts.Level(promptLevel) {
	case prompts.LevelSegment:
		err = a.prompts.SetSegment(ctx, seg, text)
	case prompts.LevelIndustry:
		err = a.prompts.SetIndustry(ctx, seg.Industry, text)
	case prompts.LevelBase:
		err = a.prompts.SetBase(ctx, text)
	default:
		return fmt.Errorf("unknown level %q", promptLevel)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s prompt for %s\n", promptLevel, seg.Key())
	return nil
}
