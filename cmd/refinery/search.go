package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/refinery/internal/skills"
)

var searchK int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search learned skills the way the voice agent does",
	Long: `Embed the query, rank every stored skill by cosine similarity and print
the top matches in the format returned to the agent's search_context tool.

Examples:
  refinery search "it's too expensive"
  refinery search "we already use a competitor" -k 5`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchK, "k", "k", skills.DefaultK, "Number of results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx, cfg, wireOptions{llm: true})
	if err != nil {
		return err
	}
	defer a.close()

	out := skills.SearchContext(ctx, a.retriever, strings.Join(args, " "), searchK)
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
