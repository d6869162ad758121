package skills

import (
	"context"
	"fmt"
	"strings"
)

const noContext = "No relevant context found."

// FormatMatches renders matches as the text block handed back to the voice
// agent.
func FormatMatches(matches []Match) string {
	if len(matches) == 0 {
		return noContext
	}
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = fmt.Sprintf("[%d] (score: %.2f, source: %s)\n%s", i+1, m.Score, m.Source, m.Content)
	}
	return strings.Join(parts, "\n\n")
}

// SearchContext runs a search and formats it for the agent. Errors are folded
// into the returned text so the conversation can carry on.
func SearchContext(ctx context.Context, r Retriever, query string, k int) string {
	matches, err := r.Search(ctx, query, k)
	if err != nil {
		return fmt.Sprintf("Error performing search: %v", err)
	}
	return FormatMatches(matches)
}

// ToolParameter is one argument of a function-calling tool.
type ToolParameter struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
}

// Tool is the function-calling schema exposed to the voice agent.
type Tool struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Parameters  map[string]ToolParameter `json:"parameters"`
	Required    []string                 `json:"required"`
}

// ToolDefinition describes search_context.
func ToolDefinition() Tool {
	return Tool{
		Name:        "search_context",
		Description: "Search the knowledge base for relevant context about the user's query, such as rebuttals to objections or company information.",
		Parameters: map[string]ToolParameter{
			"query": {Type: "string", Description: "The search query to find relevant context"},
			"k":     {Type: "integer", Description: "Number of results to return", Default: DefaultK},
		},
		Required: []string{"query"},
	}
}
