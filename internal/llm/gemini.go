package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultGeminiModel    = "gemini-2.0-flash"
	defaultEmbeddingModel = "embedding-001"
)

// GeminiClient implements Generator and Embedder on the Gemini API.
type GeminiClient struct {
	client         *genai.Client
	modelID        string
	embeddingModel string
}

// NewGeminiClient creates a Gemini client. Empty model names fall back to
// gemini-2.0-flash and embedding-001.
func NewGeminiClient(ctx context.Context, apiKey, modelID, embeddingModel string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = defaultGeminiModel
	}
	if strings.TrimSpace(embeddingModel) == "" {
		embeddingModel = defaultEmbeddingModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}

	return &GeminiClient{
		client:         client,
		modelID:        modelID,
		embeddingModel: embeddingModel,
	}, nil
}

// Generate sends a single-turn prompt and returns the concatenated text parts.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	model := c.client.GenerativeModel(c.modelID)
	if jsonMode {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("llm: gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("llm: gemini returned no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("llm: gemini returned empty content")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// Embed returns the embedding of text with newlines flattened to spaces.
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.ReplaceAll(text, "\n", " ")

	em := c.client.EmbeddingModel(c.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("llm: gemini embed: %w", err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("llm: gemini returned empty embedding")
	}
	return res.Embedding.Values, nil
}

// Close releases the underlying client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
