// Package llm defines the model gateway contracts used by the learning engine
// and a Gemini-backed implementation of them.
package llm

import "context"

// Generator turns a prompt into text. When jsonMode is set the caller expects
// a single JSON object back, but must still validate what it receives.
type Generator interface {
	Generate(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, jsonMode bool) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	return f(ctx, prompt, jsonMode)
}

// EmbedderFunc adapts a plain function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}
