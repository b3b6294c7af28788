package provider

import "context"

// Generator defines the interface for text-generation providers (OpenAI, Gemini, etc.)
type Generator interface {
	// Generate returns the model's completion for prompt.
	// Implementations bound the call with their own timeout.
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a plain function to Generator
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
