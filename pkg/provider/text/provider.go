// Package text defines the interface for the studio's text generation
// backend. Prompt expansion, scene descriptions and chat-style drafting all
// go through it.
package text

import "context"

// Request describes one text generation call.
type Request struct {
	// Prompt is the user prompt to complete.
	Prompt string

	// SystemPrompt optionally sets system-level instructions.
	SystemPrompt string

	// Temperature controls sampling randomness. Zero means provider default.
	Temperature float64

	// MaxTokens caps the response length. Zero means provider default.
	MaxTokens int
}

// Provider generates text from a prompt. Implementations must be safe for
// concurrent use.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}
