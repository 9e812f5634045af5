package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// Prompt is everything a backend needs to produce the persona's next line.
type Prompt struct {
	// System carries the persona, phase directive and mood descriptor.
	System string
	// Messages is the bounded transcript window, oldest first.
	Messages []domain.Message
}

// GenerationConfig bounds a single generation.
type GenerationConfig struct {
	MaxTokens int
	// Temperature is sent as is, zero included. Nil leaves the backend default.
	Temperature *float64
}

// ModelProvider generates persona utterances.
// Implementations must be safe for concurrent use.
type ModelProvider interface {
	// Name identifies the backend (e.g. "openai") for logs and errors.
	Name() string

	// Generate returns plain text. Callers bound it with ctx.
	Generate(ctx context.Context, prompt Prompt, cfg GenerationConfig) (string, error)
}
