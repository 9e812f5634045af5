package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// VignetteLoader defines how the engine retrieves scenario definitions.
// This allows the storage layer (Loam, FS, Memory) to be decoupled.
type VignetteLoader interface {
	// LoadVignette returns the validated vignette with the given id.
	// It returns domain.ErrVignetteNotFound when the id is unknown.
	LoadVignette(ctx context.Context, id string) (*domain.Vignette, error)

	// ListVignettes returns the ids of every available vignette.
	ListVignettes(ctx context.Context) ([]string, error)
}

// Watchable is implemented by loaders that can report vignette changes.
type Watchable interface {
	// Watch emits the id of each changed vignette document until ctx ends.
	Watch(ctx context.Context) (<-chan string, error)
}
