package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/vignette"
)

// Loader implements ports.VignetteLoader over vignettes held in memory.
type Loader struct {
	mu        sync.RWMutex
	vignettes map[string]*domain.Vignette
}

// NewLoader parses raw YAML or JSON documents.
func NewLoader(data map[string]string) (*Loader, error) {
	l := &Loader{vignettes: make(map[string]*domain.Vignette, len(data))}
	for name, raw := range data {
		v, err := vignette.Parse([]byte(raw), vignette.FormatYAML)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if err := l.put(v); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// NewFromVignettes creates a loader from domain objects, validating each.
// This improves DX for tests.
func NewFromVignettes(vs ...*domain.Vignette) (*Loader, error) {
	l := &Loader{vignettes: make(map[string]*domain.Vignette, len(vs))}
	for _, v := range vs {
		if err := v.Validate(); err != nil {
			return nil, err
		}
		if err := l.put(v); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Loader) put(v *domain.Vignette) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.vignettes[v.ID]; exists {
		return fmt.Errorf("collision detected: vignette id %q defined twice", v.ID)
	}
	l.vignettes[v.ID] = v
	return nil
}

// LoadVignette returns the shared, read-only vignette.
func (l *Loader) LoadVignette(ctx context.Context, id string) (*domain.Vignette, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.vignettes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrVignetteNotFound, id)
	}
	return v, nil
}

// ListVignettes returns all available vignette ids.
func (l *Loader) ListVignettes(ctx context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]string, 0, len(l.vignettes))
	for k := range l.vignettes {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Deterministic order
	return keys, nil
}
