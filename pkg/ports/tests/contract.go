package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// VignetteLoaderContractTest is a reusable test suite that verifies if an adapter complies with ports.VignetteLoader.
// expected maps each vignette id to the title the loader must report.
func VignetteLoaderContractTest(t *testing.T, loader ports.VignetteLoader, expected map[string]string) {
	t.Helper()
	ctx := context.Background()

	t.Run("LoadVignette_Success", func(t *testing.T) {
		for id, title := range expected {
			v, err := loader.LoadVignette(ctx, id)
			if err != nil {
				t.Fatalf("unexpected error loading vignette %s: %v", id, err)
			}
			if v.ID != id {
				t.Errorf("id mismatch: got %q, want %q", v.ID, id)
			}
			if v.Title != title {
				t.Errorf("title mismatch for %s: got %q, want %q", id, v.Title, title)
			}
			if err := v.Validate(); err != nil {
				t.Errorf("loader returned an invalid vignette %s: %v", id, err)
			}
		}
	})

	t.Run("LoadVignette_NotFound", func(t *testing.T) {
		_, err := loader.LoadVignette(ctx, "non-existent-vignette")
		if !errors.Is(err, domain.ErrVignetteNotFound) {
			t.Errorf("expected ErrVignetteNotFound, got %v", err)
		}
	})

	t.Run("ListVignettes", func(t *testing.T) {
		ids, err := loader.ListVignettes(ctx)
		if err != nil {
			t.Fatalf("unexpected error listing vignettes: %v", err)
		}

		if len(ids) != len(expected) {
			t.Errorf("expected %d vignettes, got %d", len(expected), len(ids))
		}

		lookup := make(map[string]bool)
		for _, id := range ids {
			lookup[id] = true
		}
		for id := range expected {
			if !lookup[id] {
				t.Errorf("expected vignette %s not found in list", id)
			}
		}
	})
}
