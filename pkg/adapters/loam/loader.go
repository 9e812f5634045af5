package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/vignette"
)

// Loader adapts the Loam library to the Parley VignetteLoader interface.
type Loader struct {
	Repo *loam.TypedRepository[VignetteDocument]
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[VignetteDocument]) *Loader {
	return &Loader{
		Repo: repo,
	}
}

// Open initializes a read-only, strict Loam repository rooted at dir.
func Open(dir string) (*Loader, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	// Strict mode keeps numbers as json.Number across the Markdown, YAML and JSON adapters.
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[VignetteDocument](repo)), nil
}

// LoadVignette fetches the document, schema-checks and validates it.
// Lookup goes by file name first, then by the id declared inside the document.
func (l *Loader) LoadVignette(ctx context.Context, id string) (*domain.Vignette, error) {
	doc, err := l.Repo.Get(ctx, id)
	if err == nil && l.vignetteID(doc.ID, doc.Data) == id {
		return vignette.FromDocument(doc.Data.toMap(id, doc.Content))
	}

	docs, listErr := l.Repo.List(ctx)
	if listErr != nil {
		return nil, fmt.Errorf("loam list failed: %w", listErr)
	}
	for _, d := range docs {
		if l.vignetteID(d.ID, d.Data) == id {
			return vignette.FromDocument(d.Data.toMap(id, d.Content))
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrVignetteNotFound, id)
}

// ListVignettes lists every document that declares phases.
func (l *Loader) ListVignettes(ctx context.Context) ([]string, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Data.Phases) == 0 {
			continue
		}
		id := l.vignetteID(doc.ID, doc.Data)
		if existingPath, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: ID '%s' is defined in both '%s' and '%s'", id, existingPath, doc.ID)
		}
		seen[id] = doc.ID
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (l *Loader) vignetteID(docID string, meta VignetteDocument) string {
	if meta.ID != "" {
		return meta.ID
	}
	return trimExtension(docID)
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

// Watch emits the document id of every changed vignette file until ctx is done.
func (l *Loader) Watch(ctx context.Context) (<-chan string, error) {
	events, err := l.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				select {
				case ch <- trimExtension(evt.ID):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
