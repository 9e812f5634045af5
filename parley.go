package parley

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/aretw0/parley/internal/logging"
	loamAdapter "github.com/aretw0/parley/pkg/adapters/loam"
	"github.com/aretw0/parley/pkg/conversation"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/llm"
	"github.com/aretw0/parley/pkg/ports"
)

// Parley is the high-level entry point of the library. It resolves vignettes
// and model backends and opens conversation engines over them.
type Parley struct {
	loader        ports.VignetteLoader
	registry      *llm.Registry
	llmConfig     llm.Config
	provider      ports.ModelProvider
	historyWindow int
	hooks         domain.LifecycleHooks
	logger        *slog.Logger
	Name          string

	mu        sync.Mutex
	providers map[string]ports.ModelProvider
}

// Option defines a functional option for configuring Parley.
type Option func(*Parley)

// WithLoader injects a custom VignetteLoader, bypassing the default Loam initialization.
func WithLoader(l ports.VignetteLoader) Option {
	return func(p *Parley) {
		p.loader = l
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parley) {
		p.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks on every engine opened.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(p *Parley) {
		p.hooks = hooks
	}
}

// WithLLMConfig sets credentials, endpoints and the default model.
func WithLLMConfig(cfg llm.Config) Option {
	return func(p *Parley) {
		p.llmConfig = cfg
	}
}

// WithRegistry replaces the default provider registry.
func WithRegistry(r *llm.Registry) Option {
	return func(p *Parley) {
		p.registry = r
	}
}

// WithProvider pins one provider for every conversation, ignoring model names.
func WithProvider(provider ports.ModelProvider) Option {
	return func(p *Parley) {
		p.provider = provider
	}
}

// WithHistoryWindow bounds the transcript sent to the model.
func WithHistoryWindow(n int) Option {
	return func(p *Parley) {
		p.historyWindow = n
	}
}

// New initializes Parley.
// By default, it reads vignettes from a Loam repository at the given path.
// If WithLoader is provided, vignetteDir can be empty and Loam is skipped.
func New(vignetteDir string, opts ...Option) (*Parley, error) {
	p := &Parley{providers: make(map[string]ports.ModelProvider)}
	for _, opt := range opts {
		opt(p)
	}

	if p.loader == nil {
		if vignetteDir == "" {
			return nil, errors.New("vignetteDir is required when no custom loader is provided")
		}
		absPath, err := filepath.Abs(vignetteDir)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		loader, err := loamAdapter.Open(absPath)
		if err != nil {
			return nil, err
		}
		p.loader = loader
		p.Name = filepath.Base(absPath)
	} else if vignetteDir != "" {
		p.Name = filepath.Base(vignetteDir)
	}

	if p.logger == nil {
		p.logger = logging.NewNop()
	}
	if p.Name != "" {
		p.logger = p.logger.With("library", p.Name)
	}
	if p.registry == nil {
		p.registry = llm.DefaultRegistry()
	}
	if p.llmConfig.Model == "" {
		p.llmConfig.Model = "scripted"
	}
	return p, nil
}

// OpenRequest selects what conversation to open.
type OpenRequest struct {
	// VignetteID may be empty when PriorState names its vignette.
	VignetteID string
	Difficulty domain.Difficulty
	UserID     string
	// Model overrides the vignette's aiModel and the configured default.
	Model          string
	InitialPhaseID string
	PriorState     *domain.SessionState
}

// Open loads the vignette, resolves the model backend and builds an engine.
// A PriorState resumes the conversation it describes.
func (p *Parley) Open(ctx context.Context, req OpenRequest) (*conversation.Engine, error) {
	id := req.VignetteID
	if id == "" && req.PriorState != nil {
		id = req.PriorState.VignetteID
	}
	if id == "" {
		return nil, fmt.Errorf("%w: no vignette id", domain.ErrVignetteNotFound)
	}

	v, err := p.loader.LoadVignette(ctx, id)
	if err != nil {
		return nil, err
	}

	model := p.modelFor(v, req.Model)
	provider, err := p.Provider(model)
	if err != nil {
		return nil, err
	}

	return conversation.New(conversation.Config{
		Vignette:       v,
		Difficulty:     req.Difficulty,
		UserID:         req.UserID,
		Provider:       provider,
		InitialPhaseID: req.InitialPhaseID,
		PriorState:     req.PriorState,
		HistoryWindow:  p.historyWindow,
		Generation: ports.GenerationConfig{
			MaxTokens:   p.llmConfig.MaxTokens,
			Temperature: p.llmConfig.Temperature,
		},
	},
		conversation.WithLogger(p.logger),
		conversation.WithLifecycleHooks(p.hooks),
	)
}

func (p *Parley) modelFor(v *domain.Vignette, override string) string {
	switch {
	case override != "":
		return override
	case v.AIModel != "":
		return v.AIModel
	default:
		return p.llmConfig.Model
	}
}

// Provider returns the backend for a model name. Providers are built once per
// model and shared across conversations.
func (p *Parley) Provider(model string) (ports.ModelProvider, error) {
	if p.provider != nil {
		return p.provider, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if provider, ok := p.providers[model]; ok {
		return provider, nil
	}
	cfg := p.llmConfig
	cfg.Model = model
	provider, err := p.registry.New(cfg)
	if err != nil {
		return nil, err
	}
	p.providers[model] = provider
	return provider, nil
}

// Vignette returns a vignette by id.
func (p *Parley) Vignette(ctx context.Context, id string) (*domain.Vignette, error) {
	return p.loader.LoadVignette(ctx, id)
}

// Vignettes lists the available vignette ids.
func (p *Parley) Vignettes(ctx context.Context) ([]string, error) {
	return p.loader.ListVignettes(ctx)
}

// Watch returns a channel that signals when the underlying vignettes change.
// Returns error if the loader does not support watching.
func (p *Parley) Watch(ctx context.Context) (<-chan string, error) {
	if w, ok := p.loader.(ports.Watchable); ok {
		return w.Watch(ctx)
	}
	return nil, fmt.Errorf("current loader does not support watching")
}

// Loader returns the underlying VignetteLoader.
func (p *Parley) Loader() ports.VignetteLoader {
	return p.loader
}
