package llm

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// DefaultTimeout bounds a single backend call when Config.Timeout is unset.
const DefaultTimeout = 60 * time.Second

// Config carries the credentials and endpoints for every backend.
// Only the fields of the backend selected by Model are read.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature *float64

	OpenAIKey     string
	OpenAIBaseURL string
	GeminiKey     string
	GeminiBaseURL string
	OllamaHost    string

	HTTPClient *http.Client
	Timeout    time.Duration
}

func (c Config) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Factory builds a provider for a model name. The model has its routing
// prefix removed when the prefix ends with a colon.
type Factory func(cfg Config, model string) (ports.ModelProvider, error)

type entry struct {
	prefix  string
	factory Factory
}

// Registry routes model names to backend factories by prefix.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry returns a registry with every built-in backend.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("openai:", newOpenAI)
	r.Register("gpt-", newOpenAI)
	r.Register("o1", newOpenAI)
	r.Register("o3", newOpenAI)
	r.Register("gemini:", newGemini)
	r.Register("gemini-", newGemini)
	r.Register("ollama:", newOllama)
	r.Register("scripted", newScripted)
	r.Register("echo", newEcho)
	return r
}

// Register adds a factory for a model prefix.
// If the prefix already exists, it is overwritten.
func (r *Registry) Register(prefix string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.prefix == prefix {
			r.entries[i].factory = f
			return
		}
	}
	r.entries = append(r.entries, entry{prefix: prefix, factory: f})
}

// New builds the provider for cfg.Model using the longest matching prefix.
func (r *Registry) New(cfg Config) (ports.ModelProvider, error) {
	model := strings.TrimSpace(cfg.Model)

	r.mu.RLock()
	var best entry
	for _, e := range r.entries {
		if strings.HasPrefix(model, e.prefix) && len(e.prefix) > len(best.prefix) {
			best = e
		}
	}
	r.mu.RUnlock()

	if best.factory == nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownModel, model)
	}
	if strings.HasSuffix(best.prefix, ":") {
		model = strings.TrimPrefix(model, best.prefix)
	}
	p, err := best.factory(cfg, model)
	if err != nil {
		return nil, err
	}
	return Traced(p, model), nil
}

// New builds a provider from the default registry.
func New(cfg Config) (ports.ModelProvider, error) {
	return DefaultRegistry().New(cfg)
}
