package llm

import (
	"context"
	"strings"

	"github.com/aretw0/parley/pkg/ports"
)

const defaultOllamaHost = "http://localhost:11434"

// Ollama calls a local Ollama server's chat endpoint.
type Ollama struct {
	host  string
	model string
	cfg   Config
}

func newOllama(cfg Config, model string) (ports.ModelProvider, error) {
	host := cfg.OllamaHost
	if host == "" {
		host = defaultOllamaHost
	}
	return &Ollama{host: strings.TrimRight(host, "/"), model: model, cfg: cfg}, nil
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message chatMessage `json:"message"`
}

func (p *Ollama) Name() string { return "ollama" }

// Generate implements ports.ModelProvider.
func (p *Ollama) Generate(ctx context.Context, prompt ports.Prompt, gen ports.GenerationConfig) (string, error) {
	req := ollamaChatRequest{Model: p.model, Messages: chatMessages(prompt)}
	if gen.MaxTokens > 0 || gen.Temperature != nil {
		req.Options = map[string]any{}
		if gen.MaxTokens > 0 {
			req.Options["num_predict"] = gen.MaxTokens
		}
		if gen.Temperature != nil {
			req.Options["temperature"] = *gen.Temperature
		}
	}

	var resp ollamaChatResponse
	if err := postJSON(ctx, p.cfg.client(), p.host+"/api/chat", nil, req, &resp); err != nil {
		return "", err
	}
	return nonEmpty(resp.Message.Content)
}
