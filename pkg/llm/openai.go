package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/aretw0/parley/pkg/ports"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI calls the chat completions endpoint.
// Any server speaking the same protocol works through OpenAIBaseURL.
type OpenAI struct {
	apiKey  string
	baseURL string
	model   string
	cfg     Config
}

func newOpenAI(cfg Config, model string) (ports.ModelProvider, error) {
	if cfg.OpenAIKey == "" {
		return nil, errors.New("openai: no API key")
	}
	base := cfg.OpenAIBaseURL
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	return &OpenAI{apiKey: cfg.OpenAIKey, baseURL: strings.TrimRight(base, "/"), model: model, cfg: cfg}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *OpenAI) Name() string { return "openai" }

// Generate implements ports.ModelProvider.
func (p *OpenAI) Generate(ctx context.Context, prompt ports.Prompt, gen ports.GenerationConfig) (string, error) {
	req := openAIChatRequest{
		Model:       p.model,
		Messages:    chatMessages(prompt),
		MaxTokens:   gen.MaxTokens,
		Temperature: gen.Temperature,
	}

	var resp openAIChatResponse
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	if err := postJSON(ctx, p.cfg.client(), p.baseURL+"/chat/completions", headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response")
	}
	return nonEmpty(resp.Choices[0].Message.Content)
}

// chatMessages renders the prompt in the system/user/assistant convention
// shared by OpenAI and Ollama.
func chatMessages(prompt ports.Prompt) []chatMessage {
	out := make([]chatMessage, 0, len(prompt.Messages)+1)
	if prompt.System != "" {
		out = append(out, chatMessage{Role: "system", Content: prompt.System})
	}
	for _, m := range prompt.Messages {
		out = append(out, chatMessage{Role: string(m.Role), Content: m.Text})
	}
	return out
}

func nonEmpty(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty response")
	}
	return text, nil
}
