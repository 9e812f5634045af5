package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// Gemini calls the generateContent endpoint.
type Gemini struct {
	apiKey  string
	baseURL string
	model   string
	cfg     Config
}

func newGemini(cfg Config, model string) (ports.ModelProvider, error) {
	if cfg.GeminiKey == "" {
		return nil, errors.New("gemini: no API key")
	}
	base := cfg.GeminiBaseURL
	if base == "" {
		base = defaultGeminiBaseURL
	}
	return &Gemini{apiKey: cfg.GeminiKey, baseURL: strings.TrimRight(base, "/"), model: model, cfg: cfg}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  map[string]any  `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (p *Gemini) Name() string { return "gemini" }

// Generate implements ports.ModelProvider.
func (p *Gemini) Generate(ctx context.Context, prompt ports.Prompt, gen ports.GenerationConfig) (string, error) {
	req := geminiRequest{GenerationConfig: map[string]any{}}
	if prompt.System != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: prompt.System}}}
	}
	for _, m := range prompt.Messages {
		role := "user"
		if m.Role == domain.RolePersona {
			role = "model"
		}
		req.Contents = append(req.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Text}}})
	}
	if gen.MaxTokens > 0 {
		req.GenerationConfig["maxOutputTokens"] = gen.MaxTokens
	}
	if gen.Temperature != nil {
		req.GenerationConfig["temperature"] = *gen.Temperature
	}

	var resp geminiResponse
	url := p.baseURL + "/" + p.model + ":generateContent"
	headers := map[string]string{"x-goog-api-key": p.apiKey}
	if err := postJSON(ctx, p.cfg.client(), url, headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("empty response")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return nonEmpty(b.String())
}
