package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/ports"
)

const defaultElevenLabsBaseURL = "https://api.elevenlabs.io/v1"

// Synthesizer calls the ElevenLabs text-to-speech endpoint.
type Synthesizer struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// SynthesizerOption configures a Synthesizer.
type SynthesizerOption func(*Synthesizer)

// WithSynthesizerBaseURL points the synthesizer at another server.
func WithSynthesizerBaseURL(url string) SynthesizerOption {
	return func(s *Synthesizer) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// NewSynthesizer creates a synthesizer. It requires an API key.
func NewSynthesizer(apiKey string, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{
		apiKey:  apiKey,
		baseURL: defaultElevenLabsBaseURL,
		model:   "eleven_turbo_v2_5",
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

var _ ports.Synthesizer = (*Synthesizer)(nil)

// Synthesize implements ports.Synthesizer and returns MP3 audio.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voiceID string, params ports.VoiceParams) ([]byte, string, error) {
	if s.apiKey == "" {
		return nil, "", errors.New("synthesize: no API key")
	}
	if voiceID == "" {
		return nil, "", errors.New("synthesize: no voice id")
	}

	data, err := json.Marshal(ttsRequest{
		Text:          text,
		ModelID:       s.model,
		VoiceSettings: voiceSettings{Stability: params.Stability, SimilarityBoost: params.SimilarityBoost},
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal: %w", err)
	}

	endpoint := s.baseURL + "/text-to-speech/" + url.PathEscape(voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return nil, "", fmt.Errorf("synthesize %d: %s", resp.StatusCode, string(msg))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read audio: %w", err)
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}
	return audio, mimeType, nil
}
