package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/ports"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// Transcriber calls the OpenAI audio transcription endpoint.
type Transcriber struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// TranscriberOption configures a Transcriber.
type TranscriberOption func(*Transcriber)

// WithTranscriberBaseURL points the transcriber at another server.
func WithTranscriberBaseURL(url string) TranscriberOption {
	return func(t *Transcriber) {
		t.baseURL = strings.TrimRight(url, "/")
	}
}

// WithTranscriberModel overrides the speech model.
func WithTranscriberModel(model string) TranscriberOption {
	return func(t *Transcriber) {
		t.model = model
	}
}

// NewTranscriber creates a transcriber. It requires an API key.
func NewTranscriber(apiKey string, opts ...TranscriberOption) *Transcriber {
	t := &Transcriber{
		apiKey:  apiKey,
		baseURL: defaultOpenAIBaseURL,
		model:   "whisper-1",
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type transcriptionResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
}

var _ ports.Transcriber = (*Transcriber)(nil)

// Transcribe implements ports.Transcriber. Confidence is derived from the
// mean segment log probability when the server reports one.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (ports.Transcript, error) {
	if t.apiKey == "" {
		return ports.Transcript{}, errors.New("transcribe: no API key")
	}
	if len(audio) == 0 {
		return ports.Transcript{}, errors.New("transcribe: empty audio")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "audio"+extensionFor(mimeType))
	if err != nil {
		return ports.Transcript{}, fmt.Errorf("multipart: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return ports.Transcript{}, fmt.Errorf("multipart: %w", err)
	}
	_ = w.WriteField("model", t.model)
	_ = w.WriteField("response_format", "verbose_json")
	if err := w.Close(); err != nil {
		return ports.Transcript{}, fmt.Errorf("multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return ports.Transcript{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return ports.Transcript{}, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return ports.Transcript{}, fmt.Errorf("transcribe %d: %s", resp.StatusCode, string(msg))
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ports.Transcript{}, fmt.Errorf("decode: %w", err)
	}

	tr := ports.Transcript{Text: strings.TrimSpace(out.Text)}
	if len(out.Segments) > 0 {
		var sum float64
		for _, s := range out.Segments {
			sum += s.AvgLogprob
		}
		c := math.Exp(sum / float64(len(out.Segments)))
		tr.Confidence = &c
	}
	return tr, nil
}

func extensionFor(mimeType string) string {
	switch strings.TrimSpace(strings.Split(mimeType, ";")[0]) {
	case "audio/webm":
		return ".webm"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/mp4", "audio/m4a":
		return ".m4a"
	}
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		return exts[0]
	}
	return ".webm"
}
