package speech_test

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aretw0/parley/pkg/adapters/speech"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "audio.webm", hdr.Filename)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "RIFF", string(data))

		w.Write([]byte(`{"text":" I'm so sorry. ","segments":[{"avg_logprob":-0.1},{"avg_logprob":-0.3}]}`))
	}))
	defer srv.Close()

	tr := speech.NewTranscriber("key", speech.WithTranscriberBaseURL(srv.URL))
	out, err := tr.Transcribe(context.Background(), []byte("RIFF"), "audio/webm;codecs=opus")
	require.NoError(t, err)
	assert.Equal(t, "I'm so sorry.", out.Text)
	require.NotNil(t, out.Confidence)
	assert.InDelta(t, math.Exp(-0.2), *out.Confidence, 1e-9)
}

func TestTranscriber_Errors(t *testing.T) {
	_, err := speech.NewTranscriber("").Transcribe(context.Background(), []byte("x"), "audio/wav")
	assert.Error(t, err)

	_, err = speech.NewTranscriber("key").Transcribe(context.Background(), nil, "audio/wav")
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad audio", http.StatusBadRequest)
	}))
	defer srv.Close()
	_, err = speech.NewTranscriber("key", speech.WithTranscriberBaseURL(srv.URL)).
		Transcribe(context.Background(), []byte("x"), "audio/wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestSynthesizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "xi", r.Header.Get("xi-api-key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Where is the doctor?", body["text"])
		settings := body["voice_settings"].(map[string]any)
		assert.Equal(t, 0.4, settings["stability"])
		assert.Equal(t, 0.8, settings["similarity_boost"])

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3"))
	}))
	defer srv.Close()

	s := speech.NewSynthesizer("xi", speech.WithSynthesizerBaseURL(srv.URL))
	audio, mimeType, err := s.Synthesize(context.Background(), "Where is the doctor?", "voice-1",
		ports.VoiceParams{Stability: 0.4, SimilarityBoost: 0.8})
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3"), audio)
	assert.Equal(t, "audio/mpeg", mimeType)
}

func TestSynthesizer_RequiresVoice(t *testing.T) {
	_, _, err := speech.NewSynthesizer("xi").Synthesize(context.Background(), "hi", "", ports.VoiceParams{})
	assert.Error(t, err)
}
