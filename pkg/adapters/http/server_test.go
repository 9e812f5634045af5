package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/telemetry"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/conversation"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/dsl"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyProvider struct {
	fail atomic.Bool
	n    atomic.Int32
}

func (p *flakyProvider) Name() string { return "flaky" }

func (p *flakyProvider) Generate(ctx context.Context, _ ports.Prompt, _ ports.GenerationConfig) (string, error) {
	if p.fail.Load() {
		return "", errors.New("model overloaded")
	}
	return fmt.Sprintf("reply %d", p.n.Add(1)), nil
}

type fakeTranscriber struct{ text string }

func (f fakeTranscriber) Transcribe(_ context.Context, audio []byte, mimeType string) (ports.Transcript, error) {
	if len(audio) == 0 {
		return ports.Transcript{}, errors.New("no audio")
	}
	return ports.Transcript{Text: f.text}, nil
}

type fakeSynthesizer struct{ voiceID string }

func (f *fakeSynthesizer) Synthesize(_ context.Context, text, voiceID string, _ ports.VoiceParams) ([]byte, string, error) {
	f.voiceID = voiceID
	return []byte("mp3:" + text), "audio/mpeg", nil
}

func newSimulator(t *testing.T, provider ports.ModelProvider) *parley.Parley {
	t.Helper()
	b := dsl.New("clinic").
		Title("Clinic").
		Persona("Robin", "patient", "").
		Voice(domain.VoiceConfig{VoiceID: "voice-1", Stability: 0.5, SimilarityBoost: 0.7})
	b.Phase("intro").
		Directive("You are tense.").
		Objective("named", "Trainee introduces themselves", "my name is").
		When("named").Requires("named").To("plan")
	b.Phase("plan").
		Directive("You listen.").
		Objective("plan", "Trainee gives a plan", "plan")

	loader, err := b.Loader()
	require.NoError(t, err)
	p, err := parley.New("", parley.WithLoader(loader), parley.WithProvider(provider))
	require.NoError(t, err)
	return p
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeTurn(t *testing.T, w *httptest.ResponseRecorder) conversation.TurnResult {
	t.Helper()
	var res conversation.TurnResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func TestServer_HealthAndInfo(t *testing.T) {
	h := NewHandler(newSimulator(t, &flakyProvider{}))

	w := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = doJSON(t, h, http.MethodGet, "/info", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"app":"parley-http"`)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_Vignettes(t *testing.T) {
	h := NewHandler(newSimulator(t, &flakyProvider{}))

	w := doJSON(t, h, http.MethodGet, "/vignettes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []VignetteSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "clinic", list[0].ID)
	assert.Equal(t, 2, list[0].Phases)
	assert.True(t, list[0].Voice)
	assert.Len(t, list[0].DifficultyLevels, 3)

	w = doJSON(t, h, http.MethodGet, "/vignettes/clinic", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"phaseId":"intro"`)

	w = doJSON(t, h, http.MethodGet, "/vignettes/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodGet, "/vignettes/clinic/graph", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "graph TD"))
}

func TestServer_StatelessTurns(t *testing.T) {
	h := NewHandler(newSimulator(t, &flakyProvider{}))

	w := doJSON(t, h, http.MethodPost, "/turn", TurnRequest{OpenParams: OpenParams{VignetteID: "clinic"}, Message: "hello"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeTurn(t, w)
	assert.Equal(t, "intro", res.CurrentPhase)
	assert.Equal(t, "reply 1", res.Response)
	require.NotNil(t, res.State)

	w = doJSON(t, h, http.MethodPost, "/turn", TurnRequest{OpenParams: OpenParams{SessionState: res.State}, Message: "my name is Sam"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res = decodeTurn(t, w)
	assert.Equal(t, "plan", res.CurrentPhase)
	require.NotNil(t, res.Transition)
	assert.Equal(t, "named", res.Transition.BranchTrigger)
	assert.Equal(t, []string{"named"}, res.ObjectivesMet)

	w = doJSON(t, h, http.MethodPost, "/turn", TurnRequest{OpenParams: OpenParams{SessionState: res.State}, Message: "here is the plan"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res = decodeTurn(t, w)
	assert.True(t, res.Ended)
	assert.Empty(t, res.Response)

	w = doJSON(t, h, http.MethodPost, "/turn", TurnRequest{OpenParams: OpenParams{SessionState: res.State}, Message: "anything else?"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestServer_TurnRejections(t *testing.T) {
	metrics := telemetry.NewMetrics()
	h := NewHandler(newSimulator(t, &flakyProvider{}), WithMetrics(metrics), WithLimits(16, 0))

	req := httptest.NewRequest(http.MethodPost, "/turn", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/turn", TurnRequest{OpenParams: OpenParams{VignetteID: "clinic"}, Message: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/turn", TurnRequest{OpenParams: OpenParams{VignetteID: "clinic"}, Message: strings.Repeat("a", 17)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = doJSON(t, h, http.MethodPost, "/turn", TurnRequest{OpenParams: OpenParams{VignetteID: "nope"}, Message: "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodPost, "/turn", TurnRequest{OpenParams: OpenParams{VignetteID: "clinic", Difficulty: "expert"}, Message: "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `parley_turns_rejected_total{reason="too_large"} 1`)
	assert.Contains(t, w.Body.String(), `parley_turns_rejected_total{reason="empty"} 1`)
}

func TestServer_GenerationFailureIsRetryable(t *testing.T) {
	provider := &flakyProvider{}
	provider.fail.Store(true)
	h := NewHandler(newSimulator(t, provider))

	w := doJSON(t, h, http.MethodPost, "/turn", TurnRequest{OpenParams: OpenParams{VignetteID: "clinic"}, Message: "my name is Sam"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var failure ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failure))
	assert.True(t, failure.Retryable)
	assert.Contains(t, failure.Error, "model overloaded")
	require.NotNil(t, failure.SessionState)
	assert.Equal(t, "plan", failure.SessionState.CurrentPhase.CurrentPhaseID, "turn logic is committed")
	last, ok := failure.SessionState.LastMessage()
	require.True(t, ok)
	assert.Equal(t, domain.RoleTrainee, last.Role)

	provider.fail.Store(false)
	w = doJSON(t, h, http.MethodPost, "/turn/retry", OpenParams{SessionState: failure.SessionState})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeTurn(t, w)
	assert.Equal(t, "reply 1", res.Response)
	assert.Equal(t, "plan", res.CurrentPhase)

	w = doJSON(t, h, http.MethodPost, "/turn/retry", OpenParams{SessionState: res.State})
	assert.Equal(t, http.StatusBadRequest, w.Code, "nothing left to answer")
}

func TestServer_Opening(t *testing.T) {
	h := NewHandler(newSimulator(t, &flakyProvider{}))

	w := doJSON(t, h, http.MethodPost, "/opening", OpenParams{VignetteID: "clinic"})
	require.Equal(t, http.StatusOK, w.Code)
	res := decodeTurn(t, w)
	assert.Equal(t, "reply 1", res.Response)
	require.Len(t, res.State.Messages, 1)
	assert.Equal(t, domain.RolePersona, res.State.Messages[0].Role)

	w = doJSON(t, h, http.MethodPost, "/opening", OpenParams{SessionState: res.State})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func voiceRequest(t *testing.T, fields map[string]string, audio []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("audio", "turn.webm")
	require.NoError(t, err)
	_, err = fw.Write(audio)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/voice", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestServer_Voice(t *testing.T) {
	syn := &fakeSynthesizer{}
	h := NewHandler(newSimulator(t, &flakyProvider{}),
		WithSpeech(fakeTranscriber{text: "Hi, my name is Sam."}, syn))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, voiceRequest(t, map[string]string{"vignetteId": "clinic"}, []byte("audio-bytes")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp VoiceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Hi, my name is Sam.", resp.Transcript)
	assert.Equal(t, "plan", resp.CurrentPhase)
	assert.Equal(t, "reply 1", resp.Response)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("mp3:reply 1")), resp.Audio)
	assert.Equal(t, "audio/mpeg", resp.AudioMimeType)
	assert.Equal(t, "voice-1", syn.voiceID)

	state, err := json.Marshal(resp.State)
	require.NoError(t, err)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, voiceRequest(t, map[string]string{"sessionState": string(state)}, []byte("more")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "reply 2", resp.Response)
}

func TestServer_VoiceRejections(t *testing.T) {
	h := NewHandler(newSimulator(t, &flakyProvider{}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, voiceRequest(t, map[string]string{"vignetteId": "clinic"}, []byte("x")))
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	h = NewHandler(newSimulator(t, &flakyProvider{}), WithSpeech(fakeTranscriber{text: "  "}, nil))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, voiceRequest(t, map[string]string{"vignetteId": "clinic"}, []byte("x")))
	assert.Equal(t, http.StatusBadRequest, w.Code, "silence is an empty utterance")

	h = NewHandler(newSimulator(t, &flakyProvider{}), WithSpeech(fakeTranscriber{text: "hi"}, nil), WithLimits(0, 4))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, voiceRequest(t, map[string]string{"vignetteId": "clinic"}, []byte("too long")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestServer_StoredSessions(t *testing.T) {
	srv := NewServer(newSimulator(t, &flakyProvider{}), WithSessions(session.NewManager(memory.NewStore())))
	h := srv.Routes()

	w := doJSON(t, h, http.MethodPost, "/sessions", CreateSessionRequest{VignetteID: "clinic", UserID: "u1", Opening: true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, "reply 1", created.Response)

	ch, cancel := srv.Streams.Subscribe(created.SessionID)
	defer cancel()

	path := "/sessions/" + created.SessionID
	w = doJSON(t, h, http.MethodPost, path+"/messages", MessageRequest{Message: "my name is Sam"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeTurn(t, w)
	assert.Equal(t, "plan", res.CurrentPhase)
	assert.Equal(t, "reply 2", res.Response)

	select {
	case msg := <-ch:
		assert.Contains(t, msg, `"currentPhaseId":"plan"`)
		assert.Contains(t, msg, "my name is Sam")
	default:
		t.Fatal("expected a diff to be broadcast")
	}

	w = doJSON(t, h, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "plan", got.SessionState.CurrentPhase.CurrentPhaseID)
	assert.Equal(t, "u1", got.SessionState.UserID)
	assert.Len(t, got.SessionState.Messages, 3)

	w = doJSON(t, h, http.MethodGet, "/vignettes/clinic/graph?session="+created.SessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "class plan current")

	w = doJSON(t, h, http.MethodGet, "/sessions", nil)
	assert.Contains(t, w.Body.String(), created.SessionID)

	w = doJSON(t, h, http.MethodPost, path+"/retry", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, h, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, h, http.MethodPost, path+"/messages", MessageRequest{Message: "hello?"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_SessionsDisabled(t *testing.T) {
	h := NewHandler(newSimulator(t, &flakyProvider{}))
	w := doJSON(t, h, http.MethodGet, "/sessions", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestWanted(t *testing.T) {
	phase := "plan"
	diff := domain.SessionDiff{VignetteID: "clinic", CurrentPhaseID: &phase}
	raw, err := json.Marshal(diff)
	require.NoError(t, err)

	assert.True(t, wanted(string(raw), []string{"mood", " phase"}))
	assert.False(t, wanted(string(raw), []string{"messages", "ended"}))
	assert.True(t, wanted("not json", []string{"phase"}), "unparseable payloads pass through")
}

func TestStreamManager_DropsForSlowClients(t *testing.T) {
	sm := NewStreamManager()
	ch, cancel := sm.Subscribe("s1")
	for i := 0; i < 15; i++ {
		sm.Broadcast("s1", fmt.Sprint(i))
	}
	assert.Len(t, ch, 10)
	sm.Broadcast("other", "ignored")
	cancel()
	_, open := <-ch
	for open {
		_, open = <-ch
	}
	assert.Empty(t, sm.subscribers)
}
