package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/aretw0/parley/internal/presentation/graph"
	"github.com/aretw0/parley/internal/sanitize"
	"github.com/aretw0/parley/pkg/conversation"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// clean sanitizes an utterance, counting rejections.
func (s *Server) clean(text string) (string, error) {
	clean, err := sanitize.Utterance(text, s.MaxUtteranceBytes)
	if err != nil {
		s.reject(sanitize.Reason(err))
		return "", err
	}
	return clean, nil
}

func (s *Server) reject(reason string) {
	if s.Metrics != nil {
		s.Metrics.RejectTurn(reason)
	}
}

// respond writes a turn result or its error. A generation failure still
// returns the committed state so the client can retry.
func (s *Server) respond(w http.ResponseWriter, op string, res *conversation.TurnResult, err error) {
	if err != nil {
		if errors.Is(err, domain.ErrEmptyUtterance) {
			s.reject("empty")
		}
		var state *domain.SessionState
		if res != nil {
			state = res.State
		}
		writeError(w, op, err, state)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Turn handles the POST /turn request. The conversation travels in the
// request and the response; nothing is stored server-side.
func (s *Server) Turn(w http.ResponseWriter, r *http.Request) {
	var body TurnRequest
	if !decode(w, r, &body, "Turn") {
		return
	}
	text, err := s.clean(body.Message)
	if err != nil {
		writeError(w, "Turn", err, nil)
		return
	}
	eng, err := s.Simulator.Open(r.Context(), body.request())
	if err != nil {
		writeError(w, "Turn", err, nil)
		return
	}
	res, err := eng.ProcessUserMessage(r.Context(), text)
	s.respond(w, "Turn", res, err)
}

// Retry handles the POST /turn/retry request for a state whose last
// trainee message went unanswered.
func (s *Server) Retry(w http.ResponseWriter, r *http.Request) {
	var body OpenParams
	if !decode(w, r, &body, "Retry") {
		return
	}
	if body.SessionState == nil {
		writeError(w, "Retry", domain.ErrNoPendingReply, nil)
		return
	}
	eng, err := s.Simulator.Open(r.Context(), body.request())
	if err != nil {
		writeError(w, "Retry", err, nil)
		return
	}
	res, err := eng.RetryReply(r.Context())
	s.respond(w, "Retry", res, err)
}

// Opening handles the POST /opening request: the persona speaks first.
func (s *Server) Opening(w http.ResponseWriter, r *http.Request) {
	var body OpenParams
	if !decode(w, r, &body, "Opening") {
		return
	}
	eng, err := s.Simulator.Open(r.Context(), body.request())
	if err != nil {
		writeError(w, "Opening", err, nil)
		return
	}
	res, err := eng.Opening(r.Context())
	s.respond(w, "Opening", res, err)
}

// Voice handles the POST /voice request: multipart audio in, synthesized
// reply out. Fields: audio (file), sessionState (JSON) or vignetteId,
// difficulty, userId and model.
func (s *Server) Voice(w http.ResponseWriter, r *http.Request) {
	if s.Transcriber == nil {
		http.Error(w, "Voice turns are disabled", http.StatusNotImplemented)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.MaxAudioBytes+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, "Invalid multipart body", http.StatusBadRequest)
		slog.Warn("Voice: Invalid multipart body", "error", err)
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "Missing audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, s.MaxAudioBytes+1))
	if err != nil {
		http.Error(w, "Failed to read audio", http.StatusBadRequest)
		return
	}
	if int64(len(audio)) > s.MaxAudioBytes {
		s.reject("too_large")
		http.Error(w, "Audio exceeds maximum allowed size", http.StatusRequestEntityTooLarge)
		return
	}

	params := OpenParams{
		VignetteID: r.FormValue("vignetteId"),
		Difficulty: domain.Difficulty(r.FormValue("difficulty")),
		UserID:     r.FormValue("userId"),
		Model:      r.FormValue("model"),
	}
	if raw := r.FormValue("sessionState"); raw != "" {
		params.SessionState = &domain.SessionState{}
		if err := json.Unmarshal([]byte(raw), params.SessionState); err != nil {
			http.Error(w, "Invalid sessionState", http.StatusBadRequest)
			slog.Warn("Voice: Invalid sessionState", "error", err)
			return
		}
	}

	transcript, err := s.Transcriber.Transcribe(r.Context(), audio, header.Header.Get("Content-Type"))
	if err != nil {
		http.Error(w, "Transcription failed", http.StatusBadGateway)
		slog.Error("Voice: Transcription failed", "error", err)
		return
	}
	text, err := s.clean(transcript.Text)
	if err != nil {
		writeError(w, "Voice", err, nil)
		return
	}

	eng, err := s.Simulator.Open(r.Context(), params.request())
	if err != nil {
		writeError(w, "Voice", err, nil)
		return
	}
	res, err := eng.ProcessUserMessage(r.Context(), text)
	if err != nil {
		s.respond(w, "Voice", res, err)
		return
	}

	resp := VoiceResponse{TurnResult: res, Transcript: text}
	if res.Response != "" && s.Synthesizer != nil {
		if vc := eng.Vignette().VoiceConfig; vc != nil {
			data, mime, err := s.Synthesizer.Synthesize(r.Context(), res.Response, vc.VoiceID, ports.VoiceParams{
				Stability:       vc.Stability,
				SimilarityBoost: vc.SimilarityBoost,
			})
			if err != nil {
				slog.Warn("Voice: Synthesis failed, answering with text only", "error", err)
				resp.SynthesisError = err.Error()
			} else {
				resp.Audio = base64.StdEncoding.EncodeToString(data)
				resp.AudioMimeType = mime
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListVignettes handles the GET /vignettes request.
func (s *Server) ListVignettes(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Simulator.Vignettes(r.Context())
	if err != nil {
		writeError(w, "ListVignettes", err, nil)
		return
	}
	out := make([]VignetteSummary, 0, len(ids))
	for _, id := range ids {
		v, err := s.Simulator.Vignette(r.Context(), id)
		if err != nil {
			writeError(w, "ListVignettes", err, nil)
			return
		}
		out = append(out, summarize(v))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetVignette handles the GET /vignettes/{id} request.
func (s *Server) GetVignette(w http.ResponseWriter, r *http.Request) {
	v, err := s.Simulator.Vignette(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "GetVignette", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetGraph handles the GET /vignettes/{id}/graph request. The optional
// session query parameter overlays a stored session's progress.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	v, err := s.Simulator.Vignette(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "GetGraph", err, nil)
		return
	}

	var overlay *graph.Overlay
	if id := r.URL.Query().Get("session"); id != "" && s.Sessions != nil {
		state, err := s.Sessions.Load(r.Context(), id)
		if err != nil {
			writeError(w, "GetGraph", err, nil)
			return
		}
		overlay = graph.OverlayFrom(state)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, graph.GenerateMermaid(v, overlay))
}
