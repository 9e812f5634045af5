package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/conversation"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// modelKey records a per-session model override in the state metadata.
const modelKey = "model"

// CreateSession handles the POST /sessions request.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body CreateSessionRequest
	if !decode(w, r, &body, "CreateSession") {
		return
	}
	eng, err := s.Simulator.Open(r.Context(), parley.OpenRequest{
		VignetteID:     body.VignetteID,
		Difficulty:     body.Difficulty,
		UserID:         body.UserID,
		Model:          body.Model,
		InitialPhaseID: body.InitialPhaseID,
	})
	if err != nil {
		writeError(w, "CreateSession", err, nil)
		return
	}

	resp := SessionResponse{}
	state := eng.SessionState()
	if body.Opening {
		res, err := eng.Opening(r.Context())
		if err != nil {
			resp.OpeningError = err.Error()
			slog.Warn("CreateSession: Opening failed", "error", err)
		} else {
			resp.Response = res.Response
			state = res.State
		}
	}
	if body.Model != "" {
		if state.Metadata == nil {
			state.Metadata = map[string]string{}
		}
		state.Metadata[modelKey] = body.Model
	}

	id, err := s.Sessions.Create(r.Context(), state)
	if err != nil {
		writeError(w, "CreateSession", err, nil)
		return
	}
	resp.SessionID = id
	resp.SessionState = state
	s.broadcast(id, nil, state)
	writeJSON(w, http.StatusCreated, resp)
}

// ListSessions handles the GET /sessions request.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Sessions.List(r.Context())
	if err != nil {
		writeError(w, "ListSessions", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

// GetSession handles the GET /sessions/{id} request.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := s.Sessions.Load(r.Context(), id)
	if err != nil {
		writeError(w, "GetSession", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{SessionID: id, SessionState: state})
}

// DeleteSession handles the DELETE /sessions/{id} request.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "DeleteSession", err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendMessage handles the POST /sessions/{id}/messages request. Overlapping
// turns on the same session are serialized by the session manager.
func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request) {
	var body MessageRequest
	if !decode(w, r, &body, "SendMessage") {
		return
	}
	text, err := s.clean(body.Message)
	if err != nil {
		writeError(w, "SendMessage", err, nil)
		return
	}
	s.update(w, r, "SendMessage", func(ctx context.Context, eng *conversation.Engine) (*conversation.TurnResult, error) {
		return eng.ProcessUserMessage(ctx, text)
	})
}

// RetrySession handles the POST /sessions/{id}/retry request.
func (s *Server) RetrySession(w http.ResponseWriter, r *http.Request) {
	s.update(w, r, "RetrySession", func(ctx context.Context, eng *conversation.Engine) (*conversation.TurnResult, error) {
		return eng.RetryReply(ctx)
	})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request, op string, turn func(context.Context, *conversation.Engine) (*conversation.TurnResult, error)) {
	id := chi.URLParam(r, "id")
	var (
		before *domain.SessionState
		res    *conversation.TurnResult
	)
	_, err := s.Sessions.Update(r.Context(), id, func(ctx context.Context, state *domain.SessionState) (*domain.SessionState, error) {
		before = state
		eng, err := s.Simulator.Open(ctx, parley.OpenRequest{PriorState: state, Model: state.Metadata[modelKey]})
		if err != nil {
			return nil, err
		}
		var turnErr error
		res, turnErr = turn(ctx, eng)
		if res == nil {
			return nil, turnErr
		}
		return res.State, turnErr
	})
	if res != nil && res.State != nil {
		s.broadcast(id, before, res.State)
	}
	s.respond(w, op, res, err)
}

func (s *Server) broadcast(sessionID string, before, after *domain.SessionState) {
	diff := domain.Diff(before, after)
	if diff == nil {
		slog.Debug("No diff calculated", "session_id", sessionID)
		return
	}
	bytes, err := json.Marshal(diff)
	if err != nil {
		slog.Error("Diff encode failed", "error", err, "session_id", sessionID)
		return
	}
	s.Streams.Broadcast(sessionID, string(bytes))
}
