package http

import (
	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/conversation"
	"github.com/aretw0/parley/pkg/domain"
)

// OpenParams selects the conversation a request acts on. A SessionState
// resumes it; otherwise a fresh one starts on VignetteID.
type OpenParams struct {
	VignetteID     string               `json:"vignetteId,omitempty"`
	Difficulty     domain.Difficulty    `json:"difficulty,omitempty"`
	UserID         string               `json:"userId,omitempty"`
	Model          string               `json:"model,omitempty"`
	InitialPhaseID string               `json:"initialPhaseId,omitempty"`
	SessionState   *domain.SessionState `json:"sessionState,omitempty"`
}

func (p OpenParams) request() parley.OpenRequest {
	return parley.OpenRequest{
		VignetteID:     p.VignetteID,
		Difficulty:     p.Difficulty,
		UserID:         p.UserID,
		Model:          p.Model,
		InitialPhaseID: p.InitialPhaseID,
		PriorState:     p.SessionState,
	}
}

// TurnRequest is the body of POST /turn.
type TurnRequest struct {
	OpenParams
	Message string `json:"message"`
}

// VoiceResponse is a turn answered with synthesized audio.
type VoiceResponse struct {
	*conversation.TurnResult
	Transcript string `json:"transcript"`
	// Audio is base64 encoded.
	Audio          string `json:"audio,omitempty"`
	AudioMimeType  string `json:"audioMimeType,omitempty"`
	SynthesisError string `json:"synthesisError,omitempty"`
}

// VignetteSummary is one entry of GET /vignettes.
type VignetteSummary struct {
	ID               string              `json:"id"`
	Title            string              `json:"title"`
	Description      string              `json:"description,omitempty"`
	DifficultyLevels []domain.Difficulty `json:"difficultyLevels"`
	Persona          string              `json:"persona"`
	Phases           int                 `json:"phases"`
	Voice            bool                `json:"voice"`
}

func summarize(v *domain.Vignette) VignetteSummary {
	return VignetteSummary{
		ID:               v.ID,
		Title:            v.Title,
		Description:      v.Description,
		DifficultyLevels: v.Levels(),
		Persona:          v.Persona.Name,
		Phases:           len(v.Phases),
		Voice:            v.VoiceConfig != nil,
	}
}

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	VignetteID     string            `json:"vignetteId"`
	Difficulty     domain.Difficulty `json:"difficulty,omitempty"`
	UserID         string            `json:"userId,omitempty"`
	Model          string            `json:"model,omitempty"`
	InitialPhaseID string            `json:"initialPhaseId,omitempty"`
	// Opening asks the persona to speak first.
	Opening bool `json:"opening,omitempty"`
}

// SessionResponse describes a stored session.
type SessionResponse struct {
	SessionID    string               `json:"sessionId"`
	Response     string               `json:"response,omitempty"`
	OpeningError string               `json:"openingError,omitempty"`
	SessionState *domain.SessionState `json:"sessionState"`
}

// MessageRequest is the body of POST /sessions/{id}/messages.
type MessageRequest struct {
	Message string `json:"message"`
}
