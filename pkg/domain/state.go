package domain

import (
	"maps"
	"slices"
	"time"
)

// Role identifies who spoke a message.
type Role string

const (
	RoleTrainee Role = "user"
	RolePersona Role = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	// PhaseID is the phase that was active when the message was spoken.
	PhaseID string `json:"phaseId,omitempty"`
}

// PhaseState tracks progress inside one phase.
type PhaseState struct {
	CurrentPhaseID      string   `json:"currentPhaseId"`
	ObjectivesCompleted []string `json:"objectivesCompleted"`
	MessageCount        int      `json:"messageCount"`
}

// HasObjective reports whether id has been completed in this phase.
func (p PhaseState) HasObjective(id string) bool {
	return slices.Contains(p.ObjectivesCompleted, id)
}

// SessionState is the complete, serializable snapshot of one conversation.
// It is plain data: callers own it and round-trip it between turns.
type SessionState struct {
	VignetteID string     `json:"vignetteId"`
	UserID     string     `json:"userId,omitempty"`
	Difficulty Difficulty `json:"difficulty,omitempty"`

	CurrentPhase PhaseState `json:"currentPhase"`
	// CompletedPhases keeps the objective record of phases already left, for scoring.
	CompletedPhases []PhaseState   `json:"completedPhases,omitempty"`
	BranchHistory   []BranchRecord `json:"branchHistory"`
	EmotionalState  EmotionalState `json:"emotionalState"`
	Messages        []Message      `json:"messages"`
	Ended           bool           `json:"ended"`

	// Metadata is carried untouched by the engine (tenant labels, storage envelopes).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewSessionState creates an empty conversation positioned at phaseID.
func NewSessionState(vignetteID, phaseID string) *SessionState {
	return &SessionState{
		VignetteID: vignetteID,
		CurrentPhase: PhaseState{
			CurrentPhaseID:      phaseID,
			ObjectivesCompleted: []string{},
		},
		BranchHistory: []BranchRecord{},
		Messages:      []Message{},
	}
}

// Clone returns a deep copy that shares no slices or maps with s.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	c := *s
	c.CurrentPhase = s.CurrentPhase.clone()
	if s.CompletedPhases != nil {
		c.CompletedPhases = make([]PhaseState, len(s.CompletedPhases))
		for i, p := range s.CompletedPhases {
			c.CompletedPhases[i] = p.clone()
		}
	}
	c.BranchHistory = slices.Clone(s.BranchHistory)
	c.Messages = slices.Clone(s.Messages)
	c.Metadata = maps.Clone(s.Metadata)
	return &c
}

func (p PhaseState) clone() PhaseState {
	p.ObjectivesCompleted = slices.Clone(p.ObjectivesCompleted)
	if p.ObjectivesCompleted == nil {
		p.ObjectivesCompleted = []string{}
	}
	return p
}

// LastMessage returns the final transcript entry, if any.
func (s *SessionState) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// VisitedPhases lists every phase the conversation has been in, in order.
func (s *SessionState) VisitedPhases() []string {
	visited := make([]string, 0, len(s.CompletedPhases)+1)
	for _, p := range s.CompletedPhases {
		visited = append(visited, p.CurrentPhaseID)
	}
	return append(visited, s.CurrentPhase.CurrentPhaseID)
}
