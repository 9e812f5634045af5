package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventPhaseEnter   EventType = "phase_enter"
	EventPhaseLeave   EventType = "phase_leave"
	EventObjectiveMet EventType = "objective_met"
	EventMoodChange   EventType = "mood_change"
	EventGenerate     EventType = "generate"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       EventType `json:"type"`
	VignetteID string    `json:"vignette_id"`
}

// PhaseEvent represents entry into or exit from a phase.
type PhaseEvent struct {
	EventBase
	PhaseID string `json:"phase_id"`
	Trigger string `json:"trigger,omitempty"`
}

// ObjectiveEvent is emitted once per newly completed objective.
type ObjectiveEvent struct {
	EventBase
	PhaseID     string `json:"phase_id"`
	ObjectiveID string `json:"objective_id"`
}

// MoodEvent is emitted when the emotional state moves.
type MoodEvent struct {
	EventBase
	Previous EmotionalState `json:"previous"`
	Current  EmotionalState `json:"current"`
}

// GenerateEvent reports one model provider call.
type GenerateEvent struct {
	EventBase
	PhaseID  string        `json:"phase_id"`
	Provider string        `json:"provider"`
	Duration time.Duration `json:"duration"`
	IsError  bool          `json:"is_error,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnPhaseEnter   func(context.Context, *PhaseEvent)
	OnPhaseLeave   func(context.Context, *PhaseEvent)
	OnObjectiveMet func(context.Context, *ObjectiveEvent)
	OnMoodChange   func(context.Context, *MoodEvent)
	OnGenerate     func(context.Context, *GenerateEvent)
}

// ComposeHooks fans every event out to each of the given hook sets in order.
func ComposeHooks(sets ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnPhaseEnter: func(ctx context.Context, e *PhaseEvent) {
			for _, h := range sets {
				if h.OnPhaseEnter != nil {
					h.OnPhaseEnter(ctx, e)
				}
			}
		},
		OnPhaseLeave: func(ctx context.Context, e *PhaseEvent) {
			for _, h := range sets {
				if h.OnPhaseLeave != nil {
					h.OnPhaseLeave(ctx, e)
				}
			}
		},
		OnObjectiveMet: func(ctx context.Context, e *ObjectiveEvent) {
			for _, h := range sets {
				if h.OnObjectiveMet != nil {
					h.OnObjectiveMet(ctx, e)
				}
			}
		},
		OnMoodChange: func(ctx context.Context, e *MoodEvent) {
			for _, h := range sets {
				if h.OnMoodChange != nil {
					h.OnMoodChange(ctx, e)
				}
			}
		},
		OnGenerate: func(ctx context.Context, e *GenerateEvent) {
			for _, h := range sets {
				if h.OnGenerate != nil {
					h.OnGenerate(ctx, e)
				}
			}
		},
	}
}
