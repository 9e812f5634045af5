package domain

import "slices"

// SessionDiff represents the changes between two session snapshots.
// It is designed to be serialized to JSON for partial updates on the client.
type SessionDiff struct {
	// VignetteID is always present to identify the target.
	VignetteID string `json:"vignetteId"`

	CurrentPhaseID *string `json:"currentPhaseId,omitempty"`

	// ObjectivesCompleted lists objectives newly completed in the current phase.
	ObjectivesCompleted []string `json:"objectivesCompleted,omitempty"`

	EmotionalState *EmotionalState `json:"emotionalState,omitempty"`

	// Branches and Messages hold entries appended since the old snapshot.
	Branches []BranchRecord `json:"branches,omitempty"`
	Messages []Message      `json:"messages,omitempty"`

	Ended *bool `json:"ended,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
// It returns nil when nothing changed.
func Diff(oldState, newState *SessionState) *SessionDiff {
	if newState == nil {
		return nil
	}

	diff := &SessionDiff{VignetteID: newState.VignetteID}

	if oldState == nil || oldState.CurrentPhase.CurrentPhaseID != newState.CurrentPhase.CurrentPhaseID {
		id := newState.CurrentPhase.CurrentPhaseID
		diff.CurrentPhaseID = &id
	}

	diff.ObjectivesCompleted = diffObjectives(oldState, newState)

	if oldState == nil || oldState.EmotionalState != newState.EmotionalState {
		mood := newState.EmotionalState
		diff.EmotionalState = &mood
	}

	if oldState == nil {
		diff.Branches = appended(nil, newState.BranchHistory)
		diff.Messages = appended(nil, newState.Messages)
		if newState.Ended {
			diff.Ended = &newState.Ended
		}
	} else {
		diff.Branches = appended(oldState.BranchHistory, newState.BranchHistory)
		diff.Messages = appended(oldState.Messages, newState.Messages)
		if oldState.Ended != newState.Ended {
			diff.Ended = &newState.Ended
		}
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffObjectives(old, new *SessionState) []string {
	var before []string
	if old != nil && old.CurrentPhase.CurrentPhaseID == new.CurrentPhase.CurrentPhaseID {
		before = old.CurrentPhase.ObjectivesCompleted
	}
	var added []string
	for _, id := range new.CurrentPhase.ObjectivesCompleted {
		if !slices.Contains(before, id) {
			added = append(added, id)
		}
	}
	return added
}

// appended assumes append-only slices and returns the new tail.
// A shrunk or rewritten slice (e.g. a replaced transcript) is sent whole.
func appended[T any](old, new []T) []T {
	if len(new) == 0 {
		return nil
	}
	if len(new) < len(old) {
		return new
	}
	if len(new) == len(old) {
		return nil
	}
	return new[len(old):]
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SessionDiff) IsEmpty() bool {
	return d.CurrentPhaseID == nil &&
		len(d.ObjectivesCompleted) == 0 &&
		d.EmotionalState == nil &&
		len(d.Branches) == 0 &&
		len(d.Messages) == 0 &&
		d.Ended == nil
}
