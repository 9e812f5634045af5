package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDiff(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	hello := Message{Role: RoleTrainee, Text: "hello", Timestamp: ts, PhaseID: "intro"}
	reply := Message{Role: RolePersona, Text: "what now?", Timestamp: ts, PhaseID: "intro"}
	jump := BranchRecord{PhaseID: "escalation", BranchTrigger: "angry", From: "intro", Timestamp: ts}

	base := func() *SessionState {
		s := NewSessionState("v1", "intro")
		s.Messages = []Message{hello}
		return s
	}

	tests := []struct {
		name     string
		old      *SessionState
		new      func() *SessionState
		wantDiff *SessionDiff
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new:  base,
			wantDiff: &SessionDiff{
				VignetteID:     "v1",
				CurrentPhaseID: &[]string{"intro"}[0],
				EmotionalState: &EmotionalState{},
				Messages:       []Message{hello},
			},
		},
		{
			name:     "No Changes",
			old:      base(),
			new:      base,
			wantDiff: nil,
		},
		{
			name: "Reply Appended And Objective Met",
			old:  base(),
			new: func() *SessionState {
				s := base()
				s.Messages = append(s.Messages, reply)
				s.CurrentPhase.ObjectivesCompleted = []string{"greeted"}
				return s
			},
			wantDiff: &SessionDiff{
				VignetteID:          "v1",
				ObjectivesCompleted: []string{"greeted"},
				Messages:            []Message{reply},
			},
		},
		{
			name: "Phase Jump",
			old:  base(),
			new: func() *SessionState {
				s := base()
				s.CurrentPhase = PhaseState{CurrentPhaseID: "escalation", ObjectivesCompleted: []string{}}
				s.BranchHistory = []BranchRecord{jump}
				s.EmotionalState = EmotionalState{Value: -1.5, Trend: TrendEscalating, Label: "agitated"}
				return s
			},
			wantDiff: &SessionDiff{
				VignetteID:     "v1",
				CurrentPhaseID: &[]string{"escalation"}[0],
				EmotionalState: &EmotionalState{Value: -1.5, Trend: TrendEscalating, Label: "agitated"},
				Branches:       []BranchRecord{jump},
			},
		},
		{
			name: "Transcript Replaced",
			old: func() *SessionState {
				s := base()
				s.Messages = append(s.Messages, reply)
				return s
			}(),
			new: base,
			wantDiff: &SessionDiff{
				VignetteID: "v1",
				Messages:   []Message{hello},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new())
			if tt.wantDiff == nil {
				if got != nil {
					t.Errorf("Diff() = %+v, want nil", got)
				}
				return
			}

			if got == nil {
				t.Fatalf("Diff() = nil, want %+v", tt.wantDiff)
			}

			if got.VignetteID != tt.wantDiff.VignetteID {
				t.Errorf("Diff().VignetteID = %v, want %v", got.VignetteID, tt.wantDiff.VignetteID)
			}
			if !equalPtr(got.CurrentPhaseID, tt.wantDiff.CurrentPhaseID) {
				t.Errorf("Diff().CurrentPhaseID = %v, want %v", got.CurrentPhaseID, tt.wantDiff.CurrentPhaseID)
			}
			if !equalPtr(got.EmotionalState, tt.wantDiff.EmotionalState) {
				t.Errorf("Diff().EmotionalState = %v, want %v", got.EmotionalState, tt.wantDiff.EmotionalState)
			}
			if !reflect.DeepEqual(got.ObjectivesCompleted, tt.wantDiff.ObjectivesCompleted) {
				t.Errorf("Diff().ObjectivesCompleted = %v, want %v", got.ObjectivesCompleted, tt.wantDiff.ObjectivesCompleted)
			}
			if !reflect.DeepEqual(got.Branches, tt.wantDiff.Branches) {
				t.Errorf("Diff().Branches = %v, want %v", got.Branches, tt.wantDiff.Branches)
			}
			if !reflect.DeepEqual(got.Messages, tt.wantDiff.Messages) {
				t.Errorf("Diff().Messages = %v, want %v", got.Messages, tt.wantDiff.Messages)
			}
		})
	}
}

func TestDiffJSONSerialization(t *testing.T) {
	t.Run("Unchanged Fields Omitted", func(t *testing.T) {
		s1 := NewSessionState("v1", "intro")
		s2 := s1.Clone()
		s2.Ended = true
		diff := Diff(s1, s2)

		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}
		bytes, _ := json.Marshal(diff)
		if strings.Contains(string(bytes), `"messages"`) {
			t.Errorf("JSON should not contain 'messages' when empty, got: %s", string(bytes))
		}
		if !strings.Contains(string(bytes), `"ended":true`) {
			t.Errorf("JSON should contain ended flag, got: %s", string(bytes))
		}
	})
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
