package conversation

import (
	"fmt"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// openingCue stands in for the trainee when the persona speaks first.
const openingCue = "(The trainee has just walked in. You speak first.)"

var difficultyNotes = map[domain.Difficulty]string{
	domain.DifficultyBeginner:     "Be forgiving. Respond to reasonable attempts and let the trainee recover from mistakes.",
	domain.DifficultyIntermediate: "React realistically. Soften only when the trainee earns it.",
	domain.DifficultyAdvanced:     "Be demanding. Push back on vague or scripted answers and stay upset unless you hear genuine empathy.",
}

// BuildPrompt assembles the model prompt from the active phase, persona,
// mood and the last window messages of the transcript.
func BuildPrompt(v *domain.Vignette, s *domain.SessionState, window int) ports.Prompt {
	messages := s.Messages
	if window > 0 && len(messages) > window {
		messages = messages[len(messages)-window:]
	}
	if len(messages) == 0 {
		messages = []domain.Message{{Role: domain.RoleTrainee, Text: openingCue}}
	}
	return ports.Prompt{
		System:   SystemPrompt(v, s),
		Messages: append([]domain.Message(nil), messages...),
	}
}

// SystemPrompt renders the persona instructions for the current state.
func SystemPrompt(v *domain.Vignette, s *domain.SessionState) string {
	var b strings.Builder
	p := v.Persona

	fmt.Fprintf(&b, "You are %s", nonBlank(p.Name, "the other person"))
	if p.Role != "" {
		fmt.Fprintf(&b, ", %s", p.Role)
	}
	b.WriteString(", in a roleplay used to train clinicians in difficult conversations.\n")
	b.WriteString("Stay in character at all times. Never mention that this is a simulation or that you are an AI.\n")
	b.WriteString("Reply with one short spoken turn of plain text, without stage directions or narration.\n")

	if p.Background != "" {
		fmt.Fprintf(&b, "\nBackground:\n%s\n", strings.TrimSpace(p.Background))
	}
	if len(p.Traits) > 0 {
		fmt.Fprintf(&b, "\nTraits: %s.\n", strings.Join(p.Traits, ", "))
	}

	fmt.Fprintf(&b, "\nScenario: %s\n", v.Title)
	if v.Description != "" {
		fmt.Fprintf(&b, "%s\n", strings.TrimSpace(v.Description))
	}

	if note, ok := difficultyNotes[s.Difficulty]; ok {
		fmt.Fprintf(&b, "\nDifficulty (%s): %s\n", s.Difficulty, note)
	}

	if phase, ok := v.Phase(s.CurrentPhase.CurrentPhaseID); ok {
		fmt.Fprintf(&b, "\nCurrent stage: %s\n%s\n", phase.Title(), strings.TrimSpace(phase.Directive))
	}

	cfg := v.Emotions.WithDefaults()
	mood := s.EmotionalState
	label := mood.Label
	if label == "" {
		label = domain.MoodLabel(mood.Value, cfg)
	}
	fmt.Fprintf(&b, "\nYour mood right now is %s (%.1f on a scale from %.0f, hostile, to %.0f, cooperative)", label, mood.Value, cfg.Min, cfg.Max)
	switch mood.Trend {
	case domain.TrendSoftening:
		b.WriteString(" and you are starting to calm down")
	case domain.TrendEscalating:
		b.WriteString(" and you are getting more upset")
	}
	b.WriteString(". Let this mood shape your tone and how cooperative you are.\n")

	return b.String()
}

func nonBlank(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
