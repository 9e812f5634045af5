package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/muesli/termenv"
)

// Transcript prints a roleplay to a terminal.
type Transcript struct {
	out     *termenv.Output
	persona string
	render  func(string) (string, error)
}

// NewTranscript creates a transcript printer. Colors degrade with the terminal profile.
func NewTranscript(w io.Writer, personaName string, render func(string) (string, error)) *Transcript {
	if personaName == "" {
		personaName = "Persona"
	}
	return &Transcript{
		out:     termenv.NewOutput(w),
		persona: personaName,
		render:  render,
	}
}

// moodColor goes from red (hostile) to green (cooperative).
func moodColor(label string) string {
	switch label {
	case "hostile":
		return "#ef4444"
	case "agitated":
		return "#f97316"
	case "guarded":
		return "#eab308"
	case "receptive":
		return "#84cc16"
	default:
		return "#22c55e"
	}
}

// Persona prints a persona line with its mood badge.
func (t *Transcript) Persona(text string, mood domain.EmotionalState) {
	name := t.out.String(t.persona).Bold()
	badge := t.out.String(fmt.Sprintf("[%s %+.1f]", mood.Label, mood.Value)).
		Foreground(t.out.Color(moodColor(mood.Label)))

	body := text
	if t.render != nil {
		if rendered, err := t.render(text); err == nil {
			body = strings.TrimSpace(rendered)
		}
	}
	fmt.Fprintf(t.out, "%s %s\n%s\n\n", name, badge, body)
}

// Prompt prints the trainee prompt marker.
func (t *Transcript) Prompt() {
	fmt.Fprint(t.out, t.out.String("you> ").Foreground(t.out.Color("#818cf8")))
}

// Transition announces a phase change.
func (t *Transcript) Transition(from, to, trigger string) {
	line := fmt.Sprintf("-- phase %s -> %s (%s) --", from, to, trigger)
	fmt.Fprintln(t.out, t.out.String(line).Faint())
}

// Objectives lists objectives newly met in the current phase.
func (t *Transcript) Objectives(ids []string) {
	for _, id := range ids {
		fmt.Fprintln(t.out, t.out.String("+ objective "+id).Foreground(t.out.Color("#22c55e")))
	}
}

// Notice prints a dim informational line.
func (t *Transcript) Notice(format string, args ...any) {
	fmt.Fprintln(t.out, t.out.String(fmt.Sprintf(format, args...)).Faint())
}
