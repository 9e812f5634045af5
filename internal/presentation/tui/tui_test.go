package tui_test

import (
	"bytes"
	"testing"

	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestTranscript_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	tr := tui.NewTranscript(&buf, "Dana", nil)

	tr.Persona("Where are the results?", domain.EmotionalState{Value: -2, Label: "agitated"})
	tr.Transition("intro", "escalation", "stall")
	tr.Objectives([]string{"introduced"})
	tr.Prompt()

	out := buf.String()
	assert.Contains(t, out, "Dana")
	assert.Contains(t, out, "[agitated -2.0]")
	assert.Contains(t, out, "Where are the results?")
	assert.Contains(t, out, "phase intro -> escalation (stall)")
	assert.Contains(t, out, "+ objective introduced")
	assert.Contains(t, out, "you> ")
}

func TestTranscript_UsesRenderer(t *testing.T) {
	var buf bytes.Buffer
	tr := tui.NewTranscript(&buf, "", func(s string) (string, error) { return "<<" + s + ">>\n", nil })

	tr.Persona("fine", domain.EmotionalState{Label: "guarded"})
	assert.Contains(t, buf.String(), "Persona")
	assert.Contains(t, buf.String(), "<<fine>>")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf)
	assert.Contains(t, buf.String(), "|___/")
}
