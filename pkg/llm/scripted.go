package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

var defaultScript = []string{
	"I've been waiting for hours and nobody tells me anything.",
	"Go on. I'm listening.",
	"That's not good enough.",
	"Alright. What happens next?",
}

// Scripted replies with canned lines in a loop. It needs no network and is
// used for offline rehearsal and tests.
type Scripted struct {
	mu    sync.Mutex
	lines []string
	next  int
}

// NewScripted creates a scripted provider. With no lines it uses a generic script.
func NewScripted(lines ...string) *Scripted {
	if len(lines) == 0 {
		lines = defaultScript
	}
	return &Scripted{lines: lines}
}

func newScripted(Config, string) (ports.ModelProvider, error) {
	return NewScripted(), nil
}

func (p *Scripted) Name() string { return "scripted" }

// Generate implements ports.ModelProvider.
func (p *Scripted) Generate(ctx context.Context, _ ports.Prompt, _ ports.GenerationConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	line := p.lines[p.next%len(p.lines)]
	p.next++
	return line, nil
}

// Echo repeats the last trainee message back.
type Echo struct{}

func newEcho(Config, string) (ports.ModelProvider, error) {
	return Echo{}, nil
}

func (Echo) Name() string { return "echo" }

// Generate implements ports.ModelProvider.
func (Echo) Generate(ctx context.Context, prompt ports.Prompt, _ ports.GenerationConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for i := len(prompt.Messages) - 1; i >= 0; i-- {
		if m := prompt.Messages[i]; m.Role == domain.RoleTrainee {
			return "You said: " + strings.TrimSpace(m.Text), nil
		}
	}
	return "...", nil
}
