package parley

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/conversation"
	"github.com/aretw0/parley/pkg/domain"
)

// RetryCommand asks the runner to regenerate a reply that failed.
const RetryCommand = "/retry"

// Runner drives a terminal roleplay over an engine using the provided IO.
// This allows for easy testing and integration with different frontends.
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Renderer ContentRenderer
	// OnTurn receives the snapshot after every committed turn, e.g. to persist it.
	OnTurn func(ctx context.Context, state *domain.SessionState) error
}

// ContentRenderer is a function that transforms persona lines before output.
// This allows for markdown rendering without coupling the core package.
type ContentRenderer func(string) (string, error)

// Run loops until the conversation ends, the input is exhausted or the
// trainee types exit.
func (r *Runner) Run(ctx context.Context, engine *conversation.Engine) error {
	if r.Input == nil {
		return errors.New("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return errors.New("output writer must be set (use os.Stdout)")
	}
	lines := bufio.NewReader(r.Input)
	out := tui.NewTranscript(r.Output, engine.Vignette().Persona.Name, r.Renderer)

	state := engine.SessionState()
	if state.Ended {
		out.Notice("This conversation has already ended.")
		return nil
	}
	if len(state.Messages) == 0 {
		res, err := engine.Opening(ctx)
		if err := r.handle(ctx, out, res, err); err != nil {
			return err
		}
	} else if last, _ := state.LastMessage(); last.Role == domain.RolePersona {
		out.Persona(last.Text, state.EmotionalState)
	}

	for {
		out.Prompt()
		text, err := lines.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(text) == "") {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}
		input := strings.TrimSpace(text)

		switch input {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(r.Output, "Bye!")
			return nil
		case RetryCommand:
			res, err := engine.RetryReply(ctx)
			if errors.Is(err, domain.ErrNoPendingReply) {
				out.Notice("Nothing to retry.")
				continue
			}
			if err := r.handle(ctx, out, res, err); err != nil {
				return err
			}
			continue
		}

		from := engine.SessionState().CurrentPhase.CurrentPhaseID
		res, err := engine.ProcessUserMessage(ctx, input)
		if errors.Is(err, domain.ErrEmptyUtterance) {
			continue
		}
		if res != nil {
			out.Objectives(res.ObjectivesMet)
			if res.Transition != nil {
				out.Transition(from, res.Transition.PhaseID, res.Transition.BranchTrigger)
			}
		}
		if err := r.handle(ctx, out, res, err); err != nil {
			return err
		}
		if res.Ended {
			out.Notice("The conversation has reached its end.")
			return nil
		}
	}
}

// handle persists and prints a turn. Generation failures are reported and
// the loop continues so the trainee can retry.
func (r *Runner) handle(ctx context.Context, out *tui.Transcript, res *conversation.TurnResult, err error) error {
	var genErr *domain.GenerationError
	if err != nil && !errors.As(err, &genErr) {
		return err
	}
	if r.OnTurn != nil && res != nil && res.State != nil {
		if perr := r.OnTurn(ctx, res.State); perr != nil {
			return fmt.Errorf("persist turn: %w", perr)
		}
	}
	if genErr != nil {
		out.Notice("The persona did not answer (%v). Type %s to try again.", genErr.Err, RetryCommand)
		return nil
	}
	if res.Response != "" {
		out.Persona(res.Response, res.EmotionalState)
	}
	return nil
}
