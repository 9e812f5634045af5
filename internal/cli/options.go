package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/ports"
)

// Options contains all the configuration for the chat command.
type Options struct {
	VignetteID string
	Difficulty string
	Model      string
	UserID     string
	SessionID  string
	Fresh      bool
	Watch      bool
	Debug      bool
}

// Chat is an interactive terminal roleplay against a vignette library.
type Chat struct {
	Parley *parley.Parley
	// Store persists the transcript under Options.SessionID. Nil keeps the
	// conversation in memory only.
	Store    ports.StateStore
	Input    io.Reader
	Output   io.Writer
	Renderer parley.ContentRenderer
	Logger   *slog.Logger
	// Banner is printed once before the first persona line.
	Banner func(io.Writer)
}

// Execute handles the chat command, dispatching to session or watch mode.
func (c *Chat) Execute(ctx context.Context, opts Options) error {
	if c.Parley == nil {
		return errors.New("chat needs a parley library")
	}
	if c.Input == nil || c.Output == nil {
		return errors.New("chat needs input and output")
	}
	if c.Logger == nil {
		c.Logger = logging.NewNop()
	}
	if c.Banner != nil {
		c.Banner(c.Output)
	}

	vignetteID, err := resolveVignette(ctx, c.Parley, opts.VignetteID)
	if err != nil {
		return err
	}
	opts.VignetteID = vignetteID

	sigCtx := NewSignalContext(ctx)
	defer sigCtx.Cancel()

	lines := newLinePump(c.Input)

	if opts.Watch {
		return c.runWatch(sigCtx, opts, lines)
	}
	return c.runSession(sigCtx, opts, lines)
}
