package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/session"
)

// runSession plays a single conversation until it ends or the trainee leaves.
func (c *Chat) runSession(ctx *SignalContext, opts Options, lines *linePump) error {
	sessions := c.sessions()
	if opts.Fresh {
		if err := resetSession(ctx, sessions, opts.SessionID); err != nil {
			return err
		}
	}

	eng, loaded, err := hydrateEngine(ctx, c.Parley, sessions, opts, nil)
	if err != nil {
		return fmt.Errorf("failed to init session: %w", err)
	}
	c.logSessionStatus(opts.SessionID, eng.SessionState(), loaded)

	track := &tracker{sessions: sessions, sessionID: opts.SessionID, state: eng.SessionState()}
	runErr := c.runner(lines.reader(ctx), track).Run(ctx, eng)

	// A signal can land while the runner is between reads.
	if ctx.Err() != nil && runErr == nil {
		runErr = ctx.Err()
	}
	c.logCompletion(track.phase(), runErr, ctx.Signal())
	return handleExecutionError(runErr)
}

func (c *Chat) sessions() *session.Manager {
	if c.Store == nil {
		return nil
	}
	return session.NewManager(c.Store, session.WithLogger(c.Logger))
}

func (c *Chat) runner(in io.Reader, track *tracker) *parley.Runner {
	return &parley.Runner{
		Input:    in,
		Output:   c.Output,
		Renderer: c.Renderer,
		OnTurn:   track.onTurn,
	}
}

// tracker keeps the latest committed snapshot of a run and persists it
// when a session id is set.
type tracker struct {
	sessions  *session.Manager
	sessionID string
	state     *domain.SessionState
}

func (t *tracker) onTurn(ctx context.Context, state *domain.SessionState) error {
	t.state = state
	if t.sessions == nil || t.sessionID == "" {
		return nil
	}
	// The turn is already committed in memory; keep it even if the run is being torn down.
	return t.sessions.Save(context.WithoutCancel(ctx), t.sessionID, state)
}

func (t *tracker) phase() string {
	if t.state == nil {
		return ""
	}
	return t.state.CurrentPhase.CurrentPhaseID
}
