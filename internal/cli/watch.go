package cli

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/session"
)

// reloadSettle lets an editor finish writing before the vignette is reread.
const reloadSettle = 100 * time.Millisecond

// runWatch replays the conversation against a vignette that is being edited.
// Every change to the library restarts the engine on top of the latest
// snapshot, so authors can tweak directives and triggers mid-conversation.
func (c *Chat) runWatch(ctx *SignalContext, opts Options, lines *linePump) error {
	// Scope the default session by library and vignette to avoid collisions.
	if opts.SessionID == "" && c.Store != nil {
		hash := md5.Sum([]byte(c.Parley.Name + "/" + opts.VignetteID))
		opts.SessionID = fmt.Sprintf("watch-%x", hash[:4])
	}

	sessions := c.sessions()
	if opts.Fresh {
		if err := resetSession(ctx, sessions, opts.SessionID); err != nil {
			return err
		}
	}

	c.Logger.Info("starting watcher", "library", c.Parley.Name, "vignette_id", opts.VignetteID, "session_id", opts.SessionID)
	printSystemMessage(c.Output, "Watching vignette '%s'.", opts.VignetteID)

	var last *domain.SessionState
	for {
		next, again, err := c.runWatchIteration(ctx, opts, sessions, lines, last)
		if err != nil {
			return err
		}
		if !again {
			return nil
		}
		last = next
		c.Logger.Info("watcher restarting")
	}
}

func (c *Chat) runWatchIteration(parent *SignalContext, opts Options, sessions *session.Manager, lines *linePump, last *domain.SessionState) (*domain.SessionState, bool, error) {
	// Cancelled by a reload without cancelling the signal context.
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	watchCh, err := c.Parley.Watch(ctx)
	if err != nil {
		return last, false, err
	}

	eng, loaded, err := hydrateEngine(ctx, c.Parley, sessions, opts, last)
	if err != nil {
		c.Logger.Error("state rehydration failed", "vignette_id", opts.VignetteID, "err", err)
		printSystemMessage(c.Output, "Cannot open '%s': %v", opts.VignetteID, err)
		printSystemMessage(c.Output, "Waiting for changes...")
		select {
		case <-parent.Done():
			return last, false, nil
		case _, ok := <-watchCh:
			return last, ok, nil
		}
	}
	if loaded {
		printSystemMessage(c.Output, "Resuming in phase '%s'...", eng.SessionState().CurrentPhase.CurrentPhaseID)
	}

	track := &tracker{sessions: sessions, sessionID: opts.SessionID, state: eng.SessionState()}
	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()

	done := make(chan error, 1)
	go func() {
		done <- c.runner(lines.reader(runCtx), track).Run(runCtx, eng)
	}()

	select {
	case <-parent.Done():
		runCancel()
		<-done
		c.logCompletion(track.phase(), context.Canceled, parent.Signal())
		c.Logger.Info("stopping watcher", "signal", parent.Signal())
		return track.state, false, nil

	case event, ok := <-watchCh:
		if ok {
			c.Logger.Info("change detected, triggering reload", "event", event)
			fmt.Fprintln(c.Output)
			printSystemMessage(c.Output, "Change detected in '%s'.", event)
			time.Sleep(reloadSettle)
		}
		runCancel()
		<-done
		return track.state, ok, nil

	case err := <-done:
		return track.state, c.waitAfterRun(parent, ctx, track, err, watchCh), nil
	}
}

// waitAfterRun parks an ended conversation until the vignette changes.
// It reports false when the trainee left instead.
func (c *Chat) waitAfterRun(parent *SignalContext, ctx context.Context, track *tracker, err error, watchCh <-chan string) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) && parent.Err() == nil {
			return true
		}
		if parent.Err() != nil {
			c.logCompletion(track.phase(), err, parent.Signal())
			return false
		}
		if !isInterrupted(err) {
			c.Logger.Error("runtime error", "err", err)
		}
	}
	// exit, quit or end of input.
	if err == nil && (track.state == nil || !track.state.Ended) {
		return false
	}

	c.logCompletion(track.phase(), nil, nil)
	printSystemMessage(c.Output, "Waiting for changes...")
	c.Logger.Info("conversation finished, waiting for changes")
	select {
	case <-parent.Done():
		c.logCompletion(track.phase(), context.Canceled, parent.Signal())
		return false
	case <-ctx.Done():
		return false
	case _, ok := <-watchCh:
		return ok
	}
}
