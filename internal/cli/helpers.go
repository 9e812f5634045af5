package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

// errInterrupted is returned by line readers whose context was cancelled.
var errInterrupted = errors.New("interrupted")

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	start  sync.Once
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sc.start.Do(func() {
		signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sc.sigCh:
				sc.mu.Lock()
				sc.sigVal = sig
				sc.mu.Unlock()
				sc.Cancel()
			case <-sc.Context.Done():
			}
			sc.stop.Do(func() {
				signal.Stop(sc.sigCh)
			})
		}()
	})

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// Logger configures the chat logger. Debug output goes to stderr so it does
// not interleave with the transcript on stdout.
func Logger(debug bool) *slog.Logger {
	if debug {
		return logging.New(slog.LevelDebug)
	}
	return logging.NewNop()
}

// DebugHooks logs every engine event at debug level.
func DebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnPhaseEnter: func(ctx context.Context, e *domain.PhaseEvent) {
			logger.Debug("enter phase", "phase_id", e.PhaseID, "trigger", e.Trigger)
		},
		OnPhaseLeave: func(ctx context.Context, e *domain.PhaseEvent) {
			logger.Debug("leave phase", "phase_id", e.PhaseID, "trigger", e.Trigger)
		},
		OnObjectiveMet: func(ctx context.Context, e *domain.ObjectiveEvent) {
			logger.Debug("objective met", "phase_id", e.PhaseID, "objective_id", e.ObjectiveID)
		},
		OnMoodChange: func(ctx context.Context, e *domain.MoodEvent) {
			logger.Debug("mood change", "from", e.Previous.Value, "to", e.Current.Value, "label", e.Current.Label)
		},
		OnGenerate: func(ctx context.Context, e *domain.GenerateEvent) {
			if e.IsError {
				logger.Debug("generate (error)", "provider", e.Provider, "duration", e.Duration)
			} else {
				logger.Debug("generate", "provider", e.Provider, "duration", e.Duration)
			}
		},
	}
}

// linePump reads the trainee's input on a single goroutine for the whole
// command, so watch reloads never leave a second reader on stdin.
type linePump struct {
	lines chan string
}

func newLinePump(r io.Reader) *linePump {
	p := &linePump{lines: make(chan string)}
	go func() {
		defer close(p.lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			p.lines <- scanner.Text()
		}
	}()
	return p
}

// reader returns a view of the pump that stops with ctx.
func (p *linePump) reader(ctx context.Context) io.Reader {
	return &lineReader{ctx: ctx, lines: p.lines}
}

type lineReader struct {
	ctx   context.Context
	lines <-chan string
	buf   []byte
}

func (r *lineReader) Read(b []byte) (int, error) {
	if len(r.buf) == 0 {
		select {
		case <-r.ctx.Done():
			return 0, errInterrupted
		case line, ok := <-r.lines:
			if !ok {
				return 0, io.EOF
			}
			r.buf = []byte(line + "\n")
		}
	}
	n := copy(b, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func (c *Chat) logSessionStatus(sessionID string, state *domain.SessionState, loaded bool) {
	phase := state.CurrentPhase.CurrentPhaseID
	if loaded {
		c.Logger.Info("session resumed", "session_id", sessionID, "phase_id", phase)
		printSystemMessage(c.Output, "Resuming in phase '%s'...", phase)
	} else if sessionID != "" {
		c.Logger.Info("session created", "session_id", sessionID)
		printSystemMessage(c.Output, "Session '%s' active.", sessionID)
	}
}

func (c *Chat) logCompletion(phaseID string, err error, sig os.Signal) {
	if err == nil {
		printSystemMessage(c.Output, "Finished in phase '%s'.", phaseID)
		return
	}
	if !isInterrupted(err) {
		return
	}
	switch sig {
	case os.Interrupt:
		fmt.Fprintln(c.Output, "[CTRL+C]")
		printSystemMessage(c.Output, "Interrupted in phase '%s'.", phaseID)
	case nil:
		fmt.Fprintln(c.Output)
		printSystemMessage(c.Output, "Interrupted in phase '%s'.", phaseID)
	default:
		fmt.Fprintln(c.Output)
		printSystemMessage(c.Output, "Terminated in phase '%s'.", phaseID)
	}
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, errInterrupted) ||
		errors.Is(err, io.EOF)
}

func handleExecutionError(err error) error {
	if err == nil || isInterrupted(err) {
		return nil
	}
	return err
}
