package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/conversation"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/session"
)

// resolveVignette picks the vignette to play. A library holding a single
// vignette does not need an explicit id.
func resolveVignette(ctx context.Context, p *parley.Parley, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	ids, err := p.Vignettes(ctx)
	if err != nil {
		return "", fmt.Errorf("list vignettes: %w", err)
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: the library is empty", domain.ErrVignetteNotFound)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("several vignettes available, pick one with --vignette: %s", strings.Join(ids, ", "))
	}
}

func openRequest(opts Options, prior *domain.SessionState) parley.OpenRequest {
	return parley.OpenRequest{
		VignetteID: opts.VignetteID,
		Difficulty: domain.Difficulty(opts.Difficulty),
		UserID:     opts.UserID,
		Model:      opts.Model,
		PriorState: prior,
	}
}

// hydrateEngine opens the engine for a session. Without a session id the
// conversation lives in memory and resumes from prior when given. Otherwise
// the stored snapshot is resumed, or a fresh one is stored under the id.
func hydrateEngine(ctx context.Context, p *parley.Parley, sessions *session.Manager, opts Options, prior *domain.SessionState) (*conversation.Engine, bool, error) {
	if sessions == nil || opts.SessionID == "" {
		eng, err := p.Open(ctx, openRequest(opts, prior))
		return eng, prior != nil && err == nil, err
	}

	var fresh *conversation.Engine
	state, err := sessions.LoadOrStart(ctx, opts.SessionID, func() (*domain.SessionState, error) {
		eng, err := p.Open(ctx, openRequest(opts, nil))
		if err != nil {
			return nil, err
		}
		fresh = eng
		return eng.SessionState(), nil
	})
	if err != nil {
		return nil, false, err
	}
	if fresh != nil {
		return fresh, false, nil
	}

	if state.VignetteID != "" && state.VignetteID != opts.VignetteID {
		return nil, false, fmt.Errorf("%w: session %q belongs to vignette %q", domain.ErrInvalidResumeState, opts.SessionID, state.VignetteID)
	}
	eng, err := p.Open(ctx, openRequest(opts, state))
	if err != nil {
		return nil, false, err
	}
	return eng, true, nil
}

// resetSession drops a stored snapshot. A missing session is not an error.
func resetSession(ctx context.Context, sessions *session.Manager, sessionID string) error {
	if sessions == nil || sessionID == "" {
		return nil
	}
	if err := sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return fmt.Errorf("reset session %q: %w", sessionID, err)
	}
	return nil
}
