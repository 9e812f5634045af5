package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidResumeState is returned when a caller-supplied phase id or prior
	// state does not match the bound vignette.
	ErrInvalidResumeState = errors.New("invalid resume state")

	// ErrGenerationFailure is returned when the model backend fails or times out.
	// The turn's phase bookkeeping is already committed when this is returned.
	ErrGenerationFailure = errors.New("generation failure")

	// ErrAmbiguousSentiment is reported by sentiment classifiers that cannot decide.
	// It never leaves the emotion tracker.
	ErrAmbiguousSentiment = errors.New("ambiguous sentiment")

	// ErrSessionNotFound is returned when a session ID cannot be found in the store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionEnded is returned when a turn is submitted to a finished conversation.
	ErrSessionEnded = errors.New("session has ended")

	// ErrInvalidVignette is returned when a vignette definition is malformed.
	ErrInvalidVignette = errors.New("invalid vignette")

	// ErrVignetteNotFound is returned when a loader has no vignette with the given id.
	ErrVignetteNotFound = errors.New("vignette not found")

	// ErrInvalidDifficulty is returned when the requested difficulty is not offered by the vignette.
	ErrInvalidDifficulty = errors.New("difficulty not supported by vignette")

	// ErrNoPendingReply is returned by a retry when the transcript does not end with a trainee message.
	ErrNoPendingReply = errors.New("no trainee message awaiting a reply")

	// ErrEmptyUtterance is returned when an utterance is empty after trimming.
	ErrEmptyUtterance = errors.New("utterance is empty")

	// ErrUnknownModel is returned when no provider backend serves the requested model.
	ErrUnknownModel = errors.New("unknown model")
)

// ResumeStateError describes why a resume point was rejected.
type ResumeStateError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ResumeStateError) Error() string {
	return fmt.Sprintf("invalid resume state: %s %q: %s", e.Field, e.Value, e.Reason)
}

// Is reports whether target is ErrInvalidResumeState.
func (e *ResumeStateError) Is(target error) bool {
	return target == ErrInvalidResumeState
}

// GenerationError wraps a model backend failure.
type GenerationError struct {
	Provider string
	Model    string
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("generation failure (%s/%s): %v", e.Provider, e.Model, e.Err)
	}
	return fmt.Sprintf("generation failure (%s): %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrGenerationFailure.
func (e *GenerationError) Is(target error) bool {
	return target == ErrGenerationFailure
}

// VignetteError lists every problem found while validating a vignette.
type VignetteError struct {
	VignetteID string
	Problems   []string
}

func (e *VignetteError) Error() string {
	return fmt.Sprintf("invalid vignette %q: %s", e.VignetteID, strings.Join(e.Problems, "; "))
}

// Is reports whether target is ErrInvalidVignette.
func (e *VignetteError) Is(target error) bool {
	return target == ErrInvalidVignette
}
