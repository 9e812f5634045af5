// Package runtime implements the phase/branch state machine that drives a
// vignette: objective matching, ordered branch triggers, the stall anti-lock
// and terminal detection. It is pure and deterministic given its inputs.
package runtime
