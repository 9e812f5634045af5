/*
Package domain contains the core domain models of the Parley simulation engine.

It defines the immutable scenario description (the Vignette and its Phases),
the branching rules that move a conversation between phases, and the fully
serializable SessionState that a caller round-trips between stateless turns.
This package is kept pure and free of I/O, following Hexagonal Architecture
principles.

# Key Entities

  - Vignette: the authored scenario template (persona, phases, emotion scale, voice).
  - Phase: one stage of the conversation with a persona directive and objectives.
  - BranchTrigger: an ordered rule that moves the conversation to another phase.
  - SessionState: the snapshot of one conversation (phase, audit trail, mood, transcript).
*/
package domain
