/*
Package ports defines the driven ports (interfaces) for the Parley engine.

These interfaces decouple the conversation core from external implementations,
allowing it to work with any text-generation backend, speech service, vignette
source or session store.

# Key Interfaces

  - ModelProvider: turns a prompt into the persona's next utterance.
  - Transcriber / Synthesizer: speech-to-text and text-to-speech for voice turns.
  - VignetteLoader: retrieves scenario definitions (e.g., from Loam or Memory).
  - StateStore: persists SessionState snapshots for hosts that keep sessions server-side.
  - DistributedLocker: serializes overlapping turns for the same session across replicas.
*/
package ports
