/*
Package parley is a difficult-conversation simulation engine for rehearsing
hard talks (delivering bad news, handling an angry relative, disclosing an
error) against an AI-voiced persona.

A vignette describes the persona and an ordered list of phases. Each phase
carries objectives the trainee should meet and branch triggers that move the
conversation on. Every trainee turn updates the phase state and the persona's
mood before a pluggable model backend writes the reply.

# Stateless turns

The engine keeps no server-side session. Each turn returns a SessionState
snapshot that callers persist or send back with the next request, so a
conversation can cross HTTP calls, voice turns or process restarts.

# Usage

	p, err := parley.New("./vignettes")
	if err != nil {
		log.Fatal(err)
	}

	eng, err := p.Open(ctx, parley.OpenRequest{
		VignetteID: "delayed-results",
		Difficulty: domain.DifficultyIntermediate,
	})
	if err != nil {
		log.Fatal(err)
	}

	res, err := eng.ProcessUserMessage(ctx, "Hello, my name is Dr. Rivera.")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.Response, res.CurrentPhase, res.EmotionalState.Label)

	// Later, possibly in another process:
	eng, err = p.Open(ctx, parley.OpenRequest{PriorState: res.State})
*/
package parley
