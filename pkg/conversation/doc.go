// Package conversation orchestrates one simulated difficult conversation.
//
// An Engine is built per request from a vignette, a model provider and an
// optional prior snapshot. ProcessUserMessage runs the turn in a fixed order:
//
//  1. append the trainee utterance to the transcript
//  2. evaluate the active phase's objectives
//  3. evaluate branch triggers (first declared match wins, then stall)
//  4. update the persona mood, seeing any transition
//  5. unless the phase is terminal, prompt the model and append its reply
//
// The engine keeps no server-side state. SessionState returns the snapshot the
// caller persists and hands back as Config.PriorState on the next request.
package conversation
