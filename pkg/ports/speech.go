package ports

import "context"

// Transcript is the result of speech recognition.
type Transcript struct {
	Text       string
	Confidence *float64
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (Transcript, error)
}

// VoiceParams are the synthesis knobs taken from a vignette's voice config.
type VoiceParams struct {
	Stability       float64
	SimilarityBoost float64
}

// Synthesizer turns the persona reply into audio.
type Synthesizer interface {
	// Synthesize returns the encoded audio and its MIME type.
	Synthesize(ctx context.Context, text, voiceID string, params VoiceParams) ([]byte, string, error)
}
