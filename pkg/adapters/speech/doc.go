// Package speech provides the voice-mode adapters: OpenAI transcription for
// trainee audio and ElevenLabs synthesis for persona replies.
package speech
