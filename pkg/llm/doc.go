// Package llm provides the model backends that voice the persona.
//
// Backends are chosen by model name through a prefix Registry:
//
//	gpt-4o, openai:gpt-4o-mini   OpenAI chat completions
//	gemini-2.5-flash, gemini:... Gemini generateContent
//	ollama:llama3                local Ollama server
//	scripted, echo               offline providers
//
// All backends speak plain HTTP+JSON so they can be pointed at test servers.
package llm
