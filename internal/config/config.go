// Package config loads process configuration from the environment.
// Only binaries read it; library packages take their settings through constructors.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/llm"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Prefix namespaces every variable.
const Prefix = "PARLEY_"

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	VignetteDir string `env:"VIGNETTE_DIR" envDefault:"./vignettes"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	DefaultModel  string  `env:"DEFAULT_MODEL" envDefault:"scripted"`
	MaxTokens     int     `env:"MAX_TOKENS" envDefault:"256"`
	Temperature   float64 `env:"TEMPERATURE" envDefault:"0.7"`
	HistoryWindow int     `env:"HISTORY_WINDOW" envDefault:"12"`
	// GenerationTimeout bounds one model call.
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" envDefault:"60s"`

	OpenAIKey        string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL"`
	GeminiKey        string `env:"GEMINI_API_KEY"`
	GeminiBaseURL    string `env:"GEMINI_BASE_URL"`
	OllamaHost       string `env:"OLLAMA_HOST"`
	ElevenLabsKey    string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsURL    string `env:"ELEVENLABS_BASE_URL"`
	TranscriptionURL string `env:"TRANSCRIPTION_BASE_URL"`

	Store         string        `env:"STORE" envDefault:"memory"`
	SessionDir    string        `env:"SESSION_DIR" envDefault:".parley/sessions"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"0s"`
	SQLitePath    string        `env:"SQLITE_PATH" envDefault:".parley/sessions.db"`

	// EncryptionKey is a base64 encoded 32 byte AES key. Empty disables encryption.
	EncryptionKey string `env:"ENCRYPTION_KEY"`
	// FallbackKeys are previous encryption keys kept for rotation.
	FallbackKeys   []string `env:"ENCRYPTION_FALLBACK_KEYS" envSeparator:","`
	RedactPHI      bool     `env:"REDACT_PHI" envDefault:"false"`
	RedactPatterns []string `env:"REDACT_PATTERNS" envSeparator:";"`

	OTelEnabled    bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string `env:"OTEL_ENDPOINT"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`

	MaxUtteranceBytes int `env:"MAX_UTTERANCE_BYTES" envDefault:"4096"`
	MaxAudioBytes     int `env:"MAX_AUDIO_BYTES" envDefault:"10485760"`
}

// Load reads an optional .env file, then the environment, then validates.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks ranges and cross-field rules.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%sPORT must be a valid TCP port", Prefix))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%sLOG_LEVEL: %w", Prefix, err))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("%sMAX_TOKENS must be > 0", Prefix))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("%sTEMPERATURE must be within [0, 2]", Prefix))
	}
	if c.HistoryWindow <= 0 {
		errs = append(errs, fmt.Errorf("%sHISTORY_WINDOW must be > 0", Prefix))
	}
	if c.GenerationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%sGENERATION_TIMEOUT must be > 0", Prefix))
	}
	switch c.Store {
	case StoreMemory, StoreFile, StoreRedis, StoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("%sSTORE must be one of memory, file, redis, sqlite (got %q)", Prefix, c.Store))
	}
	if c.SessionTTL < 0 {
		errs = append(errs, fmt.Errorf("%sSESSION_TTL must not be negative", Prefix))
	}
	if c.EncryptionKey != "" {
		if _, err := decodeKey(c.EncryptionKey); err != nil {
			errs = append(errs, fmt.Errorf("%sENCRYPTION_KEY: %w", Prefix, err))
		}
	}
	for i, k := range c.FallbackKeys {
		if _, err := decodeKey(k); err != nil {
			errs = append(errs, fmt.Errorf("%sENCRYPTION_FALLBACK_KEYS[%d]: %w", Prefix, i, err))
		}
	}
	if c.MaxUtteranceBytes <= 0 {
		errs = append(errs, fmt.Errorf("%sMAX_UTTERANCE_BYTES must be > 0", Prefix))
	}
	if c.MaxAudioBytes <= 0 {
		errs = append(errs, fmt.Errorf("%sMAX_AUDIO_BYTES must be > 0", Prefix))
	}
	return errors.Join(errs...)
}

// Keys returns the decoded active and fallback encryption keys.
// The active key is nil when encryption is disabled.
func (c *Config) Keys() (active []byte, fallback [][]byte, err error) {
	if c.EncryptionKey == "" {
		return nil, nil, nil
	}
	if active, err = decodeKey(c.EncryptionKey); err != nil {
		return nil, nil, err
	}
	for _, k := range c.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, err
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// LLM builds the provider factory settings for a model.
func (c *Config) LLM(model string) llm.Config {
	if model == "" {
		model = c.DefaultModel
	}
	temperature := c.Temperature
	return llm.Config{
		Model:         model,
		MaxTokens:     c.MaxTokens,
		Temperature:   &temperature,
		OpenAIKey:     c.OpenAIKey,
		OpenAIBaseURL: c.OpenAIBaseURL,
		GeminiKey:     c.GeminiKey,
		GeminiBaseURL: c.GeminiBaseURL,
		OllamaHost:    c.OllamaHost,
		Timeout:       c.GenerationTimeout,
	}
}
