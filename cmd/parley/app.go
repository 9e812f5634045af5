package main

import (
	"fmt"
	"io"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/adapters/redis"
	"github.com/aretw0/parley/pkg/adapters/speech"
	"github.com/aretw0/parley/pkg/adapters/sqlite"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
)

// newParley opens the vignette library with the configured model settings.
func newParley(hooks ...domain.LifecycleHooks) (*parley.Parley, error) {
	opts := []parley.Option{
		parley.WithLogger(logger),
		parley.WithLLMConfig(cfg.LLM("")),
		parley.WithHistoryWindow(cfg.HistoryWindow),
	}
	if len(hooks) > 0 {
		opts = append(opts, parley.WithLifecycleHooks(domain.ComposeHooks(hooks...)))
	}
	p, err := parley.New(cfg.VignetteDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing parley: %w", err)
	}
	return p, nil
}

// backend is an opened state store with its optional distributed locker.
type backend struct {
	store  ports.StateStore
	locker ports.DistributedLocker
	closer io.Closer
	// archive is set for the SQLite backend, which can be queried by vignette.
	archive *sqlite.Store
}

func (b *backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

// manager builds a session manager over the backend.
func (b *backend) manager() *session.Manager {
	opts := []session.Option{session.WithLogger(logger)}
	if b.locker != nil {
		opts = append(opts, session.WithLocker(b.locker))
	}
	return session.NewManager(b.store, opts...)
}

// openStore builds the configured session store, wrapped in redaction and
// encryption when enabled. kind overrides cfg.Store when set.
func openStore(c *config.Config, kind string) (*backend, error) {
	if kind == "" {
		kind = c.Store
	}

	b := &backend{}
	switch kind {
	case config.StoreMemory:
		b.store = memory.NewStore()
	case config.StoreFile:
		b.store = file.New(c.SessionDir)
	case config.StoreRedis:
		rs := redis.New(c.RedisAddr, c.RedisPassword, c.RedisDB, redis.WithTTL(c.SessionTTL))
		b.store = rs
		b.locker = redis.NewLocker(rs.Client(), redis.DefaultPrefix)
		b.closer = rs
	case config.StoreSQLite:
		ss, err := sqlite.Open(c.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.store = ss
		b.closer = ss
		b.archive = ss
	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}

	var mws []middleware.Middleware
	redact := c.RedactPHI || len(c.RedactPatterns) > 0
	if redact {
		patterns := c.RedactPatterns
		if len(patterns) == 0 {
			patterns = middleware.DefaultPHIPatterns
		}
		pii, err := middleware.NewPIIMiddleware(patterns)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		mws = append(mws, pii)
	}
	active, fallback, err := c.Keys()
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	if active != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		}))
	}
	b.store = middleware.Wrap(b.store, mws...)
	logger.Info("session store ready", "store", kind, "redact", redact, "encrypted", active != nil)
	return b, nil
}

// newSpeech returns the voice adapters. Each one is nil without its API key.
func newSpeech(c *config.Config) (ports.Transcriber, ports.Synthesizer) {
	var (
		t ports.Transcriber
		s ports.Synthesizer
	)
	if c.OpenAIKey != "" {
		var opts []speech.TranscriberOption
		if c.TranscriptionURL != "" {
			opts = append(opts, speech.WithTranscriberBaseURL(c.TranscriptionURL))
		}
		t = speech.NewTranscriber(c.OpenAIKey, opts...)
	}
	if c.ElevenLabsKey != "" {
		var opts []speech.SynthesizerOption
		if c.ElevenLabsURL != "" {
			opts = append(opts, speech.WithSynthesizerBaseURL(c.ElevenLabsURL))
		}
		s = speech.NewSynthesizer(c.ElevenLabsKey, opts...)
	}
	return t, s
}
