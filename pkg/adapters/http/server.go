package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/sanitize"
	"github.com/aretw0/parley/internal/telemetry"
	"github.com/aretw0/parley/pkg/conversation"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultMaxAudioBytes bounds uploaded voice turns (10MB).
const DefaultMaxAudioBytes = 10 << 20

// Simulator defines what the transport needs from the Parley core.
type Simulator interface {
	Open(ctx context.Context, req parley.OpenRequest) (*conversation.Engine, error)
	Vignette(ctx context.Context, id string) (*domain.Vignette, error)
	Vignettes(ctx context.Context) ([]string, error)
	Watch(ctx context.Context) (<-chan string, error)
}

// Server holds the collaborators of the HTTP handlers.
type Server struct {
	Simulator   Simulator
	Sessions    *session.Manager
	Transcriber ports.Transcriber
	Synthesizer ports.Synthesizer
	Metrics     *telemetry.Metrics
	Streams     *StreamManager

	MaxUtteranceBytes int
	MaxAudioBytes     int64
}

// Option configures the Server.
type Option func(*Server)

// WithSessions enables the stored-session routes.
func WithSessions(m *session.Manager) Option {
	return func(s *Server) {
		s.Sessions = m
	}
}

// WithSpeech enables the voice route.
func WithSpeech(t ports.Transcriber, syn ports.Synthesizer) Option {
	return func(s *Server) {
		s.Transcriber = t
		s.Synthesizer = syn
	}
}

// WithMetrics serves /metrics and counts rejected turns.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Server) {
		s.Metrics = m
	}
}

// WithLimits sets the utterance and audio size limits. Zero keeps the default.
func WithLimits(utteranceBytes int, audioBytes int64) Option {
	return func(s *Server) {
		if utteranceBytes > 0 {
			s.MaxUtteranceBytes = utteranceBytes
		}
		if audioBytes > 0 {
			s.MaxAudioBytes = audioBytes
		}
	}
}

// NewServer creates a Server with defaults applied.
func NewServer(sim Simulator, opts ...Option) *Server {
	s := &Server{
		Simulator:         sim,
		Streams:           NewStreamManager(),
		MaxUtteranceBytes: sanitize.DefaultMaxBytes,
		MaxAudioBytes:     DefaultMaxAudioBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHandler creates a new HTTP handler for the simulator.
func NewHandler(sim Simulator, opts ...Option) http.Handler {
	return NewServer(sim, opts...).Routes()
}

// Routes wires every endpoint on a chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/events", s.SubscribeReload)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}

	r.Route("/vignettes", func(r chi.Router) {
		r.Get("/", s.ListVignettes)
		r.Get("/{id}", s.GetVignette)
		r.Get("/{id}/graph", s.GetGraph)
	})

	r.Post("/turn", s.Turn)
	r.Post("/turn/retry", s.Retry)
	r.Post("/opening", s.Opening)
	r.Post("/voice", s.Voice)

	r.Route("/sessions", func(r chi.Router) {
		r.Use(s.requireSessions)
		r.Post("/", s.CreateSession)
		r.Get("/", s.ListSessions)
		r.Get("/{id}", s.GetSession)
		r.Delete("/{id}", s.DeleteSession)
		r.Post("/{id}/messages", s.SendMessage)
		r.Post("/{id}/retry", s.RetrySession)
		r.Get("/{id}/events", s.SubscribeSession)
	})

	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireSessions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Sessions == nil {
			http.Error(w, "Stored sessions are disabled", http.StatusNotImplemented)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"app":      "parley-http",
		"version":  parley.Version,
		"sessions": s.Sessions != nil,
		"voice":    s.Transcriber != nil && s.Synthesizer != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Response encode failed", "error", err)
	}
}

// decode reads a JSON body, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any, op string) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		slog.Warn(op+": Invalid request body", "error", err)
		return false
	}
	return true
}
