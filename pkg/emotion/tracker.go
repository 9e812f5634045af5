package emotion

import (
	"errors"
	"log/slog"
	"math"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

// Transition describes a phase change that happened in the same turn.
type Transition struct {
	From  string
	To    string
	Shift float64
}

// Tracker updates the persona mood from trainee tone and phase transitions.
// It is stateless between calls; the mood lives in the session snapshot.
type Tracker struct {
	cfg        domain.EmotionConfig
	classifier Classifier
	logger     *slog.Logger
}

// Option configures the Tracker.
type Option func(*Tracker)

// WithClassifier replaces the heuristic tone classifier.
func WithClassifier(c Classifier) Option {
	return func(t *Tracker) {
		t.classifier = c
	}
}

// WithLogger sets the tracker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker creates a tracker for a vignette's mood scale.
func NewTracker(cfg domain.EmotionConfig, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:    cfg.WithDefaults(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.classifier == nil {
		t.classifier = ForConfig(t.cfg)
	}
	return t
}

// Config returns the scale with defaults applied.
func (t *Tracker) Config() domain.EmotionConfig {
	return t.cfg
}

// Initial returns the starting mood for a difficulty.
func (t *Tracker) Initial(d domain.Difficulty) domain.EmotionalState {
	v := t.clamp(t.cfg.InitialFor(d))
	return domain.EmotionalState{
		Value: v,
		Trend: domain.TrendSteady,
		Label: domain.MoodLabel(v, t.cfg),
	}
}

// Update computes the mood after one trainee turn.
//
// The utterance contributes polarity * sensitivity * (1 + intensity). When the
// turn also transitioned with a non-zero shift, the shift is the baseline and
// the utterance only adds to it when it pushes in the same direction. The
// combined delta is bounded by MaxStep and the result by [Min, Max].
// An ambiguous utterance with no transition leaves the mood where it was
// and reports it steady.
func (t *Tracker) Update(prev domain.EmotionalState, utterance string, tr *Transition) domain.EmotionalState {
	var tone float64
	s, err := t.classifier.Classify(utterance)
	switch {
	case err == nil:
		tone = s.Polarity * t.cfg.Sensitivity * (1 + s.Intensity)
	case errors.Is(err, domain.ErrAmbiguousSentiment):
		t.logger.Debug("ambiguous trainee tone", "confidence", s.Confidence)
	default:
		t.logger.Warn("tone classifier failed", "error", err)
	}

	var shift float64
	if tr != nil {
		shift = tr.Shift
	}

	delta := tone
	if shift != 0 {
		delta = shift
		if tone != 0 && math.Signbit(tone) == math.Signbit(shift) {
			delta += tone
		}
	}

	if delta == 0 {
		if prev.Label == "" {
			prev.Label = domain.MoodLabel(prev.Value, t.cfg)
		}
		prev.Trend = domain.TrendSteady
		return prev
	}

	delta = math.Max(-t.cfg.MaxStep, math.Min(t.cfg.MaxStep, delta))
	value := t.clamp(prev.Value + delta)

	trend := domain.TrendSoftening
	if delta < 0 {
		trend = domain.TrendEscalating
	}
	if value == prev.Value {
		trend = domain.TrendSteady
	}

	return domain.EmotionalState{
		Value: value,
		Trend: trend,
		Label: domain.MoodLabel(value, t.cfg),
	}
}

func (t *Tracker) clamp(v float64) float64 {
	return math.Max(t.cfg.Min, math.Min(t.cfg.Max, v))
}
