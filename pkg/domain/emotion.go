package domain

import "fmt"

const (
	DefaultMoodMin     = -5.0
	DefaultMoodMax     = 5.0
	DefaultMoodMaxStep = 1.5
)

// Trend is the direction of the last mood update.
type Trend string

const (
	TrendSteady     Trend = "steady"
	TrendSoftening  Trend = "softening"
	TrendEscalating Trend = "escalating"
)

// EmotionConfig configures the persona mood scale. Negative values are
// agitated or hostile, positive values calm or cooperative.
type EmotionConfig struct {
	Min     float64 `json:"min,omitempty"`
	Max     float64 `json:"max,omitempty"`
	Initial float64 `json:"initial,omitempty"`
	// MaxStep bounds how far a single turn can move the mood.
	MaxStep float64 `json:"maxStep,omitempty"`
	// Sensitivity scales the contribution of the trainee's tone.
	Sensitivity float64 `json:"sensitivity,omitempty"`

	InitialByDifficulty map[Difficulty]float64 `json:"initialByDifficulty,omitempty"`

	// Extra vignette-specific markers layered on the built-in vocabulary.
	DeescalationMarkers []string `json:"deescalationMarkers,omitempty"`
	EscalationMarkers   []string `json:"escalationMarkers,omitempty"`
}

// WithDefaults fills unset bounds.
func (c EmotionConfig) WithDefaults() EmotionConfig {
	if c.Min == 0 && c.Max == 0 {
		c.Min, c.Max = DefaultMoodMin, DefaultMoodMax
	}
	if c.MaxStep == 0 {
		c.MaxStep = DefaultMoodMaxStep
	}
	if c.Sensitivity == 0 {
		c.Sensitivity = 1
	}
	return c
}

// Validate checks the scale after defaults are applied.
func (c EmotionConfig) Validate() error {
	c = c.WithDefaults()
	if c.Min >= c.Max {
		return fmt.Errorf("min %.2f must be below max %.2f", c.Min, c.Max)
	}
	if c.MaxStep <= 0 || c.MaxStep >= c.Max-c.Min {
		return fmt.Errorf("maxStep %.2f must be positive and smaller than the scale range", c.MaxStep)
	}
	if c.Sensitivity < 0 {
		return fmt.Errorf("sensitivity must not be negative")
	}
	if c.Initial < c.Min || c.Initial > c.Max {
		return fmt.Errorf("initial %.2f is outside [%.2f, %.2f]", c.Initial, c.Min, c.Max)
	}
	return nil
}

// InitialFor returns the starting mood for a difficulty.
func (c EmotionConfig) InitialFor(d Difficulty) float64 {
	if v, ok := c.InitialByDifficulty[d]; ok {
		return v
	}
	return c.Initial
}

// EmotionalState is the persona mood carried in the session snapshot.
type EmotionalState struct {
	Value float64 `json:"value"`
	Trend Trend   `json:"trend,omitempty"`
	Label string  `json:"label,omitempty"`
}

// MoodLabel names a mood value relative to the scale, in five equal bands.
func MoodLabel(value float64, cfg EmotionConfig) string {
	cfg = cfg.WithDefaults()
	n := (value - cfg.Min) / (cfg.Max - cfg.Min)
	switch {
	case n < 0.2:
		return "hostile"
	case n < 0.4:
		return "agitated"
	case n < 0.6:
		return "guarded"
	case n < 0.8:
		return "receptive"
	default:
		return "cooperative"
	}
}
