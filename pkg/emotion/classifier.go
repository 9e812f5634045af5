package emotion

import (
	"math"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// Sentiment is the tone read from one trainee utterance.
type Sentiment struct {
	// Polarity is +1 for de-escalating language and -1 for confrontational language.
	Polarity float64
	// Intensity grows with the number of dominant markers, in [0, 1].
	Intensity  float64
	Confidence float64
}

// Classifier reads the tone of an utterance.
// It returns domain.ErrAmbiguousSentiment when it cannot decide.
type Classifier interface {
	Classify(utterance string) (Sentiment, error)
}

// ConfidenceThreshold is the minimum confidence the tracker acts on.
const ConfidenceThreshold = 0.6

var deescalationSignals = []string{
	"i understand", "i hear you", "i'm sorry", "i am sorry", "i apologize", "my apologies",
	"that must be", "that sounds", "i can see", "i can imagine", "thank you for",
	"you're right", "you are right", "let's", "let us", "together", "take your time",
	"i want to help", "how can i help", "what matters", "i'm here", "i am here",
	"it makes sense", "frustrating", "understandable", "please tell me",
}

var escalationSignals = []string{
	"calm down", "relax", "not my fault", "not my problem", "you need to", "you have to",
	"there's nothing", "there is nothing", "policy", "whatever", "listen to me",
	"you don't understand", "you people", "stop", "that's not true", "you're wrong",
	"you are wrong", "i already told you", "no time", "it is what it is", "obviously",
}

// HeuristicClassifier scores de-escalation and escalation markers found in
// the utterance. Each marker adds weight; mixed signals lower the confidence.
type HeuristicClassifier struct {
	deescalation []string
	escalation   []string
}

// NewHeuristicClassifier creates a classifier with the built-in vocabulary
// extended by the given markers.
func NewHeuristicClassifier(extraDeescalation, extraEscalation []string) *HeuristicClassifier {
	return &HeuristicClassifier{
		deescalation: withExtra(deescalationSignals, extraDeescalation),
		escalation:   withExtra(escalationSignals, extraEscalation),
	}
}

// ForConfig builds a classifier using a vignette's extra markers.
func ForConfig(cfg domain.EmotionConfig) *HeuristicClassifier {
	return NewHeuristicClassifier(cfg.DeescalationMarkers, cfg.EscalationMarkers)
}

func withExtra(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	for _, e := range extra {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// Classify implements Classifier.
func (c *HeuristicClassifier) Classify(utterance string) (Sentiment, error) {
	text := strings.ToLower(utterance)
	text = strings.ReplaceAll(text, "’", "'")

	calm := count(text, c.deescalation)
	hot := count(text, c.escalation)
	if strings.Contains(text, "!!") {
		hot++
	}

	total := calm + hot
	if total == 0 {
		return Sentiment{}, domain.ErrAmbiguousSentiment
	}

	strength := math.Min(1, 0.4+0.3*float64(total))
	net := calm - hot
	confidence := strength * math.Abs(float64(net)) / float64(total)
	if confidence < ConfidenceThreshold {
		return Sentiment{Confidence: confidence}, domain.ErrAmbiguousSentiment
	}

	polarity := 1.0
	if net < 0 {
		polarity = -1
	}
	return Sentiment{
		Polarity:   polarity,
		Intensity:  math.Min(1, math.Abs(float64(net))/3),
		Confidence: confidence,
	}, nil
}

func count(text string, signals []string) int {
	n := 0
	for _, s := range signals {
		if strings.Contains(text, s) {
			n++
		}
	}
	return n
}
