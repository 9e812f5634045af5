package runtime

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/aretw0/parley/pkg/domain"
)

// Predicate reports whether a window of trainee utterances satisfies a matcher.
// The window holds the current utterance last.
type Predicate func(window []string) bool

// MatcherFactory compiles a matcher definition into a Predicate.
type MatcherFactory func(m domain.Matcher) (Predicate, error)

var (
	matchersMu sync.RWMutex
	matchers   = map[domain.MatcherType]MatcherFactory{
		domain.MatchKeyword: compileKeyword,
		domain.MatchPhrase:  compilePhrase,
		domain.MatchRegex:   compileRegex,
	}
)

// RegisterMatcher adds or replaces the factory for a matcher type.
// It lets hosts swap the objective heuristics without touching the machine.
// The returned func puts back whatever was registered for kind before.
func RegisterMatcher(kind domain.MatcherType, factory MatcherFactory) (restore func()) {
	matchersMu.Lock()
	defer matchersMu.Unlock()
	prev, had := matchers[kind]
	matchers[kind] = factory

	return func() {
		matchersMu.Lock()
		defer matchersMu.Unlock()
		if had {
			matchers[kind] = prev
			return
		}
		delete(matchers, kind)
	}
}

// CompileMatcher resolves the factory for m and applies Negate.
func CompileMatcher(m domain.Matcher) (Predicate, error) {
	matchersMu.RLock()
	factory, ok := matchers[m.Kind()]
	matchersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown matcher type %q", m.Kind())
	}

	pred, err := factory(m)
	if err != nil {
		return nil, err
	}
	if m.Negate {
		return func(window []string) bool { return !pred(window) }, nil
	}
	return pred, nil
}

func compileKeyword(m domain.Matcher) (Predicate, error) {
	keywords := make([]string, 0, len(m.Keywords))
	for _, k := range m.Keywords {
		if k = foldKeyword(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) == 0 {
		return nil, fmt.Errorf("keyword matcher needs at least one keyword")
	}
	return combine(m.Mode, keywords, func(text, needle string) bool {
		return strings.Contains(text, needle)
	}, foldKeyword), nil
}

func compilePhrase(m domain.Matcher) (Predicate, error) {
	phrases := make([]string, 0, len(m.Keywords))
	for _, k := range m.Keywords {
		if k = normalize(k); k != " " {
			phrases = append(phrases, k)
		}
	}
	if len(phrases) == 0 {
		return nil, fmt.Errorf("phrase matcher needs at least one phrase")
	}
	return combine(m.Mode, phrases, func(text, needle string) bool {
		return strings.Contains(text, needle)
	}, normalize), nil
}

// flagGroup matches a leading flag group such as (?s) or (?-i:...).
var flagGroup = regexp.MustCompile(`^\(\?[imsU-]+[:)]`)

func compileRegex(m domain.Matcher) (Predicate, error) {
	pattern := m.Pattern
	if !flagGroup.MatchString(pattern) {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", m.Pattern, err)
	}
	return func(window []string) bool {
		for _, text := range window {
			if re.MatchString(text) {
				return true
			}
		}
		return false
	}, nil
}

// combine builds a predicate over prepared needles. With MatchAll every needle
// must appear somewhere in the window; otherwise any single hit is enough.
func combine(mode domain.MatchMode, needles []string, contains func(text, needle string) bool, prepare func(string) string) Predicate {
	return func(window []string) bool {
		texts := make([]string, len(window))
		for i, w := range window {
			texts[i] = prepare(w)
		}
		found := func(needle string) bool {
			for _, text := range texts {
				if contains(text, needle) {
					return true
				}
			}
			return false
		}

		if mode == domain.MatchAll {
			for _, n := range needles {
				if !found(n) {
					return false
				}
			}
			return true
		}
		for _, n := range needles {
			if found(n) {
				return true
			}
		}
		return false
	}
}

// apostrophes folds typographic apostrophes to the ASCII one.
var apostrophes = strings.NewReplacer("\u2019", "'", "\u2018", "'")

func foldKeyword(s string) string {
	return apostrophes.Replace(strings.ToLower(s))
}

// normalize lowercases, turns punctuation into spaces and pads with single
// spaces so phrase lookups only hit whole words.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range foldKeyword(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}
