package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// Redacted replaces every match in stored message text.
const Redacted = "[REDACTED]"

// DefaultPHIPatterns catch the identifiers trainees most often type into a
// roleplay: record numbers, SSNs, phone numbers, emails and dates of birth.
var DefaultPHIPatterns = []string{
	`(?i)\bMRN[:#\s]*\d{5,}\b`,
	`\b\d{3}-\d{2}-\d{4}\b`,
	`\(?\b\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`,
	`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`,
	`\b\d{1,2}/\d{1,2}/\d{2,4}\b`,
}

type piiMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware masks pattern matches in message text before saving.
// The caller's snapshot is never modified. Loads pass through untouched.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, 0, len(patternStrings))
	for _, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redaction pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return func(next ports.StateStore) ports.StateStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, state *domain.SessionState) error {
	cloned := state.Clone()
	for i := range cloned.Messages {
		cloned.Messages[i].Text = m.redact(cloned.Messages[i].Text)
	}
	return m.next.Save(ctx, sessionID, cloned)
}

func (m *piiMiddleware) redact(text string) string {
	for _, p := range m.patterns {
		text = p.ReplaceAllString(text, Redacted)
	}
	return text
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
