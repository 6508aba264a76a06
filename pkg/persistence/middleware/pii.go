package middleware

import (
	"context"
	"regexp"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

// Mask replaces redacted brief input values.
const Mask = "***"

type piiMiddleware struct {
	next     SessionRepository
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks brief inputs whose keys match any pattern.
// Masking happens on Save only; the caller's session is left untouched.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		patterns[i] = re
	}
	return func(next SessionRepository) SessionRepository {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, id string, s *domain.AgentSession) error {
	if s.Brief == nil || len(m.patterns) == 0 {
		return m.next.Save(ctx, id, s)
	}

	cloned := *s
	brief := *s.Brief
	brief.Inputs = deepCopyMap(s.Brief.Inputs)
	maskMap(brief.Inputs, m.patterns)
	cloned.Brief = &brief

	return m.next.Save(ctx, id, &cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, id string) (*domain.AgentSession, error) {
	return m.next.Load(ctx, id)
}

func (m *piiMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if subMap, ok := v.(map[string]any); ok && !masked {
			maskMap(subMap, patterns)
		}
	}
}
