package logging

import (
	"fmt"
	"regexp"
	"strings"
)

const maskedValue = "***MASKED***"

type SensitivePattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Keys        []string
}

var DefaultSensitivePatterns = []SensitivePattern{
	{
		Name:        "password",
		Regex:       regexp.MustCompile(`(?i)(password|passwd|pwd)(["']?\s*[:=]\s*["']?)([^"'&,}\]\s]+)`),
		Replacement: "${1}${2}" + maskedValue,
		Keys:        []string{"password", "passwd", "pwd"},
	},
	{
		Name:        "token",
		Regex:       regexp.MustCompile(`(?i)(access_token|refresh_token|api_key|apikey|token)(["']?\s*[:=]\s*["']?)([^"'&,}\]\s]+)`),
		Replacement: "${1}${2}" + maskedValue,
		Keys:        []string{"token", "access_token", "refresh_token", "api_key", "apikey", "x-api-key"},
	},
	{
		Name:        "bearer",
		Regex:       regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
		Replacement: "Bearer " + maskedValue,
	},
	{
		Name:        "basic",
		Regex:       regexp.MustCompile(`(?i)Basic\s+[A-Za-z0-9+/]+=*`),
		Replacement: "Basic " + maskedValue,
	},
	{
		Name:        "secret",
		Regex:       regexp.MustCompile(`(?i)(client_secret|secret)(["']?\s*[:=]\s*["']?)([^"'&,}\]\s]+)`),
		Replacement: "${1}${2}" + maskedValue,
		Keys:        []string{"authorization", "cookie", "set-cookie", "secret", "client_secret"},
	},
}

// Masker redacts credentials from log output.
type Masker struct {
	patterns []SensitivePattern
	enabled  bool
}

func NewMasker() *Masker {
	return &Masker{patterns: DefaultSensitivePatterns, enabled: true}
}

func (m *Masker) SetEnabled(enabled bool) {
	m.enabled = enabled
}

func (m *Masker) MaskString(input string) string {
	if m == nil || !m.enabled {
		return input
	}
	out := input
	for _, p := range m.patterns {
		if p.Regex != nil {
			out = p.Regex.ReplaceAllString(out, p.Replacement)
		}
	}
	return out
}

// MaskValue hides the whole value when key is sensitive, otherwise masks
// whatever credentials appear inside it.
func (m *Masker) MaskValue(key string, value any) any {
	if m == nil || !m.enabled {
		return value
	}
	lower := strings.ToLower(key)
	for _, p := range m.patterns {
		for _, k := range p.Keys {
			if lower == k {
				return maskedValue
			}
		}
	}
	switch v := value.(type) {
	case string:
		return m.MaskString(v)
	case fmt.Stringer:
		return m.MaskString(v.String())
	default:
		return value
	}
}

func (m *Masker) MaskKeyValuePairs(pairs ...any) []any {
	if m == nil || !m.enabled {
		return pairs
	}
	out := make([]any, len(pairs))
	for i := 0; i < len(pairs); i += 2 {
		out[i] = pairs[i]
		if i+1 >= len(pairs) {
			break
		}
		if key, ok := pairs[i].(string); ok {
			out[i+1] = m.MaskValue(key, pairs[i+1])
		} else {
			out[i+1] = pairs[i+1]
		}
	}
	return out
}
