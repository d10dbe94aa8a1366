package audit

import (
	"fmt"
	"math"
	"regexp"
)

// secretPattern is a named regex for recognizing credential material.
type secretPattern struct {
	name  string
	regex *regexp.Regexp
}

func defaultSecretPatterns() []secretPattern {
	return []secretPattern{
		{name: "aws_access_key", regex: regexp.MustCompile(`(?i)AKIA[0-9A-Z]{16}`)},
		{name: "aws_secret_key", regex: regexp.MustCompile(`(?i)(?:aws)?_?(?:secret)?_?(?:access)?_?key['":\s]*[=:]\s*['"]?([A-Za-z0-9/+=]{40})`)},
		{name: "github_token", regex: regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,255}`)},
		{name: "generic_api_key", regex: regexp.MustCompile(`(?i)(?:api[_-]?key|apikey|api_secret)['":\s]*[=:]\s*['"]?([A-Za-z0-9\-_]{20,60})['"]?`)},
		{name: "private_key", regex: regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`)},
		{name: "slack_token", regex: regexp.MustCompile(`xox[baprs]-[0-9]{10,13}-[0-9]{10,13}[a-zA-Z0-9-]*`)},
		{name: "google_api_key", regex: regexp.MustCompile(`AIza[A-Za-z0-9\-_]{35}`)},
		{name: "jwt_token", regex: regexp.MustCompile(`eyJ[A-Za-z0-9-_]+\.eyJ[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+`)},
	}
}

// Redactor scrubs credential material from tool-call arguments before they
// are persisted. Values matching a known secret pattern, or long strings
// with suspiciously high Shannon entropy, are replaced with a marker naming
// what was detected; the structure of the argument map is preserved.
type Redactor struct {
	patterns         []secretPattern
	entropyThreshold float64
	minTokenLength   int
}

// NewRedactor creates a redactor with the built-in pattern set. The
// entropy threshold of 4.5 sits above random hex (~4.0 bits per char) so
// ordinary identifiers pass through untouched.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns:         defaultSecretPatterns(),
		entropyThreshold: 4.5,
		minTokenLength:   20,
	}
}

// Redact returns a copy of args with secret-bearing string values replaced.
// Nested maps and slices are walked; non-string leaves pass through as is.
// A nil input returns nil.
func (r *Redactor) Redact(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = r.redactValue(v)
	}
	return out
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		if name, hit := r.detect(val); hit {
			return fmt.Sprintf("[REDACTED:%s]", name)
		}
		return val
	case map[string]any:
		return r.Redact(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.redactValue(item)
		}
		return out
	default:
		return v
	}
}

func (r *Redactor) detect(s string) (string, bool) {
	for _, p := range r.patterns {
		if p.regex.MatchString(s) {
			return p.name, true
		}
	}
	if len(s) >= r.minTokenLength && shannonEntropy(s) >= r.entropyThreshold {
		return "high_entropy", true
	}
	return "", false
}

// shannonEntropy is bits per character over the string's rune distribution.
func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[rune]float64)
	for _, c := range s {
		freq[c]++
	}
	length := float64(len([]rune(s)))
	entropy := 0.0
	for _, count := range freq {
		p := count / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}
