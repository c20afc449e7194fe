// Package privacy masks sensitive substrings in fetched texts before display.
package privacy

import (
	"fmt"
	"regexp"
)

const redactedPlaceholder = "[REDACTED]"

// Compile compiles a list of regex pattern strings into compiled regexps.
// Returns an error if any pattern is invalid.
func Compile(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Apply replaces all matches of the compiled patterns in text with [REDACTED].
func Apply(text string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		text = re.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}

// Redactor masks texts with a fixed set of patterns. A nil Redactor is a no-op.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor compiles patterns. It returns nil when redaction is disabled.
func NewRedactor(enabled bool, patterns []string) (*Redactor, error) {
	if !enabled {
		return nil, nil
	}
	compiled, err := Compile(patterns)
	if err != nil {
		return nil, err
	}
	return &Redactor{patterns: compiled}, nil
}

// Texts returns a redacted copy of texts. The input slice is not modified.
func (r *Redactor) Texts(texts []string) []string {
	if r == nil || len(r.patterns) == 0 {
		return texts
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = Apply(t, r.patterns)
	}
	return out
}
