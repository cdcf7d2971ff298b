package render

import (
	"fmt"
	"regexp"
)

const redactedPlaceholder = "[REDACTED]"

// Compile parses the privacy.redact patterns applied to notification titles
// and bodies. Config validation calls it as well.
func Compile(patterns []string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, len(patterns))
	for i, expr := range patterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("redact pattern %d (%q): %w", i+1, expr, err)
		}
		res[i] = re
	}
	return res, nil
}

// Redactor masks configured patterns in outgoing messages. A nil Redactor
// leaves messages untouched.
type Redactor struct {
	patterns []*regexp.Regexp
}

func NewRedactor(patterns []string) (*Redactor, error) {
	compiled, err := Compile(patterns)
	if err != nil {
		return nil, err
	}
	return &Redactor{patterns: compiled}, nil
}

// Apply redacts the title and body of every message. The URL is left alone.
func (r *Redactor) Apply(msgs []Message) []Message {
	if r == nil || len(r.patterns) == 0 {
		return msgs
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		m.Title = r.text(m.Title)
		m.Body = r.text(m.Body)
		out[i] = m
	}
	return out
}

func (r *Redactor) text(s string) string {
	for _, re := range r.patterns {
		s = re.ReplaceAllString(s, redactedPlaceholder)
	}
	return s
}
