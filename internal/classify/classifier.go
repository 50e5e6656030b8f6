// Package classify maps worker failures to a retry taxonomy and
// computes retry/backoff decisions from it.
package classify

import (
	"regexp"
)

// Classification is the taxonomy bucket assigned to a failure.
type Classification int

const (
	Transient Classification = iota // default for anything unmatched
	RateLimit
	UsageLimit
	Timeout
	Fatal
)

func (c Classification) String() string {
	switch c {
	case RateLimit:
		return "rate_limit"
	case UsageLimit:
		return "usage_limit"
	case Timeout:
		return "timeout"
	case Fatal:
		return "fatal"
	default:
		return "transient"
	}
}

// patternGroup is one ordered entry in the classification table.
type patternGroup struct {
	class    Classification
	patterns []*regexp.Regexp
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+e))
	}
	return out
}

// groups is evaluated top to bottom; the first match wins. Usage-limit
// patterns come before rate-limit patterns because usage-limit messages
// also contain the word "limit". New patterns are table additions, not
// logic changes.
var groups = []patternGroup{
	{
		class: UsageLimit,
		patterns: compile(
			`usage[ _-]?limit`,
			`monthly limit`,
			`quota exceeded`,
			`credit balance`,
			`usage cap`,
		),
	},
	{
		class: RateLimit,
		patterns: compile(
			`rate[ _-]?limit`,
			`\b429\b`,
			`too many requests`,
			`overloaded`,
			`server is busy`,
		),
	},
	{
		class: Timeout,
		patterns: compile(
			`timed? ?out`,
			`deadline exceeded`,
		),
	},
	{
		class: Fatal,
		patterns: compile(
			`authentication`,
			`unauthorized`,
			`\b401\b`,
			`\b403\b`,
			`invalid api key`,
			`no space left on device`,
			`disk full`,
			`out of memory`,
			`cannot allocate memory`,
			`not a git repository`,
		),
	},
}

// Classify maps an error's message text to a Classification. It is a
// pure function: no side effects, deterministic for identical text.
// A nil error and any unmatched text classify as Transient.
func Classify(err error) Classification {
	if err == nil {
		return Transient
	}
	return ClassifyText(err.Error())
}

// ClassifyText classifies a raw message string.
func ClassifyText(msg string) Classification {
	for _, g := range groups {
		for _, p := range g.patterns {
			if p.MatchString(msg) {
				return g.class
			}
		}
	}
	return Transient
}
