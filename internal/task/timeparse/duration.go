package timeparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reDuration = regexp.MustCompile(`(\d+)\s+(second|minute|hour)s?\b`)

// Span is a parsed timer duration, e.g. "5 minutes".
type Span struct {
	Value    int
	Unit     string // "second" | "minute" | "hour"
	Duration time.Duration
}

// String renders the span the way it is announced ("1 minute", "5 minutes").
func (s Span) String() string {
	if s.Value == 1 {
		return fmt.Sprintf("%d %s", s.Value, s.Unit)
	}
	return fmt.Sprintf("%d %ss", s.Value, s.Unit)
}

// ParseDuration extracts "N second(s)|minute(s)|hour(s)" from text.
func ParseDuration(text string) (time.Duration, error) {
	sp, err := ParseSpan(text)
	if err != nil {
		return 0, err
	}
	return sp.Duration, nil
}

// ParseSpan is ParseDuration that keeps the matched amount and unit.
func ParseSpan(text string) (Span, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	m := reDuration.FindStringSubmatch(s)
	if m == nil {
		return Span{}, &ParseError{Input: text}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return Span{}, &ParseError{Input: text, Reason: "invalid amount"}
	}
	unit := time.Second
	switch m[2] {
	case "minute":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	}
	d, err := scale(n, unit)
	if err != nil {
		return Span{}, &ParseError{Input: text, Reason: err.Error()}
	}
	return Span{Value: n, Unit: m[2], Duration: d}, nil
}
