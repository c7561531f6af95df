package timeparse

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrParse marks an expression that matched no supported form. Callers should
// ask the user to rephrase; it is not a system fault.
var ErrParse = errors.New("unrecognized time expression")

// ParseError carries the rejected input. It unwraps to ErrParse.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %q", ErrParse.Error(), e.Input)
	}
	return fmt.Sprintf("%s: %q (%s)", ErrParse.Error(), e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// Rule names the branch that produced a timestamp.
type Rule string

const (
	RuleClock    Rule = "clock"
	RuleTomorrow Rule = "tomorrow"
	RuleOffset   Rule = "offset"
	RuleWeekday  Rule = "weekday"
)

// Parsed is a successful parse.
type Parsed struct {
	At   time.Time
	Rule Rule
}

// DefaultHour is used by the tomorrow and weekday forms when no clock time is given.
const DefaultHour = 9

var (
	reBareClock = regexp.MustCompile(`^(?:at\s+)?(\d{1,2})(?::?(\d{2}))?\s*(am|pm)?$`)
	reClock     = regexp.MustCompile(`\b(\d{1,2})(?::?(\d{2}))?\s*(am|pm)?\b`)
	reTomorrow  = regexp.MustCompile(`\btomorrow\b`)
	reOffset    = regexp.MustCompile(`\bin\s+(\d+)\s+(minute|hour|day)s?\b`)
	reWeekday   = regexp.MustCompile(`\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Parse converts a free-text time expression into an absolute timestamp in
// now's location.
//
// Forms are tried in a fixed order and the first match wins:
//   - bare clock time: "7:30 am", "at 19:05", "12" (next upcoming, today or tomorrow)
//   - "tomorrow [at H[:MM][am|pm]]" (09:00 when no time is given)
//   - "in N minute(s)|hour(s)|day(s)"
//   - weekday name, always the next one and never today (09:00 default)
func Parse(text string, now time.Time) (time.Time, error) {
	p, err := ParseDetailed(text, now)
	if err != nil {
		return time.Time{}, err
	}
	return p.At, nil
}

// ParseDetailed is Parse that also reports the matching rule.
func ParseDetailed(text string, now time.Time) (Parsed, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return Parsed{}, &ParseError{Input: text, Reason: "empty"}
	}

	if m := reBareClock.FindStringSubmatch(s); m != nil {
		hh, mm, err := clockFromMatch(m)
		if err != nil {
			return Parsed{}, &ParseError{Input: text, Reason: err.Error()}
		}
		at := onDay(now, hh, mm)
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return Parsed{At: at, Rule: RuleClock}, nil
	}

	if reTomorrow.MatchString(s) {
		at, err := dayWithClock(now.AddDate(0, 0, 1), s)
		if err != nil {
			return Parsed{}, &ParseError{Input: text, Reason: err.Error()}
		}
		return Parsed{At: at, Rule: RuleTomorrow}, nil
	}

	if m := reOffset.FindStringSubmatch(s); m != nil {
		at, err := offset(now, m[1], m[2])
		if err != nil {
			return Parsed{}, &ParseError{Input: text, Reason: err.Error()}
		}
		return Parsed{At: at, Rule: RuleOffset}, nil
	}

	if m := reWeekday.FindStringSubmatch(s); m != nil {
		ahead := (int(weekdays[m[1]]) - int(now.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		at, err := dayWithClock(now.AddDate(0, 0, ahead), s)
		if err != nil {
			return Parsed{}, &ParseError{Input: text, Reason: err.Error()}
		}
		return Parsed{At: at, Rule: RuleWeekday}, nil
	}

	return Parsed{}, &ParseError{Input: text}
}

// dayWithClock places the embedded clock time (or DefaultHour) on day's date.
func dayWithClock(day time.Time, s string) (time.Time, error) {
	m := reClock.FindStringSubmatch(s)
	if m == nil {
		return onDay(day, DefaultHour, 0), nil
	}
	hh, mm, err := clockFromMatch(m)
	if err != nil {
		return time.Time{}, err
	}
	return onDay(day, hh, mm), nil
}

func onDay(day time.Time, hh, mm int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hh, mm, 0, 0, day.Location())
}

// clockFromMatch resolves H, MM and meridiem groups into a 24h clock.
// Out-of-range values are rejected rather than normalized by time.Date.
func clockFromMatch(m []string) (int, int, error) {
	hh, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour %q", m[1])
	}
	mm := 0
	if m[2] != "" {
		mm, err = strconv.Atoi(m[2])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid minute %q", m[2])
		}
	}
	switch m[3] {
	case "pm":
		if hh < 12 {
			hh += 12
		}
	case "am":
		if hh == 12 {
			hh = 0
		}
	}
	if hh > 23 {
		return 0, 0, fmt.Errorf("hour %d out of range", hh)
	}
	if mm > 59 {
		return 0, 0, fmt.Errorf("minute %d out of range", mm)
	}
	return hh, mm, nil
}

func offset(now time.Time, rawN, unit string) (time.Time, error) {
	n, err := strconv.Atoi(rawN)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid amount %q", rawN)
	}
	switch unit {
	case "day":
		return now.AddDate(0, 0, n), nil
	case "hour":
		d, err := scale(n, time.Hour)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	default:
		d, err := scale(n, time.Minute)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	}
}

func scale(n int, unit time.Duration) (time.Duration, error) {
	if n < 0 || int64(n) > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("amount %d out of range", n)
	}
	return time.Duration(n) * unit, nil
}
