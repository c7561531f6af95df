package timeparse

import (
	"errors"
	"testing"
	"time"
)

// Thursday.
var refNow = time.Date(2026, time.October, 15, 8, 0, 0, 0, time.UTC)

func day(d, hh, mm int) time.Time {
	return time.Date(2026, time.October, d, hh, mm, 0, 0, time.UTC)
}

func TestParseVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		rule Rule
		want time.Time
	}{
		{name: "past clock rolls to tomorrow", raw: "7:30 AM", rule: RuleClock, want: day(16, 7, 30)},
		{name: "future clock stays today", raw: "9pm", rule: RuleClock, want: day(15, 21, 0)},
		{name: "clock equal to now rolls", raw: "8:00", rule: RuleClock, want: day(16, 8, 0)},
		{name: "twelve without meridiem is noon", raw: "12", rule: RuleClock, want: day(15, 12, 0)},
		{name: "twelve am is midnight", raw: "12am", rule: RuleClock, want: day(16, 0, 0)},
		{name: "at prefix and compact minutes", raw: "at 1230", rule: RuleClock, want: day(15, 12, 30)},
		{name: "24h clock", raw: "19:05", rule: RuleClock, want: day(15, 19, 5)},
		{name: "tomorrow default hour", raw: "tomorrow", rule: RuleTomorrow, want: day(16, 9, 0)},
		{name: "tomorrow with clock", raw: "tomorrow at 6:15 pm", rule: RuleTomorrow, want: day(16, 18, 15)},
		{name: "tomorrow with early clock", raw: "tomorrow at 7", rule: RuleTomorrow, want: day(16, 7, 0)},
		{name: "in minutes", raw: "in 30 minutes", rule: RuleOffset, want: day(15, 8, 30)},
		{name: "in one minute", raw: "in 1 minute", rule: RuleOffset, want: day(15, 8, 1)},
		{name: "in hours", raw: "in 2 hours", rule: RuleOffset, want: day(15, 10, 0)},
		{name: "in days", raw: "in 3 days", rule: RuleOffset, want: day(18, 8, 0)},
		{name: "same weekday is next week", raw: "thursday", rule: RuleWeekday, want: day(22, 9, 0)},
		{name: "weekday with clock", raw: "next friday at 7pm", rule: RuleWeekday, want: day(16, 19, 0)},
		{name: "weekday wraps", raw: "monday", rule: RuleWeekday, want: day(19, 9, 0)},
		{name: "mixed case input", raw: "  Tomorrow AT 10AM ", rule: RuleTomorrow, want: day(16, 10, 0)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDetailed(tt.raw, refNow)
			if err != nil {
				t.Fatalf("ParseDetailed(%q) error: %v", tt.raw, err)
			}
			if got.Rule != tt.rule {
				t.Fatalf("Rule = %s, want %s", got.Rule, tt.rule)
			}
			if !got.At.Equal(tt.want) {
				t.Fatalf("At = %v, want %v", got.At, tt.want)
			}
		})
	}
}

func TestParseFailures(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "whenever you like", "13:75", "25:00", "tomorrow at 27", "friday at 9:99"} {
		_, err := Parse(raw, refNow)
		if err == nil {
			t.Fatalf("Parse(%q): expected error", raw)
		}
		if !errors.Is(err, ErrParse) {
			t.Fatalf("Parse(%q): error %v does not wrap ErrParse", raw, err)
		}
		var pe *ParseError
		if !errors.As(err, &pe) || pe.Input != raw {
			t.Fatalf("Parse(%q): expected ParseError with input, got %v", raw, err)
		}
	}
}

func TestPastClockRollsExactlyOneDay(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.October, 15, 18, 45, 0, 0, time.UTC)
	for h := 0; h <= 18; h++ {
		for _, m := range []int{0, 30, 45} {
			if h == 18 && m > 45 {
				continue
			}
			candidate := time.Date(2026, time.October, 15, h, m, 0, 0, time.UTC)
			raw := candidate.Format("15:04")
			got, err := Parse(raw, now)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", raw, err)
			}
			if d := got.Sub(candidate); d != 24*time.Hour {
				t.Fatalf("Parse(%q) = %v, want candidate + 24h (got +%v)", raw, got, d)
			}
		}
	}
}

func TestSameWeekdayIsSevenDaysAhead(t *testing.T) {
	t.Parallel()
	for i := 0; i < 7; i++ {
		now := refNow.AddDate(0, 0, i)
		name := map[time.Weekday]string{
			time.Sunday: "sunday", time.Monday: "monday", time.Tuesday: "tuesday",
			time.Wednesday: "wednesday", time.Thursday: "thursday", time.Friday: "friday",
			time.Saturday: "saturday",
		}[now.Weekday()]
		got, err := Parse(name+" at 8:00", now)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", name, err)
		}
		want := time.Date(now.Year(), now.Month(), now.Day(), 8, 0, 0, 0, time.UTC).AddDate(0, 0, 7)
		if !got.Equal(want) {
			t.Fatalf("Parse(%q) on %s = %v, want %v", name, now.Weekday(), got, want)
		}
	}
}

func TestParseSpan(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
		text string
	}{
		{raw: "5 minutes", want: 5 * time.Minute, text: "5 minutes"},
		{raw: "1 hour", want: time.Hour, text: "1 hour"},
		{raw: "set a timer for 30 seconds", want: 30 * time.Second, text: "30 seconds"},
		{raw: "2 Hours", want: 2 * time.Hour, text: "2 hours"},
	}
	for _, tt := range tests {
		sp, err := ParseSpan(tt.raw)
		if err != nil {
			t.Fatalf("ParseSpan(%q) error: %v", tt.raw, err)
		}
		if sp.Duration != tt.want {
			t.Fatalf("ParseSpan(%q) = %v, want %v", tt.raw, sp.Duration, tt.want)
		}
		if sp.String() != tt.text {
			t.Fatalf("String() = %q, want %q", sp.String(), tt.text)
		}
	}
	if _, err := ParseDuration("five minutes"); !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}
