// Package recurrence parses the RRULE subset chores use and enumerates the
// due times of a recurring chore.
package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Freq int

const (
	Daily Freq = iota
	Weekly
	Monthly
	Yearly
)

var freqNames = [...]string{Daily: "DAILY", Weekly: "WEEKLY", Monthly: "MONTHLY", Yearly: "YEARLY"}

func (f Freq) String() string {
	if int(f) < len(freqNames) {
		return freqNames[f]
	}
	return "UNKNOWN"
}

var weekdayCodes = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

const untilLayout = "20060102T150405Z"

type Rule struct {
	Freq       Freq
	Interval   int            // periods between occurrences, at least 1
	ByDay      []time.Weekday // WEEKLY only; empty means the anchor's weekday
	ByMonthDay int            // MONTHLY only; 0 means the anchor's day
	Count      int            // 0 means unbounded
	Until      *time.Time
}

type fieldParser func(r *Rule, val string) error

var fieldParsers = map[string]fieldParser{
	"FREQ": func(r *Rule, val string) error {
		for f, name := range freqNames {
			if name == val {
				r.Freq = Freq(f)
				return nil
			}
		}
		return fmt.Errorf("unknown frequency %q", val)
	},
	"INTERVAL": func(r *Rule, val string) error {
		n, err := strconv.Atoi(val)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid interval %q", val)
		}
		r.Interval = n
		return nil
	},
	"BYDAY": func(r *Rule, val string) error {
		for _, code := range strings.Split(val, ",") {
			wd, ok := weekdayFromCode(strings.TrimSpace(code))
			if !ok {
				return fmt.Errorf("unknown day %q", code)
			}
			r.ByDay = append(r.ByDay, wd)
		}
		return nil
	},
	"BYMONTHDAY": func(r *Rule, val string) error {
		n, err := strconv.Atoi(val)
		if err != nil || n < 1 || n > 31 {
			return fmt.Errorf("invalid BYMONTHDAY %q", val)
		}
		r.ByMonthDay = n
		return nil
	},
	"COUNT": func(r *Rule, val string) error {
		n, err := strconv.Atoi(val)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count %q", val)
		}
		r.Count = n
		return nil
	},
	"UNTIL": func(r *Rule, val string) error {
		t, err := time.Parse(untilLayout, val)
		if err != nil {
			if t, err = time.Parse("20060102", val); err != nil {
				return fmt.Errorf("invalid UNTIL %q", val)
			}
			// A bare date includes the whole day.
			t = t.Add(24*time.Hour - time.Second)
		}
		r.Until = &t
		return nil
	},
}

func weekdayFromCode(code string) (time.Weekday, bool) {
	for i, c := range weekdayCodes {
		if c == code {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

// Parse reads a rule such as "FREQ=WEEKLY;BYDAY=MO,WE;INTERVAL=2".
func Parse(s string) (Rule, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "RRULE:")
	if s == "" {
		return Rule{}, fmt.Errorf("empty rule")
	}

	r := Rule{Interval: 1}
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ";") {
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return Rule{}, fmt.Errorf("invalid rule part %q", part)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		parse, known := fieldParsers[key]
		if !known {
			return Rule{}, fmt.Errorf("unsupported rule key %q", key)
		}
		if seen[key] {
			return Rule{}, fmt.Errorf("duplicate rule key %q", key)
		}
		seen[key] = true
		if err := parse(&r, strings.ToUpper(strings.TrimSpace(val))); err != nil {
			return Rule{}, err
		}
	}

	if !seen["FREQ"] {
		return Rule{}, fmt.Errorf("FREQ is required")
	}
	if len(r.ByDay) > 0 && r.Freq != Weekly {
		return Rule{}, fmt.Errorf("BYDAY requires FREQ=WEEKLY")
	}
	if r.ByMonthDay > 0 && r.Freq != Monthly {
		return Rule{}, fmt.Errorf("BYMONTHDAY requires FREQ=MONTHLY")
	}
	if r.Count > 0 && r.Until != nil {
		return Rule{}, fmt.Errorf("COUNT and UNTIL are mutually exclusive")
	}

	// Occurrences within a week are generated Monday first.
	sort.Slice(r.ByDay, func(i, j int) bool { return mondayOffset(r.ByDay[i]) < mondayOffset(r.ByDay[j]) })
	return r, nil
}

// String renders the rule in canonical field order.
func (r Rule) String() string {
	parts := []string{"FREQ=" + r.Freq.String()}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if len(r.ByDay) > 0 {
		codes := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			codes[i] = weekdayCodes[d]
		}
		parts = append(parts, "BYDAY="+strings.Join(codes, ","))
	}
	if r.ByMonthDay > 0 {
		parts = append(parts, "BYMONTHDAY="+strconv.Itoa(r.ByMonthDay))
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	if r.Until != nil {
		parts = append(parts, "UNTIL="+r.Until.UTC().Format(untilLayout))
	}
	return strings.Join(parts, ";")
}

func mondayOffset(d time.Weekday) int {
	return (int(d) + 6) % 7
}
