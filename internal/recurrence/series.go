package recurrence

import "time"

// maxPeriods bounds enumeration of rules whose periods never produce an
// occurrence (BYMONTHDAY=31 with a 2-month interval starting in April, say).
const maxPeriods = 50000

// Series is a rule anchored at its first possible occurrence. The anchor
// also fixes the time of day of every occurrence.
type Series struct {
	rule   Rule
	anchor time.Time
}

func NewSeries(rule Rule, anchor time.Time) Series {
	if rule.Interval < 1 {
		rule.Interval = 1
	}
	return Series{rule: rule, anchor: anchor}
}

// Next returns the first occurrence strictly after t. ok is false when the
// series is exhausted by COUNT or UNTIL.
func (s Series) Next(after time.Time) (next time.Time, ok bool) {
	s.each(func(occ time.Time) bool {
		if occ.After(after) {
			next, ok = occ, true
			return false
		}
		return true
	})
	return next, ok
}

// NextOnOrAfter is Next for an inclusive bound.
func (s Series) NextOnOrAfter(t time.Time) (time.Time, bool) {
	return s.Next(t.Add(-time.Nanosecond))
}

// Between returns occurrences in [from, to).
func (s Series) Between(from, to time.Time) []time.Time {
	var out []time.Time
	s.each(func(occ time.Time) bool {
		if !occ.Before(to) {
			return false
		}
		if !occ.Before(from) {
			out = append(out, occ)
		}
		return true
	})
	return out
}

// each calls fn with occurrences in ascending order until fn returns false
// or the series ends.
func (s Series) each(fn func(time.Time) bool) {
	emitted := 0
	for period := 0; period < maxPeriods; period++ {
		for _, occ := range s.period(period) {
			if occ.Before(s.anchor) {
				continue
			}
			if s.rule.Until != nil && occ.After(*s.rule.Until) {
				return
			}
			if s.rule.Count > 0 && emitted >= s.rule.Count {
				return
			}
			emitted++
			if !fn(occ) {
				return
			}
		}
	}
}

// period returns the candidate occurrences of the n-th period, ascending.
func (s Series) period(n int) []time.Time {
	a := s.anchor
	step := n * s.rule.Interval
	at := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, a.Hour(), a.Minute(), a.Second(), 0, a.Location())
	}

	switch s.rule.Freq {
	case Daily:
		return []time.Time{a.AddDate(0, 0, step)}

	case Weekly:
		if len(s.rule.ByDay) == 0 {
			return []time.Time{a.AddDate(0, 0, 7*step)}
		}
		monday := a.AddDate(0, 0, 7*step-mondayOffset(a.Weekday()))
		out := make([]time.Time, 0, len(s.rule.ByDay))
		for _, wd := range s.rule.ByDay {
			out = append(out, at(monday.Year(), monday.Month(), monday.Day()+mondayOffset(wd)))
		}
		return out

	case Monthly:
		day := s.rule.ByMonthDay
		if day == 0 {
			day = a.Day()
		}
		first := time.Date(a.Year(), a.Month()+time.Month(step), 1, 0, 0, 0, 0, a.Location())
		if day > daysIn(first.Year(), first.Month()) {
			return nil
		}
		return []time.Time{at(first.Year(), first.Month(), day)}

	case Yearly:
		y := a.Year() + step
		if a.Day() > daysIn(y, a.Month()) {
			return nil // Feb 29 outside leap years
		}
		return []time.Time{at(y, a.Month(), a.Day())}
	}
	return nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
