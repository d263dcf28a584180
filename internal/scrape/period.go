package scrape

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type periodShape int

const (
	weekEnding periodShape = iota
	weekStarting
	calendarMonth
	daysFrom
	daysTo
)

type periodSpec struct {
	shape   periodShape
	weekday time.Weekday
	days    int
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(s)
	if wd, ok := weekdays[s]; ok {
		return wd, true
	}
	if len(s) == 3 {
		for name, wd := range weekdays {
			if strings.HasPrefix(name, s) {
				return wd, true
			}
		}
	}
	return 0, false
}

func parsePeriodType(pt string) (periodSpec, error) {
	pt = strings.TrimSpace(pt)
	if strings.EqualFold(pt, "month") {
		return periodSpec{shape: calendarMonth}, nil
	}
	if n, err := strconv.Atoi(pt); err == nil && n != 0 {
		if n > 0 {
			return periodSpec{shape: daysFrom, days: n}, nil
		}
		return periodSpec{shape: daysTo, days: -n}, nil
	}
	if wd, ok := parseWeekday(strings.TrimPrefix(pt, "-")); ok {
		if strings.HasPrefix(pt, "-") {
			return periodSpec{shape: weekStarting, weekday: wd}, nil
		}
		return periodSpec{shape: weekEnding, weekday: wd}, nil
	}
	return periodSpec{}, fmt.Errorf("invalid period type %q", pt)
}

// PeriodBounds returns the first and last day of the period of the given
// type that contains d. A weekday names the last day of a week, a negated
// weekday its first day; "Month" is the calendar month; "N" is the N days
// starting at d and "-N" the N days ending at d.
func PeriodBounds(periodType string, d time.Time) (from, to time.Time, err error) {
	spec, err := parsePeriodType(periodType)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, m, day := d.Date()
	d = time.Date(y, m, day, 0, 0, 0, 0, time.UTC)

	switch spec.shape {
	case weekEnding:
		to = d.AddDate(0, 0, (int(spec.weekday)-int(d.Weekday())+7)%7)
		return to.AddDate(0, 0, -6), to, nil
	case weekStarting:
		from = d.AddDate(0, 0, -((int(d.Weekday()) - int(spec.weekday) + 7) % 7))
		return from, from.AddDate(0, 0, 6), nil
	case calendarMonth:
		from = time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, -1), nil
	case daysFrom:
		return d, d.AddDate(0, 0, spec.days-1), nil
	default:
		return d.AddDate(0, 0, -(spec.days - 1)), d, nil
	}
}
