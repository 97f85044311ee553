package domain

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNotDeterminable means no next service could be inferred for a venue.
// Callers fall back to DefaultNextService instead of surfacing it to users.
var ErrNotDeterminable = errors.New("next service time not determinable")

const (
	defaultServiceHour = 10
	vigilMassHour      = 17
)

// serviceTimeRe matches the first clock time in a schedule, e.g. "10:30 AM",
// "9:00am", "5:15 p.m.".
var serviceTimeRe = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})\s*(a\.?m\.?|p\.?m\.?)?`)

type holiday struct {
	name   string
	hour   int
	minute int
	match  func(time.Time) bool
}

// holidays are checked in order against the reference date.
var holidays = []holiday{
	{name: "christmas", hour: 10, match: func(t time.Time) bool { return t.Month() == time.December && t.Day() == 25 }},
	{name: "new_year", hour: 10, minute: 30, match: func(t time.Time) bool { return t.Month() == time.January && t.Day() == 1 }},
	{name: "thanksgiving", hour: 9, match: isThanksgiving},
	// Fixed window approximation of Easter Sunday.
	{name: "easter", hour: 7, match: func(t time.Time) bool { return t.Month() == time.April && t.Day() <= 22 }},
}

// PredictNextService returns the next concrete service start for a venue,
// relative to ref and in ref's location.
func PredictNextService(venue Venue, ref time.Time) (time.Time, error) {
	if h, ok := holidayOn(ref); ok {
		return atClock(ref, h.hour, h.minute), nil
	}

	if strings.EqualFold(strings.TrimSpace(venue.Category), "catholic") && ref.Weekday() == time.Saturday {
		return atClock(ref, vigilMassHour, 0), nil
	}

	if strings.TrimSpace(venue.Schedule) == "" {
		return time.Time{}, ErrNotDeterminable
	}

	hour, minute := parseServiceClock(venue.Schedule)
	return atClock(nextSunday(ref), hour, minute), nil
}

// DefaultNextService is the documented fallback when a venue's next service is
// not determinable: 10:00 on the next Sunday.
func DefaultNextService(ref time.Time) time.Time {
	return atClock(nextSunday(ref), defaultServiceHour, 0)
}

// HolidayName returns the holiday matched on ref's date, or "" if none.
func HolidayName(ref time.Time) string {
	if h, ok := holidayOn(ref); ok {
		return h.name
	}
	return ""
}

func holidayOn(ref time.Time) (holiday, bool) {
	for _, h := range holidays {
		if h.match(ref) {
			return h, true
		}
	}
	return holiday{}, false
}

// isThanksgiving reports whether t is the fourth Thursday of November.
func isThanksgiving(t time.Time) bool {
	return t.Month() == time.November && t.Weekday() == time.Thursday && (t.Day()-1)/7 == 3
}

// nextSunday returns ref's date advanced to the following Sunday. A Sunday
// reference advances a full week so the result is never earlier today.
func nextSunday(ref time.Time) time.Time {
	offset := (int(time.Sunday) - int(ref.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return ref.AddDate(0, 0, offset)
}

// parseServiceClock extracts the first H:MM token from schedule text.
// Unparseable text falls back to 10:00.
func parseServiceClock(schedule string) (int, int) {
	m := serviceTimeRe.FindStringSubmatch(schedule)
	if m == nil {
		return defaultServiceHour, 0
	}

	hour, errH := strconv.Atoi(m[1])
	minute, errM := strconv.Atoi(m[2])
	if errH != nil || errM != nil || hour > 23 || minute > 59 {
		return defaultServiceHour, 0
	}

	marker := strings.ToLower(strings.ReplaceAll(m[3], ".", ""))
	switch {
	case marker == "pm" && hour < 12:
		hour += 12
	case marker == "am" && hour == 12:
		hour = 0
	}
	return hour, minute
}

func atClock(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
