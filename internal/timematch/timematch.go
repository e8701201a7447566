// Package timematch parses the human-entered time-of-day and calendar-date
// strings stored on care records and tests them against the scheduler clock.
//
// Matching is minute-granular and uses the location of the time value passed
// in, so callers convert "now" to the configured scheduler timezone first.
// Nothing here returns an error: unparsable input simply never matches.
package timematch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// timeOfDayPattern accepts "9:00", "09:00", "9:00 AM", "9:00pm".
var timeOfDayPattern = regexp.MustCompile(`(?i)^(\d{1,2}):(\d{2})(?:\s*(AM|PM))?$`)

// TimeOfDay is a clock position with minute resolution.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses a 24-hour "H:MM"/"HH:MM" string with an optional
// AM/PM suffix. Returns false for anything it cannot place on a clock.
func ParseTimeOfDay(text string) (TimeOfDay, bool) {
	m := timeOfDayPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return TimeOfDay{}, false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return TimeOfDay{}, false
	}
	minute, err := strconv.Atoi(m[2])
	if err != nil {
		return TimeOfDay{}, false
	}

	switch strings.ToUpper(m[3]) {
	case "PM":
		if hour < 12 {
			hour += 12
		}
	case "AM":
		if hour == 12 {
			hour = 0
		}
	}

	if hour > 23 || minute > 59 {
		return TimeOfDay{}, false
	}
	return TimeOfDay{Hour: hour, Minute: minute}, true
}

// Matches reports whether now falls inside the target minute.
func (t TimeOfDay) Matches(now time.Time) bool {
	return now.Hour() == t.Hour && now.Minute() == t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// --------------------------------------------------------------------------
// Calendar dates
// --------------------------------------------------------------------------

const dateLayout = "2006-01-02"

// Date is a calendar day without a clock or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses "YYYY-MM-DD". Longer ISO strings such as
// "2025-03-01T10:00:00Z" are cut to their date part first.
func ParseDate(text string) (Date, bool) {
	text = strings.TrimSpace(text)
	if len(text) > len(dateLayout) {
		text = text[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, text)
	if err != nil {
		return Date{}, false
	}
	return DateOf(t), true
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return other.Before(d)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// OccursOn reports whether a record with the given date text is scheduled for
// now's calendar day. An empty date repeats every day; an unparsable one never
// occurs.
func OccursOn(dateText string, now time.Time) bool {
	if strings.TrimSpace(dateText) == "" {
		return true
	}
	d, ok := ParseDate(dateText)
	if !ok {
		return false
	}
	return d == DateOf(now)
}

// --------------------------------------------------------------------------
// Period keys
// --------------------------------------------------------------------------

// MinuteKey identifies the wall-clock minute containing now.
func MinuteKey(now time.Time) string {
	return now.Format("2006-01-02T15:04")
}

// DayKey identifies the calendar day containing now.
func DayKey(now time.Time) string {
	return now.Format(dateLayout)
}
