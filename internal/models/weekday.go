package models

import (
	"fmt"
	"strings"
	"time"

	"agendazap/internal/textnorm"
)

// Weekday is the locale-independent key under which availability windows
// are stored.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

// Weekdays lists the keys in calendar order starting on Monday.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var fromStdWeekday = map[time.Weekday]Weekday{
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
	time.Sunday:    Sunday,
}

var weekdayAliases = map[string]Weekday{
	"monday":    Monday,
	"segunda":   Monday,
	"seg":       Monday,
	"tuesday":   Tuesday,
	"terca":     Tuesday,
	"ter":       Tuesday,
	"wednesday": Wednesday,
	"quarta":    Wednesday,
	"qua":       Wednesday,
	"thursday":  Thursday,
	"quinta":    Thursday,
	"qui":       Thursday,
	"friday":    Friday,
	"sexta":     Friday,
	"sex":       Friday,
	"saturday":  Saturday,
	"sabado":    Saturday,
	"sab":       Saturday,
	"sunday":    Sunday,
	"domingo":   Sunday,
	"dom":       Sunday,
}

// WeekdayOf returns the key for t's day of week in t's location.
func WeekdayOf(t time.Time) Weekday {
	return fromStdWeekday[t.Weekday()]
}

// ParseWeekday accepts English keys and Portuguese names with or without
// accents and the "-feira" suffix.
func ParseWeekday(s string) (Weekday, error) {
	key := textnorm.Normalize(s)
	key = strings.TrimSuffix(key, "-feira")
	key = strings.TrimSuffix(key, " feira")
	if w, ok := weekdayAliases[key]; ok {
		return w, nil
	}
	return "", fmt.Errorf("unknown weekday %q", s)
}

// Std converts the key back to time.Weekday.
func (w Weekday) Std() time.Weekday {
	for std, key := range fromStdWeekday {
		if key == w {
			return std
		}
	}
	return time.Sunday
}

// Valid reports whether w is one of the seven keys.
func (w Weekday) Valid() bool {
	for _, key := range Weekdays {
		if key == w {
			return true
		}
	}
	return false
}
