package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"agendazap/internal/textnorm"
)

// Turn is a coarse part-of-day preference. The zero value means no
// preference.
type Turn string

const (
	TurnAny       Turn = ""
	TurnMorning   Turn = "morning"
	TurnAfternoon Turn = "afternoon"
	TurnEvening   Turn = "evening"
)

var turnAliases = map[string]Turn{
	"":          TurnAny,
	"any":       TurnAny,
	"qualquer":  TurnAny,
	"morning":   TurnMorning,
	"manha":     TurnMorning,
	"afternoon": TurnAfternoon,
	"tarde":     TurnAfternoon,
	"evening":   TurnEvening,
	"night":     TurnEvening,
	"noite":     TurnEvening,
}

// ParseTurn accepts English and Portuguese names.
func ParseTurn(s string) (Turn, error) {
	if t, ok := turnAliases[textnorm.Normalize(s)]; ok {
		return t, nil
	}
	return TurnAny, fmt.Errorf("unknown turn %q", s)
}

// TimeOfDay is a wall-clock start time within a day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses a strict 24-hour HH:MM value.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if len(s) != 5 || s[2] != ':' {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(s[3:])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// On composes the timestamp for this time of day on date's calendar day.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, date.Location())
}

// ClockOf returns the time of day of ts in ts's location.
func ClockOf(ts time.Time) TimeOfDay {
	return TimeOfDay{Hour: ts.Hour(), Minute: ts.Minute()}
}

// SlotKey is the minute-granular identity of a booking instant.
func SlotKey(ts time.Time) string {
	return ts.UTC().Truncate(time.Minute).Format(SlotKeyLayout)
}
