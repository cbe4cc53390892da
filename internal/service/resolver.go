package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"agendazap/internal/domain"
	"agendazap/internal/models"
	"agendazap/internal/textnorm"

	"github.com/rs/zerolog"
)

// Resolver turns the weekly calendar and the booked appointments into free
// slots on a concrete date.
type Resolver struct {
	calendar *Calendar
	repo     domain.Repository
	loc      *time.Location
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewResolver(calendar *Calendar, repo domain.Repository, loc *time.Location, logger *zerolog.Logger) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{
		calendar: calendar,
		repo:     repo,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
}

// Location is the timezone slots are composed in.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Today returns local midnight of the current day.
func (r *Resolver) Today() time.Time {
	return startOfDay(r.now().In(r.loc))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// RollForward returns date's day when it is today or later, otherwise the
// first day from today on that falls on the same weekday.
func (r *Resolver) RollForward(date time.Time) time.Time {
	day := startOfDay(date.In(r.loc))
	today := r.Today()
	if !day.Before(today) {
		return day
	}
	diff := (int(day.Weekday()) - int(today.Weekday()) + 7) % 7
	return today.AddDate(0, 0, diff)
}

// ResolveDate parses the date part of a request: YYYY-MM-DD, DD/MM/YYYY,
// DD/MM, today/tomorrow words or a weekday name. A weekday means its next
// occurrence, today included.
func (r *Resolver) ResolveDate(dateOrWeekday string) (time.Time, error) {
	raw := strings.TrimSpace(dateOrWeekday)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: date or weekday is required", domain.ErrValidation)
	}

	today := r.Today()
	switch textnorm.Normalize(raw) {
	case "hoje", "today":
		return today, nil
	case "amanha", "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "depois de amanha":
		return today.AddDate(0, 0, 2), nil
	}

	for _, layout := range []string{models.DateLayout, "02/01/2006", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, raw, r.loc); err == nil {
			return startOfDay(t.In(r.loc)), nil
		}
	}

	if t, err := time.ParseInLocation("02/01", raw, r.loc); err == nil {
		d := time.Date(today.Year(), t.Month(), t.Day(), 0, 0, 0, 0, r.loc)
		if d.Before(today) {
			d = d.AddDate(1, 0, 0)
		}
		return d, nil
	}

	if w, err := models.ParseWeekday(raw); err == nil {
		diff := (int(w.Std()) - int(today.Weekday()) + 7) % 7
		return today.AddDate(0, 0, diff), nil
	}

	return time.Time{}, fmt.Errorf("%w: cannot understand date %q", domain.ErrValidation, raw)
}

// FreeSlots lists the professional's unbooked start times on date in
// ascending order. Only instants after now are returned, and a past date is
// rolled forward to the next occurrence of its weekday first.
func (r *Resolver) FreeSlots(ctx context.Context, professionalID int64, date time.Time) ([]time.Time, error) {
	day := r.RollForward(date)

	times, err := r.calendar.WindowsFor(ctx, professionalID, models.WeekdayOf(day))
	if err != nil {
		return nil, err
	}
	if len(times) == 0 {
		return []time.Time{}, nil
	}

	booked, err := r.repo.GetAppointmentsByProfessional(ctx, professionalID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	occupied := make(map[string]bool, len(booked))
	for _, a := range booked {
		occupied[models.SlotKey(a.ScheduledAt)] = true
	}

	now := r.now()
	seen := make(map[string]bool, len(times))
	free := make([]time.Time, 0, len(times))
	for _, raw := range times {
		tod, err := models.ParseTimeOfDay(raw)
		if err != nil {
			// windows are validated on write; a bad row is skipped, not fatal
			r.logger.Warn().Err(err).Int64("professional_id", professionalID).Msg("Skipping malformed window time")
			continue
		}
		ts := tod.On(day)
		key := models.SlotKey(ts)
		if seen[key] || occupied[key] || !ts.After(now) {
			continue
		}
		seen[key] = true
		free = append(free, ts)
	}

	sort.Slice(free, func(i, j int) bool { return free[i].Before(free[j]) })
	return free, nil
}
