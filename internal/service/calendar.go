package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"agendazap/internal/domain"
	"agendazap/internal/models"

	"github.com/rs/zerolog"
)

// Calendar is the weekly availability of professionals.
type Calendar struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewCalendar(repo domain.Repository, logger *zerolog.Logger) *Calendar {
	return &Calendar{repo: repo, logger: logger}
}

// WindowsFor returns the configured start times, empty when the weekday has
// no window.
func (c *Calendar) WindowsFor(ctx context.Context, professionalID int64, weekday models.Weekday) ([]string, error) {
	w, err := c.repo.GetWindow(ctx, professionalID, weekday)
	if errors.Is(err, domain.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return w.Times, nil
}

// SetWindow replaces the window for (professional, weekday). Every time must
// be a valid HH:MM; one bad value rejects the whole write.
func (c *Calendar) SetWindow(ctx context.Context, professionalID int64, weekday models.Weekday, times []string) error {
	if !weekday.Valid() {
		return fmt.Errorf("%w: unknown weekday %q", domain.ErrValidation, weekday)
	}

	normalized, err := normalizeTimes(times)
	if err != nil {
		return err
	}

	if err := c.repo.ReplaceWindow(ctx, professionalID, weekday, normalized); err != nil {
		return err
	}

	c.logger.Info().
		Int64("professional_id", professionalID).
		Str("weekday", string(weekday)).
		Strs("times", normalized).
		Msg("Availability window replaced")
	return nil
}

// Weekly returns every configured window of the professional.
func (c *Calendar) Weekly(ctx context.Context, professionalID int64) (map[models.Weekday][]string, error) {
	windows, err := c.repo.GetWindows(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	week := make(map[models.Weekday][]string, len(windows))
	for _, w := range windows {
		week[w.Weekday] = w.Times
	}
	return week, nil
}

// normalizeTimes validates, dedupes and sorts HH:MM values.
func normalizeTimes(times []string) ([]string, error) {
	seen := make(map[int]bool, len(times))
	parsed := make([]models.TimeOfDay, 0, len(times))
	for _, raw := range times {
		tod, err := models.ParseTimeOfDay(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		if seen[tod.Minutes()] {
			continue
		}
		seen[tod.Minutes()] = true
		parsed = append(parsed, tod)
	}

	sort.Slice(parsed, func(i, j int) bool { return parsed[i].Minutes() < parsed[j].Minutes() })

	out := make([]string, len(parsed))
	for i, tod := range parsed {
		out[i] = tod.String()
	}
	return out, nil
}
