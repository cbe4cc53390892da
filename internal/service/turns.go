package service

import (
	"fmt"
	"time"

	"agendazap/internal/config"
	"agendazap/internal/models"
)

// TurnBands splits the day into morning, afternoon and evening.
type TurnBands struct {
	AfternoonStart models.TimeOfDay
	EveningStart   models.TimeOfDay
}

// DefaultTurnBands: morning before 12:00, afternoon until 17:59, evening after.
var DefaultTurnBands = TurnBands{
	AfternoonStart: models.TimeOfDay{Hour: 12},
	EveningStart:   models.TimeOfDay{Hour: 18},
}

func NewTurnBands(cfg config.TurnsConfig) (TurnBands, error) {
	bands := DefaultTurnBands
	if cfg.AfternoonStart != "" {
		tod, err := models.ParseTimeOfDay(cfg.AfternoonStart)
		if err != nil {
			return TurnBands{}, fmt.Errorf("afternoon_start: %w", err)
		}
		bands.AfternoonStart = tod
	}
	if cfg.EveningStart != "" {
		tod, err := models.ParseTimeOfDay(cfg.EveningStart)
		if err != nil {
			return TurnBands{}, fmt.Errorf("evening_start: %w", err)
		}
		bands.EveningStart = tod
	}
	if bands.EveningStart.Minutes() <= bands.AfternoonStart.Minutes() {
		return TurnBands{}, fmt.Errorf("evening_start %s must be after afternoon_start %s", bands.EveningStart, bands.AfternoonStart)
	}
	return bands, nil
}

// TurnOf places ts in a band by its wall-clock time.
func (b TurnBands) TurnOf(ts time.Time) models.Turn {
	m := models.ClockOf(ts).Minutes()
	switch {
	case m < b.AfternoonStart.Minutes():
		return models.TurnMorning
	case m < b.EveningStart.Minutes():
		return models.TurnAfternoon
	default:
		return models.TurnEvening
	}
}

// RankByTurn picks one slot out of ascending slots. An exact time match wins,
// then the earliest slot in the requested turn, then the earliest slot of the
// day. offTurn is true when a turn was asked for and the pick lies outside it.
// ok is false only when slots is empty.
func (b TurnBands) RankByTurn(slots []time.Time, turn models.Turn, exact *models.TimeOfDay) (pick time.Time, offTurn, ok bool) {
	if len(slots) == 0 {
		return time.Time{}, false, false
	}

	if exact != nil {
		for _, s := range slots {
			if models.ClockOf(s) == *exact {
				return s, false, true
			}
		}
		// a missed exact time still says which part of the day is wanted
		if turn == models.TurnAny {
			turn = b.TurnOf(exact.On(slots[0]))
		}
	}

	if turn != models.TurnAny {
		for _, s := range slots {
			if b.TurnOf(s) == turn {
				return s, false, true
			}
		}
		return slots[0], true, true
	}

	return slots[0], false, true
}
