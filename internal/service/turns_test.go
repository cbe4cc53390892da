package service

import (
	"testing"
	"time"

	"agendazap/internal/config"
	"agendazap/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTurnBands(t *testing.T) {
	bands, err := NewTurnBands(config.TurnsConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTurnBands, bands)

	bands, err = NewTurnBands(config.TurnsConfig{AfternoonStart: "13:00", EveningStart: "19:30"})
	require.NoError(t, err)
	assert.Equal(t, models.TurnAfternoon, bands.TurnOf(monday(19, 0)))
	assert.Equal(t, models.TurnEvening, bands.TurnOf(monday(19, 30)))

	_, err = NewTurnBands(config.TurnsConfig{AfternoonStart: "18:00", EveningStart: "12:00"})
	assert.Error(t, err)

	_, err = NewTurnBands(config.TurnsConfig{AfternoonStart: "1pm"})
	assert.Error(t, err)
}

func TestTurnBands_TurnOf(t *testing.T) {
	b := DefaultTurnBands
	assert.Equal(t, models.TurnMorning, b.TurnOf(monday(11, 59)))
	assert.Equal(t, models.TurnAfternoon, b.TurnOf(monday(12, 0)))
	assert.Equal(t, models.TurnAfternoon, b.TurnOf(monday(17, 59)))
	assert.Equal(t, models.TurnEvening, b.TurnOf(monday(18, 0)))
}

func TestRankByTurn(t *testing.T) {
	b := DefaultTurnBands
	slots := []time.Time{monday(9, 0), monday(10, 0), monday(14, 0), monday(19, 0)}
	at := func(h, m int) *models.TimeOfDay { return &models.TimeOfDay{Hour: h, Minute: m} }

	tests := []struct {
		name    string
		slots   []time.Time
		turn    models.Turn
		exact   *models.TimeOfDay
		want    time.Time
		offTurn bool
	}{
		{"no preference takes earliest", slots, models.TurnAny, nil, monday(9, 0), false},
		{"morning", slots, models.TurnMorning, nil, monday(9, 0), false},
		{"afternoon", slots, models.TurnAfternoon, nil, monday(14, 0), false},
		{"evening", slots, models.TurnEvening, nil, monday(19, 0), false},
		{"exact beats turn", slots, models.TurnMorning, at(14, 0), monday(14, 0), false},
		{"missed exact falls back to its turn", slots, models.TurnAny, at(15, 0), monday(14, 0), false},
		{"missed exact with turn", slots, models.TurnEvening, at(20, 0), monday(19, 0), false},
		{"turn without slots falls back to any", slots[:2], models.TurnAfternoon, nil, monday(9, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, offTurn, ok := b.RankByTurn(tt.slots, tt.turn, tt.exact)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, tt.offTurn, offTurn)
		})
	}

	_, _, ok := b.RankByTurn(nil, models.TurnMorning, nil)
	assert.False(t, ok)
}
