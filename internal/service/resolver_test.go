package service

import (
	"testing"
	"time"

	"agendazap/internal/domain"
	"agendazap/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_FreeSlots(t *testing.T) {
	f := newFixture(t)
	f.window(t, f.ana, models.Monday, "10:00", "09:00")

	t.Run("ascending even if configured unsorted", func(t *testing.T) {
		slots, err := f.resolver.FreeSlots(f.ctx, f.ana.ID, monday(0, 0))
		require.NoError(t, err)
		require.Len(t, slots, 2)
		assert.True(t, monday(9, 0).Equal(slots[0]))
		assert.True(t, monday(10, 0).Equal(slots[1]))
	})

	t.Run("no window means no slots", func(t *testing.T) {
		slots, err := f.resolver.FreeSlots(f.ctx, f.ana.ID, monday(0, 0).AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Empty(t, slots)
	})

	t.Run("today only after now", func(t *testing.T) {
		f.now = monday(9, 30)
		defer func() { f.now = monday(7, 0) }()

		slots, err := f.resolver.FreeSlots(f.ctx, f.ana.ID, monday(0, 0))
		require.NoError(t, err)
		require.Len(t, slots, 1)
		assert.True(t, monday(10, 0).Equal(slots[0]))
	})

	t.Run("a slot starting exactly now is gone", func(t *testing.T) {
		f.now = monday(9, 0)
		defer func() { f.now = monday(7, 0) }()

		slots, err := f.resolver.FreeSlots(f.ctx, f.ana.ID, monday(0, 0))
		require.NoError(t, err)
		require.Len(t, slots, 1)
		assert.True(t, monday(10, 0).Equal(slots[0]))
	})

	t.Run("future date lists everything", func(t *testing.T) {
		f.now = monday(23, 0)
		defer func() { f.now = monday(7, 0) }()

		slots, err := f.resolver.FreeSlots(f.ctx, f.ana.ID, monday(0, 0).AddDate(0, 0, 7))
		require.NoError(t, err)
		assert.Len(t, slots, 2)
	})
}

// Scenario A: Monday window 09:00 and 10:00, nothing booked, Monday morning
// yields 09:00.
func TestResolver_ScenarioA(t *testing.T) {
	f := newFixture(t)
	f.window(t, f.ana, models.Monday, "09:00", "10:00")

	slots, err := f.resolver.FreeSlots(f.ctx, f.ana.ID, monday(0, 0))
	require.NoError(t, err)

	got, offTurn, ok := DefaultTurnBands.RankByTurn(slots, models.TurnMorning, nil)
	require.True(t, ok)
	assert.False(t, offTurn)
	assert.True(t, monday(9, 0).Equal(got))
}

// Scenario B: with 09:00 booked only 10:00 is free.
func TestResolver_ScenarioB(t *testing.T) {
	f := newFixture(t)
	f.window(t, f.ana, models.Monday, "09:00", "10:00")
	f.book(t, f.ana, "5511911112222", monday(9, 0))

	slots, err := f.resolver.FreeSlots(f.ctx, f.ana.ID, monday(0, 0))
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.True(t, monday(10, 0).Equal(slots[0]))
}

// Scenario E: a weekday already behind us rolls to next week.
func TestResolver_ScenarioE(t *testing.T) {
	f := newFixture(t)
	f.window(t, f.ana, models.Friday, "09:00")
	f.now = monday(7, 0).AddDate(0, 0, 5) // Saturday 2030-01-12

	lastFriday := monday(0, 0).AddDate(0, 0, 4)
	slots, err := f.resolver.FreeSlots(f.ctx, f.ana.ID, lastFriday)
	require.NoError(t, err)
	require.Len(t, slots, 1)

	want := time.Date(2030, time.January, 18, 9, 0, 0, 0, brt)
	assert.True(t, want.Equal(slots[0]), "got %s", slots[0])
}

func TestResolver_RollForward(t *testing.T) {
	f := newFixture(t)
	f.now = time.Date(2030, time.January, 9, 15, 0, 0, 0, brt) // Wednesday

	assert.True(t, time.Date(2030, time.January, 9, 0, 0, 0, 0, brt).Equal(f.resolver.RollForward(f.now)))
	assert.True(t, time.Date(2030, time.January, 20, 0, 0, 0, 0, brt).Equal(
		f.resolver.RollForward(time.Date(2030, time.January, 20, 0, 0, 0, 0, brt))))
	// Monday two weeks ago -> next Monday
	assert.True(t, time.Date(2030, time.January, 14, 0, 0, 0, 0, brt).Equal(
		f.resolver.RollForward(time.Date(2029, time.December, 31, 0, 0, 0, 0, brt))))
}

func TestResolver_ResolveDate(t *testing.T) {
	f := newFixture(t)
	f.now = time.Date(2030, time.January, 9, 15, 0, 0, 0, brt) // Wednesday
	day := func(d int) time.Time { return time.Date(2030, time.January, d, 0, 0, 0, 0, brt) }

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2030-01-15", day(15)},
		{"15/01/2030", day(15)},
		{"15/01", day(15)},
		{"hoje", day(9)},
		{"Amanhã", day(10)},
		{"tomorrow", day(10)},
		{"quarta-feira", day(9)},
		{"Sexta", day(11)},
		{"segunda feira", day(14)},
		{"tuesday", day(15)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := f.resolver.ResolveDate(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	// a past DD/MM means next year
	got, err := f.resolver.ResolveDate("02/01")
	require.NoError(t, err)
	assert.True(t, time.Date(2031, time.January, 2, 0, 0, 0, 0, brt).Equal(got))

	for _, bad := range []string{"", "someday", "31/02/2030"} {
		_, err := f.resolver.ResolveDate(bad)
		assert.ErrorIs(t, err, domain.ErrValidation, bad)
	}
}

// Free slots are always a subset of the window and never booked.
func TestResolver_SlotsComeFromWindowAndSkipBookings(t *testing.T) {
	f := newFixture(t)
	window := []string{"08:00", "08:30", "11:15", "13:00", "18:45"}
	f.window(t, f.ana, models.Monday, window...)
	f.book(t, f.ana, "5511911112222", monday(8, 30))
	f.book(t, f.ana, "5511933334444", monday(13, 0))

	slots, err := f.resolver.FreeSlots(f.ctx, f.ana.ID, monday(0, 0))
	require.NoError(t, err)
	require.Len(t, slots, 3)

	for _, s := range slots {
		assert.Contains(t, window, models.ClockOf(s).String())
		assert.False(t, s.Equal(monday(8, 30)))
		assert.False(t, s.Equal(monday(13, 0)))
	}
}
