package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"agendazap/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentAppointmentCreate(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	f := seed(t, db)
	ctx := context.Background()
	slot := time.Date(2030, 6, 10, 14, 0, 0, 0, time.UTC)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)
	start := make(chan struct{})

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			results <- db.CreateAppointment(ctx, newAppointment(f, slot))
		}()
	}

	close(start)
	wg.Wait()
	close(results)

	successCount := 0
	conflictCount := 0
	for res := range results {
		switch {
		case res == nil:
			successCount++
		case errors.Is(res, domain.ErrConflict):
			conflictCount++
		default:
			t.Errorf("unexpected error: %v", res)
		}
	}

	assert.Equal(t, 1, successCount, "exactly one booking should succeed")
	assert.Equal(t, numGoroutines-1, conflictCount)

	list, err := db.GetAppointmentsByProfessional(ctx, f.professional.ID, slot, slot.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
