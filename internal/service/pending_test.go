package service

import (
	"sync"
	"testing"
	"time"

	"agendazap/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPending_ProposeOverwrites(t *testing.T) {
	f := newFixture(t)
	key := models.ConversationKey(f.tenant.ID, "5511988887777")

	require.NoError(t, f.pending.Propose(f.ctx, key, &models.Proposal{ProfessionalID: f.ana.ID, Slot: monday(9, 0)}))
	require.NoError(t, f.pending.Propose(f.ctx, key, &models.Proposal{ProfessionalID: f.ana.ID, Slot: monday(10, 0)}))

	p, err := f.pending.Peek(f.ctx, key)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, monday(10, 0).Equal(p.Slot))
	assert.True(t, f.now.Add(30*time.Minute).Equal(p.ExpiresAt))
}

func TestPending_ConsumeOnce(t *testing.T) {
	f := newFixture(t)
	key := models.ConversationKey(f.tenant.ID, "5511988887777")
	require.NoError(t, f.pending.Propose(f.ctx, key, &models.Proposal{Slot: monday(9, 0)}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	got := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := f.pending.Consume(f.ctx, key)
			assert.NoError(t, err)
			if p != nil {
				mu.Lock()
				got++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, got)

	p, err := f.pending.Consume(f.ctx, key)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPending_Expiry(t *testing.T) {
	f := newFixture(t)
	key := models.ConversationKey(f.tenant.ID, "5511988887777")
	require.NoError(t, f.pending.Propose(f.ctx, key, &models.Proposal{Slot: monday(9, 0)}))

	f.now = f.now.Add(31 * time.Minute)

	p, err := f.pending.Peek(f.ctx, key)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = f.pending.Consume(f.ctx, key)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPending_Discard(t *testing.T) {
	f := newFixture(t)
	key := models.ConversationKey(f.tenant.ID, "5511988887777")
	require.NoError(t, f.pending.Propose(f.ctx, key, &models.Proposal{Slot: monday(9, 0)}))
	require.NoError(t, f.pending.Discard(f.ctx, key))

	p, err := f.pending.Peek(f.ctx, key)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPending_MatchesConfirmationIntent(t *testing.T) {
	f := newFixture(t)

	for _, yes := range []string{"Sim", "sim, pode ser", "OK!", "Pode agendar por favor", "claro", "CONFIRMO"} {
		assert.True(t, f.pending.MatchesConfirmationIntent(yes), yes)
	}
	for _, no := range []string{"não", "book it", "simples", "pode ser amanhã?", ""} {
		assert.False(t, f.pending.MatchesConfirmationIntent(no), no)
	}
}
