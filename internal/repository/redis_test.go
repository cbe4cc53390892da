package repository

import (
	"context"
	"testing"
	"time"

	"agendazap/internal/config"
	"agendazap/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStateRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()

	repo := NewRedisStateRepository(client, time.Hour)
	ctx := context.Background()
	key := models.ConversationKey(7, "5511988887777")
	slot := time.Date(2030, 6, 10, 14, 0, 0, 0, time.UTC)

	t.Run("SetAndGetProposal", func(t *testing.T) {
		p := &models.Proposal{
			TenantID:         7,
			Phone:            "5511988887777",
			ProfessionalID:   3,
			ProfessionalName: "Ana",
			Slot:             slot,
			Request:          models.CheckRequest{ProfessionalName: "ana", DateOrWeekday: "segunda", TurnPreference: "manhã"},
			ExpiresAt:        time.Now().Add(30 * time.Minute),
		}
		require.NoError(t, repo.SetProposal(ctx, key, p))

		got, err := repo.GetProposal(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(3), got.ProfessionalID)
		assert.True(t, got.Slot.Equal(slot))
		assert.Equal(t, "segunda", got.Request.DateOrWeekday)

		ttl := s.TTL(proposalKey(key))
		assert.True(t, ttl > 29*time.Minute && ttl <= 30*time.Minute, "ttl follows ExpiresAt, got %s", ttl)
	})

	t.Run("TakeProposalIsGetDel", func(t *testing.T) {
		got, err := repo.TakeProposal(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.False(t, s.Exists(proposalKey(key)))

		got, err = repo.TakeProposal(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ProposalExpires", func(t *testing.T) {
		p := &models.Proposal{ExpiresAt: time.Now().Add(time.Minute)}
		require.NoError(t, repo.SetProposal(ctx, key, p))
		s.FastForward(2 * time.Minute)

		got, err := repo.GetProposal(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("AlreadyExpiredProposalIsNotStored", func(t *testing.T) {
		p := &models.Proposal{ExpiresAt: time.Now().Add(-time.Minute)}
		require.NoError(t, repo.SetProposal(ctx, key, p))
		assert.False(t, s.Exists(proposalKey(key)))
	})

	t.Run("Sessions", func(t *testing.T) {
		sess := &models.Session{Key: key, State: "proposed", Exchange: 2}
		require.NoError(t, repo.SetSession(ctx, sess))

		got, err := repo.GetSession(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "proposed", got.State)

		require.NoError(t, repo.ClearSession(ctx, key))
		got, err = repo.GetSession(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		limit := 2
		window := time.Second

		allowed, err := repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(window + time.Millisecond)

		allowed, err = repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisStateRepository(nil, time.Hour)
		_, err := repo.GetProposal(ctx, key)
		assert.ErrorIs(t, err, errNilClient)
		_, err = repo.TakeProposal(ctx, key)
		assert.Error(t, err)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})

	t.Run("PingDown", func(t *testing.T) {
		down := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
		defer down.Close()
		assert.Error(t, Ping(ctx, down))
	})
}
