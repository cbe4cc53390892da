package repository

import (
	"context"
	"sync/atomic"
	"time"

	"agendazap/internal/domain"
	"agendazap/internal/models"

	"github.com/rs/zerolog"
)

// FailoverStateRepository serves from primary (Redis) and switches to the
// fallback (memory) on the first primary error. While down, the primary is
// retried at most once a minute.
type FailoverStateRepository struct {
	primary   domain.StateRepository
	fallback  domain.StateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	retryIn   time.Duration
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		retryIn:  time.Minute,
	}
}

func (r *FailoverStateRepository) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary state repository failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

// usePrimary reports whether the next call should go to the primary: always
// while it is up, and once per retry interval while it is down.
func (r *FailoverStateRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastCheck.Load())
	if time.Since(last) > r.retryIn {
		r.lastCheck.Store(time.Now().UnixNano())
		return true
	}
	return false
}

func (r *FailoverStateRepository) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary state repository recovered")
	}
}

// GetProposal consults both stores once the primary answers: a proposal
// written during an outage only exists in the fallback.
func (r *FailoverStateRepository) GetProposal(ctx context.Context, key string) (*models.Proposal, error) {
	if r.usePrimary() {
		p, err := r.primary.GetProposal(ctx, key)
		if err == nil {
			r.recovered()
			stale, ferr := r.fallback.GetProposal(ctx, key)
			if ferr != nil {
				return p, nil
			}
			return latest(p, stale), nil
		}
		r.markDown(err)
	}
	return r.fallback.GetProposal(ctx, key)
}

// SetProposal drops the fallback copy after a primary write so an older
// proposal cannot outlive its replacement.
func (r *FailoverStateRepository) SetProposal(ctx context.Context, key string, p *models.Proposal) error {
	if r.usePrimary() {
		err := r.primary.SetProposal(ctx, key, p)
		if err == nil {
			r.recovered()
			if cerr := r.fallback.ClearProposal(ctx, key); cerr != nil {
				r.logger.Warn().Err(cerr).Str("key", key).Msg("clear fallback proposal")
			}
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetProposal(ctx, key, p)
}

// TakeProposal empties both stores and returns the newer proposal.
func (r *FailoverStateRepository) TakeProposal(ctx context.Context, key string) (*models.Proposal, error) {
	if r.usePrimary() {
		p, err := r.primary.TakeProposal(ctx, key)
		if err == nil {
			r.recovered()
			stale, ferr := r.fallback.TakeProposal(ctx, key)
			if ferr != nil {
				return p, nil
			}
			return latest(p, stale), nil
		}
		r.markDown(err)
	}
	return r.fallback.TakeProposal(ctx, key)
}

func latest(a, b *models.Proposal) *models.Proposal {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.ProposedAt.After(a.ProposedAt):
		return b
	case a.ProposedAt.Equal(b.ProposedAt) && b.Exchange > a.Exchange:
		return b
	default:
		return a
	}
}

func (r *FailoverStateRepository) ClearProposal(ctx context.Context, key string) error {
	if r.usePrimary() {
		err := r.primary.ClearProposal(ctx, key)
		if err == nil {
			r.recovered()
			return r.fallback.ClearProposal(ctx, key)
		}
		r.markDown(err)
	}
	return r.fallback.ClearProposal(ctx, key)
}

func (r *FailoverStateRepository) GetSession(ctx context.Context, key string) (*models.Session, error) {
	if r.usePrimary() {
		s, err := r.primary.GetSession(ctx, key)
		if err == nil {
			r.recovered()
			return s, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetSession(ctx, key)
}

func (r *FailoverStateRepository) SetSession(ctx context.Context, s *models.Session) error {
	if r.usePrimary() {
		err := r.primary.SetSession(ctx, s)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetSession(ctx, s)
}

func (r *FailoverStateRepository) ClearSession(ctx context.Context, key string) error {
	if r.usePrimary() {
		err := r.primary.ClearSession(ctx, key)
		if err == nil {
			r.recovered()
			return r.fallback.ClearSession(ctx, key)
		}
		r.markDown(err)
	}
	return r.fallback.ClearSession(ctx, key)
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.recovered()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
