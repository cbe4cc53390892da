package repository

import (
	"context"
	"sync"
	"time"

	"agendazap/internal/models"
)

// MemoryStateRepository keeps conversation state in process. It is the
// single-instance store and the fallback when Redis is unreachable.
type MemoryStateRepository struct {
	proposals sync.Map
	sessions  sync.Map
	ttl       time.Duration
	now       func() time.Time

	rlMu       sync.Mutex
	rateLimits map[string]*rateLimitEntry
}

func NewMemoryStateRepository(ttl time.Duration) *MemoryStateRepository {
	return &MemoryStateRepository{
		ttl:        ttl,
		now:        time.Now,
		rateLimits: make(map[string]*rateLimitEntry),
	}
}

func (r *MemoryStateRepository) GetProposal(ctx context.Context, key string) (*models.Proposal, error) {
	val, ok := r.proposals.Load(key)
	if !ok {
		return nil, nil
	}
	p := val.(*models.Proposal)
	if p.Expired(r.now()) {
		r.proposals.CompareAndDelete(key, val)
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryStateRepository) SetProposal(ctx context.Context, key string, p *models.Proposal) error {
	cp := *p
	r.proposals.Store(key, &cp)
	return nil
}

// TakeProposal is atomic: of two concurrent callers only one gets the proposal.
func (r *MemoryStateRepository) TakeProposal(ctx context.Context, key string) (*models.Proposal, error) {
	val, ok := r.proposals.LoadAndDelete(key)
	if !ok {
		return nil, nil
	}
	p := val.(*models.Proposal)
	if p.Expired(r.now()) {
		return nil, nil
	}
	return p, nil
}

func (r *MemoryStateRepository) ClearProposal(ctx context.Context, key string) error {
	r.proposals.Delete(key)
	return nil
}

type sessionEntry struct {
	session   models.Session
	expiresAt time.Time
}

func (r *MemoryStateRepository) GetSession(ctx context.Context, key string) (*models.Session, error) {
	val, ok := r.sessions.Load(key)
	if !ok {
		return nil, nil
	}
	entry := val.(*sessionEntry)
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		r.sessions.CompareAndDelete(key, val)
		return nil, nil
	}
	s := entry.session
	return &s, nil
}

func (r *MemoryStateRepository) SetSession(ctx context.Context, s *models.Session) error {
	r.sessions.Store(s.Key, &sessionEntry{session: *s, expiresAt: r.now().Add(r.ttl)})
	return nil
}

func (r *MemoryStateRepository) ClearSession(ctx context.Context, key string) error {
	r.sessions.Delete(key)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.now()

	r.rlMu.Lock()
	defer r.rlMu.Unlock()

	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++

	return entry.count <= limit, nil
}
