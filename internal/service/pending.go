package service

import (
	"context"
	"time"

	"agendazap/internal/domain"
	"agendazap/internal/models"
	"agendazap/internal/textnorm"

	"github.com/rs/zerolog"
)

// Pending holds one proposed slot per conversation until it is confirmed,
// superseded or expired.
type Pending struct {
	store  domain.StateRepository
	ttl    time.Duration
	tokens []string
	now    func() time.Time
	logger *zerolog.Logger
}

func NewPending(store domain.StateRepository, ttl time.Duration, affirmativeTokens []string, logger *zerolog.Logger) *Pending {
	if ttl <= 0 {
		ttl = models.DefaultProposalTTL
	}
	return &Pending{
		store:  store,
		ttl:    ttl,
		tokens: affirmativeTokens,
		now:    time.Now,
		logger: logger,
	}
}

// Propose overwrites any earlier proposal for key.
func (p *Pending) Propose(ctx context.Context, key string, proposal *models.Proposal) error {
	now := p.now()
	proposal.ProposedAt = now
	proposal.ExpiresAt = now.Add(p.ttl)
	return p.store.SetProposal(ctx, key, proposal)
}

// Consume removes and returns the proposal for key. Two concurrent callers
// never both get it. nil means there is nothing to confirm.
func (p *Pending) Consume(ctx context.Context, key string) (*models.Proposal, error) {
	proposal, err := p.store.TakeProposal(ctx, key)
	if err != nil || proposal == nil {
		return nil, err
	}
	if proposal.Expired(p.now()) {
		p.logger.Debug().Str("key", key).Time("expired_at", proposal.ExpiresAt).Msg("Dropping expired proposal")
		return nil, nil
	}
	return proposal, nil
}

// Peek reads the proposal without consuming it.
func (p *Pending) Peek(ctx context.Context, key string) (*models.Proposal, error) {
	proposal, err := p.store.GetProposal(ctx, key)
	if err != nil || proposal == nil {
		return nil, err
	}
	if proposal.Expired(p.now()) {
		return nil, nil
	}
	return proposal, nil
}

// Discard drops the proposal for key, if any.
func (p *Pending) Discard(ctx context.Context, key string) error {
	return p.store.ClearProposal(ctx, key)
}

// MatchesConfirmationIntent is coarse on purpose: any affirmative token in
// the text counts as a yes.
func (p *Pending) MatchesConfirmationIntent(text string) bool {
	return textnorm.ContainsAny(text, p.tokens)
}
