package service

import (
	"testing"

	"agendazap/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name  string
		from  ConversationState
		event StateEvent
		want  ConversationState
	}{
		{"initial check proposes", "", EventCheckedAvailable, StateProposed},
		{"unavailable stays idle", StateNoProposal, EventCheckedUnavailable, StateNoProposal},
		{"confirm books", StateProposed, EventBooked, StateBooked},
		{"conflict re-proposes", StateProposed, EventConflict, StateProposed},
		{"failure resets", StateProposed, EventFailed, StateNoProposal},
		{"timeout resets", StateProposed, EventExpired, StateNoProposal},
		{"newer proposal supersedes", StateProposed, EventCheckedAvailable, StateProposed},
		{"fallback confirm books", StateNoProposal, EventBooked, StateBooked},
		{"new cycle after booking", StateBooked, EventCheckedAvailable, StateProposed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.from, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNext_Invalid(t *testing.T) {
	got, err := Next(StateNoProposal, EventExpired)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, StateNoProposal, got)

	_, err = Next(StateBooked, EventExpired)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = Next("bogus", EventBooked)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
