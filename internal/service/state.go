package service

import (
	"fmt"

	"agendazap/internal/domain"
)

// ConversationState is where a conversation stands in the
// propose/confirm cycle.
type ConversationState string

const (
	StateNoProposal ConversationState = "no_proposal"
	StateProposed   ConversationState = "proposed"
	StateBooked     ConversationState = "booked"
)

// StateEvent drives ConversationState transitions.
type StateEvent string

const (
	EventCheckedAvailable   StateEvent = "checked_available"
	EventCheckedUnavailable StateEvent = "checked_unavailable"
	EventBooked             StateEvent = "booked"
	EventConflict           StateEvent = "conflict"
	EventFailed             StateEvent = "failed"
	EventExpired            StateEvent = "expired"
)

type transitionKey struct {
	from  ConversationState
	event StateEvent
}

// Booked ends a cycle; from there the conversation behaves like
// no_proposal except that nothing can expire.
var transitions = map[transitionKey]ConversationState{
	{StateNoProposal, EventCheckedAvailable}:   StateProposed,
	{StateNoProposal, EventCheckedUnavailable}: StateNoProposal,
	{StateNoProposal, EventBooked}:             StateBooked,
	{StateNoProposal, EventConflict}:           StateProposed,
	{StateNoProposal, EventFailed}:             StateNoProposal,

	{StateProposed, EventCheckedAvailable}:   StateProposed,
	{StateProposed, EventCheckedUnavailable}: StateProposed,
	{StateProposed, EventBooked}:             StateBooked,
	{StateProposed, EventConflict}:           StateProposed,
	{StateProposed, EventFailed}:             StateNoProposal,
	{StateProposed, EventExpired}:            StateNoProposal,

	{StateBooked, EventCheckedAvailable}:   StateProposed,
	{StateBooked, EventCheckedUnavailable}: StateNoProposal,
	{StateBooked, EventBooked}:             StateBooked,
	{StateBooked, EventConflict}:           StateProposed,
	{StateBooked, EventFailed}:             StateNoProposal,
}

// Next applies event to state. An empty state is treated as no_proposal.
func Next(state ConversationState, event StateEvent) (ConversationState, error) {
	if state == "" {
		state = StateNoProposal
	}
	next, ok := transitions[transitionKey{state, event}]
	if !ok {
		return state, fmt.Errorf("%w: no transition from %s on %s", domain.ErrValidation, state, event)
	}
	return next, nil
}
