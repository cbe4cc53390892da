// Package dialogue talks to the external conversational engine that reads
// free text and decides whether the scheduling core should be called.
package dialogue

import (
	"context"

	"agendazap/internal/models"
)

// Action kinds the engine may request.
const (
	ActionCheckAvailability = "check_availability"
	ActionBook              = "book"
)

// HistoryEntry is one past message of the conversation.
type HistoryEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Turn is what the engine sees for one flushed batch of inbound text.
// Result is set on the second round, after the requested action ran.
type Turn struct {
	TenantID      int64          `json:"tenant_id"`
	Phone         string         `json:"phone"`
	ContactName   string         `json:"contact_name,omitempty"`
	Text          string         `json:"text"`
	Professionals []string       `json:"professionals,omitempty"`
	History       []HistoryEntry `json:"history,omitempty"`
	Result        *models.Result `json:"result,omitempty"`
}

type Action struct {
	Kind    string              `json:"kind"`
	Request models.CheckRequest `json:"request"`
}

// Reply carries either text to send or an action to run, or both.
type Reply struct {
	Text   string  `json:"text"`
	Action *Action `json:"action,omitempty"`
}

type Engine interface {
	Respond(ctx context.Context, turn Turn) (*Reply, error)
}
