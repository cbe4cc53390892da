package models

import (
	"fmt"
	"time"
)

// CheckRequest is the structured availability request emitted by the
// dialogue engine.
type CheckRequest struct {
	TenantID         int64  `json:"tenant_id"`
	ProfessionalName string `json:"professional_name"`
	DateOrWeekday    string `json:"date_or_weekday"`
	TurnPreference   string `json:"turn_preference,omitempty"`
	ExactTime        string `json:"exact_time,omitempty"`
	ServiceType      string `json:"service_type,omitempty"`
	InsurancePlan    string `json:"insurance_plan,omitempty"`
	ContactPhone     string `json:"contact_phone"`
	ContactName      string `json:"contact_name,omitempty"`
}

// Proposal is a resolved but not yet confirmed slot for one conversation.
type Proposal struct {
	TenantID         int64        `json:"tenant_id"`
	Phone            string       `json:"phone"`
	ProfessionalID   int64        `json:"professional_id"`
	ProfessionalName string       `json:"professional_name"`
	Slot             time.Time    `json:"slot"`
	Request          CheckRequest `json:"request"`
	Exchange         int          `json:"exchange"`
	ProposedAt       time.Time    `json:"proposed_at"`
	ExpiresAt        time.Time    `json:"expires_at"`
}

// Expired reports whether the proposal can no longer be confirmed at now.
func (p *Proposal) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// ConversationKey identifies one conversation within a tenant.
func ConversationKey(tenantID int64, phone string) string {
	return fmt.Sprintf("%d:%s", tenantID, phone)
}

// Result is what the scheduling core hands back to the dialogue engine.
type Result struct {
	Status           string     `json:"status"`
	Slot             *time.Time `json:"slot_iso8601,omitempty"`
	ProfessionalID   int64      `json:"professional_id,omitempty"`
	ProfessionalName string     `json:"professional_name,omitempty"`
	AppointmentID    int64      `json:"appointment_id,omitempty"`
	ErrorCode        string     `json:"error_code,omitempty"`
	Error            string     `json:"error,omitempty"`
	OffTurn          bool       `json:"off_turn,omitempty"`
	Notes            []string   `json:"notes,omitempty"`
}

// Available is a convenience for callers that only care about the boolean.
func (r Result) Available() bool {
	return r.Status == StatusAvailable
}

// Session is the per-conversation bookkeeping kept next to the proposal.
type Session struct {
	Key       string    `json:"key"`
	State     string    `json:"state"`
	Exchange  int       `json:"exchange"`
	UpdatedAt time.Time `json:"updated_at"`
}
