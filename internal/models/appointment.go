package models

import "time"

type Appointment struct {
	ID               int64     `json:"id"`
	TenantID         int64     `json:"tenant_id"`
	ProfessionalID   int64     `json:"professional_id"`
	ProfessionalName string    `json:"professional_name"`
	ContactID        int64     `json:"contact_id"`
	ContactName      string    `json:"contact_name"`
	ContactPhone     string    `json:"contact_phone"`
	ScheduledAt      time.Time `json:"scheduled_at"`
	SlotKey          string    `json:"slot_key"`
	Confirmed        bool      `json:"confirmed"`
	Notes            string    `json:"notes"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewAppointment carries the fields needed to book a slot.
type NewAppointment struct {
	TenantID       int64
	ProfessionalID int64
	ContactID      int64
	ScheduledAt    time.Time
	Notes          string
}
