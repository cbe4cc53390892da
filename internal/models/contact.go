package models

import "time"

type Contact struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasLearnedName is false while the name is still the phone placeholder.
func (c *Contact) HasLearnedName() bool {
	return c.Name != "" && c.Name != c.Phone
}

type Message struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Phone     string    `json:"phone"`
	Direction string    `json:"direction"`
	Body      string    `json:"body"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// Silence mutes the assistant for one phone until the given instant.
type Silence struct {
	TenantID int64     `json:"tenant_id"`
	Phone    string    `json:"phone"`
	Until    time.Time `json:"until"`
}
