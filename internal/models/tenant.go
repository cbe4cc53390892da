package models

import (
	"time"

	"agendazap/internal/textnorm"
)

type Tenant struct {
	ID          int64       `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Phone       string      `json:"phone" yaml:"phone"`
	Active      bool        `json:"active" yaml:"active"`
	NotifyURL   string      `json:"notify_url" yaml:"notify_url"`
	NotifyToken string      `json:"-" yaml:"notify_token"`
	Rules       TenantRules `json:"rules" yaml:"rules"`
	CreatedAt   time.Time   `json:"created_at" yaml:"-"`
}

// TenantRules is stored as JSON in tenants.rules.
type TenantRules struct {
	ReferralRequiredPlans []string `json:"referral_required_plans,omitempty" yaml:"referral_required_plans"`
}

// RequiresReferral reports whether plan needs a medical referral.
func (r TenantRules) RequiresReferral(plan string) bool {
	if plan == "" {
		return false
	}
	for _, p := range r.ReferralRequiredPlans {
		if textnorm.Equal(p, plan) {
			return true
		}
	}
	return false
}

type Professional struct {
	ID          int64     `json:"id" yaml:"id"`
	TenantID    int64     `json:"tenant_id" yaml:"tenant_id"`
	Name        string    `json:"name" yaml:"name"`
	Phone       string    `json:"phone" yaml:"phone"`
	Active      bool      `json:"active" yaml:"active"`
	Specialties []string  `json:"specialties" yaml:"specialties"`
	Locations   []string  `json:"locations" yaml:"locations"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

// AvailabilityWindow holds the bookable start times of a professional on one
// weekday.
type AvailabilityWindow struct {
	ID             int64    `json:"id"`
	ProfessionalID int64    `json:"professional_id"`
	Weekday        Weekday  `json:"weekday"`
	Times          []string `json:"times"`
}
