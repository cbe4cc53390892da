package domain

import (
	"context"
	"time"

	"agendazap/internal/models"
)

type Repository interface {
	GetTenant(ctx context.Context, id int64) (*models.Tenant, error)
	GetProfessional(ctx context.Context, id int64) (*models.Professional, error)
	GetProfessionalsByTenant(ctx context.Context, tenantID int64) ([]*models.Professional, error)
	GetProfessionalByPhone(ctx context.Context, tenantID int64, phone string) (*models.Professional, error)

	GetWindow(ctx context.Context, professionalID int64, weekday models.Weekday) (*models.AvailabilityWindow, error)
	GetWindows(ctx context.Context, professionalID int64) ([]*models.AvailabilityWindow, error)
	ReplaceWindow(ctx context.Context, professionalID int64, weekday models.Weekday, times []string) error

	CreateAppointment(ctx context.Context, a *models.Appointment) error
	GetAppointment(ctx context.Context, id int64) (*models.Appointment, error)
	DeleteAppointment(ctx context.Context, id int64) error
	GetAppointmentsByProfessional(ctx context.Context, professionalID int64, start, end time.Time) ([]*models.Appointment, error)
	GetAppointmentsByTenant(ctx context.Context, tenantID int64, start, end time.Time) ([]*models.Appointment, error)
	GetUpcomingByContact(ctx context.Context, contactID int64, from time.Time) ([]*models.Appointment, error)

	GetOrCreateContact(ctx context.Context, tenantID int64, phone, name string) (*models.Contact, error)
	GetContactByPhone(ctx context.Context, tenantID int64, phone string) (*models.Contact, error)
	UpdateContactName(ctx context.Context, id int64, name string) error

	SaveMessage(ctx context.Context, m *models.Message) error
	GetRecentMessages(ctx context.Context, tenantID int64, phone string, limit int) ([]*models.Message, error)
	GetActiveSilence(ctx context.Context, tenantID int64, phone string, now time.Time) (*models.Silence, error)
	SetSilence(ctx context.Context, s *models.Silence) error
}

// StateRepository keeps short-lived conversation state: the pending
// proposal and session bookkeeping for each conversation key.
type StateRepository interface {
	GetProposal(ctx context.Context, key string) (*models.Proposal, error)
	SetProposal(ctx context.Context, key string, p *models.Proposal) error
	// TakeProposal atomically reads and deletes the proposal.
	TakeProposal(ctx context.Context, key string) (*models.Proposal, error)
	ClearProposal(ctx context.Context, key string) error

	GetSession(ctx context.Context, key string) (*models.Session, error)
	SetSession(ctx context.Context, s *models.Session) error
	ClearSession(ctx context.Context, key string) error

	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier delivers a text to a WhatsApp phone on behalf of a tenant.
type Notifier interface {
	Notify(ctx context.Context, tenant *models.Tenant, phone, text string) error
}

type TaskEnqueuer interface {
	EnqueueTask(ctx context.Context, task *models.Task) error
}

type SheetsWriter interface {
	AppendAppointment(ctx context.Context, a *models.Appointment) error
	MarkCanceled(ctx context.Context, appointmentID int64) error
}

type SchedulingService interface {
	CheckAvailability(ctx context.Context, req models.CheckRequest) models.Result
	ConfirmBooking(ctx context.Context, tenantID int64, phone string, fallback *models.CheckRequest) models.Result
	CancelNext(ctx context.Context, tenantID int64, phone string) models.Result
	Upcoming(ctx context.Context, tenantID int64, phone string) ([]*models.Appointment, error)
	ProfessionalAgenda(ctx context.Context, tenantID int64, phone string, from, to time.Time) ([]*models.Appointment, error)
	HasPendingProposal(ctx context.Context, tenantID int64, phone string) bool
}
