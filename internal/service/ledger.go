package service

import (
	"context"
	"fmt"
	"time"

	"agendazap/internal/domain"
	"agendazap/internal/events"
	"agendazap/internal/models"

	"github.com/rs/zerolog"
)

// Ledger is the appointment book. Slot exclusivity is enforced by the
// storage unique index, so Create is safe to call concurrently.
type Ledger struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewLedger(repo domain.Repository, eventBus domain.EventPublisher, logger *zerolog.Logger) *Ledger {
	return &Ledger{
		repo:     repo,
		eventBus: eventBus,
		now:      time.Now,
		logger:   logger,
	}
}

// Create books the slot. It fails with domain.ErrConflict when the
// professional already has an appointment at that minute.
func (l *Ledger) Create(ctx context.Context, req models.NewAppointment) (*models.Appointment, error) {
	switch {
	case req.TenantID <= 0:
		return nil, fmt.Errorf("%w: tenant is required", domain.ErrValidation)
	case req.ProfessionalID <= 0:
		return nil, fmt.Errorf("%w: professional is required", domain.ErrValidation)
	case req.ContactID <= 0:
		return nil, fmt.Errorf("%w: contact is required", domain.ErrValidation)
	case req.ScheduledAt.IsZero():
		return nil, fmt.Errorf("%w: scheduled time is required", domain.ErrValidation)
	}

	a := &models.Appointment{
		TenantID:       req.TenantID,
		ProfessionalID: req.ProfessionalID,
		ContactID:      req.ContactID,
		ScheduledAt:    req.ScheduledAt,
		Confirmed:      true,
		Notes:          req.Notes,
	}
	if err := l.repo.CreateAppointment(ctx, a); err != nil {
		return nil, err
	}

	l.logger.Info().
		Int64("appointment_id", a.ID).
		Int64("professional_id", a.ProfessionalID).
		Time("scheduled_at", a.ScheduledAt).
		Msg("Appointment booked")

	l.publish(events.EventAppointmentBooked, a)
	return a, nil
}

// Cancel removes the appointment. A second call for the same id returns
// domain.ErrNotFound.
func (l *Ledger) Cancel(ctx context.Context, appointmentID int64) error {
	a, err := l.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}
	if err := l.repo.DeleteAppointment(ctx, appointmentID); err != nil {
		return err
	}

	l.logger.Info().Int64("appointment_id", appointmentID).Msg("Appointment canceled")
	l.publish(events.EventAppointmentCanceled, a)
	return nil
}

// CancelNextFor cancels the earliest upcoming appointment of the contact
// identified by phone and returns it.
func (l *Ledger) CancelNextFor(ctx context.Context, tenantID int64, phone string) (*models.Appointment, error) {
	contact, err := l.repo.GetContactByPhone(ctx, tenantID, phone)
	if err != nil {
		return nil, err
	}

	upcoming, err := l.UpcomingFor(ctx, contact.ID)
	if err != nil {
		return nil, err
	}
	if len(upcoming) == 0 {
		return nil, fmt.Errorf("%w: no upcoming appointment for contact %d", domain.ErrNotFound, contact.ID)
	}

	next := upcoming[0]
	if err := l.Cancel(ctx, next.ID); err != nil {
		return nil, err
	}
	return next, nil
}

// UpcomingFor returns the contact's confirmed appointments from now on,
// earliest first.
func (l *Ledger) UpcomingFor(ctx context.Context, contactID int64) ([]*models.Appointment, error) {
	return l.repo.GetUpcomingByContact(ctx, contactID, l.now())
}

// ScheduleFor returns the professional's agenda in [from, to).
func (l *Ledger) ScheduleFor(ctx context.Context, professionalID int64, from, to time.Time) ([]*models.Appointment, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: empty period", domain.ErrValidation)
	}
	return l.repo.GetAppointmentsByProfessional(ctx, professionalID, from, to)
}

func (l *Ledger) publish(eventType string, a *models.Appointment) {
	if l.eventBus == nil {
		return
	}
	payload := events.AppointmentEventPayload{
		AppointmentID:    a.ID,
		TenantID:         a.TenantID,
		ProfessionalID:   a.ProfessionalID,
		ProfessionalName: a.ProfessionalName,
		ContactID:        a.ContactID,
		ContactName:      a.ContactName,
		ContactPhone:     a.ContactPhone,
		ScheduledAt:      a.ScheduledAt,
		Notes:            a.Notes,
	}
	if err := l.eventBus.PublishJSON(eventType, payload); err != nil {
		l.logger.Error().Err(err).Str("event", eventType).Int64("appointment_id", a.ID).Msg("failed to publish appointment event")
	}
}
