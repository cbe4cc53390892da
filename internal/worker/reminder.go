package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agendazap/internal/config"
	"agendazap/internal/domain"
	"agendazap/internal/models"

	"github.com/rs/zerolog"
)

// AppointmentSource lists confirmed appointments of every tenant.
type AppointmentSource interface {
	GetConfirmedBetween(ctx context.Context, start, end time.Time) ([]*models.Appointment, error)
	GetTenant(ctx context.Context, id int64) (*models.Tenant, error)
}

// ReminderWorker sends each contact a reminder of the day's appointments
// once a day through the outbox.
type ReminderWorker struct {
	source AppointmentSource
	tasks  domain.TaskEnqueuer
	loc    *time.Location
	at     models.TimeOfDay
	offset int
	now    func() time.Time
	logger *zerolog.Logger
}

func NewReminderWorker(source AppointmentSource, tasks domain.TaskEnqueuer, cfg config.SchedulingConfig, loc *time.Location, logger *zerolog.Logger) (*ReminderWorker, error) {
	at := models.TimeOfDay{Hour: 8}
	if cfg.ReminderTime != "" {
		tod, err := models.ParseTimeOfDay(cfg.ReminderTime)
		if err != nil {
			return nil, fmt.Errorf("reminder_time: %w", err)
		}
		at = tod
	}
	if loc == nil {
		loc = time.Local
	}
	return &ReminderWorker{
		source: source,
		tasks:  tasks,
		loc:    loc,
		at:     at,
		offset: cfg.ReminderDayOffset,
		now:    time.Now,
		logger: logger,
	}, nil
}

// Start waits for the next reminder time, then runs daily until ctx is done.
func (w *ReminderWorker) Start(ctx context.Context) {
	for {
		now := w.now()
		timer := time.NewTimer(w.NextRun(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error().Err(err).Msg("reminder: run failed")
			}
		}
	}
}

// NextRun returns the first reminder time strictly after now.
func (w *ReminderWorker) NextRun(now time.Time) time.Time {
	next := w.at.On(now.In(w.loc))
	if !next.After(now) {
		next = w.at.On(next.AddDate(0, 0, 1))
	}
	return next
}

// RunOnce enqueues reminders for the target day and returns how many were
// queued.
func (w *ReminderWorker) RunOnce(ctx context.Context) (int, error) {
	today := w.now().In(w.loc)
	start := time.Date(today.Year(), today.Month(), today.Day()+w.offset, 0, 0, 0, 0, w.loc)
	end := start.AddDate(0, 0, 1)

	appointments, err := w.source.GetConfirmedBetween(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("reminder: get appointments: %w", err)
	}

	active := make(map[int64]bool)
	sent := 0
	for _, a := range appointments {
		ok, seen := active[a.TenantID]
		if !seen {
			tenant, err := w.source.GetTenant(ctx, a.TenantID)
			ok = err == nil && tenant.Active
			active[a.TenantID] = ok
		}
		if !ok || a.ContactPhone == "" {
			continue
		}

		payload, err := json.Marshal(models.NotifyPayload{Phone: a.ContactPhone, Text: w.format(a)})
		if err != nil {
			return sent, err
		}
		task := &models.Task{
			TaskType:      models.TaskNotify,
			TenantID:      a.TenantID,
			AppointmentID: a.ID,
			Payload:       string(payload),
		}
		if err := w.tasks.EnqueueTask(ctx, task); err != nil {
			w.logger.Error().Err(err).Int64("appointment_id", a.ID).Msg("reminder: enqueue failed")
			continue
		}
		sent++
	}

	w.logger.Info().Int("sent", sent).Time("day", start).Msg("Reminders queued")
	return sent, nil
}

func (w *ReminderWorker) format(a *models.Appointment) string {
	when := a.ScheduledAt.In(w.loc)
	return fmt.Sprintf("Olá %s! Lembrete: você tem horário com %s em %s às %s.",
		a.ContactName, a.ProfessionalName, when.Format("02/01"), when.Format("15:04"))
}
