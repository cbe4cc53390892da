package database

import (
	"context"
	"fmt"
	"time"

	"agendazap/internal/domain"
	"agendazap/internal/models"
)

const appointmentColumns = `id, tenant_id, professional_id, professional_name, contact_id, contact_name,
	contact_phone, scheduled_at, slot_key, confirmed, notes, created_at`

func scanAppointment(row interface{ Scan(...interface{}) error }) (*models.Appointment, error) {
	var a models.Appointment
	err := row.Scan(
		&a.ID, &a.TenantID, &a.ProfessionalID, &a.ProfessionalName, &a.ContactID, &a.ContactName,
		&a.ContactPhone, &a.ScheduledAt, &a.SlotKey, &a.Confirmed, &a.Notes, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAppointment inserts a booking. The (professional_id, slot_key)
// unique index makes the check-and-insert atomic; losing the race yields
// domain.ErrConflict.
func (db *DB) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Denormalized names are read inside the same transaction
	var tenantID int64
	err = tx.QueryRowContext(ctx, `SELECT tenant_id, name FROM professionals WHERE id = ?`, a.ProfessionalID).
		Scan(&tenantID, &a.ProfessionalName)
	if err != nil {
		return notFound(err, "professional", a.ProfessionalID)
	}
	if tenantID != a.TenantID {
		return fmt.Errorf("professional %d does not belong to tenant %d: %w", a.ProfessionalID, a.TenantID, domain.ErrValidation)
	}

	err = tx.QueryRowContext(ctx, `SELECT name, phone FROM contacts WHERE id = ? AND tenant_id = ?`, a.ContactID, a.TenantID).
		Scan(&a.ContactName, &a.ContactPhone)
	if err != nil {
		return notFound(err, "contact", a.ContactID)
	}

	// 2. Insert guarded by the unique slot index
	now := time.Now().UTC()
	a.ScheduledAt = a.ScheduledAt.Truncate(time.Minute)
	a.SlotKey = models.SlotKey(a.ScheduledAt)
	query := `INSERT INTO appointments (
				tenant_id, professional_id, professional_name, contact_id, contact_name,
				contact_phone, scheduled_at, slot_key, confirmed, notes, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, query,
		a.TenantID,
		a.ProfessionalID,
		a.ProfessionalName,
		a.ContactID,
		a.ContactName,
		a.ContactPhone,
		a.ScheduledAt.UTC(),
		a.SlotKey,
		a.Confirmed,
		a.Notes,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("professional %d at %s: %w", a.ProfessionalID, a.SlotKey, domain.ErrConflict)
		}
		return fmt.Errorf("failed to insert appointment in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("professional %d at %s: %w", a.ProfessionalID, a.SlotKey, domain.ErrConflict)
		}
		return fmt.Errorf("failed to commit appointment: %w", err)
	}

	a.ID = id
	a.CreatedAt = now
	return nil
}

func (db *DB) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = ?`
	a, err := scanAppointment(db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "appointment", id)
	}
	return a, nil
}

// DeleteAppointment removes a booking; a second call reports ErrNotFound.
func (db *DB) DeleteAppointment(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM appointments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	return requireAffected(result, "appointment", id)
}

func (db *DB) queryAppointments(ctx context.Context, query string, args ...interface{}) ([]*models.Appointment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointments: %w", err)
	}
	defer rows.Close()

	var result []*models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// GetAppointmentsByProfessional returns bookings with start <= scheduled_at < end.
func (db *DB) GetAppointmentsByProfessional(ctx context.Context, professionalID int64, start, end time.Time) ([]*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
              WHERE professional_id = ? AND scheduled_at >= ? AND scheduled_at < ?
              ORDER BY scheduled_at ASC`
	return db.queryAppointments(ctx, query, professionalID, start.UTC(), end.UTC())
}

func (db *DB) GetAppointmentsByTenant(ctx context.Context, tenantID int64, start, end time.Time) ([]*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
              WHERE tenant_id = ? AND scheduled_at >= ? AND scheduled_at < ?
              ORDER BY scheduled_at ASC, professional_name ASC`
	return db.queryAppointments(ctx, query, tenantID, start.UTC(), end.UTC())
}

// GetConfirmedBetween returns confirmed bookings of every tenant in [start, end).
func (db *DB) GetConfirmedBetween(ctx context.Context, start, end time.Time) ([]*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
              WHERE confirmed = 1 AND scheduled_at >= ? AND scheduled_at < ?
              ORDER BY scheduled_at ASC`
	return db.queryAppointments(ctx, query, start.UTC(), end.UTC())
}

func (db *DB) GetUpcomingByContact(ctx context.Context, contactID int64, from time.Time) ([]*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
              WHERE contact_id = ? AND confirmed = 1 AND scheduled_at >= ?
              ORDER BY scheduled_at ASC`
	return db.queryAppointments(ctx, query, contactID, from.UTC())
}
