package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"agendazap/internal/models"
)

// GetOrCreateContact returns the contact for (tenant, phone), creating it
// when absent. A new contact is named after the phone unless a name is given.
func (db *DB) GetOrCreateContact(ctx context.Context, tenantID int64, phone, name string) (*models.Contact, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = phone
	}

	now := time.Now().UTC()
	query := `INSERT INTO contacts (tenant_id, phone, name, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?)
              ON CONFLICT(tenant_id, phone) DO NOTHING`
	if _, err := db.ExecContext(ctx, query, tenantID, phone, name, now, now); err != nil {
		if isForeignKeyViolation(err) {
			return nil, notFound(errNoRows, "tenant", tenantID)
		}
		return nil, fmt.Errorf("failed to upsert contact: %w", err)
	}

	return db.GetContactByPhone(ctx, tenantID, phone)
}

func (db *DB) GetContactByPhone(ctx context.Context, tenantID int64, phone string) (*models.Contact, error) {
	query := `SELECT id, tenant_id, phone, name, created_at, updated_at
              FROM contacts WHERE tenant_id = ? AND phone = ?`

	var c models.Contact
	err := db.QueryRowContext(ctx, query, tenantID, phone).Scan(
		&c.ID, &c.TenantID, &c.Phone, &c.Name, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "contact", phone)
	}
	return &c, nil
}

func (db *DB) UpdateContactName(ctx context.Context, id int64, name string) error {
	result, err := db.ExecContext(ctx, `UPDATE contacts SET name = ?, updated_at = ? WHERE id = ?`,
		strings.TrimSpace(name), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update contact name: %w", err)
	}
	return requireAffected(result, "contact", id)
}

// SaveMessage records an inbound or outbound message.
func (db *DB) SaveMessage(ctx context.Context, m *models.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Kind == "" {
		m.Kind = models.KindText
	}
	query := `INSERT INTO messages (tenant_id, phone, direction, body, kind, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query, m.TenantID, m.Phone, m.Direction, m.Body, m.Kind, m.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	m.ID = id
	return nil
}

// GetRecentMessages returns the last limit messages of a conversation, oldest first.
func (db *DB) GetRecentMessages(ctx context.Context, tenantID int64, phone string, limit int) ([]*models.Message, error) {
	query := `SELECT id, tenant_id, phone, direction, body, kind, created_at FROM messages
              WHERE tenant_id = ? AND phone = ?
              ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, tenantID, phone, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	var result []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Phone, &m.Direction, &m.Body, &m.Kind, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

// SetSilence mutes the assistant for a phone, replacing any earlier silence.
func (db *DB) SetSilence(ctx context.Context, s *models.Silence) error {
	query := `INSERT INTO silences (tenant_id, phone, muted_until) VALUES (?, ?, ?)
              ON CONFLICT(tenant_id, phone) DO UPDATE SET muted_until = excluded.muted_until`
	if _, err := db.ExecContext(ctx, query, s.TenantID, s.Phone, s.Until.UTC()); err != nil {
		return fmt.Errorf("failed to set silence: %w", err)
	}
	return nil
}

// GetActiveSilence returns nil, nil when the phone is not muted at now.
func (db *DB) GetActiveSilence(ctx context.Context, tenantID int64, phone string, now time.Time) (*models.Silence, error) {
	query := `SELECT tenant_id, phone, muted_until FROM silences WHERE tenant_id = ? AND phone = ? AND muted_until > ?`
	var s models.Silence
	err := db.QueryRowContext(ctx, query, tenantID, phone, now.UTC()).Scan(&s.TenantID, &s.Phone, &s.Until)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get silence: %w", err)
	}
	return &s, nil
}
