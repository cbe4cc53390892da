package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agendazap/internal/models"
)

// CreateTenant inserts a clinic.
func (db *DB) CreateTenant(ctx context.Context, t *models.Tenant) error {
	rules, err := json.Marshal(t.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal tenant rules: %w", err)
	}

	now := time.Now().UTC()
	query := `INSERT INTO tenants (name, phone, active, notify_url, notify_token, rules, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query, t.Name, t.Phone, t.Active, t.NotifyURL, t.NotifyToken, string(rules), now)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	t.ID = id
	t.CreatedAt = now
	return nil
}

func (db *DB) GetTenant(ctx context.Context, id int64) (*models.Tenant, error) {
	query := `SELECT id, name, phone, active, notify_url, notify_token, rules, created_at
              FROM tenants WHERE id = ?`

	var t models.Tenant
	var rules string
	err := db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Phone, &t.Active, &t.NotifyURL, &t.NotifyToken, &rules, &t.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err, "tenant", id)
	}
	if err := json.Unmarshal([]byte(rules), &t.Rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules of tenant %d: %w", id, err)
	}
	return &t, nil
}

// GetActiveTenants returns every active clinic.
func (db *DB) GetActiveTenants(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM tenants WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tenants := make([]*models.Tenant, 0, len(ids))
	for _, id := range ids {
		t, err := db.GetTenant(ctx, id)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, nil
}

func (db *DB) SetTenantActive(ctx context.Context, id int64, active bool) error {
	result, err := db.ExecContext(ctx, `UPDATE tenants SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	return requireAffected(result, "tenant", id)
}

// CreateProfessional adds a professional to a clinic.
func (db *DB) CreateProfessional(ctx context.Context, p *models.Professional) error {
	specialties, err := json.Marshal(nonNil(p.Specialties))
	if err != nil {
		return fmt.Errorf("failed to marshal specialties: %w", err)
	}
	locations, err := json.Marshal(nonNil(p.Locations))
	if err != nil {
		return fmt.Errorf("failed to marshal locations: %w", err)
	}

	now := time.Now().UTC()
	query := `INSERT INTO professionals (tenant_id, name, phone, active, specialties, locations, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query, p.TenantID, p.Name, p.Phone, p.Active, string(specialties), string(locations), now)
	if err != nil {
		if isForeignKeyViolation(err) {
			return notFound(errNoRows, "tenant", p.TenantID)
		}
		return fmt.Errorf("failed to create professional: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	return nil
}

const professionalColumns = `id, tenant_id, name, phone, active, specialties, locations, created_at`

func scanProfessional(row interface{ Scan(...interface{}) error }) (*models.Professional, error) {
	var p models.Professional
	var specialties, locations string
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Phone, &p.Active, &specialties, &locations, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(specialties), &p.Specialties); err != nil {
		return nil, fmt.Errorf("failed to decode specialties: %w", err)
	}
	if err := json.Unmarshal([]byte(locations), &p.Locations); err != nil {
		return nil, fmt.Errorf("failed to decode locations: %w", err)
	}
	return &p, nil
}

func (db *DB) GetProfessional(ctx context.Context, id int64) (*models.Professional, error) {
	query := `SELECT ` + professionalColumns + ` FROM professionals WHERE id = ?`
	p, err := scanProfessional(db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "professional", id)
	}
	return p, nil
}

// GetProfessionalsByTenant returns all of a clinic's professionals, inactive ones included.
func (db *DB) GetProfessionalsByTenant(ctx context.Context, tenantID int64) ([]*models.Professional, error) {
	query := `SELECT ` + professionalColumns + ` FROM professionals WHERE tenant_id = ? ORDER BY name, id`
	rows, err := db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get professionals: %w", err)
	}
	defer rows.Close()

	var result []*models.Professional
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan professional: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (db *DB) GetProfessionalByPhone(ctx context.Context, tenantID int64, phone string) (*models.Professional, error) {
	query := `SELECT ` + professionalColumns + ` FROM professionals WHERE tenant_id = ? AND phone = ? AND active = 1`
	p, err := scanProfessional(db.QueryRowContext(ctx, query, tenantID, phone))
	if err != nil {
		return nil, notFound(err, "professional with phone", phone)
	}
	return p, nil
}

func (db *DB) SetProfessionalActive(ctx context.Context, id int64, active bool) error {
	result, err := db.ExecContext(ctx, `UPDATE professionals SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update professional: %w", err)
	}
	return requireAffected(result, "professional", id)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
