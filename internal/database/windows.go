package database

import (
	"context"
	"encoding/json"
	"fmt"

	"agendazap/internal/models"
)

func (db *DB) GetWindow(ctx context.Context, professionalID int64, weekday models.Weekday) (*models.AvailabilityWindow, error) {
	query := `SELECT id, professional_id, weekday, times FROM availability_windows
              WHERE professional_id = ? AND weekday = ?`

	var w models.AvailabilityWindow
	var times string
	err := db.QueryRowContext(ctx, query, professionalID, string(weekday)).Scan(&w.ID, &w.ProfessionalID, &w.Weekday, &times)
	if err != nil {
		return nil, notFound(err, "availability window", fmt.Sprintf("%d/%s", professionalID, weekday))
	}
	if err := json.Unmarshal([]byte(times), &w.Times); err != nil {
		return nil, fmt.Errorf("failed to decode window times: %w", err)
	}
	return &w, nil
}

func (db *DB) GetWindows(ctx context.Context, professionalID int64) ([]*models.AvailabilityWindow, error) {
	query := `SELECT id, professional_id, weekday, times FROM availability_windows WHERE professional_id = ?`
	rows, err := db.QueryContext(ctx, query, professionalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get windows: %w", err)
	}
	defer rows.Close()

	var windows []*models.AvailabilityWindow
	for rows.Next() {
		var w models.AvailabilityWindow
		var times string
		if err := rows.Scan(&w.ID, &w.ProfessionalID, &w.Weekday, &times); err != nil {
			return nil, fmt.Errorf("failed to scan window: %w", err)
		}
		if err := json.Unmarshal([]byte(times), &w.Times); err != nil {
			return nil, fmt.Errorf("failed to decode window times: %w", err)
		}
		windows = append(windows, &w)
	}
	return windows, rows.Err()
}

// ReplaceWindow atomically replaces the (professional, weekday) window.
// An empty times slice removes the window.
func (db *DB) ReplaceWindow(ctx context.Context, professionalID int64, weekday models.Weekday, times []string) error {
	data, err := json.Marshal(nonNil(times))
	if err != nil {
		return fmt.Errorf("failed to marshal window times: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM availability_windows WHERE professional_id = ? AND weekday = ?`,
		professionalID, string(weekday)); err != nil {
		return fmt.Errorf("failed to delete window in tx: %w", err)
	}

	if len(times) > 0 {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO availability_windows (professional_id, weekday, times) VALUES (?, ?, ?)`,
			professionalID, string(weekday), string(data))
		if err != nil {
			if isForeignKeyViolation(err) {
				return notFound(errNoRows, "professional", professionalID)
			}
			return fmt.Errorf("failed to insert window in tx: %w", err)
		}
	}

	return tx.Commit()
}
