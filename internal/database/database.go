package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"agendazap/internal/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type DB struct {
	*sql.DB
	logger *zerolog.Logger
	path   string
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	inMemory := path == ":memory:"

	dsn := path
	if !inMemory {
		// create the database directory if missing
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate", path)
	} else {
		dsn = "file::memory:?_foreign_keys=on"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every :memory: connection sees its own database
	if inMemory {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, logger: logger, path: path}
	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return db, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            phone TEXT NOT NULL DEFAULT '',
            active BOOLEAN NOT NULL DEFAULT 1,
            notify_url TEXT NOT NULL DEFAULT '',
            notify_token TEXT NOT NULL DEFAULT '',
            rules TEXT NOT NULL DEFAULT '{}',
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS professionals (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            tenant_id INTEGER NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
            name TEXT NOT NULL,
            phone TEXT NOT NULL DEFAULT '',
            active BOOLEAN NOT NULL DEFAULT 1,
            specialties TEXT NOT NULL DEFAULT '[]',
            locations TEXT NOT NULL DEFAULT '[]',
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS availability_windows (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            professional_id INTEGER NOT NULL REFERENCES professionals(id) ON DELETE CASCADE,
            weekday TEXT NOT NULL CHECK (weekday IN ('monday','tuesday','wednesday','thursday','friday','saturday','sunday')),
            times TEXT NOT NULL DEFAULT '[]',
            UNIQUE (professional_id, weekday)
        )`,
		`CREATE TABLE IF NOT EXISTS contacts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            tenant_id INTEGER NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
            phone TEXT NOT NULL,
            name TEXT NOT NULL,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            UNIQUE (tenant_id, phone)
        )`,
		`CREATE TABLE IF NOT EXISTS appointments (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            tenant_id INTEGER NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
            professional_id INTEGER NOT NULL REFERENCES professionals(id) ON DELETE CASCADE,
            professional_name TEXT NOT NULL,
            contact_id INTEGER NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
            contact_name TEXT NOT NULL,
            contact_phone TEXT NOT NULL,
            scheduled_at DATETIME NOT NULL,
            slot_key TEXT NOT NULL,
            confirmed BOOLEAN NOT NULL DEFAULT 1,
            notes TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            UNIQUE (professional_id, slot_key)
        )`,
		`CREATE TABLE IF NOT EXISTS messages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            tenant_id INTEGER NOT NULL,
            phone TEXT NOT NULL,
            direction TEXT NOT NULL,
            body TEXT NOT NULL,
            kind TEXT NOT NULL DEFAULT 'text',
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS silences (
            tenant_id INTEGER NOT NULL,
            phone TEXT NOT NULL,
            muted_until DATETIME NOT NULL,
            PRIMARY KEY (tenant_id, phone)
        )`,
		`CREATE TABLE IF NOT EXISTS tasks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            tenant_id INTEGER NOT NULL DEFAULT 0,
            appointment_id INTEGER NOT NULL DEFAULT 0,
            payload TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_professionals_tenant ON professionals(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_professional_time ON appointments(professional_id, scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_tenant_time ON appointments(tenant_id, scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_contact ON appointments(contact_id, scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(tenant_id, phone, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

// notFound converts sql.ErrNoRows into domain.ErrNotFound.
func notFound(err error, what string, id interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, domain.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

var errNoRows = sql.ErrNoRows

func requireAffected(result sql.Result, what string, id interface{}) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound(errNoRows, what, id)
	}
	return nil
}
