package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gearrental/internal/models"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB represents the database connection and its gear cache.
type DB struct {
	*sql.DB
	gears     []models.Gear
	gearsByID map[string]int
	cacheTime time.Time
	mu        sync.RWMutex
	logger    *zerolog.Logger
}

var (
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrNotAvailable           = errors.New("not available")
	ErrBookingNotFound        = errors.New("booking not found")
	ErrGearNotFound           = errors.New("gear not found")
	ErrAddressNotFound        = errors.New("address not found")
)

// NotAvailableError reports the line item that collided with an active booking
// while inserting inside a write transaction.
type NotAvailableError struct {
	Item models.LineItem
}

func (e *NotAvailableError) Error() string {
	return fmt.Sprintf("gear %s not available from %s to %s",
		e.Item.GearID, models.FormatDate(e.Item.StartDate), models.FormatDate(e.Item.EndDate))
}

func (e *NotAvailableError) Unwrap() error { return ErrNotAvailable }

// NewDB opens the database, creates the schema and migrates legacy booking rows.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL, busy timeout, FK enforcement. _txlock=immediate makes every transaction
	// take the write lock on BEGIN so check-then-insert runs serialized.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{
		DB:        db,
		gearsByID: make(map[string]int),
		logger:    logger,
	}

	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := instance.LoadGears(context.Background()); err != nil {
		logger.Error().Err(err).Msg("Failed to load gears into cache")
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	legacy, err := db.renameLegacyTables()
	if err != nil {
		return err
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS gears (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			price_per_day REAL NOT NULL DEFAULT 0,
			thumbnail TEXT NOT NULL DEFAULT '',
			images TEXT NOT NULL DEFAULT '[]',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS addresses (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			street TEXT NOT NULL,
			city TEXT NOT NULL,
			state TEXT NOT NULL,
			zip TEXT NOT NULL,
			is_default BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			customer_name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			refund_status TEXT,
			address_id TEXT REFERENCES addresses(id),
			total_amount REAL NOT NULL DEFAULT 0,
			undertaking_signed BOOLEAN NOT NULL DEFAULT 0,
			id_number TEXT,
			id_document_url TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			version INTEGER NOT NULL DEFAULT 1
		)`,
		// One row per rented gear; dates are YYYY-MM-DD text so comparisons are lexical.
		`CREATE TABLE IF NOT EXISTS booking_items (
			booking_id TEXT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			gear_id TEXT NOT NULL REFERENCES gears(id),
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 1,
			price_per_day REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (booking_id, position)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_booking_items_gear_dates ON booking_items(gear_id, start_date, end_date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_addresses_user_id ON addresses(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_gears_active ON gears(is_active)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}

	if err := db.ensureNewColumns(); err != nil {
		return err
	}

	if len(legacy) > 0 {
		if err := db.migrateLegacy(context.Background(), legacy); err != nil {
			return fmt.Errorf("migrate legacy tables: %w", err)
		}
	}
	return nil
}

// ensureNewColumns adds columns introduced after the first release.
func (db *DB) ensureNewColumns() error {
	migrations := []string{
		`ALTER TABLE bookings ADD COLUMN total_amount REAL NOT NULL DEFAULT 0`,
		`ALTER TABLE booking_items ADD COLUMN price_per_day REAL NOT NULL DEFAULT 0`,
	}

	for _, m := range migrations {
		_, err := db.Exec(m)
		if err != nil && !strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
			return fmt.Errorf("migration %q: %w", m, err)
		}
	}
	return nil
}

func (db *DB) hasColumn(table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, typeName string
		var notNull, pk int
		var dfltValue sql.NullString
		if err := rows.Scan(&cid, &name, &typeName, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
