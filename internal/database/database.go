package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the SQLite handle with the repository methods used by the service.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	inMemory := path == ":memory:" || strings.HasPrefix(path, "file::memory:")
	if !inMemory {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; :memory: databases exist per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pragmas := []string{`PRAGMA busy_timeout = 5000`}
	if !inMemory {
		pragmas = append(pragmas, `PRAGMA journal_mode = WAL`)
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", p, err)
		}
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	dbLogger := logger.With().Str("component", "database").Logger()
	dbLogger.Info().Str("path", path).Msg("database initialized")

	return &DB{DB: sqlDB, path: path, logger: &dbLogger}, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

// Ready reports whether the database answers queries.
func (db *DB) Ready(ctx context.Context) error {
	return db.PingContext(ctx)
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS customers (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            first_name TEXT NOT NULL DEFAULT '',
            last_name TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            document_type TEXT NOT NULL DEFAULT '',
            document_number TEXT NOT NULL DEFAULT '',
            license_number TEXT NOT NULL DEFAULT '',
            address TEXT NOT NULL DEFAULT '',
            city TEXT NOT NULL DEFAULT '',
            postal_code TEXT NOT NULL DEFAULT '',
            country TEXT NOT NULL DEFAULT '',
            nationality TEXT NOT NULL DEFAULT '',
            birth_date DATETIME,
            preferred_language TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS cars (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            registration TEXT NOT NULL UNIQUE,
            brand TEXT NOT NULL DEFAULT '',
            model TEXT NOT NULL DEFAULT '',
            year INTEGER NOT NULL DEFAULT 0,
            color TEXT NOT NULL DEFAULT '',
            fuel_type TEXT NOT NULL DEFAULT '',
            daily_rate TEXT NOT NULL DEFAULT '0',
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            customer_id INTEGER REFERENCES customers(id),
            car_id INTEGER REFERENCES cars(id),
            pickup_date DATETIME,
            return_date DATETIME,
            pickup_location TEXT NOT NULL DEFAULT '',
            return_location TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            total_price TEXT NOT NULL DEFAULT '0',
            notes TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS booking_vehicles (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL REFERENCES bookings(id),
            car_id INTEGER NOT NULL REFERENCES cars(id),
            price TEXT NOT NULL DEFAULT '0'
        )`,
		`CREATE TABLE IF NOT EXISTS booking_drivers (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL REFERENCES bookings(id),
            full_name TEXT NOT NULL,
            document_type TEXT NOT NULL DEFAULT '',
            document_number TEXT NOT NULL DEFAULT '',
            license_number TEXT NOT NULL DEFAULT '',
            birth_date DATETIME,
            fee TEXT NOT NULL DEFAULT '0'
        )`,
		`CREATE TABLE IF NOT EXISTS booking_extras (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL REFERENCES bookings(id),
            name TEXT NOT NULL,
            unit_price TEXT NOT NULL DEFAULT '0',
            quantity INTEGER NOT NULL DEFAULT 1,
            per_day BOOLEAN NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS booking_upgrades (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL REFERENCES bookings(id),
            name TEXT NOT NULL,
            price_per_day TEXT NOT NULL DEFAULT '0',
            quantity INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS inspections (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL REFERENCES bookings(id),
            car_id INTEGER NOT NULL REFERENCES cars(id),
            type TEXT NOT NULL CHECK (type IN ('delivery', 'return')),
            odometer INTEGER NOT NULL DEFAULT 0,
            fuel_level TEXT NOT NULL DEFAULT '',
            notes TEXT NOT NULL DEFAULT '',
            photos TEXT NOT NULL DEFAULT '[]',
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS company_config (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            company_name TEXT NOT NULL DEFAULT '',
            tax_id TEXT NOT NULL DEFAULT '',
            address TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            website TEXT NOT NULL DEFAULT '',
            logo_backend TEXT NOT NULL DEFAULT '',
            logo_key TEXT NOT NULL DEFAULT '',
            primary_color TEXT NOT NULL DEFAULT '',
            secondary_color TEXT NOT NULL DEFAULT '',
            active BOOLEAN NOT NULL DEFAULT 1,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS contracts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL UNIQUE REFERENCES bookings(id),
            contract_number TEXT NOT NULL,
            contract_text TEXT NOT NULL,
            version INTEGER NOT NULL,
            signed_at DATETIME,
            signature_data TEXT,
            ip_address TEXT,
            user_agent TEXT,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS contract_history (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            contract_id INTEGER NOT NULL REFERENCES contracts(id),
            version INTEGER NOT NULL,
            contract_text TEXT NOT NULL,
            change_reason TEXT NOT NULL DEFAULT '',
            created_by TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS inspection_links (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL REFERENCES bookings(id),
            token TEXT NOT NULL UNIQUE,
            expires_at DATETIME NOT NULL,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            booking_id INTEGER NOT NULL DEFAULT 0,
            contract_id INTEGER NOT NULL DEFAULT 0,
            payload TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		// History rows are immutable.
		`CREATE TRIGGER IF NOT EXISTS contract_history_no_update
            BEFORE UPDATE ON contract_history
            BEGIN SELECT RAISE(ABORT, 'contract history is append-only'); END`,
		`CREATE TRIGGER IF NOT EXISTS contract_history_no_delete
            BEFORE DELETE ON contract_history
            BEGIN SELECT RAISE(ABORT, 'contract history is append-only'); END`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_pickup_date ON bookings(pickup_date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_customer_id ON bookings(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_vehicles_booking_id ON booking_vehicles(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_drivers_booking_id ON booking_drivers(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_extras_booking_id ON booking_extras(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_upgrades_booking_id ON booking_upgrades(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_inspections_booking_id ON inspections(booking_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_inspections_vehicle_type ON inspections(booking_id, car_id, type)`,
		`CREATE INDEX IF NOT EXISTS idx_contracts_number ON contracts(contract_number)`,
		`CREATE INDEX IF NOT EXISTS idx_contract_history_contract_id ON contract_history(contract_id)`,
		`CREATE INDEX IF NOT EXISTS idx_inspection_links_booking_id ON inspection_links(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}
