package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			from_bank INTEGER NOT NULL,
			from_account TEXT NOT NULL,
			to_bank INTEGER NOT NULL,
			to_account TEXT NOT NULL,
			amount_received REAL NOT NULL,
			receiving_currency TEXT NOT NULL,
			amount_paid REAL NOT NULL,
			payment_currency TEXT NOT NULL,
			payment_format TEXT NOT NULL,
			is_laundering INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_from_account ON transactions(from_account)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_to_account ON transactions(to_account)`,

		`CREATE TABLE IF NOT EXISTS rules (
			id TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			condition TEXT NOT NULL,
			severity TEXT NOT NULL,
			source_reference TEXT NOT NULL,
			category TEXT NOT NULL,
			approved INTEGER NOT NULL DEFAULT 0,
			policy_id TEXT,
			invalid INTEGER NOT NULL DEFAULT 0,
			invalid_reason TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_approved ON rules(approved)`,

		`CREATE TABLE IF NOT EXISTS violations (
			id TEXT PRIMARY KEY,
			transaction_id TEXT NOT NULL,
			rule_id TEXT NOT NULL,
			rule_name TEXT NOT NULL,
			severity TEXT NOT NULL,
			explanation TEXT NOT NULL,
			evidence TEXT NOT NULL,
			status TEXT NOT NULL,
			reviewer_comment TEXT,
			detected_at DATETIME NOT NULL,
			reviewed_at DATETIME,
			UNIQUE(transaction_id, rule_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_violations_status ON violations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_violations_severity ON violations(severity)`,
		`CREATE INDEX IF NOT EXISTS idx_violations_rule ON violations(rule_id)`,
		`CREATE INDEX IF NOT EXISTS idx_violations_detected_at ON violations(detected_at)`,

		`CREATE TABLE IF NOT EXISTS scans (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			completed_at DATETIME NOT NULL,
			duration_ms INTEGER NOT NULL,
			transactions_scanned INTEGER NOT NULL,
			active_rules INTEGER NOT NULL,
			invalid_rules INTEGER NOT NULL,
			new_violations INTEGER NOT NULL,
			total_open INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scans_completed_at ON scans(completed_at)`,

		`CREATE TABLE IF NOT EXISTS dataset_imports (
			id TEXT PRIMARY KEY,
			file_hash TEXT UNIQUE NOT NULL,
			row_count INTEGER NOT NULL,
			rows_skipped INTEGER NOT NULL,
			imported_at DATETIME NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
