package repository

import (
	"database/sql"
	"time"
)

// ScanRecord is one completed scan run.
type ScanRecord struct {
	ID                  string    `json:"id"`
	StartedAt           time.Time `json:"started_at"`
	CompletedAt         time.Time `json:"completed_at"`
	DurationMs          int64     `json:"duration_ms"`
	TransactionsScanned int       `json:"transactions_scanned"`
	ActiveRules         int       `json:"active_rules"`
	InvalidRules        int       `json:"invalid_rules"`
	NewViolations       int       `json:"new_violations"`
	TotalOpen           int       `json:"total_open"`
}

type ScanRepo struct {
	db *sql.DB
}

func NewScanRepo(db *sql.DB) *ScanRepo {
	return &ScanRepo{db: db}
}

func (r *ScanRepo) Insert(s *ScanRecord) error {
	_, err := r.db.Exec(
		`INSERT INTO scans
		(id, started_at, completed_at, duration_ms, transactions_scanned,
		 active_rules, invalid_rules, new_violations, total_open)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		s.ID, s.StartedAt.Format(time.RFC3339), s.CompletedAt.Format(time.RFC3339),
		s.DurationMs, s.TransactionsScanned, s.ActiveRules, s.InvalidRules,
		s.NewViolations, s.TotalOpen,
	)
	return err
}

// Latest returns the most recent completed scan, or nil when no scan has
// run yet.
func (r *ScanRepo) Latest() (*ScanRecord, error) {
	rows, err := r.db.Query(`
		SELECT id, started_at, completed_at, duration_ms, transactions_scanned,
			active_rules, invalid_rules, new_violations, total_open
		FROM scans ORDER BY completed_at DESC, id DESC LIMIT 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs, err := scanScanRecords(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

func (r *ScanRepo) History(limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`
		SELECT id, started_at, completed_at, duration_ms, transactions_scanned,
			active_rules, invalid_rules, new_violations, total_open
		FROM scans ORDER BY completed_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScanRecords(rows)
}

func scanScanRecords(rows *sql.Rows) ([]ScanRecord, error) {
	var recs []ScanRecord
	for rows.Next() {
		var s ScanRecord
		var started, completed string
		err := rows.Scan(
			&s.ID, &started, &completed, &s.DurationMs, &s.TransactionsScanned,
			&s.ActiveRules, &s.InvalidRules, &s.NewViolations, &s.TotalOpen,
		)
		if err != nil {
			return nil, err
		}
		s.StartedAt, _ = time.Parse(time.RFC3339, started)
		s.CompletedAt, _ = time.Parse(time.RFC3339, completed)
		recs = append(recs, s)
	}
	return recs, rows.Err()
}
