package repository

import (
	"database/sql"
	"time"
)

// ImportRepo tracks ingested dataset files by content hash so re-posting
// the same CSV is a no-op.
type ImportRepo struct {
	db *sql.DB
}

func NewImportRepo(db *sql.DB) *ImportRepo {
	return &ImportRepo{db: db}
}

func (r *ImportRepo) ExistsByHash(hash string) (bool, error) {
	var n int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM dataset_imports WHERE file_hash = ?", hash,
	).Scan(&n)
	return n > 0, err
}

func (r *ImportRepo) Insert(id, hash string, rowCount, rowsSkipped int, importedAt time.Time) error {
	_, err := r.db.Exec(
		`INSERT INTO dataset_imports (id, file_hash, row_count, rows_skipped, imported_at)
		VALUES (?,?,?,?,?)`,
		id, hash, rowCount, rowsSkipped, importedAt.Format(time.RFC3339),
	)
	return err
}
