package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nitilens/compliance/internal/domain"
)

type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

const txnColumns = `id, timestamp, from_bank, from_account, to_bank, to_account,
	amount_received, receiving_currency, amount_paid, payment_currency,
	payment_format, is_laundering`

func (r *TransactionRepo) BulkInsert(txns []domain.Transaction) (int, error) {
	inserted := 0
	sqlTx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.Prepare(
		`INSERT OR IGNORE INTO transactions (` + txnColumns + `)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range txns {
		t := &txns[i]
		res, err := stmt.Exec(
			t.ID, t.Timestamp.Format(time.RFC3339), t.FromBank, t.FromAccount,
			t.ToBank, t.ToAccount, t.AmountReceived, t.ReceivingCurrency,
			t.AmountPaid, t.PaymentCurrency, string(t.PaymentFormat), t.IsLaundering,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *TransactionRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&count)
	return count, err
}

func (r *TransactionRepo) GetByID(id string) (*domain.Transaction, error) {
	row := r.db.QueryRow(
		"SELECT "+txnColumns+" FROM transactions WHERE id = ?", id,
	)
	t, err := scanTransactionRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return t, err
}

// All returns the full corpus ordered by timestamp, the view a scan
// evaluates against.
func (r *TransactionRepo) All() ([]domain.Transaction, error) {
	rows, err := r.db.Query(
		"SELECT " + txnColumns + " FROM transactions ORDER BY timestamp, id",
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransactionRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

// Preview returns the first limit rows in dataset order, for the raw-data
// preview endpoint.
func (r *TransactionRepo) Preview(limit int) ([]domain.Transaction, error) {
	rows, err := r.db.Query(
		"SELECT "+txnColumns+" FROM transactions ORDER BY timestamp, id LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransactionRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

type TransactionFilter struct {
	Currency string
	Format   string
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

func (r *TransactionRepo) List(f TransactionFilter) ([]domain.Transaction, int, error) {
	where, args := buildTransactionWhere(f)

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM transactions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := "SELECT " + txnColumns + " FROM transactions" + where +
		" ORDER BY timestamp DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransactionRow(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		txns = append(txns, *t)
	}
	return txns, total, rows.Err()
}

// DatasetStats holds the aggregate statistics served for the AML dataset.
type DatasetStats struct {
	TotalTransactions    int
	ConfirmedLaundering  int
	LaunderingPercentage float64
	AvgAmountPaid        float64
	MaxAmountPaid        float64
	TopCurrencies        map[string]int
	PaymentFormats       map[string]int
}

func (r *TransactionRepo) GetStats() (*DatasetStats, error) {
	s := &DatasetStats{
		TopCurrencies:  make(map[string]int),
		PaymentFormats: make(map[string]int),
	}

	err := r.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(is_laundering), 0),
			COALESCE(AVG(amount_paid), 0),
			COALESCE(MAX(amount_paid), 0)
		FROM transactions
	`).Scan(&s.TotalTransactions, &s.ConfirmedLaundering, &s.AvgAmountPaid, &s.MaxAmountPaid)
	if err != nil {
		return nil, err
	}
	if s.TotalTransactions > 0 {
		s.LaunderingPercentage = float64(s.ConfirmedLaundering) / float64(s.TotalTransactions) * 100
	}

	rows, err := r.db.Query(`
		SELECT payment_currency, COUNT(*) FROM transactions
		GROUP BY payment_currency ORDER BY COUNT(*) DESC LIMIT 5
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c string
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			return nil, err
		}
		s.TopCurrencies[c] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fmtRows, err := r.db.Query(
		"SELECT payment_format, COUNT(*) FROM transactions GROUP BY payment_format",
	)
	if err != nil {
		return nil, err
	}
	defer fmtRows.Close()
	for fmtRows.Next() {
		var f string
		var n int
		if err := fmtRows.Scan(&f, &n); err != nil {
			return nil, err
		}
		s.PaymentFormats[f] = n
	}
	return s, fmtRows.Err()
}

// --- helpers ---

func buildTransactionWhere(f TransactionFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.Currency != "" {
		clauses = append(clauses, "payment_currency = ?")
		args = append(args, f.Currency)
	}
	if f.Format != "" {
		clauses = append(clauses, "payment_format = ?")
		args = append(args, f.Format)
	}
	if f.From != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, f.From.Format(time.RFC3339))
	}
	if f.To != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, f.To.Format(time.RFC3339))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanTransactionRow(scan func(dest ...any) error) (*domain.Transaction, error) {
	var t domain.Transaction
	var ts, format string

	err := scan(
		&t.ID, &ts, &t.FromBank, &t.FromAccount, &t.ToBank, &t.ToAccount,
		&t.AmountReceived, &t.ReceivingCurrency, &t.AmountPaid,
		&t.PaymentCurrency, &format, &t.IsLaundering,
	)
	if err != nil {
		return nil, err
	}

	t.PaymentFormat = domain.PaymentFormat(format)
	t.Timestamp, _ = time.Parse(time.RFC3339, ts)
	return &t, nil
}
