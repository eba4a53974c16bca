package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nitilens/compliance/internal/domain"
)

type ViolationRepo struct {
	db *sql.DB
}

func NewViolationRepo(db *sql.DB) *ViolationRepo {
	return &ViolationRepo{db: db}
}

const violationColumns = `id, transaction_id, rule_id, rule_name, severity,
	explanation, evidence, status, reviewer_comment, detected_at, reviewed_at`

// UpsertBatch inserts scan candidates in a single transaction. The unique
// (transaction_id, rule_id) index plus INSERT OR IGNORE makes the whole
// dedup policy structural: an existing finding in any status — including
// false_positive, which must never re-open — suppresses the candidate.
// Readers see either the pre-scan or post-scan store, never a partial sweep.
func (r *ViolationRepo) UpsertBatch(viols []domain.Violation) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO violations (` + violationColumns + `)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range viols {
		v := &viols[i]
		evidence, err := json.Marshal(v.Evidence)
		if err != nil {
			return inserted, fmt.Errorf("marshal evidence for %s: %w", v.ID, err)
		}
		res, err := stmt.Exec(
			v.ID, v.TransactionID, v.RuleID, v.RuleName, string(v.Severity),
			v.Explanation, string(evidence), string(v.Status),
			nullString(v.ReviewerComment), v.DetectedAt.Format(time.RFC3339),
			formatNullableTime(v.ReviewedAt),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert %s: %w", v.ID, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *ViolationRepo) Get(id string) (*domain.Violation, error) {
	rows, err := r.db.Query("SELECT "+violationColumns+" FROM violations WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	viols, err := scanViolations(rows)
	if err != nil {
		return nil, err
	}
	if len(viols) == 0 {
		return nil, domain.ErrNotFound
	}
	return &viols[0], nil
}

type ViolationFilter struct {
	Status   string
	Severity string
	RuleID   string
	Limit    int
	Offset   int
}

// List returns violations in stable order: detection time ascending, ties
// broken by id.
func (r *ViolationRepo) List(f ViolationFilter) ([]domain.Violation, int, error) {
	where, args := buildViolationWhere(f)

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM violations"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := "SELECT " + violationColumns + " FROM violations" + where +
		" ORDER BY detected_at ASC, id ASC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	viols, err := scanViolations(rows)
	return viols, total, err
}

// ReviewQueue returns open and reviewed violations ranked by severity
// (critical first), then detection time.
func (r *ViolationRepo) ReviewQueue(severity string, limit int) ([]domain.Violation, int, error) {
	where := " WHERE status IN ('open', 'reviewed')"
	var args []any
	if severity != "" {
		where += " AND severity = ?"
		args = append(args, severity)
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM violations"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	q := "SELECT " + violationColumns + " FROM violations" + where + `
		ORDER BY CASE severity
			WHEN 'critical' THEN 0
			WHEN 'high' THEN 1
			WHEN 'medium' THEN 2
			ELSE 3
		END, detected_at ASC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	viols, err := scanViolations(rows)
	return viols, total, err
}

// Transition applies a review status change under the state machine. The
// read-modify-write runs in one sql transaction so two reviewers acting on
// the same violation cannot lose updates.
func (r *ViolationRepo) Transition(id string, to domain.ViolationStatus, comment string, now time.Time) (*domain.Violation, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRow("SELECT status FROM violations WHERE id = ?", id).Scan(&current)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if !domain.ViolationStatus(current).CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, to)
	}

	_, err = tx.Exec(
		`UPDATE violations SET status = ?, reviewer_comment = ?, reviewed_at = ? WHERE id = ?`,
		string(to), nullString(comment), now.Format(time.RFC3339), id,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return r.Get(id)
}

func (r *ViolationRepo) CountsByStatus() (map[domain.ViolationStatus]int, error) {
	rows, err := r.db.Query("SELECT status, COUNT(*) FROM violations GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.ViolationStatus]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[domain.ViolationStatus(s)] = n
	}
	return counts, rows.Err()
}

// OpenSeverityBreakdown counts open violations by severity, the dashboard's
// breakdown.
func (r *ViolationRepo) OpenSeverityBreakdown() (map[domain.Severity]int, error) {
	rows, err := r.db.Query(
		"SELECT severity, COUNT(*) FROM violations WHERE status = 'open' GROUP BY severity",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Severity]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[domain.Severity(s)] = n
	}
	return counts, rows.Err()
}

type RuleViolationCount struct {
	RuleID         string `json:"rule_id"`
	RuleName       string `json:"rule_name"`
	ViolationCount int    `json:"violation_count"`
}

// MostViolated counts violations per rule in any status, descending by
// count with ties broken by rule id.
func (r *ViolationRepo) MostViolated(limit int) ([]RuleViolationCount, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db.Query(`
		SELECT rule_id, rule_name, COUNT(*) AS n FROM violations
		GROUP BY rule_id, rule_name
		ORDER BY n DESC, rule_id ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []RuleViolationCount
	for rows.Next() {
		var c RuleViolationCount
		if err := rows.Scan(&c.RuleID, &c.RuleName, &c.ViolationCount); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

type TrendBucket struct {
	Date       string
	Violations int
	// NonFalsePositive counts that day's violations excluding dismissed
	// ones, the basis for the per-bucket compliance rate.
	NonFalsePositive int
}

// TrendDaily buckets violations by UTC detection date, ascending.
func (r *ViolationRepo) TrendDaily() ([]TrendBucket, error) {
	rows, err := r.db.Query(`
		SELECT date(detected_at), COUNT(*),
			COALESCE(SUM(CASE WHEN status != 'false_positive' THEN 1 ELSE 0 END), 0)
		FROM violations GROUP BY date(detected_at) ORDER BY date(detected_at)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []TrendBucket
	for rows.Next() {
		var b TrendBucket
		if err := rows.Scan(&b.Date, &b.Violations, &b.NonFalsePositive); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

type ActivityItem struct {
	Type          string          `json:"type"`
	Severity      domain.Severity `json:"severity"`
	TransactionID string          `json:"transaction_id"`
	RuleName      string          `json:"rule_name"`
	Timestamp     time.Time       `json:"timestamp"`
	Status        string          `json:"status"`
	Comment       string          `json:"comment,omitempty"`
}

// Activity merges detection and review events into one reverse-chronological
// feed.
func (r *ViolationRepo) Activity(limit int) ([]ActivityItem, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`
		SELECT 'violation_detected', severity, transaction_id, rule_name,
			detected_at, status, NULL
		FROM violations
		UNION ALL
		SELECT 'violation_reviewed', severity, transaction_id, rule_name,
			reviewed_at, status, reviewer_comment
		FROM violations WHERE reviewed_at IS NOT NULL
		ORDER BY 5 DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ActivityItem
	for rows.Next() {
		var it ActivityItem
		var sev, ts string
		var comment sql.NullString
		if err := rows.Scan(&it.Type, &sev, &it.TransactionID, &it.RuleName, &ts, &it.Status, &comment); err != nil {
			return nil, err
		}
		it.Severity = domain.Severity(sev)
		it.Timestamp, _ = time.Parse(time.RFC3339, ts)
		it.Comment = comment.String
		items = append(items, it)
	}
	return items, rows.Err()
}

// --- helpers ---

func buildViolationWhere(f ViolationFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.Severity != "" {
		clauses = append(clauses, "severity = ?")
		args = append(args, f.Severity)
	}
	if f.RuleID != "" {
		clauses = append(clauses, "rule_id = ?")
		args = append(args, f.RuleID)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanViolations(rows *sql.Rows) ([]domain.Violation, error) {
	var viols []domain.Violation
	for rows.Next() {
		var v domain.Violation
		var sev, status, evidence, detectedAt string
		var comment, reviewedAt sql.NullString

		err := rows.Scan(
			&v.ID, &v.TransactionID, &v.RuleID, &v.RuleName, &sev,
			&v.Explanation, &evidence, &status, &comment, &detectedAt, &reviewedAt,
		)
		if err != nil {
			return nil, err
		}

		v.Severity = domain.Severity(sev)
		v.Status = domain.ViolationStatus(status)
		v.ReviewerComment = comment.String
		v.DetectedAt, _ = time.Parse(time.RFC3339, detectedAt)
		if reviewedAt.Valid {
			t, _ := time.Parse(time.RFC3339, reviewedAt.String)
			v.ReviewedAt = &t
		}
		if err := json.Unmarshal([]byte(evidence), &v.Evidence); err != nil {
			v.Evidence = map[string]any{}
		}

		viols = append(viols, v)
	}
	return viols, rows.Err()
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
