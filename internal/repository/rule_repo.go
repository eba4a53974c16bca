package repository

import (
	"database/sql"
	"fmt"

	"github.com/nitilens/compliance/internal/domain"
)

type RuleRepo struct {
	db *sql.DB
}

func NewRuleRepo(db *sql.DB) *RuleRepo {
	return &RuleRepo{db: db}
}

const ruleColumns = `id, description, condition, severity, source_reference,
	category, approved, policy_id, invalid, invalid_reason`

// BulkInsert adds rules, skipping ids that already exist so re-seeding is
// idempotent and approval state survives restarts.
func (r *RuleRepo) BulkInsert(rules []domain.PolicyRule) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO rules (` + ruleColumns + `)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range rules {
		rule := &rules[i]
		res, err := stmt.Exec(
			rule.ID, rule.Description, rule.Condition, string(rule.Severity),
			rule.SourceReference, rule.Category, rule.Approved,
			nullString(rule.PolicyID), rule.Invalid, nullString(rule.InvalidReason),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert %s: %w", rule.ID, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *RuleRepo) List() ([]domain.PolicyRule, error) {
	rows, err := r.db.Query("SELECT " + ruleColumns + " FROM rules ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

// ListActive returns the rules that participate in scans: approved and not
// flagged invalid.
func (r *RuleRepo) ListActive() ([]domain.PolicyRule, error) {
	rows, err := r.db.Query(
		"SELECT " + ruleColumns + " FROM rules WHERE approved = 1 AND invalid = 0 ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *RuleRepo) CountActive() (int, error) {
	var n int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM rules WHERE approved = 1 AND invalid = 0",
	).Scan(&n)
	return n, err
}

func (r *RuleRepo) GetByID(id string) (*domain.PolicyRule, error) {
	rows, err := r.db.Query("SELECT "+ruleColumns+" FROM rules WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules, err := scanRules(rows)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, domain.ErrNotFound
	}
	return &rules[0], nil
}

// SetApproved toggles a rule's approval. Idempotent: setting the current
// value is not an error.
func (r *RuleRepo) SetApproved(id string, approved bool) error {
	res, err := r.db.Exec("UPDATE rules SET approved = ? WHERE id = ?", approved, id)
	if err != nil {
		return err
	}
	if ra, _ := res.RowsAffected(); ra == 0 {
		// RowsAffected is 0 both for unknown ids and no-op updates; probe.
		var exists int
		if err := r.db.QueryRow("SELECT COUNT(*) FROM rules WHERE id = ?", id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
	}
	return nil
}

func (r *RuleRepo) Delete(id string) error {
	res, err := r.db.Exec("DELETE FROM rules WHERE id = ?", id)
	if err != nil {
		return err
	}
	if ra, _ := res.RowsAffected(); ra == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// --- helpers ---

func scanRules(rows *sql.Rows) ([]domain.PolicyRule, error) {
	var rules []domain.PolicyRule
	for rows.Next() {
		var rule domain.PolicyRule
		var sev string
		var policyID, invalidReason sql.NullString

		err := rows.Scan(
			&rule.ID, &rule.Description, &rule.Condition, &sev,
			&rule.SourceReference, &rule.Category, &rule.Approved,
			&policyID, &rule.Invalid, &invalidReason,
		)
		if err != nil {
			return nil, err
		}

		rule.Severity = domain.Severity(sev)
		rule.PolicyID = policyID.String
		rule.InvalidReason = invalidReason.String
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
