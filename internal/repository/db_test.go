package repository

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nitilens/compliance/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testViolation(id, txnID, ruleID string, detectedAt time.Time) domain.Violation {
	return domain.Violation{
		ID:            id,
		TransactionID: txnID,
		RuleID:        ruleID,
		RuleName:      "Large transaction exceeding reporting threshold",
		Severity:      domain.SeverityCritical,
		Explanation:   "test finding",
		Evidence:      map[string]any{"amountPaid": 12845.5},
		Status:        domain.StatusOpen,
		DetectedAt:    detectedAt,
	}
}

func testTxn(id string, ts time.Time, amount float64) domain.Transaction {
	return domain.Transaction{
		ID:                id,
		Timestamp:         ts,
		FromBank:          3208,
		FromAccount:       "8000ECA90",
		ToBank:            1,
		ToAccount:         "8000F5340",
		AmountReceived:    amount,
		ReceivingCurrency: "US Dollar",
		AmountPaid:        amount,
		PaymentCurrency:   "US Dollar",
		PaymentFormat:     domain.FormatWire,
	}
}
