package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitilens/compliance/internal/domain"
)

func TestTransactionBulkInsertIdempotent(t *testing.T) {
	repo := NewTransactionRepo(newTestDB(t))
	base := time.Date(2022, 9, 1, 0, 8, 0, 0, time.UTC)

	txns := []domain.Transaction{
		testTxn("TXN-A", base, 3697.34),
		testTxn("TXN-B", base.Add(time.Minute), 12845.50),
	}

	inserted, err := repo.BulkInsert(txns)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	inserted, err = repo.BulkInsert(txns)
	require.NoError(t, err)
	assert.Zero(t, inserted, "re-ingesting the same rows inserts nothing")

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestTransactionAllOrderedByTimestamp(t *testing.T) {
	repo := NewTransactionRepo(newTestDB(t))
	base := time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.BulkInsert([]domain.Transaction{
		testTxn("TXN-C", base.Add(2*time.Hour), 100),
		testTxn("TXN-A", base, 200),
		testTxn("TXN-B", base.Add(time.Hour), 300),
	})
	require.NoError(t, err)

	all, err := repo.All()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "TXN-A", all[0].ID)
	assert.Equal(t, "TXN-B", all[1].ID)
	assert.Equal(t, "TXN-C", all[2].ID)
	assert.Equal(t, base, all[0].Timestamp)
}

func TestTransactionGetByID(t *testing.T) {
	repo := NewTransactionRepo(newTestDB(t))
	base := time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.BulkInsert([]domain.Transaction{testTxn("TXN-A", base, 100)})
	require.NoError(t, err)

	got, err := repo.GetByID("TXN-A")
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.AmountPaid)
	assert.Equal(t, domain.FormatWire, got.PaymentFormat)

	_, err = repo.GetByID("TXN-MISSING")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactionListFilters(t *testing.T) {
	repo := NewTransactionRepo(newTestDB(t))
	base := time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC)

	ach := testTxn("TXN-B", base.Add(time.Hour), 200)
	ach.PaymentFormat = domain.FormatACH
	bitcoin := testTxn("TXN-C", base.Add(2*time.Hour), 300)
	bitcoin.PaymentCurrency = "Bitcoin"

	_, err := repo.BulkInsert([]domain.Transaction{
		testTxn("TXN-A", base, 100),
		ach,
		bitcoin,
	})
	require.NoError(t, err)

	got, total, err := repo.List(TransactionFilter{Format: "ACH"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, "TXN-B", got[0].ID)

	got, total, err = repo.List(TransactionFilter{Currency: "US Dollar"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, got, 2)

	from := base.Add(90 * time.Minute)
	got, total, err = repo.List(TransactionFilter{From: &from})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "TXN-C", got[0].ID)
}

func TestGetStats(t *testing.T) {
	repo := NewTransactionRepo(newTestDB(t))
	base := time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC)

	laundering := testTxn("TXN-B", base.Add(time.Minute), 300)
	laundering.IsLaundering = 1
	bitcoin := testTxn("TXN-C", base.Add(2*time.Minute), 500)
	bitcoin.PaymentCurrency = "Bitcoin"
	bitcoin.PaymentFormat = domain.FormatACH

	_, err := repo.BulkInsert([]domain.Transaction{
		testTxn("TXN-A", base, 100),
		laundering,
		bitcoin,
	})
	require.NoError(t, err)

	stats, err := repo.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalTransactions)
	assert.Equal(t, 1, stats.ConfirmedLaundering)
	assert.InDelta(t, 33.33, stats.LaunderingPercentage, 0.01)
	assert.Equal(t, 300.0, stats.AvgAmountPaid)
	assert.Equal(t, 500.0, stats.MaxAmountPaid)
	assert.Equal(t, 2, stats.TopCurrencies["US Dollar"])
	assert.Equal(t, 1, stats.TopCurrencies["Bitcoin"])
	assert.Equal(t, 2, stats.PaymentFormats["Wire"])
	assert.Equal(t, 1, stats.PaymentFormats["ACH"])
}

func TestGetStatsEmpty(t *testing.T) {
	repo := NewTransactionRepo(newTestDB(t))

	stats, err := repo.GetStats()
	require.NoError(t, err)
	assert.Zero(t, stats.TotalTransactions)
	assert.Zero(t, stats.LaunderingPercentage)
}
