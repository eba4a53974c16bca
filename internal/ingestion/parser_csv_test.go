package ingestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitilens/compliance/internal/domain"
)

const sampleCSV = `Timestamp,From Bank,Account,To Bank,Account.1,Amount Received,Receiving Currency,Amount Paid,Payment Currency,Payment Format,Is Laundering
2022/09/01 00:08,3208,8000ECA90,3208,8000ECA90,3697.34,US Dollar,3697.34,US Dollar,Reinvestment,0
2022/09/01 00:21,3209,8000F4580,1,8000F5340,12845.50,US Dollar,12845.50,US Dollar,Wire,1
`

func TestParseTransactionsCSV(t *testing.T) {
	txns, skipped, err := ParseTransactionsCSV([]byte(sampleCSV))
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, txns, 2)

	first := txns[0]
	assert.Equal(t, time.Date(2022, 9, 1, 0, 8, 0, 0, time.UTC), first.Timestamp)
	assert.Equal(t, 3208, first.FromBank)
	assert.Equal(t, "8000ECA90", first.FromAccount)
	assert.Equal(t, 3697.34, first.AmountPaid)
	assert.Equal(t, domain.FormatReinvestment, first.PaymentFormat)
	assert.Equal(t, 0, first.IsLaundering)
	assert.Equal(t, 1, txns[1].IsLaundering)
}

func TestParseTransactionsCSVSkipsBadRows(t *testing.T) {
	csv := sampleCSV +
		"not-a-date,3208,X,3208,Y,1.0,US Dollar,1.0,US Dollar,Wire,0\n" +
		"2022/09/01 01:00,3208,X,3208,Y,abc,US Dollar,1.0,US Dollar,Wire,0\n" +
		"2022/09/01 02:00,12,8016F3D00,12,8016F3D00,8000.00,US Dollar,8000.00,US Dollar,ACH,0\n"

	txns, skipped, err := ParseTransactionsCSV([]byte(csv))
	require.NoError(t, err, "bad rows never fail the file")
	assert.Equal(t, 2, skipped)
	assert.Len(t, txns, 3)
}

func TestParseTransactionsCSVMissingColumn(t *testing.T) {
	_, _, err := ParseTransactionsCSV([]byte("Timestamp,From Bank\n2022/09/01 00:08,3208\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func TestTransactionIDDeterministic(t *testing.T) {
	txns, _, err := ParseTransactionsCSV([]byte(sampleCSV))
	require.NoError(t, err)

	again, _, err := ParseTransactionsCSV([]byte(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, txns[0].ID, again[0].ID, "same row always hashes to the same id")
	assert.NotEqual(t, txns[0].ID, txns[1].ID)
	assert.Regexp(t, `^TXN-[0-9A-F]{12}$`, txns[0].ID)
}

func TestParseTimestampLayouts(t *testing.T) {
	for _, s := range []string{
		"2022/09/01 00:08",
		"2022-09-01 00:08:00",
		"2022-09-01T00:08:00Z",
	} {
		ts, err := parseTimestamp(s)
		require.NoError(t, err, s)
		assert.Equal(t, time.Date(2022, 9, 1, 0, 8, 0, 0, time.UTC), ts)
	}

	_, err := parseTimestamp("last tuesday")
	assert.Error(t, err)
}
