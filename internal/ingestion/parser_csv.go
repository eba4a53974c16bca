package ingestion

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nitilens/compliance/internal/domain"
)

// Columns is the IBM AML dataset header, in file order. "Account" is the
// originating account and "Account.1" the receiving account.
var Columns = []string{
	"Timestamp", "From Bank", "Account", "To Bank", "Account.1",
	"Amount Received", "Receiving Currency", "Amount Paid",
	"Payment Currency", "Payment Format", "Is Laundering",
}

// timestampLayouts covers the raw Kaggle export and the normalised sample
// data.
var timestampLayouts = []string{
	"2006/01/02 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseTransactionsCSV parses the IBM AML CSV. Malformed rows are skipped
// with a log line rather than failing the file: one bad row must not block
// ingestion of the rest. Returns the parsed transactions and the number of
// rows skipped.
func ParseTransactionsCSV(data []byte) ([]domain.Transaction, int, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	col, err := mapHeader(header)
	if err != nil {
		return nil, 0, err
	}

	var txns []domain.Transaction
	skipped := 0
	lineNum := 1

	for {
		lineNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("[ingestion] skipping line %d: %v", lineNum, err)
			skipped++
			continue
		}

		txn, err := parseRow(row, col)
		if err != nil {
			log.Printf("[ingestion] skipping line %d: %v", lineNum, err)
			skipped++
			continue
		}
		txns = append(txns, *txn)
	}

	return txns, skipped, nil
}

func mapHeader(header []string) (map[string]int, error) {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, name := range Columns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return col, nil
}

func parseRow(row []string, col map[string]int) (*domain.Transaction, error) {
	get := func(name string) string {
		i := col[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	ts, err := parseTimestamp(get("Timestamp"))
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	fromBank, err := strconv.Atoi(get("From Bank"))
	if err != nil {
		return nil, fmt.Errorf("from bank: %w", err)
	}
	toBank, err := strconv.Atoi(get("To Bank"))
	if err != nil {
		return nil, fmt.Errorf("to bank: %w", err)
	}
	amountReceived, err := strconv.ParseFloat(get("Amount Received"), 64)
	if err != nil {
		return nil, fmt.Errorf("amount received: %w", err)
	}
	amountPaid, err := strconv.ParseFloat(get("Amount Paid"), 64)
	if err != nil {
		return nil, fmt.Errorf("amount paid: %w", err)
	}
	isLaundering, err := strconv.Atoi(get("Is Laundering"))
	if err != nil {
		return nil, fmt.Errorf("is laundering: %w", err)
	}

	txn := &domain.Transaction{
		Timestamp:         ts,
		FromBank:          fromBank,
		FromAccount:       get("Account"),
		ToBank:            toBank,
		ToAccount:         get("Account.1"),
		AmountReceived:    amountReceived,
		ReceivingCurrency: get("Receiving Currency"),
		AmountPaid:        amountPaid,
		PaymentCurrency:   get("Payment Currency"),
		PaymentFormat:     domain.PaymentFormat(get("Payment Format")),
		IsLaundering:      isLaundering,
	}
	txn.ID = TransactionID(txn)
	return txn, nil
}

// TransactionID derives a deterministic id from the row content, since the
// dataset carries no id column. The same row always hashes to the same id,
// which is what keeps re-ingestion and re-scanning idempotent.
func TransactionID(t *domain.Transaction) string {
	key := strings.Join([]string{
		t.Timestamp.Format("2006-01-02 15:04:05"),
		t.FromAccount,
		t.ToAccount,
		strconv.FormatFloat(t.AmountPaid, 'f', -1, 64),
	}, "|")
	u := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(key))
	return "TXN-" + strings.ToUpper(hex.EncodeToString(u[:6]))
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
