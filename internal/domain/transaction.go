package domain

import "time"

type PaymentFormat string

const (
	FormatReinvestment PaymentFormat = "Reinvestment"
	FormatCheque       PaymentFormat = "Cheque"
	FormatACH          PaymentFormat = "ACH"
	FormatWire         PaymentFormat = "Wire"
	FormatCreditCards  PaymentFormat = "Credit Cards"
	FormatCash         PaymentFormat = "Cash"
)

// Transaction is one row of the IBM AML dataset. Rows are immutable after
// ingestion; IsLaundering is the dataset's ground-truth label, not a verdict
// produced by this engine.
type Transaction struct {
	ID                string        `json:"id"`
	Timestamp         time.Time     `json:"timestamp"`
	FromBank          int           `json:"from_bank"`
	FromAccount       string        `json:"from_account"`
	ToBank            int           `json:"to_bank"`
	ToAccount         string        `json:"to_account"`
	AmountReceived    float64       `json:"amount_received"`
	ReceivingCurrency string        `json:"receiving_currency"`
	AmountPaid        float64       `json:"amount_paid"`
	PaymentCurrency   string        `json:"payment_currency"`
	PaymentFormat     PaymentFormat `json:"payment_format"`
	IsLaundering      int           `json:"is_laundering"`
}
