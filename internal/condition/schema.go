package condition

import (
	"strconv"
	"strings"

	"github.com/nitilens/compliance/internal/domain"
)

// FieldKind classifies how a schema field participates in comparisons.
type FieldKind int

const (
	KindNumeric FieldKind = iota
	KindString
	KindTime
)

// Field is one entry of the fixed transaction schema. Name is the display
// name used in rule conditions ("Amount Paid"); Key is the camelCase
// attribute name used in evidence payloads ("amountPaid").
type Field struct {
	Name string
	Key  string
	Kind FieldKind
}

// schema lists every field a condition may reference. Display names are
// matched case-sensitively; "Account" and "Account.1" are the raw dataset
// column names and alias the friendlier "From Account" / "To Account".
var schema = []Field{
	{Name: "Timestamp", Key: "timestamp", Kind: KindTime},
	{Name: "From Bank", Key: "fromBank", Kind: KindNumeric},
	{Name: "From Account", Key: "fromAccount", Kind: KindString},
	{Name: "Account.1", Key: "toAccount", Kind: KindString},
	{Name: "Account", Key: "fromAccount", Kind: KindString},
	{Name: "To Bank", Key: "toBank", Kind: KindNumeric},
	{Name: "To Account", Key: "toAccount", Kind: KindString},
	{Name: "Amount Received", Key: "amountReceived", Kind: KindNumeric},
	{Name: "Receiving Currency", Key: "receivingCurrency", Kind: KindString},
	{Name: "Amount Paid", Key: "amountPaid", Kind: KindNumeric},
	{Name: "Payment Currency", Key: "paymentCurrency", Kind: KindString},
	{Name: "Payment Format", Key: "paymentFormat", Kind: KindString},
	{Name: "Is Laundering", Key: "isLaundering", Kind: KindNumeric},
}

// matchField returns the longest schema field name that prefixes s, so that
// "Amount Paid % 1000" resolves to "Amount Paid" rather than failing on the
// space. The second return is the remainder of s.
func matchField(s string) (Field, string, bool) {
	var best Field
	bestLen := -1
	for _, f := range schema {
		if strings.HasPrefix(s, f.Name) && len(f.Name) > bestLen {
			// A field name must end at a word boundary.
			rest := s[len(f.Name):]
			if rest != "" && isWordChar(rest[0]) {
				continue
			}
			best = f
			bestLen = len(f.Name)
		}
	}
	if bestLen < 0 {
		return Field{}, s, false
	}
	return best, s[bestLen:], true
}

func isWordChar(c byte) bool {
	return c == '_' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Number returns the field's numeric value. ok is false for non-numeric
// fields, which makes numeric comparisons fail closed.
func (f Field) Number(t *domain.Transaction) (float64, bool) {
	switch f.Key {
	case "fromBank":
		return float64(t.FromBank), true
	case "toBank":
		return float64(t.ToBank), true
	case "amountReceived":
		return t.AmountReceived, true
	case "amountPaid":
		return t.AmountPaid, true
	case "isLaundering":
		return float64(t.IsLaundering), true
	default:
		return 0, false
	}
}

// Text returns the field's value as a string, used for equality and
// membership tests and for window group keys.
func (f Field) Text(t *domain.Transaction) string {
	switch f.Key {
	case "timestamp":
		return t.Timestamp.Format("2006-01-02 15:04:05")
	case "fromAccount":
		return t.FromAccount
	case "toAccount":
		return t.ToAccount
	case "receivingCurrency":
		return t.ReceivingCurrency
	case "paymentCurrency":
		return t.PaymentCurrency
	case "paymentFormat":
		return string(t.PaymentFormat)
	default:
		if n, ok := f.Number(t); ok {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
		return ""
	}
}

// Value returns the field's native value for evidence payloads.
func (f Field) Value(t *domain.Transaction) any {
	if f.Kind == KindNumeric {
		n, _ := f.Number(t)
		return n
	}
	return f.Text(t)
}
