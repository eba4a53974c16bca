package condition

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseError is a hard rule-load failure. A rule whose condition fails to
// parse is flagged invalid and excluded from scans; parsing never fails at
// evaluation time.
type ParseError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse condition %q at offset %d: %s", e.Expr, e.Pos, e.Msg)
}

// Parse compiles a condition expression into its tagged tree.
//
// Grammar:
//
//	expr    := term ("AND" term)*
//	term    := comparison | modulo | membership | windowCount
//	comparison  := field op (number | field | word)
//	modulo      := field "%" number "==" number
//	membership  := field "IN" "[" value ("," value)* "]"
//	windowCount := "count" "(" field "," window ")" op number
func Parse(input string) (Expr, error) {
	p := &parser{input: input, rest: input}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.rest != "" {
		return nil, p.errorf("unexpected trailing input %q", p.rest)
	}
	return expr, nil
}

type parser struct {
	input string
	rest  string
}

func (p *parser) pos() int {
	return len(p.input) - len(p.rest)
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Expr: p.input, Pos: p.pos(), Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	p.rest = strings.TrimLeft(p.rest, " \t")
}

func (p *parser) accept(lit string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.rest, lit) {
		p.rest = p.rest[len(lit):]
		return true
	}
	return false
}

// acceptWord consumes lit only when followed by a word boundary, so "AND"
// does not eat the prefix of a field value.
func (p *parser) acceptWord(lit string) bool {
	p.skipSpace()
	if !strings.HasPrefix(p.rest, lit) {
		return false
	}
	rest := p.rest[len(lit):]
	if rest != "" && isWordChar(rest[0]) {
		return false
	}
	p.rest = rest
	return true
}

func (p *parser) parseExpr() (Expr, error) {
	terms := []Expr{}
	windows := 0
	for {
		term, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		if _, ok := term.(*WindowCount); ok {
			windows++
			if windows > 1 {
				return nil, p.errorf("at most one count(...) term is supported per condition")
			}
		}
		terms = append(terms, term)
		if !p.acceptWord("AND") {
			break
		}
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return &Conjunction{Terms: terms}, nil
}

func (p *parser) parseTerm() (Expr, error) {
	p.skipSpace()
	if p.rest == "" {
		return nil, p.errorf("expected a term")
	}

	if p.acceptWord("count") {
		return p.parseWindowCount()
	}

	field, rest, ok := matchField(p.rest)
	if !ok {
		return nil, p.errorf("unknown field near %q", truncate(p.rest))
	}
	p.rest = rest

	if p.accept("%") {
		return p.parseModulo(field)
	}
	if p.acceptWord("IN") {
		return p.parseMembership(field)
	}
	return p.parseComparison(field)
}

func (p *parser) parseComparison(field Field) (Expr, error) {
	op, err := p.parseOp()
	if err != nil {
		return nil, err
	}

	rhs, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	// Type-check at parse time so evaluation stays total.
	switch field.Kind {
	case KindNumeric:
		if !rhs.IsNumber && !(rhs.IsField && rhs.Field.Kind == KindNumeric) {
			return nil, p.errorf("field %q is numeric but %q is not", field.Name, rhs.String())
		}
	case KindString:
		if op != OpEQ && op != OpNE {
			return nil, p.errorf("operator %s not supported for string field %q", op, field.Name)
		}
		if rhs.IsField && rhs.Field.Kind != KindString {
			return nil, p.errorf("cannot compare %q against %q", field.Name, rhs.Field.Name)
		}
	default:
		return nil, p.errorf("field %q cannot be used in a comparison", field.Name)
	}

	return &Comparison{Field: field, Op: op, RHS: rhs}, nil
}

func (p *parser) parseModulo(field Field) (Expr, error) {
	if field.Kind != KindNumeric {
		return nil, p.errorf("modulo requires a numeric field, got %q", field.Name)
	}
	divisor, err := p.parseNumber()
	if err != nil {
		return nil, err
	}
	if divisor == 0 {
		return nil, p.errorf("modulo by zero")
	}
	if !p.accept("==") {
		return nil, p.errorf("expected == after modulo divisor")
	}
	remainder, err := p.parseNumber()
	if err != nil {
		return nil, err
	}
	return &Modulo{Field: field, Divisor: divisor, Remainder: remainder}, nil
}

func (p *parser) parseMembership(field Field) (Expr, error) {
	if !p.accept("[") {
		return nil, p.errorf("expected [ after IN")
	}
	raw, rest, found := strings.Cut(p.rest, "]")
	if !found {
		return nil, p.errorf("unterminated IN list")
	}
	p.rest = rest

	m := &Membership{Field: field, set: make(map[string]struct{})}
	for _, v := range strings.Split(raw, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, p.errorf("empty value in IN list")
		}
		if field.Kind == KindNumeric {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return nil, p.errorf("field %q is numeric but IN value %q is not", field.Name, v)
			}
		}
		m.Values = append(m.Values, v)
		m.set[v] = struct{}{}
	}
	if len(m.Values) == 0 {
		return nil, p.errorf("empty IN list")
	}
	return m, nil
}

func (p *parser) parseWindowCount() (Expr, error) {
	if !p.accept("(") {
		return nil, p.errorf("expected ( after count")
	}
	p.skipSpace()
	field, rest, ok := matchField(p.rest)
	if !ok {
		return nil, p.errorf("unknown field in count(...) near %q", truncate(p.rest))
	}
	p.rest = rest
	if !p.accept(",") {
		return nil, p.errorf("expected , after count field")
	}
	windowTok, err := p.parseWord()
	if err != nil {
		return nil, err
	}
	window, err := parseWindow(windowTok)
	if err != nil {
		return nil, p.errorf("bad window %q: %v", windowTok, err)
	}
	if !p.accept(")") {
		return nil, p.errorf("expected ) to close count(...)")
	}
	op, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	// The two-pointer sweep flags windows that reach the threshold; only
	// lower-bound comparisons have a meaningful reading there.
	if op != OpGT && op != OpGE {
		return nil, p.errorf("count(...) supports only > and >=, got %s", op)
	}
	threshold, err := p.parseNumber()
	if err != nil {
		return nil, err
	}
	return &WindowCount{Field: field, Window: window, Op: op, Threshold: threshold}, nil
}

func (p *parser) parseOp() (Op, error) {
	p.skipSpace()
	for _, op := range []Op{OpGE, OpLE, OpEQ, OpNE, OpGT, OpLT} {
		if strings.HasPrefix(p.rest, string(op)) {
			p.rest = p.rest[len(op):]
			return op, nil
		}
	}
	return "", p.errorf("expected a comparison operator near %q", truncate(p.rest))
}

func (p *parser) parseOperand() (Operand, error) {
	p.skipSpace()
	if field, rest, ok := matchField(p.rest); ok {
		p.rest = rest
		return Operand{IsField: true, Field: field}, nil
	}
	word, err := p.parseWord()
	if err != nil {
		return Operand{}, err
	}
	if n, err := strconv.ParseFloat(strings.ReplaceAll(word, ",", ""), 64); err == nil {
		return Operand{IsNumber: true, Number: n}, nil
	}
	return Operand{Text: word}, nil
}

func (p *parser) parseNumber() (float64, error) {
	word, err := p.parseWord()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(word, ",", ""), 64)
	if err != nil {
		return 0, p.errorf("expected a number, got %q", word)
	}
	return n, nil
}

func (p *parser) parseWord() (string, error) {
	p.skipSpace()
	i := 0
	for i < len(p.rest) {
		c := p.rest[i]
		// A comma only continues the word as a thousands separator, i.e.
		// when a digit follows; "Account, 24h" still splits at the comma.
		if c == ',' && (i == 0 || i+1 >= len(p.rest) || p.rest[i+1] < '0' || p.rest[i+1] > '9') {
			break
		}
		if !isWordChar(c) && c != ',' {
			break
		}
		i++
	}
	if i == 0 {
		return "", p.errorf("expected a value near %q", truncate(p.rest))
	}
	word := p.rest[:i]
	p.rest = p.rest[i:]
	return word, nil
}

// parseWindow accepts Go duration syntax (24h, 90m) plus a day suffix (7d).
func parseWindow(tok string) (time.Duration, error) {
	if strings.HasSuffix(tok, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(tok, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("bad day count")
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(tok)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("window must be positive")
	}
	return d, nil
}

func truncate(s string) string {
	if len(s) > 20 {
		return s[:20] + "..."
	}
	return s
}
