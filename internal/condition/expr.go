package condition

import (
	"fmt"
	"time"
)

// Op is a comparison operator.
type Op string

const (
	OpGT Op = ">"
	OpLT Op = "<"
	OpGE Op = ">="
	OpLE Op = "<="
	OpEQ Op = "=="
	OpNE Op = "!="
)

func (o Op) compare(a, b float64) bool {
	switch o {
	case OpGT:
		return a > b
	case OpLT:
		return a < b
	case OpGE:
		return a >= b
	case OpLE:
		return a <= b
	case OpEQ:
		return a == b
	case OpNE:
		return a != b
	}
	return false
}

// Expr is a parsed condition. The tree is a small fixed set of variants
// rather than a general expression language, so evaluation stays total and
// side-effect free.
type Expr interface {
	// walkFields visits every schema field the expression inspects, in
	// source order. Used to build evidence payloads.
	walkFields(fn func(Field))
	String() string
}

// Operand is the right-hand side of a comparison: a literal number, a
// literal string, or another schema field (e.g. "Payment Currency !=
// Receiving Currency").
type Operand struct {
	IsField  bool
	Field    Field
	IsNumber bool
	Number   float64
	Text     string
}

func (o Operand) String() string {
	switch {
	case o.IsField:
		return o.Field.Name
	case o.IsNumber:
		return trimFloat(o.Number)
	default:
		return o.Text
	}
}

// Comparison is "Field op operand".
type Comparison struct {
	Field Field
	Op    Op
	RHS   Operand
}

func (c *Comparison) walkFields(fn func(Field)) {
	fn(c.Field)
	if c.RHS.IsField {
		fn(c.RHS.Field)
	}
}

func (c *Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Field.Name, c.Op, c.RHS)
}

// Modulo is "Field % N == M", the round-number / structuring form.
type Modulo struct {
	Field     Field
	Divisor   float64
	Remainder float64
}

func (m *Modulo) walkFields(fn func(Field)) { fn(m.Field) }

func (m *Modulo) String() string {
	return fmt.Sprintf("%s %% %s == %s", m.Field.Name, trimFloat(m.Divisor), trimFloat(m.Remainder))
}

// Membership is "Field IN [v1, v2, ...]". Values form an unordered,
// case-sensitive set.
type Membership struct {
	Field  Field
	Values []string
	set    map[string]struct{}
}

func (m *Membership) walkFields(fn func(Field)) { fn(m.Field) }

func (m *Membership) String() string {
	s := m.Field.Name + " IN ["
	for i, v := range m.Values {
		if i > 0 {
			s += ", "
		}
		s += v
	}
	return s + "]"
}

func (m *Membership) contains(v string) bool {
	_, ok := m.set[v]
	return ok
}

// WindowCount is "count(Field, window) > N": group transactions sharing the
// current row's value of Field, restrict to the time window, compare the
// group size. The only form that needs a corpus-wide view.
type WindowCount struct {
	Field     Field
	Window    time.Duration
	Op        Op
	Threshold float64
}

func (w *WindowCount) walkFields(fn func(Field)) { fn(w.Field) }

func (w *WindowCount) String() string {
	return fmt.Sprintf("count(%s, %s) %s %s", w.Field.Name, w.Window, w.Op, trimFloat(w.Threshold))
}

// Conjunction is "term AND term AND ...".
type Conjunction struct {
	Terms []Expr
}

func (c *Conjunction) walkFields(fn func(Field)) {
	for _, t := range c.Terms {
		t.walkFields(fn)
	}
}

func (c *Conjunction) String() string {
	s := ""
	for i, t := range c.Terms {
		if i > 0 {
			s += " AND "
		}
		s += t.String()
	}
	return s
}

// Split separates an expression into its per-row terms and its windowed
// term, if any. The parser guarantees at most one WindowCount per
// expression.
func Split(e Expr) (row []Expr, window *WindowCount) {
	terms := []Expr{e}
	if c, ok := e.(*Conjunction); ok {
		terms = c.Terms
	}
	for _, t := range terms {
		if w, ok := t.(*WindowCount); ok {
			window = w
			continue
		}
		row = append(row, t)
	}
	return row, window
}

func trimFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
