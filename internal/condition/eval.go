package condition

import (
	"math"

	"github.com/nitilens/compliance/internal/domain"
)

// Evaluate runs the per-row terms of an expression against one transaction
// and returns whether every term matched, plus an evidence snapshot of the
// fields the expression inspected. WindowCount terms are ignored here; they
// are evaluated corpus-wide by Index.Clusters.
func Evaluate(e Expr, t *domain.Transaction) (bool, map[string]any) {
	row, _ := Split(e)
	for _, term := range row {
		if !evalTerm(term, t) {
			return false, nil
		}
	}
	return true, Evidence(e, t)
}

// Evidence snapshots the fields an expression inspects, keyed by camelCase
// attribute name, plus timestamp and both account fields for reviewer
// context.
func Evidence(e Expr, t *domain.Transaction) map[string]any {
	ev := map[string]any{
		"timestamp":   t.Timestamp.Format("2006-01-02 15:04:05"),
		"fromAccount": t.FromAccount,
		"toAccount":   t.ToAccount,
	}
	e.walkFields(func(f Field) {
		ev[f.Key] = f.Value(t)
	})
	return ev
}

func evalTerm(e Expr, t *domain.Transaction) bool {
	switch term := e.(type) {
	case *Comparison:
		return evalComparison(term, t)
	case *Modulo:
		v, ok := term.Field.Number(t)
		if !ok {
			return false
		}
		return math.Mod(v, term.Divisor) == term.Remainder
	case *Membership:
		return term.contains(term.Field.Text(t))
	case *Conjunction:
		for _, sub := range term.Terms {
			if !evalTerm(sub, t) {
				return false
			}
		}
		return true
	case *WindowCount:
		// Evaluated against the corpus index, never per row.
		return true
	}
	return false
}

func evalComparison(c *Comparison, t *domain.Transaction) bool {
	if c.Field.Kind == KindNumeric {
		lhs, ok := c.Field.Number(t)
		if !ok {
			return false
		}
		rhs := c.RHS.Number
		if c.RHS.IsField {
			rhs, ok = c.RHS.Field.Number(t)
			if !ok {
				return false
			}
		}
		return c.Op.compare(lhs, rhs)
	}

	lhs := c.Field.Text(t)
	rhs := c.RHS.Text
	if c.RHS.IsField {
		rhs = c.RHS.Field.Text(t)
	} else if c.RHS.IsNumber {
		rhs = trimFloat(c.RHS.Number)
	}
	if c.Op == OpEQ {
		return lhs == rhs
	}
	return lhs != rhs
}
