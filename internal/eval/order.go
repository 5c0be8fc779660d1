package eval

import (
	"folio/core/internal/state"
)

// OrderKey is one ORDER BY term.
type OrderKey struct {
	Ref  string
	Desc bool
}

// Comparator orders document states by a list of keys. A missing value
// sorts last regardless of direction; ties fall through to the next key.
// Reference resolution is shared with the predicate evaluator.
type Comparator struct {
	ev   *Evaluator
	keys []OrderKey
}

// NewComparator builds a comparator over the keys.
func NewComparator(ev *Evaluator, keys []OrderKey) *Comparator {
	return &Comparator{ev: ev, keys: keys}
}

// Compare returns a negative, zero or positive result ordering a before,
// equal to, or after b.
func (c *Comparator) Compare(a, b state.State) int {
	for _, key := range c.keys {
		av, aok := c.ev.value(a, key.Ref)
		bv, bok := c.ev.value(b, key.Ref)
		aMissing := !aok || av == nil
		bMissing := !bok || bv == nil
		switch {
		case aMissing && bMissing:
			continue
		case aMissing:
			return 1
		case bMissing:
			return -1
		}
		cmp, ok := Compare(av, bv)
		if !ok || cmp == 0 {
			continue
		}
		if key.Desc {
			return -cmp
		}
		return cmp
	}
	return 0
}

// Matcher adapts an expression to the adapter's predicate interface.
type Matcher struct {
	Ev   *Evaluator
	Expr Expr
}

// Matches evaluates the wrapped expression.
func (m Matcher) Matches(s state.State) bool {
	return m.Ev.Matches(m.Expr, s)
}
