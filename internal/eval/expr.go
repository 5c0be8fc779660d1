// Package eval evaluates query expressions against document states and
// orders states for in-memory sorting and pagination. The expression form is
// a Go value tree; there is no textual query grammar.
package eval

import (
	"folio/core/internal/state"
)

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLike
	OpILike
	OpIn
	OpNotIn
	OpBetween
	OpIsNull
	OpIsNotNull
)

// Expr is a boolean expression over one document state.
type Expr interface {
	isExpr()
}

// And is true when every operand is true.
type And []Expr

// Or is true when at least one operand is true.
type Or []Expr

// Not negates its operand.
type Not struct {
	E Expr
}

// Cmp compares a property reference against literal values. For OpIn and
// OpBetween, Values holds the operand list; otherwise Values[0] is the
// single operand (absent for the null tests).
type Cmp struct {
	Ref    string
	Op     Op
	Values []state.Value
}

// Fulltext is true when every word of Query occurs in the document's
// extracted fulltext.
type Fulltext struct {
	Query string
}

func (And) isExpr()      {}
func (Or) isExpr()       {}
func (Not) isExpr()      {}
func (Cmp) isExpr()      {}
func (Fulltext) isExpr() {}

// Eq builds the common equality comparison.
func Eq(ref string, v state.Value) Cmp {
	return Cmp{Ref: ref, Op: OpEq, Values: []state.Value{v}}
}
