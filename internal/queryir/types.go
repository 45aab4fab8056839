package queryir

import "strconv"

// Query is a parsed cohort query.
//
// Cohort is an OR of groups and must contain at least one group.
// DataRequested is treated as a set: duplicates have no additional effect.
// NewFields is ordered; names must be unique within the query.
type Query struct {
	Cohort        []Group
	DataRequested []string
	NewFields     []DerivedField
}

// Group is a conjunction of predicates. A valid group is never empty.
type Group []Predicate

// Predicate is a single field-level test.
//
// Value semantics depend on Op:
//   - OpEq, OpNeq: a scalar matched as a one-element set
//   - OpGt, OpLt: a number, or a string that parses as one
//   - OpDerived, OpCount: a two-token string "<relop> <operand>"
//   - OpExists: ignored
type Predicate struct {
	Field string
	Value Value // nil when absent
	Op    PredicateOp
}

// PredicateOp is the wire code of a predicate operator.
type PredicateOp string

const (
	OpEq      PredicateOp = "="
	OpNeq     PredicateOp = "!="
	OpGt      PredicateOp = ">"
	OpLt      PredicateOp = "<"
	OpDerived PredicateOp = "derived"
	OpExists  PredicateOp = "exists"
	OpCount   PredicateOp = "count"
)

// PredicateOps lists every recognized predicate code.
var PredicateOps = []PredicateOp{OpEq, OpNeq, OpGt, OpLt, OpDerived, OpExists, OpCount}

// Known reports whether op is a recognized predicate code.
func (op PredicateOp) Known() bool {
	for _, k := range PredicateOps {
		if op == k {
			return true
		}
	}
	return false
}

// DerivedField defines a computed output field.
type DerivedField struct {
	Name string
	Expr Expr
	Op   DerivedOp
}

// DerivedOp is the wire code of a derived-field kind.
type DerivedOp string

const (
	// DerivedExpr computes the field from an arithmetic expression.
	DerivedExpr DerivedOp = "derived"

	// DerivedCount is recognized but not supported by any backend.
	DerivedCount DerivedOp = "count"
)

// Known reports whether op is a recognized derived-field code.
func (op DerivedOp) Known() bool {
	return op == DerivedExpr || op == DerivedCount
}

// Value is a predicate comparison value.
// Only String and Number implement it.
type Value interface {
	predicateValue()
	String() string
}

// String is a string predicate value.
type String string

func (String) predicateValue() {}

func (s String) String() string { return string(s) }

// Number is a numeric predicate value. JSON numbers decode to the nearest
// float64, so integers beyond 2^53 lose precision.
type Number float64

func (Number) predicateValue() {}

func (n Number) String() string {
	return strconv.FormatFloat(float64(n), 'g', -1, 64)
}

// Expr is a node of a derived-field expression tree.
// Only Binary, Literal and FieldRef implement it.
type Expr interface {
	exprNode()
}

// Arith is the tag of a binary expression node.
type Arith string

const (
	Add Arith = "+"
	Sub Arith = "-"
	Mul Arith = "*"
	Div Arith = "/"
	Pow Arith = "^"
)

// Known reports whether a is a supported arithmetic operator.
func (a Arith) Known() bool {
	switch a {
	case Add, Sub, Mul, Div, Pow:
		return true
	}
	return false
}

// Binary applies Op to Left and Right.
type Binary struct {
	Op    Arith
	Left  Expr
	Right Expr
}

func (Binary) exprNode() {}

// Literal is a numeric constant.
type Literal struct {
	Value float64
}

func (Literal) exprNode() {}

// FieldRef references a record field (or an earlier derived field) by name.
type FieldRef struct {
	Name string
}

func (FieldRef) exprNode() {}

// Depth returns the height of the expression tree, counting leaves as 1.
// Counting stops once limit is exceeded, so the walk never descends more
// than limit+1 levels. A limit <= 0 means no limit.
func Depth(e Expr, limit int) int {
	return depth(e, 1, limit)
}

func depth(e Expr, level, limit int) int {
	if limit > 0 && level > limit {
		return level
	}
	b, ok := e.(Binary)
	if !ok {
		return level
	}
	l := depth(b.Left, level+1, limit)
	if limit > 0 && l > limit {
		return l
	}
	r := depth(b.Right, level+1, limit)
	if r > l {
		return r
	}
	return l
}
