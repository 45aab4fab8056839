package queryir

import (
	"fmt"
	"math"
)

// DefaultMaxExpressionDepth bounds derived-field expression trees.
const DefaultMaxExpressionDepth = 64

// Limits holds the structural bounds enforced by Check.
type Limits struct {
	// MaxExpressionDepth is the deepest expression tree accepted.
	// Zero or negative selects DefaultMaxExpressionDepth.
	MaxExpressionDepth int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxExpressionDepth: DefaultMaxExpressionDepth}
}

// MaxDepth returns the effective expression depth limit.
func (l Limits) MaxDepth() int {
	if l.MaxExpressionDepth <= 0 {
		return DefaultMaxExpressionDepth
	}
	return l.MaxExpressionDepth
}

// Check verifies the structural preconditions of a query before translation.
//
// The whole query is scanned eagerly and the first problem is returned as a
// *ValidationError:
//  1. the cohort has at least one group, and every group a predicate
//  2. every predicate names a field and uses a known op
//  3. derived fields have unique non-empty names and known ops
//  4. expressions have bounded depth, known tags and well-formed leaves
//
// Check is a pure function. Predicate values are not inspected.
func Check(q *Query, limits Limits) error {
	if q == nil || len(q.Cohort) == 0 {
		return newValidationError(ErrCodeEmptyCohort, "cohort", "cohort must contain at least one group")
	}

	for i, group := range q.Cohort {
		if len(group) == 0 {
			return newValidationError(ErrCodeEmptyGroup, fmt.Sprintf("cohort[%d]", i),
				"group must contain at least one predicate")
		}
		for j, pred := range group {
			path := fmt.Sprintf("cohort[%d][%d]", i, j)
			if pred.Field == "" {
				return newValidationError(ErrCodeEmptyField, path+".field", "predicate field is required")
			}
			if !pred.Op.Known() {
				return newValidationError(ErrCodeUnknownPredicateOp, path+".op",
					"unknown predicate op %q on field %q", pred.Op, pred.Field)
			}
		}
	}

	maxDepth := limits.MaxDepth()
	seen := make(map[string]int, len(q.NewFields))
	for i, nf := range q.NewFields {
		path := fmt.Sprintf("new_fields[%d]", i)
		if nf.Name == "" {
			return newValidationError(ErrCodeEmptyFieldName, path+".name", "derived field name is required")
		}
		if prev, dup := seen[nf.Name]; dup {
			return newValidationError(ErrCodeDuplicateDerivedField, path+".name",
				"derived field %q already defined at new_fields[%d]", nf.Name, prev)
		}
		seen[nf.Name] = i

		if !nf.Op.Known() {
			return newValidationError(ErrCodeUnknownDerivedOp, path+".op",
				"unknown derived field op %q for %q", nf.Op, nf.Name)
		}

		if d := Depth(nf.Expr, maxDepth); d > maxDepth {
			return newValidationError(ErrCodeExpressionTooDeep, path+".value",
				"expression depth exceeds limit of %d", maxDepth)
		}
		if err := checkExpr(nf.Expr, path+".value"); err != nil {
			return err
		}
	}

	return nil
}

// checkExpr walks an expression looking for unknown tags and bad leaves.
// Callers bound the depth first.
func checkExpr(e Expr, path string) error {
	switch node := e.(type) {
	case nil:
		return newValidationError(ErrCodeMalformedExpression, path, "expression is missing")
	case Literal:
		if math.IsNaN(node.Value) || math.IsInf(node.Value, 0) {
			return newValidationError(ErrCodeMalformedExpression, path, "literal must be a finite number")
		}
		return nil
	case FieldRef:
		if node.Name == "" {
			return newValidationError(ErrCodeMalformedExpression, path, "field reference must name a field")
		}
		return nil
	case Binary:
		if !node.Op.Known() {
			return newValidationError(ErrCodeUnknownExpressionOp, path, "unknown expression op %q", node.Op)
		}
		if err := checkExpr(node.Left, path+".left"); err != nil {
			return err
		}
		return checkExpr(node.Right, path+".right")
	default:
		return newValidationError(ErrCodeUnknownExpressionOp, path, "unknown expression node %T", e)
	}
}
