package querymongo

import (
	"math"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/dsi-icl/eae-interface/internal/queryir"
)

// arithOperators maps expression tags to aggregation operators.
var arithOperators = map[queryir.Arith]string{
	queryir.Add: "$add",
	queryir.Sub: "$subtract",
	queryir.Mul: "$multiply",
	queryir.Div: "$divide",
}

// LowerExpr lowers a derived-field expression into an aggregation expression.
//
//	Literal   → float64
//	FieldRef  → "$<name>"
//	+ - * /   → {"$add"|"$subtract"|"$multiply"|"$divide": [left, right]}
//	^         → {"$pow": [left, int64]}
//
// The exponent of ^ must be an integer literal. Trees deeper than the
// configured limit fail with ErrCodeExpressionTooDeep before any lowering
// past the limit happens.
func (c *Compiler) LowerExpr(e queryir.Expr) (any, error) {
	return c.lower(e, 1)
}

func (c *Compiler) lower(e queryir.Expr, level int) (any, error) {
	if limit := c.opts.Limits.MaxDepth(); level > limit {
		return nil, newTranslationError(ErrCodeExpressionTooDeep,
			"expression depth exceeds limit of %d", limit)
	}

	switch node := e.(type) {
	case nil:
		return nil, newTranslationError(ErrCodeUnsupportedExpression, "expression is missing")
	case queryir.Literal:
		return node.Value, nil
	case queryir.FieldRef:
		return "$" + node.Name, nil
	case queryir.Binary:
		return c.lowerBinary(node, level)
	default:
		return nil, newTranslationError(ErrCodeUnsupportedExpression, "unsupported expression node %T", e)
	}
}

func (c *Compiler) lowerBinary(b queryir.Binary, level int) (any, error) {
	if b.Op == queryir.Pow {
		left, err := c.lower(b.Left, level+1)
		if err != nil {
			return nil, err
		}
		exp, err := exponent(b.Right)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$pow", Value: bson.A{left, exp}}}, nil
	}

	operator, ok := arithOperators[b.Op]
	if !ok {
		te := newTranslationError(ErrCodeUnsupportedExpression, "unsupported expression op %q", b.Op)
		te.Op = string(b.Op)
		return nil, te
	}

	left, err := c.lower(b.Left, level+1)
	if err != nil {
		return nil, err
	}
	right, err := c.lower(b.Right, level+1)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: operator, Value: bson.A{left, right}}}, nil
}

// exponent extracts the integer exponent of a ^ node.
func exponent(e queryir.Expr) (int64, error) {
	lit, ok := e.(queryir.Literal)
	if !ok {
		te := newTranslationError(ErrCodeInvalidExponent, "exponent must be an integer literal")
		te.Op = string(queryir.Pow)
		return 0, te
	}

	v := lit.Value
	// 2^63 is the first float64 outside int64 range.
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || v < math.MinInt64 || v >= 1<<63 {
		te := newTranslationError(ErrCodeInvalidExponent, "exponent must be an integer literal, got %v", v)
		te.Op = string(queryir.Pow)
		return 0, te
	}
	return int64(v), nil
}
