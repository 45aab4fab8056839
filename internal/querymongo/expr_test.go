package querymongo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/dsi-icl/eae-interface/internal/queryir"
)

func TestLowerExpr_Leaves(t *testing.T) {
	c := NewCompiler(Options{})

	got, err := c.LowerExpr(queryir.Literal{Value: 2.5})
	require.NoError(t, err)
	assert.Equal(t, 2.5, got)

	got, err = c.LowerExpr(queryir.FieldRef{Name: "21001.0.0"})
	require.NoError(t, err)
	assert.Equal(t, "$21001.0.0", got)
}

func TestLowerExpr_Arithmetic(t *testing.T) {
	c := NewCompiler(Options{})
	a, b := queryir.FieldRef{Name: "A"}, queryir.FieldRef{Name: "B"}

	for op, operator := range map[queryir.Arith]string{
		queryir.Add: "$add",
		queryir.Sub: "$subtract",
		queryir.Mul: "$multiply",
		queryir.Div: "$divide",
	} {
		t.Run(string(op), func(t *testing.T) {
			got, err := c.LowerExpr(queryir.Binary{Op: op, Left: a, Right: b})
			require.NoError(t, err)
			assert.Equal(t, bson.D{{Key: operator, Value: bson.A{"$A", "$B"}}}, got)
		})
	}
}

func TestLowerExpr_SumSquared(t *testing.T) {
	// (A + B) ^ 2
	c := NewCompiler(Options{})
	e := queryir.Binary{
		Op:    queryir.Pow,
		Left:  queryir.Binary{Op: queryir.Add, Left: queryir.FieldRef{Name: "A"}, Right: queryir.FieldRef{Name: "B"}},
		Right: queryir.Literal{Value: 2},
	}

	got, err := c.LowerExpr(e)
	require.NoError(t, err)

	want := bson.D{{Key: "$pow", Value: bson.A{
		bson.D{{Key: "$add", Value: bson.A{"$A", "$B"}}},
		int64(2),
	}}}
	assert.Equal(t, want, got)
}

func TestLowerExpr_NestedOperandsKeepOrder(t *testing.T) {
	// (weight / (height * height)) - 1
	c := NewCompiler(Options{})
	height := queryir.FieldRef{Name: "height"}
	e := queryir.Binary{
		Op: queryir.Sub,
		Left: queryir.Binary{
			Op:    queryir.Div,
			Left:  queryir.FieldRef{Name: "weight"},
			Right: queryir.Binary{Op: queryir.Mul, Left: height, Right: height},
		},
		Right: queryir.Literal{Value: 1},
	}

	got, err := c.LowerExpr(e)
	require.NoError(t, err)

	want := bson.D{{Key: "$subtract", Value: bson.A{
		bson.D{{Key: "$divide", Value: bson.A{
			"$weight",
			bson.D{{Key: "$multiply", Value: bson.A{"$height", "$height"}}},
		}}},
		1.0,
	}}}
	assert.Equal(t, want, got)
}

func TestLowerExpr_InvalidExponent(t *testing.T) {
	c := NewCompiler(Options{})
	base := queryir.FieldRef{Name: "A"}

	tests := []struct {
		name  string
		right queryir.Expr
	}{
		{"fractional", queryir.Literal{Value: 0.5}},
		{"field", queryir.FieldRef{Name: "B"}},
		{"expression", queryir.Binary{Op: queryir.Add, Left: queryir.Literal{Value: 1}, Right: queryir.Literal{Value: 1}}},
		{"missing", nil},
		{"infinite", queryir.Literal{Value: math.Inf(1)}},
		{"out of range", queryir.Literal{Value: 1e19}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.LowerExpr(queryir.Binary{Op: queryir.Pow, Left: base, Right: tt.right})
			require.Error(t, err)

			var te *TranslationError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, ErrCodeInvalidExponent, te.Code)
			assert.Equal(t, "^", te.Op)
		})
	}
}

func TestLowerExpr_NegativeExponent(t *testing.T) {
	c := NewCompiler(Options{})
	got, err := c.LowerExpr(queryir.Binary{Op: queryir.Pow, Left: queryir.Literal{Value: 10}, Right: queryir.Literal{Value: -3}})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "$pow", Value: bson.A{10.0, int64(-3)}}}, got)
}

func TestLowerExpr_UnsupportedExpression(t *testing.T) {
	c := NewCompiler(Options{})

	_, err := c.LowerExpr(queryir.Binary{Op: "%", Left: queryir.Literal{Value: 1}, Right: queryir.Literal{Value: 2}})
	var te *TranslationError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, ErrCodeUnsupportedExpression, te.Code)
	assert.Equal(t, "%", te.Op)
	assert.Contains(t, te.Message, `"%"`)

	_, err = c.LowerExpr(nil)
	assert.Equal(t, ErrCodeUnsupportedExpression, TranslationCode(err))

	// A bad tag below a good one is still found.
	_, err = c.LowerExpr(queryir.Binary{Op: queryir.Add, Left: queryir.FieldRef{Name: "A"},
		Right: queryir.Binary{Op: "mod", Left: queryir.Literal{Value: 1}, Right: queryir.Literal{Value: 2}}})
	assert.Equal(t, ErrCodeUnsupportedExpression, TranslationCode(err))
}

func TestLowerExpr_DepthGuard(t *testing.T) {
	c := NewCompiler(Options{Limits: queryir.Limits{MaxExpressionDepth: 4}})

	// Depth 4: three Add nodes over a leaf.
	_, err := c.LowerExpr(chain(3))
	require.NoError(t, err)

	_, err = c.LowerExpr(chain(4))
	assert.Equal(t, ErrCodeExpressionTooDeep, TranslationCode(err))
}

func TestLowerExpr_Pure(t *testing.T) {
	c := NewCompiler(Options{})
	e := chain(5)

	first, err := c.LowerExpr(e)
	require.NoError(t, err)
	second, err := c.LowerExpr(e)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// chain returns a left-leaning sum of n Add nodes over the field A.
func chain(n int) queryir.Expr {
	var e queryir.Expr = queryir.FieldRef{Name: "A"}
	for i := 0; i < n; i++ {
		e = queryir.Binary{Op: queryir.Add, Left: e, Right: queryir.Literal{Value: 1}}
	}
	return e
}
