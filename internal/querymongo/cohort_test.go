package querymongo

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/dsi-icl/eae-interface/internal/queryir"
)

func TestTranslateGroup_Ops(t *testing.T) {
	c := NewCompiler(Options{})

	tests := []struct {
		name string
		pred queryir.Predicate
		want bson.D
	}{
		{
			name: "eq string",
			pred: queryir.Predicate{Field: "31.0.0", Value: queryir.String("Male"), Op: queryir.OpEq},
			want: bson.D{{Key: "31.0.0", Value: bson.D{{Key: "$in", Value: bson.A{"Male"}}}}},
		},
		{
			name: "eq number",
			pred: queryir.Predicate{Field: "54.0.0", Value: queryir.Number(11010), Op: queryir.OpEq},
			want: bson.D{{Key: "54.0.0", Value: bson.D{{Key: "$in", Value: bson.A{11010.0}}}}},
		},
		{
			name: "neq",
			pred: queryir.Predicate{Field: "31.0.0", Value: queryir.String("Female"), Op: queryir.OpNeq},
			want: bson.D{{Key: "31.0.0", Value: bson.D{{Key: "$nin", Value: bson.A{"Female"}}}}},
		},
		{
			name: "exists",
			pred: queryir.Predicate{Field: "20227.2.0", Op: queryir.OpExists},
			want: bson.D{{Key: "20227.2.0", Value: bson.D{{Key: "$exists", Value: true}}}},
		},
		{
			name: "derived eq",
			pred: queryir.Predicate{Field: "bmi", Value: queryir.String("= 25"), Op: queryir.OpDerived},
			want: bson.D{{Key: "bmi", Value: bson.D{{Key: "$eq", Value: 25.0}}}},
		},
		{
			name: "derived gt",
			pred: queryir.Predicate{Field: "bmi", Value: queryir.String("> 30.5"), Op: queryir.OpDerived},
			want: bson.D{{Key: "bmi", Value: bson.D{{Key: "$gt", Value: 30.5}}}},
		},
		{
			name: "derived lt",
			pred: queryir.Predicate{Field: "bmi", Value: queryir.String("< 18.5"), Op: queryir.OpDerived},
			want: bson.D{{Key: "bmi", Value: bson.D{{Key: "$lt", Value: 18.5}}}},
		},
		{
			name: "count",
			pred: queryir.Predicate{Field: "20002.0", Value: queryir.String("> 2"), Op: queryir.OpCount},
			want: bson.D{{Key: "20002.0.count", Value: bson.D{{Key: "$gt", Value: 2.0}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.TranslateGroup(queryir.Group{tt.pred})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Regression: ">" filters with $lt and "<" with $gt. Deployed queries
// rely on this polarity.
func TestTranslateGroup_OrderingPolarityIsInverted(t *testing.T) {
	c := NewCompiler(Options{})

	got, err := c.TranslateGroup(queryir.Group{
		{Field: "21022.0.0", Value: queryir.Number(40), Op: queryir.OpGt},
		{Field: "21001.0.0", Value: queryir.String("25"), Op: queryir.OpLt},
	})
	require.NoError(t, err)

	want := bson.D{
		{Key: "21022.0.0", Value: bson.D{{Key: "$lt", Value: 40.0}}},
		{Key: "21001.0.0", Value: bson.D{{Key: "$gt", Value: 25.0}}},
	}
	assert.Equal(t, want, got)
}

func TestTranslateGroup_ExistsIgnoresValue(t *testing.T) {
	c := NewCompiler(Options{})
	want := bson.D{{Key: "f", Value: bson.D{{Key: "$exists", Value: true}}}}

	for _, v := range []queryir.Value{nil, queryir.String("no"), queryir.Number(0)} {
		got, err := c.TranslateGroup(queryir.Group{{Field: "f", Value: v, Op: queryir.OpExists}})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestTranslateGroup_LastWriteWinsInFirstPosition(t *testing.T) {
	var logs bytes.Buffer
	c := NewCompiler(Options{Logger: slog.New(slog.NewTextHandler(&logs, nil))})

	got, err := c.TranslateGroup(queryir.Group{
		{Field: "a", Value: queryir.String("x"), Op: queryir.OpEq},
		{Field: "b", Op: queryir.OpExists},
		{Field: "a", Value: queryir.String("y"), Op: queryir.OpNeq},
	})
	require.NoError(t, err)

	want := bson.D{
		{Key: "a", Value: bson.D{{Key: "$nin", Value: bson.A{"y"}}}},
		{Key: "b", Value: bson.D{{Key: "$exists", Value: true}}},
	}
	assert.Equal(t, want, got)

	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "field=a")
}

func TestTranslateGroup_CountKeyDoesNotCollideWithField(t *testing.T) {
	c := NewCompiler(Options{})

	got, err := c.TranslateGroup(queryir.Group{
		{Field: "20002.0", Op: queryir.OpExists},
		{Field: "20002.0", Value: queryir.String("= 1"), Op: queryir.OpCount},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "20002.0", got[0].Key)
	assert.Equal(t, "20002.0.count", got[1].Key)
}

func TestTranslateGroup_Errors(t *testing.T) {
	c := NewCompiler(Options{})

	tests := []struct {
		name string
		pred queryir.Predicate
		code ErrorCode
	}{
		{"eq without value", queryir.Predicate{Field: "a", Op: queryir.OpEq}, ErrCodeMissingValue},
		{"neq without value", queryir.Predicate{Field: "a", Op: queryir.OpNeq}, ErrCodeMissingValue},
		{"gt without value", queryir.Predicate{Field: "a", Op: queryir.OpGt}, ErrCodeMissingValue},
		{"gt non numeric", queryir.Predicate{Field: "a", Value: queryir.String("old"), Op: queryir.OpGt}, ErrCodeInvalidNumber},
		{"lt infinite", queryir.Predicate{Field: "a", Value: queryir.String("Inf"), Op: queryir.OpLt}, ErrCodeInvalidNumber},
		{"derived one token", queryir.Predicate{Field: "a", Value: queryir.String(">25"), Op: queryir.OpDerived}, ErrCodeInvalidComparison},
		{"derived three tokens", queryir.Predicate{Field: "a", Value: queryir.String("> 25 kg"), Op: queryir.OpDerived}, ErrCodeInvalidComparison},
		{"derived bad relop", queryir.Predicate{Field: "a", Value: queryir.String(">= 25"), Op: queryir.OpDerived}, ErrCodeInvalidComparison},
		{"derived number value", queryir.Predicate{Field: "a", Value: queryir.Number(25), Op: queryir.OpDerived}, ErrCodeInvalidComparison},
		{"derived bad operand", queryir.Predicate{Field: "a", Value: queryir.String("> heavy"), Op: queryir.OpDerived}, ErrCodeInvalidNumber},
		{"count without value", queryir.Predicate{Field: "a", Op: queryir.OpCount}, ErrCodeMissingValue},
		{"count NaN operand", queryir.Predicate{Field: "a", Value: queryir.String("= NaN"), Op: queryir.OpCount}, ErrCodeInvalidNumber},
		{"unknown op", queryir.Predicate{Field: "a", Value: queryir.Number(1), Op: ">="}, ErrCodeUnsupportedPredicate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.TranslateGroup(queryir.Group{
				{Field: "ok", Op: queryir.OpExists},
				tt.pred,
			})
			require.Error(t, err)

			var te *TranslationError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.code, te.Code)
			assert.Equal(t, "group[1]", te.Path)
			assert.Equal(t, "a", te.Field)
			assert.Equal(t, string(tt.pred.Op), te.Op)
		})
	}
}

func TestTranslateGroup_UnsupportedPredicateNamesOpAndField(t *testing.T) {
	c := NewCompiler(Options{})

	_, err := c.TranslateGroup(queryir.Group{{Field: "21022.0.0", Value: queryir.Number(1), Op: "between"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"between"`)
	assert.Contains(t, err.Error(), `"21022.0.0"`)
}
