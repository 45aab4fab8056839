package querymongo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/dsi-icl/eae-interface/internal/queryir"
)

// countSuffix is appended to the field of count predicates.
const countSuffix = ".count"

// comparisonOperators maps the relop of a "<relop> <operand>" value.
var comparisonOperators = map[string]string{
	"=": "$eq",
	">": "$gt",
	"<": "$lt",
}

// TranslateGroup lowers one AND-group of predicates into a $match filter.
//
// Conditions are keyed by field. When a field appears more than once the
// last predicate wins and keeps the position of the first; the override is
// logged at WARN. Error paths are relative to the group ("group[j]").
func (c *Compiler) TranslateGroup(g queryir.Group) (bson.D, error) {
	return c.translateGroup(g, "group")
}

func (c *Compiler) translateGroup(g queryir.Group, path string) (bson.D, error) {
	filter := make(bson.D, 0, len(g))
	for j, pred := range g {
		key, cond, err := c.translatePredicate(pred)
		if err != nil {
			return nil, locate(err, fmt.Sprintf("%s[%d]", path, j), pred.Field)
		}

		var replaced bool
		filter, replaced = setKey(filter, key, cond)
		if replaced {
			c.logger.Warn("predicate overrides earlier condition on field",
				"field", key,
				"group", path,
				"op", string(pred.Op))
		}
	}
	return filter, nil
}

// translatePredicate returns the filter key and condition for one predicate.
func (c *Compiler) translatePredicate(p queryir.Predicate) (string, bson.D, error) {
	switch p.Op {
	case queryir.OpEq:
		v, err := scalar(p)
		if err != nil {
			return "", nil, err
		}
		return p.Field, bson.D{{Key: "$in", Value: bson.A{v}}}, nil

	case queryir.OpNeq:
		v, err := scalar(p)
		if err != nil {
			return "", nil, err
		}
		return p.Field, bson.D{{Key: "$nin", Value: bson.A{v}}}, nil

	case queryir.OpGt:
		f, err := number(p)
		if err != nil {
			return "", nil, err
		}
		return p.Field, bson.D{{Key: "$lt", Value: f}}, nil

	case queryir.OpLt:
		f, err := number(p)
		if err != nil {
			return "", nil, err
		}
		return p.Field, bson.D{{Key: "$gt", Value: f}}, nil

	case queryir.OpExists:
		return p.Field, bson.D{{Key: "$exists", Value: true}}, nil

	case queryir.OpDerived:
		cond, err := comparison(p)
		if err != nil {
			return "", nil, err
		}
		return p.Field, cond, nil

	case queryir.OpCount:
		cond, err := comparison(p)
		if err != nil {
			return "", nil, err
		}
		return p.Field + countSuffix, cond, nil

	default:
		te := newTranslationError(ErrCodeUnsupportedPredicate,
			"unsupported predicate op %q on field %q", p.Op, p.Field)
		te.Op = string(p.Op)
		return "", nil, te
	}
}

// scalar returns the native value of an equality predicate.
func scalar(p queryir.Predicate) (any, error) {
	switch v := p.Value.(type) {
	case queryir.String:
		return string(v), nil
	case queryir.Number:
		return float64(v), nil
	default:
		return nil, missingValue(p)
	}
}

// number returns the value of an ordering predicate as a finite float.
func number(p queryir.Predicate) (float64, error) {
	switch v := p.Value.(type) {
	case queryir.Number:
		return finite(p, float64(v), v.String())
	case queryir.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		if err != nil {
			return 0, invalidNumber(p, string(v))
		}
		return finite(p, f, string(v))
	default:
		return 0, missingValue(p)
	}
}

// comparison splits a "<relop> <operand>" value into a condition.
func comparison(p queryir.Predicate) (bson.D, error) {
	if p.Value == nil {
		return nil, missingValue(p)
	}
	s, ok := p.Value.(queryir.String)
	if !ok {
		return nil, invalidComparison(p, "value must be \"<relop> <operand>\", got %s", p.Value)
	}

	tokens := strings.Fields(string(s))
	if len(tokens) != 2 {
		return nil, invalidComparison(p, "value must be \"<relop> <operand>\", got %q", string(s))
	}
	operator, ok := comparisonOperators[tokens[0]]
	if !ok {
		return nil, invalidComparison(p, "unknown relop %q, want one of = > <", tokens[0])
	}

	f, err := strconv.ParseFloat(tokens[1], 64)
	if err != nil {
		return nil, invalidNumber(p, tokens[1])
	}
	f, err = finite(p, f, tokens[1])
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: operator, Value: f}}, nil
}

func finite(p queryir.Predicate, f float64, text string) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalidNumber(p, text)
	}
	return f, nil
}

func missingValue(p queryir.Predicate) error {
	te := newTranslationError(ErrCodeMissingValue, "op %q on field %q requires a value", p.Op, p.Field)
	te.Op = string(p.Op)
	return te
}

func invalidNumber(p queryir.Predicate, text string) error {
	te := newTranslationError(ErrCodeInvalidNumber, "op %q on field %q requires a number, got %q", p.Op, p.Field, text)
	te.Op = string(p.Op)
	return te
}

func invalidComparison(p queryir.Predicate, format string, args ...any) error {
	te := newTranslationError(ErrCodeInvalidComparison, format, args...)
	te.Op = string(p.Op)
	return te
}

// setKey sets key in d, replacing an existing entry in place.
func setKey(d bson.D, key string, value any) (bson.D, bool) {
	for i := range d {
		if d[i].Key == key {
			d[i].Value = value
			return d, true
		}
	}
	return append(d, bson.E{Key: key, Value: value}), false
}
