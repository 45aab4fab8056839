package queryir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// wireQuery mirrors the query document accepted on the wire.
type wireQuery struct {
	Cohort        [][]wirePredicate `json:"cohort"`
	DataRequested []string          `json:"data_requested"`
	NewFields     []wireDerived     `json:"new_fields"`
}

type wirePredicate struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
	Op    string          `json:"op"`
}

type wireDerived struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
	Op    string          `json:"op"`
}

type wireExpr struct {
	Op    string          `json:"op"`
	Left  json.RawMessage `json:"left"`
	Right json.RawMessage `json:"right"`
}

// Expression leaf tags on the wire. Every other tag decodes to a Binary.
const (
	wireTagValue = "val"
	wireTagField = "field"
)

// Decode parses a JSON query document into a Query.
//
// Field identifiers are NFC normalized so that visually identical names
// address the same field. Decode checks types only; structural rules are
// enforced by Check. Errors are *ValidationError with ErrCodeMalformedQuery
// or ErrCodeMalformedExpression.
func Decode(data []byte) (*Query, error) {
	var wq wireQuery
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&wq); err != nil {
		return nil, newValidationError(ErrCodeMalformedQuery, "", "decode query: %v", err)
	}

	q := &Query{
		Cohort:        make([]Group, 0, len(wq.Cohort)),
		DataRequested: make([]string, 0, len(wq.DataRequested)),
		NewFields:     make([]DerivedField, 0, len(wq.NewFields)),
	}

	for i, wg := range wq.Cohort {
		group := make(Group, 0, len(wg))
		for j, wp := range wg {
			path := fmt.Sprintf("cohort[%d][%d]", i, j)
			val, err := decodeValue(wp.Value, path+".value")
			if err != nil {
				return nil, err
			}
			group = append(group, Predicate{
				Field: normalize(wp.Field),
				Value: val,
				Op:    PredicateOp(strings.TrimSpace(wp.Op)),
			})
		}
		q.Cohort = append(q.Cohort, group)
	}

	for _, f := range wq.DataRequested {
		q.DataRequested = append(q.DataRequested, normalize(f))
	}

	for i, wd := range wq.NewFields {
		path := fmt.Sprintf("new_fields[%d].value", i)
		expr, err := decodeExpr(wd.Value, path)
		if err != nil {
			return nil, err
		}
		q.NewFields = append(q.NewFields, DerivedField{
			Name: normalize(wd.Name),
			Expr: expr,
			Op:   DerivedOp(strings.TrimSpace(wd.Op)),
		})
	}

	return q, nil
}

// decodeValue decodes a predicate value. Absent and null values decode to nil.
func decodeValue(raw json.RawMessage, path string) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, newValidationError(ErrCodeMalformedQuery, path, "invalid string: %v", err)
		}
		return String(s), nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return nil, newValidationError(ErrCodeMalformedQuery, path, "invalid number %s", raw)
		}
		return Number(f), nil
	default:
		return nil, newValidationError(ErrCodeMalformedQuery, path, "value must be a string or a number")
	}
}

// decodeExpr decodes an expression operand: a node object, a bare number
// (literal) or a bare string (field reference). Absent operands decode to
// nil and are reported by Check.
func decodeExpr(raw json.RawMessage, path string) (Expr, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '{':
		return decodeNode(raw, path)
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, newValidationError(ErrCodeMalformedExpression, path, "invalid field reference: %v", err)
		}
		return FieldRef{Name: normalize(s)}, nil
	default:
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return nil, newValidationError(ErrCodeMalformedExpression, path,
				"operand must be an expression, a number or a field name")
		}
		return Literal{Value: f}, nil
	}
}

func decodeNode(raw json.RawMessage, path string) (Expr, error) {
	var we wireExpr
	if err := json.Unmarshal(raw, &we); err != nil {
		return nil, newValidationError(ErrCodeMalformedExpression, path, "invalid expression: %v", err)
	}

	op := strings.TrimSpace(we.Op)
	switch op {
	case wireTagValue:
		return decodeLiteral(we.Left, path+".left")
	case wireTagField:
		left := bytes.TrimSpace(we.Left)
		var name string
		if len(left) == 0 || left[0] != '"' || json.Unmarshal(left, &name) != nil {
			return nil, newValidationError(ErrCodeMalformedExpression, path+".left",
				"field leaf must carry a field name")
		}
		return FieldRef{Name: normalize(name)}, nil
	}

	left, err := decodeExpr(we.Left, path+".left")
	if err != nil {
		return nil, err
	}
	right, err := decodeExpr(we.Right, path+".right")
	if err != nil {
		return nil, err
	}
	return Binary{Op: Arith(op), Left: left, Right: right}, nil
}

// decodeLiteral accepts a number or a numeric string.
func decodeLiteral(raw json.RawMessage, path string) (Expr, error) {
	raw = bytes.TrimSpace(raw)
	text := string(raw)
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, newValidationError(ErrCodeMalformedExpression, path, "invalid literal: %v", err)
		}
		text = strings.TrimSpace(text)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, newValidationError(ErrCodeMalformedExpression, path, "value leaf must carry a number")
	}
	return Literal{Value: f}, nil
}

func normalize(s string) string {
	return norm.NFC.String(s)
}
