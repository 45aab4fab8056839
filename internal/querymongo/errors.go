package querymongo

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes translation errors.
type ErrorCode string

const (
	// ErrCodeUnsupportedExpression indicates an expression tag with no lowering.
	ErrCodeUnsupportedExpression ErrorCode = "UNSUPPORTED_EXPRESSION"

	// ErrCodeInvalidExponent indicates a ^ whose right child is not an integer literal.
	ErrCodeInvalidExponent ErrorCode = "INVALID_EXPONENT"

	// ErrCodeExpressionTooDeep indicates an expression exceeds the depth limit.
	ErrCodeExpressionTooDeep ErrorCode = "EXPRESSION_TOO_DEEP"

	// ErrCodeUnsupportedPredicate indicates a predicate op with no translation.
	ErrCodeUnsupportedPredicate ErrorCode = "UNSUPPORTED_PREDICATE"

	// ErrCodeUnsupportedDerivedFieldOp indicates a derived field kind that
	// cannot be computed.
	ErrCodeUnsupportedDerivedFieldOp ErrorCode = "UNSUPPORTED_DERIVED_FIELD_OP"

	// ErrCodeMissingValue indicates a predicate that needs a value has none.
	ErrCodeMissingValue ErrorCode = "MISSING_VALUE"

	// ErrCodeInvalidNumber indicates a value that must be numeric is not.
	ErrCodeInvalidNumber ErrorCode = "INVALID_NUMBER"

	// ErrCodeInvalidComparison indicates a "<relop> <operand>" value that
	// does not parse.
	ErrCodeInvalidComparison ErrorCode = "INVALID_COMPARISON"
)

// TranslationError reports a query element that could not be lowered to a
// pipeline fragment.
type TranslationError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Path locates the element, "cohort[i][j]" or "new_fields[i]".
	Path string

	// Field is the predicate field or derived field name involved.
	Field string

	// Op is the offending operator code, when there is one.
	Op string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *TranslationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsTranslationError reports whether err wraps a *TranslationError.
func IsTranslationError(err error) bool {
	var te *TranslationError
	return errors.As(err, &te)
}

// TranslationCode returns the code of a wrapped *TranslationError, or "".
func TranslationCode(err error) ErrorCode {
	var te *TranslationError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

func newTranslationError(code ErrorCode, format string, args ...any) *TranslationError {
	return &TranslationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// locate fills in the path and field of a translation error that does not
// have them yet.
func locate(err error, path, field string) error {
	var te *TranslationError
	if errors.As(err, &te) {
		if te.Path == "" {
			te.Path = path
		}
		if te.Field == "" {
			te.Field = field
		}
	}
	return err
}
