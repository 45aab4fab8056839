package queryir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes query errors.
type ErrorCode string

const (
	// ErrCodeMalformedQuery indicates the document is not a valid query shape.
	ErrCodeMalformedQuery ErrorCode = "MALFORMED_QUERY"

	// ErrCodeEmptyCohort indicates the cohort has no groups.
	ErrCodeEmptyCohort ErrorCode = "EMPTY_COHORT"

	// ErrCodeEmptyGroup indicates a group has no predicates.
	ErrCodeEmptyGroup ErrorCode = "EMPTY_GROUP"

	// ErrCodeEmptyField indicates a predicate without a field identifier.
	ErrCodeEmptyField ErrorCode = "EMPTY_FIELD"

	// ErrCodeUnknownPredicateOp indicates an unrecognized predicate code.
	ErrCodeUnknownPredicateOp ErrorCode = "UNKNOWN_PREDICATE_OP"

	// ErrCodeEmptyFieldName indicates a derived field without a name.
	ErrCodeEmptyFieldName ErrorCode = "EMPTY_FIELD_NAME"

	// ErrCodeDuplicateDerivedField indicates two derived fields share a name.
	ErrCodeDuplicateDerivedField ErrorCode = "DUPLICATE_DERIVED_FIELD"

	// ErrCodeUnknownDerivedOp indicates an unrecognized derived-field code.
	ErrCodeUnknownDerivedOp ErrorCode = "UNKNOWN_DERIVED_OP"

	// ErrCodeUnknownExpressionOp indicates an unrecognized expression tag.
	ErrCodeUnknownExpressionOp ErrorCode = "UNKNOWN_EXPRESSION_OP"

	// ErrCodeMalformedExpression indicates a missing child or a bad leaf.
	ErrCodeMalformedExpression ErrorCode = "MALFORMED_EXPRESSION"

	// ErrCodeExpressionTooDeep indicates an expression exceeds the depth limit.
	ErrCodeExpressionTooDeep ErrorCode = "EXPRESSION_TOO_DEEP"
)

// ValidationError reports a malformed query shape or an unknown operator
// code. It is never retried and never defaulted.
type ValidationError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Path locates the offending element, e.g. "cohort[0][2].op".
	// Empty for whole-query errors.
	Path string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newValidationError(code ErrorCode, path, format string, args ...any) *ValidationError {
	return &ValidationError{
		Code:    code,
		Path:    path,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsValidationError returns true if err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidationCode returns the code of a wrapped *ValidationError, or "" if
// err is not one.
func ValidationCode(err error) ErrorCode {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}
