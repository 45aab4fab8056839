package harness

import "github.com/dsi-icl/eae-interface/internal/querymongo"

// ErrCodeSchemaViolation is the scenario error code for queries rejected by
// the query file schema.
const ErrCodeSchemaViolation = "SCHEMA_VIOLATION"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates every expectation matched.
	Pass bool `json:"pass"`

	// Errors contains expectation mismatches. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Pipeline is the compiled pipeline. Nil when compilation failed.
	Pipeline querymongo.Pipeline `json:"pipeline,omitempty"`

	// ErrorCode, ErrorPath and ErrorMessage describe the compile error.
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorPath    string `json:"error_path,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a mismatch and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
