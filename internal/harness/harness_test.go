package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsi-icl/eae-interface/internal/querymongo"
)

func newCompiler() *querymongo.Compiler {
	return querymongo.NewCompiler(querymongo.DefaultOptions())
}

func TestRun_Testdata(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	compiler := newCompiler()
	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(compiler, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_SuccessPopulatesPipeline(t *testing.T) {
	s := &Scenario{
		Name:        "exists",
		Description: "exists only",
		Query: map[string]any{
			"cohort": []any{[]any{map[string]any{"field": "a", "op": "exists"}}},
		},
		Expect: Expect{Stages: []string{"$match", "$project"}},
	}

	result, err := Run(newCompiler(), s)
	require.NoError(t, err)

	assert.True(t, result.Pass)
	assert.Empty(t, result.ErrorCode)
	assert.Equal(t, []string{"$match", "$project"}, result.Pipeline.StageNames())
}

func TestRun_ReportsMismatches(t *testing.T) {
	s := &Scenario{
		Name:        "wrong",
		Description: "every expectation is off",
		Query: map[string]any{
			"cohort": []any{
				[]any{map[string]any{"field": "a", "op": "exists"}},
				[]any{map[string]any{"field": "b", "op": "exists"}},
			},
			"data_requested": []any{"c"},
		},
		Expect: Expect{
			Stages:     []string{"$addFields", "$match", "$project"},
			Groups:     1,
			Projection: []string{"_id", "m_eid"},
		},
	}

	result, err := Run(newCompiler(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "stages")
	assert.Contains(t, result.Errors[1], "groups: expected 1, got 2")
	assert.Contains(t, result.Errors[2], "projection")
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	s := &Scenario{
		Name:        "no_error",
		Description: "compiles fine",
		Query: map[string]any{
			"cohort": []any{[]any{map[string]any{"field": "a", "op": "exists"}}},
		},
		Expect: Expect{Error: "INVALID_NUMBER"},
	}

	result, err := Run(newCompiler(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "compilation succeeded")
}

func TestRun_WrongErrorPath(t *testing.T) {
	s := &Scenario{
		Name:        "path",
		Description: "error is in the second predicate",
		Query: map[string]any{
			"cohort": []any{[]any{
				map[string]any{"field": "a", "op": "exists"},
				map[string]any{"field": "b", "op": ">"},
			}},
		},
		Expect: Expect{Error: "MISSING_VALUE", Path: "cohort[0][0]"},
	}

	result, err := Run(newCompiler(), s)
	require.NoError(t, err)

	assert.Equal(t, "MISSING_VALUE", result.ErrorCode)
	assert.Equal(t, "cohort[0][1]", result.ErrorPath)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{`expected error path "cohort[0][0]", got "cohort[0][1]"`}, result.Errors)
}

func TestRun_UnexpectedError(t *testing.T) {
	s := &Scenario{
		Name:        "unexpected",
		Description: "fails validation",
		Query:       map[string]any{"cohort": []any{}},
		Expect:      Expect{Stages: []string{"$match", "$project"}},
	}

	result, err := Run(newCompiler(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, "EMPTY_COHORT", result.ErrorCode)
	assert.Contains(t, result.Errors[0], "unexpected error")
}

func TestRun_SchemaViolation(t *testing.T) {
	s := &Scenario{
		Name:        "schema",
		Description: "cohort must be a list of groups",
		Query:       map[string]any{"cohort": "everyone"},
		Expect:      Expect{Error: ErrCodeSchemaViolation},
	}

	result, err := Run(newCompiler(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.ErrorPath)
}

func TestRun_RespectsCompilerOptions(t *testing.T) {
	opts := querymongo.DefaultOptions()
	opts.IdentifierField = "eid"

	s := &Scenario{
		Name:        "custom_identifier",
		Description: "projection starts with the configured identifier",
		Query: map[string]any{
			"cohort": []any{[]any{map[string]any{"field": "a", "op": "exists"}}},
		},
		Expect: Expect{
			Stages:     []string{"$match", "$project"},
			Projection: []string{"eid", "_id"},
		},
	}

	result, err := Run(querymongo.NewCompiler(opts), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
