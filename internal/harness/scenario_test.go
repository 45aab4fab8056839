package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content to name in dir and returns the path.
func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "test.yaml", `
name: test_scenario
description: "Test scenario for validation"
query:
  cohort:
    - - { field: "31.0.0", value: "Male", op: "=" }
expect:
  stages: ["$match", "$project"]
  groups: 1
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Contains(t, scenario.Query, "cohort")
	assert.Equal(t, []string{"$match", "$project"}, scenario.Expect.Stages)
	assert.Equal(t, 1, scenario.Expect.Groups)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownFieldRejected(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "typo.yaml", `
name: typo
description: "Misspelled expect key"
query:
  cohort: [[{ field: "a", op: "exists" }]]
expect:
  stage: ["$match"]
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: "x"
query: { cohort: [] }
expect: { error: EMPTY_COHORT }
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			content: `
name: x
query: { cohort: [] }
expect: { error: EMPTY_COHORT }
`,
			wantErr: "description is required",
		},
		{
			name: "missing query",
			content: `
name: x
description: "x"
expect: { error: EMPTY_COHORT }
`,
			wantErr: "query is required",
		},
		{
			name: "no expectation",
			content: `
name: x
description: "x"
query: { cohort: [] }
`,
			wantErr: "one of error or stages is required",
		},
		{
			name: "path without error",
			content: `
name: x
description: "x"
query: { cohort: [] }
expect: { stages: ["$match"], path: "cohort" }
`,
			wantErr: "expect.path requires expect.error",
		},
		{
			name: "error with pipeline checks",
			content: `
name: x
description: "x"
query: { cohort: [] }
expect: { error: EMPTY_COHORT, groups: 1 }
`,
			wantErr: "cannot be combined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), "s.yaml", tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenarios_SortedByFileName(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "b.yaml", `
name: second
description: "b"
query: { cohort: [] }
expect: { error: EMPTY_COHORT }
`)
	writeScenario(t, dir, "a.yaml", `
name: first
description: "a"
query: { cohort: [] }
expect: { error: EMPTY_COHORT }
`)
	writeScenario(t, dir, "notes.txt", "ignored")

	scenarios, err := LoadScenarios(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "first", scenarios[0].Name)
	assert.Equal(t, "second", scenarios[1].Name)
}

func TestLoadScenarios_DuplicateName(t *testing.T) {
	dir := t.TempDir()
	for _, file := range []string{"a.yaml", "b.yaml"} {
		writeScenario(t, dir, file, `
name: same
description: "dup"
query: { cohort: [] }
expect: { error: EMPTY_COHORT }
`)
	}

	_, err := LoadScenarios(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"same" already used by a.yaml`)
}

func TestLoadScenarios_Testdata(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	assert.NotEmpty(t, scenarios)
}
