package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFile writes content to name in dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCompileSingleGroup(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/queries/single_group.json"})

	err := cmd.Execute()
	require.NoError(t, err)

	assert.JSONEq(t, `[
		{"$match": {"31.0.0": {"$in": ["Male"]}}},
		{"$project": {"m_eid": 1, "_id": 0, "102.0.1": 1}}
	]`, buf.String())
}

func TestCompileJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/queries/bmi.yaml"})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "bmi.yaml", resp.Data.File)
	assert.Equal(t, []string{"$addFields", "$match", "$project"}, resp.Data.Stages)
	assert.Contains(t, string(resp.Data.Pipeline), `"$pow":["$50.0.0",2]`)
	assert.Contains(t, string(resp.Data.Pipeline), `"bmi":{"$gt":25.0}`)
}

func TestCompileOutputToFile(t *testing.T) {
	outputFile := filepath.Join(t.TempDir(), "pipeline.json")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/queries/single_group.json", "--output", outputFile})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ Compiled single_group.json: 2 stage(s)")
	assert.Contains(t, buf.String(), "Wrote pipeline to")

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)

	var stages []map[string]any
	require.NoError(t, json.Unmarshal(data, &stages))
	require.Len(t, stages, 2)
	assert.Contains(t, stages[0], "$match")
	assert.Contains(t, stages[1], "$project")
}

func TestCompileTranslationError(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/queries/bad_number.json"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "INVALID_NUMBER", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "cohort[0][0]")
}

func TestCompileValidationError(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"testdata/queries/empty_group.json"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [EMPTY_GROUP]")
}

func TestCompileNonExistentFile(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.json")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [NOT_FOUND]")
}

func TestCompileUnsupportedExtension(t *testing.T) {
	path := writeFile(t, t.TempDir(), "query.txt", "{}")

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [UNSUPPORTED_FORMAT]")
}

func TestCompileMissingArg(t *testing.T) {
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
}
