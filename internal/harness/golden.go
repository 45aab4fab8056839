package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/dsi-icl/eae-interface/internal/querymongo"
)

// errorSnapshot is the golden form of a failed compilation.
type errorSnapshot struct {
	Error struct {
		Code    string `json:"code"`
		Path    string `json:"path,omitempty"`
		Message string `json:"message"`
	} `json:"error"`
}

// Render returns the golden form of a result: the pipeline as indented
// relaxed Extended JSON, or the error. Output ends with a newline.
func Render(result *Result) ([]byte, error) {
	var data []byte
	if result.ErrorCode != "" {
		var snap errorSnapshot
		snap.Error.Code = result.ErrorCode
		snap.Error.Path = result.ErrorPath
		snap.Error.Message = result.ErrorMessage

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(snap); err != nil {
			return nil, fmt.Errorf("marshal error snapshot: %w", err)
		}
		data = bytes.TrimSpace(buf.Bytes())
	} else {
		var err error
		if data, err = result.Pipeline.MarshalJSON(); err != nil {
			return nil, err
		}
	}

	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return nil, fmt.Errorf("indent snapshot: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// RunWithGolden executes a scenario and compares the rendered result
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if the scenario cannot be executed. Expectation mismatches
// and golden differences fail t.
func RunWithGolden(t *testing.T, compiler *querymongo.Compiler, scenario *Scenario) error {
	t.Helper()

	result, err := Run(compiler, scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}

	rendered, err := Render(result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, rendered)

	return nil
}
