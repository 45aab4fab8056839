package harness

import (
	"errors"
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/v2/bson"
	"gopkg.in/yaml.v3"

	"github.com/dsi-icl/eae-interface/internal/queryfile"
	"github.com/dsi-icl/eae-interface/internal/queryir"
	"github.com/dsi-icl/eae-interface/internal/querymongo"
)

// Run compiles a scenario query and checks the outcome against the
// scenario's expectations.
//
// Compile failures are part of the result, not the returned error. The
// returned error is reserved for scenarios that cannot be executed at all.
func Run(compiler *querymongo.Compiler, scenario *Scenario) (*Result, error) {
	source, err := yaml.Marshal(scenario.Query)
	if err != nil {
		return nil, fmt.Errorf("encode scenario query: %w", err)
	}

	result := NewResult()

	pipeline, err := compile(compiler, source, scenario.Name)
	if err != nil {
		code, path, ok := classify(err)
		if !ok {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
		result.ErrorCode = code
		result.ErrorPath = path
		result.ErrorMessage = err.Error()
	} else {
		result.Pipeline = pipeline
	}

	check(scenario.Expect, result)
	return result, nil
}

func compile(compiler *querymongo.Compiler, source []byte, name string) (querymongo.Pipeline, error) {
	loaded, err := queryfile.Parse(source, queryfile.FormatYAML, name+".yaml")
	if err != nil {
		return nil, err
	}
	return compiler.Compile(loaded.Query)
}

// classify maps a compile error to its scenario code and path.
func classify(err error) (code, path string, ok bool) {
	var ve *queryir.ValidationError
	if errors.As(err, &ve) {
		return string(ve.Code), ve.Path, true
	}
	var te *querymongo.TranslationError
	if errors.As(err, &te) {
		return string(te.Code), te.Path, true
	}
	var se *queryfile.SchemaError
	if errors.As(err, &se) {
		return ErrCodeSchemaViolation, "", true
	}
	return "", "", false
}

func check(expect Expect, result *Result) {
	if expect.Error != "" {
		if result.ErrorCode == "" {
			result.AddError(fmt.Sprintf("expected error %s, compilation succeeded", expect.Error))
			return
		}
		if result.ErrorCode != expect.Error {
			result.AddError(fmt.Sprintf("expected error %s, got %s (%s)", expect.Error, result.ErrorCode, result.ErrorMessage))
		}
		if expect.Path != "" && result.ErrorPath != expect.Path {
			result.AddError(fmt.Sprintf("expected error path %q, got %q", expect.Path, result.ErrorPath))
		}
		return
	}

	if result.ErrorCode != "" {
		result.AddError(fmt.Sprintf("unexpected error: %s", result.ErrorMessage))
		return
	}

	if got := result.Pipeline.StageNames(); !slices.Equal(got, expect.Stages) {
		result.AddError(fmt.Sprintf("stages: expected %v, got %v", expect.Stages, got))
	}

	if expect.Groups > 0 {
		if got, ok := filterGroups(result.Pipeline); !ok {
			result.AddError("groups: pipeline has no $match stage")
		} else if got != expect.Groups {
			result.AddError(fmt.Sprintf("groups: expected %d, got %d", expect.Groups, got))
		}
	}

	if len(expect.Projection) > 0 {
		if got := projectionKeys(result.Pipeline); !slices.Equal(got, expect.Projection) {
			result.AddError(fmt.Sprintf("projection: expected %v, got %v", expect.Projection, got))
		}
	}
}

// filterGroups counts the cohort groups encoded in the $match stage.
func filterGroups(p querymongo.Pipeline) (int, bool) {
	for _, stage := range p {
		fs, ok := stage.(querymongo.FilterStage)
		if !ok {
			continue
		}
		if len(fs.Filter) == 1 && fs.Filter[0].Key == "$or" {
			if branches, ok := fs.Filter[0].Value.(bson.A); ok {
				return len(branches), true
			}
		}
		return 1, true
	}
	return 0, false
}

func projectionKeys(p querymongo.Pipeline) []string {
	var keys []string
	for _, stage := range p {
		if ps, ok := stage.(querymongo.ProjectStage); ok {
			for _, e := range ps.Fields {
				keys = append(keys, e.Key)
			}
		}
	}
	return keys
}
