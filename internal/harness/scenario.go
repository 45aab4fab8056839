package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario is a compiler conformance case.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario covers.
	Description string `yaml:"description"`

	// Query is the cohort query document, written inline.
	Query map[string]any `yaml:"query"`

	// Expect lists the checks applied to the compile result.
	Expect Expect `yaml:"expect"`
}

// Expect describes the outcome of compiling a scenario query.
//
// Error is exclusive with the pipeline checks.
type Expect struct {
	// Error is the expected error code. Empty means compilation succeeds.
	Error string `yaml:"error,omitempty"`

	// Path is the expected error path. Only checked when set.
	Path string `yaml:"path,omitempty"`

	// Stages is the expected stage operator order, e.g. ["$match", "$project"].
	Stages []string `yaml:"stages,omitempty"`

	// Groups is the number of cohort groups in the filter. 1 means the group
	// filter is used directly; more means an $or of that many branches.
	// Zero skips the check.
	Groups int `yaml:"groups,omitempty"`

	// Projection is the expected $project key order.
	Projection []string `yaml:"projection,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "stage:" vs "stages:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml scenario in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if prev, ok := seen[s.Name]; ok {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", filepath.Base(path), s.Name, prev)
		}
		seen[s.Name] = filepath.Base(path)
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Query) == 0 {
		return fmt.Errorf("query is required and must be non-empty")
	}

	e := s.Expect
	if e.Error == "" {
		if e.Path != "" {
			return fmt.Errorf("expect.path requires expect.error")
		}
		if len(e.Stages) == 0 {
			return fmt.Errorf("expect: one of error or stages is required")
		}
	} else if len(e.Stages) > 0 || e.Groups != 0 || len(e.Projection) > 0 {
		return fmt.Errorf("expect.error cannot be combined with pipeline checks")
	}

	if e.Groups < 0 {
		return fmt.Errorf("expect.groups must be non-negative")
	}

	return nil
}
