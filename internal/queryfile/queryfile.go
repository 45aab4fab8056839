// Package queryfile loads cohort queries from JSON, YAML and CUE files.
//
// Every source is checked against an embedded CUE schema (#Query) before it
// is decoded, so shape errors carry file positions. YAML is converted to JSON
// first. CUE sources may use comments, hidden fields and references; only
// the exported value is decoded.
package queryfile

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/dsi-icl/eae-interface/internal/queryir"
)

//go:embed schema.cue
var schemaSource []byte

// Format identifies a query file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// ErrUnsupportedFormat is returned for file extensions with no decoder.
var ErrUnsupportedFormat = errors.New("unsupported query file format")

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Loaded is a decoded query file.
type Loaded struct {
	// Name is the file name used in error positions.
	Name string

	Format Format

	// JSON is the schema-checked query document with defaults filled in.
	JSON []byte

	Query *queryir.Query
}

// SchemaError reports a query document that does not satisfy #Query.
type SchemaError struct {
	Message string
	Pos     token.Pos
}

func (e *SchemaError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: schema: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return "schema: " + e.Message
}

// IsSchemaError reports whether err wraps a *SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// Load reads and decodes the query file at path.
func Load(path string) (*Loaded, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read query file: %w", err)
	}
	return Parse(data, format, filepath.Base(path))
}

// Parse decodes a query document in the given format. Name labels error
// positions.
//
// Errors are *SchemaError for documents that do not match #Query, and
// *queryir.ValidationError for documents queryir.Decode rejects. Parse
// does not run queryir.Check.
func Parse(data []byte, format Format, name string) (*Loaded, error) {
	source := data
	switch format {
	case FormatJSON, FormatCUE:
	case FormatYAML:
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, err
		}
		source = converted
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	exported, err := checkSchema(source, name)
	if err != nil {
		return nil, err
	}

	q, err := queryir.Decode(exported)
	if err != nil {
		return nil, err
	}

	return &Loaded{Name: name, Format: format, JSON: exported, Query: q}, nil
}

// checkSchema unifies the document with #Query and exports it as JSON.
func checkSchema(source []byte, name string) ([]byte, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile query schema: %w", err)
	}

	doc := ctx.CompileBytes(source, cue.Filename(name))
	if err := doc.Err(); err != nil {
		return nil, schemaError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Query")).Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, schemaError(err)
	}

	exported, err := unified.MarshalJSON()
	if err != nil {
		return nil, schemaError(err)
	}
	return exported, nil
}

// schemaError keeps the first CUE error and its position.
func schemaError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{Message: err.Error()}
	}

	first := errs[0]
	se := &SchemaError{Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		se.Pos = positions[0]
	}
	return se
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &SchemaError{Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if doc == nil {
		return nil, &SchemaError{Message: "empty YAML document"}
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, &SchemaError{Message: fmt.Sprintf("YAML document is not representable as JSON: %v", err)}
	}
	return out, nil
}
