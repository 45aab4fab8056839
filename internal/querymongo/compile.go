package querymongo

import (
	"fmt"
	"io"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/dsi-icl/eae-interface/internal/queryir"
)

// Default projection keys.
const (
	DefaultIdentifierField = "m_eid"
	DefaultKeyField        = "_id"
)

// Options configures a Compiler.
type Options struct {
	// Limits bounds query structure. Zero values select the defaults.
	Limits queryir.Limits

	// IdentifierField is always projected (included). Default "m_eid".
	IdentifierField string

	// KeyField is always projected out (excluded). Default "_id".
	// If it equals IdentifierField, both fall back to their defaults.
	KeyField string

	// Logger receives override warnings. Nil discards.
	Logger *slog.Logger
}

// DefaultOptions returns the options used by NewCompiler(Options{}).
func DefaultOptions() Options {
	return Options{
		Limits:          queryir.DefaultLimits(),
		IdentifierField: DefaultIdentifierField,
		KeyField:        DefaultKeyField,
	}
}

// Compiler compiles queries into aggregation pipelines.
//
// A Compiler holds only read-only options and is safe for concurrent use.
// Every call builds fresh documents.
type Compiler struct {
	opts   Options
	logger *slog.Logger
}

// NewCompiler creates a Compiler, filling unset options with defaults.
func NewCompiler(opts Options) *Compiler {
	if opts.Limits.MaxExpressionDepth <= 0 {
		opts.Limits.MaxExpressionDepth = queryir.DefaultMaxExpressionDepth
	}
	if opts.IdentifierField == "" {
		opts.IdentifierField = DefaultIdentifierField
	}
	if opts.KeyField == "" {
		opts.KeyField = DefaultKeyField
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// The identifier is always included and the key always excluded, so
	// one field cannot be both.
	if opts.IdentifierField == opts.KeyField {
		logger.Warn("identifier and key fields collide, using defaults",
			"field", opts.KeyField,
			"identifier_field", DefaultIdentifierField,
			"key_field", DefaultKeyField)
		opts.IdentifierField = DefaultIdentifierField
		opts.KeyField = DefaultKeyField
	}

	return &Compiler{opts: opts, logger: logger}
}

// Options returns the effective options.
func (c *Compiler) Options() Options {
	return c.opts
}

// Compile validates q and builds its pipeline:
//
//  1. queryir.Check; a validation error is returned unchanged
//  2. $addFields from the derived fields, omitted when there are none
//  3. $match from the cohort; groups are OR-ed when there is more than one
//  4. $project of the identifier, the requested fields and the derived names
//
// Either a complete pipeline or an error is returned, never both.
func (c *Compiler) Compile(q *queryir.Query) (Pipeline, error) {
	if err := queryir.Check(q, c.opts.Limits); err != nil {
		return nil, err
	}

	pipeline := make(Pipeline, 0, 3)

	if len(q.NewFields) > 0 {
		compute, err := c.computeStage(q.NewFields)
		if err != nil {
			return nil, err
		}
		pipeline = append(pipeline, compute)
	}

	filter, err := c.filterStage(q.Cohort)
	if err != nil {
		return nil, err
	}
	pipeline = append(pipeline, filter)

	pipeline = append(pipeline, c.projectStage(q))

	c.logger.Debug("compiled query",
		"groups", len(q.Cohort),
		"derived_fields", len(q.NewFields),
		"stages", pipeline.StageNames())

	return pipeline, nil
}

func (c *Compiler) computeStage(fields []queryir.DerivedField) (ComputeStage, error) {
	computed := make(bson.D, 0, len(fields))
	for i, nf := range fields {
		path := fmt.Sprintf("new_fields[%d]", i)
		if nf.Op != queryir.DerivedExpr {
			return ComputeStage{}, &TranslationError{
				Code:    ErrCodeUnsupportedDerivedFieldOp,
				Path:    path,
				Field:   nf.Name,
				Op:      string(nf.Op),
				Message: fmt.Sprintf("derived field %q: op %q cannot be computed", nf.Name, nf.Op),
			}
		}

		expr, err := c.LowerExpr(nf.Expr)
		if err != nil {
			return ComputeStage{}, locate(err, path, nf.Name)
		}
		computed = append(computed, bson.E{Key: nf.Name, Value: expr})
	}
	return ComputeStage{Fields: computed}, nil
}

func (c *Compiler) filterStage(cohort []queryir.Group) (FilterStage, error) {
	if len(cohort) == 1 {
		filter, err := c.translateGroup(cohort[0], "cohort[0]")
		if err != nil {
			return FilterStage{}, err
		}
		return FilterStage{Filter: filter}, nil
	}

	alternatives := make(bson.A, 0, len(cohort))
	for i, group := range cohort {
		filter, err := c.translateGroup(group, fmt.Sprintf("cohort[%d]", i))
		if err != nil {
			return FilterStage{}, err
		}
		alternatives = append(alternatives, filter)
	}
	return FilterStage{Filter: bson.D{{Key: "$or", Value: alternatives}}}, nil
}

func (c *Compiler) projectStage(q *queryir.Query) ProjectStage {
	fields := bson.D{
		{Key: c.opts.IdentifierField, Value: int32(1)},
	}
	fields = include(fields, c.opts.KeyField, int32(0))
	for _, name := range q.DataRequested {
		fields = include(fields, name, int32(1))
	}
	for _, nf := range q.NewFields {
		fields = include(fields, nf.Name, int32(1))
	}
	return ProjectStage{Fields: fields}
}

// include appends key unless it is already projected.
func include(d bson.D, key string, flag int32) bson.D {
	for _, e := range d {
		if e.Key == key {
			return d
		}
	}
	return append(d, bson.E{Key: key, Value: flag})
}
