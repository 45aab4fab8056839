package querymongo

import (
	"bytes"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Stage is one aggregation pipeline stage.
//
// This is a sealed interface - only types in this package implement it.
type Stage interface {
	stageNode() // Marker method - unexported to seal interface

	// Name returns the stage operator, e.g. "$match".
	Name() string

	// Document returns the stage as {<name>: <body>}.
	Document() bson.D
}

// ComputeStage adds derived fields ($addFields).
type ComputeStage struct {
	Fields bson.D
}

func (ComputeStage) stageNode() {}

// Name returns "$addFields".
func (ComputeStage) Name() string { return "$addFields" }

// Document returns {"$addFields": Fields}.
func (s ComputeStage) Document() bson.D {
	return bson.D{{Key: s.Name(), Value: s.Fields}}
}

// FilterStage keeps matching records ($match).
type FilterStage struct {
	Filter bson.D
}

func (FilterStage) stageNode() {}

// Name returns "$match".
func (FilterStage) Name() string { return "$match" }

// Document returns {"$match": Filter}.
func (s FilterStage) Document() bson.D {
	return bson.D{{Key: s.Name(), Value: s.Filter}}
}

// ProjectStage selects the returned fields ($project).
type ProjectStage struct {
	Fields bson.D
}

func (ProjectStage) stageNode() {}

// Name returns "$project".
func (ProjectStage) Name() string { return "$project" }

// Document returns {"$project": Fields}.
func (s ProjectStage) Document() bson.D {
	return bson.D{{Key: s.Name(), Value: s.Fields}}
}

// Pipeline is an ordered sequence of stages.
type Pipeline []Stage

// Documents returns the stage documents, ready for an Aggregate call.
func (p Pipeline) Documents() []bson.D {
	docs := make([]bson.D, len(p))
	for i, s := range p {
		docs[i] = s.Document()
	}
	return docs
}

// StageNames returns the stage operators in order.
func (p Pipeline) StageNames() []string {
	names := make([]string, len(p))
	for i, s := range p {
		names[i] = s.Name()
	}
	return names
}

// MarshalJSON renders the pipeline as a JSON array of relaxed Extended JSON
// stage documents. Output is compact and byte-for-byte deterministic.
func (p Pipeline) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, s := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		doc, err := bson.MarshalExtJSON(s.Document(), false, false)
		if err != nil {
			return nil, fmt.Errorf("marshal %s stage: %w", s.Name(), err)
		}
		buf.Write(doc)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
