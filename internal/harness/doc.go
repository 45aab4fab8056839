// Package harness runs conformance scenarios against the cohort compiler.
//
// # Scenario Format
//
// Scenarios are YAML files. The query is written inline and goes through
// the same schema check and decoder as a query file:
//
//	name: two_groups
//	description: "Groups are OR-ed in order"
//	query:
//	  cohort:
//	    - - { field: "31.0.0", value: "Male", op: "=" }
//	    - - { field: "21003.0.0", value: 60, op: ">" }
//	  data_requested: ["102.0.1"]
//	expect:
//	  stages: ["$match", "$project"]
//	  groups: 2
//	  projection: ["m_eid", "_id", "102.0.1"]
//
// A scenario expecting failure names the error code and, optionally, the
// path of the offending element:
//
//	expect:
//	  error: INVALID_NUMBER
//	  path: cohort[0][0]
//
// Schema violations use the code SCHEMA_VIOLATION.
//
// # Golden Files
//
// RunWithGolden renders the compiled pipeline (or the error) as indented
// relaxed Extended JSON and compares it with testdata/golden/{name}.golden.
// Regenerate with:
//
//	go test ./internal/harness -update
package harness
