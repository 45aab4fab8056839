// Package queryir provides the intermediate representation for cohort
// queries: the boolean-combined field predicates and derived-field
// formulas that users submit to select patient records.
//
// QueryIR is the boundary between the wire format (JSON, YAML or CUE query
// documents) and backend compilers. The only backend today is querymongo,
// which lowers a Query to a MongoDB aggregation pipeline.
//
//	[query document] → Decode → [Query IR] → Check → [querymongo] → pipeline
//
// STRUCTURE:
//
// A Query is an OR of Groups; a Group is an AND of Predicates:
//
//	cohort: [
//	  [ {31.0.0 = Male} ],                      // group 1
//	  [ {31.0.0 = Female}, {20205 exists} ],    // group 2
//	]
//
// Derived fields (NewFields) attach an arithmetic Expr to an output name.
// Predicates in any group may test derived fields by name.
//
// SEALED INTERFACES:
//
// Expr and Value are sealed using the marker method pattern so backends can
// switch exhaustively over the variants:
//
//	switch e := expr.(type) {
//	case Binary:
//	case Literal:
//	case FieldRef:
//	default:
//	    // unreachable for decoded input
//	}
//
// Binary carries its operator verbatim, including operators outside the
// supported set, so the validator and backends can name the offending tag
// rather than dropping it during decode.
//
// VALIDATION:
//
// Check is a fail-fast structural pass run before any translation. It never
// inspects predicate values; value parsing errors belong to the backend.
package queryir
