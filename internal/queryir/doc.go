// Package queryir provides the backend-agnostic query representation for
// record collections: filters, sorting, keyset pagination rules and limits.
//
// The evaluation semantics are defined once, in Evaluate, and every backend
// must reproduce them exactly. The in-memory and key-value backends call
// Evaluate directly; the relational backend compiles the same Query to SQL
// (see internal/querysql) and is tested against the same expectations.
//
// # Evaluation Order
//
// For one (tenant, resource):
//
//  1. live records matching Filters
//  2. tombstones matching Filters, only when IncludeDeleted is set
//  3. union of both
//  4. pagination rule-groups applied to the union (OR of ANDs)
//  5. total = number of live records from step 1
//  6. sort the union
//  7. truncate to Limit (and to the backend's max fetch size)
//
// The reported total never counts tombstones and ignores pagination rules:
// it describes the filtered collection, not the page.
//
// # Field Views
//
// Filters and sort keys address fields by name. Reserved fields resolve to
// store-managed values: the identity field is the record id, the modified
// field is the version stamp, and the tombstone marker is the sentinel value
// on tombstones and absent on live records. Content fields are absent on
// tombstones, so content predicates exclude tombstones naturally.
//
// # Comparison
//
// Values are ordered by ir.Compare. Ordered operators only match values of
// the operand's kind; EQ needs the same kind and value; NOT and EXCLUDE
// negate EQ and IN and therefore match absent fields. AFTER, BEFORE and
// SAME compare across kinds in the sort order, so keyset pagination built
// from them continues past absent, null and mixed-kind sort values.
//
// Field names are restricted to an allow-list pattern so that backends can
// map them to native identifiers without quoting caller input.
package queryir
