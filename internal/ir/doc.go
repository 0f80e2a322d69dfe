// Package ir holds the record model shared by every store: records,
// resource descriptors, canonical JSON and the total order of values.
//
// This package contains no storage logic. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Records are JSON-shaped: after Normalize, numbers are float64, arrays
//     are []any and objects are map[string]any
//   - Canonical JSON sorts object keys and never escapes HTML
//   - Values order by kind first: absent < null < bool < number < string
//     < array < object
package ir
