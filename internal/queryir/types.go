package queryir

// Operator is a filter comparison.
type Operator string

const (
	EQ      Operator = "eq"      // equals
	NOT     Operator = "not"     // not equals; matches absent fields
	GT      Operator = "gt"      // greater than
	MIN     Operator = "min"     // greater or equal
	LT      Operator = "lt"      // less than
	MAX     Operator = "max"     // less or equal
	IN      Operator = "in"      // value in set
	EXCLUDE Operator = "exclude" // value not in set; matches absent fields

	// Sort-order operators compare across kinds in the ir.Compare total
	// order, absent smallest. The operand may be Absent.
	AFTER  Operator = "after"  // sorts strictly after
	BEFORE Operator = "before" // sorts strictly before
	SAME   Operator = "same"   // sorts equal; Absent matches absent fields
)

// Operators lists every supported operator.
var Operators = []Operator{EQ, NOT, GT, MIN, LT, MAX, IN, EXCLUDE, AFTER, BEFORE, SAME}

// absent is the type of Absent.
type absent struct{}

// Absent is the operand of AFTER, BEFORE and SAME standing for a missing
// field.
var Absent = absent{}

// IsAbsent reports whether v is the Absent operand.
func IsAbsent(v any) bool {
	_, ok := v.(absent)
	return ok
}

// Operand returns the (value, present) pair of an operand.
func Operand(v any) (any, bool) {
	if IsAbsent(v) {
		return nil, false
	}
	return v, true
}

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	for _, o := range Operators {
		if o == op {
			return true
		}
	}
	return false
}

// IsSet reports whether op takes a set of values.
func (op Operator) IsSet() bool {
	return op == IN || op == EXCLUDE
}

// IsSortOrder reports whether op compares in the total sort order.
func (op Operator) IsSortOrder() bool {
	return op == AFTER || op == BEFORE || op == SAME
}

// Condition compares one field against a value.
//
// For IN and EXCLUDE, Value must be a []any.
type Condition struct {
	Field    string
	Value    any
	Operator Operator
}

// Filter is a conjunction of conditions. An empty filter matches everything.
type Filter []Condition

// Direction orders a sort key.
type Direction int

const (
	Ascending  Direction = 1
	Descending Direction = -1
)

// Sort is one sort key.
type Sort struct {
	Field     string
	Direction Direction
}

// Rules are keyset pagination rule-groups: a row qualifies if it matches
// ANY group, each group being a Filter. Nil rules let every row through.
//
// For sort (A asc, B desc) and cursor row (a0, b0):
//
//	Rules{
//	  {{Field: "A", Value: a0, Operator: AFTER}},
//	  {{Field: "A", Value: a0, Operator: SAME}, {Field: "B", Value: b0, Operator: BEFORE}},
//	}
type Rules []Filter

// Query is the full get_all request.
type Query struct {
	Filters        Filter
	Sorting        []Sort
	Pagination     Rules
	Limit          int // 0 means no limit
	IncludeDeleted bool
}

// Fields returns every field name the query references, in order of
// appearance, duplicates included.
func (q Query) Fields() []string {
	var fields []string
	for _, c := range q.Filters {
		fields = append(fields, c.Field)
	}
	for _, s := range q.Sorting {
		fields = append(fields, s.Field)
	}
	for _, g := range q.Pagination {
		for _, c := range g {
			fields = append(fields, c.Field)
		}
	}
	return fields
}
