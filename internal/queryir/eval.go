package queryir

import (
	"slices"

	"github.com/roach88/recstore/internal/ir"
)

// Row is a stored record as seen by the evaluator. Tombstones carry
// Deleted=true and only their reserved fields.
type Row struct {
	Record  ir.Record
	Deleted bool
}

// View resolves a field on a row to its (value, present) pair.
func View(r *ir.Resource, row Row, field string) (any, bool) {
	switch field {
	case r.IDField, r.ModifiedField:
		v, ok := row.Record[field]
		return v, ok
	case r.DeletedField:
		if row.Deleted {
			return r.DeletedValue, true
		}
		return nil, false
	}
	if row.Deleted {
		return nil, false
	}
	v, ok := row.Record[field]
	return v, ok
}

// MatchCondition evaluates one condition against a row.
func MatchCondition(r *ir.Resource, row Row, c Condition) bool {
	v, ok := View(r, row, c.Field)
	return Compare(v, ok, c.Operator, c.Value)
}

// Compare applies op between a (value, present) pair and an operand.
// It is the single definition of operator semantics.
func Compare(v any, present bool, op Operator, operand any) bool {
	switch op {
	case EQ:
		return present && ir.Equal(v, operand)
	case NOT:
		return !(present && ir.Equal(v, operand))
	case IN:
		return present && inSet(v, operand)
	case EXCLUDE:
		return !(present && inSet(v, operand))
	case AFTER, BEFORE, SAME:
		ov, ook := Operand(operand)
		d := ir.Compare(v, present, ov, ook)
		switch op {
		case AFTER:
			return d > 0
		case BEFORE:
			return d < 0
		default:
			return d == 0
		}
	case GT, MIN, LT, MAX:
		if !present || ir.KindOf(v, true) != ir.KindOf(operand, true) {
			return false
		}
		d := ir.Compare(v, true, operand, true)
		switch op {
		case GT:
			return d > 0
		case MIN:
			return d >= 0
		case LT:
			return d < 0
		default:
			return d <= 0
		}
	}
	return false
}

func inSet(v any, set any) bool {
	values, _ := set.([]any)
	for _, candidate := range values {
		if ir.Equal(v, candidate) {
			return true
		}
	}
	return false
}

// Match reports whether a row satisfies every condition of f.
func Match(r *ir.Resource, row Row, f Filter) bool {
	for _, c := range f {
		if !MatchCondition(r, row, c) {
			return false
		}
	}
	return true
}

// MatchRules reports whether a row satisfies any rule-group. Empty rules
// match everything.
func MatchRules(r *ir.Resource, row Row, rules Rules) bool {
	if len(rules) == 0 {
		return true
	}
	for _, group := range rules {
		if Match(r, row, group) {
			return true
		}
	}
	return false
}

// SortKey resolves the value a row sorts by for field. The tombstone
// marker sorts tombstones (0) before live rows (1); other fields sort by
// their view, absent first.
func SortKey(r *ir.Resource, row Row, field string) (any, bool) {
	if field == r.DeletedField {
		if row.Deleted {
			return float64(0), true
		}
		return float64(1), true
	}
	return View(r, row, field)
}

// EffectiveSorting appends the implicit modified-ascending tie-breaker
// unless the modified field is already a key. Stamps are unique per
// collection, so the resulting order is total.
func EffectiveSorting(r *ir.Resource, sorting []Sort) []Sort {
	for _, s := range sorting {
		if s.Field == r.ModifiedField {
			return sorting
		}
	}
	out := make([]Sort, 0, len(sorting)+1)
	out = append(out, sorting...)
	return append(out, Sort{Field: r.ModifiedField, Direction: Ascending})
}

// SortRows orders rows in place.
func SortRows(r *ir.Resource, rows []Row, sorting []Sort) {
	keys := EffectiveSorting(r, sorting)
	slices.SortStableFunc(rows, func(a, b Row) int {
		for _, k := range keys {
			av, aok := SortKey(r, a, k.Field)
			bv, bok := SortKey(r, b, k.Field)
			if d := ir.Compare(av, aok, bv, bok); d != 0 {
				return d * int(k.Direction)
			}
		}
		return 0
	})
}

// EffectiveLimit combines the query limit with a backend fetch cap. Zero
// means unbounded on either side.
func EffectiveLimit(limit, maxFetch int) int {
	switch {
	case limit <= 0:
		return maxFetch
	case maxFetch <= 0:
		return limit
	default:
		return min(limit, maxFetch)
	}
}

// Evaluate runs a query over the records of one collection and returns the
// page plus the live total. Returned records are copies.
//
// This is the reference semantics for every backend.
func Evaluate(r *ir.Resource, live, tombstones []ir.Record, q Query, maxFetch int) ([]ir.Record, int) {
	rows := make([]Row, 0, len(live))
	total := 0
	for _, rec := range live {
		row := Row{Record: rec}
		if Match(r, row, q.Filters) {
			rows = append(rows, row)
			total++
		}
	}
	if q.IncludeDeleted {
		for _, rec := range tombstones {
			row := Row{Record: rec, Deleted: true}
			if Match(r, row, q.Filters) {
				rows = append(rows, row)
			}
		}
	}

	page := rows[:0]
	for _, row := range rows {
		if MatchRules(r, row, q.Pagination) {
			page = append(page, row)
		}
	}

	SortRows(r, page, q.Sorting)

	if n := EffectiveLimit(q.Limit, maxFetch); n > 0 && len(page) > n {
		page = page[:n]
	}

	out := make([]ir.Record, len(page))
	for i, row := range page {
		out[i] = row.Record.Clone()
	}
	return out, total
}
