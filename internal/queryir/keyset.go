package queryir

import (
	"fmt"

	"github.com/roach88/recstore/internal/ir"
)

// KeysetRules builds the pagination rules selecting the rows that sort
// strictly after last under sorting (plus the implicit modified key).
//
// For keys k1..kn the result is the disjunction, for each i, of
// "k1..k(i-1) SAME as last's values AND ki beyond last's value", where
// "beyond" is AFTER for ascending and BEFORE for descending keys. Fields
// missing from last become Absent operands.
//
// The tombstone marker orders differently from how it filters, so it cannot
// be a keyset column.
func KeysetRules(r *ir.Resource, sorting []Sort, last ir.Record) (Rules, error) {
	keys := EffectiveSorting(r, sorting)
	rules := make(Rules, 0, len(keys))
	for i, k := range keys {
		if k.Field == r.DeletedField {
			return nil, fmt.Errorf("keyset: cannot paginate on tombstone marker %q", k.Field)
		}
		group := make(Filter, 0, i+1)
		for _, prev := range keys[:i] {
			group = append(group, Condition{Field: prev.Field, Value: cursorValue(last, prev.Field), Operator: SAME})
		}
		op := AFTER
		if k.Direction == Descending {
			op = BEFORE
		}
		group = append(group, Condition{Field: k.Field, Value: cursorValue(last, k.Field), Operator: op})
		rules = append(rules, group)
	}
	return rules, nil
}

func cursorValue(last ir.Record, field string) any {
	v, ok := last[field]
	if !ok {
		return Absent
	}
	return v
}
