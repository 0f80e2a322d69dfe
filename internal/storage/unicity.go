package storage

import (
	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/queryir"
)

// UniqueConditions returns one EQ condition per unique field holding a
// non-null value in content. Null and absent values are exempt.
//
// Backends that query natively compile these conditions so that equality
// means exactly what it means for the reference evaluator.
func UniqueConditions(r *ir.Resource, content ir.Record) []queryir.Condition {
	var conds []queryir.Condition
	for _, field := range r.UniqueFields {
		v, ok := content[field]
		if !ok || v == nil {
			continue
		}
		conds = append(conds, queryir.Condition{Field: field, Value: v, Operator: queryir.EQ})
	}
	return conds
}

// CheckUnicity fails with a UnicityError if any unique field of content
// collides with a record in live other than excludingID. Fields are checked
// independently, in declaration order; the first collision wins.
//
// live must only hold live records of the same (tenant, resource).
func CheckUnicity(r *ir.Resource, content ir.Record, excludingID string, live []ir.Record) error {
	conds := UniqueConditions(r, content)
	if len(conds) == 0 {
		return nil
	}
	for _, c := range conds {
		for _, rec := range live {
			if id, _ := rec[r.IDField].(string); id == excludingID {
				continue
			}
			if queryir.MatchCondition(r, queryir.Row{Record: rec}, c) {
				return NewUnicityError(c.Field, rec.Clone())
			}
		}
	}
	return nil
}
