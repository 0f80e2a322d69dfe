package storage

import (
	"fmt"

	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/queryir"
)

// CheckScope validates the (resource, tenant) pair every operation is
// scoped to.
func CheckScope(r *ir.Resource, tenant string) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if tenant == "" {
		return fmt.Errorf("empty tenant id")
	}
	return nil
}

// PrepareQuery validates the scope and the query of a GetAll call.
func PrepareQuery(r *ir.Resource, tenant string, q queryir.Query) error {
	if err := CheckScope(r, tenant); err != nil {
		return err
	}
	return queryir.Validate(q)
}

// PrepareCreate turns a caller record into the content to persist and the
// id to persist it under. A non-empty string in the identity field is kept;
// anything else is replaced by a generated id. explicit reports which.
func PrepareCreate(r *ir.Resource, tenant string, ids IDGenerator, record ir.Record) (content ir.Record, id string, explicit bool, err error) {
	if err := CheckScope(r, tenant); err != nil {
		return nil, "", false, err
	}
	normalized, err := ir.Normalize(record)
	if err != nil {
		return nil, "", false, err
	}
	if given, ok := normalized[r.IDField].(string); ok && given != "" {
		id, explicit = given, true
	} else {
		id = ids.Generate()
	}
	return r.Content(normalized), id, explicit, nil
}

// PrepareUpdate turns a caller record into the content to persist under id.
// Any identity value in the payload is ignored: the path id wins.
func PrepareUpdate(r *ir.Resource, tenant, id string, record ir.Record) (ir.Record, error) {
	if err := CheckScope(r, tenant); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("empty record id")
	}
	normalized, err := ir.Normalize(record)
	if err != nil {
		return nil, err
	}
	return r.Content(normalized), nil
}
