// Package storagetest is the conformance suite shared by every storage
// backend. A backend passes when it is observably identical to the
// in-memory reference on every case below.
//
// Usage from a backend's tests:
//
//	func TestConformance(t *testing.T) {
//		storagetest.Run(t, func(t *testing.T, opts storage.Options) storage.Storage {
//			return newTestStore(t, opts)
//		})
//	}
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/queryir"
	"github.com/roach88/recstore/internal/storage"
)

// Factory opens an empty store configured with opts. The factory owns
// cleanup (t.Cleanup) of whatever it opens.
type Factory func(t *testing.T, opts storage.Options) storage.Storage

// Run executes the whole suite against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Run("Basic", func(t *testing.T) { runBasic(t, open) })
	t.Run("Timestamps", func(t *testing.T) { runTimestamps(t, open) })
	t.Run("Unicity", func(t *testing.T) { runUnicity(t, open) })
	t.Run("Deleted", func(t *testing.T) { runDeleted(t, open) })
	t.Run("Query", func(t *testing.T) { runQuery(t, open) })
}

const tenant = "1234"

// fixture binds a fresh store to the default resource and tenant.
type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  storage.Storage
	res    *ir.Resource
	tenant string
}

func setup(t *testing.T, open Factory, opts storage.Options) *fixture {
	t.Helper()
	ctx := context.Background()
	s := open(t, opts)
	require.NoError(t, storage.EnsureSchema(ctx, s))
	return &fixture{
		t:      t,
		ctx:    ctx,
		store:  s,
		res:    ir.DefaultResource("test"),
		tenant: tenant,
	}
}

func (f *fixture) create(rec ir.Record) ir.Record {
	f.t.Helper()
	out, err := f.store.Create(f.ctx, f.res, f.tenant, rec)
	require.NoError(f.t, err)
	return out
}

func (f *fixture) update(id string, rec ir.Record) ir.Record {
	f.t.Helper()
	out, err := f.store.Update(f.ctx, f.res, f.tenant, id, rec)
	require.NoError(f.t, err)
	return out
}

func (f *fixture) delete(id string) ir.Record {
	f.t.Helper()
	out, err := f.store.Delete(f.ctx, f.res, f.tenant, id)
	require.NoError(f.t, err)
	return out
}

func (f *fixture) get(id string) ir.Record {
	f.t.Helper()
	out, err := f.store.Get(f.ctx, f.res, f.tenant, id)
	require.NoError(f.t, err)
	return out
}

func (f *fixture) getAll(q queryir.Query) ([]ir.Record, int) {
	f.t.Helper()
	records, count, err := f.store.GetAll(f.ctx, f.res, f.tenant, q)
	require.NoError(f.t, err)
	return records, count
}

func (f *fixture) timestamp() int64 {
	f.t.Helper()
	ts, err := f.store.CollectionTimestamp(f.ctx, f.res, f.tenant)
	require.NoError(f.t, err)
	return ts
}

func idOf(rec ir.Record) string {
	id, _ := rec["id"].(string)
	return id
}

func stampOf(rec ir.Record) int64 {
	stamp, _ := rec["last_modified"].(int64)
	return stamp
}

func idsOf(records []ir.Record) []string {
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = idOf(rec)
	}
	return out
}

func isTombstone(rec ir.Record) bool {
	v, ok := rec["deleted"]
	return ok && v == true
}
