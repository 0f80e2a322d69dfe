package storagetest

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/queryir"
	"github.com/roach88/recstore/internal/storage"
)

func setupUnique(t *testing.T, open Factory) *fixture {
	t.Helper()
	f := setup(t, open, storage.Options{})
	f.res.UniqueFields = []string{"phone", "line"}
	return f
}

func requireUnicity(t *testing.T, err error, field string, conflicting ir.Record) {
	t.Helper()
	var ue *storage.UnicityError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, field, ue.Field)
	assert.Equal(t, conflicting, ue.Record)
}

func runUnicity(t *testing.T, open Factory) {
	t.Run("CreateDuplicateFails", func(t *testing.T) {
		f := setupUnique(t, open)
		first := f.create(ir.Record{"phone": "0033677"})

		_, err := f.store.Create(f.ctx, f.res, f.tenant, ir.Record{"phone": "0033677"})

		requireUnicity(t, err, "phone", first)
	})

	t.Run("UnaddressableUniqueFieldRejected", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		f.res.UniqueFields = []string{"a.b"}

		_, err := f.store.Create(f.ctx, f.res, f.tenant, ir.Record{"a.b": "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `invalid unique field name "a.b"`)

		_, err = f.store.Update(f.ctx, f.res, f.tenant, "x", ir.Record{"a.b": "x"})
		require.Error(t, err)

		f.res.UniqueFields = nil
		_, count := f.getAll(queryir.Query{})
		assert.Zero(t, count, "nothing was written")
	})

	t.Run("UpdateToDuplicateFails", func(t *testing.T) {
		f := setupUnique(t, open)
		first := f.create(ir.Record{"phone": "0033677"})
		second := f.create(ir.Record{"phone": "0033688"})

		_, err := f.store.Update(f.ctx, f.res, f.tenant, idOf(second), ir.Record{"phone": "0033677"})

		requireUnicity(t, err, "phone", first)
		assert.Equal(t, "0033688", f.get(idOf(second))["phone"])
	})

	t.Run("UpdateKeepingOwnValueSucceeds", func(t *testing.T) {
		f := setupUnique(t, open)
		first := f.create(ir.Record{"phone": "0033677"})

		updated := f.update(idOf(first), ir.Record{"phone": "0033677", "name": "x"})

		assert.Equal(t, "x", updated["name"])
	})

	t.Run("UnicityIsPerTenant", func(t *testing.T) {
		f := setupUnique(t, open)
		f.create(ir.Record{"phone": "0033677"})

		_, err := f.store.Create(f.ctx, f.res, "other", ir.Record{"phone": "0033677"})

		assert.NoError(t, err)
	})

	t.Run("NullAndAbsentAreExempt", func(t *testing.T) {
		f := setupUnique(t, open)

		f.create(ir.Record{"phone": nil})
		f.create(ir.Record{"phone": nil})
		f.create(ir.Record{})
		f.create(ir.Record{})
	})

	t.Run("KindsDoNotCollide", func(t *testing.T) {
		f := setupUnique(t, open)

		f.create(ir.Record{"phone": "1"})
		f.create(ir.Record{"phone": 1})
	})

	t.Run("StructuredValuesCollide", func(t *testing.T) {
		f := setupUnique(t, open)
		first := f.create(ir.Record{"phone": map[string]any{"cc": 33, "n": "677"}})

		_, err := f.store.Create(f.ctx, f.res, f.tenant, ir.Record{"phone": map[string]any{"n": "677", "cc": 33}})

		requireUnicity(t, err, "phone", first)
	})

	t.Run("TombstonesReleaseValues", func(t *testing.T) {
		f := setupUnique(t, open)
		first := f.create(ir.Record{"phone": "0033677"})
		f.delete(idOf(first))

		f.create(ir.Record{"phone": "0033677"})
	})

	t.Run("EachFieldIsChecked", func(t *testing.T) {
		f := setupUnique(t, open)
		first := f.create(ir.Record{"phone": "0033677", "line": "A"})

		_, err := f.store.Create(f.ctx, f.res, f.tenant, ir.Record{"phone": "0033688", "line": "A"})

		requireUnicity(t, err, "line", first)
	})

	t.Run("FailedWriteLeavesNoTrace", func(t *testing.T) {
		f := setupUnique(t, open)
		f.create(ir.Record{"phone": "0033677"})
		before := f.timestamp()

		_, err := f.store.Create(f.ctx, f.res, f.tenant, ir.Record{"phone": "0033677"})
		require.Error(t, err)

		assert.Equal(t, before, f.timestamp())
		_, count := f.getAll(queryir.Query{})
		assert.Equal(t, 1, count)
	})

	t.Run("ConcurrentDuplicatesAdmitOne", func(t *testing.T) {
		f := setupUnique(t, open)
		const attempts = 8

		var (
			created  atomic.Int32
			rejected atomic.Int32
			g        errgroup.Group
		)
		for range attempts {
			g.Go(func() error {
				_, err := f.store.Create(f.ctx, f.res, f.tenant, ir.Record{"phone": "0033677"})
				switch {
				case err == nil:
					created.Add(1)
				case storage.IsUnicity(err):
					rejected.Add(1)
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		assert.Equal(t, int32(1), created.Load())
		assert.Equal(t, int32(attempts-1), rejected.Load())
	})
}
