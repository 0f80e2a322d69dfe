package storagetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/queryir"
	"github.com/roach88/recstore/internal/storage"
)

func markerIs(v any) queryir.Condition {
	return queryir.Condition{Field: "deleted", Value: v, Operator: queryir.EQ}
}

func runDeleted(t *testing.T, open Factory) {
	t.Run("TombstoneKeepsOnlyReservedFields", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		created := f.create(ir.Record{"foo": "bar"})

		tombstone := f.delete(idOf(created))

		assert.Equal(t, ir.Record{
			"id":            idOf(created),
			"last_modified": stampOf(tombstone),
			"deleted":       true,
		}, tombstone)
		assert.Greater(t, stampOf(tombstone), stampOf(created))
	})

	t.Run("DeletingTwiceFails", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		created := f.create(ir.Record{})
		f.delete(idOf(created))

		_, err := f.store.Delete(f.ctx, f.res, f.tenant, idOf(created))

		assert.True(t, storage.IsNotFound(err))
	})

	t.Run("UpdateOnTombstoneRevives", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		created := f.create(ir.Record{"foo": "bar"})
		f.delete(idOf(created))

		_, err := f.store.Get(f.ctx, f.res, f.tenant, idOf(created))
		require.True(t, storage.IsNotFound(err))

		f.update(idOf(created), ir.Record{"foo": "baz"})
		assert.Equal(t, "baz", f.get(idOf(created))["foo"])
	})

	t.Run("HiddenByDefault", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		for range 3 {
			f.create(ir.Record{})
		}
		f.delete(idOf(f.create(ir.Record{})))

		records, count := f.getAll(queryir.Query{})

		assert.Len(t, records, 3)
		assert.Equal(t, 3, count)
	})

	t.Run("IncludedOnRequestButNotCounted", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		for range 3 {
			f.create(ir.Record{"foo": "bar"})
		}
		gone := f.create(ir.Record{"foo": "bar"})
		tombstone := f.delete(idOf(gone))

		records, count := f.getAll(queryir.Query{IncludeDeleted: true})

		assert.Len(t, records, 4)
		assert.Equal(t, 3, count)
		assert.Equal(t, tombstone, records[3])
	})

	t.Run("SortOnStampMixesTombstones", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		for i := range 20 {
			rec := f.create(ir.Record{})
			if i%2 == 0 {
				f.delete(idOf(rec))
			}
		}

		records, count := f.getAll(queryir.Query{
			Sorting:        []queryir.Sort{{Field: "last_modified", Direction: queryir.Descending}},
			IncludeDeleted: true,
		})

		assert.Equal(t, 10, count)
		require.Len(t, records, 20)
		for i := 1; i < len(records); i++ {
			assert.Greater(t, stampOf(records[i-1]), stampOf(records[i]))
		}
		// The last write is the live record created at i=19.
		assert.False(t, isTombstone(records[0]))
		assert.True(t, isTombstone(records[1]))
	})

	t.Run("SortOnContentPutsTombstonesFirst", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		two := f.create(ir.Record{"n": 2})
		one := f.create(ir.Record{"n": 1})
		gone := f.create(ir.Record{"n": 0})
		f.delete(idOf(gone))

		asc, _ := f.getAll(queryir.Query{
			Sorting:        []queryir.Sort{{Field: "n", Direction: queryir.Ascending}},
			IncludeDeleted: true,
		})
		desc, _ := f.getAll(queryir.Query{
			Sorting:        []queryir.Sort{{Field: "n", Direction: queryir.Descending}},
			IncludeDeleted: true,
		})

		assert.Equal(t, []string{idOf(gone), idOf(one), idOf(two)}, idsOf(asc))
		assert.Equal(t, []string{idOf(two), idOf(one), idOf(gone)}, idsOf(desc))
	})

	t.Run("SortOnMarker", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		live := f.create(ir.Record{})
		gone := f.create(ir.Record{})
		f.delete(idOf(gone))

		asc, _ := f.getAll(queryir.Query{
			Sorting:        []queryir.Sort{{Field: "deleted", Direction: queryir.Ascending}},
			IncludeDeleted: true,
		})
		desc, _ := f.getAll(queryir.Query{
			Sorting:        []queryir.Sort{{Field: "deleted", Direction: queryir.Descending}},
			IncludeDeleted: true,
		})

		assert.Equal(t, []string{idOf(gone), idOf(live)}, idsOf(asc))
		assert.Equal(t, []string{idOf(live), idOf(gone)}, idsOf(desc))
	})

	t.Run("StampFilterSeesTombstones", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		first := f.create(ir.Record{})
		f.create(ir.Record{})
		before := f.timestamp()
		f.create(ir.Record{})
		f.delete(idOf(first))

		records, count := f.getAll(queryir.Query{
			Filters:        queryir.Filter{{Field: "last_modified", Value: before, Operator: queryir.GT}},
			IncludeDeleted: true,
		})

		assert.Len(t, records, 2)
		assert.Equal(t, 1, count)
	})

	t.Run("ContentFilterSkipsTombstones", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		f.create(ir.Record{"title": "x"})
		f.delete(idOf(f.create(ir.Record{"title": "x"})))

		records, count := f.getAll(queryir.Query{
			Filters:        queryir.Filter{{Field: "title", Value: "x", Operator: queryir.EQ}},
			IncludeDeleted: true,
		})

		assert.Len(t, records, 1)
		assert.Equal(t, 1, count)
	})

	t.Run("FilterOnMarker", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		for range 3 {
			f.create(ir.Record{})
		}
		for range 2 {
			f.delete(idOf(f.create(ir.Record{})))
		}

		records, count := f.getAll(queryir.Query{
			Filters:        queryir.Filter{markerIs(true)},
			IncludeDeleted: true,
		})
		assert.Len(t, records, 2)
		assert.Zero(t, count)
		for _, rec := range records {
			assert.True(t, isTombstone(rec))
		}

		records, count = f.getAll(queryir.Query{
			Filters:        queryir.Filter{{Field: "deleted", Value: true, Operator: queryir.NOT}},
			IncludeDeleted: true,
		})
		assert.Len(t, records, 3)
		assert.Equal(t, 3, count)

		records, _ = f.getAll(queryir.Query{
			Filters:        queryir.Filter{markerIs(false)},
			IncludeDeleted: true,
		})
		assert.Empty(t, records)

		records, _ = f.getAll(queryir.Query{Filters: queryir.Filter{markerIs(true)}})
		assert.Empty(t, records)
	})

	t.Run("PaginationWithTombstones", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		for i := range 10 {
			rec := f.create(ir.Record{})
			if i%2 == 0 {
				f.delete(idOf(rec))
			}
		}

		page, count := f.getAll(queryir.Query{Limit: 5, IncludeDeleted: true})
		require.Len(t, page, 5)
		assert.Equal(t, 5, count)
		assert.True(t, isTombstone(page[0]))
		assert.False(t, isTombstone(page[1]))

		rules, err := queryir.KeysetRules(f.res, nil, page[4])
		require.NoError(t, err)
		next, _ := f.getAll(queryir.Query{Limit: 5, IncludeDeleted: true, Pagination: rules})
		require.Len(t, next, 5)
		assert.Greater(t, stampOf(next[0]), stampOf(page[4]))
	})
}
