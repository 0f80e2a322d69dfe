package storagetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/queryir"
	"github.com/roach88/recstore/internal/storage"
)

func runBasic(t *testing.T, open Factory) {
	t.Run("PingAnswers", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		assert.True(t, f.store.Ping(f.ctx))
	})

	t.Run("CreateAddsIdentityAndStamp", func(t *testing.T) {
		f := setup(t, open, storage.Options{})

		rec := f.create(ir.Record{"foo": "bar"})

		assert.NotEmpty(t, idOf(rec))
		assert.Positive(t, stampOf(rec))
		assert.Equal(t, "bar", rec["foo"])
		assert.NotContains(t, rec, "deleted")
	})

	t.Run("CreateUsesGenerator", func(t *testing.T) {
		f := setup(t, open, storage.Options{IDs: storage.NewFixedGenerator("first", "second")})

		assert.Equal(t, "first", idOf(f.create(ir.Record{})))
		assert.Equal(t, "second", idOf(f.create(ir.Record{})))
	})

	t.Run("CreateDoesNotMutateInput", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		in := ir.Record{"foo": "bar"}

		f.create(in)

		assert.Equal(t, ir.Record{"foo": "bar"}, in)
	})

	t.Run("GetReturnsCreatedRecord", func(t *testing.T) {
		f := setup(t, open, storage.Options{})

		created := f.create(ir.Record{"foo": "bar", "n": 1})

		assert.Equal(t, created, f.get(idOf(created)))
	})

	t.Run("ValuesAreNormalized", func(t *testing.T) {
		f := setup(t, open, storage.Options{})

		created := f.create(ir.Record{
			"n":      1,
			"nested": map[string]any{"k": []any{2, "a", nil, true}},
		})
		got := f.get(idOf(created))

		assert.Equal(t, float64(1), got["n"])
		assert.Equal(t, map[string]any{"k": []any{float64(2), "a", nil, true}}, got["nested"])
	})

	t.Run("ReturnedRecordsAreCopies", func(t *testing.T) {
		f := setup(t, open, storage.Options{})

		created := f.create(ir.Record{"foo": "bar"})
		created["foo"] = "changed"

		assert.Equal(t, "bar", f.get(idOf(created))["foo"])
	})

	t.Run("GetUnknownFails", func(t *testing.T) {
		f := setup(t, open, storage.Options{})

		_, err := f.store.Get(f.ctx, f.res, f.tenant, "1234")

		var nf *storage.RecordNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "1234", nf.ID)
	})

	t.Run("UpdateCreatesWhenMissing", func(t *testing.T) {
		f := setup(t, open, storage.Options{})

		f.update("1234", ir.Record{"foo": "bar"})

		got := f.get("1234")
		assert.Equal(t, "1234", idOf(got))
		assert.Equal(t, "bar", got["foo"])
	})

	t.Run("UpdateIgnoresPayloadIdentity", func(t *testing.T) {
		f := setup(t, open, storage.Options{})

		updated := f.update("1234", ir.Record{"id": "other", "foo": "bar"})

		assert.Equal(t, "1234", idOf(updated))
		_, err := f.store.Get(f.ctx, f.res, f.tenant, "other")
		assert.True(t, storage.IsNotFound(err))
	})

	t.Run("UpdateReplacesContent", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		created := f.create(ir.Record{"a": 1, "b": 2})

		updated := f.update(idOf(created), ir.Record{"a": 3})

		assert.Greater(t, stampOf(updated), stampOf(created))
		got := f.get(idOf(created))
		assert.Equal(t, float64(3), got["a"])
		assert.NotContains(t, got, "b")
	})

	t.Run("DeleteRemovesRecord", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		created := f.create(ir.Record{"foo": "bar"})

		f.delete(idOf(created))

		_, err := f.store.Get(f.ctx, f.res, f.tenant, idOf(created))
		assert.True(t, storage.IsNotFound(err))
	})

	t.Run("DeleteUnknownFails", func(t *testing.T) {
		f := setup(t, open, storage.Options{})

		_, err := f.store.Delete(f.ctx, f.res, f.tenant, "1234")

		assert.True(t, storage.IsNotFound(err))
	})

	t.Run("GetAllEmptyCollection", func(t *testing.T) {
		f := setup(t, open, storage.Options{})

		records, count := f.getAll(queryir.Query{})

		assert.Empty(t, records)
		assert.Zero(t, count)
	})

	t.Run("GetAllReturnsEverythingInStampOrder", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		var want []string
		for i := range 10 {
			want = append(want, idOf(f.create(ir.Record{"number": i})))
		}

		records, count := f.getAll(queryir.Query{})

		assert.Equal(t, 10, count)
		assert.Equal(t, want, idsOf(records))
	})

	t.Run("GetAllHonorsLimit", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		for i := range 10 {
			f.create(ir.Record{"number": i})
		}

		records, count := f.getAll(queryir.Query{Limit: 4})

		assert.Equal(t, 10, count)
		require.Len(t, records, 4)
		assert.Equal(t, float64(0), records[0]["number"])
		assert.Equal(t, float64(3), records[3]["number"])
	})

	t.Run("FilterNarrowsCount", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		for i := range 10 {
			f.create(ir.Record{"number": i})
		}

		records, count := f.getAll(queryir.Query{
			Filters: queryir.Filter{{Field: "number", Value: 6, Operator: queryir.GT}},
		})

		assert.Equal(t, 3, count)
		assert.Len(t, records, 3)
	})

	t.Run("PaginationDoesNotAffectCount", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		for i := range 10 {
			f.create(ir.Record{"number": i})
		}

		records, count := f.getAll(queryir.Query{
			Pagination: queryir.Rules{{{Field: "number", Value: 6, Operator: queryir.GT}}},
		})

		assert.Equal(t, 10, count)
		assert.Len(t, records, 3)
	})

	t.Run("PaginationGroupsAreAlternatives", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		for i := range 10 {
			f.create(ir.Record{"number": i})
		}

		records, count := f.getAll(queryir.Query{
			Pagination: queryir.Rules{
				{{Field: "number", Value: 7, Operator: queryir.GT}},
				{{Field: "number", Value: 0, Operator: queryir.EQ}},
			},
		})

		assert.Equal(t, 10, count)
		require.Len(t, records, 3)
		assert.Equal(t, float64(0), records[0]["number"])
	})

	t.Run("SortDescending", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		for _, n := range []int{3, 1, 2} {
			f.create(ir.Record{"number": n})
		}

		records, _ := f.getAll(queryir.Query{
			Sorting: []queryir.Sort{{Field: "number", Direction: queryir.Descending}},
		})

		require.Len(t, records, 3)
		assert.Equal(t, []any{float64(3), float64(2), float64(1)},
			[]any{records[0]["number"], records[1]["number"], records[2]["number"]})
	})

	t.Run("SortTiesBreakOnStamp", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		a := f.create(ir.Record{"status": "b"})
		b := f.create(ir.Record{"status": "a"})
		c := f.create(ir.Record{"status": "b"})
		d := f.create(ir.Record{"status": "a"})

		records, _ := f.getAll(queryir.Query{
			Sorting: []queryir.Sort{{Field: "status", Direction: queryir.Ascending}},
		})

		assert.Equal(t, []string{idOf(b), idOf(d), idOf(a), idOf(c)}, idsOf(records))
	})

	t.Run("MaxFetchSizeCapsResults", func(t *testing.T) {
		f := setup(t, open, storage.Options{MaxFetchSize: 3})
		for i := range 5 {
			f.create(ir.Record{"number": i})
		}

		records, count := f.getAll(queryir.Query{})
		assert.Equal(t, 5, count)
		assert.Len(t, records, 3)

		records, _ = f.getAll(queryir.Query{Limit: 10})
		assert.Len(t, records, 3)

		records, _ = f.getAll(queryir.Query{Limit: 2})
		assert.Len(t, records, 2)
	})

	t.Run("TenantsAreIsolated", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		created := f.create(ir.Record{"foo": "bar"})

		_, err := f.store.Get(f.ctx, f.res, "other", idOf(created))
		assert.True(t, storage.IsNotFound(err))

		records, count, err := f.store.GetAll(f.ctx, f.res, "other", queryir.Query{})
		require.NoError(t, err)
		assert.Empty(t, records)
		assert.Zero(t, count)

		_, err = f.store.Delete(f.ctx, f.res, "other", idOf(created))
		assert.True(t, storage.IsNotFound(err))
	})

	t.Run("ResourcesAreIsolated", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		created := f.create(ir.Record{"foo": "bar"})

		_, err := f.store.Get(f.ctx, ir.DefaultResource("other"), f.tenant, idOf(created))
		assert.True(t, storage.IsNotFound(err))
	})

	t.Run("InvalidQueryIsRejected", func(t *testing.T) {
		f := setup(t, open, storage.Options{})

		_, _, err := f.store.GetAll(f.ctx, f.res, f.tenant, queryir.Query{
			Filters: queryir.Filter{{Field: "x'; DROP TABLE records; --", Value: 1, Operator: queryir.EQ}},
		})

		var ve *queryir.ValidationError
		assert.ErrorAs(t, err, &ve)
	})

	t.Run("EmptyTenantIsRejected", func(t *testing.T) {
		f := setup(t, open, storage.Options{})

		_, err := f.store.Create(f.ctx, f.res, "", ir.Record{})
		assert.Error(t, err)
	})

	t.Run("CreateWithExplicitID", func(t *testing.T) {
		f := setup(t, open, storage.Options{})

		created := f.create(ir.Record{"id": "mine", "foo": "bar"})

		assert.Equal(t, "mine", idOf(created))
		assert.Equal(t, "bar", f.get("mine")["foo"])
	})

	t.Run("CreateWithLiveIDFails", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		existing := f.create(ir.Record{"id": "mine", "foo": "bar"})

		_, err := f.store.Create(f.ctx, f.res, f.tenant, ir.Record{"id": "mine"})

		var ue *storage.UnicityError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, "id", ue.Field)
		assert.Equal(t, existing, ue.Record)
	})

	t.Run("CreateRevivesTombstone", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		f.create(ir.Record{"id": "mine", "foo": "bar"})
		f.delete("mine")

		revived := f.create(ir.Record{"id": "mine", "foo": "baz"})

		assert.Equal(t, "baz", f.get("mine")["foo"])
		records, count := f.getAll(queryir.Query{IncludeDeleted: true})
		assert.Equal(t, 1, count)
		assert.Equal(t, []ir.Record{revived}, records)
	})

	t.Run("UpdateRevivesTombstone", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		f.create(ir.Record{"id": "mine"})
		f.delete("mine")

		f.update("mine", ir.Record{"foo": "baz"})

		records, count := f.getAll(queryir.Query{IncludeDeleted: true})
		assert.Equal(t, 1, count)
		require.Len(t, records, 1)
		assert.False(t, isTombstone(records[0]))
	})

	t.Run("FlushWipesEverything", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		created := f.create(ir.Record{"foo": "bar"})
		f.delete(idOf(f.create(ir.Record{})))

		require.NoError(t, f.store.Flush(f.ctx))

		_, err := f.store.Get(f.ctx, f.res, f.tenant, idOf(created))
		assert.True(t, storage.IsNotFound(err))
		records, count := f.getAll(queryir.Query{IncludeDeleted: true})
		assert.Empty(t, records)
		assert.Zero(t, count)
	})
}
