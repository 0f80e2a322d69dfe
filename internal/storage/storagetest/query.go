package storagetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/queryir"
	"github.com/roach88/recstore/internal/storage"
)

func runQuery(t *testing.T, open Factory) {
	t.Run("Operators", func(t *testing.T) { runOperators(t, open) })

	t.Run("SortAcrossKinds", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		values := []struct {
			name string
			rec  ir.Record
		}{
			{"absent", ir.Record{}},
			{"null", ir.Record{"v": nil}},
			{"false", ir.Record{"v": false}},
			{"true", ir.Record{"v": true}},
			{"number", ir.Record{"v": -3.5}},
			{"bignumber", ir.Record{"v": 12}},
			{"string", ir.Record{"v": "abc"}},
			{"array", ir.Record{"v": []any{1}}},
			{"object", ir.Record{"v": map[string]any{"a": 1}}},
		}
		// Created in reverse so the stamp tie-breaker cannot produce the
		// expected order by accident.
		byID := map[string]string{}
		for i := len(values) - 1; i >= 0; i-- {
			byID[idOf(f.create(values[i].rec))] = values[i].name
		}

		records, _ := f.getAll(queryir.Query{
			Sorting: []queryir.Sort{{Field: "v", Direction: queryir.Ascending}},
		})

		var got []string
		for _, rec := range records {
			got = append(got, byID[idOf(rec)])
		}
		assert.Equal(t, []string{"absent", "null", "false", "true", "number", "bignumber", "string", "array", "object"}, got)
	})

	t.Run("MultipleSortKeys", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		a := f.create(ir.Record{"group": 1, "title": "b"})
		b := f.create(ir.Record{"group": 2, "title": "a"})
		c := f.create(ir.Record{"group": 1, "title": "a"})
		d := f.create(ir.Record{"group": 2, "title": "b"})

		records, _ := f.getAll(queryir.Query{
			Sorting: []queryir.Sort{
				{Field: "group", Direction: queryir.Descending},
				{Field: "title", Direction: queryir.Ascending},
			},
		})

		assert.Equal(t, []string{idOf(b), idOf(d), idOf(c), idOf(a)}, idsOf(records))
	})

	t.Run("KeysetWalkVisitsEveryRecordOnce", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		for i := range 7 {
			f.create(ir.Record{"group": i % 3, "title": string(rune('a' + i))})
		}
		sorting := []queryir.Sort{
			{Field: "group", Direction: queryir.Ascending},
			{Field: "title", Direction: queryir.Descending},
		}
		all, count := f.getAll(queryir.Query{Sorting: sorting})
		require.Len(t, all, 7)

		var walked []string
		q := queryir.Query{Sorting: sorting, Limit: 2}
		for {
			page, pageCount := f.getAll(q)
			assert.Equal(t, count, pageCount)
			if len(page) == 0 {
				break
			}
			walked = append(walked, idsOf(page)...)
			rules, err := queryir.KeysetRules(f.res, sorting, page[len(page)-1])
			require.NoError(t, err)
			q.Pagination = rules
		}

		assert.Equal(t, idsOf(all), walked)
	})

	t.Run("KeysetWalkAcrossKinds", func(t *testing.T) {
		f := setup(t, open, storage.Options{IDs: storage.NewFixedGenerator("a", "b", "c", "d", "e", "f", "g", "h")})
		f.create(ir.Record{"v": "s"})
		f.create(ir.Record{})
		f.create(ir.Record{"v": 3})
		f.create(ir.Record{"v": nil})
		f.create(ir.Record{"v": []any{1}})
		f.create(ir.Record{})
		f.create(ir.Record{"v": true})
		f.delete(idOf(f.create(ir.Record{"v": 1})))

		for _, dir := range []queryir.Direction{queryir.Ascending, queryir.Descending} {
			sorting := []queryir.Sort{{Field: "v", Direction: dir}}
			all, _ := f.getAll(queryir.Query{Sorting: sorting, IncludeDeleted: true})
			require.Len(t, all, 8)

			var walked []string
			q := queryir.Query{Sorting: sorting, Limit: 1, IncludeDeleted: true}
			for range len(all) + 1 {
				page, _ := f.getAll(q)
				if len(page) == 0 {
					break
				}
				walked = append(walked, idsOf(page)...)
				rules, err := queryir.KeysetRules(f.res, sorting, page[0])
				require.NoError(t, err)
				q.Pagination = rules
			}

			assert.Equal(t, idsOf(all), walked, "direction %d", dir)
		}
	})

	t.Run("ReservedFieldsAreQueryable", func(t *testing.T) {
		f := setup(t, open, storage.Options{IDs: storage.NewFixedGenerator("a", "b", "c")})
		a := f.create(ir.Record{})
		f.create(ir.Record{})
		f.create(ir.Record{})

		records, _ := f.getAll(queryir.Query{
			Filters: queryir.Filter{{Field: "id", Value: []any{"a", "c"}, Operator: queryir.IN}},
		})
		assert.Equal(t, []string{"a", "c"}, idsOf(records))

		records, _ = f.getAll(queryir.Query{
			Filters: queryir.Filter{{Field: "last_modified", Value: stampOf(a), Operator: queryir.MAX}},
		})
		assert.Equal(t, []string{"a"}, idsOf(records))

		records, _ = f.getAll(queryir.Query{
			Sorting: []queryir.Sort{{Field: "id", Direction: queryir.Descending}},
		})
		assert.Equal(t, []string{"c", "b", "a"}, idsOf(records))
	})
}

// runOperators checks each operator over a fixed set of records holding
// values of every kind.
func runOperators(t *testing.T, open Factory) {
	f := setup(t, open, storage.Options{IDs: storage.NewFixedGenerator("a", "b", "c", "d")})
	f.create(ir.Record{
		"title": "alpha",
		"n":     1,
		"flag":  true,
		"tags":  []any{"x", "y"},
		"meta":  map[string]any{"k": 1},
		"maybe": nil,
	})
	f.create(ir.Record{
		"title": "beta",
		"n":     2.5,
		"flag":  false,
		"tags":  []any{"z"},
		"meta":  map[string]any{"k": 2},
	})
	f.create(ir.Record{"title": "gamma", "n": 10, "flag": true})
	f.create(ir.Record{"title": "10", "n": "10"})

	cond := func(field string, op queryir.Operator, v any) queryir.Condition {
		return queryir.Condition{Field: field, Value: v, Operator: op}
	}

	tests := []struct {
		name string
		cond queryir.Condition
		want []string
	}{
		{"number gt", cond("n", queryir.GT, 2), []string{"b", "c"}},
		{"number min", cond("n", queryir.MIN, 2.5), []string{"b", "c"}},
		{"number lt", cond("n", queryir.LT, 2.5), []string{"a"}},
		{"number max", cond("n", queryir.MAX, 2.5), []string{"a", "b"}},
		{"number eq", cond("n", queryir.EQ, 10), []string{"c"}},
		{"string eq number text", cond("n", queryir.EQ, "10"), []string{"d"}},
		{"string lt", cond("title", queryir.LT, "beta"), []string{"a", "d"}},
		{"string gt", cond("title", queryir.GT, "beta"), []string{"c"}},
		{"bool eq", cond("flag", queryir.EQ, true), []string{"a", "c"}},
		{"bool is not number", cond("flag", queryir.EQ, 1), nil},
		{"bool not", cond("flag", queryir.NOT, true), []string{"b", "d"}},
		{"bool gt", cond("flag", queryir.GT, false), []string{"a", "c"}},
		{"null eq", cond("maybe", queryir.EQ, nil), []string{"a"}},
		{"null not", cond("maybe", queryir.NOT, nil), []string{"b", "c", "d"}},
		{"null gt", cond("n", queryir.GT, nil), nil},
		{"array eq", cond("tags", queryir.EQ, []any{"x", "y"}), []string{"a"}},
		{"object eq", cond("meta", queryir.EQ, map[string]any{"k": 1}), []string{"a"}},
		{"in", cond("title", queryir.IN, []any{"alpha", "gamma", "zeta"}), []string{"a", "c"}},
		{"in mixed kinds", cond("n", queryir.IN, []any{1, "10"}), []string{"a", "d"}},
		{"in empty", cond("title", queryir.IN, []any{}), nil},
		{"exclude", cond("title", queryir.EXCLUDE, []any{"alpha"}), []string{"b", "c", "d"}},
		{"exclude empty", cond("title", queryir.EXCLUDE, []any{}), []string{"a", "b", "c", "d"}},
		{"exclude matches absent", cond("flag", queryir.EXCLUDE, []any{true}), []string{"b", "d"}},
		{"unknown field eq", cond("nope", queryir.EQ, "x"), nil},
		{"unknown field not", cond("nope", queryir.NOT, "x"), []string{"a", "b", "c", "d"}},
		{"id eq", cond("id", queryir.EQ, "b"), []string{"b"}},
		{"id lt", cond("id", queryir.LT, "c"), []string{"a", "b"}},
		{"after number crosses kinds", cond("n", queryir.AFTER, 2.5), []string{"c", "d"}},
		{"before string crosses kinds", cond("n", queryir.BEFORE, "10"), []string{"a", "b", "c"}},
		{"after absent", cond("maybe", queryir.AFTER, queryir.Absent), []string{"a"}},
		{"same absent", cond("maybe", queryir.SAME, queryir.Absent), []string{"b", "c", "d"}},
		{"same null", cond("maybe", queryir.SAME, nil), []string{"a"}},
		{"before null", cond("maybe", queryir.BEFORE, nil), []string{"b", "c", "d"}},
		{"same array", cond("tags", queryir.SAME, []any{"z"}), []string{"b"}},
		{"after array", cond("tags", queryir.AFTER, []any{"x", "y"}), []string{"b"}},
		{"id after", cond("id", queryir.AFTER, "b"), []string{"c", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, count, err := f.store.GetAll(f.ctx, f.res, f.tenant, queryir.Query{Filters: queryir.Filter{tt.cond}})
			require.NoError(t, err)

			assert.Equal(t, len(tt.want), count)
			if tt.want == nil {
				assert.Empty(t, records)
				return
			}
			assert.Equal(t, tt.want, idsOf(records))
		})
	}
}
