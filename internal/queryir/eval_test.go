package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recstore/internal/ir"
)

func live(id string, stamp int64, content ir.Record) ir.Record {
	return ir.DefaultResource("test").Live(content, id, stamp)
}

func tomb(id string, stamp int64) ir.Record {
	return ir.DefaultResource("test").Tombstone(id, stamp)
}

func ids(records []ir.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r["id"].(string)
	}
	return out
}

func TestCompare_Operators(t *testing.T) {
	testCases := []struct {
		name    string
		value   any
		present bool
		op      Operator
		operand any
		want    bool
	}{
		{"eq number", 2.0, true, EQ, 2, true},
		{"eq int vs float", int64(3), true, EQ, 3.0, true},
		{"eq across kinds", "2", true, EQ, 2, false},
		{"eq absent", nil, false, EQ, nil, false},
		{"eq null", nil, true, EQ, nil, true},
		{"not absent matches", nil, false, NOT, "x", true},
		{"not equal value", "x", true, NOT, "x", false},
		{"not other kind", 1.0, true, NOT, "1", true},
		{"gt numbers", 3.0, true, GT, 2, true},
		{"gt across kinds never matches", "abc", true, GT, 1, false},
		{"gt absent never matches", nil, false, GT, 1, false},
		{"min equal", 2.0, true, MIN, 2, true},
		{"lt strings bytewise", "B", true, LT, "a", true},
		{"max bools", false, true, MAX, true, true},
		{"gt null", nil, true, GT, nil, false},
		{"min null", nil, true, MIN, nil, true},
		{"in", "b", true, IN, []any{"a", "b"}, true},
		{"in miss", "c", true, IN, []any{"a", "b"}, false},
		{"in empty set", "c", true, IN, []any{}, false},
		{"in absent", nil, false, IN, []any{nil}, false},
		{"exclude", "c", true, EXCLUDE, []any{"a", "b"}, true},
		{"exclude hit", "a", true, EXCLUDE, []any{"a", "b"}, false},
		{"exclude absent", nil, false, EXCLUDE, []any{"a"}, true},
		{"eq object", map[string]any{"b": 1.0, "a": "x"}, true, EQ, map[string]any{"a": "x", "b": 1}, true},
		{"eq array order matters", []any{1.0, 2.0}, true, EQ, []any{2.0, 1.0}, false},
		{"after higher kind", "s", true, AFTER, 1.0, true},
		{"after same kind", 2.0, true, AFTER, 1, true},
		{"after equal", 1.0, true, AFTER, 1, false},
		{"after absent operand", nil, true, AFTER, Absent, true},
		{"after absent value", nil, false, AFTER, Absent, false},
		{"before lower kind", true, true, BEFORE, "a", true},
		{"before absent value", nil, false, BEFORE, nil, true},
		{"same absent", nil, false, SAME, Absent, true},
		{"same null is not absent", nil, true, SAME, Absent, false},
		{"same number", int64(4), true, SAME, 4.0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Compare(tc.value, tc.present, tc.op, tc.operand))
		})
	}
}

func TestView_ReservedFields(t *testing.T) {
	r := ir.DefaultResource("test")
	l := Row{Record: live("a", 10, ir.Record{"title": "x"})}
	d := Row{Record: tomb("b", 11), Deleted: true}

	v, ok := View(r, l, "deleted")
	assert.False(t, ok, "live rows have no marker")
	assert.Nil(t, v)

	v, ok = View(r, d, "deleted")
	assert.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = View(r, d, "title")
	assert.False(t, ok, "tombstones have no content")

	v, ok = View(r, d, "last_modified")
	assert.True(t, ok)
	assert.Equal(t, int64(11), v)
}

func TestEvaluate_CountIgnoresTombstonesAndPagination(t *testing.T) {
	r := ir.DefaultResource("test")
	var records []ir.Record
	for i := 0; i < 10; i++ {
		records = append(records, live(string(rune('a'+i)), int64(100+i), ir.Record{"number": float64(i % 3)}))
	}

	page, total := Evaluate(r, records, nil, Query{
		Pagination: Rules{{{Field: "number", Value: 1, Operator: GT}}},
	}, 0)
	assert.Len(t, page, 3)
	assert.Equal(t, 10, total)

	page, total = Evaluate(r, records, nil, Query{
		Filters: Filter{{Field: "number", Value: 1, Operator: GT}},
	}, 0)
	assert.Len(t, page, 3)
	assert.Equal(t, 3, total)
}

func TestEvaluate_TombstonesVisibleButNotCounted(t *testing.T) {
	r := ir.DefaultResource("test")
	lives := []ir.Record{live("a", 1, nil), live("b", 3, nil)}
	tombs := []ir.Record{tomb("c", 2), tomb("d", 4)}

	page, total := Evaluate(r, lives, tombs, Query{IncludeDeleted: true}, 0)
	assert.Equal(t, []string{"a", "c", "b", "d"}, ids(page), "default order is write order")
	assert.Equal(t, 2, total)

	page, total = Evaluate(r, lives, tombs, Query{}, 0)
	assert.Equal(t, []string{"a", "b"}, ids(page))
	assert.Equal(t, 2, total)
}

func TestEvaluate_FilterOnMarker(t *testing.T) {
	r := ir.DefaultResource("test")
	lives := []ir.Record{live("a", 1, nil)}
	tombs := []ir.Record{tomb("b", 2)}

	page, total := Evaluate(r, lives, tombs, Query{
		Filters:        Filter{{Field: "deleted", Value: true, Operator: EQ}},
		IncludeDeleted: true,
	}, 0)
	assert.Equal(t, []string{"b"}, ids(page))
	assert.Equal(t, 0, total)

	page, total = Evaluate(r, lives, tombs, Query{
		Filters:        Filter{{Field: "deleted", Value: true, Operator: NOT}},
		IncludeDeleted: true,
	}, 0)
	assert.Equal(t, []string{"a"}, ids(page))
	assert.Equal(t, 1, total)

	page, total = Evaluate(r, lives, tombs, Query{
		Filters:        Filter{{Field: "deleted", Value: false, Operator: EQ}},
		IncludeDeleted: true,
	}, 0)
	assert.Empty(t, page)
	assert.Equal(t, 0, total)
}

func TestEvaluate_SortingMixesTombstones(t *testing.T) {
	r := ir.DefaultResource("test")
	lives := []ir.Record{live("a", 1, ir.Record{"status": 0.0})}
	tombs := []ir.Record{tomb("b", 2), tomb("c", 3)}
	q := Query{IncludeDeleted: true}

	q.Sorting = []Sort{{Field: "status", Direction: Ascending}}
	page, _ := Evaluate(r, lives, tombs, q, 0)
	assert.Equal(t, []string{"b", "c", "a"}, ids(page), "absent sorts first")

	q.Sorting = []Sort{{Field: "status", Direction: Descending}}
	page, _ = Evaluate(r, lives, tombs, q, 0)
	assert.Equal(t, []string{"a", "b", "c"}, ids(page), "ties broken by modified ascending")

	q.Sorting = []Sort{{Field: "deleted", Direction: Ascending}}
	page, _ = Evaluate(r, lives, tombs, q, 0)
	assert.Equal(t, []string{"b", "c", "a"}, ids(page), "tombstones first")

	q.Sorting = []Sort{{Field: "last_modified", Direction: Descending}}
	page, _ = Evaluate(r, lives, tombs, q, 0)
	assert.Equal(t, []string{"c", "b", "a"}, ids(page))
}

func TestEvaluate_SortsAcrossKinds(t *testing.T) {
	r := ir.DefaultResource("test")
	lives := []ir.Record{
		live("str", 1, ir.Record{"v": "a"}),
		live("num", 2, ir.Record{"v": 5.0}),
		live("null", 3, ir.Record{"v": nil}),
		live("none", 4, nil),
		live("bool", 5, ir.Record{"v": true}),
		live("obj", 6, ir.Record{"v": map[string]any{}}),
		live("arr", 7, ir.Record{"v": []any{}}),
	}

	page, _ := Evaluate(r, lives, nil, Query{Sorting: []Sort{{Field: "v", Direction: Ascending}}}, 0)
	assert.Equal(t, []string{"none", "null", "bool", "num", "str", "arr", "obj"}, ids(page))
}

func TestEvaluate_LimitAndFetchCap(t *testing.T) {
	r := ir.DefaultResource("test")
	var records []ir.Record
	for i := 0; i < 10; i++ {
		records = append(records, live(string(rune('a'+i)), int64(i+1), nil))
	}

	page, total := Evaluate(r, records, nil, Query{Limit: 2}, 0)
	assert.Equal(t, []string{"a", "b"}, ids(page))
	assert.Equal(t, 10, total)

	page, _ = Evaluate(r, records, nil, Query{}, 4)
	assert.Len(t, page, 4)

	page, _ = Evaluate(r, records, nil, Query{Limit: 6}, 4)
	assert.Len(t, page, 4)
}

func TestEvaluate_ReturnsCopies(t *testing.T) {
	r := ir.DefaultResource("test")
	stored := live("a", 1, ir.Record{"nested": map[string]any{"k": "v"}})

	page, _ := Evaluate(r, []ir.Record{stored}, nil, Query{}, 0)
	require.Len(t, page, 1)
	page[0]["nested"].(map[string]any)["k"] = "changed"

	assert.Equal(t, "v", stored["nested"].(map[string]any)["k"])
}

func TestEffectiveLimit(t *testing.T) {
	assert.Equal(t, 0, EffectiveLimit(0, 0))
	assert.Equal(t, 5, EffectiveLimit(5, 0))
	assert.Equal(t, 10000, EffectiveLimit(0, 10000))
	assert.Equal(t, 3, EffectiveLimit(3, 10000))
	assert.Equal(t, 2, EffectiveLimit(3, 2))
}
