package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_CloneIsDeep(t *testing.T) {
	orig := Record{
		"tags": []any{"a", map[string]any{"k": "v"}},
		"meta": map[string]any{"n": float64(1)},
	}

	clone := orig.Clone()
	clone["tags"].([]any)[0] = "changed"
	clone["tags"].([]any)[1].(map[string]any)["k"] = "changed"
	clone["meta"].(map[string]any)["n"] = float64(2)

	assert.Equal(t, "a", orig["tags"].([]any)[0])
	assert.Equal(t, "v", orig["tags"].([]any)[1].(map[string]any)["k"])
	assert.Equal(t, float64(1), orig["meta"].(map[string]any)["n"])
	assert.Nil(t, Record(nil).Clone())
}

func TestNormalize(t *testing.T) {
	in := Record{
		"int":    7,
		"int64":  int64(1700000000000),
		"nested": Record{"x": []string{"a", "b"}},
		"null":   nil,
	}

	out, err := Normalize(in)
	require.NoError(t, err)

	assert.Equal(t, Record{
		"int":    float64(7),
		"int64":  float64(1700000000000),
		"nested": map[string]any{"x": []any{"a", "b"}},
		"null":   nil,
	}, out)
	assert.Equal(t, 7, in["int"], "input untouched")
}

func TestNormalize_Nil(t *testing.T) {
	out, err := Normalize(nil)
	require.NoError(t, err)
	assert.Equal(t, Record{}, out)
}

func TestNormalize_Unrepresentable(t *testing.T) {
	_, err := Normalize(Record{"c": make(chan int)})
	assert.Error(t, err)

	_, err = Normalize(Record{"nan": math.NaN()})
	assert.Error(t, err)
}

func TestMarshalRecord_Canonical(t *testing.T) {
	data, err := MarshalRecord(Record{"b": 1, "a": "<&>", "c": map[string]any{"z": true, "y": nil}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<&>","b":1,"c":{"y":null,"z":true}}`, string(data))
}

func TestUnmarshalRecord(t *testing.T) {
	rec, err := UnmarshalRecord([]byte(`{"a":[1,"x"],"b":{"c":null}}`))
	require.NoError(t, err)
	assert.Equal(t, Record{"a": []any{float64(1), "x"}, "b": map[string]any{"c": nil}}, rec)

	for _, empty := range []string{"", "  ", "null"} {
		rec, err := UnmarshalRecord([]byte(empty))
		require.NoError(t, err)
		assert.Equal(t, Record{}, rec, "%q", empty)
	}

	_, err = UnmarshalRecord([]byte(`[1]`))
	assert.Error(t, err)
}
