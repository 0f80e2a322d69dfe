package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is an open mapping from field name to a JSON-compatible value.
//
// Records handed to the store are normalized (see Normalize) so that every
// backend observes and returns the same Go types: float64 for numbers,
// map[string]any for objects, []any for arrays.
type Record map[string]any

// Clone returns a deep copy of the record. Nested objects and arrays are
// copied; scalars are shared.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, e := range val {
			m[k] = cloneValue(e)
		}
		return m
	case Record:
		return map[string]any(val.Clone())
	case []any:
		s := make([]any, len(val))
		for i, e := range val {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return val
	}
}

// Normalize converts a caller-supplied record into its canonical Go shape
// by round-tripping it through JSON. The input is never mutated.
//
// Fails if the record holds values JSON cannot represent (channels, NaN...).
func Normalize(r Record) (Record, error) {
	if r == nil {
		return Record{}, nil
	}
	data, err := MarshalRecord(r)
	if err != nil {
		return nil, err
	}
	return UnmarshalRecord(data)
}

// MarshalRecord encodes a record as canonical JSON: object keys sorted,
// no HTML escaping, no trailing newline.
//
// This is the storage encoding for the key-value and relational backends,
// and the text against which structured values are ordered.
func MarshalRecord(r Record) ([]byte, error) {
	data, err := encodeCanonical(map[string]any(r))
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return data, nil
}

// UnmarshalRecord decodes canonical JSON produced by MarshalRecord.
// An empty payload decodes to an empty record.
func UnmarshalRecord(data []byte) (Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Record{}, nil
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	if r == nil {
		r = Record{}
	}
	return r, nil
}

// encodeCanonical encodes any JSON-compatible value with HTML escaping
// disabled. encoding/json already sorts map keys.
func encodeCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encoder adds a trailing newline
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
