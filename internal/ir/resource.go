package ir

import (
	"fmt"
	"regexp"
)

// fieldPattern is the allow-list for field names reaching a backend.
var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// ValidFieldName reports whether name can address a field on every
// backend. Queries and descriptors share this allow-list.
func ValidFieldName(name string) bool {
	return fieldPattern.MatchString(name)
}

// Resource describes a named record collection: which fields the store owns
// and which content fields must be unique per tenant.
//
// A Resource is supplied by the caller on every call and treated as
// read-only configuration.
type Resource struct {
	// Name identifies the collection type (e.g. "article").
	Name string

	// IDField holds the record identity (string, generated if absent).
	IDField string

	// ModifiedField holds the millisecond version stamp.
	ModifiedField string

	// DeletedField and DeletedValue form the tombstone marker.
	DeletedField string
	DeletedValue any

	// UniqueFields lists content fields whose non-null values must not
	// collide between live records of one tenant.
	UniqueFields []string
}

// DefaultResource returns a descriptor using the conventional field names:
// "id", "last_modified" and the marker deleted=true.
func DefaultResource(name string) *Resource {
	return &Resource{
		Name:          name,
		IDField:       "id",
		ModifiedField: "last_modified",
		DeletedField:  "deleted",
		DeletedValue:  true,
	}
}

// Validate reports descriptor inconsistencies: empty names, field names
// outside the allow-list, reserved fields that collide with each other, or
// a unique field that is reserved.
func (r *Resource) Validate() error {
	if r == nil {
		return fmt.Errorf("resource: nil descriptor")
	}
	if r.Name == "" {
		return fmt.Errorf("resource: empty name")
	}
	reserved := map[string]string{}
	for _, f := range []struct{ role, name string }{
		{"id field", r.IDField},
		{"modified field", r.ModifiedField},
		{"deleted field", r.DeletedField},
	} {
		if f.name == "" {
			return fmt.Errorf("resource %q: empty %s", r.Name, f.role)
		}
		if !ValidFieldName(f.name) {
			return fmt.Errorf("resource %q: invalid %s name %q", r.Name, f.role, f.name)
		}
		if other, ok := reserved[f.name]; ok {
			return fmt.Errorf("resource %q: %s and %s share name %q", r.Name, other, f.role, f.name)
		}
		reserved[f.name] = f.role
	}
	if r.DeletedValue == nil {
		return fmt.Errorf("resource %q: deleted marker value must not be null", r.Name)
	}
	for _, u := range r.UniqueFields {
		if !ValidFieldName(u) {
			return fmt.Errorf("resource %q: invalid unique field name %q", r.Name, u)
		}
		if role, ok := reserved[u]; ok {
			return fmt.Errorf("resource %q: unique field %q is the %s", r.Name, u, role)
		}
	}
	return nil
}

// IsReserved reports whether field is one of the store-owned fields.
func (r *Resource) IsReserved(field string) bool {
	return field == r.IDField || field == r.ModifiedField || field == r.DeletedField
}

// Content returns a copy of rec with every reserved field removed.
func (r *Resource) Content(rec Record) Record {
	out := rec.Clone()
	if out == nil {
		out = Record{}
	}
	delete(out, r.IDField)
	delete(out, r.ModifiedField)
	delete(out, r.DeletedField)
	return out
}

// Live overlays the reserved fields of a live record on a copy of content.
func (r *Resource) Live(content Record, id string, stamp int64) Record {
	out := r.Content(content)
	out[r.IDField] = id
	out[r.ModifiedField] = stamp
	return out
}

// Tombstone builds the residual footprint of a deleted record: identity,
// deletion stamp and the marker. Nothing else survives.
func (r *Resource) Tombstone(id string, stamp int64) Record {
	return Record{
		r.IDField:       id,
		r.ModifiedField: stamp,
		r.DeletedField:  normalizeValue(r.DeletedValue),
	}
}

// normalizeValue gives a single value the shape it has after a JSON round
// trip, so tombstones look the same whichever backend produced them.
func normalizeValue(v any) any {
	n, err := Normalize(Record{"v": v})
	if err != nil {
		return v
	}
	return n["v"]
}
