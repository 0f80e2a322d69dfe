// Package storage defines the record store contract shared by every backend,
// the error taxonomy callers branch on, and the pieces of write-path logic
// that must behave identically across backends (unicity checks, id
// generation, reserved-field handling).
//
// # Contract
//
// Every operation is scoped to one resource descriptor and one tenant id;
// no key or query ever spans tenants. Writes are stamped by a per-collection
// version clock (see internal/clock), run the unicity check before anything
// is persisted, and never mutate the caller's record.
//
// Deleting a record replaces it with a tombstone carrying only the identity,
// the deletion stamp and the tombstone marker. Tombstones are kept forever
// so that clients can synchronize from a version watermark.
//
// # Identity Reuse
//
// Creating or updating a record whose id is currently a tombstone revives the
// id: the tombstone is removed in the same atomic write. Creating with an
// explicit id that belongs to a live record fails with a UnicityError on the
// identity field.
//
// # Errors
//
//   - *RecordNotFoundError: target absent or already a tombstone
//   - *UnicityError: a unique field (or the id) would collide
//   - *BackendUnavailableError: transient connectivity failure
//
// Any other backend error is returned wrapped, never swallowed.
package storage
