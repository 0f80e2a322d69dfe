// Package sqlite provides the relational storage backend on SQLite.
//
// # Tables
//
//   - records: live records, content as canonical JSON in "data"
//   - tombstones: (id, last_modified) of deleted records
//   - timestamps: last issued stamp per (tenant, resource)
//
// All three are keyed by (tenant_id, resource_name); records and
// tombstones add id.
//
// # Consistency
//
// Writes run in BEGIN IMMEDIATE transactions: the write lock is taken up
// front, so the unicity check, the stamp and the row land atomically even
// across processes sharing the file. Reads are single statements.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - encoding: must be UTF-8, checked by EnsureSchema
package sqlite
