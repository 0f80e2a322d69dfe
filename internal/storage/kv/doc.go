// Package kv provides the key-value storage backend on Redis.
//
// Key layout, per (resource, tenant) collection:
//
//	recstore:<resource>:<tenant>:timestamp      last issued stamp
//	recstore:<resource>:<tenant>:records        set of live ids
//	recstore:<resource>:<tenant>:deleted        set of tombstoned ids
//	recstore:<resource>:<tenant>:<id>:record    {"last_modified":..., "data":{...}}
//	recstore:<resource>:<tenant>:<id>:tombstone deletion stamp
//
// Key components are query-escaped, so ids and tenants may hold ':'.
//
// Every write runs under WATCH on the collection timestamp key and
// commits with MULTI/EXEC. Every write also sets that key, so two writers
// to one collection cannot both commit from the same snapshot; the loser
// retries from a fresh read, for as long as its context allows. Queries
// read the live and tombstone sets under the same WATCH and close with an
// EXEC, so a write landing between the reads forces a re-read; the
// consistent snapshot then runs through the reference evaluator.
package kv
