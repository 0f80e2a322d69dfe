package kv

import (
	"net/url"
	"strings"

	"github.com/roach88/recstore/internal/ir"
)

const (
	keyPrefix    = "recstore"
	heartbeatKey = keyPrefix + ":heartbeat"
)

// collectionKeys names the keys of one (resource, tenant) collection.
type collectionKeys struct {
	base string
}

func keysFor(r *ir.Resource, tenant string) collectionKeys {
	return collectionKeys{base: join(keyPrefix, escape(r.Name), escape(tenant))}
}

func (k collectionKeys) timestamp() string { return join(k.base, "timestamp") }
func (k collectionKeys) records() string   { return join(k.base, "records") }
func (k collectionKeys) deleted() string   { return join(k.base, "deleted") }

func (k collectionKeys) record(id string) string {
	return join(k.base, escape(id), "record")
}

func (k collectionKeys) tombstone(id string) string {
	return join(k.base, escape(id), "tombstone")
}

func escape(s string) string {
	return url.QueryEscape(s)
}

func join(parts ...string) string {
	return strings.Join(parts, ":")
}
