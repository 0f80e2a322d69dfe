// Package memory is the reference storage backend: every collection lives
// in process memory and queries run through queryir.Evaluate directly.
//
// Its observable behavior defines the contract the other backends are
// tested against. Data is lost on restart.
package memory

import (
	"context"
	"sync"

	"github.com/roach88/recstore/internal/clock"
	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/queryir"
	"github.com/roach88/recstore/internal/storage"
)

// collection holds the live records and tombstones of one
// (resource, tenant) pair, keyed by id.
type collection struct {
	records    map[string]ir.Record
	tombstones map[string]ir.Record
}

// Store keeps everything in memory.
//
// Thread-safety: safe for concurrent use. Writes hold the store lock across
// the unicity check, stamping and persistence so that a check cannot be
// invalidated before the write lands.
type Store struct {
	opts  storage.Options
	clock *clock.Keyed

	mu          sync.RWMutex
	collections map[clock.Key]*collection
}

var _ storage.Storage = (*Store)(nil)

// New creates an empty in-memory store.
func New(opts storage.Options) *Store {
	opts = opts.WithDefaults()
	return &Store{
		opts:        opts,
		clock:       clock.NewKeyed(opts.Clock),
		collections: make(map[clock.Key]*collection),
	}
}

func key(r *ir.Resource, tenant string) clock.Key {
	return clock.Key{Tenant: tenant, Resource: r.Name}
}

// get returns the collection for k, creating it if create is set.
// Caller must hold s.mu (write lock when create is set).
func (s *Store) get(k clock.Key, create bool) *collection {
	c, ok := s.collections[k]
	if !ok && create {
		c = &collection{
			records:    make(map[string]ir.Record),
			tombstones: make(map[string]ir.Record),
		}
		s.collections[k] = c
	}
	return c
}

func (c *collection) live() []ir.Record {
	if c == nil {
		return nil
	}
	out := make([]ir.Record, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, rec)
	}
	return out
}

func (c *collection) deleted() []ir.Record {
	if c == nil {
		return nil
	}
	out := make([]ir.Record, 0, len(c.tombstones))
	for _, rec := range c.tombstones {
		out = append(out, rec)
	}
	return out
}

// Flush drops every collection and every stamp.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[clock.Key]*collection)
	s.clock.Reset()
	s.opts.Logger.Debug("flushed memory storage")
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) bool {
	return true
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// CollectionTimestamp returns the last stamp of the collection.
func (s *Store) CollectionTimestamp(ctx context.Context, r *ir.Resource, tenant string) (int64, error) {
	if err := storage.CheckScope(r, tenant); err != nil {
		return 0, err
	}
	return s.clock.Current(key(r, tenant)), nil
}

// Create stores a new record.
func (s *Store) Create(ctx context.Context, r *ir.Resource, tenant string, record ir.Record) (ir.Record, error) {
	content, id, explicit, err := storage.PrepareCreate(r, tenant, s.opts.IDs, record)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(r, tenant)
	c := s.get(k, true)
	if existing, ok := c.records[id]; ok && explicit {
		return nil, storage.NewUnicityError(r.IDField, existing.Clone())
	}
	if err := storage.CheckUnicity(r, content, id, c.live()); err != nil {
		return nil, err
	}
	return s.put(r, k, c, id, content), nil
}

// put stamps and stores content under id, reviving a tombstone if needed.
// Caller must hold the write lock.
func (s *Store) put(r *ir.Resource, k clock.Key, c *collection, id string, content ir.Record) ir.Record {
	stored := r.Live(content, id, s.clock.Next(k))
	c.records[id] = stored
	delete(c.tombstones, id)
	return stored.Clone()
}

// Get returns a live record.
func (s *Store) Get(ctx context.Context, r *ir.Resource, tenant, id string) (ir.Record, error) {
	if err := storage.CheckScope(r, tenant); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.get(key(r, tenant), false)
	if c == nil {
		return nil, storage.NewNotFound(id)
	}
	rec, ok := c.records[id]
	if !ok {
		return nil, storage.NewNotFound(id)
	}
	return rec.Clone(), nil
}

// Update replaces or creates record id.
func (s *Store) Update(ctx context.Context, r *ir.Resource, tenant, id string, record ir.Record) (ir.Record, error) {
	content, err := storage.PrepareUpdate(r, tenant, id, record)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(r, tenant)
	c := s.get(k, true)
	if err := storage.CheckUnicity(r, content, id, c.live()); err != nil {
		return nil, err
	}
	return s.put(r, k, c, id, content), nil
}

// Delete replaces a live record with its tombstone.
func (s *Store) Delete(ctx context.Context, r *ir.Resource, tenant, id string) (ir.Record, error) {
	if err := storage.CheckScope(r, tenant); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(r, tenant)
	c := s.get(k, false)
	if c == nil {
		return nil, storage.NewNotFound(id)
	}
	if _, ok := c.records[id]; !ok {
		return nil, storage.NewNotFound(id)
	}

	tombstone := r.Tombstone(id, s.clock.Next(k))
	delete(c.records, id)
	c.tombstones[id] = tombstone
	return tombstone.Clone(), nil
}

// GetAll evaluates q over the collection.
func (s *Store) GetAll(ctx context.Context, r *ir.Resource, tenant string, q queryir.Query) ([]ir.Record, int, error) {
	if err := storage.PrepareQuery(r, tenant, q); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.get(key(r, tenant), false)
	var tombstones []ir.Record
	if q.IncludeDeleted {
		tombstones = c.deleted()
	}
	records, total := queryir.Evaluate(r, c.live(), tombstones, q, s.opts.MaxFetchSize)
	return records, total, nil
}
