package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/recstore/internal/clock"
	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/queryir"
	"github.com/roach88/recstore/internal/storage"
)

const (
	backendName = "redis"

	// warnEvery is how many consecutive conflicts on one collection pass
	// between warnings.
	warnEvery = 100
)

// Store is the Redis storage backend.
//
// Thread-safety: safe for concurrent use, including from several processes
// sharing one Redis database.
type Store struct {
	client *redis.Client
	opts   storage.Options
}

var _ storage.Storage = (*Store)(nil)

// Open connects to the Redis server at rawURL (redis://host:port/db).
// The connection is lazy: an unreachable server surfaces on first use.
func Open(rawURL string, opts storage.Options) (*Store, error) {
	ropts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return New(redis.NewClient(ropts), opts), nil
}

// New wraps an existing client. The store takes ownership of it.
func New(client *redis.Client, opts storage.Options) *Store {
	return &Store{client: client, opts: opts.WithDefaults()}
}

// reader is the read side shared by *redis.Client and *redis.Tx.
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// envelope is the stored form of a live record.
type envelope struct {
	LastModified int64           `json:"last_modified"`
	Data         json.RawMessage `json:"data"`
}

func encodeRecord(content ir.Record, stamp int64) (string, error) {
	data, err := ir.MarshalRecord(content)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(envelope{LastModified: stamp, Data: data})
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	return string(payload), nil
}

func decodeRecord(r *ir.Resource, id, payload string) (ir.Record, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, fmt.Errorf("decode record %q: %w", id, err)
	}
	content, err := ir.UnmarshalRecord(env.Data)
	if err != nil {
		return nil, fmt.Errorf("decode record %q: %w", id, err)
	}
	return r.Live(content, id, env.LastModified), nil
}

// Flush wipes the whole Redis database.
func (s *Store) Flush(ctx context.Context) error {
	if err := s.client.FlushDB(ctx).Err(); err != nil {
		return classify(fmt.Errorf("flush: %w", err))
	}
	s.opts.Logger.Debug("flushed redis storage")
	return nil
}

// Ping writes a short-lived heartbeat key.
func (s *Store) Ping(ctx context.Context) bool {
	now := strconv.FormatInt(s.opts.Clock(), 10)
	if err := s.client.Set(ctx, heartbeatKey, now, time.Hour).Err(); err != nil {
		s.opts.Logger.Warn("redis ping failed", "error", err)
		return false
	}
	return true
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// CollectionTimestamp returns the last stamp of the collection, or the
// current time if it was never written.
func (s *Store) CollectionTimestamp(ctx context.Context, r *ir.Resource, tenant string) (int64, error) {
	if err := storage.CheckScope(r, tenant); err != nil {
		return 0, err
	}
	last, err := lastStamp(ctx, s.client, keysFor(r, tenant))
	if err != nil {
		return 0, classify(err)
	}
	if last == 0 {
		return s.opts.Clock(), nil
	}
	return last, nil
}

// Create stores a new record.
func (s *Store) Create(ctx context.Context, r *ir.Resource, tenant string, record ir.Record) (ir.Record, error) {
	content, id, explicit, err := storage.PrepareCreate(r, tenant, s.opts.IDs, record)
	if err != nil {
		return nil, err
	}

	k := keysFor(r, tenant)
	var out ir.Record
	err = s.transact(ctx, k, func(tx *redis.Tx) error {
		if explicit {
			existing, err := getRecord(ctx, tx, r, k, id)
			if err == nil {
				return storage.NewUnicityError(r.IDField, existing)
			}
			if !storage.IsNotFound(err) {
				return err
			}
		}
		if err := s.checkUnicity(ctx, tx, r, k, id, content); err != nil {
			return err
		}
		rec, err := s.put(ctx, tx, r, k, id, content)
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update replaces or creates record id.
func (s *Store) Update(ctx context.Context, r *ir.Resource, tenant, id string, record ir.Record) (ir.Record, error) {
	content, err := storage.PrepareUpdate(r, tenant, id, record)
	if err != nil {
		return nil, err
	}

	k := keysFor(r, tenant)
	var out ir.Record
	err = s.transact(ctx, k, func(tx *redis.Tx) error {
		if err := s.checkUnicity(ctx, tx, r, k, id, content); err != nil {
			return err
		}
		rec, err := s.put(ctx, tx, r, k, id, content)
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete replaces a live record with its tombstone.
func (s *Store) Delete(ctx context.Context, r *ir.Resource, tenant, id string) (ir.Record, error) {
	if err := storage.CheckScope(r, tenant); err != nil {
		return nil, err
	}

	k := keysFor(r, tenant)
	var out ir.Record
	err := s.transact(ctx, k, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, k.record(id)).Result()
		if err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		if n == 0 {
			return storage.NewNotFound(id)
		}
		stamp, err := s.nextStamp(ctx, tx, k)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k.record(id))
			pipe.SRem(ctx, k.records(), id)
			pipe.Set(ctx, k.tombstone(id), stamp, 0)
			pipe.SAdd(ctx, k.deleted(), id)
			pipe.Set(ctx, k.timestamp(), stamp, 0)
			return nil
		})
		if err != nil {
			return err
		}
		out = r.Tombstone(id, stamp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a live record.
func (s *Store) Get(ctx context.Context, r *ir.Resource, tenant, id string) (ir.Record, error) {
	if err := storage.CheckScope(r, tenant); err != nil {
		return nil, err
	}
	rec, err := getRecord(ctx, s.client, r, keysFor(r, tenant), id)
	if err != nil {
		return nil, classify(err)
	}
	return rec, nil
}

// GetAll loads the collection and evaluates q over it.
func (s *Store) GetAll(ctx context.Context, r *ir.Resource, tenant string, q queryir.Query) ([]ir.Record, int, error) {
	if err := storage.PrepareQuery(r, tenant, q); err != nil {
		return nil, 0, err
	}

	k := keysFor(r, tenant)
	var live, tombstones []ir.Record
	err := s.transact(ctx, k, func(tx *redis.Tx) error {
		var err error
		live, err = liveRecords(ctx, tx, r, k)
		if err != nil {
			return err
		}
		tombstones = nil
		if q.IncludeDeleted {
			tombstones, err = deletedRecords(ctx, tx, r, k)
			if err != nil {
				return err
			}
		}
		// Every write bumps the timestamp key, so an EXEC that succeeds
		// proves both reads saw the same collection state.
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Exists(ctx, k.timestamp())
			return nil
		})
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	records, total := queryir.Evaluate(r, live, tombstones, q, s.opts.MaxFetchSize)
	return records, total, nil
}

// transact runs fn under WATCH on the collection timestamp. When another
// writer commits first, fn is retried from scratch until it commits or ctx
// is done.
func (s *Store) transact(ctx context.Context, k collectionKeys, fn func(tx *redis.Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := s.client.Watch(ctx, fn, k.timestamp())
		if !errors.Is(err, redis.TxFailedErr) {
			return classify(err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt%warnEvery == 0 {
			s.opts.Logger.Warn("redis transaction still contended", "key", k.timestamp(), "attempts", attempt)
			continue
		}
		s.opts.Logger.Debug("redis transaction conflict, retrying", "key", k.timestamp(), "attempt", attempt)
	}
}

// put stamps and stores content under id, reviving a tombstone if needed.
func (s *Store) put(ctx context.Context, tx *redis.Tx, r *ir.Resource, k collectionKeys, id string, content ir.Record) (ir.Record, error) {
	stamp, err := s.nextStamp(ctx, tx, k)
	if err != nil {
		return nil, err
	}
	payload, err := encodeRecord(content, stamp)
	if err != nil {
		return nil, err
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, k.record(id), payload, 0)
		pipe.SAdd(ctx, k.records(), id)
		pipe.Del(ctx, k.tombstone(id))
		pipe.SRem(ctx, k.deleted(), id)
		pipe.Set(ctx, k.timestamp(), stamp, 0)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Live(content, id, stamp), nil
}

// nextStamp computes the stamp the pending write will install.
func (s *Store) nextStamp(ctx context.Context, tx *redis.Tx, k collectionKeys) (int64, error) {
	last, err := lastStamp(ctx, tx, k)
	if err != nil {
		return 0, err
	}
	return clock.Next(last, s.opts.Clock()), nil
}

// checkUnicity loads the live records only when content holds a unique
// value to check.
func (s *Store) checkUnicity(ctx context.Context, c reader, r *ir.Resource, k collectionKeys, id string, content ir.Record) error {
	if len(storage.UniqueConditions(r, content)) == 0 {
		return nil
	}
	live, err := liveRecords(ctx, c, r, k)
	if err != nil {
		return err
	}
	return storage.CheckUnicity(r, content, id, live)
}

// lastStamp returns the last issued stamp of a collection, 0 if none.
func lastStamp(ctx context.Context, c reader, k collectionKeys) (int64, error) {
	last, err := c.Get(ctx, k.timestamp()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read timestamp: %w", err)
	}
	return last, nil
}

func getRecord(ctx context.Context, c reader, r *ir.Resource, k collectionKeys, id string) (ir.Record, error) {
	payload, err := c.Get(ctx, k.record(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, storage.NewNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return decodeRecord(r, id, payload)
}

// fetch returns the ids of set and the values of the keys key(id) maps
// them to. Ids whose key vanished in between are dropped.
func fetch(ctx context.Context, c reader, set string, key func(string) string) ([]string, []string, error) {
	ids, err := c.SMembers(ctx, set).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("list %s: %w", set, err)
	}
	if len(ids) == 0 {
		return nil, nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	values, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", set, err)
	}

	var outIDs, outValues []string
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		outIDs = append(outIDs, ids[i])
		outValues = append(outValues, str)
	}
	return outIDs, outValues, nil
}

func liveRecords(ctx context.Context, c reader, r *ir.Resource, k collectionKeys) ([]ir.Record, error) {
	ids, payloads, err := fetch(ctx, c, k.records(), k.record)
	if err != nil {
		return nil, err
	}
	out := make([]ir.Record, 0, len(ids))
	for i, id := range ids {
		rec, err := decodeRecord(r, id, payloads[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func deletedRecords(ctx context.Context, c reader, r *ir.Resource, k collectionKeys) ([]ir.Record, error) {
	ids, stamps, err := fetch(ctx, c, k.deleted(), k.tombstone)
	if err != nil {
		return nil, err
	}
	out := make([]ir.Record, 0, len(ids))
	for i, id := range ids {
		stamp, err := strconv.ParseInt(stamps[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tombstone %q: %w", id, err)
		}
		out = append(out, r.Tombstone(id, stamp))
	}
	return out, nil
}

// classify wraps connectivity failures as BackendUnavailableError. Other
// errors pass through.
func classify(err error) error {
	if err == nil || storage.IsUnavailable(err) {
		return err
	}
	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, redis.ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return storage.Unavailable(backendName, err)
	}
	return err
}
