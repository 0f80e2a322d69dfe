package kv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/queryir"
	"github.com/roach88/recstore/internal/storage"
	"github.com/roach88/recstore/internal/storage/storagetest"
)

// createTestStore starts an in-process Redis and opens a store on it.
func createTestStore(t *testing.T, opts storage.Options) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := Open("redis://"+mr.Addr()+"/0", opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, opts storage.Options) storage.Storage {
		s, _ := createTestStore(t, opts)
		return s
	})
}

func TestOpen_InvalidURL(t *testing.T) {
	_, err := Open("http://nope", storage.Options{})
	assert.Error(t, err)
}

func TestKeyLayout(t *testing.T) {
	ctx := context.Background()
	s, mr := createTestStore(t, storage.Options{IDs: storage.NewFixedGenerator("a:b")})
	r := ir.DefaultResource("article")

	_, err := s.Create(ctx, r, "team:1", ir.Record{"title": "x"})
	require.NoError(t, err)

	assert.True(t, mr.Exists("recstore:article:team%3A1:a%3Ab:record"))
	members, err := mr.SMembers("recstore:article:team%3A1:records")
	require.NoError(t, err)
	assert.Equal(t, []string{"a:b"}, members)

	_, err = s.Delete(ctx, r, "team:1", "a:b")
	require.NoError(t, err)

	assert.False(t, mr.Exists("recstore:article:team%3A1:a%3Ab:record"))
	assert.True(t, mr.Exists("recstore:article:team%3A1:a%3Ab:tombstone"))
	assert.True(t, mr.Exists("recstore:article:team%3A1:timestamp"))
}

func TestPing_WritesHeartbeat(t *testing.T) {
	s, mr := createTestStore(t, storage.Options{Clock: func() int64 { return 1234 }})

	require.True(t, s.Ping(context.Background()))

	got, err := mr.Get(heartbeatKey)
	require.NoError(t, err)
	assert.Equal(t, "1234", got)
	assert.Positive(t, mr.TTL(heartbeatKey))
}

func TestUnavailableServer(t *testing.T) {
	ctx := context.Background()
	s, mr := createTestStore(t, storage.Options{})
	r := ir.DefaultResource("article")
	mr.Close()

	assert.False(t, s.Ping(ctx))

	_, err := s.Get(ctx, r, "alice", "1")
	assert.True(t, storage.IsUnavailable(err))

	_, err = s.Create(ctx, r, "alice", ir.Record{})
	assert.True(t, storage.IsUnavailable(err))

	_, _, err = s.GetAll(ctx, r, "alice", queryir.Query{})
	assert.True(t, storage.IsUnavailable(err))
}

func TestVanishedRecordIsSkipped(t *testing.T) {
	ctx := context.Background()
	s, mr := createTestStore(t, storage.Options{IDs: storage.NewFixedGenerator("a", "b")})
	r := ir.DefaultResource("article")
	_, err := s.Create(ctx, r, "alice", ir.Record{})
	require.NoError(t, err)
	_, err = s.Create(ctx, r, "alice", ir.Record{})
	require.NoError(t, err)

	// Simulates a concurrent writer between SMEMBERS and MGET.
	mr.Del("recstore:article:alice:a:record")

	records, count, err := s.GetAll(ctx, r, "alice", queryir.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0]["id"])
}

func TestTransactRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t, storage.Options{})
	k := keysFor(ir.DefaultResource("article"), "alice")
	other := redis.NewClient(&redis.Options{Addr: s.client.Options().Addr})
	defer other.Close()

	calls := 0
	err := s.transact(ctx, k, func(tx *redis.Tx) error {
		calls++
		if calls == 1 {
			// Another writer bumps the watched key mid-transaction.
			require.NoError(t, other.Set(ctx, k.timestamp(), 99, 0).Err())
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k.timestamp(), 100, 0)
			return nil
		})
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

// interleave runs fn once, right before the first SMEMBERS of set.
type interleave struct {
	set  string
	once sync.Once
	fn   func()
}

func (h *interleave) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *interleave) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (h *interleave) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		args := cmd.Args()
		if cmd.Name() == "smembers" && len(args) == 2 && args[1] == h.set {
			h.once.Do(h.fn)
		}
		return next(ctx, cmd)
	}
}

func TestGetAll_ReadsOneSnapshot(t *testing.T) {
	r := ir.DefaultResource("article")

	tests := []struct {
		name    string
		prepare func(t *testing.T, s *Store)
		write   func(t *testing.T, other *Store)
		want    []string
		total   int
		deleted map[string]bool
	}{
		{
			name: "delete between reads",
			write: func(t *testing.T, other *Store) {
				_, err := other.Delete(context.Background(), r, "alice", "a")
				require.NoError(t, err)
			},
			want:    []string{"b", "a"},
			total:   1,
			deleted: map[string]bool{"a": true},
		},
		{
			name: "revive between reads",
			prepare: func(t *testing.T, s *Store) {
				_, err := s.Delete(context.Background(), r, "alice", "a")
				require.NoError(t, err)
			},
			write: func(t *testing.T, other *Store) {
				_, err := other.Update(context.Background(), r, "alice", "a", ir.Record{"title": "back"})
				require.NoError(t, err)
			},
			want:  []string{"b", "a"},
			total: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, mr := createTestStore(t, storage.Options{IDs: storage.NewFixedGenerator("a", "b")})
			_, err := s.Create(ctx, r, "alice", ir.Record{"title": "x"})
			require.NoError(t, err)
			_, err = s.Create(ctx, r, "alice", ir.Record{"title": "y"})
			require.NoError(t, err)
			if tt.prepare != nil {
				tt.prepare(t, s)
			}

			other, err := Open("redis://"+mr.Addr()+"/0", storage.Options{})
			require.NoError(t, err)
			defer other.Close()

			hook := &interleave{
				set: keysFor(r, "alice").deleted(),
				fn:  func() { tt.write(t, other) },
			}
			s.client.AddHook(hook)

			records, total, err := s.GetAll(ctx, r, "alice", queryir.Query{IncludeDeleted: true})
			require.NoError(t, err)

			var got []string
			for _, rec := range records {
				id := rec["id"].(string)
				got = append(got, id)
				_, isTombstone := rec["deleted"]
				assert.Equal(t, tt.deleted[id], isTombstone, id)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.total, total)
		})
	}
}

func TestTransact_StopsWhenContextDone(t *testing.T) {
	s, _ := createTestStore(t, storage.Options{})
	k := keysFor(ir.DefaultResource("article"), "alice")
	other := redis.NewClient(&redis.Options{Addr: s.client.Options().Addr})
	defer other.Close()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := s.transact(ctx, k, func(tx *redis.Tx) error {
		calls++
		require.NoError(t, other.Incr(context.Background(), k.timestamp()).Err())
		if calls == 250 {
			cancel()
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k.timestamp(), 1, 0)
			return nil
		})
		return err
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, storage.IsUnavailable(err))
	assert.GreaterOrEqual(t, calls, 250)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"nil", nil, false},
		{"closed", redis.ErrClosed, true},
		{"eof", fmt.Errorf("read: %w", io.EOF), true},
		{"redis nil", redis.Nil, false},
		{"plain", errors.New("boom"), false},
		{"unicity", storage.NewUnicityError("phone", nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unavailable, storage.IsUnavailable(classify(tt.err)))
		})
	}
}
