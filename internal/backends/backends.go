// Package backends opens the storage backend named by the configuration.
package backends

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/recstore/internal/config"
	"github.com/roach88/recstore/internal/storage"
	"github.com/roach88/recstore/internal/storage/kv"
	"github.com/roach88/recstore/internal/storage/memory"
	"github.com/roach88/recstore/internal/storage/sqlite"
)

// Open creates the backend described by sc and bootstraps its schema.
// opts.MaxFetchSize is taken from sc when sc sets it.
func Open(ctx context.Context, sc config.StorageConfig, opts storage.Options) (storage.Storage, error) {
	if sc.MaxFetchSize > 0 {
		opts.MaxFetchSize = sc.MaxFetchSize
	}

	s, err := open(sc, opts)
	if err != nil {
		return nil, err
	}
	if err := storage.EnsureSchema(ctx, s); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s storage: %w", sc.Backend, err)
	}
	return s, nil
}

func open(sc config.StorageConfig, opts storage.Options) (storage.Storage, error) {
	switch sc.Backend {
	case config.BackendMemory, "":
		return memory.New(opts), nil
	case config.BackendSQLite:
		s, err := sqlite.Open(sc.URL, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendRedis:
		ropts, err := redis.ParseURL(sc.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		if sc.PoolSize > 0 {
			ropts.PoolSize = sc.PoolSize
		}
		return kv.New(redis.NewClient(ropts), opts), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: memory, redis, sqlite)", sc.Backend)
	}
}
