package storagetest

import (
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/storage"
	"github.com/roach88/recstore/internal/testutil"
)

func runTimestamps(t *testing.T, open Factory) {
	t.Run("EmptyCollectionReportsNow", func(t *testing.T) {
		clk := testutil.NewManualClock(5000)
		f := setup(t, open, storage.Options{Clock: clk.Now})

		assert.Equal(t, int64(5000), f.timestamp())
		clk.Set(7000)
		assert.Equal(t, int64(7000), f.timestamp())
	})

	t.Run("StampFollowsWallClock", func(t *testing.T) {
		clk := testutil.NewManualClock(5000)
		f := setup(t, open, storage.Options{Clock: clk.Now})

		assert.Equal(t, int64(5000), stampOf(f.create(ir.Record{})))
		assert.Equal(t, int64(5000), f.timestamp())

		clk.Set(9000)
		assert.Equal(t, int64(9000), stampOf(f.create(ir.Record{})))
		assert.Equal(t, int64(9000), f.timestamp())
	})

	t.Run("StampIncreasesWhenClockStalls", func(t *testing.T) {
		clk := testutil.NewManualClock(5000)
		f := setup(t, open, storage.Options{Clock: clk.Now})

		var stamps []int64
		for range 3 {
			stamps = append(stamps, stampOf(f.create(ir.Record{})))
		}

		assert.Equal(t, []int64{5000, 5001, 5002}, stamps)
	})

	t.Run("StampIncreasesWhenClockGoesBackwards", func(t *testing.T) {
		clk := testutil.NewManualClock(5000)
		f := setup(t, open, storage.Options{Clock: clk.Now})
		f.create(ir.Record{})

		clk.Set(-1)

		assert.Equal(t, int64(5001), stampOf(f.create(ir.Record{})))
	})

	t.Run("EveryWriteBumpsCollection", func(t *testing.T) {
		f := setup(t, open, storage.Options{})

		created := f.create(ir.Record{})
		afterCreate := f.timestamp()
		assert.Equal(t, stampOf(created), afterCreate)

		updated := f.update(idOf(created), ir.Record{"foo": "bar"})
		afterUpdate := f.timestamp()
		assert.Greater(t, afterUpdate, afterCreate)
		assert.Equal(t, stampOf(updated), afterUpdate)

		tombstone := f.delete(idOf(created))
		afterDelete := f.timestamp()
		assert.Greater(t, afterDelete, afterUpdate)
		assert.Equal(t, stampOf(tombstone), afterDelete)
	})

	t.Run("CollectionsHaveIndependentClocks", func(t *testing.T) {
		clk := testutil.NewManualClock(5000)
		f := setup(t, open, storage.Options{Clock: clk.Now})
		for range 3 {
			f.create(ir.Record{})
		}

		other, err := f.store.Create(f.ctx, f.res, "other", ir.Record{})
		require.NoError(t, err)

		assert.Equal(t, int64(5000), stampOf(other))
		assert.Equal(t, int64(5002), f.timestamp())
	})

	t.Run("FlushResetsStamps", func(t *testing.T) {
		clk := testutil.NewManualClock(5000)
		f := setup(t, open, storage.Options{Clock: clk.Now})
		for range 3 {
			f.create(ir.Record{})
		}

		require.NoError(t, f.store.Flush(f.ctx))

		assert.Equal(t, int64(5000), f.timestamp())
		assert.Equal(t, int64(5000), stampOf(f.create(ir.Record{})))
	})

	t.Run("ConcurrentWritesGetUniqueStamps", func(t *testing.T) {
		f := setup(t, open, storage.Options{})
		const workers, perWorker = 4, 25

		var (
			mu     sync.Mutex
			stamps []int64
			g      errgroup.Group
		)
		for range workers {
			g.Go(func() error {
				for range perWorker {
					rec, err := f.store.Create(f.ctx, f.res, f.tenant, ir.Record{})
					if err != nil {
						return err
					}
					mu.Lock()
					stamps = append(stamps, stampOf(rec))
					mu.Unlock()
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		require.Len(t, stamps, workers*perWorker)
		slices.Sort(stamps)
		assert.Len(t, slices.Compact(slices.Clone(stamps)), workers*perWorker)
		assert.Equal(t, stamps[len(stamps)-1], f.timestamp())
	})
}
