package schemacache

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-data/tessera-engine/pkg/apperrors"
	"github.com/tessera-data/tessera-engine/pkg/models"
)

func testSnapshot(capturedAt time.Time) *models.SchemaSnapshot {
	return &models.SchemaSnapshot{
		Tables: []models.TableDescriptor{
			{
				SchemaName: "public",
				TableName:  "customers",
				Columns: []models.ColumnDescriptor{
					{Name: "id", DataType: "integer", Ordinal: 1},
					{Name: "name", DataType: "text", Nullable: true, Ordinal: 2},
				},
			},
		},
		CapturedAt: capturedAt,
	}
}

func TestGet_FreshHitSkipsFetch(t *testing.T) {
	var calls atomic.Int64
	fetch := func(ctx context.Context, key string) (*models.SchemaSnapshot, error) {
		calls.Add(1)
		return testSnapshot(time.Now()), nil
	}

	cache := New(fetch, nil)

	first, stale, err := cache.Get(context.Background(), "db-a")
	require.NoError(t, err)
	assert.False(t, stale)

	second, stale, err := cache.Get(context.Background(), "db-a")
	require.NoError(t, err)
	assert.False(t, stale)

	assert.Same(t, first, second, "fresh hit must return the cached snapshot")
	assert.Equal(t, int64(1), calls.Load())
}

func TestGet_ConcurrentCallersShareOneRefresh(t *testing.T) {
	var calls atomic.Int64
	release := make(chan struct{})
	fetch := func(ctx context.Context, key string) (*models.SchemaSnapshot, error) {
		calls.Add(1)
		<-release
		return testSnapshot(time.Now()), nil
	}

	cache := New(fetch, nil)

	const callers = 25
	var wg sync.WaitGroup
	results := make([]*models.SchemaSnapshot, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = cache.Get(context.Background(), "db-a")
		}(i)
	}

	// Give every caller time to park on the in-flight refresh.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "expired key under concurrency must fetch exactly once")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
}

func TestGet_ExpiryTriggersRefresh(t *testing.T) {
	var calls atomic.Int64
	fetch := func(ctx context.Context, key string) (*models.SchemaSnapshot, error) {
		calls.Add(1)
		return testSnapshot(time.Now()), nil
	}

	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }
	cache := New(fetch, nil, WithTTL(5*time.Minute), WithClock(clock))

	_, _, err := cache.Get(context.Background(), "db-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cache.Generation("db-a"))

	now = now.Add(5*time.Minute + time.Second)

	_, stale, err := cache.Get(context.Background(), "db-a")
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, uint64(2), cache.Generation("db-a"))
}

func TestGet_ServesStaleOnRefreshFailure(t *testing.T) {
	var calls atomic.Int64
	fetch := func(ctx context.Context, key string) (*models.SchemaSnapshot, error) {
		if calls.Add(1) == 1 {
			return testSnapshot(time.Now()), nil
		}
		return nil, errors.New("connection refused")
	}

	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }
	cache := New(fetch, nil, WithTTL(time.Minute), WithClock(clock))

	first, _, err := cache.Get(context.Background(), "db-a")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	second, stale, err := cache.Get(context.Background(), "db-a")
	require.NoError(t, err, "stale serve is a soft failure")
	assert.True(t, stale)
	assert.Same(t, first, second)
}

func TestGet_StaleFlagSurvivesFailureWindow(t *testing.T) {
	var calls atomic.Int64
	fetch := func(ctx context.Context, key string) (*models.SchemaSnapshot, error) {
		if calls.Add(1) == 1 {
			return testSnapshot(time.Now()), nil
		}
		return nil, errors.New("connection refused")
	}

	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }
	cache := New(fetch, nil, WithTTL(time.Minute), WithClock(clock))

	_, _, err := cache.Get(context.Background(), "db-a")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	// First caller pays for the failed refresh and is told the snapshot
	// is stale; the failure extends the entry's expiry briefly.
	_, stale, err := cache.Get(context.Background(), "db-a")
	require.NoError(t, err)
	require.True(t, stale)
	require.Equal(t, int64(2), calls.Load())

	// Followers inside the extension window hit the entry directly. They
	// must not trigger another fetch, and they must still see it as stale.
	_, stale, err = cache.Get(context.Background(), "db-a")
	require.NoError(t, err)
	assert.True(t, stale, "failure window must not launder the stale flag")
	assert.Equal(t, int64(2), calls.Load())

	// A later successful refresh clears the degraded state.
	now = now.Add(time.Minute)
	_, stale, err = cache.Get(context.Background(), "db-a")
	require.NoError(t, err)
	assert.True(t, stale, "third fetch also fails")
	calls.Store(0) // next fetch succeeds again
	now = now.Add(time.Minute)
	_, stale, err = cache.Get(context.Background(), "db-a")
	require.NoError(t, err)
	assert.False(t, stale)
}

func TestGet_FailsHardWhenEmpty(t *testing.T) {
	fetch := func(ctx context.Context, key string) (*models.SchemaSnapshot, error) {
		return nil, errors.New("connection refused")
	}

	cache := New(fetch, nil)

	snapshot, stale, err := cache.Get(context.Background(), "db-a")
	assert.Nil(t, snapshot)
	assert.False(t, stale)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSchemaUnavailable)
}

func TestGet_CallerCancellationDoesNotAbortRefresh(t *testing.T) {
	release := make(chan struct{})
	fetch := func(ctx context.Context, key string) (*models.SchemaSnapshot, error) {
		select {
		case <-release:
			return testSnapshot(time.Now()), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	cache := New(fetch, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := cache.Get(ctx, "db-a")
	require.ErrorIs(t, err, context.Canceled)

	// The refresh keeps running on its own context; a later caller gets
	// the snapshot it produced.
	close(release)
	snapshot, stale, err := cache.Get(context.Background(), "db-a")
	require.NoError(t, err)
	assert.False(t, stale)
	assert.NotNil(t, snapshot)
}

func TestInvalidate_ForcesRefresh(t *testing.T) {
	var calls atomic.Int64
	fetch := func(ctx context.Context, key string) (*models.SchemaSnapshot, error) {
		calls.Add(1)
		return testSnapshot(time.Now()), nil
	}

	cache := New(fetch, nil)

	_, _, err := cache.Get(context.Background(), "db-a")
	require.NoError(t, err)

	cache.Invalidate("db-a")

	_, _, err = cache.Get(context.Background(), "db-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestKeysAreIndependent(t *testing.T) {
	var calls atomic.Int64
	fetch := func(ctx context.Context, key string) (*models.SchemaSnapshot, error) {
		calls.Add(1)
		return testSnapshot(time.Now()), nil
	}

	cache := New(fetch, nil)

	_, _, err := cache.Get(context.Background(), "db-a")
	require.NoError(t, err)
	_, _, err = cache.Get(context.Background(), "db-b")
	require.NoError(t, err)

	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, uint64(1), cache.Generation("db-a"))
	assert.Equal(t, uint64(1), cache.Generation("db-b"))
}

func TestWarmStart_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	captured := time.Unix(1700000000, 0).UTC()

	var calls atomic.Int64
	fetch := func(ctx context.Context, key string) (*models.SchemaSnapshot, error) {
		calls.Add(1)
		return testSnapshot(captured), nil
	}

	cache := New(fetch, nil, WithPersistDir(dir))
	_, _, err := cache.Get(context.Background(), "db-a")
	require.NoError(t, err)

	// persistSnapshot runs after the in-flight channel closes.
	require.Eventually(t, func() bool {
		_, statErr := os.Stat(cache.snapshotPath("db-a"))
		return statErr == nil
	}, time.Second, 10*time.Millisecond)

	// A cold cache with a failing source serves the persisted snapshot.
	failing := func(ctx context.Context, key string) (*models.SchemaSnapshot, error) {
		return nil, errors.New("connection refused")
	}
	cold := New(failing, nil, WithPersistDir(dir))
	require.NoError(t, cold.WarmStart("db-a"))

	snapshot, stale, err := cold.Get(context.Background(), "db-a")
	require.NoError(t, err)
	assert.True(t, stale)
	require.NotNil(t, snapshot)
	assert.Equal(t, captured, snapshot.CapturedAt)
	require.Len(t, snapshot.Tables, 1)
	assert.Equal(t, "public.customers", snapshot.Tables[0].QualifiedName())
}

func TestWarmStart_NoFileIsNotAnError(t *testing.T) {
	cache := New(nil, nil, WithPersistDir(t.TempDir()))
	require.NoError(t, cache.WarmStart("db-a"))
}
