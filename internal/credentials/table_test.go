package credentials

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type tableFactory func(t *testing.T, ttl time.Duration, clock func() time.Time) Sweepable

func tableImplementations() map[string]tableFactory {
	return map[string]tableFactory{
		"memory": func(_ *testing.T, ttl time.Duration, clock func() time.Time) Sweepable {
			m := NewMemoryTable(ttl)
			m.now = clock
			return m
		},
		"bolt": func(t *testing.T, ttl time.Duration, clock func() time.Time) Sweepable {
			b, err := OpenBoltTable(t.TempDir(), ttl, zap.NewNop().Sugar())
			require.NoError(t, err)
			b.now = clock
			t.Cleanup(func() { b.Close() })
			return b
		},
	}
}

func TestTable_Basics(t *testing.T) {
	ctx := context.Background()
	for name, factory := range tableImplementations() {
		t.Run(name, func(t *testing.T) {
			tbl := factory(t, 0, time.Now)

			_, ok, err := tbl.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)

			b, err := tbl.GetOrDefault(ctx, "k")
			require.NoError(t, err)
			assert.True(t, b.IsEmpty())

			require.NoError(t, tbl.Set(ctx, "k", Bundle{GitHub: &GitHubAuth{AccessToken: "gh"}}))
			got, ok, err := tbl.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "gh", got.GitHub.AccessToken)
			assert.Equal(t, 1, tbl.Len())

			require.NoError(t, tbl.Update(ctx, "k", func(cur Bundle) (Bundle, error) {
				cur.ClickUp = &ClickUpAuth{AccessToken: "cu"}
				return cur, nil
			}))
			got, _, _ = tbl.Get(ctx, "k")
			assert.Equal(t, "gh", got.GitHub.AccessToken)
			assert.Equal(t, "cu", got.ClickUp.AccessToken)

			boom := errors.New("boom")
			err = tbl.Update(ctx, "k", func(Bundle) (Bundle, error) { return Bundle{}, boom })
			assert.ErrorIs(t, err, boom)
			got, _, _ = tbl.Get(ctx, "k")
			assert.NotNil(t, got.GitHub, "failed update must not write")

			taken, ok, err := tbl.Take(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "cu", taken.ClickUp.AccessToken)
			_, ok, _ = tbl.Take(ctx, "k")
			assert.False(t, ok)

			require.NoError(t, tbl.Set(ctx, "x", Bundle{}))
			require.NoError(t, tbl.Delete(ctx, "x"))
			assert.Equal(t, 0, tbl.Len())
		})
	}
}

func TestTable_TTLAndSweep(t *testing.T) {
	ctx := context.Background()
	for name, factory := range tableImplementations() {
		t.Run(name, func(t *testing.T) {
			now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
			var mu sync.Mutex
			clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
			advance := func(d time.Duration) { mu.Lock(); now = now.Add(d); mu.Unlock() }

			tbl := factory(t, 10*time.Minute, clock)
			require.NoError(t, tbl.Set(ctx, "old", Bundle{GitHub: &GitHubAuth{AccessToken: "a"}}))
			advance(5 * time.Minute)
			require.NoError(t, tbl.Set(ctx, "new", Bundle{GitHub: &GitHubAuth{AccessToken: "b"}}))

			// Updating must not extend the original deadline.
			require.NoError(t, tbl.Update(ctx, "old", func(cur Bundle) (Bundle, error) { return cur, nil }))

			advance(6 * time.Minute)
			_, ok, err := tbl.Get(ctx, "old")
			require.NoError(t, err)
			assert.False(t, ok, "expired entry is invisible")
			_, ok, _ = tbl.Take(ctx, "old")
			assert.False(t, ok, "expired entry cannot be taken")

			removed, err := tbl.Sweep(ctx, clock())
			require.NoError(t, err)
			assert.LessOrEqual(t, removed, 1)
			assert.Equal(t, 1, tbl.Len())

			_, ok, _ = tbl.Get(ctx, "new")
			assert.True(t, ok)
		})
	}
}

func TestBoltTable_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logger := zap.NewNop().Sugar()

	tbl, err := OpenBoltTable(dir, time.Hour, logger)
	require.NoError(t, err)
	require.NoError(t, tbl.Set(ctx, "code", Bundle{GitHub: &GitHubAuth{AccessToken: "gh"}}))
	require.NoError(t, tbl.Close())

	tbl, err = OpenBoltTable(dir, time.Hour, logger)
	require.NoError(t, err)
	defer tbl.Close()
	got, ok, err := tbl.Get(ctx, "code")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "gh", got.GitHub.AccessToken)
}

func TestSweeper_SweepOnce(t *testing.T) {
	ctx := context.Background()
	tbl := NewMemoryTable(time.Minute)
	require.NoError(t, tbl.Set(ctx, "a", Bundle{}))
	require.NoError(t, tbl.Set(ctx, "b", Bundle{}))

	s := NewSweeper(tbl, time.Hour, zap.NewNop().Sugar(), nil)
	assert.Equal(t, 0, s.SweepOnce(ctx, time.Now()))
	assert.Equal(t, 2, s.SweepOnce(ctx, time.Now().Add(2*time.Minute)))
	assert.Equal(t, 0, tbl.Len())

	s.Start()
	s.Stop()
	s.Stop()
}
