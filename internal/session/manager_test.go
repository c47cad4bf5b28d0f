package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	mgr, err := NewManager(mr.Addr(), 300*time.Second, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr, mr
}

func TestUpdateAndGetContext_RoundTrips(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	err := mgr.UpdateContext(ctx, "sess-1", "org-1", "user-1", "coding", []string{"git-master"}, []string{"repo:acme/widget"})
	require.NoError(t, err)

	got, err := mgr.GetContext(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "coding", got.RecentCategory)
	require.Equal(t, []string{"git-master"}, got.RecentSkills)
	require.Equal(t, []string{"repo:acme/widget"}, got.RecentEntities)
}

func TestGetContext_MissingReturnsNotFound(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.GetContext(context.Background(), "never-seen")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetContext_ExpiredInRedisReturnsNotFound(t *testing.T) {
	mgr, mr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.UpdateContext(ctx, "sess-2", "org-1", "user-1", "research", nil, nil))

	// Evict from the local cache so the lookup hits Redis, then fast-forward
	// past the TTL there.
	mgr.mu.Lock()
	delete(mgr.localCache, "sess-2")
	mgr.mu.Unlock()
	mr.FastForward(301 * time.Second)

	_, err := mgr.GetContext(ctx, "sess-2")
	require.ErrorIs(t, err, ErrNotFound) // miniredis expires the key itself past TTL
}

func TestDelete_RemovesFromCacheAndStore(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.UpdateContext(ctx, "sess-3", "org-1", "user-1", "ops", nil, nil))
	require.NoError(t, mgr.Delete(ctx, "sess-3"))

	_, err := mgr.GetContext(ctx, "sess-3")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEvictLocked_DropsOldestHalf(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	mgr.maxEntries = 2

	for i := 0; i < 4; i++ {
		id := "sess-evict-" + string(rune('a'+i))
		require.NoError(t, mgr.UpdateContext(ctx, id, "org-1", "user-1", "cat", nil, nil))
		time.Sleep(2 * time.Millisecond)
	}

	mgr.mu.RLock()
	size := len(mgr.localCache)
	mgr.mu.RUnlock()
	require.LessOrEqual(t, size, mgr.maxEntries+1)
}
