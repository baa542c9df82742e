package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T, dir string, budgets Budgets) *Filesystem {
	t.Helper()
	c, err := NewFilesystem(dir, budgets, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestFilesystemPutGet(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, t.TempDir(), Budgets{})
	ctx := context.Background()
	key := "abcd0123456789"

	_, ok := c.Get(ctx, key)
	require.False(t, ok)

	c.Put(ctx, key, []byte("artifact"))
	data, ok := c.Get(ctx, key)
	require.True(t, ok)
	require.Equal(t, []byte("artifact"), data)
}

func TestFilesystemShardsKeys(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := newTestCache(t, dir, Budgets{})
	c.Put(context.Background(), "abcdef012345", []byte("x"))

	_, err := os.Stat(filepath.Join(dir, "ab", "cd", "ef012345"))
	require.NoError(t, err)
}

func TestFilesystemEvictsByFileCount(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, t.TempDir(), Budgets{MaxFiles: 2})
	ctx := context.Background()

	c.Put(ctx, "aaaa11111111", []byte("one"))
	time.Sleep(5 * time.Millisecond)
	c.Put(ctx, "bbbb22222222", []byte("two"))
	time.Sleep(5 * time.Millisecond)
	c.Put(ctx, "cccc33333333", []byte("three"))

	_, ok := c.Get(ctx, "aaaa11111111")
	require.False(t, ok, "oldest artifact should be evicted")
	_, ok = c.Get(ctx, "bbbb22222222")
	require.True(t, ok)
	_, ok = c.Get(ctx, "cccc33333333")
	require.True(t, ok)
}

func TestFilesystemEvictsByTotalSize(t *testing.T) {
	t.Parallel()

	// 1 MB budget, three ~600 KB artifacts: only one fits at a time.
	c := newTestCache(t, t.TempDir(), Budgets{MaxTotalMB: 1})
	ctx := context.Background()
	blob := make([]byte, 600*1024)

	for i := 0; i < 3; i++ {
		c.Put(ctx, fmt.Sprintf("key%d%011d", i, 0), blob)
		time.Sleep(5 * time.Millisecond)
	}

	survivors := 0
	for i := 0; i < 3; i++ {
		if _, ok := c.Get(ctx, fmt.Sprintf("key%d%011d", i, 0)); ok {
			survivors++
		}
	}
	require.Equal(t, 1, survivors)
}

func TestFilesystemGetRefreshesRecency(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, t.TempDir(), Budgets{MaxFiles: 2})
	ctx := context.Background()

	c.Put(ctx, "aaaa11111111", []byte("one"))
	time.Sleep(5 * time.Millisecond)
	c.Put(ctx, "bbbb22222222", []byte("two"))
	time.Sleep(5 * time.Millisecond)

	// Touch the older artifact so the newer-but-unused one is evicted.
	_, ok := c.Get(ctx, "aaaa11111111")
	require.True(t, ok)
	time.Sleep(5 * time.Millisecond)

	c.Put(ctx, "cccc33333333", []byte("three"))

	_, ok = c.Get(ctx, "aaaa11111111")
	require.True(t, ok)
	_, ok = c.Get(ctx, "bbbb22222222")
	require.False(t, ok)
}

func TestFilesystemIndexSurvivesRestart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	first := newTestCache(t, dir, Budgets{})
	first.Put(ctx, "abcdef012345", []byte("persisted"))

	second := newTestCache(t, dir, Budgets{})
	data, ok := second.Get(ctx, "abcdef012345")
	require.True(t, ok)
	require.Equal(t, []byte("persisted"), data)
}

func TestFilesystemRestartDropsTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	leftover := filepath.Join(dir, "ab", "cd", "ef.tmp-deadbeef")
	require.NoError(t, os.MkdirAll(filepath.Dir(leftover), 0o750))
	require.NoError(t, os.WriteFile(leftover, []byte("partial"), 0o600))

	newTestCache(t, dir, Budgets{})
	_, err := os.Stat(leftover)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFilesystemMemoryLayerBounded(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, t.TempDir(), Budgets{MaxMemMB: 1})
	ctx := context.Background()
	blob := make([]byte, 600*1024)

	c.Put(ctx, "aaaa11111111", blob)
	c.Put(ctx, "bbbb22222222", blob)

	c.memMu.Lock()
	memBytes := c.memBytes
	c.memMu.Unlock()
	require.LessOrEqual(t, memBytes, int64(1<<20))

	// Both artifacts still readable from disk.
	_, ok := c.Get(ctx, "aaaa11111111")
	require.True(t, ok)
	_, ok = c.Get(ctx, "bbbb22222222")
	require.True(t, ok)
}

func TestFilesystemPing(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, t.TempDir(), Budgets{})
	require.NoError(t, c.Ping(context.Background()))
}

func TestNoopCache(t *testing.T) {
	t.Parallel()

	var c Cache = Noop{}
	c.Put(context.Background(), "k", []byte("v"))
	_, ok := c.Get(context.Background(), "k")
	require.False(t, ok)
}
