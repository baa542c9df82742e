package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/audio-gateway/internal/metrics"
)

const mebibyte = 1 << 20

// Budgets bounds the filesystem cache. Zero values disable the respective
// limit.
type Budgets struct {
	// MaxFiles caps the number of artifacts kept on disk.
	MaxFiles int
	// MaxMemMB caps the in-memory hot layer, in mebibytes.
	MaxMemMB int
	// MaxTotalMB caps the total bytes kept on disk, in mebibytes.
	MaxTotalMB int
}

type fsEntry struct {
	size     int64
	lastUsed time.Time
}

// Filesystem is an on-disk artifact cache with an in-memory hot layer.
// Artifacts are sharded into two-level directories by key prefix and
// evicted least-recently-used when a budget is exceeded.
type Filesystem struct {
	baseDir string
	budgets Budgets
	logger  *zap.Logger

	mu         sync.Mutex
	entries    map[string]*fsEntry
	totalBytes int64

	memMu    sync.Mutex
	mem      map[string][]byte
	memUsed  map[string]time.Time
	memBytes int64
}

// NewFilesystem creates the cache rooted at baseDir and rebuilds its index
// by walking existing artifacts, so budgets hold across restarts.
func NewFilesystem(baseDir string, budgets Budgets, logger *zap.Logger) (*Filesystem, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("cache base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	c := &Filesystem{
		baseDir: baseDir,
		budgets: budgets,
		logger:  logger,
		entries: make(map[string]*fsEntry),
		mem:     make(map[string][]byte),
		memUsed: make(map[string]time.Time),
	}
	if err := c.rebuildIndex(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Filesystem) rebuildIndex() error {
	err := filepath.WalkDir(c.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if strings.Contains(d.Name(), ".tmp-") {
			// Leftover from an interrupted write.
			_ = os.Remove(path)
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(c.baseDir, path)
		if err != nil {
			return nil
		}
		key := strings.ReplaceAll(filepath.ToSlash(rel), "/", "")
		c.entries[key] = &fsEntry{size: info.Size(), lastUsed: info.ModTime()}
		c.totalBytes += info.Size()
		return nil
	})
	if err != nil {
		return fmt.Errorf("index cache directory: %w", err)
	}
	c.logger.Info("cache index rebuilt",
		zap.Int("artifacts", len(c.entries)),
		zap.Int64("bytes", c.totalBytes))
	return nil
}

// path shards a key as ab/cd/rest so no single directory grows unbounded.
func (c *Filesystem) path(key string) string {
	if len(key) < 5 {
		return filepath.Join(c.baseDir, key)
	}
	return filepath.Join(c.baseDir, key[:2], key[2:4], key[4:])
}

// Get returns the artifact when present, preferring the in-memory layer.
func (c *Filesystem) Get(_ context.Context, key string) ([]byte, bool) {
	if data, ok := c.memGet(key); ok {
		c.touch(key, int64(len(data)))
		metrics.ObserveCacheEvent("filesystem", "hit")
		return data, true
	}

	c.mu.Lock()
	_, known := c.entries[key]
	c.mu.Unlock()
	if !known {
		metrics.ObserveCacheEvent("filesystem", "miss")
		return nil, false
	}

	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
			metrics.ObserveCacheEvent("filesystem", "error")
		}
		c.forget(key)
		metrics.ObserveCacheEvent("filesystem", "miss")
		return nil, false
	}

	c.touch(key, int64(len(data)))
	c.memPut(key, data)
	metrics.ObserveCacheEvent("filesystem", "hit")
	return data, true
}

// Put stores the artifact atomically and evicts until budgets hold. Failures
// are logged and dropped.
func (c *Filesystem) Put(_ context.Context, key string, data []byte) {
	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		metrics.ObserveCacheEvent("filesystem", "error")
		return
	}
	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		metrics.ObserveCacheEvent("filesystem", "error")
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		metrics.ObserveCacheEvent("filesystem", "error")
		return
	}

	c.mu.Lock()
	if old, ok := c.entries[key]; ok {
		c.totalBytes -= old.size
	}
	c.entries[key] = &fsEntry{size: int64(len(data)), lastUsed: time.Now()}
	c.totalBytes += int64(len(data))
	c.evictLocked()
	c.mu.Unlock()

	c.memPut(key, data)
	metrics.ObserveCacheEvent("filesystem", "write")
}

// Ping verifies the base directory is still writable.
func (c *Filesystem) Ping(_ context.Context) error {
	probe := filepath.Join(c.baseDir, ".probe-"+uuid.NewString())
	if err := os.WriteFile(probe, nil, 0o600); err != nil {
		return fmt.Errorf("probe cache directory: %w", err)
	}
	return os.Remove(probe)
}

func (c *Filesystem) touch(key string, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.lastUsed = time.Now()
		e.size = size
	}
}

func (c *Filesystem) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.totalBytes -= e.size
		delete(c.entries, key)
	}
}

// evictLocked removes least-recently-used artifacts until both the file
// count and total size budgets hold. Ties break on key order so eviction is
// deterministic.
func (c *Filesystem) evictLocked() {
	overBudget := func() bool {
		if c.budgets.MaxFiles > 0 && len(c.entries) > c.budgets.MaxFiles {
			return true
		}
		if c.budgets.MaxTotalMB > 0 && c.totalBytes > int64(c.budgets.MaxTotalMB)*mebibyte {
			return true
		}
		return false
	}
	for overBudget() {
		victim := ""
		var victimEntry *fsEntry
		for key, e := range c.entries {
			if victimEntry == nil ||
				e.lastUsed.Before(victimEntry.lastUsed) ||
				(e.lastUsed.Equal(victimEntry.lastUsed) && key < victim) {
				victim, victimEntry = key, e
			}
		}
		if victimEntry == nil {
			return
		}
		if err := os.Remove(c.path(victim)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("cache evict failed", zap.String("key", victim), zap.Error(err))
		}
		c.totalBytes -= victimEntry.size
		delete(c.entries, victim)
		c.memDrop(victim)
		metrics.ObserveCacheEvent("filesystem", "evict")
	}
}

func (c *Filesystem) memGet(key string) ([]byte, bool) {
	c.memMu.Lock()
	defer c.memMu.Unlock()
	data, ok := c.mem[key]
	if ok {
		c.memUsed[key] = time.Now()
	}
	return data, ok
}

func (c *Filesystem) memPut(key string, data []byte) {
	budget := int64(c.budgets.MaxMemMB) * mebibyte
	if budget <= 0 || int64(len(data)) > budget {
		return
	}
	c.memMu.Lock()
	defer c.memMu.Unlock()
	if old, ok := c.mem[key]; ok {
		c.memBytes -= int64(len(old))
	}
	c.mem[key] = data
	c.memUsed[key] = time.Now()
	c.memBytes += int64(len(data))
	for c.memBytes > budget {
		victim := ""
		var oldest time.Time
		for k, used := range c.memUsed {
			if victim == "" || used.Before(oldest) || (used.Equal(oldest) && k < victim) {
				victim, oldest = k, used
			}
		}
		if victim == "" {
			return
		}
		c.memBytes -= int64(len(c.mem[victim]))
		delete(c.mem, victim)
		delete(c.memUsed, victim)
	}
}

func (c *Filesystem) memDrop(key string) {
	c.memMu.Lock()
	defer c.memMu.Unlock()
	if old, ok := c.mem[key]; ok {
		c.memBytes -= int64(len(old))
		delete(c.mem, key)
		delete(c.memUsed, key)
	}
}
