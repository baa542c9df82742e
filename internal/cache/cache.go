// Package cache stores processed artifacts keyed by fingerprint. Backends
// are best-effort: a broken cache degrades throughput, never correctness.
package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/audio-gateway/internal/config"
)

// Cache is the artifact cache boundary. Get reports a miss with ok=false;
// backend failures are handled internally and surface as misses.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool)
	Put(ctx context.Context, key string, data []byte)
}

// Pinger is implemented by backends that can cheaply probe their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New selects the configured cache backend.
func New(cfg config.CacheConfig, proc config.ProcessorConfig, logger *zap.Logger) (Cache, error) {
	switch cfg.Provider {
	case "filesystem":
		return NewFilesystem(cfg.Filesystem.BaseDir, Budgets{
			MaxFiles:   proc.MaxCacheFiles,
			MaxMemMB:   proc.MaxCacheMem,
			MaxTotalMB: proc.MaxCacheSize,
		}, logger)
	case "redis":
		return NewRedis(cfg.Redis, logger), nil
	case "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache provider %q", cfg.Provider)
	}
}

// Noop is the disabled cache: every lookup misses, every write is dropped.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Noop) Put(context.Context, string, []byte)        {}
