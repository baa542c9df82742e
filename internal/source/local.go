package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/JakeFAU/audio-gateway/internal/gateway"
)

// Local serves and persists objects under a base directory on the local
// filesystem.
type Local struct {
	baseDir    string
	pathPrefix string
}

// NewLocal creates a filesystem-backed store rooted at baseDir. The base is
// resolved through symlinks once so later escape checks compare real paths.
func NewLocal(baseDir, pathPrefix string) (*Local, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	return &Local{baseDir: resolved, pathPrefix: strings.Trim(pathPrefix, "/")}, nil
}

// resolve maps a key to an absolute path under the base directory,
// rejecting keys that escape it after symlink-aware canonicalization.
func (l *Local) resolve(key string) (string, error) {
	rel := strings.TrimPrefix(key, "/")
	if l.pathPrefix != "" {
		rel = l.pathPrefix + "/" + rel
	}
	full := filepath.Join(l.baseDir, filepath.FromSlash(rel))
	if !strings.HasPrefix(full, l.baseDir+string(filepath.Separator)) {
		return "", gateway.E(gateway.KindBadRequest, "path escapes storage root: %s", key)
	}

	// The file itself may not exist yet (Put); canonicalize the deepest
	// existing ancestor and re-check.
	probe := full
	for {
		resolved, err := filepath.EvalSymlinks(probe)
		if err == nil {
			if resolved != l.baseDir && !strings.HasPrefix(resolved, l.baseDir+string(filepath.Separator)) {
				return "", gateway.E(gateway.KindBadRequest, "path escapes storage root: %s", key)
			}
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("resolve path: %w", err)
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}
	return full, nil
}

// Get reads the object's bytes. A missing file is a NotFound.
func (l *Local) Get(_ context.Context, key string) ([]byte, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, gateway.E(gateway.KindNotFound, "source not found: %s", key)
		}
		return nil, gateway.Wrap(gateway.KindUpstream, err, "read source: %s", key)
	}
	return data, nil
}

// Put writes the object atomically: write-to-temp then rename.
func (l *Local) Put(_ context.Context, key string, data []byte, _ string) error {
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}
	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Ping verifies the base directory is still a readable directory.
func (l *Local) Ping(_ context.Context) error {
	info, err := os.Stat(l.baseDir)
	if err != nil {
		return fmt.Errorf("stat base directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("base directory path is not a directory")
	}
	return nil
}
