package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/audio-gateway/internal/config"
	"github.com/JakeFAU/audio-gateway/internal/gateway"
)

// GCS serves and persists objects in a Google Cloud Storage bucket.
type GCS struct {
	bucket     *storage.BucketHandle
	bucketName string
	pathPrefix string
}

// NewGCS builds a GCS store using ambient application credentials.
func NewGCS(ctx context.Context, cfg config.GCSConfig, pathPrefix string) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCS{
		bucket:     client.Bucket(cfg.Bucket),
		bucketName: cfg.Bucket,
		pathPrefix: strings.Trim(pathPrefix, "/"),
	}, nil
}

func (g *GCS) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if g.pathPrefix != "" {
		return g.pathPrefix + "/" + key
	}
	return key
}

// Get reads the object's bytes. A missing object is a NotFound.
func (g *GCS) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := g.bucket.Object(g.objectKey(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, gateway.E(gateway.KindNotFound, "source not found: %s", key)
		}
		return nil, gateway.Wrap(gateway.KindUpstream, err, "open gcs object: %s", key)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, gateway.Wrap(gateway.KindUpstream, err, "read gcs object: %s", key)
	}
	return data, nil
}

// Put writes the object with its content type. The writer is closed before
// returning so partial uploads never become visible.
func (g *GCS) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := g.bucket.Object(g.objectKey(key)).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return gateway.Wrap(gateway.KindUpstream, err, "write gcs object: %s", key)
	}
	if err := w.Close(); err != nil {
		return gateway.Wrap(gateway.KindUpstream, err, "finalize gcs object: %s", key)
	}
	return nil
}

// Ping verifies the bucket metadata is readable.
func (g *GCS) Ping(ctx context.Context) error {
	if _, err := g.bucket.Attrs(ctx); err != nil {
		return fmt.Errorf("probe gcs bucket %q: %w", g.bucketName, err)
	}
	return nil
}
