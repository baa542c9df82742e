package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/JakeFAU/audio-gateway/internal/config"
	"github.com/JakeFAU/audio-gateway/internal/gateway"
)

// S3 serves and persists objects in an S3-compatible bucket via minio-go.
type S3 struct {
	client     *minio.Client
	bucket     string
	pathPrefix string
}

// NewS3 builds an S3 store from static credentials. The endpoint may be AWS
// proper or any S3-compatible service such as MinIO.
func NewS3(cfg config.S3Config, pathPrefix string) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &S3{client: client, bucket: cfg.Bucket, pathPrefix: strings.Trim(pathPrefix, "/")}, nil
}

func (s *S3) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.pathPrefix != "" {
		return s.pathPrefix + "/" + key
	}
	return key
}

// Get reads the object's bytes. A missing key is a NotFound.
func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, gateway.Wrap(gateway.KindUpstream, err, "open s3 object: %s", key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, gateway.E(gateway.KindNotFound, "source not found: %s", key)
		}
		return nil, gateway.Wrap(gateway.KindUpstream, err, "read s3 object: %s", key)
	}
	return data, nil
}

// Put writes the object with its content type.
func (s *S3) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.objectKey(key),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return gateway.Wrap(gateway.KindUpstream, err, "write s3 object: %s", key)
	}
	return nil
}

// Ping verifies the bucket is reachable and exists.
func (s *S3) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("probe s3 bucket: %w", err)
	}
	if !ok {
		return fmt.Errorf("s3 bucket %q does not exist", s.bucket)
	}
	return nil
}
