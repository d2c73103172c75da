package fetcher

import (
	"context"
	"fmt"
	"io"

	"orderdesk_backend/platform/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOObjects implements ObjectStore over MinIO S3-compatible storage.
type MinIOObjects struct {
	client *minio.Client
}

// NewMinIOObjects creates the uploaded-source backend. Returns nil when
// storage is not configured; the fetcher then rejects upload sources.
func NewMinIOObjects(cfg config.StorageConfig) (*MinIOObjects, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, nil
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOObjects{client: client}, nil
}

func (s *MinIOObjects) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; surface missing objects now instead of at first read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, err
	}
	return obj, nil
}
