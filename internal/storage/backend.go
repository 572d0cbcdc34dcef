package storage

import (
	"context"
	"fmt"

	"github.com/newsdesk/apiserver/config"
)

// NewFromConfig picks the backend named by cfg.Backend.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var backend ObjectStorage
	switch cfg.Backend {
	case "minio":
		client, err := NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		backend = client
	case "gcs":
		client, err := NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs: %w", err)
		}
		backend = client
	case "":
		backend = NewMemoryBackend("media")
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	return NewStorage(backend, cfg.MediaBaseURL), nil
}
