package storage

import (
	"context"
	"io"
	"sync"
)

// MemoryBackend keeps objects in process memory. Used when no object store
// is configured and by tests.
type MemoryBackend struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string][]byte
}

func NewMemoryBackend(bucket string) *MemoryBackend {
	return &MemoryBackend{
		bucket:  bucket,
		objects: make(map[string][]byte),
	}
}

func (m *MemoryBackend) EnsureBucket(ctx context.Context) error {
	return nil
}

func (m *MemoryBackend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *MemoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryBackend) Bucket() string {
	return m.bucket
}
