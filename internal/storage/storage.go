package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrObjectNotFound is returned when a key has no object behind it.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Storage wraps an ObjectStorage backend and maps keys to public media URLs.
type Storage struct {
	backend ObjectStorage
	baseURL string
}

// NewStorage constructs a Storage wrapper for the provided backend. Objects
// are addressed publicly as baseURL + "/" + key.
func NewStorage(backend ObjectStorage, baseURL string) *Storage {
	return &Storage{
		backend: backend,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put uploads an object and returns its public URL.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if err := s.backend.Put(ctx, key, r, size, contentType); err != nil {
		return "", err
	}
	return s.URL(key), nil
}

// Exists reports whether an object is stored under key.
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	return s.backend.Exists(ctx, key)
}

// Delete removes an object from the configured bucket.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// DeleteURL removes the object behind a URL produced by this Storage.
// URLs pointing elsewhere are left alone.
func (s *Storage) DeleteURL(ctx context.Context, url string) error {
	key, ok := s.KeyFromURL(url)
	if !ok {
		return nil
	}
	return s.backend.Delete(ctx, key)
}

// URL returns the public address of key.
func (s *Storage) URL(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.baseURL == "" {
		return "/" + s.backend.Bucket() + "/" + key
	}
	return s.baseURL + "/" + key
}

// KeyFromURL recovers the object key from a URL built by URL.
func (s *Storage) KeyFromURL(url string) (string, bool) {
	prefix := s.URL("")
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	return key, key != ""
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}
