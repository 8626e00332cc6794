package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/postcard/backend/internal/infrastructure/artwork"
)

// MemoryObjectStorage keeps objects in process memory. It is used when S3
// is not configured; uploaded artwork stored here can be previewed but never
// sent, because the vendor cannot reach it.
type MemoryObjectStorage struct {
	// BaseURL prefixes the preview and upload URLs it hands out
	BaseURL string

	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryObjectStorage creates an empty in-memory store
func NewMemoryObjectStorage(baseURL string) *MemoryObjectStorage {
	if baseURL == "" {
		baseURL = "http://localhost:8080/storage"
	}
	return &MemoryObjectStorage{
		BaseURL: baseURL,
		objects: make(map[string][]byte),
	}
}

var _ artwork.ObjectStore = (*MemoryObjectStorage)(nil)

// Upload stores a copy of data
func (s *MemoryObjectStorage) Upload(_ context.Context, key string, data []byte, _ string) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

// GenerateUploadURL returns a placeholder upload URL
func (s *MemoryObjectStorage) GenerateUploadURL(_ context.Context, key, _ string, expiresIn time.Duration) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, errors.New("storage key is required")
	}
	expiresAt := time.Now().Add(expiresIn)
	return s.BaseURL + "/upload/" + key + "?expires=" + expiresAt.Format(time.RFC3339), expiresAt, nil
}

// DownloadURL returns a local preview URL
func (s *MemoryObjectStorage) DownloadURL(_ context.Context, key string) (string, error) {
	if key == "" {
		return "", errors.New("storage key is required")
	}
	return s.BaseURL + "/download/" + key, nil
}

// PublicURL always fails: memory objects are not reachable by the vendor
func (s *MemoryObjectStorage) PublicURL(context.Context, string) (string, error) {
	return "", artwork.ErrPublicURLUnavailable
}

// ObjectExists reports whether key was uploaded
func (s *MemoryObjectStorage) ObjectExists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("storage key is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// Get returns a stored object
func (s *MemoryObjectStorage) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}
