package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MemoryStore keeps blobs in memory. Used in tests and when no FTP server is
// configured for local development.
type MemoryStore struct {
	baseURL string

	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		blobs:   make(map[string][]byte),
	}
}

func (s *MemoryStore) Put(_ context.Context, key string, data io.Reader) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	s.mu.Lock()
	s.blobs[key] = b
	s.mu.Unlock()
	return s.baseURL + "/" + key, nil
}

func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	return b, ok
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.blobs, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
