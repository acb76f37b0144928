package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStorage keeps objects in process. Used by tests and local runs
// without S3.
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: map[string][]byte{}}
}

func (m *MemoryStorage) Put(_ context.Context, key, _ string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), body...)
	return nil
}

func (m *MemoryStorage) PresignGet(_ context.Context, key string, expiresIn time.Duration) (string, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return "", time.Time{}, fmt.Errorf("object %s not found", key)
	}
	return "memory://" + key, time.Now().UTC().Add(expiresIn), nil
}

func (m *MemoryStorage) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[key]
	return body, ok
}
