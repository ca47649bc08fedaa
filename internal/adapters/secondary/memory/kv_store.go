package memory

import (
	"context"
	"sync"

	apperrors "github.com/lorrc/liveops/internal/core/errors"
	"github.com/lorrc/liveops/internal/core/ports"
)

// KeyValueStore keeps values in process memory. Used when no durable
// storage is configured and in tests.
type KeyValueStore struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ ports.KeyValueStore = (*KeyValueStore)(nil)

func NewKeyValueStore() *KeyValueStore {
	return &KeyValueStore{data: make(map[string]string)}
}

func (s *KeyValueStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return "", apperrors.ErrKeyNotFound
	}
	return v, nil
}

func (s *KeyValueStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
	return nil
}

func (s *KeyValueStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

func (s *KeyValueStore) Ping(ctx context.Context) error {
	return nil
}
