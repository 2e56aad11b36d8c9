package store

import (
	"context"
	"strconv"
	"sync"
)

// MapStore is the in-memory backend used in tests and single-shot runs.
type MapStore struct {
	mu sync.Mutex
	m  map[string][]byte
}

func NewMapStore() *MapStore {
	return &MapStore{
		m: make(map[string][]byte),
	}
}

var _ Store = (*MapStore)(nil)

func (s *MapStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, exists := s.m[key]
	return v, exists, nil
}

func (s *MapStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *MapStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *MapStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, _ := strconv.ParseInt(string(s.m[key]), 10, 64)
	n++
	s.m[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}
