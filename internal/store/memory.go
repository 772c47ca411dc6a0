package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryProvider is an in-process backend used by tests and as a harness
// for local experimentation. It honors the same contract as the durable
// backends.
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string]map[string]string)}
}

func (p *MemoryProvider) Namespace(name string) Store {
	return &memoryStore{provider: p, namespace: name}
}

func (p *MemoryProvider) Close() error {
	return nil
}

type memoryStore struct {
	provider  *MemoryProvider
	namespace string
}

func (s *memoryStore) ns() map[string]string {
	m, ok := s.provider.data[s.namespace]
	if !ok {
		m = make(map[string]string)
		s.provider.data[s.namespace] = m
	}
	return m
}

func (s *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.provider.mu.RLock()
	defer s.provider.mu.RUnlock()
	value, ok := s.provider.data[s.namespace][key]
	return value, ok, nil
}

func (s *memoryStore) Set(_ context.Context, key, value string) error {
	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()
	s.ns()[key] = value
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()
	delete(s.ns(), key)
	return nil
}

func (s *memoryStore) List(_ context.Context, prefix string) ([]string, error) {
	s.provider.mu.RLock()
	defer s.provider.mu.RUnlock()
	var keys []string
	for key := range s.provider.data[s.namespace] {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
