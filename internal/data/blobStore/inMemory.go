package blobStore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type InMemory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewInMemory() *InMemory {
	return &InMemory{blobs: make(map[string][]byte)}
}

func (m *InMemory) Put(ctx context.Context, p string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[cleanPath(p)] = append([]byte(nil), data...)
	return nil
}

func (m *InMemory) Get(ctx context.Context, p string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[cleanPath(p)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *InMemory) Delete(ctx context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, cleanPath(p))
	return nil
}

func (m *InMemory) Exists(ctx context.Context, p string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[cleanPath(p)]
	return ok, nil
}

func (m *InMemory) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	clean := cleanPrefix(prefix)
	var out []string
	for p := range m.blobs {
		if strings.HasPrefix(p, clean) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}
