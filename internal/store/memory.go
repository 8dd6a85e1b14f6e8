package store

import (
	"context"
	"slices"
	"sync"
)

// Memory is an in-process KV. It backs tests and single-process runs.
type Memory struct {
	mu      sync.RWMutex
	values  map[string]string
	members map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		values:  make(map[string]string, 256),
		members: make(map[string][]string, 64),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.members, key)
	return nil
}

// Exists reports whether key holds a value or is a non-empty collection.
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.values[key]; ok {
		return true, nil
	}
	return len(m.members[key]) > 0, nil
}

func (m *Memory) Members(_ context.Context, collection string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.members[collection]), nil
}

func (m *Memory) AddMember(_ context.Context, collection, member string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.members[collection]
	if i := slices.Index(list, member); i >= 0 {
		return i, nil
	}
	m.members[collection] = append(list, member)
	return len(list), nil
}

func (m *Memory) RemoveMember(_ context.Context, collection, member string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.members[collection]
	i := slices.Index(list, member)
	if i < 0 {
		return -1, nil
	}
	list = slices.Delete(list, i, i+1)
	if len(list) == 0 {
		delete(m.members, collection)
	} else {
		m.members[collection] = list
	}
	return i, nil
}
