package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process medium. A positive Quota caps the summed length of
// keys and values, mimicking browser storage limits.
type Memory struct {
	Quota int

	mu   sync.Mutex
	data map[string]string
	size int
}

// NewMemory returns an empty unlimited Memory medium.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]string)
	}
	size := m.size + len(value)
	if old, ok := m.data[key]; ok {
		size -= len(old)
	} else {
		size += len(key)
	}
	if m.Quota > 0 && size > m.Quota {
		return ErrQuotaExceeded
	}
	m.data[key] = value
	m.size = size
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data[key]; ok {
		m.size -= len(key) + len(old)
		delete(m.data, key)
	}
	return nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
