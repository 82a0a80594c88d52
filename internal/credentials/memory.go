package credentials

import (
	"sync"

	"github.com/rs/zerolog"
)

type memoryKV struct {
	mu     sync.RWMutex
	values map[string]string
}

func (m *memoryKV) get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key], nil
}

func (m *memoryKV) set(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *memoryKV) del(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// NewMemoryStore returns a process-local Store.
func NewMemoryStore() Store {
	return &kvStore{
		kv:     &memoryKV{values: make(map[string]string)},
		logger: zerolog.Nop(),
	}
}

// NewMemoryStoreWith returns a process-local Store seeded with raw values,
// keyed by the Key* constants.
func NewMemoryStoreWith(values map[string]string, logger zerolog.Logger) Store {
	m := &memoryKV{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return &kvStore{kv: m, logger: logger}
}
