// Package kv provides key-value persistence backends for sync state.
package kv

import (
	"fmt"
	"io"
	"sync"
)

// Store is the load/save contract the identity map persists through.
type Store interface {
	// Load returns nil data and a nil error for a key that was never saved.
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns the backend named by backend rooted at path. The returned
// closer releases the backend's resources.
func Open(backend, path string) (Store, io.Closer, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(path), nopCloser{}, nil
	case BackendSQLite:
		s, err := NewSQLiteStore(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case BackendMemory:
		return NewMemory(), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q (valid: file, sqlite, memory)", backend)
	}
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Load(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Save(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}
