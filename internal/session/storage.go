package session

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Storage keys persisted for a session. They are always cleared together.
const (
	KeyToken        = "token"
	KeyUser         = "user"
	KeyRefreshToken = "refreshToken"
)

// Errors
var (
	ErrKeyNotFound = errors.New("session key not found")
)

// Storage defines the interface for durable client-side session state
type Storage interface {
	// Get returns the value for a key, or ErrKeyNotFound
	Get(key string) (string, error)
	// Set writes a key
	Set(key, value string) error
	// Delete removes keys; missing keys are not an error
	Delete(keys ...string) error
	// Available reports whether durable storage can be used at all.
	// Hydration is a no-op when it cannot.
	Available() bool
}

// FileStorage persists session keys as files under a state directory,
// one file per key, readable only by the owning user.
type FileStorage struct {
	dir string
}

// NewFileStorage creates a file-backed storage rooted at dir
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

// DefaultStateDir returns the per-user state directory
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cardtable"
	}
	return filepath.Join(home, ".cardtable")
}

func (f *FileStorage) Get(key string) (string, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrKeyNotFound
		}
		return "", err
	}
	return string(data), nil
}

func (f *FileStorage) Set(key, value string) error {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(f.dir, key), []byte(value), 0600)
}

func (f *FileStorage) Delete(keys ...string) error {
	var firstErr error
	for _, key := range keys {
		if err := os.Remove(filepath.Join(f.dir, key)); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (f *FileStorage) Available() bool {
	return true
}

// MemoryStorage is an in-memory Storage for tests. SetErr injects a write
// failure; Unavailable models a context with no durable storage.
type MemoryStorage struct {
	mu          sync.Mutex
	values      map[string]string
	SetErr      error
	Unavailable bool
}

// NewMemoryStorage creates an empty in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return value, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *MemoryStorage) Available() bool {
	return !m.Unavailable
}
