package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Storage is the persistent client-side key store the tracker keeps
// its session ID and the guest wishlist in. Values survive restarts
// until the storage is cleared.
type Storage interface {
	Get(key string, out interface{}) (bool, error)
	Set(key string, value interface{}) error
	Delete(key string) error
}

// FileStorage persists keys as a single JSON document on disk.
type FileStorage struct {
	path string
	mu   sync.Mutex
	data map[string]json.RawMessage
}

// NewFileStorage loads (or creates) the backing file.
func NewFileStorage(path string) (*FileStorage, error) {
	fs := &FileStorage{
		path: path,
		data: make(map[string]json.RawMessage),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tracker storage: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fs.data); err != nil {
			return nil, fmt.Errorf("failed to parse tracker storage: %w", err)
		}
	}
	return fs, nil
}

// Get reads one key into out; the second return reports presence.
func (fs *FileStorage) Get(key string, out interface{}) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	raw, ok := fs.data[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode storage key %q: %w", key, err)
	}
	return true, nil
}

// Set writes one key and persists the whole document.
func (fs *FileStorage) Set(key string, value interface{}) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode storage key %q: %w", key, err)
	}
	fs.data[key] = raw
	return fs.persist()
}

// Delete removes one key and persists.
func (fs *FileStorage) Delete(key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	delete(fs.data, key)
	return fs.persist()
}

func (fs *FileStorage) persist() error {
	raw, err := json.Marshal(fs.data)
	if err != nil {
		return fmt.Errorf("failed to encode tracker storage: %w", err)
	}
	if dir := filepath.Dir(fs.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create storage dir: %w", err)
		}
	}
	if err := os.WriteFile(fs.path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write tracker storage: %w", err)
	}
	return nil
}

// MemoryStorage is an in-process Storage for tests and ephemeral use.
type MemoryStorage struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]json.RawMessage)}
}

// Get reads one key into out; the second return reports presence.
func (ms *MemoryStorage) Get(key string, out interface{}) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	raw, ok := ms.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

// Set writes one key.
func (ms *MemoryStorage) Set(key string, value interface{}) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	ms.data[key] = raw
	return nil
}

// Delete removes one key.
func (ms *MemoryStorage) Delete(key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.data, key)
	return nil
}
