// Package store persists user-submitted property listings through a
// simple key-value blob store, mirroring how the browser front end keeps
// the collection under a single local-storage key.
package store

import (
	"os"
	"path/filepath"
	"sync"
)

// BlobStore is the key-value persistence capability the property service
// writes through. GetItem reports presence with its second return rather
// than an error; a missing key is an ordinary state, not a failure.
type BlobStore interface {
	GetItem(key string) (string, bool)
	SetItem(key, value string) error
	RemoveItem(key string)
}

// FileBlobStore keeps each key as a JSON file under a data directory.
type FileBlobStore struct {
	dir string
}

// NewFileBlobStore creates a file-backed blob store rooted at dir.
func NewFileBlobStore(dir string) *FileBlobStore {
	return &FileBlobStore{dir: dir}
}

func (s *FileBlobStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// GetItem reads a key's value from disk.
func (s *FileBlobStore) GetItem(key string) (string, bool) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// SetItem writes a key's value to disk, creating the directory as needed.
func (s *FileBlobStore) SetItem(key, value string) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(s.path(key), []byte(value), 0644)
}

// RemoveItem deletes a key. Removing an absent key is a no-op.
func (s *FileBlobStore) RemoveItem(key string) {
	os.Remove(s.path(key))
}

// MemBlobStore is an in-memory blob store for tests.
type MemBlobStore struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemBlobStore creates an empty in-memory blob store.
func NewMemBlobStore() *MemBlobStore {
	return &MemBlobStore{items: make(map[string]string)}
}

func (s *MemBlobStore) GetItem(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

func (s *MemBlobStore) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

func (s *MemBlobStore) RemoveItem(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}
