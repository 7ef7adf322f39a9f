package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store. Useful for testing and demos.
type MemoryStore struct {
	bucket string

	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	content  []byte
	modified time.Time
}

// NewMemoryStore creates an empty in-memory bucket.
func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{
		bucket:  bucket,
		objects: make(map[string]memoryObject),
	}
}

// Name returns the provider name.
func (s *MemoryStore) Name() string {
	return "memory"
}

// Bucket returns the bucket name.
func (s *MemoryStore) Bucket() string {
	return s.bucket
}

// Put stores an object.
func (s *MemoryStore) Put(key string, r io.Reader) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{content: content, modified: time.Now()}
	return nil
}

// List returns matching objects sorted by key.
func (s *MemoryStore) List(_ context.Context, prefix string, max int) ([]ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if max > 0 && len(keys) > max {
		keys = keys[:max]
	}

	objects := make([]ObjectInfo, 0, len(keys))
	for _, key := range keys {
		obj := s.objects[key]
		objects = append(objects, ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.content)),
			LastModified: obj.modified,
		})
	}
	return objects, nil
}

// Get opens an object.
func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(obj.content)), nil
}

// Copy duplicates an object.
func (s *MemoryStore) Copy(_ context.Context, src, dest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[src]
	if !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, src)
	}
	s.objects[dest] = memoryObject{
		content:  bytes.Clone(obj.content),
		modified: time.Now(),
	}
	return nil
}

// Delete removes an object.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	delete(s.objects, key)
	return nil
}

// Exists always reports true.
func (s *MemoryStore) Exists(context.Context) (bool, error) {
	return true, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
