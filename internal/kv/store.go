// Package kv implements a generic persistent key-value contract: load once
// at init, keep an in-memory map as the single source of truth, mark a dirty
// flag on every write, and flush the whole file under lock on a schedule.
// Reads never block on I/O. The credential pool and the IP admission
// subsystem do not use it; they keep their own file persistence.
package kv

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Backend persists a raw byte blob keyed by a single logical name (one file,
// or one Redis key, holding the whole serialized map).
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Store[T] is a generic in-memory map of string -> *T, backed by a Backend
// that is only touched by Load (at construction) and by the periodic flush.
type Store[T any] struct {
	mu      sync.RWMutex
	items   map[string]*T
	dirty   bool
	backend Backend

	flushInterval time.Duration
	stop          chan struct{}
	stopped       sync.Once
}

// Open loads the store's backing data (tolerating a missing file/key, which
// yields an empty map) and starts the periodic flush loop.
func Open[T any](ctx context.Context, backend Backend, flushInterval time.Duration) (*Store[T], error) {
	s := &Store[T]{
		items:         make(map[string]*T),
		backend:       backend,
		flushInterval: flushInterval,
		stop:          make(chan struct{}),
	}

	data, err := backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.items); err != nil {
			return nil, err
		}
	}

	if flushInterval > 0 {
		go s.flushLoop()
	}
	return s, nil
}

// Get returns a copy-free pointer to the stored value, or nil.
func (s *Store[T]) Get(key string) (*T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Set stores value under key and marks the store dirty.
func (s *Store[T]) Set(key string, value *T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	s.dirty = true
}

// Delete removes key and marks the store dirty if it existed.
func (s *Store[T]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; ok {
		delete(s.items, key)
		s.dirty = true
	}
}

// MarkDirty lets a caller that mutated a value in place (via Get) signal
// that a flush is needed, without re-inserting the pointer.
func (s *Store[T]) MarkDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// Range calls fn for every key/value currently stored, under the read lock.
func (s *Store[T]) Range(fn func(key string, value *T) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.items {
		if !fn(k, v) {
			return
		}
	}
}

// Len returns the number of stored entries.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Flush writes the current map to the backend if dirty, or always when
// force is true. It is safe to call concurrently with Get/Set/Delete.
func (s *Store[T]) Flush(ctx context.Context, force bool) error {
	s.mu.Lock()
	if !s.dirty && !force {
		s.mu.Unlock()
		return nil
	}
	data, err := json.Marshal(s.items)
	s.dirty = false
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.backend.Save(ctx, data)
}

func (s *Store[T]) flushLoop() {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Flush(context.Background(), false); err != nil {
				log.WithError(err).Warn("kv store: periodic flush failed")
			}
		case <-s.stop:
			return
		}
	}
}

// Close stops the flush loop and performs one final forced flush.
func (s *Store[T]) Close(ctx context.Context) error {
	s.stopped.Do(func() { close(s.stop) })
	return s.Flush(ctx, true)
}

// FileBackend persists the whole map as a single JSON file, rewritten
// atomically (tmp + rename) on every save.
type FileBackend struct {
	Path string
}

func (f *FileBackend) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (f *FileBackend) Save(_ context.Context, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return err
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.Path)
}
