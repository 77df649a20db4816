// Package memory keeps attachment binaries in process memory. It backs tests
// and the memory blob driver, and can inject put and delete failures.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"officeflow/internal/blob/core"
)

type object struct {
	info core.Info
	data []byte
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	faults  struct {
		put    func(key string) error
		delete func(key string) error
	}
}

var _ core.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store { return &Store{objects: make(map[string]object)} }

// FailPuts makes Put fail with fn(key) when it is non-nil. The body is still
// consumed first, as a remote store would. A nil fn clears the fault.
func (s *Store) FailPuts(fn func(key string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults.put = fn
}

// FailDeletes makes Delete fail with fn(key) when it is non-nil, leaving the
// object in place.
func (s *Store) FailDeletes(fn func(key string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults.delete = fn
}

func (s *Store) Driver() core.Driver { return core.DriverMemory }

func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.objects[key]; taken {
		return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrExists)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, fmt.Errorf("read blob %s: %w", key, err)
	}
	if fail := s.faults.put; fail != nil {
		if err := fail(key); err != nil {
			return core.Info{}, err
		}
	}
	obj := object{
		info: core.Info{
			Key:          key,
			Size:         int64(len(data)),
			ContentType:  opts.ContentType,
			Metadata:     maps.Clone(opts.Metadata),
			LastModified: time.Now().UTC(),
		},
		data: data,
	}
	s.objects[key] = obj
	return obj.snapshot(), nil
}

func (s *Store) lookup(key string) (object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return object{}, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	return obj, nil
}

func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	return obj.snapshot(), io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return core.Info{}, err
	}
	return obj.snapshot(), nil
}

// Delete reports whether the key was present.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fail := s.faults.delete; fail != nil {
		if err := fail(key); err != nil {
			return false, err
		}
	}
	if _, ok := s.objects[key]; !ok {
		return false, nil
	}
	delete(s.objects, key)
	return true, nil
}

// List returns the objects under prefix ordered by key.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := slices.Sorted(maps.Keys(s.objects))
	out := make([]core.Info, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, s.objects[k].snapshot())
		}
	}
	return out, nil
}

// PresignURL is unsupported; memory objects have no URL.
func (s *Store) PresignURL(context.Context, string, core.SignedURLOptions) (string, error) {
	return "", core.ErrUnsupported
}

func (o object) snapshot() core.Info {
	info := o.info
	info.Metadata = maps.Clone(o.info.Metadata)
	return info
}
