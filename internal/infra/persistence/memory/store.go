// Package memory provides an in-memory collection backend used for tests and
// ephemeral environments.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"officeflow/internal/collection"
	"officeflow/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the backend interface.
var _ collection.Backend = (*Store)(nil)

// Snapshot is a copy of every stored collection keyed by collection.Key.
type Snapshot map[string][]domain.Record

// Store keeps each collection as an encoded payload so callers never share
// maps with the stored state.
type Store struct {
	mu      sync.Mutex
	buckets map[string][]byte
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{buckets: make(map[string][]byte)}
}

// Driver implements collection.Backend.
func (s *Store) Driver() collection.Driver { return collection.DriverMemory }

// Close implements collection.Backend.
func (s *Store) Close() error { return nil }

// Load implements collection.Backend.
func (s *Store) Load(ctx context.Context, scope collection.Scope, name domain.CollectionName) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := collection.Key(scope, name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	payload := s.buckets[key]
	s.mu.Unlock()
	return decode(key, payload)
}

// Update implements collection.Backend. The store-wide mutex serialises all writers.
func (s *Store) Update(ctx context.Context, scope collection.Scope, name domain.CollectionName, fn collection.Mutator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := collection.Key(scope, name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := decode(key, s.buckets[key])
	if err != nil {
		return err
	}
	next, err := fn(records)
	if err != nil {
		return err
	}
	if next == nil {
		next = []domain.Record{}
	}
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.buckets[key] = payload
	return nil
}

// ExportState returns a deep copy of all collections.
func (s *Store) ExportState() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(Snapshot, len(s.buckets))
	for key, payload := range s.buckets {
		records, err := decode(key, payload)
		if err != nil {
			continue
		}
		out[key] = records
	}
	return out
}

// ImportState replaces all collections with the snapshot content.
func (s *Store) ImportState(snapshot Snapshot) {
	buckets := make(map[string][]byte, len(snapshot))
	for key, records := range snapshot {
		payload, err := json.Marshal(records)
		if err != nil {
			continue
		}
		buckets[key] = payload
	}
	s.mu.Lock()
	s.buckets = buckets
	s.mu.Unlock()
}

func decode(key string, payload []byte) ([]domain.Record, error) {
	records, err := domain.DecodeRecords(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return records, nil
}
