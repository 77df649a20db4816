package jsonfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"officeflow/internal/collection"
	"officeflow/pkg/domain"
)

// Compile-time contract assertion.
var _ collection.Backend = (*Store)(nil)

// Store is the file-backed collection backend: one JSON array per collection
// laid out under root exactly as collection.Key describes.
type Store struct {
	root string
	log  *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger reports collection files that Update had to rewrite from empty.
func WithLogger(log *zap.Logger) StoreOption {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// NewStore returns a store rooted at root.
func NewStore(root string, opts ...StoreOption) *Store {
	s := &Store{root: root, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the data root.
func (s *Store) Root() string { return s.root }

// Driver implements collection.Backend.
func (s *Store) Driver() collection.Driver { return collection.DriverFile }

// Close implements collection.Backend.
func (s *Store) Close() error { return nil }

// Path returns the absolute file path of a collection.
func (s *Store) Path(scope collection.Scope, name domain.CollectionName) (string, error) {
	key, err := collection.Key(scope, name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Load implements collection.Backend. Missing or malformed files read as empty.
func (s *Store) Load(ctx context.Context, scope collection.Scope, name domain.CollectionName) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.Path(scope, name)
	if err != nil {
		return nil, err
	}
	records, ok := ReadList(path)
	if !ok {
		return []domain.Record{}, nil
	}
	return records, nil
}

// Update implements collection.Backend under the file lock of the collection.
func (s *Store) Update(ctx context.Context, scope collection.Scope, name domain.CollectionName, fn collection.Mutator) error {
	path, err := s.Path(scope, name)
	if err != nil {
		return err
	}
	return WithLock(ctx, path, func() error {
		records, err := readCollection(path)
		if err != nil {
			s.log.Warn("collection file unreadable, rewriting from empty",
				zap.String("path", path), zap.Error(err))
			records = []domain.Record{}
		}
		next, err := fn(records)
		if err != nil {
			return err
		}
		if next == nil {
			next = []domain.Record{}
		}
		return Write(path, next)
	})
}

// readCollection is ReadList with the reason for a failed read. A missing file
// is an empty collection.
func readCollection(path string) ([]domain.Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []domain.Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	var list []domain.Record
	if err := Decode(data, &list); err != nil {
		return nil, err
	}
	if list == nil {
		return nil, errors.New("not a JSON array")
	}
	for _, rec := range list {
		if rec == nil {
			return nil, errors.New("array element is not an object")
		}
	}
	return list, nil
}
