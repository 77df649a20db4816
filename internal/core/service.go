// Package core is the document routing engine: it creates documents, moves
// them between department staff, gates edits on ownership and status, keeps
// attachments and the Dak register, and records every mutation in the
// document history and the department master log.
package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"officeflow/internal/blob"
	"officeflow/internal/collection"
	"officeflow/internal/ident"
	"officeflow/internal/infra/persistence/jsonfile"
)

// Service exposes the document, Dak register and collection operations of
// every department below one data root.
type Service struct {
	root        string
	collections *collection.Views
	blobs       blob.Store
	alloc       *ident.Allocator
	perms       Permissions
	validate    *validator.Validate

	logger  *zap.Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	clock   Clock

	retries int

	// writeDocument rewrites an existing document file.
	writeDocument func(path string, v any) error
}

// Option configures a Service.
type Option func(*Service)

// WithCollectionBackend stores collections in backend instead of JSON files below the root.
func WithCollectionBackend(backend collection.Backend) Option {
	return func(s *Service) {
		if backend != nil {
			s.collections = collection.NewViews(backend)
		}
	}
}

// WithBlobStore keeps attachments in store instead of the filesystem below the root.
func WithBlobStore(store blob.Store) Option {
	return func(s *Service) { s.blobs = store }
}

// WithPermissions overrides the role-based admin check.
func WithPermissions(p Permissions) Option {
	return func(s *Service) { s.perms = p }
}

// WithAllocationRetries bounds how often id allocation rescans after a race.
func WithAllocationRetries(n int) Option {
	return func(s *Service) { s.retries = n }
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditRecorder receives an entry after every mutation.
func WithAuditRecorder(r AuditRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.audit = r
		}
	}
}

// WithMetricsRecorder observes operation latency and outcome.
func WithMetricsRecorder(r MetricsRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithTracer wraps operations in spans.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewService opens the engine over root, creating the directory if needed.
func NewService(root string, opts ...Option) (*Service, error) {
	if root == "" {
		root = "./storage"
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create data root: %w", err)
	}
	s := &Service{
		root:     root,
		validate: newValidator(),
		logger:   zap.NewNop(),
		audit:    noopAuditRecorder{},
		metrics:  noopMetricsRecorder{},
		tracer:   noopTracer{},
		clock:    ClockFunc(nil),

		writeDocument: jsonfile.Write,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.collections == nil {
		s.collections = collection.NewViews(jsonfile.NewStore(root, jsonfile.WithLogger(s.logger)))
	}
	if s.blobs == nil {
		store, err := blob.NewFilesystem(root)
		if err != nil {
			return nil, fmt.Errorf("open attachment store: %w", err)
		}
		s.blobs = store
	}
	if s.perms == nil {
		s.perms = NewRolePermissions(s.collections)
	}
	s.alloc = ident.NewAllocator(s.retries)
	s.logger = s.logger.With(zap.String("component", "core"))
	return s, nil
}

// Root returns the data root.
func (s *Service) Root() string { return s.root }

// Collections returns the collection views the service reads and writes.
func (s *Service) Collections() *collection.Views { return s.collections }

// Blobs returns the attachment store.
func (s *Service) Blobs() blob.Store { return s.blobs }

// Permissions returns the active permission checker.
func (s *Service) Permissions() Permissions { return s.perms }

// Close releases the collection backend.
func (s *Service) Close() error {
	return s.collections.Backend().Close()
}

func (s *Service) departmentDir(dept string) string {
	return filepath.Join(s.root, "departments", dept)
}

func (s *Service) documentsDir(dept string) string {
	return filepath.Join(s.departmentDir(dept), "documents")
}

func (s *Service) documentPath(dept, id string) string {
	return filepath.Join(s.documentsDir(dept), id+".json")
}

func (s *Service) masterLogPath(dept string) string {
	return filepath.Join(s.departmentDir(dept), "logs", "master_log.txt")
}

func (s *Service) today() string {
	return s.clock.Now().Format("2006-01-02")
}
