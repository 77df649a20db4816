package core

import (
	"context"
	"path/filepath"
	"strings"

	"officeflow/internal/collection"
	"officeflow/internal/ident"
	"officeflow/pkg/domain"
)

// LoadCollection returns the records of a collection that pass filter.
func (s *Service) LoadCollection(ctx context.Context, scope collection.Scope, name domain.CollectionName, filter domain.RecordFilter) ([]domain.Record, error) {
	return s.collections.LoadActive(ctx, scope, name, filter)
}

// SaveCollection replaces a whole collection. Every record needs a unique id.
func (s *Service) SaveCollection(ctx context.Context, scope collection.Scope, name domain.CollectionName, records []domain.Record) error {
	return s.observe(ctx, call{op: opSaveCollection, dept: scope.DepartmentID(), entity: string(name)}, func(ctx context.Context) (string, error) {
		seen := make(map[string]struct{}, len(records))
		for _, rec := range records {
			id := rec.ID()
			if id == "" {
				return "", domain.Invalid(name.Entity(), "", "id required")
			}
			if _, dup := seen[id]; dup {
				return "", domain.Invalid(name.Entity(), id, "duplicate id")
			}
			seen[id] = struct{}{}
		}
		return string(name), s.collections.Replace(ctx, scope, name, records)
	})
}

// AllocateID returns an opaque 32-hex-character identifier.
func (s *Service) AllocateID() string { return ident.RandomID() }

// AllocateScopedID reserves the next <category>_<year>_<n> id among the
// files of dir (relative to the data root) and hands it to persist while the
// allocation lock is held. persist must create <dir>/<id>.json exclusively.
func (s *Service) AllocateScopedID(ctx context.Context, dir, category string, width int, persist func(id, path string) error) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(dir))
	if dir == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", domain.Invalid(domain.EntityCollection, dir, "directory must stay below the data root")
	}
	if !collection.ValidSegment(category) || strings.Contains(category, "_") {
		return "", domain.Invalid(domain.EntityCollection, category, "malformed category")
	}
	abs := filepath.Join(s.root, clean)
	id, err := s.alloc.Reserve(ctx, abs, category, s.clock.Now().Year(), width, func(id string) error {
		return persist(id, filepath.Join(abs, id+".json"))
	})
	if err != nil {
		return "", persistErr(domain.EntityCollection, category, err)
	}
	return id, nil
}
