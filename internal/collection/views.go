package collection

import (
	"context"
	"errors"

	"officeflow/pkg/domain"
)

// Views exposes filtered reads and id-based mutations over a Backend.
type Views struct {
	backend Backend
}

// NewViews wraps backend.
func NewViews(backend Backend) *Views {
	return &Views{backend: backend}
}

// Backend returns the wrapped backend.
func (v *Views) Backend() Backend { return v.backend }

// LoadActive returns the records of a collection that pass filter. Users and
// roles without a status read as active; the stored data is not rewritten.
func (v *Views) LoadActive(ctx context.Context, scope Scope, name domain.CollectionName, filter domain.RecordFilter) ([]domain.Record, error) {
	if _, err := Key(scope, name); err != nil {
		return nil, err
	}
	records, err := v.backend.Load(ctx, scope, name)
	if err != nil {
		return nil, wrap(name, "", err)
	}
	out := make([]domain.Record, 0, len(records))
	for _, rec := range records {
		if name.DefaultsStatus() {
			rec = rec.WithDefaultStatus()
		}
		if filter.Keep(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// FindByID returns the record with id when it passes filter.
func (v *Views) FindByID(ctx context.Context, scope Scope, name domain.CollectionName, id string, filter domain.RecordFilter) (domain.Record, error) {
	records, err := v.LoadActive(ctx, scope, name, filter)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.ID() == id {
			return rec, nil
		}
	}
	return nil, domain.NotFound(name.Entity(), id)
}

// Update exposes the raw locked read-modify-write of the backend.
func (v *Views) Update(ctx context.Context, scope Scope, name domain.CollectionName, fn Mutator) error {
	if _, err := Key(scope, name); err != nil {
		return err
	}
	return wrap(name, "", v.backend.Update(ctx, scope, name, fn))
}

// Append adds rec; its id must be non-empty and unused.
func (v *Views) Append(ctx context.Context, scope Scope, name domain.CollectionName, rec domain.Record) error {
	id := rec.ID()
	if id == "" {
		return domain.Invalid(name.Entity(), "", "id required")
	}
	return v.Update(ctx, scope, name, func(records []domain.Record) ([]domain.Record, error) {
		for _, existing := range records {
			if existing.ID() == id {
				return nil, domain.Invalid(name.Entity(), id, "duplicate id")
			}
		}
		return append(records, rec), nil
	})
}

// UpdateByID replaces the record with id by the mutator's result and returns it.
// The mutator may not change the id.
func (v *Views) UpdateByID(ctx context.Context, scope Scope, name domain.CollectionName, id string, mutator func(domain.Record) (domain.Record, error)) (domain.Record, error) {
	var updated domain.Record
	err := v.Update(ctx, scope, name, func(records []domain.Record) ([]domain.Record, error) {
		for i, rec := range records {
			if rec.ID() != id {
				continue
			}
			next, err := mutator(rec.Clone())
			if err != nil {
				return nil, err
			}
			if next.ID() != id {
				return nil, domain.Invalid(name.Entity(), id, "id cannot change")
			}
			records[i] = next
			updated = next
			return records, nil
		}
		return nil, domain.NotFound(name.Entity(), id)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveByID deletes the record with id.
func (v *Views) RemoveByID(ctx context.Context, scope Scope, name domain.CollectionName, id string) error {
	return v.Update(ctx, scope, name, func(records []domain.Record) ([]domain.Record, error) {
		for i, rec := range records {
			if rec.ID() == id {
				return append(records[:i], records[i+1:]...), nil
			}
		}
		return nil, domain.NotFound(name.Entity(), id)
	})
}

// Replace overwrites the whole collection.
func (v *Views) Replace(ctx context.Context, scope Scope, name domain.CollectionName, records []domain.Record) error {
	if records == nil {
		records = []domain.Record{}
	}
	return v.Update(ctx, scope, name, func([]domain.Record) ([]domain.Record, error) {
		return records, nil
	})
}

func wrap(name domain.CollectionName, id string, err error) error {
	if err == nil || domain.KindOf(err) != nil {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.PersistFailure(name.Entity(), id, err)
}
