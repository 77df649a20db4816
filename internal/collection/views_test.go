package collection_test

import (
	"context"
	"errors"
	"testing"

	"officeflow/internal/collection"
	"officeflow/internal/infra/persistence/memory"
	"officeflow/pkg/domain"
)

type failingBackend struct {
	collection.Backend
	err error
}

func (f failingBackend) Load(context.Context, collection.Scope, domain.CollectionName) ([]domain.Record, error) {
	return nil, f.err
}

func (f failingBackend) Update(context.Context, collection.Scope, domain.CollectionName, collection.Mutator) error {
	return f.err
}

func seedUsers(t *testing.T, views *collection.Views, scope collection.Scope) {
	t.Helper()
	users := []domain.Record{
		{"id": "alice", "name": "Alice"},
		{"id": "bob", "name": "Bob", "status": "suspended"},
		{"id": "carol", "name": "Carol", "status": "archived"},
	}
	if err := views.Replace(context.Background(), scope, domain.CollectionUsers, users); err != nil {
		t.Fatalf("replace: %v", err)
	}
}

func TestLoadActiveFilters(t *testing.T) {
	ctx := context.Background()
	views := collection.NewViews(memory.NewStore())
	scope := collection.Department("d1")
	seedUsers(t, views, scope)

	all, err := views.LoadActive(ctx, scope, domain.CollectionUsers, domain.FilterAll)
	if err != nil || len(all) != 3 {
		t.Fatalf("all: %v %d", err, len(all))
	}
	if all[0].String("status") != "active" {
		t.Fatalf("expected defaulted status, got %+v", all[0])
	}
	manageable, _ := views.LoadActive(ctx, scope, domain.CollectionUsers, domain.FilterManageable)
	if len(manageable) != 2 {
		t.Fatalf("expected archived hidden, got %d", len(manageable))
	}
	selectable, _ := views.LoadActive(ctx, scope, domain.CollectionUsers, domain.FilterSelectable)
	if len(selectable) != 1 || selectable[0].ID() != "alice" {
		t.Fatalf("expected only alice selectable, got %+v", selectable)
	}
	stored, _ := views.Backend().Load(ctx, scope, domain.CollectionUsers)
	if _, ok := stored[0]["status"]; ok {
		t.Fatalf("defaulting must not rewrite stored data")
	}
}

func TestFindByIDRespectsFilter(t *testing.T) {
	ctx := context.Background()
	views := collection.NewViews(memory.NewStore())
	scope := collection.Department("d1")
	seedUsers(t, views, scope)
	if _, err := views.FindByID(ctx, scope, domain.CollectionUsers, "bob", domain.FilterAll); err != nil {
		t.Fatalf("find bob: %v", err)
	}
	if _, err := views.FindByID(ctx, scope, domain.CollectionUsers, "bob", domain.FilterSelectable); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected suspended user hidden, got %v", err)
	}
}

func TestAppendUpdateRemove(t *testing.T) {
	ctx := context.Background()
	views := collection.NewViews(memory.NewStore())
	scope := collection.Department("d1")
	name := domain.CollectionContractors

	if err := views.Append(ctx, scope, name, domain.Record{"name": "no id"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected id required, got %v", err)
	}
	if err := views.Append(ctx, scope, name, domain.Record{"id": "c1", "name": "Acme"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := views.Append(ctx, scope, name, domain.Record{"id": "c1", "name": "Dup"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	updated, err := views.UpdateByID(ctx, scope, name, "c1", func(r domain.Record) (domain.Record, error) {
		r["name"] = "Acme Ltd"
		return r, nil
	})
	if err != nil || updated.Name() != "Acme Ltd" {
		t.Fatalf("update: %v %+v", err, updated)
	}
	if _, err := views.UpdateByID(ctx, scope, name, "c1", func(r domain.Record) (domain.Record, error) {
		r["id"] = "c2"
		return r, nil
	}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected id change rejection, got %v", err)
	}
	if _, err := views.UpdateByID(ctx, scope, name, "zz", func(r domain.Record) (domain.Record, error) { return r, nil }); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := views.RemoveByID(ctx, scope, name, "c1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := views.RemoveByID(ctx, scope, name, "c1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second remove, got %v", err)
	}
}

func TestScopeValidation(t *testing.T) {
	ctx := context.Background()
	views := collection.NewViews(memory.NewStore())
	if _, err := views.LoadActive(ctx, collection.System(), domain.CollectionUsers, domain.FilterAll); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("users are not system-scoped, got %v", err)
	}
	if _, err := views.LoadActive(ctx, collection.Department("../x"), domain.CollectionUsers, domain.FilterAll); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected malformed department, got %v", err)
	}
	if recs, err := views.LoadActive(ctx, collection.System(), domain.CollectionTemplates, domain.FilterAll); err != nil || len(recs) != 0 {
		t.Fatalf("missing collection should be empty: %v %d", err, len(recs))
	}
	key, err := collection.Key(collection.Department("d1"), domain.CollectionDakRegister)
	if err != nil || key != "departments/d1/data/dak_register.json" {
		t.Fatalf("unexpected key %q %v", key, err)
	}
}

func TestBackendErrorsBecomePersistFailures(t *testing.T) {
	ctx := context.Background()
	views := collection.NewViews(failingBackend{err: errors.New("disk full")})
	scope := collection.Department("d1")
	if _, err := views.LoadActive(ctx, scope, domain.CollectionRoles, domain.FilterAll); !errors.Is(err, domain.ErrPersist) {
		t.Fatalf("expected persist failure, got %v", err)
	}
	if err := views.Append(ctx, scope, domain.CollectionRoles, domain.Record{"id": "r1"}); !errors.Is(err, domain.ErrPersist) {
		t.Fatalf("expected persist failure, got %v", err)
	}
	views = collection.NewViews(failingBackend{err: context.Canceled})
	if err := views.Append(ctx, scope, domain.CollectionRoles, domain.Record{"id": "r1"}); !errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrPersist) {
		t.Fatalf("expected cancellation to pass through, got %v", err)
	}
}
