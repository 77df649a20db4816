package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"officeflow/internal/collection"
	"officeflow/internal/infra/persistence/jsonfile"
	"officeflow/internal/infra/persistence/memory"
	"officeflow/pkg/domain"
)

func TestRolePermissions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	scope := collection.Department("d1")
	if err := svc.Collections().Replace(ctx, scope, domain.CollectionRoles, []domain.Record{
		{"id": "head_clerk", "permissions": []any{"admin.d1"}},
		{"id": "retired", "permissions": []any{"admin.d1"}, "status": "archived"},
	}); err != nil {
		t.Fatalf("seed roles: %v", err)
	}
	if err := svc.Collections().Append(ctx, scope, domain.CollectionUsers, domain.Record{"id": "erin", "role_id": "head_clerk"}); err != nil {
		t.Fatalf("seed erin: %v", err)
	}
	if err := svc.Collections().Append(ctx, scope, domain.CollectionUsers, domain.Record{"id": "frank", "roles": []any{"retired"}}); err != nil {
		t.Fatalf("seed frank: %v", err)
	}
	if err := svc.Collections().Append(ctx, scope, domain.CollectionUsers, domain.Record{"id": "root", "roles": []any{SuperadminRole}}); err != nil {
		t.Fatalf("seed root: %v", err)
	}
	if err := svc.Collections().Append(ctx, scope, domain.CollectionUsers, domain.Record{"id": "gone", "roles": []any{"admin.d1"}, "status": "suspended"}); err != nil {
		t.Fatalf("seed gone: %v", err)
	}
	cases := map[string]bool{"admin": true, "erin": true, "root": true, "frank": false, "gone": false, "alice": false, "": false, "nobody": false}
	for user, want := range cases {
		got, err := svc.Permissions().IsAdmin(ctx, "d1", user)
		if err != nil || got != want {
			t.Fatalf("IsAdmin(%q) = %v, %v; want %v", user, got, err, want)
		}
	}
	if ok, _ := svc.Permissions().IsAdmin(ctx, "d2", "admin"); ok {
		t.Fatalf("admin.d1 must not administer d2")
	}
}

func TestCustomPermissions(t *testing.T) {
	svc := newTestService(t, WithPermissions(staticPermissions{"bob": true}))
	doc := mustCreate(t, svc, "alice", "Memo")
	if _, err := svc.PullDocument(context.Background(), "d1", doc.ID, "bob"); err != nil {
		t.Fatalf("pull with custom permissions: %v", err)
	}
	if _, err := svc.PullDocument(context.Background(), "d1", doc.ID, "admin"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestContractorLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.CreateContractor(ctx, "d1", "alice", domain.Contractor{Name: "Acme", Address: "Main Rd"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.CreateContractor(ctx, "d1", "admin", domain.Contractor{Name: " ", Address: "Main Rd"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	c, err := svc.CreateContractor(ctx, "d1", "admin", domain.Contractor{Name: " Acme Builders ", Address: "Main Rd", GST: "29ABCDE1234F1Z5"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(c.ID) != 32 || c.Name != "Acme Builders" {
		t.Fatalf("unexpected contractor %+v", c)
	}

	updated, err := svc.UpdateContractor(ctx, "d1", "admin", c.ID, domain.Contractor{Name: "Acme Infra", Address: "Ring Rd", Mobile: "9999999999"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != c.ID || updated.Name != "Acme Infra" || updated.Mobile != "9999999999" {
		t.Fatalf("unexpected update %+v", updated)
	}
	if _, err := svc.UpdateContractor(ctx, "d1", "admin", "missing", domain.Contractor{Name: "x", Address: "y"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	list, _ := svc.ListContractors(ctx, "d1")
	if len(list) != 1 || list[0].Address != "Ring Rd" {
		t.Fatalf("unexpected list %+v", list)
	}
	if err := svc.DeleteContractor(ctx, "d1", "admin", c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteContractor(ctx, "d1", "admin", c.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestCreateDepartment(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dept, err := svc.CreateDepartment(ctx, CreateDepartmentInput{ID: "revenue", Name: "Revenue", AdminUser: "rita"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if dept.CreatedAt != "2024-03-15T09:30:00Z" || dept.Status != domain.RecordActive {
		t.Fatalf("unexpected department %+v", dept)
	}
	if ok, err := svc.Permissions().IsAdmin(ctx, "revenue", "rita"); err != nil || !ok {
		t.Fatalf("initial admin must administer the department: %v %v", ok, err)
	}
	if _, err := svc.CreateDepartment(ctx, CreateDepartmentInput{ID: "revenue", Name: "Again"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected duplicate rejected, got %v", err)
	}
	if _, err := svc.CreateDepartment(ctx, CreateDepartmentInput{ID: "../x", Name: "Bad"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected malformed id rejected, got %v", err)
	}

	if _, err := svc.CreateDepartment(ctx, CreateDepartmentInput{ID: "works", Name: "Public Works"}); err != nil {
		t.Fatalf("create works: %v", err)
	}
	if ok, _ := svc.Permissions().IsAdmin(ctx, "works", "user.admin.works"); !ok {
		t.Fatalf("default admin user missing")
	}

	depts, err := svc.ListDepartments(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// d1 only exists through its seeded collections
	if len(depts) != 3 || depts[0].ID != "d1" || depts[1].Name != "Revenue" || depts[2].ID != "works" {
		t.Fatalf("unexpected departments %+v", depts)
	}
}

func TestCheckStorage(t *testing.T) {
	svc := newTestService(t)
	st := svc.CheckStorage(context.Background())
	if !st.RootExists || !st.RootWritable || st.ConfigPresent || st.Ready() {
		t.Fatalf("unexpected status before config %+v", st)
	}
	if err := jsonfile.Write(filepath.Join(svc.Root(), "system", "global_config.json"), map[string]any{"office": "District"}); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if st := svc.CheckStorage(context.Background()); !st.Ready() {
		t.Fatalf("expected ready, got %+v", st)
	}
	entries, _ := os.ReadDir(svc.Root())
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".write_test_") {
			t.Fatalf("probe file left behind: %s", e.Name())
		}
	}
}

func TestSaveCollectionRequiresUniqueIDs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	scope := collection.System()
	if err := svc.SaveCollection(ctx, scope, domain.CollectionTemplates, []domain.Record{{"id": "a"}, {"name": "no id"}}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected missing id rejected, got %v", err)
	}
	if err := svc.SaveCollection(ctx, scope, domain.CollectionTemplates, []domain.Record{{"id": "a"}, {"id": "a"}}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected duplicate rejected, got %v", err)
	}
	if err := svc.SaveCollection(ctx, scope, domain.CollectionTemplates, []domain.Record{{"id": "a", "body": "x"}, {"id": "b"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := svc.LoadCollection(ctx, scope, domain.CollectionTemplates, domain.FilterAll)
	if err != nil || len(got) != 2 || got[0].String("body") != "x" {
		t.Fatalf("unexpected load %+v %v", got, err)
	}
}

func TestAllocateScopedID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	persist := func(id, path string) error { return jsonfile.Create(path, map[string]any{"id": id}) }
	first, err := svc.AllocateScopedID(ctx, "system/requests", "REQ", 3, persist)
	if err != nil || first != "REQ_2024_001" {
		t.Fatalf("first id %q %v", first, err)
	}
	second, _ := svc.AllocateScopedID(ctx, "system/requests", "REQ", 3, persist)
	if second != "REQ_2024_002" {
		t.Fatalf("second id %q", second)
	}
	if !jsonfile.Exists(filepath.Join(svc.Root(), "system", "requests", "REQ_2024_002.json")) {
		t.Fatalf("persist callback did not write the file")
	}
	if _, err := svc.AllocateScopedID(ctx, "../outside", "REQ", 3, persist); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected escape rejected, got %v", err)
	}
	if _, err := svc.AllocateScopedID(ctx, "system/requests", "BAD_CAT", 3, persist); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected malformed category rejected, got %v", err)
	}
	if id := svc.AllocateID(); len(id) != 32 || id == svc.AllocateID() {
		t.Fatalf("unexpected random id %q", id)
	}
}

func TestOpenCollectionBackend(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	cases := []struct {
		cfg  StorageConfig
		want collection.Driver
	}{
		{StorageConfig{Root: root}, collection.DriverFile},
		{StorageConfig{Driver: collection.DriverMemory}, collection.DriverMemory},
		{StorageConfig{Driver: collection.DriverSQLite, Root: root}, collection.DriverSQLite},
	}
	for _, tc := range cases {
		backend, err := OpenCollectionBackend(ctx, tc.cfg)
		if err != nil {
			t.Fatalf("open %s: %v", tc.want, err)
		}
		if backend.Driver() != tc.want {
			t.Fatalf("expected %s, got %s", tc.want, backend.Driver())
		}
		_ = backend.Close()
	}
	if !jsonfile.Exists(filepath.Join(root, "officeflow.db")) {
		t.Fatalf("sqlite default path not used")
	}
	if _, err := OpenCollectionBackend(ctx, StorageConfig{Driver: collection.DriverPostgres}); err == nil {
		t.Fatalf("postgres without DSN must fail")
	}
	if _, err := OpenCollectionBackend(ctx, StorageConfig{Driver: "etcd"}); err == nil {
		t.Fatalf("unknown driver must fail")
	}
}

func TestServiceOverMemoryBackend(t *testing.T) {
	svc := newTestService(t, WithCollectionBackend(memory.NewStore()))
	doc := mustCreate(t, svc, "alice", "Memo")
	if _, err := svc.MoveDocument(context.Background(), MoveDocumentInput{Department: "d1", DocumentID: doc.ID, Target: "bob", Actor: "alice"}); err != nil {
		t.Fatalf("move over memory collections: %v", err)
	}
	if svc.Collections().Backend().Driver() != collection.DriverMemory {
		t.Fatalf("memory backend not installed")
	}
}
