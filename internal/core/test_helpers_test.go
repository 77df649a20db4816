package core

import (
	"context"
	"testing"
	"time"

	"officeflow/internal/collection"
	"officeflow/pkg/domain"
)

var fixedNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

func fixedClock() Clock {
	return ClockFunc(func() time.Time { return fixedNow })
}

// newTestService opens a service over a temp root with department d1 seeded:
// alice, bob and clerk are selectable, carol is suspended, dave archived and
// admin holds admin.d1.
func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	all := append([]Option{WithClock(fixedClock())}, opts...)
	svc, err := NewService(t.TempDir(), all...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	seedUsers(t, svc, "d1")
	return svc
}

func seedUsers(t *testing.T, svc *Service, dept string) {
	t.Helper()
	users := []domain.Record{
		{"id": "alice", "name": "Alice"},
		{"id": "bob", "name": "Bob"},
		{"id": "carol", "name": "Carol", "status": "suspended"},
		{"id": "dave", "name": "Dave", "status": "archived"},
		{"id": "admin", "name": "Admin", "roles": []any{AdminRole(dept)}},
		{"id": "clerk", "name": "Clerk", "role_id": "dak_clerk"},
	}
	if err := svc.Collections().Replace(context.Background(), collection.Department(dept), domain.CollectionUsers, users); err != nil {
		t.Fatalf("seed users: %v", err)
	}
}

func mustCreate(t *testing.T, svc *Service, creator, title string) domain.Document {
	t.Helper()
	doc, err := svc.CreateDocument(context.Background(), CreateDocumentInput{Department: "d1", Title: title, Content: "body of " + title, Creator: creator})
	if err != nil {
		t.Fatalf("create %s: %v", title, err)
	}
	return doc
}

type staticPermissions map[string]bool

func (p staticPermissions) IsAdmin(_ context.Context, _ string, user string) (bool, error) {
	return p[user], nil
}
