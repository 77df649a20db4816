package core

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"officeflow/internal/collection"
	"officeflow/pkg/domain"
)

// RegisterRow is one line of the department master register.
type RegisterRow struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	CurrentOwner string                `json:"current_owner"`
	OwnerName    string                `json:"owner_name"`
	Status       domain.DocumentStatus `json:"status"`
	LastUpdated  string                `json:"last_updated"`
}

// Inbox lists the documents user currently holds, most urgent first.
func (s *Service) Inbox(ctx context.Context, dept, user string) ([]domain.InboxItem, error) {
	docs, err := s.ListDocuments(ctx, dept)
	if err != nil {
		return nil, err
	}
	today := s.today()
	items := make([]domain.InboxItem, 0)
	for _, doc := range docs {
		if doc.CurrentOwner == user {
			items = append(items, domain.InboxItemFor(doc, today))
		}
	}
	domain.SortInbox(items)
	return items, nil
}

// Outbox lists documents user created that someone else now holds.
func (s *Service) Outbox(ctx context.Context, dept, user string) ([]domain.OutboxItem, error) {
	docs, err := s.ListDocuments(ctx, dept)
	if err != nil {
		return nil, err
	}
	items := make([]domain.OutboxItem, 0)
	for _, doc := range docs {
		if doc.CreatedBy == user && doc.CurrentOwner != user {
			items = append(items, domain.OutboxItem{ID: doc.ID, Title: doc.Title, CurrentOwner: doc.CurrentOwner})
		}
	}
	return items, nil
}

// Search matches term against document ids and titles. Administrators see
// every match; other users only documents they are involved with.
func (s *Service) Search(ctx context.Context, dept, user, term string) ([]domain.Document, error) {
	docs, err := s.ListDocuments(ctx, dept)
	if err != nil {
		return nil, err
	}
	admin, err := s.perms.IsAdmin(ctx, dept, user)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Document, 0)
	for _, doc := range docs {
		if !doc.Matches(term) {
			continue
		}
		if admin || doc.InvolvedWith(user) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// MasterRegister lists every document of the department for an administrator.
func (s *Service) MasterRegister(ctx context.Context, dept, admin string) ([]RegisterRow, error) {
	ok, err := s.perms.IsAdmin(ctx, dept, admin)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Forbidden(domain.EntityDepartment, dept, "administrator rights required")
	}
	docs, err := s.ListDocuments(ctx, dept)
	if err != nil {
		return nil, err
	}
	names, err := s.userNames(ctx, dept)
	if err != nil {
		return nil, err
	}
	rows := make([]RegisterRow, 0, len(docs))
	for _, doc := range docs {
		owner := doc.CurrentOwner
		name := owner
		if n, ok := names[owner]; ok {
			name = n
		}
		rows = append(rows, RegisterRow{
			ID:           doc.ID,
			Title:        doc.Title,
			CurrentOwner: owner,
			OwnerName:    name,
			Status:       doc.Status,
			LastUpdated:  doc.LastUpdated(),
		})
	}
	return rows, nil
}

// ExportRegisterCSV writes the master register as CSV with the columns
// Document ID, Title, Current Owner (display name) and Status.
func (s *Service) ExportRegisterCSV(ctx context.Context, dept, admin string, w io.Writer) error {
	rows, err := s.MasterRegister(ctx, dept, admin)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Document ID", "Title", "Current Owner", "Status"}); err != nil {
		return fmt.Errorf("write register header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.ID, r.Title, r.OwnerName, string(r.Status)}); err != nil {
			return fmt.Errorf("write register row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// userNames maps every user id of the department, archived ones included, to
// its display name.
func (s *Service) userNames(ctx context.Context, dept string) (map[string]string, error) {
	users, err := s.collections.LoadActive(ctx, collection.Department(dept), domain.CollectionUsers, domain.FilterAll)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID()] = u.Name()
	}
	return names, nil
}
