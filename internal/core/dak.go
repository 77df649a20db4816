package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"officeflow/internal/collection"
	"officeflow/internal/ident"
	"officeflow/pkg/domain"
)

// clerkRoleMarker grants Dak register access to roles whose id contains it.
const clerkRoleMarker = "clerk"

// RegisterDakInput is a physical mail item to record.
type RegisterDakInput struct {
	Department   string              `validate:"required,segment"`
	Actor        string              `validate:"required"`
	Direction    domain.DakDirection `validate:"required,oneof=incoming outgoing"`
	Sender       string              `validate:"notblank"`
	Subject      string              `validate:"notblank"`
	ReceivedDate string              `validate:"required,datetime=2006-01-02"`
	PhysicalMode string              `validate:"notblank"`
	AssignedTo   string              `validate:"required"`
}

// RegisterDak appends an entry to the department Dak register. The reference
// number is allocated inside the register's update so concurrent registrations
// get consecutive counters.
func (s *Service) RegisterDak(ctx context.Context, in RegisterDakInput) (domain.DakEntry, error) {
	var entry domain.DakEntry
	err := s.observe(ctx, call{op: opRegisterDak, dept: in.Department, actor: in.Actor}, func(ctx context.Context) (string, error) {
		if err := s.check(domain.EntityDakEntry, "", in); err != nil {
			return "", err
		}
		if err := s.requireDakAccess(ctx, in.Department, in.Actor); err != nil {
			return "", err
		}
		scope := collection.Department(in.Department)
		if _, err := s.collections.FindByID(ctx, scope, domain.CollectionUsers, in.AssignedTo, domain.FilterSelectable); err != nil {
			return "", err
		}
		now := s.clock.Now()
		entry = domain.DakEntry{
			Direction:    in.Direction,
			Sender:       strings.TrimSpace(in.Sender),
			Subject:      strings.TrimSpace(in.Subject),
			ReceivedDate: in.ReceivedDate,
			PhysicalMode: strings.TrimSpace(in.PhysicalMode),
			AssignedTo:   in.AssignedTo,
			CreatedAt:    now.Format(time.RFC3339),
			CreatedBy:    in.Actor,
		}
		err := s.collections.Update(ctx, scope, domain.CollectionDakRegister, func(records []domain.Record) ([]domain.Record, error) {
			existing, err := decodeDakEntries(records)
			if err != nil {
				return nil, err
			}
			entry.ReferenceNo = ident.NextDakReference(existing, in.Direction, now.Year())
			rec, err := domain.EncodeRecord(entry)
			if err != nil {
				return nil, err
			}
			return append(records, rec), nil
		})
		if err != nil {
			return "", err
		}
		return entry.ReferenceNo, nil
	})
	if err != nil {
		return domain.DakEntry{}, err
	}
	return entry, nil
}

// ListDak returns the register entries of direction, or all entries when
// direction is empty, in registration order.
func (s *Service) ListDak(ctx context.Context, dept string, direction domain.DakDirection) ([]domain.DakEntry, error) {
	if direction != "" && !direction.Valid() {
		return nil, domain.Invalid(domain.EntityDakEntry, string(direction), "unknown direction")
	}
	records, err := s.collections.LoadActive(ctx, collection.Department(dept), domain.CollectionDakRegister, domain.FilterAll)
	if err != nil {
		return nil, err
	}
	entries, err := decodeDakEntries(records)
	if err != nil {
		return nil, domain.PersistFailure(domain.EntityDakEntry, "", err)
	}
	out := make([]domain.DakEntry, 0, len(entries))
	for _, e := range entries {
		if direction == "" || e.Direction == direction {
			out = append(out, e)
		}
	}
	return out, nil
}

// ConvertDakToDocument opens a draft prefilled from a register entry.
func (s *Service) ConvertDakToDocument(ctx context.Context, dept, reference, actor string) (domain.Document, error) {
	var doc domain.Document
	err := s.observe(ctx, call{op: opConvertDak, dept: dept, actor: actor, entity: reference}, func(ctx context.Context) (string, error) {
		entries, err := s.ListDak(ctx, dept, "")
		if err != nil {
			return "", err
		}
		for _, e := range entries {
			if e.ReferenceNo != reference {
				continue
			}
			doc, err = s.CreateDocument(ctx, CreateDocumentInput{
				Department: dept,
				Title:      e.Subject,
				Content:    e.DraftBody(),
				Creator:    actor,
				Extra:      map[string]any{"dak_reference": e.ReferenceNo},
			})
			if err != nil {
				return "", err
			}
			return doc.ID, nil
		}
		return "", domain.NotFound(domain.EntityDakEntry, reference)
	})
	if err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// requireDakAccess admits department administrators and users holding a
// clerk role.
func (s *Service) requireDakAccess(ctx context.Context, dept, user string) error {
	ok, err := s.perms.IsAdmin(ctx, dept, user)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	rec, err := s.collections.FindByID(ctx, collection.Department(dept), domain.CollectionUsers, user, domain.FilterSelectable)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if rec != nil {
		for _, role := range userRoles(rec) {
			if strings.Contains(strings.ToLower(role), clerkRoleMarker) {
				return nil
			}
		}
	}
	return domain.Forbidden(domain.EntityDakEntry, "", "Dak register access requires an administrator or clerk role")
}

func decodeDakEntries(records []domain.Record) ([]domain.DakEntry, error) {
	out := make([]domain.DakEntry, 0, len(records))
	for _, rec := range records {
		var e domain.DakEntry
		if err := domain.DecodeRecord(rec, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
