package core

import (
	"context"
	"strings"

	"officeflow/internal/collection"
	"officeflow/internal/ident"
	"officeflow/pkg/domain"
)

// ListContractors returns the department contractors.
func (s *Service) ListContractors(ctx context.Context, dept string) ([]domain.Contractor, error) {
	records, err := s.collections.LoadActive(ctx, collection.Department(dept), domain.CollectionContractors, domain.FilterAll)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Contractor, 0, len(records))
	for _, rec := range records {
		var c domain.Contractor
		if err := domain.DecodeRecord(rec, &c); err != nil {
			return nil, domain.PersistFailure(domain.EntityContractor, rec.ID(), err)
		}
		out = append(out, c)
	}
	return out, nil
}

// CreateContractor stores c under a fresh random id. Name and address are required.
func (s *Service) CreateContractor(ctx context.Context, dept, actor string, c domain.Contractor) (domain.Contractor, error) {
	err := s.observe(ctx, call{op: opCreateContractor, dept: dept, actor: actor}, func(ctx context.Context) (string, error) {
		if err := s.requireAdmin(ctx, dept, actor, domain.EntityContractor); err != nil {
			return "", err
		}
		c = trimContractor(c)
		if err := s.check(domain.EntityContractor, "", c); err != nil {
			return "", err
		}
		c.ID = ident.RandomID()
		rec, err := domain.EncodeRecord(c)
		if err != nil {
			return "", domain.Invalid(domain.EntityContractor, "", err.Error())
		}
		return c.ID, s.collections.Append(ctx, collection.Department(dept), domain.CollectionContractors, rec)
	})
	if err != nil {
		return domain.Contractor{}, err
	}
	return c, nil
}

// UpdateContractor replaces the fields of contractor id, keeping unknown keys.
func (s *Service) UpdateContractor(ctx context.Context, dept, actor, id string, c domain.Contractor) (domain.Contractor, error) {
	var updated domain.Contractor
	err := s.observe(ctx, call{op: opUpdateContractor, dept: dept, actor: actor, entity: id}, func(ctx context.Context) (string, error) {
		if err := s.requireAdmin(ctx, dept, actor, domain.EntityContractor); err != nil {
			return "", err
		}
		c = trimContractor(c)
		c.ID = id
		if err := s.check(domain.EntityContractor, id, c); err != nil {
			return "", err
		}
		fields, err := domain.EncodeRecord(c)
		if err != nil {
			return "", domain.Invalid(domain.EntityContractor, id, err.Error())
		}
		rec, err := s.collections.UpdateByID(ctx, collection.Department(dept), domain.CollectionContractors, id, func(rec domain.Record) (domain.Record, error) {
			for k, v := range fields {
				rec[k] = v
			}
			return rec, nil
		})
		if err != nil {
			return "", err
		}
		if err := domain.DecodeRecord(rec, &updated); err != nil {
			return "", domain.PersistFailure(domain.EntityContractor, id, err)
		}
		return id, nil
	})
	if err != nil {
		return domain.Contractor{}, err
	}
	return updated, nil
}

// DeleteContractor removes contractor id.
func (s *Service) DeleteContractor(ctx context.Context, dept, actor, id string) error {
	return s.observe(ctx, call{op: opDeleteContractor, dept: dept, actor: actor, entity: id}, func(ctx context.Context) (string, error) {
		if err := s.requireAdmin(ctx, dept, actor, domain.EntityContractor); err != nil {
			return "", err
		}
		return id, s.collections.RemoveByID(ctx, collection.Department(dept), domain.CollectionContractors, id)
	})
}

func (s *Service) requireAdmin(ctx context.Context, dept, user string, entity domain.EntityType) error {
	if err := requireDepartment(dept); err != nil {
		return err
	}
	ok, err := s.perms.IsAdmin(ctx, dept, user)
	if err != nil {
		return err
	}
	if !ok {
		return domain.Forbidden(entity, "", "administrator rights required")
	}
	return nil
}

func trimContractor(c domain.Contractor) domain.Contractor {
	c.Name = strings.TrimSpace(c.Name)
	c.Address = strings.TrimSpace(c.Address)
	c.PAN = strings.TrimSpace(c.PAN)
	c.GST = strings.TrimSpace(c.GST)
	c.Mobile = strings.TrimSpace(c.Mobile)
	return c
}
