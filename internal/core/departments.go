package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"officeflow/internal/collection"
	"officeflow/internal/ident"
	"officeflow/internal/infra/persistence/jsonfile"
	"officeflow/pkg/domain"
)

// CreateDepartmentInput provisions a department.
type CreateDepartmentInput struct {
	ID   string `validate:"required,segment"`
	Name string `validate:"notblank"`
	// AdminUser is the initial administrator id; empty uses user.admin.<id>.
	AdminUser string
	AdminName string
}

// CreateDepartment writes department.json together with the admin.<id> role
// and its first holder. An existing department is never overwritten.
func (s *Service) CreateDepartment(ctx context.Context, in CreateDepartmentInput) (domain.Department, error) {
	var dept domain.Department
	err := s.observe(ctx, call{op: opCreateDepartment, dept: in.ID, entity: in.ID}, func(ctx context.Context) (string, error) {
		if err := s.check(domain.EntityDepartment, in.ID, in); err != nil {
			return "", err
		}
		dept = domain.Department{
			ID:        in.ID,
			Name:      strings.TrimSpace(in.Name),
			CreatedAt: s.clock.Now().Format(time.RFC3339),
			Status:    domain.RecordActive,
		}
		err := jsonfile.Create(filepath.Join(s.departmentDir(in.ID), "department.json"), dept)
		if errors.Is(err, fs.ErrExist) {
			return "", domain.Invalid(domain.EntityDepartment, in.ID, "department already exists")
		}
		if err != nil {
			return "", domain.PersistFailure(domain.EntityDepartment, in.ID, err)
		}
		scope := collection.Department(in.ID)
		role := AdminRole(in.ID)
		if err := s.collections.Append(ctx, scope, domain.CollectionRoles, domain.Record{
			"id":          role,
			"name":        "Department Administrator",
			"permissions": []any{role},
			"status":      string(domain.RecordActive),
		}); err != nil {
			return "", err
		}
		adminID := strings.TrimSpace(in.AdminUser)
		if adminID == "" {
			adminID = "user." + role
		}
		adminName := strings.TrimSpace(in.AdminName)
		if adminName == "" {
			adminName = dept.Name + " Administrator"
		}
		if err := s.collections.Append(ctx, scope, domain.CollectionUsers, domain.Record{
			"id":     adminID,
			"name":   adminName,
			"roles":  []any{role},
			"status": string(domain.RecordActive),
		}); err != nil {
			return "", err
		}
		return in.ID, nil
	})
	if err != nil {
		return domain.Department{}, err
	}
	return dept, nil
}

// ListDepartments reads every departments/<id>/department.json, ordered by id.
// Directories without readable metadata are listed with their id as name.
func (s *Service) ListDepartments(_ context.Context) ([]domain.Department, error) {
	base := filepath.Join(s.root, "departments")
	entries, err := os.ReadDir(base)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.Department{}, nil
	}
	if err != nil {
		return nil, domain.PersistFailure(domain.EntityDepartment, "", err)
	}
	out := make([]domain.Department, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !collection.ValidSegment(e.Name()) {
			continue
		}
		d := domain.Department{ID: e.Name(), Name: e.Name(), Status: domain.RecordActive}
		jsonfile.ReadInto(filepath.Join(base, e.Name(), "department.json"), &d)
		if d.ID == "" {
			d.ID = e.Name()
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// StorageStatus is the readiness report of the data root.
type StorageStatus struct {
	RootExists    bool `json:"root_exists"`
	RootWritable  bool `json:"root_writable"`
	ConfigPresent bool `json:"global_config_present"`
}

// Ready reports whether every check passed.
func (st StorageStatus) Ready() bool {
	return st.RootExists && st.RootWritable && st.ConfigPresent
}

// CheckStorage probes the data root: it must exist, accept a write, and hold
// system/global_config.json.
func (s *Service) CheckStorage(_ context.Context) StorageStatus {
	var st StorageStatus
	if info, err := os.Stat(s.root); err == nil && info.IsDir() {
		st.RootExists = true
		probe := filepath.Join(s.root, fmt.Sprintf(".write_test_%s", ident.RandomID()))
		if err := os.WriteFile(probe, []byte("ok"), 0o600); err == nil {
			st.RootWritable = true
			_ = os.Remove(probe)
		}
	}
	st.ConfigPresent = jsonfile.Exists(filepath.Join(s.root, "system", "global_config.json"))
	return st
}
