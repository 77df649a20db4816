package core

import (
	"context"
	"errors"

	"officeflow/internal/collection"
	"officeflow/pkg/domain"
)

// SuperadminRole administers every department.
const SuperadminRole = "superadmin"

// AdminRole is the role id that administers dept.
func AdminRole(dept string) string { return "admin." + dept }

// Permissions answers the authorisation questions the engine asks.
type Permissions interface {
	IsAdmin(ctx context.Context, dept, user string) (bool, error)
}

// IsOwnerOrAdmin reports whether user holds doc or administers dept.
func IsOwnerOrAdmin(ctx context.Context, p Permissions, dept string, doc domain.Document, user string) (bool, error) {
	if user != "" && doc.CurrentOwner == user {
		return true, nil
	}
	return p.IsAdmin(ctx, dept, user)
}

// RolePermissions derives admin rights from the department's users and roles
// collections. A user is an admin when one of their roles is admin.<dept> or
// superadmin, or when one of their roles lists admin.<dept> among its
// permissions.
type RolePermissions struct {
	views *collection.Views
}

// NewRolePermissions reads roles through views.
func NewRolePermissions(views *collection.Views) *RolePermissions {
	return &RolePermissions{views: views}
}

// IsAdmin implements Permissions. Suspended and archived users are never admins.
func (p *RolePermissions) IsAdmin(ctx context.Context, dept, user string) (bool, error) {
	if user == "" {
		return false, nil
	}
	scope := collection.Department(dept)
	rec, err := p.views.FindByID(ctx, scope, domain.CollectionUsers, user, domain.FilterSelectable)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	want := AdminRole(dept)
	roleIDs := userRoles(rec)
	for _, id := range roleIDs {
		if id == want || id == SuperadminRole {
			return true, nil
		}
	}
	if len(roleIDs) == 0 {
		return false, nil
	}
	roles, err := p.views.LoadActive(ctx, scope, domain.CollectionRoles, domain.FilterManageable)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if !contains(roleIDs, role.ID()) {
			continue
		}
		if contains(stringList(role["permissions"]), want) {
			return true, nil
		}
	}
	return false, nil
}

func userRoles(rec domain.Record) []string {
	roles := stringList(rec["roles"])
	if id := rec.String("role_id"); id != "" && !contains(roles, id) {
		roles = append(roles, id)
	}
	return roles
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
