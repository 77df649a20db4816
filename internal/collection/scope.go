// Package collection provides department-scoped views over whole-file record
// collections (users, roles, contractors, the Dak register, templates and
// requests). Storage is delegated to a Backend; the views add status
// defaulting, filtering and id-based read-modify-write helpers.
package collection

import (
	"path"
	"strings"

	"officeflow/pkg/domain"
)

// Scope addresses either one department or the global system area.
type Scope struct {
	department string
}

// System is the global scope holding shared templates and requests.
func System() Scope { return Scope{} }

// Department scopes collections to one department.
func Department(id string) Scope { return Scope{department: id} }

// DepartmentID returns the department id, or "" for the system scope.
func (s Scope) DepartmentID() string { return s.department }

// IsSystem reports whether s is the global scope.
func (s Scope) IsSystem() bool { return s.department == "" }

func (s Scope) String() string {
	if s.IsSystem() {
		return "system"
	}
	return "departments/" + s.department
}

// ValidSegment reports whether id can be used as a single path segment.
func ValidSegment(id string) bool {
	if id == "" || id == "." || id == ".." || strings.HasPrefix(id, ".") {
		return false
	}
	return !strings.ContainsAny(id, "/\\\x00")
}

// Key returns the slash-separated location of a collection relative to the
// data root. Backends that do not use files still use it as the row key.
func Key(scope Scope, name domain.CollectionName) (string, error) {
	if scope.IsSystem() {
		switch name {
		case domain.CollectionTemplates:
			return "system/templates/templates.json", nil
		case domain.CollectionRequests:
			return "system/requests.json", nil
		default:
			return "", domain.Invalid(domain.EntityCollection, string(name), "not available in the system scope")
		}
	}
	if !ValidSegment(scope.department) {
		return "", domain.Invalid(domain.EntityDepartment, scope.department, "malformed department id")
	}
	base := path.Join("departments", scope.department)
	switch name {
	case domain.CollectionUsers:
		return path.Join(base, "users", "users.json"), nil
	case domain.CollectionRoles:
		return path.Join(base, "roles", "roles.json"), nil
	case domain.CollectionContractors:
		return path.Join(base, "data", "contractors.json"), nil
	case domain.CollectionDakRegister:
		return path.Join(base, "data", "dak_register.json"), nil
	case domain.CollectionTemplates:
		return path.Join(base, "templates", "templates.json"), nil
	default:
		return "", domain.Invalid(domain.EntityCollection, string(name), "not available in a department scope")
	}
}
