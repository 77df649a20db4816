package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by the store and the engine matches
// exactly one of these through errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrValidation     = errors.New("validation failure")
	ErrPersist        = errors.New("persist failure")
	ErrAllocationRace = errors.New("allocation race")
)

// Error carries a kind plus the entity it concerns.
type Error struct {
	Kind    error
	Entity  EntityType
	ID      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Entity != "" {
		if e.ID != "" {
			msg = fmt.Sprintf("%s %s: %s", e.Entity, e.ID, msg)
		} else {
			msg = fmt.Sprintf("%s: %s", e.Entity, msg)
		}
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the kind sentinel of e.
func (e *Error) Is(target error) bool { return target == e.Kind }

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// NotFound reports a missing entity.
func NotFound(entity EntityType, id string) error {
	return &Error{Kind: ErrNotFound, Entity: entity, ID: id}
}

// Forbidden reports a caller lacking ownership or permission.
func Forbidden(entity EntityType, id, message string) error {
	return &Error{Kind: ErrForbidden, Entity: entity, ID: id, Message: message}
}

// Invalid reports a missing field, malformed identifier or a rejected transition.
func Invalid(entity EntityType, id, message string) error {
	return &Error{Kind: ErrValidation, Entity: entity, ID: id, Message: message}
}

// PersistFailure wraps an I/O error from the storage layer.
func PersistFailure(entity EntityType, id string, err error) error {
	return &Error{Kind: ErrPersist, Entity: entity, ID: id, Err: err}
}

// AllocationRace reports that identifier allocation kept colliding after the retry budget.
func AllocationRace(entity EntityType, scope string, err error) error {
	return &Error{Kind: ErrAllocationRace, Entity: entity, ID: scope, Err: err}
}

// KindOf returns the kind sentinel matched by err, or nil when err is not a domain failure.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrForbidden, ErrValidation, ErrAllocationRace, ErrPersist} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
