package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"officeflow/internal/collection"
	"officeflow/pkg/domain"
)

// newValidator returns a validator with the officeflow tags registered:
// segment (usable as one path segment) and notblank (non-whitespace string).
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("segment", func(fl validator.FieldLevel) bool {
		return collection.ValidSegment(fl.Field().String())
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// check runs struct validation and reports every failed field as one
// ValidationFailure.
func (s *Service) check(entity domain.EntityType, id string, in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.Invalid(entity, id, err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeField(fe))
	}
	return domain.Invalid(entity, id, strings.Join(msgs, "; "))
}

func describeField(fe validator.FieldError) string {
	field := fieldName(fe)
	switch fe.Tag() {
	case "required", "notblank":
		return field + " is required"
	case "datetime":
		return field + " must be a date in " + fe.Param() + " form"
	case "oneof":
		return field + " must be one of " + fe.Param()
	case "segment":
		return field + " is malformed"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// fieldName lowercases the Go field name.
func fieldName(fe validator.FieldError) string {
	return strings.ToLower(fe.Field())
}

func requireDepartment(dept string) error {
	if !collection.ValidSegment(dept) {
		return domain.Invalid(domain.EntityDepartment, dept, "malformed department id")
	}
	return nil
}

// persistErr keeps domain kinds and cancellation as they are and reports any
// other failure as a PersistFailure.
func persistErr(entity domain.EntityType, id string, err error) error {
	if err == nil || domain.KindOf(err) != nil {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.PersistFailure(entity, id, err)
}

func encodeExtra(extra map[string]any) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(extra))
	for k, v := range extra {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("extra field %s: %w", k, err)
		}
		out[k] = b
	}
	return out, nil
}
