package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"officeflow/pkg/domain"
)

// APIError is the JSON error body returned to clients.
type APIError struct {
	Status   int    `json:"-"`
	Code     string `json:"code"`
	Message  string `json:"error"`
	Internal error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Internal }

func badRequest(err error) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "bad_request", Message: err.Error(), Internal: err}
}

func unauthorized() *APIError {
	return &APIError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "X-User-Id header required"}
}

// translate maps engine failures onto HTTP statuses. Persist failures hide
// their cause from the client.
func translate(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch domain.KindOf(err) {
	case domain.ErrNotFound:
		return &APIError{Status: http.StatusNotFound, Code: "not_found", Message: err.Error(), Internal: err}
	case domain.ErrForbidden:
		return &APIError{Status: http.StatusForbidden, Code: "forbidden", Message: err.Error(), Internal: err}
	case domain.ErrValidation:
		return &APIError{Status: http.StatusUnprocessableEntity, Code: "validation_failure", Message: err.Error(), Internal: err}
	case domain.ErrAllocationRace:
		return &APIError{Status: http.StatusConflict, Code: "allocation_race", Message: "identifier allocation contended, retry", Internal: err}
	default:
		return &APIError{Status: http.StatusInternalServerError, Code: "internal", Message: "internal server error", Internal: err}
	}
}

// errorHandler renders the last error a handler attached with c.Error.
func errorHandler(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		apiErr := translate(c.Errors.Last().Err)
		fields := []zap.Field{
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Int("status", apiErr.Status),
			zap.Error(apiErr.Internal),
		}
		if apiErr.Status >= http.StatusInternalServerError {
			log.Error("request failed", fields...)
		} else {
			log.Info(apiErr.Message, fields...)
		}
		c.AbortWithStatusJSON(apiErr.Status, apiErr)
	}
}
