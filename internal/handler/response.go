package handler

import (
	"errors"
	"net/http"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Code     string            `json:"code,omitempty"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Balance  *int64            `json:"balance,omitempty"`
	Required *int64            `json:"required,omitempty"`
	Job      interface{}       `json:"job,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error types
const (
	ErrorTypeValidation          = "https://mediaforge.app/errors/validation"
	ErrorTypeNotFound            = "https://mediaforge.app/errors/not-found"
	ErrorTypeUnauthorized        = "https://mediaforge.app/errors/unauthorized"
	ErrorTypeForbidden           = "https://mediaforge.app/errors/forbidden"
	ErrorTypeConflict            = "https://mediaforge.app/errors/conflict"
	ErrorTypeInsufficientCredits = "https://mediaforge.app/errors/insufficient-credits"
	ErrorTypeProvider            = "https://mediaforge.app/errors/provider"
	ErrorTypePayloadTooLarge     = "https://mediaforge.app/errors/payload-too-large"
	ErrorTypeInternal            = "https://mediaforge.app/errors/internal"
)

// Machine-readable problem codes
const (
	CodeValidationFailed       = "validation_failed"
	CodeAccessDenied           = "access_denied"
	CodeInsufficientCredits    = "insufficient_credits"
	CodeNoWorkspaceSelected    = "no_workspace_selected"
	CodeProviderDispatchFailed = "provider_dispatch_failed"
	CodeUnsupportedKind        = "unsupported_kind"
)

// NewValidationError creates a validation error response
func NewValidationError(c echo.Context, detail string, errors []ValidationError) error {
	return c.JSON(http.StatusBadRequest, ProblemDetails{
		Type:     ErrorTypeValidation,
		Title:    "Validation Error",
		Status:   http.StatusBadRequest,
		Code:     CodeValidationFailed,
		Detail:   detail,
		Instance: c.Request().URL.Path,
		Errors:   errors,
	})
}

// NewNotFoundError creates a not found error response
func NewNotFoundError(c echo.Context, detail string) error {
	return c.JSON(http.StatusNotFound, ProblemDetails{
		Type:     ErrorTypeNotFound,
		Title:    "Not Found",
		Status:   http.StatusNotFound,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewUnauthorizedError creates an unauthorized error response
func NewUnauthorizedError(c echo.Context, detail string) error {
	return c.JSON(http.StatusUnauthorized, ProblemDetails{
		Type:     ErrorTypeUnauthorized,
		Title:    "Unauthorized",
		Status:   http.StatusUnauthorized,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewForbiddenError creates a forbidden error response
func NewForbiddenError(c echo.Context, detail string) error {
	return c.JSON(http.StatusForbidden, ProblemDetails{
		Type:     ErrorTypeForbidden,
		Title:    "Forbidden",
		Status:   http.StatusForbidden,
		Code:     CodeAccessDenied,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewConflictError creates a conflict error response
func NewConflictError(c echo.Context, detail string) error {
	return c.JSON(http.StatusConflict, ProblemDetails{
		Type:     ErrorTypeConflict,
		Title:    "Conflict",
		Status:   http.StatusConflict,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewInsufficientCreditsError creates a 402 response carrying the balance shortfall
func NewInsufficientCreditsError(c echo.Context, e *domain.InsufficientCreditsError) error {
	balance, required := e.Balance, e.Required
	return c.JSON(http.StatusPaymentRequired, ProblemDetails{
		Type:     ErrorTypeInsufficientCredits,
		Title:    "Insufficient Credits",
		Status:   http.StatusPaymentRequired,
		Code:     CodeInsufficientCredits,
		Detail:   "The workspace balance does not cover this job",
		Instance: c.Request().URL.Path,
		Balance:  &balance,
		Required: &required,
	})
}

// NewProviderError creates a 502 response for a provider that rejected a job.
// job is the failed job record, included so clients can show it.
func NewProviderError(c echo.Context, e *domain.ProviderDispatchError, job interface{}) error {
	return c.JSON(http.StatusBadGateway, ProblemDetails{
		Type:     ErrorTypeProvider,
		Title:    "Provider Dispatch Failed",
		Status:   http.StatusBadGateway,
		Code:     CodeProviderDispatchFailed,
		Detail:   e.Error(),
		Instance: c.Request().URL.Path,
		Job:      job,
	})
}

// NewPayloadTooLargeError creates a 413 response
func NewPayloadTooLargeError(c echo.Context, detail string) error {
	return c.JSON(http.StatusRequestEntityTooLarge, ProblemDetails{
		Type:     ErrorTypePayloadTooLarge,
		Title:    "Payload Too Large",
		Status:   http.StatusRequestEntityTooLarge,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewInternalError creates an internal error response
func NewInternalError(c echo.Context, detail string) error {
	return c.JSON(http.StatusInternalServerError, ProblemDetails{
		Type:     ErrorTypeInternal,
		Title:    "Internal Server Error",
		Status:   http.StatusInternalServerError,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// newNoWorkspaceError tells the client to pick a workspace first
func newNoWorkspaceError(c echo.Context) error {
	return c.JSON(http.StatusConflict, ProblemDetails{
		Type:     ErrorTypeConflict,
		Title:    "No Workspace Selected",
		Status:   http.StatusConflict,
		Code:     CodeNoWorkspaceSelected,
		Detail:   "Select or create a workspace first",
		Instance: c.Request().URL.Path,
	})
}

// writeDomainError maps the errors shared by every workspace-scoped endpoint.
// Anything unrecognized is logged and reported as a 500 with fallback as detail.
func writeDomainError(c echo.Context, err error, fallback string) error {
	var validation *domain.ValidationError
	var insufficient *domain.InsufficientCreditsError

	switch {
	case errors.As(err, &validation):
		fields := make([]ValidationError, len(validation.Fields))
		for i, f := range validation.Fields {
			fields[i] = ValidationError{Field: f.Field, Message: f.Message}
		}
		return NewValidationError(c, "Validation failed", fields)
	case errors.As(err, &insufficient):
		return NewInsufficientCreditsError(c, insufficient)
	case errors.Is(err, domain.ErrAccessDenied):
		return NewForbiddenError(c, "You do not have access to this resource")
	case errors.Is(err, domain.ErrNoWorkspaceSelected):
		return newNoWorkspaceError(c)
	case errors.Is(err, domain.ErrWorkspaceNotFound):
		return NewNotFoundError(c, "Workspace not found")
	case errors.Is(err, domain.ErrUserNotFound):
		return NewNotFoundError(c, "User not found")
	case errors.Is(err, domain.ErrMembershipNotFound):
		return NewNotFoundError(c, "Member not found")
	case errors.Is(err, domain.ErrJobNotFound):
		return NewNotFoundError(c, "Job not found")
	}

	log.Error().Err(err).Str("path", c.Request().URL.Path).Msg(fallback)
	return NewInternalError(c, fallback)
}
