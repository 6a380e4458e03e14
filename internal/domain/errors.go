package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors
var (
	ErrNotFound            = errors.New("resource not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAccessDenied        = errors.New("access denied")
	ErrInternalError       = errors.New("internal error")
	ErrUserNotFound        = errors.New("user not found")
	ErrWorkspaceNotFound   = errors.New("workspace not found")
	ErrMembershipNotFound  = errors.New("membership not found")
	ErrJobNotFound         = errors.New("job not found")
	ErrReservationNotFound = errors.New("credit reservation not found")
	ErrNoWorkspaceSelected = errors.New("no workspace selected")
	ErrNameRequired        = errors.New("name is required")
	ErrNameTooLong         = errors.New("name exceeds maximum length")
	ErrInvalidSlug         = errors.New("slug cannot be empty")

	// Membership
	ErrAlreadyMember      = errors.New("user is already a member of this workspace")
	ErrCannotRemoveOwner  = errors.New("the workspace owner cannot be removed")
	ErrOwnerRoleImmutable = errors.New("the owner role cannot be assigned or changed")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidPermission  = errors.New("invalid permission")
	ErrWorkspaceFull      = errors.New("workspace has reached its member limit")

	// Jobs
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrAlreadyInState    = errors.New("job is already in the requested state")
	ErrJobNotTerminal    = errors.New("job is still in progress")
	ErrUnsupportedKind   = errors.New("no provider configured for job kind")
	// ErrProviderJobConflict means another job already holds the provider's job reference
	ErrProviderJobConflict = errors.New("provider job id already recorded")

	// Ledger
	ErrInvalidAmount       = errors.New("credit amount must be positive")
	ErrInvalidSettlement   = errors.New("settled amount exceeds reserved amount")
	ErrReservationConsumed = errors.New("credit reservation already consumed")

	// Providers and storage
	ErrUnknownProvider      = errors.New("unknown provider")
	ErrInvalidWebhook       = errors.New("invalid webhook payload")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrStorageNotConfigured = errors.New("artifact storage not configured")
)

// Validation constants
const (
	MaxWorkspaceNameLength = 255
)

// FieldError describes a single invalid input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when a submission fails structural validation.
// It lists every offending field.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrInvalidInput) match validation failures
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError builds a ValidationError for a single field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// InsufficientCreditsError is returned when a workspace balance cannot cover a reservation
type InsufficientCreditsError struct {
	WorkspaceID int32
	Balance     int64
	Required    int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: workspace %d has %d, requires %d", e.WorkspaceID, e.Balance, e.Required)
}

// ProviderDispatchError is returned when a provider rejects a job at start time
type ProviderDispatchError struct {
	Provider string
	Err      error
}

func (e *ProviderDispatchError) Error() string {
	return fmt.Sprintf("provider %s dispatch failed: %v", e.Provider, e.Err)
}

func (e *ProviderDispatchError) Unwrap() error {
	return e.Err
}
