package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/middleware"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// MemberHandler handles workspace membership HTTP requests
type MemberHandler struct {
	directory *service.DirectoryService
}

// NewMemberHandler creates a new MemberHandler
func NewMemberHandler(directory *service.DirectoryService) *MemberHandler {
	return &MemberHandler{directory: directory}
}

// AddMemberRequest invites an existing user by ID or email
type AddMemberRequest struct {
	UserID      string              `json:"userId,omitempty"`
	Email       string              `json:"email,omitempty"`
	Role        domain.Role         `json:"role"`
	Permissions []domain.Permission `json:"permissions"`
}

// UpdateMemberRequest changes a member's role and explicit grants
type UpdateMemberRequest struct {
	Role        domain.Role         `json:"role"`
	Permissions []domain.Permission `json:"permissions"`
}

// MemberResponse represents a membership in API responses
type MemberResponse struct {
	WorkspaceID int32               `json:"workspaceId"`
	UserID      string              `json:"userId"`
	Role        domain.Role         `json:"role"`
	Permissions []domain.Permission `json:"permissions"`
	CreatedAt   string              `json:"createdAt"`
}

func toMemberResponse(m *domain.Membership) MemberResponse {
	perms := m.Permissions
	if perms == nil {
		perms = []domain.Permission{}
	}
	return MemberResponse{
		WorkspaceID: m.WorkspaceID,
		UserID:      m.UserID.String(),
		Role:        m.Role,
		Permissions: perms,
		CreatedAt:   m.CreatedAt.Format(time.RFC3339),
	}
}

// writeMemberError maps membership errors, deferring to writeDomainError
func writeMemberError(c echo.Context, err error, fallback string) error {
	switch {
	case errors.Is(err, domain.ErrAlreadyMember):
		return NewConflictError(c, "User is already a member of this workspace")
	case errors.Is(err, domain.ErrWorkspaceFull):
		return NewConflictError(c, "Workspace has reached its member limit")
	case errors.Is(err, domain.ErrCannotRemoveOwner):
		return NewConflictError(c, "The workspace owner cannot be removed")
	case errors.Is(err, domain.ErrOwnerRoleImmutable):
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "role", Message: "The owner role cannot be assigned or changed"},
		})
	case errors.Is(err, domain.ErrInvalidRole):
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "role", Message: "Role must be one of: admin, member, viewer"},
		})
	case errors.Is(err, domain.ErrInvalidPermission):
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "permissions", Message: "Permissions must be among: manage_users, manage_content, manage_billing, submit_job"},
		})
	}
	return writeDomainError(c, err, fallback)
}

func parseMemberPath(c echo.Context) (int32, uuid.UUID, bool) {
	wsID, ok := parseWorkspaceID(c)
	if !ok {
		return 0, uuid.Nil, false
	}
	target, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		return 0, uuid.Nil, false
	}
	return wsID, target, true
}

// ListMembers handles GET /api/v1/workspaces/:id/members
func (h *MemberHandler) ListMembers(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return NewUnauthorizedError(c, "Authentication required")
	}
	wsID, ok := parseWorkspaceID(c)
	if !ok {
		return NewValidationError(c, "Invalid workspace ID", nil)
	}

	members, err := h.directory.ListMembers(c.Request().Context(), userID, wsID)
	if err != nil {
		return writeMemberError(c, err, "Failed to list members")
	}

	response := make([]MemberResponse, len(members))
	for i, m := range members {
		response[i] = toMemberResponse(m)
	}
	return c.JSON(http.StatusOK, response)
}

// AddMember handles POST /api/v1/workspaces/:id/members
func (h *MemberHandler) AddMember(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return NewUnauthorizedError(c, "Authentication required")
	}
	wsID, ok := parseWorkspaceID(c)
	if !ok {
		return NewValidationError(c, "Invalid workspace ID", nil)
	}

	var req AddMemberRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	var target uuid.UUID
	switch {
	case req.UserID != "":
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "userId", Message: "Must be a valid UUID"},
			})
		}
		target = id
	case strings.TrimSpace(req.Email) != "":
		user, err := h.directory.FindUserByEmail(c.Request().Context(), strings.TrimSpace(req.Email))
		if err != nil {
			return writeMemberError(c, err, "Failed to look up user")
		}
		target = user.ID
	default:
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "userId", Message: "Either userId or email is required"},
		})
	}

	membership, err := h.directory.AddMember(c.Request().Context(), userID, wsID, target, req.Role, req.Permissions)
	if err != nil {
		return writeMemberError(c, err, "Failed to add member")
	}
	return c.JSON(http.StatusCreated, toMemberResponse(membership))
}

// UpdateMember handles PUT /api/v1/workspaces/:id/members/:userId
func (h *MemberHandler) UpdateMember(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return NewUnauthorizedError(c, "Authentication required")
	}
	wsID, target, ok := parseMemberPath(c)
	if !ok {
		return NewValidationError(c, "Invalid workspace or user ID", nil)
	}

	var req UpdateMemberRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	membership, err := h.directory.UpdateMember(c.Request().Context(), userID, wsID, target, req.Role, req.Permissions)
	if err != nil {
		return writeMemberError(c, err, "Failed to update member")
	}
	return c.JSON(http.StatusOK, toMemberResponse(membership))
}

// RemoveMember handles DELETE /api/v1/workspaces/:id/members/:userId
func (h *MemberHandler) RemoveMember(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return NewUnauthorizedError(c, "Authentication required")
	}
	wsID, target, ok := parseMemberPath(c)
	if !ok {
		return NewValidationError(c, "Invalid workspace or user ID", nil)
	}

	if err := h.directory.RemoveMember(c.Request().Context(), userID, wsID, target); err != nil {
		return writeMemberError(c, err, "Failed to remove member")
	}
	return c.NoContent(http.StatusNoContent)
}

// LeaveWorkspace handles POST /api/v1/workspaces/:id/leave
func (h *MemberHandler) LeaveWorkspace(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return NewUnauthorizedError(c, "Authentication required")
	}
	wsID, ok := parseWorkspaceID(c)
	if !ok {
		return NewValidationError(c, "Invalid workspace ID", nil)
	}

	if err := h.directory.LeaveWorkspace(c.Request().Context(), userID, wsID); err != nil {
		return writeMemberError(c, err, "Failed to leave workspace")
	}
	return c.NoContent(http.StatusNoContent)
}
