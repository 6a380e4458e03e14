package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/middleware"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// WorkspaceHandler handles workspace-related HTTP requests
type WorkspaceHandler struct {
	directory *service.DirectoryService
	ledger    *service.LedgerService
}

// NewWorkspaceHandler creates a new WorkspaceHandler
func NewWorkspaceHandler(directory *service.DirectoryService, ledger *service.LedgerService) *WorkspaceHandler {
	return &WorkspaceHandler{directory: directory, ledger: ledger}
}

// CreateWorkspaceRequest represents the create workspace request body
type CreateWorkspaceRequest struct {
	Name string `json:"name"`
}

// CreditsResponse reports a workspace's spendable balance
type CreditsResponse struct {
	WorkspaceID int32 `json:"workspaceId"`
	Balance     int64 `json:"balance"`
}

// parseWorkspaceID reads the :id path parameter
func parseWorkspaceID(c echo.Context) (int32, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil || id <= 0 {
		return 0, false
	}
	return int32(id), true
}

// ListWorkspaces handles GET /api/v1/workspaces
func (h *WorkspaceHandler) ListWorkspaces(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return NewUnauthorizedError(c, "Authentication required")
	}

	workspaces, err := h.directory.ListWorkspaces(c.Request().Context(), userID)
	if err != nil {
		return writeDomainError(c, err, "Failed to list workspaces")
	}

	response := make([]WorkspaceResponse, len(workspaces))
	for i, ws := range workspaces {
		response[i] = toWorkspaceResponse(ws)
	}
	return c.JSON(http.StatusOK, response)
}

// CreateWorkspace handles POST /api/v1/workspaces
func (h *WorkspaceHandler) CreateWorkspace(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return NewUnauthorizedError(c, "Authentication required")
	}

	var req CreateWorkspaceRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	workspace, err := h.directory.CreateWorkspace(c.Request().Context(), userID, req.Name)
	if err != nil {
		if errors.Is(err, domain.ErrNameRequired) {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "name", Message: "Name is required"},
			})
		}
		if errors.Is(err, domain.ErrNameTooLong) {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "name", Message: "Name must be 255 characters or less"},
			})
		}
		return writeDomainError(c, err, "Failed to create workspace")
	}

	return c.JSON(http.StatusCreated, toWorkspaceResponse(workspace))
}

// GetWorkspace handles GET /api/v1/workspaces/:id
func (h *WorkspaceHandler) GetWorkspace(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return NewUnauthorizedError(c, "Authentication required")
	}
	wsID, ok := parseWorkspaceID(c)
	if !ok {
		return NewValidationError(c, "Invalid workspace ID", nil)
	}

	workspace, err := h.directory.GetWorkspace(c.Request().Context(), userID, wsID)
	if err != nil {
		return writeDomainError(c, err, "Failed to get workspace")
	}
	return c.JSON(http.StatusOK, toWorkspaceResponse(workspace))
}

// DeleteWorkspace handles DELETE /api/v1/workspaces/:id
func (h *WorkspaceHandler) DeleteWorkspace(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return NewUnauthorizedError(c, "Authentication required")
	}
	wsID, ok := parseWorkspaceID(c)
	if !ok {
		return NewValidationError(c, "Invalid workspace ID", nil)
	}

	if err := h.directory.DeleteWorkspace(c.Request().Context(), userID, wsID); err != nil {
		return writeDomainError(c, err, "Failed to delete workspace")
	}

	log.Info().Int32("workspace_id", wsID).Msg("Workspace deleted via API")
	return c.NoContent(http.StatusNoContent)
}

// SwitchWorkspace handles POST /api/v1/workspaces/:id/switch
func (h *WorkspaceHandler) SwitchWorkspace(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return NewUnauthorizedError(c, "Authentication required")
	}
	wsID, ok := parseWorkspaceID(c)
	if !ok {
		return NewValidationError(c, "Invalid workspace ID", nil)
	}

	if err := h.directory.SwitchWorkspace(c.Request().Context(), userID, wsID); err != nil {
		return writeDomainError(c, err, "Failed to switch workspace")
	}
	return c.NoContent(http.StatusNoContent)
}

// GetCredits handles GET /api/v1/workspaces/:id/credits
func (h *WorkspaceHandler) GetCredits(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return NewUnauthorizedError(c, "Authentication required")
	}
	wsID, ok := parseWorkspaceID(c)
	if !ok {
		return NewValidationError(c, "Invalid workspace ID", nil)
	}

	if err := h.directory.Authorize(c.Request().Context(), userID, wsID, ""); err != nil {
		return writeDomainError(c, err, "Failed to authorize")
	}
	balance, err := h.ledger.Balance(c.Request().Context(), wsID)
	if err != nil {
		return writeDomainError(c, err, "Failed to get credits")
	}
	return c.JSON(http.StatusOK, CreditsResponse{WorkspaceID: wsID, Balance: balance})
}
