package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/middleware"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	authService *service.AuthService
	directory   *service.DirectoryService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *service.AuthService, directory *service.DirectoryService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		directory:   directory,
	}
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID                 string  `json:"id"`
	Email              string  `json:"email"`
	Name               *string `json:"name"`
	CurrentWorkspaceID *int32  `json:"currentWorkspaceId"`
}

// WorkspaceResponse represents a workspace in API responses
type WorkspaceResponse struct {
	ID             int32  `json:"id"`
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	OwnerID        string `json:"ownerId"`
	CreditsBalance int64  `json:"creditsBalance"`
	MaxUsers       int32  `json:"maxUsers"`
	CreatedAt      string `json:"createdAt"`
}

// MeResponse is the current user with their current workspace, if any
type MeResponse struct {
	User      UserResponse       `json:"user"`
	Workspace *WorkspaceResponse `json:"workspace"`
	Role      *domain.Role       `json:"role,omitempty"`
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:                 u.ID.String(),
		Email:              u.Email,
		Name:               u.Name,
		CurrentWorkspaceID: u.CurrentWorkspaceID,
	}
}

func toWorkspaceResponse(w *domain.Workspace) WorkspaceResponse {
	return WorkspaceResponse{
		ID:             w.ID,
		Name:           w.Name,
		Slug:           w.Slug,
		OwnerID:        w.OwnerID.String(),
		CreditsBalance: w.CreditsBalance,
		MaxUsers:       w.MaxUsers,
		CreatedAt:      w.CreatedAt.Format(time.RFC3339),
	}
}

// Me returns the current authenticated user's information
// GET /me
func (h *AuthHandler) Me(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return NewUnauthorizedError(c, "Authentication required")
	}

	user, err := h.authService.GetUserByID(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return NewNotFoundError(c, "User not found")
		}
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to get user")
		return NewInternalError(c, "Failed to get user")
	}

	response := MeResponse{User: toUserResponse(user)}

	wsID, err := h.directory.ResolveCurrentWorkspace(c.Request().Context(), userID, nil)
	switch {
	case errors.Is(err, domain.ErrNoWorkspaceSelected):
		response.User.CurrentWorkspaceID = nil
		return c.JSON(http.StatusOK, response)
	case err != nil:
		return writeDomainError(c, err, "Failed to resolve workspace")
	}

	workspace, err := h.directory.GetWorkspace(c.Request().Context(), userID, wsID)
	if err != nil {
		return writeDomainError(c, err, "Failed to get workspace")
	}
	membership, err := h.directory.Membership(c.Request().Context(), userID, wsID)
	if err != nil {
		return writeDomainError(c, err, "Failed to get membership")
	}

	ws := toWorkspaceResponse(workspace)
	response.Workspace = &ws
	response.Role = &membership.Role

	return c.JSON(http.StatusOK, response)
}

// LogoutResponse represents the response from logout
type LogoutResponse struct {
	Message string `json:"message"`
}

// Logout handles user logout
// POST /auth/logout
func (h *AuthHandler) Logout(c echo.Context) error {
	auth0ID := middleware.GetAuth0ID(c)
	if auth0ID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	// Log the logout event (useful for audit)
	log.Info().Str("auth0_id", auth0ID).Msg("User logged out")

	// Return success - Auth0 handles actual session termination
	return c.JSON(http.StatusOK, LogoutResponse{
		Message: "Logged out successfully",
	})
}
