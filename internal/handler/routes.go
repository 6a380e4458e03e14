package handler

import (
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/middleware"
	"github.com/labstack/echo/v4"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	Auth      *AuthHandler
	Workspace *WorkspaceHandler
	Member    *MemberHandler
	Job       *JobHandler
	Webhook   *WebhookHandler
	WebSocket *WebSocketHandler
}

// RegisterRoutes sets up all API routes. submitLimiter throttles job
// submissions per user and may be nil.
func RegisterRoutes(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, submitLimiter *middleware.RateLimiter, h Handlers) {
	// API version 1
	api := e.Group("/api/v1")

	// Provider callbacks authenticate with their own signatures
	api.POST("/webhooks/:provider", h.Webhook.Receive)

	// WebSocket authenticates with a token query param
	if h.WebSocket != nil {
		api.GET("/ws", h.WebSocket.HandleWS)
	}

	// Auth routes (protected)
	auth := api.Group("/auth")
	auth.Use(authMiddleware.Authenticate())
	auth.GET("/me", h.Auth.Me)
	auth.POST("/logout", h.Auth.Logout)

	// Workspace routes (protected)
	workspaces := api.Group("/workspaces")
	workspaces.Use(authMiddleware.Authenticate())
	workspaces.GET("", h.Workspace.ListWorkspaces)
	workspaces.POST("", h.Workspace.CreateWorkspace)
	workspaces.GET("/:id", h.Workspace.GetWorkspace)
	workspaces.DELETE("/:id", h.Workspace.DeleteWorkspace)
	workspaces.POST("/:id/switch", h.Workspace.SwitchWorkspace)
	workspaces.GET("/:id/credits", h.Workspace.GetCredits)

	// Member routes (protected)
	workspaces.GET("/:id/members", h.Member.ListMembers)
	workspaces.POST("/:id/members", h.Member.AddMember)
	workspaces.PUT("/:id/members/:userId", h.Member.UpdateMember)
	workspaces.DELETE("/:id/members/:userId", h.Member.RemoveMember)
	workspaces.POST("/:id/leave", h.Member.LeaveWorkspace)

	// Job routes (protected)
	jobs := api.Group("/jobs")
	jobs.Use(authMiddleware.Authenticate())
	if submitLimiter != nil {
		jobs.POST("", h.Job.SubmitJob, middleware.RateLimitMiddleware(submitLimiter))
	} else {
		jobs.POST("", h.Job.SubmitJob)
	}
	jobs.GET("", h.Job.ListJobs)
	jobs.GET("/:id", h.Job.GetJob)
	jobs.DELETE("/:id", h.Job.DeleteJob)
}
