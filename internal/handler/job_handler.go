package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/middleware"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const maxJobPageSize = 100

// JobHandler handles generation job HTTP requests
type JobHandler struct {
	generation *service.GenerationService
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(generation *service.GenerationService) *JobHandler {
	return &JobHandler{generation: generation}
}

// SubmitJobRequest represents the job submission body
type SubmitJobRequest struct {
	WorkspaceID *int32          `json:"workspaceId,omitempty"`
	Kind        domain.JobKind  `json:"kind"`
	Input       domain.JobInput `json:"input"`
}

// JobOutputResponse is the public view of a job's artifacts
type JobOutputResponse struct {
	URLs         []string          `json:"urls,omitempty"`
	DownloadURLs []string          `json:"downloadUrls,omitempty"`
	Text         string            `json:"text,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// JobResponse represents a job in API responses
type JobResponse struct {
	ID              string             `json:"id"`
	WorkspaceID     int32              `json:"workspaceId"`
	RequesterUserID string             `json:"requesterUserId"`
	Kind            domain.JobKind     `json:"kind"`
	Status          domain.JobStatus   `json:"status"`
	Provider        string             `json:"provider"`
	CreditsReserved int64              `json:"creditsReserved"`
	CreditsCharged  *int64             `json:"creditsCharged,omitempty"`
	Input           domain.JobInput    `json:"input"`
	Output          *JobOutputResponse `json:"output,omitempty"`
	ErrorMessage    *string            `json:"errorMessage,omitempty"`
	CreatedAt       string             `json:"createdAt"`
	UpdatedAt       string             `json:"updatedAt"`
	CompletedAt     *string            `json:"completedAt,omitempty"`
}

func toJobResponse(j *domain.Job) JobResponse {
	resp := JobResponse{
		ID:              j.ID.String(),
		WorkspaceID:     j.WorkspaceID,
		RequesterUserID: j.RequesterUserID.String(),
		Kind:            j.Kind,
		Status:          j.Status,
		Provider:        j.Provider,
		CreditsReserved: j.CreditsReserved,
		CreditsCharged:  j.CreditsCharged,
		Input:           j.Input,
		ErrorMessage:    j.ErrorMessage,
		CreatedAt:       j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       j.UpdatedAt.Format(time.RFC3339),
	}
	if j.Output != nil {
		resp.Output = &JobOutputResponse{
			URLs:     j.Output.URLs,
			Text:     j.Output.Text,
			Metadata: j.Output.Metadata,
		}
	}
	if j.CompletedAt != nil {
		completed := j.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &completed
	}
	return resp
}

// withDownloadURLs presigns stored artifacts into the response.
// Presign failures are logged and leave the links out.
func (h *JobHandler) withDownloadURLs(c echo.Context, job *domain.Job) JobResponse {
	resp := toJobResponse(job)
	if resp.Output == nil {
		return resp
	}
	urls, err := h.generation.DownloadURLs(c.Request().Context(), job)
	if err != nil {
		log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("Failed to presign job artifacts")
		return resp
	}
	resp.Output.DownloadURLs = urls
	return resp
}

// SubmitJob handles POST /api/v1/jobs
func (h *JobHandler) SubmitJob(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return NewUnauthorizedError(c, "Authentication required")
	}

	var req SubmitJobRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	job, err := h.generation.Submit(c.Request().Context(), userID, service.SubmitInput{
		WorkspaceID: req.WorkspaceID,
		Kind:        req.Kind,
		Input:       req.Input,
	})
	if err != nil {
		var dispatchErr *domain.ProviderDispatchError
		if errors.As(err, &dispatchErr) && job != nil {
			return NewProviderError(c, dispatchErr, toJobResponse(job))
		}
		if errors.Is(err, domain.ErrUnsupportedKind) {
			return c.JSON(http.StatusUnprocessableEntity, ProblemDetails{
				Type:     ErrorTypeValidation,
				Title:    "Unsupported Job Kind",
				Status:   http.StatusUnprocessableEntity,
				Code:     CodeUnsupportedKind,
				Detail:   "No provider is configured for this job kind",
				Instance: c.Request().URL.Path,
			})
		}
		return writeDomainError(c, err, "Failed to submit job")
	}

	return c.JSON(http.StatusCreated, h.withDownloadURLs(c, job))
}

// ListJobs handles GET /api/v1/jobs
// Query params: workspaceId, kind, status, limit, offset
func (h *JobHandler) ListJobs(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return NewUnauthorizedError(c, "Authentication required")
	}

	var fieldErrors []ValidationError
	var workspaceID *int32
	if s := c.QueryParam("workspaceId"); s != "" {
		id, err := strconv.ParseInt(s, 10, 32)
		if err != nil || id <= 0 {
			fieldErrors = append(fieldErrors, ValidationError{Field: "workspaceId", Message: "Must be a positive integer"})
		} else {
			ws := int32(id)
			workspaceID = &ws
		}
	}

	filter := domain.JobFilter{Limit: 50}
	if s := c.QueryParam("kind"); s != "" {
		kind := domain.JobKind(s)
		if !kind.IsValid() {
			fieldErrors = append(fieldErrors, ValidationError{Field: "kind", Message: "Unknown job kind"})
		}
		filter.Kind = &kind
	}
	if s := c.QueryParam("status"); s != "" {
		status := domain.JobStatus(s)
		if !status.IsValid() {
			fieldErrors = append(fieldErrors, ValidationError{Field: "status", Message: "Must be one of: pending, processing, completed, failed"})
		}
		filter.Status = &status
	}
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxJobPageSize {
			fieldErrors = append(fieldErrors, ValidationError{Field: "limit", Message: "Must be between 1 and 100"})
		} else {
			filter.Limit = int32(n)
		}
	}
	if s := c.QueryParam("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			fieldErrors = append(fieldErrors, ValidationError{Field: "offset", Message: "Must be zero or greater"})
		} else {
			filter.Offset = int32(n)
		}
	}
	if len(fieldErrors) > 0 {
		return NewValidationError(c, "Validation failed", fieldErrors)
	}

	jobs, err := h.generation.List(c.Request().Context(), userID, workspaceID, filter)
	if err != nil {
		return writeDomainError(c, err, "Failed to list jobs")
	}

	response := make([]JobResponse, len(jobs))
	for i, job := range jobs {
		response[i] = toJobResponse(job)
	}
	return c.JSON(http.StatusOK, response)
}

// GetJob handles GET /api/v1/jobs/:id
func (h *JobHandler) GetJob(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return NewUnauthorizedError(c, "Authentication required")
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid job ID", nil)
	}

	job, err := h.generation.Get(c.Request().Context(), userID, jobID)
	if err != nil {
		return writeDomainError(c, err, "Failed to get job")
	}
	return c.JSON(http.StatusOK, h.withDownloadURLs(c, job))
}

// DeleteJob handles DELETE /api/v1/jobs/:id
func (h *JobHandler) DeleteJob(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return NewUnauthorizedError(c, "Authentication required")
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid job ID", nil)
	}

	if err := h.generation.Delete(c.Request().Context(), userID, jobID); err != nil {
		if errors.Is(err, domain.ErrJobNotTerminal) {
			return NewConflictError(c, "Job is still in progress")
		}
		return writeDomainError(c, err, "Failed to delete job")
	}
	return c.NoContent(http.StatusNoContent)
}
