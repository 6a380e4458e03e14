package domain

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a generation job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsValid reports whether s is a known status
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no transition can leave s
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// jobTransitions lists the legal source states for each target state
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusProcessing: {JobStatusPending},
	JobStatusCompleted:  {JobStatusProcessing},
	JobStatusFailed:     {JobStatusPending, JobStatusProcessing},
}

// AllowedFrom returns the states a job may be in to move to status
func AllowedFrom(status JobStatus) []JobStatus {
	return jobTransitions[status]
}

// CanTransition reports whether from -> to is a legal transition
func CanTransition(from, to JobStatus) bool {
	return slices.Contains(jobTransitions[to], from)
}

// Job is the uniform record behind voice, avatar, image and lip-sync requests
type Job struct {
	ID              uuid.UUID  `json:"id"`
	WorkspaceID     int32      `json:"workspaceId"`
	RequesterUserID uuid.UUID  `json:"requesterUserId"`
	Kind            JobKind    `json:"kind"`
	Status          JobStatus  `json:"status"`
	Provider        string     `json:"provider"`
	ProviderJobID   *string    `json:"providerJobId,omitempty"`
	CreditsReserved int64      `json:"creditsReserved"`
	CreditsCharged  *int64     `json:"creditsCharged,omitempty"`
	Input           JobInput   `json:"input"`
	Output          *JobOutput `json:"output,omitempty"`
	ErrorMessage    *string    `json:"errorMessage,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// ReservationToken returns the single-use token holding this job's credits
func (j *Job) ReservationToken() ReservationToken {
	return ReservationToken{
		ID:          j.ID,
		WorkspaceID: j.WorkspaceID,
		Amount:      j.CreditsReserved,
	}
}

// JobInput describes what to generate. Which fields are required depends on the kind.
type JobInput struct {
	Text           string            `json:"text,omitempty"`
	Prompt         string            `json:"prompt,omitempty"`
	VoiceID        string            `json:"voiceId,omitempty"`
	Name           string            `json:"name,omitempty"`
	AudioURL       string            `json:"audioUrl,omitempty"`
	ImageURL       string            `json:"imageUrl,omitempty"`
	VideoURL       string            `json:"videoUrl,omitempty"`
	SampleURLs     []string          `json:"sampleUrls,omitempty"`
	SourceLanguage string            `json:"sourceLanguage,omitempty"`
	TargetLanguage string            `json:"targetLanguage,omitempty"`
	Options        map[string]string `json:"options,omitempty"`
}

// JobOutput references the generated artifacts
type JobOutput struct {
	URLs        []string          `json:"urls,omitempty"`
	StorageKeys []string          `json:"storageKeys,omitempty"`
	Text        string            `json:"text,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// TimeoutErrorMessage is recorded on jobs failed by the reconciliation sweep
const TimeoutErrorMessage = "provider did not report a result before the deadline"

// Outcome is the terminal result reported by a provider
type Outcome struct {
	Success bool
	Output  *JobOutput
	Error   string
}

// Succeeded builds a success outcome
func Succeeded(output *JobOutput) Outcome {
	return Outcome{Success: true, Output: output}
}

// Failed builds a failure outcome
func Failed(message string) Outcome {
	return Outcome{Error: message}
}

// TransitionFields carries the values written alongside a status change
type TransitionFields struct {
	ProviderJobID  *string
	Output         *JobOutput
	ErrorMessage   *string
	CreditsCharged *int64
}

// JobFilter narrows a job listing
type JobFilter struct {
	Kind   *JobKind
	Status *JobStatus
	Limit  int32
	Offset int32
}

// StaleCutoffs selects open jobs whose last update is older than their
// provider's deadline. Providers without an entry use Default.
type StaleCutoffs struct {
	ByProvider map[string]time.Time
	Default    time.Time
}

// For returns the cutoff that applies to provider
func (c StaleCutoffs) For(provider string) time.Time {
	if at, ok := c.ByProvider[provider]; ok {
		return at
	}
	return c.Default
}

// JobRepository defines the interface for job persistence operations
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)
	FindByProviderJobID(ctx context.Context, provider, providerJobID string) (*Job, error)
	ListByWorkspace(ctx context.Context, workspaceID int32, filter JobFilter) ([]*Job, error)
	// ListStale returns pending and processing jobs last updated before their
	// provider's cutoff, oldest first
	ListStale(ctx context.Context, cutoffs StaleCutoffs, limit int32) ([]*Job, error)
	// Transition moves a job to status if its current state allows it.
	// A job already in status yields ErrAlreadyInState, any other refusal ErrInvalidTransition.
	Transition(ctx context.Context, id uuid.UUID, status JobStatus, fields TransitionFields) (*Job, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
