package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	jobColumns = `id, workspace_id, requester_user_id, kind, status, provider, provider_job_id,
		credits_reserved, credits_charged, input, output, error_message, created_at, updated_at, completed_at`

	defaultJobListLimit = 50
	maxJobListLimit     = 200
)

// JobRepository implements domain.JobRepository using PostgreSQL
type JobRepository struct {
	db DBTX
}

// NewJobRepository creates a new JobRepository
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a job. The stored timestamps are copied back onto job.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	input, err := json.Marshal(job.Input)
	if err != nil {
		return fmt.Errorf("encoding job input: %w", err)
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO generation_jobs (id, workspace_id, requester_user_id, kind, status, provider, credits_reserved, input)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		job.ID, job.WorkspaceID, job.RequesterUserID, string(job.Kind), string(job.Status),
		job.Provider, job.CreditsReserved, input,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by its ID
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1`, id))
}

// FindByProviderJobID resolves the job correlated with a provider's reference
func (r *JobRepository) FindByProviderJobID(ctx context.Context, provider, providerJobID string) (*domain.Job, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE provider = $1 AND provider_job_id = $2`,
		provider, providerJobID)
	return scanJob(row)
}

// ListByWorkspace returns the workspace's jobs, newest first
func (r *JobRepository) ListByWorkspace(ctx context.Context, workspaceID int32, filter domain.JobFilter) ([]*domain.Job, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultJobListLimit
	}
	if limit > maxJobListLimit {
		limit = maxJobListLimit
	}

	var kind, status *string
	if filter.Kind != nil {
		k := string(*filter.Kind)
		kind = &k
	}
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM generation_jobs
		WHERE workspace_id = $1
		  AND ($2::varchar IS NULL OR kind = $2)
		  AND ($3::varchar IS NULL OR status = $3)
		ORDER BY created_at DESC, id
		LIMIT $4 OFFSET $5`,
		workspaceID, kind, status, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// ListStale returns open jobs last updated before their provider's cutoff, oldest first
func (r *JobRepository) ListStale(ctx context.Context, cutoffs domain.StaleCutoffs, limit int32) ([]*domain.Job, error) {
	providers := make([]string, 0, len(cutoffs.ByProvider))
	before := make([]time.Time, 0, len(cutoffs.ByProvider))
	for name, at := range cutoffs.ByProvider {
		providers = append(providers, name)
		before = append(before, at)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM generation_jobs
		LEFT JOIN unnest($1::text[], $2::timestamptz[]) AS cutoff(cutoff_provider, cutoff_at)
			ON cutoff.cutoff_provider = generation_jobs.provider
		WHERE status IN ('pending', 'processing')
			AND updated_at < COALESCE(cutoff.cutoff_at, $3)
		ORDER BY updated_at
		LIMIT $4`, providers, before, cutoffs.Default, limit)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// Transition moves a job to status in a single guarded update. Concurrent
// callers racing on the same job see exactly one winner.
func (r *JobRepository) Transition(ctx context.Context, id uuid.UUID, status domain.JobStatus, fields domain.TransitionFields) (*domain.Job, error) {
	allowed := domain.AllowedFrom(status)
	if len(allowed) == 0 {
		return nil, domain.ErrInvalidTransition
	}
	from := make([]string, len(allowed))
	for i, s := range allowed {
		from[i] = string(s)
	}

	var output []byte
	if fields.Output != nil {
		var err error
		if output, err = json.Marshal(fields.Output); err != nil {
			return nil, fmt.Errorf("encoding job output: %w", err)
		}
	}

	row := r.db.QueryRow(ctx, `
		UPDATE generation_jobs SET
			status = $2,
			provider_job_id = COALESCE($4, provider_job_id),
			output = COALESCE($5, output),
			error_message = COALESCE($6, error_message),
			credits_charged = COALESCE($7, credits_charged),
			completed_at = CASE WHEN $2::varchar IN ('completed', 'failed') THEN now() ELSE completed_at END,
			updated_at = now()
		WHERE id = $1 AND status = ANY($3)
		RETURNING `+jobColumns,
		id, string(status), from, fields.ProviderJobID, output, fields.ErrorMessage, fields.CreditsCharged)
	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if err != domain.ErrJobNotFound {
		if isPgUniqueViolation(err) {
			return nil, domain.ErrProviderJobConflict
		}
		return nil, err
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, domain.ErrAlreadyInState
	}
	return current, domain.ErrInvalidTransition
}

// Delete removes a job record
func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM generation_jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func collectJobs(rows pgx.Rows) ([]*domain.Job, error) {
	defer rows.Close()
	result := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var j domain.Job
	var kind, status string
	var input, output []byte
	err := row.Scan(&j.ID, &j.WorkspaceID, &j.RequesterUserID, &kind, &status, &j.Provider, &j.ProviderJobID,
		&j.CreditsReserved, &j.CreditsCharged, &input, &output, &j.ErrorMessage,
		&j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	j.Kind = domain.JobKind(kind)
	j.Status = domain.JobStatus(status)
	if len(input) > 0 {
		if err := json.Unmarshal(input, &j.Input); err != nil {
			return nil, fmt.Errorf("decoding job input: %w", err)
		}
	}
	if len(output) > 0 {
		j.Output = &domain.JobOutput{}
		if err := json.Unmarshal(output, j.Output); err != nil {
			return nil, fmt.Errorf("decoding job output: %w", err)
		}
	}
	return &j, nil
}
