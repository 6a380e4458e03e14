package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/provider"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const defaultFailureMessage = "generation failed"

// GenerationConfig holds the orchestrator's timing knobs
type GenerationConfig struct {
	// DispatchTimeout bounds a provider Start call
	DispatchTimeout time.Duration
	// PresignExpiry is the lifetime of artifact download URLs
	PresignExpiry time.Duration
}

// SubmitInput is a job submission. WorkspaceID nil means the requester's current workspace.
type SubmitInput struct {
	WorkspaceID *int32
	Kind        domain.JobKind
	Input       domain.JobInput
}

// GenerationService drives the credit-metered job lifecycle: submission,
// dispatch to providers and resolution of provider outcomes
type GenerationService struct {
	directory      *DirectoryService
	jobs           domain.JobRepository
	tx             domain.TxRunner
	registry       *provider.Registry
	artifacts      domain.ArtifactStore
	cfg            GenerationConfig
	eventPublisher websocket.EventPublisher
	now            func() time.Time
}

// NewGenerationService creates a new GenerationService. artifacts may be nil
// when no storage is configured.
func NewGenerationService(
	directory *DirectoryService,
	jobs domain.JobRepository,
	tx domain.TxRunner,
	registry *provider.Registry,
	artifacts domain.ArtifactStore,
	cfg GenerationConfig,
) *GenerationService {
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = time.Minute
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = time.Hour
	}
	return &GenerationService{
		directory: directory,
		jobs:      jobs,
		tx:        tx,
		registry:  registry,
		artifacts: artifacts,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *GenerationService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *GenerationService) publishEvent(workspaceID int32, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(workspaceID, event)
	}
}

// Submit validates, authorizes and prices a request, reserves its credits
// together with the pending job record, then dispatches it to the provider.
// A dispatch failure marks the job failed, releases the credits and returns
// the failed job alongside a *domain.ProviderDispatchError.
func (s *GenerationService) Submit(ctx context.Context, userID uuid.UUID, in SubmitInput) (*domain.Job, error) {
	if !in.Kind.IsValid() {
		return nil, domain.NewValidationError("kind", "Unknown job kind")
	}
	if err := domain.ValidateJobInput(in.Kind, in.Input); err != nil {
		return nil, err
	}

	workspaceID, err := s.directory.ResolveCurrentWorkspace(ctx, userID, in.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if err := s.directory.Authorize(ctx, userID, workspaceID, domain.PermSubmitJob); err != nil {
		return nil, err
	}

	adapter, err := s.registry.ForKind(in.Kind)
	if err != nil {
		return nil, err
	}
	price, ok := domain.CreditPrice(in.Kind)
	if !ok {
		return nil, domain.ErrUnsupportedKind
	}

	job := &domain.Job{
		ID:              uuid.New(),
		WorkspaceID:     workspaceID,
		RequesterUserID: userID,
		Kind:            in.Kind,
		Status:          domain.JobStatusPending,
		Provider:        adapter.Name(),
		CreditsReserved: price,
		Input:           in.Input,
	}

	err = s.tx.WithTx(ctx, func(repos domain.TxRepositories) error {
		if _, err := NewLedgerService(repos.Ledger()).Reserve(ctx, workspaceID, job.ID, price); err != nil {
			return err
		}
		return repos.Jobs().Create(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("job_id", job.ID.String()).
		Int32("workspace_id", workspaceID).
		Str("kind", string(job.Kind)).
		Str("provider", job.Provider).
		Int64("credits", price).
		Msg("Job submitted")
	s.publishEvent(workspaceID, websocket.JobCreated(job))

	// The reservation is committed; finish the lifecycle even if the caller goes away.
	return s.dispatch(context.WithoutCancel(ctx), adapter, job)
}

func (s *GenerationService) dispatch(ctx context.Context, adapter provider.Adapter, job *domain.Job) (*domain.Job, error) {
	startCtx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	result, err := adapter.Start(startCtx, provider.StartRequest{
		JobID:       job.ID,
		WorkspaceID: job.WorkspaceID,
		Kind:        job.Kind,
		Input:       job.Input,
	})
	cancel()

	if err == nil && result.Sync == nil && result.ProviderJobID == "" {
		err = errors.New("provider acknowledged without a job reference")
	}
	if err != nil {
		log.Warn().
			Err(err).
			Str("job_id", job.ID.String()).
			Str("provider", job.Provider).
			Msg("Provider dispatch failed")

		failed, ferr := s.applyOutcome(ctx, job, domain.Failed(fmt.Sprintf("provider dispatch failed: %v", err)))
		if ferr != nil {
			log.Error().Err(ferr).Str("job_id", job.ID.String()).Msg("Failed to record dispatch failure")
			return nil, ferr
		}
		return failed, &domain.ProviderDispatchError{Provider: job.Provider, Err: err}
	}

	providerJobID := result.ProviderJobID
	if providerJobID == "" {
		providerJobID = job.ID.String()
	}

	processing, err := s.jobs.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.TransitionFields{
		ProviderJobID: &providerJobID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrAlreadyInState) ||
			errors.Is(err, domain.ErrProviderJobConflict) {
			return s.refuseDispatch(ctx, job, err)
		}
		return nil, err
	}

	if result.Sync == nil {
		log.Debug().
			Str("job_id", job.ID.String()).
			Str("provider_job_id", providerJobID).
			Msg("Job accepted by provider")
		s.publishEvent(job.WorkspaceID, websocket.JobUpdated(processing))
		return processing, nil
	}

	resolved, err := s.applyOutcome(ctx, processing, *result.Sync)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyInState) || errors.Is(err, domain.ErrInvalidTransition) {
			return s.jobs.GetByID(ctx, job.ID)
		}
		return nil, err
	}
	return resolved, nil
}

// refuseDispatch settles a job whose move to processing was refused. A job
// the reconciliation sweep already finished is returned as is; any other job
// is failed and its credits released.
func (s *GenerationService) refuseDispatch(ctx context.Context, job *domain.Job, cause error) (*domain.Job, error) {
	current, err := s.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return current, nil
	}

	log.Warn().
		Err(cause).
		Str("job_id", job.ID.String()).
		Str("provider", job.Provider).
		Msg("Provider acknowledgement refused")

	failed, err := s.applyOutcome(ctx, current, domain.Failed(fmt.Sprintf("provider dispatch failed: %v", cause)))
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyInState) || errors.Is(err, domain.ErrInvalidTransition) {
			return s.jobs.GetByID(ctx, job.ID)
		}
		return nil, err
	}
	return failed, &domain.ProviderDispatchError{Provider: job.Provider, Err: cause}
}

// Resolve applies a provider outcome to the job correlated by providerJobID.
// Delivering the same outcome again, or any outcome for a job that already
// finished, is a no-op.
func (s *GenerationService) Resolve(ctx context.Context, providerName, providerJobID string, outcome domain.Outcome) error {
	job, err := s.jobs.FindByProviderJobID(ctx, providerName, providerJobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		log.Debug().
			Str("job_id", job.ID.String()).
			Str("status", string(job.Status)).
			Msg("Ignoring outcome for finished job")
		return nil
	}

	_, err = s.applyOutcome(ctx, job, outcome)
	if errors.Is(err, domain.ErrAlreadyInState) || errors.Is(err, domain.ErrInvalidTransition) {
		log.Debug().Err(err).Str("job_id", job.ID.String()).Msg("Concurrent resolution absorbed")
		return nil
	}
	return err
}

// HandleWebhook authenticates and normalizes a provider callback, then
// resolves the job if the callback reports a final outcome. The returned
// event tells the caller whether anything was resolved.
func (s *GenerationService) HandleWebhook(ctx context.Context, providerName string, header http.Header, body []byte) (*provider.WebhookEvent, error) {
	parser, err := s.registry.WebhookParser(providerName)
	if err != nil {
		return nil, err
	}
	event, err := parser.ParseWebhook(header, body)
	if err != nil {
		return nil, err
	}
	if !event.Terminal() {
		log.Debug().
			Str("provider", providerName).
			Str("provider_job_id", event.ProviderJobID).
			Str("status", event.Status).
			Msg("Ignoring non-terminal webhook")
		return event, nil
	}
	if err := s.Resolve(ctx, providerName, event.ProviderJobID, *event.Outcome); err != nil {
		return nil, err
	}
	return event, nil
}

// applyOutcome moves job to its terminal state and consumes its reservation
// in one transaction
func (s *GenerationService) applyOutcome(ctx context.Context, job *domain.Job, outcome domain.Outcome) (*domain.Job, error) {
	var updated *domain.Job
	err := s.tx.WithTx(ctx, func(repos domain.TxRepositories) error {
		ledger := NewLedgerService(repos.Ledger())

		if outcome.Success {
			charged := job.CreditsReserved
			output := outcome.Output
			if output == nil {
				output = &domain.JobOutput{}
			}
			j, err := repos.Jobs().Transition(ctx, job.ID, domain.JobStatusCompleted, domain.TransitionFields{
				Output:         output,
				CreditsCharged: &charged,
			})
			if err != nil {
				return err
			}
			updated = j
			return ledger.Settle(ctx, job.ReservationToken(), charged)
		}

		msg := outcome.Error
		if msg == "" {
			msg = defaultFailureMessage
		}
		j, err := repos.Jobs().Transition(ctx, job.ID, domain.JobStatusFailed, domain.TransitionFields{
			ErrorMessage: &msg,
		})
		if err != nil {
			return err
		}
		updated = j
		return ledger.Release(ctx, job.ReservationToken())
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("job_id", updated.ID.String()).
		Int32("workspace_id", updated.WorkspaceID).
		Str("status", string(updated.Status)).
		Msg("Job resolved")
	s.publishEvent(updated.WorkspaceID, websocket.JobUpdated(updated))
	return updated, nil
}

// Get returns a job visible to the user. Any member of the job's workspace may view it.
func (s *GenerationService) Get(ctx context.Context, userID, jobID uuid.UUID) (*domain.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.directory.Authorize(ctx, userID, job.WorkspaceID, ""); err != nil {
		return nil, err
	}
	return job, nil
}

// List returns the jobs of the resolved workspace
func (s *GenerationService) List(ctx context.Context, userID uuid.UUID, workspaceID *int32, filter domain.JobFilter) ([]*domain.Job, error) {
	wsID, err := s.directory.ResolveCurrentWorkspace(ctx, userID, workspaceID)
	if err != nil {
		return nil, err
	}
	return s.jobs.ListByWorkspace(ctx, wsID, filter)
}

// Delete removes a finished job and its stored artifacts. Allowed for the
// requester and for holders of manage_content.
func (s *GenerationService) Delete(ctx context.Context, userID, jobID uuid.UUID) error {
	job, err := s.Get(ctx, userID, jobID)
	if err != nil {
		return err
	}
	if job.RequesterUserID != userID {
		if err := s.directory.Authorize(ctx, userID, job.WorkspaceID, domain.PermManageContent); err != nil {
			return err
		}
	}
	if !job.Status.IsTerminal() {
		return domain.ErrJobNotTerminal
	}

	if job.Output != nil && len(job.Output.StorageKeys) > 0 {
		if s.artifacts == nil {
			return domain.ErrStorageNotConfigured
		}
		for _, key := range job.Output.StorageKeys {
			if err := s.artifacts.Delete(ctx, key); err != nil {
				return fmt.Errorf("deleting artifact %s: %w", key, err)
			}
		}
	}

	if err := s.jobs.Delete(ctx, job.ID); err != nil {
		return err
	}

	log.Info().Str("job_id", job.ID.String()).Str("user_id", userID.String()).Msg("Job deleted")
	s.publishEvent(job.WorkspaceID, websocket.JobDeleted(map[string]interface{}{"id": job.ID}))
	return nil
}

// DownloadURLs presigns the stored artifacts of a job
func (s *GenerationService) DownloadURLs(ctx context.Context, job *domain.Job) ([]string, error) {
	if job.Output == nil || len(job.Output.StorageKeys) == 0 {
		return nil, nil
	}
	if s.artifacts == nil {
		return nil, domain.ErrStorageNotConfigured
	}
	urls := make([]string, 0, len(job.Output.StorageKeys))
	for _, key := range job.Output.StorageKeys {
		u, err := s.artifacts.PresignURL(ctx, key, s.cfg.PresignExpiry)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// SweepResult summarizes one reconciliation pass
type SweepResult struct {
	Examined int
	Failed   int
	Errors   int
}

// FailStale fails every open job that has outlived its provider's deadline,
// releasing its credits. Jobs resolved concurrently are skipped.
func (s *GenerationService) FailStale(ctx context.Context, batchSize int32) (*SweepResult, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	jobs, err := s.jobs.ListStale(ctx, s.registry.StaleCutoffs(s.now()), batchSize)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Examined: len(jobs)}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		_, err := s.applyOutcome(ctx, job, domain.Failed(domain.TimeoutErrorMessage))
		switch {
		case err == nil:
			result.Failed++
		case errors.Is(err, domain.ErrAlreadyInState), errors.Is(err, domain.ErrInvalidTransition):
		default:
			result.Errors++
			log.Error().Err(err).Str("job_id", job.ID.String()).Msg("Failed to time out job")
		}
	}
	return result, nil
}
