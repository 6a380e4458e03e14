package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StaleJobSweeper fails jobs that outlived their provider deadline
type StaleJobSweeper interface {
	FailStale(ctx context.Context, batchSize int32) (*SweepResult, error)
}

// ReconciliationWorker is a background worker that periodically fails jobs
// whose provider never reported back, returning their credits
type ReconciliationWorker struct {
	sweeper   StaleJobSweeper
	logger    zerolog.Logger
	interval  time.Duration
	batchSize int32
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        sync.Mutex
	running   bool
}

// ReconciliationWorkerConfig holds configuration for the reconciliation worker
type ReconciliationWorkerConfig struct {
	Interval  time.Duration // How often to sweep
	BatchSize int32         // Jobs examined per batch
}

// DefaultReconciliationWorkerConfig returns sensible defaults
func DefaultReconciliationWorkerConfig() ReconciliationWorkerConfig {
	return ReconciliationWorkerConfig{
		Interval:  5 * time.Minute,
		BatchSize: 100,
	}
}

// NewReconciliationWorker creates a new reconciliation worker
func NewReconciliationWorker(sweeper StaleJobSweeper, logger zerolog.Logger, config ReconciliationWorkerConfig) *ReconciliationWorker {
	defaults := DefaultReconciliationWorkerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}

	return &ReconciliationWorker{
		sweeper:   sweeper,
		logger:    logger.With().Str("component", "reconciliation_worker").Logger(),
		interval:  config.Interval,
		batchSize: config.BatchSize,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background sweep
func (w *ReconciliationWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info().
		Dur("interval", w.interval).
		Int32("batch_size", w.batchSize).
		Msg("Starting reconciliation worker")

	go w.run(ctx)
}

// Stop gracefully stops the worker
func (w *ReconciliationWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.logger.Info().Msg("Stopping reconciliation worker")
	close(w.stopCh)
	<-w.doneCh
	w.logger.Info().Msg("Reconciliation worker stopped")
}

func (w *ReconciliationWorker) run(ctx context.Context) {
	defer close(w.doneCh)
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	// Run immediately on startup
	w.Sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep fails stale jobs batch by batch until a batch comes back short.
// It returns the number of jobs failed.
func (w *ReconciliationWorker) Sweep(ctx context.Context) int {
	startTime := time.Now()
	total := &SweepResult{}

	for {
		select {
		case <-ctx.Done():
			return total.Failed
		case <-w.stopCh:
			return total.Failed
		default:
		}

		result, err := w.sweeper.FailStale(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("Failed to sweep stale jobs")
			return total.Failed
		}
		total.Examined += result.Examined
		total.Failed += result.Failed
		total.Errors += result.Errors

		// A full batch that was all resolved concurrently or errored would loop forever
		if result.Examined < int(w.batchSize) || result.Failed == 0 {
			break
		}
	}

	if total.Examined > 0 {
		w.logger.Info().
			Int("examined", total.Examined).
			Int("failed", total.Failed).
			Int("errors", total.Errors).
			Dur("elapsed", time.Since(startTime)).
			Msg("Completed stale job sweep")
	}
	return total.Failed
}

// IsRunning returns whether the worker is currently running
func (w *ReconciliationWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
