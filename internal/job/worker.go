package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Handler receives decoded payloads. Adding a payload kind to the union
// forces a new method here through the exhaustive dispatch switch below.
// Every handler must be idempotent: delivery is at-least-once.
type Handler interface {
	HandleOrderConfirmation(ctx context.Context, p OrderConfirmation) error
	HandleFulfillmentStart(ctx context.Context, p FulfillmentStart) error
	HandleLowStockAlert(ctx context.Context, p LowStockAlert) error
	HandleBackInStock(ctx context.Context, p BackInStock) error
	HandleCartSweep(ctx context.Context, p CartSweep) error
	HandleWebhookLedgerPurge(ctx context.Context, p WebhookLedgerPurge) error
}

// dispatch routes a payload to its handler method. The type switch is the
// single point that must stay exhaustive over the Payload union.
func dispatch(ctx context.Context, h Handler, p Payload) error {
	switch v := p.(type) {
	case OrderConfirmation:
		return h.HandleOrderConfirmation(ctx, v)
	case FulfillmentStart:
		return h.HandleFulfillmentStart(ctx, v)
	case LowStockAlert:
		return h.HandleLowStockAlert(ctx, v)
	case BackInStock:
		return h.HandleBackInStock(ctx, v)
	case CartSweep:
		return h.HandleCartSweep(ctx, v)
	case WebhookLedgerPurge:
		return h.HandleWebhookLedgerPurge(ctx, v)
	}
	return fmt.Errorf("no handler for job type %q", p.Type())
}

// WorkerConfig holds worker pool configuration.
type WorkerConfig struct {
	// Queues this pool consumes.
	Queues []string

	// Count is the number of concurrent worker goroutines.
	Count int

	// PollInterval is the idle sleep between claim attempts.
	PollInterval time.Duration

	// LockTimeout is how long a claimed job may stay locked before another
	// worker may reclaim it (crash recovery).
	LockTimeout time.Duration

	// RetryFloor and RetryCap bound the exponential retry delay applied to
	// failed jobs: floor, 2×floor, 4×floor, ... capped at RetryCap.
	RetryFloor time.Duration
	RetryCap   time.Duration
}

// DefaultWorkerConfig returns sensible defaults consuming every queue.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Queues:       []string{QueueNotifications, QueueInventory, QueueFulfillment, QueueMaintenance},
		Count:        4,
		PollInterval: 2 * time.Second,
		LockTimeout:  5 * time.Minute,
		RetryFloor:   30 * time.Second,
		RetryCap:     15 * time.Minute,
	}
}

// Worker is a pool of goroutines delivering jobs to a Handler with
// at-least-once semantics and retry-with-backoff.
type Worker struct {
	store   Store
	handler Handler
	cfg     WorkerConfig
	logger  zerolog.Logger
}

// NewWorker creates a worker pool.
func NewWorker(store Store, handler Handler, cfg WorkerConfig, logger zerolog.Logger) *Worker {
	return &Worker{
		store:   store,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With().Str("component", "job-worker").Logger(),
	}
}

// Run starts the pool and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

// loop claims and executes jobs until ctx is cancelled. Storage errors on
// the claim path back off exponentially instead of hot-looping against a
// down database.
func (w *Worker) loop(ctx context.Context, id int) {
	logger := w.logger.With().Int("worker", id).Logger()

	claimBackoff := backoff.NewExponentialBackOff()
	claimBackoff.InitialInterval = w.cfg.PollInterval
	claimBackoff.MaxInterval = w.cfg.RetryCap
	claimBackoff.MaxElapsedTime = 0 // retry for as long as the worker runs

	for {
		if ctx.Err() != nil {
			return
		}

		j, err := w.store.Claim(ctx, w.cfg.Queues, w.cfg.LockTimeout)
		if err != nil {
			wait := claimBackoff.NextBackOff()
			logger.Error().Err(err).Dur("backoff", wait).Msg("claim failed, backing off")
			if !sleep(ctx, wait) {
				return
			}
			continue
		}
		claimBackoff.Reset()

		if j == nil {
			if !sleep(ctx, w.cfg.PollInterval) {
				return
			}
			continue
		}

		w.execute(ctx, logger, j)
	}
}

// execute decodes and runs one claimed job, then settles it: complete on
// success, reschedule with backoff on failure, park when attempts run out.
// Workers never crash on a handler error; they log and defer to the retry
// machinery.
func (w *Worker) execute(ctx context.Context, logger zerolog.Logger, j *Job) {
	logger = logger.With().
		Str("job_id", j.ID.String()).
		Str("job_type", string(j.Type)).
		Int("attempt", j.Attempts).
		Logger()

	payload, err := Decode(j.Type, j.Payload)
	if err != nil {
		// Undecodable payloads never succeed on retry.
		logger.Error().Err(err).Msg("undecodable job payload, parking")
		if parkErr := w.store.Park(ctx, j.ID, err.Error()); parkErr != nil {
			logger.Error().Err(parkErr).Msg("failed to park job")
		}
		return
	}

	if err := dispatch(ctx, w.handler, payload); err != nil {
		if j.Attempts >= j.MaxAttempts {
			logger.Error().Err(err).Msg("job failed, attempts exhausted, parking")
			if parkErr := w.store.Park(ctx, j.ID, err.Error()); parkErr != nil {
				logger.Error().Err(parkErr).Msg("failed to park job")
			}
			return
		}

		delay := retryDelay(j.Attempts, w.cfg.RetryFloor, w.cfg.RetryCap)
		logger.Warn().Err(err).Dur("retry_in", delay).Msg("job failed, rescheduling")
		if rsErr := w.store.Reschedule(ctx, j.ID, time.Now().Add(delay), err.Error()); rsErr != nil {
			logger.Error().Err(rsErr).Msg("failed to reschedule job")
		}
		return
	}

	if err := w.store.Complete(ctx, j.ID); err != nil {
		// The job will be redelivered after the lock times out; handlers are
		// idempotent so this is safe.
		logger.Error().Err(err).Msg("failed to mark job complete")
		return
	}

	logger.Debug().Msg("job completed")
}

// retryDelay doubles from floor per attempt, capped.
func retryDelay(attempts int, floor, cap time.Duration) time.Duration {
	delay := floor
	for i := 1; i < attempts && delay < cap; i++ {
		delay *= 2
	}
	if delay > cap {
		delay = cap
	}
	return delay
}

// sleep waits for d or until ctx is cancelled, reporting whether to continue.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
