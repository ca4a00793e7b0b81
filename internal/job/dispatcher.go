package job

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Dispatcher is the enqueue side of job dispatch. It is an explicit service
// instance: constructed once in main and passed by reference to consumers,
// never reached through package-level state.
type Dispatcher struct {
	store       Store
	maxAttempts int
	logger      zerolog.Logger
}

// NewDispatcher creates a dispatcher. maxAttempts bounds retries for every
// job it enqueues.
func NewDispatcher(store Store, maxAttempts int, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:       store,
		maxAttempts: maxAttempts,
		logger:      logger.With().Str("component", "job-dispatcher").Logger(),
	}
}

// Enqueue schedules a payload for immediate delivery.
func (d *Dispatcher) Enqueue(ctx context.Context, p Payload) error {
	return d.EnqueueAt(ctx, p, time.Now())
}

// EnqueueAt schedules a payload to run no earlier than runAt.
func (d *Dispatcher) EnqueueAt(ctx context.Context, p Payload, runAt time.Time) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}

	j := &Job{
		ID:          uuid.New(),
		Queue:       QueueFor(p.Type()),
		Type:        p.Type(),
		Payload:     data,
		MaxAttempts: d.maxAttempts,
		RunAt:       runAt,
		CreatedAt:   time.Now(),
	}

	if err := d.store.Enqueue(ctx, j); err != nil {
		return fmt.Errorf("failed to dispatch %s job: %w", p.Type(), err)
	}

	d.logger.Debug().
		Str("job_id", j.ID.String()).
		Str("job_type", string(p.Type())).
		Str("queue", j.Queue).
		Msg("job enqueued")

	return nil
}
