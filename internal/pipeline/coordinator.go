package pipeline

import (
	"context"
	"errors"
	"log"
	"time"
)

// ErrBusy is returned when a batch is requested while another one is running
var ErrBusy = errors.New("batch already in progress")

// Stage processes one batch of claimed items
type Stage interface {
	// Name identifies the stage in logs
	Name() string

	// ProcessBatch claims up to a batch of items and drives each one to its
	// next status. Per-item errors are counted in the result; an error is
	// returned only when the batch itself could not run.
	ProcessBatch(ctx context.Context) (*BatchResult, error)
}

// BatchResult contains statistics about one batch
type BatchResult struct {
	Claimed   int
	Succeeded int
	Failed    int
	Deferred  int // Left in the entry status for a later pass
	Duration  time.Duration
	Errors    []string
}

// CoordinatorConfig holds the sleeps between batches
type CoordinatorConfig struct {
	IdleBackoff  time.Duration // After a batch that claimed nothing
	WorkDelay    time.Duration // After a batch that did work
	ErrorBackoff time.Duration // After a batch that failed as a whole
}

// Coordinator repeatedly runs a stage until its context is cancelled
type Coordinator struct {
	stage Stage
	cfg   CoordinatorConfig
	lock  BatchLock
}

// NewCoordinator creates a coordinator for stage
func NewCoordinator(stage Stage, cfg CoordinatorConfig) *Coordinator {
	return &Coordinator{stage: stage, cfg: cfg}
}

// Run loops until ctx is cancelled. Cancellation is observed between
// batches; a batch in flight runs to completion.
func (c *Coordinator) Run(ctx context.Context) error {
	log.Printf("[%s] coordinator started", c.stage.Name())
	for {
		if ctx.Err() != nil {
			log.Printf("[%s] coordinator stopped", c.stage.Name())
			return nil
		}

		result, err := c.RunOnce(context.WithoutCancel(ctx))
		delay := c.nextDelay(result, err)

		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}
}

// RunOnce runs a single batch. It returns ErrBusy if a batch is already running.
func (c *Coordinator) RunOnce(ctx context.Context) (*BatchResult, error) {
	if !c.lock.TryAcquire() {
		return nil, ErrBusy
	}
	defer c.lock.Release()

	start := time.Now()
	result, err := c.stage.ProcessBatch(ctx)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)

	if result.Claimed > 0 {
		log.Printf("[%s] batch done: claimed=%d succeeded=%d failed=%d deferred=%d in %v",
			c.stage.Name(), result.Claimed, result.Succeeded, result.Failed, result.Deferred,
			result.Duration.Round(time.Millisecond))
	}
	return result, nil
}

// nextDelay picks the sleep after a batch
func (c *Coordinator) nextDelay(result *BatchResult, err error) time.Duration {
	switch {
	case errors.Is(err, ErrBusy):
		return c.cfg.WorkDelay
	case err != nil:
		log.Printf("[%s] batch failed, backing off %v: %v", c.stage.Name(), c.cfg.ErrorBackoff, err)
		return c.cfg.ErrorBackoff
	case result.Claimed == 0, result.Succeeded+result.Failed == 0:
		// Nothing claimed, or every claimed item was deferred
		return c.cfg.IdleBackoff
	default:
		return c.cfg.WorkDelay
	}
}
