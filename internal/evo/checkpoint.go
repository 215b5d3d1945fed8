package evo

import (
	"context"
	"fmt"
	"log/slog"

	"gasm/internal/metrics"
	"gasm/internal/model"
)

// Checkpointer persists periodic snapshots of a running evolution.
type Checkpointer interface {
	Checkpoint(ctx context.Context, snap model.Snapshot) error
}

// CheckpointFunc adapts a function to Checkpointer.
type CheckpointFunc func(ctx context.Context, snap model.Snapshot) error

func (f CheckpointFunc) Checkpoint(ctx context.Context, snap model.Snapshot) error {
	return f(ctx, snap)
}

// asyncCheckpointer hands snapshots to a single background writer so the
// next generation can start while the previous one is written. Writes keep
// submission order.
type asyncCheckpointer struct {
	target  Checkpointer
	logger  *slog.Logger
	metrics *metrics.Collectors
	queue   chan model.Snapshot
	done    chan struct{}
	err     error
}

func newAsyncCheckpointer(ctx context.Context, target Checkpointer, logger *slog.Logger, m *metrics.Collectors) *asyncCheckpointer {
	c := &asyncCheckpointer{
		target:  target,
		logger:  logger,
		metrics: m,
		queue:   make(chan model.Snapshot, 4),
		done:    make(chan struct{}),
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer close(c.done)
		for snap := range c.queue {
			err := c.target.Checkpoint(ctx, snap)
			c.metrics.ObserveCheckpoint(err)
			if err != nil {
				c.logger.Error("checkpoint failed", "run_id", snap.RunID, "generation", snap.Generation, "error", err)
				if c.err == nil {
					c.err = fmt.Errorf("%w: checkpoint generation %d: %w", model.ErrSnapshotIO, snap.Generation, err)
				}
				continue
			}
			c.logger.Debug("checkpoint written", "run_id", snap.RunID, "generation", snap.Generation)
		}
	}()
	return c
}

func (c *asyncCheckpointer) submit(snap model.Snapshot) {
	c.queue <- snap
}

// wait drains the queue and returns the first write failure.
func (c *asyncCheckpointer) wait() error {
	close(c.queue)
	<-c.done
	return c.err
}
