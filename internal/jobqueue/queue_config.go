/*
Package jobqueue configuration: tunables for the River workers that route
themes and run the periodic graduation sweep.

Routing jobs run on their own queue so a slow sweep never starves ingestion.
Routing is safe to retry: a redelivered theme whose conversation is already
in its orphan is a no-op. The PM review call inside a routing job is never
retried on its own; its failure resolves to keep_together.
*/
package jobqueue

import (
	"time"

	"github.com/riverqueue/river"
)

const (
	QueueRouting    = "routing"
	QueueGraduation = "graduation"
)

// QueueConfig holds all configurable parameters for the job queue.
type QueueConfig struct {
	MaxWorkers int // concurrent routing workers (default: 10)

	// MaxAttempts bounds River's own retries for a routing job.
	MaxAttempts int

	RouteTimeout  time.Duration // per routing job
	SweepInterval time.Duration // how often the periodic sweep is enqueued
	SweepTimeout  time.Duration // per sweep job
}

func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers:    10,
		MaxAttempts:   25,
		RouteTimeout:  2 * time.Minute,
		SweepInterval: 15 * time.Minute,
		SweepTimeout:  10 * time.Minute,
	}
}

// DevelopmentQueueConfig fails faster and uses fewer connections.
func DevelopmentQueueConfig() *QueueConfig {
	config := DefaultQueueConfig()
	config.MaxWorkers = 3
	config.MaxAttempts = 5
	config.SweepInterval = time.Minute
	return config
}

// RiverQueueConfig converts our config to River's queue configuration format.
// The graduation queue has a single worker so sweeps never overlap.
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	workers := c.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	return map[string]river.QueueConfig{
		QueueRouting:    {MaxWorkers: workers},
		QueueGraduation: {MaxWorkers: 1},
	}
}

func (c *QueueConfig) routeInsertOpts() *river.InsertOpts {
	return &river.InsertOpts{Queue: QueueRouting, MaxAttempts: c.MaxAttempts}
}

func (c *QueueConfig) sweepInsertOpts() *river.InsertOpts {
	opts := &river.InsertOpts{Queue: QueueGraduation, MaxAttempts: 1}
	if c.SweepInterval > 0 {
		opts.UniqueOpts = river.UniqueOpts{ByPeriod: c.SweepInterval}
	}
	return opts
}
