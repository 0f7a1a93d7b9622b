package core

import "time"

// Metrics defines the interface for collecting runtime execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution.
type Metrics interface {
	// RecordTaskDuration records how long a task or callable took to execute.
	// executor is "loop" or "pool".
	RecordTaskDuration(executor string, priority TaskPriority, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(executor string, panicInfo any)

	// RecordTaskRejected records that a submission was rejected (e.g., during shutdown).
	RecordTaskRejected(executor string, reason string)

	// RecordQueueDepth records the current queue depth.
	RecordQueueDepth(executor string, depth int)

	// RecordTokenWait records how long a caller waited to acquire a token.
	RecordTokenWait(duration time.Duration)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(executor string, priority TaskPriority, duration time.Duration) {
}

func (m *NilMetrics) RecordTaskPanic(executor string, panicInfo any) {}

func (m *NilMetrics) RecordTaskRejected(executor string, reason string) {}

func (m *NilMetrics) RecordQueueDepth(executor string, depth int) {}

func (m *NilMetrics) RecordTokenWait(duration time.Duration) {}

// =============================================================================
// Stats snapshots
// =============================================================================

// PoolStats represents runtime observability state for the worker pool.
type PoolStats struct {
	Workers int
	Queued  int
	Active  int
	Running bool
}

// LoopStats represents runtime observability state for the scheduling loop.
type LoopStats struct {
	Running     bool
	Outstanding int
}

// GateStats represents runtime observability state for the token gate.
type GateStats struct {
	Capacity    int
	Outstanding int
}

// RuntimeStats aggregates the runtime's component snapshots.
type RuntimeStats struct {
	State string
	Pool  PoolStats
	Loop  LoopStats
	Gate  GateStats
}
