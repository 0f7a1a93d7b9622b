package core

import (
	"context"

	"github.com/google/uuid"
)

// TaskID uniquely identifies a unit of submitted work.
type TaskID string

// GenerateTaskID returns a new random TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.NewString())
}

func (id TaskID) String() string {
	return string(id)
}

// AsyncTask is a suspend-capable unit of work hosted on the scheduling loop.
// The body runs serialized with every other async task; calling Yield, Sleep
// or AcquireToken on the TaskContext hands control back to the loop so other
// tasks can progress. Those calls are also where cancellation is delivered.
type AsyncTask func(tc *TaskContext) (any, error)

// BlockingTask is a blocking callable executed on a worker pool goroutine.
// The ctx is the pool's lifecycle context; it is cancelled when the pool
// stops, but a running callable is never interrupted forcibly.
type BlockingTask func(ctx context.Context) (any, error)

// TaskState is the lifecycle state of a submitted task or callable.
type TaskState int32

const (
	TaskStatePending TaskState = iota
	TaskStateRunning
	TaskStateSuspended
	TaskStateCompleted
	TaskStateFailed
	TaskStateCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskStatePending:
		return "pending"
	case TaskStateRunning:
		return "running"
	case TaskStateSuspended:
		return "suspended"
	case TaskStateCompleted:
		return "completed"
	case TaskStateFailed:
		return "failed"
	case TaskStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
		return true
	default:
		return false
	}
}

// =============================================================================
// TaskTraits: attributes attached to blocking submissions
// =============================================================================

type TaskPriority int

const (
	// TaskPriorityBestEffort: Lowest priority
	TaskPriorityBestEffort TaskPriority = iota

	// TaskPriorityUserVisible: Default priority
	TaskPriorityUserVisible

	// TaskPriorityUserBlocking: Highest priority. The submitting caller is
	// likely blocked on the handle, so the pool should schedule it first.
	TaskPriorityUserBlocking
)

func (p TaskPriority) String() string {
	switch p {
	case TaskPriorityBestEffort:
		return "best_effort"
	case TaskPriorityUserVisible:
		return "user_visible"
	case TaskPriorityUserBlocking:
		return "user_blocking"
	default:
		return "unknown"
	}
}

type TaskTraits struct {
	Priority TaskPriority
	Category string
}

func DefaultTaskTraits() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible}
}

func TraitsUserBlocking() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserBlocking}
}

func TraitsBestEffort() TaskTraits {
	return TaskTraits{Priority: TaskPriorityBestEffort}
}

func TraitsUserVisible() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible}
}
