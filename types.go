package backendruntime

import "github.com/Swind/go-backend-runtime/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the backendruntime package for most use cases.

// AsyncTask is a cooperative task scheduled on the runtime's loop goroutine
type AsyncTask = core.AsyncTask

// BlockingTask is a callable executed on the worker pool
type BlockingTask = core.BlockingTask

// TaskContext carries the cooperative facilities available inside an AsyncTask
type TaskContext = core.TaskContext

// Handle is the waitable, cancellable view of a submitted task
type Handle = core.Handle

// TaskID uniquely identifies one submission
type TaskID = core.TaskID

// TaskState is the lifecycle state of a task
type TaskState = core.TaskState

// TaskTraits defines task attributes (priority, category)
type TaskTraits = core.TaskTraits

// TaskPriority defines the priority levels for pool callables
type TaskPriority = core.TaskPriority

// TokenGate bounds concurrent access to a limited resource
type TokenGate = core.TokenGate

// Token is one acquired gate slot with idempotent release
type Token = core.Token

// EventCallback is a registered event handler
type EventCallback = core.EventCallback

// Logger is the structured logging interface used throughout the runtime
type Logger = core.Logger

// Field is one structured log field
type Field = core.Field

// Metrics is the metrics collection interface
type Metrics = core.Metrics

// TaskExecutionRecord captures one settled execution for the history ring
type TaskExecutionRecord = core.TaskExecutionRecord

// Priority constants
const (
	TaskPriorityBestEffort   TaskPriority = core.TaskPriorityBestEffort
	TaskPriorityUserVisible  TaskPriority = core.TaskPriorityUserVisible
	TaskPriorityUserBlocking TaskPriority = core.TaskPriorityUserBlocking
)

// Task state constants
const (
	TaskStatePending   TaskState = core.TaskStatePending
	TaskStateRunning   TaskState = core.TaskStateRunning
	TaskStateSuspended TaskState = core.TaskStateSuspended
	TaskStateCompleted TaskState = core.TaskStateCompleted
	TaskStateFailed    TaskState = core.TaskStateFailed
	TaskStateCancelled TaskState = core.TaskStateCancelled
)

// Sentinel errors
var (
	ErrNotStarted      = core.ErrNotStarted
	ErrStartupTimeout  = core.ErrStartupTimeout
	ErrWaitTimeout     = core.ErrWaitTimeout
	ErrTokenTimeout    = core.ErrTokenTimeout
	ErrTaskCancelled   = core.ErrTaskCancelled
	ErrShutdownTimeout = core.ErrShutdownTimeout
	ErrWaitFromLoop    = core.ErrWaitFromLoop
)

// Convenience functions for creating TaskTraits
var (
	DefaultTaskTraits  = core.DefaultTaskTraits
	TraitsUserBlocking = core.TraitsUserBlocking
	TraitsUserVisible  = core.TraitsUserVisible
	TraitsBestEffort   = core.TraitsBestEffort
)

// F creates a structured log field
var F = core.F
