package core

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the runtime. Callers should test with errors.Is.
var (
	// ErrNotStarted is returned when an operation requires a running runtime.
	ErrNotStarted = errors.New("backend runtime not started")

	// ErrStartupTimeout is returned when the scheduling loop fails to report
	// ready within the configured startup window.
	ErrStartupTimeout = errors.New("scheduling loop failed to start in time")

	// ErrWaitTimeout is returned by Handle.WaitTimeout when the wait bound
	// elapses before the work settles. The underlying work keeps running.
	ErrWaitTimeout = errors.New("wait timed out")

	// ErrTokenTimeout is returned when token acquisition exceeds its bound.
	ErrTokenTimeout = errors.New("token acquisition timed out")

	// ErrTaskCancelled is returned from suspension points after cancellation
	// was requested, and reported by handles of cancelled work.
	ErrTaskCancelled = errors.New("task cancelled")

	// ErrShutdownTimeout is returned when the loop goroutine cannot be
	// joined within the configured bound.
	ErrShutdownTimeout = errors.New("shutdown join timed out")

	// ErrWaitFromLoop is returned when a blocking wait is attempted on the
	// scheduling loop goroutine itself. Waiting there would deadlock the
	// loop, so it fails fast instead.
	ErrWaitFromLoop = errors.New("blocking wait called on the scheduling loop goroutine")
)

// TaskFailure wraps an error produced inside a submitted task or callable.
// It is attached to the owning handle and never raised on an unrelated
// goroutine.
type TaskFailure struct {
	TaskID TaskID
	Err    error
}

func (e *TaskFailure) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.TaskID, e.Err)
}

func (e *TaskFailure) Unwrap() error {
	return e.Err
}

// IsTaskFailure reports whether err (or any error in its chain) is a
// [*TaskFailure].
func IsTaskFailure(err error) bool {
	if err == nil {
		return false
	}
	var tf *TaskFailure
	return errors.As(err, &tf)
}

// CauseOf unwraps the first [*TaskFailure] in err's chain and returns its
// underlying cause. If err is not a TaskFailure, it is returned as-is.
func CauseOf(err error) error {
	if err == nil {
		return nil
	}

	var tf *TaskFailure
	if errors.As(err, &tf) {
		return tf.Err
	}
	return err
}

// panicError converts a recovered panic value into an error.
func panicError(rec any) error {
	if err, ok := rec.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", rec)
}
