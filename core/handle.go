package core

import (
	"sync"
	"sync/atomic"
	"time"
)

// Handle is a caller-held reference to in-flight work. It resolves exactly
// once with a result, an error or cancellation; waiting is safe from any
// goroutine except the scheduling loop itself.
type Handle struct {
	id TaskID

	mu     sync.Mutex
	state  atomic.Int32
	result any
	err    error
	done   chan struct{}

	cancelRequested atomic.Bool
	cancelOnce      sync.Once
	cancelCh        chan struct{}

	// loopGID reports the goroutine id currently executing on the loop's
	// schedule, or is nil when the handle belongs to the worker pool.
	loopGID func() uint64
}

func newHandle(loopGID func() uint64) *Handle {
	h := &Handle{
		id:       GenerateTaskID(),
		done:     make(chan struct{}),
		cancelCh: make(chan struct{}),
		loopGID:  loopGID,
	}
	h.state.Store(int32(TaskStatePending))
	return h
}

// ID returns the task's unique id.
func (h *Handle) ID() TaskID {
	return h.id
}

// State returns the current lifecycle state.
func (h *Handle) State() TaskState {
	return TaskState(h.state.Load())
}

// Done returns a channel closed when the work settles.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel requests cooperative cancellation. For async tasks the signal is
// delivered at the next suspension point; a task that never suspends cannot
// be cancelled promptly. For pool callables only queued, not-yet-started
// work is affected; a running callable is never interrupted.
func (h *Handle) Cancel() {
	h.cancelRequested.Store(true)
	h.cancelOnce.Do(func() {
		close(h.cancelCh)
	})
}

// CancelRequested reports whether Cancel has been called.
func (h *Handle) CancelRequested() bool {
	return h.cancelRequested.Load()
}

// Wait blocks until the work settles and returns its result or error.
// Cancelled work reports ErrTaskCancelled; failed work reports the
// TaskFailure captured from inside the task.
func (h *Handle) Wait() (any, error) {
	if h.onLoopGoroutine() {
		return nil, ErrWaitFromLoop
	}

	<-h.done
	return h.outcome()
}

// WaitTimeout is Wait with a bound. It returns ErrWaitTimeout if the work
// does not settle within d; the work itself keeps running and the handle
// can still be waited on afterwards.
func (h *Handle) WaitTimeout(d time.Duration) (any, error) {
	if h.onLoopGoroutine() {
		return nil, ErrWaitFromLoop
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-h.done:
		return h.outcome()
	case <-timer.C:
		return nil, ErrWaitTimeout
	}
}

// Result returns the settled result without blocking. It is only meaningful
// after Done is closed.
func (h *Handle) Result() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Err returns the settled error without blocking.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) outcome() (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

func (h *Handle) onLoopGoroutine() bool {
	if h.loopGID == nil {
		return false
	}
	gid := h.loopGID()
	return gid != 0 && gid == currentGoroutineID()
}

// setState records a non-terminal transition (Running/Suspended).
func (h *Handle) setState(s TaskState) {
	if TaskState(h.state.Load()).Terminal() {
		return
	}
	h.state.Store(int32(s))
}

// settle resolves the handle exactly once. Later calls are no-ops.
func (h *Handle) settle(result any, err error, s TaskState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if TaskState(h.state.Load()).Terminal() {
		return
	}

	h.result = result
	h.err = err
	h.state.Store(int32(s))
	close(h.done)
}

func (h *Handle) succeed(result any) {
	h.settle(result, nil, TaskStateCompleted)
}

func (h *Handle) fail(err error) {
	h.settle(nil, err, TaskStateFailed)
}

func (h *Handle) finishCancelled() {
	h.settle(nil, ErrTaskCancelled, TaskStateCancelled)
}
