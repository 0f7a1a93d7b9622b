package core

import (
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// admitBuffer bounds how many submissions can be parked before Submit
// blocks waiting for the loop to drain its intake.
const admitBuffer = 64

// SchedulingLoop hosts all asynchronous tasks on one dedicated goroutine's
// schedule. Tasks are admitted from arbitrary goroutines through a
// thread-safe intake channel that the loop drains; the loop then grants
// execution slices one task at a time, so no two tasks ever execute task
// code simultaneously even though many may be logically in flight.
//
// A task runs from admission (or resumption) until it either finishes or
// reaches a suspension point (TaskContext.Yield, Sleep, AcquireToken).
// Suspension hands control back to the loop; the off-loop wait (timer,
// token slot) happens outside the loop's schedule, so the loop keeps
// serving other tasks meanwhile. Cancellation is delivered at suspension
// points only.
type SchedulingLoop struct {
	admit  chan *loopTask
	resume chan *loopTask

	ready   chan struct{}
	quit    chan struct{}
	stopped chan struct{}

	quitOnce sync.Once
	closed   atomic.Bool

	// gid holds the goroutine id currently executing on the loop's
	// schedule: the run goroutine between slices, the slice holder's
	// goroutine while task code runs. Handle.Wait checks it to refuse
	// waits that would deadlock the schedule.
	gid atomic.Uint64

	mu          sync.Mutex
	outstanding map[*loopTask]struct{}

	logger  Logger
	metrics Metrics
	record  func(TaskExecutionRecord)
}

// LoopConfig carries the loop's collaborators. Zero values get no-op
// defaults.
type LoopConfig struct {
	Logger  Logger
	Metrics Metrics
	Record  func(TaskExecutionRecord)
}

// NewSchedulingLoop creates the loop and immediately spawns its dedicated
// goroutine. Ready is closed once that goroutine is serving.
func NewSchedulingLoop(cfg LoopConfig) *SchedulingLoop {
	if cfg.Logger == nil {
		cfg.Logger = NewNoOpLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &NilMetrics{}
	}
	if cfg.Record == nil {
		cfg.Record = func(TaskExecutionRecord) {}
	}

	l := &SchedulingLoop{
		admit:       make(chan *loopTask, admitBuffer),
		resume:      make(chan *loopTask),
		ready:       make(chan struct{}),
		quit:        make(chan struct{}),
		stopped:     make(chan struct{}),
		outstanding: make(map[*loopTask]struct{}),
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		record:      cfg.Record,
	}

	go l.run()

	return l
}

// Ready returns a channel closed once the loop goroutine is serving.
func (l *SchedulingLoop) Ready() <-chan struct{} {
	return l.ready
}

// Submit hands fn to the loop from any goroutine. Returns ErrNotStarted if
// the loop is shutting down or stopped.
func (l *SchedulingLoop) Submit(fn AsyncTask) (*Handle, error) {
	if l.closed.Load() {
		return nil, ErrNotStarted
	}

	t := &loopTask{
		loop:    l,
		handle:  newHandle(l.goroutineID),
		fn:      fn,
		slice:   make(chan struct{}, 1),
		yielded: make(chan struct{}, 1),
	}

	l.register(t)

	select {
	case l.admit <- t:
	case <-l.quit:
		l.unregister(t)
		return nil, ErrNotStarted
	}

	// The admission may have raced a force stop past the loop's final
	// intake drain; don't hand out a handle that can never settle.
	select {
	case <-l.stopped:
		l.unregister(t)
		t.handle.finishCancelled()
		return nil, ErrNotStarted
	default:
		return t.handle, nil
	}
}

// OutstandingTasks returns the number of admitted, unsettled tasks.
func (l *SchedulingLoop) OutstandingTasks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.outstanding)
}

// Stats returns an observability snapshot.
func (l *SchedulingLoop) Stats() LoopStats {
	return LoopStats{
		Running:     !l.closed.Load(),
		Outstanding: l.OutstandingTasks(),
	}
}

// ShutdownGraceful stops admissions, cancels every outstanding task and
// waits up to grace for them to settle, then stops the loop. If the grace
// window elapses the loop is force-stopped regardless of outstanding tasks;
// that is reported in the logs, not as an error.
func (l *SchedulingLoop) ShutdownGraceful(grace time.Duration) {
	if !l.closed.CompareAndSwap(false, true) {
		return
	}

	l.cancelAll()

	deadline := time.After(grace)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			remaining := l.OutstandingTasks()
			l.logger.Warn("graceful loop shutdown timed out, forcing stop",
				F("outstanding", remaining))
			l.Stop()
			return
		case <-ticker.C:
			if l.OutstandingTasks() == 0 {
				l.Stop()
				return
			}
		}
	}
}

// Stop forces the loop goroutine to exit without draining. Suspended tasks
// observe cancellation at their next suspension point and settle on their
// own goroutines; never-admitted tasks settle as cancelled here.
func (l *SchedulingLoop) Stop() {
	l.closed.Store(true)
	l.quitOnce.Do(func() {
		close(l.quit)
	})
}

// Join waits for the loop goroutine to exit, up to timeout.
// Returns ErrShutdownTimeout if it does not.
func (l *SchedulingLoop) Join(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-l.stopped:
		return nil
	case <-timer.C:
		return ErrShutdownTimeout
	}
}

func (l *SchedulingLoop) goroutineID() uint64 {
	return l.gid.Load()
}

func (l *SchedulingLoop) register(t *loopTask) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outstanding[t] = struct{}{}
}

func (l *SchedulingLoop) unregister(t *loopTask) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.outstanding, t)
}

func (l *SchedulingLoop) cancelAll() {
	l.mu.Lock()
	tasks := make([]*loopTask, 0, len(l.outstanding))
	for t := range l.outstanding {
		tasks = append(tasks, t)
	}
	l.mu.Unlock()

	for _, t := range tasks {
		t.handle.Cancel()
	}
}

// run is the loop goroutine. It alternates between admitting new tasks and
// granting slices to resumed ones; exactly one task holds a slice at a
// time.
func (l *SchedulingLoop) run() {
	defer close(l.stopped)

	l.gid.Store(currentGoroutineID())
	close(l.ready)

	for {
		select {
		case <-l.quit:
			l.drainOnQuit()
			return
		case t := <-l.admit:
			l.startTask(t)
		case t := <-l.resume:
			l.grantSlice(t)
		}
	}
}

func (l *SchedulingLoop) startTask(t *loopTask) {
	t.started = true
	go t.body()
	l.grantSlice(t)
}

// grantSlice lets t run until its next suspension point or completion.
// slice and yielded are 1-buffered so neither side can strand the other
// during a force stop.
func (l *SchedulingLoop) grantSlice(t *loopTask) {
	t.slice <- struct{}{}
	<-t.yielded
	// The slice is back with the loop; reclaim the schedule's identity so
	// a suspended task's off-loop code isn't mistaken for the loop.
	l.gid.Store(currentGoroutineID())
	if t.finished {
		l.unregister(t)
	}
}

// drainOnQuit settles tasks that were admitted but never started. Started
// tasks settle themselves: their next suspension point observes the closed
// quit channel and returns cancellation.
func (l *SchedulingLoop) drainOnQuit() {
	for {
		select {
		case t := <-l.admit:
			t.handle.finishCancelled()
			l.unregister(t)
		default:
			l.mu.Lock()
			for t := range l.outstanding {
				if !t.started {
					t.handle.finishCancelled()
					delete(l.outstanding, t)
				}
			}
			l.mu.Unlock()
			return
		}
	}
}

// =============================================================================
// loopTask: one hosted task
// =============================================================================

type loopTask struct {
	loop   *SchedulingLoop
	handle *Handle
	fn     AsyncTask

	slice   chan struct{} // loop -> task: run one slice
	yielded chan struct{} // task -> loop: slice over

	started  bool // loop goroutine only
	finished bool // written by task goroutine before final yielded send
	orphaned bool // loop force-stopped while we were suspended
}

// body runs on the task's own goroutine, but only ever executes task code
// while holding the slice the loop granted.
func (t *loopTask) body() {
	startedAt := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			t.loop.metrics.RecordTaskPanic("loop", rec)
			t.loop.logger.Error("async task panicked",
				F("task", t.handle.ID()),
				F("panic", rec),
			)
			t.loop.logger.Debug("panic stack", F("stack", string(debug.Stack())))
			t.handle.fail(&TaskFailure{TaskID: t.handle.ID(), Err: panicError(rec)})
		}

		finishedAt := time.Now()
		duration := finishedAt.Sub(startedAt)
		t.loop.metrics.RecordTaskDuration("loop", TaskPriorityUserVisible, duration)
		t.loop.record(TaskExecutionRecord{
			TaskID:     t.handle.ID(),
			Executor:   "loop",
			Priority:   TaskPriorityUserVisible,
			State:      t.handle.State(),
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Duration:   duration,
		})

		t.finished = true
		t.yielded <- struct{}{}
	}()

	<-t.slice
	t.loop.gid.Store(currentGoroutineID())

	if t.handle.CancelRequested() {
		t.handle.finishCancelled()
		return
	}

	t.handle.setState(TaskStateRunning)

	tc := &TaskContext{task: t}
	result, err := t.fn(tc)

	switch {
	case err == nil:
		t.handle.succeed(result)
	case errors.Is(err, ErrTaskCancelled):
		t.handle.finishCancelled()
	default:
		t.handle.fail(&TaskFailure{TaskID: t.handle.ID(), Err: err})
	}
}

// suspend ends the current slice, performs wait off the loop's schedule,
// then reschedules. Returns ErrTaskCancelled if cancellation was requested
// or the loop was force-stopped while suspended.
func (t *loopTask) suspend(wait func(cancel <-chan struct{})) error {
	t.handle.setState(TaskStateSuspended)
	t.yielded <- struct{}{}

	if wait != nil {
		wait(t.handle.cancelCh)
	}

	select {
	case t.loop.resume <- t:
		<-t.slice
		t.loop.gid.Store(currentGoroutineID())
	case <-t.loop.quit:
		t.orphaned = true
	}

	t.handle.setState(TaskStateRunning)

	if t.orphaned || t.handle.CancelRequested() {
		return ErrTaskCancelled
	}
	return nil
}

// =============================================================================
// TaskContext: the suspension-point API handed to async tasks
// =============================================================================

// TaskContext is passed to every AsyncTask. Its methods are the task's
// suspension points and must only be called from the task body itself.
type TaskContext struct {
	task *loopTask
}

// TaskID returns the id of the hosting task's handle.
func (tc *TaskContext) TaskID() TaskID {
	return tc.task.handle.ID()
}

// Cancelled reports whether cancellation has been requested. Checking it
// does not suspend.
func (tc *TaskContext) Cancelled() bool {
	return tc.task.handle.CancelRequested()
}

// Yield hands control back to the loop so other tasks can progress, then
// resumes. Returns ErrTaskCancelled if cancellation was requested.
func (tc *TaskContext) Yield() error {
	return tc.task.suspend(nil)
}

// Sleep suspends the task for d without occupying the loop. Returns early
// with ErrTaskCancelled if cancellation is requested during the sleep.
func (tc *TaskContext) Sleep(d time.Duration) error {
	return tc.task.suspend(func(cancel <-chan struct{}) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-cancel:
		}
	})
}

// AcquireToken suspends until a token is acquired from gate, the timeout
// elapses, or the task is cancelled. The wait happens off the loop's
// schedule, so other tasks keep running; the select-based acquire means a
// timed-out wait can never consume a slot afterwards. A token acquired in
// the same instant the task is cancelled is released before returning.
func (tc *TaskContext) AcquireToken(gate *TokenGate, timeout time.Duration) (*Token, error) {
	var (
		tok  *Token
		aerr error
	)

	err := tc.task.suspend(func(cancel <-chan struct{}) {
		tok, aerr = gate.acquireWait(timeout, cancel)
	})
	if err != nil {
		tok.Release()
		return nil, err
	}
	return tok, aerr
}
