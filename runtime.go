package backendruntime

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-backend-runtime/core"
)

// State is the runtime's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	defaultMaxWorkers      = 4
	defaultMaxTokens       = 2
	defaultStartupTimeout  = 5 * time.Second
	defaultShutdownGrace   = 3 * time.Second
	defaultJoinTimeout     = 5 * time.Second
	defaultHistoryCapacity = 100
)

type options struct {
	maxWorkers      int
	maxTokens       int
	historyCapacity int
	priorityPool    bool
	logger          core.Logger
	metrics         core.Metrics
	startupTimeout  time.Duration
	shutdownGrace   time.Duration
	joinTimeout     time.Duration
}

// Option configures a Runtime.
type Option func(*options)

// WithMaxWorkers sets the worker pool size. Values < 1 are ignored.
func WithMaxWorkers(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.maxWorkers = n
		}
	}
}

// WithMaxTokens sets the token gate capacity. Values < 1 are ignored.
func WithMaxTokens(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.maxTokens = n
		}
	}
}

// WithPriorityPool makes the worker pool schedule by TaskTraits priority
// instead of plain FIFO.
func WithPriorityPool() Option {
	return func(o *options) { o.priorityPool = true }
}

// WithLogger sets the structured logger.
func WithLogger(logger core.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics core.Metrics) Option {
	return func(o *options) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithStartupTimeout bounds how long Start waits for the scheduling loop to
// report ready.
func WithStartupTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.startupTimeout = d
		}
	}
}

// WithShutdownGrace bounds how long Shutdown waits for outstanding work to
// settle before forcing a stop.
func WithShutdownGrace(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownGrace = d
		}
	}
}

// WithJoinTimeout bounds how long Shutdown waits for the loop goroutine to
// exit.
func WithJoinTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.joinTimeout = d
		}
	}
}

// WithHistoryCapacity sets the execution history ring size.
func WithHistoryCapacity(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.historyCapacity = n
		}
	}
}

// Runtime is the shared background execution engine sitting behind a
// latency-sensitive foreground. It owns one scheduling loop goroutine for
// asynchronous tasks, one worker pool for blocking callables, a token gate
// bounding access to limited resources, and an event registry.
//
// Construct exactly one Runtime at process start and pass it by reference
// to collaborators; there are no package-level instances.
//
// The lifecycle is re-entrant: after Shutdown, Start rebuilds the loop and
// pool (Stopped -> Running). The token gate and event registrations survive
// restarts.
type Runtime struct {
	opts options

	mu    sync.Mutex
	state State
	loop  *core.SchedulingLoop
	pool  *core.WorkerPool

	gate    *core.TokenGate
	events  *core.EventRegistry
	history *core.ExecutionHistory
}

// New creates a Runtime. Call Start before submitting async tasks;
// SubmitBlocking starts the runtime implicitly.
func New(opts ...Option) *Runtime {
	o := options{
		maxWorkers:      defaultMaxWorkers,
		maxTokens:       defaultMaxTokens,
		historyCapacity: defaultHistoryCapacity,
		logger:          core.NewNoOpLogger(),
		metrics:         &core.NilMetrics{},
		startupTimeout:  defaultStartupTimeout,
		shutdownGrace:   defaultShutdownGrace,
		joinTimeout:     defaultJoinTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	gate := core.NewTokenGate(o.maxTokens)
	gate.SetLogger(o.logger)
	gate.SetMetrics(o.metrics)

	b := &Runtime{
		opts:    o,
		state:   StateIdle,
		gate:    gate,
		events:  core.NewEventRegistry(o.logger),
		history: core.NewExecutionHistory(o.historyCapacity),
	}

	o.logger.Info("backend runtime created",
		core.F("max_workers", o.maxWorkers),
		core.F("max_tokens", o.maxTokens),
	)
	return b
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start brings the runtime to Running: it builds the worker pool and the
// scheduling loop, then blocks until the loop reports ready or the startup
// timeout elapses (ErrStartupTimeout). Calling Start on a running runtime
// is a no-op. Restarting a stopped runtime is supported.
func (b *Runtime) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startLocked()
}

func (b *Runtime) startLocked() error {
	if b.state == StateRunning {
		b.opts.logger.Debug("Start called but runtime already running")
		return nil
	}

	pool := core.NewWorkerPool(b.opts.maxWorkers, core.PoolConfig{
		Logger:   b.opts.logger,
		Metrics:  b.opts.metrics,
		Record:   b.history.Add,
		Priority: b.opts.priorityPool,
	})
	pool.Start(context.Background())

	loop := core.NewSchedulingLoop(core.LoopConfig{
		Logger:  b.opts.logger,
		Metrics: b.opts.metrics,
		Record:  b.history.Add,
	})

	timer := time.NewTimer(b.opts.startupTimeout)
	defer timer.Stop()

	select {
	case <-loop.Ready():
	case <-timer.C:
		loop.Stop()
		_ = loop.Join(b.opts.joinTimeout)
		pool.Stop(false, 0)
		return core.ErrStartupTimeout
	}

	b.loop = loop
	b.pool = pool
	b.state = StateRunning
	b.opts.logger.Info("backend runtime started")
	return nil
}

// Shutdown brings the runtime to Stopped. Ordering: stop admitting new
// async tasks, cancel and drain outstanding tasks within the grace window
// (forcing a stop if it elapses), stop the loop, stop the worker pool
// (draining queued jobs when wait is true, abandoning them otherwise), and
// finally join the loop goroutine within a bound. A failed join is
// reported as ErrShutdownTimeout. Calling Shutdown when not running is a
// no-op.
func (b *Runtime) Shutdown(wait bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateRunning {
		return nil
	}

	b.opts.logger.Info("shutting down backend runtime")

	b.loop.ShutdownGraceful(b.opts.shutdownGrace)
	b.pool.Stop(wait, b.opts.shutdownGrace)

	err := b.loop.Join(b.opts.joinTimeout)
	if err != nil {
		b.opts.logger.Error("scheduling loop join timed out")
	}

	b.loop = nil
	b.pool = nil
	b.state = StateStopped
	b.opts.logger.Info("backend runtime shutdown complete")
	return err
}

// IsRunning reports whether the runtime is in Running state.
func (b *Runtime) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateRunning
}

// State returns the current lifecycle state.
func (b *Runtime) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// =============================================================================
// Scheduling
// =============================================================================

// SubmitAsync hands fn to the scheduling loop from any goroutine and
// returns a waitable handle. Returns ErrNotStarted if the runtime is not
// running.
func (b *Runtime) SubmitAsync(fn core.AsyncTask) (*core.Handle, error) {
	b.mu.Lock()
	loop := b.loop
	running := b.state == StateRunning
	b.mu.Unlock()

	if !running || loop == nil {
		return nil, core.ErrNotStarted
	}

	b.opts.logger.Debug("scheduling async task on loop")
	return loop.Submit(fn)
}

// SubmitBlocking queues fn on the worker pool with default traits. If the
// runtime is not running it is started implicitly.
func (b *Runtime) SubmitBlocking(fn core.BlockingTask) (*core.Handle, error) {
	return b.SubmitBlockingWithTraits(fn, core.DefaultTaskTraits())
}

// SubmitBlockingWithTraits queues fn on the worker pool with the given
// traits, starting the runtime first if needed.
func (b *Runtime) SubmitBlockingWithTraits(fn core.BlockingTask, traits core.TaskTraits) (*core.Handle, error) {
	b.mu.Lock()
	if b.state != StateRunning {
		if err := b.startLocked(); err != nil {
			b.mu.Unlock()
			return nil, err
		}
	}
	pool := b.pool
	b.mu.Unlock()

	b.opts.logger.Debug("submitting blocking callable to pool")
	return pool.SubmitWithTraits(fn, traits), nil
}

// RunBlockingWait submits fn to the scheduling loop and blocks the calling
// goroutine until it settles or timeout elapses (ErrWaitTimeout). On
// timeout the task is NOT cancelled: it keeps running in the background and
// its settled result remains observable through the handle, which is lost
// to this caller; cancel explicitly via SubmitAsync + Handle.Cancel when
// that matters. timeout <= 0 waits indefinitely.
func (b *Runtime) RunBlockingWait(fn core.AsyncTask, timeout time.Duration) (any, error) {
	h, err := b.SubmitAsync(fn)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		return h.Wait()
	}
	return h.WaitTimeout(timeout)
}

// =============================================================================
// Tokens
// =============================================================================

// AcquireToken acquires one concurrency token in the counter style,
// blocking up to timeout (<= 0 waits indefinitely). Pair with ReleaseToken.
// Returns false on timeout.
func (b *Runtime) AcquireToken(timeout time.Duration) bool {
	tok, err := b.gate.Acquire(timeout)
	if err != nil {
		return false
	}
	// Counter-style callers release through ReleaseToken; forget the token
	// value so it cannot be double-released.
	_ = tok
	return true
}

// ReleaseToken releases one token acquired via AcquireToken. Releasing
// with nothing outstanding is a logged no-op.
func (b *Runtime) ReleaseToken() {
	b.gate.Release()
}

// Token acquires a token as an owned value whose Release is idempotent.
func (b *Runtime) Token(timeout time.Duration) (*core.Token, error) {
	return b.gate.Acquire(timeout)
}

// WithToken runs fn while holding a token, releasing it on every exit path.
func (b *Runtime) WithToken(timeout time.Duration, fn func() error) error {
	return b.gate.With(timeout, fn)
}

// Gate exposes the token gate, e.g. for TaskContext.AcquireToken inside
// async tasks.
func (b *Runtime) Gate() *core.TokenGate {
	return b.gate
}

// =============================================================================
// Events
// =============================================================================

// On registers callback for the named event, replacing any prior one.
func (b *Runtime) On(name string, callback core.EventCallback) {
	b.events.On(name, callback)
}

// Off removes the registration for the named event.
func (b *Runtime) Off(name string) {
	b.events.Off(name)
}

// Emit invokes the callback registered for name synchronously on the
// calling goroutine. A panicking callback is logged and swallowed.
func (b *Runtime) Emit(name string, args ...any) {
	b.events.Emit(name, args...)
}

// =============================================================================
// Observability
// =============================================================================

// Stats returns a point-in-time snapshot of the runtime's components.
func (b *Runtime) Stats() core.RuntimeStats {
	b.mu.Lock()
	loop := b.loop
	pool := b.pool
	state := b.state
	b.mu.Unlock()

	stats := core.RuntimeStats{
		State: state.String(),
		Gate:  b.gate.Stats(),
	}
	if pool != nil {
		stats.Pool = pool.Stats()
	}
	if loop != nil {
		stats.Loop = loop.Stats()
	}
	return stats
}

// History returns up to limit recent execution records, newest first.
// limit <= 0 returns all stored records.
func (b *Runtime) History(limit int) []core.TaskExecutionRecord {
	return b.history.Recent(limit)
}
