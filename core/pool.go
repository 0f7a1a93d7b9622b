package core

import (
	"context"
	"runtime/debug"
	"sync"
	"time"
)

// WorkerPool executes blocking callables on a fixed set of worker
// goroutines. Submission never blocks and never rejects while the pool is
// running; callers wait via the returned handle. Failures (errors and
// panics) are captured on the handle, never on the submitting goroutine,
// and a panicking callable does not kill its worker.
type WorkerPool struct {
	workers int
	sched   *workScheduler
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	running   bool
	runningMu sync.RWMutex

	logger  Logger
	metrics Metrics
	record  func(TaskExecutionRecord)
}

// PoolConfig carries the pool's collaborators. Zero values get no-op
// defaults.
type PoolConfig struct {
	Logger  Logger
	Metrics Metrics
	// Record, when set, receives one TaskExecutionRecord per settled job.
	Record func(TaskExecutionRecord)
	// Priority selects the priority queue instead of plain FIFO.
	Priority bool
}

// NewWorkerPool creates a pool with the given number of workers.
// Panics if workers < 1. Call Start before submitting.
func NewWorkerPool(workers int, cfg PoolConfig) *WorkerPool {
	if workers < 1 {
		panic("core: NewWorkerPool requires workers >= 1")
	}

	if cfg.Logger == nil {
		cfg.Logger = NewNoOpLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &NilMetrics{}
	}
	if cfg.Record == nil {
		cfg.Record = func(TaskExecutionRecord) {}
	}

	var sched *workScheduler
	if cfg.Priority {
		sched = newPriorityWorkScheduler(workers, cfg.Metrics)
	} else {
		sched = newFIFOWorkScheduler(workers, cfg.Metrics)
	}

	return &WorkerPool{
		workers: workers,
		sched:   sched,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		record:  cfg.Record,
	}
}

// Start launches the worker goroutines. Calling Start on a running pool is
// a no-op.
func (p *WorkerPool) Start(ctx context.Context) {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if p.running {
		return
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i, p.ctx)
	}

	p.logger.Debug("worker pool started", F("workers", p.workers))
}

// Submit queues fn for execution with default traits.
func (p *WorkerPool) Submit(fn BlockingTask) *Handle {
	return p.SubmitWithTraits(fn, DefaultTaskTraits())
}

// SubmitWithTraits queues fn with the given traits. The returned handle
// settles when the callable finishes; if the pool is stopping, the handle
// fails immediately with ErrNotStarted.
func (p *WorkerPool) SubmitWithTraits(fn BlockingTask, traits TaskTraits) *Handle {
	h := newHandle(nil)
	if !p.sched.post(jobItem{handle: h, fn: fn, traits: traits}) {
		h.fail(ErrNotStarted)
	}
	return h
}

// Stop shuts the pool down. With wait true, queued and active jobs are
// drained up to grace; on timeout (or with wait false) queued jobs are
// abandoned and their handles fail as cancelled. Already-running callables
// are never interrupted; workers finish their current job before exiting.
func (p *WorkerPool) Stop(wait bool, grace time.Duration) {
	p.runningMu.Lock()
	if !p.running {
		p.runningMu.Unlock()
		// Settle anything queued while never started.
		p.failAbandoned(p.sched.shutdown())
		return
	}
	p.runningMu.Unlock()

	if wait {
		abandoned, err := p.sched.shutdownGraceful(grace)
		if err != nil {
			p.logger.Warn("worker pool drain timed out, abandoning queued jobs",
				F("abandoned", len(abandoned)))
		}
		p.failAbandoned(abandoned)
	} else {
		p.failAbandoned(p.sched.shutdown())
	}

	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.runningMu.Lock()
	p.running = false
	p.runningMu.Unlock()

	p.logger.Debug("worker pool stopped")
}

// IsRunning reports whether the pool is running.
func (p *WorkerPool) IsRunning() bool {
	p.runningMu.RLock()
	defer p.runningMu.RUnlock()
	return p.running
}

// WorkerCount returns the number of workers.
func (p *WorkerPool) WorkerCount() int {
	return p.workers
}

// Stats returns an observability snapshot.
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Workers: p.workers,
		Queued:  p.sched.QueuedCount(),
		Active:  p.sched.ActiveCount(),
		Running: p.IsRunning(),
	}
}

func (p *WorkerPool) failAbandoned(items []jobItem) {
	for _, item := range items {
		item.handle.finishCancelled()
		p.metrics.RecordTaskRejected("pool", "abandoned")
	}
}

// workerLoop is the main loop for each worker.
func (p *WorkerPool) workerLoop(id int, ctx context.Context) {
	defer p.wg.Done()
	stopCh := ctx.Done()

	for {
		item, ok := p.sched.getWork(stopCh)
		if !ok {
			// Queue closed or context cancelled
			return
		}

		p.sched.onJobStart()
		p.runJob(id, ctx, item)
		p.sched.onJobEnd()
	}
}

// runJob executes one callable, capturing error or panic onto the handle.
func (p *WorkerPool) runJob(id int, ctx context.Context, item jobItem) {
	h := item.handle

	if h.CancelRequested() {
		h.finishCancelled()
		return
	}

	h.setState(TaskStateRunning)
	startedAt := time.Now()

	defer func() {
		finishedAt := time.Now()
		state := h.State()

		if rec := recover(); rec != nil {
			p.metrics.RecordTaskPanic("pool", rec)
			p.logger.Error("worker recovered panic",
				F("worker", id),
				F("task", h.ID()),
				F("panic", rec),
			)
			p.logger.Debug("panic stack", F("stack", string(debug.Stack())))
			h.fail(&TaskFailure{TaskID: h.ID(), Err: panicError(rec)})
			state = TaskStateFailed
		}

		duration := finishedAt.Sub(startedAt)
		p.metrics.RecordTaskDuration("pool", item.traits.Priority, duration)
		p.record(TaskExecutionRecord{
			TaskID:     h.ID(),
			Executor:   "pool",
			Category:   item.traits.Category,
			Priority:   item.traits.Priority,
			State:      state,
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Duration:   duration,
		})
	}()

	result, err := item.fn(ctx)
	if err != nil {
		h.fail(&TaskFailure{TaskID: h.ID(), Err: err})
		return
	}
	h.succeed(result)
}
