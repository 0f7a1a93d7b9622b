package core

import (
	"fmt"
	"sync/atomic"
	"time"
)

// workScheduler mediates between submitters and pool workers: a thread-safe
// queue plus a wake-up signal channel. FIFO admission by default; the
// priority queue variant orders by TaskTraits while staying FIFO within a
// priority level.
type workScheduler struct {
	queue       jobQueue
	signal      chan struct{}
	workerCount int

	metricQueued int32 // Waiting in queue
	metricActive int32 // Executing in a worker

	metrics Metrics

	// Lifecycle
	shuttingDown int32 // atomic flag
}

func newFIFOWorkScheduler(workerCount int, metrics Metrics) *workScheduler {
	return newWorkScheduler(workerCount, newFIFOJobQueue(), metrics)
}

func newPriorityWorkScheduler(workerCount int, metrics Metrics) *workScheduler {
	return newWorkScheduler(workerCount, newPriorityJobQueue(), metrics)
}

func newWorkScheduler(workerCount int, queue jobQueue, metrics Metrics) *workScheduler {
	if metrics == nil {
		metrics = &NilMetrics{}
	}
	return &workScheduler{
		queue:       queue,
		signal:      make(chan struct{}, workerCount*2),
		workerCount: workerCount,
		metrics:     metrics,
	}
}

// post enqueues a job. Returns false if the scheduler is shutting down; the
// caller owns settling the job's handle in that case.
func (s *workScheduler) post(item jobItem) bool {
	if atomic.LoadInt32(&s.shuttingDown) == 1 {
		s.metrics.RecordTaskRejected("pool", "shutting down")
		return false
	}

	s.queue.Push(item)
	atomic.AddInt32(&s.metricQueued, 1)

	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full, but the job is already queued; a worker will
		// find it on its next pass.
	}
	return true
}

// getWork blocks until a job is available or stopCh fires.
func (s *workScheduler) getWork(stopCh <-chan struct{}) (jobItem, bool) {
	for {
		if item, ok := s.queue.Pop(); ok {
			atomic.AddInt32(&s.metricQueued, -1)
			return item, true
		}

		select {
		case <-s.signal:
			continue
		case <-stopCh:
			return jobItem{}, false
		}
	}
}

// shutdown stops admissions and returns the abandoned queue contents so the
// pool can settle their handles.
func (s *workScheduler) shutdown() []jobItem {
	atomic.StoreInt32(&s.shuttingDown, 1)
	drained := s.queue.Drain()
	atomic.AddInt32(&s.metricQueued, -int32(len(drained)))
	return drained
}

// shutdownGraceful stops admissions and waits for queued and active jobs to
// complete. On timeout the remaining queue is abandoned and returned along
// with an error.
func (s *workScheduler) shutdownGraceful(timeout time.Duration) ([]jobItem, error) {
	atomic.StoreInt32(&s.shuttingDown, 1)

	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			drained := s.queue.Drain()
			atomic.AddInt32(&s.metricQueued, -int32(len(drained)))
			return drained, fmt.Errorf("pool drain timeout after %v: %w", timeout, ErrShutdownTimeout)
		case <-ticker.C:
			if s.QueuedCount() == 0 && s.ActiveCount() == 0 {
				return nil, nil
			}
		}
	}
}

func (s *workScheduler) WorkerCount() int { return s.workerCount }
func (s *workScheduler) QueuedCount() int { return int(atomic.LoadInt32(&s.metricQueued)) }
func (s *workScheduler) ActiveCount() int { return int(atomic.LoadInt32(&s.metricActive)) }

func (s *workScheduler) onJobStart() {
	atomic.AddInt32(&s.metricActive, 1)
}

func (s *workScheduler) onJobEnd() {
	atomic.AddInt32(&s.metricActive, -1)
}
