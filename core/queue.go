package core

import (
	"container/heap"
	"sync"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// jobItem is one queued blocking submission: the callable plus the handle
// the caller is holding.
type jobItem struct {
	handle *Handle
	fn     BlockingTask
	traits TaskTraits
}

// jobQueue defines the interface for the pool's queue implementations.
type jobQueue interface {
	Push(item jobItem)
	Pop() (jobItem, bool)
	Len() int
	IsEmpty() bool
	MaybeCompact()
	// Drain removes and returns all queued items so their handles can be
	// settled by the caller.
	Drain() []jobItem
}

// =============================================================================
// fifoJobQueue: efficient FIFO queue
// =============================================================================

type fifoJobQueue struct {
	mu   sync.Mutex
	jobs []jobItem
}

func newFIFOJobQueue() *fifoJobQueue {
	return &fifoJobQueue{
		jobs: make([]jobItem, 0, defaultQueueCap),
	}
}

func (q *fifoJobQueue) Push(item jobItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, item)
}

func (q *fifoJobQueue) Pop() (jobItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return jobItem{}, false
	}

	item := q.jobs[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.jobs[0] = jobItem{}
	q.jobs = q.jobs[1:]
	q.maybeCompactLocked()

	return item, true
}

func (q *fifoJobQueue) MaybeCompact() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maybeCompactLocked()
}

func (q *fifoJobQueue) maybeCompactLocked() {
	n := len(q.jobs)
	c := cap(q.jobs)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.jobs = make([]jobItem, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]jobItem, n, newCap)
	copy(newSlice, q.jobs)
	q.jobs = newSlice
}

func (q *fifoJobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *fifoJobQueue) IsEmpty() bool {
	return q.Len() == 0
}

func (q *fifoJobQueue) Drain() []jobItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := q.jobs
	q.jobs = make([]jobItem, 0, defaultQueueCap)
	return drained
}

// =============================================================================
// priorityJobQueue: Min-Heap based queue with Stability (FIFO for same priority)
// =============================================================================

type priorityJob struct {
	jobItem
	sequence uint64 // For stability
	index    int    // For heap
}

// priorityJobHeap implements heap.Interface
type priorityJobHeap []*priorityJob

func (h priorityJobHeap) Len() int { return len(h) }

// Less implements priority logic: High priority first, then Small sequence first (FIFO)
func (h priorityJobHeap) Less(i, j int) bool {
	if h[i].traits.Priority > h[j].traits.Priority {
		return true
	}
	if h[i].traits.Priority < h[j].traits.Priority {
		return false
	}
	// Same priority: earlier sequence first (FIFO)
	return h[i].sequence < h[j].sequence
}

func (h priorityJobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityJobHeap) Push(x interface{}) {
	n := len(*h)
	item := x.(*priorityJob)
	item.index = n
	*h = append(*h, item)
}

func (h *priorityJobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // Avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

type priorityJobQueue struct {
	mu           sync.Mutex
	pq           priorityJobHeap
	nextSequence uint64
}

func newPriorityJobQueue() *priorityJobQueue {
	return &priorityJobQueue{
		pq: make(priorityJobHeap, 0, defaultQueueCap),
	}
}

func (q *priorityJobQueue) Push(item jobItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pj := &priorityJob{
		jobItem:  item,
		sequence: q.nextSequence,
	}
	q.nextSequence++

	heap.Push(&q.pq, pj)
}

func (q *priorityJobQueue) Pop() (jobItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pq) == 0 {
		return jobItem{}, false
	}

	item := heap.Pop(&q.pq).(*priorityJob)
	return item.jobItem, true
}

func (q *priorityJobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pq)
}

func (q *priorityJobQueue) IsEmpty() bool {
	return q.Len() == 0
}

func (q *priorityJobQueue) MaybeCompact() {
	// Heap capacity is managed by standard append/slice mechanics; shrinking
	// would require a rebuild, which is not worth it for this queue.
}

func (q *priorityJobQueue) Drain() []jobItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := make([]jobItem, 0, len(q.pq))
	for len(q.pq) > 0 {
		item := heap.Pop(&q.pq).(*priorityJob)
		drained = append(drained, item.jobItem)
	}
	q.nextSequence = 0
	return drained
}
