package core

import (
	"context"
	"sync/atomic"
	"time"
)

// TokenGate bounds how many callers may simultaneously hold a concurrency
// token. Capacity is fixed at construction. The gate is a buffered-channel
// semaphore: acquisition is a single select over the slot channel, a timer
// and a cancellation channel, so a timed-out acquire can never consume a
// slot after the caller has given up.
type TokenGate struct {
	slots       chan struct{}
	capacity    int
	outstanding atomic.Int64

	logger  Logger
	metrics Metrics
}

// NewTokenGate creates a gate with the given capacity.
// Panics if capacity < 1.
func NewTokenGate(capacity int) *TokenGate {
	if capacity < 1 {
		panic("core: NewTokenGate requires capacity >= 1")
	}
	return &TokenGate{
		slots:    make(chan struct{}, capacity),
		capacity: capacity,
		logger:   NewNoOpLogger(),
		metrics:  &NilMetrics{},
	}
}

// SetLogger sets the logger used to report ignored releases.
func (g *TokenGate) SetLogger(logger Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// SetMetrics sets the metrics sink for token wait times.
func (g *TokenGate) SetMetrics(metrics Metrics) {
	if metrics != nil {
		g.metrics = metrics
	}
}

// Acquire blocks until a token is available or the timeout elapses.
// A timeout <= 0 waits indefinitely. Returns ErrTokenTimeout on expiry.
func (g *TokenGate) Acquire(timeout time.Duration) (*Token, error) {
	return g.acquireWait(timeout, nil)
}

// AcquireContext blocks until a token is available or ctx is done.
func (g *TokenGate) AcquireContext(ctx context.Context) (*Token, error) {
	start := time.Now()
	select {
	case g.slots <- struct{}{}:
		g.outstanding.Add(1)
		g.metrics.RecordTokenWait(time.Since(start))
		return &Token{gate: g}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire attempts to acquire a token without blocking.
func (g *TokenGate) TryAcquire() (*Token, bool) {
	select {
	case g.slots <- struct{}{}:
		g.outstanding.Add(1)
		g.metrics.RecordTokenWait(0)
		return &Token{gate: g}, true
	default:
		return nil, false
	}
}

// With acquires a token, runs fn and releases the token on every exit path,
// including panics.
func (g *TokenGate) With(timeout time.Duration, fn func() error) error {
	tok, err := g.Acquire(timeout)
	if err != nil {
		return err
	}
	defer tok.Release()
	return fn()
}

// Release returns one outstanding token slot directly, for callers using
// the counter-style AcquireToken/ReleaseToken API rather than Token values.
// Releasing with nothing outstanding is a logged no-op; the gate never goes
// negative.
func (g *TokenGate) Release() bool {
	select {
	case <-g.slots:
		g.outstanding.Add(-1)
		return true
	default:
		g.logger.Warn("token release without matching acquire ignored")
		return false
	}
}

// Capacity returns the configured capacity.
func (g *TokenGate) Capacity() int {
	return g.capacity
}

// Outstanding returns the number of tokens currently held.
func (g *TokenGate) Outstanding() int {
	return int(g.outstanding.Load())
}

// Stats returns an observability snapshot.
func (g *TokenGate) Stats() GateStats {
	return GateStats{
		Capacity:    g.capacity,
		Outstanding: g.Outstanding(),
	}
}

// acquireWait is the cancellable acquire shared by blocking callers and the
// scheduling loop's suspension path. cancel may be nil. Exactly one of the
// select arms wins: the slot is either taken or left untouched.
func (g *TokenGate) acquireWait(timeout time.Duration, cancel <-chan struct{}) (*Token, error) {
	start := time.Now()

	var timeC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeC = timer.C
	}

	select {
	case g.slots <- struct{}{}:
		g.outstanding.Add(1)
		g.metrics.RecordTokenWait(time.Since(start))
		return &Token{gate: g}, nil
	case <-timeC:
		return nil, ErrTokenTimeout
	case <-cancel:
		return nil, ErrTaskCancelled
	}
}

// Token is one unit of reserved concurrency capacity, owned exclusively by
// the acquirer until released.
type Token struct {
	gate     *TokenGate
	released atomic.Bool
}

// Release returns the token's capacity to the gate. A second Release on the
// same token is a no-op; the underlying slot is only ever returned once.
func (t *Token) Release() {
	if t == nil {
		return
	}
	if !t.released.CompareAndSwap(false, true) {
		t.gate.logger.Debug("duplicate token release ignored")
		return
	}
	t.gate.Release()
}

// Released reports whether the token has been released.
func (t *Token) Released() bool {
	return t.released.Load()
}
