package core

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLoop(t *testing.T) *SchedulingLoop {
	t.Helper()
	loop := NewSchedulingLoop(LoopConfig{})
	select {
	case <-loop.Ready():
	case <-time.After(time.Second):
		t.Fatal("loop never became ready")
	}
	t.Cleanup(func() {
		loop.Stop()
		_ = loop.Join(time.Second)
	})
	return loop
}

func TestSchedulingLoop_BasicExecution(t *testing.T) {
	loop := newTestLoop(t)

	h, err := loop.Submit(func(tc *TaskContext) (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	result, err := h.WaitTimeout(time.Second)
	if err != nil {
		t.Fatalf("task failed: %v", err)
	}
	if result != 42 {
		t.Errorf("expected 42, got %v", result)
	}
	if h.State() != TaskStateCompleted {
		t.Errorf("expected completed state, got %v", h.State())
	}
}

func TestSchedulingLoop_NoConcurrentExecution(t *testing.T) {
	loop := newTestLoop(t)

	var (
		concurrent int32
		violations int32
	)

	task := func(tc *TaskContext) (any, error) {
		for i := 0; i < 5; i++ {
			if atomic.AddInt32(&concurrent, 1) > 1 {
				atomic.AddInt32(&violations, 1)
			}
			time.Sleep(time.Millisecond) // hold the slice while "working"
			atomic.AddInt32(&concurrent, -1)
			if err := tc.Yield(); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	handles := make([]*Handle, 0, 4)
	for i := 0; i < 4; i++ {
		h, err := loop.Submit(task)
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		handles = append(handles, h)
	}

	for _, h := range handles {
		if _, err := h.WaitTimeout(2 * time.Second); err != nil {
			t.Fatalf("task failed: %v", err)
		}
	}

	if v := atomic.LoadInt32(&violations); v != 0 {
		t.Errorf("observed %d concurrent execution violations", v)
	}
}

func TestSchedulingLoop_SleepDoesNotBlockLoop(t *testing.T) {
	loop := newTestLoop(t)

	sleeper, err := loop.Submit(func(tc *TaskContext) (any, error) {
		if err := tc.Sleep(200 * time.Millisecond); err != nil {
			return nil, err
		}
		return "slept", nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// A task submitted while the sleeper is suspended must complete well
	// before the sleeper wakes.
	start := time.Now()
	quick, err := loop.Submit(func(tc *TaskContext) (any, error) {
		return "quick", nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if _, err := quick.WaitTimeout(time.Second); err != nil {
		t.Fatalf("quick task failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("quick task was blocked behind a sleeping task: %v", elapsed)
	}

	if result, err := sleeper.WaitTimeout(time.Second); err != nil || result != "slept" {
		t.Fatalf("sleeper outcome = (%v, %v)", result, err)
	}
}

func TestSchedulingLoop_CancelDeliveredAtSuspension(t *testing.T) {
	loop := newTestLoop(t)

	started := make(chan struct{})
	cleanedUp := make(chan struct{})

	h, err := loop.Submit(func(tc *TaskContext) (any, error) {
		close(started)
		for {
			if err := tc.Sleep(10 * time.Millisecond); err != nil {
				close(cleanedUp)
				return nil, err
			}
		}
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	<-started
	h.Cancel()

	select {
	case <-cleanedUp:
	case <-time.After(time.Second):
		t.Fatal("cancellation was not delivered at the suspension point")
	}

	if _, err := h.WaitTimeout(time.Second); !errors.Is(err, ErrTaskCancelled) {
		t.Fatalf("expected ErrTaskCancelled, got %v", err)
	}
	if h.State() != TaskStateCancelled {
		t.Errorf("expected cancelled state, got %v", h.State())
	}
}

func TestSchedulingLoop_CancelBeforeStart(t *testing.T) {
	loop := newTestLoop(t)

	// Park the loop so the second submission stays pending.
	gateCh := make(chan struct{})
	blocker, err := loop.Submit(func(tc *TaskContext) (any, error) {
		<-gateCh
		return nil, nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	var ran atomic.Bool
	victim, err := loop.Submit(func(tc *TaskContext) (any, error) {
		ran.Store(true)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	victim.Cancel()
	close(gateCh)

	if _, err := victim.WaitTimeout(time.Second); !errors.Is(err, ErrTaskCancelled) {
		t.Fatalf("expected ErrTaskCancelled, got %v", err)
	}
	if ran.Load() {
		t.Error("cancelled-before-start task body still ran")
	}
	if _, err := blocker.WaitTimeout(time.Second); err != nil {
		t.Fatalf("blocker failed: %v", err)
	}
}

func TestSchedulingLoop_PanicIsolation(t *testing.T) {
	loop := newTestLoop(t)

	bad, err := loop.Submit(func(tc *TaskContext) (any, error) {
		panic("task exploded")
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if _, err := bad.WaitTimeout(time.Second); err == nil {
		t.Fatal("expected panicking task to fail")
	} else if !IsTaskFailure(err) {
		t.Errorf("expected TaskFailure, got %T: %v", err, err)
	}
	if bad.State() != TaskStateFailed {
		t.Errorf("expected failed state, got %v", bad.State())
	}

	// The loop survives and keeps scheduling.
	good, err := loop.Submit(func(tc *TaskContext) (any, error) {
		return "still alive", nil
	})
	if err != nil {
		t.Fatalf("submit after panic failed: %v", err)
	}
	if result, err := good.WaitTimeout(time.Second); err != nil || result != "still alive" {
		t.Fatalf("loop did not survive task panic: (%v, %v)", result, err)
	}
}

func TestSchedulingLoop_TaskError(t *testing.T) {
	loop := newTestLoop(t)

	wantErr := errors.New("domain failure")
	h, err := loop.Submit(func(tc *TaskContext) (any, error) {
		return nil, wantErr
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	_, err = h.WaitTimeout(time.Second)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped domain error, got %v", err)
	}

	var failure *TaskFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *TaskFailure, got %T", err)
	}
	if failure.TaskID != h.ID() {
		t.Errorf("failure carries wrong task id: %s != %s", failure.TaskID, h.ID())
	}
}

func TestSchedulingLoop_AcquireTokenSuspends(t *testing.T) {
	loop := newTestLoop(t)
	gate := NewTokenGate(1)

	blockerTok, err := gate.Acquire(0)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	waiter, err := loop.Submit(func(tc *TaskContext) (any, error) {
		tok, err := tc.AcquireToken(gate, time.Second)
		if err != nil {
			return nil, err
		}
		defer tok.Release()
		return "got token", nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// While the waiter is suspended on the gate, the loop still runs
	// other tasks.
	other, err := loop.Submit(func(tc *TaskContext) (any, error) {
		return "interleaved", nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := other.WaitTimeout(time.Second); err != nil {
		t.Fatalf("loop blocked while a task waited for a token: %v", err)
	}

	blockerTok.Release()
	if result, err := waiter.WaitTimeout(time.Second); err != nil || result != "got token" {
		t.Fatalf("waiter outcome = (%v, %v)", result, err)
	}
	if gate.Outstanding() != 0 {
		t.Errorf("expected all tokens returned, outstanding=%d", gate.Outstanding())
	}
}

func TestSchedulingLoop_AcquireTokenTimeout(t *testing.T) {
	loop := newTestLoop(t)
	gate := NewTokenGate(1)

	tok, err := gate.Acquire(0)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer tok.Release()

	h, err := loop.Submit(func(tc *TaskContext) (any, error) {
		return tc.AcquireToken(gate, 30*time.Millisecond)
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if _, err := h.WaitTimeout(time.Second); !errors.Is(err, ErrTokenTimeout) {
		t.Fatalf("expected ErrTokenTimeout, got %v", err)
	}
}

func TestSchedulingLoop_GracefulShutdownDrains(t *testing.T) {
	loop := NewSchedulingLoop(LoopConfig{})
	<-loop.Ready()

	var completed int32
	handles := make([]*Handle, 0, 3)
	for i := 0; i < 3; i++ {
		h, err := loop.Submit(func(tc *TaskContext) (any, error) {
			if err := tc.Sleep(20 * time.Millisecond); err != nil {
				return nil, err
			}
			atomic.AddInt32(&completed, 1)
			return nil, nil
		})
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		handles = append(handles, h)
	}

	loop.ShutdownGraceful(2 * time.Second)
	if err := loop.Join(time.Second); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	for _, h := range handles {
		// Cancellation was requested, but tasks that finish inside the
		// grace window settle with whatever outcome they produced.
		if !h.State().Terminal() {
			t.Errorf("task %s left unsettled after graceful shutdown", h.ID())
		}
	}

	if _, err := loop.Submit(func(tc *TaskContext) (any, error) { return nil, nil }); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted after shutdown, got %v", err)
	}
}

func TestSchedulingLoop_ForcedStopSettlesHandles(t *testing.T) {
	loop := NewSchedulingLoop(LoopConfig{})
	<-loop.Ready()

	// A task that ignores its cancel signal and sleeps off-loop forever
	// would outlive the grace window.
	stubborn, err := loop.Submit(func(tc *TaskContext) (any, error) {
		for {
			if err := tc.Sleep(5 * time.Millisecond); err != nil {
				return nil, err
			}
		}
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	loop.ShutdownGraceful(50 * time.Millisecond)
	if err := loop.Join(time.Second); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	if _, err := stubborn.WaitTimeout(time.Second); !errors.Is(err, ErrTaskCancelled) {
		t.Fatalf("expected ErrTaskCancelled after forced stop, got %v", err)
	}
}

func TestSchedulingLoop_WaitFromLoopGoroutineFails(t *testing.T) {
	loop := newTestLoop(t)

	inner, err := loop.Submit(func(tc *TaskContext) (any, error) {
		return "inner", nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	outer, err := loop.Submit(func(tc *TaskContext) (any, error) {
		// Waiting on another loop task from the loop goroutine would
		// deadlock; it must fail fast instead.
		_, werr := inner.Wait()
		return nil, werr
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	_, err = outer.WaitTimeout(time.Second)
	if !errors.Is(err, ErrWaitFromLoop) {
		t.Fatalf("expected ErrWaitFromLoop, got %v", err)
	}
}

func TestSchedulingLoop_Stats(t *testing.T) {
	loop := newTestLoop(t)

	release := make(chan struct{})
	h, err := loop.Submit(func(tc *TaskContext) (any, error) {
		return nil, tc.task.suspend(func(cancel <-chan struct{}) {
			select {
			case <-release:
			case <-cancel:
			}
		})
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	stats := loop.Stats()
	if !stats.Running {
		t.Error("expected loop running")
	}
	if stats.Outstanding != 1 {
		t.Errorf("expected 1 outstanding task, got %d", stats.Outstanding)
	}

	close(release)
	if _, err := h.WaitTimeout(time.Second); err != nil {
		t.Fatalf("task failed: %v", err)
	}
	if n := loop.OutstandingTasks(); n != 0 {
		t.Errorf("expected 0 outstanding after settle, got %d", n)
	}
}
