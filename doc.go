// Package backendruntime provides a shared background execution runtime for
// applications with a latency-sensitive foreground.
//
// The runtime owns one scheduling loop goroutine for cooperative async
// tasks, one worker pool for blocking callables, a token gate bounding
// access to a limited external resource, and a named-event registry.
// Construct exactly one Runtime at process start and pass it to
// collaborators.
//
// # Quick Start
//
// Create and start the runtime:
//
//	rt := backendruntime.New(
//		backendruntime.WithMaxWorkers(4),
//		backendruntime.WithMaxTokens(2),
//	)
//	if err := rt.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer rt.Shutdown(true)
//
// Submit an async task to the scheduling loop:
//
//	handle, _ := rt.SubmitAsync(func(tc *backendruntime.TaskContext) (any, error) {
//		tc.Sleep(100 * time.Millisecond) // suspends, does not block the loop
//		return "done", nil
//	})
//	result, err := handle.Wait()
//
// Submit a blocking callable to the worker pool:
//
//	handle, _ := rt.SubmitBlocking(func(ctx context.Context) (any, error) {
//		return doBlockingIO(ctx)
//	})
//
// # Key Concepts
//
// Scheduling loop: a single dedicated goroutine that runs async tasks one
// at a time. No two async tasks ever execute simultaneously, so state
// shared only among async tasks needs no locks. Tasks must suspend
// (Sleep, Yield, AcquireToken) instead of blocking so the loop stays
// responsive.
//
// Worker pool: a fixed set of goroutines for callables that legitimately
// block. Submission never blocks; failures and panics are captured on the
// returned handle, never on the submitting goroutine.
//
// Token gate: a counting semaphore of configured capacity. Acquire from
// worker goroutines directly, or from async tasks via
// TaskContext.AcquireToken, which suspends the task instead of blocking
// the loop.
//
// # Shutdown
//
// Shutdown stops admission first, then cancels and drains outstanding
// async tasks within a grace window, forcing a stop if it elapses. Queued
// pool jobs are drained (wait=true) or abandoned with cancelled handles
// (wait=false); already-running callables are never interrupted.
package backendruntime
