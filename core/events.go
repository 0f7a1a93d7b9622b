package core

import "sync"

// EventCallback is invoked synchronously on the goroutine that emits the
// event.
type EventCallback func(args ...any)

// EventRegistry is a name-keyed table of callbacks. Registering a callback
// for an existing name silently replaces the prior one (last writer wins;
// there is no multi-subscriber fan-out).
//
// Delivery is synchronous, on the emitter's goroutine; there is no ordering
// guarantee across concurrent emitters. A subscriber that panics
// is isolated per call: the panic is logged and swallowed so it cannot break
// the emitter's control flow.
type EventRegistry struct {
	mu        sync.RWMutex
	callbacks map[string]EventCallback
	logger    Logger
}

// NewEventRegistry creates an empty registry.
func NewEventRegistry(logger Logger) *EventRegistry {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &EventRegistry{
		callbacks: make(map[string]EventCallback),
		logger:    logger,
	}
}

// On registers callback for the named event, replacing any prior callback.
// A nil callback removes the registration.
func (r *EventRegistry) On(name string, callback EventCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if callback == nil {
		delete(r.callbacks, name)
		return
	}
	r.callbacks[name] = callback
}

// Off removes the registration for the named event.
func (r *EventRegistry) Off(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.callbacks, name)
}

// Emit invokes the registered callback for name on the calling goroutine.
// The registry lock is not held while the callback runs.
func (r *EventRegistry) Emit(name string, args ...any) {
	r.mu.RLock()
	cb := r.callbacks[name]
	r.mu.RUnlock()

	if cb == nil {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event callback panicked",
				F("event", name),
				F("panic", rec),
			)
		}
	}()
	cb(args...)
}
