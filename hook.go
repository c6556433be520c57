package domain

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Event identifies the lifecycle transition listeners are registered for.
type Event int

// Lifecycle events. Start and Stop events are only fired by
// asynchronous domains.
const (
	InitializeEvent Event = iota
	CleanupEvent
	StartEvent
	StopEvent
	numEvents
)

func (e Event) String() string {
	switch e {
	case InitializeEvent:
		return "initialize"
	case CleanupEvent:
		return "cleanup"
	case StartEvent:
		return "start"
	case StopEvent:
		return "stop"
	}
	return "unknown"
}

// Listener is notified about lifecycle transition of the domain.
type Listener func(Domain)

// listeners keeps lifecycle listeners in registration order.
type listeners struct {
	mu sync.Mutex
	l  [numEvents][]Listener
}

func (ls *listeners) add(e Event, l Listener) {
	if l == nil || e < 0 || e >= numEvents {
		return
	}
	ls.mu.Lock()
	ls.l[e] = append(ls.l[e], l)
	ls.mu.Unlock()
}

// fire calls every listener of the event. Listeners are copied first, so
// they can register new listeners without deadlock.
func (ls *listeners) fire(e Event, d Domain) {
	ls.mu.Lock()
	fns := append([]Listener(nil), ls.l[e]...)
	ls.mu.Unlock()
	for _, fn := range fns {
		fn(d)
	}
}

// Hook holds a single replaceable user function. Zero value is unset and
// Get reports false, callers then run their documented no-op default.
// Hook can be replaced while another goroutine reads it.
type Hook[F any] struct {
	fn atomic.Pointer[F]
}

// Set replaces the hook function. Setting nil function unsets the hook.
func (h *Hook[F]) Set(fn F) {
	if isNil(fn) {
		h.fn.Store(nil)
		return
	}
	h.fn.Store(&fn)
}

// Get returns the hook function and true if it's set.
func (h *Hook[F]) Get() (F, bool) {
	if p := h.fn.Load(); p != nil {
		return *p, true
	}
	var zero F
	return zero, false
}

// IsSet returns true if hook function is set.
func (h *Hook[F]) IsSet() bool {
	return h.fn.Load() != nil
}

// Reset unsets the hook.
func (h *Hook[F]) Reset() {
	h.fn.Store(nil)
}

func isNil(fn any) bool {
	if fn == nil {
		return true
	}
	v := reflect.ValueOf(fn)
	return v.Kind() == reflect.Func && v.IsNil()
}
