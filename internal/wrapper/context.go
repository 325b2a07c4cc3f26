package wrapper

import (
	"sync"
	"time"
)

// Mode identifies which of a LifecycleContext's three completion
// channels fired first (spec.md §4.5.1 step 3).
type Mode int

const (
	ModeSucceed Mode = iota
	ModeFail
	ModeDone
)

// LifecycleContext is the worker's entry-point completion surface:
// Lambda-style done/fail/succeed channels plus a "time remaining"
// query. The user handler is invoked with a *wrapped* LifecycleContext
// (see wrappedContext below); Handler implementations call exactly one
// of Succeed, Fail or Done to report their outcome.
type LifecycleContext interface {
	Succeed(result any)
	Fail(err error)
	Done(err error, result any)
	TimeRemaining() time.Duration
}

// Outcome captures the mode and arguments of the first completion call,
// the shape finalization consumes (spec.md §4.5.3).
type Outcome struct {
	Mode   Mode
	Err    error
	Result any
}

// wrappedContext guards an inner LifecycleContext so its three
// completion channels fire at most once; subsequent calls are silently
// ignored (spec.md §4.5.1 step 3, §8 property 1 "single finalization").
// on is invoked exactly once, with the first Outcome recorded.
type wrappedContext struct {
	inner LifecycleContext
	on    func(Outcome)

	mu   sync.Mutex
	done bool
}

func newWrappedContext(inner LifecycleContext, on func(Outcome)) *wrappedContext {
	return &wrappedContext{inner: inner, on: on}
}

func (w *wrappedContext) record(o Outcome) {
	w.mu.Lock()
	if w.done {
		w.mu.Unlock()
		return
	}
	w.done = true
	w.mu.Unlock()
	w.on(o)
}

func (w *wrappedContext) Succeed(result any)          { w.record(Outcome{Mode: ModeSucceed, Result: result}) }
func (w *wrappedContext) Fail(err error)               { w.record(Outcome{Mode: ModeFail, Err: err}) }
func (w *wrappedContext) Done(err error, result any)   { w.record(Outcome{Mode: ModeDone, Err: err, Result: result}) }
func (w *wrappedContext) TimeRemaining() time.Duration { return w.inner.TimeRemaining() }

// DeadlineContext is a simple LifecycleContext backed by a fixed
// deadline, suitable for hosting a worker inside an HTTP invoke
// handler. Its Succeed/Fail/Done methods do nothing; the Wrapper calls
// exactly one of them once, and application code never calls them.
type DeadlineContext struct {
	Deadline time.Time
}

func (d DeadlineContext) Succeed(any)              {}
func (d DeadlineContext) Fail(error)                {}
func (d DeadlineContext) Done(error, any)           {}
func (d DeadlineContext) TimeRemaining() time.Duration {
	return time.Until(d.Deadline)
}
