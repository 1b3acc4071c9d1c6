package bus

import "context"

// Loop is the per-context event loop spec.md §5 "Scheduling"
// describes: a queue of posted callbacks drained by whichever
// goroutine calls Run. Every signal callback, async completion, and
// vtable handler runs on the Loop that was current when its
// subscription/send/registration was made (spec.md §4.3 "Concurrency
// of handlers"). This models the cooperative, single-threaded-per-
// context scheduling of a GLib main context without requiring one:
// a Loop is just a work queue plus a dedicated drain goroutine.
type Loop struct {
	tasks chan func()
}

// NewLoop creates a Loop with reasonable buffering for burst delivery.
// Call Run from the goroutine (or OS thread) that should receive this
// Loop's callbacks.
func NewLoop() *Loop {
	return &Loop{tasks: make(chan func(), 64)}
}

// Run drains posted callbacks until ctx is cancelled. Typically called
// in its own goroutine: `go loop.Run(ctx)`.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// post queues fn for execution on this Loop's Run goroutine. Blocks if
// the queue is full, applying natural backpressure to the connection's
// single dispatch goroutine rather than growing unboundedly.
func (l *Loop) post(fn func()) {
	l.tasks <- fn
}

// Each Connection creates its own Loop in newConnection and runs it on
// a dedicated goroutine until the connection's close context ends.
// Callers that want delivery on a different goroutine/thread create
// their own Loop, run it themselves, and pass it as SignalSubscribe's
// loop argument (owner and watcher observers take a Loop the same way).
