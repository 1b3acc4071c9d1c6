package bus

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gdbus-go/gdbus/internal/connwatch"
	"github.com/gdbus-go/gdbus/internal/events"
)

// State is a Connection's position in the lifecycle state machine
// spec.md §4.3 describes: New -> Opening -> Open -> Closing -> Closed
// -> (retry allowed) -> Opening ...
type State int

const (
	StateNew State = iota
	StateOpening
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// LifecycleEvent is broadcast to lifecycle observers on every state
// transition a Connection makes.
type LifecycleEvent struct {
	State State
	Err   error
}

// lifecycleBus is a Connection's per-instance lifecycle broadcaster. It
// is a thin alias over the events.Bus[T] primitive — a nil-safe,
// non-blocking fan-out — specialized to LifecycleEvent.
type lifecycleBus = events.Bus[LifecycleEvent]

func newLifecycleBus() *lifecycleBus {
	return events.New[LifecycleEvent]()
}

// reconnectConfig controls the backoff schedule a Connection uses
// when reopening after an unexpected close.
type reconnectConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func defaultReconnectConfig() reconnectConfig {
	return reconnectConfig{InitialDelay: 2 * time.Second, MaxDelay: 60 * time.Second, Multiplier: 2.0}
}

// backoffConfig maps a Connection's reconnect settings onto a
// connwatch.BackoffConfig. maxRetries is chosen so the startup phase's
// doubling sequence runs until it saturates at MaxDelay, at which point
// connwatch.Watcher's background poll phase continues probing at
// exactly that cadence — the same steady-state interval the old
// uncapped retry loop settled into.
func (c reconnectConfig) backoffConfig() connwatch.BackoffConfig {
	retries := 1
	delay := c.InitialDelay
	for delay < c.MaxDelay && retries < 20 {
		delay = time.Duration(float64(delay) * c.Multiplier)
		retries++
	}
	return connwatch.BackoffConfig{
		InitialDelay: c.InitialDelay,
		MaxDelay:     c.MaxDelay,
		Multiplier:   c.Multiplier,
		MaxRetries:   retries,
		PollInterval: c.MaxDelay,
		ProbeTimeout: 30 * time.Second,
	}
}

// reconnector supervises a shared Connection's transport with a
// connwatch.Manager: reopen is wired in as the watched service's probe,
// so connwatch's exponential backoff and state-transition bookkeeping
// drives reconnection instead of a hand-rolled loop. A single watcher
// is started on the first unexpected close and then runs for the
// Connection's whole life — reopen is idempotent once the transport is
// open again (Connection.Open returns immediately in that case), so the
// watcher's background poll phase costs nothing once the transport has
// recovered, and it is already in place the next time the transport
// drops.
type reconnector struct {
	cfg    reconnectConfig
	logger *slog.Logger
	reopen func(context.Context) error

	mgr     *connwatch.Manager
	name    string
	started atomic.Bool
}

func newReconnector(cfg reconnectConfig, logger *slog.Logger, reopen func(context.Context) error) *reconnector {
	if logger == nil {
		logger = slog.Default()
	}
	return &reconnector{
		cfg:    cfg,
		logger: logger,
		reopen: reopen,
		mgr:    connwatch.NewManager(logger),
		name:   "bus-connection",
	}
}

// start launches the connwatch-backed retry loop the first time it is
// called; later calls are no-ops since the watcher it started keeps
// supervising the connection indefinitely.
func (r *reconnector) start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	r.mgr.Watch(ctx, connwatch.WatcherConfig{
		Name:    r.name,
		Probe:   connwatch.ProbeFunc(r.reopen),
		Backoff: r.cfg.backoffConfig(),
		Logger:  r.logger,
	})
}

// stop halts the retry loop and releases its watcher, used when the
// Connection it supervises closes for good.
func (r *reconnector) stop() {
	r.mgr.Stop()
}
