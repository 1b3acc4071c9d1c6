package bus

import (
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

type watcherObserverID uuid.UUID

type watcherObserver struct {
	id          watcherObserverID
	loop        *Loop
	onAppeared  func(owner string)
	onVanished  func()
	onInitialized func()
}

// Watcher is the per-(connection, name) singleton spec.md §4.5
// describes: it subscribes to NameOwnerChanged filtered to the name
// and issues GetNameOwner when the connection is open, tracking the
// current unique-name owner (if any) for as long as at least one
// WatchName caller (a ref) is interested.
type Watcher struct {
	conn *Connection
	name string

	mu          sync.Mutex
	nameOwner   string // "" means unowned
	initialized bool
	refs        int
	observers   []*watcherObserver

	ownerChangedSub SubscriptionID
	lifecycleCh     <-chan LifecycleEvent
}

var (
	watcherMu sync.Mutex
	watchers  = make(map[ownerKey]*Watcher)
)

// acquireWatcher returns the shared Watcher for (conn, name), creating
// it on first use, and increments its reference count. Pair with
// releaseWatcher.
func acquireWatcher(conn *Connection, name string) *Watcher {
	watcherMu.Lock()
	defer watcherMu.Unlock()

	k := ownerKey{conn, name}
	if w, ok := watchers[k]; ok {
		w.refs++
		return w
	}
	w := newWatcher(conn, name)
	watchers[k] = w
	return w
}

func newWatcher(conn *Connection, name string) *Watcher {
	w := &Watcher{conn: conn, name: name, refs: 1}

	w.ownerChangedSub, _ = conn.SignalSubscribe(MatchRule{
		Sender: busDaemonName, Interface: busDaemonIface,
		Member: "NameOwnerChanged", Arg0: name,
	}, func(sender string, path dbus.ObjectPath, iface, member string, body []any) {
		w.handleNameOwnerChanged(body)
	}, nil)

	w.lifecycleCh = conn.Subscribe(8)
	go w.watchLifecycle()

	if conn.State() == StateOpen {
		go w.getOwner()
	} else {
		w.mu.Lock()
		w.initialized = true
		w.mu.Unlock()
	}
	return w
}

func (w *Watcher) watchLifecycle() {
	for ev := range w.lifecycleCh {
		switch ev.State {
		case StateOpen:
			w.getOwner()
		case StateClosed:
			w.handleConnectionClosed()
		}
	}
}

func (w *Watcher) getOwner() {
	owner, err := w.conn.getNameOwner(w.name)

	w.mu.Lock()
	wasOwned := w.nameOwner != ""
	if err == nil {
		w.nameOwner = owner
	}
	nowOwned := w.nameOwner != ""
	wasInit := w.initialized
	w.initialized = true
	w.mu.Unlock()

	if !wasOwned && nowOwned {
		w.notifyAppeared(owner)
	}
	if !wasInit {
		w.notifyInitialized()
	}
}

// handleNameOwnerChanged processes an incoming
// NameOwnerChanged(name, old, new) signal (spec.md §4.5).
func (w *Watcher) handleNameOwnerChanged(body []any) {
	if len(body) != 3 {
		return
	}
	oldOwner, _ := body[1].(string)
	newOwner, _ := body[2].(string)

	w.mu.Lock()
	wasOwned := w.nameOwner != ""
	if oldOwner != "" && wasOwned {
		w.nameOwner = ""
	}
	if newOwner != "" {
		w.nameOwner = newOwner
	}
	nowOwner := w.nameOwner
	w.mu.Unlock()

	if oldOwner != "" && wasOwned && newOwner == "" {
		w.notifyVanished()
	}
	if newOwner != "" {
		w.notifyAppeared(nowOwner)
	}
}

func (w *Watcher) handleConnectionClosed() {
	w.mu.Lock()
	was := w.nameOwner != ""
	w.nameOwner = ""
	w.mu.Unlock()
	if was {
		w.notifyVanished()
	}
}

func (w *Watcher) notifyAppeared(owner string) {
	w.forEachObserver(func(ob *watcherObserver) func() {
		if ob.onAppeared == nil {
			return nil
		}
		return func() { ob.onAppeared(owner) }
	})
}
func (w *Watcher) notifyVanished() {
	w.forEachObserver(func(ob *watcherObserver) func() { return ob.onVanished })
}
func (w *Watcher) notifyInitialized() {
	w.forEachObserver(func(ob *watcherObserver) func() { return ob.onInitialized })
}

func (w *Watcher) forEachObserver(pick func(*watcherObserver) func()) {
	w.mu.Lock()
	obs := append([]*watcherObserver(nil), w.observers...)
	w.mu.Unlock()
	for _, ob := range obs {
		fn := pick(ob)
		if fn == nil {
			continue
		}
		deliver(ob.loop, fn)
	}
}

// addObserver registers callbacks for this Watcher's signals (spec.md
// §4.5): name-appeared, name-vanished, initialized. A late-joining
// observer that arrives after the name has already appeared is told
// immediately, matching Owner's addObserver behaviour.
func (w *Watcher) addObserver(loop *Loop, onAppeared func(string), onVanished, onInitialized func()) watcherObserverID {
	ob := &watcherObserver{id: watcherObserverID(uuid.New()), loop: loop, onAppeared: onAppeared, onVanished: onVanished, onInitialized: onInitialized}
	w.mu.Lock()
	w.observers = append(w.observers, ob)
	initDone := w.initialized
	owner := w.nameOwner
	w.mu.Unlock()

	if initDone && onInitialized != nil {
		deliver(loop, onInitialized)
	}
	if owner != "" && onAppeared != nil {
		o := owner
		deliver(loop, func() { onAppeared(o) })
	}
	return ob.id
}

func (w *Watcher) removeObserver(id watcherObserverID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, ob := range w.observers {
		if ob.id == id {
			w.observers = append(w.observers[:i], w.observers[i+1:]...)
			return
		}
	}
}

// releaseWatcher drops one reference; on the last reference it
// unsubscribes and removes the singleton entry (spec.md §3 invariant
// (e)).
func releaseWatcher(w *Watcher) {
	watcherMu.Lock()
	w.refs--
	remaining := w.refs
	if remaining <= 0 {
		delete(watchers, ownerKey{w.conn, w.name})
	}
	watcherMu.Unlock()
	if remaining > 0 {
		return
	}

	w.conn.UnsubscribeLifecycle(w.lifecycleCh)
	w.conn.SignalUnsubscribe(w.ownerChangedSub)
}
