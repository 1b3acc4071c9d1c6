package bus

import (
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

const (
	busDaemonName = "org.freedesktop.DBus"
	busDaemonPath = "/org/freedesktop/DBus"
	busDaemonIface = "org.freedesktop.DBus"
)

// NameFlags mirrors the RequestName flag bits spec.md §4.4 passes
// through; DO_NOT_QUEUE is always implicit (this module never wants
// to sit in the acquisition queue silently).
type NameFlags uint32

const (
	NameFlagAllowReplacement NameFlags = 1 << iota
	NameFlagReplaceExisting
)

const (
	dbusReplyPrimaryOwner uint32 = 1
	dbusReplyInQueue      uint32 = 2
	dbusReplyExists       uint32 = 3
	dbusReplyAlreadyOwner uint32 = 4

	dbusReleaseReplyReleased uint32 = 1
)

type ownerObserverID uuid.UUID

type ownerObserver struct {
	id            ownerObserverID
	loop          *Loop
	onAcquired    func()
	onLost        func()
	onInitialized func()
}

// Owner is the per-(connection, name) singleton spec.md §4.4
// describes: it issues RequestName when the connection opens, and
// tracks ownership through the NameLost/NameAcquired signals for as
// long as at least one OwnName caller (a ref) is interested.
type Owner struct {
	conn  *Connection
	name  string
	flags NameFlags

	mu          sync.Mutex
	ownsName    bool
	initialized bool
	refs        int
	observers   []*ownerObserver

	lostSub, acquiredSub SubscriptionID
	lifecycleCh          <-chan LifecycleEvent
}

var (
	ownerMu sync.Mutex
	owners  = make(map[ownerKey]*Owner)
)

type ownerKey struct {
	conn *Connection
	name string
}

// acquireOwner returns the shared Owner for (conn, name), creating it
// on first use, and increments its reference count. Pair with
// releaseOwner.
func acquireOwner(conn *Connection, name string, flags NameFlags) *Owner {
	ownerMu.Lock()
	defer ownerMu.Unlock()

	k := ownerKey{conn, name}
	if o, ok := owners[k]; ok {
		o.refs++
		return o
	}
	o := newOwner(conn, name, flags)
	owners[k] = o
	return o
}

func newOwner(conn *Connection, name string, flags NameFlags) *Owner {
	o := &Owner{conn: conn, name: name, flags: flags, refs: 1}

	o.lostSub, _ = conn.SignalSubscribe(MatchRule{
		Sender: busDaemonName, Interface: busDaemonIface,
		Member: "NameLost", Arg0: name,
	}, func(sender string, path dbus.ObjectPath, iface, member string, body []any) {
		o.handleNameLost()
	}, nil)

	o.acquiredSub, _ = conn.SignalSubscribe(MatchRule{
		Sender: busDaemonName, Interface: busDaemonIface,
		Member: "NameAcquired", Arg0: name,
	}, func(sender string, path dbus.ObjectPath, iface, member string, body []any) {
		o.handleNameAcquired()
	}, nil)

	o.lifecycleCh = conn.Subscribe(8)
	go o.watchLifecycle()

	if conn.State() == StateOpen {
		go o.requestName()
	} else {
		o.mu.Lock()
		o.initialized = true
		o.mu.Unlock()
	}
	return o
}

func (o *Owner) watchLifecycle() {
	for ev := range o.lifecycleCh {
		switch ev.State {
		case StateOpen:
			o.requestName()
		case StateClosed:
			o.handleConnectionClosed()
		}
	}
}

func (o *Owner) requestName() {
	result, err := o.conn.requestBusName(o.name, o.flags)

	o.mu.Lock()
	wasOwner := o.ownsName
	if err == nil && result == dbusReplyPrimaryOwner {
		o.ownsName = true
	}
	nowOwner := o.ownsName
	wasInit := o.initialized
	o.initialized = true
	o.mu.Unlock()

	if !wasOwner && nowOwner {
		o.notifyAcquired()
	}
	if !wasInit {
		o.notifyInitialized()
	}
}

func (o *Owner) handleNameLost() {
	o.mu.Lock()
	was := o.ownsName
	o.ownsName = false
	o.mu.Unlock()
	if was {
		o.notifyLost()
	}
}

func (o *Owner) handleNameAcquired() {
	o.mu.Lock()
	was := o.ownsName
	o.ownsName = true
	o.mu.Unlock()
	if !was {
		o.notifyAcquired()
	}
}

func (o *Owner) handleConnectionClosed() {
	o.mu.Lock()
	was := o.ownsName
	o.ownsName = false
	o.mu.Unlock()
	if was {
		o.notifyLost()
	}
}

func (o *Owner) notifyAcquired() {
	o.forEachObserver(func(ob *ownerObserver) func() { return ob.onAcquired })
}
func (o *Owner) notifyLost() {
	o.forEachObserver(func(ob *ownerObserver) func() { return ob.onLost })
}
func (o *Owner) notifyInitialized() {
	o.forEachObserver(func(ob *ownerObserver) func() { return ob.onInitialized })
}

func (o *Owner) forEachObserver(pick func(*ownerObserver) func()) {
	o.mu.Lock()
	obs := append([]*ownerObserver(nil), o.observers...)
	o.mu.Unlock()
	for _, ob := range obs {
		fn := pick(ob)
		if fn == nil {
			continue
		}
		deliver(ob.loop, fn)
	}
}

// addObserver registers callbacks for this Owner's three signals
// (spec.md §4.4): name-acquired, name-lost, initialized.
func (o *Owner) addObserver(loop *Loop, onAcquired, onLost, onInitialized func()) ownerObserverID {
	ob := &ownerObserver{id: ownerObserverID(uuid.New()), loop: loop, onAcquired: onAcquired, onLost: onLost, onInitialized: onInitialized}
	o.mu.Lock()
	o.observers = append(o.observers, ob)
	initDone := o.initialized
	owned := o.ownsName
	o.mu.Unlock()

	// Tell a late-joining observer about current state immediately.
	if initDone && onInitialized != nil {
		deliver(loop, onInitialized)
	}
	if owned && onAcquired != nil {
		deliver(loop, onAcquired)
	}
	return ob.id
}

func deliver(loop *Loop, fn func()) {
	if loop != nil {
		loop.post(fn)
		return
	}
	fn()
}

func (o *Owner) removeObserver(id ownerObserverID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, ob := range o.observers {
		if ob.id == id {
			o.observers = append(o.observers[:i], o.observers[i+1:]...)
			return
		}
	}
}

// releaseOwner drops one reference; on the last reference it releases
// the bus name (if owned), unsubscribes, and removes the singleton
// entry (spec.md §3 invariant (e) and §4.4 "On final drop").
func releaseOwner(o *Owner) {
	ownerMu.Lock()
	o.refs--
	remaining := o.refs
	if remaining <= 0 {
		delete(owners, ownerKey{o.conn, o.name})
	}
	ownerMu.Unlock()
	if remaining > 0 {
		return
	}

	o.mu.Lock()
	owned := o.ownsName
	o.mu.Unlock()
	if owned {
		o.conn.releaseBusName(o.name)
	}

	o.conn.UnsubscribeLifecycle(o.lifecycleCh)
	o.conn.SignalUnsubscribe(o.lostSub)
	o.conn.SignalUnsubscribe(o.acquiredSub)
}
