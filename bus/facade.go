package bus

// OwnNameOptions configures OwnName's callbacks and RequestName flags
// (spec.md §2 "High-level Facades": "own_name ... convenience
// wrappers that compose Name Owner / Watcher with callbacks").
type OwnNameOptions struct {
	Flags NameFlags
	// Loop, if non-nil, runs every callback on that Loop instead of
	// synchronously on the signal-dispatch goroutine.
	Loop          *Loop
	OnAcquired    func(conn *Connection, name string)
	OnLost        func(conn *Connection, name string)
	OnInitialized func(conn *Connection, name string)
}

// OwnNameHandle is returned by OwnName; pass it to Unown to release
// interest in the name.
type OwnNameHandle struct {
	conn  *Connection
	name  string
	owner *Owner
	obsID ownerObserverID
}

// OwnName requests ownership of name on conn (spec.md §4.4), driving
// acquireOwner's singleton and wiring opts' callbacks to its
// name-acquired/name-lost/initialized signals. Calling OwnName twice
// for the same (conn, name) shares the same underlying Owner.
func OwnName(conn *Connection, name string, opts OwnNameOptions) *OwnNameHandle {
	o := acquireOwner(conn, name, opts.Flags)
	id := o.addObserver(opts.Loop,
		func() {
			if opts.OnAcquired != nil {
				opts.OnAcquired(conn, name)
			}
		},
		func() {
			if opts.OnLost != nil {
				opts.OnLost(conn, name)
			}
		},
		func() {
			if opts.OnInitialized != nil {
				opts.OnInitialized(conn, name)
			}
		},
	)
	return &OwnNameHandle{conn: conn, name: name, owner: o, obsID: id}
}

// Unown releases a name requested through OwnName. Once the last
// caller interested in (conn, name) unowns it, the name is released on
// the bus and the Owner singleton is torn down (spec.md §4.4 "On
// final drop").
func Unown(h *OwnNameHandle) {
	if h == nil {
		return
	}
	h.owner.removeObserver(h.obsID)
	releaseOwner(h.owner)
}

// WatchNameOptions configures WatchName's callbacks (spec.md §4.5).
type WatchNameOptions struct {
	Loop          *Loop
	OnAppeared    func(conn *Connection, name, owner string)
	OnVanished    func(conn *Connection, name string)
	OnInitialized func(conn *Connection, name string)
}

// WatchNameHandle is returned by WatchName; pass it to Unwatch to
// release interest in the name.
type WatchNameHandle struct {
	conn    *Connection
	name    string
	watcher *Watcher
	obsID   watcherObserverID
}

// WatchName starts watching name's ownership on conn (spec.md §4.5),
// driving acquireWatcher's singleton and wiring opts' callbacks to its
// name-appeared/name-vanished/initialized signals.
func WatchName(conn *Connection, name string, opts WatchNameOptions) *WatchNameHandle {
	w := acquireWatcher(conn, name)
	id := w.addObserver(opts.Loop,
		func(owner string) {
			if opts.OnAppeared != nil {
				opts.OnAppeared(conn, name, owner)
			}
		},
		func() {
			if opts.OnVanished != nil {
				opts.OnVanished(conn, name)
			}
		},
		func() {
			if opts.OnInitialized != nil {
				opts.OnInitialized(conn, name)
			}
		},
	)
	return &WatchNameHandle{conn: conn, name: name, watcher: w, obsID: id}
}

// Unwatch releases a name watch requested through WatchName.
func Unwatch(h *WatchNameHandle) {
	if h == nil {
		return
	}
	h.watcher.removeObserver(h.obsID)
	releaseWatcher(h.watcher)
}
