// Package bus implements the high-level D-Bus connection this module
// is built around: a Connection that supervises an underlying
// godbus/dbus/v5 transport across open/close cycles, offers
// cancellable request/response RPC, dispatches filtered signals with
// per-subscription match-rule bookkeeping, and coordinates singleton
// sharing of connections, name owners, and name watchers (spec.md
// §4.3-§4.5).
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/gdbus-go/gdbus/introspect"
)

// Options configures a Connection at construction time.
type Options struct {
	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// ExitOnClose mirrors spec.md §4.3's exit_on_close flag: if set,
	// an unexpected transport close terminates the process instead of
	// attempting to reopen.
	ExitOnClose bool
	// Reconnect overrides the default reconnect backoff schedule for a
	// shared connection.
	Reconnect reconnectConfig
}

// Connection is a supervised D-Bus connection (spec.md §4.3). It
// wraps a *dbus.Conn — the lower-level transport this module treats
// as external, hard-engineering collaborator — with the lifecycle
// state machine, signal demultiplexing, and singleton discipline the
// spec requires.
type Connection struct {
	busType Type
	address string
	private bool
	opts    Options
	logger  *slog.Logger

	// peer marks a connection that talks directly to another peer
	// without a bus daemon (spec.md §4.3/§9 peer-to-peer): no Hello
	// call, no unique name, no name-owner/watcher facades. customDialer
	// lets DialPeer and Server supply their own already-established
	// transport instead of resolving a bus address.
	peer         bool
	customDialer func(context.Context) (*dbus.Conn, error)
	peerCred     *PeerCredentials

	mu         sync.RWMutex
	state      State
	uniqueName string
	dbusConn   *dbus.Conn
	signalCh   chan *dbus.Signal
	exportedAt map[dbus.ObjectPath]bool

	lifecycle *lifecycleBus
	recon     *reconnector
	subs      *subscriptionTable
	objects   *objectTable
	loop      *Loop

	closeCtx    context.Context
	closeCancel context.CancelFunc
}

var (
	sharedMu    sync.Mutex
	sharedConns = make(map[Type]*Connection)
)

// BusGet returns the per-(process, bus type) shared Connection,
// creating and opening it on first use (spec.md §4.3 "Singleton
// discipline"). Every subsequent call for the same Type returns the
// identical object.
func BusGet(ctx context.Context, t Type, opts Options) (*Connection, error) {
	sharedMu.Lock()
	if c, ok := sharedConns[t]; ok {
		sharedMu.Unlock()
		return c, nil
	}
	c := newConnection(t, false, opts)
	sharedConns[t] = c
	sharedMu.Unlock()

	if err := c.Open(ctx); err != nil {
		sharedMu.Lock()
		delete(sharedConns, t)
		sharedMu.Unlock()
		return nil, err
	}
	return c, nil
}

// BusGetPrivate always returns a fresh, unshared Connection, bypassing
// the singleton table entirely.
func BusGetPrivate(ctx context.Context, t Type, opts Options) (*Connection, error) {
	c := newConnection(t, true, opts)
	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func newConnection(t Type, private bool, opts Options) *Connection {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Reconnect == (reconnectConfig{}) {
		opts.Reconnect = defaultReconnectConfig()
	}
	c := &Connection{
		busType:    t,
		private:    private,
		opts:       opts,
		logger:     opts.Logger,
		exportedAt: make(map[dbus.ObjectPath]bool),
		lifecycle:  newLifecycleBus(),
		subs:       newSubscriptionTable(),
		objects:    newObjectTable(),
		loop:       NewLoop(),
	}
	c.closeCtx, c.closeCancel = context.WithCancel(context.Background())
	if !private {
		c.recon = newReconnector(opts.Reconnect, opts.Logger, c.reopen)
	}
	go c.loop.Run(c.closeCtx)
	return c
}

// State reports the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// UniqueName returns the bus-assigned unique name (":N.M"), valid once
// State() == StateOpen.
func (c *Connection) UniqueName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uniqueName
}

// Subscribe returns a channel receiving this Connection's lifecycle
// transitions.
func (c *Connection) Subscribe(bufSize int) <-chan LifecycleEvent {
	return c.lifecycle.Subscribe(bufSize)
}

// UnsubscribeLifecycle releases a channel obtained from Subscribe.
func (c *Connection) UnsubscribeLifecycle(ch <-chan LifecycleEvent) {
	c.lifecycle.Unsubscribe(ch)
}

// Open establishes the transport (spec.md §4.3: "Transition to Open
// requires a successful underlying transport setup and the
// assignment of a unique bus name... via the first Hello call").
func (c *Connection) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateOpen || c.state == StateOpening {
		c.mu.Unlock()
		return nil
	}
	c.state = StateOpening
	c.mu.Unlock()
	c.lifecycle.Publish(LifecycleEvent{State: StateOpening})

	if err := c.dial(ctx); err != nil {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		c.lifecycle.Publish(LifecycleEvent{State: StateClosed, Err: err})
		return err
	}

	c.mu.Lock()
	c.state = StateOpen
	c.mu.Unlock()
	c.lifecycle.Publish(LifecycleEvent{State: StateOpen})

	// subscriptions/names survive a reopen; re-arm their match rules.
	c.subs.dropOrphaned()
	_ = c.subs.reinstall(c.installMatch)

	return nil
}

func (c *Connection) dial(ctx context.Context) error {
	var addr string
	var conn *dbus.Conn
	var err error

	if c.customDialer != nil {
		addr = c.address
		conn, err = c.customDialer(ctx)
	} else {
		if c.address != "" {
			addr = c.address
		} else {
			addr, err = ResolveAddress(c.busType)
			if err != nil {
				return err
			}
		}
		conn, err = dbus.Dial(addr)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoServer, err)
	}

	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return localError(KindAuthFailed, "%v", err)
	}

	// Peer-to-peer connections (spec.md §4.3/§9) have no bus daemon to
	// call Hello on and never get a unique name assigned.
	var uniqueName string
	if !c.peer {
		if err := conn.Hello(); err != nil {
			conn.Close()
			return localError(KindFailed, "hello: %v", err)
		}
		uniqueName = conn.Names()[0]
	}

	c.mu.Lock()
	c.dbusConn = conn
	c.address = addr
	c.uniqueName = uniqueName
	c.signalCh = make(chan *dbus.Signal, 64)
	conn.Signal(c.signalCh)
	c.mu.Unlock()

	go c.dispatchSignals(c.signalCh)
	return nil
}

// attachAccepted wires an already-authenticated server-side transport
// (produced by Server's handshake) directly into Open state, skipping
// dial/Hello entirely — there is no bus daemon to resolve an address
// from or say Hello to; the peer on the other end of dbusConn already
// completed its half of the SASL handshake.
func (c *Connection) attachAccepted(dbusConn *dbus.Conn, cred *PeerCredentials) {
	c.mu.Lock()
	c.dbusConn = dbusConn
	c.peerCred = cred
	c.signalCh = make(chan *dbus.Signal, 64)
	dbusConn.Signal(c.signalCh)
	c.state = StateOpen
	c.mu.Unlock()

	c.lifecycle.Publish(LifecycleEvent{State: StateOpen})
	go c.dispatchSignals(c.signalCh)
}

// PeerCredentials returns the SO_PEERCRED-derived identity of the
// remote endpoint of a unix-domain peer connection accepted by a
// Server, or nil if unavailable (spec.md §9 peer-to-peer; not
// meaningful for bus connections).
func (c *Connection) PeerCredentials() *PeerCredentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peerCred
}

// reopen is the retry body the reconnector drives.
func (c *Connection) reopen(ctx context.Context) error {
	return c.Open(ctx)
}

// Close tears down the transport, publishing StateClosing and then
// StateClosed (carrying the transport's close error, if any). An
// explicit Close never triggers ExitOnClose; only an unexpected
// transport close does (see onUnexpectedClose). Close also stops the
// reconnector and removes a shared connection from the BusGet table.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateClosing {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	conn := c.dbusConn
	c.mu.Unlock()
	c.lifecycle.Publish(LifecycleEvent{State: StateClosing})

	var err error
	if conn != nil {
		err = conn.Close()
	}

	c.mu.Lock()
	c.state = StateClosed
	c.dbusConn = nil
	c.mu.Unlock()
	c.lifecycle.Publish(LifecycleEvent{State: StateClosed, Err: err})

	if c.recon != nil {
		c.recon.stop()
	}

	if !c.private {
		sharedMu.Lock()
		if sharedConns[c.busType] == c {
			delete(sharedConns, c.busType)
		}
		sharedMu.Unlock()
	}
	return err
}

func (c *Connection) onUnexpectedClose(cause error) {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateClosing {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.mu.Unlock()
	c.lifecycle.Publish(LifecycleEvent{State: StateClosed, Err: cause})

	if c.opts.ExitOnClose {
		os.Exit(1)
	}
	if !c.private && c.recon != nil {
		c.recon.start(c.closeCtx)
	}
}

// ensureOpen transparently schedules a reconnect and returns
// Disconnected if the connection is currently closed (spec.md §4.3:
// "any attempt to send while in Closed transparently schedules a
// reconnect").
func (c *Connection) ensureOpen(ctx context.Context) error {
	if c.State() == StateOpen {
		return nil
	}
	if !c.private {
		c.recon.start(c.closeCtx)
	}
	return ErrDisconnected
}

func (c *Connection) dispatchSignals(ch chan *dbus.Signal) {
	for sig := range ch {
		if sig == nil {
			c.onUnexpectedClose(ErrDisconnected)
			return
		}
		iface, member := splitMember(sig.Name)
		c.subs.dispatch(string(sig.Sender), sig.Path, iface, member, sig.Body)
	}
}

func splitMember(full string) (iface, member string) {
	i := len(full) - 1
	for ; i >= 0; i-- {
		if full[i] == '.' {
			return full[:i], full[i+1:]
		}
	}
	return "", full
}

func (c *Connection) installMatch(rule MatchRule) error {
	c.mu.RLock()
	conn := c.dbusConn
	c.mu.RUnlock()
	if conn == nil {
		return ErrDisconnected
	}
	return conn.AddMatchSignal(rule.matchOptions()...)
}

func (c *Connection) uninstallMatch(rule MatchRule) error {
	c.mu.RLock()
	conn := c.dbusConn
	c.mu.RUnlock()
	if conn == nil {
		return nil
	}
	return conn.RemoveMatchSignal(rule.matchOptions()...)
}

// requestBusName issues org.freedesktop.DBus.RequestName for name,
// translating the flag bits NameOwner/owner.go uses (spec.md §4.4).
// DO_NOT_QUEUE is always implicit.
func (c *Connection) requestBusName(name string, flags NameFlags) (uint32, error) {
	var wireFlags uint32
	if flags&NameFlagAllowReplacement != 0 {
		wireFlags |= 0x1
	}
	if flags&NameFlagReplaceExisting != 0 {
		wireFlags |= 0x2
	}
	wireFlags |= 0x4 // DBUS_NAME_FLAG_DO_NOT_QUEUE

	obj := c.busObject()
	if obj == nil {
		return 0, ErrDisconnected
	}
	var result uint32
	err := obj.Call(busDaemonIface+".RequestName", 0, name, wireFlags).Store(&result)
	if err != nil {
		return 0, translateCallError(err)
	}
	return result, nil
}

// releaseBusName issues org.freedesktop.DBus.ReleaseName, best-effort
// (spec.md §4.4: "send ReleaseName(name) synchronously, fire-and-forget").
func (c *Connection) releaseBusName(name string) {
	obj := c.busObject()
	if obj == nil {
		return
	}
	var result uint32
	_ = obj.Call(busDaemonIface+".ReleaseName", 0, name).Store(&result)
}

// getNameOwner issues org.freedesktop.DBus.GetNameOwner, used by
// NameWatcher (spec.md §4.5).
func (c *Connection) getNameOwner(name string) (string, error) {
	obj := c.busObject()
	if obj == nil {
		return "", ErrDisconnected
	}
	var owner string
	err := obj.Call(busDaemonIface+".GetNameOwner", 0, name).Store(&owner)
	if err != nil {
		return "", translateCallError(err)
	}
	return owner, nil
}

// SignalSubscribe installs a subscription matching rule, delivering
// matching signals to cb on loop (or synchronously, on the dispatch
// goroutine, if loop is nil). Match rules are reference-counted
// across subscriptions (spec.md §4.3).
func (c *Connection) SignalSubscribe(rule MatchRule, cb SignalCallback, loop *Loop) (SubscriptionID, error) {
	return c.subs.add(rule, cb, loop, c.installMatch)
}

// SignalUnsubscribe removes a subscription, uninstalling its match
// rule from the bus once no other subscription shares it.
func (c *Connection) SignalUnsubscribe(id SubscriptionID) error {
	return c.subs.remove(id, c.uninstallMatch)
}

// InvokeMethod sends a method call and awaits its reply, honouring
// ctx for both cancellation and deadline (spec.md §4.3). A context
// already cancelled when InvokeMethod is called never goes on the
// wire — the call fails immediately with Cancelled.
func (c *Connection) InvokeMethod(ctx context.Context, destination, path, iface, method string, args ...any) ([]any, error) {
	select {
	case <-ctx.Done():
		return nil, ErrCancelled
	default:
	}
	if err := c.ensureOpen(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	conn := c.dbusConn
	c.mu.RUnlock()
	if conn == nil {
		return nil, ErrDisconnected
	}

	obj := conn.Object(destination, dbus.ObjectPath(path))
	call := obj.CallWithContext(ctx, iface+"."+method, 0, args...)
	if call.Err != nil {
		return nil, translateCallError(call.Err)
	}
	return call.Body, nil
}

func translateCallError(err error) error {
	if err == nil {
		return nil
	}
	if dbusErr, ok := err.(dbus.Error); ok {
		msg := ""
		if len(dbusErr.Body) > 0 {
			if s, ok := dbusErr.Body[0].(string); ok {
				msg = s
			}
		}
		return NewRemoteError(dbusErr.Name, msg)
	}
	if err == context.DeadlineExceeded {
		return ErrTimeout
	}
	if err == context.Canceled {
		return ErrCancelled
	}
	return localError(KindFailed, "%v", err)
}

// EmitSignal sends a one-way signal (spec.md §4.3). It fails only if
// the connection is disconnected.
func (c *Connection) EmitSignal(destination, path, iface, member string, args ...any) error {
	c.mu.RLock()
	conn := c.dbusConn
	c.mu.RUnlock()
	if conn == nil {
		return ErrDisconnected
	}
	return conn.Emit(dbus.ObjectPath(path), iface+"."+member, args...)
}

// busObject exposes the bus daemon's own object, used by name-owner
// and name-watcher request/response calls (RequestName, ReleaseName,
// GetNameOwner) that talk to org.freedesktop.DBus directly rather
// than going through InvokeMethod's destination framing.
func (c *Connection) busObject() dbus.BusObject {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dbusConn.BusObject()
}

func (c *Connection) rawConn() *dbus.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dbusConn
}

// RegisterObject serves iface at path using vtable, exporting methods,
// properties, and introspection data over the underlying transport
// (spec.md §4.3 register_object).
func (c *Connection) RegisterObject(path, iface string, node *introspect.Interface, vtable VTable) (RegistrationID, error) {
	conn := c.rawConn()
	if conn == nil {
		return RegistrationID{}, ErrDisconnected
	}
	id := c.objects.registerObject(dbus.ObjectPath(path), iface, node, vtable)

	if node != nil && len(node.Methods) > 0 {
		methods := make(map[string]any, len(node.Methods))
		for _, m := range node.Methods {
			name := m.Name
			methods[name] = c.methodAdapter(dbus.ObjectPath(path), iface, name, vtable)
		}
		conn.ExportMethodTable(methods, dbus.ObjectPath(path), iface)
	}

	c.ensureAmbientInterfaces(dbus.ObjectPath(path))
	return id, nil
}

// methodAdapter builds the generic, reflection-free handler
// ExportMethodTable expects (func(args ...any) ([]any, *dbus.Error)),
// bridging to the exactly-once Invocation contract vtable.MethodCall
// implements.
func (c *Connection) methodAdapter(path dbus.ObjectPath, iface, method string, vtable VTable) func(...any) ([]any, *dbus.Error) {
	return func(args ...any) ([]any, *dbus.Error) {
		if vtable.MethodCall == nil {
			return nil, dbus.NewError("org.freedesktop.DBus.Error.UnknownMethod", []any{"no handler for " + method})
		}
		inv := newInvocation(c)
		sender := "" // godbus's ExportMethodTable does not thread the sender through to the handler func
		vtable.MethodCall(c, sender, path, iface, method, args, inv)
		result, derr := inv.wait()
		return result, derr
	}
}

// RegisterSubtree records a dynamically-enumerated region of the
// object tree (spec.md §4.3 register_subtree). Nothing is exported on
// the transport for paths under root: the subtree's Dispatch is
// consulted only by the Properties handlers of paths already exported
// through RegisterObject (via objectTable.lookup), and its Enumerate
// and Introspect functions are not called by this package.
func (c *Connection) RegisterSubtree(root string, vtable SubtreeVTable) RegistrationID {
	return c.objects.registerSubtree(dbus.ObjectPath(root), vtable)
}

// UnregisterObject removes a previously registered object or subtree.
func (c *Connection) UnregisterObject(id RegistrationID) bool {
	return c.objects.unregister(id)
}

// ensureAmbientInterfaces exports org.freedesktop.DBus.Properties and
// org.freedesktop.DBus.Introspectable once per path. Get and Set look
// up the VTable registered for the interface at call time; GetAll
// always replies with an empty dictionary. Introspect describes the
// interfaces registered at path through RegisterObject.
func (c *Connection) ensureAmbientInterfaces(path dbus.ObjectPath) {
	c.mu.Lock()
	already := c.exportedAt[path]
	c.exportedAt[path] = true
	c.mu.Unlock()
	if already {
		return
	}

	conn := c.rawConn()
	if conn == nil {
		return
	}

	props := map[string]any{
		"Get":    c.propertiesGet(path),
		"Set":    c.propertiesSet(path),
		"GetAll": c.propertiesGetAll(path),
	}
	conn.ExportMethodTable(props, path, "org.freedesktop.DBus.Properties")

	introspectable := map[string]any{
		"Introspect": c.introspectHandler(path),
	}
	conn.ExportMethodTable(introspectable, path, introspect.IntrospectIface)
}

func (c *Connection) propertiesGet(path dbus.ObjectPath) func(string, string) (dbus.Variant, *dbus.Error) {
	return func(iface, property string) (dbus.Variant, *dbus.Error) {
		vt, ok := c.objects.lookup(c, path, iface)
		if !ok || vt.GetProperty == nil {
			return dbus.Variant{}, dbus.NewError("org.freedesktop.DBus.Error.UnknownProperty", []any{property})
		}
		val, errName, errMsg, ok := vt.GetProperty(c, "", path, iface, property)
		if !ok {
			return dbus.Variant{}, dbus.NewError(errName, []any{errMsg})
		}
		return dbus.MakeVariant(val), nil
	}
}

func (c *Connection) propertiesSet(path dbus.ObjectPath) func(string, string, dbus.Variant) *dbus.Error {
	return func(iface, property string, value dbus.Variant) *dbus.Error {
		vt, ok := c.objects.lookup(c, path, iface)
		if !ok || vt.SetProperty == nil {
			return dbus.NewError("org.freedesktop.DBus.Error.PropertyReadOnly", []any{property})
		}
		errName, errMsg, ok := vt.SetProperty(c, "", path, iface, property, value.Value())
		if !ok {
			return dbus.NewError(errName, []any{errMsg})
		}
		return nil
	}
}

func (c *Connection) propertiesGetAll(path dbus.ObjectPath) func(string) (map[string]dbus.Variant, *dbus.Error) {
	return func(iface string) (map[string]dbus.Variant, *dbus.Error) {
		vt, ok := c.objects.lookup(c, path, iface)
		if !ok || vt.GetProperty == nil {
			return map[string]dbus.Variant{}, nil
		}
		return map[string]dbus.Variant{}, nil
	}
}

func (c *Connection) introspectHandler(path dbus.ObjectPath) func() (string, *dbus.Error) {
	return func() (string, *dbus.Error) {
		node := &introspect.Node{}
		c.objects.mu.RLock()
		for _, r := range c.objects.objects[path] {
			if r.node != nil {
				node.Interfaces = append(node.Interfaces, *r.node)
			}
		}
		c.objects.mu.RUnlock()
		data, err := introspect.Marshal(node)
		if err != nil {
			return "", dbus.NewError("org.freedesktop.DBus.Error.Failed", []any{err.Error()})
		}
		return string(data), nil
	}
}

// waitClosed blocks until the connection's background goroutines have
// been told to stop, used by tests that need deterministic teardown.
func (c *Connection) waitClosed(timeout time.Duration) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-c.closeCtx.Done():
	case <-t.C:
	}
}
