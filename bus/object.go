package bus

import (
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/gdbus-go/gdbus/introspect"
)

// RegistrationID identifies an object or subtree registered with
// RegisterObject/RegisterSubtree.
type RegistrationID uuid.UUID

func (id RegistrationID) String() string { return uuid.UUID(id).String() }

// Invocation is the handle a VTable method passed to method_call (or
// get_property/set_property) uses to complete the call exactly once
// (spec.md §4.3: "the handler calls return_value or return_error
// exactly once"). The dispatcher that invoked the handler (see
// connection.go's methodAdapter) blocks on done, so a handler may call
// ReturnValue/ReturnError from its own goroutine for a genuinely
// asynchronous reply.
type Invocation struct {
	conn *Connection
	once sync.Once
	done chan struct{}

	resultArgs []any
	errName    string
	errMessage string
	isError    bool
}

func newInvocation(conn *Connection) *Invocation {
	return &Invocation{conn: conn, done: make(chan struct{})}
}

// ReturnValue completes the call with a successful reply carrying
// args as the reply body. A second call (ReturnValue or ReturnError)
// on the same Invocation is a no-op.
func (inv *Invocation) ReturnValue(args ...any) {
	inv.once.Do(func() {
		inv.resultArgs = args
		close(inv.done)
	})
}

// ReturnError completes the call with an error reply (spec.md §4.4's
// vtable contract).
func (inv *Invocation) ReturnError(name, message string) {
	inv.once.Do(func() {
		inv.isError = true
		inv.errName = name
		inv.errMessage = message
		close(inv.done)
	})
}

// wait blocks until ReturnValue/ReturnError is called and renders the
// result in the shape godbus's ExportMethodTable expects.
func (inv *Invocation) wait() ([]any, *dbus.Error) {
	<-inv.done
	if inv.isError {
		return nil, dbus.NewError(inv.errName, []any{inv.errMessage})
	}
	return inv.resultArgs, nil
}

// MethodHandler handles an incoming method call on a registered
// object. sender is the caller's unique bus name.
type MethodHandler func(conn *Connection, sender string, path dbus.ObjectPath, iface, method string, args []any, inv *Invocation)

// PropertyGetter returns the current value of a property, or an error
// name/message pair via ok=false.
type PropertyGetter func(conn *Connection, sender string, path dbus.ObjectPath, iface, property string) (value any, errName, errMessage string, ok bool)

// PropertySetter applies a new property value.
type PropertySetter func(conn *Connection, sender string, path dbus.ObjectPath, iface, property string, value any) (errName, errMessage string, ok bool)

// VTable is the set of handlers serving one interface on one
// registered object (spec.md §4.3).
type VTable struct {
	MethodCall  MethodHandler
	GetProperty PropertyGetter
	SetProperty PropertySetter
}

// objectRegistration is a single RegisterObject entry: a path, the
// interface it answers for, its introspection description, and its
// handlers.
type objectRegistration struct {
	id      RegistrationID
	path    dbus.ObjectPath
	iface   string
	node    *introspect.Interface
	vtable  VTable
}

// SubtreeVTable serves a dynamically-enumerated region of the object
// tree (spec.md §4.3 register_subtree).
type SubtreeVTable struct {
	// Enumerate lists the relative child object names presently under
	// the subtree root.
	Enumerate func(conn *Connection, path dbus.ObjectPath) []string
	// Introspect returns the introspection Node for a concrete node
	// under the subtree (nil if unknown).
	Introspect func(conn *Connection, path dbus.ObjectPath) *introspect.Node
	// Dispatch returns the VTable serving the given interface at the
	// given node, or a zero VTable if this subtree doesn't implement
	// it.
	Dispatch func(conn *Connection, path dbus.ObjectPath, iface string) VTable
}

type subtreeRegistration struct {
	id     RegistrationID
	root   dbus.ObjectPath
	vtable SubtreeVTable
}

// objectTable holds every object/subtree this Connection serves.
type objectTable struct {
	mu        sync.RWMutex
	objects   map[dbus.ObjectPath][]*objectRegistration
	subtrees  []*subtreeRegistration
}

func newObjectTable() *objectTable {
	return &objectTable{objects: make(map[dbus.ObjectPath][]*objectRegistration)}
}

func (t *objectTable) registerObject(path dbus.ObjectPath, iface string, node *introspect.Interface, vtable VTable) RegistrationID {
	t.mu.Lock()
	defer t.mu.Unlock()
	reg := &objectRegistration{id: RegistrationID(uuid.New()), path: path, iface: iface, node: node, vtable: vtable}
	t.objects[path] = append(t.objects[path], reg)
	return reg.id
}

func (t *objectTable) registerSubtree(root dbus.ObjectPath, vtable SubtreeVTable) RegistrationID {
	t.mu.Lock()
	defer t.mu.Unlock()
	reg := &subtreeRegistration{id: RegistrationID(uuid.New()), root: root, vtable: vtable}
	t.subtrees = append(t.subtrees, reg)
	return reg.id
}

func (t *objectTable) unregister(id RegistrationID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for path, regs := range t.objects {
		for i, r := range regs {
			if r.id == id {
				t.objects[path] = append(regs[:i], regs[i+1:]...)
				return true
			}
		}
	}
	for i, r := range t.subtrees {
		if r.id == id {
			t.subtrees = append(t.subtrees[:i], t.subtrees[i+1:]...)
			return true
		}
	}
	return false
}

// lookup finds the VTable serving iface at path: a direct
// RegisterObject match first, falling back to any subtree whose root
// is a prefix of path.
func (t *objectTable) lookup(conn *Connection, path dbus.ObjectPath, iface string) (VTable, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, r := range t.objects[path] {
		if r.iface == iface {
			return r.vtable, true
		}
	}
	for _, st := range t.subtrees {
		if isUnderSubtree(st.root, path) {
			vt := st.vtable.Dispatch
			if vt == nil {
				continue
			}
			return vt(conn, path, iface), true
		}
	}
	return VTable{}, false
}

func isUnderSubtree(root, path dbus.ObjectPath) bool {
	r, p := string(root), string(path)
	if r == p {
		return true
	}
	if r == "/" {
		return true
	}
	return len(p) > len(r) && p[:len(r)] == r && p[len(r)] == '/'
}
