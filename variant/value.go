package variant

import (
	"encoding/binary"
	"sync/atomic"
)

// shape identifies which of the three payload forms a Value holds.
type shape byte

const (
	shapeTree shape = iota
	shapeSerialised
	shapeNotify
)

// Value is the central entity of the engine: a reference-counted,
// lock-governed node that is either a Tree of children, a Serialised
// byte buffer (optionally borrowed from a parent), or a Notify
// sentinel that owns externally-provided bytes for a Serialised
// sibling. See state.go for the bit lattice and require() below for
// the solver that computes bits on demand.
type Value struct {
	state    atomic.Uint32
	refcount atomic.Int32
	floating atomic.Bool

	typ  *TypeInfo
	wire Wire

	size  int            // valid iff SizeKnown set
	order binary.ByteOrder // meaningful only while Serialised

	shape shape

	// Serialised
	bytes  []byte
	parent *Value

	// Tree
	children []*Value

	// Notify
	notifyFn func()
}

func newFloatingValue(t *TypeInfo) *Value {
	v := &Value{typ: t, wire: defaultWire}
	v.refcount.Store(1)
	v.floating.Store(true)
	return v
}

// Ref increments v's reference count and returns v, converting a
// floating reference to owned if this is the first take.
func (v *Value) Ref() *Value {
	if v.floating.CompareAndSwap(true, false) {
		return v
	}
	v.refcount.Add(1)
	return v
}

// Unref decrements v's reference count, releasing its resources when
// it reaches zero: a Tree unrefs its children, a Serialised value
// frees its buffer if Independent or releases its parent otherwise,
// and a Notify sentinel runs its callback.
func (v *Value) Unref() {
	if v.refcount.Add(-1) > 0 {
		return
	}
	switch v.shape {
	case shapeTree:
		for _, c := range v.children {
			c.Unref()
		}
	case shapeSerialised:
		if v.parent != nil {
			v.parent.Unref()
		}
	case shapeNotify:
		if v.notifyFn != nil {
			v.notifyFn()
		}
	}
}

// IsFloating reports whether v has not yet been taken ownership of.
func (v *Value) IsFloating() bool { return v.floating.Load() }

// TakeRef implements "ref-sink" semantics: if v is still floating,
// ownership is taken without touching the refcount; if v is already
// owned, this is an ordinary Ref. Used whenever a Value is added to a
// container or otherwise adopted by a new owner.
func (v *Value) TakeRef() *Value { return v.Ref() }

// Type returns v's TypeInfo.
func (v *Value) Type() *TypeInfo { return v.typ }

func (v *Value) lock()   { spinLock(&v.state) }
func (v *Value) unlock() { spinUnlock(&v.state) }

func (v *Value) hasState(bits State) bool { return has(v.state.Load(), bits) }

func (v *Value) orState(bits State) {
	for {
		s := v.state.Load()
		next := s | bits
		if !valid(next &^ uint32(Locked)) {
			usagef(WrongShape, "internal: transition to invalid state on type %q", v.typ.str)
		}
		if v.state.CompareAndSwap(s, next) {
			return
		}
	}
}

// require is the state-lattice solver: it ensures every bit in wanted
// is set on v, acquiring the lock only if work is needed. Bits are
// enabled in dependency order (fixed-size and size-known are purely
// local; serialised may require flattening a Tree; native and trusted
// may each require serialised first).
func (v *Value) require(wanted State) {
	if v.hasState(wanted) {
		return
	}
	v.lock()
	defer v.unlock()
	v.requireLocked(wanted)
}

// requireLocked is require's body, assuming v.lock() is already held.
// Internal enable steps call back into it to pull in bits they depend
// on without deadlocking.
func (v *Value) requireLocked(wanted State) {
	order := []State{FixedSize, Serialised, SizeKnown, Independent, Native, Trusted, SizeValid, Reconstructed}
	for _, bit := range order {
		if wanted&bit == 0 {
			continue
		}
		if v.hasState(bit) {
			continue
		}
		v.enableLocked(bit)
	}
}

func (v *Value) enableLocked(bit State) {
	switch bit {
	case FixedSize:
		if v.typ.IsFixedSize() {
			v.orState(FixedSize)
		}
	case Serialised:
		v.enableSerialisedLocked()
	case SizeKnown:
		v.enableSizeKnownLocked()
	case SizeValid:
		v.enableSizeValidLocked()
	case Independent:
		v.enableIndependentLocked()
	case Native:
		v.enableNativeLocked()
	case Trusted:
		v.enableTrustedLocked()
	case Reconstructed:
		v.reconstructLocked()
		v.orState(Reconstructed)
	}
}

// enableSerialisedLocked forces shape Tree → Serialised by
// recursively flattening children (each forced to Native first, so
// every byte in the result is in host order) and asking the wire
// codec to pack them. Freshly produced bytes are our own, syntactically
// well-formed encoding, so the result is marked trusted at birth
// alongside native — this is the one shape transition the lattice
// allows outside of reconstruction.
func (v *Value) enableSerialisedLocked() {
	if v.shape != shapeTree {
		usagef(WrongShape, "cannot serialise a value already in shape %d", v.shape)
	}
	kids := make([]WireChild, len(v.children))
	for i, c := range v.children {
		c.require(Serialised | Native)
		kids[i] = WireChild{Type: c.typ, Bytes: c.bytes}
	}
	n := v.wire.NeededSize(v.typ, kids)
	buf := make([]byte, n)
	v.wire.Serialise(v.typ, buf, kids, hostOrder)

	oldChildren := v.children
	v.shape = shapeSerialised
	v.bytes = buf
	v.parent = nil
	v.order = hostOrder
	v.children = nil
	v.size = n
	v.orState(Serialised | Independent | SourceNative | Native | SourceTrusted | Trusted | SizeKnown)

	for _, c := range oldChildren {
		c.Unref()
	}
}

func (v *Value) enableSizeKnownLocked() {
	if v.shape == shapeSerialised {
		v.size = len(v.bytes)
		v.orState(SizeKnown)
		return
	}
	v.requireLocked(Serialised)
	v.size = len(v.bytes)
	v.orState(SizeKnown)
}

func (v *Value) enableSizeValidLocked() {
	v.requireLocked(SizeKnown)
	if v.hasState(FixedSize) || v.typ.IsFixedSize() {
		v.orState(SizeValid)
		return
	}
	v.requireLocked(Trusted)
	v.orState(SizeValid)
}

func (v *Value) enableIndependentLocked() {
	v.requireLocked(Serialised)
	if v.hasState(Independent) {
		return
	}
	cp := make([]byte, len(v.bytes))
	copy(cp, v.bytes)
	if v.parent != nil {
		v.parent.Unref()
		v.parent = nil
	}
	v.bytes = cp
	v.orState(Independent)
}

func (v *Value) enableNativeLocked() {
	if v.hasState(SourceNative) {
		v.orState(Native)
		return
	}
	v.requireLocked(Serialised)
	if v.order == nil || v.order == hostOrder {
		v.order = hostOrder
		v.orState(BecameNative | Native)
		return
	}
	if v.hasState(Independent) {
		v.wire.Byteswap(v.typ, v.bytes, v.order)
	} else {
		cp := make([]byte, len(v.bytes))
		copy(cp, v.bytes)
		v.wire.Byteswap(v.typ, cp, v.order)
		if v.parent != nil {
			v.parent.Unref()
			v.parent = nil
		}
		v.bytes = cp
		v.orState(Independent)
	}
	v.order = hostOrder
	v.orState(BecameNative | Native)
}

func (v *Value) enableTrustedLocked() {
	if v.hasState(SourceTrusted) {
		v.orState(Trusted)
		return
	}
	v.requireLocked(Serialised)
	if v.wire.IsNormal(v.typ, v.bytes, v.order) {
		v.orState(BecameTrusted | Trusted)
		return
	}
	v.reconstructLocked()
	v.orState(BecameTrusted | Trusted | Reconstructed)
}

// reconstructLocked rebuilds v's bytes from a freshly normalised Tree
// walk (substituting the zeros policy for any malformed region) and
// replaces v's Serialised payload in place, preserving v's identity —
// per the lifecycle rule, shape transitions only go Tree → Serialised
// or a reconstruct-in-place on an existing Serialised.
func (v *Value) reconstructLocked() {
	tree := rebuildTree(v.typ, v.bytes, v.order, v.wire)
	tree.require(Serialised | Native)
	if v.parent != nil {
		v.parent.Unref()
		v.parent = nil
	}
	v.bytes = tree.bytes
	v.order = hostOrder
	v.size = len(v.bytes)
	v.orState(Independent | SizeKnown | Native | SourceNative)
}

// rebuildTree walks data (an encoding of t in the given order, assumed
// possibly malformed) into a fresh floating Tree Value, substituting
// zero-filled children for any region that can't be located safely.
func rebuildTree(t *TypeInfo, data []byte, order binary.ByteOrder, w Wire) *Value {
	if !t.IsContainer() {
		if !w.IsNormal(t, data, order) {
			return zeroChild(t)
		}
		return newLeafFromBytes(t, data, order, w)
	}
	n := w.NChildren(t, data, order)
	kids := make([]*Value, n)
	for i := 0; i < n; i++ {
		childType, childBytes, ok := w.GetChild(t, data, i, order)
		if !ok {
			ct := t.ChildType(0)
			if t.Kind() == KindDictEntry && i == 1 {
				ct = t.ChildType(1)
			}
			kids[i] = zeroChild(ct)
			continue
		}
		kids[i] = rebuildTree(childType, childBytes, order, w)
	}
	tv := newFloatingValue(t)
	tv.shape = shapeTree
	tv.children = kids
	allTrust := true
	for _, k := range kids {
		if !k.hasState(SourceTrusted) {
			allTrust = false
			break
		}
	}
	if allTrust {
		tv.orState(SourceTrusted)
	}
	return tv
}

func newLeafFromBytes(t *TypeInfo, data []byte, order binary.ByteOrder, w Wire) *Value {
	v := newFloatingValue(t)
	v.shape = shapeSerialised
	cp := make([]byte, len(data))
	copy(cp, data)
	v.bytes = cp
	v.order = order
	v.size = len(cp)
	v.orState(Serialised | Independent | SizeKnown | SourceTrusted)
	return v
}

// NChildren returns the number of direct children of v: 1 for
// variant, 0 or 1 for maybe, N for array/tuple, 2 for dict-entry.
func (v *Value) NChildren() int {
	if v.shape == shapeTree {
		return len(v.children)
	}
	v.require(Serialised)
	return v.wire.NChildren(v.typ, v.bytes, v.order)
}

// ChildValue returns the i'th child. For a Tree value this increments
// the child's refcount; for a Serialised value it materialises a new
// Serialised child that borrows the parent's buffer, or — for an
// out-of-range or malformed read against untrusted bytes — returns a
// reference into the shared zeros buffer. Trusted parents treat an
// out-of-range index as a caller bug (IndexOutOfRange).
func (v *Value) ChildValue(i int) *Value {
	if v.shape == shapeTree {
		if i < 0 || i >= len(v.children) {
			usagef(IndexOutOfRange, "child index %d out of range (n=%d)", i, len(v.children))
		}
		return v.children[i].Ref()
	}
	v.require(Serialised)
	childType, childBytes, ok := v.wire.GetChild(v.typ, v.bytes, i, v.order)
	if !ok {
		if v.IsTrusted() {
			usagef(IndexOutOfRange, "child index %d out of range on trusted value", i)
		}
		return zeroChild(elemTypeFor(v.typ, i))
	}
	child := newFloatingValue(childType)
	child.shape = shapeSerialised
	child.bytes = childBytes
	child.order = v.order
	child.size = len(childBytes)
	child.orState(Serialised | SizeKnown)
	if v.hasState(Trusted) {
		child.orState(SourceTrusted)
	}
	if v.hasState(Native) {
		child.orState(SourceNative)
	}
	child.parent = v.Ref()
	return child
}

func elemTypeFor(t *TypeInfo, i int) *TypeInfo {
	switch t.Kind() {
	case KindArray, KindMaybe:
		return t.elem
	case KindVariant:
		return typeVariant // signature unknown; caller treats as opaque
	case KindDictEntry:
		if i == 0 {
			return t.key
		}
		return t.val
	case KindTuple:
		if i >= 0 && i < len(t.items) {
			return t.items[i]
		}
	}
	return typeByte
}

// Size returns v's serialised byte size, flattening if necessary.
func (v *Value) Size() int {
	v.require(SizeKnown)
	return v.size
}

// Flatten forces Serialised+Native state; afterwards Size/GetData/
// Store are O(1).
func (v *Value) Flatten() {
	v.require(Serialised | Native)
	tracef("variant flatten", "type", v.typ.str, "size", humanSize(v.size))
}

// GetData returns v's serialised bytes in native order. The slice
// must not be mutated; it may be shared with a parent or sibling.
func (v *Value) GetData() []byte {
	v.require(Serialised | Native)
	return v.bytes
}

// Store writes v's serialised native-order bytes into dst, which must
// be at least Size() bytes long.
func (v *Value) Store(dst []byte) {
	data := v.GetData()
	tracef("variant store", "type", v.typ.str, "size", humanSize(len(data)))
	copy(dst, data)
}

// IsTrusted reports whether v's bytes are known (not necessarily
// verified fresh) to be a normalised encoding.
func (v *Value) IsTrusted() bool {
	return v.hasState(Trusted)
}

// IsNormal runs the byte-level well-formedness check through the wire
// codec; unlike IsTrusted it never trusts a cached assumption.
func (v *Value) IsNormal() bool {
	if v.shape == shapeTree {
		for _, c := range v.children {
			if !c.IsNormal() {
				return false
			}
		}
		return true
	}
	v.require(Serialised)
	return v.wire.IsNormal(v.typ, v.bytes, v.order)
}

// DeepCopy returns a new floating Value that is a structural copy of
// v: independent bytes for a Serialised value, freshly ref'd children
// (themselves deep-copied) for a Tree value.
func (v *Value) DeepCopy() *Value {
	switch v.shape {
	case shapeSerialised:
		v.require(Serialised)
		cp := newFloatingValue(v.typ)
		cp.shape = shapeSerialised
		cp.bytes = append([]byte(nil), v.bytes...)
		cp.order = v.order
		cp.size = len(cp.bytes)
		cp.state.Store(v.state.Load()&^uint32(Locked) | uint32(Independent) | uint32(SizeKnown))
		cp.parent = nil
		return cp
	case shapeTree:
		cp := newFloatingValue(v.typ)
		cp.shape = shapeTree
		cp.children = make([]*Value, len(v.children))
		for i, c := range v.children {
			cp.children[i] = c.DeepCopy().TakeRef()
		}
		return cp
	default:
		usagef(WrongShape, "cannot deep-copy a Notify sentinel")
		return nil
	}
}
