package variant

import "encoding/binary"

// LoadFlags controls how Load/FromBytes/FromSlice interpret incoming
// bytes: which byte order they are in, and whether they are already
// known to be normalised.
type LoadFlags uint8

const (
	FlagLittleEndian LoadFlags = 1 << iota
	FlagBigEndian
	FlagTrusted
	FlagLazyByteswap
)

func wrapBytes(t *TypeInfo, data []byte, flags LoadFlags, parent *Value) *Value {
	v := newFloatingValue(t)
	v.shape = shapeSerialised
	v.bytes = data
	v.size = len(data)
	v.parent = parent

	switch {
	case flags&FlagLittleEndian != 0:
		v.order = binary.LittleEndian
	case flags&FlagBigEndian != 0:
		v.order = binary.BigEndian
	default:
		v.order = hostOrder
	}
	if v.order == hostOrder {
		v.orState(SourceNative)
	}
	bits := SizeKnown | Serialised
	if parent == nil {
		bits |= Independent
	}
	if flags&FlagTrusted != 0 {
		bits |= SourceTrusted
	}
	v.orState(bits)
	return v
}

// Load wraps data as a Value of type t without copying; the caller
// must keep data alive for as long as the returned Value (and any
// child or deep-copy taken from it) lives. If t is nil, data is
// interpreted as a top-level variant and the boxed value is returned
// unwrapped. Flags select the byte order the bytes are already in and
// whether they are already known to be normalised.
func Load(t *TypeInfo, data []byte, flags LoadFlags) *Value {
	return FromBytes(t, data, flags, nil)
}

// FromBytes wraps externally-owned data as a Value of type t (or, if
// t is nil, as a variant that is immediately unwrapped), without
// copying. onRelease, if non-nil, is invoked once every Value sharing
// these bytes has been released — both the "dependent" case (a
// release callback is supplied) and the "independent" case (none is)
// build the same Notify-owned Serialised value; the only difference
// is whether the sentinel's callback does anything.
func FromBytes(t *TypeInfo, data []byte, flags LoadFlags, onRelease func()) *Value {
	sentinel := newFloatingValue(nil)
	sentinel.shape = shapeNotify
	sentinel.notifyFn = onRelease
	sentinel.orState(Notify)
	sentinel.TakeRef()

	if t == nil {
		// boxed is floating; ChildValue's Ref() on it converts
		// floating->owned without incrementing, so the child ends up
		// the sole owner of boxed (and, transitively, of sentinel) —
		// no separate Unref of boxed is needed or correct here.
		boxed := wrapBytes(typeVariant, data, flags, sentinel)
		return boxed.ChildValue(0)
	}
	return wrapBytes(t, data, flags, sentinel)
}

// FromSlice copies data into a freshly owned buffer and wraps it as a
// Value of type t (or, if t is nil, as a variant that is immediately
// unwrapped). Use this when the source bytes are not guaranteed to
// outlive the returned Value.
func FromSlice(t *TypeInfo, data []byte, flags LoadFlags) *Value {
	cp := append([]byte(nil), data...)
	if t == nil {
		boxed := wrapBytes(typeVariant, cp, flags, nil)
		return boxed.ChildValue(0)
	}
	return wrapBytes(t, cp, flags, nil)
}

