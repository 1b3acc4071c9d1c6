package variant

import "math"

// This file implements the new_<basic> family and new_variant: the
// simplest way to build a Value directly from a Go scalar, bypassing
// Builder for the common case of a single leaf or a variant box.

func newBasicSerialised(t *TypeInfo, bytes []byte) *Value {
	v := newFloatingValue(t)
	v.shape = shapeSerialised
	v.bytes = bytes
	v.order = hostOrder
	v.size = len(bytes)
	bits := Serialised | SourceTrusted | Trusted | SourceNative | Native | Independent | SizeKnown | SizeValid
	v.orState(bits)
	return v
}

// NewByte returns a floating Value of type "y".
func NewByte(b byte) *Value { return newBasicSerialised(typeByte, []byte{b}) }

// NewBool returns a floating Value of type "b". D-Bus marshals
// BOOLEAN as a 4-byte value holding exactly 0 or 1.
func NewBool(b bool) *Value {
	var x uint32
	if b {
		x = 1
	}
	buf := make([]byte, 4)
	hostOrder.PutUint32(buf, x)
	return newBasicSerialised(typeBool, buf)
}

// NewInt16 returns a floating Value of type "n".
func NewInt16(n int16) *Value {
	buf := make([]byte, 2)
	hostOrder.PutUint16(buf, uint16(n))
	return newBasicSerialised(typeInt16, buf)
}

// NewUint16 returns a floating Value of type "q".
func NewUint16(n uint16) *Value {
	buf := make([]byte, 2)
	hostOrder.PutUint16(buf, n)
	return newBasicSerialised(typeUint16, buf)
}

// NewInt32 returns a floating Value of type "i".
func NewInt32(n int32) *Value {
	buf := make([]byte, 4)
	hostOrder.PutUint32(buf, uint32(n))
	return newBasicSerialised(typeInt32, buf)
}

// NewUint32 returns a floating Value of type "u".
func NewUint32(n uint32) *Value {
	buf := make([]byte, 4)
	hostOrder.PutUint32(buf, n)
	return newBasicSerialised(typeUint32, buf)
}

// NewHandle returns a floating Value of type "h" (an index into the
// accompanying message's file-descriptor array).
func NewHandle(h int32) *Value {
	buf := make([]byte, 4)
	hostOrder.PutUint32(buf, uint32(h))
	return newBasicSerialised(typeHandle, buf)
}

// NewInt64 returns a floating Value of type "x".
func NewInt64(n int64) *Value {
	buf := make([]byte, 8)
	hostOrder.PutUint64(buf, uint64(n))
	return newBasicSerialised(typeInt64, buf)
}

// NewUint64 returns a floating Value of type "t".
func NewUint64(n uint64) *Value {
	buf := make([]byte, 8)
	hostOrder.PutUint64(buf, n)
	return newBasicSerialised(typeUint64, buf)
}

// NewDouble returns a floating Value of type "d".
func NewDouble(f float64) *Value {
	buf := make([]byte, 8)
	hostOrder.PutUint64(buf, math.Float64bits(f))
	return newBasicSerialised(typeDouble, buf)
}

// NewString returns a floating Value of type "s". Must be valid UTF-8
// with no embedded NUL; callers that need to bypass that guarantee
// should go through Load with the trusted flag instead.
func NewString(s string) *Value {
	return newBasicSerialised(typeString, encodeDBusString(s))
}

// NewObjectPath returns a floating Value of type "o". s must already
// satisfy the object-path grammar (see wire_codec.go's
// validObjectPath); this constructor does not itself validate it —
// IsNormal() does, on demand, the way any other Serialised value's
// trust is checked.
func NewObjectPath(s string) *Value {
	return newBasicSerialised(typeObjectPath, encodeDBusString(s))
}

// NewSignature returns a floating Value of type "g". s must be 255
// bytes or shorter, the wire limit for a signature string.
func NewSignature(s string) *Value {
	buf := make([]byte, 1+len(s)+1)
	buf[0] = byte(len(s))
	copy(buf[1:], s)
	buf[len(buf)-1] = 0
	return newBasicSerialised(typeSignature, buf)
}

func encodeDBusString(s string) []byte {
	buf := make([]byte, 4+len(s)+1)
	hostOrder.PutUint32(buf[0:4], uint32(len(s)))
	copy(buf[4:], s)
	buf[len(buf)-1] = 0
	return buf
}

// NewVariant boxes child inside a variant value: child's trusted-ness
// is inherited (a variant is as trustworthy as its contents), and the
// result is a floating Tree value with exactly one child.
func NewVariant(child *Value) *Value {
	v := newFloatingValue(typeVariant)
	v.shape = shapeTree
	v.children = []*Value{child.TakeRef()}
	if child.IsTrusted() {
		v.orState(SourceTrusted | Trusted)
	}
	if child.hasState(Native) {
		v.orState(SourceNative | Native)
	}
	return v
}
