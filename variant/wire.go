package variant

import (
	"encoding/binary"
	"unsafe"
)

// hostOrder is the byte order of the running machine. D-Bus wire
// bytes are tagged with their own order (the Transport Connection
// records it per top-level message); the Variant Engine compares
// against this to decide whether NATIVE already holds.
var hostOrder = func() binary.ByteOrder {
	var x uint16 = 1
	b := (*[2]byte)(unsafe.Pointer(&x))
	if b[0] == 1 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}()

// WireChild pairs a pre-encoded child's bytes with its own type. A
// tuple/array/dict-entry's children all share a type known from the
// parent TypeInfo, but a variant's single child does not — its type
// is a property of the instance, not of the variant TypeInfo — so
// every child is carried with its type alongside its bytes.
type WireChild struct {
	Type  *TypeInfo
	Bytes []byte
}

// Wire is the small bit-level marshalling interface the Variant Engine
// consumes (spec §6). It is deliberately excluded from this
// repository's hard engineering — malformed/adversarial bytes are this
// interface's problem to survive safely, not the lattice's — but the
// seam is kept swappable so an alternative codec can be substituted
// without touching state.go or value.go.
type Wire interface {
	// NeededSize returns the number of bytes t's encoding requires
	// given its already-encoded children, bottom-up.
	NeededSize(t *TypeInfo, children []WireChild) int
	// Serialise writes t's encoding into dest (exactly
	// NeededSize(t, children) bytes) from the supplied children, in
	// the given byte order.
	Serialise(t *TypeInfo, dest []byte, children []WireChild, order binary.ByteOrder)
	// GetChild extracts the index'th child of a container value whose
	// encoding is exactly parent. ok is false if the index is out of
	// range or the bytes are too malformed to locate the child safely
	// — callers apply the zeros policy in that case.
	GetChild(t *TypeInfo, parent []byte, index int, order binary.ByteOrder) (childType *TypeInfo, childBytes []byte, ok bool)
	// NChildren returns how many children a container value's bytes
	// hold. For arrays this requires walking length-prefix framing;
	// for tuples/dict-entries it is the type's own child count; for
	// variants it is always 1 (a malformed variant trailer yields 0).
	NChildren(t *TypeInfo, data []byte, order binary.ByteOrder) int
	// Byteswap reverses multi-byte integer fields of data in place,
	// recursively through containers, according to t.
	Byteswap(t *TypeInfo, data []byte, order binary.ByteOrder)
	// IsNormal reports whether data is a well-formed encoding of t:
	// in-bounds offsets, correct alignment, NUL-terminated strings
	// that are valid UTF-8, valid object paths and signatures where
	// applicable.
	IsNormal(t *TypeInfo, data []byte, order binary.ByteOrder) bool
}

// defaultWire is the Wire implementation used unless a caller
// overrides it (e.g. in tests that want to observe the seam).
var defaultWire Wire = stdWire{}
