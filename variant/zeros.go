package variant

import "sync"

// zeroBuf is the lazily-grown, power-of-two, all-zero shared buffer
// substituted for any child extraction from an untrusted Serialised
// parent that reads past the buffer end or through a malformed
// offset. Every extractor must return some readable byte sequence;
// recycling one buffer keeps the cost O(1) and keeps the returned
// child's lifetime independent of its "parent" (it borrows from this
// buffer instead, which never shrinks or moves while referenced).
var zeroBuf struct {
	mu  sync.Mutex
	buf []byte
}

const minZeroBufSize = 4096

// zeroBytes returns a slice of n all-zero bytes from the shared
// buffer, growing it (by doubling) if necessary.
func zeroBytes(n int) []byte {
	zeroBuf.mu.Lock()
	defer zeroBuf.mu.Unlock()
	if len(zeroBuf.buf) < n {
		size := minZeroBufSize
		for size < n {
			size *= 2
		}
		zeroBuf.buf = make([]byte, size)
		tracef("variant zeros buffer grown", "size", humanSize(size))
	}
	return zeroBuf.buf[:n]
}

// zeroChild builds the substitute Value returned in place of an
// out-of-range or malformed child extraction from an untrusted
// parent. Per the zeros policy it carries FIXED_SIZE+TRUSTED+NATIVE+
// SIZE_VALID: callers downstream must always see a well-formed value.
func zeroChild(t *TypeInfo) *Value {
	var n int
	if t.IsFixedSize() {
		n = t.FixedSize()
	} else {
		// Variable-size types get the smallest well-formed encoding:
		// an empty string/array/signature, all of which are frames
		// wholly describable with zero bytes of content.
		switch t.Kind() {
		case KindString, KindObjectPath:
			n = 5 // 4-byte zero length + NUL
		case KindSignature:
			n = 1 // zero-length signature: a single 0x00
		case KindArray:
			n = 4 // zero-length array: a zero length prefix, no elements
		case KindVariant:
			n = 2 // zero-length signature ("g" len-byte 0) + NUL -> "()" style fallback
		default:
			n = 0
		}
	}
	v := newFloatingValue(t)
	v.shape = shapeSerialised
	v.bytes = zeroBytes(n)
	v.order = hostOrder
	v.size = n
	v.orState(Serialised | FixedSize | SourceTrusted | Trusted | SourceNative | Native | SizeKnown | SizeValid)
	return v
}
