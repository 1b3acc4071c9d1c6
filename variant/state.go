package variant

import (
	"runtime"
	"sync/atomic"
)

// State is a bitset over the Value lattice. Bits are only ever added,
// never cleared (the sole exception being the lock bit, which toggles
// as a literal spinlock). The thirteen named bits below are exactly
// the ones enumerated in the design: SOURCE_NATIVE/BECAME_NATIVE/
// NATIVE and SOURCE_TRUSTED/BECAME_TRUSTED/TRUSTED are paired
// "inherent vs. derived-via-work" bits; FIXED_SIZE is purely
// type-derived; SIZE_KNOWN/SIZE_VALID separate "filled in" from
// "trustworthy enough to hand out a byte count for"; SERIALISED/
// INDEPENDENT/RECONSTRUCTED describe a Serialised value's ownership
// and provenance; NOTIFY marks the sentinel shape; LOCKED (bit 31) is
// the instance spinlock and is excluded from the monotonicity rule.
type State = uint32

const (
	SourceNative State = 1 << iota
	BecameNative
	Native
	SourceTrusted
	BecameTrusted
	Trusted
	FixedSize
	SizeKnown
	SizeValid
	Serialised
	Independent
	Reconstructed
	Notify
)

const Locked State = 1 << 31

// has reports whether all of bits are set in s.
func has(s, bits State) bool { return s&bits == bits }

// valid reports whether s is an internally consistent state: every
// bit's implies/forbids/absence-implies clause holds. orState checks
// it before storing every transition and panics with a WrongShape
// UsageError if the new state would be invalid.
func valid(s State) bool {
	// NATIVE is never set without one of its two causes.
	if has(s, Native) && !has(s, SourceNative) && !has(s, BecameNative) {
		return false
	}
	// BECAME_NATIVE only makes sense alongside NATIVE.
	if has(s, BecameNative) && !has(s, Native) {
		return false
	}
	if has(s, Trusted) && !has(s, SourceTrusted) && !has(s, BecameTrusted) {
		return false
	}
	if has(s, BecameTrusted) && !has(s, Trusted) {
		return false
	}
	// SIZE_VALID implies SIZE_KNOWN: a size can't be trustworthy
	// without being filled in.
	if has(s, SizeValid) && !has(s, SizeKnown) {
		return false
	}
	// INDEPENDENT and RECONSTRUCTED only make sense on Serialised
	// values (the other two shapes have no buffer to own or rebuild).
	if has(s, Independent) && !has(s, Serialised) {
		return false
	}
	if has(s, Reconstructed) && !has(s, Serialised) {
		return false
	}
	// NOTIFY is its own shape, mutually exclusive with SERIALISED.
	if has(s, Notify) && has(s, Serialised) {
		return false
	}
	return true
}

// spinLock acquires the instance lock bit with a tight CAS loop,
// yielding the scheduler between attempts. Contention is expected to
// be brief: critical sections only perform in-memory swaps/copies or
// recursive flattening of already-resident children.
func spinLock(word *atomic.Uint32) {
	for {
		s := word.Load()
		if s&uint32(Locked) != 0 {
			runtime.Gosched()
			continue
		}
		if word.CompareAndSwap(s, s|uint32(Locked)) {
			return
		}
	}
}

func spinUnlock(word *atomic.Uint32) {
	for {
		s := word.Load()
		if word.CompareAndSwap(s, s&^uint32(Locked)) {
			return
		}
	}
}
