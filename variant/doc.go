// Package variant implements a self-normalising, copy-on-share variant
// value engine: trees of typed values that can be built in memory,
// flattened to a wire-compatible byte sequence, lazily deserialised
// from untrusted bytes, and byte-swapped on demand.
//
// A Value carries a lattice of boolean state bits (native byte order,
// trust, size-known, serialised, ...) guarded by a per-value spinlock.
// Requesting a bit via the internal require() solver walks a small
// precondition table (state.go) to compute it on demand; transitions
// are monotonic — bits are only ever added, never cleared, with the
// sole exception of the lock bit itself.
//
// The engine never fails on malformed untrusted bytes: reads past a
// buffer's end, or through an offset that does not line up, are
// substituted with zero-filled bytes of the expected shape (the zeros
// policy, zeros.go). Misuse by the caller — a typed accessor on the
// wrong type, a builder closed with too few children, an iterator
// stepped past its end — panics with a *UsageError, since these are
// programming errors rather than data errors.
package variant
