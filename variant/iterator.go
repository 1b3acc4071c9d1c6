package variant

// Iterator holds a reference to a container Value and the index of
// its next unproduced child. Explicit Cancel drops the reference
// early; otherwise the reference is dropped automatically once the
// iterator is exhausted.
type Iterator struct {
	container *Value
	next      int
	n         int
	cancelled bool
	done      bool
}

// InitIterator begins iterating v's children, returning the iterator
// and the number of children it will produce.
func InitIterator(v *Value) (*Iterator, int) {
	n := v.NChildren()
	it := &Iterator{container: v.Ref(), n: n}
	if n == 0 {
		it.release()
	}
	return it, n
}

// NextValue returns the next child and advances the iterator. Panics
// with IteratorExhausted if all children have already been produced.
func (it *Iterator) NextValue() *Value {
	if it.next >= it.n || it.done {
		usagef(IteratorExhausted, "next_value called after %d of %d children produced", it.next, it.n)
	}
	child := it.container.ChildValue(it.next)
	it.next++
	if it.next >= it.n {
		it.release()
	}
	return child
}

// Cancel drops the iterator's reference to its container early.
// Panics with IteratorMissequenced if called twice.
func (it *Iterator) Cancel() {
	if it.cancelled {
		usagef(IteratorMissequenced, "cancel called twice on the same iterator")
	}
	it.cancelled = true
	it.release()
}

// WasCancelled reports whether Cancel was explicitly called (as
// opposed to the iterator simply running to exhaustion).
func (it *Iterator) WasCancelled() bool { return it.cancelled }

func (it *Iterator) release() {
	if it.done {
		return
	}
	it.done = true
	if it.container != nil {
		it.container.Unref()
		it.container = nil
	}
}
