package variant

// Builder is the ephemeral construction aid for container values. It
// records the container kind, an optional definite element type
// (expected), an element type inferred from the first added child
// (expected2) when none was given upfront, min/max child-count
// constraints, and the growing child list. Children are added
// floating; End produces a new floating Value. Builders nest via
// Open/Close.
type Builder struct {
	kind      Kind
	typ       *TypeInfo // the container type, once fully known (nil for an array/maybe still inferring)
	elemType  *TypeInfo // explicit expected element type, if any (array/maybe)
	expected2 *TypeInfo // inferred element type from the first child added
	tupleWant []*TypeInfo // per-position expected types for a definite tuple/dict-entry
	items     []*Value
	min, max  int // max < 0 means unbounded
	parent    *Builder
}

// NewBuilder starts building a container of type t. t may be
// partially indefinite for array/maybe ("a*", "am?"): the first added
// child then fixes the concrete element type for the rest of the
// build.
func NewBuilder(t *TypeInfo) *Builder {
	b := &Builder{kind: t.Kind()}
	switch t.Kind() {
	case KindArray:
		b.min, b.max = 0, -1
		if t.elem.IsDefinite() {
			b.elemType = t.elem
			b.typ = t
		}
	case KindMaybe:
		b.min, b.max = 0, 1
		if t.elem.IsDefinite() {
			b.elemType = t.elem
			b.typ = t
		}
	case KindVariant:
		b.min, b.max = 1, 1
	case KindTuple:
		b.min, b.max = len(t.items), len(t.items)
		b.tupleWant = t.items
		if len(t.items) == 0 {
			b.typ = typeUnitTuple
		}
	case KindDictEntry:
		b.min, b.max = 2, 2
		b.tupleWant = []*TypeInfo{t.key, t.val}
	default:
		usagef(WrongShape, "type %q cannot be built with a Builder", t.str)
	}
	return b
}

// CheckAdd reports whether v's type is acceptable as the next child,
// without mutating the builder.
func (b *Builder) CheckAdd(v *Value) error {
	if b.max >= 0 && len(b.items) >= b.max {
		return &UsageError{Kind: TooManyChildren, Message: "builder already has its maximum number of children"}
	}
	switch b.kind {
	case KindArray, KindMaybe:
		want := b.elemType
		if want == nil {
			want = b.expected2
		}
		if want != nil && want.str != v.typ.str {
			return &UsageError{Kind: TypeMismatch, Message: "element type " + v.typ.str + " does not match " + want.str}
		}
	case KindTuple, KindDictEntry:
		if len(b.tupleWant) > 0 {
			if len(b.items) >= len(b.tupleWant) {
				return &UsageError{Kind: TooManyChildren}
			}
			want := b.tupleWant[len(b.items)]
			if want.str != v.typ.str {
				return &UsageError{Kind: TypeMismatch, Message: "member type " + v.typ.str + " does not match " + want.str}
			}
		}
	case KindVariant:
		// any type is acceptable
	}
	return nil
}

// AddValue adds v (taking its floating reference) as the next child.
// Panics with a *UsageError if v's type does not match.
func (b *Builder) AddValue(v *Value) *Builder {
	if err := b.CheckAdd(v); err != nil {
		panic(err)
	}
	if b.kind == KindArray || b.kind == KindMaybe {
		if b.elemType == nil && b.expected2 == nil {
			b.expected2 = v.typ
		}
	}
	b.items = append(b.items, v.TakeRef())
	return b
}

// Open starts a nested builder for a child container of type t,
// returning the child. Close on the child feeds its End() result back
// into this builder and returns this builder.
func (b *Builder) Open(t *TypeInfo) *Builder {
	child := NewBuilder(t)
	child.parent = b
	return child
}

// Close ends a builder opened via Open, adds the resulting value to
// the parent builder, and returns the parent. Panics if called on a
// top-level builder with no parent.
func (b *Builder) Close() *Builder {
	if b.parent == nil {
		usagef(WrongShape, "Close called on a builder with no parent; use End instead")
	}
	v := b.End()
	p := b.parent
	p.AddValue(v)
	return p
}

// CheckEnd reports whether the builder currently satisfies its
// container's minimum child count and, for arrays/maybes with no
// explicit element type, whether at least one child was added to
// infer from.
func (b *Builder) CheckEnd() error {
	if len(b.items) < b.min {
		return &UsageError{Kind: TooFewChildren, Message: "builder needs at least enough children to satisfy its type"}
	}
	if (b.kind == KindArray || b.kind == KindMaybe) && b.elemType == nil && b.expected2 == nil {
		return &UsageError{Kind: EmptyInfer}
	}
	return nil
}

// End produces the built, floating Value. Panics via CheckEnd's error
// if the builder's constraints are not satisfied.
func (b *Builder) End() *Value {
	if err := b.CheckEnd(); err != nil {
		panic(err)
	}
	t := b.resolveType()
	v := newFloatingValue(t)
	v.shape = shapeTree
	v.children = b.items
	if allTrusted(b.items) {
		v.orState(SourceTrusted | Trusted)
	}
	if allNative(b.items) {
		v.orState(SourceNative | Native)
	}
	return v
}

// Cancel discards the builder's accumulated children, unref'ing each.
func (b *Builder) Cancel() {
	for _, it := range b.items {
		it.Unref()
	}
	b.items = nil
}

func (b *Builder) resolveType() *TypeInfo {
	if b.typ != nil {
		return b.typ
	}
	switch b.kind {
	case KindArray:
		elem := b.elemType
		if elem == nil {
			elem = b.expected2
		}
		return NewArrayType(elem)
	case KindMaybe:
		elem := b.elemType
		if elem == nil {
			elem = b.expected2
		}
		return NewMaybeType(elem)
	case KindVariant:
		return typeVariant
	case KindTuple:
		items := make([]*TypeInfo, len(b.items))
		for i, it := range b.items {
			items[i] = it.typ
		}
		return NewTupleType(items...)
	case KindDictEntry:
		return NewDictEntryType(b.items[0].typ, b.items[1].typ)
	default:
		usagef(WrongShape, "cannot resolve type for builder kind")
		return nil
	}
}

func allTrusted(vs []*Value) bool {
	for _, v := range vs {
		if !v.IsTrusted() {
			return false
		}
	}
	return true
}

func allNative(vs []*Value) bool {
	for _, v := range vs {
		if !v.hasState(Native) {
			return false
		}
	}
	return true
}
