package variant

import "testing"

func TestNewByte_RoundTrip(t *testing.T) {
	v := NewByte(0x42)
	defer v.Unref()

	if v.Type().String() != "y" {
		t.Errorf("Type() = %q, want %q", v.Type().String(), "y")
	}
	if !v.IsFloating() {
		t.Error("freshly constructed value should be floating")
	}
	data := v.GetData()
	if len(data) != 1 || data[0] != 0x42 {
		t.Errorf("GetData() = %v, want [0x42]", data)
	}
	if !v.IsTrusted() {
		t.Error("NewByte should produce a trusted value")
	}
}

func TestNewString_RoundTrip(t *testing.T) {
	v := NewString("hello")
	defer v.Unref()

	data := v.GetData()
	length := hostOrder.Uint32(data[0:4])
	if int(length) != len("hello") {
		t.Errorf("encoded length = %d, want %d", length, len("hello"))
	}
	if string(data[4:4+length]) != "hello" {
		t.Errorf("encoded string = %q, want %q", data[4:4+length], "hello")
	}
	if data[len(data)-1] != 0 {
		t.Error("expected trailing NUL terminator")
	}
}

func TestValue_RefUnref(t *testing.T) {
	v := NewUint32(7)
	if !v.IsFloating() {
		t.Fatal("expected floating value")
	}
	v.Ref()
	if v.IsFloating() {
		t.Error("Ref should sink the floating reference")
	}
	v.Ref()
	// Two extra refs on top of the initial one; three Unrefs needed to
	// free it. This only checks it doesn't panic on the non-final
	// unrefs.
	v.Unref()
	v.Unref()
	v.Unref()
}

func TestNewVariant_InheritsTrust(t *testing.T) {
	inner := NewString("payload")
	v := NewVariant(inner)
	defer v.Unref()

	if v.Type().Kind() != KindVariant {
		t.Errorf("Kind() = %v, want KindVariant", v.Type().Kind())
	}
	if v.NChildren() != 1 {
		t.Fatalf("NChildren() = %d, want 1", v.NChildren())
	}
	if !v.IsTrusted() {
		t.Error("variant boxing a trusted child should itself be trusted")
	}
	child := v.ChildValue(0)
	defer child.Unref()
	if child.GetData() == nil {
		t.Error("expected child to carry data")
	}
}

func TestBuilder_Array(t *testing.T) {
	b := NewBuilder(NewArrayType(TypeUint32))
	b.AddValue(NewUint32(1))
	b.AddValue(NewUint32(2))
	b.AddValue(NewUint32(3))
	arr := b.End()
	defer arr.Unref()

	if arr.Type().String() != "au" {
		t.Errorf("Type() = %q, want %q", arr.Type().String(), "au")
	}
	if arr.NChildren() != 3 {
		t.Fatalf("NChildren() = %d, want 3", arr.NChildren())
	}
	for i := 0; i < 3; i++ {
		c := arr.ChildValue(i)
		got := hostOrder.Uint32(c.GetData())
		if got != uint32(i+1) {
			t.Errorf("child %d = %d, want %d", i, got, i+1)
		}
		c.Unref()
	}
}

func TestBuilder_TypeMismatchRejected(t *testing.T) {
	b := NewBuilder(NewArrayType(TypeUint32))
	b.AddValue(NewUint32(1))
	if err := b.CheckAdd(NewString("oops")); err == nil {
		t.Error("expected CheckAdd to reject a mismatched element type")
	}
}

func TestBuilder_Tuple(t *testing.T) {
	tupleType := NewTupleType(TypeString, TypeInt32)
	b := NewBuilder(tupleType)
	b.AddValue(NewString("name"))
	b.AddValue(NewInt32(-5))
	tup := b.End()
	defer tup.Unref()

	if tup.Type().String() != "(si)" {
		t.Errorf("Type() = %q, want %q", tup.Type().String(), "(si)")
	}
	if tup.NChildren() != 2 {
		t.Fatalf("NChildren() = %d, want 2", tup.NChildren())
	}
}

func TestDeepCopy_SerialisedIndependent(t *testing.T) {
	original := NewString("copy me")
	cp := original.DeepCopy()
	defer original.Unref()
	defer cp.Unref()

	if &cp.bytes[0] == &original.bytes[0] {
		t.Error("DeepCopy of a Serialised value must not share its backing array")
	}
	if string(cp.GetData()) != string(original.GetData()) {
		t.Error("DeepCopy must preserve the encoded bytes")
	}
	if !cp.hasState(Independent) {
		t.Error("a DeepCopy's bytes are always independent")
	}
}

func TestDeepCopy_TreeRecurses(t *testing.T) {
	b := NewBuilder(NewArrayType(TypeUint32))
	b.AddValue(NewUint32(9))
	arr := b.End()
	defer arr.Unref()

	cp := arr.DeepCopy()
	defer cp.Unref()

	if cp.NChildren() != arr.NChildren() {
		t.Fatalf("NChildren() = %d, want %d", cp.NChildren(), arr.NChildren())
	}
	c1 := arr.ChildValue(0)
	c2 := cp.ChildValue(0)
	defer c1.Unref()
	defer c2.Unref()
	if hostOrder.Uint32(c1.GetData()) != hostOrder.Uint32(c2.GetData()) {
		t.Error("deep-copied child should preserve its value")
	}
}

func TestLoad_UntrustedOutOfRangeChildReturnsZero(t *testing.T) {
	// An empty array loaded as untrusted: asking for a child index is a
	// malformed read against untrusted bytes, which must return the
	// shared zeros value rather than panic (spec's zeros-policy for
	// untrusted Serialised parents).
	v := Load(NewArrayType(TypeUint32), []byte{0, 0, 0, 0}, 0)
	defer v.Unref()
	if v.IsTrusted() {
		t.Fatal("value loaded without FlagTrusted must not be trusted")
	}
	child := v.ChildValue(0)
	defer child.Unref()
	if child.Type().String() != "u" {
		t.Errorf("zero child type = %q, want %q", child.Type().String(), "u")
	}
}

func TestLoad_TrustedOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected ChildValue on a trusted out-of-range index to panic")
		}
	}()
	b := NewBuilder(NewArrayType(TypeUint32))
	arr := b.End()
	defer arr.Unref()
	arr.ChildValue(0)
}

func TestIterator_ProducesAllChildren(t *testing.T) {
	b := NewBuilder(NewArrayType(TypeByte))
	b.AddValue(NewByte(1))
	b.AddValue(NewByte(2))
	arr := b.End()
	defer arr.Unref()

	it, n := InitIterator(arr)
	if n != 2 {
		t.Fatalf("InitIterator n = %d, want 2", n)
	}
	var got []byte
	for i := 0; i < n; i++ {
		c := it.NextValue()
		got = append(got, c.GetData()[0])
		c.Unref()
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("got = %v, want [1 2]", got)
	}
}
