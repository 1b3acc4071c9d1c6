package fmtstr

import (
	"testing"

	"github.com/gdbus-go/gdbus/variant"
)

func TestBuild_BasicString(t *testing.T) {
	v, err := Build("s", []any{"hello"})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Unref()
	if v.Type().String() != "s" {
		t.Errorf("Type() = %q, want %q", v.Type().String(), "s")
	}
}

func TestBuild_Tuple(t *testing.T) {
	v, err := Build("(si)", []any{"name", int32(42)})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Unref()
	if v.Type().String() != "(si)" {
		t.Errorf("Type() = %q, want %q", v.Type().String(), "(si)")
	}
	if v.NChildren() != 2 {
		t.Fatalf("NChildren() = %d, want 2", v.NChildren())
	}
}

func TestBuild_Array(t *testing.T) {
	v, err := Build("as", []any{[]string{"a", "b", "c"}})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Unref()
	if v.NChildren() != 3 {
		t.Errorf("NChildren() = %d, want 3", v.NChildren())
	}
}

func TestBuild_WrongArgType(t *testing.T) {
	if _, err := Build("s", []any{42}); err == nil {
		t.Error("expected error passing an int for a string format code")
	}
}

func TestBuild_TooFewArguments(t *testing.T) {
	if _, err := Build("(si)", []any{"only one"}); err == nil {
		t.Error("expected error when the tuple format consumes more args than given")
	}
}

func TestBuild_TooManyArguments(t *testing.T) {
	if _, err := Build("s", []any{"one", "two"}); err == nil {
		t.Error("expected error when extra arguments are left unconsumed")
	}
}

func TestBuild_RejectsBareInsertAtTopLevel(t *testing.T) {
	inner := variant.NewString("boxed")
	defer inner.Unref()
	if _, err := Build("@s", []any{inner}); err == nil {
		t.Error("expected error for a bare '@' sigil at the top level")
	}
}

func TestBuild_ArrayOfVariants(t *testing.T) {
	inner := variant.NewString("boxed")
	v, err := Build("av", []any{[]*variant.Value{inner}})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Unref()
	if v.NChildren() != 1 {
		t.Errorf("NChildren() = %d, want 1", v.NChildren())
	}
}
