package fmtstr

import (
	"reflect"

	"github.com/gdbus-go/gdbus/variant"
)

// Build constructs a Value from fmt, consuming args in the order the
// format string's sigils/type codes dictate. Starting a format with
// '@', '*', '?' or 'r' is rejected: the caller would not actually
// construct anything from a bare "insert the following Value" sigil
// at the top level without at least a type to validate against, so
// this mirrors the "forbidden at top level" edge case directly — call
// Build with @T only when T is itself a concrete container like
// "a@v" (insert-within-array is fine; only the bare top-level form is
// rejected).
func Build(fmtStr string, args []any) (*variant.Value, error) {
	tok, rest, err := parseToken(fmtStr)
	if err != nil {
		return nil, err
	}
	if rest != "" {
		return nil, usagef("trailing characters %q after format string", rest)
	}
	if tok.Insert || tok.Type.Kind() == variant.KindAny || tok.Type.Kind() == variant.KindAnyBasic || tok.Type.Kind() == variant.KindAnyTuple {
		return nil, usagef("format string cannot start with '@', '*', '?' or 'r'")
	}
	idx := 0
	v, err := buildToken(tok, args, &idx)
	if err != nil {
		return nil, err
	}
	if idx != len(args) {
		return nil, usagef("format string %q consumed %d of %d arguments", fmtStr, idx, len(args))
	}
	return v, nil
}

func nextArg(args []any, idx *int) (any, error) {
	if *idx >= len(args) {
		return nil, usagef("not enough arguments for format string")
	}
	a := args[*idx]
	*idx++
	return a, nil
}

func buildToken(tok *Token, args []any, idx *int) (*variant.Value, error) {
	if tok.Insert || tok.Type.Kind() == variant.KindAny || tok.Type.Kind() == variant.KindAnyBasic || tok.Type.Kind() == variant.KindAnyTuple {
		a, err := nextArg(args, idx)
		if err != nil {
			return nil, err
		}
		v, ok := a.(*variant.Value)
		if !ok {
			return nil, usagef("expected a *variant.Value argument for '@'/'*'/'?'/'r'")
		}
		return v, nil
	}
	if tok.StringArray {
		a, err := nextArg(args, idx)
		if err != nil {
			return nil, err
		}
		strs, ok := a.([]string)
		if !ok {
			return nil, usagef("expected []string argument for '^as'/'^a&s'")
		}
		b := variant.NewBuilder(tok.Type)
		for _, s := range strs {
			b.AddValue(variant.NewString(s))
		}
		return b.End(), nil
	}

	switch tok.Type.Kind() {
	case variant.KindMaybe:
		return buildMaybe(tok, args, idx)
	case variant.KindArray:
		return buildArray(tok, args, idx)
	case variant.KindTuple:
		return buildTuple(tok, args, idx)
	case variant.KindDictEntry:
		return buildDictEntry(tok, args, idx)
	case variant.KindVariant:
		a, err := nextArg(args, idx)
		if err != nil {
			return nil, err
		}
		v, ok := a.(*variant.Value)
		if !ok {
			return nil, usagef("expected a *variant.Value argument for 'v'")
		}
		return variant.NewVariant(v), nil
	default:
		return buildBasic(tok.Type, args, idx)
	}
}

func buildMaybe(tok *Token, args []any, idx *int) (*variant.Value, error) {
	b := variant.NewBuilder(tok.Type)
	if tok.Elem.Type.IsContainer() {
		a, err := nextArg(args, idx)
		if err != nil {
			return nil, err
		}
		present, ok := a.(bool)
		if !ok {
			return nil, usagef("expected a bool leading flag for a maybe-of-container argument")
		}
		if !present {
			return b.End(), nil
		}
		child, err := buildToken(tok.Elem, args, idx)
		if err != nil {
			return nil, err
		}
		b.AddValue(child)
		return b.End(), nil
	}

	a, err := nextArg(args, idx)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return b.End(), nil
	}
	rv := reflect.ValueOf(a)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return b.End(), nil
		}
		a = rv.Elem().Interface()
	}
	one := []any{a}
	i := 0
	child, err := buildToken(tok.Elem, one, &i)
	if err != nil {
		return nil, err
	}
	b.AddValue(child)
	return b.End(), nil
}

func buildArray(tok *Token, args []any, idx *int) (*variant.Value, error) {
	a, err := nextArg(args, idx)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(a)
	if rv.Kind() != reflect.Slice {
		return nil, usagef("expected a slice argument for array format %q", tok.Type.String())
	}
	b := variant.NewBuilder(tok.Type)
	for i := 0; i < rv.Len(); i++ {
		elemArgs := []any{rv.Index(i).Interface()}
		j := 0
		child, err := buildToken(tok.Elem, elemArgs, &j)
		if err != nil {
			return nil, err
		}
		b.AddValue(child)
	}
	return b.End(), nil
}

func buildTuple(tok *Token, args []any, idx *int) (*variant.Value, error) {
	b := variant.NewBuilder(tok.Type)
	for _, it := range tok.Tup {
		child, err := buildToken(it, args, idx)
		if err != nil {
			return nil, err
		}
		b.AddValue(child)
	}
	return b.End(), nil
}

func buildDictEntry(tok *Token, args []any, idx *int) (*variant.Value, error) {
	b := variant.NewBuilder(tok.Type)
	key, err := buildToken(tok.Key, args, idx)
	if err != nil {
		return nil, err
	}
	b.AddValue(key)
	val, err := buildToken(tok.Val, args, idx)
	if err != nil {
		return nil, err
	}
	b.AddValue(val)
	return b.End(), nil
}

func buildBasic(t *variant.TypeInfo, args []any, idx *int) (*variant.Value, error) {
	a, err := nextArg(args, idx)
	if err != nil {
		return nil, err
	}
	switch t.Kind() {
	case variant.KindByte:
		x, ok := a.(byte)
		if !ok {
			return nil, usagef("expected byte for 'y', got %T", a)
		}
		return variant.NewByte(x), nil
	case variant.KindBool:
		x, ok := a.(bool)
		if !ok {
			return nil, usagef("expected bool for 'b', got %T", a)
		}
		return variant.NewBool(x), nil
	case variant.KindInt16:
		x, ok := a.(int16)
		if !ok {
			return nil, usagef("expected int16 for 'n', got %T", a)
		}
		return variant.NewInt16(x), nil
	case variant.KindUint16:
		x, ok := a.(uint16)
		if !ok {
			return nil, usagef("expected uint16 for 'q', got %T", a)
		}
		return variant.NewUint16(x), nil
	case variant.KindInt32:
		x, ok := a.(int32)
		if !ok {
			return nil, usagef("expected int32 for 'i', got %T", a)
		}
		return variant.NewInt32(x), nil
	case variant.KindUint32:
		x, ok := a.(uint32)
		if !ok {
			return nil, usagef("expected uint32 for 'u', got %T", a)
		}
		return variant.NewUint32(x), nil
	case variant.KindHandle:
		x, ok := a.(int32)
		if !ok {
			return nil, usagef("expected int32 for 'h', got %T", a)
		}
		return variant.NewHandle(x), nil
	case variant.KindInt64:
		x, ok := a.(int64)
		if !ok {
			return nil, usagef("expected int64 for 'x', got %T", a)
		}
		return variant.NewInt64(x), nil
	case variant.KindUint64:
		x, ok := a.(uint64)
		if !ok {
			return nil, usagef("expected uint64 for 't', got %T", a)
		}
		return variant.NewUint64(x), nil
	case variant.KindDouble:
		x, ok := a.(float64)
		if !ok {
			return nil, usagef("expected float64 for 'd', got %T", a)
		}
		return variant.NewDouble(x), nil
	case variant.KindString:
		x, ok := a.(string)
		if !ok {
			return nil, usagef("expected string for 's', got %T", a)
		}
		return variant.NewString(x), nil
	case variant.KindObjectPath:
		x, ok := a.(string)
		if !ok {
			return nil, usagef("expected string for 'o', got %T", a)
		}
		return variant.NewObjectPath(x), nil
	case variant.KindSignature:
		x, ok := a.(string)
		if !ok {
			return nil, usagef("expected string for 'g', got %T", a)
		}
		return variant.NewSignature(x), nil
	default:
		return nil, usagef("unsupported basic type %q in format string", t.String())
	}
}
