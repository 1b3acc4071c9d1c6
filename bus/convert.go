package bus

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/godbus/dbus/v5"

	"github.com/gdbus-go/gdbus/variant"
)

// This file bridges the self-normalizing variant engine to
// github.com/godbus/dbus/v5, which is this module's lower-level
// libdbus transport (spec.md §1 "Non-goals": wire serialization and
// authentication are hard engineering, delegated to godbus). toDBus
// and fromDBus convert between *variant.Value and godbus's native Go
// values; InvokeMethod, EmitSignal and the registered-object handlers
// do not call them and hand their arguments to godbus unchanged.

// toDBus converts a *variant.Value into the native Go value godbus
// expects as a method-call argument or signal body element.
// Containers recurse; DICT_ENTRY arrays become map[string]dbus.Variant
// when the key type is string (the common case for a{sv} property
// dictionaries). Other arrays become a []any of converted elements; a
// dict-entry with a non-string key has no conversion and yields a
// NotSupported error.
func toDBus(v *variant.Value) (any, error) {
	t := v.Type()
	switch t.Kind() {
	case variant.KindByte:
		var b byte
		variantExtractBasic(v, &b)
		return b, nil
	case variant.KindBool:
		var b bool
		variantExtractBasic(v, &b)
		return b, nil
	case variant.KindInt16:
		var n int16
		variantExtractBasic(v, &n)
		return n, nil
	case variant.KindUint16:
		var n uint16
		variantExtractBasic(v, &n)
		return n, nil
	case variant.KindInt32:
		var n int32
		variantExtractBasic(v, &n)
		return n, nil
	case variant.KindUint32:
		var n uint32
		variantExtractBasic(v, &n)
		return n, nil
	case variant.KindHandle:
		var n int32
		variantExtractBasic(v, &n)
		return dbus.UnixFDIndex(n), nil
	case variant.KindInt64:
		var n int64
		variantExtractBasic(v, &n)
		return n, nil
	case variant.KindUint64:
		var n uint64
		variantExtractBasic(v, &n)
		return n, nil
	case variant.KindDouble:
		var f float64
		variantExtractBasic(v, &f)
		return f, nil
	case variant.KindString:
		var s string
		variantExtractBasic(v, &s)
		return s, nil
	case variant.KindObjectPath:
		var s string
		variantExtractBasic(v, &s)
		return dbus.ObjectPath(s), nil
	case variant.KindSignature:
		var s string
		variantExtractBasic(v, &s)
		return dbus.ParseSignature(s)
	case variant.KindVariant:
		inner, err := toDBus(v.ChildValue(0))
		if err != nil {
			return nil, err
		}
		return dbus.MakeVariant(inner), nil
	case variant.KindArray:
		return arrayToDBus(v)
	case variant.KindMaybe:
		if v.NChildren() == 0 {
			return nil, nil
		}
		return toDBus(v.ChildValue(0))
	case variant.KindTuple:
		n := v.NChildren()
		out := make([]any, n)
		for i := 0; i < n; i++ {
			item, err := toDBus(v.ChildValue(i))
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	default:
		return nil, localError(KindNotSupported, "cannot convert type %q to a godbus value", t.String())
	}
}

func arrayToDBus(v *variant.Value) (any, error) {
	n := v.NChildren()
	elemKind := v.Type().ChildType(0).Kind()

	if elemKind == variant.KindDictEntry {
		keyKind := v.Type().ChildType(0).ChildType(0).Kind()
		if keyKind == variant.KindString {
			out := make(map[string]dbus.Variant, n)
			for i := 0; i < n; i++ {
				entry := v.ChildValue(i)
				var key string
				variantExtractBasic(entry.ChildValue(0), &key)
				val, err := toDBus(entry.ChildValue(1))
				if err != nil {
					return nil, err
				}
				dv, ok := val.(dbus.Variant)
				if !ok {
					dv = dbus.MakeVariant(val)
				}
				out[key] = dv
			}
			return out, nil
		}
	}

	out := make([]any, n)
	for i := 0; i < n; i++ {
		item, err := toDBus(v.ChildValue(i))
		if err != nil {
			return nil, err
		}
		out[i] = item
	}
	return out, nil
}

// variantExtractBasic reads a basic leaf's Go value, applying the
// same wire-level framing rules as fmtstr.Extract (host-endian fixed
// fields; length-prefixed, NUL-terminated strings).
func variantExtractBasic(v *variant.Value, dst any) {
	data := v.GetData()
	switch d := dst.(type) {
	case *byte:
		*d = data[0]
	case *bool:
		*d = binary.NativeEndian.Uint32(data) != 0
	case *int16:
		*d = int16(binary.NativeEndian.Uint16(data))
	case *uint16:
		*d = binary.NativeEndian.Uint16(data)
	case *int32:
		*d = int32(binary.NativeEndian.Uint32(data))
	case *uint32:
		*d = binary.NativeEndian.Uint32(data)
	case *int64:
		*d = int64(binary.NativeEndian.Uint64(data))
	case *uint64:
		*d = binary.NativeEndian.Uint64(data)
	case *float64:
		*d = math.Float64frombits(binary.NativeEndian.Uint64(data))
	case *string:
		switch v.Type().Kind() {
		case variant.KindSignature:
			n := int(data[0])
			*d = string(data[1 : 1+n])
		default:
			n := binary.NativeEndian.Uint32(data[0:4])
			*d = string(data[4 : 4+n])
		}
	}
}

// fromDBus converts a native Go value godbus decoded from the wire
// (or that a caller is about to send) into a floating *variant.Value
// of the given target type. sig is consulted only for a []any, which
// is built as the tuple type sig names (an empty sig is an error);
// every other case takes its type from the Go value, and
// map[string]dbus.Variant always becomes a{sv}.
func fromDBus(x any, sig string) (*variant.Value, error) {
	switch val := x.(type) {
	case byte:
		return variant.NewByte(val), nil
	case bool:
		return variant.NewBool(val), nil
	case int16:
		return variant.NewInt16(val), nil
	case uint16:
		return variant.NewUint16(val), nil
	case int32:
		return variant.NewInt32(val), nil
	case uint32:
		return variant.NewUint32(val), nil
	case int64:
		return variant.NewInt64(val), nil
	case uint64:
		return variant.NewUint64(val), nil
	case float64:
		return variant.NewDouble(val), nil
	case string:
		return variant.NewString(val), nil
	case dbus.ObjectPath:
		return variant.NewObjectPath(string(val)), nil
	case dbus.Signature:
		return variant.NewSignature(val.String()), nil
	case dbus.UnixFDIndex:
		return variant.NewHandle(int32(val)), nil
	case dbus.Variant:
		inner, err := fromDBus(val.Value(), val.Signature().String())
		if err != nil {
			return nil, err
		}
		return variant.NewVariant(inner), nil
	case map[string]dbus.Variant:
		return dictToVariant(val)
	case []any:
		return tupleToVariant(val, sig)
	}
	return nil, localError(KindNotSupported, "cannot convert %T to a variant.Value", x)
}

func dictToVariant(m map[string]dbus.Variant) (*variant.Value, error) {
	t, err := variant.ParseTypeString("a{sv}")
	if err != nil {
		return nil, err
	}
	b := variant.NewBuilder(t)
	for k, v := range m {
		inner, err := fromDBus(v.Value(), v.Signature().String())
		if err != nil {
			return nil, err
		}
		entryT, err := variant.ParseTypeString("{sv}")
		if err != nil {
			return nil, err
		}
		eb := variant.NewBuilder(entryT)
		eb.AddValue(variant.NewString(k))
		eb.AddValue(variant.NewVariant(inner))
		b.AddValue(eb.End())
	}
	return b.End(), nil
}

func tupleToVariant(items []any, sig string) (*variant.Value, error) {
	if sig == "" {
		return nil, localError(KindInvalidSignature, "fromDBus: a tuple requires an explicit signature")
	}
	t, err := variant.ParseTypeString(sig)
	if err != nil {
		return nil, err
	}
	b := variant.NewBuilder(t)
	n := t.NChildTypes()
	if n != len(items) {
		return nil, fmt.Errorf("%w: signature %q expects %d members, got %d", ErrBadAddress, sig, n, len(items))
	}
	for i, item := range items {
		child, err := fromDBus(item, t.ChildType(i).String())
		if err != nil {
			return nil, err
		}
		b.AddValue(child)
	}
	return b.End(), nil
}
