package fmtstr

import (
	"encoding/binary"
	"math"
	"reflect"

	"github.com/gdbus-go/gdbus/variant"
)

// Extract destructures v according to fmtStr into sinks, in the same
// order Build would have consumed arguments to construct it. Each sink
// must be a pointer to the Go type the corresponding format element
// produces; '@'/'*'/'?'/'r' sinks must be a *(*variant.Value).
func Extract(v *variant.Value, fmtStr string, sinks []any) error {
	tok, rest, err := parseToken(fmtStr)
	if err != nil {
		return err
	}
	if rest != "" {
		return usagef("trailing characters %q after format string", rest)
	}
	idx := 0
	if err := extractToken(tok, v, sinks, &idx); err != nil {
		return err
	}
	if idx != len(sinks) {
		return usagef("format string %q produced %d of %d sink values", fmtStr, idx, len(sinks))
	}
	return nil
}

func nextSink(sinks []any, idx *int) (any, error) {
	if *idx >= len(sinks) {
		return nil, usagef("not enough sink arguments for format string")
	}
	s := sinks[*idx]
	*idx++
	return s, nil
}

func extractToken(tok *Token, v *variant.Value, sinks []any, idx *int) error {
	if tok.Insert || tok.Type.Kind() == variant.KindAny || tok.Type.Kind() == variant.KindAnyBasic || tok.Type.Kind() == variant.KindAnyTuple {
		sink, err := nextSink(sinks, idx)
		if err != nil {
			return err
		}
		dst, ok := sink.(**variant.Value)
		if !ok {
			return usagef("expected **variant.Value sink for '@'/'*'/'?'/'r'")
		}
		*dst = v.Ref()
		return nil
	}
	if tok.StringArray {
		sink, err := nextSink(sinks, idx)
		if err != nil {
			return err
		}
		dst, ok := sink.(*[]string)
		if !ok {
			return usagef("expected *[]string sink for '^as'/'^a&s'")
		}
		n := v.NChildren()
		out := make([]string, n)
		for i := 0; i < n; i++ {
			c := v.ChildValue(i)
			s, err := getString(c)
			if err != nil {
				return err
			}
			out[i] = s
		}
		*dst = out
		return nil
	}

	switch tok.Type.Kind() {
	case variant.KindMaybe:
		return extractMaybe(tok, v, sinks, idx)
	case variant.KindArray:
		return extractArray(tok, v, sinks, idx)
	case variant.KindTuple:
		return extractTuple(tok, v, sinks, idx)
	case variant.KindDictEntry:
		return extractDictEntry(tok, v, sinks, idx)
	case variant.KindVariant:
		sink, err := nextSink(sinks, idx)
		if err != nil {
			return err
		}
		dst, ok := sink.(**variant.Value)
		if !ok {
			return usagef("expected **variant.Value sink for 'v'")
		}
		*dst = v.ChildValue(0)
		return nil
	default:
		return extractBasic(v, sinks, idx)
	}
}

func extractMaybe(tok *Token, v *variant.Value, sinks []any, idx *int) error {
	present := v.NChildren() == 1
	if tok.Elem.Type.IsContainer() {
		sink, err := nextSink(sinks, idx)
		if err != nil {
			return err
		}
		dst, ok := sink.(*bool)
		if !ok {
			return usagef("expected *bool sink for a maybe-of-container format")
		}
		*dst = present
		if !present {
			return nil
		}
		return extractToken(tok.Elem, v.ChildValue(0), sinks, idx)
	}

	sink, err := nextSink(sinks, idx)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(sink)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Ptr {
		return usagef("expected a pointer-to-pointer sink for a maybe-of-basic format")
	}
	if !present {
		rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
		return nil
	}
	child := v.ChildValue(0)
	elemPtr := reflect.New(rv.Elem().Type().Elem())
	one := []any{elemPtr.Interface()}
	i := 0
	if err := extractToken(tok.Elem, child, one, &i); err != nil {
		return err
	}
	rv.Elem().Set(elemPtr)
	return nil
}

func extractArray(tok *Token, v *variant.Value, sinks []any, idx *int) error {
	sink, err := nextSink(sinks, idx)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(sink)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return usagef("expected a pointer-to-slice sink for array format %q", tok.Type.String())
	}
	n := v.NChildren()
	elemType := rv.Elem().Type().Elem()
	out := reflect.MakeSlice(rv.Elem().Type(), n, n)
	for i := 0; i < n; i++ {
		c := v.ChildValue(i)
		elemPtr := reflect.New(elemType)
		one := []any{elemPtr.Interface()}
		j := 0
		if err := extractToken(tok.Elem, c, one, &j); err != nil {
			return err
		}
		out.Index(i).Set(elemPtr.Elem())
	}
	rv.Elem().Set(out)
	return nil
}

func extractTuple(tok *Token, v *variant.Value, sinks []any, idx *int) error {
	for i, it := range tok.Tup {
		if err := extractToken(it, v.ChildValue(i), sinks, idx); err != nil {
			return err
		}
	}
	return nil
}

func extractDictEntry(tok *Token, v *variant.Value, sinks []any, idx *int) error {
	if err := extractToken(tok.Key, v.ChildValue(0), sinks, idx); err != nil {
		return err
	}
	return extractToken(tok.Val, v.ChildValue(1), sinks, idx)
}

func getString(v *variant.Value) (string, error) {
	data := v.GetData()
	if len(data) < 5 {
		return "", usagef("malformed string encoding")
	}
	n := binary.NativeEndian.Uint32(data[0:4])
	if int(n)+5 != len(data) {
		return "", usagef("malformed string encoding")
	}
	return string(data[4 : 4+n]), nil
}

func extractBasic(v *variant.Value, sinks []any, idx *int) error {
	sink, err := nextSink(sinks, idx)
	if err != nil {
		return err
	}
	data := v.GetData()
	switch v.Type().Kind() {
	case variant.KindByte:
		dst, ok := sink.(*byte)
		if !ok {
			return usagef("expected *byte sink for 'y'")
		}
		*dst = data[0]
	case variant.KindBool:
		dst, ok := sink.(*bool)
		if !ok {
			return usagef("expected *bool sink for 'b'")
		}
		*dst = binary.NativeEndian.Uint32(data) != 0
	case variant.KindInt16:
		dst, ok := sink.(*int16)
		if !ok {
			return usagef("expected *int16 sink for 'n'")
		}
		*dst = int16(binary.NativeEndian.Uint16(data))
	case variant.KindUint16:
		dst, ok := sink.(*uint16)
		if !ok {
			return usagef("expected *uint16 sink for 'q'")
		}
		*dst = binary.NativeEndian.Uint16(data)
	case variant.KindInt32:
		dst, ok := sink.(*int32)
		if !ok {
			return usagef("expected *int32 sink for 'i'")
		}
		*dst = int32(binary.NativeEndian.Uint32(data))
	case variant.KindUint32:
		dst, ok := sink.(*uint32)
		if !ok {
			return usagef("expected *uint32 sink for 'u'")
		}
		*dst = binary.NativeEndian.Uint32(data)
	case variant.KindHandle:
		dst, ok := sink.(*int32)
		if !ok {
			return usagef("expected *int32 sink for 'h'")
		}
		*dst = int32(binary.NativeEndian.Uint32(data))
	case variant.KindInt64:
		dst, ok := sink.(*int64)
		if !ok {
			return usagef("expected *int64 sink for 'x'")
		}
		*dst = int64(binary.NativeEndian.Uint64(data))
	case variant.KindUint64:
		dst, ok := sink.(*uint64)
		if !ok {
			return usagef("expected *uint64 sink for 't'")
		}
		*dst = binary.NativeEndian.Uint64(data)
	case variant.KindDouble:
		dst, ok := sink.(*float64)
		if !ok {
			return usagef("expected *float64 sink for 'd'")
		}
		*dst = math.Float64frombits(binary.NativeEndian.Uint64(data))
	case variant.KindString, variant.KindObjectPath:
		dst, ok := sink.(*string)
		if !ok {
			return usagef("expected *string sink for 's'/'o'")
		}
		s, err := getString(v)
		if err != nil {
			return err
		}
		*dst = s
	case variant.KindSignature:
		dst, ok := sink.(*string)
		if !ok {
			return usagef("expected *string sink for 'g'")
		}
		if len(data) < 2 {
			return usagef("malformed signature encoding")
		}
		n := int(data[0])
		if n+2 != len(data) {
			return usagef("malformed signature encoding")
		}
		*dst = string(data[1 : 1+n])
	default:
		return usagef("unsupported basic type %q in format string", v.Type().String())
	}
	return nil
}
