package variant

import (
	"encoding/binary"
	"unicode/utf8"
)

// stdWire implements Wire directly over encoding/binary. It is the
// default codec behind every Value; see DESIGN.md for why this
// repository does not pull in a third-party marshalling library for
// it. The 'maybe' container is not part of the classic D-Bus wire
// protocol (it is a GVariant extension the bus daemon never sees on
// the wire); this codec gives it a minimal, self-consistent framing:
// Nothing encodes as zero bytes, Just(v) as v's own bytes, except that
// Just(()) (the one case whose payload is itself zero bytes) gets a
// single 0x00 marker byte so it is distinguishable from Nothing.
type stdWire struct{}

func (stdWire) NeededSize(t *TypeInfo, children []WireChild) int {
	switch t.Kind() {
	case KindVariant:
		child := children[0]
		sigLen := 1 + len(child.Type.String()) + 1
		offset := alignUp(sigLen, child.Type.alignment())
		return offset + len(child.Bytes)
	case KindMaybe:
		if len(children) == 0 {
			return 0
		}
		if len(children[0].Bytes) == 0 {
			return 1
		}
		return len(children[0].Bytes)
	case KindArray:
		base := 4
		firstPad := 0
		if len(children) > 0 {
			firstPad = alignUp(base, children[0].Type.alignment()) - base
		} else if t.elem != nil {
			firstPad = alignUp(base, t.elem.alignment()) - base
		}
		offset := base + firstPad
		for _, c := range children {
			offset = alignUp(offset, c.Type.alignment())
			offset += len(c.Bytes)
		}
		return offset
	case KindTuple:
		offset := 0
		for _, c := range children {
			offset = alignUp(offset, c.Type.alignment())
			offset += len(c.Bytes)
		}
		return alignUp(offset, 8)
	case KindDictEntry:
		offset := alignUp(0, children[0].Type.alignment())
		offset += len(children[0].Bytes)
		offset = alignUp(offset, children[1].Type.alignment())
		offset += len(children[1].Bytes)
		return alignUp(offset, 8)
	default:
		usagef(WrongShape, "NeededSize called on non-container type %q", t.String())
		return 0
	}
}

func (stdWire) Serialise(t *TypeInfo, dest []byte, children []WireChild, order binary.ByteOrder) {
	switch t.Kind() {
	case KindVariant:
		child := children[0]
		sig := child.Type.String()
		dest[0] = byte(len(sig))
		copy(dest[1:], sig)
		dest[1+len(sig)] = 0
		sigLen := 1 + len(sig) + 1
		offset := alignUp(sigLen, child.Type.alignment())
		copy(dest[offset:], child.Bytes)
	case KindMaybe:
		if len(children) == 0 {
			return // Nothing: zero bytes
		}
		if len(children[0].Bytes) == 0 {
			dest[0] = 0 // Just(()) marker
			return
		}
		copy(dest, children[0].Bytes)
	case KindArray:
		base := 4
		firstPad := 0
		if len(children) > 0 {
			firstPad = alignUp(base, children[0].Type.alignment()) - base
		} else if t.elem != nil {
			firstPad = alignUp(base, t.elem.alignment()) - base
		}
		start := base + firstPad
		offset := start
		for _, c := range children {
			offset = alignUp(offset, c.Type.alignment())
			copy(dest[offset:], c.Bytes)
			offset += len(c.Bytes)
		}
		order.PutUint32(dest[0:4], uint32(offset-start))
	case KindTuple:
		offset := 0
		for _, c := range children {
			offset = alignUp(offset, c.Type.alignment())
			copy(dest[offset:], c.Bytes)
			offset += len(c.Bytes)
		}
	case KindDictEntry:
		offset := alignUp(0, children[0].Type.alignment())
		copy(dest[offset:], children[0].Bytes)
		offset += len(children[0].Bytes)
		offset = alignUp(offset, children[1].Type.alignment())
		copy(dest[offset:], children[1].Bytes)
	default:
		usagef(WrongShape, "Serialise called on non-container type %q", t.String())
	}
}

// sizeOfEncoding returns how many leading bytes of data one instance
// of t occupies, without any externally supplied end boundary. Used
// both to locate children (GetChild) and to validate well-formedness
// (IsNormal). Never panics: malformed input simply yields ok=false so
// callers can fall back to the zeros policy.
func sizeOfEncoding(t *TypeInfo, data []byte, order binary.ByteOrder) (int, bool) {
	switch t.Kind() {
	case KindByte, KindBool, KindInt16, KindUint16, KindInt32, KindUint32,
		KindHandle, KindInt64, KindUint64, KindDouble:
		size := t.FixedSize()
		if len(data) < size {
			return 0, false
		}
		return size, true

	case KindString, KindObjectPath:
		if len(data) < 4 {
			return 0, false
		}
		n := int(order.Uint32(data[0:4]))
		total := 4 + n + 1
		if n < 0 || total > len(data) {
			return 0, false
		}
		return total, true

	case KindSignature:
		if len(data) < 1 {
			return 0, false
		}
		n := int(data[0])
		total := 1 + n + 1
		if total > len(data) {
			return 0, false
		}
		return total, true

	case KindVariant:
		sigLen, ok := sizeOfEncoding(typeSignature, data, order)
		if !ok {
			return 0, false
		}
		sigBytes := data[1 : sigLen-1]
		childType, err := ParseTypeString(string(sigBytes))
		if err != nil || !childType.IsDefinite() {
			return 0, false
		}
		offset := alignUp(sigLen, childType.alignment())
		if offset > len(data) {
			return 0, false
		}
		childSize, ok := sizeOfEncoding(childType, data[offset:], order)
		if !ok {
			return 0, false
		}
		return offset + childSize, true

	case KindMaybe:
		if len(data) == 0 {
			return 0, true
		}
		if isUnitTuple(t.elem) {
			if len(data) >= 1 {
				return 1, true
			}
			return 0, false
		}
		sz, ok := sizeOfEncoding(t.elem, data, order)
		if !ok {
			return 0, false
		}
		return sz, true

	case KindArray:
		if len(data) < 4 {
			return 0, false
		}
		n := int(order.Uint32(data[0:4]))
		base := 4
		firstPad := alignUp(base, t.elem.alignment()) - base
		start := base + firstPad
		total := start + n
		if n < 0 || total > len(data) {
			return 0, false
		}
		return total, true

	case KindTuple:
		offset := 0
		for _, it := range t.items {
			offset = alignUp(offset, it.alignment())
			if offset > len(data) {
				return 0, false
			}
			sz, ok := sizeOfEncoding(it, data[offset:], order)
			if !ok {
				return 0, false
			}
			offset += sz
		}
		offset = alignUp(offset, 8)
		if offset > len(data) {
			return 0, false
		}
		return offset, true

	case KindDictEntry:
		offset := alignUp(0, t.key.alignment())
		if offset > len(data) {
			return 0, false
		}
		ksz, ok := sizeOfEncoding(t.key, data[offset:], order)
		if !ok {
			return 0, false
		}
		offset += ksz
		offset = alignUp(offset, t.val.alignment())
		if offset > len(data) {
			return 0, false
		}
		vsz, ok := sizeOfEncoding(t.val, data[offset:], order)
		if !ok {
			return 0, false
		}
		offset += vsz
		offset = alignUp(offset, 8)
		if offset > len(data) {
			return 0, false
		}
		return offset, true

	default:
		return 0, false
	}
}

func isUnitTuple(t *TypeInfo) bool {
	return t != nil && t.Kind() == KindTuple && len(t.items) == 0
}

func (s stdWire) GetChild(t *TypeInfo, parent []byte, index int, order binary.ByteOrder) (*TypeInfo, []byte, bool) {
	switch t.Kind() {
	case KindVariant:
		if index != 0 {
			return nil, nil, false
		}
		sigLen, ok := sizeOfEncoding(typeSignature, parent, order)
		if !ok {
			return nil, nil, false
		}
		sigBytes := parent[1 : sigLen-1]
		childType, err := ParseTypeString(string(sigBytes))
		if err != nil || !childType.IsDefinite() {
			return nil, nil, false
		}
		offset := alignUp(sigLen, childType.alignment())
		if offset > len(parent) {
			return nil, nil, false
		}
		sz, ok := sizeOfEncoding(childType, parent[offset:], order)
		if !ok {
			return nil, nil, false
		}
		return childType, parent[offset : offset+sz], true

	case KindMaybe:
		if index != 0 || len(parent) == 0 {
			return nil, nil, false
		}
		if isUnitTuple(t.elem) {
			return t.elem, parent[:0], true
		}
		sz, ok := sizeOfEncoding(t.elem, parent, order)
		if !ok {
			return nil, nil, false
		}
		return t.elem, parent[:sz], true

	case KindArray:
		if len(parent) < 4 {
			return nil, nil, false
		}
		n := int(order.Uint32(parent[0:4]))
		base := 4
		firstPad := alignUp(base, t.elem.alignment()) - base
		start := base + firstPad
		end := start + n
		if n < 0 || end > len(parent) {
			return nil, nil, false
		}
		data := parent[start:end]
		offset := 0
		for i := 0; ; i++ {
			offset = alignUp(offset, t.elem.alignment())
			if offset > len(data) {
				return nil, nil, false
			}
			sz, ok := sizeOfEncoding(t.elem, data[offset:], order)
			if !ok {
				return nil, nil, false
			}
			if i == index {
				return t.elem, data[offset : offset+sz], true
			}
			offset += sz
		}

	case KindTuple:
		if index < 0 || index >= len(t.items) {
			return nil, nil, false
		}
		offset := 0
		for i, it := range t.items {
			offset = alignUp(offset, it.alignment())
			if offset > len(parent) {
				return nil, nil, false
			}
			sz, ok := sizeOfEncoding(it, parent[offset:], order)
			if !ok {
				return nil, nil, false
			}
			if i == index {
				return it, parent[offset : offset+sz], true
			}
			offset += sz
		}
		return nil, nil, false

	case KindDictEntry:
		offset := alignUp(0, t.key.alignment())
		if offset > len(parent) {
			return nil, nil, false
		}
		ksz, ok := sizeOfEncoding(t.key, parent[offset:], order)
		if !ok {
			return nil, nil, false
		}
		if index == 0 {
			return t.key, parent[offset : offset+ksz], true
		}
		offset += ksz
		offset = alignUp(offset, t.val.alignment())
		if offset > len(parent) {
			return nil, nil, false
		}
		vsz, ok := sizeOfEncoding(t.val, parent[offset:], order)
		if !ok {
			return nil, nil, false
		}
		if index == 1 {
			return t.val, parent[offset : offset+vsz], true
		}
		return nil, nil, false

	default:
		return nil, nil, false
	}
}

func (s stdWire) NChildren(t *TypeInfo, data []byte, order binary.ByteOrder) int {
	switch t.Kind() {
	case KindVariant:
		if _, ok := sizeOfEncoding(typeSignature, data, order); ok {
			return 1
		}
		return 0
	case KindMaybe:
		if len(data) == 0 {
			return 0
		}
		return 1
	case KindTuple:
		return len(t.items)
	case KindDictEntry:
		return 2
	case KindArray:
		n := 0
		for {
			if _, _, ok := s.GetChild(t, data, n, order); !ok {
				return n
			}
			n++
		}
	default:
		return 0
	}
}

func (s stdWire) Byteswap(t *TypeInfo, data []byte, order binary.ByteOrder) {
	switch t.Kind() {
	case KindByte:
		// single byte; nothing to swap
	case KindInt16, KindUint16:
		if len(data) >= 2 {
			data[0], data[1] = data[1], data[0]
		}
	case KindBool, KindInt32, KindUint32, KindHandle:
		if len(data) >= 4 {
			reverseBytes(data[0:4])
		}
	case KindInt64, KindUint64, KindDouble:
		if len(data) >= 8 {
			reverseBytes(data[0:8])
		}
	case KindString, KindObjectPath:
		if len(data) >= 4 {
			reverseBytes(data[0:4])
		}
	case KindSignature:
		// length is a single byte; nothing to swap
	case KindVariant:
		sigLen, ok := sizeOfEncoding(typeSignature, data, order)
		if !ok {
			return
		}
		sigBytes := data[1 : sigLen-1]
		childType, err := ParseTypeString(string(sigBytes))
		if err != nil {
			return
		}
		offset := alignUp(sigLen, childType.alignment())
		if offset > len(data) {
			return
		}
		s.Byteswap(childType, data[offset:], order)
	case KindMaybe:
		if len(data) == 0 || isUnitTuple(t.elem) {
			return
		}
		s.Byteswap(t.elem, data, order)
	case KindArray:
		if len(data) < 4 {
			return
		}
		n := int(order.Uint32(data[0:4]))
		base := 4
		firstPad := alignUp(base, t.elem.alignment()) - base
		start := base + firstPad
		end := start + n
		if n < 0 || end > len(data) {
			return
		}
		elems := data[start:end]
		offset := 0
		for offset < len(elems) {
			offset = alignUp(offset, t.elem.alignment())
			if offset >= len(elems) {
				break
			}
			sz, ok := sizeOfEncoding(t.elem, elems[offset:], order)
			if !ok {
				break
			}
			s.Byteswap(t.elem, elems[offset:offset+sz], order)
			offset += sz
		}
		reverseBytes(data[0:4])
	case KindTuple:
		offset := 0
		for _, it := range t.items {
			offset = alignUp(offset, it.alignment())
			if offset > len(data) {
				return
			}
			sz, ok := sizeOfEncoding(it, data[offset:], order)
			if !ok {
				return
			}
			s.Byteswap(it, data[offset:offset+sz], order)
			offset += sz
		}
	case KindDictEntry:
		offset := alignUp(0, t.key.alignment())
		if offset > len(data) {
			return
		}
		ksz, ok := sizeOfEncoding(t.key, data[offset:], order)
		if !ok {
			return
		}
		s.Byteswap(t.key, data[offset:offset+ksz], order)
		offset += ksz
		offset = alignUp(offset, t.val.alignment())
		if offset > len(data) {
			return
		}
		vsz, ok := sizeOfEncoding(t.val, data[offset:], order)
		if !ok {
			return
		}
		s.Byteswap(t.val, data[offset:offset+vsz], order)
	}
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

func (s stdWire) IsNormal(t *TypeInfo, data []byte, order binary.ByteOrder) bool {
	sz, ok := sizeOfEncoding(t, data, order)
	if !ok || sz != len(data) {
		return false
	}
	switch t.Kind() {
	case KindString:
		return validString(data, false)
	case KindObjectPath:
		return validString(data, false) && validObjectPath(string(data[4 : len(data)-1]))
	case KindSignature:
		return validSignatureBytes(data)
	case KindVariant:
		sigLen, _ := sizeOfEncoding(typeSignature, data, order)
		sigBytes := data[1 : sigLen-1]
		childType, err := ParseTypeString(string(sigBytes))
		if err != nil || !childType.IsDefinite() {
			return false
		}
		offset := alignUp(sigLen, childType.alignment())
		return s.IsNormal(childType, data[offset:], order)
	case KindMaybe:
		if len(data) == 0 {
			return true
		}
		if isUnitTuple(t.elem) {
			return len(data) == 1
		}
		return s.IsNormal(t.elem, data, order)
	case KindArray:
		n := s.NChildren(t, data, order)
		for i := 0; i < n; i++ {
			_, child, ok := s.GetChild(t, data, i, order)
			if !ok || !s.IsNormal(t.elem, child, order) {
				return false
			}
		}
		return true
	case KindTuple:
		for i, it := range t.items {
			_, child, ok := s.GetChild(t, data, i, order)
			if !ok || !s.IsNormal(it, child, order) {
				return false
			}
		}
		return true
	case KindDictEntry:
		_, k, ok := s.GetChild(t, data, 0, order)
		if !ok || !s.IsNormal(t.key, k, order) {
			return false
		}
		_, v, ok := s.GetChild(t, data, 1, order)
		if !ok || !s.IsNormal(t.val, v, order) {
			return false
		}
		return true
	default:
		return true // fixed scalars: any bit pattern is well-formed
	}
}

func validString(data []byte, isSignature bool) bool {
	if len(data) < 5 {
		return len(data) == 5 && data[4] == 0
	}
	n := binary.LittleEndian.Uint32(data[0:4]) // order-agnostic: length already validated by sizeOfEncoding caller
	_ = n
	if data[len(data)-1] != 0 {
		return false
	}
	body := data[4 : len(data)-1]
	return utf8.Valid(body)
}

func validSignatureBytes(data []byte) bool {
	if len(data) < 1 || data[len(data)-1] != 0 {
		return false
	}
	sig := string(data[1 : len(data)-1])
	return validSignatureString(sig)
}

// validSignatureString reports whether sig is a concatenation of zero
// or more complete definite type strings.
func validSignatureString(sig string) bool {
	pos := 0
	for pos < len(sig) {
		_, next, err := parseType(sig, pos)
		if err != nil {
			return false
		}
		pos = next
	}
	return true
}

// validObjectPath reports whether p satisfies the D-Bus object path
// grammar: begins with '/', '/'-separated non-empty elements of
// [A-Za-z0-9_], and does not end with '/' unless it is exactly "/".
func validObjectPath(p string) bool {
	if len(p) == 0 || p[0] != '/' {
		return false
	}
	if p == "/" {
		return true
	}
	if p[len(p)-1] == '/' {
		return false
	}
	for _, elem := range splitPathElements(p[1:]) {
		if elem == "" {
			return false
		}
		for _, c := range elem {
			if !isPathChar(c) {
				return false
			}
		}
	}
	return true
}

func isPathChar(c rune) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_'
}

func splitPathElements(s string) []string {
	var elems []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			elems = append(elems, s[start:i])
			start = i + 1
		}
	}
	elems = append(elems, s[start:])
	return elems
}
