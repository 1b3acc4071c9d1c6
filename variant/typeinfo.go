package variant

import "fmt"

// Kind identifies the broad category of a TypeInfo.
type Kind byte

const (
	KindInvalid Kind = iota
	KindByte
	KindBool
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindHandle
	KindInt64
	KindUint64
	KindDouble
	KindString
	KindObjectPath
	KindSignature
	KindVariant
	KindMaybe
	KindArray
	KindTuple
	KindDictEntry
	KindAny      // '*' — any type, construction-time wildcard
	KindAnyBasic // '?' — any basic type, construction-time wildcard
	KindAnyTuple // 'r' — any tuple, construction-time wildcard
)

// TypeInfo is a compact, immutable description of a D-Bus type. Basic
// type singletons are interned; container TypeInfos are built fresh by
// the parser but are themselves immutable and safe to share.
type TypeInfo struct {
	str   string
	kind  Kind
	elem  *TypeInfo   // array/maybe element
	items []*TypeInfo // tuple members
	key   *TypeInfo   // dict-entry key
	val   *TypeInfo   // dict-entry value
}

func (t *TypeInfo) String() string { return t.str }

// Kind returns the type's broad category.
func (t *TypeInfo) Kind() Kind { return t.kind }

// IsBasic reports whether the type may be used as a dict-entry key or
// as a string-representable scalar.
func (t *TypeInfo) IsBasic() bool {
	switch t.kind {
	case KindByte, KindBool, KindInt16, KindUint16, KindInt32, KindUint32,
		KindHandle, KindInt64, KindUint64, KindDouble, KindString,
		KindObjectPath, KindSignature:
		return true
	case KindAnyBasic:
		return true
	default:
		return false
	}
}

// IsContainer reports whether the type has children.
func (t *TypeInfo) IsContainer() bool {
	switch t.kind {
	case KindVariant, KindMaybe, KindArray, KindTuple, KindDictEntry:
		return true
	default:
		return false
	}
}

// IsDefinite reports whether the type string contains no wildcard
// ('*', '?', 'r') anywhere, directly or nested.
func (t *TypeInfo) IsDefinite() bool {
	switch t.kind {
	case KindAny, KindAnyBasic, KindAnyTuple:
		return false
	case KindMaybe, KindArray:
		return t.elem.IsDefinite()
	case KindTuple:
		for _, it := range t.items {
			if !it.IsDefinite() {
				return false
			}
		}
		return true
	case KindDictEntry:
		return t.key.IsDefinite() && t.val.IsDefinite()
	default:
		return true
	}
}

// IsFixedSize reports whether every instance of this type occupies the
// same number of bytes regardless of content.
func (t *TypeInfo) IsFixedSize() bool {
	switch t.kind {
	case KindByte, KindBool, KindInt16, KindUint16, KindInt32, KindUint32,
		KindHandle, KindInt64, KindUint64, KindDouble:
		return true
	case KindMaybe, KindArray, KindVariant, KindString, KindObjectPath, KindSignature:
		return false
	case KindTuple:
		if len(t.items) == 0 {
			return true // the unit tuple "()" is fixed size (zero bytes)
		}
		for _, it := range t.items {
			if !it.IsFixedSize() {
				return false
			}
		}
		return true
	case KindDictEntry:
		return t.key.IsFixedSize() && t.val.IsFixedSize()
	default:
		return false
	}
}

// FixedSize returns the fixed byte size of the type. Panics if the
// type is not fixed size — callers must check IsFixedSize first.
func (t *TypeInfo) FixedSize() int {
	switch t.kind {
	case KindByte:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindBool, KindInt32, KindUint32, KindHandle:
		// BOOLEAN is marshalled as a 4-byte value (0 or 1), matching
		// its 4-byte alignment, not as a single byte.
		return 4
	case KindInt64, KindUint64, KindDouble:
		return 8
	case KindTuple:
		size := 0
		for _, it := range t.items {
			size = alignUp(size, it.alignment())
			size += it.FixedSize()
		}
		return alignUp(size, t.alignment())
	case KindDictEntry:
		size := alignUp(0, t.key.alignment())
		size += t.key.FixedSize()
		size = alignUp(size, t.val.alignment())
		size += t.val.FixedSize()
		return alignUp(size, t.alignment())
	default:
		panic(&UsageError{Kind: WrongShape, Message: fmt.Sprintf("type %q is not fixed size", t.str)})
	}
}

// alignment returns the required byte alignment of the type.
func (t *TypeInfo) alignment() int {
	switch t.kind {
	case KindByte, KindSignature, KindVariant:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindBool, KindInt32, KindUint32, KindHandle, KindArray, KindString, KindObjectPath, KindMaybe:
		return 4
	case KindInt64, KindUint64, KindDouble, KindTuple, KindDictEntry:
		// D-Bus marshalling aligns STRUCT and DICT_ENTRY to 8 bytes
		// unconditionally, regardless of their members' own alignment.
		return 8
	default:
		return 1
	}
}

func alignUp(offset, align int) int {
	if align <= 1 {
		return offset
	}
	rem := offset % align
	if rem == 0 {
		return offset
	}
	return offset + (align - rem)
}

// NChildTypes returns how many child types this container type has:
// 1 for variant/maybe, N for tuple, 2 for dict-entry, 1 for array
// (the single element type, independent of how many elements an
// actual array value holds).
func (t *TypeInfo) NChildTypes() int {
	switch t.kind {
	case KindVariant:
		return 0 // the variant's child type is determined per-value, not by TypeInfo
	case KindMaybe, KindArray:
		return 1
	case KindTuple:
		return len(t.items)
	case KindDictEntry:
		return 2
	default:
		return 0
	}
}

// ChildType returns the i'th child type. For array/maybe, i must be 0.
// For dict-entry, 0 is the key type and 1 is the value type.
func (t *TypeInfo) ChildType(i int) *TypeInfo {
	switch t.kind {
	case KindMaybe, KindArray:
		if i != 0 {
			panic(&UsageError{Kind: WrongShape, Message: "array/maybe have exactly one child type"})
		}
		return t.elem
	case KindTuple:
		return t.items[i]
	case KindDictEntry:
		if i == 0 {
			return t.key
		}
		return t.val
	default:
		panic(&UsageError{Kind: WrongShape, Message: fmt.Sprintf("type %q has no child types", t.str)})
	}
}

// --- basic type singletons ---

var (
	typeByte       = &TypeInfo{str: "y", kind: KindByte}
	typeBool       = &TypeInfo{str: "b", kind: KindBool}
	typeInt16      = &TypeInfo{str: "n", kind: KindInt16}
	typeUint16     = &TypeInfo{str: "q", kind: KindUint16}
	typeInt32      = &TypeInfo{str: "i", kind: KindInt32}
	typeUint32     = &TypeInfo{str: "u", kind: KindUint32}
	typeHandle     = &TypeInfo{str: "h", kind: KindHandle}
	typeInt64      = &TypeInfo{str: "x", kind: KindInt64}
	typeUint64     = &TypeInfo{str: "t", kind: KindUint64}
	typeDouble     = &TypeInfo{str: "d", kind: KindDouble}
	typeString     = &TypeInfo{str: "s", kind: KindString}
	typeObjectPath = &TypeInfo{str: "o", kind: KindObjectPath}
	typeSignature  = &TypeInfo{str: "g", kind: KindSignature}
	typeVariant    = &TypeInfo{str: "v", kind: KindVariant}
	typeAny        = &TypeInfo{str: "*", kind: KindAny}
	typeAnyBasic   = &TypeInfo{str: "?", kind: KindAnyBasic}
	typeAnyTuple   = &TypeInfo{str: "r", kind: KindAnyTuple}
	typeUnitTuple  = &TypeInfo{str: "()", kind: KindTuple, items: nil}
)

// TypeByte, TypeBool, ... are the basic type singletons, exported for
// callers that build TypeInfo trees without parsing a string.
var (
	TypeByte       = typeByte
	TypeBool       = typeBool
	TypeInt16      = typeInt16
	TypeUint16     = typeUint16
	TypeInt32      = typeInt32
	TypeUint32     = typeUint32
	TypeHandle     = typeHandle
	TypeInt64      = typeInt64
	TypeUint64     = typeUint64
	TypeDouble     = typeDouble
	TypeString     = typeString
	TypeObjectPath = typeObjectPath
	TypeSignature  = typeSignature
	TypeVariant    = typeVariant
	TypeAny        = typeAny
	TypeAnyBasic   = typeAnyBasic
	TypeAnyTuple   = typeAnyTuple
)

// NewArrayType returns the array-of-elem type "a<elem>".
func NewArrayType(elem *TypeInfo) *TypeInfo {
	return &TypeInfo{str: "a" + elem.str, kind: KindArray, elem: elem}
}

// NewMaybeType returns the maybe-of-elem type "m<elem>".
func NewMaybeType(elem *TypeInfo) *TypeInfo {
	return &TypeInfo{str: "m" + elem.str, kind: KindMaybe, elem: elem}
}

// NewTupleType returns the tuple type "(<items>)".
func NewTupleType(items ...*TypeInfo) *TypeInfo {
	if len(items) == 0 {
		return typeUnitTuple
	}
	str := "("
	for _, it := range items {
		str += it.str
	}
	str += ")"
	return &TypeInfo{str: str, kind: KindTuple, items: items}
}

// NewDictEntryType returns the dict-entry type "{<key><value>}". Panics
// if key is not a basic type.
func NewDictEntryType(key, val *TypeInfo) *TypeInfo {
	if !key.IsBasic() {
		panic(&UsageError{Kind: TypeMismatch, Message: "dict-entry key must be a basic type"})
	}
	return &TypeInfo{str: "{" + key.str + val.str + "}", kind: KindDictEntry, key: key, val: val}
}

// ParseTypeString parses a complete type string (definite or with
// construction-time wildcards) and returns its TypeInfo. An error is
// returned if the string is not exactly one complete type.
func ParseTypeString(s string) (*TypeInfo, error) {
	t, n, err := parseType(s, 0)
	if err != nil {
		return nil, err
	}
	if n != len(s) {
		return nil, fmt.Errorf("variant: trailing characters after type %q in %q", t.str, s)
	}
	return t, nil
}

// parseType parses one complete type starting at pos and returns the
// TypeInfo and the position just past it.
func parseType(s string, pos int) (*TypeInfo, int, error) {
	if pos >= len(s) {
		return nil, pos, fmt.Errorf("variant: unexpected end of type string %q", s)
	}

	switch c := s[pos]; c {
	case 'y':
		return typeByte, pos + 1, nil
	case 'b':
		return typeBool, pos + 1, nil
	case 'n':
		return typeInt16, pos + 1, nil
	case 'q':
		return typeUint16, pos + 1, nil
	case 'i':
		return typeInt32, pos + 1, nil
	case 'u':
		return typeUint32, pos + 1, nil
	case 'h':
		return typeHandle, pos + 1, nil
	case 'x':
		return typeInt64, pos + 1, nil
	case 't':
		return typeUint64, pos + 1, nil
	case 'd':
		return typeDouble, pos + 1, nil
	case 's':
		return typeString, pos + 1, nil
	case 'o':
		return typeObjectPath, pos + 1, nil
	case 'g':
		return typeSignature, pos + 1, nil
	case 'v':
		return typeVariant, pos + 1, nil
	case '*':
		return typeAny, pos + 1, nil
	case '?':
		return typeAnyBasic, pos + 1, nil
	case 'r':
		return typeAnyTuple, pos + 1, nil
	case 'm':
		elem, next, err := parseType(s, pos+1)
		if err != nil {
			return nil, pos, err
		}
		return &TypeInfo{str: s[pos:next], kind: KindMaybe, elem: elem}, next, nil
	case 'a':
		elem, next, err := parseType(s, pos+1)
		if err != nil {
			return nil, pos, err
		}
		return &TypeInfo{str: s[pos:next], kind: KindArray, elem: elem}, next, nil
	case '(':
		p := pos + 1
		var items []*TypeInfo
		for {
			if p >= len(s) {
				return nil, pos, fmt.Errorf("variant: unterminated tuple in %q", s)
			}
			if s[p] == ')' {
				p++
				break
			}
			child, next, err := parseType(s, p)
			if err != nil {
				return nil, pos, err
			}
			items = append(items, child)
			p = next
		}
		if len(items) == 0 {
			return typeUnitTuple, p, nil
		}
		return &TypeInfo{str: s[pos:p], kind: KindTuple, items: items}, p, nil
	case '{':
		key, next, err := parseType(s, pos+1)
		if err != nil {
			return nil, pos, err
		}
		if !key.IsBasic() {
			return nil, pos, fmt.Errorf("variant: dict-entry key %q is not a basic type in %q", key.str, s)
		}
		val, next2, err := parseType(s, next)
		if err != nil {
			return nil, pos, err
		}
		if next2 >= len(s) || s[next2] != '}' {
			return nil, pos, fmt.Errorf("variant: unterminated dict-entry in %q", s)
		}
		next2++
		return &TypeInfo{str: s[pos:next2], kind: KindDictEntry, key: key, val: val}, next2, nil
	default:
		return nil, pos, fmt.Errorf("variant: unknown type code %q in %q", c, s)
	}
}
