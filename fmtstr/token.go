package fmtstr

import (
	"fmt"

	"github.com/gdbus-go/gdbus/variant"
)

// Token is one parsed unit of a format string: either a plain type,
// an "insert/extract verbatim" sigil, a wildcard sigil, a borrowed
// reference, a string-array shorthand, or a container built from
// nested tokens.
type Token struct {
	Type        *variant.TypeInfo
	Insert      bool // '@' — the argument/sink is a *variant.Value itself
	Borrow      bool // '&' — share bytes instead of copying
	StringArray bool // '^as' or '^a&s'

	Elem *Token   // array/maybe element
	Key  *Token   // dict-entry key
	Val  *Token   // dict-entry value
	Tup  []*Token // tuple members
}

// Scan verifies that a prefix of s is a well-formed format string and
// returns what follows it.
func Scan(s string) (rest string, err error) {
	_, rest, err = parseToken(s)
	return rest, err
}

// ScanType strips sigils and returns the TypeInfo a format string
// describes.
func ScanType(s string) (*variant.TypeInfo, error) {
	t, rest, err := parseToken(s)
	if err != nil {
		return nil, err
	}
	if rest != "" {
		return nil, usagef("trailing characters %q after format string", rest)
	}
	return t.Type, nil
}

func usagef(format string, args ...any) error {
	return &variant.UsageError{Kind: variant.InvalidFormatString, Message: fmt.Sprintf(format, args...)}
}

func parseToken(s string) (*Token, string, error) {
	if len(s) == 0 {
		return nil, s, usagef("empty format string")
	}

	if len(s) >= 3 && s[0] == '^' && s[1] == 'a' {
		if s[2] == 's' {
			return &Token{Type: variant.NewArrayType(variant.TypeString), StringArray: true}, s[3:], nil
		}
		if len(s) >= 4 && s[2] == '&' && s[3] == 's' {
			return &Token{Type: variant.NewArrayType(variant.TypeString), StringArray: true, Borrow: true}, s[4:], nil
		}
	}

	switch c := s[0]; c {
	case '@':
		t, rest, err := parseTypeOnly(s[1:])
		if err != nil {
			return nil, s, err
		}
		return &Token{Type: t, Insert: true}, rest, nil
	case '*':
		return &Token{Type: variant.TypeAny}, s[1:], nil
	case '?':
		return &Token{Type: variant.TypeAnyBasic}, s[1:], nil
	case 'r':
		return &Token{Type: variant.TypeAnyTuple}, s[1:], nil
	case '&':
		tok, rest, err := parseToken(s[1:])
		if err != nil {
			return nil, s, err
		}
		if !isBorrowable(tok.Type) {
			return nil, s, usagef("type %q cannot be borrowed with '&'", tok.Type.String())
		}
		tok.Borrow = true
		return tok, rest, nil
	case 'm':
		elem, rest, err := parseToken(s[1:])
		if err != nil {
			return nil, s, err
		}
		return &Token{Type: variant.NewMaybeType(elem.Type), Elem: elem}, rest, nil
	case 'a':
		elem, rest, err := parseToken(s[1:])
		if err != nil {
			return nil, s, err
		}
		return &Token{Type: variant.NewArrayType(elem.Type), Elem: elem}, rest, nil
	case '(':
		rest := s[1:]
		var items []*Token
		for {
			if rest == "" {
				return nil, s, usagef("unterminated tuple in %q", s)
			}
			if rest[0] == ')' {
				rest = rest[1:]
				break
			}
			tok, next, err := parseToken(rest)
			if err != nil {
				return nil, s, err
			}
			items = append(items, tok)
			rest = next
		}
		types := make([]*variant.TypeInfo, len(items))
		for i, it := range items {
			types[i] = it.Type
		}
		return &Token{Type: variant.NewTupleType(types...), Tup: items}, rest, nil
	case '{':
		key, rest, err := parseToken(s[1:])
		if err != nil {
			return nil, s, err
		}
		val, rest2, err := parseToken(rest)
		if err != nil {
			return nil, s, err
		}
		if rest2 == "" || rest2[0] != '}' {
			return nil, s, usagef("unterminated dict-entry in %q", s)
		}
		return &Token{Type: variant.NewDictEntryType(key.Type, val.Type), Key: key, Val: val}, rest2[1:], nil
	default:
		t, rest, err := parseTypeOnly(s)
		if err != nil {
			return nil, s, err
		}
		return &Token{Type: t}, rest, nil
	}
}

func isBorrowable(t *variant.TypeInfo) bool {
	switch t.Kind() {
	case variant.KindString, variant.KindObjectPath, variant.KindSignature:
		return true
	case variant.KindArray:
		return t.ChildType(0).IsFixedSize()
	default:
		return t.IsFixedSize()
	}
}

// parseTypeOnly consumes exactly one plain (non-sigil) type code from
// s using the variant package's own grammar.
func parseTypeOnly(s string) (*variant.TypeInfo, string, error) {
	if s == "" {
		return nil, s, usagef("expected a type, got end of string")
	}
	// Find the shortest valid prefix by delegating to ParseTypeString
	// over successively longer prefixes is wasteful; instead walk
	// char-by-char using the same bracket-matching the variant parser
	// uses, then hand the exact slice to ParseTypeString.
	end, err := typeEnd(s, 0)
	if err != nil {
		return nil, s, err
	}
	t, err := variant.ParseTypeString(s[:end])
	if err != nil {
		return nil, s, err
	}
	return t, s[end:], nil
}

// typeEnd returns the index just past one complete type string
// starting at pos.
func typeEnd(s string, pos int) (int, error) {
	if pos >= len(s) {
		return pos, usagef("unexpected end of type string %q", s)
	}
	switch c := s[pos]; c {
	case 'y', 'b', 'n', 'q', 'i', 'u', 'h', 'x', 't', 'd', 's', 'o', 'g', 'v', '*', '?', 'r':
		return pos + 1, nil
	case 'm', 'a':
		return typeEnd(s, pos+1)
	case '(':
		p := pos + 1
		for {
			if p >= len(s) {
				return p, usagef("unterminated tuple in %q", s)
			}
			if s[p] == ')' {
				return p + 1, nil
			}
			next, err := typeEnd(s, p)
			if err != nil {
				return p, err
			}
			p = next
		}
	case '{':
		keyEnd, err := typeEnd(s, pos+1)
		if err != nil {
			return pos, err
		}
		valEnd, err := typeEnd(s, keyEnd)
		if err != nil {
			return pos, err
		}
		if valEnd >= len(s) || s[valEnd] != '}' {
			return pos, usagef("unterminated dict-entry in %q", s)
		}
		return valEnd + 1, nil
	default:
		return pos, usagef("unknown type code %q in %q", c, s)
	}
}
