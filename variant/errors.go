package variant

import "fmt"

// UsageKind identifies the specific contract violation behind a
// UsageError. These represent programming errors, never data errors —
// malformed or untrusted bytes never produce a UsageError (see the
// zeros policy in zeros.go).
type UsageKind int

const (
	// TypeMismatch: a typed accessor was called on a Value of the
	// wrong type, or a builder was given a child that does not match
	// its expected element type.
	TypeMismatch UsageKind = iota
	// TooFewChildren: a builder was closed before reaching its type's
	// minimum child count (e.g. a dict-entry with fewer than 2 items).
	TooFewChildren
	// TooManyChildren: a builder received more children than its type
	// allows (e.g. a third item added to a dict-entry builder).
	TooManyChildren
	// EmptyInfer: a builder tried to infer its element type from the
	// first added child, but close()/end() was called with zero
	// children added and no explicit expected type was given.
	EmptyInfer
	// IteratorExhausted: Next was called after the iterator already
	// produced every child.
	IteratorExhausted
	// IteratorMissequenced: Cancel was called a second time on the
	// same iterator.
	IteratorMissequenced
	// WrongShape: an operation that requires a specific Value shape
	// (Tree, Serialised, or a specific container kind) was called on a
	// Value in the wrong shape.
	WrongShape
	// IndexOutOfRange: ChildValue was called with an out-of-range
	// index on a TRUSTED value, where the zeros policy does not apply
	// (the caller is trusted to know the true child count).
	IndexOutOfRange
	// InvalidFormatString: a format string was malformed, or a build
	// format string started with a sigil that cannot construct
	// anything ('@', '*', '?', 'r').
	InvalidFormatString
)

func (k UsageKind) String() string {
	switch k {
	case TypeMismatch:
		return "type mismatch"
	case TooFewChildren:
		return "too few children"
	case TooManyChildren:
		return "too many children"
	case EmptyInfer:
		return "cannot infer type with zero items"
	case IteratorExhausted:
		return "iterator exhausted"
	case IteratorMissequenced:
		return "iterator used out of sequence"
	case WrongShape:
		return "wrong shape"
	case IndexOutOfRange:
		return "index out of range"
	case InvalidFormatString:
		return "invalid format string"
	default:
		return "usage error"
	}
}

// UsageError is raised (via panic) for programming-error contract
// violations: a typed accessor called on the wrong type, an iterator
// stepped past its end, a builder closed with too few or too many
// children, or an attempt to infer a type from zero items. These are
// never returned as ordinary errors because they indicate a bug in the
// caller, not a runtime condition to recover from — matching spec's
// "must trigger an abort (panic-equivalent), not a returned error".
type UsageError struct {
	Kind    UsageKind
	Message string
}

func (e *UsageError) Error() string {
	if e.Message == "" {
		return "variant: " + e.Kind.String()
	}
	return fmt.Sprintf("variant: %s: %s", e.Kind, e.Message)
}

func usagef(kind UsageKind, format string, args ...any) {
	panic(&UsageError{Kind: kind, Message: fmt.Sprintf(format, args...)})
}
