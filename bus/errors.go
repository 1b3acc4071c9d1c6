package bus

import "fmt"

// Kind identifies one of the D-Bus error taxonomy's named buckets
// (spec.md §7). Kind never replaces the raw D-Bus error name — both
// are always available on *Error — it exists so callers can branch on
// taxonomy without string-comparing DBusName.
type Kind int

const (
	// KindUnknown is a remote error whose DBusName didn't match any
	// bucket below. Its raw name and message are still preserved
	// (spec.md §7 "Remote passthrough").
	KindUnknown Kind = iota

	// Transport / liveness
	KindNoServer
	KindBadAddress
	KindDisconnected
	KindAddressInUse
	KindNoNetwork
	KindAuthFailed
	KindTimeout
	KindCancelled

	// Bus protocol
	KindServiceUnknown
	KindNameHasNoOwner
	KindNoReply
	KindUnknownMethod
	KindInvalidArgs
	KindInvalidSignature
	KindMatchRuleNotFound
	KindMatchRuleInvalid
	KindAccessDenied
	KindLimitsExceeded
	KindNoMemory
	KindObjectPathInUse
	KindUnixProcessIdUnknown
	KindSELinuxSecurityContextUnknown
	KindAdtAuditDataUnknown

	// Activation
	KindSpawnExecFailed
	KindSpawnForkFailed
	KindSpawnChildExited
	KindSpawnChildSignaled
	KindSpawnFailed
	KindSpawnSetupFailed
	KindSpawnConfigInvalid
	KindSpawnServiceInvalid
	KindSpawnServiceNotFound
	KindSpawnPermissionsInvalid
	KindSpawnFileInvalid
	KindSpawnNoMemory

	// Local
	KindFileNotFound
	KindFileExists
	KindInvalidFileContent
	KindConversionFailed
	KindNotSupported
	KindFailed
)

// busNameToKind maps the well-known org.freedesktop.DBus.Error.* names
// (and this module's own local error names) to a Kind. Anything not
// present here becomes KindUnknown and is surfaced as RemoteError with
// its DBusName preserved verbatim (spec.md §7).
var busNameToKind = map[string]Kind{
	"org.freedesktop.DBus.Error.NoServer":                      KindNoServer,
	"org.freedesktop.DBus.Error.BadAddress":                    KindBadAddress,
	"org.freedesktop.DBus.Error.Disconnected":                  KindDisconnected,
	"org.freedesktop.DBus.Error.AddressInUse":                  KindAddressInUse,
	"org.freedesktop.DBus.Error.NoNetwork":                      KindNoNetwork,
	"org.freedesktop.DBus.Error.AuthFailed":                     KindAuthFailed,
	"org.freedesktop.DBus.Error.Timeout":                        KindTimeout,
	"org.freedesktop.DBus.Error.TimedOut":                       KindTimeout,
	"org.freedesktop.DBus.Error.NoReply":                        KindNoReply,
	"org.freedesktop.DBus.Error.ServiceUnknown":                 KindServiceUnknown,
	"org.freedesktop.DBus.Error.NameHasNoOwner":                 KindNameHasNoOwner,
	"org.freedesktop.DBus.Error.UnknownMethod":                  KindUnknownMethod,
	"org.freedesktop.DBus.Error.InvalidArgs":                    KindInvalidArgs,
	"org.freedesktop.DBus.Error.InvalidSignature":                KindInvalidSignature,
	"org.freedesktop.DBus.Error.MatchRuleNotFound":               KindMatchRuleNotFound,
	"org.freedesktop.DBus.Error.MatchRuleInvalid":                KindMatchRuleInvalid,
	"org.freedesktop.DBus.Error.AccessDenied":                    KindAccessDenied,
	"org.freedesktop.DBus.Error.LimitsExceeded":                  KindLimitsExceeded,
	"org.freedesktop.DBus.Error.NoMemory":                        KindNoMemory,
	"org.freedesktop.DBus.Error.ObjectPathInUse":                 KindObjectPathInUse,
	"org.freedesktop.DBus.Error.UnixProcessIdUnknown":            KindUnixProcessIdUnknown,
	"org.freedesktop.DBus.Error.SELinuxSecurityContextUnknown":   KindSELinuxSecurityContextUnknown,
	"org.freedesktop.DBus.Error.AdtAuditDataUnknown":             KindAdtAuditDataUnknown,
	"org.freedesktop.DBus.Error.Spawn.ExecFailed":                KindSpawnExecFailed,
	"org.freedesktop.DBus.Error.Spawn.ForkFailed":                KindSpawnForkFailed,
	"org.freedesktop.DBus.Error.Spawn.ChildExited":               KindSpawnChildExited,
	"org.freedesktop.DBus.Error.Spawn.ChildSignaled":              KindSpawnChildSignaled,
	"org.freedesktop.DBus.Error.Spawn.Failed":                     KindSpawnFailed,
	"org.freedesktop.DBus.Error.Spawn.FailedToSetup":              KindSpawnSetupFailed,
	"org.freedesktop.DBus.Error.Spawn.ConfigInvalid":              KindSpawnConfigInvalid,
	"org.freedesktop.DBus.Error.Spawn.ServiceNotValid":            KindSpawnServiceInvalid,
	"org.freedesktop.DBus.Error.Spawn.ServiceNotFound":            KindSpawnServiceNotFound,
	"org.freedesktop.DBus.Error.Spawn.PermissionsInvalid":         KindSpawnPermissionsInvalid,
	"org.freedesktop.DBus.Error.Spawn.FileInvalid":                KindSpawnFileInvalid,
	"org.freedesktop.DBus.Error.Spawn.NoMemory":                   KindSpawnNoMemory,
	"org.freedesktop.DBus.Error.FileNotFound":                     KindFileNotFound,
	"org.freedesktop.DBus.Error.FileExists":                       KindFileExists,
	"org.freedesktop.DBus.Error.InvalidFileContent":                KindInvalidFileContent,
	"org.freedesktop.DBus.Error.Failed":                            KindFailed,
}

// Error is this module's representation of every fallible outcome in
// the taxonomy (spec.md §7): a remote error reply (DBusName/Message
// populated from the wire), a local condition (Kind set, DBusName
// empty or synthetic), or cancellation/timeout. It implements error
// and is typically produced by errors.As-compatible wrapping via
// fmt.Errorf("...: %w", err) at call sites, following the teacher's
// rpcError convention in internal/signal/client.go.
type Error struct {
	Kind    Kind
	DBusName string // raw D-Bus error name, when known; "" for purely local errors
	Message string
}

func (e *Error) Error() string {
	if e.DBusName != "" {
		return fmt.Sprintf("bus: %s: %s", e.DBusName, e.Message)
	}
	return fmt.Sprintf("bus: %s", e.Message)
}

// Is supports errors.Is(err, ErrCancelled) and friends by comparing
// Kind, so callers don't need to unwrap to a concrete *Error to check
// "was this a timeout".
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewRemoteError builds an *Error from a raw D-Bus error name and
// message, mapping to a known Kind when possible and falling back to
// KindUnknown (spec.md §7 "Remote passthrough": the raw name and
// message are always preserved regardless of whether Kind matched).
func NewRemoteError(name, message string) *Error {
	kind, ok := busNameToKind[name]
	if !ok {
		kind = KindUnknown
	}
	return &Error{Kind: kind, DBusName: name, Message: message}
}

func localError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Sentinel local errors for errors.Is comparisons that don't need a
// message (callers compare Kind via (*Error).Is).
var (
	ErrCancelled    = &Error{Kind: KindCancelled, Message: "operation cancelled"}
	ErrTimeout      = &Error{Kind: KindTimeout, Message: "operation timed out"}
	ErrDisconnected = &Error{Kind: KindDisconnected, Message: "connection is closed"}
	ErrNoServer     = &Error{Kind: KindNoServer, Message: "no bus address available"}
	ErrBadAddress   = &Error{Kind: KindBadAddress, Message: "malformed or unsupported bus address"}
)
