package bus

import (
	"errors"
	"testing"
)

func TestNewRemoteError_KnownName(t *testing.T) {
	err := NewRemoteError("org.freedesktop.DBus.Error.ServiceUnknown", "The name is unknown")
	if err.Kind != KindServiceUnknown {
		t.Errorf("Kind = %v, want KindServiceUnknown", err.Kind)
	}
	if err.DBusName != "org.freedesktop.DBus.Error.ServiceUnknown" {
		t.Errorf("DBusName = %q", err.DBusName)
	}
	if err.Message != "The name is unknown" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewRemoteError_UnknownName(t *testing.T) {
	err := NewRemoteError("com.example.Whatever", "boom")
	if err.Kind != KindUnknown {
		t.Errorf("Kind = %v, want KindUnknown", err.Kind)
	}
	if err.DBusName != "com.example.Whatever" {
		t.Errorf("DBusName = %q, want preserved raw name", err.DBusName)
	}
}

func TestError_IsBySentinel(t *testing.T) {
	err := NewRemoteError("org.freedesktop.DBus.Error.Timeout", "timed out")
	if !errors.Is(err, ErrTimeout) {
		t.Error("expected errors.Is(err, ErrTimeout) to hold for matching Kind")
	}
	if errors.Is(err, ErrDisconnected) {
		t.Error("expected errors.Is(err, ErrDisconnected) to be false for differing Kind")
	}
}

func TestError_ErrorString(t *testing.T) {
	remote := NewRemoteError("org.freedesktop.DBus.Error.Failed", "nope")
	if got := remote.Error(); got == "" {
		t.Error("expected non-empty error string")
	}
	local := localError(KindTimeout, "waited %d seconds", 5)
	if got, want := local.Error(), "bus: waited 5 seconds"; got != want {
		t.Errorf("local.Error() = %q, want %q", got, want)
	}
}
