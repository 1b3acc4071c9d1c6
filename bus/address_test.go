package bus

import (
	"os"
	"testing"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
		check   func(t *testing.T, entries []AddressEntry)
	}{
		{
			name: "unix path",
			addr: "unix:path=/run/dbus/system_bus_socket",
			check: func(t *testing.T, entries []AddressEntry) {
				if len(entries) != 1 {
					t.Fatalf("got %d entries, want 1", len(entries))
				}
				if entries[0].Transport != "unix" {
					t.Errorf("transport = %q, want unix", entries[0].Transport)
				}
				if entries[0].Params["path"] != "/run/dbus/system_bus_socket" {
					t.Errorf("path = %q", entries[0].Params["path"])
				}
			},
		},
		{
			name: "unix abstract with percent escape",
			addr: "unix:abstract=my%20socket,guid=deadbeef",
			check: func(t *testing.T, entries []AddressEntry) {
				if entries[0].Params["abstract"] != "my socket" {
					t.Errorf("abstract = %q, want %q", entries[0].Params["abstract"], "my socket")
				}
				if entries[0].Params["guid"] != "deadbeef" {
					t.Errorf("guid = %q", entries[0].Params["guid"])
				}
			},
		},
		{
			name: "multiple clauses tried in order",
			addr: "unix:path=/first;tcp:host=localhost,port=1234",
			check: func(t *testing.T, entries []AddressEntry) {
				if len(entries) != 2 {
					t.Fatalf("got %d entries, want 2", len(entries))
				}
				if entries[1].Transport != "tcp" || entries[1].Params["port"] != "1234" {
					t.Errorf("second entry = %+v", entries[1])
				}
			},
		},
		{name: "empty string", addr: "", wantErr: true},
		{name: "missing colon", addr: "unixpath=/tmp/foo", wantErr: true},
		{name: "empty transport", addr: ":path=/tmp/foo", wantErr: true},
		{name: "malformed kv", addr: "unix:path", wantErr: true},
		{name: "truncated escape", addr: "unix:path=%2", wantErr: true},
		{name: "invalid escape", addr: "unix:path=%zz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := ParseAddress(tt.addr)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAddress(%q) = %v, want error", tt.addr, entries)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q) error: %v", tt.addr, err)
			}
			if tt.check != nil {
				tt.check(t, entries)
			}
		})
	}
}

func TestResolveAddress(t *testing.T) {
	for _, v := range []string{EnvSessionBusAddress, EnvSystemBusAddress, EnvStarterAddress, EnvStarterBusType} {
		old, had := os.LookupEnv(v)
		os.Unsetenv(v)
		if had {
			defer os.Setenv(v, old)
		}
	}

	t.Run("session unset", func(t *testing.T) {
		if _, err := ResolveAddress(Session); err == nil {
			t.Error("expected error when DBUS_SESSION_BUS_ADDRESS is unset")
		}
	})

	t.Run("session from env", func(t *testing.T) {
		os.Setenv(EnvSessionBusAddress, "unix:path=/tmp/bus")
		defer os.Unsetenv(EnvSessionBusAddress)
		addr, err := ResolveAddress(Session)
		if err != nil {
			t.Fatal(err)
		}
		if addr != "unix:path=/tmp/bus" {
			t.Errorf("addr = %q", addr)
		}
	})

	t.Run("system defaults when unset", func(t *testing.T) {
		addr, err := ResolveAddress(System)
		if err != nil {
			t.Fatal(err)
		}
		if addr != defaultSystemBusAddress {
			t.Errorf("addr = %q, want %q", addr, defaultSystemBusAddress)
		}
	})

	t.Run("system from env overrides default", func(t *testing.T) {
		os.Setenv(EnvSystemBusAddress, "unix:path=/tmp/sysbus")
		defer os.Unsetenv(EnvSystemBusAddress)
		addr, err := ResolveAddress(System)
		if err != nil {
			t.Fatal(err)
		}
		if addr != "unix:path=/tmp/sysbus" {
			t.Errorf("addr = %q", addr)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := ResolveAddress(Type(99)); err == nil {
			t.Error("expected error for unknown bus type")
		}
	})
}

func TestIsValidObjectPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/", true},
		{"/org/freedesktop/DBus", true},
		{"/a/b_c/D9", true},
		{"", false},
		{"no/leading/slash", false},
		{"/trailing/slash/", false},
		{"/empty//element", false},
		{"/bad-dash", false},
		{"/bad.dot", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsValidObjectPath(tt.path); got != tt.want {
				t.Errorf("IsValidObjectPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
