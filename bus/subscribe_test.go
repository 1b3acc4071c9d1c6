package bus

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestMatchRule_Matches(t *testing.T) {
	tests := []struct {
		name   string
		rule   MatchRule
		sender string
		path   dbus.ObjectPath
		iface  string
		member string
		body   []any
		want   bool
	}{
		{
			name: "empty rule matches anything",
			rule: MatchRule{},
			want: true,
		},
		{
			name:   "interface and member match",
			rule:   MatchRule{Interface: "org.freedesktop.DBus", Member: "NameOwnerChanged"},
			iface:  "org.freedesktop.DBus",
			member: "NameOwnerChanged",
			want:   true,
		},
		{
			name:   "member mismatch",
			rule:   MatchRule{Member: "NameOwnerChanged"},
			member: "NameLost",
			want:   false,
		},
		{
			name: "arg0 matches string body",
			rule: MatchRule{Arg0: "com.example.Foo"},
			body: []any{"com.example.Foo", "", ":1.5"},
			want: true,
		},
		{
			name: "arg0 mismatch",
			rule: MatchRule{Arg0: "com.example.Foo"},
			body: []any{"com.example.Bar"},
			want: false,
		},
		{
			name: "arg0 required but body empty",
			rule: MatchRule{Arg0: "com.example.Foo"},
			body: nil,
			want: false,
		},
		{
			name: "arg0 required but first element not a string",
			rule: MatchRule{Arg0: "com.example.Foo"},
			body: []any{int32(1)},
			want: false,
		},
		{
			name: "path match",
			rule: MatchRule{Path: "/org/freedesktop/DBus"},
			path: "/org/freedesktop/DBus",
			want: true,
		},
		{
			name: "path mismatch",
			rule: MatchRule{Path: "/org/freedesktop/DBus"},
			path: "/com/example/Other",
			want: false,
		},
		{
			name:   "sender mismatch",
			rule:   MatchRule{Sender: "org.freedesktop.DBus"},
			sender: ":1.9",
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.matches(tt.sender, tt.path, tt.iface, tt.member, tt.body); got != tt.want {
				t.Errorf("matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchRule_Key(t *testing.T) {
	a := MatchRule{Interface: "org.freedesktop.DBus", Member: "NameOwnerChanged"}
	b := MatchRule{Interface: "org.freedesktop.DBus", Member: "NameOwnerChanged"}
	c := MatchRule{Interface: "org.freedesktop.DBus", Member: "NameLost"}

	if a.key() != b.key() {
		t.Error("identical rules must produce identical keys")
	}
	if a.key() == c.key() {
		t.Error("differing rules must produce differing keys")
	}
}

func TestIsSenderScoped(t *testing.T) {
	tests := []struct {
		sender string
		want   bool
	}{
		{":1.42", true},
		{"org.freedesktop.DBus", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isSenderScoped(tt.sender); got != tt.want {
			t.Errorf("isSenderScoped(%q) = %v, want %v", tt.sender, got, tt.want)
		}
	}
}

func TestSubscriptionTable_AddRemove(t *testing.T) {
	tbl := newSubscriptionTable()
	installs := 0
	uninstalls := 0
	install := func(MatchRule) error { installs++; return nil }
	uninstall := func(MatchRule) error { uninstalls++; return nil }

	rule := MatchRule{Interface: "com.example.Foo"}
	id1, err := tbl.add(rule, nil, nil, install)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.add(rule, nil, nil, install); err != nil {
		t.Fatal(err)
	}
	if installs != 1 {
		t.Errorf("installs = %d, want 1 (second add reuses the installed rule)", installs)
	}

	if err := tbl.remove(id1, uninstall); err != nil {
		t.Fatal(err)
	}
	if uninstalls != 0 {
		t.Errorf("uninstalls = %d, want 0 (one reference remains)", uninstalls)
	}

	id2, err := tbl.add(rule, nil, nil, install)
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.remove(id2, uninstall); err != nil {
		t.Fatal(err)
	}
	if uninstalls != 1 {
		t.Errorf("uninstalls = %d, want 1 after last reference dropped", uninstalls)
	}
}

func TestSubscriptionTable_RemoveUnknown(t *testing.T) {
	tbl := newSubscriptionTable()
	err := tbl.remove(SubscriptionID{}, func(MatchRule) error { return nil })
	if err == nil {
		t.Fatal("expected error removing an unknown subscription")
	}
	var be *Error
	if !asError(err, &be) || be.Kind != KindMatchRuleNotFound {
		t.Errorf("expected KindMatchRuleNotFound, got %v", err)
	}
}

func TestSubscriptionTable_DropOrphaned(t *testing.T) {
	tbl := newSubscriptionTable()
	install := func(MatchRule) error { return nil }

	senderScoped := MatchRule{Sender: ":1.7", Member: "Foo"}
	wellKnown := MatchRule{Sender: "org.freedesktop.DBus", Member: "Bar"}
	if _, err := tbl.add(senderScoped, nil, nil, install); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.add(wellKnown, nil, nil, install); err != nil {
		t.Fatal(err)
	}

	tbl.dropOrphaned()

	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	if len(tbl.subs) != 1 {
		t.Fatalf("len(subs) = %d, want 1 after dropping sender-scoped subscriptions", len(tbl.subs))
	}
	if tbl.subs[0].rule.Member != "Bar" {
		t.Errorf("surviving subscription = %+v, want the well-known-sender rule", tbl.subs[0].rule)
	}
}

func TestSubscriptionTable_Dispatch(t *testing.T) {
	tbl := newSubscriptionTable()
	install := func(MatchRule) error { return nil }

	var gotA, gotB int
	ruleA := MatchRule{Member: "Foo"}
	ruleB := MatchRule{Member: "Bar"}
	if _, err := tbl.add(ruleA, func(sender string, path dbus.ObjectPath, iface, member string, body []any) {
		gotA++
	}, nil, install); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.add(ruleB, func(sender string, path dbus.ObjectPath, iface, member string, body []any) {
		gotB++
	}, nil, install); err != nil {
		t.Fatal(err)
	}

	tbl.dispatch("", "/", "com.example", "Foo", nil)
	if gotA != 1 || gotB != 0 {
		t.Errorf("gotA=%d gotB=%d, want 1,0", gotA, gotB)
	}
}

func asError(err error, target **Error) bool {
	be, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = be
	return true
}
