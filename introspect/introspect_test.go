package introspect

import "testing"

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE node PUBLIC "-//freedesktop//DTD D-BUS Object Introspection 1.0//EN"
"http://www.freedesktop.org/standards/dbus/1.0/introspect.dtd">
<node>
  <interface name="org.gtk.GDBus.TestInterface">
    <method name="HelloWorld">
      <arg name="greeting" type="s" direction="in"/>
      <arg name="response" type="s" direction="out"/>
    </method>
    <signal name="Pinged">
      <arg name="count" type="u"/>
    </signal>
    <property name="PeerProperty" type="s" access="read"/>
  </interface>
  <node name="child1"/>
</node>
`

func TestParse(t *testing.T) {
	n, err := Parse([]byte(sampleXML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	iface := n.LookupInterface("org.gtk.GDBus.TestInterface")
	if iface == nil {
		t.Fatal("LookupInterface returned nil")
	}

	method := iface.LookupMethod("HelloWorld")
	if method == nil {
		t.Fatal("LookupMethod returned nil")
	}
	if got := method.InSignature(); got != "s" {
		t.Errorf("InSignature() = %q, want %q", got, "s")
	}
	if got := method.OutSignature(); got != "s" {
		t.Errorf("OutSignature() = %q, want %q", got, "s")
	}

	sig := iface.LookupSignal("Pinged")
	if sig == nil || sig.Signature() != "u" {
		t.Fatalf("LookupSignal(Pinged) = %+v", sig)
	}

	prop := iface.LookupProperty("PeerProperty")
	if prop == nil || !prop.CanGet() || prop.CanSet() {
		t.Fatalf("LookupProperty(PeerProperty) = %+v", prop)
	}

	if child := n.LookupChild("child1"); child == nil {
		t.Fatal("LookupChild(child1) returned nil")
	}
	if child := n.LookupChild("nope"); child != nil {
		t.Fatal("LookupChild(nope) should be nil")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	n := &Node{
		Interfaces: []Interface{
			{
				Name: "org.gtk.GDBus.TestInterface",
				Methods: []Method{
					{Name: "HelloWorld", Args: []Arg{
						{Name: "greeting", Type: "s", Direction: "in"},
						{Name: "response", Type: "s", Direction: "out"},
					}},
				},
			},
		},
	}

	data, err := Marshal(n)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	round, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse(Marshal(n)): %v", err)
	}

	iface := round.LookupInterface("org.gtk.GDBus.TestInterface")
	if iface == nil || iface.LookupMethod("HelloWorld") == nil {
		t.Fatalf("round trip lost data: %+v", round)
	}
}
