// Package introspect holds the passive data structures that back the
// D-Bus introspection XML format (spec.md §2 "Introspection Model").
// It does not drive any engineering in this repository's CORE — the
// Transport Connection (bus package) serves the XML described here
// via the "org.freedesktop.DBus.Introspectable" interface, building a
// *Node from the *Interface descriptions passed to RegisterObject to
// answer Introspect calls, but parsing/generating the XML itself is plain
// data-structure marshalling over the standard library, matching how
// godbus/dbus/v5's own "introspect" subpackage is laid out.
package introspect

import "encoding/xml"

// IntrospectIface is the interface name every object implicitly
// implements to answer the Introspect method.
const IntrospectIface = "org.freedesktop.DBus.Introspectable"

// Node describes one object in the tree: its own interfaces and the
// relative names of any child nodes (spec.md §4.3 register_subtree's
// "enumerate"). Name is empty for the node addressed by a direct
// Introspect call; it is populated only when Node appears nested
// inside another Node's Children.
type Node struct {
	XMLName    xml.Name    `xml:"node"`
	Name       string      `xml:"name,attr,omitempty"`
	Interfaces []Interface `xml:"interface"`
	Children   []Node      `xml:"node"`
}

// Interface lists one interface's methods, signals, properties, and
// annotations.
type Interface struct {
	Name        string       `xml:"name,attr"`
	Methods     []Method     `xml:"method"`
	Signals     []Signal     `xml:"signal"`
	Properties  []Property   `xml:"property"`
	Annotations []Annotation `xml:"annotation"`
}

// Method describes one callable method and its arguments.
type Method struct {
	Name        string       `xml:"name,attr"`
	Args        []Arg        `xml:"arg"`
	Annotations []Annotation `xml:"annotation"`
}

// Signal describes one emitted signal and its arguments. Signal args
// have no Direction: they are implicitly all "out".
type Signal struct {
	Name        string       `xml:"name,attr"`
	Args        []Arg        `xml:"arg"`
	Annotations []Annotation `xml:"annotation"`
}

// Property describes one gettable/settable property.
type Property struct {
	Name        string       `xml:"name,attr"`
	Type        string       `xml:"type,attr"`
	Access      string       `xml:"access,attr"` // "read", "write", or "readwrite"
	Annotations []Annotation `xml:"annotation"`
}

// CanGet reports whether the property's access permits GetProperty.
func (p Property) CanGet() bool { return p.Access == "read" || p.Access == "readwrite" }

// CanSet reports whether the property's access permits SetProperty.
func (p Property) CanSet() bool { return p.Access == "write" || p.Access == "readwrite" }

// Arg describes one method or signal argument.
type Arg struct {
	Name      string `xml:"name,attr,omitempty"`
	Type      string `xml:"type,attr"`
	Direction string `xml:"direction,attr,omitempty"` // "in" or "out"; methods only
}

// Annotation is a free-form name/value pair, e.g.
// "org.freedesktop.DBus.Deprecated" = "true".
type Annotation struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// LookupInterface returns the named interface, or nil if absent.
func (n *Node) LookupInterface(name string) *Interface {
	for i := range n.Interfaces {
		if n.Interfaces[i].Name == name {
			return &n.Interfaces[i]
		}
	}
	return nil
}

// LookupChild returns the named immediate child node, or nil if
// absent. Name is the child's relative name (the last path element),
// matching spec.md §4.3 register_subtree's "enumerate" contract.
func (n *Node) LookupChild(name string) *Node {
	for i := range n.Children {
		if n.Children[i].Name == name {
			return &n.Children[i]
		}
	}
	return nil
}

// LookupMethod returns the named method, or nil if absent.
func (i *Interface) LookupMethod(name string) *Method {
	for m := range i.Methods {
		if i.Methods[m].Name == name {
			return &i.Methods[m]
		}
	}
	return nil
}

// LookupSignal returns the named signal, or nil if absent.
func (i *Interface) LookupSignal(name string) *Signal {
	for s := range i.Signals {
		if i.Signals[s].Name == name {
			return &i.Signals[s]
		}
	}
	return nil
}

// LookupProperty returns the named property, or nil if absent.
func (i *Interface) LookupProperty(name string) *Property {
	for p := range i.Properties {
		if i.Properties[p].Name == name {
			return &i.Properties[p]
		}
	}
	return nil
}

// InSignature concatenates the type codes of a method's "in"
// arguments, in order — the value expected in a MethodCall's
// signature header field.
func (m *Method) InSignature() string {
	var sig string
	for _, a := range m.Args {
		if a.Direction == "" || a.Direction == "in" {
			sig += a.Type
		}
	}
	return sig
}

// OutSignature concatenates the type codes of a method's "out"
// arguments, in order — the value expected in a MethodReturn's
// signature header field.
func (m *Method) OutSignature() string {
	var sig string
	for _, a := range m.Args {
		if a.Direction == "out" {
			sig += a.Type
		}
	}
	return sig
}

// Signature concatenates a signal's argument types, in order.
func (s *Signal) Signature() string {
	var sig string
	for _, a := range s.Args {
		sig += a.Type
	}
	return sig
}
