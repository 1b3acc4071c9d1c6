package introspect

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// doctype is the standard D-Bus introspection XML preamble, emitted
// ahead of the <node> element the way every real D-Bus service does
// (and every client-side parser tolerates but ignores).
const doctype = `<!DOCTYPE node PUBLIC "-//freedesktop//DTD D-BUS Object Introspection 1.0//EN"
"http://www.freedesktop.org/standards/dbus/1.0/introspect.dtd">
`

// Parse decodes a D-Bus introspection XML document into a Node. The
// external XML parser is explicitly excluded from this module's hard
// engineering (spec.md §1); this is a thin wrapper over
// encoding/xml, consistent with godbus/dbus/v5's own introspect
// subpackage.
func Parse(data []byte) (*Node, error) {
	var n Node
	if err := xml.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("introspect: parse: %w", err)
	}
	return &n, nil
}

// Marshal encodes a Node back to introspection XML, including the
// standard DOCTYPE preamble. Used by bus.Connection's built-in
// Introspectable handler to answer Introspect calls for objects
// registered with RegisterObject.
func Marshal(n *Node) ([]byte, error) {
	body, err := xml.MarshalIndent(n, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("introspect: marshal: %w", err)
	}

	var out strings.Builder
	out.WriteString(xml.Header)
	out.WriteString(doctype)
	out.Write(body)
	out.WriteByte('\n')
	return []byte(out.String()), nil
}
