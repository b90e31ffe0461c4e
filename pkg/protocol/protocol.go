// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package protocol describes the Wayland interfaces the multiplexer speaks:
// the core protocol, xdg-shell and linux-dmabuf. Descriptors carry enough to
// decode messages (signatures), gate them on versions (since) and create the
// objects they announce (new_id interfaces).
package protocol

// Message describes one request or event.
type Message struct {
	Name string

	// Signature uses libwayland characters: i u f s o n a h, '?' marks a
	// nullable argument.
	Signature string

	// Since is the first interface version carrying the message. Zero means 1.
	Since uint32

	// Destructor marks requests that destroy the object.
	Destructor bool

	// NewID is the interface of the object a new_id argument creates.
	NewID *Interface
}

// Available reports whether m exists at the given object version.
func (m Message) Available(version uint32) bool {
	return m.Since <= version
}

// Interface describes a protocol interface.
type Interface struct {
	Name     string
	Version  uint32
	Requests []Message
	Events   []Message
}

// Request returns the request with the given opcode.
func (i *Interface) Request(opcode uint16) (Message, bool) {
	if i == nil || int(opcode) >= len(i.Requests) {
		return Message{}, false
	}
	return i.Requests[opcode], true
}

// Event returns the event with the given opcode.
func (i *Interface) Event(opcode uint16) (Message, bool) {
	if i == nil || int(opcode) >= len(i.Events) {
		return Message{}, false
	}
	return i.Events[opcode], true
}

// Destructor returns the opcode of the destructor request usable at version.
func (i *Interface) Destructor(version uint32) (uint16, bool) {
	if i == nil {
		return 0, false
	}
	for op, m := range i.Requests {
		if m.Destructor && m.Available(version) {
			return uint16(op), true
		}
	}
	return 0, false
}

func (i *Interface) String() string {
	if i == nil {
		return "<nil>"
	}
	return i.Name
}

var interfaces = map[string]*Interface{}

func register(ifaces ...*Interface) {
	for _, i := range ifaces {
		interfaces[i.Name] = i
	}
}

// Lookup finds an interface by its protocol name.
func Lookup(name string) (*Interface, bool) {
	i, ok := interfaces[name]
	return i, ok
}

// Interfaces returns every known interface.
func Interfaces() []*Interface {
	out := make([]*Interface, 0, len(interfaces))
	for _, i := range interfaces {
		out = append(out, i)
	}
	return out
}
