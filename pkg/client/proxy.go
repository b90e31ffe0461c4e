// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"fmt"

	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/wire"
)

// ErrNotFactory is returned when Create is used with a request that creates
// no object.
var ErrNotFactory = errors.New("request creates no object")

// Proxy is the client side of one protocol object. A wrapper is a Proxy that
// shares the id of another and only changes the queue new objects land on.
type Proxy struct {
	display *Display
	id      uint32
	iface   *protocol.Interface
	version uint32
	queue   *Queue
	handler func(*Event)

	wrapped   *Proxy
	released  bool
	zombie    bool
	idDeleted bool
}

// ID returns the protocol object id.
func (p *Proxy) ID() uint32 {
	return p.target().id
}

// Interface returns the object interface.
func (p *Proxy) Interface() *protocol.Interface {
	return p.target().iface
}

// Version returns the object version.
func (p *Proxy) Version() uint32 {
	return p.target().version
}

// Display returns the owning display.
func (p *Proxy) Display() *Display {
	return p.display
}

// Queue returns the queue events (or, for a wrapper, new objects) go to.
func (p *Proxy) Queue() *Queue {
	return p.queue
}

// SetQueue moves future events of p to q. Events already queued stay where
// they are.
func (p *Proxy) SetQueue(q *Queue) {
	if q == nil {
		q = p.display.queue
	}
	p.queue = q
}

// SetHandler installs the event handler.
func (p *Proxy) SetHandler(h func(*Event)) {
	p.target().handler = h
}

// Alive reports whether p can still send requests.
func (p *Proxy) Alive() bool {
	t := p.target()
	return !p.released && !t.zombie && p.display.err == nil
}

// IsWrapper reports whether p is a wrapper created by Wrapper.
func (p *Proxy) IsWrapper() bool {
	return p.wrapped != nil
}

func (p *Proxy) target() *Proxy {
	if p.wrapped != nil {
		return p.wrapped
	}
	return p
}

// Wrapper returns a proxy that sends requests on behalf of p while placing
// the objects they create on q.
func (p *Proxy) Wrapper(q *Queue) *Proxy {
	if q == nil {
		q = p.display.queue
	}
	return &Proxy{
		display: p.display,
		iface:   p.Interface(),
		version: p.Version(),
		queue:   q,
		wrapped: p.target(),
	}
}

// DestroyWrapper releases a wrapper. It does nothing to the wrapped proxy.
func (p *Proxy) DestroyWrapper() {
	if p.wrapped != nil {
		p.released = true
	}
}

func (p *Proxy) check(opcode uint16) (protocol.Message, error) {
	t := p.target()
	if err := p.display.err; err != nil {
		return protocol.Message{}, err
	}
	if p.released || t.zombie {
		return protocol.Message{}, fmt.Errorf("%w: %s@%d", ErrProxyDestroyed, t.iface.Name, t.id)
	}
	msg, ok := t.iface.Request(opcode)
	if !ok {
		return protocol.Message{}, fmt.Errorf("%w: %s has no request %d", wire.ErrSignature, t.iface.Name, opcode)
	}
	if !msg.Available(t.version) {
		return protocol.Message{}, fmt.Errorf("%w: %s.%s since %d, have %d", ErrUnsupported, t.iface.Name, msg.Name, msg.Since, t.version)
	}
	return msg, nil
}

// Request sends a request that creates no object. Destructor requests also
// destroy p.
func (p *Proxy) Request(opcode uint16, args ...wire.Arg) error {
	msg, err := p.check(opcode)
	if err != nil {
		wire.Args(args).Close()
		return err
	}
	t := p.target()
	if err := p.display.conn.Write(t.id, opcode, args...); err != nil {
		p.display.fail(err)
		return err
	}
	if msg.Destructor {
		t.Destroy()
	}
	return nil
}

// Create sends a request that creates an object. The first new_id argument
// is filled with the allocated id; the object inherits the version of p and
// the queue of p (of the wrapper, when p is one).
func (p *Proxy) Create(opcode uint16, args ...wire.Arg) (*Proxy, error) {
	msg, err := p.check(opcode)
	if err != nil {
		wire.Args(args).Close()
		return nil, err
	}
	if msg.NewID == nil {
		wire.Args(args).Close()
		return nil, fmt.Errorf("%w: %s.%s", ErrNotFactory, p.Interface().Name, msg.Name)
	}

	d := p.display
	t := p.target()
	child := d.newProxy(d.allocID(), msg.NewID, t.version, p.queue)

	out := make([]wire.Arg, len(args))
	copy(out, args)
	for i := range out {
		if out[i].Type == wire.TypeNewID {
			out[i].Value = child.id
			break
		}
	}

	if err := d.conn.Write(t.id, opcode, out...); err != nil {
		d.forget(child)
		d.fail(err)
		return nil, err
	}
	return child, nil
}

// Bind binds a registry global. p must be a wl_registry.
func (p *Proxy) Bind(name uint32, iface *protocol.Interface, version uint32) (*Proxy, error) {
	if _, err := p.check(protocol.RegistryBind); err != nil {
		return nil, err
	}

	d := p.display
	child := d.newProxy(d.allocID(), iface, version, p.queue)
	err := d.conn.Write(p.target().id, protocol.RegistryBind,
		wire.Uint(name), wire.String(iface.Name), wire.Uint(version), wire.NewID(child.id))
	if err != nil {
		d.forget(child)
		d.fail(err)
		return nil, err
	}
	return child, nil
}

// Destroy forgets p locally without sending anything. Client ids stay
// reserved until the compositor confirms them with delete_id.
func (p *Proxy) Destroy() {
	if p.wrapped != nil {
		p.DestroyWrapper()
		return
	}
	if p.zombie || p.id == displayID {
		return
	}
	p.zombie = true
	p.handler = nil
	if p.id >= serverIDStart || p.idDeleted {
		p.display.forget(p)
	}
}

func (p *Proxy) String() string {
	t := p.target()
	return fmt.Sprintf("%s@%d", t.iface.Name, t.id)
}
