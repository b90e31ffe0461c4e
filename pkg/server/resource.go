// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"fmt"

	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/wire"
)

var (
	// ErrUnknownEvent is returned for an opcode the interface does not have.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrEventUnavailable is returned for an event newer than the resource.
	ErrEventUnavailable = errors.New("event not available at resource version")

	// ErrResourceDestroyed is returned by operations on a destroyed resource.
	ErrResourceDestroyed = errors.New("resource destroyed")
)

// Dispatcher handles the requests sent to a resource. Descriptors left in
// args after it returns are closed.
type Dispatcher func(r *Resource, opcode uint16, args wire.Args) error

// Resource is the server side of one protocol object.
type Resource struct {
	ID        uint32
	Interface *protocol.Interface
	Version   uint32

	client     *Client
	dispatcher Dispatcher
	onDestroy  func(*Resource)
	destroyed  bool
}

// Client returns the owning client.
func (r *Resource) Client() *Client {
	return r.client
}

// SetDispatcher installs the request handler and the hook run when the
// resource is destroyed for any reason.
func (r *Resource) SetDispatcher(d Dispatcher, onDestroy func(*Resource)) {
	r.dispatcher = d
	r.onDestroy = onDestroy
}

// Destroyed reports whether the resource is gone.
func (r *Resource) Destroyed() bool {
	return r.destroyed
}

// PostEvent queues an event. Events newer than the resource version are
// refused with ErrEventUnavailable; descriptors in args are closed either way
// unless sent.
func (r *Resource) PostEvent(opcode uint16, args ...wire.Arg) error {
	if r.destroyed || r.client.destroyed {
		wire.Args(args).Close()
		return ErrResourceDestroyed
	}

	msg, ok := r.Interface.Event(opcode)
	if !ok {
		wire.Args(args).Close()
		return fmt.Errorf("%w: %s opcode %d", ErrUnknownEvent, r.Interface.Name, opcode)
	}
	if !msg.Available(r.Version) {
		wire.Args(args).Close()
		return fmt.Errorf("%w: %s.%s since %d, have %d", ErrEventUnavailable, r.Interface.Name, msg.Name, msg.Since, r.Version)
	}

	return r.client.conn.Write(r.ID, opcode, args...)
}

// PostError posts a fatal protocol error about r.
func (r *Resource) PostError(code uint32, format string, args ...any) {
	r.client.PostError(r, code, format, args...)
}

// Destroy runs the destroy hook, forgets the object and, for client
// allocated ids, tells the client the id may be reused.
func (r *Resource) Destroy() {
	if r.destroyed {
		return
	}
	c := r.client
	r.release()
	delete(c.objects, r.ID)
	if r.ID < serverIDStart && !c.destroyed {
		c.conn.Write(displayID, protocol.DisplayDeleteID, wire.Uint(r.ID))
	}
}

func (r *Resource) release() {
	if r.destroyed {
		return
	}
	r.destroyed = true
	if r.onDestroy != nil {
		r.onDestroy(r)
	}
}
