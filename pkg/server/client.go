// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/wire"
	"golang.org/x/sys/unix"
)

const (
	// displayID is the fixed id of wl_display.
	displayID = 1

	// serverIDStart is the first id of the server-allocated range.
	serverIDStart = 0xff000000
)

var (
	// ErrInvalidID is returned for a client-supplied id outside the client range.
	ErrInvalidID = errors.New("invalid object id")

	// ErrIDInUse is returned when an id names a live object.
	ErrIDInUse = errors.New("object id in use")

	// ErrClientDestroyed is returned by operations on a destroyed client.
	ErrClientDestroyed = errors.New("client destroyed")
)

// Client is one connected peer.
type Client struct {
	display    *Display
	conn       *wire.Conn
	objects    map[uint32]*Resource
	registries []*Resource
	nextID     uint32
	listeners  []func(*Client)

	errored   bool
	destroyed bool
}

func newClient(d *Display, conn *wire.Conn) *Client {
	c := &Client{
		display: d,
		conn:    conn,
		objects: make(map[uint32]*Resource),
		nextID:  serverIDStart,
	}
	r := &Resource{ID: displayID, Interface: protocol.Display, Version: 1, client: c}
	r.dispatcher = c.handleDisplay
	c.objects[displayID] = r
	return c
}

// Display returns the display the client is connected to.
func (c *Client) Display() *Display {
	return c.display
}

// Resource returns the live object with the given id.
func (c *Client) Resource(id uint32) (*Resource, bool) {
	r, ok := c.objects[id]
	return r, ok
}

// ObjectCount returns the number of live objects, wl_display included.
func (c *Client) ObjectCount() int {
	return len(c.objects)
}

// Errored reports whether a fatal protocol error was posted.
func (c *Client) Errored() bool {
	return c.errored
}

// Destroyed reports whether the client is gone.
func (c *Client) Destroyed() bool {
	return c.destroyed
}

// Credentials returns the peer credentials of the client socket.
func (c *Client) Credentials() (pid int32, uid, gid uint32, err error) {
	if c.destroyed {
		return 0, 0, 0, ErrClientDestroyed
	}
	cred, err := unix.GetsockoptUcred(c.conn.FD(), unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to read peer credentials: %w", err)
	}
	return cred.Pid, cred.Uid, cred.Gid, nil
}

// AddDestroyListener registers fn to run after the client and all its
// resources are destroyed.
func (c *Client) AddDestroyListener(fn func(*Client)) {
	c.listeners = append(c.listeners, fn)
}

// CreateResource creates an object at a client-allocated id.
func (c *Client) CreateResource(iface *protocol.Interface, version, id uint32) (*Resource, error) {
	if c.destroyed {
		return nil, ErrClientDestroyed
	}
	if id == 0 || id >= serverIDStart {
		return nil, fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	if _, ok := c.objects[id]; ok {
		return nil, fmt.Errorf("%w: %d", ErrIDInUse, id)
	}
	return c.newResource(iface, version, id), nil
}

// CreateServerResource creates an object at the next server-allocated id.
func (c *Client) CreateServerResource(iface *protocol.Interface, version uint32) (*Resource, error) {
	if c.destroyed {
		return nil, ErrClientDestroyed
	}
	id := c.nextID
	c.nextID++
	return c.newResource(iface, version, id), nil
}

func (c *Client) newResource(iface *protocol.Interface, version, id uint32) *Resource {
	r := &Resource{
		ID:        id,
		Interface: iface,
		Version:   version,
		client:    c,
	}
	c.objects[id] = r
	return r
}

// PostError sends wl_display.error about r (wl_display when nil) and marks
// the client. Further requests are ignored and the client is destroyed once
// the error has been flushed.
func (c *Client) PostError(r *Resource, code uint32, format string, args ...any) {
	if c.errored || c.destroyed {
		return
	}

	id := uint32(displayID)
	if r != nil {
		id = r.ID
	}
	msg := fmt.Sprintf(format, args...)
	c.conn.Write(displayID, protocol.DisplayError, wire.Object(id), wire.Uint(code), wire.String(msg))
	c.errored = true

	c.display.config.Logger.Debug("protocol error posted",
		slog.Int("object", int(id)),
		slog.Int("code", int(code)),
		slog.String("message", msg))
}

// PostNoMemory reports that the server could not allocate for the client.
func (c *Client) PostNoMemory() {
	c.PostError(nil, protocol.ErrorNoMemory, "no memory")
}

// PostImplementationError reports a compositor-side failure.
func (c *Client) PostImplementationError(format string, args ...any) {
	c.PostError(nil, protocol.ErrorImplementation, format, args...)
}

// Flush writes queued events.
func (c *Client) Flush() error {
	if c.destroyed {
		return ErrClientDestroyed
	}
	return c.conn.Flush()
}

// Destroy destroys every resource, closes the connection and runs the
// destroy listeners. It is safe to call more than once.
func (c *Client) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true

	ids := make([]uint32, 0, len(c.objects))
	for id := range c.objects {
		ids = append(ids, id)
	}
	// Newer objects first: children usually outlive their factories by id.
	slices.SortFunc(ids, func(a, b uint32) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		}
		return 0
	})
	for _, id := range ids {
		if r, ok := c.objects[id]; ok {
			r.release()
		}
	}
	c.objects = map[uint32]*Resource{}
	c.registries = nil

	c.display.removeClient(c)
	c.conn.Close()

	for _, fn := range c.listeners {
		fn(c)
	}
	c.display.config.Logger.Debug("client destroyed")
}

func (c *Client) process() {
	_, readErr := c.conn.Read()

	for !c.errored && !c.destroyed {
		h, body, ok, err := c.conn.Next()
		if err != nil {
			c.display.config.Logger.Debug("malformed message", slog.String("error", err.Error()))
			c.Destroy()
			return
		}
		if !ok {
			break
		}
		c.dispatch(h, body)
	}

	if readErr != nil && !c.destroyed {
		if !errors.Is(readErr, io.EOF) {
			c.display.config.Logger.Debug("client read failed", slog.String("error", readErr.Error()))
		}
		c.Destroy()
	}
}

func (c *Client) dispatch(h wire.Header, body []byte) {
	r, ok := c.objects[h.Sender]
	if !ok {
		c.PostError(nil, protocol.ErrorInvalidObject, "invalid object %d", h.Sender)
		return
	}

	msg, ok := r.Interface.Request(h.Opcode)
	if !ok || !msg.Available(r.Version) {
		c.PostError(nil, protocol.ErrorInvalidMethod, "invalid method %d, object %s@%d", h.Opcode, r.Interface.Name, r.ID)
		return
	}

	args, err := wire.Unmarshal(body, msg.Signature, c.conn)
	if err != nil {
		c.PostError(nil, protocol.ErrorInvalidMethod, "invalid arguments for %s@%d.%s", r.Interface.Name, r.ID, msg.Name)
		return
	}
	defer args.Close()

	for _, a := range args {
		if a.Type == wire.TypeNewID && (a.Value == 0 || a.Value >= serverIDStart) {
			c.PostError(nil, protocol.ErrorInvalidObject, "invalid new id %d", a.Value)
			return
		}
	}
	if r.dispatcher == nil {
		return
	}
	if err := r.dispatcher(r, h.Opcode, args); err != nil {
		c.display.config.Logger.Debug("request failed",
			slog.String("request", r.Interface.Name+"."+msg.Name),
			slog.Int("object", int(r.ID)),
			slog.String("error", err.Error()))
	}
}

func (c *Client) handleDisplay(r *Resource, opcode uint16, args wire.Args) error {
	switch opcode {
	case protocol.DisplaySync:
		cb, err := c.CreateResource(protocol.Callback, 1, args.NewID(0))
		if err != nil {
			c.PostError(nil, protocol.ErrorInvalidObject, "invalid new id %d", args.NewID(0))
			return err
		}
		cb.PostEvent(protocol.CallbackDone, wire.Uint(c.display.serial))
		cb.Destroy()
	case protocol.DisplayGetRegistry:
		reg, err := c.CreateResource(protocol.Registry, 1, args.NewID(0))
		if err != nil {
			c.PostError(nil, protocol.ErrorInvalidObject, "invalid new id %d", args.NewID(0))
			return err
		}
		reg.SetDispatcher(c.handleRegistry, func(reg *Resource) {
			c.registries = slices.DeleteFunc(c.registries, func(o *Resource) bool { return o == reg })
		})
		c.registries = append(c.registries, reg)
		for _, g := range c.display.Globals() {
			reg.PostEvent(protocol.RegistryGlobal, wire.Uint(g.Name), wire.String(g.Interface.Name), wire.Uint(g.Version))
		}
	}
	return nil
}

func (c *Client) handleRegistry(r *Resource, opcode uint16, args wire.Args) error {
	if opcode != protocol.RegistryBind {
		return nil
	}

	name, iface, version, id := args.Uint(0), args.String(1), args.Uint(2), args.NewID(3)
	g, ok := c.display.globals[name]
	if !ok {
		g, ok = c.display.removedGlobal(name)
	}
	switch {
	case !ok:
		r.PostError(protocol.ErrorInvalidObject, "invalid global %s (%d)", iface, name)
	case g.Interface.Name != iface:
		r.PostError(protocol.ErrorInvalidObject, "invalid interface for global %d: have %s, wanted %s", name, iface, g.Interface.Name)
	case version == 0:
		r.PostError(protocol.ErrorInvalidObject, "invalid version for global %s (%d): 0 is not a valid version", iface, name)
	case version > g.Version:
		r.PostError(protocol.ErrorInvalidObject, "invalid version for global %s (%d): have %d, wanted %d", iface, name, g.Version, version)
	case g.removed:
		res, err := c.CreateResource(g.Interface, version, id)
		if err != nil {
			c.PostError(nil, protocol.ErrorInvalidObject, "invalid new id %d", id)
			return err
		}
		res.SetDispatcher(inert, nil)
	default:
		if g.bind != nil {
			g.bind(c, g.Data, version, id)
		}
	}
	return nil
}

// inert serves an object bound after its global was withdrawn. It only
// honours destructors.
func inert(r *Resource, opcode uint16, _ wire.Args) error {
	if msg, ok := r.Interface.Request(opcode); ok && msg.Destructor {
		r.Destroy()
	}
	return nil
}

func (c *Client) announceGlobal(g *Global) {
	for _, reg := range c.registries {
		reg.PostEvent(protocol.RegistryGlobal, wire.Uint(g.Name), wire.String(g.Interface.Name), wire.Uint(g.Version))
	}
}

func (c *Client) announceGlobalRemove(g *Global) {
	for _, reg := range c.registries {
		reg.PostEvent(protocol.RegistryGlobalRemove, wire.Uint(g.Name))
	}
}
