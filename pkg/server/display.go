// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package server is the compositor side of the Wayland protocol: a display
// that accepts client connections, keeps their object maps, advertises
// globals through wl_registry and dispatches requests to resource
// implementations. It is driven from outside: FD is polled by the caller,
// which then calls Dispatch and FlushClients. Nothing here is safe for
// concurrent use.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/wire"
	"golang.org/x/sys/unix"
)

var (
	// ErrDisplayDestroyed is returned by operations on a destroyed display.
	ErrDisplayDestroyed = errors.New("display destroyed")

	// ErrInvalidVersion is returned for a global advertised above what its
	// interface describes.
	ErrInvalidVersion = errors.New("invalid global version")
)

const (
	maxEpollEvents = 32

	// removedGlobalsKept bounds the withdrawn globals still accepted by
	// bind.
	removedGlobalsKept = 32
)

// Config holds the display configuration.
type Config struct {
	// Logger for runtime events
	Logger *slog.Logger
}

// BindFunc is called when a client binds a global. version is already
// checked against the advertised version.
type BindFunc func(c *Client, data any, version, id uint32)

// Global is an advertised, bindable object.
type Global struct {
	Name      uint32
	Interface *protocol.Interface
	Version   uint32
	Data      any

	bind    BindFunc
	removed bool
}

// Display is the server-side protocol runtime.
type Display struct {
	config   Config
	epfd     int
	clients  map[int]*Client
	order    []*Client
	globals  map[uint32]*Global
	removed  []*Global
	nextName uint32
	serial   uint32
	events   []unix.EpollEvent

	destroyed bool
}

// NewDisplay creates a display and its epoll instance.
func NewDisplay(cfg Config) (*Display, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("failed to create epoll instance: %w", err)
	}

	return &Display{
		config:  cfg,
		epfd:    epfd,
		clients: make(map[int]*Client),
		globals: make(map[uint32]*Global),
		events:  make([]unix.EpollEvent, maxEpollEvents),
	}, nil
}

// FD returns a descriptor that becomes readable when any client has data.
func (d *Display) FD() int {
	return d.epfd
}

// Serial returns the last serial handed out.
func (d *Display) Serial() uint32 {
	return d.serial
}

// NextSerial advances and returns the display serial.
func (d *Display) NextSerial() uint32 {
	d.serial++
	return d.serial
}

// CreateClient registers a connected socket as a client. On success the
// display owns fd; on failure the caller still does.
func (d *Display) CreateClient(fd int) (*Client, error) {
	if d.destroyed {
		return nil, ErrDisplayDestroyed
	}

	conn, err := wire.NewConn(fd)
	if err != nil {
		return nil, err
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return nil, fmt.Errorf("failed to watch client socket: %w", err)
	}

	c := newClient(d, conn)
	d.clients[fd] = c
	d.order = append(d.order, c)

	d.config.Logger.Debug("client created", slog.Int("fd", fd))
	return c, nil
}

// Clients returns the live clients in creation order.
func (d *Display) Clients() []*Client {
	return slices.Clone(d.order)
}

// Dispatch performs one non-blocking pass over every client with pending
// input. Clients that hang up or send malformed data are destroyed.
func (d *Display) Dispatch() error {
	if d.destroyed {
		return ErrDisplayDestroyed
	}

	n, err := unix.EpollWait(d.epfd, d.events, 0)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("failed to wait for clients: %w", err)
	}

	ready := make([]*Client, 0, n)
	for i := 0; i < n; i++ {
		if c, ok := d.clients[int(d.events[i].Fd)]; ok {
			ready = append(ready, c)
		}
	}
	for _, c := range ready {
		c.process()
	}

	d.reap()
	return nil
}

// FlushClients writes queued events to every client.
func (d *Display) FlushClients() {
	for _, c := range d.Clients() {
		if err := c.Flush(); err != nil {
			d.config.Logger.Debug("failed to flush client", slog.String("error", err.Error()))
			c.Destroy()
		}
	}
	d.reap()
}

// reap destroys clients that were sent a fatal protocol error, after
// giving the error a chance to reach them.
func (d *Display) reap() {
	for _, c := range d.Clients() {
		if c.errored && !c.destroyed {
			c.conn.Flush()
			c.Destroy()
		}
	}
}

func (d *Display) removeClient(c *Client) {
	fd := c.conn.FD()
	unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	delete(d.clients, fd)
	d.order = slices.DeleteFunc(d.order, func(o *Client) bool { return o == c })
}

// CreateGlobal advertises a new global to every registry.
func (d *Display) CreateGlobal(iface *protocol.Interface, version uint32, data any, bind BindFunc) (*Global, error) {
	if d.destroyed {
		return nil, ErrDisplayDestroyed
	}
	if version == 0 || version > iface.Version {
		return nil, fmt.Errorf("%w: %s version %d", ErrInvalidVersion, iface.Name, version)
	}

	d.nextName++
	g := &Global{
		Name:      d.nextName,
		Interface: iface,
		Version:   version,
		Data:      data,
		bind:      bind,
	}
	d.globals[g.Name] = g

	for _, c := range d.order {
		c.announceGlobal(g)
	}

	d.config.Logger.Debug("global created",
		slog.String("interface", iface.Name),
		slog.Int("name", int(g.Name)),
		slog.Int("version", int(version)))
	return g, nil
}

// DestroyGlobal withdraws g from every registry. The name stays bindable
// for clients that raced the removal; they receive an inert object.
func (d *Display) DestroyGlobal(g *Global) {
	if g == nil || g.removed {
		return
	}
	g.removed = true

	for _, c := range d.order {
		c.announceGlobalRemove(g)
	}
	delete(d.globals, g.Name)
	d.removed = append(d.removed, g)
	if n := len(d.removed) - removedGlobalsKept; n > 0 {
		d.removed = slices.Delete(d.removed, 0, n)
	}

	d.config.Logger.Debug("global destroyed",
		slog.String("interface", g.Interface.Name),
		slog.Int("name", int(g.Name)))
}

// removedGlobal returns a recently withdrawn global.
func (d *Display) removedGlobal(name uint32) (*Global, bool) {
	for _, g := range d.removed {
		if g.Name == name {
			return g, true
		}
	}
	return nil, false
}

// Globals returns the advertised globals ordered by name.
func (d *Display) Globals() []*Global {
	out := make([]*Global, 0, len(d.globals))
	for _, g := range d.globals {
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b *Global) int { return int(a.Name) - int(b.Name) })
	return out
}

// DestroyClients destroys every client.
func (d *Display) DestroyClients() {
	for _, c := range d.Clients() {
		c.Destroy()
	}
}

// Destroy destroys every client and global and releases the epoll instance.
func (d *Display) Destroy() error {
	if d.destroyed {
		return nil
	}
	d.DestroyClients()
	for _, g := range d.Globals() {
		d.DestroyGlobal(g)
	}
	d.destroyed = true
	return unix.Close(d.epfd)
}
