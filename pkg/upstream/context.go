// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package upstream binds the globals of the real compositor and serves them
// to the multiplexer as a mux.ClientContext.
package upstream

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/absmach/wlmux/pkg/client"
	wlerrors "github.com/absmach/wlmux/pkg/errors"
	"github.com/absmach/wlmux/pkg/mux"
	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/wire"
)

var _ mux.ClientContext = (*Context)(nil)

// Config configures a Context.
type Config struct {
	Logger *slog.Logger
}

// Context is the shared upstream connection. It is driven from the
// goroutine that dispatches the display's default queue.
type Context struct {
	logger *slog.Logger
	dpy    *client.Display
	reg    *client.Proxy

	compositor    *client.Proxy
	subcompositor *client.Proxy
	shm           *client.Proxy
	seat          *client.Proxy
	seatGlobal    uint32
	wm            *client.Proxy
	dmabuf        *client.Proxy
	feedback      *client.Proxy

	caps     uint32
	seatName string

	outputs []*output

	modifiers []mux.Modifier
	table     []mux.Modifier
	pending   []mux.Modifier

	listeners []mux.Listener
	ready     bool
	closed    bool
}

// New binds the globals of dpy and waits until their initial state has
// arrived. The Context does not own dpy.
func New(dpy *client.Display, cfg Config) (*Context, error) {
	if dpy == nil {
		return nil, wlerrors.ErrInvalidArgument
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Context{
		logger: cfg.Logger,
		dpy:    dpy,
	}
	reg, err := dpy.GetRegistry()
	if err != nil {
		return nil, wlerrors.Wrap(err, "failed to get registry")
	}
	c.reg = reg
	reg.SetHandler(c.registryEvent)

	// The first roundtrip delivers the globals, the second the events
	// sent in reply to the binds.
	for range 2 {
		if err := dpy.Roundtrip(); err != nil {
			c.Close()
			return nil, wlerrors.Wrap(err, "failed to read upstream globals")
		}
	}
	if c.compositor == nil {
		c.Close()
		return nil, fmt.Errorf("%w: %s", wlerrors.ErrCapabilityUnavailable, protocol.Compositor.Name)
	}
	c.ready = true

	c.logger.Info("upstream ready",
		slog.Uint64("compositor", uint64(c.compositor.Version())),
		slog.Int("outputs", c.CountOutputs()),
		slog.Bool("dmabuf", c.dmabuf != nil),
		slog.String("seat", c.seatName),
	)
	return c, nil
}

// Display returns the upstream display.
func (c *Context) Display() *client.Display {
	return c.dpy
}

// Err returns the fatal error of the upstream connection, if any. Errors
// posted by the compositor match ErrProtocolViolation, anything else
// ErrConnectionClosed.
func (c *Context) Err() error {
	err := c.dpy.Err()
	if err == nil {
		return nil
	}
	var perr *client.ProtocolError
	if errors.As(err, &perr) {
		return fmt.Errorf("%w: %w", wlerrors.ErrProtocolViolation, err)
	}
	return fmt.Errorf("%w: %w", wlerrors.ErrConnectionClosed, err)
}

func (c *Context) Compositor() *client.Proxy    { return c.compositor }
func (c *Context) SubCompositor() *client.Proxy { return c.subcompositor }
func (c *Context) SharedMemory() *client.Proxy  { return c.shm }
func (c *Context) Seat() *client.Proxy          { return c.seat }
func (c *Context) WindowManager() *client.Proxy { return c.wm }
func (c *Context) DmaBuffer() *client.Proxy     { return c.dmabuf }
func (c *Context) SeatCapabilities() uint32     { return c.caps }
func (c *Context) SeatName() string             { return c.seatName }

// CountOutputs returns the number of outputs whose initial state is known.
func (c *Context) CountOutputs() int {
	n := 0
	for _, o := range c.outputs {
		if o.done {
			n++
		}
	}
	return n
}

// Output returns the i-th known output in advertisement order.
func (c *Context) Output(i int) mux.Output {
	for _, o := range c.outputs {
		if !o.done {
			continue
		}
		if i == 0 {
			return o.current
		}
		i--
	}
	return mux.Output{}
}

func (c *Context) CountDmaBufferModifiers() int {
	return len(c.modifiers)
}

func (c *Context) DmaBufferModifier(i int) (mux.Modifier, bool) {
	if i < 0 || i >= len(c.modifiers) {
		return mux.Modifier{}, false
	}
	return c.modifiers[i], true
}

func (c *Context) AddListener(l mux.Listener) bool {
	if l == nil || slices.Contains(c.listeners, l) {
		return false
	}
	c.listeners = append(c.listeners, l)
	return true
}

func (c *Context) RemoveListener(l mux.Listener) bool {
	i := slices.Index(c.listeners, l)
	if i < 0 {
		return false
	}
	c.listeners = slices.Delete(c.listeners, i, i+1)
	return true
}

// Close releases every bound global. The display stays open.
func (c *Context) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.listeners = nil

	for _, o := range c.outputs {
		release(o.proxy)
	}
	c.outputs = nil
	release(c.feedback)
	release(c.dmabuf)
	release(c.wm)
	release(c.seat)
	release(c.subcompositor)
	release(c.shm)
	release(c.compositor)
	release(c.reg)
	c.dpy.Flush()
}

func (c *Context) notify(t mux.ChangeType) {
	if !c.ready {
		return
	}
	for _, l := range slices.Clone(c.listeners) {
		l.ContextChanged(t)
	}
}

func (c *Context) registryEvent(ev *client.Event) {
	switch ev.Opcode {
	case protocol.RegistryGlobal:
		c.global(ev.Args.Uint(0), ev.Args.String(1), ev.Args.Uint(2))
	case protocol.RegistryGlobalRemove:
		c.globalRemove(ev.Args.Uint(0))
	}
}

func (c *Context) global(name uint32, iface string, version uint32) {
	switch iface {
	case protocol.Compositor.Name:
		if c.compositor == nil {
			c.compositor = c.bind(name, protocol.Compositor, version)
		}
	case protocol.Subcompositor.Name:
		if c.subcompositor == nil {
			c.subcompositor = c.bind(name, protocol.Subcompositor, version)
		}
	case protocol.Shm.Name:
		if c.shm == nil {
			c.shm = c.bind(name, protocol.Shm, version)
		}
	case protocol.Seat.Name:
		if c.seat != nil {
			c.logger.Debug("ignoring additional seat", slog.Uint64("name", uint64(name)))
			return
		}
		if c.seat = c.bind(name, protocol.Seat, version); c.seat != nil {
			c.seatGlobal = name
			c.seat.SetHandler(c.seatEvent)
		}
	case protocol.WmBase.Name:
		if c.wm == nil {
			if c.wm = c.bind(name, protocol.WmBase, version); c.wm != nil {
				c.wm.SetHandler(c.wmEvent)
			}
		}
	case protocol.Dmabuf.Name:
		if c.dmabuf == nil {
			c.bindDmabuf(name, version)
		}
	case protocol.Output.Name:
		c.addOutput(name, version)
	}
}

func (c *Context) globalRemove(name uint32) {
	// The seat object outlives its global; sessions keep their devices
	// but stop receiving input.
	if name == c.seatGlobal && c.seat != nil {
		c.logger.Warn("upstream seat removed")
		c.seatGlobal = 0
		if c.caps != 0 {
			c.caps = 0
			c.notify(mux.SeatCapabilitiesChanged)
		}
		return
	}

	i := slices.IndexFunc(c.outputs, func(o *output) bool { return o.name == name })
	if i < 0 {
		return
	}
	o := c.outputs[i]
	c.outputs = slices.Delete(c.outputs, i, i+1)

	c.logger.Info("upstream output removed", slog.String("model", o.current.Model), slog.Uint64("name", uint64(name)))
	if o.done {
		c.notify(mux.OutputsChanged)
	}
	release(o.proxy)
}

func (c *Context) bind(name uint32, iface *protocol.Interface, version uint32) *client.Proxy {
	version = min(version, iface.Version)
	p, err := c.reg.Bind(name, iface, version)
	if err != nil {
		c.logger.Error("failed to bind upstream global",
			slog.String("interface", iface.Name),
			slog.String("error", err.Error()),
		)
		return nil
	}
	c.logger.Debug("bound upstream global", slog.String("interface", iface.Name), slog.Uint64("version", uint64(version)))
	return p
}

func (c *Context) seatEvent(ev *client.Event) {
	switch ev.Opcode {
	case protocol.SeatCapabilities:
		caps := ev.Args.Uint(0)
		if caps == c.caps {
			return
		}
		c.caps = caps
		c.notify(mux.SeatCapabilitiesChanged)
	case protocol.SeatName:
		c.seatName = ev.Args.String(0)
	}
}

func (c *Context) wmEvent(ev *client.Event) {
	if ev.Opcode != protocol.WmBasePing {
		return
	}
	if err := c.wm.Request(protocol.WmBasePong, wire.Uint(ev.Args.Uint(0))); err != nil {
		c.logger.Warn("failed to answer upstream ping", slog.String("error", err.Error()))
	}
}

// release sends the destructor of p when its version has one and forgets
// p otherwise.
func release(p *client.Proxy) {
	if p == nil || !p.Alive() {
		return
	}
	if op, ok := p.Interface().Destructor(p.Version()); ok {
		if err := p.Request(op); err == nil {
			return
		}
	}
	p.Destroy()
}
