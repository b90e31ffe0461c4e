// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/absmach/wlmux/pkg/client"
	wlerrors "github.com/absmach/wlmux/pkg/errors"
	"github.com/absmach/wlmux/pkg/handler"
	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/server"
)

// ErrRegistryStopped is returned when a stopped registry is started again.
var ErrRegistryStopped = errors.New("registry stopped")

type registryState int

const (
	registryUninitialized registryState = iota
	registryStarted
	registryStopped
)

// Registry advertises the upstream capabilities and outputs as globals and
// keeps the bound clients in step with upstream changes. Globals are keyed
// by the id of the upstream object they stand for.
type Registry struct {
	mux     *Multiplexer
	state   registryState
	globals map[uint32]*server.Global
	outputs []uint32
}

func newRegistry(m *Multiplexer) *Registry {
	return &Registry{
		mux:     m,
		globals: make(map[uint32]*server.Global),
	}
}

// Startup registers a global per available capability and per output, then
// subscribes to ClientContext changes.
func (r *Registry) Startup() error {
	switch r.state {
	case registryStarted:
		return wlerrors.ErrAlreadyStarted
	case registryStopped:
		return ErrRegistryStopped
	}

	cc := r.mux.cc
	r.registerGlobal(cc.Compositor(), protocol.Compositor, r.bind(protocol.Compositor, newCompositor, nil))
	r.registerGlobal(cc.SubCompositor(), protocol.Subcompositor, r.bind(protocol.Subcompositor, newSubcompositor, nil))
	r.registerGlobal(cc.SharedMemory(), protocol.Shm, r.bind(protocol.Shm, newShm, sendShmFormats))
	r.registerGlobal(cc.WindowManager(), protocol.WmBase, r.bind(protocol.WmBase, newWmBase, nil))
	r.registerGlobal(cc.Seat(), protocol.Seat, r.bind(protocol.Seat, newSeat, r.pushSeat))
	r.registerGlobal(cc.DmaBuffer(), protocol.Dmabuf, r.bind(protocol.Dmabuf, newDmabuf, nil))

	r.updateOutputs()
	if !cc.AddListener(r) {
		r.mux.logger.Warn("client context refused the registry listener")
	}
	r.state = registryStarted
	return nil
}

// Shutdown unsubscribes and withdraws every global.
func (r *Registry) Shutdown() {
	if r.state != registryStarted {
		return
	}
	r.mux.cc.RemoveListener(r)
	for _, key := range slices.Sorted(maps.Keys(r.globals)) {
		r.unregisterGlobal(key)
	}
	r.outputs = nil
	r.state = registryStopped
}

// Started reports whether the registry is started.
func (r *Registry) Started() bool {
	return r.state == registryStarted
}

// Global returns the global advertised for an upstream object id.
func (r *Registry) Global(key uint32) (*server.Global, bool) {
	g, ok := r.globals[key]
	return g, ok
}

// Outputs returns the upstream ids of the advertised outputs, sorted.
func (r *Registry) Outputs() []uint32 {
	return slices.Clone(r.outputs)
}

// ContextChanged implements Listener.
func (r *Registry) ContextChanged(t ChangeType) {
	if r.state != registryStarted {
		return
	}
	r.mux.metrics.TopologyChanges.WithLabelValues(t.String()).Inc()
	switch t {
	case SeatCapabilitiesChanged:
		r.updateSeatCapabilities()
	case OutputsChanged:
		r.updateOutputs()
	}
}

// updateSeatCapabilities re-pushes the capabilities once per session that
// holds a seat.
func (r *Registry) updateSeatCapabilities() {
	seat := r.mux.cc.Seat()
	caps := r.mux.cc.SeatCapabilities()
	for _, s := range r.mux.sessions {
		if a, ok := s.downstream(seat, protocol.Seat); ok {
			sendCapabilities(a, caps)
		}
	}
}

// updateOutputs diffs the upstream outputs against the advertised ones:
// removed outputs lose their global, new outputs get one and outputs in
// both sets have their properties re-pushed.
func (r *Registry) updateOutputs() {
	cc := r.mux.cc
	current := make(map[uint32]Output)
	for i := range cc.CountOutputs() {
		out := cc.Output(i)
		if out.Handle == nil {
			continue
		}
		current[out.Handle.ID()] = out
	}
	next := slices.Sorted(maps.Keys(current))

	removed := difference(r.outputs, next)
	added := difference(next, r.outputs)

	for _, key := range removed {
		if g, ok := r.globals[key]; ok {
			r.invalidate(g.Data)
		}
		r.unregisterGlobal(key)
	}
	for _, key := range added {
		out := current[key]
		r.registerGlobal(out.Handle, protocol.Output, r.bind(protocol.Output, newOutput, r.pushOutput))
	}
	for _, key := range next {
		if slices.Contains(added, key) {
			continue
		}
		out := current[key]
		for _, s := range r.mux.sessions {
			for _, a := range s.FindAllByProxy(out.Handle) {
				sendOutputProperties(a, out)
			}
		}
	}

	r.outputs = next
	if len(added) > 0 || len(removed) > 0 {
		r.mux.logger.Info("outputs updated",
			slog.Int("added", len(added)),
			slog.Int("removed", len(removed)),
			slog.Int("total", len(next)))
	}
}

// invalidate disables every adapter bound to the upstream object behind a
// withdrawn global. The downstream objects stay alive until their clients
// release them.
func (r *Registry) invalidate(data any) {
	p, _ := data.(*client.Proxy)
	if p == nil {
		return
	}
	n := 0
	for _, s := range r.mux.sessions {
		for _, a := range s.FindAllByProxy(p) {
			a.disable()
			n++
		}
	}
	if n > 0 {
		r.mux.logger.Debug("adapters disabled", slog.String("interface", p.Interface().Name), slog.Int("count", n))
	}
}

// difference returns the sorted elements of a missing from b. Both inputs
// are sorted.
func difference(a, b []uint32) []uint32 {
	var out []uint32
	i, j := 0, 0
	for i < len(a) {
		switch {
		case j >= len(b) || a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			j++
		default:
			i++
			j++
		}
	}
	return out
}

func (r *Registry) registerGlobal(p *client.Proxy, iface *protocol.Interface, bind server.BindFunc) {
	if p == nil {
		r.mux.logger.Warn("capability unavailable upstream", slog.String("interface", iface.Name))
		return
	}
	key := p.ID()
	if _, ok := r.globals[key]; ok {
		return
	}

	version := Advertised(iface.Name, p.Version())
	g, err := r.mux.display.CreateGlobal(iface, version, p, bind)
	if err != nil {
		r.mux.logger.Error("failed to create global",
			slog.String("interface", iface.Name),
			slog.String("error", err.Error()))
		return
	}
	r.globals[key] = g

	r.mux.metrics.Globals.WithLabelValues(iface.Name).Inc()
	r.mux.logger.Info("global added",
		slog.String("interface", iface.Name),
		slog.Int("name", int(g.Name)),
		slog.Int("version", int(version)))
	hg := handler.Global{Name: g.Name, Interface: iface.Name, Version: version}
	if err := r.mux.handler.OnGlobalAdd(r.mux.ctx, hg); err != nil {
		r.mux.logger.Warn("global add handler failed", slog.String("error", err.Error()))
	}
}

func (r *Registry) unregisterGlobal(key uint32) {
	g, ok := r.globals[key]
	if !ok {
		return
	}
	r.mux.display.DestroyGlobal(g)
	delete(r.globals, key)

	r.mux.metrics.Globals.WithLabelValues(g.Interface.Name).Dec()
	r.mux.logger.Info("global removed",
		slog.String("interface", g.Interface.Name),
		slog.Int("name", int(g.Name)))
	hg := handler.Global{Name: g.Name, Interface: g.Interface.Name, Version: g.Version}
	if err := r.mux.handler.OnGlobalRemove(r.mux.ctx, hg); err != nil {
		r.mux.logger.Warn("global remove handler failed", slog.String("error", err.Error()))
	}
}

// bind returns the bind function of a global: it negotiates the version,
// adds one adapter to the session of the client and pushes the initial
// state.
func (r *Registry) bind(iface *protocol.Interface, build func() *Adapter, push func(*Adapter)) server.BindFunc {
	return func(c *server.Client, data any, requested, id uint32) {
		m := r.mux
		version, ok := Negotiate(iface.Name, requested)
		if !ok {
			minimum := Versions[iface.Name].Min
			c.PostImplementationError("%s implementation requires binding version %d or later.", iface.Name, minimum)
			m.metrics.BindsTotal.WithLabelValues(iface.Name, "version_too_low").Inc()
			m.protocolError(m.sessionFor(c), "version_too_low",
				fmt.Errorf("%w: %s at %d, need %d", wlerrors.ErrVersionTooLow, iface.Name, requested, minimum))
			return
		}

		s := m.sessionFor(c)
		if s == nil {
			c.PostNoMemory()
			m.metrics.BindsTotal.WithLabelValues(iface.Name, "session_not_found").Inc()
			m.protocolError(nil, "session_not_found", wlerrors.ErrSessionNotFound)
			return
		}

		p, _ := data.(*client.Proxy)
		a := build()
		a.shared = true
		if err := a.SetUpstreamProxy(p, false); err != nil {
			c.PostNoMemory()
			m.metrics.BindsTotal.WithLabelValues(iface.Name, "failed").Inc()
			return
		}
		if err := s.AddAdapterVersion(a, version, id); err != nil {
			m.metrics.BindsTotal.WithLabelValues(iface.Name, "failed").Inc()
			return
		}
		if push != nil {
			push(a)
		}

		m.metrics.BindsTotal.WithLabelValues(iface.Name, "ok").Inc()
		m.logger.Debug("global bound",
			slog.String("session", s.id),
			slog.String("interface", iface.Name),
			slog.Int("version", int(version)))
		if err := m.handler.OnBind(m.ctx, s.hctx, iface.Name, version); err != nil {
			m.logger.Warn("bind handler failed", slog.String("error", err.Error()))
		}
	}
}

func (r *Registry) pushSeat(a *Adapter) {
	sendCapabilities(a, r.mux.cc.SeatCapabilities())
	sendSeatName(a, r.mux.cc.SeatName())
}

func (r *Registry) pushOutput(a *Adapter) {
	cc := r.mux.cc
	for i := range cc.CountOutputs() {
		if out := cc.Output(i); out.Handle == a.proxy {
			sendOutputProperties(a, out)
			return
		}
	}
}
