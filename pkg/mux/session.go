// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mux

import (
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

// LookupResult is the outcome of a typed adapter lookup.
type LookupResult int

const (
	Found LookupResult = iota
	NotFound
	WrongType
)

// String returns a string representation of the result.
func (r LookupResult) String() string {
	switch r {
	case Found:
		return "found"
	case NotFound:
		return "not found"
	case WrongType:
		return "wrong type"
	default:
		return "unknown"
	}
}

// Session is one connected client and the adapters of its objects. Object
// ids are scoped to the session.
type Session struct {
	id       string
	mux      *Multiplexer
	client   *server.Client
	peer     *client.Display
	adapters map[uint32]*Adapter
	hctx     *handler.Context
	closed   bool
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Client returns the downstream client.
func (s *Session) Client() *server.Client {
	return s.client
}

// Peer returns the in-process display handle, nil for socket sessions.
func (s *Session) Peer() *client.Display {
	return s.peer
}

// Closed reports whether the session was torn down.
func (s *Session) Closed() bool {
	return s.closed
}

// Equal reports whether both sessions serve the same client.
func (s *Session) Equal(o *Session) bool {
	return s != nil && o != nil && s.client == o.client
}

// Count returns the number of live adapters.
func (s *Session) Count() int {
	return len(s.adapters)
}

// Adapters returns the live adapters ordered by downstream id.
func (s *Session) Adapters() []*Adapter {
	out := make([]*Adapter, 0, len(s.adapters))
	for _, id := range slices.Sorted(maps.Keys(s.adapters)) {
		out = append(out, s.adapters[id])
	}
	return out
}

// AddAdapter adds a at id, served at the version of its upstream proxy. A
// disabled adapter is destroyed and refused.
func (s *Session) AddAdapter(a *Adapter, id uint32) error {
	if a == nil {
		return wlerrors.ErrInvalidArgument
	}
	if a.proxy == nil {
		a.Destroy()
		return fmt.Errorf("%w: %s", wlerrors.ErrCapabilityUnavailable, a.iface.Name)
	}
	return s.AddAdapterVersion(a, min(a.proxy.Version(), a.iface.Version), id)
}

// AddAdapterVersion creates the downstream object for a at version and id
// (0 allocates a server id) and registers a. On failure a is destroyed and
// the client receives no_memory.
func (s *Session) AddAdapterVersion(a *Adapter, version, id uint32) error {
	if a == nil {
		return wlerrors.ErrInvalidArgument
	}
	if s.closed {
		a.Destroy()
		return wlerrors.ErrSessionNotFound
	}

	var r *server.Resource
	var err error
	if id == 0 {
		r, err = s.client.CreateServerResource(a.iface, version)
	} else {
		r, err = s.client.CreateResource(a.iface, version, id)
	}
	if err != nil {
		s.client.PostNoMemory()
		a.Destroy()
		s.mux.protocolError(s, "no_memory", err)
		return fmt.Errorf("failed to create %s@%d: %w", a.iface.Name, id, err)
	}

	s.adapters[r.ID] = a
	a.attach(s, r)
	s.mux.metrics.ActiveAdapters.WithLabelValues(a.iface.Name).Inc()

	s.mux.logger.Debug("adapter added",
		slog.String("session", s.id),
		slog.String("object", fmt.Sprintf("%s@%d", a.iface.Name, r.ID)),
		slog.Int("version", int(version)))
	return nil
}

// RemoveAdapter forgets a, destroys it and its downstream object. It is
// safe to call from the destroy hook of that object.
func (s *Session) RemoveAdapter(a *Adapter) {
	if a == nil || a.session != s {
		return
	}
	if cur, ok := s.adapters[a.ID()]; ok && cur == a {
		delete(s.adapters, a.ID())
		s.mux.metrics.ActiveAdapters.WithLabelValues(a.iface.Name).Dec()
	}

	r := a.resource
	a.Destroy()
	if r != nil && !r.Destroyed() {
		r.Destroy()
	}
}

// Find returns the adapter at a downstream id.
func (s *Session) Find(id uint32) (*Adapter, bool) {
	a, ok := s.adapters[id]
	return a, ok
}

// Lookup returns the adapter at id if it implements iface.
func (s *Session) Lookup(id uint32, iface *protocol.Interface) (*Adapter, LookupResult) {
	a, ok := s.adapters[id]
	switch {
	case !ok:
		return nil, NotFound
	case a.iface != iface:
		return a, WrongType
	}
	return a, Found
}

// FindByProxy returns the adapter with the lowest id bound to p.
func (s *Session) FindByProxy(p *client.Proxy) (*Adapter, bool) {
	if p == nil {
		return nil, false
	}
	for _, a := range s.Adapters() {
		if a.proxy == p {
			return a, true
		}
	}
	return nil, false
}

// FindAllByProxy returns every adapter bound to p, ordered by id. Global
// proxies may be bound more than once by one client.
func (s *Session) FindAllByProxy(p *client.Proxy) []*Adapter {
	if p == nil {
		return nil
	}
	var out []*Adapter
	for _, a := range s.Adapters() {
		if a.proxy == p {
			out = append(out, a)
		}
	}
	return out
}

// resolve maps an object argument to the upstream proxy of its adapter.
func (s *Session) resolve(id uint32, iface *protocol.Interface) (*client.Proxy, error) {
	a, res := s.Lookup(id, iface)
	switch res {
	case NotFound:
		return nil, &wlerrors.ResourceError{Interface: iface.Name, ID: id, Err: wlerrors.ErrResourceNotFound}
	case WrongType:
		return nil, &wlerrors.ResourceError{Interface: iface.Name, ID: id, Err: wlerrors.ErrWrongType}
	}
	if a.proxy == nil {
		return nil, fmt.Errorf("%w: %s@%d", wlerrors.ErrCapabilityUnavailable, iface.Name, id)
	}
	return a.proxy, nil
}

// resolveNullable is resolve for nullable arguments; id 0 yields nil.
func (s *Session) resolveNullable(id uint32, iface *protocol.Interface) (*client.Proxy, error) {
	if id == 0 {
		return nil, nil
	}
	return s.resolve(id, iface)
}

// downstream maps an upstream object argument of an event to this
// session's adapter, or reports a miss.
func (s *Session) downstream(p *client.Proxy, iface *protocol.Interface) (*Adapter, bool) {
	a, ok := s.FindByProxy(p)
	if !ok || a.iface != iface || a.resource == nil {
		return nil, false
	}
	return a, true
}
