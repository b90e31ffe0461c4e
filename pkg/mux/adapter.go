// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/absmach/wlmux/pkg/client"
	wlerrors "github.com/absmach/wlmux/pkg/errors"
	"github.com/absmach/wlmux/pkg/metrics"
	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/server"
	"github.com/absmach/wlmux/pkg/trace"
	"github.com/absmach/wlmux/pkg/wire"
)

// RequestFunc handles one request sent to the downstream object of a.
type RequestFunc func(a *Adapter, args wire.Args) error

// EventFunc forwards one upstream event to the downstream object of a.
type EventFunc func(a *Adapter, ev *client.Event)

// Adapter pairs one downstream resource with one upstream proxy.
//
// An adapter without a proxy is disabled: its requests are accepted and
// ignored. Adapters built for registry globals share the upstream proxy of
// the ClientContext and leave its events to it; adapters built by factory
// requests own theirs and send its destructor when they are destroyed.
type Adapter struct {
	iface    *protocol.Interface
	requests map[uint16]RequestFunc
	events   map[uint16]EventFunc

	// wrap routes the objects this adapter creates upstream through a
	// wrapper on the multiplexer queue.
	wrap bool

	proxy   *client.Proxy
	wrapper *client.Proxy
	owned   bool
	shared  bool
	bound   bool

	session  *Session
	resource *server.Resource

	// wm is the downstream id of the xdg_wm_base an xdg_surface came from.
	wm uint32

	destroyed bool
}

func newAdapter(iface *protocol.Interface) *Adapter {
	return &Adapter{
		iface:    iface,
		requests: make(map[uint16]RequestFunc),
		events:   make(map[uint16]EventFunc),
	}
}

func (a *Adapter) handle(opcode uint16, fn RequestFunc) {
	a.requests[opcode] = fn
}

func (a *Adapter) on(opcode uint16, fn EventFunc) {
	a.events[opcode] = fn
}

// Interface returns the interface of both sides.
func (a *Adapter) Interface() *protocol.Interface {
	return a.iface
}

// ID returns the downstream object id, or 0 before the adapter is added to
// a session.
func (a *Adapter) ID() uint32 {
	if a.resource == nil {
		return 0
	}
	return a.resource.ID
}

// Version returns the downstream object version.
func (a *Adapter) Version() uint32 {
	if a.resource == nil {
		return 0
	}
	return a.resource.Version
}

// Proxy returns the upstream proxy, nil when disabled or destroyed.
func (a *Adapter) Proxy() *client.Proxy {
	return a.proxy
}

// Session returns the owning session.
func (a *Adapter) Session() *Session {
	return a.session
}

// Disabled reports whether the adapter has no upstream proxy.
func (a *Adapter) Disabled() bool {
	return a.proxy == nil
}

// Destroyed reports whether Destroy ran.
func (a *Adapter) Destroyed() bool {
	return a.destroyed
}

// SetUpstreamProxy binds a to p. It may be called once; a nil p leaves the
// adapter disabled. An owned proxy is destroyed together with the adapter.
func (a *Adapter) SetUpstreamProxy(p *client.Proxy, owned bool) error {
	if a.bound {
		return fmt.Errorf("%w: %s adapter already bound", wlerrors.ErrInvalidArgument, a.iface.Name)
	}
	if p != nil && p.Interface() != a.iface {
		return fmt.Errorf("%w: %s proxy for %s adapter", wlerrors.ErrWrongType, p.Interface().Name, a.iface.Name)
	}
	a.bound = true
	a.proxy = p
	a.owned = owned && p != nil
	return nil
}

// Destroy releases the wrapper and, for owned proxies, destroys the
// upstream object. It is idempotent.
func (a *Adapter) Destroy() {
	if a.destroyed {
		return
	}
	a.destroyed = true

	if a.wrapper != nil {
		a.wrapper.DestroyWrapper()
		a.wrapper = nil
	}
	p := a.proxy
	a.proxy = nil
	if p == nil {
		return
	}
	if !a.shared {
		p.SetHandler(nil)
	}
	if !a.owned {
		return
	}
	if op, ok := p.Interface().Destructor(p.Version()); ok && p.Alive() {
		if err := p.Request(op); err == nil {
			return
		}
	}
	p.Destroy()
}

// disable detaches a from an upstream object that went away. Requests are
// ignored afterwards and object arguments naming a fail to resolve.
func (a *Adapter) disable() {
	if a.wrapper != nil {
		a.wrapper.DestroyWrapper()
		a.wrapper = nil
	}
	if !a.shared && a.proxy != nil {
		a.proxy.SetHandler(nil)
	}
	a.proxy = nil
	a.owned = false
}

// attach links a to its session and downstream resource.
func (a *Adapter) attach(s *Session, r *server.Resource) {
	a.session = s
	a.resource = r
	r.SetDispatcher(a.dispatch, func(*server.Resource) { s.RemoveAdapter(a) })

	if a.wrap && a.proxy != nil {
		a.requeue(s.mux.queue)
	}
	a.listen()
}

// requeue points the wrapper, and for owned proxies the proxy itself, at q.
func (a *Adapter) requeue(q *client.Queue) {
	if a.proxy == nil {
		return
	}
	if a.wrap {
		if a.wrapper != nil {
			a.wrapper.DestroyWrapper()
			a.wrapper = nil
		}
		if q != nil {
			a.wrapper = a.proxy.Wrapper(q)
		}
	}
	if a.owned {
		a.proxy.SetQueue(q)
	}
}

// listen installs the upstream event handler. Shared proxies keep the
// handler of the ClientContext.
func (a *Adapter) listen() {
	if a.shared || a.proxy == nil || len(a.events) == 0 {
		return
	}
	s, id := a.session, a.resource.ID
	a.proxy.SetHandler(func(ev *client.Event) {
		cur, res := s.Lookup(id, a.iface)
		if res != Found || cur != a || s.closed {
			s.mux.dropEvent(a.iface, ev)
			return
		}
		if fn := a.events[ev.Opcode]; fn != nil {
			fn(a, ev)
		}
	})
}

func (a *Adapter) target() *client.Proxy {
	if a.wrapper != nil {
		return a.wrapper
	}
	return a.proxy
}

func (a *Adapter) dispatch(r *server.Resource, opcode uint16, args wire.Args) error {
	msg, _ := a.iface.Request(opcode)
	if msg.Destructor {
		r.Destroy()
		return nil
	}
	if a.destroyed || a.proxy == nil {
		return nil
	}
	fn, ok := a.requests[opcode]
	if !ok {
		return nil
	}
	if err := fn(a, args); err != nil {
		a.fail(msg.Name, err)
		return err
	}
	return nil
}

// fail reports a failed request to the client the way the taxonomy says.
func (a *Adapter) fail(request string, err error) {
	m := a.session.mux
	c := a.resource.Client()
	err = wlerrors.New(request, a.iface.Name, a.session.id, a.resource.ID, err)

	var rerr *wlerrors.ResourceError
	switch {
	case errors.As(err, &rerr):
		c.PostImplementationError("%s", rerr.Error())
		kind := "resource_not_found"
		if errors.Is(err, wlerrors.ErrWrongType) {
			kind = "wrong_type"
		}
		m.protocolError(a.session, kind, err)
	case errors.Is(err, wlerrors.ErrSessionNotFound):
		c.PostNoMemory()
		m.protocolError(a.session, "session_not_found", err)
	default:
		m.logger.Debug("request not forwarded", slog.String("error", err.Error()))
	}
}

// request forwards a request upstream.
func (a *Adapter) request(opcode uint16, args ...wire.Arg) error {
	p := a.target()
	if p == nil {
		wire.Args(args).Close()
		return nil
	}
	a.traffic(trace.Upstream, opcode, args)
	return p.Request(opcode, args...)
}

// spawn forwards a factory request and adds an adapter for the new upstream
// object at the downstream id. The child is served at the lower of the
// parent's downstream version and its own interface version.
func (a *Adapter) spawn(opcode uint16, id uint32, build func() *Adapter, args ...wire.Arg) (*Adapter, error) {
	s := a.session
	if s == nil || s.closed {
		wire.Args(args).Close()
		return nil, wlerrors.ErrSessionNotFound
	}

	a.traffic(trace.Upstream, opcode, args)
	p, err := a.target().Create(opcode, args...)
	if err != nil {
		return nil, err
	}

	child := build()
	if err := child.SetUpstreamProxy(p, true); err != nil {
		p.Destroy()
		return nil, err
	}
	version := min(a.resource.Version, p.Version(), child.iface.Version)
	if err := s.AddAdapterVersion(child, version, id); err != nil {
		return nil, err
	}
	return child, nil
}

// post sends an event downstream. Events newer than the resource are
// dropped.
func (a *Adapter) post(opcode uint16, args ...wire.Arg) {
	r := a.resource
	if r == nil || r.Destroyed() || !a.supports(opcode) {
		wire.Args(args).Close()
		return
	}
	a.traffic(trace.Downstream, opcode, args)
	if err := r.PostEvent(opcode, args...); err != nil {
		a.session.mux.logger.Debug("event not delivered",
			slog.String("object", fmt.Sprintf("%s@%d", a.iface.Name, r.ID)),
			slog.String("error", err.Error()))
	}
}

// supports reports whether the downstream resource may receive the event.
func (a *Adapter) supports(opcode uint16) bool {
	msg, ok := a.iface.Event(opcode)
	return ok && a.resource != nil && msg.Available(a.resource.Version)
}

func (a *Adapter) traffic(dir trace.Direction, opcode uint16, args []wire.Arg) {
	m := a.session.mux
	label := metrics.DirectionRequest
	name := ""
	if dir == trace.Downstream {
		label = metrics.DirectionEvent
		if msg, ok := a.iface.Event(opcode); ok {
			name = msg.Name
		}
	} else if msg, ok := a.iface.Request(opcode); ok {
		name = msg.Name
	}
	m.metrics.MessagesTotal.WithLabelValues(a.iface.Name, label).Inc()

	if m.tracer.Active() {
		m.tracer.Publish(trace.Record{
			Time:      m.now(),
			Session:   a.session.id,
			Direction: dir,
			Interface: a.iface.Name,
			Object:    a.ID(),
			Message:   name + "(" + wire.Args(args).Format() + ")",
		})
	}
}

// objectArg encodes p as an object argument; nil encodes the null object.
func objectArg(p *client.Proxy) wire.Arg {
	if p == nil {
		return wire.Object(0)
	}
	return wire.Object(p.ID())
}

// forward returns a handler that passes the request arguments through.
// It must only be used for requests without object arguments.
func forward(opcode uint16) RequestFunc {
	return func(a *Adapter, args wire.Args) error {
		return a.request(opcode, args...)
	}
}

// relay returns a handler that passes the event arguments through. It must
// only be used for events without object or new_id arguments.
func relay(opcode uint16) EventFunc {
	return func(a *Adapter, ev *client.Event) {
		a.post(opcode, ev.Args...)
	}
}
