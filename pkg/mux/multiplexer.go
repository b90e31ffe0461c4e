// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package mux shares one upstream Wayland connection between many clients.
//
// The Multiplexer runs a private display. Every object a client creates or
// binds on it is paired by an Adapter with an object on the upstream
// connection; requests are forwarded upstream and events downstream. The
// Registry advertises the upstream capabilities as globals and follows
// output hotplug and seat changes.
//
// Nothing in this package is safe for concurrent use. The embedder polls
// the descriptor returned by Startup and calls Dispatch and Flush from the
// goroutine that also dispatches the upstream connection.
package mux

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/absmach/wlmux/pkg/client"
	wlerrors "github.com/absmach/wlmux/pkg/errors"
	"github.com/absmach/wlmux/pkg/handler"
	"github.com/absmach/wlmux/pkg/metrics"
	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/server"
	"github.com/absmach/wlmux/pkg/trace"
	"github.com/absmach/wlmux/pkg/wire"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"
)

// Config holds the multiplexer configuration.
type Config struct {
	// Logger for lifecycle and per-message events
	Logger *slog.Logger

	// Queue receives the events of upstream objects created for clients.
	// When nil they land on the default queue of their display and the
	// embedder dispatches them.
	Queue *client.Queue

	// Handler is notified of session, bind and global events
	Handler handler.Handler

	// Metrics instrumentation; a private registry is used when nil
	Metrics *metrics.Metrics

	// Tracer receives forwarded messages when it has subscribers
	Tracer *trace.Hub
}

// Multiplexer owns the private display and the sessions of its clients.
type Multiplexer struct {
	config  Config
	logger  *slog.Logger
	handler handler.Handler
	metrics *metrics.Metrics
	tracer  *trace.Hub
	queue   *client.Queue
	now     func() time.Time

	ctx      context.Context
	cc       ClientContext
	display  *server.Display
	registry *Registry
	sessions []*Session
	started  bool
}

// New creates a multiplexer. Startup must be called before use.
func New(cfg Config) *Multiplexer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Handler == nil {
		cfg.Handler = &handler.NoopHandler{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New("wlmux", prometheus.NewRegistry())
	}
	return &Multiplexer{
		config:  cfg,
		logger:  cfg.Logger,
		handler: cfg.Handler,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
		queue:   cfg.Queue,
		now:     time.Now,
		ctx:     context.Background(),
	}
}

// Startup creates the display, advertises the capabilities of cc and
// returns the descriptor to poll before calling Dispatch.
func (m *Multiplexer) Startup(ctx context.Context, cc ClientContext) (int, error) {
	if m.started {
		return -1, wlerrors.ErrAlreadyStarted
	}
	if cc == nil {
		return -1, fmt.Errorf("%w: nil client context", wlerrors.ErrInvalidArgument)
	}

	display, err := server.NewDisplay(server.Config{Logger: m.logger})
	if err != nil {
		return -1, fmt.Errorf("failed to create display: %w", err)
	}

	m.ctx = ctx
	m.cc = cc
	m.display = display
	m.registry = newRegistry(m)
	if err := m.registry.Startup(); err != nil {
		display.Destroy()
		m.display = nil
		m.registry = nil
		return -1, err
	}
	m.started = true

	m.logger.Info("multiplexer started", slog.Int("globals", len(display.Globals())))
	return display.FD(), nil
}

// Shutdown closes every session, withdraws the globals and destroys the
// display. It does nothing when not started.
func (m *Multiplexer) Shutdown() {
	if !m.started {
		return
	}

	for _, s := range slices.Clone(m.sessions) {
		m.closeSession(s)
	}
	m.registry.Shutdown()
	m.display.Destroy()

	m.display = nil
	m.registry = nil
	m.cc = nil
	m.started = false
	m.logger.Info("multiplexer stopped")
}

// IsStarted reports whether Startup succeeded and Shutdown has not run.
func (m *Multiplexer) IsStarted() bool {
	return m.started
}

// Registry returns the global registry, nil when not started.
func (m *Multiplexer) Registry() *Registry {
	return m.registry
}

// Dispatch performs one non-blocking pass over client requests, then runs
// the upstream events waiting on the configured queue.
func (m *Multiplexer) Dispatch() error {
	if !m.started {
		return wlerrors.ErrNotStarted
	}
	return m.metrics.ObserveDispatch(func() error {
		err := m.display.Dispatch()
		if m.queue != nil {
			m.queue.DispatchPending()
		}
		return err
	})
}

// Flush sends queued events to every client and, with a private queue,
// queued requests to the upstream compositor.
func (m *Multiplexer) Flush() error {
	if !m.started {
		return wlerrors.ErrNotStarted
	}
	m.display.FlushClients()
	if m.queue != nil {
		return m.queue.Display().Flush()
	}
	return nil
}

// SetQueue moves the events of every client object to q.
func (m *Multiplexer) SetQueue(q *client.Queue) {
	m.queue = q
	for _, s := range m.sessions {
		for _, a := range s.Adapters() {
			a.requeue(q)
		}
	}
}

// OpenClientConnection connects a new in-process client and returns its
// display handle. Nothing is registered when any step fails.
func (m *Multiplexer) OpenClientConnection() (*client.Display, error) {
	if !m.started {
		return nil, wlerrors.ErrNotStarted
	}

	c, peerFD, err := m.connect()
	if err != nil {
		return nil, err
	}
	peer, err := client.NewDisplay(peerFD)
	if err != nil {
		c.Destroy()
		unix.Close(peerFD)
		return nil, fmt.Errorf("failed to create peer display: %w", err)
	}

	m.openSession(c, peer)
	return peer, nil
}

// OpenClientSocket connects a new client whose end of the socket is handed
// to the caller, typically for a child process. The session closes itself
// when that client disconnects.
func (m *Multiplexer) OpenClientSocket() (*Session, *wire.FD, error) {
	if !m.started {
		return nil, nil, wlerrors.ErrNotStarted
	}

	c, peerFD, err := m.connect()
	if err != nil {
		return nil, nil, err
	}
	s := m.openSession(c, nil)
	return s, wire.NewFD(peerFD), nil
}

func (m *Multiplexer) connect() (*server.Client, int, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, -1, fmt.Errorf("failed to create socket pair: %w", err)
	}
	c, err := m.display.CreateClient(fds[0])
	if err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, -1, fmt.Errorf("failed to create client: %w", err)
	}
	return c, fds[1], nil
}

func (m *Multiplexer) openSession(c *server.Client, peer *client.Display) *Session {
	s := &Session{
		id:       uuid.New().String(),
		mux:      m,
		client:   c,
		peer:     peer,
		adapters: make(map[uint32]*Adapter),
	}
	s.hctx = &handler.Context{SessionID: s.id}
	if pid, uid, gid, err := c.Credentials(); err == nil {
		s.hctx.PID, s.hctx.UID, s.hctx.GID = pid, uid, gid
	}

	c.AddDestroyListener(func(*server.Client) { m.clientGone(s) })
	m.sessions = append(m.sessions, s)

	m.metrics.ActiveSessions.Inc()
	m.metrics.SessionsTotal.WithLabelValues("opened").Inc()
	m.logger.Info("session opened", slog.String("session", s.id), slog.Bool("in_process", peer != nil))
	if err := m.handler.OnSessionOpen(m.ctx, s.hctx); err != nil {
		m.logger.Warn("session open handler failed", slog.String("session", s.id), slog.String("error", err.Error()))
	}
	return s
}

// clientGone runs once the runtime destroyed the client of s. Socket
// sessions end with their client; in-process sessions stay registered until
// CloseClientConnection so the embedder's handle keeps resolving.
func (m *Multiplexer) clientGone(s *Session) {
	if s.peer == nil {
		m.closeSession(s)
		return
	}
	m.logger.Debug("in-process client disconnected", slog.String("session", s.id))
}

// CloseClientConnection closes the session whose peer display is peer and
// reports whether one existed.
func (m *Multiplexer) CloseClientConnection(peer *client.Display) bool {
	s := m.sessionByPeer(peer)
	if s == nil {
		return false
	}
	m.closeSession(s)
	return true
}

// CloseSession closes s and reports whether it was open.
func (m *Multiplexer) CloseSession(s *Session) bool {
	if s == nil || s.closed || !slices.Contains(m.sessions, s) {
		return false
	}
	m.closeSession(s)
	return true
}

func (m *Multiplexer) closeSession(s *Session) {
	if s.closed {
		return
	}
	s.closed = true

	// Destroying the client releases every resource and, through the
	// destroy hooks, every adapter.
	s.client.Destroy()
	for _, a := range s.Adapters() {
		s.RemoveAdapter(a)
	}
	if s.peer != nil {
		s.peer.Close()
	}
	m.sessions = slices.DeleteFunc(m.sessions, func(o *Session) bool { return o == s })

	m.metrics.ActiveSessions.Dec()
	m.metrics.SessionsTotal.WithLabelValues("closed").Inc()
	m.logger.Info("session closed", slog.String("session", s.id))
	if err := m.handler.OnSessionClose(m.ctx, s.hctx); err != nil {
		m.logger.Warn("session close handler failed", slog.String("session", s.id), slog.String("error", err.Error()))
	}
}

// CountActiveClients returns the number of open sessions.
func (m *Multiplexer) CountActiveClients() int {
	return len(m.sessions)
}

// Sessions returns the open sessions in creation order.
func (m *Multiplexer) Sessions() []*Session {
	return slices.Clone(m.sessions)
}

func (m *Multiplexer) sessionByPeer(peer *client.Display) *Session {
	if peer == nil {
		return nil
	}
	for _, s := range m.sessions {
		if s.peer == peer {
			return s
		}
	}
	return nil
}

func (m *Multiplexer) sessionFor(c *server.Client) *Session {
	for _, s := range m.sessions {
		if s.client == c && !s.closed {
			return s
		}
	}
	return nil
}

// NewAdapter builds the adapter for an existing upstream object, to be
// handed to CreateProxy. The caller keeps ownership of p. Unless p is one
// of the ClientContext globals, the adapter relays its events.
func (m *Multiplexer) NewAdapter(p *client.Proxy) (*Adapter, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil proxy", wlerrors.ErrInvalidArgument)
	}
	build, ok := factories[p.Interface().Name]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for %s", wlerrors.ErrInvalidArgument, p.Interface().Name)
	}
	a := build()
	a.shared = m.shared(p)
	if err := a.SetUpstreamProxy(p, false); err != nil {
		return nil, err
	}
	return a, nil
}

// shared reports whether p is an upstream global served by the
// ClientContext, whose events the context handles itself.
func (m *Multiplexer) shared(p *client.Proxy) bool {
	cc := m.cc
	if cc == nil || p == nil {
		return false
	}
	switch p {
	case cc.Compositor(), cc.SubCompositor(), cc.SharedMemory(), cc.Seat(), cc.WindowManager(), cc.DmaBuffer():
		return true
	}
	for i := range cc.CountOutputs() {
		if cc.Output(i).Handle == p {
			return true
		}
	}
	return false
}

// CreateProxy creates a downstream object for the upstream object on the
// session of peer and returns the peer's proxy for it. a serves the new
// object at the version of object; it is destroyed on any failure.
func (m *Multiplexer) CreateProxy(peer *client.Display, object *client.Proxy, a *Adapter) (*client.Proxy, error) {
	if peer == nil || object == nil || a == nil {
		if a != nil {
			a.Destroy()
		}
		return nil, fmt.Errorf("%w: nil display, object or adapter", wlerrors.ErrInvalidArgument)
	}
	s := m.sessionByPeer(peer)
	if s == nil || s.closed {
		a.Destroy()
		return nil, wlerrors.ErrSessionNotFound
	}
	if a.proxy == nil && !a.bound {
		a.shared = m.shared(object)
		if err := a.SetUpstreamProxy(object, false); err != nil {
			a.Destroy()
			return nil, err
		}
	}

	p := peer.CreateProxy(a.iface, object.Version())
	if err := s.AddAdapterVersion(a, object.Version(), p.ID()); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

// DestroyProxy forgets a proxy returned by CreateProxy on the peer side.
func (m *Multiplexer) DestroyProxy(p *client.Proxy) {
	if p != nil {
		p.Destroy()
	}
}

func (m *Multiplexer) dropEvent(iface *protocol.Interface, ev *client.Event) {
	m.metrics.DroppedEvents.WithLabelValues(iface.Name).Inc()
	if ev.NewProxy != nil {
		// Nobody will own the object the event created.
		if op, ok := ev.NewProxy.Interface().Destructor(ev.NewProxy.Version()); ok {
			ev.NewProxy.Request(op)
		} else {
			ev.NewProxy.Destroy()
		}
	}
	m.logger.Debug("event dropped", slog.String("event", iface.Name+"."+ev.Message.Name))
}

func (m *Multiplexer) protocolError(s *Session, kind string, err error) {
	m.metrics.ProtocolErrors.WithLabelValues(kind).Inc()
	hctx := &handler.Context{}
	if s != nil {
		hctx = s.hctx
	}
	m.logger.Debug("protocol error", slog.String("kind", kind), slog.String("error", err.Error()))
	if herr := m.handler.OnProtocolError(m.ctx, hctx, err); herr != nil {
		m.logger.Warn("protocol error handler failed", slog.String("error", herr.Error()))
	}
}
