// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mux_test

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"testing"

	"github.com/absmach/wlmux/pkg/client"
	"github.com/absmach/wlmux/pkg/handler"
	"github.com/absmach/wlmux/pkg/metrics"
	"github.com/absmach/wlmux/pkg/mux"
	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/server"
	"github.com/absmach/wlmux/pkg/wire"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"
)

var discard = slog.New(slog.DiscardHandler)

type call struct {
	iface   string
	request string
	args    wire.Args
}

// compositor is an upstream compositor that records every request and
// creates the objects factory requests ask for.
type compositor struct {
	t         *testing.T
	srv       *server.Display
	dpy       *client.Display
	reg       *client.Proxy
	calls     []call
	resources map[string][]*server.Resource
}

func newCompositor(t *testing.T) *compositor {
	t.Helper()

	srv, err := server.NewDisplay(server.Config{Logger: discard})
	if err != nil {
		t.Fatalf("NewDisplay() error = %v", err)
	}
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("Socketpair() error = %v", err)
	}
	if _, err := srv.CreateClient(fds[0]); err != nil {
		t.Fatalf("CreateClient() error = %v", err)
	}
	dpy, err := client.NewDisplay(fds[1])
	if err != nil {
		t.Fatalf("client.NewDisplay() error = %v", err)
	}
	reg, err := dpy.GetRegistry()
	if err != nil {
		t.Fatalf("GetRegistry() error = %v", err)
	}
	t.Cleanup(func() {
		dpy.Close()
		srv.Destroy()
	})
	return &compositor{
		t:         t,
		srv:       srv,
		dpy:       dpy,
		reg:       reg,
		resources: map[string][]*server.Resource{},
	}
}

// advertise creates a global and binds it from the upstream connection.
func (u *compositor) advertise(iface *protocol.Interface, version uint32) (*server.Global, *client.Proxy) {
	u.t.Helper()

	g, err := u.srv.CreateGlobal(iface, version, nil, func(c *server.Client, _ any, v, id uint32) {
		r, err := c.CreateResource(iface, v, id)
		if err != nil {
			u.t.Errorf("CreateResource(%s) error = %v", iface.Name, err)
			return
		}
		u.track(r)
	})
	if err != nil {
		u.t.Fatalf("CreateGlobal(%s) error = %v", iface.Name, err)
	}
	p, err := u.reg.Bind(g.Name, iface, version)
	if err != nil {
		u.t.Fatalf("Bind(%s) error = %v", iface.Name, err)
	}
	return g, p
}

func (u *compositor) track(r *server.Resource) {
	r.SetDispatcher(u.dispatch, nil)
	u.resources[r.Interface.Name] = append(u.resources[r.Interface.Name], r)
}

func (u *compositor) dispatch(r *server.Resource, opcode uint16, args wire.Args) error {
	msg, _ := r.Interface.Request(opcode)
	u.calls = append(u.calls, call{iface: r.Interface.Name, request: msg.Name, args: slices.Clone(args)})

	if msg.Destructor {
		r.Destroy()
		return nil
	}
	if msg.NewID == nil {
		return nil
	}
	for _, a := range args {
		if a.Type != wire.TypeNewID {
			continue
		}
		child, err := r.Client().CreateResource(msg.NewID, r.Version, a.Value)
		if err != nil {
			return err
		}
		u.track(child)
	}
	return nil
}

// last returns the newest live resource of iface.
func (u *compositor) last(iface *protocol.Interface) *server.Resource {
	u.t.Helper()

	rs := u.resources[iface.Name]
	for i := len(rs) - 1; i >= 0; i-- {
		if !rs[i].Destroyed() {
			return rs[i]
		}
	}
	u.t.Fatalf("no live %s upstream", iface.Name)
	return nil
}

// requests returns the request names received by objects of iface.
func (u *compositor) requests(iface *protocol.Interface) []string {
	var out []string
	for _, c := range u.calls {
		if c.iface == iface.Name {
			out = append(out, c.request)
		}
	}
	return out
}

// find returns the newest recorded call of iface.request.
func (u *compositor) find(iface *protocol.Interface, request string) (call, bool) {
	for i := len(u.calls) - 1; i >= 0; i-- {
		if c := u.calls[i]; c.iface == iface.Name && c.request == request {
			return c, true
		}
	}
	return call{}, false
}

// fakeContext serves the capabilities of a compositor to the multiplexer.
type fakeContext struct {
	compositor    *client.Proxy
	subcompositor *client.Proxy
	shm           *client.Proxy
	seat          *client.Proxy
	wm            *client.Proxy
	dmabuf        *client.Proxy

	caps      uint32
	seatName  string
	outputs   []mux.Output
	modifiers []mux.Modifier
	listeners []mux.Listener
}

func (f *fakeContext) Compositor() *client.Proxy    { return f.compositor }
func (f *fakeContext) SubCompositor() *client.Proxy { return f.subcompositor }
func (f *fakeContext) SharedMemory() *client.Proxy  { return f.shm }
func (f *fakeContext) Seat() *client.Proxy          { return f.seat }
func (f *fakeContext) WindowManager() *client.Proxy { return f.wm }
func (f *fakeContext) DmaBuffer() *client.Proxy     { return f.dmabuf }
func (f *fakeContext) SeatCapabilities() uint32     { return f.caps }
func (f *fakeContext) SeatName() string             { return f.seatName }
func (f *fakeContext) CountOutputs() int            { return len(f.outputs) }
func (f *fakeContext) Output(i int) mux.Output      { return f.outputs[i] }

func (f *fakeContext) CountDmaBufferModifiers() int { return len(f.modifiers) }

func (f *fakeContext) DmaBufferModifier(i int) (mux.Modifier, bool) {
	if i < 0 || i >= len(f.modifiers) {
		return mux.Modifier{}, false
	}
	return f.modifiers[i], true
}

func (f *fakeContext) AddListener(l mux.Listener) bool {
	if slices.Contains(f.listeners, l) {
		return false
	}
	f.listeners = append(f.listeners, l)
	return true
}

func (f *fakeContext) RemoveListener(l mux.Listener) bool {
	n := len(f.listeners)
	f.listeners = slices.DeleteFunc(f.listeners, func(o mux.Listener) bool { return o == l })
	return len(f.listeners) != n
}

func (f *fakeContext) notify(t mux.ChangeType) {
	for _, l := range slices.Clone(f.listeners) {
		l.ContextChanged(t)
	}
}

type recorder struct {
	handler.NoopHandler
	opened  []string
	closed  []string
	binds   []string
	added   []handler.Global
	removed []handler.Global
	errs    []error
}

func (r *recorder) OnSessionOpen(ctx context.Context, hctx *handler.Context) error {
	r.opened = append(r.opened, hctx.SessionID)
	return nil
}

func (r *recorder) OnSessionClose(ctx context.Context, hctx *handler.Context) error {
	r.closed = append(r.closed, hctx.SessionID)
	return nil
}

func (r *recorder) OnBind(ctx context.Context, hctx *handler.Context, iface string, version uint32) error {
	r.binds = append(r.binds, fmt.Sprintf("%s@%d", iface, version))
	return nil
}

func (r *recorder) OnGlobalAdd(ctx context.Context, g handler.Global) error {
	r.added = append(r.added, g)
	return nil
}

func (r *recorder) OnGlobalRemove(ctx context.Context, g handler.Global) error {
	r.removed = append(r.removed, g)
	return nil
}

func (r *recorder) OnProtocolError(ctx context.Context, hctx *handler.Context, err error) error {
	r.errs = append(r.errs, err)
	return nil
}

type options struct {
	compositorVersion uint32
	outputs           int
	noDmabuf          bool
}

type harness struct {
	t       *testing.T
	up      *compositor
	cc      *fakeContext
	mux     *mux.Multiplexer
	handler *recorder
	metrics *metrics.Metrics
	peers   []*peer
}

func newHarness(t *testing.T, opts options) *harness {
	t.Helper()

	if opts.compositorVersion == 0 {
		opts.compositorVersion = 6
	}
	up := newCompositor(t)
	cc := &fakeContext{caps: protocol.SeatCapabilityPointer | protocol.SeatCapabilityKeyboard, seatName: "seat0"}
	_, cc.compositor = up.advertise(protocol.Compositor, opts.compositorVersion)
	_, cc.subcompositor = up.advertise(protocol.Subcompositor, 1)
	_, cc.shm = up.advertise(protocol.Shm, 1)
	_, cc.seat = up.advertise(protocol.Seat, 9)
	_, cc.wm = up.advertise(protocol.WmBase, 7)
	if !opts.noDmabuf {
		_, cc.dmabuf = up.advertise(protocol.Dmabuf, 5)
	}
	for i := range opts.outputs {
		cc.outputs = append(cc.outputs, up.output(i))
	}

	h := &harness{
		t:       t,
		up:      up,
		cc:      cc,
		handler: &recorder{},
		metrics: metrics.New("test", prometheus.NewRegistry()),
	}
	h.mux = mux.New(mux.Config{Logger: discard, Handler: h.handler, Metrics: h.metrics})
	if _, err := h.mux.Startup(context.Background(), cc); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	t.Cleanup(h.mux.Shutdown)
	return h
}

// output advertises an upstream output and describes it.
func (u *compositor) output(i int) mux.Output {
	_, p := u.advertise(protocol.Output, 3)
	return mux.Output{
		Handle:       p,
		ScaleFactor:  1,
		X:            int32(1920 * i),
		Width:        1920,
		Height:       1080,
		RefreshRate:  60000,
		Manufacturer: "ACME",
		Model:        fmt.Sprintf("Panel %d", i),
	}
}

// pump shuttles messages between the clients, the multiplexer and the
// upstream compositor until everybody is quiet.
func (h *harness) pump() {
	h.t.Helper()
	for range 6 {
		for _, p := range h.peers {
			p.dpy.Flush()
		}
		if err := h.mux.Dispatch(); err != nil {
			h.t.Fatalf("Dispatch() error = %v", err)
		}
		h.up.dpy.Flush()
		if err := h.up.srv.Dispatch(); err != nil {
			h.t.Fatalf("upstream Dispatch() error = %v", err)
		}
		h.up.srv.FlushClients()
		h.up.dpy.ReadEvents()
		h.up.dpy.DispatchPending()
		h.mux.Flush()
		for _, p := range h.peers {
			p.dpy.ReadEvents()
			p.dpy.DispatchPending()
		}
	}
}

// peer is an in-process client of the multiplexer.
type peer struct {
	h       *harness
	dpy     *client.Display
	reg     *client.Proxy
	globals map[string][]uint32
	removed []uint32
}

func (h *harness) connect() *peer {
	h.t.Helper()

	dpy, err := h.mux.OpenClientConnection()
	if err != nil {
		h.t.Fatalf("OpenClientConnection() error = %v", err)
	}
	reg, err := dpy.GetRegistry()
	if err != nil {
		h.t.Fatalf("GetRegistry() error = %v", err)
	}
	p := &peer{h: h, dpy: dpy, reg: reg, globals: map[string][]uint32{}}
	reg.SetHandler(func(ev *client.Event) {
		switch ev.Opcode {
		case protocol.RegistryGlobal:
			name, iface := ev.Args.Uint(0), ev.Args.String(1)
			p.globals[iface] = append(p.globals[iface], name)
		case protocol.RegistryGlobalRemove:
			name := ev.Args.Uint(0)
			p.removed = append(p.removed, name)
			for iface, names := range p.globals {
				p.globals[iface] = slices.DeleteFunc(names, func(n uint32) bool { return n == name })
			}
		}
	})
	h.peers = append(h.peers, p)
	h.pump()
	return p
}

// bind binds the first global of iface at version.
func (p *peer) bind(iface *protocol.Interface, version uint32) *client.Proxy {
	p.h.t.Helper()

	names := p.globals[iface.Name]
	if len(names) == 0 {
		p.h.t.Fatalf("no %s global advertised", iface.Name)
	}
	return p.bindName(names[0], iface, version)
}

func (p *peer) bindName(name uint32, iface *protocol.Interface, version uint32) *client.Proxy {
	p.h.t.Helper()

	obj, err := p.reg.Bind(name, iface, version)
	if err != nil {
		p.h.t.Fatalf("Bind(%s) error = %v", iface.Name, err)
	}
	p.h.pump()
	return obj
}

// create sends a factory request and pumps.
func (p *peer) create(obj *client.Proxy, opcode uint16, args ...wire.Arg) *client.Proxy {
	p.h.t.Helper()

	child, err := obj.Create(opcode, args...)
	if err != nil {
		p.h.t.Fatalf("Create(%s, %d) error = %v", obj, opcode, err)
	}
	p.h.pump()
	return child
}

// request sends a plain request and pumps.
func (p *peer) request(obj *client.Proxy, opcode uint16, args ...wire.Arg) {
	p.h.t.Helper()

	if err := obj.Request(opcode, args...); err != nil {
		p.h.t.Fatalf("Request(%s, %d) error = %v", obj, opcode, err)
	}
	p.h.pump()
}

// session returns the multiplexer session of p.
func (p *peer) session() *mux.Session {
	p.h.t.Helper()

	for _, s := range p.h.mux.Sessions() {
		if s.Peer() == p.dpy {
			return s
		}
	}
	p.h.t.Fatal("no session for peer")
	return nil
}

// events collects the events delivered to obj.
type events struct {
	got []*client.Event
}

func (e *events) listen(obj *client.Proxy) {
	obj.SetHandler(func(ev *client.Event) {
		e.got = append(e.got, ev)
	})
}

func (e *events) names() []string {
	out := make([]string, 0, len(e.got))
	for _, ev := range e.got {
		out = append(out, ev.Message.Name)
	}
	return out
}

func (e *events) count(name string) int {
	n := 0
	for _, ev := range e.got {
		if ev.Message.Name == name {
			n++
		}
	}
	return n
}

func (e *events) reset() {
	e.got = nil
}
