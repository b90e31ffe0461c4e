// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client_test

import (
	"errors"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/wlmux/pkg/client"
	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/server"
	"github.com/absmach/wlmux/pkg/wire"
	"golang.org/x/sys/unix"
)

// serve runs srv on its own goroutine until the test ends. Globals must be
// created before calling it.
func serve(t *testing.T, srv *server.Display) {
	t.Helper()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			fds := []unix.PollFd{{Fd: int32(srv.FD()), Events: unix.POLLIN}}
			unix.Poll(fds, 10)
			srv.Dispatch()
			srv.FlushClients()
		}
	}()
	t.Cleanup(func() {
		close(stop)
		<-done
	})
}

func newServer(t *testing.T) *server.Display {
	t.Helper()

	srv, err := server.NewDisplay(server.Config{Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		t.Fatalf("NewDisplay() error = %v", err)
	}
	t.Cleanup(func() { srv.Destroy() })
	return srv
}

func connect(t *testing.T, srv *server.Display) *client.Display {
	t.Helper()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("Socketpair() error = %v", err)
	}
	if _, err := srv.CreateClient(fds[0]); err != nil {
		t.Fatalf("CreateClient() error = %v", err)
	}
	dpy, err := client.NewDisplay(fds[1])
	if err != nil {
		t.Fatalf("NewDisplay() error = %v", err)
	}
	dpy.SetTimeout(5 * time.Second)
	t.Cleanup(func() { dpy.Close() })
	return dpy
}

func bindAll(t *testing.T, dpy *client.Display, q *client.Queue) map[string]uint32 {
	t.Helper()

	reg, err := dpy.Proxy().Wrapper(q).Create(protocol.DisplayGetRegistry, wire.NewID(0))
	if err != nil {
		t.Fatalf("get_registry error = %v", err)
	}
	names := map[string]uint32{}
	reg.SetHandler(func(ev *client.Event) {
		if ev.Opcode == protocol.RegistryGlobal {
			names[ev.Args.String(1)] = ev.Args.Uint(0)
		}
	})
	if err := q.Roundtrip(); err != nil {
		t.Fatalf("Roundtrip() error = %v", err)
	}
	return names
}

func TestRoundtrip(t *testing.T) {
	srv := newServer(t)
	srv.CreateGlobal(protocol.Compositor, 4, nil, nil)
	srv.CreateGlobal(protocol.Shm, 1, nil, nil)
	dpy := connect(t, srv)
	serve(t, srv)

	names := bindAll(t, dpy, dpy.DefaultQueue())
	if len(names) != 2 {
		t.Errorf("globals = %v, want wl_compositor and wl_shm", names)
	}
	if err := dpy.Roundtrip(); err != nil {
		t.Errorf("second Roundtrip() error = %v", err)
	}
}

func TestPrivateQueue(t *testing.T) {
	srv := newServer(t)
	srv.CreateGlobal(protocol.Seat, 5, nil, func(c *server.Client, _ any, version, id uint32) {
		r, _ := c.CreateResource(protocol.Seat, version, id)
		r.PostEvent(protocol.SeatCapabilities, wire.Uint(protocol.SeatCapabilityPointer))
	})
	dpy := connect(t, srv)
	serve(t, srv)

	q := dpy.NewQueue()
	names := bindAll(t, dpy, q)

	reg, err := dpy.Proxy().Wrapper(q).Create(protocol.DisplayGetRegistry, wire.NewID(0))
	if err != nil {
		t.Fatalf("get_registry error = %v", err)
	}
	if reg.Queue() != q {
		t.Error("object created through a wrapper is not on the wrapper queue")
	}

	seat, err := reg.Bind(names["wl_seat"], protocol.Seat, 5)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	caps := uint32(0)
	seat.SetHandler(func(ev *client.Event) { caps = ev.Args.Uint(0) })

	if err := dpy.Roundtrip(); err != nil {
		t.Fatalf("Roundtrip() error = %v", err)
	}
	if caps != 0 {
		t.Fatal("private queue dispatched by the default roundtrip")
	}
	if q.Len() == 0 {
		t.Fatal("capabilities event not queued on the private queue")
	}
	if n := q.DispatchPending(); n == 0 {
		t.Error("DispatchPending() ran no handlers")
	}
	if caps != protocol.SeatCapabilityPointer {
		t.Errorf("capabilities = %d, want %d", caps, protocol.SeatCapabilityPointer)
	}
}

func TestSetQueue(t *testing.T) {
	srv := newServer(t)
	var seatRes *server.Resource
	srv.CreateGlobal(protocol.Seat, 5, nil, func(c *server.Client, _ any, version, id uint32) {
		seatRes, _ = c.CreateResource(protocol.Seat, version, id)
	})
	dpy := connect(t, srv)

	names := map[string]uint32{}
	reg, _ := dpy.GetRegistry()
	reg.SetHandler(func(ev *client.Event) { names[ev.Args.String(1)] = ev.Args.Uint(0) })
	pumpDirect(t, srv, dpy)

	seat, err := reg.Bind(names["wl_seat"], protocol.Seat, 5)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	got := ""
	seat.SetHandler(func(ev *client.Event) { got = ev.Args.String(0) })
	pumpDirect(t, srv, dpy)

	q := dpy.NewQueue()
	seat.SetQueue(q)
	seatRes.PostEvent(protocol.SeatName, wire.String("seat0"))
	pumpDirect(t, srv, dpy)

	if got != "" {
		t.Fatal("event dispatched from the default queue after SetQueue")
	}
	q.DispatchPending()
	if got != "seat0" {
		t.Errorf("seat name = %q, want seat0", got)
	}
}

func pumpDirect(t *testing.T, srv *server.Display, dpy *client.Display) {
	t.Helper()
	for i := 0; i < 4; i++ {
		dpy.Flush()
		if err := srv.Dispatch(); err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
		srv.FlushClients()
		dpy.ReadEvents()
		dpy.DispatchPending()
	}
}

func TestRequestChecks(t *testing.T) {
	srv := newServer(t)
	dpy := connect(t, srv)

	surf := dpy.CreateProxy(protocol.Surface, 4)
	old := dpy.CreateProxy(protocol.Surface, 4)
	old.Destroy()
	wrapper := surf.Wrapper(nil)
	wrapper.DestroyWrapper()

	cases := []struct {
		desc  string
		proxy *client.Proxy
		op    uint16
		err   error
	}{
		{desc: "request above version", proxy: surf, op: protocol.SurfaceOffset, err: client.ErrUnsupported},
		{desc: "request on destroyed proxy", proxy: old, op: protocol.SurfaceCommit, err: client.ErrProxyDestroyed},
		{desc: "request on released wrapper", proxy: wrapper, op: protocol.SurfaceCommit, err: client.ErrProxyDestroyed},
		{desc: "unknown opcode", proxy: surf, op: 42, err: wire.ErrSignature},
		{desc: "valid request", proxy: surf, op: protocol.SurfaceCommit},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.proxy.Request(tc.op)
			if !errors.Is(err, tc.err) {
				t.Errorf("Request() error = %v, want %v", err, tc.err)
			}
		})
	}

	if _, err := surf.Create(protocol.SurfaceCommit); !errors.Is(err, client.ErrNotFactory) {
		t.Errorf("Create(commit) error = %v, want %v", err, client.ErrNotFactory)
	}
}

func TestDestructorRequest(t *testing.T) {
	srv := newServer(t)
	dpy := connect(t, srv)

	region := dpy.CreateProxy(protocol.Region, 1)
	if err := region.Request(protocol.RegionDestroy); err != nil {
		t.Fatalf("destroy error = %v", err)
	}
	if region.Alive() {
		t.Error("proxy alive after destructor request")
	}
	if dpy.Lookup(region.ID()) != nil {
		t.Error("Lookup() found a destroyed proxy")
	}
}

func TestDisconnect(t *testing.T) {
	srv := newServer(t)
	dpy := connect(t, srv)

	srv.DestroyClients()
	err := dpy.ReadEvents()
	if !errors.Is(err, client.ErrDisconnected) {
		t.Errorf("ReadEvents() error = %v, want %v", err, client.ErrDisconnected)
	}
	if err := dpy.Flush(); !errors.Is(err, client.ErrDisconnected) {
		t.Errorf("Flush() error = %v, want the sticky disconnect error", err)
	}
}

func TestConnect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wayland-test")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	cases := []struct {
		desc    string
		runtime string
		name    string
		err     error
	}{
		{desc: "relative name", runtime: dir, name: "wayland-test"},
		{desc: "absolute name", runtime: "", name: path},
		{desc: "missing runtime dir", runtime: "", name: "wayland-test", err: client.ErrNoRuntimeDir},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Setenv("WAYLAND_SOCKET", "")
			t.Setenv("XDG_RUNTIME_DIR", tc.runtime)
			dpy, err := client.Connect(tc.name)
			if !errors.Is(err, tc.err) {
				t.Fatalf("Connect() error = %v, want %v", err, tc.err)
			}
			if dpy != nil {
				dpy.Close()
			}
		})
	}
}

func TestProtocolErrorString(t *testing.T) {
	err := &client.ProtocolError{ObjectID: 3, Interface: "wl_seat", Code: 3, Message: "boom"}
	want := "protocol error 3 on wl_seat@3: boom"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
