// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"errors"
	"testing"

	"github.com/absmach/wlmux/pkg/client"
	wlerrors "github.com/absmach/wlmux/pkg/errors"
	"github.com/absmach/wlmux/pkg/protocol"
	"golang.org/x/sys/unix"
)

func newDisplay(t *testing.T) *client.Display {
	t.Helper()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("Socketpair() error = %v", err)
	}
	t.Cleanup(func() { unix.Close(fds[0]) })
	dpy, err := client.NewDisplay(fds[1])
	if err != nil {
		t.Fatalf("NewDisplay() error = %v", err)
	}
	t.Cleanup(func() { dpy.Close() })
	return dpy
}

func TestSetUpstreamProxy(t *testing.T) {
	dpy := newDisplay(t)
	surface := dpy.CreateProxy(protocol.Surface, 6)
	region := dpy.CreateProxy(protocol.Region, 1)

	cases := []struct {
		desc     string
		proxy    *client.Proxy
		twice    bool
		err      error
		disabled bool
	}{
		{desc: "matching proxy", proxy: surface},
		{desc: "nil proxy", proxy: nil, disabled: true},
		{desc: "wrong interface", proxy: region, err: wlerrors.ErrWrongType, disabled: true},
		{desc: "second call", proxy: surface, twice: true, err: wlerrors.ErrInvalidArgument},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			a := newSurface()
			if tc.twice {
				if err := a.SetUpstreamProxy(tc.proxy, false); err != nil {
					t.Fatalf("first SetUpstreamProxy() error = %v", err)
				}
			}
			err := a.SetUpstreamProxy(tc.proxy, false)
			if !errors.Is(err, tc.err) {
				t.Errorf("SetUpstreamProxy() error = %v, want %v", err, tc.err)
			}
			if a.Disabled() != tc.disabled {
				t.Errorf("Disabled() = %v, want %v", a.Disabled(), tc.disabled)
			}
		})
	}
}

func TestAdapterDestroy(t *testing.T) {
	dpy := newDisplay(t)

	cases := []struct {
		desc  string
		iface *protocol.Interface
		build func() *Adapter
		owned bool
		alive bool
	}{
		{desc: "owned surface", iface: protocol.Surface, build: newSurface, owned: true},
		{desc: "owned callback without destructor", iface: protocol.Callback, build: newCallback, owned: true},
		{desc: "shared compositor", iface: protocol.Compositor, build: newCompositor, alive: true},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			p := dpy.CreateProxy(tc.iface, 1)
			a := tc.build()
			if err := a.SetUpstreamProxy(p, tc.owned); err != nil {
				t.Fatalf("SetUpstreamProxy() error = %v", err)
			}

			a.Destroy()
			a.Destroy()

			if !a.Destroyed() {
				t.Error("Destroyed() = false")
			}
			if a.Proxy() != nil {
				t.Error("Proxy() not cleared")
			}
			if p.Alive() != tc.alive {
				t.Errorf("upstream proxy alive = %v, want %v", p.Alive(), tc.alive)
			}
		})
	}
}

func TestDisabledAdapter(t *testing.T) {
	a := newSurface()
	if err := a.SetUpstreamProxy(nil, true); err != nil {
		t.Fatalf("SetUpstreamProxy(nil) error = %v", err)
	}
	if a.ID() != 0 || a.Version() != 0 {
		t.Errorf("unattached adapter has id %d version %d", a.ID(), a.Version())
	}
	a.Destroy()
	if !a.Destroyed() {
		t.Error("disabled adapter not destroyed")
	}
}

func TestFactories(t *testing.T) {
	for name, build := range factories {
		a := build()
		if a.Interface().Name != name {
			t.Errorf("factory for %s builds %s adapters", name, a.Interface().Name)
		}
		if _, ok := protocol.Lookup(name); !ok {
			t.Errorf("factory for unknown interface %s", name)
		}
	}
}
