// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"encoding/binary"
	"slices"
	"strings"
	"testing"
)

func TestNegotiate(t *testing.T) {
	cases := []struct {
		iface     string
		requested uint32
		want      uint32
		ok        bool
	}{
		{iface: "wl_compositor", requested: 6, want: 6, ok: true},
		{iface: "wl_compositor", requested: 9, want: 6, ok: true},
		{iface: "wl_compositor", requested: 3, want: 3, ok: false},
		{iface: "wl_subcompositor", requested: 1, want: 1, ok: true},
		{iface: "wl_shm", requested: 2, want: 1, ok: true},
		{iface: "wl_seat", requested: 10, want: 9, ok: true},
		{iface: "wl_seat", requested: 4, want: 4, ok: false},
		{iface: "wl_output", requested: 4, want: 3, ok: true},
		{iface: "wl_output", requested: 2, want: 2, ok: false},
		{iface: "xdg_wm_base", requested: 7, want: 7, ok: true},
		{iface: "zwp_linux_dmabuf_v1", requested: 3, want: 3, ok: false},
		{iface: "wl_drm", requested: 2, want: 0, ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.iface, func(t *testing.T) {
			got, ok := Negotiate(tc.iface, tc.requested)
			if got != tc.want || ok != tc.ok {
				t.Errorf("Negotiate(%s, %d) = %d, %v, want %d, %v", tc.iface, tc.requested, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestAdvertised(t *testing.T) {
	cases := []struct {
		iface    string
		upstream uint32
		want     uint32
	}{
		{iface: "wl_compositor", upstream: 6, want: 6},
		{iface: "wl_compositor", upstream: 5, want: 5},
		{iface: "wl_seat", upstream: 10, want: 9},
		{iface: "xdg_wm_base", upstream: 6, want: 6},
		{iface: "zwp_linux_dmabuf_v1", upstream: 5, want: 5},
		{iface: "wl_output", upstream: 4, want: 3},
		{iface: "wl_drm", upstream: 2, want: 0},
	}

	for _, tc := range cases {
		if got := Advertised(tc.iface, tc.upstream); got != tc.want {
			t.Errorf("Advertised(%s, %d) = %d, want %d", tc.iface, tc.upstream, got, tc.want)
		}
	}
}

func TestDifference(t *testing.T) {
	cases := []struct {
		desc string
		a, b []uint32
		want []uint32
	}{
		{desc: "removed outputs", a: []uint32{1, 2, 3}, b: []uint32{2, 3, 4}, want: []uint32{1}},
		{desc: "added outputs", a: []uint32{2, 3, 4}, b: []uint32{1, 2, 3}, want: []uint32{4}},
		{desc: "identical", a: []uint32{1, 2}, b: []uint32{1, 2}, want: nil},
		{desc: "empty left", a: nil, b: []uint32{1}, want: nil},
		{desc: "empty right", a: []uint32{5, 9}, b: nil, want: []uint32{5, 9}},
		{desc: "disjoint", a: []uint32{1, 3, 5}, b: []uint32{2, 4}, want: []uint32{1, 3, 5}},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			if got := difference(tc.a, tc.b); !slices.Equal(got, tc.want) {
				t.Errorf("difference(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestFilterStates(t *testing.T) {
	encode := func(states ...uint32) []byte {
		b := make([]byte, 4*len(states))
		for i, s := range states {
			binary.NativeEndian.PutUint32(b[4*i:], s)
		}
		return b
	}

	cases := []struct {
		desc    string
		version uint32
		in      []byte
		want    []byte
	}{
		{desc: "version 1 drops tiling", version: 1, in: encode(1, 2, 5, 6), want: encode(1, 2)},
		{desc: "version 5 drops suspended", version: 5, in: encode(4, 5, 9), want: encode(4, 5)},
		{desc: "version 6 keeps suspended", version: 6, in: encode(9, 10), want: encode(9)},
		{desc: "version 7 keeps all", version: 7, in: encode(1, 9, 13), want: encode(1, 9, 13)},
		{desc: "empty", version: 7, in: nil, want: []byte{}},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			if got := filterStates(tc.in, tc.version); !slices.Equal(got, tc.want) {
				t.Errorf("filterStates() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", 200)
	if got := truncate(long); len(got) != maxNameLength {
		t.Errorf("len(truncate()) = %d, want %d", len(got), maxNameLength)
	}
	if got := truncate("Dell"); got != "Dell" {
		t.Errorf("truncate(Dell) = %q", got)
	}
}

func TestStrings(t *testing.T) {
	cases := []struct {
		got  string
		want string
	}{
		{got: Found.String(), want: "found"},
		{got: NotFound.String(), want: "not found"},
		{got: WrongType.String(), want: "wrong type"},
		{got: LookupResult(9).String(), want: "unknown"},
		{got: SeatCapabilitiesChanged.String(), want: "seat_capabilities"},
		{got: OutputsChanged.String(), want: "outputs"},
		{got: ChangeType(9).String(), want: "unknown"},
	}

	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("String() = %q, want %q", tc.got, tc.want)
		}
	}
}
