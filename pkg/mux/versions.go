// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mux

import "github.com/absmach/wlmux/pkg/protocol"

// VersionRange is the span of versions a global is served at.
type VersionRange struct {
	Min uint32
	Max uint32
}

// Versions is the canonical per-interface version table. Clients hard-code
// these numbers when probing features, so they must not drift.
var Versions = map[string]VersionRange{
	protocol.Compositor.Name:    {Min: 4, Max: 6},
	protocol.Subcompositor.Name: {Min: 1, Max: 1},
	protocol.Shm.Name:           {Min: 1, Max: 1},
	protocol.Seat.Name:          {Min: 5, Max: 9},
	protocol.Output.Name:        {Min: 3, Max: 3},
	protocol.WmBase.Name:        {Min: 4, Max: 7},
	protocol.Dmabuf.Name:        {Min: 4, Max: 5},
}

// Negotiate returns the version served for a bind of iface at requested,
// or false when it falls below the minimum.
func Negotiate(iface string, requested uint32) (uint32, bool) {
	vr, ok := Versions[iface]
	if !ok {
		return 0, false
	}
	v := min(vr.Max, requested)
	return v, v >= vr.Min
}

// Advertised returns the version a global is advertised at for an upstream
// object of version upstream.
func Advertised(iface string, upstream uint32) uint32 {
	vr, ok := Versions[iface]
	if !ok {
		return 0
	}
	return min(vr.Max, upstream)
}
