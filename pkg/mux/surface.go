// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"github.com/absmach/wlmux/pkg/client"
	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/wire"
)

func newSurface() *Adapter {
	a := newAdapter(protocol.Surface)
	a.handle(protocol.SurfaceAttach, attachSurface)
	a.handle(protocol.SurfaceDamage, forward(protocol.SurfaceDamage))
	a.handle(protocol.SurfaceFrame, func(a *Adapter, args wire.Args) error {
		_, err := a.spawn(protocol.SurfaceFrame, args.NewID(0), newCallback, wire.NewID(0))
		return err
	})
	a.handle(protocol.SurfaceSetOpaqueRegion, setRegion(protocol.SurfaceSetOpaqueRegion))
	a.handle(protocol.SurfaceSetInputRegion, setRegion(protocol.SurfaceSetInputRegion))
	a.handle(protocol.SurfaceCommit, forward(protocol.SurfaceCommit))
	a.handle(protocol.SurfaceSetBufferTransform, forward(protocol.SurfaceSetBufferTransform))
	a.handle(protocol.SurfaceSetBufferScale, forward(protocol.SurfaceSetBufferScale))
	a.handle(protocol.SurfaceDamageBuffer, forward(protocol.SurfaceDamageBuffer))
	a.handle(protocol.SurfaceOffset, forward(protocol.SurfaceOffset))

	a.on(protocol.SurfaceEnter, surfaceOutput(protocol.SurfaceEnter))
	a.on(protocol.SurfaceLeave, surfaceOutput(protocol.SurfaceLeave))
	a.on(protocol.SurfacePreferredBufferScale, relay(protocol.SurfacePreferredBufferScale))
	a.on(protocol.SurfacePreferredBufferTransform, relay(protocol.SurfacePreferredBufferTransform))
	return a
}

// attachSurface forwards attach. Compositors at version 5 and later reject
// a non-zero attach offset, so it is sent with offset instead when the
// client predates that rule.
func attachSurface(a *Adapter, args wire.Args) error {
	buffer, err := a.session.resolveNullable(args.Object(0), protocol.Buffer)
	if err != nil {
		return err
	}
	x, y := args.Int(1), args.Int(2)

	if a.proxy.Version() < protocol.SurfaceOffsetSince {
		return a.request(protocol.SurfaceAttach, objectArg(buffer), wire.Int(x), wire.Int(y))
	}
	if err := a.request(protocol.SurfaceAttach, objectArg(buffer), wire.Int(0), wire.Int(0)); err != nil {
		return err
	}
	if a.Version() < protocol.SurfaceOffsetSince && (x != 0 || y != 0) {
		return a.request(protocol.SurfaceOffset, wire.Int(x), wire.Int(y))
	}
	return nil
}

func setRegion(opcode uint16) RequestFunc {
	return func(a *Adapter, args wire.Args) error {
		region, err := a.session.resolveNullable(args.Object(0), protocol.Region)
		if err != nil {
			return err
		}
		return a.request(opcode, objectArg(region))
	}
}

func surfaceOutput(opcode uint16) EventFunc {
	return func(a *Adapter, ev *client.Event) {
		out, ok := a.session.downstream(ev.Object(0), protocol.Output)
		if !ok {
			a.session.mux.dropEvent(a.iface, ev)
			return
		}
		a.post(opcode, wire.Object(out.ID()))
	}
}
