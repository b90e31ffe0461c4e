// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"github.com/absmach/wlmux/pkg/client"
	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/wire"
)

// factories builds an adapter per interface for NewAdapter.
var factories = map[string]func() *Adapter{
	protocol.Compositor.Name:     newCompositor,
	protocol.Subcompositor.Name:  newSubcompositor,
	protocol.Subsurface.Name:     newSubsurface,
	protocol.Region.Name:         newRegion,
	protocol.Callback.Name:       newCallback,
	protocol.Surface.Name:        newSurface,
	protocol.Shm.Name:            newShm,
	protocol.ShmPool.Name:        newShmPool,
	protocol.Buffer.Name:         newBuffer,
	protocol.Seat.Name:           newSeat,
	protocol.Pointer.Name:        newPointer,
	protocol.Keyboard.Name:       newKeyboard,
	protocol.Touch.Name:          newTouch,
	protocol.Output.Name:         newOutput,
	protocol.WmBase.Name:         newWmBase,
	protocol.Positioner.Name:     newPositioner,
	protocol.XdgSurface.Name:     newXdgSurface,
	protocol.Toplevel.Name:       newToplevel,
	protocol.Popup.Name:          newPopup,
	protocol.Dmabuf.Name:         newDmabuf,
	protocol.BufferParams.Name:   newBufferParams,
	protocol.DmabufFeedback.Name: newFeedback,
}

func newCompositor() *Adapter {
	a := newAdapter(protocol.Compositor)
	a.wrap = true
	a.handle(protocol.CompositorCreateSurface, func(a *Adapter, args wire.Args) error {
		_, err := a.spawn(protocol.CompositorCreateSurface, args.NewID(0), newSurface, wire.NewID(0))
		return err
	})
	a.handle(protocol.CompositorCreateRegion, func(a *Adapter, args wire.Args) error {
		_, err := a.spawn(protocol.CompositorCreateRegion, args.NewID(0), newRegion, wire.NewID(0))
		return err
	})
	return a
}

func newRegion() *Adapter {
	a := newAdapter(protocol.Region)
	a.handle(protocol.RegionAdd, forward(protocol.RegionAdd))
	a.handle(protocol.RegionSubtract, forward(protocol.RegionSubtract))
	return a
}

// newCallback relays done and then destroys the downstream callback, which
// the compositor has already destroyed on its side.
func newCallback() *Adapter {
	a := newAdapter(protocol.Callback)
	a.on(protocol.CallbackDone, func(a *Adapter, ev *client.Event) {
		a.post(protocol.CallbackDone, ev.Args...)
		a.session.RemoveAdapter(a)
	})
	return a
}

func newSubcompositor() *Adapter {
	a := newAdapter(protocol.Subcompositor)
	a.wrap = true
	a.handle(protocol.SubcompositorGetSubsurface, func(a *Adapter, args wire.Args) error {
		surface, err := a.session.resolve(args.Object(1), protocol.Surface)
		if err != nil {
			return err
		}
		parent, err := a.session.resolve(args.Object(2), protocol.Surface)
		if err != nil {
			return err
		}
		_, err = a.spawn(protocol.SubcompositorGetSubsurface, args.NewID(0), newSubsurface,
			wire.NewID(0), objectArg(surface), objectArg(parent))
		return err
	})
	return a
}

func newSubsurface() *Adapter {
	a := newAdapter(protocol.Subsurface)
	a.handle(protocol.SubsurfaceSetPosition, forward(protocol.SubsurfaceSetPosition))
	a.handle(protocol.SubsurfacePlaceAbove, placeSubsurface(protocol.SubsurfacePlaceAbove))
	a.handle(protocol.SubsurfacePlaceBelow, placeSubsurface(protocol.SubsurfacePlaceBelow))
	a.handle(protocol.SubsurfaceSetSync, forward(protocol.SubsurfaceSetSync))
	a.handle(protocol.SubsurfaceSetDesync, forward(protocol.SubsurfaceSetDesync))
	return a
}

func placeSubsurface(opcode uint16) RequestFunc {
	return func(a *Adapter, args wire.Args) error {
		sibling, err := a.session.resolve(args.Object(0), protocol.Surface)
		if err != nil {
			return err
		}
		return a.request(opcode, objectArg(sibling))
	}
}
