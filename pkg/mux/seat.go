// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"github.com/absmach/wlmux/pkg/client"
	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/wire"
)

func newSeat() *Adapter {
	a := newAdapter(protocol.Seat)
	a.wrap = true
	a.handle(protocol.SeatGetPointer, seatDevice(protocol.SeatGetPointer, newPointer))
	a.handle(protocol.SeatGetKeyboard, seatDevice(protocol.SeatGetKeyboard, newKeyboard))
	a.handle(protocol.SeatGetTouch, seatDevice(protocol.SeatGetTouch, newTouch))
	return a
}

func seatDevice(opcode uint16, build func() *Adapter) RequestFunc {
	return func(a *Adapter, args wire.Args) error {
		_, err := a.spawn(opcode, args.NewID(0), build, wire.NewID(0))
		return err
	}
}

func sendCapabilities(a *Adapter, caps uint32) {
	a.post(protocol.SeatCapabilities, wire.Uint(caps))
}

func sendSeatName(a *Adapter, name string) {
	a.post(protocol.SeatName, wire.String(name))
}

func newPointer() *Adapter {
	a := newAdapter(protocol.Pointer)
	a.handle(protocol.PointerSetCursor, func(a *Adapter, args wire.Args) error {
		surface, err := a.session.resolveNullable(args.Object(1), protocol.Surface)
		if err != nil {
			return err
		}
		return a.request(protocol.PointerSetCursor,
			wire.Uint(args.Uint(0)), objectArg(surface), wire.Int(args.Int(2)), wire.Int(args.Int(3)))
	})

	a.on(protocol.PointerEnter, func(a *Adapter, ev *client.Event) {
		surface, ok := a.session.downstream(ev.Object(1), protocol.Surface)
		if !ok {
			a.session.mux.dropEvent(a.iface, ev)
			return
		}
		a.post(protocol.PointerEnter, wire.Uint(ev.Args.Uint(0)), wire.Object(surface.ID()),
			wire.FixedArg(ev.Args.Fixed(2)), wire.FixedArg(ev.Args.Fixed(3)))
	})
	a.on(protocol.PointerLeave, func(a *Adapter, ev *client.Event) {
		surface, ok := a.session.downstream(ev.Object(1), protocol.Surface)
		if !ok {
			a.session.mux.dropEvent(a.iface, ev)
			return
		}
		a.post(protocol.PointerLeave, wire.Uint(ev.Args.Uint(0)), wire.Object(surface.ID()))
	})
	a.on(protocol.PointerMotion, relay(protocol.PointerMotion))
	a.on(protocol.PointerButton, relay(protocol.PointerButton))
	a.on(protocol.PointerAxis, relay(protocol.PointerAxis))
	a.on(protocol.PointerFrame, relay(protocol.PointerFrame))
	a.on(protocol.PointerAxisSource, relay(protocol.PointerAxisSource))
	a.on(protocol.PointerAxisStop, relay(protocol.PointerAxisStop))
	a.on(protocol.PointerAxisDiscrete, func(a *Adapter, ev *client.Event) {
		// Clients that understand value120 must not see both.
		if a.Version() >= protocol.PointerAxisValue120Since {
			return
		}
		a.post(protocol.PointerAxisDiscrete, ev.Args...)
	})
	a.on(protocol.PointerAxisValue120, func(a *Adapter, ev *client.Event) {
		if a.Version() >= protocol.PointerAxisValue120Since {
			a.post(protocol.PointerAxisValue120, ev.Args...)
			return
		}
		steps := ev.Args.Int(1) / 120
		if steps != 0 {
			a.post(protocol.PointerAxisDiscrete, wire.Uint(ev.Args.Uint(0)), wire.Int(steps))
		}
	})
	a.on(protocol.PointerAxisRelativeDirection, relay(protocol.PointerAxisRelativeDirection))
	return a
}

func newKeyboard() *Adapter {
	a := newAdapter(protocol.Keyboard)
	a.on(protocol.KeyboardKeymap, func(a *Adapter, ev *client.Event) {
		// Posting takes the descriptor; whatever is left is closed with
		// the event.
		a.post(protocol.KeyboardKeymap, wire.Uint(ev.Args.Uint(0)), wire.File(ev.Args.FD(1)), wire.Uint(ev.Args.Uint(2)))
	})
	a.on(protocol.KeyboardEnter, func(a *Adapter, ev *client.Event) {
		surface, ok := a.session.downstream(ev.Object(1), protocol.Surface)
		if !ok {
			a.session.mux.dropEvent(a.iface, ev)
			return
		}
		a.post(protocol.KeyboardEnter, wire.Uint(ev.Args.Uint(0)), wire.Object(surface.ID()), wire.Array(ev.Args.Array(2)))
	})
	a.on(protocol.KeyboardLeave, func(a *Adapter, ev *client.Event) {
		surface, ok := a.session.downstream(ev.Object(1), protocol.Surface)
		if !ok {
			a.session.mux.dropEvent(a.iface, ev)
			return
		}
		a.post(protocol.KeyboardLeave, wire.Uint(ev.Args.Uint(0)), wire.Object(surface.ID()))
	})
	a.on(protocol.KeyboardKey, func(a *Adapter, ev *client.Event) {
		state := ev.Args.Uint(3)
		if state == protocol.KeyStateRepeated && a.Version() < protocol.KeyStateRepeatedSince {
			state = protocol.KeyStatePressed
		}
		a.post(protocol.KeyboardKey, wire.Uint(ev.Args.Uint(0)), wire.Uint(ev.Args.Uint(1)),
			wire.Uint(ev.Args.Uint(2)), wire.Uint(state))
	})
	a.on(protocol.KeyboardModifiers, relay(protocol.KeyboardModifiers))
	a.on(protocol.KeyboardRepeatInfo, relay(protocol.KeyboardRepeatInfo))
	return a
}

func newTouch() *Adapter {
	a := newAdapter(protocol.Touch)
	a.on(protocol.TouchDown, func(a *Adapter, ev *client.Event) {
		surface, ok := a.session.downstream(ev.Object(2), protocol.Surface)
		if !ok {
			a.session.mux.dropEvent(a.iface, ev)
			return
		}
		a.post(protocol.TouchDown, wire.Uint(ev.Args.Uint(0)), wire.Uint(ev.Args.Uint(1)),
			wire.Object(surface.ID()), wire.Int(ev.Args.Int(3)),
			wire.FixedArg(ev.Args.Fixed(4)), wire.FixedArg(ev.Args.Fixed(5)))
	})
	a.on(protocol.TouchUp, relay(protocol.TouchUp))
	a.on(protocol.TouchMotion, relay(protocol.TouchMotion))
	a.on(protocol.TouchFrame, relay(protocol.TouchFrame))
	a.on(protocol.TouchCancel, relay(protocol.TouchCancel))
	a.on(protocol.TouchShape, relay(protocol.TouchShape))
	a.on(protocol.TouchOrientation, relay(protocol.TouchOrientation))
	return a
}
