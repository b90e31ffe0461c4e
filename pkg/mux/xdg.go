// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"encoding/binary"
	"log/slog"

	"github.com/absmach/wlmux/pkg/client"
	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/wire"
)

func newWmBase() *Adapter {
	a := newAdapter(protocol.WmBase)
	a.wrap = true
	a.handle(protocol.WmBaseCreatePositioner, func(a *Adapter, args wire.Args) error {
		_, err := a.spawn(protocol.WmBaseCreatePositioner, args.NewID(0), newPositioner, wire.NewID(0))
		return err
	})
	a.handle(protocol.WmBaseGetXdgSurface, func(a *Adapter, args wire.Args) error {
		surface, err := a.session.resolve(args.Object(1), protocol.Surface)
		if err != nil {
			return err
		}
		child, err := a.spawn(protocol.WmBaseGetXdgSurface, args.NewID(0), newXdgSurface,
			wire.NewID(0), objectArg(surface))
		if err != nil {
			return err
		}
		child.wm = a.ID()
		return nil
	})
	a.handle(protocol.WmBasePong, func(a *Adapter, args wire.Args) error {
		// The upstream context answers upstream pings itself; downstream
		// pongs have no liveness policy attached.
		a.session.mux.logger.Debug("pong ignored",
			slog.String("session", a.session.id),
			slog.Int("serial", int(args.Uint(0))))
		return nil
	})
	return a
}

// SendPing pings the client of a wm_base adapter with a fresh serial.
func SendPing(a *Adapter) uint32 {
	serial := a.session.mux.display.NextSerial()
	a.post(protocol.WmBasePing, wire.Uint(serial))
	return serial
}

func newPositioner() *Adapter {
	a := newAdapter(protocol.Positioner)
	for _, op := range []uint16{
		protocol.PositionerSetSize,
		protocol.PositionerSetAnchorRect,
		protocol.PositionerSetAnchor,
		protocol.PositionerSetGravity,
		protocol.PositionerSetConstraintAdjustment,
		protocol.PositionerSetOffset,
		protocol.PositionerSetReactive,
		protocol.PositionerSetParentSize,
		protocol.PositionerSetParentConfigure,
	} {
		a.handle(op, forward(op))
	}
	return a
}

func newXdgSurface() *Adapter {
	a := newAdapter(protocol.XdgSurface)
	a.handle(protocol.XdgSurfaceGetToplevel, func(a *Adapter, args wire.Args) error {
		_, err := a.spawn(protocol.XdgSurfaceGetToplevel, args.NewID(0), newToplevel, wire.NewID(0))
		return err
	})
	a.handle(protocol.XdgSurfaceGetPopup, func(a *Adapter, args wire.Args) error {
		parent, err := a.session.resolveNullable(args.Object(1), protocol.XdgSurface)
		if err != nil {
			return err
		}
		positioner, err := a.session.resolve(args.Object(2), protocol.Positioner)
		if err != nil {
			return err
		}
		_, err = a.spawn(protocol.XdgSurfaceGetPopup, args.NewID(0), newPopup,
			wire.NewID(0), objectArg(parent), objectArg(positioner))
		return err
	})
	a.handle(protocol.XdgSurfaceSetWindowGeometry, forward(protocol.XdgSurfaceSetWindowGeometry))
	a.handle(protocol.XdgSurfaceAckConfigure, forward(protocol.XdgSurfaceAckConfigure))

	a.on(protocol.XdgSurfaceConfigure, func(a *Adapter, ev *client.Event) {
		a.post(protocol.XdgSurfaceConfigure, ev.Args...)
		if wm, res := a.session.Lookup(a.wm, protocol.WmBase); res == Found {
			SendPing(wm)
		}
	})
	return a
}

func newToplevel() *Adapter {
	a := newAdapter(protocol.Toplevel)
	a.handle(protocol.ToplevelSetParent, func(a *Adapter, args wire.Args) error {
		parent, err := a.session.resolveNullable(args.Object(0), protocol.Toplevel)
		if err != nil {
			return err
		}
		return a.request(protocol.ToplevelSetParent, objectArg(parent))
	})
	a.handle(protocol.ToplevelSetTitle, forward(protocol.ToplevelSetTitle))
	a.handle(protocol.ToplevelSetAppID, forward(protocol.ToplevelSetAppID))
	a.handle(protocol.ToplevelShowWindowMenu, func(a *Adapter, args wire.Args) error {
		seat, err := a.session.resolve(args.Object(0), protocol.Seat)
		if err != nil {
			return err
		}
		return a.request(protocol.ToplevelShowWindowMenu, objectArg(seat),
			wire.Uint(args.Uint(1)), wire.Int(args.Int(2)), wire.Int(args.Int(3)))
	})
	a.handle(protocol.ToplevelMove, func(a *Adapter, args wire.Args) error {
		seat, err := a.session.resolve(args.Object(0), protocol.Seat)
		if err != nil {
			return err
		}
		return a.request(protocol.ToplevelMove, objectArg(seat), wire.Uint(args.Uint(1)))
	})
	a.handle(protocol.ToplevelResize, func(a *Adapter, args wire.Args) error {
		seat, err := a.session.resolve(args.Object(0), protocol.Seat)
		if err != nil {
			return err
		}
		return a.request(protocol.ToplevelResize, objectArg(seat), wire.Uint(args.Uint(1)), wire.Uint(args.Uint(2)))
	})
	a.handle(protocol.ToplevelSetMaxSize, forward(protocol.ToplevelSetMaxSize))
	a.handle(protocol.ToplevelSetMinSize, forward(protocol.ToplevelSetMinSize))
	a.handle(protocol.ToplevelSetMaximized, forward(protocol.ToplevelSetMaximized))
	a.handle(protocol.ToplevelUnsetMaximized, forward(protocol.ToplevelUnsetMaximized))
	a.handle(protocol.ToplevelSetFullscreen, func(a *Adapter, args wire.Args) error {
		output, err := a.session.resolveNullable(args.Object(0), protocol.Output)
		if err != nil {
			return err
		}
		return a.request(protocol.ToplevelSetFullscreen, objectArg(output))
	})
	a.handle(protocol.ToplevelUnsetFullscreen, forward(protocol.ToplevelUnsetFullscreen))
	a.handle(protocol.ToplevelSetMinimized, forward(protocol.ToplevelSetMinimized))

	a.on(protocol.ToplevelConfigure, func(a *Adapter, ev *client.Event) {
		states := filterStates(ev.Args.Array(2), a.Version())
		a.post(protocol.ToplevelConfigure, wire.Int(ev.Args.Int(0)), wire.Int(ev.Args.Int(1)), wire.Array(states))
	})
	a.on(protocol.ToplevelClose, relay(protocol.ToplevelClose))
	a.on(protocol.ToplevelConfigureBounds, relay(protocol.ToplevelConfigureBounds))
	a.on(protocol.ToplevelWmCapabilities, relay(protocol.ToplevelWmCapabilities))
	return a
}

// filterStates drops the toplevel states a client of version cannot know.
func filterStates(states []byte, version uint32) []byte {
	out := make([]byte, 0, len(states))
	for i := 0; i+4 <= len(states); i += 4 {
		state := binary.NativeEndian.Uint32(states[i:])
		if since, ok := protocol.ToplevelStateSince[state]; ok && since > version {
			continue
		}
		out = append(out, states[i:i+4]...)
	}
	return out
}

func newPopup() *Adapter {
	a := newAdapter(protocol.Popup)
	a.handle(protocol.PopupGrab, func(a *Adapter, args wire.Args) error {
		seat, err := a.session.resolve(args.Object(0), protocol.Seat)
		if err != nil {
			return err
		}
		return a.request(protocol.PopupGrab, objectArg(seat), wire.Uint(args.Uint(1)))
	})
	a.handle(protocol.PopupReposition, func(a *Adapter, args wire.Args) error {
		positioner, err := a.session.resolve(args.Object(0), protocol.Positioner)
		if err != nil {
			return err
		}
		return a.request(protocol.PopupReposition, objectArg(positioner), wire.Uint(args.Uint(1)))
	})

	a.on(protocol.PopupConfigure, relay(protocol.PopupConfigure))
	a.on(protocol.PopupDone, relay(protocol.PopupDone))
	a.on(protocol.PopupRepositioned, relay(protocol.PopupRepositioned))
	return a
}
