// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/wire"
)

func newShm() *Adapter {
	a := newAdapter(protocol.Shm)
	a.wrap = true
	a.handle(protocol.ShmCreatePool, func(a *Adapter, args wire.Args) error {
		// The descriptor moves into the upstream request and is closed
		// once sent.
		_, err := a.spawn(protocol.ShmCreatePool, args.NewID(0), newShmPool,
			wire.NewID(0), wire.File(args.FD(1)), wire.Int(args.Int(2)))
		return err
	})
	return a
}

// sendShmFormats announces the formats every compositor supports.
func sendShmFormats(a *Adapter) {
	a.post(protocol.ShmFormat, wire.Uint(protocol.ShmFormatARGB8888))
	a.post(protocol.ShmFormat, wire.Uint(protocol.ShmFormatXRGB8888))
}

func newShmPool() *Adapter {
	a := newAdapter(protocol.ShmPool)
	a.handle(protocol.ShmPoolCreateBuffer, func(a *Adapter, args wire.Args) error {
		_, err := a.spawn(protocol.ShmPoolCreateBuffer, args.NewID(0), newBuffer,
			wire.NewID(0), wire.Int(args.Int(1)), wire.Int(args.Int(2)),
			wire.Int(args.Int(3)), wire.Int(args.Int(4)), wire.Uint(args.Uint(5)))
		return err
	})
	a.handle(protocol.ShmPoolResize, forward(protocol.ShmPoolResize))
	return a
}

func newBuffer() *Adapter {
	a := newAdapter(protocol.Buffer)
	a.on(protocol.BufferRelease, relay(protocol.BufferRelease))
	return a
}
