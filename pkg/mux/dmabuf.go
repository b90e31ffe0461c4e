// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"github.com/absmach/wlmux/pkg/client"
	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/wire"
)

func newDmabuf() *Adapter {
	a := newAdapter(protocol.Dmabuf)
	a.wrap = true
	a.handle(protocol.DmabufCreateParams, func(a *Adapter, args wire.Args) error {
		_, err := a.spawn(protocol.DmabufCreateParams, args.NewID(0), newBufferParams, wire.NewID(0))
		return err
	})
	a.handle(protocol.DmabufGetDefaultFeedback, func(a *Adapter, args wire.Args) error {
		_, err := a.spawn(protocol.DmabufGetDefaultFeedback, args.NewID(0), newFeedback, wire.NewID(0))
		return err
	})
	a.handle(protocol.DmabufGetSurfaceFeedback, func(a *Adapter, args wire.Args) error {
		surface, err := a.session.resolve(args.Object(1), protocol.Surface)
		if err != nil {
			return err
		}
		_, err = a.spawn(protocol.DmabufGetSurfaceFeedback, args.NewID(0), newFeedback,
			wire.NewID(0), objectArg(surface))
		return err
	})
	return a
}

func newBufferParams() *Adapter {
	a := newAdapter(protocol.BufferParams)
	a.handle(protocol.ParamsAdd, func(a *Adapter, args wire.Args) error {
		return a.request(protocol.ParamsAdd, wire.File(args.FD(0)),
			wire.Uint(args.Uint(1)), wire.Uint(args.Uint(2)), wire.Uint(args.Uint(3)),
			wire.Uint(args.Uint(4)), wire.Uint(args.Uint(5)))
	})
	a.handle(protocol.ParamsCreate, forward(protocol.ParamsCreate))
	a.handle(protocol.ParamsCreateImmed, func(a *Adapter, args wire.Args) error {
		_, err := a.spawn(protocol.ParamsCreateImmed, args.NewID(0), newBuffer,
			wire.NewID(0), wire.Int(args.Int(1)), wire.Int(args.Int(2)),
			wire.Uint(args.Uint(3)), wire.Uint(args.Uint(4)))
		return err
	})

	a.on(protocol.ParamsCreated, paramsCreated)
	a.on(protocol.ParamsFailed, relay(protocol.ParamsFailed))
	return a
}

// paramsCreated hands the buffer the compositor created to the client at a
// server allocated id.
func paramsCreated(a *Adapter, ev *client.Event) {
	p := ev.NewProxy
	if p == nil {
		a.session.mux.dropEvent(a.iface, ev)
		return
	}
	child := newBuffer()
	if err := child.SetUpstreamProxy(p, true); err != nil {
		p.Destroy()
		return
	}
	if err := a.session.AddAdapterVersion(child, 1, 0); err != nil {
		return
	}
	a.post(protocol.ParamsCreated, wire.NewID(child.ID()))
}

func newFeedback() *Adapter {
	a := newAdapter(protocol.DmabufFeedback)
	a.on(protocol.FeedbackDone, relay(protocol.FeedbackDone))
	a.on(protocol.FeedbackFormatTable, func(a *Adapter, ev *client.Event) {
		a.post(protocol.FeedbackFormatTable, wire.File(ev.Args.FD(0)), wire.Uint(ev.Args.Uint(1)))
	})
	a.on(protocol.FeedbackMainDevice, relay(protocol.FeedbackMainDevice))
	a.on(protocol.FeedbackTrancheDone, relay(protocol.FeedbackTrancheDone))
	a.on(protocol.FeedbackTrancheTargetDevice, relay(protocol.FeedbackTrancheTargetDevice))
	a.on(protocol.FeedbackTrancheFormats, relay(protocol.FeedbackTrancheFormats))
	a.on(protocol.FeedbackTrancheFlags, relay(protocol.FeedbackTrancheFlags))
	return a
}
