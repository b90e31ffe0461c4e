// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"log/slog"

	"github.com/absmach/wlmux/pkg/client"
	"github.com/absmach/wlmux/pkg/mux"
	"github.com/absmach/wlmux/pkg/protocol"
)

// doneSince is the first wl_output version that groups property changes
// with a done event.
const doneSince = 2

type output struct {
	name  uint32
	proxy *client.Proxy

	// pending collects properties until the next done.
	pending mux.Output
	current mux.Output
	done    bool
}

func (c *Context) addOutput(name, version uint32) {
	p := c.bind(name, protocol.Output, version)
	if p == nil {
		return
	}
	o := &output{
		name:    name,
		proxy:   p,
		pending: mux.Output{Handle: p, ScaleFactor: 1},
	}
	c.outputs = append(c.outputs, o)
	p.SetHandler(func(ev *client.Event) { c.outputEvent(o, ev) })

	if p.Version() < doneSince {
		o.current = o.pending
		o.done = true
		c.notify(mux.OutputsChanged)
	}
}

func (c *Context) outputEvent(o *output, ev *client.Event) {
	pending := &o.pending
	switch ev.Opcode {
	case protocol.OutputGeometry:
		pending.X = ev.Args.Int(0)
		pending.Y = ev.Args.Int(1)
		pending.PhysicalWidth = ev.Args.Int(2)
		pending.PhysicalHeight = ev.Args.Int(3)
		pending.SubPixelOrientation = ev.Args.Int(4)
		pending.Manufacturer = ev.Args.String(5)
		pending.Model = ev.Args.String(6)
		pending.TransformType = ev.Args.Int(7)
	case protocol.OutputMode:
		if ev.Args.Uint(0)&protocol.OutputModeCurrent == 0 {
			return
		}
		pending.Width = ev.Args.Int(1)
		pending.Height = ev.Args.Int(2)
		pending.RefreshRate = ev.Args.Int(3)
	case protocol.OutputScale:
		pending.ScaleFactor = ev.Args.Int(0)
	case protocol.OutputDone:
		o.current = o.pending
		first := !o.done
		o.done = true
		if first {
			c.logger.Info("upstream output added",
				slog.String("manufacturer", o.current.Manufacturer),
				slog.String("model", o.current.Model),
				slog.Int("width", int(o.current.Width)),
				slog.Int("height", int(o.current.Height)),
			)
		}
		c.notify(mux.OutputsChanged)
	}

	// Version 1 outputs never send done.
	if o.proxy.Version() < doneSince {
		o.current = o.pending
		c.notify(mux.OutputsChanged)
	}
}
