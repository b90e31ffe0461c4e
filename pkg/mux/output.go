// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/wire"
)

// newOutput serves a wl_output global. Its state comes from the
// ClientContext snapshot, never from the shared upstream proxy.
func newOutput() *Adapter {
	return newAdapter(protocol.Output)
}

func sendOutputProperties(a *Adapter, out Output) {
	a.post(protocol.OutputGeometry,
		wire.Int(out.X), wire.Int(out.Y),
		wire.Int(out.PhysicalWidth), wire.Int(out.PhysicalHeight),
		wire.Int(out.SubPixelOrientation),
		wire.String(truncate(out.Manufacturer)), wire.String(truncate(out.Model)),
		wire.Int(out.TransformType))
	a.post(protocol.OutputMode,
		wire.Uint(protocol.OutputModeCurrent),
		wire.Int(out.Width), wire.Int(out.Height), wire.Int(out.RefreshRate))
	a.post(protocol.OutputScale, wire.Int(out.ScaleFactor))
	a.post(protocol.OutputDone)
}
