// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mux

import "github.com/absmach/wlmux/pkg/client"

// ChangeType names an upstream topology change.
type ChangeType int

const (
	// SeatCapabilitiesChanged means the seat gained or lost input devices.
	SeatCapabilitiesChanged ChangeType = iota

	// OutputsChanged means outputs were added, removed or reconfigured.
	OutputsChanged
)

// String returns a string representation of the change.
func (t ChangeType) String() string {
	switch t {
	case SeatCapabilitiesChanged:
		return "seat_capabilities"
	case OutputsChanged:
		return "outputs"
	default:
		return "unknown"
	}
}

// Listener receives ClientContext change notifications.
type Listener interface {
	ContextChanged(t ChangeType)
}

// maxNameLength bounds output manufacturer and model strings.
const maxNameLength = 127

// Output describes one upstream output.
type Output struct {
	Handle *client.Proxy

	ScaleFactor         int32
	X, Y                int32
	Width, Height       int32
	PhysicalWidth       int32
	PhysicalHeight      int32
	SubPixelOrientation int32
	TransformType       int32
	RefreshRate         int32

	Manufacturer string
	Model        string
}

// Modifier is one dma-buf format and modifier pair.
type Modifier struct {
	Format uint32
	High   uint32
	Low    uint32
}

// ClientContext exposes the shared upstream connection. Handle getters
// return nil when the compositor lacks the capability.
type ClientContext interface {
	Compositor() *client.Proxy
	SubCompositor() *client.Proxy
	SharedMemory() *client.Proxy
	Seat() *client.Proxy
	WindowManager() *client.Proxy
	DmaBuffer() *client.Proxy

	SeatCapabilities() uint32
	SeatName() string

	CountOutputs() int
	Output(i int) Output

	CountDmaBufferModifiers() int
	DmaBufferModifier(i int) (Modifier, bool)

	// AddListener subscribes l and reports whether it was added.
	AddListener(l Listener) bool
	// RemoveListener unsubscribes l and reports whether it was subscribed.
	RemoveListener(l Listener) bool
}

func truncate(s string) string {
	if len(s) <= maxNameLength {
		return s
	}
	return s[:maxNameLength]
}
