// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

// wl_display
const (
	DisplaySync uint16 = iota
	DisplayGetRegistry
)

const (
	DisplayError uint16 = iota
	DisplayDeleteID
)

// wl_display error codes.
const (
	ErrorInvalidObject  uint32 = 0
	ErrorInvalidMethod  uint32 = 1
	ErrorNoMemory       uint32 = 2
	ErrorImplementation uint32 = 3
)

// wl_registry
const (
	RegistryBind uint16 = iota
)

const (
	RegistryGlobal uint16 = iota
	RegistryGlobalRemove
)

// wl_callback
const (
	CallbackDone uint16 = iota
)

// wl_compositor
const (
	CompositorCreateSurface uint16 = iota
	CompositorCreateRegion
)

// wl_shm_pool
const (
	ShmPoolCreateBuffer uint16 = iota
	ShmPoolDestroy
	ShmPoolResize
)

// wl_shm
const (
	ShmCreatePool uint16 = iota
	ShmRelease
)

const (
	ShmFormat uint16 = iota
)

// Formats every wl_shm implementation supports.
const (
	ShmFormatARGB8888 uint32 = 0
	ShmFormatXRGB8888 uint32 = 1
)

// wl_buffer
const (
	BufferDestroy uint16 = iota
)

const (
	BufferRelease uint16 = iota
)

// wl_surface
const (
	SurfaceDestroy uint16 = iota
	SurfaceAttach
	SurfaceDamage
	SurfaceFrame
	SurfaceSetOpaqueRegion
	SurfaceSetInputRegion
	SurfaceCommit
	SurfaceSetBufferTransform
	SurfaceSetBufferScale
	SurfaceDamageBuffer
	SurfaceOffset
)

const (
	SurfaceEnter uint16 = iota
	SurfaceLeave
	SurfacePreferredBufferScale
	SurfacePreferredBufferTransform
)

// SurfaceOffsetSince is the first wl_surface version with the offset request.
const SurfaceOffsetSince = 5

// wl_seat
const (
	SeatGetPointer uint16 = iota
	SeatGetKeyboard
	SeatGetTouch
	SeatRelease
)

const (
	SeatCapabilities uint16 = iota
	SeatName
)

// wl_seat capability bits.
const (
	SeatCapabilityPointer  uint32 = 1
	SeatCapabilityKeyboard uint32 = 2
	SeatCapabilityTouch    uint32 = 4
)

// wl_pointer
const (
	PointerSetCursor uint16 = iota
	PointerRelease
)

const (
	PointerEnter uint16 = iota
	PointerLeave
	PointerMotion
	PointerButton
	PointerAxis
	PointerFrame
	PointerAxisSource
	PointerAxisStop
	PointerAxisDiscrete
	PointerAxisValue120
	PointerAxisRelativeDirection
)

// PointerAxisValue120Since is the version that replaced axis_discrete.
const PointerAxisValue120Since = 8

// wl_keyboard
const (
	KeyboardRelease uint16 = iota
)

const (
	KeyboardKeymap uint16 = iota
	KeyboardEnter
	KeyboardLeave
	KeyboardKey
	KeyboardModifiers
	KeyboardRepeatInfo
)

// wl_keyboard key states.
const (
	KeyStateReleased uint32 = 0
	KeyStatePressed  uint32 = 1
	KeyStateRepeated uint32 = 2
)

// KeyStateRepeatedSince is the first wl_keyboard version that may receive
// the repeated key state.
const KeyStateRepeatedSince = 10

// wl_touch
const (
	TouchRelease uint16 = iota
)

const (
	TouchDown uint16 = iota
	TouchUp
	TouchMotion
	TouchFrame
	TouchCancel
	TouchShape
	TouchOrientation
)

// wl_output
const (
	OutputRelease uint16 = iota
)

const (
	OutputGeometry uint16 = iota
	OutputMode
	OutputDone
	OutputScale
	OutputName
	OutputDescription
)

// OutputModeCurrent flags the active output mode.
const OutputModeCurrent uint32 = 1

// wl_region
const (
	RegionDestroy uint16 = iota
	RegionAdd
	RegionSubtract
)

// wl_subcompositor
const (
	SubcompositorDestroy uint16 = iota
	SubcompositorGetSubsurface
)

// wl_subsurface
const (
	SubsurfaceDestroy uint16 = iota
	SubsurfaceSetPosition
	SubsurfacePlaceAbove
	SubsurfacePlaceBelow
	SubsurfaceSetSync
	SubsurfaceSetDesync
)

var Callback = &Interface{
	Name:    "wl_callback",
	Version: 1,
	Events: []Message{
		{Name: "done", Signature: "u"},
	},
}

var Registry = &Interface{
	Name:    "wl_registry",
	Version: 1,
	Requests: []Message{
		{Name: "bind", Signature: "usun"},
	},
	Events: []Message{
		{Name: "global", Signature: "usu"},
		{Name: "global_remove", Signature: "u"},
	},
}

var Display = &Interface{
	Name:    "wl_display",
	Version: 1,
	Requests: []Message{
		{Name: "sync", Signature: "n", NewID: Callback},
		{Name: "get_registry", Signature: "n", NewID: Registry},
	},
	Events: []Message{
		{Name: "error", Signature: "ous"},
		{Name: "delete_id", Signature: "u"},
	},
}

var Region = &Interface{
	Name:    "wl_region",
	Version: 1,
	Requests: []Message{
		{Name: "destroy", Destructor: true},
		{Name: "add", Signature: "iiii"},
		{Name: "subtract", Signature: "iiii"},
	},
}

var Buffer = &Interface{
	Name:    "wl_buffer",
	Version: 1,
	Requests: []Message{
		{Name: "destroy", Destructor: true},
	},
	Events: []Message{
		{Name: "release"},
	},
}

var Output = &Interface{
	Name:    "wl_output",
	Version: 4,
	Requests: []Message{
		{Name: "release", Since: 3, Destructor: true},
	},
	Events: []Message{
		{Name: "geometry", Signature: "iiiiissi"},
		{Name: "mode", Signature: "uiii"},
		{Name: "done", Since: 2},
		{Name: "scale", Signature: "i", Since: 2},
		{Name: "name", Signature: "s", Since: 4},
		{Name: "description", Signature: "s", Since: 4},
	},
}

var Surface = &Interface{
	Name:    "wl_surface",
	Version: 6,
	Requests: []Message{
		{Name: "destroy", Destructor: true},
		{Name: "attach", Signature: "?oii"},
		{Name: "damage", Signature: "iiii"},
		{Name: "frame", Signature: "n", NewID: Callback},
		{Name: "set_opaque_region", Signature: "?o"},
		{Name: "set_input_region", Signature: "?o"},
		{Name: "commit"},
		{Name: "set_buffer_transform", Signature: "i", Since: 2},
		{Name: "set_buffer_scale", Signature: "i", Since: 3},
		{Name: "damage_buffer", Signature: "iiii", Since: 4},
		{Name: "offset", Signature: "ii", Since: 5},
	},
	Events: []Message{
		{Name: "enter", Signature: "o"},
		{Name: "leave", Signature: "o"},
		{Name: "preferred_buffer_scale", Signature: "i", Since: 6},
		{Name: "preferred_buffer_transform", Signature: "u", Since: 6},
	},
}

var Compositor = &Interface{
	Name:    "wl_compositor",
	Version: 6,
	Requests: []Message{
		{Name: "create_surface", Signature: "n", NewID: Surface},
		{Name: "create_region", Signature: "n", NewID: Region},
	},
}

var ShmPool = &Interface{
	Name:    "wl_shm_pool",
	Version: 2,
	Requests: []Message{
		{Name: "create_buffer", Signature: "niiiiu", NewID: Buffer},
		{Name: "destroy", Destructor: true},
		{Name: "resize", Signature: "i"},
	},
}

var Shm = &Interface{
	Name:    "wl_shm",
	Version: 2,
	Requests: []Message{
		{Name: "create_pool", Signature: "nhi", NewID: ShmPool},
		{Name: "release", Since: 2, Destructor: true},
	},
	Events: []Message{
		{Name: "format", Signature: "u"},
	},
}

var Pointer = &Interface{
	Name:    "wl_pointer",
	Version: 10,
	Requests: []Message{
		{Name: "set_cursor", Signature: "u?oii"},
		{Name: "release", Since: 3, Destructor: true},
	},
	Events: []Message{
		{Name: "enter", Signature: "uoff"},
		{Name: "leave", Signature: "uo"},
		{Name: "motion", Signature: "uff"},
		{Name: "button", Signature: "uuuu"},
		{Name: "axis", Signature: "uuf"},
		{Name: "frame", Since: 5},
		{Name: "axis_source", Signature: "u", Since: 5},
		{Name: "axis_stop", Signature: "uu", Since: 5},
		{Name: "axis_discrete", Signature: "ui", Since: 5},
		{Name: "axis_value120", Signature: "ui", Since: 8},
		{Name: "axis_relative_direction", Signature: "uu", Since: 9},
	},
}

var Keyboard = &Interface{
	Name:    "wl_keyboard",
	Version: 10,
	Requests: []Message{
		{Name: "release", Since: 3, Destructor: true},
	},
	Events: []Message{
		{Name: "keymap", Signature: "uhu"},
		{Name: "enter", Signature: "uoa"},
		{Name: "leave", Signature: "uo"},
		{Name: "key", Signature: "uuuu"},
		{Name: "modifiers", Signature: "uuuuu"},
		{Name: "repeat_info", Signature: "ii", Since: 4},
	},
}

var Touch = &Interface{
	Name:    "wl_touch",
	Version: 10,
	Requests: []Message{
		{Name: "release", Since: 3, Destructor: true},
	},
	Events: []Message{
		{Name: "down", Signature: "uuoiff"},
		{Name: "up", Signature: "uui"},
		{Name: "motion", Signature: "uiff"},
		{Name: "frame"},
		{Name: "cancel"},
		{Name: "shape", Signature: "iff", Since: 6},
		{Name: "orientation", Signature: "if", Since: 6},
	},
}

var Seat = &Interface{
	Name:    "wl_seat",
	Version: 10,
	Requests: []Message{
		{Name: "get_pointer", Signature: "n", NewID: Pointer},
		{Name: "get_keyboard", Signature: "n", NewID: Keyboard},
		{Name: "get_touch", Signature: "n", NewID: Touch},
		{Name: "release", Since: 5, Destructor: true},
	},
	Events: []Message{
		{Name: "capabilities", Signature: "u"},
		{Name: "name", Signature: "s", Since: 2},
	},
}

var Subsurface = &Interface{
	Name:    "wl_subsurface",
	Version: 1,
	Requests: []Message{
		{Name: "destroy", Destructor: true},
		{Name: "set_position", Signature: "ii"},
		{Name: "place_above", Signature: "o"},
		{Name: "place_below", Signature: "o"},
		{Name: "set_sync"},
		{Name: "set_desync"},
	},
}

var Subcompositor = &Interface{
	Name:    "wl_subcompositor",
	Version: 1,
	Requests: []Message{
		{Name: "destroy", Destructor: true},
		{Name: "get_subsurface", Signature: "noo", NewID: Subsurface},
	},
}

func init() {
	register(Display, Registry, Callback, Compositor, Subcompositor, Subsurface,
		Surface, Region, Shm, ShmPool, Buffer, Seat, Pointer, Keyboard, Touch, Output)
}
