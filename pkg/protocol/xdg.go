// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

// xdg_wm_base
const (
	WmBaseDestroy uint16 = iota
	WmBaseCreatePositioner
	WmBaseGetXdgSurface
	WmBasePong
)

const (
	WmBasePing uint16 = iota
)

// xdg_positioner
const (
	PositionerDestroy uint16 = iota
	PositionerSetSize
	PositionerSetAnchorRect
	PositionerSetAnchor
	PositionerSetGravity
	PositionerSetConstraintAdjustment
	PositionerSetOffset
	PositionerSetReactive
	PositionerSetParentSize
	PositionerSetParentConfigure
)

// xdg_surface
const (
	XdgSurfaceDestroy uint16 = iota
	XdgSurfaceGetToplevel
	XdgSurfaceGetPopup
	XdgSurfaceSetWindowGeometry
	XdgSurfaceAckConfigure
)

const (
	XdgSurfaceConfigure uint16 = iota
)

// xdg_toplevel
const (
	ToplevelDestroy uint16 = iota
	ToplevelSetParent
	ToplevelSetTitle
	ToplevelSetAppID
	ToplevelShowWindowMenu
	ToplevelMove
	ToplevelResize
	ToplevelSetMaxSize
	ToplevelSetMinSize
	ToplevelSetMaximized
	ToplevelUnsetMaximized
	ToplevelSetFullscreen
	ToplevelUnsetFullscreen
	ToplevelSetMinimized
)

const (
	ToplevelConfigure uint16 = iota
	ToplevelClose
	ToplevelConfigureBounds
	ToplevelWmCapabilities
)

// ToplevelStateSince maps xdg_toplevel states to the version that
// introduced them. States not listed exist since version 1.
var ToplevelStateSince = map[uint32]uint32{
	5:  2, // tiled_left
	6:  2, // tiled_right
	7:  2, // tiled_top
	8:  2, // tiled_bottom
	9:  6, // suspended
	10: 7, // constrained_left
	11: 7, // constrained_right
	12: 7, // constrained_top
	13: 7, // constrained_bottom
}

// xdg_popup
const (
	PopupDestroy uint16 = iota
	PopupGrab
	PopupReposition
)

const (
	PopupConfigure uint16 = iota
	PopupDone
	PopupRepositioned
)

var Positioner = &Interface{
	Name:    "xdg_positioner",
	Version: 7,
	Requests: []Message{
		{Name: "destroy", Destructor: true},
		{Name: "set_size", Signature: "ii"},
		{Name: "set_anchor_rect", Signature: "iiii"},
		{Name: "set_anchor", Signature: "u"},
		{Name: "set_gravity", Signature: "u"},
		{Name: "set_constraint_adjustment", Signature: "u"},
		{Name: "set_offset", Signature: "ii"},
		{Name: "set_reactive", Since: 3},
		{Name: "set_parent_size", Signature: "ii", Since: 3},
		{Name: "set_parent_configure", Signature: "u", Since: 3},
	},
}

var Toplevel = &Interface{
	Name:    "xdg_toplevel",
	Version: 7,
	Requests: []Message{
		{Name: "destroy", Destructor: true},
		{Name: "set_parent", Signature: "?o"},
		{Name: "set_title", Signature: "s"},
		{Name: "set_app_id", Signature: "s"},
		{Name: "show_window_menu", Signature: "ouii"},
		{Name: "move", Signature: "ou"},
		{Name: "resize", Signature: "ouu"},
		{Name: "set_max_size", Signature: "ii"},
		{Name: "set_min_size", Signature: "ii"},
		{Name: "set_maximized"},
		{Name: "unset_maximized"},
		{Name: "set_fullscreen", Signature: "?o"},
		{Name: "unset_fullscreen"},
		{Name: "set_minimized"},
	},
	Events: []Message{
		{Name: "configure", Signature: "iia"},
		{Name: "close"},
		{Name: "configure_bounds", Signature: "ii", Since: 4},
		{Name: "wm_capabilities", Signature: "a", Since: 5},
	},
}

var Popup = &Interface{
	Name:    "xdg_popup",
	Version: 7,
	Requests: []Message{
		{Name: "destroy", Destructor: true},
		{Name: "grab", Signature: "ou"},
		{Name: "reposition", Signature: "ou", Since: 3},
	},
	Events: []Message{
		{Name: "configure", Signature: "iiii"},
		{Name: "popup_done"},
		{Name: "repositioned", Signature: "u", Since: 3},
	},
}

var XdgSurface = &Interface{
	Name:    "xdg_surface",
	Version: 7,
	Requests: []Message{
		{Name: "destroy", Destructor: true},
		{Name: "get_toplevel", Signature: "n", NewID: Toplevel},
		{Name: "get_popup", Signature: "n?oo", NewID: Popup},
		{Name: "set_window_geometry", Signature: "iiii"},
		{Name: "ack_configure", Signature: "u"},
	},
	Events: []Message{
		{Name: "configure", Signature: "u"},
	},
}

var WmBase = &Interface{
	Name:    "xdg_wm_base",
	Version: 7,
	Requests: []Message{
		{Name: "destroy", Destructor: true},
		{Name: "create_positioner", Signature: "n", NewID: Positioner},
		{Name: "get_xdg_surface", Signature: "no", NewID: XdgSurface},
		{Name: "pong", Signature: "u"},
	},
	Events: []Message{
		{Name: "ping", Signature: "u"},
	},
}

func init() {
	register(WmBase, Positioner, XdgSurface, Toplevel, Popup)
}
