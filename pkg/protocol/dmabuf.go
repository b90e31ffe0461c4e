// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

// zwp_linux_dmabuf_v1
const (
	DmabufDestroy uint16 = iota
	DmabufCreateParams
	DmabufGetDefaultFeedback
	DmabufGetSurfaceFeedback
)

const (
	DmabufFormat uint16 = iota
	DmabufModifier
)

// zwp_linux_buffer_params_v1
const (
	ParamsDestroy uint16 = iota
	ParamsAdd
	ParamsCreate
	ParamsCreateImmed
)

const (
	ParamsCreated uint16 = iota
	ParamsFailed
)

// zwp_linux_dmabuf_feedback_v1
const (
	FeedbackDestroy uint16 = iota
)

const (
	FeedbackDone uint16 = iota
	FeedbackFormatTable
	FeedbackMainDevice
	FeedbackTrancheDone
	FeedbackTrancheTargetDevice
	FeedbackTrancheFormats
	FeedbackTrancheFlags
)

var BufferParams = &Interface{
	Name:    "zwp_linux_buffer_params_v1",
	Version: 5,
	Requests: []Message{
		{Name: "destroy", Destructor: true},
		{Name: "add", Signature: "huuuuu"},
		{Name: "create", Signature: "iiuu"},
		{Name: "create_immed", Signature: "niiuu", Since: 2, NewID: Buffer},
	},
	Events: []Message{
		{Name: "created", Signature: "n", NewID: Buffer},
		{Name: "failed"},
	},
}

var DmabufFeedback = &Interface{
	Name:    "zwp_linux_dmabuf_feedback_v1",
	Version: 5,
	Requests: []Message{
		{Name: "destroy", Destructor: true},
	},
	Events: []Message{
		{Name: "done"},
		{Name: "format_table", Signature: "hu"},
		{Name: "main_device", Signature: "a"},
		{Name: "tranche_done"},
		{Name: "tranche_target_device", Signature: "a"},
		{Name: "tranche_formats", Signature: "a"},
		{Name: "tranche_flags", Signature: "u"},
	},
}

var Dmabuf = &Interface{
	Name:    "zwp_linux_dmabuf_v1",
	Version: 5,
	Requests: []Message{
		{Name: "destroy", Destructor: true},
		{Name: "create_params", Signature: "n", NewID: BufferParams},
		{Name: "get_default_feedback", Signature: "n", Since: 4, NewID: DmabufFeedback},
		{Name: "get_surface_feedback", Signature: "no", Since: 4, NewID: DmabufFeedback},
	},
	Events: []Message{
		{Name: "format", Signature: "u"},
		{Name: "modifier", Signature: "uuu", Since: 3},
	},
}

func init() {
	register(Dmabuf, BufferParams, DmabufFeedback)
}
