// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/absmach/wlmux/pkg/client"
	"github.com/absmach/wlmux/pkg/mux"
	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/wire"
	"golang.org/x/sys/unix"
)

const (
	// feedbackSince is the first dma-buf version with feedback objects.
	feedbackSince = 4

	// tableEntrySize is the size of one format table entry: a format, four
	// bytes of padding and a modifier.
	tableEntrySize = 16

	// maxTableSize bounds the mapping of a format table.
	maxTableSize = 1 << 20
)

func (c *Context) bindDmabuf(name, version uint32) {
	p := c.bind(name, protocol.Dmabuf, version)
	if p == nil {
		return
	}
	c.dmabuf = p
	p.SetHandler(c.dmabufEvent)

	if p.Version() < feedbackSince {
		return
	}
	fb, err := p.Create(protocol.DmabufGetDefaultFeedback, wire.NewID(0))
	if err != nil {
		c.logger.Warn("failed to request dma-buf feedback", slog.String("error", err.Error()))
		return
	}
	c.feedback = fb
	fb.SetHandler(c.feedbackEvent)
}

// dmabufEvent collects the modifiers announced by versions before feedback.
func (c *Context) dmabufEvent(ev *client.Event) {
	if ev.Opcode != protocol.DmabufModifier {
		return
	}
	c.modifiers = append(c.modifiers, mux.Modifier{
		Format: ev.Args.Uint(0),
		High:   ev.Args.Uint(1),
		Low:    ev.Args.Uint(2),
	})
}

func (c *Context) feedbackEvent(ev *client.Event) {
	switch ev.Opcode {
	case protocol.FeedbackFormatTable:
		fd, ok := ev.Args.FD(0).Take()
		if !ok {
			return
		}
		table, err := mapFormatTable(fd, ev.Args.Uint(1))
		unix.Close(fd)
		if err != nil {
			c.logger.Warn("failed to read dma-buf format table", slog.String("error", err.Error()))
			return
		}
		c.table = table
	case protocol.FeedbackTrancheFormats:
		for _, i := range decodeIndices(ev.Args.Array(0)) {
			if int(i) < len(c.table) {
				c.pending = append(c.pending, c.table[i])
			}
		}
	case protocol.FeedbackDone:
		c.modifiers = c.pending
		c.pending = nil
		c.logger.Debug("dma-buf feedback", slog.Int("modifiers", len(c.modifiers)))
	}
}

// mapFormatTable reads the format table behind fd. fd stays open.
func mapFormatTable(fd int, size uint32) ([]mux.Modifier, error) {
	if size == 0 || size > maxTableSize {
		return nil, fmt.Errorf("invalid format table size %d", size)
	}
	b, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("failed to map format table: %w", err)
	}
	defer unix.Munmap(b)
	return decodeFormatTable(b), nil
}

func decodeFormatTable(b []byte) []mux.Modifier {
	out := make([]mux.Modifier, 0, len(b)/tableEntrySize)
	for ; len(b) >= tableEntrySize; b = b[tableEntrySize:] {
		modifier := binary.NativeEndian.Uint64(b[8:])
		out = append(out, mux.Modifier{
			Format: binary.NativeEndian.Uint32(b),
			High:   uint32(modifier >> 32),
			Low:    uint32(modifier),
		})
	}
	return out
}

func decodeIndices(b []byte) []uint16 {
	out := make([]uint16, 0, len(b)/2)
	for ; len(b) >= 2; b = b[2:] {
		out = append(out, binary.NativeEndian.Uint16(b))
	}
	return out
}
