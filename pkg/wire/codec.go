// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the size of a message header in bytes.
	HeaderSize = 8

	// MaxMessageSize bounds a single message, header included.
	MaxMessageSize = 4096

	// MaxFDs bounds the descriptors sent with one sendmsg call.
	MaxFDs = 28
)

var (
	// ErrShortMessage indicates a body that ends before its signature does.
	ErrShortMessage = errors.New("short message")

	// ErrMessageSize indicates a header size outside the valid range.
	ErrMessageSize = errors.New("invalid message size")

	// ErrMissingFD indicates a signature asking for more descriptors than
	// were received.
	ErrMissingFD = errors.New("missing file descriptor")

	// ErrSignature indicates an unknown signature character.
	ErrSignature = errors.New("invalid signature")
)

var order = binary.NativeEndian

// Header is the fixed message prefix.
type Header struct {
	Sender uint32
	Opcode uint16
	Size   uint16
}

// ParseHeader decodes the first HeaderSize bytes of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortMessage
	}
	word := order.Uint32(b[4:8])
	h := Header{
		Sender: order.Uint32(b[0:4]),
		Opcode: uint16(word),
		Size:   uint16(word >> 16),
	}
	if h.Size < HeaderSize || h.Size%4 != 0 {
		return Header{}, fmt.Errorf("%w: %d", ErrMessageSize, h.Size)
	}
	return h, nil
}

// Put writes h into the first HeaderSize bytes of b.
func (h Header) Put(b []byte) {
	order.PutUint32(b[0:4], h.Sender)
	order.PutUint32(b[4:8], uint32(h.Size)<<16|uint32(h.Opcode))
}

func padded(n int) int {
	return (n + 3) &^ 3
}

// Marshal encodes a message. Descriptor arguments are returned in order and
// are not taken; the caller decides what happens to them.
func Marshal(sender uint32, opcode uint16, args []Arg) ([]byte, []*FD, error) {
	size := HeaderSize
	for _, arg := range args {
		switch arg.Type {
		case TypeString:
			size += 4
			if !arg.Null {
				size += padded(len(arg.Str) + 1)
			}
		case TypeArray:
			size += 4 + padded(len(arg.Bytes))
		case TypeFD:
		case TypeInt, TypeUint, TypeFixed, TypeObject, TypeNewID:
			size += 4
		default:
			return nil, nil, fmt.Errorf("%w: %q", ErrSignature, arg.Type)
		}
	}
	if size > MaxMessageSize {
		return nil, nil, fmt.Errorf("%w: %d", ErrMessageSize, size)
	}

	buf := make([]byte, size)
	Header{Sender: sender, Opcode: opcode, Size: uint16(size)}.Put(buf)

	var fds []*FD
	off := HeaderSize
	for _, arg := range args {
		switch arg.Type {
		case TypeString:
			if arg.Null {
				order.PutUint32(buf[off:], 0)
				off += 4
				continue
			}
			order.PutUint32(buf[off:], uint32(len(arg.Str)+1))
			off += 4
			copy(buf[off:], arg.Str)
			off += padded(len(arg.Str) + 1)
		case TypeArray:
			order.PutUint32(buf[off:], uint32(len(arg.Bytes)))
			off += 4
			copy(buf[off:], arg.Bytes)
			off += padded(len(arg.Bytes))
		case TypeFD:
			fds = append(fds, arg.File)
		default:
			order.PutUint32(buf[off:], arg.Value)
			off += 4
		}
	}

	return buf, fds, nil
}

// FDSource hands out received descriptors in arrival order.
type FDSource interface {
	NextFD() (*FD, bool)
}

// Unmarshal decodes body according to signature. Digits and '?' in the
// signature are ignored, so libwayland-style signatures work unchanged.
// On error every descriptor already popped is closed.
func Unmarshal(body []byte, signature string, fds FDSource) (Args, error) {
	args := make(Args, 0, len(signature))
	fail := func(err error) (Args, error) {
		args.Close()
		return nil, err
	}

	off := 0
	word := func() (uint32, bool) {
		if off+4 > len(body) {
			return 0, false
		}
		v := order.Uint32(body[off:])
		off += 4
		return v, true
	}

	for i := 0; i < len(signature); i++ {
		t := ArgType(signature[i])
		switch {
		case signature[i] == '?', signature[i] >= '0' && signature[i] <= '9':
			continue
		}

		switch t {
		case TypeInt, TypeUint, TypeFixed, TypeObject, TypeNewID:
			v, ok := word()
			if !ok {
				return fail(ErrShortMessage)
			}
			args = append(args, Arg{Type: t, Value: v})
		case TypeString:
			n, ok := word()
			if !ok {
				return fail(ErrShortMessage)
			}
			if n == 0 {
				args = append(args, Arg{Type: t, Null: true})
				continue
			}
			end := off + padded(int(n))
			if end > len(body) || body[off+int(n)-1] != 0 {
				return fail(ErrShortMessage)
			}
			args = append(args, Arg{Type: t, Str: string(body[off : off+int(n)-1])})
			off = end
		case TypeArray:
			n, ok := word()
			if !ok {
				return fail(ErrShortMessage)
			}
			end := off + padded(int(n))
			if end > len(body) {
				return fail(ErrShortMessage)
			}
			b := make([]byte, n)
			copy(b, body[off:off+int(n)])
			args = append(args, Arg{Type: t, Bytes: b})
			off = end
		case TypeFD:
			if fds == nil {
				return fail(ErrMissingFD)
			}
			fd, ok := fds.NextFD()
			if !ok {
				return fail(ErrMissingFD)
			}
			args = append(args, Arg{Type: t, File: fd})
		default:
			return fail(fmt.Errorf("%w: %q", ErrSignature, signature[i]))
		}
	}

	return args, nil
}
