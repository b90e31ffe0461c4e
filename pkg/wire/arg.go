// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
	"strings"
)

// ArgType is the signature character of an argument.
type ArgType byte

const (
	TypeInt    ArgType = 'i'
	TypeUint   ArgType = 'u'
	TypeFixed  ArgType = 'f'
	TypeString ArgType = 's'
	TypeObject ArgType = 'o'
	TypeNewID  ArgType = 'n'
	TypeArray  ArgType = 'a'
	TypeFD     ArgType = 'h'
)

// Arg is one decoded or to-be-encoded message argument.
type Arg struct {
	Type ArgType

	// Value holds int, uint, fixed, object and new_id arguments.
	Value uint32

	// Str holds string arguments. Null marks a null string.
	Str  string
	Null bool

	// Bytes holds array arguments.
	Bytes []byte

	// File holds fd arguments.
	File *FD
}

func Int(v int32) Arg {
	return Arg{Type: TypeInt, Value: uint32(v)}
}

func Uint(v uint32) Arg {
	return Arg{Type: TypeUint, Value: v}
}

func FixedArg(v Fixed) Arg {
	return Arg{Type: TypeFixed, Value: uint32(v)}
}

func String(s string) Arg {
	return Arg{Type: TypeString, Str: s}
}

// NullString encodes a null string, which is distinct from "".
func NullString() Arg {
	return Arg{Type: TypeString, Null: true}
}

// Object references an existing object. Zero encodes null.
func Object(id uint32) Arg {
	return Arg{Type: TypeObject, Value: id}
}

// NewID announces a new object. Client runtimes fill in id 0 when the
// request is sent.
func NewID(id uint32) Arg {
	return Arg{Type: TypeNewID, Value: id}
}

func Array(b []byte) Arg {
	return Arg{Type: TypeArray, Bytes: b}
}

// File passes fd. Encoding the argument takes ownership of fd.
func File(fd *FD) Arg {
	return Arg{Type: TypeFD, File: fd}
}

func (a Arg) String() string {
	switch a.Type {
	case TypeInt:
		return fmt.Sprintf("%d", int32(a.Value))
	case TypeUint:
		return fmt.Sprintf("%d", a.Value)
	case TypeFixed:
		return fmt.Sprintf("%.2f", Fixed(a.Value).Float())
	case TypeString:
		if a.Null {
			return "nil"
		}
		return fmt.Sprintf("%q", a.Str)
	case TypeObject:
		if a.Value == 0 {
			return "nil"
		}
		return fmt.Sprintf("#%d", a.Value)
	case TypeNewID:
		return fmt.Sprintf("new id #%d", a.Value)
	case TypeArray:
		return fmt.Sprintf("array[%d]", len(a.Bytes))
	case TypeFD:
		return a.File.String()
	}
	return "?"
}

// Args is a decoded argument list. Accessors return the zero value for an
// index that is out of range.
type Args []Arg

func (a Args) at(i int) Arg {
	if i < 0 || i >= len(a) {
		return Arg{}
	}
	return a[i]
}

func (a Args) Int(i int) int32 {
	return int32(a.at(i).Value)
}

func (a Args) Uint(i int) uint32 {
	return a.at(i).Value
}

func (a Args) Fixed(i int) Fixed {
	return Fixed(a.at(i).Value)
}

func (a Args) String(i int) string {
	return a.at(i).Str
}

func (a Args) Object(i int) uint32 {
	return a.at(i).Value
}

func (a Args) NewID(i int) uint32 {
	return a.at(i).Value
}

func (a Args) Array(i int) []byte {
	return a.at(i).Bytes
}

// FD returns the descriptor at i. The caller may take it; anything left is
// released by Close.
func (a Args) FD(i int) *FD {
	return a.at(i).File
}

// Close releases every descriptor that was not taken.
func (a Args) Close() {
	for _, arg := range a {
		if arg.Type == TypeFD {
			arg.File.Close()
		}
	}
}

// Format renders the list for logs and traces.
func (a Args) Format() string {
	parts := make([]string, len(a))
	for i, arg := range a {
		parts[i] = arg.String()
	}
	return strings.Join(parts, ", ")
}
