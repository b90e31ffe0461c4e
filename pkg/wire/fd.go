// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"strconv"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// FD owns a file descriptor until it is taken or closed.
type FD struct {
	fd   int
	done atomic.Bool
}

// NewFD wraps fd. The returned FD owns it.
func NewFD(fd int) *FD {
	return &FD{fd: fd}
}

// Take transfers ownership of the raw descriptor to the caller. It succeeds
// at most once and never after Close.
func (f *FD) Take() (int, bool) {
	if f == nil || !f.done.CompareAndSwap(false, true) {
		return -1, false
	}
	return f.fd, true
}

// Close closes the descriptor unless it was already taken or closed.
func (f *FD) Close() error {
	fd, ok := f.Take()
	if !ok {
		return nil
	}
	return unix.Close(fd)
}

// Valid reports whether f still owns its descriptor.
func (f *FD) Valid() bool {
	return f != nil && !f.done.Load()
}

func (f *FD) String() string {
	if !f.Valid() {
		return "fd(released)"
	}
	return "fd(" + strconv.Itoa(f.fd) + ")"
}
