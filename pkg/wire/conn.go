// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned by operations on a closed Conn.
var ErrClosed = errors.New("connection closed")

const (
	readChunk = 4096

	// maxPending bounds the outgoing buffer before Write forces a flush.
	maxPending = 64 * 1024
)

// Conn is a non-blocking Wayland connection over a unix stream socket.
// It is not safe for concurrent use.
type Conn struct {
	fd     int
	in     []byte
	inFDs  []*FD
	out    []byte
	outFDs []int
	closed bool

	rbuf []byte
	oob  []byte
}

// NewConn takes ownership of fd and switches it to non-blocking mode.
func NewConn(fd int) (*Conn, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("failed to set non-blocking mode: %w", err)
	}
	return &Conn{
		fd:   fd,
		rbuf: make([]byte, readChunk),
		oob:  make([]byte, unix.CmsgSpace(MaxFDs*4)),
	}, nil
}

// FD returns the socket descriptor for polling.
func (c *Conn) FD() int {
	return c.fd
}

// Read drains every byte and descriptor currently available on the socket.
// It returns io.EOF once the peer has hung up.
func (c *Conn) Read() (int, error) {
	if c.closed {
		return 0, ErrClosed
	}

	total := 0
	for {
		n, oobn, _, _, err := unix.Recvmsg(c.fd, c.rbuf, c.oob, unix.MSG_DONTWAIT|unix.MSG_CMSG_CLOEXEC)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return total, nil
		case err != nil:
			return total, fmt.Errorf("failed to receive: %w", err)
		}

		if oobn > 0 {
			if err := c.collectFDs(c.oob[:oobn]); err != nil {
				return total, err
			}
		}
		if n == 0 {
			return total, io.EOF
		}
		c.in = append(c.in, c.rbuf[:n]...)
		total += n
	}
}

func (c *Conn) collectFDs(oob []byte) error {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return fmt.Errorf("failed to parse control message: %w", err)
	}
	for i := range msgs {
		fds, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			continue
		}
		for _, fd := range fds {
			c.inFDs = append(c.inFDs, NewFD(fd))
		}
	}
	return nil
}

// Next returns the next complete message in the input buffer. The body
// excludes the header and stays valid until the next Read.
func (c *Conn) Next() (Header, []byte, bool, error) {
	if len(c.in) < HeaderSize {
		return Header{}, nil, false, nil
	}
	h, err := ParseHeader(c.in)
	if err != nil {
		return Header{}, nil, false, err
	}
	if len(c.in) < int(h.Size) {
		return Header{}, nil, false, nil
	}
	body := c.in[HeaderSize:h.Size]
	c.in = c.in[h.Size:]
	return h, body, true, nil
}

// NextFD pops the oldest received descriptor.
func (c *Conn) NextFD() (*FD, bool) {
	if len(c.inFDs) == 0 {
		return nil, false
	}
	fd := c.inFDs[0]
	c.inFDs = c.inFDs[1:]
	return fd, true
}

// Write queues a message. Descriptor arguments are taken immediately and
// closed once sent; a descriptor that was already taken fails the write.
func (c *Conn) Write(sender uint32, opcode uint16, args ...Arg) error {
	if c.closed {
		Args(args).Close()
		return ErrClosed
	}

	buf, fds, err := Marshal(sender, opcode, args)
	if err != nil {
		Args(args).Close()
		return err
	}

	if len(c.outFDs)+len(fds) > MaxFDs || len(c.out)+len(buf) > maxPending {
		if err := c.Flush(); err != nil {
			Args(args).Close()
			return err
		}
	}

	raw := make([]int, 0, len(fds))
	for _, f := range fds {
		fd, ok := f.Take()
		if !ok {
			for _, r := range raw {
				unix.Close(r)
			}
			Args(args).Close()
			return fmt.Errorf("%w: descriptor already released", ErrMissingFD)
		}
		raw = append(raw, fd)
	}

	c.out = append(c.out, buf...)
	c.outFDs = append(c.outFDs, raw...)
	return nil
}

// Pending reports whether queued output remains unsent.
func (c *Conn) Pending() bool {
	return len(c.out) > 0
}

// Flush sends as much queued output as the socket accepts. A full socket is
// not an error; the rest stays queued.
func (c *Conn) Flush() error {
	if c.closed {
		return ErrClosed
	}

	for len(c.out) > 0 {
		n := min(len(c.outFDs), MaxFDs)
		var oob []byte
		if n > 0 {
			oob = unix.UnixRights(c.outFDs[:n]...)
		}

		written, err := unix.SendmsgN(c.fd, c.out, oob, nil, unix.MSG_DONTWAIT|unix.MSG_NOSIGNAL)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return nil
		case err != nil:
			return fmt.Errorf("failed to send: %w", err)
		}

		for _, fd := range c.outFDs[:n] {
			unix.Close(fd)
		}
		c.outFDs = c.outFDs[n:]
		c.out = c.out[written:]
	}

	return nil
}

// Close closes the socket and every descriptor still queued in either
// direction. It is safe to call more than once.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	for _, fd := range c.inFDs {
		fd.Close()
	}
	for _, fd := range c.outFDs {
		unix.Close(fd)
	}
	c.inFDs, c.outFDs, c.in, c.out = nil, nil, nil, nil

	return unix.Close(c.fd)
}
