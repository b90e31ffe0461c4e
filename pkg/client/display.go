// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package client is the client side of the Wayland protocol. A Display owns
// one connection and its object map; Proxies send requests and receive
// events through Queues. Events are decoded and routed when they are read
// and run when their queue is dispatched, so a caller that owns a private
// queue decides when its handlers fire.
//
// Nothing here is safe for concurrent use.
package client

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/wire"
	"golang.org/x/sys/unix"
)

const (
	displayID     = 1
	serverIDStart = 0xff000000

	defaultDisplayName = "wayland-0"
)

var (
	// ErrNoRuntimeDir is returned when a relative display name cannot be
	// resolved because XDG_RUNTIME_DIR is unset.
	ErrNoRuntimeDir = errors.New("XDG_RUNTIME_DIR is not set")

	// ErrDisconnected is returned after the compositor hung up.
	ErrDisconnected = errors.New("display disconnected")

	// ErrTimeout is returned when a roundtrip exceeds the display timeout.
	ErrTimeout = errors.New("roundtrip timed out")

	// ErrProxyDestroyed is returned for requests on a destroyed proxy.
	ErrProxyDestroyed = errors.New("proxy destroyed")

	// ErrUnsupported is returned for requests newer than the proxy version.
	ErrUnsupported = errors.New("request not supported at proxy version")
)

// ProtocolError is a fatal error reported by the compositor.
type ProtocolError struct {
	ObjectID  uint32
	Interface string
	Code      uint32
	Message   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error %d on %s@%d: %s", e.Code, e.Interface, e.ObjectID, e.Message)
}

// Display is one connection to a compositor.
type Display struct {
	conn    *wire.Conn
	objects map[uint32]*Proxy
	free    []uint32
	nextID  uint32
	proxy   *Proxy
	queue   *Queue
	timeout time.Duration
	err     error
	closed  bool
}

// Connect opens a connection. An empty name uses WAYLAND_SOCKET when it
// holds an inherited descriptor, then WAYLAND_DISPLAY, then wayland-0.
// Relative names are resolved in XDG_RUNTIME_DIR.
func Connect(name string) (*Display, error) {
	if name == "" {
		if s := os.Getenv("WAYLAND_SOCKET"); s != "" {
			fd, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("invalid WAYLAND_SOCKET %q: %w", s, err)
			}
			os.Unsetenv("WAYLAND_SOCKET")
			unix.CloseOnExec(fd)
			return NewDisplay(fd)
		}
		name = os.Getenv("WAYLAND_DISPLAY")
	}
	if name == "" {
		name = defaultDisplayName
	}

	path := name
	if !filepath.IsAbs(name) {
		dir := os.Getenv("XDG_RUNTIME_DIR")
		if dir == "" {
			return nil, ErrNoRuntimeDir
		}
		path = filepath.Join(dir, name)
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket: %w", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to connect to %s: %w", path, err)
	}

	d, err := NewDisplay(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return d, nil
}

// NewDisplay adopts a connected socket. On success the display owns fd.
func NewDisplay(fd int) (*Display, error) {
	conn, err := wire.NewConn(fd)
	if err != nil {
		return nil, err
	}

	d := &Display{
		conn:    conn,
		objects: make(map[uint32]*Proxy),
		nextID:  displayID + 1,
	}
	d.queue = &Queue{display: d}
	d.proxy = &Proxy{display: d, id: displayID, iface: protocol.Display, version: 1, queue: d.queue}
	d.objects[displayID] = d.proxy
	return d, nil
}

// FD returns the socket descriptor for polling.
func (d *Display) FD() int {
	return d.conn.FD()
}

// Proxy returns the wl_display object.
func (d *Display) Proxy() *Proxy {
	return d.proxy
}

// DefaultQueue returns the queue new proxies use unless told otherwise.
func (d *Display) DefaultQueue() *Queue {
	return d.queue
}

// NewQueue creates an empty event queue on this display.
func (d *Display) NewQueue() *Queue {
	return &Queue{display: d}
}

// SetTimeout bounds each Roundtrip. Zero waits forever.
func (d *Display) SetTimeout(timeout time.Duration) {
	d.timeout = timeout
}

// Err returns the fatal error that stopped the display, if any.
func (d *Display) Err() error {
	return d.err
}

// Lookup returns the live proxy with the given id.
func (d *Display) Lookup(id uint32) *Proxy {
	p, ok := d.objects[id]
	if !ok || p.zombie {
		return nil
	}
	return p
}

// GetRegistry creates a wl_registry on the default queue.
func (d *Display) GetRegistry() (*Proxy, error) {
	return d.proxy.Create(protocol.DisplayGetRegistry, wire.NewID(0))
}

// CreateProxy allocates a client-side object without sending any request.
// The compositor side is expected to create the matching object itself.
func (d *Display) CreateProxy(iface *protocol.Interface, version uint32) *Proxy {
	return d.newProxy(d.allocID(), iface, version, d.queue)
}

func (d *Display) allocID() uint32 {
	if n := len(d.free); n > 0 {
		id := d.free[n-1]
		d.free = d.free[:n-1]
		return id
	}
	id := d.nextID
	d.nextID++
	return id
}

func (d *Display) newProxy(id uint32, iface *protocol.Interface, version uint32, q *Queue) *Proxy {
	p := &Proxy{display: d, id: id, iface: iface, version: version, queue: q}
	d.objects[id] = p
	return p
}

// forget drops an object that never reached the compositor.
func (d *Display) forget(p *Proxy) {
	delete(d.objects, p.id)
	if p.id < serverIDStart {
		d.free = append(d.free, p.id)
	}
}

// Flush sends queued requests.
func (d *Display) Flush() error {
	if d.err != nil {
		return d.err
	}
	if err := d.conn.Flush(); err != nil {
		d.fail(fmt.Errorf("%w: %w", ErrDisconnected, err))
		return d.err
	}
	return nil
}

// ReadEvents reads everything available without blocking and routes the
// decoded events to their queues. wl_display events are handled here.
func (d *Display) ReadEvents() error {
	if d.err != nil {
		return d.err
	}

	_, readErr := d.conn.Read()
	for d.err == nil {
		h, body, ok, err := d.conn.Next()
		if err != nil {
			d.fail(err)
			break
		}
		if !ok {
			break
		}
		d.route(h, body)
	}

	if readErr != nil && d.err == nil {
		if errors.Is(readErr, io.EOF) {
			d.fail(ErrDisconnected)
		} else {
			d.fail(fmt.Errorf("%w: %w", ErrDisconnected, readErr))
		}
	}
	return d.err
}

func (d *Display) route(h wire.Header, body []byte) {
	p, ok := d.objects[h.Sender]
	if !ok {
		// Never ours or already forgotten: nothing tells us its signature.
		return
	}

	msg, ok := p.iface.Event(h.Opcode)
	if !ok {
		d.fail(fmt.Errorf("%w: %s has no event %d", wire.ErrSignature, p.iface.Name, h.Opcode))
		return
	}
	args, err := wire.Unmarshal(body, msg.Signature, d.conn)
	if err != nil {
		d.fail(fmt.Errorf("failed to decode %s.%s: %w", p.iface.Name, msg.Name, err))
		return
	}

	if p.zombie {
		args.Close()
		return
	}
	if h.Sender == displayID {
		d.handleDisplayEvent(h.Opcode, args)
		return
	}

	ev := &Event{Proxy: p, Opcode: h.Opcode, Message: msg, Args: args}
	if msg.NewID != nil {
		if i := argIndex(msg.Signature, wire.TypeNewID); i >= 0 {
			ev.NewProxy = d.newProxy(args.NewID(i), msg.NewID, p.version, p.queue)
		}
	}
	p.queue.events = append(p.queue.events, ev)
}

func (d *Display) handleDisplayEvent(opcode uint16, args wire.Args) {
	switch opcode {
	case protocol.DisplayError:
		perr := &ProtocolError{
			ObjectID: args.Object(0),
			Code:     args.Uint(1),
			Message:  args.String(2),
		}
		if p, ok := d.objects[perr.ObjectID]; ok {
			perr.Interface = p.iface.Name
		}
		d.fail(perr)
	case protocol.DisplayDeleteID:
		id := args.Uint(0)
		p, ok := d.objects[id]
		if !ok {
			return
		}
		if p.zombie {
			d.forget(p)
			return
		}
		p.idDeleted = true
	}
}

func (d *Display) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// DispatchPending runs the handlers of events already on the default queue.
func (d *Display) DispatchPending() int {
	return d.queue.DispatchPending()
}

// Dispatch flushes, reads what is available and dispatches the default
// queue. It never blocks.
func (d *Display) Dispatch() (int, error) {
	if err := d.Flush(); err != nil {
		return 0, err
	}
	if err := d.ReadEvents(); err != nil {
		return d.DispatchPending(), err
	}
	return d.DispatchPending(), nil
}

// Roundtrip blocks until the compositor has processed every request sent so
// far, dispatching the default queue meanwhile.
func (d *Display) Roundtrip() error {
	return d.RoundtripQueue(d.queue)
}

// RoundtripQueue is Roundtrip for a specific queue.
func (d *Display) RoundtripQueue(q *Queue) error {
	wrapper := d.proxy.Wrapper(q)
	cb, err := wrapper.Create(protocol.DisplaySync, wire.NewID(0))
	wrapper.DestroyWrapper()
	if err != nil {
		return err
	}

	done := false
	cb.SetHandler(func(*Event) {
		done = true
		cb.Destroy()
	})

	var deadline time.Time
	if d.timeout > 0 {
		deadline = time.Now().Add(d.timeout)
	}

	for !done {
		if err := d.Flush(); err != nil {
			return err
		}
		if err := d.wait(deadline); err != nil {
			return err
		}
		if err := d.ReadEvents(); err != nil {
			return err
		}
		q.DispatchPending()
	}
	return d.err
}

func (d *Display) wait(deadline time.Time) error {
	for {
		timeout := -1
		if !deadline.IsZero() {
			left := time.Until(deadline)
			if left <= 0 {
				return ErrTimeout
			}
			timeout = int(left / time.Millisecond)
			if timeout == 0 {
				timeout = 1
			}
		}

		events := int16(unix.POLLIN)
		if d.conn.Pending() {
			events |= unix.POLLOUT
		}
		fds := []unix.PollFd{{Fd: int32(d.conn.FD()), Events: events}}
		n, err := unix.Poll(fds, timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("failed to poll display: %w", err)
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&unix.POLLOUT != 0 {
			if err := d.Flush(); err != nil {
				return err
			}
		}
		if fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			return nil
		}
	}
}

// Close closes the connection. Proxies become unusable.
func (d *Display) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.fail(wire.ErrClosed)
	d.queue.drop()
	return d.conn.Close()
}

func argIndex(signature string, t wire.ArgType) int {
	i := 0
	for _, c := range []byte(signature) {
		if c == '?' || (c >= '0' && c <= '9') {
			continue
		}
		if wire.ArgType(c) == t {
			return i
		}
		i++
	}
	return -1
}
