// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import "context"

// Context contains the metadata of one client session.
type Context struct {
	// SessionID is a unique identifier for this session
	SessionID string

	// PID, UID and GID are the peer credentials of the client socket.
	// They describe the multiplexer process itself for in-process peers.
	PID int32
	UID uint32
	GID uint32
}

// Global describes an advertised global.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// Handler defines notification callbacks for multiplexer events.
type Handler interface {
	// OnSessionOpen is called after a client connection is registered.
	OnSessionOpen(ctx context.Context, hctx *Context) error

	// OnSessionClose is called after a session and all its objects are gone.
	OnSessionClose(ctx context.Context, hctx *Context) error

	// OnBind is called after a client bound a global at the negotiated version.
	OnBind(ctx context.Context, hctx *Context, iface string, version uint32) error

	// OnGlobalAdd is called after a global is advertised.
	OnGlobalAdd(ctx context.Context, g Global) error

	// OnGlobalRemove is called after a global is withdrawn.
	OnGlobalRemove(ctx context.Context, g Global) error

	// OnProtocolError is called after an error was posted to a client.
	OnProtocolError(ctx context.Context, hctx *Context, err error) error
}

// NoopHandler is a Handler implementation that ignores every event.
type NoopHandler struct{}

var _ Handler = (*NoopHandler)(nil)

func (h *NoopHandler) OnSessionOpen(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnSessionClose(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnBind(ctx context.Context, hctx *Context, iface string, version uint32) error {
	return nil
}

func (h *NoopHandler) OnGlobalAdd(ctx context.Context, g Global) error {
	return nil
}

func (h *NoopHandler) OnGlobalRemove(ctx context.Context, g Global) error {
	return nil
}

func (h *NoopHandler) OnProtocolError(ctx context.Context, hctx *Context, err error) error {
	return nil
}
