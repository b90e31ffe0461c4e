// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handler provides the notification interface that links the
// multiplexer to application logic.
//
// # Data Flow
//
//	Client → Session → Adapter → upstream compositor
//	upstream compositor → Adapter → Session → Client
//	                 ↘ Handler (notified at lifecycle points)
//
// # Handler Methods
//
//   - OnSessionOpen: a client connection was registered
//   - OnSessionClose: a session was torn down
//   - OnBind: a client bound a global
//   - OnGlobalAdd, OnGlobalRemove: a global was advertised or withdrawn
//   - OnProtocolError: an error was posted to a client
//
// Handlers run on the dispatching goroutine and must not block. Returned
// errors are logged and otherwise ignored.
//
// # Context
//
// The Context struct carries session metadata across all handler calls:
//   - SessionID: unique identifier of the session
//   - PID, UID, GID: peer credentials of the client socket, when known
//
// # Example
//
//	type AuditHandler struct {
//		handler.NoopHandler
//		log *slog.Logger
//	}
//
//	func (h *AuditHandler) OnBind(ctx context.Context, hctx *handler.Context, iface string, version uint32) error {
//		h.log.Info("bind", slog.String("session", hctx.SessionID), slog.String("interface", iface))
//		return nil
//	}
package handler
