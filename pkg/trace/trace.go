// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package trace streams forwarded protocol messages to WebSocket
// subscribers.
package trace

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Direction indicates the direction of message flow.
type Direction int

const (
	// Upstream represents requests flowing from a client to the compositor.
	Upstream Direction = iota

	// Downstream represents events flowing from the compositor to a client.
	Downstream
)

// String returns a string representation of the direction.
func (d Direction) String() string {
	switch d {
	case Upstream:
		return "upstream"
	case Downstream:
		return "downstream"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Record is one traced message.
type Record struct {
	Time      time.Time `json:"time"`
	Session   string    `json:"session"`
	Direction Direction `json:"direction"`
	Interface string    `json:"interface"`
	Object    uint32    `json:"object"`
	Message   string    `json:"message"`
}

const sendBuffer = 256

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

func (s *subscriber) writePump() {
	defer s.conn.Close()
	for msg := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Hub fans records out to subscribers. Publish never blocks: a subscriber
// whose buffer is full is disconnected.
type Hub struct {
	mu       sync.RWMutex
	subs     map[*subscriber]struct{}
	count    atomic.Int32
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

var _ http.Handler = (*Hub)(nil)

// NewHub creates a hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Active reports whether anyone is subscribed. Callers check it before
// formatting records.
func (h *Hub) Active() bool {
	return h != nil && h.count.Load() > 0
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	return int(h.count.Load())
}

// Publish sends r to every subscriber.
func (h *Hub) Publish(r Record) {
	if !h.Active() {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		h.logger.Error("failed to marshal trace record", slog.String("error", err.Error()))
		return
	}

	// Sends never block, so they run under the read lock that keeps remove
	// from closing a channel in between.
	var slow []*subscriber
	h.mu.RLock()
	for s := range h.subs {
		select {
		case s.send <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.logger.Warn("trace subscriber too slow, disconnecting",
			slog.String("remote", s.conn.RemoteAddr().String()))
		h.remove(s)
	}
}

// ServeHTTP upgrades the request and subscribes the connection until the
// peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade trace connection",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	go s.writePump()

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.count.Add(1)
	h.mu.Unlock()

	h.logger.Debug("trace subscriber connected", slog.String("remote", r.RemoteAddr))

	// Subscribers never send anything; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(s)
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		h.count.Add(-1)
		close(s.send)
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		close(s.send)
	}
	h.count.Store(0)
}
