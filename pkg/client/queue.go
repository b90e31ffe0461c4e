// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"github.com/absmach/wlmux/pkg/protocol"
	"github.com/absmach/wlmux/pkg/wire"
)

// Event is one decoded event waiting on a queue.
type Event struct {
	Proxy   *Proxy
	Opcode  uint16
	Message protocol.Message
	Args    wire.Args

	// NewProxy is the object created by a new_id argument, if any.
	NewProxy *Proxy
}

// Object resolves the object argument at i to a live proxy.
func (e *Event) Object(i int) *Proxy {
	id := e.Args.Object(i)
	if id == 0 {
		return nil
	}
	return e.Proxy.display.Lookup(id)
}

// Close releases descriptors the handler did not take.
func (e *Event) Close() {
	e.Args.Close()
}

// Queue holds events until they are dispatched.
type Queue struct {
	display *Display
	events  []*Event
}

// Display returns the display the queue belongs to.
func (q *Queue) Display() *Display {
	return q.display
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return len(q.events)
}

// DispatchPending runs the handlers of every queued event, including events
// queued by the handlers themselves, and returns how many ran. Events for
// destroyed proxies or proxies without a handler are discarded.
func (q *Queue) DispatchPending() int {
	n := 0
	for len(q.events) > 0 {
		ev := q.events[0]
		q.events[0] = nil
		q.events = q.events[1:]

		p := ev.Proxy
		if p.zombie || p.handler == nil {
			ev.Close()
			continue
		}
		p.handler(ev)
		ev.Close()
		n++
	}
	return n
}

// Roundtrip is Display.RoundtripQueue for q.
func (q *Queue) Roundtrip() error {
	return q.display.RoundtripQueue(q)
}

func (q *Queue) drop() {
	for _, ev := range q.events {
		ev.Close()
	}
	q.events = nil
}
