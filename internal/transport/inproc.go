// Copyright 2024 The qflow Authors
// This file is part of the qflow library.
//
// The qflow library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The qflow library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the qflow library. If not, see <http://www.gnu.org/licenses/>.

package transport

import (
	"sync"

	"github.com/qflow/qflow/event"
)

// InProc is a PubSub implementation local to one process, built on
// event.Feed exactly as the teacher wires up its in-process notification
// channels (e.g. core's chain-event feeds): one Feed per topic, created
// lazily on first Publish or Subscribe. It is meant for single-node tests
// and for wiring a node's own components together without a real socket.
type InProc struct {
	mu     sync.Mutex
	feeds  map[string]*event.Feed
	closed bool
}

// NewInProc creates an empty in-process transport.
func NewInProc() *InProc {
	return &InProc{feeds: make(map[string]*event.Feed)}
}

func (t *InProc) feedFor(topic string) *event.Feed {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.feeds[topic]
	if !ok {
		f = new(event.Feed)
		t.feeds[topic] = f
	}
	return f
}

// Publish sends payload to every current subscriber of topic. Send on an
// event.Feed with zero subscribers is a no-op, matching pub/sub semantics
// (no message durability, no backlog for late subscribers).
func (t *InProc) Publish(topic string, payload []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.mu.Unlock()
	t.feedFor(topic).Send(Message{Topic: topic, Payload: payload})
	return nil
}

// Subscribe returns a channel receiving every future Message published to
// topic, and an unsubscribe function.
func (t *InProc) Subscribe(topic string) (<-chan Message, func(), error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, nil, ErrClosed
	}
	t.mu.Unlock()
	ch := make(chan Message, 16)
	sub := t.feedFor(topic).Subscribe(ch)
	return ch, sub.Unsubscribe, nil
}

// Close marks the transport closed; existing subscriptions remain valid
// (event.Feed has no notion of closing), but new Publish/Subscribe calls
// fail.
func (t *InProc) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
