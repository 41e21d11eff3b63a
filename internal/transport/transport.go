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

// Package transport is the core's side of the peer gossip/mesh overlay
// (§4.7): a small pub/sub interface, on which the node publishes each
// step's emitted events (internal/coordination does not use it), with an
// in-process implementation for
// single-node tests and a gorilla/websocket implementation for real
// inter-node gossip. Establishing and maintaining the mesh topology
// itself is an external collaborator (§1); this package only moves bytes
// once peers are connected.
package transport

import "errors"

// ErrClosed is returned by Publish/Subscribe once the transport has been
// closed.
var ErrClosed = errors.New("transport: closed")

// Message is one published envelope: Topic routes it (the node publishes
// step events under "events.<execID>"), Payload is the topic-specific
// bytes.
type Message struct {
	Topic   string
	From    string // node_id of the sender, empty for locally-originated
	Payload []byte
}

// PubSub is the peer transport's public surface. Publish fans a message
// out to every current subscriber of Topic, local or remote depending on
// the implementation; Subscribe returns a channel of messages for Topic
// and an unsubscribe function.
type PubSub interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}
