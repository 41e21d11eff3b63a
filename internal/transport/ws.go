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
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WS is a PubSub implementation for real inter-node gossip: every peer
// connection (dialed out or accepted) carries one JSON-encoded Message per
// websocket message in both directions. Locally published messages and messages
// received from any peer both flow through an embedded InProc, so
// Subscribe sees one merged stream regardless of origin.
type WS struct {
	local *InProc

	mu    sync.Mutex
	peers map[string]*wsPeer
}

type wsPeer struct {
	nodeID string
	conn   *websocket.Conn
	wmu    sync.Mutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The mesh topology (who may peer with whom) is established by an
	// external collaborator (§1) before a connection ever reaches here;
	// this transport only moves bytes between already-trusted peers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewWS creates an empty websocket transport.
func NewWS() *WS {
	return &WS{local: NewInProc(), peers: make(map[string]*wsPeer)}
}

// Handler returns an http.HandlerFunc that upgrades incoming connections
// and registers them as a peer under peerID (taken from a header or query
// param by the caller before invoking this, since the handshake/identity
// exchange is deployment-specific).
func (w *WS) Handler(peerID string) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		w.addPeer(peerID, conn)
	}
}

// Dial connects to a peer's websocket endpoint and registers it under
// peerID.
func (w *WS) Dial(peerID, url string) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", peerID, err)
	}
	w.addPeer(peerID, conn)
	return nil
}

func (w *WS) addPeer(peerID string, conn *websocket.Conn) {
	p := &wsPeer{nodeID: peerID, conn: conn}
	w.mu.Lock()
	w.peers[peerID] = p
	w.mu.Unlock()
	go w.readLoop(p)
}

func (w *WS) readLoop(p *wsPeer) {
	defer func() {
		w.mu.Lock()
		delete(w.peers, p.nodeID)
		w.mu.Unlock()
		p.conn.Close()
	}()
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		msg.From = p.nodeID
		w.local.feedFor(msg.Topic).Send(msg)
	}
}

// Publish fans payload out to every connected peer and every local
// subscriber.
func (w *WS) Publish(topic string, payload []byte) error {
	msg := Message{Topic: topic, Payload: payload}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	w.mu.Lock()
	peers := make([]*wsPeer, 0, len(w.peers))
	for _, p := range w.peers {
		peers = append(peers, p)
	}
	w.mu.Unlock()

	for _, p := range peers {
		p.wmu.Lock()
		_ = p.conn.WriteMessage(websocket.TextMessage, data)
		p.wmu.Unlock()
	}
	return w.local.Publish(topic, payload)
}

// Subscribe returns a channel receiving every Message published to topic,
// whether it originated locally or from a remote peer.
func (w *WS) Subscribe(topic string) (<-chan Message, func(), error) {
	return w.local.Subscribe(topic)
}

// Close disconnects every peer.
func (w *WS) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, p := range w.peers {
		p.conn.Close()
		delete(w.peers, id)
	}
	return w.local.Close()
}
