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
	"errors"
	"testing"
	"time"
)

func TestInProcPublishDeliversToSubscriber(t *testing.T) {
	tr := NewInProc()
	ch, unsub, err := tr.Subscribe("ledger.exec-1")
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()

	if err := tr.Publish("ledger.exec-1", []byte("payload")); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-ch:
		if string(msg.Payload) != "payload" {
			t.Fatalf("payload = %q, want %q", msg.Payload, "payload")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestInProcTopicsAreIsolated(t *testing.T) {
	tr := NewInProc()
	chA, unsubA, _ := tr.Subscribe("a")
	defer unsubA()
	chB, unsubB, _ := tr.Subscribe("b")
	defer unsubB()

	if err := tr.Publish("a", []byte("x")); err != nil {
		t.Fatal(err)
	}

	select {
	case <-chA:
	case <-time.After(time.Second):
		t.Fatal("expected message on topic a")
	}
	select {
	case <-chB:
		t.Fatal("did not expect message on topic b")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInProcClosedRejectsNewCalls(t *testing.T) {
	tr := NewInProc()
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Publish("x", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	if _, _, err := tr.Subscribe("x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
