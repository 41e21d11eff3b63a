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

package codec

import (
	"bytes"
	"reflect"
	"testing"
)

type simpleEntry struct {
	ExecID  string `codec:"0"`
	Seq     uint64 `codec:"1"`
	Payload []byte `codec:"2"`
	Final   bool   `codec:"3"`
}

type nested struct {
	Inner simpleEntry `codec:"0"`
	Tag   string      `codec:"1"`
}

type withProof struct {
	Leaf   []byte   `codec:"0"`
	Proof  [][]byte `codec:"1"`
	Fanout uint32   `codec:"2"`
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	want := simpleEntry{
		ExecID:  "exec-1",
		Seq:     42,
		Payload: []byte("step output"),
		Final:   true,
	}
	enc, err := Encode(&want)
	if err != nil {
		t.Fatal(err)
	}
	var have simpleEntry
	if err := Decode(enc, &have); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(want, have) {
		t.Fatalf("roundtrip mismatch:\nwant %+v\nhave %+v", want, have)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	e := simpleEntry{ExecID: "exec-1", Seq: 7, Payload: []byte{1, 2, 3}}
	a, err := Encode(&e)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(&e)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("Encode produced different bytes for the same value")
	}
}

func TestEncodeLeadingVersionByte(t *testing.T) {
	e := simpleEntry{ExecID: "x"}
	enc, err := Encode(&e)
	if err != nil {
		t.Fatal(err)
	}
	if enc[0] != Version {
		t.Fatalf("leading byte = %d, want %d", enc[0], Version)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	if err := Decode([]byte{0xff, 0x00}, &simpleEntry{}); err == nil {
		t.Fatal("expected error for unknown version byte")
	}
}

func TestDecodeRejectsEmptyInput(t *testing.T) {
	if err := Decode(nil, &simpleEntry{}); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestNestedStructRoundtrip(t *testing.T) {
	want := nested{
		Inner: simpleEntry{ExecID: "e", Seq: 1, Payload: []byte{9}},
		Tag:   "outer",
	}
	enc, err := Encode(&want)
	if err != nil {
		t.Fatal(err)
	}
	var have nested
	if err := Decode(enc, &have); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(want, have) {
		t.Fatalf("roundtrip mismatch:\nwant %+v\nhave %+v", want, have)
	}
}

func TestSliceOfBytesRoundtrip(t *testing.T) {
	want := withProof{
		Leaf:   []byte("leaf-hash"),
		Proof:  [][]byte{[]byte("sib-1"), []byte("sib-2"), []byte("sib-3")},
		Fanout: 2,
	}
	enc, err := Encode(&want)
	if err != nil {
		t.Fatal(err)
	}
	var have withProof
	if err := Decode(enc, &have); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(want, have) {
		t.Fatalf("roundtrip mismatch:\nwant %+v\nhave %+v", want, have)
	}
}

func TestMinimalUintEncodingOmitsLeadingZeros(t *testing.T) {
	small := simpleEntry{ExecID: "e", Seq: 1}
	large := simpleEntry{ExecID: "e", Seq: 1 << 40}
	smallEnc, err := Encode(&small)
	if err != nil {
		t.Fatal(err)
	}
	largeEnc, err := Encode(&large)
	if err != nil {
		t.Fatal(err)
	}
	if len(largeEnc) <= len(smallEnc) {
		t.Fatalf("expected larger uint to encode to more bytes: %d vs %d", len(largeEnc), len(smallEnc))
	}
}

func TestNonContiguousTagsRejected(t *testing.T) {
	type bad struct {
		A string `codec:"0"`
		B string `codec:"2"`
	}
	_, err := Encode(&bad{A: "x", B: "y"})
	if err == nil {
		t.Fatal("expected error for non-contiguous codec tags")
	}
}

func TestDecodeIntoWrongKindFails(t *testing.T) {
	type mismatched struct {
		ExecID uint64 `codec:"0"`
	}
	e := simpleEntry{ExecID: "not-a-number"}
	enc, err := Encode(&e)
	if err != nil {
		t.Fatal(err)
	}
	if err := Decode(enc, &mismatched{}); err == nil {
		t.Fatal("expected error decoding string wire value into uint64 field")
	}
}
