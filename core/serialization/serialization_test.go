// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package serialization

import (
	"bytes"
	"testing"
)

// TestVarIntRoundTrip ensures canonical varints survive a round trip at
// every encoding width boundary.
func TestVarIntRoundTrip(t *testing.T) {
	tests := []struct {
		value uint64
		size  int
	}{
		{0, 1},
		{0xfc, 1},
		{0xfd, 3},
		{0xffff, 3},
		{0x10000, 5},
		{0xffffffff, 5},
		{0x100000000, 9},
		{0xffffffffffffffff, 9},
	}
	for _, test := range tests {
		var buf bytes.Buffer
		if err := WriteVarInt(&buf, test.value); err != nil {
			t.Fatalf("WriteVarInt(%d): %v", test.value, err)
		}
		if buf.Len() != test.size {
			t.Errorf("WriteVarInt(%d): encoded %d bytes, want %d",
				test.value, buf.Len(), test.size)
		}
		decoded, err := ReadVarInt(&buf)
		if err != nil {
			t.Fatalf("ReadVarInt(%d): %v", test.value, err)
		}
		if decoded != test.value {
			t.Errorf("varint round trip: got %d, want %d", decoded, test.value)
		}
	}
}

// TestVarIntNonCanonical ensures oversized encodings of small values are
// rejected.
func TestVarIntNonCanonical(t *testing.T) {
	tests := [][]byte{
		{0xfd, 0x01, 0x00},             // 1 encoded with 3 bytes
		{0xfe, 0xff, 0xff, 0x00, 0x00}, // 0xffff encoded with 5 bytes
		{0xff, 0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x00},
	}
	for _, test := range tests {
		if _, err := ReadVarInt(bytes.NewReader(test)); err == nil {
			t.Errorf("ReadVarInt(%x): accepted non-canonical encoding", test)
		}
	}
}

// TestVarBytes exercises length-prefixed payloads including the empty
// one.
func TestVarBytes(t *testing.T) {
	payloads := [][]byte{nil, {0x01}, bytes.Repeat([]byte{0xab}, 300)}
	for _, payload := range payloads {
		var buf bytes.Buffer
		if err := WriteVarBytes(&buf, payload); err != nil {
			t.Fatalf("WriteVarBytes: %v", err)
		}
		decoded, err := ReadVarBytes(&buf)
		if err != nil {
			t.Fatalf("ReadVarBytes: %v", err)
		}
		if !bytes.Equal(decoded, payload) {
			t.Errorf("var bytes round trip: got %x, want %x", decoded, payload)
		}
	}
}

// TestScalarsLittleEndian pins the wire order of multibyte scalars.
func TestScalarsLittleEndian(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteUint32(&buf, 0x01020304); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x04, 0x03, 0x02, 0x01}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("WriteUint32: got %x, want %x", buf.Bytes(), want)
	}
	v, err := ReadUint32(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x01020304 {
		t.Errorf("ReadUint32: got %08x", v)
	}
}
