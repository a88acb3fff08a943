// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package serialization implements the canonical byte encoding shared by
// every on-chain entity. Multibyte scalars are little-endian, variable
// length payloads are prefixed with a compact varint, and map-like
// structures are written in ascending key order so that the encoding of a
// value is deterministic.
package serialization

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MaxVarIntPayload is the maximum payload length a compact varint is
// allowed to announce. It matches the block size cap so a corrupt length
// prefix cannot trigger a huge allocation.
const MaxVarIntPayload = 2000000

// WriteUint8 writes a single byte to w.
func WriteUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return errors.WithStack(err)
}

// WriteUint16 writes v to w in little-endian order.
func WriteUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return errors.WithStack(err)
}

// WriteUint32 writes v to w in little-endian order.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return errors.WithStack(err)
}

// WriteUint64 writes v to w in little-endian order.
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return errors.WithStack(err)
}

// WriteInt64 writes v to w in little-endian order.
func WriteInt64(w io.Writer, v int64) error {
	return WriteUint64(w, uint64(v))
}

// WriteInt32 writes v to w in little-endian order.
func WriteInt32(w io.Writer, v int32) error {
	return WriteUint32(w, uint32(v))
}

// ReadUint8 reads a single byte from r.
func ReadUint8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, errors.WithStack(err)
	}
	return buf[0], nil
}

// ReadUint16 reads a little-endian uint16 from r.
func ReadUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, errors.WithStack(err)
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// ReadUint32 reads a little-endian uint32 from r.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, errors.WithStack(err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadUint64 reads a little-endian uint64 from r.
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, errors.WithStack(err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadInt64 reads a little-endian int64 from r.
func ReadInt64(r io.Reader) (int64, error) {
	v, err := ReadUint64(r)
	return int64(v), err
}

// ReadInt32 reads a little-endian int32 from r.
func ReadInt32(r io.Reader) (int32, error) {
	v, err := ReadUint32(r)
	return int32(v), err
}

// WriteVarInt writes v as a compact varint: values below 0xfd are a single
// byte, larger values get a 0xfd/0xfe/0xff marker followed by the
// little-endian 2/4/8 byte value.
func WriteVarInt(w io.Writer, v uint64) error {
	switch {
	case v < 0xfd:
		return WriteUint8(w, uint8(v))
	case v <= 0xffff:
		if err := WriteUint8(w, 0xfd); err != nil {
			return err
		}
		return WriteUint16(w, uint16(v))
	case v <= 0xffffffff:
		if err := WriteUint8(w, 0xfe); err != nil {
			return err
		}
		return WriteUint32(w, uint32(v))
	default:
		if err := WriteUint8(w, 0xff); err != nil {
			return err
		}
		return WriteUint64(w, v)
	}
}

// ReadVarInt reads a compact varint from r. It rejects non-canonical
// encodings so that every value has exactly one byte representation.
func ReadVarInt(r io.Reader) (uint64, error) {
	discriminant, err := ReadUint8(r)
	if err != nil {
		return 0, err
	}
	var v uint64
	switch discriminant {
	case 0xff:
		v, err = ReadUint64(r)
		if err != nil {
			return 0, err
		}
		if v <= 0xffffffff {
			return 0, errors.New("non-canonical varint")
		}
	case 0xfe:
		v32, err := ReadUint32(r)
		if err != nil {
			return 0, err
		}
		v = uint64(v32)
		if v <= 0xffff {
			return 0, errors.New("non-canonical varint")
		}
	case 0xfd:
		v16, err := ReadUint16(r)
		if err != nil {
			return 0, err
		}
		v = uint64(v16)
		if v < 0xfd {
			return 0, errors.New("non-canonical varint")
		}
	default:
		v = uint64(discriminant)
	}
	return v, nil
}

// WriteVarBytes writes a varint length prefix followed by b.
func WriteVarBytes(w io.Writer, b []byte) error {
	if err := WriteVarInt(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return errors.WithStack(err)
}

// ReadVarBytes reads a varint length prefix and that many bytes from r.
func ReadVarBytes(r io.Reader) ([]byte, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if n > MaxVarIntPayload {
		return nil, errors.Errorf("variable payload of %d bytes exceeds limit of %d",
			n, MaxVarIntPayload)
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}

// WriteVarString writes s as a varint-prefixed byte string.
func WriteVarString(w io.Writer, s string) error {
	return WriteVarBytes(w, []byte(s))
}

// ReadVarString reads a varint-prefixed byte string from r.
func ReadVarString(r io.Reader) (string, error) {
	b, err := ReadVarBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
