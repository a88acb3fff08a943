// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package types defines the canonical on-chain entities: hashes,
// destinations, transactions, blocks, fork profiles and fork contexts.
package types

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"math/big"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// HashSize is the length in bytes of a Hash.
const HashSize = 32

// Hash is a 256-bit value. Block hashes carry the block height in their
// most significant 32 bits so the height is recoverable without loading
// the block body.
type Hash [HashSize]byte

// ZeroHash is the all-zero hash.
var ZeroHash Hash

// HashB computes the blake2b-256 digest of b.
func HashB(b []byte) Hash {
	return Hash(blake2b.Sum256(b))
}

// HashPair computes the digest of the concatenation of two hashes. It is
// the node function of the merkle tree.
func HashPair(left, right Hash) Hash {
	var buf [2 * HashSize]byte
	copy(buf[:HashSize], left[:])
	copy(buf[HashSize:], right[:])
	return Hash(blake2b.Sum256(buf[:]))
}

// IsZero returns whether the hash is all zeros.
func (h *Hash) IsZero() bool {
	return *h == ZeroHash
}

// Height returns the block height encoded in the most significant 32 bits.
func (h *Hash) Height() uint32 {
	return binary.LittleEndian.Uint32(h[28:])
}

// SetHeight replaces the most significant 32 bits with the given height.
func (h *Hash) SetHeight(height uint32) {
	binary.LittleEndian.PutUint32(h[28:], height)
}

// Bits64 returns a sub-word of the hash: idx selects one of the four 64-bit
// little-endian words. It feeds the random beacon.
func (h *Hash) Bits64(idx int) uint64 {
	return binary.LittleEndian.Uint64(h[(idx&3)*8:])
}

// Big returns the hash interpreted as an unsigned big-endian integer. The
// in-memory order is little-endian, so the bytes are reversed first.
func (h *Hash) Big() *big.Int {
	var buf [HashSize]byte
	for i := 0; i < HashSize; i++ {
		buf[i] = h[HashSize-1-i]
	}
	return new(big.Int).SetBytes(buf[:])
}

// BigToHash converts n to a Hash, truncating to 256 bits.
func BigToHash(n *big.Int) Hash {
	var h Hash
	b := n.Bytes()
	if len(b) > HashSize {
		b = b[len(b)-HashSize:]
	}
	for i := 0; i < len(b); i++ {
		h[i] = b[len(b)-1-i]
	}
	return h
}

// String returns the hash as the hexadecimal string of the byte-reversed
// value, matching the conventional display order.
func (h Hash) String() string {
	for i := 0; i < HashSize/2; i++ {
		h[i], h[HashSize-1-i] = h[HashSize-1-i], h[i]
	}
	return hex.EncodeToString(h[:])
}

// NewHashFromStr parses a hash from its display-order hex form. Missing
// leading zeros are padded.
func NewHashFromStr(s string) (Hash, error) {
	var h Hash
	if len(s) > HashSize*2 {
		return h, errors.Errorf("max hash string length is %d bytes", HashSize*2)
	}
	var buf [HashSize]byte
	if len(s)%2 != 0 {
		s = "0" + s
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, errors.WithStack(err)
	}
	copy(buf[HashSize-len(decoded):], decoded)
	for i := 0; i < HashSize; i++ {
		h[i] = buf[HashSize-1-i]
	}
	return h, nil
}

// Serialize writes the raw hash bytes to w.
func (h *Hash) Serialize(w io.Writer) error {
	_, err := w.Write(h[:])
	return errors.WithStack(err)
}

// Deserialize reads the raw hash bytes from r.
func (h *Hash) Deserialize(r io.Reader) error {
	_, err := io.ReadFull(r, h[:])
	return errors.WithStack(err)
}
