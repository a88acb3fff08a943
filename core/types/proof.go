// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package types

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// DelegateProofPrefixSize is the length of the consensus prefix opening
// every primary block proof: one weight byte followed by the agreement
// digest. A work block carries an all-zero prefix, which is how the
// stake verifier recognizes the work fallback; a stake or subsidiary
// block's first byte doubles as its trust weight.
const DelegateProofPrefixSize = 1 + HashSize

// Work algorithms.
const (
	ProofOfWorkAlgoBlake2b uint8 = 1
)

// ProofOfHashWorkSize is the full size of a work proof: the zero
// consensus prefix plus algo, bits and a 64-bit nonce.
const ProofOfHashWorkSize = DelegateProofPrefixSize + 10

// ProofOfHashWork is the compact proof carried by a work-minted block.
type ProofOfHashWork struct {
	Algo  uint8
	Bits  uint8
	Nonce uint64
}

// Load parses the proof from a block proof payload.
func (p *ProofOfHashWork) Load(proof []byte) error {
	if len(proof) < ProofOfHashWorkSize {
		return errors.Errorf("work proof too short: %d bytes", len(proof))
	}
	body := proof[DelegateProofPrefixSize:]
	p.Algo = body[0]
	p.Bits = body[1]
	p.Nonce = binary.LittleEndian.Uint64(body[2:10])
	return nil
}

// Save renders the proof into a block proof payload.
func (p *ProofOfHashWork) Save() []byte {
	buf := make([]byte, ProofOfHashWorkSize)
	body := buf[DelegateProofPrefixSize:]
	body[0] = p.Algo
	body[1] = p.Bits
	binary.LittleEndian.PutUint64(body[2:], p.Nonce)
	return buf
}

// ProofOfPiggybackSize is the serialized size of a subsidiary-fork
// proof: the consensus prefix plus the referenced primary block.
const ProofOfPiggybackSize = DelegateProofPrefixSize + HashSize

// ProofOfPiggyback ties a subsidiary or extended block to the primary
// chain agreement that produced it.
type ProofOfPiggyback struct {
	Weight       uint8
	Agreement    Hash
	HashRefBlock Hash
}

// Load parses the proof from a block proof payload.
func (p *ProofOfPiggyback) Load(proof []byte) error {
	if len(proof) < ProofOfPiggybackSize {
		return errors.Errorf("piggyback proof too short: %d bytes", len(proof))
	}
	p.Weight = proof[0]
	copy(p.Agreement[:], proof[1:1+HashSize])
	copy(p.HashRefBlock[:], proof[DelegateProofPrefixSize:ProofOfPiggybackSize])
	return nil
}

// Save renders the proof into a block proof payload.
func (p *ProofOfPiggyback) Save() []byte {
	buf := make([]byte, ProofOfPiggybackSize)
	buf[0] = p.Weight
	copy(buf[1:], p.Agreement[:])
	copy(buf[DelegateProofPrefixSize:], p.HashRefBlock[:])
	return buf
}
