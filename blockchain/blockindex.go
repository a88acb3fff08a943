// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"math/big"

	"github.com/bigbangcore/bigbang/core/types"
	"github.com/bigbangcore/bigbang/storage/blockdb"
)

// BlockIndex is the in-memory index entry of one stored block. Entries
// form a graph through Prev, Origin and the materialized Next link; the
// arena holding them lives for the process and is rebuilt from the
// outline namespace on startup.
type BlockIndex struct {
	HashBlock   types.Hash
	Origin      *BlockIndex
	Prev        *BlockIndex
	Next        *BlockIndex
	TxidMint    types.Hash
	MintType    uint16
	Version     uint16
	BlockType   uint16
	Timestamp   uint32
	Height      uint32
	RandBeacon  uint64
	ChainTrust  *big.Int
	MoneySupply int64
	ProofAlgo   uint8
	ProofBits   uint8
	File        uint32
	Offset      uint32
}

// NewBlockIndex builds an index entry from a block body and its storage
// locator. Linkage and accumulated fields are filled in by the container.
func NewBlockIndex(block *types.Block, file, offset uint32) *BlockIndex {
	index := &BlockIndex{
		MintType:   block.TxMint.TxType,
		Version:    block.Version,
		BlockType:  block.BlockType,
		Timestamp:  block.Timestamp,
		Height:     block.GetBlockHeight(),
		ChainTrust: new(big.Int),
		File:       file,
		Offset:     offset,
	}
	index.Origin = index
	if !block.IsVacant() {
		index.TxidMint = block.TxMint.GetHash()
	}
	if block.IsProofOfWork() && len(block.Proof) >= types.ProofOfHashWorkSize {
		var proof types.ProofOfHashWork
		if err := proof.Load(block.Proof); err == nil {
			index.ProofAlgo = proof.Algo
			index.ProofBits = proof.Bits
		}
	}
	return index
}

// GetBlockHash returns the hash of the indexed block.
func (bi *BlockIndex) GetBlockHash() types.Hash {
	return bi.HashBlock
}

// GetBlockHeight returns the block height.
func (bi *BlockIndex) GetBlockHeight() uint32 {
	return bi.Height
}

// GetBlockTime returns the block timestamp as a clock value.
func (bi *BlockIndex) GetBlockTime() int64 {
	return int64(bi.Timestamp)
}

// GetOriginHash returns the hash of the fork's origin block.
func (bi *BlockIndex) GetOriginHash() types.Hash {
	return bi.Origin.HashBlock
}

// GetParentHash returns the origin hash of the parent fork, or the zero
// hash for the genesis fork.
func (bi *BlockIndex) GetParentHash() types.Hash {
	if bi.Origin.Prev == nil {
		return types.ZeroHash
	}
	return bi.Origin.Prev.GetOriginHash()
}

// IsOrigin returns whether the block opens a fork.
func (bi *BlockIndex) IsOrigin() bool {
	return bi.BlockType>>15 == 1
}

// IsPrimary returns whether the block belongs to the primary chain.
func (bi *BlockIndex) IsPrimary() bool {
	return bi.BlockType&1 == 1
}

// IsExtended returns whether the block is an extended block.
func (bi *BlockIndex) IsExtended() bool {
	return bi.BlockType == types.BlockTypeExtended
}

// IsVacant returns whether the block is a placeholder.
func (bi *BlockIndex) IsVacant() bool {
	return bi.BlockType == types.BlockTypeVacant
}

// IsProofOfWork returns whether the block was minted by work.
func (bi *BlockIndex) IsProofOfWork() bool {
	return bi.MintType == types.TxTypeWorkMint
}

// IsEquivalent reports whether compare is reachable from this entry by
// walking predecessors through vacant blocks of strictly greater height.
// Two tips related this way carry the same useful chain, and on a trust
// tie the newer tip is accepted; a non-equivalent challenger of equal trust
// stays on a side chain.
func (bi *BlockIndex) IsEquivalent(compare *BlockIndex) bool {
	if compare == nil {
		return false
	}
	index := bi
	for index != nil {
		if index == compare {
			return true
		}
		if index.BlockType != types.BlockTypeVacant ||
			index.Height <= compare.Height {
			break
		}
		index = index.Prev
	}
	return false
}

// Outline renders the entry into its persisted form.
func (bi *BlockIndex) Outline() *blockdb.BlockOutline {
	outline := &blockdb.BlockOutline{
		HashBlock:   bi.HashBlock,
		HashOrigin:  bi.Origin.HashBlock,
		TxidMint:    bi.TxidMint,
		MintType:    bi.MintType,
		Version:     bi.Version,
		BlockType:   bi.BlockType,
		Timestamp:   bi.Timestamp,
		Height:      bi.Height,
		RandBeacon:  bi.RandBeacon,
		ChainTrust:  types.BigToHash(bi.ChainTrust),
		MoneySupply: bi.MoneySupply,
		ProofAlgo:   bi.ProofAlgo,
		ProofBits:   bi.ProofBits,
		File:        bi.File,
		Offset:      bi.Offset,
	}
	if bi.Prev != nil {
		outline.HashPrev = bi.Prev.HashBlock
	}
	return outline
}

func (bi *BlockIndex) String() string {
	prev := "nil"
	if bi.Prev != nil {
		prev = bi.Prev.HashBlock.String()
	}
	return fmt.Sprintf("BlockIndex: hash=%s prev=%s height=%d type=%s time=%d trust=%s",
		bi.HashBlock, prev, bi.Height,
		types.GetBlockTypeStr(bi.BlockType, bi.MintType), bi.Timestamp, bi.ChainTrust)
}
