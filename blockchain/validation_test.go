// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"math/big"
	"testing"

	"github.com/bigbangcore/bigbang/core/types"
	"github.com/bigbangcore/bigbang/params"
)

// TestCalcMinTxFee pins the data surcharge curve.
func TestCalcMinTxFee(t *testing.T) {
	const base = params.CENT
	tests := []struct {
		dataLen int
		want    int64
	}{
		{0, base},
		{1, base + 200},
		{200, base + 200},
		{201, base + 400},
		{1000, base + 1000},
		{1001, base + 1000 + 400},
		{2000, base + 1000 + 5*400},
	}
	for _, test := range tests {
		if got := CalcMinTxFee(test.dataLen, base); got != test.want {
			t.Errorf("CalcMinTxFee(%d): got %d, want %d", test.dataLen, got, test.want)
		}
	}
}

func chainOfIndexes(blockTypes []uint16) []*BlockIndex {
	indexes := make([]*BlockIndex, len(blockTypes))
	var prev *BlockIndex
	height := uint32(0)
	for i, blockType := range blockTypes {
		if i > 0 && blockType != types.BlockTypeExtended {
			height++
		}
		index := &BlockIndex{
			BlockType:  blockType,
			Height:     height,
			Prev:       prev,
			ChainTrust: new(big.Int),
		}
		index.Origin = index
		if prev != nil {
			index.Origin = prev.Origin
		}
		indexes[i] = index
		prev = index
	}
	return indexes
}

// TestIsEquivalent checks the vacant-walk tie break: a tip is
// equivalent to an ancestor only through a pure chain of higher vacant
// blocks.
func TestIsEquivalent(t *testing.T) {
	chain := chainOfIndexes([]uint16{
		types.BlockTypeGenesis,
		types.BlockTypeSubsidiary,
		types.BlockTypeVacant,
		types.BlockTypeVacant,
	})
	tip, mid, bottom := chain[3], chain[2], chain[1]

	if !tip.IsEquivalent(tip) {
		t.Error("a tip is not equivalent to itself")
	}
	if !tip.IsEquivalent(mid) {
		t.Error("vacant tip not equivalent to its vacant ancestor")
	}
	if !tip.IsEquivalent(bottom) {
		t.Error("vacant tip not equivalent through the vacant chain")
	}
	if bottom.IsEquivalent(tip) {
		t.Error("equivalence ran forward")
	}

	solid := chainOfIndexes([]uint16{
		types.BlockTypeGenesis,
		types.BlockTypeSubsidiary,
		types.BlockTypeSubsidiary,
	})
	if solid[2].IsEquivalent(solid[1]) {
		t.Error("non-vacant block treated as equivalent to its ancestor")
	}
	if tip.IsEquivalent(nil) {
		t.Error("equivalence to nil")
	}
}

// TestGetProofOfWorkTarget checks that off-boundary heights keep the
// previous bits and the boundary retargets against elapsed time.
func TestGetProofOfWorkTarget(t *testing.T) {
	p := params.MainNetParams
	protocol, err := NewProtocol(&p)
	if err != nil {
		t.Fatalf("NewProtocol: %v", err)
	}
	interval := p.ProofOfWorkDifficultyInterval

	build := func(count uint32, spacing uint32) *BlockIndex {
		var prev *BlockIndex
		timestamp := uint32(1000000)
		for height := uint32(0); height < count; height++ {
			index := &BlockIndex{
				BlockType:  types.BlockTypePrimary,
				MintType:   types.TxTypeWorkMint,
				ProofAlgo:  types.ProofOfWorkAlgoBlake2b,
				ProofBits:  p.ProofOfWorkInitBits,
				Height:     height,
				Timestamp:  timestamp,
				Prev:       prev,
				ChainTrust: new(big.Int),
			}
			index.Origin = index
			timestamp += spacing
			prev = index
		}
		return prev
	}

	// Off boundary: bits stay.
	prev := build(interval-2, params.BlockTargetSpacing)
	bits, _ := protocol.GetProofOfWorkTarget(prev, types.ProofOfWorkAlgoBlake2b)
	if bits != p.ProofOfWorkInitBits {
		t.Errorf("off-boundary bits: got %d, want %d", bits, p.ProofOfWorkInitBits)
	}

	// Boundary with blocks arriving far too fast: difficulty rises.
	prev = build(interval, 1)
	bits, _ = protocol.GetProofOfWorkTarget(prev, types.ProofOfWorkAlgoBlake2b)
	if bits != p.ProofOfWorkInitBits+1 {
		t.Errorf("fast boundary bits: got %d, want %d", bits, p.ProofOfWorkInitBits+1)
	}

	// Boundary with blocks arriving far too slow: difficulty drops.
	prev = build(interval, params.BlockTargetSpacing*3)
	bits, _ = protocol.GetProofOfWorkTarget(prev, types.ProofOfWorkAlgoBlake2b)
	if bits != p.ProofOfWorkInitBits-1 {
		t.Errorf("slow boundary bits: got %d, want %d", bits, p.ProofOfWorkInitBits-1)
	}

	// Boundary on target: bits stay.
	prev = build(interval, params.BlockTargetSpacing)
	bits, _ = protocol.GetProofOfWorkTarget(prev, types.ProofOfWorkAlgoBlake2b)
	if bits != p.ProofOfWorkInitBits {
		t.Errorf("on-target boundary bits: got %d, want %d", bits, p.ProofOfWorkInitBits)
	}
}

// TestGetBlockTrust pins the trust contributions by block flavor.
func TestGetBlockTrust(t *testing.T) {
	p := params.MainNetParams
	protocol, err := NewProtocol(&p)
	if err != nil {
		t.Fatalf("NewProtocol: %v", err)
	}

	vacant := &types.Block{BlockType: types.BlockTypeVacant, Timestamp: 1}
	if protocol.GetBlockTrust(vacant).Sign() != 0 {
		t.Error("vacant block carries trust")
	}

	work := &types.Block{
		BlockType: types.BlockTypePrimary,
		Timestamp: 1,
		TxMint:    types.Transaction{TxType: types.TxTypeWorkMint},
		Proof:     (&types.ProofOfHashWork{Algo: types.ProofOfWorkAlgoBlake2b, Bits: 10}).Save(),
	}
	want := new(big.Int).Lsh(big.NewInt(1), 10)
	if protocol.GetBlockTrust(work).Cmp(want) != 0 {
		t.Errorf("work trust: got %s, want %s", protocol.GetBlockTrust(work), want)
	}

	stake := &types.Block{
		BlockType: types.BlockTypeSubsidiary,
		Timestamp: 1,
		TxMint:    types.Transaction{TxType: types.TxTypeStakeMint},
		Proof: (&types.ProofOfPiggyback{
			Weight:       7,
			Agreement:    types.HashB([]byte("a")),
			HashRefBlock: types.HashB([]byte("r")),
		}).Save(),
	}
	if protocol.GetBlockTrust(stake).Int64() != 7 {
		t.Errorf("stake trust: got %s, want 7", protocol.GetBlockTrust(stake))
	}
}

// TestVerifyRepeatBlockWindow checks the per-height mint repeat filter.
func TestVerifyRepeatBlockWindow(t *testing.T) {
	container := NewContainer()
	fork := types.HashB([]byte("fork"))
	mint := types.NewPubKeyDestination(types.HashB([]byte("miner")))
	var blockHash types.Hash
	blockHash.SetHeight(5)
	container.updateHeightIndex(fork, blockHash, 600, mint, types.ZeroHash)

	if container.VerifyRepeatBlock(fork, 5, mint, types.BlockTypeSubsidiary, 600, 0, params.ExtendedBlockSpacing) {
		t.Error("repeated mint at the same height accepted")
	}
	other := types.NewPubKeyDestination(types.HashB([]byte("other")))
	if !container.VerifyRepeatBlock(fork, 5, other, types.BlockTypeSubsidiary, 600, 0, params.ExtendedBlockSpacing) {
		t.Error("different mint destination rejected")
	}
	if !container.VerifyRepeatBlock(fork, 6, mint, types.BlockTypeSubsidiary, 660, 0, params.ExtendedBlockSpacing) {
		t.Error("different height rejected")
	}
	// Extended blocks repeat only within the same sub-slot.
	if !container.VerifyRepeatBlock(fork, 5, mint, types.BlockTypeExtended, 604, 600, params.ExtendedBlockSpacing) {
		t.Error("extended block in another sub-slot rejected")
	}
	if container.VerifyRepeatBlock(fork, 5, mint, types.BlockTypeExtended, 601, 600, params.ExtendedBlockSpacing) {
		t.Error("extended block in the same sub-slot accepted")
	}
}
