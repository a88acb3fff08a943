// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/bigbangcore/bigbang/core/types"
	"github.com/bigbangcore/bigbang/delegate"
	"github.com/bigbangcore/bigbang/params"
)

// Protocol is the stateless rule set of the chain: structural block and
// transaction validation, proof checks, targets and trust.
type Protocol struct {
	params       *params.Params
	genesisBlock *types.Block
	hashGenesis  types.Hash
}

// NewProtocol builds the protocol for a network.
func NewProtocol(p *params.Params) (*Protocol, error) {
	genesis, err := p.GenesisBlock()
	if err != nil {
		return nil, err
	}
	return &Protocol{
		params:       p,
		genesisBlock: genesis,
		hashGenesis:  genesis.GetHash(),
	}, nil
}

// GetGenesisBlockHash returns the genesis block hash.
func (p *Protocol) GetGenesisBlockHash() types.Hash {
	return p.hashGenesis
}

// GetGenesisBlock returns the genesis block.
func (p *Protocol) GetGenesisBlock() *types.Block {
	block := *p.genesisBlock
	return &block
}

// MinEnrollAmount returns the enrollment floor of the network.
func (p *Protocol) MinEnrollAmount() int64 {
	return p.params.DelegateEnrollMinimumAmount
}

// CalcMinTxFee derives the minimum fee of a transaction carrying
// dataLen bytes: a base fee plus a surcharge per started 200-byte slice,
// steeper past five slices.
func CalcMinTxFee(dataLen int, minFee int64) int64 {
	if dataLen == 0 {
		return minFee
	}
	multiplier := int64(dataLen / 200)
	if dataLen%200 > 0 {
		multiplier++
	}
	if multiplier > 5 {
		return minFee + 1000 + (multiplier-5)*400
	}
	return minFee + multiplier*200
}

// ValidateTransaction performs the context-free transaction checks.
func (p *Protocol) ValidateTransaction(tx *types.Transaction) error {
	if tx.SendTo.IsNull() && !tx.IsMint() {
		return ruleError(ErrTransactionInvalid, "transaction pays to the null destination")
	}
	if !params.MoneyRange(tx.Amount) {
		return ruleError(ErrTransactionInvalid,
			fmt.Sprintf("transaction amount %d out of range", tx.Amount))
	}
	if !params.MoneyRange(tx.TxFee) {
		return ruleError(ErrTransactionInvalid,
			fmt.Sprintf("transaction fee %d out of range", tx.TxFee))
	}
	if len(tx.Input) > types.MaxTxInputCount {
		return ruleError(ErrTransactionInvalid,
			fmt.Sprintf("transaction has %d inputs", len(tx.Input)))
	}
	if tx.IsMint() {
		if len(tx.Input) != 0 {
			return ruleError(ErrTransactionInvalid, "mint transaction has inputs")
		}
		return nil
	}
	if len(tx.Input) == 0 {
		return ruleError(ErrTransactionInputInvalid, "transaction has no inputs")
	}
	seen := make(map[types.TxOutPoint]struct{}, len(tx.Input))
	for i := range tx.Input {
		prevout := tx.Input[i].Prevout
		if prevout.Hash.IsZero() {
			return ruleError(ErrTransactionInputInvalid, "transaction spends the null outpoint")
		}
		if _, ok := seen[prevout]; ok {
			return ruleError(ErrTransactionInputInvalid, fmt.Sprintf(
				"transaction spends outpoint %s:%d twice", prevout.Hash, prevout.N))
		}
		seen[prevout] = struct{}{}
	}
	return nil
}

// ValidateBlock performs the context-free block checks: structure,
// merkle root, per-transaction sanity and the block signature.
func (p *Protocol) ValidateBlock(block *types.Block) error {
	if block.IsNull() {
		return ruleError(ErrBlockTransactionsInvalid, "block is null")
	}
	if !block.IsVacant() {
		if !block.TxMint.IsMint() {
			return ruleError(ErrBlockCoinbaseInvalid,
				fmt.Sprintf("mint transaction has type 0x%04x", block.TxMint.TxType))
		}
		if !params.RewardRange(block.TxMint.Amount) && !block.IsOrigin() {
			return ruleError(ErrBlockCoinbaseInvalid,
				fmt.Sprintf("mint amount %d out of range", block.TxMint.Amount))
		}
		if block.CalcMerkleTreeRoot() != block.HashMerkle {
			return ruleError(ErrBlockTransactionsInvalid, "merkle root mismatch")
		}
		if len(block.Vtx) > types.MaxTxCountPerBlock {
			return ruleError(ErrBlockTransactionsInvalid,
				fmt.Sprintf("block packs %d transactions", len(block.Vtx)))
		}
		if block.SerializeSize() > types.MaxBlockSize {
			return ruleError(ErrBlockTransactionsInvalid, "block oversized")
		}
		for i := range block.Vtx {
			if err := p.ValidateTransaction(&block.Vtx[i]); err != nil {
				return err
			}
			if block.Vtx[i].IsMint() {
				return ruleError(ErrBlockTransactionsInvalid,
					"block packs a second mint transaction")
			}
		}
	}
	return p.checkBlockSignature(block)
}

// checkBlockSignature verifies the block signature against the mint
// destination. The genesis block is unsigned; template destinations are
// resolved by the wallet layer and accepted here.
func (p *Protocol) checkBlockSignature(block *types.Block) error {
	if block.GetHash() == p.hashGenesis || block.IsVacant() {
		return nil
	}
	dest := block.TxMint.SendTo
	if dest.IsPubKey() {
		if !dest.VerifySignature(block.SignatureHash(), block.SigData) {
			return ruleError(ErrBlockSignatureInvalid, "block signature does not verify")
		}
	}
	return nil
}

// ValidateOrigin checks an origin block against its parent fork profile
// and returns the parsed fork profile.
func (p *Protocol) ValidateOrigin(block *types.Block, parent *types.Profile) (*types.Profile, error) {
	profile := new(types.Profile)
	if err := profile.Load(block.Proof); err != nil {
		return nil, ruleError(ErrBlockInvalidFork, "origin block carries no loadable profile")
	}
	if profile.IsNull() {
		return nil, ruleError(ErrBlockInvalidFork, "origin profile is empty")
	}
	if profile.Parent.IsZero() {
		return nil, ruleError(ErrBlockInvalidFork, "origin profile names no parent")
	}
	if profile.JointHeight < 1 {
		return nil, ruleError(ErrBlockInvalidFork,
			fmt.Sprintf("origin joint height %d below 1", profile.JointHeight))
	}
	if profile.Owner.IsNull() {
		return nil, ruleError(ErrBlockInvalidFork, "origin profile has no owner")
	}
	if !params.MoneyRange(profile.Amount) || !params.MoneyRange(profile.MintReward) {
		return nil, ruleError(ErrBlockInvalidFork, "origin profile amounts out of range")
	}
	if parent.IsEnclosed() && profile.Owner != parent.Owner {
		return nil, ruleError(ErrBlockInvalidFork,
			"enclosed parent fork only forks under the same owner")
	}
	if block.TxMint.Amount != profile.Amount {
		return nil, ruleError(ErrBlockCoinbaseInvalid,
			fmt.Sprintf("origin mint %d does not match profile amount %d",
				block.TxMint.Amount, profile.Amount))
	}
	return profile, nil
}

// powTarget derives the hash ceiling of a target exponent: larger bits
// mean a smaller ceiling and more work.
func powTarget(bits uint8) *big.Int {
	target := new(big.Int).Lsh(big.NewInt(1), uint(256-uint(bits)))
	return target.Sub(target, big.NewInt(1))
}

// VerifyProofOfWork checks a work-minted block against its predecessor.
func (p *Protocol) VerifyProofOfWork(block *types.Block, prev *BlockIndex) error {
	var proof types.ProofOfHashWork
	if err := proof.Load(block.Proof); err != nil {
		return ruleError(ErrBlockProofOfWorkInvalid, err.Error())
	}
	if proof.Algo != types.ProofOfWorkAlgoBlake2b {
		return ruleError(ErrBlockProofOfWorkInvalid,
			fmt.Sprintf("unknown work algorithm %d", proof.Algo))
	}
	if block.GetBlockTime() <= prev.GetBlockTime() ||
		block.GetBlockTime() < prev.GetBlockTime()+params.ProofOfWorkBlockSpacing {
		return ruleError(ErrBlockTimestampOutOfRange, fmt.Sprintf(
			"work block time %d too close to predecessor %d",
			block.Timestamp, prev.Timestamp))
	}
	if block.GetBlockTime() > time.Now().Unix()+params.MaxClockDrift {
		return ruleError(ErrBlockTimestampOutOfRange,
			fmt.Sprintf("work block time %d in the future", block.Timestamp))
	}
	expectedBits, _ := p.GetProofOfWorkTarget(prev, proof.Algo)
	if proof.Bits < expectedBits {
		return ruleError(ErrBlockProofOfWorkInvalid, fmt.Sprintf(
			"work bits %d below required %d", proof.Bits, expectedBits))
	}
	hash := types.HashB(block.GetSerializedProofOfWorkData())
	if hash.Big().Cmp(powTarget(proof.Bits)) > 0 {
		return ruleError(ErrBlockProofOfWorkInvalid, "work hash above target")
	}
	return nil
}

// VerifyDelegatedProofOfStake checks a stake-minted primary block
// against its predecessor and the round agreement.
func (p *Protocol) VerifyDelegatedProofOfStake(block *types.Block, prev *BlockIndex,
	agreement *delegate.Agreement) error {

	if block.TxMint.TxType != types.TxTypeStakeMint {
		return ruleError(ErrBlockProofOfStakeInvalid, "stake block mints without stake")
	}
	height := prev.Height + 1
	expected := agreement.GetBallot(int(height) % maxInt(len(agreement.Ballot), 1))
	if block.TxMint.SendTo != expected {
		return ruleError(ErrBlockProofOfStakeInvalid, fmt.Sprintf(
			"stake mint destination %s is not the slot delegate %s",
			block.TxMint.SendTo, expected))
	}
	if block.GetBlockTime() != prev.GetBlockTime()+params.BlockTargetSpacing {
		return ruleError(ErrBlockTimestampOutOfRange, fmt.Sprintf(
			"stake block time %d is not the slot after %d",
			block.Timestamp, prev.Timestamp))
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// VerifySubsidiary checks a subsidiary-fork block against its
// predecessor, the referenced primary block and the round agreement.
func (p *Protocol) VerifySubsidiary(block *types.Block, prev, ref *BlockIndex,
	agreement *delegate.Agreement) error {

	if agreement.IsProofOfWork() {
		return ruleError(ErrBlockProofOfStakeInvalid,
			"subsidiary block rides a work round")
	}
	if !block.IsExtended() {
		if block.GetBlockTime() != ref.GetBlockTime() {
			return ruleError(ErrBlockTimestampOutOfRange, fmt.Sprintf(
				"subsidiary block time %d differs from reference %d",
				block.Timestamp, ref.Timestamp))
		}
	} else {
		if block.GetBlockTime() <= ref.GetBlockTime() ||
			block.GetBlockTime() >= ref.GetBlockTime()+params.BlockTargetSpacing {
			return ruleError(ErrBlockTimestampOutOfRange, fmt.Sprintf(
				"extended block time %d outside reference slot at %d",
				block.Timestamp, ref.Timestamp))
		}
	}
	if !block.IsVacant() && block.TxMint.TxType != types.TxTypeStakeMint {
		return ruleError(ErrBlockProofOfStakeInvalid, "subsidiary block mints without stake")
	}
	return nil
}

// VerifyBlockTx checks a packed transaction against its resolved input
// context.
func (p *Protocol) VerifyBlockTx(tx *types.Transaction, ctxt *types.TxContxt,
	forkHeight uint32, minTxFee int64) error {

	if ctxt.DestIn.IsNull() {
		return ruleError(ErrTransactionInputInvalid, "inputs resolve to no owner")
	}
	if len(ctxt.Vin) != len(tx.Input) {
		return ruleError(ErrTransactionInputInvalid, "input context incomplete")
	}
	valueIn := ctxt.GetValueIn()
	if !params.MoneyRange(valueIn) {
		return ruleError(ErrTransactionInputInvalid,
			fmt.Sprintf("input value %d out of range", valueIn))
	}
	if valueIn < tx.Amount+tx.TxFee {
		return ruleError(ErrTransactionInputInvalid, fmt.Sprintf(
			"input value %d below amount %d plus fee %d", valueIn, tx.Amount, tx.TxFee))
	}
	if tx.TxFee < CalcMinTxFee(len(tx.Data), minTxFee) {
		return ruleError(ErrTransactionNotEnoughFee, fmt.Sprintf(
			"fee %d below minimum for %d data bytes", tx.TxFee, len(tx.Data)))
	}
	for i := range ctxt.Vin {
		if ctxt.Vin[i].TxTime > tx.Timestamp {
			return ruleError(ErrTransactionInvalid, fmt.Sprintf(
				"input %d is younger than the transaction", i))
		}
		if ctxt.Vin[i].LockUntil != 0 && ctxt.Vin[i].LockUntil > forkHeight {
			return ruleError(ErrTransactionInputInvalid, fmt.Sprintf(
				"input %d locked until height %d", i, ctxt.Vin[i].LockUntil))
		}
	}
	if ctxt.DestIn.IsPubKey() {
		if !ctxt.DestIn.VerifySignature(tx.SignatureHash(), tx.SigData) {
			return ruleError(ErrTransactionSignatureInvalid,
				"transaction signature does not verify")
		}
	}
	return nil
}

// GetBlockTrust weighs a block for chain selection. Work contributes
// two to the power of its bits; a stake or subsidiary block contributes
// its proof's small leading weight; placeholders contribute nothing.
func (p *Protocol) GetBlockTrust(block *types.Block) *big.Int {
	switch {
	case block.IsVacant() && len(block.Proof) == 0:
		return new(big.Int)
	case block.IsProofOfWork():
		var proof types.ProofOfHashWork
		if err := proof.Load(block.Proof); err != nil {
			return new(big.Int)
		}
		return new(big.Int).Lsh(big.NewInt(1), uint(proof.Bits))
	case block.IsGenesis() || block.IsOrigin():
		return new(big.Int)
	default:
		if len(block.Proof) == 0 {
			return new(big.Int)
		}
		return big.NewInt(int64(block.Proof[0]))
	}
}

// GetProofOfWorkTarget derives the required target exponent for the
// block after prev and the work reward that comes with it. The exponent
// retargets once per difficulty interval against the actual elapsed
// time of the window, clamped to the network limits.
func (p *Protocol) GetProofOfWorkTarget(prev *BlockIndex, algo uint8) (uint8, int64) {
	bits := p.params.ProofOfWorkInitBits
	for index := prev; index != nil; index = index.Prev {
		if index.IsProofOfWork() && index.ProofAlgo == algo {
			bits = index.ProofBits
			break
		}
	}

	interval := p.params.ProofOfWorkDifficultyInterval
	if interval > 1 && (prev.Height+1)%interval == 0 {
		first := prev
		for i := uint32(0); i < interval-1 && first.Prev != nil; i++ {
			first = first.Prev
		}
		elapsed := int64(prev.Timestamp) - int64(first.Timestamp)
		expected := int64(params.BlockTargetSpacing) * int64(interval-1)
		if elapsed < expected/2 {
			bits++
		} else if elapsed > expected*2 {
			bits--
		}
	}
	if bits < p.params.ProofOfWorkLimitBits {
		bits = p.params.ProofOfWorkLimitBits
	}
	if bits > p.params.ProofOfWorkUpperLimitBits {
		bits = p.params.ProofOfWorkUpperLimitBits
	}
	return bits, p.GetPrimaryMintWorkReward(prev)
}

// GetPrimaryMintWorkReward returns the primary chain mint reward for the
// block after prev, halving on the configured cycle.
func (p *Protocol) GetPrimaryMintWorkReward(prev *BlockIndex) int64 {
	reward := p.params.GenesisMintReward
	if p.params.GenesisHalveCycle > 0 {
		halvings := (prev.Height + 1) / p.params.GenesisHalveCycle
		reward >>= halvings
	}
	return reward
}
