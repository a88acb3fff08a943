// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockchain implements the consensus and chain-state core: the
// block container, the stateless protocol rules and the top-level ingest
// API that validates candidate blocks, resolves forks by chain trust and
// maintains the per-fork coin view.
package blockchain

import (
	"bytes"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/bigbangcore/bigbang/core/types"
	"github.com/bigbangcore/bigbang/delegate"
	"github.com/bigbangcore/bigbang/params"
)

const (
	enrolledCacheCount  = 120
	agreementCacheCount = 16
)

// TxPool is the narrow view of the transaction pool the chain needs: a
// transaction already in the pool was verified on entry and skips the
// per-block re-verification.
type TxPool interface {
	Exists(txid types.Hash) bool
}

// BlockChainUpdate describes a committed tip move of one fork. Within a
// fork updates form a totally ordered sequence matching on-chain height.
type BlockChainUpdate struct {
	HashFork        types.Hash
	HashParent      types.Hash
	OriginHeight    int32
	HashLastBlock   types.Hash
	LastBlockTime   int64
	LastBlockHeight uint32
	MoneySupply     int64
	SetTxUpdate     map[types.Hash]struct{}
	BlockAddNew     []*types.BlockEx
	BlockRemove     []*types.BlockEx
}

// IsNull reports an empty update, emitted when a stored block did not
// win the fork tip.
func (u *BlockChainUpdate) IsNull() bool {
	return u.HashFork.IsZero()
}

func newBlockChainUpdate(index *BlockIndex) *BlockChainUpdate {
	return &BlockChainUpdate{
		HashFork:        index.GetOriginHash(),
		HashParent:      index.GetParentHash(),
		OriginHeight:    int32(index.Origin.Height) - 1,
		HashLastBlock:   index.HashBlock,
		LastBlockTime:   index.GetBlockTime(),
		LastBlockHeight: index.Height,
		MoneySupply:     index.MoneySupply,
	}
}

// BlockChain is the top-level chain controller.
type BlockChain struct {
	protocol  *Protocol
	container *Container
	txPool    TxPool

	cacheEnrolled  *lru.Cache
	cacheAgreement *lru.Cache
}

// Config bundles the controller dependencies.
type Config struct {
	Params   *params.Params
	DataDir  string
	Debug    bool
	TxPool   TxPool
	CheckLvl int
	CheckDep int
}

// New opens the chain at cfg.DataDir. An inconsistent container is
// cleared with a warning (it is not rebuilt here), and an empty one is
// seeded with the genesis block.
func New(cfg *Config) (*BlockChain, error) {
	protocol, err := NewProtocol(cfg.Params)
	if err != nil {
		return nil, err
	}
	cacheEnrolled, err := lru.New(enrolledCacheCount)
	if err != nil {
		return nil, err
	}
	cacheAgreement, err := lru.New(agreementCacheCount)
	if err != nil {
		return nil, err
	}
	bc := &BlockChain{
		protocol:       protocol,
		container:      NewContainer(),
		txPool:         cfg.TxPool,
		cacheEnrolled:  cacheEnrolled,
		cacheAgreement: cacheAgreement,
	}

	ok, err := bc.container.Initialize(cfg.DataDir, cfg.Debug)
	if err != nil {
		return nil, err
	}
	if !ok || !bc.checkContainer(cfg.CheckLvl, cfg.CheckDep) {
		bc.container.Clear()
		log.Warnf("Block container is invalid, rebuild from block storage required")
	}
	if bc.container.IsEmpty() {
		if err := bc.insertGenesisBlock(); err != nil {
			return nil, errors.Wrap(err, "failed to create genesis block")
		}
	}
	return bc, nil
}

// Close releases the chain.
func (bc *BlockChain) Close() {
	bc.container.Deinitialize()
	bc.cacheEnrolled.Purge()
	bc.cacheAgreement.Purge()
}

func (bc *BlockChain) checkContainer(level, depth int) bool {
	if bc.container.IsEmpty() {
		return true
	}
	if !bc.container.Exists(bc.protocol.GetGenesisBlockHash()) {
		return false
	}
	return bc.container.CheckConsistency(level, depth)
}

func (bc *BlockChain) insertGenesisBlock() error {
	block := bc.protocol.GetGenesisBlock()
	trust := bc.protocol.GetBlockTrust(block)
	return bc.container.Initiate(bc.protocol.GetGenesisBlockHash(), block, trust)
}

// GetGenesisBlockHash returns the primary fork id.
func (bc *BlockChain) GetGenesisBlockHash() types.Hash {
	return bc.protocol.GetGenesisBlockHash()
}

// Exists reports whether a block is stored.
func (bc *BlockChain) Exists(hash types.Hash) bool {
	return bc.container.Exists(hash)
}

// GetBlock loads a block body.
func (bc *BlockChain) GetBlock(hash types.Hash) (*types.Block, error) {
	block, err := bc.container.Retrieve(hash)
	if err != nil {
		return nil, err
	}
	return &block.Block, nil
}

// GetBlockEx loads a block body with its transaction contexts.
func (bc *BlockChain) GetBlockEx(hash types.Hash) (*types.BlockEx, error) {
	return bc.container.Retrieve(hash)
}

// GetOrigin loads the origin block of a fork.
func (bc *BlockChain) GetOrigin(fork types.Hash) (*types.Block, error) {
	return bc.container.RetrieveOrigin(fork)
}

// GetLastBlock returns the tip of a fork.
func (bc *BlockChain) GetLastBlock(fork types.Hash) (types.Hash, uint32, int64, error) {
	index, err := bc.container.RetrieveFork(fork)
	if err != nil {
		return types.ZeroHash, 0, 0, err
	}
	return index.HashBlock, index.Height, index.GetBlockTime(), nil
}

// GetBlockCount counts the blocks of a fork's active chain.
func (bc *BlockChain) GetBlockCount(fork types.Hash) (int, error) {
	index, err := bc.container.RetrieveFork(fork)
	if err != nil {
		return 0, err
	}
	count := 0
	for index != nil {
		count++
		index = index.Prev
	}
	return count, nil
}

// GetBlockLocation returns the fork and height of a block.
func (bc *BlockChain) GetBlockLocation(hash types.Hash) (types.Hash, uint32, error) {
	index, err := bc.container.RetrieveIndex(hash)
	if err != nil {
		return types.ZeroHash, 0, err
	}
	return index.GetOriginHash(), index.Height, nil
}

// GetBlockHash returns the non-extended block at a height of a fork.
func (bc *BlockChain) GetBlockHash(fork types.Hash, height uint32) (types.Hash, error) {
	return bc.container.GetBlockHashByHeight(fork, height)
}

// GetForkContext returns the registry record of a fork.
func (bc *BlockChain) GetForkContext(fork types.Hash) (*types.ForkContext, error) {
	return bc.container.RetrieveForkContext(fork)
}

// GetForkProfile returns the profile of a live fork.
func (bc *BlockChain) GetForkProfile(fork types.Hash) (*types.Profile, error) {
	return bc.container.RetrieveProfile(fork)
}

// ListForkContext returns every registered fork context.
func (bc *BlockChain) ListForkContext() ([]*types.ForkContext, error) {
	return bc.container.ListForkContexts()
}

// ListForks returns every live fork and its tip hash.
func (bc *BlockChain) ListForks() map[types.Hash]types.Hash {
	forks := bc.container.ListForks()
	tips := make(map[types.Hash]types.Hash, len(forks))
	for fork, index := range forks {
		tips[fork] = index.HashBlock
	}
	return tips
}

// GetTransaction finds a stored transaction.
func (bc *BlockChain) GetTransaction(txid types.Hash) (*types.Transaction, error) {
	tx, _, err := bc.container.RetrieveTx(txid)
	return tx, err
}

// GetBlockMoneySupply returns the money supply at a block, or -1.
func (bc *BlockChain) GetBlockMoneySupply(hash types.Hash) int64 {
	index, err := bc.container.RetrieveIndex(hash)
	if err != nil {
		return -1
	}
	return index.MoneySupply
}

// AddNewForkContext registers the fork carried by a fork-creation
// transaction after validating its embedded origin block.
func (bc *BlockChain) AddNewForkContext(txFork *types.Transaction) (*types.ForkContext, error) {
	txid := txFork.GetHash()

	block := new(types.Block)
	if err := block.Deserialize(bytes.NewReader(txFork.Data)); err != nil {
		log.Infof("Invalid origin block found in tx %s", txid)
		return nil, ruleError(ErrBlockInvalidFork, "fork tx carries no block")
	}
	if !block.IsOrigin() || block.IsPrimary() {
		log.Infof("Invalid origin block found in tx %s", txid)
		return nil, ruleError(ErrBlockInvalidFork, "fork tx block is not a subsidiary origin")
	}
	var profile types.Profile
	if err := profile.Load(block.Proof); err != nil {
		log.Infof("Invalid origin profile found in tx %s", txid)
		return nil, ruleError(ErrBlockInvalidFork, "fork tx block carries no profile")
	}
	hashFork := block.GetHash()

	ctxtParent, err := bc.container.RetrieveForkContext(profile.Parent)
	if err != nil {
		log.Infof("AddNewForkContext retrieve parent context error: %s", profile.Parent)
		return nil, ruleError(ErrMissingPrev, "parent fork context is unknown")
	}
	parentProfile, err := ctxtParent.GetProfile()
	if err != nil {
		return nil, ruleError(ErrStorage, "parent fork profile is unreadable")
	}
	forkProfile, err := bc.protocol.ValidateOrigin(block, parentProfile)
	if err != nil {
		log.Infof("AddNewForkContext validate block error(%v): %s", err, hashFork)
		return nil, err
	}

	ctxt, err := types.NewForkContext(hashFork, block.HashPrev, txid, forkProfile)
	if err != nil {
		return nil, err
	}
	added, err := bc.container.AddNewForkContext(ctxt)
	if err != nil {
		return nil, ruleError(ErrStorage, err.Error())
	}
	if !added {
		log.Infof("AddNewForkContext already exists: %s", hashFork)
		return nil, ruleError(ErrAlreadyHave, "fork context already registered")
	}
	return ctxt, nil
}

// AddNewBlock ingests a candidate non-origin block: validates it, stores
// it, and commits it as the new fork tip when it wins by chain trust.
// Duplicate submissions return ALREADY_HAVE; a stored side-chain block
// returns an empty update.
func (bc *BlockChain) AddNewBlock(block *types.Block) (*BlockChainUpdate, error) {
	hash := block.GetHash()

	if bc.container.Exists(hash) {
		log.Infof("AddNewBlock already exists: %s", hash)
		return nil, ruleError(ErrAlreadyHave, fmt.Sprintf("already have block %s", hash))
	}
	if err := bc.protocol.ValidateBlock(block); err != nil {
		log.Infof("AddNewBlock validate block error(%v): %s", err, hash)
		return nil, err
	}

	prev, err := bc.container.RetrieveIndex(block.HashPrev)
	if err != nil {
		log.Infof("AddNewBlock retrieve prev index error: %s", block.HashPrev)
		return nil, ruleError(ErrStorage, fmt.Sprintf("prev block %s not indexed", block.HashPrev))
	}

	reward, _, _, err := bc.verifyBlock(hash, block, prev)
	if err != nil {
		log.Infof("AddNewBlock verify block error(%v): %s", err, hash)
		return nil, err
	}

	view := NewBlockView()
	if err := bc.container.GetBlockView(block.HashPrev, view, !block.IsOrigin()); err != nil {
		log.Infof("AddNewBlock get block view error: %s", block.HashPrev)
		return nil, ruleError(ErrStorage, err.Error())
	}
	defer view.Deinitialize()

	if !block.IsVacant() {
		if err := view.AddTx(block.TxMint.GetHash(), &block.TxMint, types.Destination{}, 0); err != nil {
			return nil, ruleError(ErrBlockCoinbaseInvalid, err.Error())
		}
	}

	forkHeight := prev.Height + 1
	if block.IsExtended() {
		forkHeight = prev.Height
	}
	forkID := prev.GetOriginHash()
	profile, err := bc.container.RetrieveProfile(forkID)
	if err != nil {
		return nil, ruleError(ErrStorage, err.Error())
	}

	contxts := make([]types.TxContxt, 0, len(block.Vtx))
	var totalFee int64
	for i := range block.Vtx {
		tx := &block.Vtx[i]
		txid := tx.GetHash()
		ctxt, err := bc.getTxContxt(view, tx)
		if err != nil {
			log.Infof("AddNewBlock get tx context error(%v): %s", err, txid)
			return nil, err
		}
		if bc.txPool == nil || !bc.txPool.Exists(txid) {
			if err := bc.protocol.VerifyBlockTx(tx, ctxt, forkHeight, profile.MinTxFee); err != nil {
				log.Infof("AddNewBlock verify block tx error(%v): %s", err, txid)
				return nil, err
			}
		}
		contxts = append(contxts, *ctxt)
		if err := view.AddTx(txid, tx, ctxt.DestIn, ctxt.GetValueIn()); err != nil {
			return nil, ruleError(ErrTransactionConflictingInput, err.Error())
		}
		totalFee += tx.TxFee
	}
	if block.TxMint.Amount > totalFee+reward {
		log.Infof("AddNewBlock mint tx amount invalid: (%d > %d + %d)",
			block.TxMint.Amount, totalFee, reward)
		return nil, ruleError(ErrBlockTransactionsInvalid, "mint above fees plus reward")
	}

	blockTrust := bc.protocol.GetBlockTrust(block)
	blockEx := types.NewBlockEx(block, contxts)
	indexNew, err := bc.container.AddNew(hash, blockEx, blockTrust)
	if err != nil {
		log.Infof("AddNewBlock storage AddNew error: %s", hash)
		return nil, ruleError(ErrStorage, err.Error())
	}
	log.Infof("AddNew block: %s", indexNew)

	indexFork, err := bc.container.RetrieveFork(indexNew.GetOriginHash())
	if err == nil {
		cmp := indexFork.ChainTrust.Cmp(indexNew.ChainTrust)
		if cmp > 0 || (cmp == 0 && !indexNew.IsEquivalent(indexFork)) {
			log.Infof("AddNew block: short chain, new height: %d, fork trust: %s, fork last: %s",
				indexNew.Height, indexFork.ChainTrust, indexFork.HashBlock)
			return &BlockChainUpdate{}, nil
		}
	}

	if err := bc.container.CommitBlockView(view, indexNew); err != nil {
		log.Infof("AddNewBlock storage commit block view error: %s", hash)
		return nil, ruleError(ErrStorage, err.Error())
	}

	update := newBlockChainUpdate(indexNew)
	update.SetTxUpdate = view.GetTxUpdated()
	if err := bc.getBlockChanges(indexNew, indexFork, update); err != nil {
		log.Infof("AddNewBlock storage get block changes error: %s", hash)
		return nil, ruleError(ErrStorage, err.Error())
	}

	if len(update.BlockRemove) > 0 {
		log.Infof("Chain rollback occur, [height]: %d [hash]: %s [add]: %d [del]: %d",
			indexNew.Height, indexNew.HashBlock,
			len(update.BlockAddNew), len(update.BlockRemove))
	}
	return update, nil
}

// AddNewOrigin ingests the origin block of a new fork.
func (bc *BlockChain) AddNewOrigin(block *types.Block) (*BlockChainUpdate, error) {
	hash := block.GetHash()

	if bc.container.Exists(hash) {
		log.Infof("AddNewOrigin already exists: %s", hash)
		return nil, ruleError(ErrAlreadyHave, fmt.Sprintf("already have block %s", hash))
	}
	if err := bc.protocol.ValidateBlock(block); err != nil {
		log.Infof("AddNewOrigin validate block error(%v): %s", err, hash)
		return nil, err
	}

	prev, err := bc.container.RetrieveIndex(block.HashPrev)
	if err != nil {
		log.Infof("AddNewOrigin retrieve prev index error: %s", block.HashPrev)
		return nil, ruleError(ErrStorage, fmt.Sprintf("prev block %s not indexed", block.HashPrev))
	}
	parent, err := bc.container.RetrieveProfile(prev.GetOriginHash())
	if err != nil {
		log.Infof("AddNewOrigin retrieve parent profile error: %s", block.HashPrev)
		return nil, ruleError(ErrStorage, err.Error())
	}
	profile, err := bc.protocol.ValidateOrigin(block, parent)
	if err != nil {
		log.Infof("AddNewOrigin validate origin error(%v): %s", err, hash)
		return nil, err
	}

	if _, err := bc.container.RetrieveForkByName(profile.Name); err == nil {
		log.Infof("AddNewOrigin duplicated fork name: %s", profile.Name)
		return nil, ruleError(ErrAlreadyHave,
			fmt.Sprintf("fork named %q already lives", profile.Name))
	}

	view := NewBlockView()
	if profile.IsIsolated() {
		bc.container.GetFreshBlockView(view)
	} else {
		if err := bc.container.GetBlockView(block.HashPrev, view, false); err != nil {
			log.Infof("AddNewOrigin get block view error: %s", block.HashPrev)
			return nil, ruleError(ErrStorage, err.Error())
		}
	}
	defer view.Deinitialize()

	if block.TxMint.Amount != 0 {
		if err := view.AddTx(block.TxMint.GetHash(), &block.TxMint, types.Destination{}, 0); err != nil {
			return nil, ruleError(ErrBlockCoinbaseInvalid, err.Error())
		}
	}

	blockTrust := bc.protocol.GetBlockTrust(block)
	blockEx := types.NewBlockEx(block, nil)
	indexNew, err := bc.container.AddNew(hash, blockEx, blockTrust)
	if err != nil {
		log.Infof("AddNewOrigin storage AddNew error: %s", hash)
		return nil, ruleError(ErrStorage, err.Error())
	}
	log.Infof("AddNew origin block: %s", indexNew)

	if err := bc.container.CommitBlockView(view, indexNew); err != nil {
		log.Infof("AddNewOrigin storage commit block view error: %s", hash)
		return nil, ruleError(ErrStorage, err.Error())
	}

	update := newBlockChainUpdate(indexNew)
	update.SetTxUpdate = view.GetTxUpdated()
	update.BlockAddNew = []*types.BlockEx{blockEx}
	return update, nil
}

// getTxContxt resolves a transaction's inputs through the view: every
// input must be unspent and owned by one destination.
func (bc *BlockChain) getTxContxt(view *BlockView, tx *types.Transaction) (*types.TxContxt, error) {
	ctxt := new(types.TxContxt)
	ctxt.SetNull()
	for i := range tx.Input {
		prevout := tx.Input[i].Prevout
		output, ok := view.RetrieveUnspent(prevout)
		if !ok {
			log.Infof("getTxContxt: retrieve unspent fail, prevout: [%d]:%s", prevout.N, prevout.Hash)
			if view.IsSpentInOverlay(prevout) {
				return nil, ruleError(ErrTransactionConflictingInput,
					fmt.Sprintf("input %s:%d is spent by a sibling transaction", prevout.Hash, prevout.N))
			}
			return nil, ruleError(ErrMissingPrev,
				fmt.Sprintf("input %s:%d is not unspent", prevout.Hash, prevout.N))
		}
		if ctxt.DestIn.IsNull() {
			ctxt.DestIn = output.DestTo
		} else if ctxt.DestIn != output.DestTo {
			log.Infof("getTxContxt: destIn error, destIn: %s, destTo: %s", ctxt.DestIn, output.DestTo)
			return nil, ruleError(ErrTransactionInvalid, "inputs have mixed owners")
		}
		ctxt.Vin = append(ctxt.Vin, types.TxInContxt{
			Amount:    output.Amount,
			TxTime:    output.TxTime,
			LockUntil: output.LockUntil,
		})
	}
	return ctxt, nil
}

// getBlockChanges walks the two tips down to their junction and fills
// the update's block lists: arriving blocks ascending, removed blocks
// tip first.
func (bc *BlockChain) getBlockChanges(indexNew, indexFork *BlockIndex, update *BlockChainUpdate) error {
	for indexNew != indexFork {
		lastBlockTime := int64(-1)
		if indexFork != nil {
			lastBlockTime = indexFork.GetBlockTime()
		}
		if indexNew.GetBlockTime() >= lastBlockTime {
			block, err := bc.container.RetrieveByIndex(indexNew)
			if err != nil {
				return err
			}
			update.BlockAddNew = append(update.BlockAddNew, block)
			indexNew = indexNew.Prev
		} else {
			block, err := bc.container.RetrieveByIndex(indexFork)
			if err != nil {
				return err
			}
			update.BlockRemove = append(update.BlockRemove, block)
			indexFork = indexFork.Prev
		}
	}
	for i, j := 0, len(update.BlockAddNew)-1; i < j; i, j = i+1, j-1 {
		update.BlockAddNew[i], update.BlockAddNew[j] = update.BlockAddNew[j], update.BlockAddNew[i]
	}
	return nil
}

// verifyBlock dispatches the contextual checks by block type and returns
// the allowed mint reward, the round agreement and, for subsidiary
// blocks, the referenced primary index.
func (bc *BlockChain) verifyBlock(hash types.Hash, block *types.Block, prev *BlockIndex) (
	int64, *delegate.Agreement, *BlockIndex, error) {

	agreement := new(delegate.Agreement)
	if block.IsOrigin() {
		return 0, agreement, nil, ruleError(ErrBlockInvalidFork, "origin block in block ingest")
	}

	if block.IsPrimary() {
		if !prev.IsPrimary() {
			return 0, agreement, nil, ruleError(ErrBlockInvalidFork, "primary block off the primary fork")
		}
		if err := bc.verifyBlockCertTx(block); err != nil {
			return 0, agreement, nil, err
		}
		if err := bc.getBlockDelegateAgreementPrev(hash, block, prev, agreement); err != nil {
			return 0, agreement, nil, ruleError(ErrBlockProofOfStakeInvalid, err.Error())
		}
		reward, err := bc.GetBlockMintReward(block.HashPrev)
		if err != nil {
			return 0, agreement, nil, ruleError(ErrBlockCoinbaseInvalid, err.Error())
		}
		if agreement.IsProofOfWork() {
			return reward, agreement, nil, bc.protocol.VerifyProofOfWork(block, prev)
		}
		return reward, agreement, nil, bc.protocol.VerifyDelegatedProofOfStake(block, prev, agreement)
	}

	if !block.IsVacant() {
		if prev.IsPrimary() {
			return 0, agreement, nil, ruleError(ErrBlockInvalidFork, "subsidiary block on the primary fork")
		}
		var piggyback types.ProofOfPiggyback
		if err := piggyback.Load(block.Proof); err != nil {
			return 0, agreement, nil, ruleError(ErrBlockProofOfStakeInvalid, err.Error())
		}
		refAgreement, err := bc.GetBlockDelegateAgreement(piggyback.HashRefBlock)
		if err != nil {
			return 0, agreement, nil, ruleError(ErrBlockProofOfStakeInvalid, err.Error())
		}
		*agreement = *refAgreement
		if agreement.Agreement != piggyback.Agreement ||
			uint8(agreement.Weight) != piggyback.Weight || agreement.IsProofOfWork() {
			return 0, agreement, nil, ruleError(ErrBlockProofOfStakeInvalid,
				"piggyback proof does not match the reference agreement")
		}
		refIndex, err := bc.container.RetrieveIndex(piggyback.HashRefBlock)
		if err != nil {
			return 0, agreement, nil, ruleError(ErrBlockProofOfStakeInvalid, err.Error())
		}

		var reward int64
		if block.IsExtended() {
			prevBlock, err := bc.container.Retrieve(prev.HashBlock)
			if err != nil || prevBlock.IsVacant() {
				return 0, agreement, nil, ruleError(ErrMissingPrev, "extended block follows no subsidiary block")
			}
			var prevProof types.ProofOfPiggyback
			if err := prevProof.Load(prevBlock.Proof); err != nil {
				return 0, agreement, nil, ruleError(ErrBlockProofOfStakeInvalid, err.Error())
			}
			if prevProof.Agreement != piggyback.Agreement || prevProof.Weight != piggyback.Weight {
				return 0, agreement, nil, ruleError(ErrBlockProofOfStakeInvalid,
					"extended block changes the round agreement")
			}
		} else {
			reward, err = bc.GetBlockMintReward(block.HashPrev)
			if err != nil {
				return 0, agreement, nil, ruleError(ErrBlockProofOfStakeInvalid, err.Error())
			}
		}
		return reward, agreement, refIndex, bc.protocol.VerifySubsidiary(block, prev, refIndex, agreement)
	}

	return 0, agreement, nil, nil
}

// verifyBlockCertTx enforces the per-destination CERT allowance: the
// CERT count of the block must not push a destination past its budget in
// the trailing enrollment window.
func (bc *BlockChain) verifyBlockCertTx(block *types.Block) error {
	blockCert := make(map[types.Destination]int)
	for i := range block.Vtx {
		if block.Vtx[i].TxType == types.TxTypeCert {
			blockCert[block.Vtx[i].SendTo]++
		}
	}
	if len(blockCert) == 0 {
		return nil
	}
	allowance, err := bc.getDelegateCertTxAllowance(block.HashPrev)
	if err != nil {
		return nil
	}
	for dest, count := range blockCert {
		if allowed, ok := allowance[dest]; ok && count > allowed {
			log.Infof("verifyBlockCertTx: block cert count %d above allowance %d, dest: %s",
				count, allowed, dest)
			return ruleError(ErrBlockCertTxOutOfBound,
				fmt.Sprintf("destination %s exceeds its CERT allowance", dest))
		}
	}
	return nil
}

// getDelegateCertTxAllowance computes the remaining CERT budget of every
// destination seen in the trailing enrollment window ending at last.
func (bc *BlockChain) getDelegateCertTxAllowance(last types.Hash) (map[types.Destination]int, error) {
	lastIndex, err := bc.container.RetrieveIndex(last)
	if err != nil {
		return nil, err
	}
	counts := make(map[types.Destination]int)
	if lastIndex.Height == 0 {
		return counts, nil
	}
	minHeight := int64(lastIndex.Height) - params.EnrollInterval + 2
	if minHeight < 1 {
		minHeight = 1
	}
	index := lastIndex
	for i := 0; i < params.EnrollInterval-1 && index != nil; i++ {
		certs, err := bc.container.GetBlockDelegatedEnrollCerts(index.HashBlock)
		if err == nil {
			for anchorHeight, dests := range certs {
				if int64(anchorHeight) >= minHeight {
					for _, dest := range dests {
						counts[dest]++
					}
				}
			}
		}
		index = index.Prev
	}

	maxCertCount := int64(params.EnrollInterval + 2)
	if maxCertCount > int64(lastIndex.Height) {
		maxCertCount = int64(lastIndex.Height)
	}
	allowance := make(map[types.Destination]int, len(counts))
	for dest, count := range counts {
		remaining := maxCertCount - int64(count)
		if remaining < 0 {
			remaining = 0
		}
		allowance[dest] = int(remaining)
	}
	return allowance, nil
}

// GetBlockMintReward returns the allowed mint of the block after prev:
// the primary reward schedule on the primary fork, the profile schedule
// elsewhere.
func (bc *BlockChain) GetBlockMintReward(prevHash types.Hash) (int64, error) {
	prev, err := bc.container.RetrieveIndex(prevHash)
	if err != nil {
		return 0, err
	}
	if prev.IsPrimary() {
		return bc.protocol.GetPrimaryMintWorkReward(prev), nil
	}
	profile, err := bc.container.RetrieveProfile(prev.GetOriginHash())
	if err != nil {
		return 0, err
	}
	if profile.HalveCycle == 0 {
		return profile.MintReward, nil
	}
	halvings := (int64(prev.Height) + 1 - int64(profile.JointHeight)) / int64(profile.HalveCycle)
	if halvings < 0 {
		halvings = 0
	}
	return profile.MintReward >> uint(halvings), nil
}

// GetProofOfWorkTarget returns the required bits and reward of the next
// work block on prevHash, which must sit on the primary fork.
func (bc *BlockChain) GetProofOfWorkTarget(prevHash types.Hash, algo uint8) (uint8, int64, error) {
	prev, err := bc.container.RetrieveIndex(prevHash)
	if err != nil {
		return 0, 0, err
	}
	if !prev.IsPrimary() {
		return 0, 0, errors.Errorf("previous block %s is not primary", prevHash)
	}
	bits, reward := bc.protocol.GetProofOfWorkTarget(prev, algo)
	return bits, reward, nil
}

// GetBlockDelegateEnrolled aggregates the enrollment snapshot at a
// block: the CERT enrollments anchored in the trailing enrollment
// window, weighted by their votes.
func (bc *BlockChain) GetBlockDelegateEnrolled(hash types.Hash) (*delegate.Enrolled, error) {
	if cached, ok := bc.cacheEnrolled.Get(hash); ok {
		return cached.(*delegate.Enrolled), nil
	}

	enrolled := new(delegate.Enrolled)
	index, err := bc.container.RetrieveIndex(hash)
	if err != nil {
		log.Infof("GetBlockDelegateEnrolled: retrieve block index error: %s", hash)
		return nil, err
	}
	if index.Height < params.EnrollInterval {
		return enrolled, nil
	}
	blockRange := make([]types.Hash, 0, params.EnrollInterval)
	for i := 0; i < params.EnrollInterval && index != nil; i++ {
		blockRange = append(blockRange, index.HashBlock)
		index = index.Prev
	}
	mapWeight, mapEnrollData, vecAmount, err := bc.container.RetrieveAvailDelegate(
		hash, blockRange, bc.protocol.MinEnrollAmount())
	if err != nil {
		log.Infof("GetBlockDelegateEnrolled: retrieve avail delegate error: %s", hash)
		return nil, err
	}
	enrolled.MapWeight = mapWeight
	enrolled.MapEnrollData = mapEnrollData
	for i := range vecAmount {
		enrolled.VecAmount = append(enrolled.VecAmount, delegate.AmountPair{
			Dest:   vecAmount[i].Dest,
			Amount: vecAmount[i].Amount,
		})
	}

	bc.cacheEnrolled.Add(hash, enrolled)
	return enrolled, nil
}

// GetBlockDelegateAgreement derives the round agreement of a stored
// block from its proof and the enrollment snapshot of its cutoff block.
func (bc *BlockChain) GetBlockDelegateAgreement(hash types.Hash) (*delegate.Agreement, error) {
	if cached, ok := bc.cacheAgreement.Get(hash); ok {
		return cached.(*delegate.Agreement), nil
	}

	agreement := new(delegate.Agreement)
	index, err := bc.container.RetrieveIndex(hash)
	if err != nil {
		log.Infof("GetBlockDelegateAgreement: retrieve block index error: %s", hash)
		return nil, err
	}
	refIndex := index
	if index.Height < params.ConsensusInterval {
		return agreement, nil
	}
	block, err := bc.container.Retrieve(hash)
	if err != nil {
		log.Infof("GetBlockDelegateAgreement: retrieve block error: %s", hash)
		return nil, err
	}
	for i := 0; i < params.DistributeInterval+1 && index.Prev != nil; i++ {
		index = index.Prev
	}
	enrolled, err := bc.GetBlockDelegateEnrolled(index.HashBlock)
	if err != nil {
		return nil, err
	}

	verifier := delegate.NewVerifier(enrolled)
	nAgreement, weight, mapBallot, err := verifier.VerifyProof(block.Proof)
	if err != nil {
		log.Infof("GetBlockDelegateAgreement: invalid block proof: %s", hash)
		return nil, err
	}
	agreement.Agreement = nAgreement
	agreement.Weight = weight
	agreement.Ballot = delegate.GetDelegatedBallot(nAgreement, weight, mapBallot,
		enrolled.VecAmount, index.MoneySupply, refIndex.Height)

	bc.cacheAgreement.Add(hash, agreement)
	return agreement, nil
}

// getBlockDelegateAgreementPrev derives the round agreement of a
// candidate block that is not stored yet, anchored on its predecessor.
func (bc *BlockChain) getBlockDelegateAgreementPrev(hash types.Hash, block *types.Block,
	prev *BlockIndex, agreement *delegate.Agreement) error {

	agreement.Clear()
	if prev.Height < params.ConsensusInterval-1 {
		return nil
	}
	index := prev
	for i := 0; i < params.DistributeInterval && index.Prev != nil; i++ {
		index = index.Prev
	}
	enrolled, err := bc.GetBlockDelegateEnrolled(index.HashBlock)
	if err != nil {
		return err
	}

	verifier := delegate.NewVerifier(enrolled)
	nAgreement, weight, mapBallot, err := verifier.VerifyProof(block.Proof)
	if err != nil {
		log.Infof("getBlockDelegateAgreement: invalid block proof: %s", hash)
		return err
	}
	agreement.Agreement = nAgreement
	agreement.Weight = weight
	agreement.Ballot = delegate.GetDelegatedBallot(nAgreement, weight, mapBallot,
		enrolled.VecAmount, index.MoneySupply, prev.Height+1)

	bc.cacheAgreement.Add(hash, agreement)
	return nil
}

// VerifyRepeatBlock rejects a second block of the same mint family into
// one height slot of a fork.
func (bc *BlockChain) VerifyRepeatBlock(fork types.Hash, block *types.Block, refBlock types.Hash) bool {
	var refTimestamp uint32
	if !refBlock.IsZero() && (block.IsSubsidiary() || block.IsExtended()) {
		refIndex, err := bc.container.RetrieveIndex(refBlock)
		if err != nil {
			log.Infof("VerifyRepeatBlock: retrieve index fail, ref: %s, block: %s",
				refBlock, block.GetHash())
			return false
		}
		if block.IsSubsidiary() {
			if block.GetBlockTime() != refIndex.GetBlockTime() {
				return false
			}
		} else {
			if block.GetBlockTime() <= refIndex.GetBlockTime() ||
				block.GetBlockTime() >= refIndex.GetBlockTime()+params.BlockTargetSpacing {
				return false
			}
		}
		refTimestamp = refIndex.Timestamp
	}
	return bc.container.VerifyRepeatBlock(fork, block.GetBlockHeight(), block.TxMint.SendTo,
		block.BlockType, block.Timestamp, refTimestamp, params.ExtendedBlockSpacing)
}

// GetTxUnspent resolves outputs against the committed view of a fork.
func (bc *BlockChain) GetTxUnspent(fork types.Hash, input []types.TxIn) ([]types.TxOut, error) {
	view := NewBlockView()
	if err := bc.container.GetForkBlockView(fork, view); err != nil {
		return nil, err
	}
	defer view.Deinitialize()

	output := make([]types.TxOut, len(input))
	for i := range input {
		if resolved, ok := view.RetrieveUnspent(input[i].Prevout); ok {
			output[i] = *resolved
		}
	}
	return output, nil
}

// Container exposes the block container to collaborating subsystems.
func (bc *BlockChain) Container() *Container {
	return bc.container
}
