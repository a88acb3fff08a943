// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"bytes"
	"math/big"
	"path/filepath"
	"sync"

	"github.com/bigbangcore/bigbang/core/types"
	"github.com/bigbangcore/bigbang/storage/blockdb"
	"github.com/bigbangcore/bigbang/storage/blockfile"
	"github.com/bigbangcore/bigbang/storage/kvdb"
	"github.com/pkg/errors"
)

// heightIndexEntry is one block known at a fork height, keyed for the
// repeat-block check.
type heightIndexEntry struct {
	timestamp    uint32
	destMint     types.Destination
	hashRefBlock types.Hash
}

// Container owns the block index arena, the derived stores and the live
// fork set. All mutation goes through AddNew / Initiate / CommitBlockView
// under the container write lock; reads take the read lock.
type Container struct {
	mtx   sync.RWMutex
	db    *blockdb.DB
	ts    *blockfile.Store
	debug bool

	mapIndex       map[types.Hash]*BlockIndex
	mapFork        map[types.Hash]*blockFork
	mapHeightIndex map[types.Hash]map[uint32]map[types.Hash]heightIndexEntry
}

// NewContainer returns an empty, uninitialized container.
func NewContainer() *Container {
	return &Container{
		mapIndex:       make(map[types.Hash]*BlockIndex),
		mapFork:        make(map[types.Hash]*blockFork),
		mapHeightIndex: make(map[types.Hash]map[uint32]map[types.Hash]heightIndexEntry),
	}
}

// Initialize opens the stores under path and rebuilds the index arena
// from the outline namespace. It reports whether the derived state is
// consistent; on false the caller should Clear and rebuild from the
// time-series block file.
func (c *Container) Initialize(path string, debug bool) (bool, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	kv, err := kvdb.Open(filepath.Join(path, "blockindex"))
	if err != nil {
		return false, err
	}
	ts, err := blockfile.Open(filepath.Join(path, "block"))
	if err != nil {
		kv.Close()
		return false, err
	}
	c.db = blockdb.New(kv)
	c.ts = ts
	c.debug = debug

	if err := c.loadIndex(); err != nil {
		log.Errorf("Failed to load block index: %v", err)
		return false, nil
	}
	if err := c.loadForks(); err != nil {
		log.Errorf("Failed to load forks: %v", err)
		return false, nil
	}
	return true, nil
}

// Deinitialize releases the stores.
func (c *Container) Deinitialize() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.ts != nil {
		c.ts.Close()
		c.ts = nil
	}
	if c.db != nil {
		c.db.Close()
		c.db = nil
	}
	c.clearCache()
}

// Clear drops the in-memory state. Persistent stores are left to the
// repair path.
func (c *Container) Clear() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.clearCache()
}

func (c *Container) clearCache() {
	c.mapIndex = make(map[types.Hash]*BlockIndex)
	c.mapFork = make(map[types.Hash]*blockFork)
	c.mapHeightIndex = make(map[types.Hash]map[uint32]map[types.Hash]heightIndexEntry)
}

func (c *Container) loadIndex() error {
	outlines := make(map[types.Hash]*blockdb.BlockOutline)
	err := c.db.WalkOutlines(func(outline *blockdb.BlockOutline) bool {
		outlines[outline.HashBlock] = outline
		return true
	})
	if err != nil {
		return err
	}
	for hash, outline := range outlines {
		index := &BlockIndex{
			HashBlock:   hash,
			TxidMint:    outline.TxidMint,
			MintType:    outline.MintType,
			Version:     outline.Version,
			BlockType:   outline.BlockType,
			Timestamp:   outline.Timestamp,
			Height:      outline.Height,
			RandBeacon:  outline.RandBeacon,
			ChainTrust:  outline.ChainTrust.Big(),
			MoneySupply: outline.MoneySupply,
			ProofAlgo:   outline.ProofAlgo,
			ProofBits:   outline.ProofBits,
			File:        outline.File,
			Offset:      outline.Offset,
		}
		index.Origin = index
		c.mapIndex[hash] = index
	}
	for hash, outline := range outlines {
		index := c.mapIndex[hash]
		if !outline.HashPrev.IsZero() {
			prev, ok := c.mapIndex[outline.HashPrev]
			if !ok {
				return errors.Errorf("missing predecessor %s of block %s", outline.HashPrev, hash)
			}
			index.Prev = prev
		}
		origin, ok := c.mapIndex[outline.HashOrigin]
		if !ok {
			return errors.Errorf("missing origin %s of block %s", outline.HashOrigin, hash)
		}
		index.Origin = origin
		c.updateHeightIndex(outline.HashOrigin, hash, outline.Timestamp,
			types.Destination{}, types.ZeroHash)
	}
	return nil
}

func (c *Container) loadForks() error {
	tips, err := c.db.ListForkLast()
	if err != nil {
		return err
	}
	for fork, last := range tips {
		index, ok := c.mapIndex[last]
		if !ok {
			return errors.Errorf("fork %s tip %s is not indexed", fork, last)
		}
		ctxt, err := c.db.RetrieveForkContext(fork)
		if err != nil {
			return err
		}
		profile, err := ctxt.GetProfile()
		if err != nil {
			return err
		}
		blockFork := newBlockFork(profile, index)
		blockFork.UpdateLast(index)
		c.mapFork[fork] = blockFork
	}
	return nil
}

// IsEmpty reports whether the container holds no blocks.
func (c *Container) IsEmpty() bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return len(c.mapIndex) == 0
}

// Exists reports whether the block is indexed.
func (c *Container) Exists(hash types.Hash) bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	_, ok := c.mapIndex[hash]
	return ok
}

// ExistsTx reports whether the transaction is indexed on any fork.
func (c *Container) ExistsTx(txid types.Hash) bool {
	_, _, err := c.RetrieveTx(txid)
	return err == nil
}

// RetrieveIndex returns the index entry of a block.
func (c *Container) RetrieveIndex(hash types.Hash) (*BlockIndex, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	index, ok := c.mapIndex[hash]
	if !ok {
		return nil, errors.Errorf("block %s is not indexed", hash)
	}
	return index, nil
}

// RetrieveFork returns the tip index of a fork.
func (c *Container) RetrieveFork(fork types.Hash) (*BlockIndex, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	blockFork, ok := c.mapFork[fork]
	if !ok {
		return nil, errors.Errorf("fork %s is unknown", fork)
	}
	return blockFork.GetLast(), nil
}

// RetrieveForkByName returns the tip index of the fork with the given
// profile name.
func (c *Container) RetrieveForkByName(name string) (*BlockIndex, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	for _, blockFork := range c.mapFork {
		if blockFork.GetProfile().Name == name {
			return blockFork.GetLast(), nil
		}
	}
	return nil, errors.Errorf("fork named %q is unknown", name)
}

// RetrieveProfile returns the profile of a fork.
func (c *Container) RetrieveProfile(fork types.Hash) (*types.Profile, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	blockFork, ok := c.mapFork[fork]
	if !ok {
		return nil, errors.Errorf("fork %s is unknown", fork)
	}
	return blockFork.GetProfile(), nil
}

// RetrieveForkContext returns the registry record of a fork.
func (c *Container) RetrieveForkContext(fork types.Hash) (*types.ForkContext, error) {
	ctxt, err := c.db.RetrieveForkContext(fork)
	if err != nil {
		return nil, errors.Errorf("fork context %s is unknown", fork)
	}
	return ctxt, nil
}

// AddNewForkContext stores a fork context. It reports false when the
// fork id is already registered.
func (c *Container) AddNewForkContext(ctxt *types.ForkContext) (bool, error) {
	return c.db.AddForkContext(ctxt)
}

// ListForkContexts returns every registered fork context.
func (c *Container) ListForkContexts() ([]*types.ForkContext, error) {
	return c.db.ListForkContexts()
}

// ListForks returns every live fork and its tip.
func (c *Container) ListForks() map[types.Hash]*BlockIndex {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	forks := make(map[types.Hash]*BlockIndex, len(c.mapFork))
	for fork, blockFork := range c.mapFork {
		forks[fork] = blockFork.GetLast()
	}
	return forks
}

// RetrieveOrigin returns the origin block body of a fork.
func (c *Container) RetrieveOrigin(fork types.Hash) (*types.Block, error) {
	index, err := c.RetrieveIndex(fork)
	if err != nil {
		return nil, err
	}
	block, err := c.RetrieveByIndex(index.Origin)
	if err != nil {
		return nil, err
	}
	return &block.Block, nil
}

// Retrieve loads a block body.
func (c *Container) Retrieve(hash types.Hash) (*types.BlockEx, error) {
	index, err := c.RetrieveIndex(hash)
	if err != nil {
		return nil, err
	}
	return c.RetrieveByIndex(index)
}

// RetrieveByIndex loads a block body through its index entry.
func (c *Container) RetrieveByIndex(index *BlockIndex) (*types.BlockEx, error) {
	return c.ts.Read(index.File, index.Offset)
}

// RetrieveTx finds a transaction by scanning the fork indexes and loads
// it from its containing block.
func (c *Container) RetrieveTx(txid types.Hash) (*types.Transaction, types.Hash, error) {
	c.mtx.RLock()
	forks := make([]types.Hash, 0, len(c.mapFork))
	for fork := range c.mapFork {
		forks = append(forks, fork)
	}
	c.mtx.RUnlock()

	for _, fork := range forks {
		tx, err := c.RetrieveForkTx(fork, txid)
		if err == nil {
			return tx, fork, nil
		}
	}
	return nil, types.ZeroHash, errors.Errorf("tx %s is not indexed", txid)
}

// RetrieveForkTx loads a transaction from one fork's index.
func (c *Container) RetrieveForkTx(fork, txid types.Hash) (*types.Transaction, error) {
	txIndex, err := c.db.RetrieveTxIndex(fork, txid)
	if err != nil {
		return nil, err
	}
	block, err := c.ts.Read(txIndex.File, txIndex.Offset)
	if err != nil {
		return nil, err
	}
	if !block.IsVacant() && block.TxMint.GetHash() == txid {
		tx := block.TxMint
		return &tx, nil
	}
	for i := range block.Vtx {
		if block.Vtx[i].GetHash() == txid {
			tx := block.Vtx[i]
			return &tx, nil
		}
	}
	return nil, errors.Errorf("tx %s missing from its indexed block", txid)
}

// RetrieveTxLocation returns the fork and height holding a transaction.
func (c *Container) RetrieveTxLocation(txid types.Hash) (types.Hash, uint32, error) {
	c.mtx.RLock()
	forks := make([]types.Hash, 0, len(c.mapFork))
	for fork := range c.mapFork {
		forks = append(forks, fork)
	}
	c.mtx.RUnlock()

	for _, fork := range forks {
		txIndex, err := c.db.RetrieveTxIndex(fork, txid)
		if err == nil {
			return fork, txIndex.BlockHeight, nil
		}
	}
	return types.ZeroHash, 0, errors.Errorf("tx %s is not indexed", txid)
}

func (c *Container) getTxUnspent(fork types.Hash, out types.TxOutPoint) (*types.TxOut, error) {
	return c.db.RetrieveUnspent(fork, out)
}

// Initiate seeds an empty container with the genesis block.
func (c *Container) Initiate(hashGenesis types.Hash, blockGenesis *types.Block, trust *big.Int) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if len(c.mapIndex) != 0 {
		return errors.New("container is not empty")
	}

	var profile types.Profile
	if err := profile.Load(blockGenesis.Proof); err != nil {
		return errors.Wrap(err, "genesis profile")
	}

	blockEx := types.NewBlockEx(blockGenesis, nil)
	file, offset, err := c.ts.Write(blockEx)
	if err != nil {
		return err
	}

	index := NewBlockIndex(blockGenesis, file, offset)
	index.HashBlock = hashGenesis
	index.ChainTrust = new(big.Int).Set(trust)
	index.MoneySupply = blockGenesis.TxMint.Amount
	index.RandBeacon = blockGenesis.GetBlockBeacon(0)

	ctxt, err := types.NewForkContext(hashGenesis, types.ZeroHash, types.ZeroHash, &profile)
	if err != nil {
		return err
	}

	commit := c.db.BeginCommit()
	if err := commit.PutOutline(index.Outline()); err != nil {
		commit.Abort()
		return err
	}
	if err := commit.PutForkLast(hashGenesis, hashGenesis); err != nil {
		commit.Abort()
		return err
	}
	mintOut := types.TxOut{
		DestTo: blockGenesis.TxMint.SendTo,
		Amount: blockGenesis.TxMint.Amount,
		TxTime: blockGenesis.TxMint.Timestamp,
	}
	txidMint := blockGenesis.TxMint.GetHash()
	if err := commit.PutUnspent(hashGenesis, types.TxOutPoint{Hash: txidMint}, &mintOut); err != nil {
		commit.Abort()
		return err
	}
	if err := commit.PutTxIndex(hashGenesis, txidMint, &blockdb.TxIndex{
		BlockHeight: 0, TxTime: blockGenesis.TxMint.Timestamp, File: file, Offset: offset,
	}); err != nil {
		commit.Abort()
		return err
	}
	record := c.buildDelegateRecord(nil, blockEx)
	if err := commit.PutDelegate(hashGenesis, record); err != nil {
		commit.Abort()
		return err
	}
	if err := commit.Done(); err != nil {
		return err
	}
	if _, err := c.db.AddForkContext(ctxt); err != nil {
		return err
	}

	c.mapIndex[hashGenesis] = index
	blockFork := newBlockFork(&profile, index)
	c.mapFork[hashGenesis] = blockFork
	c.updateHeightIndex(hashGenesis, hashGenesis, blockGenesis.Timestamp,
		blockGenesis.TxMint.SendTo, types.ZeroHash)
	return nil
}

// AddNew writes a validated block body to the time-series file, builds
// and persists its index entry and the delegate snapshot, and links it
// into the arena. blockTrust is the trust of this block alone; the entry
// accumulates it over the predecessor. The fork tip is untouched.
func (c *Container) AddNew(hash types.Hash, block *types.BlockEx, blockTrust *big.Int) (*BlockIndex, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if _, ok := c.mapIndex[hash]; ok {
		return nil, errors.Errorf("block %s already indexed", hash)
	}
	prev, ok := c.mapIndex[block.HashPrev]
	if !ok && !block.IsGenesis() {
		return nil, errors.Errorf("predecessor %s of block %s is not indexed", block.HashPrev, hash)
	}

	file, offset, err := c.ts.Write(block)
	if err != nil {
		return nil, err
	}

	index := NewBlockIndex(&block.Block, file, offset)
	index.HashBlock = hash
	index.Prev = prev
	if block.IsOrigin() {
		index.Origin = index
		index.RandBeacon = block.GetBlockBeacon(0)
		index.MoneySupply = block.TxMint.Amount
		index.ChainTrust = new(big.Int).Set(blockTrust)
	} else {
		index.Origin = prev.Origin
		index.RandBeacon = prev.RandBeacon ^ index.Origin.RandBeacon
		index.MoneySupply = prev.MoneySupply + block.GetBlockMint(block.TotalTxFee())
		index.ChainTrust = new(big.Int).Add(prev.ChainTrust, blockTrust)
	}

	var refBlock types.Hash
	if !block.IsPrimary() && !block.IsOrigin() && len(block.Proof) >= types.ProofOfPiggybackSize {
		var piggyback types.ProofOfPiggyback
		if err := piggyback.Load(block.Proof); err == nil {
			refBlock = piggyback.HashRefBlock
		}
	}

	commit := c.db.BeginCommit()
	if err := commit.PutOutline(index.Outline()); err != nil {
		commit.Abort()
		return nil, err
	}
	if index.IsPrimary() || index.IsOrigin() {
		var prevRecord *blockdb.DelegateRecord
		if prev != nil {
			prevRecord, _ = c.db.RetrieveDelegate(prev.HashBlock)
		}
		record := c.buildDelegateRecord(prevRecord, block)
		if err := commit.PutDelegate(hash, record); err != nil {
			commit.Abort()
			return nil, err
		}
	}
	if err := commit.Done(); err != nil {
		return nil, err
	}

	c.mapIndex[hash] = index
	c.updateHeightIndex(index.GetOriginHash(), hash, block.Timestamp,
		block.TxMint.SendTo, refBlock)
	log.Debugf("AddNew indexed %s", index)
	return index, nil
}

// buildDelegateRecord folds a block's transactions into the delegate
// snapshot of its predecessor: template destinations gain the amounts
// sent to them and lose what they spend, and CERT transactions carry
// enrollment data for their anchor window.
func (c *Container) buildDelegateRecord(prev *blockdb.DelegateRecord, block *types.BlockEx) *blockdb.DelegateRecord {
	record := &blockdb.DelegateRecord{
		Votes:      make(map[types.Destination]int64),
		EnrollData: make(map[types.Destination][]byte),
	}
	if prev != nil {
		for dest, amount := range prev.Votes {
			record.Votes[dest] = amount
		}
	}
	apply := func(tx *types.Transaction, ctxt *types.TxContxt) {
		if tx.SendTo.IsTemplate() {
			record.Votes[tx.SendTo] += tx.Amount
		}
		if ctxt != nil && ctxt.DestIn.IsTemplate() {
			spent := tx.Amount + tx.TxFee
			record.Votes[ctxt.DestIn] -= spent
			if record.Votes[ctxt.DestIn] <= 0 {
				delete(record.Votes, ctxt.DestIn)
			}
		}
	}
	if !block.IsVacant() {
		apply(&block.TxMint, nil)
	}
	for i := range block.Vtx {
		tx := &block.Vtx[i]
		var ctxt *types.TxContxt
		if i < len(block.TxContxt) {
			ctxt = &block.TxContxt[i]
		}
		apply(tx, ctxt)
		if tx.TxType == types.TxTypeCert {
			record.EnrollData[tx.SendTo] = append([]byte(nil), tx.Data...)
			record.Certs = append(record.Certs, blockdb.CertRecord{
				Dest:         tx.SendTo,
				AnchorHeight: tx.HashAnchor.Height(),
			})
		}
	}
	return record
}

func (c *Container) updateHeightIndex(fork, hash types.Hash, timestamp uint32,
	destMint types.Destination, refBlock types.Hash) {

	heights, ok := c.mapHeightIndex[fork]
	if !ok {
		heights = make(map[uint32]map[types.Hash]heightIndexEntry)
		c.mapHeightIndex[fork] = heights
	}
	height := hash.Height()
	entries, ok := heights[height]
	if !ok {
		entries = make(map[types.Hash]heightIndexEntry)
		heights[height] = entries
	}
	entries[hash] = heightIndexEntry{timestamp: timestamp, destMint: destMint, hashRefBlock: refBlock}
}

// VerifyRepeatBlock rejects a second block minted by the same
// destination into the same height slot of a fork.
func (c *Container) VerifyRepeatBlock(fork types.Hash, height uint32, destMint types.Destination,
	blockType uint16, timestamp, refTimestamp, extendedSpacing uint32) bool {

	c.mtx.RLock()
	defer c.mtx.RUnlock()
	heights, ok := c.mapHeightIndex[fork]
	if !ok {
		return true
	}
	entries, ok := heights[height]
	if !ok {
		return true
	}
	for _, entry := range entries {
		if entry.destMint != destMint || entry.destMint.IsNull() {
			continue
		}
		if blockType == types.BlockTypeExtended && extendedSpacing != 0 {
			// Extended blocks share a height; only the same sub-slot
			// counts as a repeat.
			if refTimestamp != 0 &&
				(entry.timestamp-refTimestamp)/extendedSpacing != (timestamp-refTimestamp)/extendedSpacing {
				continue
			}
		}
		return false
	}
	return true
}

// GetBlockHashByHeight returns the non-extended block at a height of the
// active chain of a fork.
func (c *Container) GetBlockHashByHeight(fork types.Hash, height uint32) (types.Hash, error) {
	c.mtx.RLock()
	blockFork, ok := c.mapFork[fork]
	c.mtx.RUnlock()
	if !ok {
		return types.ZeroHash, errors.Errorf("fork %s is unknown", fork)
	}
	index := blockFork.GetLast()
	if index.Height < height {
		return types.ZeroHash, errors.Errorf("fork %s has no height %d", fork, height)
	}
	for index != nil && index.Height > height {
		index = index.Prev
	}
	for index != nil && index.Height == height && index.IsExtended() {
		index = index.Prev
	}
	if index == nil {
		return types.ZeroHash, errors.Errorf("fork %s has no height %d", fork, height)
	}
	return index.HashBlock, nil
}

// GetBlockView opens a view on a base block. A mutable view carries the
// rollback and forward effects of switching the fork's active chain from
// its current tip to the base, and holds the fork write lock until it is
// deinitialized; committing it does not release the lock.
func (c *Container) GetBlockView(hash types.Hash, view *BlockView, mutable bool) error {
	c.mtx.RLock()
	index, ok := c.mapIndex[hash]
	var fork *blockFork
	if ok {
		fork = c.mapFork[index.GetOriginHash()]
	}
	c.mtx.RUnlock()
	if !ok {
		return errors.Errorf("block %s is not indexed", hash)
	}
	if fork == nil {
		return errors.Errorf("fork %s is unknown", index.GetOriginHash())
	}

	view.initialize(c, fork, index.GetOriginHash(), mutable)
	if !mutable {
		return nil
	}

	// Symmetric difference between the fork tip and the base: blocks on
	// the tip side are rolled back, blocks on the base side re-applied.
	var rollback, forward []*BlockIndex
	p, q := fork.GetLast(), index
	for p != q {
		if p.GetBlockTime() >= q.GetBlockTime() {
			rollback = append(rollback, p)
			p = p.Prev
		} else {
			forward = append(forward, q)
			q = q.Prev
		}
		if p == nil || q == nil {
			view.Deinitialize()
			return errors.Errorf("blocks %s and %s do not share a fork", fork.GetLast().HashBlock, hash)
		}
	}

	for _, r := range rollback {
		block, err := c.RetrieveByIndex(r)
		if err != nil {
			view.Deinitialize()
			return err
		}
		for i := len(block.Vtx) - 1; i >= 0; i-- {
			var ctxt types.TxContxt
			if i < len(block.TxContxt) {
				ctxt = block.TxContxt[i]
			}
			view.RemoveTx(block.Vtx[i].GetHash(), &block.Vtx[i], &ctxt)
		}
		if !block.IsVacant() {
			view.RemoveTx(block.TxMint.GetHash(), &block.TxMint, &types.TxContxt{})
		}
		view.RemoveBlock(r.HashBlock, block)
	}
	for i := len(forward) - 1; i >= 0; i-- {
		f := forward[i]
		block, err := c.RetrieveByIndex(f)
		if err != nil {
			view.Deinitialize()
			return err
		}
		if !block.IsVacant() {
			if err := view.AddTx(block.TxMint.GetHash(), &block.TxMint, types.Destination{}, 0); err != nil {
				view.Deinitialize()
				return err
			}
		}
		for j := range block.Vtx {
			var ctxt types.TxContxt
			if j < len(block.TxContxt) {
				ctxt = block.TxContxt[j]
			}
			err := view.AddTx(block.Vtx[j].GetHash(), &block.Vtx[j], ctxt.DestIn, ctxt.GetValueIn())
			if err != nil {
				view.Deinitialize()
				return err
			}
		}
		view.AddBlock(f.HashBlock, block)
	}
	return nil
}

// GetForkBlockView opens a read-only view on the current tip of a fork.
func (c *Container) GetForkBlockView(fork types.Hash, view *BlockView) error {
	c.mtx.RLock()
	blockFork, ok := c.mapFork[fork]
	c.mtx.RUnlock()
	if !ok {
		return errors.Errorf("fork %s is unknown", fork)
	}
	view.initialize(c, blockFork, fork, false)
	return nil
}

// GetFreshBlockView opens a view with no backing fork, used when seeding
// an isolated fork.
func (c *Container) GetFreshBlockView(view *BlockView) {
	view.initialize(c, nil, types.ZeroHash, false)
}

// CommitBlockView atomically persists the view's unspent changes, the
// transaction index updates and the fork tip, then relinks the
// materialized Next chain. The new tip's fork is created on the fly when
// the committed block is an origin.
func (c *Container) CommitBlockView(view *BlockView, indexNew *BlockIndex) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	fork := indexNew.GetOriginHash()
	commit := c.db.BeginCommit()

	addNew, remove := view.GetUnspentChanges()
	for i := range addNew {
		if err := commit.PutUnspent(fork, addNew[i].OutPoint, &addNew[i].Output); err != nil {
			commit.Abort()
			return err
		}
	}
	for i := range remove {
		if err := commit.EraseUnspent(fork, remove[i]); err != nil {
			commit.Abort()
			return err
		}
	}

	// A non-isolated new fork inherits the parent fork's committed coin
	// set as it stands at commit time; outputs the parent gained after the
	// joint block are not filtered out.
	parentForkHash := view.GetForkHash()
	if indexNew.IsOrigin() && parentForkHash != fork && !parentForkHash.IsZero() {
		parentFork := parentForkHash
		err := c.db.WalkUnspent(parentFork, func(out types.TxOutPoint, output *types.TxOut) bool {
			return commit.PutUnspent(fork, out, output) == nil
		})
		if err != nil {
			commit.Abort()
			return err
		}
	}

	blockAdd, blockRemove := view.GetBlockChanges()
	forEachTx := func(block *types.BlockEx, fn func(txid types.Hash, tx *types.Transaction) error) error {
		if !block.IsVacant() {
			if err := fn(block.TxMint.GetHash(), &block.TxMint); err != nil {
				return err
			}
		}
		for i := range block.Vtx {
			if err := fn(block.Vtx[i].GetHash(), &block.Vtx[i]); err != nil {
				return err
			}
		}
		return nil
	}
	for _, block := range blockRemove {
		err := forEachTx(block, func(txid types.Hash, tx *types.Transaction) error {
			if tx.IsDeFiRelation() {
				if err := commit.EraseAddress(fork, tx.SendTo); err != nil {
					return err
				}
			}
			return commit.EraseTxIndex(fork, txid)
		})
		if err != nil {
			commit.Abort()
			return err
		}
	}
	for _, block := range blockAdd {
		hash := block.GetHash()
		index, ok := c.mapIndex[hash]
		if !ok {
			commit.Abort()
			return errors.Errorf("committed block %s is not indexed", hash)
		}
		err := forEachTx(block, func(txid types.Hash, tx *types.Transaction) error {
			if tx.IsDeFiRelation() {
				if err := c.stageAddressInvite(commit, fork, txid, tx); err != nil {
					return err
				}
			}
			return commit.PutTxIndex(fork, txid, &blockdb.TxIndex{
				BlockHeight: index.Height,
				TxTime:      tx.Timestamp,
				File:        index.File,
				Offset:      index.Offset,
			})
		})
		if err != nil {
			commit.Abort()
			return err
		}
	}
	if indexNew.IsOrigin() && !indexNew.IsVacant() {
		// The origin block itself never rides the view block lists.
		txidMint := indexNew.TxidMint
		if !txidMint.IsZero() {
			if err := commit.PutTxIndex(fork, txidMint, &blockdb.TxIndex{
				BlockHeight: indexNew.Height,
				TxTime:      indexNew.Timestamp,
				File:        indexNew.File,
				Offset:      indexNew.Offset,
			}); err != nil {
				commit.Abort()
				return err
			}
		}
	}

	if err := commit.PutForkLast(fork, indexNew.HashBlock); err != nil {
		commit.Abort()
		return err
	}
	if err := commit.Done(); err != nil {
		return err
	}

	blockFork, ok := c.mapFork[fork]
	if !ok {
		profile, err := c.profileOfOrigin(indexNew)
		if err != nil {
			return err
		}
		blockFork = newBlockFork(profile, indexNew)
		c.mapFork[fork] = blockFork
	}
	blockFork.UpdateLast(indexNew)
	return nil
}

func (c *Container) profileOfOrigin(origin *BlockIndex) (*types.Profile, error) {
	block, err := c.RetrieveByIndex(origin)
	if err != nil {
		return nil, err
	}
	profile := new(types.Profile)
	if err := profile.Load(block.Proof); err != nil {
		return nil, err
	}
	return profile, nil
}

// stageAddressInvite records an invite relation carried by a DeFi
// relation transaction, refusing cycles: walking the parent's ancestry
// must not reach the invited destination.
func (c *Container) stageAddressInvite(commit *blockdb.Commit, fork, txid types.Hash, tx *types.Transaction) error {
	invited := tx.SendTo
	var parent types.Destination
	if len(tx.Data) >= types.DestinationSize {
		if err := parent.Deserialize(bytes.NewReader(tx.Data)); err != nil {
			return err
		}
	}
	if parent.IsNull() || invited == parent {
		return errors.Errorf("invite tx %s has no usable parent", txid)
	}
	root := parent
	for depth := 0; depth < 1024; depth++ {
		info, err := c.db.RetrieveAddress(fork, root)
		if err != nil {
			break
		}
		if info.DestParent.IsNull() {
			break
		}
		if info.DestParent == invited {
			return errors.Errorf("invite tx %s would create a relation cycle", txid)
		}
		root = info.DestParent
	}
	return commit.PutAddress(fork, invited, &blockdb.AddrInfo{
		DestRoot:   root,
		DestParent: parent,
		TxidInvite: txid,
	})
}

// GetBlockDelegateVote returns the cumulative template vote totals at a
// block.
func (c *Container) GetBlockDelegateVote(hash types.Hash) (map[types.Destination]int64, error) {
	record, err := c.db.RetrieveDelegate(hash)
	if err != nil {
		return nil, err
	}
	return record.Votes, nil
}

// GetBlockDelegatedEnrollCerts returns the CERT occurrences packed in a
// block, keyed by anchor height.
func (c *Container) GetBlockDelegatedEnrollCerts(hash types.Hash) (map[uint32][]types.Destination, error) {
	record, err := c.db.RetrieveDelegate(hash)
	if err != nil {
		return nil, err
	}
	certs := make(map[uint32][]types.Destination)
	for _, cert := range record.Certs {
		certs[cert.AnchorHeight] = append(certs[cert.AnchorHeight], cert.Dest)
	}
	return certs, nil
}

// RetrieveAvailDelegate aggregates the enrollment snapshot at a block:
// the vote weights above the enrollment floor and the enroll data found
// in the given block range.
func (c *Container) RetrieveAvailDelegate(hash types.Hash, blockRange []types.Hash, minEnrollAmount int64) (
	map[types.Destination]uint64, map[types.Destination][]byte, []struct {
		Dest   types.Destination
		Amount int64
	}, error) {

	record, err := c.db.RetrieveDelegate(hash)
	if err != nil {
		return nil, nil, nil, err
	}

	enrollData := make(map[types.Destination][]byte)
	for _, rangeHash := range blockRange {
		rangeRecord, err := c.db.RetrieveDelegate(rangeHash)
		if err != nil {
			continue
		}
		for dest, data := range rangeRecord.EnrollData {
			if _, ok := enrollData[dest]; !ok {
				enrollData[dest] = data
			}
		}
	}

	mapWeight := make(map[types.Destination]uint64)
	var vecAmount []struct {
		Dest   types.Destination
		Amount int64
	}
	dests := make([]types.Destination, 0, len(record.Votes))
	for dest := range record.Votes {
		dests = append(dests, dest)
	}
	types.SortDestinations(dests)
	for _, dest := range dests {
		amount := record.Votes[dest]
		if amount < minEnrollAmount {
			continue
		}
		if _, ok := enrollData[dest]; !ok {
			continue
		}
		mapWeight[dest] = uint64(amount / minEnrollAmount)
		vecAmount = append(vecAmount, struct {
			Dest   types.Destination
			Amount int64
		}{dest, amount})
	}
	for dest := range enrollData {
		if _, ok := mapWeight[dest]; !ok {
			delete(enrollData, dest)
		}
	}
	return mapWeight, enrollData, vecAmount, nil
}

// ListForkAddressAmount sums the unspent amounts of every destination on
// a fork, through the given view's overlay.
func (c *Container) ListForkAddressAmount(fork types.Hash, view *BlockView) (map[types.Destination]int64, error) {
	amounts := make(map[types.Destination]int64)
	err := c.db.WalkUnspent(fork, func(out types.TxOutPoint, output *types.TxOut) bool {
		if resolved, ok := view.RetrieveUnspent(out); ok {
			amounts[resolved.DestTo] += resolved.Amount
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	addNew, _ := view.GetUnspentChanges()
	for i := range addNew {
		if _, err := c.db.RetrieveUnspent(fork, addNew[i].OutPoint); err != nil {
			amounts[addNew[i].Output.DestTo] += addNew[i].Output.Amount
		}
	}
	return amounts, nil
}

// ListForkAddressInvites loads the invite relation records of a fork.
func (c *Container) ListForkAddressInvites(fork types.Hash) (map[types.Destination]*blockdb.AddrInfo, error) {
	invites := make(map[types.Destination]*blockdb.AddrInfo)
	err := c.db.WalkAddresses(fork, func(dest types.Destination, info *blockdb.AddrInfo) bool {
		invites[dest] = info
		return true
	})
	if err != nil {
		return nil, err
	}
	return invites, nil
}

// CheckConsistency runs the startup sanity check: every fork tip must be
// indexed and its recent chain well formed. Depth bounds how many blocks
// of each fork are walked; zero walks everything.
func (c *Container) CheckConsistency(checkLevel, checkDepth int) bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	if checkLevel <= 0 {
		return true
	}
	for fork, blockFork := range c.mapFork {
		index := blockFork.GetLast()
		if index == nil {
			log.Errorf("Fork %s has no tip", fork)
			return false
		}
		depth := 0
		for index != nil && !index.IsOrigin() {
			if checkDepth > 0 && depth >= checkDepth {
				break
			}
			prev := index.Prev
			if prev == nil {
				log.Errorf("Block %s has no predecessor", index.HashBlock)
				return false
			}
			if !index.IsExtended() && index.Height != prev.Height+1 {
				log.Errorf("Block %s breaks height monotonicity", index.HashBlock)
				return false
			}
			if index.IsExtended() && index.Height != prev.Height {
				log.Errorf("Extended block %s changes height", index.HashBlock)
				return false
			}
			if index.ChainTrust.Cmp(prev.ChainTrust) < 0 {
				log.Errorf("Block %s loses chain trust", index.HashBlock)
				return false
			}
			index = prev
			depth++
		}
	}
	return true
}

// RebuildFromBlockFile replays the append-only time-series store through
// the given apply callback. The repair path feeds every surviving block
// back through ingest to reconstruct the derived namespaces.
func (c *Container) RebuildFromBlockFile(apply func(block *types.BlockEx) error) error {
	return c.ts.WalkBlocks(func(block *types.BlockEx, _, _ uint32) bool {
		return apply(block) == nil
	})
}
