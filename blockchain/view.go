// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/bigbangcore/bigbang/core/types"
	"github.com/pkg/errors"
)

// viewUnspent is one overlay slot of a view. opt counts enables minus
// disables; a slot with opt != 0 is a pending change against the
// persistent unspent set.
type viewUnspent struct {
	output types.TxOut
	opt    int
}

func (u *viewUnspent) enable(output types.TxOut) {
	u.output = output
	u.opt++
}

func (u *viewUnspent) disable() {
	u.output.SetNull()
	u.opt--
}

func (u *viewUnspent) isModified() bool {
	return u.opt != 0
}

// BlockView is a transactional overlay over a fork's unspent set. It
// accumulates the effects of rolling back and applying candidate blocks
// and is committed atomically at fork switch. A committable view holds
// the fork's write lock from creation until Deinitialize.
type BlockView struct {
	container   *Container
	fork        *blockFork
	hashFork    types.Hash
	committable bool

	mapTx       map[types.Hash]types.Transaction
	mapUnspent  map[types.TxOutPoint]*viewUnspent
	txRemove    []types.Hash
	txAddNew    []types.Hash
	blockAddNew []*types.BlockEx
	blockRemove []*types.BlockEx
}

// NewBlockView returns an empty, uninitialized view.
func NewBlockView() *BlockView {
	return &BlockView{
		mapTx:      make(map[types.Hash]types.Transaction),
		mapUnspent: make(map[types.TxOutPoint]*viewUnspent),
	}
}

func (v *BlockView) initialize(container *Container, fork *blockFork, hashFork types.Hash, committable bool) {
	v.Deinitialize()
	v.container = container
	v.fork = fork
	v.hashFork = hashFork
	v.committable = committable
	if fork != nil {
		if committable {
			fork.mtx.Lock()
		} else {
			fork.mtx.RLock()
		}
	}
}

// Deinitialize releases the fork lock and clears the overlay.
func (v *BlockView) Deinitialize() {
	if v.fork != nil {
		if v.committable {
			v.fork.mtx.Unlock()
		} else {
			v.fork.mtx.RUnlock()
		}
		v.fork = nil
	}
	v.container = nil
	v.committable = false
	v.mapTx = make(map[types.Hash]types.Transaction)
	v.mapUnspent = make(map[types.TxOutPoint]*viewUnspent)
	v.txRemove = nil
	v.txAddNew = nil
	v.blockAddNew = nil
	v.blockRemove = nil
}

// IsCommittable reports whether the view may be committed.
func (v *BlockView) IsCommittable() bool {
	return v.committable
}

// GetForkHash returns the fork the view is opened on.
func (v *BlockView) GetForkHash() types.Hash {
	return v.hashFork
}

// ExistsTx reports whether the view holds txid in its overlay.
func (v *BlockView) ExistsTx(txid types.Hash) bool {
	_, ok := v.mapTx[txid]
	return ok
}

// RetrieveTx returns a transaction from the overlay.
func (v *BlockView) RetrieveTx(txid types.Hash) (*types.Transaction, bool) {
	tx, ok := v.mapTx[txid]
	if !ok {
		return nil, false
	}
	return &tx, true
}

// RetrieveUnspent resolves an output: the overlay first, then the
// persistent fork unspent set.
func (v *BlockView) RetrieveUnspent(out types.TxOutPoint) (*types.TxOut, bool) {
	if slot, ok := v.mapUnspent[out]; ok {
		if slot.output.IsNull() {
			return nil, false
		}
		output := slot.output
		return &output, true
	}
	if v.container == nil {
		return nil, false
	}
	output, err := v.container.getTxUnspent(v.hashFork, out)
	if err != nil {
		return nil, false
	}
	return output, true
}

// IsSpentInOverlay reports whether the view itself consumed the output:
// the slot exists and was disabled by an overlay transaction.
func (v *BlockView) IsSpentInOverlay(out types.TxOutPoint) bool {
	slot, ok := v.mapUnspent[out]
	return ok && slot.output.IsNull() && slot.opt < 0
}

func (v *BlockView) slot(out types.TxOutPoint) *viewUnspent {
	if slot, ok := v.mapUnspent[out]; ok {
		return slot
	}
	slot := new(viewUnspent)
	if v.container != nil {
		if output, err := v.container.getTxUnspent(v.hashFork, out); err == nil {
			slot.output = *output
		}
	}
	v.mapUnspent[out] = slot
	return slot
}

// AddTx applies a transaction to the overlay: its inputs leave the
// unspent set and its outputs join it. destIn and valueIn describe the
// resolved input owner for the change output; a mint passes neither.
func (v *BlockView) AddTx(txid types.Hash, tx *types.Transaction, destIn types.Destination, valueIn int64) error {
	v.mapTx[txid] = *tx
	v.txAddNew = append(v.txAddNew, txid)

	for i := range tx.Input {
		prevout := tx.Input[i].Prevout
		slot := v.slot(prevout)
		if slot.output.IsNull() {
			return errors.Errorf("view: input %s:%d is not unspent", prevout.Hash, prevout.N)
		}
		slot.disable()
	}

	output0 := types.TxOut{
		DestTo: tx.SendTo,
		Amount: tx.Amount,
		TxTime: tx.Timestamp,
	}
	if !output0.IsNull() {
		v.slot(types.TxOutPoint{Hash: txid, N: 0}).enable(output0)
	}
	change := valueIn - tx.Amount - tx.TxFee
	if change > 0 {
		output1 := types.TxOut{
			DestTo: destIn,
			Amount: change,
			TxTime: tx.Timestamp,
		}
		v.slot(types.TxOutPoint{Hash: txid, N: 1}).enable(output1)
	}
	return nil
}

// RemoveTx reverses AddTx using the recorded input context: the outputs
// leave the unspent set and the spent inputs return to it.
func (v *BlockView) RemoveTx(txid types.Hash, tx *types.Transaction, ctxt *types.TxContxt) {
	delete(v.mapTx, txid)
	v.txRemove = append(v.txRemove, txid)

	for i := range tx.Input {
		if i >= len(ctxt.Vin) {
			break
		}
		restored := types.TxOut{
			DestTo:    ctxt.DestIn,
			Amount:    ctxt.Vin[i].Amount,
			TxTime:    ctxt.Vin[i].TxTime,
			LockUntil: ctxt.Vin[i].LockUntil,
		}
		v.slot(tx.Input[i].Prevout).enable(restored)
	}
	v.slot(types.TxOutPoint{Hash: txid, N: 0}).disable()
	change := ctxt.GetValueIn() - tx.Amount - tx.TxFee
	if change > 0 {
		v.slot(types.TxOutPoint{Hash: txid, N: 1}).disable()
	}
}

func insertBlockList(list []*types.BlockEx, hash types.Hash, block *types.BlockEx) []*types.BlockEx {
	for i, b := range list {
		if b.GetHash() == hash {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	return append(list, block)
}

// AddBlock records an arriving block in canonical (ascending) order.
func (v *BlockView) AddBlock(hash types.Hash, block *types.BlockEx) {
	v.blockAddNew = insertBlockList(v.blockAddNew, hash, block)
}

// RemoveBlock records a rolled-back block, tip first.
func (v *BlockView) RemoveBlock(hash types.Hash, block *types.BlockEx) {
	v.blockRemove = insertBlockList(v.blockRemove, hash, block)
}

// GetBlockChanges returns the arriving and rolled-back block lists.
func (v *BlockView) GetBlockChanges() (add, remove []*types.BlockEx) {
	return v.blockAddNew, v.blockRemove
}

// GetUnspentChanges splits the modified overlay slots into the outputs
// to persist and the outpoints to erase.
func (v *BlockView) GetUnspentChanges() (addNew []types.TxUnspent, remove []types.TxOutPoint) {
	for out, slot := range v.mapUnspent {
		if !slot.isModified() {
			continue
		}
		if slot.output.IsNull() {
			remove = append(remove, out)
		} else {
			addNew = append(addNew, types.TxUnspent{OutPoint: out, Output: slot.output})
		}
	}
	return addNew, remove
}

// GetTxUpdated returns the ids of every transaction the view touched.
func (v *BlockView) GetTxUpdated() map[types.Hash]struct{} {
	set := make(map[types.Hash]struct{}, len(v.txAddNew)+len(v.txRemove))
	for _, txid := range v.txAddNew {
		set[txid] = struct{}{}
	}
	for _, txid := range v.txRemove {
		set[txid] = struct{}{}
	}
	return set
}

// GetTxRemoved returns the ids of the transactions rolled back.
func (v *BlockView) GetTxRemoved() []types.Hash {
	return v.txRemove
}
