// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockdb layers the chain's logical namespaces over the
// key-value engine: block outlines, fork contexts, fork tips, per-fork
// transaction and unspent indexes, delegate snapshots and invite address
// records. Every namespace uses a disjoint one-byte prefix, so all
// mutations of one block ingest can ride a single atomic transaction.
package blockdb

import (
	"bytes"
	"io"

	"github.com/bigbangcore/bigbang/core/serialization"
	"github.com/bigbangcore/bigbang/core/types"
	"github.com/bigbangcore/bigbang/storage/kvdb"
	"github.com/pkg/errors"
)

// Namespace prefixes. These never change once data exists on disk.
const (
	prefixOutline    byte = 'o'
	prefixForkCtxt   byte = 'f'
	prefixForkActive byte = 'a'
	prefixTxIndex    byte = 't'
	prefixUnspent    byte = 'u'
	prefixDelegate   byte = 'd'
	prefixAddress    byte = 'i'
)

// DB wraps the chain store.
type DB struct {
	kv *kvdb.DB
}

// New wraps an open key-value store.
func New(kv *kvdb.DB) *DB {
	return &DB{kv: kv}
}

// Close releases the underlying store.
func (db *DB) Close() error {
	return db.kv.Close()
}

func outlineKey(hash types.Hash) []byte {
	return append([]byte{prefixOutline}, hash[:]...)
}

func forkCtxtKey(fork types.Hash) []byte {
	return append([]byte{prefixForkCtxt}, fork[:]...)
}

func forkActiveKey(fork types.Hash) []byte {
	return append([]byte{prefixForkActive}, fork[:]...)
}

func txIndexKey(fork, txid types.Hash) []byte {
	key := make([]byte, 0, 1+2*types.HashSize)
	key = append(key, prefixTxIndex)
	key = append(key, fork[:]...)
	return append(key, txid[:]...)
}

func unspentKey(fork types.Hash, out types.TxOutPoint) []byte {
	key := make([]byte, 0, 2+2*types.HashSize)
	key = append(key, prefixUnspent)
	key = append(key, fork[:]...)
	key = append(key, out.Hash[:]...)
	return append(key, out.N)
}

func delegateKey(hash types.Hash) []byte {
	return append([]byte{prefixDelegate}, hash[:]...)
}

func addressKey(fork types.Hash, dest types.Destination) []byte {
	key := make([]byte, 0, 2+2*types.HashSize)
	key = append(key, prefixAddress)
	key = append(key, fork[:]...)
	key = append(key, dest.Prefix)
	return append(key, dest.Data[:]...)
}

// BlockOutline is the persisted form of a block index entry.
type BlockOutline struct {
	HashBlock   types.Hash
	HashPrev    types.Hash
	HashOrigin  types.Hash
	TxidMint    types.Hash
	MintType    uint16
	Version     uint16
	BlockType   uint16
	Timestamp   uint32
	Height      uint32
	RandBeacon  uint64
	ChainTrust  types.Hash
	MoneySupply int64
	ProofAlgo   uint8
	ProofBits   uint8
	File        uint32
	Offset      uint32
}

// Serialize writes the outline to w.
func (o *BlockOutline) Serialize(w io.Writer) error {
	for _, h := range []*types.Hash{&o.HashBlock, &o.HashPrev, &o.HashOrigin, &o.TxidMint} {
		if err := h.Serialize(w); err != nil {
			return err
		}
	}
	if err := serialization.WriteUint16(w, o.MintType); err != nil {
		return err
	}
	if err := serialization.WriteUint16(w, o.Version); err != nil {
		return err
	}
	if err := serialization.WriteUint16(w, o.BlockType); err != nil {
		return err
	}
	if err := serialization.WriteUint32(w, o.Timestamp); err != nil {
		return err
	}
	if err := serialization.WriteUint32(w, o.Height); err != nil {
		return err
	}
	if err := serialization.WriteUint64(w, o.RandBeacon); err != nil {
		return err
	}
	if err := o.ChainTrust.Serialize(w); err != nil {
		return err
	}
	if err := serialization.WriteInt64(w, o.MoneySupply); err != nil {
		return err
	}
	if err := serialization.WriteUint8(w, o.ProofAlgo); err != nil {
		return err
	}
	if err := serialization.WriteUint8(w, o.ProofBits); err != nil {
		return err
	}
	if err := serialization.WriteUint32(w, o.File); err != nil {
		return err
	}
	return serialization.WriteUint32(w, o.Offset)
}

// Deserialize reads the outline from r.
func (o *BlockOutline) Deserialize(r io.Reader) error {
	for _, h := range []*types.Hash{&o.HashBlock, &o.HashPrev, &o.HashOrigin, &o.TxidMint} {
		if err := h.Deserialize(r); err != nil {
			return err
		}
	}
	var err error
	if o.MintType, err = serialization.ReadUint16(r); err != nil {
		return err
	}
	if o.Version, err = serialization.ReadUint16(r); err != nil {
		return err
	}
	if o.BlockType, err = serialization.ReadUint16(r); err != nil {
		return err
	}
	if o.Timestamp, err = serialization.ReadUint32(r); err != nil {
		return err
	}
	if o.Height, err = serialization.ReadUint32(r); err != nil {
		return err
	}
	if o.RandBeacon, err = serialization.ReadUint64(r); err != nil {
		return err
	}
	if err = o.ChainTrust.Deserialize(r); err != nil {
		return err
	}
	if o.MoneySupply, err = serialization.ReadInt64(r); err != nil {
		return err
	}
	if o.ProofAlgo, err = serialization.ReadUint8(r); err != nil {
		return err
	}
	if o.ProofBits, err = serialization.ReadUint8(r); err != nil {
		return err
	}
	if o.File, err = serialization.ReadUint32(r); err != nil {
		return err
	}
	o.Offset, err = serialization.ReadUint32(r)
	return err
}

// TxIndex locates a transaction on disk.
type TxIndex struct {
	BlockHeight uint32
	TxTime      uint32
	File        uint32
	Offset      uint32
}

func (t *TxIndex) serialize(w io.Writer) error {
	if err := serialization.WriteUint32(w, t.BlockHeight); err != nil {
		return err
	}
	if err := serialization.WriteUint32(w, t.TxTime); err != nil {
		return err
	}
	if err := serialization.WriteUint32(w, t.File); err != nil {
		return err
	}
	return serialization.WriteUint32(w, t.Offset)
}

func (t *TxIndex) deserialize(r io.Reader) error {
	var err error
	if t.BlockHeight, err = serialization.ReadUint32(r); err != nil {
		return err
	}
	if t.TxTime, err = serialization.ReadUint32(r); err != nil {
		return err
	}
	if t.File, err = serialization.ReadUint32(r); err != nil {
		return err
	}
	t.Offset, err = serialization.ReadUint32(r)
	return err
}

// AddrInfo records one node of the invite relation forest.
type AddrInfo struct {
	DestRoot   types.Destination
	DestParent types.Destination
	TxidInvite types.Hash
}

func (a *AddrInfo) serialize(w io.Writer) error {
	if err := a.DestRoot.Serialize(w); err != nil {
		return err
	}
	if err := a.DestParent.Serialize(w); err != nil {
		return err
	}
	return a.TxidInvite.Serialize(w)
}

func (a *AddrInfo) deserialize(r io.Reader) error {
	if err := a.DestRoot.Deserialize(r); err != nil {
		return err
	}
	if err := a.DestParent.Deserialize(r); err != nil {
		return err
	}
	return a.TxidInvite.Deserialize(r)
}

// CertRecord notes one CERT transaction packed in a block: the enrolling
// destination and the height its anchor points at.
type CertRecord struct {
	Dest         types.Destination
	AnchorHeight uint32
}

// DelegateRecord is the aggregated delegate snapshot anchored at one
// block: the cumulative vote totals, the enrollment data carried by the
// block's CERT transactions and the CERT occurrences themselves.
type DelegateRecord struct {
	Votes      map[types.Destination]int64
	EnrollData map[types.Destination][]byte
	Certs      []CertRecord
}

func (d *DelegateRecord) serialize(w io.Writer) error {
	dests := make([]types.Destination, 0, len(d.Votes))
	for dest := range d.Votes {
		dests = append(dests, dest)
	}
	types.SortDestinations(dests)
	if err := serialization.WriteVarInt(w, uint64(len(dests))); err != nil {
		return err
	}
	for i := range dests {
		if err := dests[i].Serialize(w); err != nil {
			return err
		}
		if err := serialization.WriteInt64(w, d.Votes[dests[i]]); err != nil {
			return err
		}
	}
	dests = dests[:0]
	for dest := range d.EnrollData {
		dests = append(dests, dest)
	}
	types.SortDestinations(dests)
	if err := serialization.WriteVarInt(w, uint64(len(dests))); err != nil {
		return err
	}
	for i := range dests {
		if err := dests[i].Serialize(w); err != nil {
			return err
		}
		if err := serialization.WriteVarBytes(w, d.EnrollData[dests[i]]); err != nil {
			return err
		}
	}
	if err := serialization.WriteVarInt(w, uint64(len(d.Certs))); err != nil {
		return err
	}
	for i := range d.Certs {
		if err := d.Certs[i].Dest.Serialize(w); err != nil {
			return err
		}
		if err := serialization.WriteUint32(w, d.Certs[i].AnchorHeight); err != nil {
			return err
		}
	}
	return nil
}

func (d *DelegateRecord) deserialize(r io.Reader) error {
	count, err := serialization.ReadVarInt(r)
	if err != nil {
		return err
	}
	d.Votes = make(map[types.Destination]int64, count)
	for i := uint64(0); i < count; i++ {
		var dest types.Destination
		if err := dest.Deserialize(r); err != nil {
			return err
		}
		amount, err := serialization.ReadInt64(r)
		if err != nil {
			return err
		}
		d.Votes[dest] = amount
	}
	count, err = serialization.ReadVarInt(r)
	if err != nil {
		return err
	}
	d.EnrollData = make(map[types.Destination][]byte, count)
	for i := uint64(0); i < count; i++ {
		var dest types.Destination
		if err := dest.Deserialize(r); err != nil {
			return err
		}
		data, err := serialization.ReadVarBytes(r)
		if err != nil {
			return err
		}
		d.EnrollData[dest] = data
	}
	count, err = serialization.ReadVarInt(r)
	if err != nil {
		return err
	}
	d.Certs = make([]CertRecord, count)
	for i := range d.Certs {
		if err := d.Certs[i].Dest.Deserialize(r); err != nil {
			return err
		}
		if d.Certs[i].AnchorHeight, err = serialization.ReadUint32(r); err != nil {
			return err
		}
	}
	return nil
}

// RetrieveOutline loads a block outline.
func (db *DB) RetrieveOutline(hash types.Hash) (*BlockOutline, error) {
	value, err := db.kv.Get(outlineKey(hash))
	if err != nil {
		return nil, err
	}
	outline := new(BlockOutline)
	if err := outline.Deserialize(bytes.NewReader(value)); err != nil {
		return nil, err
	}
	return outline, nil
}

// WalkOutlines visits every stored outline. The index arena is rebuilt
// from this walk on startup.
func (db *DB) WalkOutlines(visitor func(outline *BlockOutline) bool) error {
	var walkErr error
	err := db.kv.Walk([]byte{prefixOutline}, func(_, value []byte) bool {
		outline := new(BlockOutline)
		if err := outline.Deserialize(bytes.NewReader(value)); err != nil {
			walkErr = err
			return false
		}
		return visitor(outline)
	})
	if walkErr != nil {
		return walkErr
	}
	return err
}

// AddForkContext stores a fork context unless the fork id is already
// present. It reports whether the context was added.
func (db *DB) AddForkContext(ctxt *types.ForkContext) (bool, error) {
	var buf bytes.Buffer
	if err := ctxt.Serialize(&buf); err != nil {
		return false, err
	}
	return db.kv.Put(forkCtxtKey(ctxt.HashFork), buf.Bytes(), false)
}

// RetrieveForkContext loads a fork context.
func (db *DB) RetrieveForkContext(fork types.Hash) (*types.ForkContext, error) {
	value, err := db.kv.Get(forkCtxtKey(fork))
	if err != nil {
		return nil, err
	}
	ctxt := new(types.ForkContext)
	if err := ctxt.Deserialize(bytes.NewReader(value)); err != nil {
		return nil, err
	}
	return ctxt, nil
}

// ListForkContexts returns every stored fork context.
func (db *DB) ListForkContexts() ([]*types.ForkContext, error) {
	var ctxts []*types.ForkContext
	var walkErr error
	err := db.kv.Walk([]byte{prefixForkCtxt}, func(_, value []byte) bool {
		ctxt := new(types.ForkContext)
		if err := ctxt.Deserialize(bytes.NewReader(value)); err != nil {
			walkErr = err
			return false
		}
		ctxts = append(ctxts, ctxt)
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return ctxts, err
}

// RetrieveForkLast loads the active tip of a fork.
func (db *DB) RetrieveForkLast(fork types.Hash) (types.Hash, error) {
	value, err := db.kv.Get(forkActiveKey(fork))
	if err != nil {
		return types.ZeroHash, err
	}
	if len(value) != types.HashSize {
		return types.ZeroHash, errors.Errorf("malformed fork tip record for %s", fork)
	}
	var hash types.Hash
	copy(hash[:], value)
	return hash, nil
}

// ListForkLast returns every fork's active tip.
func (db *DB) ListForkLast() (map[types.Hash]types.Hash, error) {
	tips := make(map[types.Hash]types.Hash)
	err := db.kv.Walk([]byte{prefixForkActive}, func(key, value []byte) bool {
		if len(key) != 1+types.HashSize || len(value) != types.HashSize {
			return true
		}
		var fork, last types.Hash
		copy(fork[:], key[1:])
		copy(last[:], value)
		tips[fork] = last
		return true
	})
	return tips, err
}

// RetrieveTxIndex loads a transaction locator from a fork's index.
func (db *DB) RetrieveTxIndex(fork, txid types.Hash) (*TxIndex, error) {
	value, err := db.kv.Get(txIndexKey(fork, txid))
	if err != nil {
		return nil, err
	}
	index := new(TxIndex)
	if err := index.deserialize(bytes.NewReader(value)); err != nil {
		return nil, err
	}
	return index, nil
}

// RetrieveUnspent loads one unspent output of a fork.
func (db *DB) RetrieveUnspent(fork types.Hash, out types.TxOutPoint) (*types.TxOut, error) {
	value, err := db.kv.Get(unspentKey(fork, out))
	if err != nil {
		return nil, err
	}
	output := new(types.TxOut)
	if err := output.Deserialize(bytes.NewReader(value)); err != nil {
		return nil, err
	}
	return output, nil
}

// WalkUnspent visits every unspent output of a fork in key order.
func (db *DB) WalkUnspent(fork types.Hash, visitor func(out types.TxOutPoint, output *types.TxOut) bool) error {
	prefix := append([]byte{prefixUnspent}, fork[:]...)
	var walkErr error
	err := db.kv.Walk(prefix, func(key, value []byte) bool {
		if len(key) != len(prefix)+types.HashSize+1 {
			return true
		}
		var out types.TxOutPoint
		copy(out.Hash[:], key[len(prefix):])
		out.N = key[len(key)-1]
		output := new(types.TxOut)
		if err := output.Deserialize(bytes.NewReader(value)); err != nil {
			walkErr = err
			return false
		}
		return visitor(out, output)
	})
	if walkErr != nil {
		return walkErr
	}
	return err
}

// RetrieveDelegate loads the delegate snapshot anchored at a block.
func (db *DB) RetrieveDelegate(hash types.Hash) (*DelegateRecord, error) {
	value, err := db.kv.Get(delegateKey(hash))
	if err != nil {
		return nil, err
	}
	record := new(DelegateRecord)
	if err := record.deserialize(bytes.NewReader(value)); err != nil {
		return nil, err
	}
	return record, nil
}

// RetrieveAddress loads the invite record of a destination on a fork.
func (db *DB) RetrieveAddress(fork types.Hash, dest types.Destination) (*AddrInfo, error) {
	value, err := db.kv.Get(addressKey(fork, dest))
	if err != nil {
		return nil, err
	}
	info := new(AddrInfo)
	if err := info.deserialize(bytes.NewReader(value)); err != nil {
		return nil, err
	}
	return info, nil
}

// WalkAddresses visits every invite record of a fork.
func (db *DB) WalkAddresses(fork types.Hash, visitor func(dest types.Destination, info *AddrInfo) bool) error {
	prefix := append([]byte{prefixAddress}, fork[:]...)
	var walkErr error
	err := db.kv.Walk(prefix, func(key, value []byte) bool {
		if len(key) != len(prefix)+1+types.HashSize {
			return true
		}
		var dest types.Destination
		dest.Prefix = key[len(prefix)]
		copy(dest.Data[:], key[len(prefix)+1:])
		info := new(AddrInfo)
		if err := info.deserialize(bytes.NewReader(value)); err != nil {
			walkErr = err
			return false
		}
		return visitor(dest, info)
	})
	if walkErr != nil {
		return walkErr
	}
	return err
}

// IsEmpty reports whether no outline has ever been stored.
func (db *DB) IsEmpty() (bool, error) {
	empty := true
	err := db.kv.Walk([]byte{prefixOutline}, func(_, _ []byte) bool {
		empty = false
		return false
	})
	return empty, err
}

// Commit is a typed view over one atomic store transaction. All
// mutations of a block ingest are staged here and land together.
type Commit struct {
	txn *kvdb.Transaction
}

// BeginCommit opens a typed transaction.
func (db *DB) BeginCommit() *Commit {
	return &Commit{txn: db.kv.Begin()}
}

// PutOutline stages a block outline.
func (c *Commit) PutOutline(outline *BlockOutline) error {
	var buf bytes.Buffer
	if err := outline.Serialize(&buf); err != nil {
		return err
	}
	return c.txn.Put(outlineKey(outline.HashBlock), buf.Bytes())
}

// PutForkLast stages the active tip of a fork.
func (c *Commit) PutForkLast(fork, last types.Hash) error {
	return c.txn.Put(forkActiveKey(fork), last[:])
}

// PutTxIndex stages a transaction locator.
func (c *Commit) PutTxIndex(fork, txid types.Hash, index *TxIndex) error {
	var buf bytes.Buffer
	if err := index.serialize(&buf); err != nil {
		return err
	}
	return c.txn.Put(txIndexKey(fork, txid), buf.Bytes())
}

// EraseTxIndex stages the removal of a transaction locator.
func (c *Commit) EraseTxIndex(fork, txid types.Hash) error {
	return c.txn.Delete(txIndexKey(fork, txid))
}

// PutUnspent stages an unspent output.
func (c *Commit) PutUnspent(fork types.Hash, out types.TxOutPoint, output *types.TxOut) error {
	var buf bytes.Buffer
	if err := output.Serialize(&buf); err != nil {
		return err
	}
	return c.txn.Put(unspentKey(fork, out), buf.Bytes())
}

// EraseUnspent stages the removal of a spent output.
func (c *Commit) EraseUnspent(fork types.Hash, out types.TxOutPoint) error {
	return c.txn.Delete(unspentKey(fork, out))
}

// PutDelegate stages a delegate snapshot.
func (c *Commit) PutDelegate(hash types.Hash, record *DelegateRecord) error {
	var buf bytes.Buffer
	if err := record.serialize(&buf); err != nil {
		return err
	}
	return c.txn.Put(delegateKey(hash), buf.Bytes())
}

// PutAddress stages an invite record.
func (c *Commit) PutAddress(fork types.Hash, dest types.Destination, info *AddrInfo) error {
	var buf bytes.Buffer
	if err := info.serialize(&buf); err != nil {
		return err
	}
	return c.txn.Put(addressKey(fork, dest), buf.Bytes())
}

// EraseAddress stages the removal of an invite record.
func (c *Commit) EraseAddress(fork types.Hash, dest types.Destination) error {
	return c.txn.Delete(addressKey(fork, dest))
}

// Done applies the staged mutations atomically.
func (c *Commit) Done() error {
	return c.txn.Commit()
}

// Abort discards the staged mutations.
func (c *Commit) Abort() {
	c.txn.Abort()
}
