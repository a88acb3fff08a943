// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package types

import (
	"bytes"
	"io"

	"github.com/bigbangcore/bigbang/core/serialization"
	"github.com/pkg/errors"
)

// Transaction types. The high byte selects the family (token, mint, fork,
// DeFi), the low byte the member.
const (
	TxTypeToken        uint16 = 0x0000
	TxTypeCert         uint16 = 0x0001
	TxTypeGenesisMint  uint16 = 0x0100
	TxTypeStakeMint    uint16 = 0x0101
	TxTypeWorkMint     uint16 = 0x0102
	TxTypeFork         uint16 = 0x0200
	TxTypeDeFiReward   uint16 = 0x0300
	TxTypeDeFiRelation uint16 = 0x0301
)

// MaxTxInputCount bounds the number of inputs a single transaction may
// carry.
const MaxTxInputCount = 1024

// TxOutPoint identifies a single output of a prior transaction.
type TxOutPoint struct {
	Hash Hash
	N    uint8
}

// Serialize writes the outpoint to w.
func (op *TxOutPoint) Serialize(w io.Writer) error {
	if err := op.Hash.Serialize(w); err != nil {
		return err
	}
	return serialization.WriteUint8(w, op.N)
}

// Deserialize reads the outpoint from r.
func (op *TxOutPoint) Deserialize(r io.Reader) error {
	if err := op.Hash.Deserialize(r); err != nil {
		return err
	}
	n, err := serialization.ReadUint8(r)
	if err != nil {
		return err
	}
	op.N = n
	return nil
}

// Less orders outpoints by (hash, index).
func (op *TxOutPoint) Less(other *TxOutPoint) bool {
	c := bytes.Compare(op.Hash[:], other.Hash[:])
	if c != 0 {
		return c < 0
	}
	return op.N < other.N
}

// TxIn spends a prior output.
type TxIn struct {
	Prevout TxOutPoint
}

// TxOut is a spendable output: the receiving destination, the amount, the
// creating transaction's timestamp and an optional lock height.
type TxOut struct {
	DestTo    Destination
	Amount    int64
	TxTime    uint32
	LockUntil uint32
}

// IsNull reports an empty output. Outputs paying nothing to nobody are
// never stored.
func (o *TxOut) IsNull() bool {
	return o.Amount == 0 || o.DestTo.IsNull()
}

// SetNull clears the output.
func (o *TxOut) SetNull() {
	o.DestTo.SetNull()
	o.Amount = 0
	o.TxTime = 0
	o.LockUntil = 0
}

// IsLocked returns whether the output is still unspendable at the given
// fork height.
func (o *TxOut) IsLocked(height uint32) bool {
	return o.LockUntil != 0 && height < o.LockUntil
}

// Serialize writes the output to w.
func (o *TxOut) Serialize(w io.Writer) error {
	if err := o.DestTo.Serialize(w); err != nil {
		return err
	}
	if err := serialization.WriteInt64(w, o.Amount); err != nil {
		return err
	}
	if err := serialization.WriteUint32(w, o.TxTime); err != nil {
		return err
	}
	return serialization.WriteUint32(w, o.LockUntil)
}

// Deserialize reads the output from r.
func (o *TxOut) Deserialize(r io.Reader) error {
	if err := o.DestTo.Deserialize(r); err != nil {
		return err
	}
	var err error
	if o.Amount, err = serialization.ReadInt64(r); err != nil {
		return err
	}
	if o.TxTime, err = serialization.ReadUint32(r); err != nil {
		return err
	}
	o.LockUntil, err = serialization.ReadUint32(r)
	return err
}

// Transaction is the canonical transaction entity.
type Transaction struct {
	Version    uint16
	TxType     uint16
	Timestamp  uint32
	HashAnchor Hash
	Input      []TxIn
	SendTo     Destination
	Amount     int64
	TxFee      int64
	Data       []byte
	SigData    []byte
}

// SetNull resets the transaction to its empty state.
func (tx *Transaction) SetNull() {
	tx.Version = 1
	tx.TxType = 0
	tx.Timestamp = 0
	tx.HashAnchor = ZeroHash
	tx.Input = nil
	tx.SendTo.SetNull()
	tx.Amount = 0
	tx.TxFee = 0
	tx.Data = nil
	tx.SigData = nil
}

// IsNull reports whether the transaction is empty.
func (tx *Transaction) IsNull() bool {
	return tx.Timestamp == 0 && tx.SendTo.IsNull()
}

// IsMint returns whether the transaction is a coinbase of any flavor.
func (tx *Transaction) IsMint() bool {
	return tx.TxType == TxTypeGenesisMint || tx.TxType == TxTypeStakeMint ||
		tx.TxType == TxTypeWorkMint
}

// IsDeFiRelation returns whether the transaction carries an invite
// relation for the promotion tree.
func (tx *Transaction) IsDeFiRelation() bool {
	return tx.TxType == TxTypeDeFiRelation
}

// serialize writes the transaction to w, optionally without the signature.
// The unsigned form is the hashing preimage.
func (tx *Transaction) serialize(w io.Writer, withSig bool) error {
	if err := serialization.WriteUint16(w, tx.Version); err != nil {
		return err
	}
	if err := serialization.WriteUint16(w, tx.TxType); err != nil {
		return err
	}
	if err := serialization.WriteUint32(w, tx.Timestamp); err != nil {
		return err
	}
	if err := tx.HashAnchor.Serialize(w); err != nil {
		return err
	}
	if err := serialization.WriteVarInt(w, uint64(len(tx.Input))); err != nil {
		return err
	}
	for i := range tx.Input {
		if err := tx.Input[i].Prevout.Serialize(w); err != nil {
			return err
		}
	}
	if err := tx.SendTo.Serialize(w); err != nil {
		return err
	}
	if err := serialization.WriteInt64(w, tx.Amount); err != nil {
		return err
	}
	if err := serialization.WriteInt64(w, tx.TxFee); err != nil {
		return err
	}
	if err := serialization.WriteVarBytes(w, tx.Data); err != nil {
		return err
	}
	if !withSig {
		return nil
	}
	return serialization.WriteVarBytes(w, tx.SigData)
}

// Serialize writes the full transaction to w.
func (tx *Transaction) Serialize(w io.Writer) error {
	return tx.serialize(w, true)
}

// Deserialize reads the transaction from r.
func (tx *Transaction) Deserialize(r io.Reader) error {
	var err error
	if tx.Version, err = serialization.ReadUint16(r); err != nil {
		return err
	}
	if tx.TxType, err = serialization.ReadUint16(r); err != nil {
		return err
	}
	if tx.Timestamp, err = serialization.ReadUint32(r); err != nil {
		return err
	}
	if err = tx.HashAnchor.Deserialize(r); err != nil {
		return err
	}
	count, err := serialization.ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxTxInputCount {
		return errors.Errorf("too many transaction inputs: %d", count)
	}
	tx.Input = nil
	if count > 0 {
		tx.Input = make([]TxIn, count)
	}
	for i := range tx.Input {
		if err := tx.Input[i].Prevout.Deserialize(r); err != nil {
			return err
		}
	}
	if err = tx.SendTo.Deserialize(r); err != nil {
		return err
	}
	if tx.Amount, err = serialization.ReadInt64(r); err != nil {
		return err
	}
	if tx.TxFee, err = serialization.ReadInt64(r); err != nil {
		return err
	}
	if tx.Data, err = serialization.ReadVarBytes(r); err != nil {
		return err
	}
	tx.SigData, err = serialization.ReadVarBytes(r)
	return err
}

// GetHash returns the transaction id: the digest of the canonical
// serialization minus the signature.
func (tx *Transaction) GetHash() Hash {
	var buf bytes.Buffer
	if err := tx.serialize(&buf, false); err != nil {
		panic(err)
	}
	return HashB(buf.Bytes())
}

// SignatureHash returns the digest a signer commits to. It matches the tx
// id preimage.
func (tx *Transaction) SignatureHash() Hash {
	return tx.GetHash()
}

// SerializeSize returns the length of the full canonical encoding.
func (tx *Transaction) SerializeSize() int {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		panic(err)
	}
	return buf.Len()
}

// TxInContxt records the resolved value of one spent output.
type TxInContxt struct {
	Amount    int64
	TxTime    uint32
	LockUntil uint32
}

// TxContxt carries the resolved input context of a transaction inside a
// block: the single owner of all inputs and the per-input values.
type TxContxt struct {
	DestIn Destination
	Vin    []TxInContxt
}

// SetNull clears the context.
func (c *TxContxt) SetNull() {
	c.DestIn.SetNull()
	c.Vin = nil
}

// GetValueIn sums the resolved input values.
func (c *TxContxt) GetValueIn() int64 {
	var total int64
	for i := range c.Vin {
		total += c.Vin[i].Amount
	}
	return total
}

// Serialize writes the context to w.
func (c *TxContxt) Serialize(w io.Writer) error {
	if err := c.DestIn.Serialize(w); err != nil {
		return err
	}
	if err := serialization.WriteVarInt(w, uint64(len(c.Vin))); err != nil {
		return err
	}
	for i := range c.Vin {
		in := &c.Vin[i]
		if err := serialization.WriteInt64(w, in.Amount); err != nil {
			return err
		}
		if err := serialization.WriteUint32(w, in.TxTime); err != nil {
			return err
		}
		if err := serialization.WriteUint32(w, in.LockUntil); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize reads the context from r.
func (c *TxContxt) Deserialize(r io.Reader) error {
	if err := c.DestIn.Deserialize(r); err != nil {
		return err
	}
	count, err := serialization.ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxTxInputCount {
		return errors.Errorf("too many context inputs: %d", count)
	}
	c.Vin = nil
	if count > 0 {
		c.Vin = make([]TxInContxt, count)
	}
	for i := range c.Vin {
		in := &c.Vin[i]
		if in.Amount, err = serialization.ReadInt64(r); err != nil {
			return err
		}
		if in.TxTime, err = serialization.ReadUint32(r); err != nil {
			return err
		}
		if in.LockUntil, err = serialization.ReadUint32(r); err != nil {
			return err
		}
	}
	return nil
}

// TxUnspent pairs an outpoint with its output for change propagation.
type TxUnspent struct {
	OutPoint TxOutPoint
	Output   TxOut
}
