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

// Block types. A block is an origin iff the high bit of the type is set
// and primary iff the low bit is set.
const (
	BlockTypeGenesis    uint16 = 0xffff
	BlockTypeOrigin     uint16 = 0xff00
	BlockTypePrimary    uint16 = 0x0001
	BlockTypeSubsidiary uint16 = 0x0002
	BlockTypeExtended   uint16 = 0x0004
	BlockTypeVacant     uint16 = 0x0008
)

// MaxBlockSize bounds the serialized size of a block.
const MaxBlockSize = 2000000

// MaxTxCountPerBlock bounds the transaction count of a block; the varint
// prefix of the tx vector must fit in 16 bits.
const MaxTxCountPerBlock = 0xffff

// Block is the canonical block entity.
type Block struct {
	Version    uint16
	BlockType  uint16
	Timestamp  uint32
	HashPrev   Hash
	HashMerkle Hash
	Proof      []byte
	TxMint     Transaction
	Vtx        []Transaction
	SigData    []byte
}

// SetNull resets the block to its empty state.
func (b *Block) SetNull() {
	b.Version = 1
	b.BlockType = 0
	b.Timestamp = 0
	b.HashPrev = ZeroHash
	b.HashMerkle = ZeroHash
	b.Proof = nil
	b.TxMint.SetNull()
	b.Vtx = nil
	b.SigData = nil
}

// IsNull reports an unusable block.
func (b *Block) IsNull() bool {
	return b.BlockType == 0 || b.Timestamp == 0 || b.TxMint.IsNull()
}

// IsGenesis returns whether the block is the genesis block.
func (b *Block) IsGenesis() bool {
	return b.BlockType == BlockTypeGenesis
}

// IsOrigin returns whether the block opens a fork.
func (b *Block) IsOrigin() bool {
	return b.BlockType>>15 == 1
}

// IsPrimary returns whether the block belongs to the primary chain.
func (b *Block) IsPrimary() bool {
	return b.BlockType&1 == 1
}

// IsSubsidiary returns whether the block is a subsidiary-fork main block.
func (b *Block) IsSubsidiary() bool {
	return b.BlockType == BlockTypeSubsidiary
}

// IsExtended returns whether the block is an extended block, which does
// not advance the fork height.
func (b *Block) IsExtended() bool {
	return b.BlockType == BlockTypeExtended
}

// IsVacant returns whether the block is a timestamp placeholder.
func (b *Block) IsVacant() bool {
	return b.BlockType == BlockTypeVacant
}

// IsProofOfWork returns whether the block was minted by work.
func (b *Block) IsProofOfWork() bool {
	return b.TxMint.TxType == TxTypeWorkMint
}

// GetBlockHeight derives the block height from the predecessor hash.
func (b *Block) GetBlockHeight() uint32 {
	switch {
	case b.IsGenesis():
		return 0
	case b.IsExtended():
		return b.HashPrev.Height()
	default:
		return b.HashPrev.Height() + 1
	}
}

// GetBlockTime returns the timestamp as an int64 clock value.
func (b *Block) GetBlockTime() int64 {
	return int64(b.Timestamp)
}

// GetBlockBeacon returns the random beacon word of a proofless block.
func (b *Block) GetBlockBeacon(idx int) uint64 {
	if len(b.Proof) == 0 {
		return b.HashPrev.Bits64(idx)
	}
	return 0
}

// GetBlockMint returns the minted coin amount given the total input value
// available to the mint (the surrounding block's fees).
func (b *Block) GetBlockMint(valueIn int64) int64 {
	return b.TxMint.Amount - valueIn
}

// TotalTxFee sums the fees of the packed transactions.
func (b *Block) TotalTxFee() int64 {
	var total int64
	for i := range b.Vtx {
		total += b.Vtx[i].TxFee
	}
	return total
}

// CalcMerkleTreeRoot builds the pairwise merkle root of the packed
// transaction ids, duplicating the final odd element at each level.
func (b *Block) CalcMerkleTreeRoot() Hash {
	if len(b.Vtx) == 0 {
		return ZeroHash
	}
	tree := make([]Hash, 0, len(b.Vtx)*2)
	for i := range b.Vtx {
		tree = append(tree, b.Vtx[i].GetHash())
	}
	j := 0
	for size := len(b.Vtx); size > 1; size = (size + 1) / 2 {
		for i := 0; i < size; i += 2 {
			i2 := i + 1
			if i2 > size-1 {
				i2 = size - 1
			}
			tree = append(tree, HashPair(tree[j+i], tree[j+i2]))
		}
		j += size
	}
	return tree[len(tree)-1]
}

// serializeHashing writes the hashing preimage: everything up to and
// including the mint transaction.
func (b *Block) serializeHashing(w io.Writer) error {
	if err := serialization.WriteUint16(w, b.Version); err != nil {
		return err
	}
	if err := serialization.WriteUint16(w, b.BlockType); err != nil {
		return err
	}
	if err := serialization.WriteUint32(w, b.Timestamp); err != nil {
		return err
	}
	if err := b.HashPrev.Serialize(w); err != nil {
		return err
	}
	if err := b.HashMerkle.Serialize(w); err != nil {
		return err
	}
	if err := serialization.WriteVarBytes(w, b.Proof); err != nil {
		return err
	}
	return b.TxMint.Serialize(w)
}

// GetHash returns the block id: the digest of the hashing preimage with
// its most significant 32 bits replaced by the block height.
func (b *Block) GetHash() Hash {
	var buf bytes.Buffer
	if err := b.serializeHashing(&buf); err != nil {
		panic(err)
	}
	h := HashB(buf.Bytes())
	h.SetHeight(b.GetBlockHeight())
	return h
}

// GetSerializedProofOfWorkData returns the byte string a work miner
// hashes: version, type, timestamp, predecessor and proof.
func (b *Block) GetSerializedProofOfWorkData() []byte {
	var buf bytes.Buffer
	if err := serialization.WriteUint16(&buf, b.Version); err != nil {
		panic(err)
	}
	if err := serialization.WriteUint16(&buf, b.BlockType); err != nil {
		panic(err)
	}
	if err := serialization.WriteUint32(&buf, b.Timestamp); err != nil {
		panic(err)
	}
	if err := b.HashPrev.Serialize(&buf); err != nil {
		panic(err)
	}
	if err := serialization.WriteVarBytes(&buf, b.Proof); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// SignatureHash returns the digest the block signer commits to.
func (b *Block) SignatureHash() Hash {
	var buf bytes.Buffer
	if err := b.serializeHashing(&buf); err != nil {
		panic(err)
	}
	if err := serialization.WriteVarInt(&buf, uint64(len(b.Vtx))); err != nil {
		panic(err)
	}
	for i := range b.Vtx {
		if err := b.Vtx[i].Serialize(&buf); err != nil {
			panic(err)
		}
	}
	return HashB(buf.Bytes())
}

// Serialize writes the full block to w.
func (b *Block) Serialize(w io.Writer) error {
	if err := b.serializeHashing(w); err != nil {
		return err
	}
	if err := serialization.WriteVarInt(w, uint64(len(b.Vtx))); err != nil {
		return err
	}
	for i := range b.Vtx {
		if err := b.Vtx[i].Serialize(w); err != nil {
			return err
		}
	}
	return serialization.WriteVarBytes(w, b.SigData)
}

// Deserialize reads the full block from r.
func (b *Block) Deserialize(r io.Reader) error {
	var err error
	if b.Version, err = serialization.ReadUint16(r); err != nil {
		return err
	}
	if b.BlockType, err = serialization.ReadUint16(r); err != nil {
		return err
	}
	if b.Timestamp, err = serialization.ReadUint32(r); err != nil {
		return err
	}
	if err = b.HashPrev.Deserialize(r); err != nil {
		return err
	}
	if err = b.HashMerkle.Deserialize(r); err != nil {
		return err
	}
	if b.Proof, err = serialization.ReadVarBytes(r); err != nil {
		return err
	}
	if err = b.TxMint.Deserialize(r); err != nil {
		return err
	}
	count, err := serialization.ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxTxCountPerBlock {
		return errors.Errorf("too many transactions in block: %d", count)
	}
	b.Vtx = nil
	if count > 0 {
		b.Vtx = make([]Transaction, count)
	}
	for i := range b.Vtx {
		if err := b.Vtx[i].Deserialize(r); err != nil {
			return err
		}
	}
	b.SigData, err = serialization.ReadVarBytes(r)
	return err
}

// SerializeSize returns the length of the canonical encoding.
func (b *Block) SerializeSize() int {
	var buf bytes.Buffer
	if err := b.Serialize(&buf); err != nil {
		panic(err)
	}
	return buf.Len()
}

// GetBlockTypeStr renders a block type for logs.
func GetBlockTypeStr(blockType, mintType uint16) string {
	switch blockType {
	case BlockTypeGenesis:
		return "genesis"
	case BlockTypeOrigin:
		return "origin"
	case BlockTypeExtended:
		return "extended"
	}
	str := "undefined-"
	switch blockType {
	case BlockTypePrimary:
		str = "primary-"
	case BlockTypeSubsidiary:
		str = "subsidiary-"
	case BlockTypeVacant:
		str = "vacant"
	}
	switch mintType {
	case TxTypeWorkMint:
		return str + "pow"
	case TxTypeStakeMint:
		return str + "dpos"
	}
	return str
}

// BlockEx is a block together with the resolved input contexts of its
// packed transactions, as stored in the time-series file.
type BlockEx struct {
	Block
	TxContxt []TxContxt
}

// NewBlockEx pairs a block with its transaction contexts.
func NewBlockEx(block *Block, contxt []TxContxt) *BlockEx {
	return &BlockEx{Block: *block, TxContxt: contxt}
}

// Serialize writes the extended block to w.
func (b *BlockEx) Serialize(w io.Writer) error {
	if err := b.Block.Serialize(w); err != nil {
		return err
	}
	if err := serialization.WriteVarInt(w, uint64(len(b.TxContxt))); err != nil {
		return err
	}
	for i := range b.TxContxt {
		if err := b.TxContxt[i].Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize reads the extended block from r.
func (b *BlockEx) Deserialize(r io.Reader) error {
	if err := b.Block.Deserialize(r); err != nil {
		return err
	}
	count, err := serialization.ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxTxCountPerBlock {
		return errors.Errorf("too many tx contexts in block: %d", count)
	}
	b.TxContxt = nil
	if count > 0 {
		b.TxContxt = make([]TxContxt, count)
	}
	for i := range b.TxContxt {
		if err := b.TxContxt[i].Deserialize(r); err != nil {
			return err
		}
	}
	return nil
}
