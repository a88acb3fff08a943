// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package types

import (
	"io"

	"github.com/bigbangcore/bigbang/core/serialization"
)

// ForkContext is the registry record of a fork: its identity, lineage,
// the fork-creation transaction that carried it and the flattened profile.
type ForkContext struct {
	Name         string
	Symbol       string
	HashFork     Hash
	HashParent   Hash
	HashJoint    Hash
	TxidEmbedded Hash
	Version      int32
	Flag         uint8
	Amount       int64
	MintReward   int64
	MinTxFee     int64
	HalveCycle   uint32
	JointHeight  int32
	Owner        Destination
	ForkType     int32
	DeFi         []byte
}

// NewForkContext flattens a profile into a registry record.
func NewForkContext(hashFork, hashJoint, txid Hash, profile *Profile) (*ForkContext, error) {
	ctxt := &ForkContext{
		Name:        profile.Name,
		Symbol:      profile.Symbol,
		HashFork:    hashFork,
		HashParent:  profile.Parent,
		HashJoint:   hashJoint,
		TxidEmbedded: txid,
		Version:     profile.Version,
		Flag:        profile.Flag,
		Amount:      profile.Amount,
		MintReward:  profile.MintReward,
		MinTxFee:    profile.MinTxFee,
		HalveCycle:  profile.HalveCycle,
		JointHeight: profile.JointHeight,
		Owner:       profile.Owner,
		ForkType:    profile.ForkType,
	}
	if profile.ForkType == ForkTypeDeFi {
		defi, err := profile.DeFi.Save()
		if err != nil {
			return nil, err
		}
		ctxt.DeFi = defi
	}
	return ctxt, nil
}

// IsNull reports an absent context.
func (c *ForkContext) IsNull() bool {
	return c.Name == ""
}

// IsIsolated returns whether the fork starts from an empty coin set.
func (c *ForkContext) IsIsolated() bool {
	return c.Flag&ProfileFlagIsolated != 0
}

// GetProfile reconstructs the profile from the flattened record.
func (c *ForkContext) GetProfile() (*Profile, error) {
	profile := &Profile{
		Version:     c.Version,
		Name:        c.Name,
		Symbol:      c.Symbol,
		Flag:        c.Flag,
		Amount:      c.Amount,
		MintReward:  c.MintReward,
		MinTxFee:    c.MinTxFee,
		HalveCycle:  c.HalveCycle,
		Owner:       c.Owner,
		Parent:      c.HashParent,
		JointHeight: c.JointHeight,
		ForkType:    c.ForkType,
	}
	if c.ForkType == ForkTypeDeFi {
		if err := profile.DeFi.Load(c.DeFi); err != nil {
			return nil, err
		}
	}
	return profile, nil
}

// Serialize writes the context to w.
func (c *ForkContext) Serialize(w io.Writer) error {
	if err := serialization.WriteVarString(w, c.Name); err != nil {
		return err
	}
	if err := serialization.WriteVarString(w, c.Symbol); err != nil {
		return err
	}
	if err := c.HashFork.Serialize(w); err != nil {
		return err
	}
	if err := c.HashParent.Serialize(w); err != nil {
		return err
	}
	if err := c.HashJoint.Serialize(w); err != nil {
		return err
	}
	if err := c.TxidEmbedded.Serialize(w); err != nil {
		return err
	}
	if err := serialization.WriteInt32(w, c.Version); err != nil {
		return err
	}
	if err := serialization.WriteUint8(w, c.Flag); err != nil {
		return err
	}
	if err := serialization.WriteInt64(w, c.Amount); err != nil {
		return err
	}
	if err := serialization.WriteInt64(w, c.MintReward); err != nil {
		return err
	}
	if err := serialization.WriteInt64(w, c.MinTxFee); err != nil {
		return err
	}
	if err := serialization.WriteUint32(w, c.HalveCycle); err != nil {
		return err
	}
	if err := serialization.WriteInt32(w, c.JointHeight); err != nil {
		return err
	}
	if err := c.Owner.Serialize(w); err != nil {
		return err
	}
	if err := serialization.WriteInt32(w, c.ForkType); err != nil {
		return err
	}
	return serialization.WriteVarBytes(w, c.DeFi)
}

// Deserialize reads the context from r.
func (c *ForkContext) Deserialize(r io.Reader) error {
	var err error
	if c.Name, err = serialization.ReadVarString(r); err != nil {
		return err
	}
	if c.Symbol, err = serialization.ReadVarString(r); err != nil {
		return err
	}
	if err = c.HashFork.Deserialize(r); err != nil {
		return err
	}
	if err = c.HashParent.Deserialize(r); err != nil {
		return err
	}
	if err = c.HashJoint.Deserialize(r); err != nil {
		return err
	}
	if err = c.TxidEmbedded.Deserialize(r); err != nil {
		return err
	}
	if c.Version, err = serialization.ReadInt32(r); err != nil {
		return err
	}
	if c.Flag, err = serialization.ReadUint8(r); err != nil {
		return err
	}
	if c.Amount, err = serialization.ReadInt64(r); err != nil {
		return err
	}
	if c.MintReward, err = serialization.ReadInt64(r); err != nil {
		return err
	}
	if c.MinTxFee, err = serialization.ReadInt64(r); err != nil {
		return err
	}
	if c.HalveCycle, err = serialization.ReadUint32(r); err != nil {
		return err
	}
	if c.JointHeight, err = serialization.ReadInt32(r); err != nil {
		return err
	}
	if err = c.Owner.Deserialize(r); err != nil {
		return err
	}
	if c.ForkType, err = serialization.ReadInt32(r); err != nil {
		return err
	}
	c.DeFi, err = serialization.ReadVarBytes(r)
	return err
}
