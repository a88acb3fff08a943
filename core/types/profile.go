// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package types

import (
	"bytes"
	"io"
	"sort"

	"github.com/bigbangcore/bigbang/core/serialization"
	"github.com/pkg/errors"
)

// Fork types.
const (
	ForkTypeCommon int32 = 0
	ForkTypeDeFi   int32 = 1
)

// DeFi coinbase schedule types.
const (
	FixedDeFiCoinbaseType    uint8 = 0
	SpecificDeFiCoinbaseType uint8 = 1
)

// Profile flags.
const (
	ProfileFlagIsolated uint8 = 1 << 0
	ProfileFlagPrivate  uint8 = 1 << 1
	ProfileFlagEnclosed uint8 = 1 << 2
)

// Compact tag-value field tags of the profile encoding.
const (
	profileTagVersion     uint8 = 0
	profileTagName        uint8 = 1
	profileTagSymbol      uint8 = 2
	profileTagFlag        uint8 = 3
	profileTagAmount      uint8 = 4
	profileTagMintReward  uint8 = 5
	profileTagMinTxFee    uint8 = 6
	profileTagHalveCycle  uint8 = 7
	profileTagOwner       uint8 = 8
	profileTagParent      uint8 = 9
	profileTagJointHeight uint8 = 10
	profileTagForkType    uint8 = 11
	profileTagDeFi        uint8 = 12
)

// DeFiProfile parameterizes the reward engine of a DeFi fork.
type DeFiProfile struct {
	MintHeight             int32
	MaxSupply              int64
	CoinbaseType           uint8
	DecayCycle             int32
	CoinbaseDecayPercent   uint8
	InitCoinbasePercent    uint32
	SupplyCycle            int32
	RewardCycle            int32
	StakeMinToken          int64
	StakeRewardPercent     uint32
	PromotionRewardPercent uint32
	// PromotionTokenTimes maps a whole-token upper bound to the reward
	// multiplier of the slice below it, ascending.
	PromotionTokenTimes map[int64]uint32
	// CoinbasePercent maps a fork-relative height boundary to the supply
	// growth percent in force up to it, ascending. SPECIFIC type only.
	CoinbasePercent map[int32]uint32
}

// IsNull reports an absent DeFi profile.
func (p *DeFiProfile) IsNull() bool {
	return p.RewardCycle == 0
}

// SortedPromotionBounds returns the promotion upper bounds ascending.
func (p *DeFiProfile) SortedPromotionBounds() []int64 {
	bounds := make([]int64, 0, len(p.PromotionTokenTimes))
	for k := range p.PromotionTokenTimes {
		bounds = append(bounds, k)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })
	return bounds
}

// SortedCoinbaseBounds returns the coinbase boundaries ascending.
func (p *DeFiProfile) SortedCoinbaseBounds() []int32 {
	bounds := make([]int32, 0, len(p.CoinbasePercent))
	for k := range p.CoinbasePercent {
		bounds = append(bounds, k)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })
	return bounds
}

// Serialize writes the DeFi profile to w.
func (p *DeFiProfile) Serialize(w io.Writer) error {
	if err := serialization.WriteInt32(w, p.MintHeight); err != nil {
		return err
	}
	if err := serialization.WriteInt64(w, p.MaxSupply); err != nil {
		return err
	}
	if err := serialization.WriteUint8(w, p.CoinbaseType); err != nil {
		return err
	}
	if err := serialization.WriteInt32(w, p.DecayCycle); err != nil {
		return err
	}
	if err := serialization.WriteUint8(w, p.CoinbaseDecayPercent); err != nil {
		return err
	}
	if err := serialization.WriteUint32(w, p.InitCoinbasePercent); err != nil {
		return err
	}
	if err := serialization.WriteInt32(w, p.SupplyCycle); err != nil {
		return err
	}
	if err := serialization.WriteInt32(w, p.RewardCycle); err != nil {
		return err
	}
	if err := serialization.WriteInt64(w, p.StakeMinToken); err != nil {
		return err
	}
	if err := serialization.WriteUint32(w, p.StakeRewardPercent); err != nil {
		return err
	}
	if err := serialization.WriteUint32(w, p.PromotionRewardPercent); err != nil {
		return err
	}
	if err := serialization.WriteVarInt(w, uint64(len(p.PromotionTokenTimes))); err != nil {
		return err
	}
	for _, bound := range p.SortedPromotionBounds() {
		if err := serialization.WriteInt64(w, bound); err != nil {
			return err
		}
		if err := serialization.WriteUint32(w, p.PromotionTokenTimes[bound]); err != nil {
			return err
		}
	}
	if err := serialization.WriteVarInt(w, uint64(len(p.CoinbasePercent))); err != nil {
		return err
	}
	for _, bound := range p.SortedCoinbaseBounds() {
		if err := serialization.WriteInt32(w, bound); err != nil {
			return err
		}
		if err := serialization.WriteUint32(w, p.CoinbasePercent[bound]); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize reads the DeFi profile from r.
func (p *DeFiProfile) Deserialize(r io.Reader) error {
	var err error
	if p.MintHeight, err = serialization.ReadInt32(r); err != nil {
		return err
	}
	if p.MaxSupply, err = serialization.ReadInt64(r); err != nil {
		return err
	}
	if p.CoinbaseType, err = serialization.ReadUint8(r); err != nil {
		return err
	}
	if p.DecayCycle, err = serialization.ReadInt32(r); err != nil {
		return err
	}
	if p.CoinbaseDecayPercent, err = serialization.ReadUint8(r); err != nil {
		return err
	}
	if p.InitCoinbasePercent, err = serialization.ReadUint32(r); err != nil {
		return err
	}
	if p.SupplyCycle, err = serialization.ReadInt32(r); err != nil {
		return err
	}
	if p.RewardCycle, err = serialization.ReadInt32(r); err != nil {
		return err
	}
	if p.StakeMinToken, err = serialization.ReadInt64(r); err != nil {
		return err
	}
	if p.StakeRewardPercent, err = serialization.ReadUint32(r); err != nil {
		return err
	}
	if p.PromotionRewardPercent, err = serialization.ReadUint32(r); err != nil {
		return err
	}
	count, err := serialization.ReadVarInt(r)
	if err != nil {
		return err
	}
	p.PromotionTokenTimes = make(map[int64]uint32, count)
	for i := uint64(0); i < count; i++ {
		bound, err := serialization.ReadInt64(r)
		if err != nil {
			return err
		}
		times, err := serialization.ReadUint32(r)
		if err != nil {
			return err
		}
		p.PromotionTokenTimes[bound] = times
	}
	count, err = serialization.ReadVarInt(r)
	if err != nil {
		return err
	}
	p.CoinbasePercent = make(map[int32]uint32, count)
	for i := uint64(0); i < count; i++ {
		bound, err := serialization.ReadInt32(r)
		if err != nil {
			return err
		}
		percent, err := serialization.ReadUint32(r)
		if err != nil {
			return err
		}
		p.CoinbasePercent[bound] = percent
	}
	return nil
}

// Save renders the DeFi profile as a byte payload.
func (p *DeFiProfile) Save() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load parses the DeFi profile from a byte payload.
func (p *DeFiProfile) Load(b []byte) error {
	return p.Deserialize(bytes.NewReader(b))
}

// Profile describes a fork: its coin, minting policy and lineage. The
// origin block of a fork carries the profile in its proof payload.
type Profile struct {
	Version     int32
	Name        string
	Symbol      string
	Flag        uint8
	Amount      int64
	MintReward  int64
	MinTxFee    int64
	HalveCycle  uint32
	Owner       Destination
	Parent      Hash
	JointHeight int32
	ForkType    int32
	DeFi        DeFiProfile
}

// SetNull resets the profile to its empty state.
func (p *Profile) SetNull() {
	*p = Profile{Version: 1, JointHeight: -1}
}

// IsNull reports an absent profile.
func (p *Profile) IsNull() bool {
	return p.Name == ""
}

// IsIsolated returns whether the fork starts from an empty coin set
// instead of inheriting the parent view.
func (p *Profile) IsIsolated() bool {
	return p.Flag&ProfileFlagIsolated != 0
}

// IsPrivate returns whether the fork is private.
func (p *Profile) IsPrivate() bool {
	return p.Flag&ProfileFlagPrivate != 0
}

// IsEnclosed returns whether the fork is enclosed.
func (p *Profile) IsEnclosed() bool {
	return p.Flag&ProfileFlagEnclosed != 0
}

// SetFlag assembles the flag byte.
func (p *Profile) SetFlag(isolated, private, enclosed bool) {
	p.Flag = 0
	if isolated {
		p.Flag |= ProfileFlagIsolated
	}
	if private {
		p.Flag |= ProfileFlagPrivate
	}
	if enclosed {
		p.Flag |= ProfileFlagEnclosed
	}
}

// tagged field of the compact tag-value encoding.
type taggedField struct {
	tag   uint8
	value []byte
}

func encodeTagged(fields []taggedField) []byte {
	var buf bytes.Buffer
	for _, f := range fields {
		buf.WriteByte(f.tag)
		if err := serialization.WriteVarBytes(&buf, f.value); err != nil {
			panic(err)
		}
	}
	return buf.Bytes()
}

func decodeTagged(b []byte) (map[uint8][]byte, error) {
	fields := make(map[uint8][]byte)
	r := bytes.NewReader(b)
	for r.Len() > 0 {
		tag, err := serialization.ReadUint8(r)
		if err != nil {
			return nil, err
		}
		value, err := serialization.ReadVarBytes(r)
		if err != nil {
			return nil, err
		}
		if _, ok := fields[tag]; ok {
			return nil, errors.Errorf("duplicate profile tag %d", tag)
		}
		fields[tag] = value
	}
	return fields, nil
}

func int64Field(v int64) []byte {
	var buf bytes.Buffer
	if err := serialization.WriteInt64(&buf, v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func int32Field(v int32) []byte {
	var buf bytes.Buffer
	if err := serialization.WriteInt32(&buf, v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func uint32Field(v uint32) []byte {
	var buf bytes.Buffer
	if err := serialization.WriteUint32(&buf, v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Save renders the profile as a compact tag-value record: each present
// field is (tag, varbytes) in ascending tag order.
func (p *Profile) Save() ([]byte, error) {
	fields := []taggedField{
		{profileTagVersion, int32Field(p.Version)},
		{profileTagName, []byte(p.Name)},
		{profileTagSymbol, []byte(p.Symbol)},
		{profileTagFlag, []byte{p.Flag}},
		{profileTagAmount, int64Field(p.Amount)},
		{profileTagMintReward, int64Field(p.MintReward)},
		{profileTagMinTxFee, int64Field(p.MinTxFee)},
		{profileTagHalveCycle, uint32Field(p.HalveCycle)},
	}
	var owner bytes.Buffer
	if err := p.Owner.Serialize(&owner); err != nil {
		return nil, err
	}
	fields = append(fields, taggedField{profileTagOwner, owner.Bytes()})
	if !p.Parent.IsZero() {
		fields = append(fields,
			taggedField{profileTagParent, p.Parent[:]},
			taggedField{profileTagJointHeight, int32Field(p.JointHeight)})
	}
	if p.ForkType != ForkTypeCommon {
		fields = append(fields, taggedField{profileTagForkType, int32Field(p.ForkType)})
		if p.ForkType == ForkTypeDeFi {
			defi, err := p.DeFi.Save()
			if err != nil {
				return nil, err
			}
			fields = append(fields, taggedField{profileTagDeFi, defi})
		}
	}
	return encodeTagged(fields), nil
}

// Load parses the profile from a compact tag-value record.
func (p *Profile) Load(b []byte) error {
	p.SetNull()
	fields, err := decodeTagged(b)
	if err != nil {
		return err
	}
	get := func(tag uint8) ([]byte, bool) {
		v, ok := fields[tag]
		return v, ok
	}
	version, ok := get(profileTagVersion)
	if !ok {
		return errors.New("profile version missing")
	}
	if p.Version, err = serialization.ReadInt32(bytes.NewReader(version)); err != nil {
		return err
	}
	if p.Version != 1 {
		return errors.Errorf("unsupported profile version %d", p.Version)
	}
	name, ok := get(profileTagName)
	if !ok {
		return errors.New("profile name missing")
	}
	p.Name = string(name)
	symbol, ok := get(profileTagSymbol)
	if !ok {
		return errors.New("profile symbol missing")
	}
	p.Symbol = string(symbol)
	flag, ok := get(profileTagFlag)
	if !ok || len(flag) != 1 {
		return errors.New("profile flag missing")
	}
	p.Flag = flag[0]
	amount, ok := get(profileTagAmount)
	if !ok {
		return errors.New("profile amount missing")
	}
	if p.Amount, err = serialization.ReadInt64(bytes.NewReader(amount)); err != nil {
		return err
	}
	mintReward, ok := get(profileTagMintReward)
	if !ok {
		return errors.New("profile mint reward missing")
	}
	if p.MintReward, err = serialization.ReadInt64(bytes.NewReader(mintReward)); err != nil {
		return err
	}
	minTxFee, ok := get(profileTagMinTxFee)
	if !ok {
		return errors.New("profile min tx fee missing")
	}
	if p.MinTxFee, err = serialization.ReadInt64(bytes.NewReader(minTxFee)); err != nil {
		return err
	}
	halveCycle, ok := get(profileTagHalveCycle)
	if !ok {
		return errors.New("profile halve cycle missing")
	}
	if p.HalveCycle, err = serialization.ReadUint32(bytes.NewReader(halveCycle)); err != nil {
		return err
	}
	if owner, ok := get(profileTagOwner); ok {
		if err := p.Owner.Deserialize(bytes.NewReader(owner)); err != nil {
			return err
		}
	}
	if parent, ok := get(profileTagParent); ok {
		if len(parent) != HashSize {
			return errors.New("malformed profile parent")
		}
		copy(p.Parent[:], parent)
		joint, ok := get(profileTagJointHeight)
		if !ok {
			return errors.New("profile joint height missing")
		}
		if p.JointHeight, err = serialization.ReadInt32(bytes.NewReader(joint)); err != nil {
			return err
		}
	}
	if forkType, ok := get(profileTagForkType); ok {
		if p.ForkType, err = serialization.ReadInt32(bytes.NewReader(forkType)); err != nil {
			return err
		}
		if p.ForkType == ForkTypeDeFi {
			defi, ok := get(profileTagDeFi)
			if !ok {
				return errors.New("defi profile missing")
			}
			if err := p.DeFi.Load(defi); err != nil {
				return err
			}
		}
	} else {
		p.ForkType = ForkTypeCommon
	}
	return nil
}
