// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package params defines the consensus parameters of the supported
// networks: money ranges, block spacing, proof-of-work limits and the
// delegate consensus intervals.
package params

// COIN is the number of base units per whole coin. Amounts are fixed
// point with six decimals.
const COIN int64 = 1000000

// CENT is one hundredth of a coin.
const CENT int64 = 10000

// MinTxFee is the minimum transaction fee before the data surcharge.
const MinTxFee = CENT

// MaxMoney is the upper bound of any amount.
const MaxMoney int64 = 1000000000000 * COIN

// MaxRewardMoney is the upper bound of a single mint.
const MaxRewardMoney int64 = 10000 * COIN

// MoneyRange reports whether an amount is inside the representable range.
func MoneyRange(value int64) bool {
	return value >= 0 && value <= MaxMoney
}

// RewardRange reports whether a mint amount is inside the allowed range.
func RewardRange(value int64) bool {
	return value >= 0 && value <= MaxRewardMoney
}

// Block limits.
const (
	// BlockTargetSpacing is the primary chain block interval in seconds.
	BlockTargetSpacing = 60

	// ExtendedBlockSpacing is the interval of extended blocks inside a
	// primary slot.
	ExtendedBlockSpacing = 2

	// ProofOfWorkBlockSpacing is the minimum seconds between two work
	// blocks.
	ProofOfWorkBlockSpacing = 20

	// MaxClockDrift is how far into the future a block timestamp may
	// run ahead of local time, in seconds.
	MaxClockDrift = 80

	// MintMaturity is the number of blocks before minted coins spend.
	MintMaturity = 120
)

// Delegate consensus intervals, in blocks.
const (
	// EnrollInterval is the length of the CERT aggregation window.
	EnrollInterval = 30

	// DistributeInterval separates the enrollment cutoff from the
	// agreement block.
	DistributeInterval = 15

	// ConsensusInterval is the minimum height at which a delegate
	// agreement can exist.
	ConsensusInterval = EnrollInterval + DistributeInterval + 1
)

// Params holds the per-network consensus parameters.
type Params struct {
	// Name identifies the network.
	Name string

	// ProofOfWorkLimitBits is the easiest allowed target exponent.
	ProofOfWorkLimitBits uint8

	// ProofOfWorkUpperLimitBits is the hardest allowed target exponent.
	ProofOfWorkUpperLimitBits uint8

	// ProofOfWorkInitBits is the target exponent of the first work
	// blocks.
	ProofOfWorkInitBits uint8

	// ProofOfWorkDifficultyInterval is the retarget window in blocks.
	ProofOfWorkDifficultyInterval uint32

	// DelegateEnrollMinimumAmount is the least stake a CERT enrollment
	// counts with.
	DelegateEnrollMinimumAmount int64

	// GenesisOwnerPubKey is the destination body paid by the genesis
	// mint.
	GenesisOwnerPubKey [32]byte

	// GenesisTimestamp is the genesis block time.
	GenesisTimestamp uint32

	// GenesisAmount is the premine paid to the genesis owner.
	GenesisAmount int64

	// GenesisMintReward is the primary chain mint reward before
	// halving.
	GenesisMintReward int64

	// GenesisHalveCycle is the primary reward halving period in
	// blocks; zero disables halving.
	GenesisHalveCycle uint32
}

// MainNetParams are the production network parameters.
var MainNetParams = Params{
	Name:                          "mainnet",
	ProofOfWorkLimitBits:          8,
	ProofOfWorkUpperLimitBits:     200,
	ProofOfWorkInitBits:           20,
	ProofOfWorkDifficultyInterval: 30,
	DelegateEnrollMinimumAmount:   10000 * COIN,
	GenesisOwnerPubKey: [32]byte{
		0xda, 0x91, 0x5f, 0x7d, 0x9e, 0x1b, 0x1f, 0x6e,
		0xd9, 0x9f, 0xd8, 0x16, 0xf9, 0x64, 0xc9, 0x7b,
		0x10, 0xf2, 0x5f, 0x48, 0xa2, 0x46, 0x57, 0x1a,
		0xf8, 0xd3, 0x0a, 0x26, 0x9d, 0x27, 0x4f, 0x06,
	},
	GenesisTimestamp:  1515745156,
	GenesisAmount:     745000000 * COIN,
	GenesisMintReward: 20 * COIN,
	GenesisHalveCycle: 0,
}

// TestNetParams are the test network parameters. The proof-of-work floor
// is trivial so blocks can be produced instantly.
var TestNetParams = Params{
	Name:                          "testnet",
	ProofOfWorkLimitBits:          1,
	ProofOfWorkUpperLimitBits:     200,
	ProofOfWorkInitBits:           1,
	ProofOfWorkDifficultyInterval: 30,
	DelegateEnrollMinimumAmount:   100 * COIN,
	GenesisOwnerPubKey: [32]byte{
		0x69, 0xa6, 0x9c, 0x45, 0x1f, 0x85, 0xd5, 0x19,
		0xf4, 0x7e, 0xaf, 0xba, 0xc1, 0xe2, 0x9b, 0x5c,
		0xf5, 0x31, 0x6e, 0x07, 0x74, 0x66, 0x79, 0x31,
		0xb4, 0x3b, 0x08, 0x05, 0x38, 0x8a, 0xe3, 0x6a,
	},
	GenesisTimestamp:  1546150145,
	GenesisAmount:     745000000 * COIN,
	GenesisMintReward: 20 * COIN,
	GenesisHalveCycle: 0,
}

// Select returns the parameters of the requested network.
func Select(testnet bool) *Params {
	if testnet {
		return &TestNetParams
	}
	return &MainNetParams
}
