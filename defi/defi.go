// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package defi implements the reward engine of DeFi forks: the supply
// schedules, the per-section coinbase, the stake ranking reward and the
// promotion reward over the invite relation forest.
package defi

import (
	"math"
	"sort"

	"github.com/bigbangcore/bigbang/core/types"
	"github.com/bigbangcore/bigbang/params"
)

// maxRewardCache bounds the per-fork section reward cache.
const maxRewardCache = 20

// RewardSet holds the computed per-destination rewards of one section.
type RewardSet map[types.Destination]int64

// forkReward is the cached reward state of one fork.
type forkReward struct {
	profile *types.Profile
	reward  map[types.Hash]RewardSet
}

// ForkReward is the reward engine over the registered DeFi forks. The
// reward maps it produces are internal; consumers persist disbursements
// as regular transactions built from them.
type ForkReward struct {
	forks map[types.Hash]*forkReward
}

// NewForkReward returns an empty engine.
func NewForkReward() *ForkReward {
	return &ForkReward{forks: make(map[types.Hash]*forkReward)}
}

// ExistFork reports whether a fork is registered.
func (r *ForkReward) ExistFork(forkid types.Hash) bool {
	_, ok := r.forks[forkid]
	return ok
}

// AddFork registers a fork and its profile.
func (r *ForkReward) AddFork(forkid types.Hash, profile *types.Profile) {
	r.forks[forkid] = &forkReward{
		profile: profile,
		reward:  make(map[types.Hash]RewardSet),
	}
}

// GetForkProfile returns a registered fork's profile, or nil.
func (r *ForkReward) GetForkProfile(forkid types.Hash) *types.Profile {
	fork, ok := r.forks[forkid]
	if !ok {
		return nil
	}
	return fork.profile
}

// ExistForkSection reports whether a section reward set is cached.
func (r *ForkReward) ExistForkSection(forkid, section types.Hash) bool {
	fork, ok := r.forks[forkid]
	if !ok {
		return false
	}
	_, ok = fork.reward[section]
	return ok
}

// GetForkSection returns a cached section reward set; callers check
// ExistForkSection first.
func (r *ForkReward) GetForkSection(forkid, section types.Hash) RewardSet {
	if fork, ok := r.forks[forkid]; ok {
		if set, ok := fork.reward[section]; ok {
			return set
		}
	}
	return RewardSet{}
}

// AddForkSection caches a finished section reward set. Past the cache
// bound it drops other registered forks, in no defined order, until the
// bound holds.
func (r *ForkReward) AddForkSection(forkid, hash types.Hash, set RewardSet) {
	if fork, ok := r.forks[forkid]; ok {
		fork.reward[hash] = set
	}
	for len(r.forks) > maxRewardCache {
		evicted := false
		for id := range r.forks {
			if id != forkid {
				delete(r.forks, id)
				evicted = true
				break
			}
		}
		if !evicted {
			break
		}
	}
}

func mintHeight(profile *types.Profile) int32 {
	if profile.DeFi.MintHeight < 0 {
		return profile.JointHeight + 2
	}
	return profile.DeFi.MintHeight
}

// PrevRewardHeight returns the last block height of the reward cycle
// preceding height, or -1 before the first reward.
func (r *ForkReward) PrevRewardHeight(forkid types.Hash, height int32) int32 {
	fork, ok := r.forks[forkid]
	if !ok {
		return -1
	}
	profile := fork.profile
	if profile.DeFi.IsNull() {
		return -1
	}
	mint := mintHeight(profile)
	rewardCycle := profile.DeFi.RewardCycle
	if height >= mint && rewardCycle > 0 {
		return ((height-mint)/rewardCycle)*rewardCycle + mint - 1
	}
	return -1
}

// GetSectionReward accumulates the coinbase of the section ending at the
// block with the given hash: from the block after the previous reward
// height through the block itself, clipped to the mint height. A fork
// that is not registered as DeFi yields -1.
func (r *ForkReward) GetSectionReward(forkid, hash types.Hash) int64 {
	fork, ok := r.forks[forkid]
	if !ok || fork.profile.IsNull() {
		return -1
	}
	profile := fork.profile
	if profile.ForkType != types.ForkTypeDeFi || profile.DeFi.IsNull() ||
		profile.DeFi.SupplyCycle <= 0 {
		return -1
	}

	endHeight := int32(hash.Height()) + 1
	beginHeight := r.PrevRewardHeight(forkid, int32(hash.Height())) + 1
	if mint := mintHeight(profile); beginHeight < mint {
		beginHeight = mint
	}

	var reward float64
	for beginHeight < endHeight {
		var coinbase float64
		var nextHeight int32
		var ok bool
		switch profile.DeFi.CoinbaseType {
		case types.FixedDeFiCoinbaseType:
			coinbase, nextHeight, ok = fixedDecayCoinbase(profile, beginHeight)
		case types.SpecificDeFiCoinbaseType:
			coinbase, nextHeight, ok = specificDecayCoinbase(profile, beginHeight)
		}
		if !ok {
			log.Errorf("GetSectionReward: coinbase computation fail at height %d", beginHeight)
			return -1
		}
		if nextHeight <= 0 {
			break
		}
		span := nextHeight
		if endHeight < span {
			span = endHeight
		}
		steps := span - beginHeight
		reward += coinbase * float64(steps)
		beginHeight += steps
	}
	return int64(reward)
}

// fixedDecayCoinbase computes the per-block coinbase of the FIXED
// schedule at a height: the supply compounds by the initial percent per
// supply cycle, and the percent itself decays once per decay cycle.
func fixedDecayCoinbase(profile *types.Profile, height int32) (float64, int32, bool) {
	mint := mintHeight(profile)
	if height < mint {
		return 0, 0, false
	}
	decayCycle := profile.DeFi.DecayCycle
	supplyCycle := profile.DeFi.SupplyCycle
	decayPercent := profile.DeFi.CoinbaseDecayPercent
	initPercent := profile.DeFi.InitCoinbasePercent

	supplyCount := int32(0)
	if decayCycle > 0 {
		supplyCount = decayCycle / supplyCycle
	}
	decayCount := int32(0)
	if decayCycle > 0 {
		decayCount = (height - mint) / decayCycle
	}
	decayHeight := decayCount*decayCycle + mint
	curSupplyCount := (height - decayHeight) / supplyCycle

	// The supply compounds with integer truncation once per decay
	// period, matching the reference accounting exactly.
	supply := profile.Amount
	increasing := float64(initPercent) / 100
	for i := int32(0); i <= decayCount; i++ {
		if i < decayCount {
			supply = int64(float64(supply) * math.Pow(1+increasing, float64(supplyCount)))
			increasing = increasing * float64(decayPercent) / 100
		} else {
			supply = int64(float64(supply) * math.Pow(1+increasing, float64(curSupplyCount)))
		}
	}

	coinbase := float64(supply) * increasing / float64(supplyCycle)
	nextHeight := (curSupplyCount+1)*supplyCycle + decayHeight
	return coinbase, nextHeight, true
}

// specificDecayCoinbase computes the per-block coinbase of the SPECIFIC
// schedule at a height: the growth percent follows the configured
// boundary table; past the last boundary the coinbase is zero.
func specificDecayCoinbase(profile *types.Profile, height int32) (float64, int32, bool) {
	mint := mintHeight(profile)
	if height < mint {
		return 0, 0, false
	}
	supplyCycle := profile.DeFi.SupplyCycle
	relativeHeight := height - mint + 1

	supply := profile.Amount
	var curPercent uint32
	var curSupplyCount int32
	var lastDecayHeight int32
	for _, bound := range profile.DeFi.SortedCoinbaseBounds() {
		increasing := float64(profile.DeFi.CoinbasePercent[bound]) / 100
		if relativeHeight > bound {
			supplyCount := (bound - lastDecayHeight) / supplyCycle
			supply = int64(float64(supply) * math.Pow(1+increasing, float64(supplyCount)))
			lastDecayHeight = bound
		} else {
			curSupplyCount = (relativeHeight - lastDecayHeight) / supplyCycle
			supply = int64(float64(supply) * math.Pow(1+increasing, float64(curSupplyCount)))
			curPercent = profile.DeFi.CoinbasePercent[bound]
			break
		}
	}

	if curPercent == 0 {
		return 0, -1, true
	}
	increasing := float64(curPercent) / 100
	coinbase := float64(supply) * increasing / float64(supplyCycle)
	// The boundaries are fork-relative; the caller works in absolute
	// heights.
	nextHeight := (curSupplyCount+1)*supplyCycle + lastDecayHeight + mint - 1
	return coinbase, nextHeight, true
}

// ComputeStakeReward splits a reward over the staking destinations by
// rank: holders below the minimum are dropped, the rest are ranked
// ascending by amount with ties sharing the rank of their first
// appearance, and each receives reward/totalRank scaled by its rank,
// rounded down.
func (r *ForkReward) ComputeStakeReward(minToken, reward int64,
	balances map[types.Destination]int64) RewardSet {

	set := make(RewardSet)
	if reward == 0 {
		return set
	}

	type entry struct {
		dest   types.Destination
		amount int64
		rank   uint32
	}
	entries := make([]entry, 0, len(balances))
	for dest, amount := range balances {
		if amount >= minToken {
			entries = append(entries, entry{dest: dest, amount: amount})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].amount != entries[j].amount {
			return entries[i].amount < entries[j].amount
		}
		return entries[i].dest.Less(&entries[j].dest)
	})

	var total uint32
	rank := uint32(1)
	lastAmount := int64(-1)
	for i := range entries {
		pos := uint32(i + 1)
		if entries[i].amount != lastAmount {
			entries[i].rank = pos
			rank = pos
			lastAmount = entries[i].amount
		} else {
			entries[i].rank = rank
		}
		total += entries[i].rank
	}
	if total == 0 {
		return set
	}

	unitReward := float64(reward) / float64(total)
	for i := range entries {
		set[entries[i].dest] = int64(unitReward * float64(entries[i].rank))
	}
	return set
}

// ComputePromotionReward splits a reward over the invite relation forest
// by promotion power. Each node's power sums a piecewise-linear score of
// every subline's subtree amount against the token multiplier table,
// except the heaviest subline which contributes only the cube root of
// its amount. Zero total power yields an empty map.
func (r *ForkReward) ComputePromotionReward(reward int64,
	balances map[types.Destination]int64,
	tokenTimes map[int64]uint32,
	relation *RelationGraph) RewardSet {

	set := make(RewardSet)
	if reward == 0 {
		return set
	}

	bounds := make([]int64, 0, len(tokenTimes))
	for bound := range tokenTimes {
		bounds = append(bounds, bound)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })

	var total int64
	relation.PostorderTraversal(func(node *RelationNode) bool {
		if amount, ok := balances[node.Dest]; ok {
			node.Amount = amount / params.COIN
		} else {
			node.Amount = 0
		}

		node.Power = 0
		if len(node.subline) > 0 {
			max := int64(-1)
			for _, child := range node.subline {
				node.Amount += child.Amount
				var n int64
				if child.Amount <= max {
					n = child.Amount
				} else {
					n = max
					max = child.Amount
				}
				if n < 0 {
					continue
				}

				var lastToken, childPower int64
				for _, bound := range bounds {
					times := int64(tokenTimes[bound])
					if n > bound {
						childPower += (bound - lastToken) * times
						lastToken = bound
					} else {
						childPower += (n - lastToken) * times
						lastToken = n
						break
					}
				}
				childPower += n - lastToken
				node.Power += childPower
			}
			node.Power += int64(math.Round(math.Pow(float64(max), 1.0/3)))
		}

		if node.Power > 0 {
			total += node.Power
			set[node.Dest] = node.Power
		}
		return true
	})

	if total > 0 {
		unitReward := float64(reward) / float64(total)
		for dest, power := range set {
			set[dest] = int64(float64(power) * unitReward)
		}
	} else {
		return RewardSet{}
	}
	return set
}
