// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package defi

import (
	"testing"

	"github.com/bigbangcore/bigbang/core/types"
	"github.com/bigbangcore/bigbang/params"
	"github.com/bigbangcore/bigbang/storage/blockdb"
)

func dest(fill byte) types.Destination {
	var data types.Hash
	for i := range data {
		data[i] = fill
	}
	return types.Destination{Prefix: types.DestinationPrefixPubKey, Data: data}
}

func hashAtHeight(height uint32) types.Hash {
	var h types.Hash
	h.SetHeight(height)
	return h
}

func fixedProfile() *types.Profile {
	return &types.Profile{
		Version:     1,
		Name:        "BBC Test1",
		Symbol:      "BBCA",
		MinTxFee:    params.CENT,
		Amount:      21000000 * params.COIN,
		JointHeight: 150,
		ForkType:    types.ForkTypeDeFi,
		DeFi: types.DeFiProfile{
			MintHeight:             -1,
			MaxSupply:              2100000000 * params.COIN,
			CoinbaseType:           types.FixedDeFiCoinbaseType,
			DecayCycle:             1036800,
			CoinbaseDecayPercent:   50,
			InitCoinbasePercent:    10,
			PromotionRewardPercent: 50,
			RewardCycle:            1440,
			SupplyCycle:            43200,
			StakeMinToken:          100 * params.COIN,
			StakeRewardPercent:     50,
			PromotionTokenTimes:    map[int64]uint32{10000: 10},
		},
	}
}

func specificProfile() *types.Profile {
	profile := fixedProfile()
	profile.Name = "BBC Test2"
	profile.Symbol = "BBCB"
	profile.Amount = 10000000 * params.COIN
	profile.DeFi.MintHeight = 1500
	profile.DeFi.MaxSupply = 1000000000 * params.COIN
	profile.DeFi.CoinbaseType = types.SpecificDeFiCoinbaseType
	profile.DeFi.CoinbasePercent = map[int32]uint32{
		259200: 10, 777600: 8, 1814400: 5, 3369600: 3, 5184000: 2,
	}
	return profile
}

// TestPrevRewardHeight pins the reward cycle boundaries of the FIXED
// profile, whose mint height defaults to jointHeight+2.
func TestPrevRewardHeight(t *testing.T) {
	r := NewForkReward()
	forkid := types.HashB([]byte("fork1"))
	if r.PrevRewardHeight(forkid, 100) != -1 {
		t.Error("unregistered fork has a reward height")
	}
	r.AddFork(forkid, fixedProfile())

	tests := []struct {
		height int32
		want   int32
	}{
		{-10, -1},
		{0, -1},
		{151, -1},
		{152, 151},
		{1591, 151},
		{1592, 1591},
		{100000, 99511},
		{10000000, 9999511},
	}
	for _, test := range tests {
		if got := r.PrevRewardHeight(forkid, test.height); got != test.want {
			t.Errorf("PrevRewardHeight(%d): got %d, want %d", test.height, got, test.want)
		}
	}
}

// TestFixedCoinbaseSectionReward pins the FIXED schedule against the
// reference sample points.
func TestFixedCoinbaseSectionReward(t *testing.T) {
	r := NewForkReward()
	forkid := types.HashB([]byte("fork1"))
	r.AddFork(forkid, fixedProfile())

	tests := []struct {
		height uint32
		want   int64
	}{
		{0, 0},
		{151, 0},
		{152, 48611111},
		{1591, 70000000000},
		{43352, 53472222},
		{100000, 28762708333},
	}
	for _, test := range tests {
		if got := r.GetSectionReward(forkid, hashAtHeight(test.height)); got != test.want {
			t.Errorf("GetSectionReward(%d): got %d, want %d", test.height, got, test.want)
		}
	}

	if got := r.GetSectionReward(types.HashB([]byte("nope")), hashAtHeight(152)); got != -1 {
		t.Errorf("GetSectionReward on unknown fork: got %d, want -1", got)
	}
}

// TestSpecificCoinbaseSectionReward pins the SPECIFIC schedule against
// the reference sample points, including the exhaustion past the last
// boundary.
func TestSpecificCoinbaseSectionReward(t *testing.T) {
	r := NewForkReward()
	forkid := types.HashB([]byte("fork2"))
	r.AddFork(forkid, specificProfile())

	tests := []struct {
		height uint32
		want   int64
	}{
		{0, 0},
		{1499, 0},
		{1500, 23148148},
		{2939, 33333333333},
		{44700, 25462962},
		{260700, 32806685},
		{10001348, 0},
	}
	for _, test := range tests {
		if got := r.GetSectionReward(forkid, hashAtHeight(test.height)); got != test.want {
			t.Errorf("GetSectionReward(%d): got %d, want %d", test.height, got, test.want)
		}
	}
}

// TestSectionRewardAccumulation checks that inside one reward cycle the
// section grows by exactly one block coinbase per height, within the
// fixed-point rounding of a single unit.
func TestSectionRewardAccumulation(t *testing.T) {
	r := NewForkReward()
	forkid := types.HashB([]byte("fork1"))
	r.AddFork(forkid, fixedProfile())

	const perBlock = 48611111
	prev := r.GetSectionReward(forkid, hashAtHeight(152))
	for h := uint32(153); h < 250; h++ {
		section := r.GetSectionReward(forkid, hashAtHeight(h))
		diff := section - prev
		if diff < perBlock-1 || diff > perBlock+1 {
			t.Fatalf("section step at %d: got %d, want ~%d", h, diff, perBlock)
		}
		prev = section
	}
}

// TestComputeStakeReward pins the rank split: two holders tie at the
// bottom rank, the third takes rank three, and the unit is the reward
// over the rank sum.
func TestComputeStakeReward(t *testing.T) {
	r := NewForkReward()
	const reward = 4817419376
	minToken := 100 * params.COIN

	a1, a11, a111, a := dest(1), dest(2), dest(3), dest(4)
	set := r.ComputeStakeReward(minToken, reward, map[types.Destination]int64{
		a:    0,
		a1:   100 * params.COIN,
		a11:  1000 * params.COIN,
		a111: 100 * params.COIN,
	})
	if len(set) != 3 {
		t.Fatalf("stake reward set size: got %d, want 3", len(set))
	}
	if set[a1] != 963483875 {
		t.Errorf("stake reward a1: got %d, want 963483875", set[a1])
	}
	if set[a111] != 963483875 {
		t.Errorf("stake reward a111: got %d, want 963483875", set[a111])
	}
	if set[a11] != 2890451625 {
		t.Errorf("stake reward a11: got %d, want 2890451625", set[a11])
	}

	// A single eligible holder takes the whole reward.
	b := dest(5)
	set = r.ComputeStakeReward(minToken, reward, map[types.Destination]int64{
		a: 0,
		b: 100 * params.COIN,
	})
	if len(set) != 1 || set[b] != reward {
		t.Errorf("single holder stake reward: got %v", set)
	}

	if len(r.ComputeStakeReward(minToken, 0, map[types.Destination]int64{b: minToken})) != 0 {
		t.Error("zero reward produced a stake set")
	}
}

func addr(fill byte) types.Destination { return dest(fill) }

func relationRecords(entries map[types.Destination]types.Destination) map[types.Destination]*blockdb.AddrInfo {
	records := make(map[types.Destination]*blockdb.AddrInfo, len(entries))
	for child, parent := range entries {
		records[child] = &blockdb.AddrInfo{
			DestParent: parent,
			TxidInvite: types.HashB([]byte{child.Data[0], parent.Data[0]}),
		}
	}
	return records
}

// TestRelationGraphRoots checks root discovery across two disjoint
// invite trees.
func TestRelationGraphRoots(t *testing.T) {
	a, a1, a2, a3 := addr(10), addr(11), addr(12), addr(13)
	aa11, aaa111 := addr(14), addr(15)
	b, b1, b2 := addr(20), addr(21), addr(22)

	graph := NewRelationGraph()
	err := graph.Construct(relationRecords(map[types.Destination]types.Destination{
		a1: a, a2: a, a3: a,
		aa11: a1, aaa111: aa11,
		b1: b, b2: b,
	}))
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	if len(graph.Roots()) != 2 {
		t.Fatalf("roots: got %d, want 2", len(graph.Roots()))
	}
	if !graph.HasRoot(a) || !graph.HasRoot(b) {
		t.Error("expected roots a and b")
	}
	if graph.HasRoot(a2) || graph.HasRoot(aa11) {
		t.Error("non-root reported as root")
	}
	if graph.Size() != 9 {
		t.Errorf("graph size: got %d, want 9", graph.Size())
	}
}

// TestRelationGraphRejectsDuplicates checks duplicate invites fail.
func TestRelationGraphRejectsDuplicates(t *testing.T) {
	a, a1 := addr(10), addr(11)
	graph := NewRelationGraph()
	if err := graph.updateAddress(a1, a, types.HashB([]byte("t"))); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := graph.updateAddress(a1, a, types.HashB([]byte("t"))); err == nil {
		t.Error("duplicate insert accepted")
	}
}

// TestComputePromotionReward checks the promotion split over the
// reference tree: only nodes with invited sublines earn power, the
// heaviest subline counts as its cube root, and the payout is floored.
func TestComputePromotionReward(t *testing.T) {
	r := NewForkReward()
	const reward = 4817419376

	a, a1, a11, a111 := addr(1), addr(2), addr(3), addr(4)
	a2, a21, a22, a221, a222 := addr(5), addr(6), addr(7), addr(8), addr(9)
	a3 := addr(10)
	b, b1, b2, b3, b4 := addr(11), addr(12), addr(13), addr(14), addr(15)
	c := addr(16)

	balances := map[types.Destination]int64{
		a: 10000 * params.COIN, a1: 100000 * params.COIN,
		a11: 100000 * params.COIN, a111: 100000 * params.COIN,
		a2: 1 * params.COIN, a21: 1 * params.COIN,
		a22: 12000 * params.COIN, a221: 18000 * params.COIN,
		a222: 5000 * params.COIN, a3: 1000000 * params.COIN,
		b: 10000 * params.COIN, b1: 10000 * params.COIN,
		b2: 11000 * params.COIN, b3: 5000 * params.COIN,
		b4: 50000 * params.COIN, c: 19568998 * params.COIN,
	}
	graph := NewRelationGraph()
	err := graph.Construct(relationRecords(map[types.Destination]types.Destination{
		a1: a, a2: a, a3: a,
		a11: a1, a111: a11,
		a21: a2, a22: a2, a221: a22, a222: a22,
		b1: b, b2: b, b3: b, b4: b,
	}))
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}

	tokenTimes := map[int64]uint32{10000: 10}
	set := r.ComputePromotionReward(reward, balances, tokenTimes, graph)

	wantDests := []types.Destination{a, a1, a11, a2, a22, b}
	if len(set) != len(wantDests) {
		t.Fatalf("promotion set size: got %d, want %d: %v", len(set), len(wantDests), set)
	}
	var sum int64
	for _, d := range wantDests {
		got, ok := set[d]
		if !ok || got <= 0 {
			t.Errorf("destination %s missing from promotion set", d)
		}
		sum += got
	}
	if sum > reward {
		t.Errorf("promotion payout %d exceeds reward %d", sum, reward)
	}

	// The payout is proportional to power: B's sublines contribute
	// 100000 + 101000 + 50000 plus the cube root of the heaviest
	// subtree, A dwarfs that through a3.
	if set[a] <= set[b] {
		t.Errorf("expected a (%d) above b (%d)", set[a], set[b])
	}
	if set[a22] <= set[a2] {
		t.Errorf("expected a22 (%d) above a2 (%d)", set[a22], set[a2])
	}

	// An empty forest yields an empty map.
	empty := r.ComputePromotionReward(reward, balances, tokenTimes, NewRelationGraph())
	if len(empty) != 0 {
		t.Errorf("empty forest produced rewards: %v", empty)
	}

	// A forest constructed from no invite records has no nodes and thus
	// no power.
	lone := NewRelationGraph()
	if err := lone.Construct(relationRecords(map[types.Destination]types.Destination{})); err != nil {
		t.Fatalf("Construct: %v", err)
	}
	if got := r.ComputePromotionReward(reward, balances, tokenTimes, lone); len(got) != 0 {
		t.Errorf("isolated root earned rewards: %v", got)
	}
}
