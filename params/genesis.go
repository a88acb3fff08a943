// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package params

import (
	"github.com/bigbangcore/bigbang/core/types"
)

// GenesisBlock assembles the genesis block of the network. The genesis is
// an origin block: its proof payload carries the primary fork profile and
// its mint pays the premine to the network owner.
func (p *Params) GenesisBlock() (*types.Block, error) {
	owner := types.NewPubKeyDestination(types.Hash(p.GenesisOwnerPubKey))

	profile := types.Profile{
		Version:     1,
		Name:        "BigBang Network",
		Symbol:      "BIG",
		Amount:      p.GenesisAmount,
		MintReward:  p.GenesisMintReward,
		MinTxFee:    MinTxFee,
		HalveCycle:  p.GenesisHalveCycle,
		Owner:       owner,
		JointHeight: -1,
		ForkType:    types.ForkTypeCommon,
	}
	proof, err := profile.Save()
	if err != nil {
		return nil, err
	}

	block := &types.Block{
		Version:   1,
		BlockType: types.BlockTypeGenesis,
		Timestamp: p.GenesisTimestamp,
		Proof:     proof,
		TxMint: types.Transaction{
			Version:   1,
			TxType:    types.TxTypeGenesisMint,
			Timestamp: p.GenesisTimestamp,
			SendTo:    owner,
			Amount:    p.GenesisAmount,
		},
	}
	return block, nil
}
