// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package types

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

func testDestination(prefix uint8, fill byte) Destination {
	var data Hash
	for i := range data {
		data[i] = fill
	}
	return Destination{Prefix: prefix, Data: data}
}

func testTransaction(fill byte) Transaction {
	return Transaction{
		Version:    1,
		TxType:     TxTypeToken,
		Timestamp:  1000 + uint32(fill),
		HashAnchor: HashB([]byte{fill}),
		Input: []TxIn{
			{Prevout: TxOutPoint{Hash: HashB([]byte{fill, 1}), N: 0}},
			{Prevout: TxOutPoint{Hash: HashB([]byte{fill, 2}), N: 1}},
		},
		SendTo:  testDestination(DestinationPrefixPubKey, fill),
		Amount:  1000000,
		TxFee:   10000,
		Data:    []byte{0xde, 0xad},
		SigData: bytes.Repeat([]byte{fill}, 64),
	}
}

// TestTransactionRoundTrip ensures serialize-deserialize is identity.
func TestTransactionRoundTrip(t *testing.T) {
	tx := testTransaction(7)
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	var decoded Transaction
	if err := decoded.Deserialize(&buf); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !reflect.DeepEqual(tx, decoded) {
		t.Errorf("transaction round trip mismatch:\n%s\n%s",
			spew.Sdump(tx), spew.Sdump(decoded))
	}
}

// TestTransactionHashIgnoresSignature pins the tx id to the unsigned
// preimage.
func TestTransactionHashIgnoresSignature(t *testing.T) {
	tx := testTransaction(9)
	unsigned := tx
	unsigned.SigData = nil
	if tx.GetHash() != unsigned.GetHash() {
		t.Error("tx id changed with the signature")
	}
	modified := tx
	modified.Amount++
	if tx.GetHash() == modified.GetHash() {
		t.Error("tx id ignored the amount")
	}
}

func testBlock() Block {
	block := Block{
		Version:   1,
		BlockType: BlockTypePrimary,
		Timestamp: 1546150205,
		HashPrev:  HashB([]byte("prev")),
		Proof:     bytes.Repeat([]byte{0x5a}, ProofOfHashWorkSize),
		TxMint: Transaction{
			Version:   1,
			TxType:    TxTypeWorkMint,
			Timestamp: 1546150205,
			SendTo:    testDestination(DestinationPrefixPubKey, 3),
			Amount:    20000000,
		},
		Vtx:     []Transaction{testTransaction(1), testTransaction(2), testTransaction(3)},
		SigData: []byte{0x01, 0x02},
	}
	block.HashMerkle = block.CalcMerkleTreeRoot()
	return block
}

// TestBlockRoundTrip ensures serialize-deserialize is identity.
func TestBlockRoundTrip(t *testing.T) {
	block := testBlock()
	var buf bytes.Buffer
	if err := block.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	var decoded Block
	if err := decoded.Deserialize(&buf); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !reflect.DeepEqual(block, decoded) {
		t.Errorf("block round trip mismatch:\n%s\n%s",
			spew.Sdump(block), spew.Sdump(decoded))
	}
}

// TestBlockExRoundTrip covers the stored form with tx contexts.
func TestBlockExRoundTrip(t *testing.T) {
	block := testBlock()
	ex := NewBlockEx(&block, []TxContxt{
		{
			DestIn: testDestination(DestinationPrefixPubKey, 8),
			Vin: []TxInContxt{
				{Amount: 500000, TxTime: 999},
				{Amount: 600000, TxTime: 998, LockUntil: 10},
			},
		},
		{DestIn: testDestination(DestinationPrefixTemplate, 9)},
		{DestIn: testDestination(DestinationPrefixPubKey, 10)},
	})
	var buf bytes.Buffer
	if err := ex.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	decoded := new(BlockEx)
	if err := decoded.Deserialize(&buf); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !reflect.DeepEqual(ex, decoded) {
		t.Errorf("block ex round trip mismatch:\n%s\n%s",
			spew.Sdump(ex), spew.Sdump(decoded))
	}
}

// TestBlockHashCarriesHeight checks that the top word of a block hash is
// the block height.
func TestBlockHashCarriesHeight(t *testing.T) {
	block := testBlock()
	block.HashPrev.SetHeight(41)
	hash := block.GetHash()
	if hash.Height() != 42 {
		t.Errorf("block hash height: got %d, want 42", hash.Height())
	}

	extended := block
	extended.BlockType = BlockTypeExtended
	extendedHash := extended.GetHash()
	if extendedHash.Height() != 41 {
		t.Errorf("extended block hash height: got %d, want 41",
			extendedHash.Height())
	}
}

// TestMerkleOddDuplication checks the odd-leaf duplication rule: a tree
// of three leaves hashes the third leaf against itself.
func TestMerkleOddDuplication(t *testing.T) {
	block := testBlock()
	ids := make([]Hash, len(block.Vtx))
	for i := range block.Vtx {
		ids[i] = block.Vtx[i].GetHash()
	}
	left := HashPair(ids[0], ids[1])
	right := HashPair(ids[2], ids[2])
	want := HashPair(left, right)
	if got := block.CalcMerkleTreeRoot(); got != want {
		t.Errorf("merkle root: got %s, want %s", got, want)
	}

	block.Vtx = nil
	if got := block.CalcMerkleTreeRoot(); got != ZeroHash {
		t.Errorf("empty merkle root: got %s, want zero", got)
	}
}

// TestHashStringRoundTrip checks display-order parsing.
func TestHashStringRoundTrip(t *testing.T) {
	hash := HashB([]byte("round trip"))
	parsed, err := NewHashFromStr(hash.String())
	if err != nil {
		t.Fatalf("NewHashFromStr: %v", err)
	}
	if parsed != hash {
		t.Errorf("hash string round trip: got %s, want %s", parsed, hash)
	}
}

func testDeFiProfile() DeFiProfile {
	return DeFiProfile{
		MintHeight:             -1,
		MaxSupply:              2100000000000000,
		CoinbaseType:           FixedDeFiCoinbaseType,
		DecayCycle:             1036800,
		CoinbaseDecayPercent:   50,
		InitCoinbasePercent:    10,
		SupplyCycle:            43200,
		RewardCycle:            1440,
		StakeMinToken:          100000000,
		StakeRewardPercent:     50,
		PromotionRewardPercent: 50,
		PromotionTokenTimes:    map[int64]uint32{10000: 10},
		CoinbasePercent:        map[int32]uint32{259200: 10, 777600: 8},
	}
}

// TestProfileRoundTrip covers the compact tag-value encoding for both a
// common and a DeFi profile.
func TestProfileRoundTrip(t *testing.T) {
	common := Profile{
		Version:     1,
		Name:        "BBC Test",
		Symbol:      "BBCA",
		Amount:      100000,
		MintReward:  1000,
		MinTxFee:    100,
		Owner:       testDestination(DestinationPrefixPubKey, 5),
		JointHeight: -1,
	}
	defi := common
	defi.Name = "BBC DeFi Test"
	defi.Parent = HashB([]byte("parent"))
	defi.JointHeight = 150
	defi.ForkType = ForkTypeDeFi
	defi.DeFi = testDeFiProfile()

	for _, profile := range []Profile{common, defi} {
		encoded, err := profile.Save()
		if err != nil {
			t.Fatalf("Save(%s): %v", profile.Name, err)
		}
		var decoded Profile
		if err := decoded.Load(encoded); err != nil {
			t.Fatalf("Load(%s): %v", profile.Name, err)
		}
		if !reflect.DeepEqual(normalizeProfile(profile), normalizeProfile(decoded)) {
			t.Errorf("profile round trip mismatch:\n%s\n%s",
				spew.Sdump(profile), spew.Sdump(decoded))
		}
	}
}

// normalizeProfile maps empty DeFi containers to nil so DeepEqual
// tolerates the decode allocating them lazily.
func normalizeProfile(p Profile) Profile {
	if len(p.DeFi.PromotionTokenTimes) == 0 {
		p.DeFi.PromotionTokenTimes = nil
	}
	if len(p.DeFi.CoinbasePercent) == 0 {
		p.DeFi.CoinbasePercent = nil
	}
	return p
}

// TestForkContextRoundTrip covers the registry record, including the
// profile reconstruction.
func TestForkContextRoundTrip(t *testing.T) {
	profile := Profile{
		Version:     1,
		Name:        "BBC Fork",
		Symbol:      "BBCF",
		Amount:      5000000,
		MintReward:  100,
		MinTxFee:    100,
		Owner:       testDestination(DestinationPrefixPubKey, 6),
		Parent:      HashB([]byte("parent fork")),
		JointHeight: 42,
		ForkType:    ForkTypeDeFi,
		DeFi:        testDeFiProfile(),
	}
	ctxt, err := NewForkContext(HashB([]byte("fork")), HashB([]byte("joint")),
		HashB([]byte("txid")), &profile)
	if err != nil {
		t.Fatalf("NewForkContext: %v", err)
	}

	var buf bytes.Buffer
	if err := ctxt.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	decoded := new(ForkContext)
	if err := decoded.Deserialize(&buf); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !reflect.DeepEqual(ctxt, decoded) {
		t.Errorf("fork context round trip mismatch:\n%s\n%s",
			spew.Sdump(ctxt), spew.Sdump(decoded))
	}

	restored, err := decoded.GetProfile()
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if !reflect.DeepEqual(normalizeProfile(profile), normalizeProfile(*restored)) {
		t.Errorf("fork context profile mismatch:\n%s\n%s",
			spew.Sdump(profile), spew.Sdump(*restored))
	}
}

// TestProofRoundTrips covers the work and piggyback proof payloads.
func TestProofRoundTrips(t *testing.T) {
	work := ProofOfHashWork{Algo: ProofOfWorkAlgoBlake2b, Bits: 20, Nonce: 0xdeadbeef}
	var decodedWork ProofOfHashWork
	if err := decodedWork.Load(work.Save()); err != nil {
		t.Fatalf("work proof load: %v", err)
	}
	if decodedWork != work {
		t.Errorf("work proof round trip: got %+v, want %+v", decodedWork, work)
	}

	piggyback := ProofOfPiggyback{
		Weight:       3,
		Agreement:    HashB([]byte("agreement")),
		HashRefBlock: HashB([]byte("ref")),
	}
	var decodedPiggyback ProofOfPiggyback
	if err := decodedPiggyback.Load(piggyback.Save()); err != nil {
		t.Fatalf("piggyback proof load: %v", err)
	}
	if decodedPiggyback != piggyback {
		t.Errorf("piggyback proof round trip: got %+v, want %+v", decodedPiggyback, piggyback)
	}
	if saved := piggyback.Save(); saved[0] != 3 {
		t.Errorf("piggyback weight byte: got %d, want 3", saved[0])
	}
}
