// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain_test

import (
	"crypto/ed25519"
	"math/big"
	"testing"

	"github.com/bigbangcore/bigbang/blockchain"
	"github.com/bigbangcore/bigbang/core/types"
	"github.com/bigbangcore/bigbang/params"
)

// testHarness wires a chain over a throwaway data directory with a
// genesis owned by a key the tests control.
type testHarness struct {
	chain   *blockchain.BlockChain
	params  *params.Params
	ownerPriv ed25519.PrivateKey
	owner   types.Destination
	genesis types.Hash
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = 0x42
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	p := params.TestNetParams
	copy(p.GenesisOwnerPubKey[:], pub)

	chain, err := blockchain.New(&blockchain.Config{
		Params:  &p,
		DataDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(chain.Close)

	var ownerData types.Hash
	copy(ownerData[:], pub)
	return &testHarness{
		chain:     chain,
		params:    &p,
		ownerPriv: priv,
		owner:     types.NewPubKeyDestination(ownerData),
		genesis:   chain.GetGenesisBlockHash(),
	}
}

func powCeiling(bits uint8) *big.Int {
	target := new(big.Int).Lsh(big.NewInt(1), uint(256-uint(bits)))
	return target.Sub(target, big.NewInt(1))
}

// minePrimary assembles and mines a primary work block on prev.
func (h *testHarness) minePrimary(t *testing.T, prev types.Hash, timestamp uint32,
	vtx []types.Transaction) *types.Block {
	t.Helper()

	bits, reward, err := h.chain.GetProofOfWorkTarget(prev, types.ProofOfWorkAlgoBlake2b)
	if err != nil {
		t.Fatalf("GetProofOfWorkTarget: %v", err)
	}
	var totalFee int64
	for i := range vtx {
		totalFee += vtx[i].TxFee
	}
	block := &types.Block{
		Version:   1,
		BlockType: types.BlockTypePrimary,
		Timestamp: timestamp,
		HashPrev:  prev,
		TxMint: types.Transaction{
			Version:   1,
			TxType:    types.TxTypeWorkMint,
			Timestamp: timestamp,
			SendTo:    h.owner,
			Amount:    reward + totalFee,
		},
		Vtx: vtx,
	}
	block.HashMerkle = block.CalcMerkleTreeRoot()

	target := powCeiling(bits)
	proof := types.ProofOfHashWork{Algo: types.ProofOfWorkAlgoBlake2b, Bits: bits}
	for nonce := uint64(0); ; nonce++ {
		proof.Nonce = nonce
		block.Proof = proof.Save()
		hash := types.HashB(block.GetSerializedProofOfWorkData())
		if hash.Big().Cmp(target) <= 0 {
			break
		}
	}

	sigHash := block.SignatureHash()
	block.SigData = ed25519.Sign(h.ownerPriv, sigHash[:])
	return block
}

// spendTx builds a signed transaction spending one outpoint of the
// genesis owner.
func (h *testHarness) spendTx(t *testing.T, prevout types.TxOutPoint, sendTo types.Destination,
	amount int64, timestamp uint32) types.Transaction {
	t.Helper()
	tx := types.Transaction{
		Version:   1,
		TxType:    types.TxTypeToken,
		Timestamp: timestamp,
		Input:     []types.TxIn{{Prevout: prevout}},
		SendTo:    sendTo,
		Amount:    amount,
		TxFee:     params.MinTxFee,
	}
	sigHash := tx.SignatureHash()
	tx.SigData = ed25519.Sign(h.ownerPriv, sigHash[:])
	return tx
}

func ruleCode(t *testing.T, err error) blockchain.ErrorCode {
	t.Helper()
	ruleErr, ok := err.(blockchain.RuleError)
	if !ok {
		t.Fatalf("expected a rule error, got %T: %v", err, err)
	}
	return ruleErr.ErrorCode
}

// TestGenesisInitialization covers scenario S1: a fresh container seeds
// itself with the genesis block, and resubmitting it reports
// ALREADY_HAVE.
func TestGenesisInitialization(t *testing.T) {
	h := newTestHarness(t)

	hash, height, _, err := h.chain.GetLastBlock(h.genesis)
	if err != nil {
		t.Fatalf("GetLastBlock: %v", err)
	}
	if hash != h.genesis || height != 0 {
		t.Errorf("genesis tip: got (%s,%d), want (%s,0)", hash, height, h.genesis)
	}
	count, err := h.chain.GetBlockCount(h.genesis)
	if err != nil || count != 1 {
		t.Errorf("GetBlockCount: got %d err=%v, want 1", count, err)
	}

	genesisBlock, err := h.chain.GetBlock(h.genesis)
	if err != nil {
		t.Fatalf("GetBlock(genesis): %v", err)
	}
	if _, err := h.chain.AddNewBlock(genesisBlock); ruleCode(t, err) != blockchain.ErrAlreadyHave {
		t.Errorf("resubmitted genesis: got %v, want ALREADY_HAVE", err)
	}
}

// TestLinearExtension covers scenario S2: five primary blocks extend
// the chain, each emitting a single-block update, with trust strictly
// accumulating.
func TestLinearExtension(t *testing.T) {
	h := newTestHarness(t)

	prev := h.genesis
	timestamp := h.params.GenesisTimestamp
	var tips []types.Hash
	for i := 0; i < 5; i++ {
		timestamp += params.BlockTargetSpacing
		block := h.minePrimary(t, prev, timestamp, nil)
		update, err := h.chain.AddNewBlock(block)
		if err != nil {
			t.Fatalf("AddNewBlock(%d): %v", i+1, err)
		}
		if update.IsNull() {
			t.Fatalf("block %d did not win the tip", i+1)
		}
		if len(update.BlockAddNew) != 1 || len(update.BlockRemove) != 0 {
			t.Fatalf("update %d: add=%d remove=%d, want 1/0",
				i+1, len(update.BlockAddNew), len(update.BlockRemove))
		}
		if update.BlockAddNew[0].GetHash() != block.GetHash() {
			t.Errorf("update %d adds the wrong block", i+1)
		}
		prev = block.GetHash()
		tips = append(tips, prev)
	}

	hash, height, _, err := h.chain.GetLastBlock(h.genesis)
	if err != nil {
		t.Fatalf("GetLastBlock: %v", err)
	}
	if hash != tips[4] || height != 5 {
		t.Errorf("tip after extension: got (%s,%d), want (%s,5)", hash, height, tips[4])
	}

	container := h.chain.Container()
	tipIndex, err := container.RetrieveIndex(tips[4])
	if err != nil {
		t.Fatalf("RetrieveIndex: %v", err)
	}
	genesisIndex, err := container.RetrieveIndex(h.genesis)
	if err != nil {
		t.Fatalf("RetrieveIndex(genesis): %v", err)
	}
	if tipIndex.ChainTrust.Cmp(genesisIndex.ChainTrust) <= 0 {
		t.Error("chain trust did not accumulate")
	}
}

// TestForkSwitch covers scenario S3: a heavier competing branch takes
// over the tip with one update listing the arriving blocks ascending
// and the rolled-back blocks tip first.
func TestForkSwitch(t *testing.T) {
	h := newTestHarness(t)
	base := h.params.GenesisTimestamp

	a1 := h.minePrimary(t, h.genesis, base+60, nil)
	if _, err := h.chain.AddNewBlock(a1); err != nil {
		t.Fatalf("AddNewBlock(a1): %v", err)
	}
	a2 := h.minePrimary(t, a1.GetHash(), base+120, nil)
	if _, err := h.chain.AddNewBlock(a2); err != nil {
		t.Fatalf("AddNewBlock(a2): %v", err)
	}

	b1 := h.minePrimary(t, h.genesis, base+80, nil)
	update, err := h.chain.AddNewBlock(b1)
	if err != nil {
		t.Fatalf("AddNewBlock(b1): %v", err)
	}
	if !update.IsNull() {
		t.Error("lighter branch block won the tip")
	}
	b2 := h.minePrimary(t, b1.GetHash(), base+140, nil)
	update, err = h.chain.AddNewBlock(b2)
	if err != nil {
		t.Fatalf("AddNewBlock(b2): %v", err)
	}
	if !update.IsNull() {
		t.Error("equal-trust non-equivalent block replaced the tip")
	}

	b3 := h.minePrimary(t, b2.GetHash(), base+200, nil)
	update, err = h.chain.AddNewBlock(b3)
	if err != nil {
		t.Fatalf("AddNewBlock(b3): %v", err)
	}
	if update.IsNull() {
		t.Fatal("heavier branch did not win the tip")
	}

	wantAdd := []types.Hash{b1.GetHash(), b2.GetHash(), b3.GetHash()}
	if len(update.BlockAddNew) != len(wantAdd) {
		t.Fatalf("add list size: got %d, want %d", len(update.BlockAddNew), len(wantAdd))
	}
	for i := range wantAdd {
		if update.BlockAddNew[i].GetHash() != wantAdd[i] {
			t.Errorf("add list[%d]: got %s, want %s",
				i, update.BlockAddNew[i].GetHash(), wantAdd[i])
		}
	}
	wantRemove := []types.Hash{a2.GetHash(), a1.GetHash()}
	if len(update.BlockRemove) != len(wantRemove) {
		t.Fatalf("remove list size: got %d, want %d", len(update.BlockRemove), len(wantRemove))
	}
	for i := range wantRemove {
		if update.BlockRemove[i].GetHash() != wantRemove[i] {
			t.Errorf("remove list[%d]: got %s, want %s",
				i, update.BlockRemove[i].GetHash(), wantRemove[i])
		}
	}

	hash, height, _, err := h.chain.GetLastBlock(h.genesis)
	if err != nil {
		t.Fatalf("GetLastBlock: %v", err)
	}
	if hash != b3.GetHash() || height != 3 {
		t.Errorf("tip after switch: got (%s,%d), want (%s,3)", hash, height, b3.GetHash())
	}
}

// TestDuplicateInputRejection covers scenario S4: two transactions of
// one block spending the same outpoint reject the block without a
// commit.
func TestDuplicateInputRejection(t *testing.T) {
	h := newTestHarness(t)
	base := h.params.GenesisTimestamp

	genesisBlock, err := h.chain.GetBlock(h.genesis)
	if err != nil {
		t.Fatalf("GetBlock(genesis): %v", err)
	}
	mintOut := types.TxOutPoint{Hash: genesisBlock.TxMint.GetHash(), N: 0}

	receiver1 := types.NewPubKeyDestination(types.HashB([]byte("receiver1")))
	receiver2 := types.NewPubKeyDestination(types.HashB([]byte("receiver2")))
	tx1 := h.spendTx(t, mintOut, receiver1, 100*params.COIN, base+60)
	tx2 := h.spendTx(t, mintOut, receiver2, 200*params.COIN, base+60)

	block := h.minePrimary(t, h.genesis, base+60, []types.Transaction{tx1, tx2})
	_, err = h.chain.AddNewBlock(block)
	if err == nil {
		t.Fatal("double spending block accepted")
	}
	code := ruleCode(t, err)
	if code != blockchain.ErrTransactionConflictingInput &&
		code != blockchain.ErrTransactionInputInvalid {
		t.Errorf("double spend code: got %v", code)
	}
	hash, _, _, err := h.chain.GetLastBlock(h.genesis)
	if err != nil {
		t.Fatalf("GetLastBlock: %v", err)
	}
	if hash != h.genesis {
		t.Error("rejected block moved the tip")
	}
}

// TestSpendCommitsUTXO checks the I4 closure: a committed spend removes
// the consumed output and exposes the new ones.
func TestSpendCommitsUTXO(t *testing.T) {
	h := newTestHarness(t)
	base := h.params.GenesisTimestamp

	genesisBlock, err := h.chain.GetBlock(h.genesis)
	if err != nil {
		t.Fatalf("GetBlock(genesis): %v", err)
	}
	mintOut := types.TxOutPoint{Hash: genesisBlock.TxMint.GetHash(), N: 0}
	receiver := types.NewPubKeyDestination(types.HashB([]byte("receiver")))
	tx := h.spendTx(t, mintOut, receiver, 100*params.COIN, base+60)
	txid := tx.GetHash()

	block := h.minePrimary(t, h.genesis, base+60, []types.Transaction{tx})
	if _, err := h.chain.AddNewBlock(block); err != nil {
		t.Fatalf("AddNewBlock: %v", err)
	}

	outputs, err := h.chain.GetTxUnspent(h.genesis, []types.TxIn{
		{Prevout: mintOut},
		{Prevout: types.TxOutPoint{Hash: txid, N: 0}},
		{Prevout: types.TxOutPoint{Hash: txid, N: 1}},
	})
	if err != nil {
		t.Fatalf("GetTxUnspent: %v", err)
	}
	if !outputs[0].IsNull() {
		t.Error("spent genesis mint output still unspent")
	}
	if outputs[1].IsNull() || outputs[1].Amount != 100*params.COIN || outputs[1].DestTo != receiver {
		t.Errorf("payment output wrong: %+v", outputs[1])
	}
	if outputs[2].IsNull() {
		t.Error("change output missing")
	} else if outputs[2].DestTo != h.owner {
		t.Error("change output not returned to the input owner")
	}
}
