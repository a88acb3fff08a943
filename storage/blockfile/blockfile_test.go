// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockfile

import (
	"reflect"
	"testing"

	"github.com/bigbangcore/bigbang/core/types"
)

func testBlockEx(fill byte) *types.BlockEx {
	block := &types.Block{
		Version:   1,
		BlockType: types.BlockTypePrimary,
		Timestamp: 1546150205 + uint32(fill),
		HashPrev:  types.HashB([]byte{fill}),
		TxMint: types.Transaction{
			Version:   1,
			TxType:    types.TxTypeWorkMint,
			Timestamp: 1546150205 + uint32(fill),
			SendTo: types.Destination{
				Prefix: types.DestinationPrefixPubKey,
				Data:   types.HashB([]byte{fill, fill}),
			},
			Amount: 20000000,
		},
	}
	return types.NewBlockEx(block, nil)
}

// TestWriteReadRoundTrip stores blocks and reads them back through
// their locators.
func TestWriteReadRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	type located struct {
		block  *types.BlockEx
		file   uint32
		offset uint32
	}
	var blocks []located
	for fill := byte(1); fill <= 5; fill++ {
		block := testBlockEx(fill)
		file, offset, err := store.Write(block)
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		blocks = append(blocks, located{block, file, offset})
	}

	for _, loc := range blocks {
		read, err := store.Read(loc.file, loc.offset)
		if err != nil {
			t.Fatalf("Read(%d,%d): %v", loc.file, loc.offset, err)
		}
		if !reflect.DeepEqual(read, loc.block) {
			t.Errorf("block at (%d,%d) does not round trip", loc.file, loc.offset)
		}
	}
}

// TestWalkBlocks replays the store in append order.
func TestWalkBlocks(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var wantHashes []types.Hash
	for fill := byte(1); fill <= 3; fill++ {
		block := testBlockEx(fill)
		if _, _, err := store.Write(block); err != nil {
			t.Fatalf("Write: %v", err)
		}
		wantHashes = append(wantHashes, block.GetHash())
	}
	store.Close()

	// Reopen to cover resume on the existing file.
	store, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	var walked []types.Hash
	err = store.WalkBlocks(func(block *types.BlockEx, file, offset uint32) bool {
		walked = append(walked, block.GetHash())
		return true
	})
	if err != nil {
		t.Fatalf("WalkBlocks: %v", err)
	}
	if !reflect.DeepEqual(walked, wantHashes) {
		t.Errorf("WalkBlocks order: got %v, want %v", walked, wantHashes)
	}
}
