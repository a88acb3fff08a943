// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"sync"

	"github.com/bigbangcore/bigbang/core/types"
)

// blockFork is the live state of one fork: its profile, origin and
// current tip. The embedded lock serializes ingest against readers of
// the same fork.
type blockFork struct {
	mtx     sync.RWMutex
	profile *types.Profile
	last    *BlockIndex
	origin  *BlockIndex
}

func newBlockFork(profile *types.Profile, last *BlockIndex) *blockFork {
	return &blockFork{profile: profile, last: last, origin: last.Origin}
}

// GetProfile returns the fork profile.
func (f *blockFork) GetProfile() *types.Profile {
	return f.profile
}

// GetLast returns the current tip.
func (f *blockFork) GetLast() *BlockIndex {
	return f.last
}

// GetOrigin returns the origin index.
func (f *blockFork) GetOrigin() *BlockIndex {
	return f.origin
}

// UpdateLast moves the tip and relinks the materialized Next chain from
// the origin to the new tip. Stale Next pointers of abandoned branches
// are cleared along the way.
func (f *blockFork) UpdateLast(last *BlockIndex) {
	f.last = last
	f.updateNext()
}

func (f *blockFork) updateNext() {
	if f.last == nil {
		return
	}
	// The new tip has no successor.
	if f.last.Next != nil {
		p := f.last.Next
		for p != nil {
			p.Prev.Next = nil
			p = p.Next
		}
		f.last.Next = nil
	}
	// Walk back until the existing Next chain is met, clearing the
	// branches it displaced.
	index := f.last
	for !index.IsOrigin() && index.Prev.Next != index {
		prev := index.Prev
		if prev.Next != nil {
			p := prev.Next
			for p != nil {
				p.Prev.Next = nil
				p = p.Next
			}
		}
		prev.Next = index
		index = prev
	}
}
