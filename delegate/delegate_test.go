// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package delegate

import (
	"reflect"
	"testing"

	"github.com/bigbangcore/bigbang/core/types"
)

func dest(fill byte) types.Destination {
	var data types.Hash
	for i := range data {
		data[i] = fill
	}
	return types.Destination{Prefix: types.DestinationPrefixTemplate, Data: data}
}

func testEnrolled() *Enrolled {
	d1, d2, d3 := dest(1), dest(2), dest(3)
	return &Enrolled{
		MapWeight: map[types.Destination]uint64{d1: 1, d2: 2, d3: 5},
		MapEnrollData: map[types.Destination][]byte{
			d1: {0x11}, d2: {0x22}, d3: {0x33},
		},
		VecAmount: []AmountPair{
			{Dest: d1, Amount: 10000},
			{Dest: d2, Amount: 20000},
			{Dest: d3, Amount: 50000},
		},
	}
}

// TestVerifyProofRoundTrip builds a stake proof out of the enrollment
// data and verifies it.
func TestVerifyProofRoundTrip(t *testing.T) {
	enrolled := testEnrolled()
	published := map[types.Destination][]byte{
		dest(1): {0x11},
		dest(3): {0x33},
	}
	entries := []publishedEntry{
		{Dest: dest(1), Data: []byte{0x11}},
		{Dest: dest(3), Data: []byte{0x33}},
	}
	agreement := agreementDigest(entries)
	proof := BuildStakeProof(6, agreement, published)

	verifier := NewVerifier(enrolled)
	gotAgreement, weight, mapBallot, err := verifier.VerifyProof(proof)
	if err != nil {
		t.Fatalf("VerifyProof: %v", err)
	}
	if gotAgreement != agreement {
		t.Errorf("agreement: got %s, want %s", gotAgreement, agreement)
	}
	if weight != 6 {
		t.Errorf("weight: got %d, want 6", weight)
	}
	want := map[types.Destination]uint64{dest(1): 1, dest(3): 5}
	if !reflect.DeepEqual(mapBallot, want) {
		t.Errorf("ballot map: got %v, want %v", mapBallot, want)
	}
}

// TestVerifyProofWorkFallback accepts the all-zero prefix as the work
// round marker.
func TestVerifyProofWorkFallback(t *testing.T) {
	proof := make([]byte, types.ProofOfHashWorkSize)
	verifier := NewVerifier(testEnrolled())
	agreement, weight, mapBallot, err := verifier.VerifyProof(proof)
	if err != nil {
		t.Fatalf("VerifyProof: %v", err)
	}
	if !agreement.IsZero() || weight != 0 || mapBallot != nil {
		t.Error("work fallback produced an agreement")
	}
}

// TestVerifyProofRejectsStrangers rejects publishers outside the
// enrollment snapshot and tampered enroll data.
func TestVerifyProofRejectsStrangers(t *testing.T) {
	enrolled := testEnrolled()
	verifier := NewVerifier(enrolled)

	stranger := map[types.Destination][]byte{dest(9): {0x99}}
	entries := []publishedEntry{{Dest: dest(9), Data: []byte{0x99}}}
	proof := BuildStakeProof(1, agreementDigest(entries), stranger)
	if _, _, _, err := verifier.VerifyProof(proof); err == nil {
		t.Error("stranger publisher accepted")
	}

	tampered := map[types.Destination][]byte{dest(1): {0xff}}
	entries = []publishedEntry{{Dest: dest(1), Data: []byte{0xff}}}
	proof = BuildStakeProof(1, agreementDigest(entries), tampered)
	if _, _, _, err := verifier.VerifyProof(proof); err == nil {
		t.Error("tampered enroll data accepted")
	}
}

// TestGetDelegatedBallot checks determinism and the weighting contract:
// the same inputs give the same permutation, every publisher appears
// exactly once, another height still seats every publisher, and a zero
// weight or an empty ballot map yields no ballot.
func TestGetDelegatedBallot(t *testing.T) {
	enrolled := testEnrolled()
	mapBallot := map[types.Destination]uint64{dest(1): 1, dest(2): 2, dest(3): 5}
	agreement := types.HashB([]byte("round"))

	first := GetDelegatedBallot(agreement, 8, mapBallot, enrolled.VecAmount, 0, 100)
	second := GetDelegatedBallot(agreement, 8, mapBallot, enrolled.VecAmount, 0, 100)
	if !reflect.DeepEqual(first, second) {
		t.Error("ballot selection is not deterministic")
	}
	if len(first) != 3 {
		t.Fatalf("ballot size: got %d, want 3", len(first))
	}
	seen := make(map[types.Destination]bool)
	for _, d := range first {
		if seen[d] {
			t.Errorf("destination %s appears twice in the ballot", d)
		}
		seen[d] = true
	}

	otherHeight := GetDelegatedBallot(agreement, 8, mapBallot, enrolled.VecAmount, 0, 101)
	if len(otherHeight) != 3 {
		t.Fatalf("ballot size at other height: got %d", len(otherHeight))
	}

	if got := GetDelegatedBallot(agreement, 0, mapBallot, enrolled.VecAmount, 0, 100); got != nil {
		t.Error("zero weight produced a ballot")
	}
	if got := GetDelegatedBallot(agreement, 8, nil, enrolled.VecAmount, 0, 100); got != nil {
		t.Error("empty ballot map produced a ballot")
	}
}
