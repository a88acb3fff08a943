// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package delegate implements the delegated-proof-of-stake machinery:
// enrollment snapshots, stake proof verification and the deterministic
// ballot selection that orders the enrolled delegates for a round.
package delegate

import (
	"bytes"
	"encoding/binary"

	"github.com/bigbangcore/bigbang/core/serialization"
	"github.com/bigbangcore/bigbang/core/types"
	"github.com/pkg/errors"
)

// AmountPair is one enrolled delegate and its vote amount.
type AmountPair struct {
	Dest   types.Destination
	Amount int64
}

// Enrolled is the aggregated enrollment snapshot at a cutoff block.
type Enrolled struct {
	MapWeight     map[types.Destination]uint64
	MapEnrollData map[types.Destination][]byte
	VecAmount     []AmountPair
}

// Clear empties the snapshot.
func (e *Enrolled) Clear() {
	e.MapWeight = nil
	e.MapEnrollData = nil
	e.VecAmount = nil
}

// Agreement is the deterministic consensus outcome derived from a stake
// proof: the agreement digest, the accumulated weight and the ordered
// ballot list. An empty ballot means the round falls back to work.
type Agreement struct {
	Agreement types.Hash
	Weight    uint64
	Ballot    []types.Destination
}

// Clear empties the agreement.
func (a *Agreement) Clear() {
	a.Agreement = types.ZeroHash
	a.Weight = 0
	a.Ballot = nil
}

// IsProofOfWork reports whether the round falls back to work.
func (a *Agreement) IsProofOfWork() bool {
	return len(a.Ballot) == 0
}

// GetBallot returns the delegate owning rotation slot index.
func (a *Agreement) GetBallot(index int) types.Destination {
	if len(a.Ballot) == 0 {
		return types.Destination{}
	}
	return a.Ballot[index%len(a.Ballot)]
}

// Equal reports whether two agreements carry the same outcome.
func (a *Agreement) Equal(other *Agreement) bool {
	return a.Agreement == other.Agreement && a.Weight == other.Weight
}

// publishedEntry is one delegate's contribution inside a stake proof.
type publishedEntry struct {
	Dest types.Destination
	Data []byte
}

// BuildStakeProof renders a stake proof payload: the weight, the
// agreement digest and the publishing delegates with their enrollment
// data. The block makers use it; the verifier reverses it.
func BuildStakeProof(weight uint64, agreement types.Hash, published map[types.Destination][]byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(uint8(weight))
	buf.Write(agreement[:])
	dests := make([]types.Destination, 0, len(published))
	for dest := range published {
		dests = append(dests, dest)
	}
	types.SortDestinations(dests)
	if err := serialization.WriteVarInt(&buf, uint64(len(dests))); err != nil {
		panic(err)
	}
	for _, dest := range dests {
		if err := dest.Serialize(&buf); err != nil {
			panic(err)
		}
		if err := serialization.WriteVarBytes(&buf, published[dest]); err != nil {
			panic(err)
		}
	}
	return buf.Bytes()
}

// Verifier checks stake proofs against an enrollment snapshot.
type Verifier struct {
	mapWeight     map[types.Destination]uint64
	mapEnrollData map[types.Destination][]byte
}

// NewVerifier builds a verifier over a snapshot.
func NewVerifier(enrolled *Enrolled) *Verifier {
	return &Verifier{
		mapWeight:     enrolled.MapWeight,
		mapEnrollData: enrolled.MapEnrollData,
	}
}

// agreementDigest folds the publishing delegates and their enrollment
// data into the agreement hash. The digest is deterministic because the
// entries are folded in canonical destination order.
func agreementDigest(entries []publishedEntry) types.Hash {
	var buf bytes.Buffer
	for i := range entries {
		if err := entries[i].Dest.Serialize(&buf); err != nil {
			panic(err)
		}
		buf.Write(entries[i].Data)
	}
	return types.HashB(buf.Bytes())
}

// VerifyProof parses and checks a stake proof. A proof opening with a
// zero weight and zero agreement is the work fallback: it verifies
// trivially with an empty ballot map. Otherwise every publisher must be
// enrolled with matching data, and the recomputed agreement digest must
// equal the announced one.
func (v *Verifier) VerifyProof(proof []byte) (agreement types.Hash, weight uint64,
	mapBallot map[types.Destination]uint64, err error) {

	reader := bytes.NewReader(proof)
	weightByte, err := serialization.ReadUint8(reader)
	if err != nil {
		return types.ZeroHash, 0, nil, err
	}
	var parsed types.Hash
	if err := parsed.Deserialize(reader); err != nil {
		return types.ZeroHash, 0, nil, err
	}
	if weightByte == 0 && parsed.IsZero() {
		return types.ZeroHash, 0, nil, nil
	}

	count, err := serialization.ReadVarInt(reader)
	if err != nil {
		return types.ZeroHash, 0, nil, err
	}
	if count == 0 || count > uint64(len(v.mapWeight)) {
		return types.ZeroHash, 0, nil, errors.Errorf("stake proof publishes %d of %d enrolled", count, len(v.mapWeight))
	}
	entries := make([]publishedEntry, count)
	mapBallot = make(map[types.Destination]uint64, count)
	var last *types.Destination
	for i := range entries {
		if err := entries[i].Dest.Deserialize(reader); err != nil {
			return types.ZeroHash, 0, nil, err
		}
		if entries[i].Data, err = serialization.ReadVarBytes(reader); err != nil {
			return types.ZeroHash, 0, nil, err
		}
		dest := entries[i].Dest
		if last != nil && !last.Less(&dest) {
			return types.ZeroHash, 0, nil, errors.New("stake proof publishers out of order")
		}
		last = &entries[i].Dest
		enrollWeight, ok := v.mapWeight[dest]
		if !ok {
			return types.ZeroHash, 0, nil, errors.Errorf("publisher %s is not enrolled", dest)
		}
		if !bytes.Equal(v.mapEnrollData[dest], entries[i].Data) {
			return types.ZeroHash, 0, nil, errors.Errorf("publisher %s enroll data mismatch", dest)
		}
		weight += enrollWeight
		mapBallot[dest] = enrollWeight
	}
	agreement = agreementDigest(entries)
	if agreement != parsed {
		return types.ZeroHash, 0, nil, errors.New("stake proof agreement mismatch")
	}
	return agreement, weight, mapBallot, nil
}

// GetDelegatedBallot orders the ballot delegates for a round. The order
// is a deterministic weighted selection without replacement: a beacon
// walk seeded by the agreement digest repeatedly draws from the voting
// delegates in proportion to their amounts. The whole network must run
// this byte-for-byte identically; changing it is a hard fork.
func GetDelegatedBallot(agreement types.Hash, weight uint64,
	mapBallot map[types.Destination]uint64, vecAmount []AmountPair,
	moneySupply int64, height uint32) []types.Destination {

	if len(mapBallot) == 0 || weight == 0 {
		return nil
	}

	// Only delegates that actually published get a seat; their draw
	// weight is their vote amount from the enrollment snapshot.
	candidates := make([]AmountPair, 0, len(mapBallot))
	var total int64
	for _, pair := range vecAmount {
		if _, ok := mapBallot[pair.Dest]; !ok {
			continue
		}
		if pair.Amount <= 0 {
			continue
		}
		candidates = append(candidates, pair)
		total += pair.Amount
	}
	if total <= 0 {
		return nil
	}

	var seed [types.HashSize + 4]byte
	copy(seed[:], agreement[:])
	binary.LittleEndian.PutUint32(seed[types.HashSize:], height)
	state := types.HashB(seed[:])

	ballot := make([]types.Destination, 0, len(candidates))
	for len(candidates) > 0 {
		draw := int64(state.Bits64(0) % uint64(total))
		picked := 0
		for i := range candidates {
			if draw < candidates[i].Amount {
				picked = i
				break
			}
			draw -= candidates[i].Amount
		}
		ballot = append(ballot, candidates[picked].Dest)
		total -= candidates[picked].Amount
		candidates = append(candidates[:picked], candidates[picked+1:]...)
		state = types.HashB(state[:])
	}
	return ballot
}
