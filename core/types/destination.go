// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package types

import (
	"bytes"
	"crypto/ed25519"
	"io"

	"github.com/bigbangcore/bigbang/core/serialization"
	"github.com/pkg/errors"
)

// Destination prefixes. A destination is a 1-byte tag plus a 32-byte body:
// either a public key or a template id.
const (
	DestinationPrefixNull     uint8 = 0
	DestinationPrefixPubKey   uint8 = 1
	DestinationPrefixTemplate uint8 = 2
)

// DestinationSize is the serialized size of a destination.
const DestinationSize = 33

// Destination identifies the owner of a transaction output.
type Destination struct {
	Prefix uint8
	Data   Hash
}

// NewPubKeyDestination returns a destination owned by the given public key.
func NewPubKeyDestination(pubKey Hash) Destination {
	return Destination{Prefix: DestinationPrefixPubKey, Data: pubKey}
}

// NewTemplateDestination returns a destination owned by a template id.
func NewTemplateDestination(templateID Hash) Destination {
	return Destination{Prefix: DestinationPrefixTemplate, Data: templateID}
}

// IsNull returns whether the destination is unset.
func (d *Destination) IsNull() bool {
	return d.Prefix == DestinationPrefixNull
}

// IsPubKey returns whether the destination is a plain public key.
func (d *Destination) IsPubKey() bool {
	return d.Prefix == DestinationPrefixPubKey
}

// IsTemplate returns whether the destination is a template id.
func (d *Destination) IsTemplate() bool {
	return d.Prefix == DestinationPrefixTemplate
}

// SetNull clears the destination.
func (d *Destination) SetNull() {
	d.Prefix = DestinationPrefixNull
	d.Data = ZeroHash
}

// VerifySignature checks sig over msg against the destination. Only pubkey
// destinations can verify directly; template destinations delegate to the
// template owner recorded in the signature payload, which is outside this
// core and rejected here.
func (d *Destination) VerifySignature(msg Hash, sig []byte) bool {
	if !d.IsPubKey() || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(d.Data[:], msg[:], sig)
}

// Less provides a total order over destinations for canonical map walks.
func (d *Destination) Less(other *Destination) bool {
	if d.Prefix != other.Prefix {
		return d.Prefix < other.Prefix
	}
	return bytes.Compare(d.Data[:], other.Data[:]) < 0
}

func (d Destination) String() string {
	return d.Data.String()
}

// Serialize writes the destination to w.
func (d *Destination) Serialize(w io.Writer) error {
	if err := serialization.WriteUint8(w, d.Prefix); err != nil {
		return err
	}
	return d.Data.Serialize(w)
}

// Deserialize reads the destination from r.
func (d *Destination) Deserialize(r io.Reader) error {
	prefix, err := serialization.ReadUint8(r)
	if err != nil {
		return err
	}
	if prefix > DestinationPrefixTemplate {
		return errors.Errorf("unknown destination prefix %d", prefix)
	}
	d.Prefix = prefix
	return d.Data.Deserialize(r)
}

// SortDestinations sorts dests in place into canonical order and returns
// it. Maps iterate randomly, so every deterministic walk goes through here.
func SortDestinations(dests []Destination) []Destination {
	for i := 1; i < len(dests); i++ {
		for j := i; j > 0 && dests[j].Less(&dests[j-1]); j-- {
			dests[j], dests[j-1] = dests[j-1], dests[j]
		}
	}
	return dests
}
