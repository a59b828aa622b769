// Package cidutil derives the content identifiers under which signed HC1
// envelopes are archived.
package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// EnvelopeCID returns the CIDv1 (raw codec, sha2-256 multihash) of envelope bytes.
func EnvelopeCID(envelope []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(envelope, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// EnvelopeCIDString is EnvelopeCID rendered in its default base32 form.
func EnvelopeCIDString(envelope []byte) (string, error) {
	id, err := EnvelopeCID(envelope)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Parse decodes s and checks it has the shape EnvelopeCID produces.
func Parse(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, fmt.Errorf("cidutil: %w", err)
	}
	if id.Version() != 1 || id.Type() != cid.Raw {
		return cid.Undef, fmt.Errorf("cidutil: %s is not a CIDv1 with raw codec", s)
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return cid.Undef, fmt.Errorf("cidutil: %w", err)
	}
	if dec.Code != multihash.SHA2_256 {
		return cid.Undef, fmt.Errorf("cidutil: %s does not use a sha2-256 multihash", s)
	}
	return id, nil
}

// Matches reports whether data hashes to id.
func Matches(id cid.Cid, data []byte) bool {
	got, err := EnvelopeCID(data)
	return err == nil && got.Equals(id)
}
