// Package storage defines the content-addressed store that archives signed
// HC1 envelopes, plus composite stores built from several backends.
package storage

import "github.com/ipfs/go-cid"

// CAS stores envelopes keyed by the CID of their bytes.
//
// Implementations must:
//   - make Put idempotent for identical bytes,
//   - never replace the bytes behind an existing CID,
//   - return ErrNotFound from Get for absent CIDs,
//   - return ErrInvalidCID for cid.Undef.
type CAS interface {
	Put(envelope []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}
