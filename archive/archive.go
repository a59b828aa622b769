// Package archive keeps signed HC1 envelopes in a content-addressed store so
// issued certificates can be fetched and re-verified later by CID.
//
// Envelopes are archived rather than tokens: the token is a deterministic
// rendering of the envelope, so Load can always rebuild it.
package archive

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/M3kH/dgc/cidutil"
	"github.com/M3kH/dgc/hcert"
	"github.com/M3kH/dgc/storage"
)

// Archive stores signed envelopes in a CAS and rebuilds tokens from them.
// It is safe for concurrent use when its CAS is.
type Archive struct {
	CAS storage.CAS

	// Lenient skips the prefix check when unpacking tokens in Store.
	Lenient bool
}

// New returns an Archive over cas with strict prefix checking.
func New(cas storage.CAS) *Archive {
	return &Archive{CAS: cas}
}

// Store unpacks token and archives its envelope. The envelope must be a
// well-formed COSE_Sign1 message; its signature is not checked.
func (a *Archive) Store(token string) (cid.Cid, error) {
	unpack := hcert.Unpack
	if a.Lenient {
		unpack = hcert.UnpackLenient
	}
	envelope, err := unpack(token)
	if err != nil {
		return cid.Undef, err
	}
	return a.StoreEnvelope(envelope)
}

// StoreEnvelope archives raw envelope bytes after a structural check.
func (a *Archive) StoreEnvelope(envelope []byte) (cid.Cid, error) {
	if a.CAS == nil {
		return cid.Undef, storage.ErrNoBackends
	}
	if _, err := hcert.Inspect(envelope); err != nil {
		return cid.Undef, err
	}
	id, err := a.CAS.Put(envelope)
	if err != nil {
		return cid.Undef, fmt.Errorf("archive: store envelope: %w", err)
	}
	return id, nil
}

// Envelope returns the archived envelope bytes for id.
func (a *Archive) Envelope(id cid.Cid) ([]byte, error) {
	if a.CAS == nil {
		return nil, storage.ErrNoBackends
	}
	envelope, err := a.CAS.Get(id)
	if err != nil {
		return nil, fmt.Errorf("archive: load %s: %w", id, err)
	}
	if !cidutil.Matches(id, envelope) {
		return nil, storage.ErrCIDMismatch
	}
	return envelope, nil
}

// Load rebuilds the HC1 token for an archived envelope.
func (a *Archive) Load(id cid.Cid) (string, error) {
	envelope, err := a.Envelope(id)
	if err != nil {
		return "", err
	}
	return hcert.Pack(envelope)
}

// Verify checks the archived envelope against certificate and returns its claims.
func (a *Archive) Verify(id cid.Cid, certificate []byte) (any, error) {
	envelope, err := a.Envelope(id)
	if err != nil {
		return nil, err
	}
	return hcert.VerifyEnvelope(envelope, certificate)
}

// Has reports whether id is archived.
func (a *Archive) Has(id cid.Cid) bool {
	return a.CAS != nil && a.CAS.Has(id)
}
