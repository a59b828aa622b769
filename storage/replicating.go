package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/M3kH/dgc/cidutil"
)

// NamedCAS labels a backend so replication results can be reported per store.
type NamedCAS struct {
	Name string
	CAS  CAS
}

// ReplicatingCAS writes every envelope to all backends and reads from the
// first backend that has it.
type ReplicatingCAS struct {
	Backends []NamedCAS
}

var _ CAS = ReplicatingCAS{}

// PutAll writes envelope to each backend in order. It returns the CID
// computed locally and the CID each backend reported. A backend that reports
// a different CID aborts the write with ErrCIDMismatch.
func (r ReplicatingCAS) PutAll(envelope []byte) (cid.Cid, map[string]cid.Cid, error) {
	if len(r.Backends) == 0 {
		return cid.Undef, nil, ErrNoBackends
	}
	want, err := cidutil.EnvelopeCID(envelope)
	if err != nil {
		return cid.Undef, nil, err
	}

	out := make(map[string]cid.Cid, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS == nil {
			return cid.Undef, nil, fmt.Errorf("storage: backend %q has no store", b.Name)
		}
		got, err := b.CAS.Put(envelope)
		if err != nil {
			return cid.Undef, out, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		out[b.Name] = got
		if !got.Equals(want) {
			return cid.Undef, out, ErrCIDMismatch
		}
	}
	return want, out, nil
}

func (r ReplicatingCAS) Put(envelope []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(envelope)
	return id, err
}

func (r ReplicatingCAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	for _, b := range r.Backends {
		if b.CAS == nil {
			continue
		}
		out, err := b.CAS.Get(id)
		if err == nil {
			return out, nil
		}
		if !IsNotFound(err) {
			return nil, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
	}
	return nil, ErrNotFound
}

func (r ReplicatingCAS) Has(id cid.Cid) bool {
	for _, b := range r.Backends {
		if b.CAS != nil && b.CAS.Has(id) {
			return true
		}
	}
	return false
}
