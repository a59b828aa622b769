package hcert

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"math/big"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/fxamacker/cbor/v2"

	"github.com/M3kH/dgc/keys"
)

// COSE algorithm identifiers (RFC 9053).
const (
	AlgES256 int64 = -7
	AlgES384 int64 = -35
	AlgES512 int64 = -36
	AlgEdDSA int64 = -8
	AlgPS256 int64 = -37
)

const (
	coseTagSign1      = 18
	sigStructureSign1 = "Signature1"
	minRSAModulusBits = 2048
)

// protectedHeader holds the header parameters this package reads and writes.
// The "kid" text label is accepted on read for signers that use it instead of label 4.
type protectedHeader struct {
	Alg       int64  `cbor:"1,keyasint,omitempty"`
	Crit      []any  `cbor:"2,keyasint,omitempty"`
	KID       []byte `cbor:"4,keyasint,omitempty"`
	LegacyKID []byte `cbor:"kid,omitempty"`
}

type sign1Message struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected map[any]any
	Payload     []byte
	Signature   []byte
}

type sigStructure struct {
	_             struct{} `cbor:",toarray"`
	Context       string
	BodyProtected []byte
	ExternalAAD   []byte
	Payload       []byte
}

var (
	envelopeEncMode cbor.EncMode
	envelopeDecMode cbor.DecMode
)

func init() {
	var err error
	envelopeEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	envelopeDecMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// EnvelopeInfo is the unverified content of a COSE_Sign1 envelope.
type EnvelopeInfo struct {
	Algorithm int64
	KeyID     []byte
	Payload   []byte
	Signature []byte
}

// AlgorithmName returns the COSE name of the envelope's algorithm.
func (i *EnvelopeInfo) AlgorithmName() string { return AlgorithmName(i.Algorithm) }

// AlgorithmName returns the COSE name of alg, or "unknown(<alg>)".
func AlgorithmName(alg int64) string {
	switch alg {
	case AlgES256:
		return "ES256"
	case AlgES384:
		return "ES384"
	case AlgES512:
		return "ES512"
	case AlgEdDSA:
		return "EdDSA"
	case AlgPS256:
		return "PS256"
	default:
		return fmt.Sprintf("unknown(%d)", alg)
	}
}

// Sign builds a tagged COSE_Sign1 envelope over payload.
//
// The key identifier is the first 8 bytes of certificate and is placed in
// the protected header next to the algorithm, which follows the key type:
// ECDSA P-256/P-384/P-521 use ES256/ES384/ES512, Ed25519 and Ed448 use EdDSA,
// RSA (2048 bits or more) uses PS256.
func Sign(certificate, privateKey, payload []byte) ([]byte, error) {
	kid, err := keys.KeyID(certificate)
	if err != nil {
		return nil, wrapError(KindKey, "HC1-KEY-001", "cose: derive key identifier", err)
	}
	signer, err := keys.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, wrapError(KindKey, "HC1-KEY-002", "cose: parse private key", err)
	}
	alg, err := algorithmFor(signer)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, newError(KindMalformed, "HC1-COSE-100", "cose: empty payload")
	}

	protected, err := envelopeEncMode.Marshal(protectedHeader{Alg: alg, KID: kid})
	if err != nil {
		return nil, wrapError(KindInternal, "HC1-INT-002", "cose: encode protected header", err)
	}
	tbs, err := sigStructureBytes(protected, payload)
	if err != nil {
		return nil, err
	}
	sig, err := signWith(signer, alg, tbs)
	if err != nil {
		return nil, wrapError(KindInternal, "HC1-INT-003", "cose: sign", err)
	}

	msg := sign1Message{
		Protected:   protected,
		Unprotected: map[any]any{},
		Payload:     payload,
		Signature:   sig,
	}
	out, err := envelopeEncMode.Marshal(cbor.Tag{Number: coseTagSign1, Content: msg})
	if err != nil {
		return nil, wrapError(KindInternal, "HC1-INT-002", "cose: encode envelope", err)
	}
	return out, nil
}

// Verify checks envelope against the public key of certificate and returns
// the embedded payload unchanged.
//
// No key selection happens here: certificate must be the one expected to
// match. Certificate problems fail with KindKey, structural problems with
// KindMalformed, and any signature or algorithm mismatch with KindVerification.
func Verify(certificate, envelope []byte) ([]byte, error) {
	pub, err := keys.CertificatePublicKey(certificate)
	if err != nil {
		return nil, wrapError(KindKey, "HC1-KEY-004", "cose: certificate public key", err)
	}
	msg, hdr, err := parseSign1(envelope)
	if err != nil {
		return nil, err
	}
	tbs, err := sigStructureBytes(msg.Protected, msg.Payload)
	if err != nil {
		return nil, err
	}
	if err := verifyWith(pub, hdr.Alg, tbs, msg.Signature); err != nil {
		return nil, err
	}
	return msg.Payload, nil
}

// Inspect parses envelope without verifying its signature.
func Inspect(envelope []byte) (*EnvelopeInfo, error) {
	msg, hdr, err := parseSign1(envelope)
	if err != nil {
		return nil, err
	}
	kid := hdr.KID
	if len(kid) == 0 {
		kid = hdr.LegacyKID
	}
	if len(kid) == 0 {
		kid = unprotectedKID(msg.Unprotected)
	}
	return &EnvelopeInfo{
		Algorithm: hdr.Alg,
		KeyID:     kid,
		Payload:   msg.Payload,
		Signature: msg.Signature,
	}, nil
}

// unprotectedKID finds the key identifier in an unprotected header, where
// some signers put it under label 4 or the text label "kid".
func unprotectedKID(h map[any]any) []byte {
	for _, label := range []any{uint64(4), int64(4), "kid"} {
		if kid, ok := h[label].([]byte); ok && len(kid) > 0 {
			return kid
		}
	}
	return nil
}

func parseSign1(envelope []byte) (*sign1Message, *protectedHeader, error) {
	if len(envelope) == 0 {
		return nil, nil, newError(KindMalformed, "HC1-COSE-101", "cose: empty envelope")
	}
	content := envelope
	if envelope[0]>>5 == 6 { // major type 6: tag
		var tag cbor.RawTag
		if err := envelopeDecMode.Unmarshal(envelope, &tag); err != nil {
			return nil, nil, wrapError(KindMalformed, "HC1-COSE-101", "cose: decode envelope tag", err)
		}
		if tag.Number != coseTagSign1 {
			return nil, nil, newError(KindMalformed, "HC1-COSE-102",
				fmt.Sprintf("cose: unexpected tag %d, want %d (COSE_Sign1)", tag.Number, coseTagSign1))
		}
		content = tag.Content
	}

	var msg sign1Message
	if err := envelopeDecMode.Unmarshal(content, &msg); err != nil {
		return nil, nil, wrapError(KindMalformed, "HC1-COSE-103", "cose: decode COSE_Sign1", err)
	}
	if len(msg.Protected) == 0 {
		return nil, nil, newError(KindMalformed, "HC1-COSE-104", "cose: empty protected header")
	}
	if len(msg.Payload) == 0 {
		return nil, nil, newError(KindMalformed, "HC1-COSE-105", "cose: missing payload")
	}
	if len(msg.Signature) == 0 {
		return nil, nil, newError(KindMalformed, "HC1-COSE-106", "cose: missing signature")
	}

	var hdr protectedHeader
	if err := envelopeDecMode.Unmarshal(msg.Protected, &hdr); err != nil {
		return nil, nil, wrapError(KindMalformed, "HC1-COSE-107", "cose: decode protected header", err)
	}
	if hdr.Alg == 0 {
		return nil, nil, newError(KindMalformed, "HC1-COSE-108", "cose: protected header has no algorithm")
	}
	if len(hdr.Crit) > 0 {
		return nil, nil, newError(KindMalformed, "HC1-COSE-109", "cose: critical header parameters are not supported")
	}
	return &msg, &hdr, nil
}

func sigStructureBytes(protected, payload []byte) ([]byte, error) {
	b, err := envelopeEncMode.Marshal(sigStructure{
		Context:       sigStructureSign1,
		BodyProtected: protected,
		ExternalAAD:   []byte{},
		Payload:       payload,
	})
	if err != nil {
		return nil, wrapError(KindInternal, "HC1-INT-002", "cose: encode Sig_structure", err)
	}
	return b, nil
}

func algorithmFor(signer crypto.Signer) (int64, error) {
	switch k := signer.(type) {
	case *ecdsa.PrivateKey:
		switch k.Curve.Params().BitSize {
		case 256:
			return AlgES256, nil
		case 384:
			return AlgES384, nil
		case 521:
			return AlgES512, nil
		}
		return 0, newError(KindKey, "HC1-KEY-003", "cose: unsupported ECDSA curve "+k.Curve.Params().Name)
	case ed25519.PrivateKey, ed448.PrivateKey:
		return AlgEdDSA, nil
	case *rsa.PrivateKey:
		if bits := k.N.BitLen(); bits < minRSAModulusBits {
			return 0, newError(KindKey, "HC1-KEY-003",
				fmt.Sprintf("cose: RSA key of %d bits is below the %d-bit minimum", bits, minRSAModulusBits))
		}
		return AlgPS256, nil
	default:
		return 0, newError(KindKey, "HC1-KEY-003", fmt.Sprintf("cose: unsupported private key type %T", signer))
	}
}

func digestFor(alg int64, message []byte) []byte {
	switch alg {
	case AlgES384:
		s := sha512.Sum384(message)
		return s[:]
	case AlgES512:
		s := sha512.Sum512(message)
		return s[:]
	default:
		s := sha256.Sum256(message)
		return s[:]
	}
}

func signWith(signer crypto.Signer, alg int64, tbs []byte) ([]byte, error) {
	switch k := signer.(type) {
	case *ecdsa.PrivateKey:
		r, s, err := ecdsa.Sign(rand.Reader, k, digestFor(alg, tbs))
		if err != nil {
			return nil, err
		}
		n := (k.Curve.Params().BitSize + 7) / 8
		sig := make([]byte, 2*n)
		r.FillBytes(sig[:n])
		s.FillBytes(sig[n:])
		return sig, nil
	case ed25519.PrivateKey:
		return ed25519.Sign(k, tbs), nil
	case ed448.PrivateKey:
		return ed448.Sign(k, tbs, ""), nil
	case *rsa.PrivateKey:
		return rsa.SignPSS(rand.Reader, k, crypto.SHA256, digestFor(alg, tbs),
			&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	default:
		return nil, fmt.Errorf("unsupported signer %T", signer)
	}
}

func verifyWith(pub crypto.PublicKey, alg int64, tbs, sig []byte) error {
	mismatch := func() error {
		return newError(KindVerification, "HC1-SIG-002",
			fmt.Sprintf("cose: algorithm %s does not match certificate key %T", AlgorithmName(alg), pub))
	}
	invalid := newError(KindVerification, "HC1-SIG-001", "cose: signature invalid")

	switch alg {
	case AlgES256, AlgES384, AlgES512:
		k, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return mismatch()
		}
		want := map[int64]int{AlgES256: 256, AlgES384: 384, AlgES512: 521}[alg]
		if k.Curve.Params().BitSize != want {
			return mismatch()
		}
		n := (want + 7) / 8
		if len(sig) != 2*n {
			return invalid
		}
		r := new(big.Int).SetBytes(sig[:n])
		s := new(big.Int).SetBytes(sig[n:])
		if !ecdsa.Verify(k, digestFor(alg, tbs), r, s) {
			return invalid
		}
		return nil
	case AlgEdDSA:
		switch k := pub.(type) {
		case ed25519.PublicKey:
			if len(sig) != ed25519.SignatureSize || !ed25519.Verify(k, tbs, sig) {
				return invalid
			}
			return nil
		case ed448.PublicKey:
			if len(sig) != ed448.SignatureSize || !ed448.Verify(k, tbs, sig, "") {
				return invalid
			}
			return nil
		default:
			return mismatch()
		}
	case AlgPS256:
		k, ok := pub.(*rsa.PublicKey)
		if !ok {
			return mismatch()
		}
		if err := rsa.VerifyPSS(k, crypto.SHA256, digestFor(alg, tbs), sig,
			&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}); err != nil {
			return invalid
		}
		return nil
	default:
		return newError(KindVerification, "HC1-SIG-003", "cose: unsupported algorithm "+AlgorithmName(alg))
	}
}
