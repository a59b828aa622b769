package keys

import (
	encoding_asn1 "encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/ed448"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// RFC 8410 id-Ed448.
var oidEd448 = encoding_asn1.ObjectIdentifier{1, 3, 101, 113}

var errNotEd448 = errors.New("keys: not an Ed448 key")

// parseEd448PKCS8 reads a OneAsymmetricKey whose algorithm is id-Ed448.
// Optional attributes and public key fields after the private key are ignored.
func parseEd448PKCS8(der []byte) (ed448.PrivateKey, error) {
	input := cryptobyte.String(der)
	var (
		pki     cryptobyte.String
		algID   cryptobyte.String
		version int64
		oid     encoding_asn1.ObjectIdentifier
	)
	if !input.ReadASN1(&pki, asn1.SEQUENCE) || !input.Empty() ||
		!pki.ReadASN1Integer(&version) ||
		!pki.ReadASN1(&algID, asn1.SEQUENCE) ||
		!algID.ReadASN1ObjectIdentifier(&oid) {
		return nil, errors.New("keys: malformed PKCS#8 private key")
	}
	if !oid.Equal(oidEd448) {
		return nil, errNotEd448
	}
	var wrapped, seed cryptobyte.String
	if !pki.ReadASN1(&wrapped, asn1.OCTET_STRING) ||
		!wrapped.ReadASN1(&seed, asn1.OCTET_STRING) || !wrapped.Empty() {
		return nil, errors.New("keys: malformed Ed448 private key")
	}
	if len(seed) != ed448.SeedSize {
		return nil, fmt.Errorf("keys: Ed448 seed must be %d bytes, got %d", ed448.SeedSize, len(seed))
	}
	return ed448.NewKeyFromSeed(seed), nil
}

// parseEd448SPKI reads a SubjectPublicKeyInfo whose algorithm is id-Ed448.
func parseEd448SPKI(der []byte) (ed448.PublicKey, error) {
	input := cryptobyte.String(der)
	var (
		spki  cryptobyte.String
		algID cryptobyte.String
		oid   encoding_asn1.ObjectIdentifier
		bits  encoding_asn1.BitString
	)
	if !input.ReadASN1(&spki, asn1.SEQUENCE) || !input.Empty() ||
		!spki.ReadASN1(&algID, asn1.SEQUENCE) ||
		!algID.ReadASN1ObjectIdentifier(&oid) {
		return nil, errors.New("keys: malformed subject public key info")
	}
	if !oid.Equal(oidEd448) {
		return nil, errNotEd448
	}
	if !spki.ReadASN1BitString(&bits) || !spki.Empty() || bits.BitLength%8 != 0 {
		return nil, errors.New("keys: malformed Ed448 public key")
	}
	if len(bits.Bytes) != ed448.PublicKeySize {
		return nil, fmt.Errorf("keys: Ed448 public key must be %d bytes, got %d", ed448.PublicKeySize, len(bits.Bytes))
	}
	return ed448.PublicKey(bits.Bytes), nil
}

// MarshalEd448PrivateKey encodes an Ed448 private key as a PKCS#8 "PRIVATE KEY" PEM block.
func MarshalEd448PrivateKey(key ed448.PrivateKey) ([]byte, error) {
	if len(key) != ed448.PrivateKeySize {
		return nil, fmt.Errorf("keys: Ed448 private key must be %d bytes, got %d", ed448.PrivateKeySize, len(key))
	}
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(0)
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oidEd448)
		})
		b.AddASN1(asn1.OCTET_STRING, func(b *cryptobyte.Builder) {
			b.AddASN1OctetString(key.Seed())
		})
	})
	der, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("keys: marshal Ed448 private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// MarshalEd448PublicKey encodes an Ed448 public key as DER SubjectPublicKeyInfo.
func MarshalEd448PublicKey(pub ed448.PublicKey) ([]byte, error) {
	if len(pub) != ed448.PublicKeySize {
		return nil, fmt.Errorf("keys: Ed448 public key must be %d bytes, got %d", ed448.PublicKeySize, len(pub))
	}
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oidEd448)
		})
		b.AddASN1BitString(pub)
	})
	der, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("keys: marshal Ed448 public key: %w", err)
	}
	return der, nil
}
