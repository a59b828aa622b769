// Package testcerts generates throwaway signing keys and self-signed
// certificates for tests.
package testcerts

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	encoding_asn1 "encoding/asn1"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/cloudflare/circl/sign/ed448"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/M3kH/dgc/keys"
)

// Algorithm selects the key type of a generated pair.
type Algorithm string

const (
	P256    Algorithm = "P-256"
	P384    Algorithm = "P-384"
	P521    Algorithm = "P-521"
	Ed25519 Algorithm = "Ed25519"
	Ed448   Algorithm = "Ed448"
	RSA2048 Algorithm = "RSA-2048"
)

// Pair is a PEM certificate and the PEM private key that matches it.
type Pair struct {
	Certificate []byte
	PrivateKey  []byte
}

// New returns a fresh self-signed pair for alg. It fails the test on error.
func New(t testing.TB, alg Algorithm) Pair {
	t.Helper()
	if alg == Ed448 {
		return newEd448(t)
	}

	var signer crypto.Signer
	var err error
	switch alg {
	case P256:
		signer, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case P384:
		signer, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case P521:
		signer, err = ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	case Ed25519:
		_, signer, err = ed25519.GenerateKey(rand.Reader)
	case RSA2048:
		signer, err = rsa.GenerateKey(rand.Reader, 2048)
	default:
		t.Fatalf("testcerts: unknown algorithm %q", alg)
	}
	if err != nil {
		t.Fatalf("testcerts: generate %s key: %v", alg, err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "dgc test " + string(alg)},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, signer.Public(), signer)
	if err != nil {
		t.Fatalf("testcerts: create %s certificate: %v", alg, err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(signer)
	if err != nil {
		t.Fatalf("testcerts: marshal %s key: %v", alg, err)
	}
	return Pair{
		Certificate: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		PrivateKey:  pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
	}
}

// newEd448 builds the certificate by hand since crypto/x509 cannot emit
// Ed448 subject keys. The certificate is issued by a throwaway P-256 key.
func newEd448(t testing.TB) Pair {
	t.Helper()
	pub, priv, err := ed448.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("testcerts: generate Ed448 key: %v", err)
	}
	spki, err := keys.MarshalEd448PublicKey(pub)
	if err != nil {
		t.Fatalf("testcerts: %v", err)
	}
	issuer, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("testcerts: generate issuer key: %v", err)
	}

	ecdsaWithSHA256 := encoding_asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	commonName := encoding_asn1.ObjectIdentifier{2, 5, 4, 3}
	addAlgID := func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(ecdsaWithSHA256)
		})
	}
	addName := func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1(asn1.SET, func(b *cryptobyte.Builder) {
				b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
					b.AddASN1ObjectIdentifier(commonName)
					b.AddASN1(asn1.UTF8String, func(b *cryptobyte.Builder) {
						b.AddBytes([]byte("dgc test Ed448"))
					})
				})
			})
		})
	}

	var tbs cryptobyte.Builder
	tbs.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(1)
		addAlgID(b)
		addName(b)
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1UTCTime(time.Now().Add(-time.Hour).UTC().Truncate(time.Second))
			b.AddASN1UTCTime(time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second))
		})
		addName(b)
		b.AddBytes(spki)
	})
	tbsDER, err := tbs.Bytes()
	if err != nil {
		t.Fatalf("testcerts: build Ed448 tbsCertificate: %v", err)
	}
	digest := sha256.Sum256(tbsDER)
	sig, err := ecdsa.SignASN1(rand.Reader, issuer, digest[:])
	if err != nil {
		t.Fatalf("testcerts: sign Ed448 certificate: %v", err)
	}

	var cert cryptobyte.Builder
	cert.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddBytes(tbsDER)
		addAlgID(b)
		b.AddASN1BitString(sig)
	})
	der, err := cert.Bytes()
	if err != nil {
		t.Fatalf("testcerts: build Ed448 certificate: %v", err)
	}
	keyPEM, err := keys.MarshalEd448PrivateKey(priv)
	if err != nil {
		t.Fatalf("testcerts: %v", err)
	}
	return Pair{
		Certificate: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		PrivateKey:  keyPEM,
	}
}
