package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/ed448"
)

// KeyIDSize is the number of leading certificate bytes used as the key identifier.
const KeyIDSize = 8

var (
	ErrNoPEMBlock     = errors.New("keys: no PEM block found")
	ErrUnsupportedKey = errors.New("keys: unsupported key type")
)

// KeyID returns the key identifier for a certificate: its first KeyIDSize
// bytes exactly as supplied (for PEM input that is the armor, not the DER).
func KeyID(certificate []byte) ([]byte, error) {
	if l := len(certificate); l < KeyIDSize {
		return nil, fmt.Errorf("keys: certificate must be at least %d bytes, got %d", KeyIDSize, l)
	}
	kid := make([]byte, KeyIDSize)
	copy(kid, certificate[:KeyIDSize])
	return kid, nil
}

// ParsePrivateKey parses the first private key block in PEM data.
//
// Supported blocks: "PRIVATE KEY" (PKCS#8: ECDSA, Ed25519, Ed448, RSA),
// "EC PRIVATE KEY" (SEC 1) and "RSA PRIVATE KEY" (PKCS#1). "EC PARAMETERS"
// blocks emitted by openssl ahead of the key are skipped.
func ParsePrivateKey(data []byte) (crypto.Signer, error) {
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, ErrNoPEMBlock
		}
		switch block.Type {
		case "EC PARAMETERS":
			continue
		case "PRIVATE KEY":
			return parsePKCS8(block.Bytes)
		case "EC PRIVATE KEY":
			k, err := x509.ParseECPrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("keys: parse EC private key: %w", err)
			}
			return k, nil
		case "RSA PRIVATE KEY":
			k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("keys: parse RSA private key: %w", err)
			}
			return k, nil
		case "ENCRYPTED PRIVATE KEY":
			return nil, fmt.Errorf("keys: encrypted private keys are not supported")
		default:
			return nil, fmt.Errorf("keys: unexpected PEM block %q", block.Type)
		}
	}
}

func parsePKCS8(der []byte) (crypto.Signer, error) {
	k, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		if edk, edErr := parseEd448PKCS8(der); edErr == nil {
			return edk, nil
		} else if !errors.Is(edErr, errNotEd448) {
			return nil, edErr
		}
		return nil, fmt.Errorf("keys: parse PKCS#8 private key: %w", err)
	}
	switch k := k.(type) {
	case *ecdsa.PrivateKey:
		return k, nil
	case ed25519.PrivateKey:
		return k, nil
	case *rsa.PrivateKey:
		return k, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, k)
	}
}

// ParseCertificate parses an X.509 certificate from PEM ("CERTIFICATE"
// block) or, when no PEM block is present, from raw DER.
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	der := data
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			der = block.Bytes
			break
		}
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("keys: parse certificate: %w", err)
	}
	return cert, nil
}

// PublicKey returns the certificate's public key as one of *ecdsa.PublicKey,
// ed25519.PublicKey, ed448.PublicKey or *rsa.PublicKey.
func PublicKey(cert *x509.Certificate) (crypto.PublicKey, error) {
	if cert == nil {
		return nil, errors.New("keys: nil certificate")
	}
	switch pub := cert.PublicKey.(type) {
	case *ecdsa.PublicKey, ed25519.PublicKey, *rsa.PublicKey:
		return pub, nil
	case nil:
		// x509 leaves PublicKey nil for algorithms it does not know.
		pub, err := parseEd448SPKI(cert.RawSubjectPublicKeyInfo)
		if err != nil {
			if errors.Is(err, errNotEd448) {
				return nil, ErrUnsupportedKey
			}
			return nil, err
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
}

// CertificatePublicKey parses certificate bytes and returns their public key.
func CertificatePublicKey(data []byte) (crypto.PublicKey, error) {
	cert, err := ParseCertificate(data)
	if err != nil {
		return nil, err
	}
	return PublicKey(cert)
}

var _ crypto.Signer = ed448.PrivateKey(nil)
