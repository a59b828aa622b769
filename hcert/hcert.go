// Package hcert encodes and verifies HC1 health certificate tokens.
//
// A token is the scheme prefix "HC1:" followed by
//
//	base45(zlib(COSE_Sign1(CBOR(claims))))
//
// Encode runs the stages in that order and Decode reverses them. Every stage
// returns a *Error whose Kind names the stage that failed; Decode never
// returns claims whose signature did not verify.
//
// All functions are stateless and safe for concurrent use.
package hcert

import (
	"fmt"
	"strings"
)

// Prefix is the scheme tag that starts every token.
const Prefix = "HC1:"

// Encode serializes claims, signs them with privateKey, and returns a token.
// certificate supplies the key identifier only; it is not parsed.
func Encode(claims any, certificate, privateKey []byte) (string, error) {
	token, _, err := Issue(claims, certificate, privateKey)
	return token, err
}

// Issue is Encode that also returns the signed envelope inside the token.
// Claims that Decode could not read back are refused before signing or packing.
func Issue(claims any, certificate, privateKey []byte) (token string, envelope []byte, err error) {
	payload, err := MarshalClaims(claims)
	if err != nil {
		return "", nil, err
	}
	envelope, err = Sign(certificate, privateKey, payload)
	if err != nil {
		return "", nil, err
	}
	token, err = Pack(envelope)
	if err != nil {
		return "", nil, err
	}
	return token, envelope, nil
}

// Decode verifies token against certificate and returns its claims.
// The token must start with Prefix.
func Decode(token string, certificate []byte) (any, error) {
	envelope, err := Unpack(token)
	if err != nil {
		return nil, err
	}
	return open(envelope, certificate)
}

// DecodeLenient is Decode without the prefix check: the first four
// characters are dropped whatever they are.
func DecodeLenient(token string, certificate []byte) (any, error) {
	envelope, err := UnpackLenient(token)
	if err != nil {
		return nil, err
	}
	return open(envelope, certificate)
}

// VerifyEnvelope verifies a raw COSE_Sign1 envelope and decodes its claims.
func VerifyEnvelope(envelope, certificate []byte) (any, error) {
	return open(envelope, certificate)
}

func open(envelope, certificate []byte) (any, error) {
	payload, err := Verify(certificate, envelope)
	if err != nil {
		return nil, err
	}
	return UnmarshalClaims(payload)
}

// Pack compresses a signed envelope and renders it as a prefixed token.
// Envelopes larger than MaxDecompressedSize are refused since Unpack would
// reject them.
func Pack(envelope []byte) (string, error) {
	if len(envelope) > MaxDecompressedSize {
		return "", newError(KindMalformed, "HC1-SIZE-001",
			fmt.Sprintf("envelope of %d bytes exceeds %d", len(envelope), MaxDecompressedSize))
	}
	compressed, err := Compress(envelope)
	if err != nil {
		return "", err
	}
	return Prefix + EncodeBase45(compressed), nil
}

// Unpack checks the prefix and recovers the envelope bytes from token.
// The envelope is not verified.
func Unpack(token string) ([]byte, error) {
	if !strings.HasPrefix(token, Prefix) {
		return nil, newError(KindEncoding, "HC1-PREFIX-001",
			fmt.Sprintf("token does not start with %q", Prefix))
	}
	return unpackText(token[len(Prefix):])
}

// UnpackLenient is Unpack without the prefix check.
func UnpackLenient(token string) ([]byte, error) {
	if len(token) < len(Prefix) {
		return nil, newError(KindEncoding, "HC1-PREFIX-002",
			fmt.Sprintf("token shorter than the %d-character prefix", len(Prefix)))
	}
	return unpackText(token[len(Prefix):])
}

func unpackText(text string) ([]byte, error) {
	compressed, err := DecodeBase45(text)
	if err != nil {
		return nil, err
	}
	return Decompress(compressed)
}
