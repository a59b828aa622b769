// Package keys parses the PEM key and certificate material used to sign and
// verify HC1 envelopes.
//
// crypto/x509 covers ECDSA, Ed25519 and RSA. Ed448 keys, which x509 does not
// understand, are read from their PKCS#8 and SubjectPublicKeyInfo encodings
// directly.
package keys
