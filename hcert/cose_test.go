package hcert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M3kH/dgc/internal/testcerts"
	"github.com/M3kH/dgc/keys"
)

var testPayload = []byte{0xa1, 0x64, 'n', 'a', 'm', 'e', 0x65, 'A', 'l', 'i', 'c', 'e'}

func encodeMessage(t *testing.T, msg *sign1Message, tagged bool) []byte {
	t.Helper()
	var v any = msg
	if tagged {
		v = cbor.Tag{Number: coseTagSign1, Content: msg}
	}
	b, err := envelopeEncMode.Marshal(v)
	require.NoError(t, err)
	return b
}

// signRaw builds an envelope with an arbitrary protected header, signed by pair's key.
func signRaw(t *testing.T, pair testcerts.Pair, hdr any, payload []byte, tagged bool) []byte {
	t.Helper()
	return signRawWith(t, pair, hdr, map[any]any{}, payload, tagged)
}

func signRawWith(t *testing.T, pair testcerts.Pair, hdr any, unprotected map[any]any, payload []byte, tagged bool) []byte {
	t.Helper()
	signer, err := keys.ParsePrivateKey(pair.PrivateKey)
	require.NoError(t, err)
	alg, err := algorithmFor(signer)
	require.NoError(t, err)

	protected, err := envelopeEncMode.Marshal(hdr)
	require.NoError(t, err)
	tbs, err := sigStructureBytes(protected, payload)
	require.NoError(t, err)
	sig, err := signWith(signer, alg, tbs)
	require.NoError(t, err)
	return encodeMessage(t, &sign1Message{
		Protected:   protected,
		Unprotected: unprotected,
		Payload:     payload,
		Signature:   sig,
	}, tagged)
}

func TestSignVerify_Algorithms(t *testing.T) {
	cases := []struct {
		alg  testcerts.Algorithm
		want int64
	}{
		{testcerts.P256, AlgES256},
		{testcerts.P384, AlgES384},
		{testcerts.P521, AlgES512},
		{testcerts.Ed25519, AlgEdDSA},
		{testcerts.Ed448, AlgEdDSA},
		{testcerts.RSA2048, AlgPS256},
	}
	for _, tc := range cases {
		t.Run(string(tc.alg), func(t *testing.T) {
			pair := testcerts.New(t, tc.alg)

			env, err := Sign(pair.Certificate, pair.PrivateKey, testPayload)
			require.NoError(t, err)
			assert.Equal(t, byte(0xd2), env[0], "tag 18 (COSE_Sign1)")

			got, err := Verify(pair.Certificate, env)
			require.NoError(t, err)
			assert.Equal(t, testPayload, got)

			info, err := Inspect(env)
			require.NoError(t, err)
			assert.Equal(t, tc.want, info.Algorithm)
			assert.Equal(t, pair.Certificate[:8], info.KeyID)
			assert.Equal(t, testPayload, info.Payload)
		})
	}
}

func TestSign_KeyIDIsCertificatePrefix(t *testing.T) {
	pair := testcerts.New(t, testcerts.P256)

	env, err := Sign(pair.Certificate, pair.PrivateKey, testPayload)
	require.NoError(t, err)
	info, err := Inspect(env)
	require.NoError(t, err)
	assert.Equal(t, []byte("-----BEG"), info.KeyID)

	block, _ := pem.Decode(pair.Certificate)
	require.NotNil(t, block)
	env, err = Sign(block.Bytes, pair.PrivateKey, testPayload)
	require.NoError(t, err)
	info, err = Inspect(env)
	require.NoError(t, err)
	assert.Equal(t, block.Bytes[:8], info.KeyID)

	// DER certificates verify too.
	_, err = Verify(block.Bytes, env)
	require.NoError(t, err)
}

func TestVerify_DetectsTampering(t *testing.T) {
	pair := testcerts.New(t, testcerts.P256)
	env, err := Sign(pair.Certificate, pair.PrivateKey, testPayload)
	require.NoError(t, err)

	parse := func() *sign1Message {
		msg, _, err := parseSign1(env)
		require.NoError(t, err)
		return msg
	}

	t.Run("payload", func(t *testing.T) {
		msg := parse()
		msg.Payload = append([]byte(nil), msg.Payload...)
		msg.Payload[len(msg.Payload)-1] ^= 0x01
		_, err := Verify(pair.Certificate, encodeMessage(t, msg, true))
		require.Error(t, err)
		assert.True(t, IsKind(err, KindVerification))
		assert.Equal(t, "HC1-SIG-001", RuleID(err))
	})

	t.Run("protected header", func(t *testing.T) {
		msg := parse()
		protected, err := envelopeEncMode.Marshal(protectedHeader{Alg: AlgES256, KID: []byte("XXXXXXXX")})
		require.NoError(t, err)
		msg.Protected = protected
		_, err = Verify(pair.Certificate, encodeMessage(t, msg, true))
		require.Error(t, err)
		assert.Equal(t, "HC1-SIG-001", RuleID(err))
	})

	t.Run("signature", func(t *testing.T) {
		msg := parse()
		msg.Signature = append([]byte(nil), msg.Signature...)
		msg.Signature[0] ^= 0x80
		_, err := Verify(pair.Certificate, encodeMessage(t, msg, true))
		require.Error(t, err)
		assert.Equal(t, "HC1-SIG-001", RuleID(err))
	})

	t.Run("truncated signature", func(t *testing.T) {
		msg := parse()
		msg.Signature = msg.Signature[:len(msg.Signature)-1]
		_, err := Verify(pair.Certificate, encodeMessage(t, msg, true))
		require.Error(t, err)
		assert.Equal(t, "HC1-SIG-001", RuleID(err))
	})

	t.Run("unprotected header is not signed", func(t *testing.T) {
		msg := parse()
		msg.Unprotected = map[any]any{int64(4): []byte("other")}
		got, err := Verify(pair.Certificate, encodeMessage(t, msg, true))
		require.NoError(t, err)
		assert.Equal(t, testPayload, got)
	})
}

func TestVerify_WrongCertificate(t *testing.T) {
	signer := testcerts.New(t, testcerts.P256)
	env, err := Sign(signer.Certificate, signer.PrivateKey, testPayload)
	require.NoError(t, err)

	other := testcerts.New(t, testcerts.P256)
	_, err = Verify(other.Certificate, env)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindVerification))
	assert.Equal(t, "HC1-SIG-001", RuleID(err))

	for _, alg := range []testcerts.Algorithm{testcerts.P384, testcerts.Ed25519, testcerts.RSA2048} {
		other := testcerts.New(t, alg)
		_, err = Verify(other.Certificate, env)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindVerification))
		assert.Equal(t, "HC1-SIG-002", RuleID(err), "certificate %s", alg)
	}
}

func TestVerify_UntaggedAndLegacyKID(t *testing.T) {
	pair := testcerts.New(t, testcerts.Ed25519)
	env := signRaw(t, pair, protectedHeader{Alg: AlgEdDSA, LegacyKID: pair.Certificate[:8]}, testPayload, false)
	assert.Equal(t, byte(0x84), env[0], "untagged four-element array")

	got, err := Verify(pair.Certificate, env)
	require.NoError(t, err)
	assert.Equal(t, testPayload, got)

	info, err := Inspect(env)
	require.NoError(t, err)
	assert.Equal(t, pair.Certificate[:8], info.KeyID)
	assert.Equal(t, "EdDSA", info.AlgorithmName())
}

func TestInspect_KIDInUnprotectedHeader(t *testing.T) {
	pair := testcerts.New(t, testcerts.P256)
	kid := pair.Certificate[:8]

	cases := []struct {
		name        string
		unprotected map[any]any
	}{
		{"text label", map[any]any{"kid": kid}},
		{"label 4", map[any]any{4: kid}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := signRawWith(t, pair, protectedHeader{Alg: AlgES256}, tc.unprotected, testPayload, true)

			got, err := Verify(pair.Certificate, env)
			require.NoError(t, err)
			assert.Equal(t, testPayload, got)

			info, err := Inspect(env)
			require.NoError(t, err)
			assert.Equal(t, kid, info.KeyID)
			assert.Equal(t, "ES256", info.AlgorithmName())
		})
	}

	// The protected header wins when both carry a key identifier.
	env := signRawWith(t, pair, protectedHeader{Alg: AlgES256, KID: []byte("protectd")},
		map[any]any{"kid": kid}, testPayload, true)
	info, err := Inspect(env)
	require.NoError(t, err)
	assert.Equal(t, []byte("protectd"), info.KeyID)
}

func TestVerify_UnsupportedAlgorithm(t *testing.T) {
	pair := testcerts.New(t, testcerts.P256)
	env := signRaw(t, pair, protectedHeader{Alg: -999}, testPayload, true)

	_, err := Verify(pair.Certificate, env)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindVerification))
	assert.Equal(t, "HC1-SIG-003", RuleID(err))
}

func TestVerify_Malformed(t *testing.T) {
	pair := testcerts.New(t, testcerts.P256)
	good, err := Sign(pair.Certificate, pair.PrivateKey, testPayload)
	require.NoError(t, err)
	msg, _, err := parseSign1(good)
	require.NoError(t, err)

	wrongTag, err := envelopeEncMode.Marshal(cbor.Tag{Number: 98, Content: msg})
	require.NoError(t, err)
	threeElems, err := envelopeEncMode.Marshal([]any{msg.Protected, map[any]any{}, msg.Payload})
	require.NoError(t, err)
	nullPayload, err := envelopeEncMode.Marshal([]any{msg.Protected, map[any]any{}, nil, msg.Signature})
	require.NoError(t, err)
	protectedNotMap, err := envelopeEncMode.Marshal([]any{[]byte{0x01}, map[any]any{}, msg.Payload, msg.Signature})
	require.NoError(t, err)

	noAlg := signRaw(t, pair, map[any]any{int64(4): []byte("kid")}, testPayload, true)
	crit := signRaw(t, pair, protectedHeader{Alg: AlgES256, Crit: []any{int64(99)}}, testPayload, true)

	cases := []struct {
		name   string
		in     []byte
		ruleID string
	}{
		{"empty", nil, "HC1-COSE-101"},
		{"truncated", good[:len(good)/2], "HC1-COSE-101"},
		{"wrong tag", wrongTag, "HC1-COSE-102"},
		{"not an array", []byte{0xa0}, "HC1-COSE-103"},
		{"three elements", threeElems, "HC1-COSE-103"},
		{"null payload", nullPayload, "HC1-COSE-105"},
		{"protected header not a map", protectedNotMap, "HC1-COSE-107"},
		{"no algorithm", noAlg, "HC1-COSE-108"},
		{"critical headers", crit, "HC1-COSE-109"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Verify(pair.Certificate, tc.in)
			require.Error(t, err)
			assert.True(t, IsKind(err, KindMalformed), "kind: %v", err)
			assert.Equal(t, tc.ruleID, RuleID(err))
		})
	}
}

func TestSign_KeyErrors(t *testing.T) {
	pair := testcerts.New(t, testcerts.P256)

	_, err := Sign([]byte("short"), pair.PrivateKey, testPayload)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindKey))
	assert.Equal(t, "HC1-KEY-001", RuleID(err))

	_, err = Sign(pair.Certificate, []byte("not a key"), testPayload)
	require.Error(t, err)
	assert.Equal(t, "HC1-KEY-002", RuleID(err))

	_, err = Sign(pair.Certificate, pair.Certificate, testPayload)
	require.Error(t, err)
	assert.Equal(t, "HC1-KEY-002", RuleID(err))

	weak, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	_, err = Sign(pair.Certificate, pemPKCS8(t, weak), testPayload)
	require.Error(t, err)
	assert.Equal(t, "HC1-KEY-003", RuleID(err))

	p224, err := ecdsa.GenerateKey(elliptic.P224(), rand.Reader)
	require.NoError(t, err)
	_, err = Sign(pair.Certificate, pemPKCS8(t, p224), testPayload)
	require.Error(t, err)
	assert.Equal(t, "HC1-KEY-003", RuleID(err))

	_, err = Sign(pair.Certificate, pair.PrivateKey, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindMalformed))
	assert.Equal(t, "HC1-COSE-100", RuleID(err))

	env, err := Sign(pair.Certificate, pair.PrivateKey, testPayload)
	require.NoError(t, err)
	_, err = Verify([]byte("-----BEGIN CERTIFICATE-----\ngarbage\n"), env)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindKey))
	assert.Equal(t, "HC1-KEY-004", RuleID(err))
}

func pemPKCS8(t *testing.T, key any) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}
