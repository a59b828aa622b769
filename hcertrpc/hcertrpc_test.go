package hcertrpc

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/M3kH/dgc/archive"
	"github.com/M3kH/dgc/cidutil"
	"github.com/M3kH/dgc/hcert"
	"github.com/M3kH/dgc/internal/testcerts"
	"github.com/M3kH/dgc/keys"
	"github.com/M3kH/dgc/storage/memory"
)

func claims() map[string]any {
	return map[string]any{
		"1": "DE",
		"4": int64(1735689600),
		"-260": map[string]any{
			"1": map[string]any{
				"dob": "1964-08-12",
				"v":   []any{map[string]any{"dn": int64(2), "sd": int64(2), "mp": "EU/1/20/1528"}},
			},
		},
	}
}

func start(t *testing.T, cfg Config, opts ...grpc.ServerOption) *Client {
	t.Helper()
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(opts...)
	RegisterCertificatesServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	client := NewClient(cc, 5*time.Second)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestService_SignVerifyInspect(t *testing.T) {
	pair := testcerts.New(t, testcerts.P256)
	client := start(t, Config{Certificate: pair.Certificate, PrivateKey: pair.PrivateKey})
	ctx := context.Background()

	res, err := client.Sign(ctx, claims())
	require.NoError(t, err)
	assert.True(t, len(res.Token) > len(hcert.Prefix))
	assert.Empty(t, res.CID)

	// The token must verify locally too.
	local, err := hcert.Decode(res.Token, pair.Certificate)
	require.NoError(t, err)
	assert.Equal(t, claims(), local)

	got, err := client.Verify(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, claims(), got)

	kid, err := client.Inspect(ctx, res.Token)
	require.NoError(t, err)
	want, err := keys.KeyID(pair.Certificate)
	require.NoError(t, err)
	assert.Equal(t, want, kid)
}

func TestService_ArchivesSignedEnvelopes(t *testing.T) {
	pair := testcerts.New(t, testcerts.Ed25519)
	cas := memory.New()
	client := start(t, Config{
		Certificate: pair.Certificate,
		PrivateKey:  pair.PrivateKey,
		Archive:     archive.New(cas),
	})

	res, err := client.Sign(context.Background(), claims())
	require.NoError(t, err)
	require.NotEmpty(t, res.CID)

	id, err := cidutil.Parse(res.CID)
	require.NoError(t, err)
	assert.True(t, cas.Has(id))

	token, err := archive.New(cas).Load(id)
	require.NoError(t, err)
	assert.Equal(t, res.Token, token)
}

func TestService_ErrorKindsSurvive(t *testing.T) {
	issuer := testcerts.New(t, testcerts.P384)
	other := testcerts.New(t, testcerts.P384)
	client := start(t, Config{Certificate: issuer.Certificate, PrivateKey: issuer.PrivateKey})
	ctx := context.Background()

	foreign, err := hcert.Encode(claims(), other.Certificate, other.PrivateKey)
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
		kind  hcert.Kind
		code  codes.Code
	}{
		{"wrong signer", foreign, hcert.KindVerification, codes.PermissionDenied},
		{"missing prefix", "NCF" + foreign[4:], hcert.KindEncoding, codes.InvalidArgument},
		{"bad base45", "HC1:~~~", hcert.KindEncoding, codes.InvalidArgument},
		{"bad zlib", "HC1:" + hcert.EncodeBase45([]byte("not zlib")), hcert.KindCompression, codes.InvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Verify(ctx, tc.token)
			require.Error(t, err)
			assert.True(t, hcert.IsKind(err, tc.kind), "got kind %q", hcert.KindOf(err))
			assert.NotEmpty(t, hcert.RuleID(err))
			assert.Equal(t, tc.code, status.Code(errorsCause(err)))
		})
	}

	_, err = client.SignJSON(ctx, []byte(`{"1":`))
	assert.True(t, hcert.IsKind(err, hcert.KindMalformed))
	assert.Equal(t, "HC1-JSON-001", hcert.RuleID(err))
}

func TestService_VerifyOnlyServer(t *testing.T) {
	pair := testcerts.New(t, testcerts.P256)
	client := start(t, Config{Certificate: pair.Certificate})

	_, err := client.Sign(context.Background(), claims())
	assert.True(t, hcert.IsKind(err, hcert.KindKey))
	assert.Equal(t, "HC1-RPC-001", hcert.RuleID(err))
}

func TestService_Lenient(t *testing.T) {
	pair := testcerts.New(t, testcerts.Ed448)
	client := start(t, Config{Certificate: pair.Certificate, Lenient: true})

	token, err := hcert.Encode(claims(), pair.Certificate, pair.PrivateKey)
	require.NoError(t, err)

	got, err := client.Verify(context.Background(), "XY1:"+token[4:])
	require.NoError(t, err)
	assert.Equal(t, claims(), got)
}

func TestNewServer_RejectsBadKeyMaterial(t *testing.T) {
	pair := testcerts.New(t, testcerts.P256)

	_, err := NewServer(Config{})
	assert.Error(t, err)
	_, err = NewServer(Config{Certificate: []byte("garbage")})
	assert.Error(t, err)
	_, err = NewServer(Config{Certificate: pair.Certificate, PrivateKey: []byte("garbage")})
	assert.Error(t, err)
}

func TestUnaryLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	pair := testcerts.New(t, testcerts.P256)
	client := start(t,
		Config{Certificate: pair.Certificate, PrivateKey: pair.PrivateKey},
		grpc.UnaryInterceptor(UnaryLogger(zap.New(core))),
	)
	ctx := context.Background()

	res, err := client.Sign(ctx, claims())
	require.NoError(t, err)
	_, err = client.Verify(ctx, res.Token[:len(res.Token)-3])
	require.Error(t, err)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "rpc", entries[0].Message)
	assert.Equal(t, methodSign, entries[0].ContextMap()["method"])
	assert.Equal(t, "rpc failed", entries[1].Message)
	assert.Equal(t, methodVerify, entries[1].ContextMap()["method"])
}

func errorsCause(err error) error {
	var e *hcert.Error
	if errors.As(err, &e) {
		return e.Cause
	}
	return err
}

func TestService_SignRefusesClaimsVerifyCannotRead(t *testing.T) {
	pair := testcerts.New(t, testcerts.P256)
	client := start(t, Config{Certificate: pair.Certificate, PrivateKey: pair.PrivateKey})
	ctx := context.Background()

	// 64 levels of nesting is the most a token may carry.
	ok := strings.Repeat("[", 64) + "1" + strings.Repeat("]", 64)
	res, err := client.SignJSON(ctx, []byte(ok))
	require.NoError(t, err)
	_, err = client.Verify(ctx, res.Token)
	require.NoError(t, err)

	tooDeep := "[" + ok + "]"
	_, err = client.SignJSON(ctx, []byte(tooDeep))
	require.Error(t, err)
	assert.True(t, hcert.IsKind(err, hcert.KindMalformed))
	assert.Equal(t, "HC1-CBOR-103", hcert.RuleID(err))
	assert.Equal(t, codes.InvalidArgument, status.Code(errorsCause(err)))
}
