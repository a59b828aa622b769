package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/M3kH/dgc/archive"
	"github.com/M3kH/dgc/cidutil"
	"github.com/M3kH/dgc/hcert"
	"github.com/M3kH/dgc/hcertrpc"
	"github.com/M3kH/dgc/internal/testcerts"
	"github.com/M3kH/dgc/storage"
	"github.com/M3kH/dgc/storage/grpccas"
	"github.com/M3kH/dgc/storage/localfs"
)

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("DGC_CERTIFICATE", "/env/cert.pem")
	t.Setenv("DGC_LISTEN", "0.0.0.0:9000")
	t.Setenv("DGC_LENIENT_PREFIX", "true")

	cfg, err := loadConfig([]string{"--listen", "127.0.0.1:1234", "--archive-dir", "/a", "--archive-dir", "/b"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1234", cfg.Listen)
	assert.Equal(t, "/env/cert.pem", cfg.Certificate)
	assert.True(t, cfg.LenientPrefix)
	assert.Equal(t, []string{"/a", "/b"}, cfg.ArchiveDirs)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 4<<20, cfg.MaxMsgBytes)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dgcd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("certificate: /etc/dgc/cert.pem\nlog-level: debug\n"), 0o600))

	cfg, err := loadConfig([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, "/etc/dgc/cert.pem", cfg.Certificate)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_RequiresCertificate(t *testing.T) {
	_, err := loadConfig(nil)
	assert.Error(t, err)

	_, err = loadConfig([]string{"--bogus"})
	assert.Error(t, err)
}

func TestRun_UsageErrors(t *testing.T) {
	assert.Equal(t, 2, run(context.Background(), nil, &nopWriter{}))
	assert.Equal(t, 0, run(context.Background(), []string{"--help"}, &nopWriter{}))
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestServe_EndToEnd(t *testing.T) {
	pair := testcerts.New(t, testcerts.P256)
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certPath, pair.Certificate, 0o600))
	require.NoError(t, os.WriteFile(keyPath, pair.PrivateKey, 0o600))
	archiveA, archiveB := filepath.Join(dir, "a"), filepath.Join(dir, "b")

	cfg := config{
		Certificate: certPath,
		PrivateKey:  keyPath,
		ArchiveDirs: []string{archiveA, archiveB},
		MaxMsgBytes: 1 << 20,
	}

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, lis, zap.NewNop()) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer cc.Close()

	certs := hcertrpc.NewClient(cc, 5*time.Second)
	claims := map[string]any{"name": "Alice", "age": int64(30)}
	res, err := certs.Sign(context.Background(), claims)
	require.NoError(t, err)
	require.NotEmpty(t, res.CID)

	got, err := certs.Verify(context.Background(), res.Token)
	require.NoError(t, err)
	assert.Equal(t, claims, got)

	// The envelope is served back by the archive service and replicated on disk.
	id, err := cidutil.Parse(res.CID)
	require.NoError(t, err)
	remote := archive.New(grpccas.NewClient(cc, 5*time.Second))
	token, err := remote.Load(id)
	require.NoError(t, err)
	assert.Equal(t, res.Token, token)

	for _, d := range []string{archiveA, archiveB} {
		cas, err := localfs.New(d)
		require.NoError(t, err)
		assert.True(t, cas.Has(id), d)
	}

	local, err := hcert.Decode(token, pair.Certificate)
	require.NoError(t, err)
	assert.Equal(t, claims, local)
}

func TestOpenStore(t *testing.T) {
	cas, err := openStore(nil)
	require.NoError(t, err)
	assert.NotNil(t, cas)

	cas, err = openStore([]string{t.TempDir(), t.TempDir()})
	require.NoError(t, err)
	_, ok := cas.(storage.ReplicatingCAS)
	assert.True(t, ok)
}
