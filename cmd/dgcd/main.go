// Command dgcd serves HC1 signing and verification over gRPC, together with
// the archive of envelopes it has signed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/M3kH/dgc/archive"
	"github.com/M3kH/dgc/hcertrpc"
	"github.com/M3kH/dgc/internal/logger"
	"github.com/M3kH/dgc/storage"
	"github.com/M3kH/dgc/storage/grpccas"
	"github.com/M3kH/dgc/storage/localfs"
	"github.com/M3kH/dgc/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, errOut io.Writer) int {
	cfg, err := loadConfig(args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		log.Error("listen failed", zap.String("addr", cfg.Listen), zap.Error(err))
		return 1
	}
	if err := serve(ctx, cfg, lis, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		return 1
	}
	return 0
}

// serve runs the gRPC server on lis until ctx is cancelled.
func serve(ctx context.Context, cfg config, lis net.Listener, log *zap.Logger) error {
	cert, err := os.ReadFile(cfg.Certificate)
	if err != nil {
		return err
	}
	var key []byte
	if cfg.PrivateKey != "" {
		if key, err = os.ReadFile(cfg.PrivateKey); err != nil {
			return err
		}
	}

	cas, err := openStore(cfg.ArchiveDirs)
	if err != nil {
		return err
	}
	svc, err := hcertrpc.NewServer(hcertrpc.Config{
		Certificate: cert,
		PrivateKey:  key,
		Archive:     archive.New(cas),
		Lenient:     cfg.LenientPrefix,
		Log:         log,
	})
	if err != nil {
		return err
	}

	s := grpc.NewServer(
		grpc.UnaryInterceptor(hcertrpc.UnaryLogger(log)),
		grpc.MaxRecvMsgSize(cfg.MaxMsgBytes),
		grpc.MaxSendMsgSize(cfg.MaxMsgBytes),
	)
	hcertrpc.RegisterCertificatesServer(s, svc)
	grpccas.RegisterEnvelopesServer(s, &grpccas.Server{CAS: cas})

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	log.Info("dgcd listening",
		zap.String("addr", lis.Addr().String()),
		zap.Bool("signing", len(key) > 0),
		zap.Strings("archive", cfg.ArchiveDirs))
	if err := s.Serve(lis); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func openStore(dirs []string) (storage.CAS, error) {
	if len(dirs) == 0 {
		return memory.New(), nil
	}
	backends := make([]storage.NamedCAS, 0, len(dirs))
	for _, dir := range dirs {
		cas, err := localfs.New(dir)
		if err != nil {
			return nil, err
		}
		backends = append(backends, storage.NamedCAS{Name: dir, CAS: cas})
	}
	if len(backends) == 1 {
		return backends[0].CAS, nil
	}
	return storage.ReplicatingCAS{Backends: backends}, nil
}
