package hcertrpc

import (
	"context"
	"encoding/hex"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/M3kH/dgc/archive"
	"github.com/M3kH/dgc/hcert"
	"github.com/M3kH/dgc/keys"
)

// EnvelopeCIDHeader carries the archive CID of a freshly signed envelope.
const EnvelopeCIDHeader = "dgc-envelope-cid"

type Config struct {
	// Certificate is the issuer certificate (PEM or DER). Verify checks
	// tokens against it and Sign derives the key identifier from it.
	Certificate []byte

	// PrivateKey is the PEM signing key. Without it Sign is refused.
	PrivateKey []byte

	// Archive, when set, receives every envelope Sign produces.
	Archive *archive.Archive

	// Lenient drops the first four characters of tokens unchecked.
	Lenient bool

	Log *zap.Logger
}

// Server implements the certificate service over a single issuer.
type Server struct {
	UnimplementedCertificatesServer

	cfg Config
	log *zap.Logger
}

// NewServer checks that the configured key material parses before any
// request is served.
func NewServer(cfg Config) (*Server, error) {
	if len(cfg.Certificate) == 0 {
		return nil, errors.New("hcertrpc: certificate is required")
	}
	if _, err := keys.CertificatePublicKey(cfg.Certificate); err != nil {
		return nil, err
	}
	if len(cfg.PrivateKey) > 0 {
		if _, err := keys.ParsePrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, log: log}, nil
}

func (s *Server) Sign(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if len(s.cfg.PrivateKey) == 0 {
		return nil, toStatus(&hcert.Error{Kind: hcert.KindKey, RuleID: "HC1-RPC-001", Message: "server has no signing key"})
	}
	claims, err := hcert.ParseJSON(in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	token, envelope, err := hcert.Issue(claims, s.cfg.Certificate, s.cfg.PrivateKey)
	if err != nil {
		return nil, toStatus(err)
	}

	if s.cfg.Archive != nil {
		id, err := s.cfg.Archive.StoreEnvelope(envelope)
		if err != nil {
			// The token is still valid; archiving is best effort.
			s.log.Warn("archive envelope failed", zap.Error(err))
		} else {
			_ = grpc.SetHeader(ctx, metadata.Pairs(EnvelopeCIDHeader, id.String()))
			s.log.Debug("archived envelope", zap.String("cid", id.String()))
		}
	}
	return wrapperspb.String(token), nil
}

func (s *Server) Verify(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	decode := hcert.Decode
	if s.cfg.Lenient {
		decode = hcert.DecodeLenient
	}
	claims, err := decode(in.GetValue(), s.cfg.Certificate)
	if err != nil {
		s.log.Info("token rejected",
			zap.String("kind", string(hcert.KindOf(err))),
			zap.String("rule", hcert.RuleID(err)))
		return nil, toStatus(err)
	}
	out, err := hcert.FormatJSON(claims)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(out), nil
}

func (s *Server) Inspect(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	unpack := hcert.Unpack
	if s.cfg.Lenient {
		unpack = hcert.UnpackLenient
	}
	envelope, err := unpack(in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	info, err := hcert.Inspect(envelope)
	if err != nil {
		return nil, toStatus(err)
	}
	s.log.Debug("inspected token",
		zap.String("kid", hex.EncodeToString(info.KeyID)),
		zap.String("alg", info.AlgorithmName()))
	return wrapperspb.Bytes(info.KeyID), nil
}
