package grpccas

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/M3kH/dgc/cidutil"
	"github.com/M3kH/dgc/storage"
)

// Server exposes a storage.CAS as the envelope archive service.
type Server struct {
	UnimplementedEnvelopesServer
	CAS storage.CAS
}

func (s *Server) Put(_ context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, storage.ErrNoBackends.Error())
	}
	envelope := in.GetValue()
	if len(envelope) == 0 {
		return nil, status.Error(codes.InvalidArgument, "empty envelope")
	}
	id, err := s.CAS.Put(envelope)
	if err != nil {
		return nil, toStatus(err)
	}
	// The backend must agree with the CID derived from the bytes received.
	if !cidutil.Matches(id, envelope) {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, storage.ErrNoBackends.Error())
	}
	id, err := cidutil.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	envelope, err := s.CAS.Get(id)
	if err != nil {
		return nil, toStatus(err)
	}
	if !cidutil.Matches(id, envelope) {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.Bytes(envelope), nil
}

func (s *Server) Has(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, storage.ErrNoBackends.Error())
	}
	id, err := cidutil.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	return wrapperspb.Bool(s.CAS.Has(id)), nil
}
