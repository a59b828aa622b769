package hcertrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Service dgc.hcert.v1.Certificates:
//
//	rpc Sign(google.protobuf.BytesValue) returns (google.protobuf.StringValue);    // JSON claims -> token
//	rpc Verify(google.protobuf.StringValue) returns (google.protobuf.BytesValue);  // token -> JSON claims
//	rpc Inspect(google.protobuf.StringValue) returns (google.protobuf.BytesValue); // token -> kid
const serviceName = "dgc.hcert.v1.Certificates"

const (
	methodSign    = "/" + serviceName + "/Sign"
	methodVerify  = "/" + serviceName + "/Verify"
	methodInspect = "/" + serviceName + "/Inspect"
)

// CertificatesServer is the server API for the certificate service.
type CertificatesServer interface {
	Sign(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	Verify(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Inspect(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
}

type UnimplementedCertificatesServer struct{}

func (UnimplementedCertificatesServer) Sign(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Sign not implemented")
}
func (UnimplementedCertificatesServer) Verify(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Verify not implemented")
}
func (UnimplementedCertificatesServer) Inspect(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Inspect not implemented")
}

func RegisterCertificatesServer(s grpc.ServiceRegistrar, srv CertificatesServer) {
	s.RegisterService(&Certificates_ServiceDesc, srv)
}

// CertificatesClient is the raw client API for the certificate service.
type CertificatesClient interface {
	Sign(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Verify(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Inspect(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type certificatesClient struct{ cc grpc.ClientConnInterface }

func NewCertificatesClient(cc grpc.ClientConnInterface) CertificatesClient {
	return &certificatesClient{cc: cc}
}

func (c *certificatesClient) Sign(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, methodSign, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *certificatesClient) Verify(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodVerify, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *certificatesClient) Inspect(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodInspect, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _Certificates_Sign_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CertificatesServer).Sign(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSign}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CertificatesServer).Sign(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Certificates_Verify_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CertificatesServer).Verify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodVerify}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CertificatesServer).Verify(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Certificates_Inspect_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CertificatesServer).Inspect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodInspect}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CertificatesServer).Inspect(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var Certificates_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CertificatesServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Sign", Handler: _Certificates_Sign_Handler},
		{MethodName: "Verify", Handler: _Certificates_Verify_Handler},
		{MethodName: "Inspect", Handler: _Certificates_Inspect_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dgc/hcert/v1/certificates.proto",
}
