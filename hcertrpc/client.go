package hcertrpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/M3kH/dgc/hcert"
)

// Client calls a remote certificate service. Errors carrying a pipeline
// status come back as *hcert.Error with the server's Kind and RuleID.
type Client struct {
	cc     *grpc.ClientConn
	client CertificatesClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

// SignResult is a token plus the archive CID, when the server archived it.
type SignResult struct {
	Token string
	CID   string
}

// Dial connects to target over plaintext.
func Dial(target string, timeout time.Duration) (*Client, error) {
	cc, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return NewClient(cc, timeout), nil
}

func NewClient(cc *grpc.ClientConn, timeout time.Duration) *Client {
	return &Client{cc: cc, client: NewCertificatesClient(cc), Timeout: timeout}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// Sign sends claims encoded as JSON and returns the signed token.
func (c *Client) Sign(ctx context.Context, claims any) (SignResult, error) {
	body, err := hcert.FormatJSON(claims)
	if err != nil {
		return SignResult{}, err
	}
	return c.SignJSON(ctx, body)
}

// SignJSON sends raw JSON claims as they are.
func (c *Client) SignJSON(ctx context.Context, claims []byte) (SignResult, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	var header metadata.MD
	reply, err := c.client.Sign(ctx, wrapperspb.Bytes(claims), grpc.Header(&header))
	if err != nil {
		return SignResult{}, fromStatus(err)
	}
	res := SignResult{Token: reply.GetValue()}
	if v := header.Get(EnvelopeCIDHeader); len(v) > 0 {
		res.CID = v[0]
	}
	return res, nil
}

// Verify returns the claims of token once the server has verified it.
func (c *Client) Verify(ctx context.Context, token string) (any, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Verify(ctx, wrapperspb.String(token))
	if err != nil {
		return nil, fromStatus(err)
	}
	return hcert.ParseJSON(reply.GetValue())
}

// Inspect returns the key identifier of token without verifying it.
func (c *Client) Inspect(ctx context.Context, token string) ([]byte, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Inspect(ctx, wrapperspb.String(token))
	if err != nil {
		return nil, fromStatus(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}
