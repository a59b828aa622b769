package hcertrpc

import (
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/M3kH/dgc/hcert"
)

// toStatus maps a pipeline error onto a gRPC status. The RuleID travels as a
// StringValue detail so clients can rebuild the structured error.
func toStatus(err error) error {
	code := codes.Internal
	switch hcert.KindOf(err) {
	case hcert.KindMalformed, hcert.KindEncoding, hcert.KindCompression:
		code = codes.InvalidArgument
	case hcert.KindVerification:
		code = codes.PermissionDenied
	case hcert.KindKey:
		code = codes.FailedPrecondition
	}
	st := status.New(code, err.Error())
	if rule := hcert.RuleID(err); rule != "" {
		if withRule, derr := st.WithDetails(wrapperspb.String(rule)); derr == nil {
			st = withRule
		}
	}
	return st.Err()
}

// fromStatus rebuilds an *hcert.Error from a status produced by toStatus.
// Transport failures are returned unchanged.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var kind hcert.Kind
	switch st.Code() {
	case codes.InvalidArgument:
		kind = hcert.KindMalformed
	case codes.PermissionDenied:
		kind = hcert.KindVerification
	case codes.FailedPrecondition:
		kind = hcert.KindKey
	case codes.Internal:
		kind = hcert.KindInternal
	default:
		return err
	}
	rule := ""
	for _, d := range st.Details() {
		if s, ok := d.(*wrapperspb.StringValue); ok {
			rule = s.GetValue()
			break
		}
	}
	kind = refineKind(kind, rule)
	return &hcert.Error{Kind: kind, RuleID: rule, Message: st.Message(), Cause: err}
}

// refineKind recovers the stages that share InvalidArgument from the RuleID.
func refineKind(kind hcert.Kind, rule string) hcert.Kind {
	if kind != hcert.KindMalformed {
		return kind
	}
	switch {
	case strings.HasPrefix(rule, "HC1-B45-"), strings.HasPrefix(rule, "HC1-PREFIX-"):
		return hcert.KindEncoding
	case strings.HasPrefix(rule, "HC1-ZLIB-"):
		return hcert.KindCompression
	}
	return kind
}
