package hcert

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Each Kind names the pipeline stage that rejected the input. Callers should
// branch on Kind/RuleID rather than matching error strings.
type Kind string

const (
	// KindMalformed reports structurally invalid CBOR claims or COSE envelopes.
	KindMalformed Kind = "MalformedInput"
	// KindKey reports unparsable or unsupported key/certificate material.
	KindKey Kind = "Key"
	// KindCompression reports corrupt or truncated zlib streams.
	KindCompression Kind = "Compression"
	// KindEncoding reports invalid base45 text or a missing scheme prefix.
	KindEncoding Kind = "Encoding"
	// KindVerification reports a signature that does not verify.
	KindVerification Kind = "Verification"
	// KindInternal reports encode-side failures that are not the caller's fault.
	KindInternal Kind = "Internal"
)

// Error is the library's structured error type.
//
// RuleID is a stable identifier (e.g., HC1-B45-002, HC1-SIG-001) naming the
// check that failed. Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

func wrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return newError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of a structured error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
