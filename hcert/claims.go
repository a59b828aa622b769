package hcert

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

// Limits shared by MarshalClaims and UnmarshalClaims, so anything that
// encodes also decodes.
const (
	// maxClaimsDepth is the deepest container nesting; the outermost container is level 1.
	maxClaimsDepth = 64
	// maxClaimsElements bounds the items of one array and the pairs of one map.
	maxClaimsElements = 131072
)

var (
	claimsEncMode cbor.EncMode
	claimsDecMode cbor.DecMode
)

func init() {
	var err error
	claimsEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	claimsDecMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels:  maxClaimsDepth,
		MaxArrayElements: maxClaimsElements,
		MaxMapPairs:      maxClaimsElements,
		DefaultMapType:   reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// MarshalClaims serializes a structured value to CBOR.
//
// Accepted values are map[string]any, []any, string, bool, nil, Go integer
// and float types, and json.Number. Integers are written as CBOR integers and
// floats as CBOR floats so the distinction survives a round trip.
func MarshalClaims(v any) ([]byte, error) {
	norm, err := normalizeClaims(v, 0)
	if err != nil {
		return nil, err
	}
	b, err := claimsEncMode.Marshal(norm)
	if err != nil {
		return nil, wrapError(KindMalformed, "HC1-CBOR-101", "cbor: encode claims", err)
	}
	return b, nil
}

// UnmarshalClaims decodes CBOR produced by MarshalClaims (or any encoder
// emitting the same data model).
//
// Integers come back as int64, or uint64 when above math.MaxInt64. Floats come
// back as float64. Byte strings, tags, simple values and non-string map keys
// are rejected since they have no place in the claim data model.
func UnmarshalClaims(b []byte) (any, error) {
	if len(b) == 0 {
		return nil, newError(KindMalformed, "HC1-CBOR-102", "cbor: empty claims")
	}
	var v any
	if err := claimsDecMode.Unmarshal(b, &v); err != nil {
		return nil, wrapError(KindMalformed, "HC1-CBOR-102", "cbor: decode claims", err)
	}
	return fromCBOR(v)
}

// normalizeClaims converts v to the claim data model. depth counts the
// containers enclosing v.
func normalizeClaims(v any, depth int) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, float64, float32:
		return x, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return x, nil
	case json.Number:
		return parseNumber(x)
	case map[string]any:
		if err := checkContainer(depth, len(x)); err != nil {
			return nil, err
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			n, err := normalizeClaims(e, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []any:
		if err := checkContainer(depth, len(x)); err != nil {
			return nil, err
		}
		out := make([]any, len(x))
		for i, e := range x {
			n, err := normalizeClaims(e, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, newError(KindMalformed, "HC1-CBOR-104", fmt.Sprintf("cbor: unsupported claim value type %T", v))
	}
}

func checkContainer(depth, size int) error {
	if depth >= maxClaimsDepth {
		return newError(KindMalformed, "HC1-CBOR-103",
			fmt.Sprintf("cbor: claims nested deeper than %d levels", maxClaimsDepth))
	}
	if size > maxClaimsElements {
		return newError(KindMalformed, "HC1-CBOR-106",
			fmt.Sprintf("cbor: container holds %d items, limit is %d", size, maxClaimsElements))
	}
	return nil
}

func parseNumber(n json.Number) (any, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	if u, err := strconv.ParseUint(string(n), 10, 64); err == nil {
		return u, nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, wrapError(KindMalformed, "HC1-CBOR-104", fmt.Sprintf("cbor: invalid number %q", string(n)), err)
	}
	return f, nil
}

func fromCBOR(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, int64, float64:
		return x, nil
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x), nil
		}
		return x, nil
	case map[string]any:
		for k, e := range x {
			n, err := fromCBOR(e)
			if err != nil {
				return nil, err
			}
			x[k] = n
		}
		return x, nil
	case []any:
		for i, e := range x {
			n, err := fromCBOR(e)
			if err != nil {
				return nil, err
			}
			x[i] = n
		}
		return x, nil
	default:
		return nil, newError(KindMalformed, "HC1-CBOR-105", fmt.Sprintf("cbor: unsupported item of type %T in claims", v))
	}
}

// ParseJSON parses JSON text into a structured value accepted by MarshalClaims.
// Numbers without a fraction or exponent become int64 (or uint64); all others float64.
func ParseJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, wrapError(KindMalformed, "HC1-JSON-001", "json: parse claims", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, newError(KindMalformed, "HC1-JSON-002", "json: trailing data after claims")
	}
	return normalizeClaims(v, 0)
}

// FormatJSON renders a structured value as compact JSON text.
func FormatJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, wrapError(KindMalformed, "HC1-JSON-003", "json: format claims", err)
	}
	return b, nil
}
