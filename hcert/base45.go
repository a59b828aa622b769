package hcert

import (
	"fmt"
	"strings"
)

// base45Alphabet is the RFC 9285 alphabet: the QR alphanumeric-mode character set.
const base45Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ $%*+-./:"

var base45Index = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(base45Alphabet); i++ {
		idx[base45Alphabet[i]] = int8(i)
	}
	return idx
}()

// EncodeBase45 encodes data with the 45-symbol alphabet.
//
// Every 2 bytes n = a*256 + b become 3 characters c, d, e with
// n = c + 45*d + 2025*e. A trailing odd byte becomes 2 characters.
func EncodeBase45(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data)/2*3 + len(data)%2*2)
	for i := 0; i+1 < len(data); i += 2 {
		n := int(data[i])<<8 | int(data[i+1])
		sb.WriteByte(base45Alphabet[n%45])
		sb.WriteByte(base45Alphabet[(n/45)%45])
		sb.WriteByte(base45Alphabet[n/2025])
	}
	if len(data)%2 == 1 {
		n := int(data[len(data)-1])
		sb.WriteByte(base45Alphabet[n%45])
		sb.WriteByte(base45Alphabet[n/45])
	}
	return sb.String()
}

// DecodeBase45 is the exact inverse of EncodeBase45.
//
// It fails with KindEncoding when len(s) mod 3 == 1, when a character is not
// in the alphabet, or when a group decodes to a value that does not fit its
// byte width (3 characters > 65535, 2 characters > 255).
func DecodeBase45(s string) ([]byte, error) {
	if len(s)%3 == 1 {
		return nil, newError(KindEncoding, "HC1-B45-001",
			fmt.Sprintf("base45: invalid length %d (mod 3 == 1)", len(s)))
	}
	out := make([]byte, 0, len(s)/3*2+len(s)%3/2)
	for i := 0; i < len(s); i += 3 {
		end := i + 3
		if end > len(s) {
			end = len(s)
		}
		n := 0
		mul := 1
		for j := i; j < end; j++ {
			d := base45Index[s[j]]
			if d < 0 {
				return nil, newError(KindEncoding, "HC1-B45-002",
					fmt.Sprintf("base45: invalid character %q at offset %d", s[j], j))
			}
			n += int(d) * mul
			mul *= 45
		}
		if end-i == 3 {
			if n > 0xffff {
				return nil, newError(KindEncoding, "HC1-B45-003",
					fmt.Sprintf("base45: group at offset %d decodes to %d, above 65535", i, n))
			}
			out = append(out, byte(n>>8), byte(n))
			continue
		}
		if n > 0xff {
			return nil, newError(KindEncoding, "HC1-B45-003",
				fmt.Sprintf("base45: final group at offset %d decodes to %d, above 255", i, n))
		}
		out = append(out, byte(n))
	}
	return out, nil
}
