// Package base64url implements the unpadded URL-safe base64 encoding used
// by the JWS compact serialization (RFC 7515, section 2).
package base64url

import (
	"encoding/base64"

	"github.com/cockroachdb/errors"
)

// ErrMalformedInput is returned when a string is not valid unpadded base64url
var ErrMalformedInput = errors.New("malformed input")

var strict = base64.RawURLEncoding.Strict()

// Encode returns base64url encoding of b with padding stripped
func Encode(b []byte) string {
	return strict.EncodeToString(b)
}

// Decode returns bytes decoded from unpadded base64url string.
// Padding, whitespace, characters outside of the URL-safe alphabet,
// and non-canonical trailing bits are rejected.
func Decode(s string) ([]byte, error) {
	for i := 0; i < len(s); i++ {
		if !isAlphabet(s[i]) {
			return nil, errors.Wrapf(ErrMalformedInput, "invalid base64url character %q at offset %d", s[i], i)
		}
	}
	if len(s)%4 == 1 {
		return nil, errors.Wrapf(ErrMalformedInput, "invalid base64url length %d", len(s))
	}

	b, err := strict.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedInput, "%s", err.Error())
	}
	return b, nil
}

// EncodedLen returns the length of encoding of n source bytes
func EncodedLen(n int) int {
	return strict.EncodedLen(n)
}

func isAlphabet(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_'
}
