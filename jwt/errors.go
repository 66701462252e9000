package jwt

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjwt/canonical"
	"github.com/effective-security/xjwt/es256"
)

var (
	// ErrMalformedInput is returned when a segment is not valid base64url,
	// or its content is not valid JSON
	ErrMalformedInput = errors.New("malformed input")
	// ErrSerialization is returned when claims can not be serialized
	ErrSerialization = canonical.ErrSerialization
	// ErrUnsupportedAlgorithm is returned when algorithm is not ES256
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	// ErrMalformedToken is returned when token does not have three segments
	ErrMalformedToken = errors.New("malformed token")
	// ErrSignatureVerification is returned when signature does not match
	ErrSignatureVerification = errors.New("signature verification failed")
	// ErrInvalidSignatureFormat is returned when signature is not 64 bytes,
	// or r and s are out of range
	ErrInvalidSignatureFormat = es256.ErrInvalidSignatureFormat
)

func malformed(err error, segment string) error {
	return errors.Mark(errors.WithMessagef(err, "invalid %s", segment), ErrMalformedInput)
}
