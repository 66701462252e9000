package jwt

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjwt/base64url"
	"github.com/effective-security/xjwt/canonical"
	"github.com/effective-security/xjwt/es256"
)

// Algorithm is JWS "alg" header value
type Algorithm string

// ES256 is ECDSA using P-256 and SHA-256
const ES256 Algorithm = "ES256"

// TokenType is the default "typ" header value
const TokenType = "JWT"

// ParseAlgorithm returns Algorithm, or ErrUnsupportedAlgorithm
func ParseAlgorithm(s string) (Algorithm, error) {
	if Algorithm(s) != ES256 {
		return "", errors.Wrapf(ErrUnsupportedAlgorithm, "%q", s)
	}
	return ES256, nil
}

// String returns algorithm name
func (a Algorithm) String() string {
	return string(a)
}

// Header is JOSE header
type Header struct {
	Algorithm Algorithm
	Type      string
	KeyID     string
}

// Object returns the header as ordered object:
// "alg" and "typ", followed by "kid" if set
func (h *Header) Object() *canonical.Object {
	o := canonical.NewObject().
		Set("alg", canonical.String(h.Algorithm)).
		Set("typ", canonical.String(h.Type))
	if h.KeyID != "" {
		o.Set("kid", canonical.String(h.KeyID))
	}
	return o
}

// Token for JWT
type Token struct {
	// Raw is the token as parsed
	Raw string
	// Header is the parsed first segment
	Header Header
	// Headers contains all members of the first segment
	Headers *canonical.Object
	// Claims is the parsed second segment
	Claims *canonical.Object
	// Signature is the decoded third segment
	Signature es256.Signature
	// SigningInput is the first two segments joined with ".",
	// exactly as they appeared in the token
	SigningInput string
}

// Verify returns nil if the token signature is valid for the key
func (t *Token) Verify(pub *es256.PublicKey) error {
	return VerifySignature(t.Header.Algorithm, t.SigningInput, t.Signature, pub)
}

// DecodeSegment JWT specific base64url decoding with padding stripped
func DecodeSegment(seg string) ([]byte, error) {
	return base64url.Decode(seg)
}

// EncodeSegment returns JWT specific base64url encoding with padding stripped
func EncodeSegment(seg []byte) string {
	return base64url.Encode(seg)
}
