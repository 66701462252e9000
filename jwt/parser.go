package jwt

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjwt/canonical"
	"github.com/effective-security/xjwt/es256"
)

// DecodeAndVerify returns the claims of the token if its signature is valid
// for the public key. Claims are not validated.
func DecodeAndVerify(token string, pub *es256.PublicKey) (*canonical.Object, error) {
	t, err := ParseUnverified(token)
	if err != nil {
		return nil, err
	}
	if err = t.Verify(pub); err != nil {
		return nil, err
	}
	return t.Claims, nil
}

// ParseUnverified parses the token but doesn't validate the signature. It's only
// ever useful in cases where you know the signature is valid (because it has
// been checked previously in the stack), or to find the verification key by "kid".
// WARNING: Don't use this method unless you know what you're doing
func ParseUnverified(token string) (*Token, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.Wrapf(ErrMalformedToken, "expected 3 segments, got %d", len(parts))
	}

	t := &Token{
		Raw:          token,
		SigningInput: token[:len(parts[0])+1+len(parts[1])],
	}

	rawHeader, err := DecodeSegment(parts[0])
	if err != nil {
		return nil, malformed(err, "header")
	}
	rawClaims, err := DecodeSegment(parts[1])
	if err != nil {
		return nil, malformed(err, "claims")
	}

	if t.Headers, err = canonical.ParseObject(rawHeader); err != nil {
		return nil, malformed(err, "header")
	}
	if t.Claims, err = canonical.ParseObject(rawClaims); err != nil {
		return nil, malformed(err, "claims")
	}

	alg, ok := t.Headers.Get("alg")
	if !ok {
		return nil, errors.Wrap(ErrUnsupportedAlgorithm, "missing alg header")
	}
	algName, ok := alg.(canonical.String)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "alg header must be string, got %s", alg.Kind())
	}
	if t.Header.Algorithm, err = ParseAlgorithm(string(algName)); err != nil {
		return nil, err
	}
	t.Header.Type = t.Headers.GetString("typ")
	t.Header.KeyID = t.Headers.GetString("kid")

	rawSig, err := DecodeSegment(parts[2])
	if err != nil {
		return nil, malformed(err, "signature")
	}
	if t.Signature, err = es256.SignatureFromBytes(rawSig); err != nil {
		return nil, err
	}
	return t, nil
}
