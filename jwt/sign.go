package jwt

/*
MIT License.

Copyright 2022 Denis Issoupov

Permission is hereby granted, free of charge, to any person obtaining
a copy of this software and associated documentation files (the
"Software"), to deal in the Software without restriction, including
without limitation the rights to use, copy, modify, merge, publish,
distribute, sublicense, and/or sell copies of the Software, and to
permit persons to whom the Software is furnished to do so, subject to
the following conditions:

The above copyright notice and this permission notice shall be
included in all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE
LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION
OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION
WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*/

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjwt/canonical"
	"github.com/effective-security/xjwt/es256"
)

// EncodeOption is an option for token encoding
type EncodeOption func(*encodeOptions)

type encodeOptions struct {
	kid       string
	asciiOnly bool
}

// WithKeyID adds "kid" to the token header
func WithKeyID(kid string) EncodeOption {
	return func(o *encodeOptions) {
		o.kid = kid
	}
}

// WithASCIIOnly escapes non-ASCII characters in header and claims
// as \uXXXX sequences
func WithASCIIOnly() EncodeOption {
	return func(o *encodeOptions) {
		o.asciiOnly = true
	}
}

// Encode returns compact token for the claims signed with the private key.
// The same claims and key always produce the same token.
func Encode(claims *canonical.Object, key *es256.PrivateKey, alg Algorithm) (string, error) {
	if key == nil {
		return "", errors.Wrap(es256.ErrInvalidKey, "private key is not provided")
	}
	return EncodeWithSigner(claims, key, alg)
}

// EncodeWithSigner returns compact token for the claims signed by the signer
func EncodeWithSigner(claims *canonical.Object, signer es256.MessageSigner, alg Algorithm, opts ...EncodeOption) (string, error) {
	if _, err := ParseAlgorithm(string(alg)); err != nil {
		return "", err
	}
	if claims == nil {
		return "", errors.Wrap(ErrSerialization, "claims are not provided")
	}
	if signer == nil {
		return "", errors.Wrap(es256.ErrInvalidKey, "signer is not provided")
	}

	var o encodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	signingInput, err := signingInput(&Header{
		Algorithm: alg,
		Type:      TokenType,
		KeyID:     o.kid,
	}, claims, o.asciiOnly)
	if err != nil {
		return "", err
	}

	sig, err := signer.SignMessage([]byte(signingInput))
	if err != nil {
		return "", errors.WithMessage(err, "unable to sign")
	}
	return signingInput + "." + EncodeSegment(sig.Bytes()), nil
}

func signingInput(h *Header, claims *canonical.Object, asciiOnly bool) (string, error) {
	var opts []canonical.Option
	if asciiOnly {
		opts = append(opts, canonical.WithASCIIOnly())
	}

	jsonHeader, err := canonical.Marshal(h.Object(), opts...)
	if err != nil {
		return "", errors.WithMessage(err, "header")
	}
	jsonClaims, err := canonical.Marshal(claims, opts...)
	if err != nil {
		return "", errors.WithMessage(err, "claims")
	}
	return EncodeSegment(jsonHeader) + "." + EncodeSegment(jsonClaims), nil
}

// VerifySignature returns nil if the signature is valid for the signing input
func VerifySignature(alg Algorithm, signingInput string, sig es256.Signature, pub *es256.PublicKey) error {
	if _, err := ParseAlgorithm(string(alg)); err != nil {
		return err
	}
	ok, err := es256.Verify(pub, []byte(signingInput), sig)
	if err != nil {
		return err
	}
	if !ok {
		return errors.WithStack(ErrSignatureVerification)
	}
	return nil
}
