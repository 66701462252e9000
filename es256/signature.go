package es256

import (
	"math/big"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// SignatureSize is the size of r||s signature
const SignatureSize = 2 * ScalarSize

// ErrInvalidSignatureFormat is returned when a signature is not 64 bytes,
// or r or s is out of range
var ErrInvalidSignatureFormat = errors.New("invalid signature format")

// Signature is r||s, each 32 bytes big-endian zero-padded
type Signature [SignatureSize]byte

// SignatureFromBytes returns Signature from 64 bytes r||s
func SignatureFromBytes(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureSize {
		return sig, errors.Wrapf(ErrInvalidSignatureFormat, "invalid signature length: %d", len(b))
	}
	copy(sig[:], b)
	return sig, nil
}

// SignatureFromASN1 returns Signature from DER encoded ECDSA-Sig-Value,
// as returned by crypto.Signer. s is canonicalized to the lower half of the order.
func SignatureFromASN1(der []byte) (Signature, error) {
	var (
		sig   Signature
		r, s  = &big.Int{}, &big.Int{}
		inner cryptobyte.String
	)
	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(r) ||
		!inner.ReadASN1Integer(s) ||
		!inner.Empty() {
		return sig, errors.Wrap(ErrInvalidSignatureFormat, "unable to decode ECDSA signature")
	}
	if err := checkScalar("r", r); err != nil {
		return sig, err
	}
	if err := checkScalar("s", s); err != nil {
		return sig, err
	}
	if s.Cmp(halfN) > 0 {
		s.Sub(order, s)
	}

	// serialize r and s into big-endian byte arrays
	// padded with zeros on the left to make sure the sizes work out
	r.FillBytes(sig[:ScalarSize])
	s.FillBytes(sig[ScalarSize:])
	return sig, nil
}

// R returns r component
func (sig Signature) R() *big.Int {
	return new(big.Int).SetBytes(sig[:ScalarSize])
}

// S returns s component
func (sig Signature) S() *big.Int {
	return new(big.Int).SetBytes(sig[ScalarSize:])
}

// Bytes returns r||s
func (sig Signature) Bytes() []byte {
	return append([]byte(nil), sig[:]...)
}

// ASN1 returns DER encoded ECDSA-Sig-Value
func (sig Signature) ASN1() []byte {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(sig.R())
		b.AddASN1BigInt(sig.S())
	})
	return b.BytesOrPanic()
}

// IsLowS returns true if s is in the lower half of the group order
func (sig Signature) IsLowS() bool {
	return sig.S().Cmp(halfN) <= 0
}
