package es256

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/subtle"
	"io"
	"math/big"

	"github.com/cockroachdb/errors"
)

// ScalarSize is the size of P-256 scalars and coordinates in bytes
const ScalarSize = 32

// ErrInvalidKey is returned when key material is not a valid P-256 key
var ErrInvalidKey = errors.New("invalid key")

var (
	// ScalarBaseMult, ScalarMult and Add are deprecated, but crypto/ecdsa and
	// crypto/ecdh have no point arithmetic with a caller supplied nonce.
	curve  = elliptic.P256()
	order  = curve.Params().N
	halfN  = new(big.Int).Rsh(order, 1)
	one    = big.NewInt(1)
	nMinus = new(big.Int).Sub(order, one)
)

// PublicKey is a point on P-256
type PublicKey struct {
	x, y *big.Int
}

// PrivateKey holds the private scalar d, and the derived public point
type PrivateKey struct {
	d   []byte
	pub *PublicKey
}

// NewPublicKey returns PublicKey from big-endian affine coordinates
func NewPublicKey(x, y []byte) (*PublicKey, error) {
	if len(x) > ScalarSize || len(y) > ScalarSize {
		return nil, errors.Wrap(ErrInvalidKey, "coordinate too long")
	}
	return newPublicKey(new(big.Int).SetBytes(x), new(big.Int).SetBytes(y))
}

func newPublicKey(x, y *big.Int) (*PublicKey, error) {
	if x.Sign() == 0 && y.Sign() == 0 {
		return nil, errors.Wrap(ErrInvalidKey, "point at infinity")
	}
	if !curve.IsOnCurve(x, y) {
		return nil, errors.Wrap(ErrInvalidKey, "point is not on P-256")
	}
	return &PublicKey{x: x, y: y}, nil
}

// ParsePublicKey returns PublicKey from uncompressed SEC 1 encoding
func ParsePublicKey(b []byte) (*PublicKey, error) {
	if len(b) != 1+2*ScalarSize || b[0] != 4 {
		return nil, errors.Wrap(ErrInvalidKey, "invalid uncompressed point")
	}
	return NewPublicKey(b[1:1+ScalarSize], b[1+ScalarSize:])
}

// PublicKeyFromECDSA returns PublicKey from *ecdsa.PublicKey
func PublicKeyFromECDSA(pub *ecdsa.PublicKey) (*PublicKey, error) {
	if pub == nil || pub.Curve == nil || pub.X == nil || pub.Y == nil {
		return nil, errors.Wrap(ErrInvalidKey, "empty public key")
	}
	if pub.Curve.Params().Name != curve.Params().Name {
		return nil, errors.Wrapf(ErrInvalidKey, "unsupported curve: %s", pub.Curve.Params().Name)
	}
	return newPublicKey(new(big.Int).Set(pub.X), new(big.Int).Set(pub.Y))
}

// X returns 32 bytes big-endian X coordinate
func (k *PublicKey) X() []byte {
	return k.x.FillBytes(make([]byte, ScalarSize))
}

// Y returns 32 bytes big-endian Y coordinate
func (k *PublicKey) Y() []byte {
	return k.y.FillBytes(make([]byte, ScalarSize))
}

// Bytes returns uncompressed SEC 1 encoding of the point
func (k *PublicKey) Bytes() []byte {
	b := make([]byte, 1+2*ScalarSize)
	b[0] = 4
	k.x.FillBytes(b[1 : 1+ScalarSize])
	k.y.FillBytes(b[1+ScalarSize:])
	return b
}

// Equal returns true if both keys are the same point
func (k *PublicKey) Equal(other *PublicKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	return k.x.Cmp(other.x) == 0 && k.y.Cmp(other.y) == 0
}

// ECDSA returns the key as *ecdsa.PublicKey
func (k *PublicKey) ECDSA() *ecdsa.PublicKey {
	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).Set(k.x),
		Y:     new(big.Int).Set(k.y),
	}
}

// NewPrivateKey returns PrivateKey from 32 bytes big-endian scalar d,
// where 1 <= d < n. The scalar is copied.
func NewPrivateKey(d []byte) (*PrivateKey, error) {
	if len(d) != ScalarSize {
		return nil, errors.Wrapf(ErrInvalidKey, "invalid scalar size: %d", len(d))
	}
	di := new(big.Int).SetBytes(d)
	if di.Sign() == 0 || di.Cmp(order) >= 0 {
		return nil, errors.Wrap(ErrInvalidKey, "scalar out of range")
	}

	x, y := curve.ScalarBaseMult(d)
	pub, err := newPublicKey(x, y)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{
		d:   append([]byte(nil), d...),
		pub: pub,
	}, nil
}

// PrivateKeyFromECDSA returns PrivateKey from *ecdsa.PrivateKey
func PrivateKeyFromECDSA(priv *ecdsa.PrivateKey) (*PrivateKey, error) {
	if priv == nil || priv.D == nil {
		return nil, errors.Wrap(ErrInvalidKey, "empty private key")
	}
	if priv.Curve == nil {
		return nil, errors.Wrap(ErrInvalidKey, "unsupported curve")
	}
	if name := priv.Curve.Params().Name; name != curve.Params().Name {
		return nil, errors.Wrapf(ErrInvalidKey, "unsupported curve: %s", name)
	}
	if priv.D.BitLen() > 8*ScalarSize {
		return nil, errors.Wrap(ErrInvalidKey, "scalar out of range")
	}
	d := priv.D.FillBytes(make([]byte, ScalarSize))
	defer clear(d)
	return NewPrivateKey(d)
}

// GenerateKey returns a new random PrivateKey
func GenerateKey(rand io.Reader) (*PrivateKey, error) {
	k, err := ecdsa.GenerateKey(curve, rand)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return PrivateKeyFromECDSA(k)
}

// Public returns the public key
func (k *PrivateKey) Public() *PublicKey {
	return k.pub
}

// Bytes returns a copy of 32 bytes big-endian scalar d
func (k *PrivateKey) Bytes() []byte {
	return append([]byte(nil), k.d...)
}

// Equal returns true if both keys hold the same scalar
func (k *PrivateKey) Equal(other *PrivateKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	return subtle.ConstantTimeCompare(k.d, other.d) == 1
}

// ECDSA returns the key as *ecdsa.PrivateKey
func (k *PrivateKey) ECDSA() *ecdsa.PrivateKey {
	return &ecdsa.PrivateKey{
		PublicKey: *k.pub.ECDSA(),
		D:         new(big.Int).SetBytes(k.d),
	}
}

// Zeroize wipes the private scalar, the key can not be used after
func (k *PrivateKey) Zeroize() {
	clear(k.d)
	k.d = nil
}

// String returns the public part only, the scalar is never printed
func (k *PrivateKey) String() string {
	return "es256.PrivateKey{pub:" + k.pub.String() + "}"
}

// GoString is used by %#v, and never prints the scalar
func (k *PrivateKey) GoString() string {
	return k.String()
}

func (k *PublicKey) String() string {
	return "(" + k.x.Text(16) + "," + k.y.Text(16) + ")"
}
