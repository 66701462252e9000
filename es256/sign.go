package es256

import (
	"crypto/rand"
	"crypto/sha256"
	"math/big"

	"github.com/cockroachdb/errors"
)

// Sign returns the signature of SHA-256 digest of the message.
// The nonce is derived from the key and the digest as in RFC 6979,
// and s is canonicalized to the lower half of the group order.
func Sign(key *PrivateKey, message []byte) (Signature, error) {
	digest := sha256.Sum256(message)
	return SignDigest(key, digest[:])
}

// SignDigest returns the signature of a SHA-256 digest
func SignDigest(key *PrivateKey, digest []byte) (Signature, error) {
	var sig Signature
	if key == nil || len(key.d) != ScalarSize {
		return sig, errors.Wrap(ErrInvalidKey, "private key is not available")
	}
	if len(digest) != sha256.Size {
		return sig, errors.Errorf("invalid digest size: %d", len(digest))
	}

	d := new(big.Int).SetBytes(key.d)
	e := hashToInt(digest)

	nonces := newNonceGenerator(key.d, digest)
	defer nonces.wipe()

	for {
		k := nonces.next()

		x, _ := curve.ScalarBaseMult(k.FillBytes(make([]byte, ScalarSize)))
		r := x.Mod(x, order)
		if r.Sign() == 0 {
			continue
		}

		kInv, err := invert(k)
		if err != nil {
			return sig, err
		}

		// s = k⁻¹(e + r·d) mod n
		s := new(big.Int).Mul(r, d)
		s.Add(s, e)
		s.Mul(s, kInv)
		s.Mod(s, order)
		if s.Sign() == 0 {
			continue
		}
		if s.Cmp(halfN) > 0 {
			s.Sub(order, s)
		}

		r.FillBytes(sig[:ScalarSize])
		s.FillBytes(sig[ScalarSize:])
		return sig, nil
	}
}

// invert returns k⁻¹ mod n. k is blinded with a random multiplier,
// so the timing of the inversion does not depend on k.
func invert(k *big.Int) (*big.Int, error) {
	b, err := rand.Int(rand.Reader, nMinus)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to generate blinding factor")
	}
	b.Add(b, one)

	kb := new(big.Int).Mul(k, b)
	kb.Mod(kb, order)
	inv := kb.ModInverse(kb, order)
	if inv == nil {
		return nil, errors.New("nonce is not invertible")
	}
	inv.Mul(inv, b)
	return inv.Mod(inv, order), nil
}

// Verify reports whether sig is a valid signature of the message by pub.
// ErrInvalidSignatureFormat is returned if r or s is not in [1, n-1].
// Both high and low s values are accepted.
func Verify(pub *PublicKey, message []byte, sig Signature) (bool, error) {
	digest := sha256.Sum256(message)
	return VerifyDigest(pub, digest[:], sig)
}

// VerifyStrict is like Verify, but also rejects signatures with s
// in the upper half of the group order
func VerifyStrict(pub *PublicKey, message []byte, sig Signature) (bool, error) {
	if sig.S().Cmp(halfN) > 0 {
		return false, errors.Wrap(ErrInvalidSignatureFormat, "s is not canonical")
	}
	return Verify(pub, message, sig)
}

// VerifyDigest reports whether sig is a valid signature of SHA-256 digest
func VerifyDigest(pub *PublicKey, digest []byte, sig Signature) (bool, error) {
	if pub == nil {
		return false, errors.Wrap(ErrInvalidKey, "public key is not available")
	}
	if len(digest) != sha256.Size {
		return false, errors.Errorf("invalid digest size: %d", len(digest))
	}

	r, s := sig.R(), sig.S()
	if err := checkScalar("r", r); err != nil {
		return false, err
	}
	if err := checkScalar("s", s); err != nil {
		return false, err
	}

	e := hashToInt(digest)
	w := new(big.Int).ModInverse(s, order)

	u1 := e.Mul(e, w)
	u1.Mod(u1, order)
	u2 := w.Mul(r, w)
	u2.Mod(u2, order)

	// deprecated elliptic arithmetic, see curve
	x1, y1 := curve.ScalarBaseMult(u1.FillBytes(make([]byte, ScalarSize)))
	x2, y2 := curve.ScalarMult(pub.x, pub.y, u2.FillBytes(make([]byte, ScalarSize)))
	x, y := curve.Add(x1, y1, x2, y2)
	if x.Sign() == 0 && y.Sign() == 0 {
		// point at infinity
		return false, nil
	}
	x.Mod(x, order)
	return x.Cmp(r) == 0, nil
}

func checkScalar(name string, v *big.Int) error {
	if v.Sign() == 0 || v.Cmp(order) >= 0 {
		return errors.Wrapf(ErrInvalidSignatureFormat, "%s is out of range", name)
	}
	return nil
}

// hashToInt converts SHA-256 digest to an integer mod n
func hashToInt(digest []byte) *big.Int {
	e := new(big.Int).SetBytes(digest)
	if e.Cmp(order) >= 0 {
		e.Sub(e, order)
	}
	return e
}
