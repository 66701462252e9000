package es256

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"

	"github.com/cockroachdb/errors"
)

// MessageSigner produces ES256 signatures of messages
type MessageSigner interface {
	// Public returns the verification key
	Public() *PublicKey
	// SignMessage returns the signature of SHA-256 digest of the message
	SignMessage(message []byte) (Signature, error)
}

// SignMessage implements MessageSigner
func (k *PrivateKey) SignMessage(message []byte) (Signature, error) {
	return Sign(k, message)
}

type cryptoSigner struct {
	signer crypto.Signer
	pub    *PublicKey
}

// NewCryptoSigner returns MessageSigner for a P-256 crypto.Signer,
// such as a key stored in HSM or KMS. The signer receives SHA-256 digest
// and must return ASN.1 encoded signature; the result is converted to r||s
// with s in the lower half of the group order.
func NewCryptoSigner(s crypto.Signer) (MessageSigner, error) {
	if s == nil {
		return nil, errors.Wrap(ErrInvalidKey, "signer is not provided")
	}
	ecpub, ok := s.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidKey, "public key not supported: %T", s.Public())
	}
	pub, err := PublicKeyFromECDSA(ecpub)
	if err != nil {
		return nil, err
	}
	return &cryptoSigner{
		signer: s,
		pub:    pub,
	}, nil
}

// Public implements MessageSigner
func (s *cryptoSigner) Public() *PublicKey {
	return s.pub
}

// SignMessage implements MessageSigner
func (s *cryptoSigner) SignMessage(message []byte) (Signature, error) {
	digest := sha256.Sum256(message)
	der, err := s.signer.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		return Signature{}, errors.WithMessage(err, "unable to sign")
	}
	return SignatureFromASN1(der)
}
