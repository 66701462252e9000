package awskms

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/x509"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjwt/metricskey"
	"github.com/effective-security/xlog"
)

// Signer implements crypto.Signer interface
type Signer struct {
	keyID     string
	pubKey    *ecdsa.PublicKey
	kmsClient KmsClient
}

// NewSigner creates new signer for ECC_NIST_P256 key
// that supports ECDSA_SHA_256 signing algorithm
func NewSigner(ctx context.Context, kmsClient KmsClient, keyID string) (*Signer, error) {
	defer metricskey.PerfCryptoOperation.MeasureSince(time.Now(), ProviderName, "getkey")

	resp, err := kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: &keyID,
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to get public key")
	}

	if resp.KeySpec != types.KeySpecEccNistP256 {
		return nil, errors.Errorf("unsupported key spec: %s", resp.KeySpec)
	}
	if resp.KeyUsage != "" && resp.KeyUsage != types.KeyUsageTypeSignVerify {
		return nil, errors.Errorf("unsupported key usage: %s", resp.KeyUsage)
	}
	if !slices.Contains(resp.SigningAlgorithms, types.SigningAlgorithmSpecEcdsaSha256) {
		return nil, errors.Errorf("key does not support %s", types.SigningAlgorithmSpecEcdsaSha256)
	}

	pub, err := x509.ParsePKIXPublicKey(resp.PublicKey)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to parse public key")
	}
	ecpub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.Errorf("public key not supported: %T", pub)
	}

	logger.KV(xlog.DEBUG, "id", keyID, "spec", resp.KeySpec)
	return &Signer{
		keyID:     keyID,
		pubKey:    ecpub,
		kmsClient: kmsClient,
	}, nil
}

// KeyID returns key id of the signer
func (s *Signer) KeyID() string {
	return s.keyID
}

// Public returns public key for the signer
func (s *Signer) Public() crypto.PublicKey {
	return s.pubKey
}

func (s *Signer) String() string {
	return fmt.Sprintf("provider=%s, id=%s", ProviderName, s.keyID)
}

// Sign implements signing operation.
// The digest must be SHA-256, the signature is ASN.1 encoded.
func (s *Signer) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	defer metricskey.PerfCryptoOperation.MeasureSince(time.Now(), ProviderName, "sign")

	if opts == nil || opts.HashFunc() != crypto.SHA256 {
		return nil, errors.Errorf("unsupported hash: %v", opts)
	}
	if len(digest) != crypto.SHA256.Size() {
		return nil, errors.Errorf("invalid digest size: %d", len(digest))
	}

	req := &kms.SignInput{
		KeyId:            &s.keyID,
		Message:          digest,
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
	}
	resp, err := s.kmsClient.Sign(context.Background(), req)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to sign")
	}
	return resp.Signature, nil
}
