// Package gcpkms provides ES256 signing with Google Cloud KMS EC_SIGN_P256_SHA256 keys
package gcpkms

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/cockroachdb/errors"
	xkms "github.com/effective-security/xjwt/kms"
	"github.com/effective-security/xjwt/metricskey"
	"github.com/effective-security/xlog"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xjwt", "gcpkms")

// ProviderName specifies a provider name
const ProviderName = "GCPKMS"

func init() {
	_ = xkms.Register(ProviderName, Loader)
}

// KeyManagementClient interface
type KeyManagementClient interface {
	GetPublicKey(ctx context.Context, req *kmspb.GetPublicKeyRequest, opts ...gax.CallOption) (*kmspb.PublicKey, error)
	AsymmetricSign(ctx context.Context, req *kmspb.AsymmetricSignRequest, opts ...gax.CallOption) (*kmspb.AsymmetricSignResponse, error)
}

// KmsClientFactory override for unittest
var KmsClientFactory = func(ctx context.Context, opts ...option.ClientOption) (KeyManagementClient, error) {
	return kms.NewKeyManagementClient(ctx, opts...)
}

// Loader returns signer for the configured key version resource name.
// Supported attributes are Endpoint and CredentialsFile.
func Loader(ctx context.Context, cfg *xkms.Config) (crypto.Signer, error) {
	attrs := xkms.ParseAttributes(cfg.Attributes)

	var opts []option.ClientOption
	if endpoint := attrs["Endpoint"]; endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	if file := attrs["CredentialsFile"]; file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}

	client, err := KmsClientFactory(ctx, opts...)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to create KMS client")
	}
	return NewSigner(ctx, client, cfg.KeyID)
}

// Signer implements crypto.Signer interface
type Signer struct {
	keyName   string
	pubKey    *ecdsa.PublicKey
	kmsClient KeyManagementClient
}

// NewSigner creates new signer for EC_SIGN_P256_SHA256 key version,
// the name has the form of
// projects/*/locations/*/keyRings/*/cryptoKeys/*/cryptoKeyVersions/*
func NewSigner(ctx context.Context, kmsClient KeyManagementClient, keyName string) (*Signer, error) {
	defer metricskey.PerfCryptoOperation.MeasureSince(time.Now(), ProviderName, "getkey")

	resp, err := kmsClient.GetPublicKey(ctx, &kmspb.GetPublicKeyRequest{
		Name: keyName,
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to get public key")
	}
	if resp.Algorithm != kmspb.CryptoKeyVersion_EC_SIGN_P256_SHA256 {
		return nil, errors.Errorf("unsupported key algorithm: %s", resp.Algorithm)
	}
	if resp.PemCrc32C != nil && int64(crc32c([]byte(resp.Pem))) != resp.PemCrc32C.Value {
		return nil, errors.New("public key response corrupted in-transit")
	}

	block, _ := pem.Decode([]byte(resp.Pem))
	if block == nil {
		return nil, errors.New("public key must be PEM encoded")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to parse public key")
	}
	ecpub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.Errorf("public key not supported: %T", pub)
	}

	logger.KV(xlog.DEBUG, "name", keyName, "algorithm", resp.Algorithm.String())
	return &Signer{
		keyName:   keyName,
		pubKey:    ecpub,
		kmsClient: kmsClient,
	}, nil
}

// KeyID returns key version name of the signer
func (s *Signer) KeyID() string {
	return s.keyName
}

// Public returns public key for the signer
func (s *Signer) Public() crypto.PublicKey {
	return s.pubKey
}

func (s *Signer) String() string {
	return fmt.Sprintf("provider=%s, id=%s", ProviderName, s.keyName)
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

	req := &kmspb.AsymmetricSignRequest{
		Name: s.keyName,
		Digest: &kmspb.Digest{
			Digest: &kmspb.Digest_Sha256{
				Sha256: digest,
			},
		},
		DigestCrc32C: wrapperspb.Int64(int64(crc32c(digest))),
	}
	resp, err := s.kmsClient.AsymmetricSign(context.Background(), req)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to sign")
	}

	// https://cloud.google.com/kms/docs/data-integrity-guidelines
	if !resp.VerifiedDigestCrc32C {
		return nil, errors.New("sign request corrupted in-transit")
	}
	if resp.Name != "" && resp.Name != s.keyName {
		return nil, errors.Errorf("unexpected key in response: %s", resp.Name)
	}
	if resp.SignatureCrc32C != nil && int64(crc32c(resp.Signature)) != resp.SignatureCrc32C.Value {
		return nil, errors.New("sign response corrupted in-transit")
	}
	return resp.Signature, nil
}

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

func crc32c(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}
