// Package awskms provides ES256 signing with AWS KMS ECC_NIST_P256 keys
package awskms

import (
	"context"
	"crypto"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/cockroachdb/errors"
	xkms "github.com/effective-security/xjwt/kms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xjwt", "awskms")

// ProviderName specifies a provider name
const ProviderName = "AWSKMS"

func init() {
	_ = xkms.Register(ProviderName, Loader)
}

// KmsClient interface
type KmsClient interface {
	GetPublicKey(context.Context, *kms.GetPublicKeyInput, ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(context.Context, *kms.SignInput, ...func(*kms.Options)) (*kms.SignOutput, error)
}

// KmsClientFactory override for unittest
var KmsClientFactory = func(cfg aws.Config, optFns ...func(*kms.Options)) KmsClient {
	return kms.NewFromConfig(cfg, optFns...)
}

// Loader returns signer for the configured key.
// Supported attributes are Region and Endpoint.
func Loader(ctx context.Context, cfg *xkms.Config) (crypto.Signer, error) {
	attrs := xkms.ParseAttributes(cfg.Attributes)
	client, err := NewClient(ctx, attrs["Region"], attrs["Endpoint"])
	if err != nil {
		return nil, err
	}
	return NewSigner(ctx, client, cfg.KeyID)
}

// NewClient returns KMS client.
// Static credentials are used if AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY
// environment variables are set.
func NewClient(ctx context.Context, region, endpoint string) (KmsClient, error) {
	var awsops []func(*awsconfig.LoadOptions) error

	if region != "" {
		awsops = append(awsops, awsconfig.WithRegion(region))
	}

	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	token := os.Getenv("AWS_SESSION_TOKEN")
	if id != "" && secret != "" {
		awsops = append(awsops, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(id, secret, token)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsops...)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var optFns []func(*kms.Options)
	if endpoint != "" {
		// https://aws.github.io/aws-sdk-go-v2/docs/configuring-sdk/endpoints/
		optFns = append(optFns, func(o *kms.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	logger.KV(xlog.DEBUG, "region", cfg.Region, "endpoint", endpoint)
	return KmsClientFactory(cfg, optFns...), nil
}
