package jwt

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/fileutil"
	"github.com/effective-security/xjwt/canonical"
	"github.com/effective-security/xjwt/es256"
	"github.com/effective-security/xjwt/keys"
	"github.com/effective-security/xjwt/kms"
	"github.com/effective-security/xjwt/metricskey"
	"github.com/effective-security/xlog"
	"gopkg.in/yaml.v3"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xjwt", "jwt")

// Signer specifies JWT signer interface
type Signer interface {
	// Sign returns signed JWT token
	Sign(ctx context.Context, claims *canonical.Object) (string, error)
}

// Parser specifies JWT parser interface
type Parser interface {
	// ParseToken returns claims of the token with verified signature
	ParseToken(ctx context.Context, token string) (*canonical.Object, error)
}

// Provider specifies JWT provider interface
type Provider interface {
	Signer
	Parser
	// KeyID returns ID of the signing key
	KeyID() string
	// PublicKey returns the public part of the signing key,
	// or nil if the provider can only parse tokens
	PublicKey() *es256.PublicKey
}

// Key for JWT signature verification
type Key struct {
	// ID of the key
	ID string `json:"id" yaml:"id"`
	// File specifies path to PEM or JWK file with public key
	File string `json:"file" yaml:"file"`
}

// Config provides JWT provider configuration
type Config struct {
	// KeyID specifies ID of the current key
	KeyID string `json:"kid" yaml:"kid"`
	// PrivateKey specifies path to PEM or JWK file with signing key
	PrivateKey string `json:"private_key" yaml:"private_key"`
	// KMS specifies signing key stored in KMS, the provider package must be imported
	KMS *kms.Config `json:"kms,omitempty" yaml:"kms,omitempty"`
	// PublicKeys specifies list of keys trusted for verification
	PublicKeys []*Key `json:"public_keys" yaml:"public_keys"`
	// JWKSURL specifies URL of JSON Web Key Set trusted for verification
	JWKSURL string `json:"jwks_url" yaml:"jwks_url"`
	// ASCIIOnly specifies to escape non-ASCII characters in tokens
	ASCIIOnly bool `json:"ascii_only" yaml:"ascii_only"`
}

// provider for JWT
type provider struct {
	kid       string
	signer    es256.MessageSigner
	keySets   []KeySet
	asciiOnly bool
}

// Option for provider
type Option func(*provider)

// WithKeySet adds the key set used for verification
func WithKeySet(ks KeySet) Option {
	return func(p *provider) {
		p.keySets = append(p.keySets, ks)
	}
}

// WithSigningKeyID sets "kid" of the signing key
func WithSigningKeyID(kid string) Option {
	return func(p *provider) {
		p.kid = kid
	}
}

// WithASCIIOnlyTokens escapes non-ASCII characters in signed tokens
func WithASCIIOnlyTokens() Option {
	return func(p *provider) {
		p.asciiOnly = true
	}
}

// LoadConfig returns configuration loaded from a file
func LoadConfig(file string) (*Config, error) {
	if file == "" {
		return &Config{}, nil
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var config Config
	if strings.HasSuffix(file, ".json") {
		err = json.Unmarshal(raw, &config)
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to unmarshal JSON: %q", file)
		}
	} else {
		err = yaml.Unmarshal(raw, &config)
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to unmarshal YAML: %q", file)
		}
	}

	if config.PrivateKey == "" && config.KMS == nil && len(config.PublicKeys) == 0 && config.JWKSURL == "" {
		return nil, errors.Errorf("missing keys: %q", file)
	}
	if config.PrivateKey != "" {
		if err = fileutil.FileExists(config.PrivateKey); err != nil {
			return nil, errors.WithMessagef(err, "unable to find private key")
		}
	}
	for _, key := range config.PublicKeys {
		if err = fileutil.FileExists(key.File); err != nil {
			return nil, errors.WithMessagef(err, "unable to find public key %q", key.ID)
		}
	}
	return &config, nil
}

// Load returns new provider
func Load(ctx context.Context, cfgfile string) (Provider, error) {
	cfg, err := LoadConfig(cfgfile)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

// MustNew returns new provider
func MustNew(ctx context.Context, cfg *Config) Provider {
	p, err := New(ctx, cfg)
	if err != nil {
		logger.Panicf("unable to create provider: %+v", err)
	}
	return p
}

// New returns new provider
func New(ctx context.Context, cfg *Config) (Provider, error) {
	var signer es256.MessageSigner
	if cfg.PrivateKey != "" {
		k, err := keys.LoadPrivateKeyFile(cfg.PrivateKey)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to load private key")
		}
		signer = k
	} else if cfg.KMS != nil {
		s, err := kms.NewSigner(ctx, cfg.KMS)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to load KMS key")
		}
		signer = s
	}

	opts := []Option{WithSigningKeyID(cfg.KeyID)}
	if cfg.ASCIIOnly {
		opts = append(opts, WithASCIIOnlyTokens())
	}
	if len(cfg.PublicKeys) > 0 {
		ks := &StaticKeySet{}
		for _, key := range cfg.PublicKeys {
			pub, err := keys.LoadPublicKeyFile(key.File)
			if err != nil {
				return nil, errors.WithMessagef(err, "failed to load public key %q", key.ID)
			}
			ks.Add(key.ID, pub)
		}
		opts = append(opts, WithKeySet(ks))
	}
	if cfg.JWKSURL != "" {
		opts = append(opts, WithKeySet(NewRemoteKeySet(ctx, cfg.JWKSURL)))
	}

	if signer == nil {
		if len(cfg.PublicKeys) == 0 && cfg.JWKSURL == "" {
			return nil, errors.Errorf("keys not provided")
		}
		return newProvider(nil, opts...), nil
	}
	return NewFromSigner(signer, opts...)
}

// NewFromSigner returns new provider that signs tokens with the signer,
// and verifies tokens with the signer's public key and configured key sets
func NewFromSigner(signer es256.MessageSigner, opts ...Option) (Provider, error) {
	if signer == nil {
		return nil, errors.Wrap(es256.ErrInvalidKey, "signer is not provided")
	}
	return newProvider(signer, opts...), nil
}

// NewParser returns Parser that verifies tokens with the key sets,
// tried in order
func NewParser(keySets ...KeySet) Parser {
	p := &provider{}
	p.keySets = append(p.keySets, keySets...)
	return p
}

func newProvider(signer es256.MessageSigner, opts ...Option) *provider {
	p := &provider{
		signer: signer,
	}
	for _, opt := range opts {
		opt(p)
	}
	if signer != nil {
		own := (&StaticKeySet{}).Add(p.kid, signer.Public())
		p.keySets = append([]KeySet{own}, p.keySets...)
	}
	return p
}

// KeyID returns ID of the signing key
func (p *provider) KeyID() string {
	return p.kid
}

// PublicKey returns the public part of the signing key
func (p *provider) PublicKey() *es256.PublicKey {
	if p.signer == nil {
		return nil
	}
	return p.signer.Public()
}

// Sign returns signed JWT token
func (p *provider) Sign(_ context.Context, claims *canonical.Object) (string, error) {
	defer metricskey.PerfTokenOperation.MeasureSince(time.Now(), ES256.String(), "sign")

	if p.signer == nil {
		return "", errors.Wrap(es256.ErrInvalidKey, "signing key is not configured")
	}

	opts := []EncodeOption{WithKeyID(p.kid)}
	if p.asciiOnly {
		opts = append(opts, WithASCIIOnly())
	}
	token, err := EncodeWithSigner(claims, p.signer, ES256, opts...)
	if err != nil {
		logger.KV(xlog.ERROR, "reason", "sign", "kid", p.kid, "err", err.Error())
		return "", err
	}
	return token, nil
}

// ParseToken returns claims of the token with verified signature.
// The verification key is selected by "kid" header.
func (p *provider) ParseToken(ctx context.Context, token string) (*canonical.Object, error) {
	defer metricskey.PerfTokenOperation.MeasureSince(time.Now(), ES256.String(), "verify")

	t, err := ParseUnverified(token)
	if err != nil {
		logger.KV(xlog.DEBUG, "reason", "parse", "err", err.Error())
		return nil, err
	}

	kid := t.Header.KeyID
	pub, err := p.getKey(ctx, kid)
	if err != nil {
		logger.KV(xlog.DEBUG, "reason", "key_not_found", "kid", kid, "err", err.Error())
		return nil, errors.Mark(err, ErrSignatureVerification)
	}

	if err = t.Verify(pub); err != nil {
		logger.KV(xlog.DEBUG, "reason", "verify", "kid", kid, "err", err.Error())
		return nil, err
	}
	logger.KV(xlog.TRACE, "alg", t.Header.Algorithm, "kid", kid)
	return t.Claims, nil
}

func (p *provider) getKey(ctx context.Context, kid string) (*es256.PublicKey, error) {
	var lastErr error
	for _, ks := range p.keySets {
		pub, err := ks.GetKey(ctx, kid)
		if err == nil {
			return pub, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.Errorf("key not found: %s", kid)
	}
	return nil, lastErr
}
