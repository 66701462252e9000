// Package kms creates ES256 signers backed by cloud key management services.
// Providers register themselves by importing their package, e.g.
//
//	import _ "github.com/effective-security/xjwt/kms/awskms"
package kms

import (
	"context"
	"crypto"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjwt/es256"
)

// Config for KMS signing key
type Config struct {
	// Provider specifies the registered provider name, e.g. AWSKMS
	Provider string `json:"provider" yaml:"provider"`
	// KeyID specifies ID, ARN or resource name of the key
	KeyID string `json:"key_id" yaml:"key_id"`
	// Attributes specifies provider specific comma separated list of
	// name=value pairs, e.g. "Endpoint=http://localhost:4566,Region=us-west-2"
	Attributes string `json:"attributes" yaml:"attributes"`
}

// SignerLoader returns crypto.Signer for the configured key
type SignerLoader func(ctx context.Context, cfg *Config) (crypto.Signer, error)

var (
	lockLoaders sync.RWMutex
	loaders     = make(map[string]SignerLoader)
)

// Register signer loader by provider name
func Register(provider string, loader SignerLoader) error {
	lockLoaders.Lock()
	defer lockLoaders.Unlock()

	if _, ok := loaders[provider]; ok {
		return errors.Errorf("already registered: %s", provider)
	}

	loaders[provider] = loader

	return nil
}

// Unregister signer loader by provider name
func Unregister(provider string) (SignerLoader, error) {
	lockLoaders.Lock()
	defer lockLoaders.Unlock()

	if loader, ok := loaders[provider]; ok {
		delete(loaders, provider)
		return loader, nil
	}

	return nil, errors.Errorf("not registered: %s", provider)
}

// Registered returns sorted names of registered providers
func Registered() []string {
	lockLoaders.RLock()
	defer lockLoaders.RUnlock()

	list := []string{}
	for m := range loaders {
		list = append(list, m)
	}
	sort.Strings(list)
	return list
}

// NewSigner returns ES256 signer for the configured key
func NewSigner(ctx context.Context, cfg *Config) (es256.MessageSigner, error) {
	if cfg == nil || cfg.KeyID == "" {
		return nil, errors.New("KMS key not configured")
	}

	lockLoaders.RLock()
	loader, ok := loaders[cfg.Provider]
	lockLoaders.RUnlock()
	if !ok {
		return nil, errors.Errorf("provider not registered: %s", cfg.Provider)
	}

	s, err := loader(ctx, cfg)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to load key %q", cfg.KeyID)
	}
	return es256.NewCryptoSigner(s)
}

// ParseAttributes returns map of name=value pairs
func ParseAttributes(attributes string) map[string]string {
	var kmsAttributes = make(map[string]string)

	for _, v := range strings.Split(attributes, ",") {
		name, val, _ := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		kmsAttributes[name] = strings.TrimSpace(val)
	}

	return kmsAttributes
}
