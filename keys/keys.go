// Package keys loads ES256 key material from PEM and JWK encodings.
package keys

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjwt/base64url"
	"github.com/effective-security/xjwt/es256"
	jose "github.com/go-jose/go-jose/v3"
)

// LoadPrivateKeyFile returns private key loaded from PEM or JWK file
func LoadPrivateKeyFile(file string) (*es256.PrivateKey, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to load key")
	}
	b = bytes.TrimSpace(b)
	if isJSON(b) {
		_, priv, _, err := ParseJWK(b)
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to parse JWK: %s", file)
		}
		if priv == nil {
			return nil, errors.Errorf("JWK does not contain private key: %s", file)
		}
		return priv, nil
	}
	k, err := ParsePrivateKeyPEM(b)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to parse key: %s", file)
	}
	return k, nil
}

// LoadPublicKeyFile returns public key loaded from PEM or JWK file.
// Private keys and certificates are accepted as well.
func LoadPublicKeyFile(file string) (*es256.PublicKey, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to load key")
	}
	b = bytes.TrimSpace(b)
	if isJSON(b) {
		pub, _, _, err := ParseJWK(b)
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to parse JWK: %s", file)
		}
		return pub, nil
	}
	k, err := ParsePublicKeyPEM(b)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to parse key: %s", file)
	}
	return k, nil
}

// ParsePrivateKeyPEM returns private key from SEC 1 "EC PRIVATE KEY",
// or PKCS#8 "PRIVATE KEY" PEM block
func ParsePrivateKeyPEM(b []byte) (*es256.PrivateKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("key must be PEM encoded")
	}

	var ec *ecdsa.PrivateKey
	switch block.Type {
	case "EC PRIVATE KEY":
		k, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, errors.WithMessage(err, "unable to parse EC private key")
		}
		ec = k
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, errors.WithMessage(err, "unable to parse PKCS#8 private key")
		}
		var ok bool
		if ec, ok = k.(*ecdsa.PrivateKey); !ok {
			return nil, errors.Errorf("private key not supported: %T", k)
		}
	default:
		return nil, errors.Errorf("unsupported PEM type: %q", block.Type)
	}
	return es256.PrivateKeyFromECDSA(ec)
}

// ParsePublicKeyPEM returns public key from "PUBLIC KEY" or "CERTIFICATE" PEM block,
// or derives it from a private key PEM block
func ParsePublicKeyPEM(b []byte) (*es256.PublicKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("key must be PEM encoded")
	}

	var pub crypto.PublicKey
	switch block.Type {
	case "PUBLIC KEY":
		k, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, errors.WithMessage(err, "unable to parse public key")
		}
		pub = k
	case "CERTIFICATE":
		crt, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, errors.WithMessage(err, "unable to parse certificate")
		}
		pub = crt.PublicKey
	case "EC PRIVATE KEY", "PRIVATE KEY":
		k, err := ParsePrivateKeyPEM(b)
		if err != nil {
			return nil, err
		}
		return k.Public(), nil
	default:
		return nil, errors.Errorf("unsupported PEM type: %q", block.Type)
	}

	ec, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.Errorf("public key not supported: %T", pub)
	}
	return es256.PublicKeyFromECDSA(ec)
}

// EncodePrivateKeyPEM returns SEC 1 "EC PRIVATE KEY" PEM
func EncodePrivateKeyPEM(k *es256.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(k.ECDSA())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "EC PRIVATE KEY",
		Bytes: der,
	}), nil
}

// EncodePublicKeyPEM returns PKIX "PUBLIC KEY" PEM
func EncodePublicKeyPEM(pub *es256.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub.ECDSA())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: der,
	}), nil
}

// ParseJWK returns keys and key ID from JSON Web Key.
// The private key is nil if JWK contains only public part.
func ParseJWK(b []byte) (*es256.PublicKey, *es256.PrivateKey, string, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(b); err != nil {
		return nil, nil, "", errors.WithMessage(err, "unable to parse JWK")
	}
	if jwk.Algorithm != "" && jwk.Algorithm != "ES256" {
		return nil, nil, "", errors.Errorf("unsupported JWK algorithm: %s", jwk.Algorithm)
	}

	switch k := jwk.Key.(type) {
	case *ecdsa.PrivateKey:
		priv, err := es256.PrivateKeyFromECDSA(k)
		if err != nil {
			return nil, nil, "", err
		}
		return priv.Public(), priv, jwk.KeyID, nil
	default:
		pub, err := FromJWK(&jwk)
		if err != nil {
			return nil, nil, "", err
		}
		return pub, nil, jwk.KeyID, nil
	}
}

// FromJWK returns public key from JSON Web Key
func FromJWK(jwk *jose.JSONWebKey) (*es256.PublicKey, error) {
	switch k := jwk.Key.(type) {
	case *ecdsa.PublicKey:
		return es256.PublicKeyFromECDSA(k)
	case *ecdsa.PrivateKey:
		return es256.PublicKeyFromECDSA(&k.PublicKey)
	default:
		return nil, errors.Errorf("JWK key not supported: %T", jwk.Key)
	}
}

// PublicJWK returns JSON Web Key for the public key
func PublicJWK(pub *es256.PublicKey, kid string) *jose.JSONWebKey {
	return &jose.JSONWebKey{
		Key:       pub.ECDSA(),
		KeyID:     kid,
		Algorithm: "ES256",
		Use:       "sig",
	}
}

// MarshalPublicJWK returns JSON encoded JSON Web Key for the public key
func MarshalPublicJWK(pub *es256.PublicKey, kid string) ([]byte, error) {
	b, err := json.Marshal(PublicJWK(pub, kid))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}

// Thumbprint returns base64url encoded RFC 7638 SHA-256 thumbprint of the key
func Thumbprint(pub *es256.PublicKey) (string, error) {
	tb, err := PublicJWK(pub, "").Thumbprint(crypto.SHA256)
	if err != nil {
		return "", errors.WithMessage(err, "unable to get thumbprint")
	}
	return base64url.Encode(tb), nil
}

func isJSON(b []byte) bool {
	return len(b) > 0 && b[0] == '{'
}
