package jwt_test

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjwt/canonical"
	"github.com/effective-security/xjwt/es256"
	"github.com/effective-security/xjwt/jwt"
	"github.com/effective-security/xjwt/keys"
	"github.com/effective-security/xjwt/kms"
	jose "github.com/go-jose/go-jose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeys(t *testing.T, dir, name string) *es256.PrivateKey {
	k := newKey(t)
	priv, err := keys.EncodePrivateKeyPEM(k)
	require.NoError(t, err)
	pub, err := keys.EncodePublicKeyPEM(k.Public())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+"-key.pem"), priv, 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".pem"), pub, 0644))
	return k
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeKeys(t, dir, "k1")
	writeKeys(t, dir, "k0")

	yamlCfg := fmt.Sprintf(`
kid: k1
private_key: %s/k1-key.pem
public_keys:
  - id: k0
    file: %s/k0.pem
ascii_only: true
`, dir, dir)
	yamlFile := filepath.Join(dir, "jwt.yaml")
	require.NoError(t, os.WriteFile(yamlFile, []byte(yamlCfg), 0644))

	cfg, err := jwt.LoadConfig(yamlFile)
	require.NoError(t, err)
	assert.Equal(t, "k1", cfg.KeyID)
	assert.Equal(t, dir+"/k1-key.pem", cfg.PrivateKey)
	require.Len(t, cfg.PublicKeys, 1)
	assert.Equal(t, "k0", cfg.PublicKeys[0].ID)
	assert.True(t, cfg.ASCIIOnly)

	jsonFile := filepath.Join(dir, "jwt.json")
	js, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(jsonFile, js, 0644))
	cfg2, err := jwt.LoadConfig(jsonFile)
	require.NoError(t, err)
	assert.Equal(t, cfg, cfg2)

	cfg, err = jwt.LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.PrivateKey)

	_, err = jwt.LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	emptyFile := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(emptyFile, []byte("kid: k1\n"), 0644))
	_, err = jwt.LoadConfig(emptyFile)
	assert.EqualError(t, err, fmt.Sprintf("missing keys: %q", emptyFile))

	badFile := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badFile, []byte("{"), 0644))
	_, err = jwt.LoadConfig(badFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to unmarshal JSON")

	noKeyFile := filepath.Join(dir, "nokey.yaml")
	require.NoError(t, os.WriteFile(noKeyFile, []byte("private_key: "+dir+"/none.pem\n"), 0644))
	_, err = jwt.LoadConfig(noKeyFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to find private key")
}

func TestProvider(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	k1 := writeKeys(t, dir, "k1")
	k0 := writeKeys(t, dir, "k0")

	cfgFile := filepath.Join(dir, "jwt.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(fmt.Sprintf(`
kid: k1
private_key: %s/k1-key.pem
public_keys:
  - id: k0
    file: %s/k0.pem
`, dir, dir)), 0644))

	p, err := jwt.Load(ctx, cfgFile)
	require.NoError(t, err)
	assert.Equal(t, "k1", p.KeyID())
	assert.True(t, k1.Public().Equal(p.PublicKey()))

	token, err := p.Sign(ctx, sampleClaims())
	require.NoError(t, err)

	tok, err := jwt.ParseUnverified(token)
	require.NoError(t, err)
	assert.Equal(t, "k1", tok.Header.KeyID)

	claims, err := p.ParseToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, sampleClaims().Equal(claims))

	// previous key is trusted by kid
	old, err := jwt.EncodeWithSigner(sampleClaims(), k0, jwt.ES256, jwt.WithKeyID("k0"))
	require.NoError(t, err)
	claims, err = p.ParseToken(ctx, old)
	require.NoError(t, err)
	assert.True(t, sampleClaims().Equal(claims))

	// wrong key for kid
	forged, err := jwt.EncodeWithSigner(sampleClaims(), k0, jwt.ES256, jwt.WithKeyID("k1"))
	require.NoError(t, err)
	_, err = p.ParseToken(ctx, forged)
	assert.True(t, errors.Is(err, jwt.ErrSignatureVerification))

	// unknown kid
	unknown, err := jwt.EncodeWithSigner(sampleClaims(), k0, jwt.ES256, jwt.WithKeyID("k2"))
	require.NoError(t, err)
	_, err = p.ParseToken(ctx, unknown)
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrSignatureVerification))
	assert.Contains(t, err.Error(), "key not found: k2")

	_, err = p.ParseToken(ctx, "a.b")
	assert.True(t, errors.Is(err, jwt.ErrMalformedToken))

	// verification only
	v, err := jwt.New(ctx, &jwt.Config{
		PublicKeys: []*jwt.Key{{ID: "k1", File: dir + "/k1.pem"}},
	})
	require.NoError(t, err)
	assert.Nil(t, v.PublicKey())
	claims, err = v.ParseToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, sampleClaims().Equal(claims))
	_, err = v.Sign(ctx, sampleClaims())
	assert.True(t, errors.Is(err, es256.ErrInvalidKey))

	_, err = jwt.New(ctx, &jwt.Config{})
	assert.EqualError(t, err, "keys not provided")

	_, err = jwt.New(ctx, &jwt.Config{PrivateKey: dir + "/k1.pem"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load private key")

	assert.Panics(t, func() {
		jwt.MustNew(ctx, &jwt.Config{})
	})
}

func TestProviderASCIIOnly(t *testing.T) {
	ctx := context.Background()
	key := newKey(t)

	p, err := jwt.NewFromSigner(key, jwt.WithSigningKeyID("k1"), jwt.WithASCIIOnlyTokens())
	require.NoError(t, err)

	claims := canonical.NewObject().Set("name", canonical.String("José"))
	token, err := p.Sign(ctx, claims)
	require.NoError(t, err)

	expected, err := jwt.EncodeWithSigner(claims, key, jwt.ES256, jwt.WithKeyID("k1"), jwt.WithASCIIOnly())
	require.NoError(t, err)
	assert.Equal(t, expected, token)

	_, err = jwt.NewFromSigner(nil)
	assert.True(t, errors.Is(err, es256.ErrInvalidKey))
}

type jwksServer struct {
	lock  sync.Mutex
	set   jose.JSONWebKeySet
	calls int32
}

func (s *jwksServer) add(jwk *jose.JSONWebKey) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.set.Keys = append(s.set.Keys, *jwk)
}

func (s *jwksServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&s.calls, 1)
	s.lock.Lock()
	defer s.lock.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(&s.set)
}

func TestRemoteKeySet(t *testing.T) {
	ctx := context.Background()
	k1 := newKey(t)
	k2 := newKey(t)

	js := &jwksServer{}
	js.add(&jose.JSONWebKey{Key: []byte("secret"), KeyID: "hmac", Algorithm: "HS256"})
	js.add(keys.PublicJWK(k1.Public(), "k1"))
	srv := httptest.NewServer(js)
	defer srv.Close()

	ks := jwt.NewRemoteKeySet(ctx, srv.URL).WithHTTPClient(srv.Client())

	pub, err := ks.GetKey(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, k1.Public().Equal(pub))
	assert.Equal(t, int32(1), atomic.LoadInt32(&js.calls))

	// cached
	pub, err = ks.GetKey(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, k1.Public().Equal(pub))
	assert.Equal(t, int32(1), atomic.LoadInt32(&js.calls))

	// first key when kid is empty
	pub, err = ks.GetKey(ctx, "")
	require.NoError(t, err)
	assert.True(t, k1.Public().Equal(pub))

	_, err = ks.GetKey(ctx, "hmac")
	assert.EqualError(t, err, "key not found: hmac")

	// rotated key is fetched on miss
	js.add(keys.PublicJWK(k2.Public(), "k2"))
	pub, err = ks.GetKey(ctx, "k2")
	require.NoError(t, err)
	assert.True(t, k2.Public().Equal(pub))

	p, err := jwt.NewFromSigner(k2, jwt.WithSigningKeyID("k2"), jwt.WithKeySet(ks))
	require.NoError(t, err)
	token, err := jwt.EncodeWithSigner(sampleClaims(), k1, jwt.ES256, jwt.WithKeyID("k1"))
	require.NoError(t, err)
	claims, err := p.ParseToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, sampleClaims().Equal(claims))

	cctx, cancel := context.WithTimeout(ctx, time.Millisecond)
	defer cancel()
	<-cctx.Done()
	_, err = ks.GetKey(cctx, "k3")
	assert.Error(t, err)
}

func TestRemoteKeySetErrors(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := jwt.NewRemoteKeySet(ctx, srv.URL).GetKey(ctx, "k1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get keys failed: 404 Not Found")

	p, err := jwt.New(ctx, &jwt.Config{JWKSURL: srv.URL})
	require.NoError(t, err)
	token, err := jwt.Encode(sampleClaims(), newKey(t), jwt.ES256)
	require.NoError(t, err)
	_, err = p.ParseToken(ctx, token)
	assert.True(t, errors.Is(err, jwt.ErrSignatureVerification))
}

func TestStaticKeySet(t *testing.T) {
	ctx := context.Background()
	k1 := newKey(t)
	k2 := newKey(t)

	ks := (&jwt.StaticKeySet{}).Add("k1", k1.Public()).Add("k2", k2.Public())

	pub, err := ks.GetKey(ctx, "k2")
	require.NoError(t, err)
	assert.True(t, k2.Public().Equal(pub))

	pub, err = ks.GetKey(ctx, "")
	require.NoError(t, err)
	assert.True(t, k1.Public().Equal(pub))

	_, err = ks.GetKey(ctx, "k3")
	assert.EqualError(t, err, "key not found: k3")
}

func TestNewParser(t *testing.T) {
	ctx := context.Background()
	k1 := newKey(t)
	k2 := newKey(t)

	t1, err := jwt.EncodeWithSigner(sampleClaims(), k1, jwt.ES256, jwt.WithKeyID("rotated"))
	require.NoError(t, err)
	t2, err := jwt.EncodeWithSigner(sampleClaims(), k2, jwt.ES256, jwt.WithKeyID("k2"))
	require.NoError(t, err)

	anyKid := jwt.KeySetFunc(func(_ context.Context, _ string) (*es256.PublicKey, error) {
		return k1.Public(), nil
	})
	p := jwt.NewParser(anyKid)
	claims, err := p.ParseToken(ctx, t1)
	require.NoError(t, err)
	assert.True(t, sampleClaims().Equal(claims))

	_, err = p.ParseToken(ctx, t2)
	assert.True(t, errors.Is(err, jwt.ErrSignatureVerification))

	p = jwt.NewParser((&jwt.StaticKeySet{}).Add("k1", k1.Public()), (&jwt.StaticKeySet{}).Add("k2", k2.Public()))
	_, err = p.ParseToken(ctx, t2)
	require.NoError(t, err)
	_, err = p.ParseToken(ctx, t1)
	assert.True(t, errors.Is(err, jwt.ErrSignatureVerification))

	_, err = jwt.NewParser().ParseToken(ctx, t1)
	assert.True(t, errors.Is(err, jwt.ErrSignatureVerification))
}

func TestProviderKMS(t *testing.T) {
	ctx := context.Background()
	key := newKey(t)

	require.NoError(t, kms.Register("JWTTEST", func(_ context.Context, cfg *kms.Config) (crypto.Signer, error) {
		if cfg.KeyID != "k1" {
			return nil, errors.Errorf("key not found: %s", cfg.KeyID)
		}
		return key.ECDSA(), nil
	}))
	defer func() {
		_, _ = kms.Unregister("JWTTEST")
	}()

	p, err := jwt.New(ctx, &jwt.Config{
		KeyID: "k1",
		KMS:   &kms.Config{Provider: "JWTTEST", KeyID: "k1"},
	})
	require.NoError(t, err)
	assert.True(t, key.Public().Equal(p.PublicKey()))

	token, err := p.Sign(ctx, sampleClaims())
	require.NoError(t, err)

	claims, err := jwt.DecodeAndVerify(token, key.Public())
	require.NoError(t, err)
	assert.True(t, sampleClaims().Equal(claims))

	_, err = jwt.New(ctx, &jwt.Config{
		KMS: &kms.Config{Provider: "JWTTEST", KeyID: "k2"},
	})
	assert.EqualError(t, err, `failed to load KMS key: unable to load key "k2": key not found: k2`)
}
