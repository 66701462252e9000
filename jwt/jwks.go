package jwt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjwt/es256"
	"github.com/effective-security/xjwt/keys"
	"github.com/effective-security/xlog"
	jose "github.com/go-jose/go-jose/v3"
)

// KeySet provides public keys for verifying JWT signatures
type KeySet interface {
	// GetKey returns the public key for the given kid.
	// Empty kid selects the first key.
	GetKey(ctx context.Context, kid string) (*es256.PublicKey, error)
}

// KeySetFunc is an adapter to use a function as KeySet
type KeySetFunc func(ctx context.Context, kid string) (*es256.PublicKey, error)

// GetKey returns f(ctx, kid)
func (f KeySetFunc) GetKey(ctx context.Context, kid string) (*es256.PublicKey, error) {
	return f(ctx, kid)
}

// KeyEntry is a public key with its ID
type KeyEntry struct {
	KeyID string
	Key   *es256.PublicKey
}

// StaticKeySet is a verifier that validates JWT against a static set of public keys.
type StaticKeySet struct {
	Keys []KeyEntry
}

// Add appends the key to the set
func (s *StaticKeySet) Add(kid string, pub *es256.PublicKey) *StaticKeySet {
	s.Keys = append(s.Keys, KeyEntry{KeyID: kid, Key: pub})
	return s
}

// GetKey returns the public key for the given kid.
func (s *StaticKeySet) GetKey(_ context.Context, keyID string) (*es256.PublicKey, error) {
	if key := findKey(s.Keys, keyID); key != nil {
		return key, nil
	}
	return nil, errors.Errorf("key not found: %s", keyID)
}

func findKey(list []KeyEntry, keyID string) *es256.PublicKey {
	for _, key := range list {
		if keyID == "" || key.KeyID == keyID {
			return key.Key
		}
	}
	return nil
}

// NewRemoteKeySet returns a KeySet that can validate JSON web tokens by using HTTP
// GETs to fetch JSON web token sets hosted at a remote URL.
//
// The returned KeySet is a long lived verifier that caches keys based on any
// keys change. Reuse a common remote key set instead of creating new ones as needed.
func NewRemoteKeySet(ctx context.Context, jwksURL string) *RemoteKeySet {
	return &RemoteKeySet{
		jwksURL: jwksURL,
		ctx:     ctx,
		client:  http.DefaultClient,
	}
}

// RemoteKeySet is a KeySet implementation that validates JSON web tokens against
// a jwks_uri endpoint. Only P-256 keys of the set are used.
type RemoteKeySet struct {
	jwksURL string
	ctx     context.Context
	client  *http.Client

	// guard all other fields
	mu sync.RWMutex

	// inflight suppresses parallel execution of updateKeys and allows
	// multiple goroutines to wait for its result.
	inflight *inflight

	// A set of cached keys.
	cachedKeys []KeyEntry
}

// WithHTTPClient sets the client used to fetch keys
func (r *RemoteKeySet) WithHTTPClient(client *http.Client) *RemoteKeySet {
	r.client = client
	return r
}

// inflight is used to wait on some in-flight request from multiple goroutines.
type inflight struct {
	doneCh chan struct{}

	keys []KeyEntry
	err  error
}

func newInflight() *inflight {
	return &inflight{doneCh: make(chan struct{})}
}

// wait returns a channel that multiple goroutines can receive on. Once it returns
// a value, the inflight request is done and result() can be inspected.
func (i *inflight) wait() <-chan struct{} {
	return i.doneCh
}

// done can only be called by a single goroutine.
func (i *inflight) done(keys []KeyEntry, err error) {
	i.keys = keys
	i.err = err
	close(i.doneCh)
}

// result cannot be called until the wait() channel has returned a value.
func (i *inflight) result() ([]KeyEntry, error) {
	return i.keys, i.err
}

// GetKey returns the public key for the given kid.
func (r *RemoteKeySet) GetKey(ctx context.Context, keyID string) (*es256.PublicKey, error) {
	if key := findKey(r.keysFromCache(), keyID); key != nil {
		return key, nil
	}

	// If the kid doesn't match, check for new keys from the remote.
	// https://openid.net/specs/openid-connect-core-1_0.html#RotateSigKeys
	list, err := r.keysFromRemote(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to fetch JWKS key")
	}
	if key := findKey(list, keyID); key != nil {
		return key, nil
	}
	return nil, errors.Errorf("key not found: %s", keyID)
}

func (r *RemoteKeySet) keysFromCache() []KeyEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cachedKeys
}

// keysFromRemote syncs the key set from the remote set, records the values in the
// cache, and returns the key set.
func (r *RemoteKeySet) keysFromRemote(ctx context.Context) ([]KeyEntry, error) {
	r.mu.Lock()
	if r.inflight == nil {
		r.inflight = newInflight()

		go func() {
			list, err := r.updateKeys()

			r.inflight.done(list, err)

			r.mu.Lock()
			defer r.mu.Unlock()

			if err == nil {
				r.cachedKeys = list
			}
			r.inflight = nil
		}()
	}
	inflight := r.inflight
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-inflight.wait():
		return inflight.result()
	}
}

func (r *RemoteKeySet) updateKeys() ([]KeyEntry, error) {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, r.jwksURL, nil)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create request")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to fetch keys")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("get keys failed: %s %s", resp.Status, body)
	}

	var keySet jose.JSONWebKeySet
	err = json.Unmarshal(body, &keySet)
	if err != nil {
		return nil, errors.Errorf("failed to decode keys: %v %s", err, body)
	}

	var list []KeyEntry
	for i := range keySet.Keys {
		jwk := &keySet.Keys[i]
		pub, err := keys.FromJWK(jwk)
		if err != nil {
			logger.KV(xlog.DEBUG, "reason", "skip_key", "kid", jwk.KeyID, "err", err.Error())
			continue
		}
		list = append(list, KeyEntry{KeyID: jwk.KeyID, Key: pub})
	}
	logger.KV(xlog.DEBUG, "status", "jwks_updated", "url", r.jwksURL, "keys", len(list))
	return list, nil
}
