package authz_test

import (
	"context"
	"crypto/rand"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/effective-security/xjwt/authz"
	"github.com/effective-security/xjwt/canonical"
	"github.com/effective-security/xjwt/es256"
	"github.com/effective-security/xjwt/jwt"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *es256.PrivateKey {
	k, err := es256.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return k
}

func testClaims() *canonical.Object {
	return canonical.NewObject().
		Set("sub", canonical.String("1234567890")).
		Set("name", canonical.String("John Doe")).
		Set("roles", canonical.Array{canonical.String("admin"), canonical.String("dev")}).
		Set("iat", canonical.Int(1516239022))
}

func newServer(t *testing.T) (*httptest.Server, string) {
	key := newKey(t)
	token, err := jwt.EncodeWithSigner(testClaims(), key, jwt.ES256, jwt.WithKeyID("k1"))
	require.NoError(t, err)

	parser := jwt.NewParser((&jwt.StaticKeySet{}).Add("k1", key.Public()))
	srv := httptest.NewServer(authz.New(parser).Handler(promhttp.Handler()))
	t.Cleanup(srv.Close)
	return srv, token
}

func get(t *testing.T, method, u string, setup func(r *http.Request)) *http.Response {
	req, err := http.NewRequest(method, u, nil)
	require.NoError(t, err)
	if setup != nil {
		setup(req)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func bearer(token string) func(r *http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func TestValidate(t *testing.T) {
	srv, token := newServer(t)

	res := get(t, http.MethodGet, srv.URL+"/validate", bearer(token))
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = get(t, http.MethodHead, srv.URL+"/validate", bearer(token))
	assert.Equal(t, http.StatusOK, res.StatusCode)

	// header value without Bearer prefix is used as is
	res = get(t, http.MethodGet, srv.URL+"/validate", func(r *http.Request) {
		r.Header.Set("Authorization", token)
	})
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = get(t, http.MethodGet, srv.URL+"/validate?cookie=session", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "session", Value: token})
	})
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = get(t, http.MethodPost, srv.URL+"/validate", bearer(token))
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)

	res = get(t, http.MethodGet, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))

	res = get(t, http.MethodGet, srv.URL+"/metrics", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestValidateUnauthorized(t *testing.T) {
	srv, token := newServer(t)
	_, otherToken := newServer(t)

	tcases := []struct {
		name  string
		query string
		setup func(r *http.Request)
	}{
		{"no_token", "", nil},
		{"empty_bearer", "", bearer("")},
		{"malformed", "", bearer("a.b")},
		{"tampered", "", bearer(token + "A")},
		{"other_key", "", bearer(otherToken)},
		{"no_cookie", "?cookie=session", bearer(token)},
		{"empty_cookie", "?cookie=session", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "session", Value: ""})
		}},
		{"claims", "?claims_roles=admin", bearer(token)},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			res := get(t, http.MethodGet, srv.URL+"/validate"+tc.query, tc.setup)
			assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
			assert.Empty(t, res.Header.Get("X-User"))
		})
	}
}

func TestValidateForwardClaims(t *testing.T) {
	srv, token := newServer(t)

	q := url.Values{}
	q.Set("headers_X-User", "sub")
	q.Set("headers_X-Roles", "roles")
	q.Set("headers_X-Iat", "iat")
	q.Set("headers_X-Missing", "email")
	q.Set("headers_", "sub")

	res := get(t, http.MethodGet, srv.URL+"/validate?"+q.Encode(), bearer(token))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "1234567890", res.Header.Get("X-User"))
	assert.Equal(t, `["admin","dev"]`, res.Header.Get("X-Roles"))
	assert.Equal(t, "1516239022", res.Header.Get("X-Iat"))
	_, ok := res.Header["X-Missing"]
	assert.False(t, ok)
}

func TestForwardClaims(t *testing.T) {
	h := http.Header{}
	q := url.Values{}
	q.Set("headers_X-Name", "name")
	q.Set("headers_X-Obj", "obj")
	q.Set("other", "sub")

	claims := testClaims().Set("obj", canonical.NewObject().Set("a", canonical.Null{}))
	authz.ForwardClaims(h, q, claims)
	assert.Equal(t, http.Header{
		"X-Name": {"John Doe"},
		"X-Obj":  {`{"a":null}`},
	}, h)
}

type panicParser struct{}

func (panicParser) ParseToken(context.Context, string) (*canonical.Object, error) {
	panic("boom")
}

func TestValidatePanic(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/validate", nil)
	r.Header.Set("Authorization", "Bearer token")

	authz.New(panicParser{}).Validate(w, r)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestExtractor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/validate", nil)
	r.Header.Set("Authorization", "bearer abc")
	r.AddCookie(&http.Cookie{Name: "jwt", Value: "xyz"})

	tok, err := authz.Extractor("").ExtractToken(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	tok, err = authz.Extractor("jwt").ExtractToken(r)
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)

	_, err = authz.Extractor("missing").ExtractToken(r)
	assert.Error(t, err)
}
