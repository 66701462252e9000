package cli

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjwt/canonical"
	"github.com/effective-security/xjwt/jwt"
	"github.com/effective-security/xjwt/keys"
	promclient "github.com/prometheus/client_golang/prometheus"
)

func (s *testSuite) TestServeParser() {
	dir := s.T().TempDir()
	keyFile, pubFile := s.genKey(dir, "k1")
	otherFile, _ := s.genKey(dir, "k2")

	key, err := keys.LoadPrivateKeyFile(keyFile)
	s.Require().NoError(err)
	other, err := keys.LoadPrivateKeyFile(otherFile)
	s.Require().NoError(err)

	claims := canonical.NewObject().Set("sub", canonical.String("svc"))
	token, err := jwt.EncodeWithSigner(claims, key, jwt.ES256, jwt.WithKeyID("any"))
	s.Require().NoError(err)
	otherToken, err := jwt.EncodeWithSigner(claims, other, jwt.ES256)
	s.Require().NoError(err)

	cmd := ServeCmd{Key: pubFile}
	p, err := cmd.Parser(s.ctl)
	s.Require().NoError(err)

	got, err := p.ParseToken(s.ctl.Context(), token)
	s.Require().NoError(err)
	s.Equal("svc", got.GetString("sub"))
	_, err = p.ParseToken(s.ctl.Context(), otherToken)
	s.True(errors.Is(err, jwt.ErrSignatureVerification))

	cmd = ServeCmd{JWKSURL: "https://localhost/jwks"}
	p, err = cmd.Parser(s.ctl)
	s.Require().NoError(err)
	s.NotNil(p)

	cmd = ServeCmd{Key: pubFile, JWKSURL: "https://localhost/jwks"}
	_, err = cmd.Parser(s.ctl)
	s.EqualError(err, "--key and --jwks-url are mutually exclusive")

	cmd = ServeCmd{}
	_, err = cmd.Parser(s.ctl)
	s.EqualError(err, "use --cfg flag to specify JWT provider config file, or --key")

	cmd = ServeCmd{Key: filepath.Join(dir, "missing.pem")}
	_, err = cmd.Parser(s.ctl)
	s.Error(err)
}

func (s *testSuite) TestServeHandler() {
	dir := s.T().TempDir()
	keyFile, pubFile := s.genKey(dir, "k1")

	key, err := keys.LoadPrivateKeyFile(keyFile)
	s.Require().NoError(err)
	token, err := jwt.Encode(canonical.NewObject().Set("sub", canonical.String("svc")), key, jwt.ES256)
	s.Require().NoError(err)

	cmd := ServeCmd{Key: pubFile}
	p, err := cmd.Parser(s.ctl)
	s.Require().NoError(err)

	srv, err := NewServer(":0", p, promclient.NewRegistry())
	s.Require().NoError(err)
	s.Equal(":0", srv.Addr)

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	get := func(path, token string) (int, http.Header, string) {
		req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
		s.Require().NoError(err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		res, err := http.DefaultClient.Do(req)
		s.Require().NoError(err)
		defer res.Body.Close()
		body, err := io.ReadAll(res.Body)
		s.Require().NoError(err)
		return res.StatusCode, res.Header, string(body)
	}

	status, h, _ := get("/validate?headers_X-Subject=sub", token)
	s.Equal(http.StatusOK, status)
	s.Equal("svc", h.Get("X-Subject"))

	status, _, _ = get("/validate", "")
	s.Equal(http.StatusUnauthorized, status)

	status, _, body := get("/healthz", "")
	s.Equal(http.StatusOK, status)
	s.Equal("OK", body)

	status, _, body = get("/metrics", "")
	s.Equal(http.StatusOK, status)
	s.Contains(body, "http_requests_total")
}
