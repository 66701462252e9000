package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjwt/jwt"
)

func (s *testSuite) genKey(dir, name string) (string, string) {
	keyFile := filepath.Join(dir, name+"-key.pem")
	pubFile := filepath.Join(dir, name+".pem")
	cmd := KeysGenerateCmd{Out: keyFile, Pub: pubFile}
	s.Require().NoError(cmd.Run(s.ctl))

	var res map[string]string
	s.Require().NoError(json.Unmarshal(s.Out.Bytes(), &res))
	s.NotEmpty(res["kid"])
	s.Equal(keyFile, res["private_key"])
	s.Equal(pubFile, res["public_key_file"])
	s.Contains(res["public_key"], "-----BEGIN PUBLIC KEY-----")
	s.Out.Reset()
	return keyFile, pubFile
}

func (s *testSuite) TestSignVerifyWithKey() {
	dir := s.T().TempDir()
	keyFile, pubFile := s.genKey(dir, "k1")

	sign := SignCmd{
		Key:    keyFile,
		Claims: `{"sub":"1234567890","name":"José","iat":1516239022}`,
		Kid:    "k1",
		ASCII:  true,
		JTI:    true,
	}
	s.Require().NoError(sign.Run(s.ctl))
	token := strings.TrimSpace(s.Out.String())
	s.Out.Reset()

	t, err := jwt.ParseUnverified(token)
	s.Require().NoError(err)
	s.Equal("k1", t.Header.KeyID)
	s.NotEmpty(t.Claims.GetString("jti"))

	verify := VerifyCmd{Key: pubFile, Token: token}
	s.Require().NoError(verify.Run(s.ctl))
	s.HasText(`{"sub":"1234567890","name":"José","iat":1516239022,"jti":"`)
	s.Out.Reset()

	decode := DecodeCmd{Token: token}
	s.Require().NoError(decode.Run(s.ctl))
	s.HasText("Algorithm: ES256", "Key ID: k1", "Issued: 2018-01-18T01:30:22Z", "  name: José")
	s.Out.Reset()

	decode.JSON = true
	s.Require().NoError(decode.Run(s.ctl))
	s.HasText(`"header": {`, `"alg": "ES256"`, `"claims": {`)
	s.Out.Reset()

	other, _ := s.genKey(dir, "k2")
	verify.Key = other
	err = verify.Run(s.ctl)
	s.True(errors.Is(err, jwt.ErrSignatureVerification))

	verify.Token = "a.b"
	err = verify.Run(s.ctl)
	s.True(errors.Is(err, jwt.ErrMalformedToken))
}

func (s *testSuite) TestSignVerifyWithProvider() {
	dir := s.T().TempDir()
	keyFile, pubFile := s.genKey(dir, "k1")

	cfgFile := filepath.Join(dir, "jwt.yaml")
	s.Require().NoError(os.WriteFile(cfgFile, []byte(fmt.Sprintf(`
kid: k1
private_key: %s
public_keys:
  - id: k1
    file: %s
`, keyFile, pubFile)), 0644))
	s.ctl.Cfg = cfgFile

	claimsFile := filepath.Join(dir, "claims.json")
	s.Require().NoError(os.WriteFile(claimsFile, []byte(`{"sub":"svc"}`+"\n"), 0644))

	sign := SignCmd{Claims: "@" + claimsFile}
	s.Require().NoError(sign.Run(s.ctl))
	token := strings.TrimSpace(s.Out.String())
	s.Out.Reset()

	s.ctl.WithReader(strings.NewReader(token + "\n"))
	verify := VerifyCmd{Token: "-"}
	s.Require().NoError(verify.Run(s.ctl))
	s.Equal("{\"sub\":\"svc\"}\n", s.Out.String())
	s.Out.Reset()

	sign.Kid = "k2"
	err := sign.Run(s.ctl)
	s.EqualError(err, "--kid and --ascii require --key, use kid and ascii_only in --cfg instead")
	sign = SignCmd{Claims: `{"sub":"svc"}`, ASCII: true}
	err = sign.Run(s.ctl)
	s.EqualError(err, "--kid and --ascii require --key, use kid and ascii_only in --cfg instead")
	s.Empty(s.Out.String())

	jwk := KeysJWKCmd{Key: pubFile, Kid: "k1"}
	s.Require().NoError(jwk.Run(s.ctl))
	s.HasText(`"kid":"k1"`, `"kty":"EC"`)
	s.HasNoText(`"d":`)
}

func (s *testSuite) TestErrors() {
	sign := SignCmd{Claims: `{"sub":"1"}`}
	err := sign.Run(s.ctl)
	s.EqualError(err, "use --cfg flag to specify JWT provider config file, or --key")

	sign.Claims = `["not an object"]`
	err = sign.Run(s.ctl)
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid claims")

	sign.Claims = "@missing.json"
	err = sign.Run(s.ctl)
	s.Require().Error(err)
	s.Contains(err.Error(), `unable to read "missing.json"`)

	decode := DecodeCmd{Token: "abc"}
	err = decode.Run(s.ctl)
	s.True(errors.Is(err, jwt.ErrMalformedToken))

	_, err = s.ctl.ReadFile("")
	s.EqualError(err, "empty file name")

	s.ctl.Cfg = "missing.yaml"
	_, err = s.ctl.Provider()
	s.Require().Error(err)
	s.Contains(err.Error(), "unable to load provider")
}
