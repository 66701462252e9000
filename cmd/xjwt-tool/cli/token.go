package cli

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/guid"
	"github.com/effective-security/xjwt/canonical"
	"github.com/effective-security/xjwt/jwt"
	"github.com/effective-security/xjwt/keys"
	"github.com/effective-security/xjwt/x/print"
)

// SignCmd signs claims
type SignCmd struct {
	Key    string `help:"Private key file, PEM or JWK. If not set, the key from --cfg is used"`
	Claims string `help:"Claims JSON, @file to read from file, or - to read from stdin" required:""`
	Kid    string `help:"Key ID to add to the header"`
	ASCII  bool   `name:"ascii" help:"Escape non-ASCII characters"`
	JTI    bool   `name:"jti" help:"Add unique jti claim, if not present"`
}

// Run the command
func (a *SignCmd) Run(ctx *Cli) error {
	raw, err := ctx.ReadValue(a.Claims)
	if err != nil {
		return err
	}
	claims, err := canonical.ParseObject(raw)
	if err != nil {
		return errors.WithMessagef(err, "invalid claims")
	}
	if a.JTI && !claims.Has("jti") {
		claims.Set("jti", canonical.String(guid.MustCreate()))
	}

	var token string
	if a.Key != "" {
		key, err := keys.LoadPrivateKeyFile(a.Key)
		if err != nil {
			return err
		}
		opts := []jwt.EncodeOption{jwt.WithKeyID(a.Kid)}
		if a.ASCII {
			opts = append(opts, jwt.WithASCIIOnly())
		}
		token, err = jwt.EncodeWithSigner(claims, key, jwt.ES256, opts...)
		if err != nil {
			return err
		}
	} else {
		if a.Kid != "" || a.ASCII {
			return errors.New("--kid and --ascii require --key, use kid and ascii_only in --cfg instead")
		}
		p, err := ctx.Provider()
		if err != nil {
			return err
		}
		token, err = p.Sign(ctx.Context(), claims)
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(ctx.Writer(), token)
	return nil
}

// VerifyCmd verifies token and prints claims
type VerifyCmd struct {
	Key   string `help:"Public key file, PEM or JWK. If not set, the keys from --cfg are used"`
	Token string `arg:"" help:"Token, or - to read from stdin"`
}

// Run the command
func (a *VerifyCmd) Run(ctx *Cli) error {
	token, err := ctx.ReadValue(a.Token)
	if err != nil {
		return err
	}

	var claims *canonical.Object
	if a.Key != "" {
		pub, err := keys.LoadPublicKeyFile(a.Key)
		if err != nil {
			return err
		}
		claims, err = jwt.DecodeAndVerify(string(token), pub)
		if err != nil {
			return err
		}
	} else {
		p, err := ctx.Provider()
		if err != nil {
			return err
		}
		claims, err = p.ParseToken(ctx.Context(), string(token))
		if err != nil {
			return err
		}
	}

	js, err := canonical.Serialize(claims)
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.Writer(), string(js))
	return nil
}

// DecodeCmd prints token without verification
type DecodeCmd struct {
	Token string `arg:"" help:"Token, or - to read from stdin"`
	JSON  bool   `name:"json" help:"Print header and claims as JSON"`
}

// Run the command
func (a *DecodeCmd) Run(ctx *Cli) error {
	token, err := ctx.ReadValue(a.Token)
	if err != nil {
		return err
	}
	t, err := jwt.ParseUnverified(string(token))
	if err != nil {
		return err
	}

	if a.JSON {
		ctx.WriteJSON(map[string]any{
			"header": t.Headers.Map(),
			"claims": t.Claims.Map(),
		})
		return nil
	}
	print.Token(ctx.Writer(), t)
	return nil
}
