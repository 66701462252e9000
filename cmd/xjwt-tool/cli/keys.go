package cli

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjwt/es256"
	"github.com/effective-security/xjwt/keys"
)

// KeysCmd provides key commands
type KeysCmd struct {
	Generate KeysGenerateCmd `cmd:"" help:"generate P-256 key"`
	JWK      KeysJWKCmd      `cmd:"" name:"jwk" help:"print public JWK"`
}

// KeysGenerateCmd generates key
type KeysGenerateCmd struct {
	Out string `help:"Output file for private key PEM" required:""`
	Pub string `help:"Optional output file for public key PEM"`
}

// Run the command
func (a *KeysGenerateCmd) Run(ctx *Cli) error {
	k, err := es256.GenerateKey(rand.Reader)
	if err != nil {
		return errors.WithStack(err)
	}
	defer k.Zeroize()

	priv, err := keys.EncodePrivateKeyPEM(k)
	if err != nil {
		return err
	}
	pub, err := keys.EncodePublicKeyPEM(k.Public())
	if err != nil {
		return err
	}
	kid, err := keys.Thumbprint(k.Public())
	if err != nil {
		return err
	}

	if err = os.WriteFile(a.Out, priv, 0600); err != nil {
		return errors.WithMessagef(err, "unable to write key")
	}
	res := map[string]string{
		"kid":         kid,
		"private_key": a.Out,
		"public_key":  string(pub),
	}
	if a.Pub != "" {
		if err = os.WriteFile(a.Pub, pub, 0644); err != nil {
			return errors.WithMessagef(err, "unable to write public key")
		}
		res["public_key_file"] = a.Pub
	}

	ctx.WriteJSON(res)
	return nil
}

// KeysJWKCmd prints public JWK
type KeysJWKCmd struct {
	Key string `help:"Key file, PEM or JWK" required:""`
	Kid string `help:"Key ID, if not set the thumbprint is used"`
}

// Run the command
func (a *KeysJWKCmd) Run(ctx *Cli) error {
	pub, err := keys.LoadPublicKeyFile(a.Key)
	if err != nil {
		return err
	}
	kid := a.Kid
	if kid == "" {
		if kid, err = keys.Thumbprint(pub); err != nil {
			return err
		}
	}
	js, err := keys.MarshalPublicJWK(pub, kid)
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.Writer(), string(js))
	return nil
}
