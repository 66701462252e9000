package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/effective-security/x/ctl"
	"github.com/effective-security/xjwt/cmd/xjwt-tool/cli"
	"github.com/effective-security/xjwt/internal/version"

	// register KMS providers
	_ "github.com/effective-security/xjwt/kms/awskms"
	_ "github.com/effective-security/xjwt/kms/gcpkms"
	_ "github.com/effective-security/xjwt/kms/pkcs11"
)

type app struct {
	cli.Cli

	Sign   cli.SignCmd   `cmd:"" help:"sign claims"`
	Verify cli.VerifyCmd `cmd:"" help:"verify token and print claims"`
	Decode cli.DecodeCmd `cmd:"" help:"print token without verification"`
	Keys   cli.KeysCmd   `cmd:"" help:"key commands"`
	Serve  cli.ServeCmd  `cmd:"" help:"serve nginx auth_request token validation"`
}

func main() {
	realMain(os.Args, os.Stdout, os.Stderr, os.Exit)
}

func realMain(args []string, out io.Writer, errout io.Writer, exit func(int)) {
	cl := app{
		Cli: cli.Cli{},
	}
	cl.Cli.WithErrWriter(errout).
		WithWriter(out)

	parser, err := kong.New(&cl,
		kong.Name("xjwt-tool"),
		kong.Description("CLI tool for ES256 JWT"),
		kong.Writers(out, errout),
		kong.Exit(exit),
		ctl.BoolPtrMapper,
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version.Current().String(),
		})
	if err != nil {
		panic(err)
	}

	ctx, err := parser.Parse(args[1:])
	parser.FatalIfErrorf(err)

	if ctx != nil {
		if cl.Debug {
			// in DEBUG more print command line
			_, _ = fmt.Fprintf(ctx.Stdout, "#\n# %s\n#\n", strings.Join(args, " "))
		}
		err = ctx.Run(&cl.Cli)
		ctx.FatalIfErrorf(err)
	}
}
