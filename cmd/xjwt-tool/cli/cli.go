package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/ctl"
	"github.com/effective-security/xjwt/jwt"
	"github.com/effective-security/xjwt/x/print"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xjwt", "cli")

// Cli provides CLI context to run commands
type Cli struct {
	Version  ctl.VersionFlag `name:"version" help:"Print version information and quit" hidden:""`
	Cfg      string          `help:"Location of JWT provider config file" type:"path"`
	Debug    bool            `short:"D" help:"Enable debug mode"`
	LogLevel string          `short:"l" help:"Set the logging level (debug|info|warn|error)" default:"error"`

	// Stdin is the source to read from, typically set to os.Stdin
	stdin io.Reader
	// Output is the destination for all output from the command, typically set to os.Stdout
	output io.Writer
	// ErrOutput is the destinaton for errors.
	// If not set, errors will be written to os.StdError
	errOutput io.Writer

	ctx      context.Context
	provider jwt.Provider
}

// Context for requests
func (c *Cli) Context() context.Context {
	if c.ctx == nil {
		c.ctx = context.Background()
	}
	return c.ctx
}

// Reader is the source to read from, typically set to os.Stdin
func (c *Cli) Reader() io.Reader {
	if c.stdin != nil {
		return c.stdin
	}
	return os.Stdin
}

// WithReader allows to specify a custom reader
func (c *Cli) WithReader(reader io.Reader) *Cli {
	c.stdin = reader
	return c
}

// Writer returns a writer for control output
func (c *Cli) Writer() io.Writer {
	if c.output != nil {
		return c.output
	}
	return os.Stdout
}

// WithWriter allows to specify a custom writer
func (c *Cli) WithWriter(out io.Writer) *Cli {
	c.output = out
	return c
}

// ErrWriter returns a writer for control output
func (c *Cli) ErrWriter() io.Writer {
	if c.errOutput != nil {
		return c.errOutput
	}
	return os.Stderr
}

// WithErrWriter allows to specify a custom error writer
func (c *Cli) WithErrWriter(out io.Writer) *Cli {
	c.errOutput = out
	return c
}

// AfterApply hook sets log level
func (c *Cli) AfterApply(_ *kong.Kong, _ kong.Vars) error {
	if c.Debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		val := strings.TrimLeft(c.LogLevel, "=")
		l, err := xlog.ParseLevel(strings.ToUpper(val))
		if err != nil {
			return errors.WithStack(err)
		}
		xlog.SetGlobalLogLevel(l)
	}

	return nil
}

// WriteJSON prints response to out
func (c *Cli) WriteJSON(value any) {
	print.JSON(c.Writer(), value)
}

// ReadFile reads from stdin if the file is "-"
func (c *Cli) ReadFile(filename string) ([]byte, error) {
	if filename == "" {
		return nil, errors.New("empty file name")
	}
	if filename == "-" {
		return io.ReadAll(c.Reader())
	}
	return os.ReadFile(filename)
}

// ReadValue returns the value as is, or reads it from a file
// if the value starts with "@", or from stdin if the value is "-"
func (c *Cli) ReadValue(value string) ([]byte, error) {
	if value == "-" {
		b, err := io.ReadAll(c.Reader())
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return bytes.TrimSpace(b), nil
	}
	if file, ok := strings.CutPrefix(value, "@"); ok {
		b, err := c.ReadFile(file)
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to read %q", file)
		}
		return bytes.TrimSpace(b), nil
	}
	return []byte(value), nil
}

// Provider returns JWT provider loaded from --cfg
func (c *Cli) Provider() (jwt.Provider, error) {
	if c.provider != nil {
		return c.provider, nil
	}
	if c.Cfg == "" {
		return nil, errors.New("use --cfg flag to specify JWT provider config file, or --key")
	}

	p, err := jwt.Load(c.Context(), c.Cfg)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to load provider")
	}
	logger.KV(xlog.DEBUG, "cfg", c.Cfg, "kid", p.KeyID())
	c.provider = p
	return p, nil
}
