package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/metrics"
	"github.com/effective-security/metrics/prometheus"
	"github.com/effective-security/xjwt/authz"
	"github.com/effective-security/xjwt/es256"
	"github.com/effective-security/xjwt/jwt"
	"github.com/effective-security/xjwt/keys"
	"github.com/effective-security/xjwt/metricskey"
	"github.com/effective-security/xlog"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// ServeCmd serves nginx auth_request token validation
type ServeCmd struct {
	Listen  string `help:"Address to listen on" default:":8080" env:"LISTEN_ADDR"`
	Key     string `help:"Public key file, PEM or JWK. The key verifies tokens with any kid" env:"JWKS_PATH"`
	JWKSURL string `name:"jwks-url" help:"URL of JWKS to verify tokens" env:"JWKS_URL"`
}

// Run the command
func (a *ServeCmd) Run(ctx *Cli) error {
	parser, err := a.Parser(ctx)
	if err != nil {
		return err
	}

	srv, err := NewServer(a.Listen, parser, promclient.NewRegistry())
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.KV(xlog.NOTICE, "status", "listening", "addr", a.Listen)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err = <-errs:
	case <-sigCtx.Done():
		logger.KV(xlog.NOTICE, "status", "shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.WithMessagef(err, "unable to serve")
	}
	return nil
}

// Parser returns token parser for --key, --jwks-url or --cfg
func (a *ServeCmd) Parser(ctx *Cli) (jwt.Parser, error) {
	switch {
	case a.Key != "" && a.JWKSURL != "":
		return nil, errors.New("--key and --jwks-url are mutually exclusive")
	case a.Key != "":
		pub, err := keys.LoadPublicKeyFile(a.Key)
		if err != nil {
			return nil, err
		}
		return jwt.NewParser(jwt.KeySetFunc(func(context.Context, string) (*es256.PublicKey, error) {
			return pub, nil
		})), nil
	case a.JWKSURL != "":
		return jwt.NewParser(jwt.NewRemoteKeySet(ctx.Context(), a.JWKSURL)), nil
	}
	return ctx.Provider()
}

// NewServer returns HTTP server for the authz handler,
// with metrics reported to the registry
func NewServer(addr string, parser jwt.Parser, reg *promclient.Registry) (*http.Server, error) {
	cfg := metrics.DefaultConfig("xjwt")
	cfg.EnableRuntimeMetrics = false

	opts := prometheus.DefaultPrometheusOpts
	opts.Help = cfg.Help(metricskey.Metrics)
	opts.Registerer = reg
	sink, err := prometheus.NewSinkFrom(opts)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to create metrics sink")
	}
	if _, err = metrics.NewGlobal(cfg, sink); err != nil {
		return nil, errors.WithMessagef(err, "unable to create metrics")
	}

	return &http.Server{
		Addr:              addr,
		Handler:           authz.New(parser).Handler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}
