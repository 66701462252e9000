package jwt

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjwt/canonical"
	"github.com/effective-security/xjwt/es256"
	"github.com/effective-security/xjwt/metricskey"
	"golang.org/x/sync/errgroup"
)

// EncodeBatch returns tokens for the claims in the same order,
// signed concurrently by at most workers goroutines.
// The first error cancels remaining work.
func EncodeBatch(ctx context.Context, claims []*canonical.Object, signer es256.MessageSigner, workers int, opts ...EncodeOption) ([]string, error) {
	defer metricskey.PerfTokenBatch.MeasureSince(time.Now(), ES256.String())

	if workers < 1 {
		workers = 1
	}

	tokens := make([]string, len(claims))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range claims {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			token, err := EncodeWithSigner(claims[i], signer, ES256, opts...)
			if err != nil {
				return errors.WithMessagef(err, "claims[%d]", i)
			}
			tokens[i] = token
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return tokens, nil
}
