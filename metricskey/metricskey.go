package metricskey

import "github.com/effective-security/metrics"

// Perf
var (
	// PerfCryptoOperation is perf metric
	PerfCryptoOperation = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_crypto",
		Help:         "perf_crypto provides the sample metrics of KMS signing operations",
		RequiredTags: []string{"provider", "action"},
	}

	// PerfTokenOperation is perf metric
	PerfTokenOperation = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_jwt",
		Help:         "perf_jwt provides the sample metrics of token operations",
		RequiredTags: []string{"alg", "action"},
	}

	// PerfTokenBatch is perf metric
	PerfTokenBatch = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_jwt_batch",
		Help:         "perf_jwt_batch provides the sample metrics of batch token encoding",
		RequiredTags: []string{"alg"},
	}
)

// HTTP
var (
	// HTTPRequests is counter metric
	HTTPRequests = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "http_requests_total",
		Help:         "http_requests_total provides the number of token validation requests by status",
		RequiredTags: []string{"status"},
	}
)

// Metrics returns slice of metrics from this repo
var Metrics = []*metrics.Describe{
	&PerfCryptoOperation,
	&PerfTokenOperation,
	&PerfTokenBatch,
	&HTTPRequests,
}
