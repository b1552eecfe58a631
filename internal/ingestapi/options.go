// Package ingestapi provides a resilient client for the detection ingestion
// API: one HTTP submission per call, typed failure classification, bounded
// retry with backoff, and a per-client concurrency ceiling
package ingestapi

import (
	"time"

	perr "detrelay/internal/platform/errors"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultUA            = "detrelay"
	defaultMaxRetries    = 3
	defaultRetryBase     = 1 * time.Second
	defaultMaxConcurrent = 5
	defaultTokenHeader   = "X-API-Token"
)

// defaultRetryStatus are the response codes worth a second attempt
var defaultRetryStatus = []int{429, 500, 502, 503, 504}

// Options configures the Client
type Options struct {
	// URL is the ingestion endpoint; required
	URL string

	// Token is the bearer credential sent on every request; required
	Token string

	// TokenHeader overrides the header carrying the token
	TokenHeader string

	UserAgent string
	Timeout   time.Duration

	// Retry config for transient and rate limited responses
	MaxRetries  int
	RetryBase   time.Duration
	RetryStatus []int

	// MaxConcurrent bounds in-flight requests across all operations
	// issued through one client instance
	MaxConcurrent int
}

// withDefaults fills the zero-valued knobs
func (o Options) withDefaults() Options {
	if o.TokenHeader == "" {
		o.TokenHeader = defaultTokenHeader
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	if o.RetryStatus == nil {
		o.RetryStatus = defaultRetryStatus
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = defaultMaxConcurrent
	}
	return o
}

// SubmitOptions tune one logical submission
type SubmitOptions struct {
	// Debug forces options.debug on the merged payload (dry-run server side)
	Debug bool

	// Retry enables the bounded retry loop; when false any failure,
	// retryable or not, surfaces immediately without sleeping
	Retry bool

	// Recorder optionally observes attempts, retries and failures.
	// Satisfied by *metrics.Recorder
	Recorder Recorder
}

// Recorder observes client activity for one run
type Recorder interface {
	RecordCall(latency time.Duration, success bool, batchSize int)
	RecordRetry()
	RecordError(code perr.ErrorCode)
}
