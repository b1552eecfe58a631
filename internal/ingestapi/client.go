package ingestapi

import (
	"bytes"
	"context"
	"encoding/json"
	stderrs "errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"detrelay/internal/payload"
	perr "detrelay/internal/platform/errors"
	"detrelay/internal/platform/logger"
)

// Client submits detection payloads with typed error classification and
// bounded automatic retry. A single instance is safe for concurrent use;
// all operations share one concurrency limiter
type Client struct {
	http *http.Client
	opts Options
	log  logger.Logger

	semOnce sync.Once
	sem     chan struct{}

	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a Client with sane defaults
func New(o Options) *Client {
	o = o.withDefaults()
	return &Client{
		http:  &http.Client{Timeout: o.Timeout},
		opts:  o,
		log:   *logger.Named("ingestapi"),
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// limiter returns the shared slot pool, created lazily on first use
func (c *Client) limiter() chan struct{} {
	c.semOnce.Do(func() { c.sem = make(chan struct{}, c.opts.MaxConcurrent) })
	return c.sem
}

// Submit sends one payload, retrying transient failures up to the configured
// budget. The payload is validated before anything touches the wire; invalid
// payloads fail with ErrorCodeValidation and zero attempts
func (c *Client) Submit(ctx context.Context, p payload.Payload, opts SubmitOptions) (*Response, error) {
	if err := payload.Validate(&p); err != nil {
		if opts.Recorder != nil {
			opts.Recorder.RecordError(perr.CodeOf(err))
		}
		return nil, perr.WithOp(err, "submit")
	}

	merged := p.MergeOptions(opts.Debug)
	body, err := json.Marshal(merged)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "payload encode failed")
	}

	c.log.Info().
		Int("entries", len(merged.Data)).
		Bool("debug", merged.Options != nil && merged.Options.Debug).
		Msg("sending detections")

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if attempts > 0 {
			c.log.Info().Int("attempt", attempts).Int("max", c.opts.MaxRetries).Msg("retry attempt")
		}

		start := c.now()
		resp, attemptErr := c.attempt(ctx, body)
		lat := c.now().Sub(start)

		if opts.Recorder != nil {
			opts.Recorder.RecordCall(lat, attemptErr == nil, len(merged.Data))
		}

		if attemptErr == nil {
			if resp.Summary != nil {
				c.log.Info().
					Int("submitted", resp.Summary.Submitted).
					Int("processed", resp.Summary.Processed).
					Int("dropped", resp.Summary.Dropped).
					Dur("latency", lat).
					Msg("api call successful")
			} else {
				c.log.Info().Dur("latency", lat).Msg("api call successful")
			}
			return resp, nil
		}

		if stderrs.Is(attemptErr, context.Canceled) {
			return nil, attemptErr
		}

		if !opts.Retry || attempts >= c.opts.MaxRetries || !c.retryable(attemptErr) {
			if opts.Recorder != nil {
				opts.Recorder.RecordError(perr.CodeOf(attemptErr))
			}
			return nil, attemptErr
		}

		wait := c.backoff(attempts)
		if ra := perr.RetryAfterOf(attemptErr); ra > 0 {
			// Retry-After wins over exponential backoff
			wait = time.Duration(ra) * time.Second
		}
		c.log.Warn().
			Err(attemptErr).
			Dur("retry_in", wait).
			Int("attempt", attempts).
			Msg("retryable failure backing off")

		if opts.Recorder != nil {
			opts.Recorder.RecordRetry()
		}
		c.sleep(wait)
		attempts++
	}
}

// attempt performs exactly one network round-trip. A limiter slot is held
// for the duration of the call only; a backing-off request never starves
// other pending requests
func (c *Client) attempt(ctx context.Context, body []byte) (*Response, error) {
	sem := c.limiter()
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-sem }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(body))
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "ingest request build failed")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set(c.opts.TokenHeader, c.opts.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.classifyTransport(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, classifyStatus(resp)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// lenient: callers only need the success signal
		c.log.Warn().Err(err).Msg("could not parse api response as json")
		return &Response{}, nil
	}
	return &out, nil
}

// classifyTransport maps transport errors to timeout vs connection failures
func (c *Client) classifyTransport(err error) error {
	if stderrs.Is(err, context.Canceled) {
		return err
	}
	var ne net.Error
	if stderrs.Is(err, context.DeadlineExceeded) || (stderrs.As(err, &ne) && ne.Timeout()) {
		return perr.Wrapf(err, perr.ErrorCodeTimeout, "request timed out after %s", c.opts.Timeout)
	}
	return perr.Wrapf(err, perr.ErrorCodeConnection, "connection failed")
}

// classifyStatus turns a non-2xx response into its typed failure, carrying
// the status and any Retry-After hint as metadata
func classifyStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := string(body)
	var em struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &em) == nil && em.Message != "" {
		msg = em.Message
	}

	var err error
	switch code := perr.FromStatus(resp.StatusCode); code {
	case perr.ErrorCodeUnauthorized:
		err = perr.Unauthorizedf("authentication failed: %s", msg)
	case perr.ErrorCodeForbidden:
		err = perr.Forbiddenf("access denied: %s", msg)
	case perr.ErrorCodeTooManyRequests:
		err = perr.RateLimitf("rate limit exceeded: %s", msg)
		if ra, perErr := strconv.Atoi(resp.Header.Get("Retry-After")); perErr == nil && ra > 0 {
			err = perr.WithRetryAfter(err, ra)
		}
	case perr.ErrorCodeUnavailable:
		err = perr.Unavailablef("server error (%d): %s", resp.StatusCode, msg)
	default:
		err = perr.Clientf("api error (%d): %s", resp.StatusCode, msg)
	}
	return perr.WithStatus(err, resp.StatusCode)
}

// retryable consults the configured status set for HTTP failures and the
// error taxonomy for transport failures
func (c *Client) retryable(err error) bool {
	if e, ok := perr.As(err); ok && e.Status() != 0 {
		for _, s := range c.opts.RetryStatus {
			if s == e.Status() {
				return true
			}
		}
		return false
	}
	return perr.Retryable(err)
}

// backoff computes the exponential delay for the given attempt index
func (c *Client) backoff(attempt int) time.Duration {
	return c.opts.RetryBase * time.Duration(1<<uint(attempt))
}
