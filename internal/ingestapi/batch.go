package ingestapi

import (
	"context"
	"sync"

	"detrelay/internal/payload"
	perr "detrelay/internal/platform/errors"
)

// Outcome is one payload's submission result inside a SubmitMany batch
type Outcome struct {
	Resp *Response
	Err  error
}

// SubmitMany submits every payload concurrently through the shared limiter
// and returns outcomes in input order. With collectErrors, per-payload
// failures are captured in the outcome slice instead of failing the batch;
// without it, the first failure by input order is returned and the
// remaining outcomes are discarded
func (c *Client) SubmitMany(
	ctx context.Context,
	payloads []payload.Payload,
	opts SubmitOptions,
	collectErrors bool,
) ([]Outcome, error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	out := make([]Outcome, len(payloads))
	var wg sync.WaitGroup
	for i, p := range payloads {
		i, p := i, p
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.Submit(ctx, p, opts)
			out[i] = Outcome{Resp: resp, Err: err}
		}()
	}
	wg.Wait()

	if !collectErrors {
		for _, o := range out {
			if o.Err != nil {
				return nil, o.Err
			}
		}
	}
	return out, nil
}

// SubmitLarge validates the whole payload once, partitions its entries into
// chunks of at most chunkSize, submits all chunks concurrently, and sums
// their summaries. Any chunk failure fails the whole submission
func (c *Client) SubmitLarge(
	ctx context.Context,
	p payload.Payload,
	chunkSize int,
	opts SubmitOptions,
) (*Response, error) {
	if err := payload.Validate(&p); err != nil {
		if opts.Recorder != nil {
			opts.Recorder.RecordError(perr.CodeOf(err))
		}
		return nil, perr.WithOp(err, "submit_large")
	}
	if len(p.Data) == 0 {
		return &Response{Summary: &Summary{}}, nil
	}

	chunks := p.Chunks(chunkSize)
	c.log.Info().
		Int("entries", len(p.Data)).
		Int("chunks", len(chunks)).
		Int("chunk_size", chunkSize).
		Msg("splitting oversized payload")

	outcomes, err := c.SubmitMany(ctx, chunks, opts, false)
	if err != nil {
		return nil, err
	}

	total := &Response{Summary: &Summary{}}
	for _, o := range outcomes {
		total.Add(o.Resp)
	}
	return total, nil
}
