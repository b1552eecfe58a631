package ingestapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"detrelay/internal/payload"
	perr "detrelay/internal/platform/errors"
	"detrelay/internal/platform/testkit"
)

func entries(n int) []payload.Entry {
	out := make([]payload.Entry, n)
	for i := range out {
		out[i] = payload.Entry{
			IoC:       payload.IoC{Type: payload.IoCTypeIP, Value: fmt.Sprintf("10.0.0.%d", i+1)},
			Detection: payload.Detection{Type: payload.DetectionTypePlaybook, ID: "pb-1"},
		}
	}
	return out
}

func newTestClient(t *testing.T, url string, mut func(*Options)) (*Client, *[]time.Duration) {
	t.Helper()
	o := Options{
		URL:       url,
		Token:     "test-token",
		RetryBase: 10 * time.Millisecond,
	}
	if mut != nil {
		mut(&o)
	}
	c := New(o)
	sleeps := &[]time.Duration{}
	testkit.Swap(t, &c.sleep, func(d time.Duration) { *sleeps = append(*sleeps, d) })
	return c, sleeps
}

func okBody(w http.ResponseWriter, submitted int) {
	_ = json.NewEncoder(w).Encode(Response{
		Summary: &Summary{Submitted: submitted, Processed: submitted, Dropped: 0},
	})
}

func TestSubmitSuccess(t *testing.T) {
	var hits atomic.Int32
	var gotToken, gotUA, gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotToken = r.Header.Get("X-API-Token")
		gotUA = r.Header.Get("User-Agent")
		gotCT = r.Header.Get("Content-Type")
		okBody(w, 2)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, nil)
	resp, err := c.Submit(context.Background(), payload.Payload{Data: entries(2)}, SubmitOptions{Retry: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", hits.Load())
	}
	if resp.Summary == nil || resp.Summary.Submitted != 2 || resp.Summary.Processed != 2 {
		t.Fatalf("summary = %+v", resp.Summary)
	}
	if gotToken != "test-token" {
		t.Fatalf("token header = %q", gotToken)
	}
	if gotUA != "detrelay" {
		t.Fatalf("user agent = %q", gotUA)
	}
	if gotCT != "application/json" {
		t.Fatalf("content type = %q", gotCT)
	}
}

func TestSubmitValidatesBeforeWire(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		okBody(w, 1)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, nil)
	p := payload.Payload{Data: []payload.Entry{{
		IoC:       payload.IoC{Type: "registry", Value: "x"},
		Detection: payload.Detection{Type: "playbook"},
	}}}
	_, err := c.Submit(context.Background(), p, SubmitOptions{Retry: true})
	if err == nil {
		t.Fatal("want validation error")
	}
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("code = %v", perr.CodeOf(err))
	}
	testkit.MustContain(t, err.Error(), "validation error at")
	if hits.Load() != 0 {
		t.Fatalf("invalid payload reached the wire, hits = %d", hits.Load())
	}
}

func TestSubmitRetryBound(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, sleeps := newTestClient(t, srv.URL, func(o *Options) { o.MaxRetries = 2 })
	_, err := c.Submit(context.Background(), payload.Payload{Data: entries(1)}, SubmitOptions{Retry: true})
	if err == nil {
		t.Fatal("want failure after exhausting retries")
	}
	if !perr.IsCode(err, perr.ErrorCodeUnavailable) {
		t.Fatalf("code = %v", perr.CodeOf(err))
	}
	if e, ok := perr.As(err); !ok || e.Status() != http.StatusInternalServerError {
		t.Fatalf("status not carried: %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("hits = %d, want max_retries+1 = 3", hits.Load())
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	if len(*sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", *sleeps, want)
	}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Fatalf("sleep[%d] = %v, want %v", i, (*sleeps)[i], want[i])
		}
	}
}

func TestSubmitNonRetryableShortCircuits(t *testing.T) {
	cases := []struct {
		status int
		code   perr.ErrorCode
	}{
		{http.StatusUnauthorized, perr.ErrorCodeUnauthorized},
		{http.StatusForbidden, perr.ErrorCodeForbidden},
		{http.StatusBadRequest, perr.ErrorCodeClient},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				http.Error(w, `{"message":"nope"}`, tc.status)
			}))
			defer srv.Close()

			c, sleeps := newTestClient(t, srv.URL, nil)
			_, err := c.Submit(context.Background(), payload.Payload{Data: entries(1)}, SubmitOptions{Retry: true})
			if !perr.IsCode(err, tc.code) {
				t.Fatalf("code = %v, want %v", perr.CodeOf(err), tc.code)
			}
			if hits.Load() != 1 {
				t.Fatalf("hits = %d, want 1", hits.Load())
			}
			if len(*sleeps) != 0 {
				t.Fatalf("slept %v on a non-retryable failure", *sleeps)
			}
		})
	}
}

func TestSubmitRetryStatusSet(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, `{"message":"flaky"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	// with 503 out of the configured set, the first failure surfaces
	c, sleeps := newTestClient(t, srv.URL, func(o *Options) { o.RetryStatus = []int{429, 500} })
	_, err := c.Submit(context.Background(), payload.Payload{Data: entries(1)}, SubmitOptions{Retry: true})
	if !perr.IsCode(err, perr.ErrorCodeUnavailable) {
		t.Fatalf("code = %v", perr.CodeOf(err))
	}
	if hits.Load() != 1 || len(*sleeps) != 0 {
		t.Fatalf("hits = %d sleeps = %v, want 1 attempt and no backoff", hits.Load(), *sleeps)
	}

	// back in the set, the same status is retried up to the budget
	hits.Store(0)
	c, sleeps = newTestClient(t, srv.URL, func(o *Options) {
		o.RetryStatus = []int{503}
		o.MaxRetries = 1
	})
	_, err = c.Submit(context.Background(), payload.Payload{Data: entries(1)}, SubmitOptions{Retry: true})
	if err == nil {
		t.Fatal("want failure after exhausting retries")
	}
	if hits.Load() != 2 || len(*sleeps) != 1 {
		t.Fatalf("hits = %d sleeps = %v, want one retry", hits.Load(), *sleeps)
	}
}

func TestSubmitRetryDisabled(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, sleeps := newTestClient(t, srv.URL, nil)
	_, err := c.Submit(context.Background(), payload.Payload{Data: entries(1)}, SubmitOptions{Retry: false})
	if !perr.IsCode(err, perr.ErrorCodeUnavailable) {
		t.Fatalf("code = %v", perr.CodeOf(err))
	}
	if hits.Load() != 1 || len(*sleeps) != 0 {
		t.Fatalf("hits = %d sleeps = %v, want single immediate failure", hits.Load(), *sleeps)
	}
}

func TestSubmitRateLimitHonorsRetryAfter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			http.Error(w, `{"message":"slow down"}`, http.StatusTooManyRequests)
			return
		}
		okBody(w, 1)
	}))
	defer srv.Close()

	c, sleeps := newTestClient(t, srv.URL, nil)
	resp, err := c.Submit(context.Background(), payload.Payload{Data: entries(1)}, SubmitOptions{Retry: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.Summary == nil || resp.Summary.Submitted != 1 {
		t.Fatalf("summary = %+v", resp.Summary)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits = %d, want 2", hits.Load())
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 2*time.Second {
		t.Fatalf("sleeps = %v, want exactly the Retry-After hint", *sleeps)
	}
}

func TestSubmitMergesOptionsOnWire(t *testing.T) {
	var got payload.Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		okBody(w, 1)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, nil)

	// no options on the payload: defaults plus caller's debug override
	if _, err := c.Submit(context.Background(), payload.Payload{Data: entries(1)}, SubmitOptions{Debug: true}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.Options == nil || !got.Options.Debug || !got.Options.Summary {
		t.Fatalf("wire options = %+v, want debug and summary on", got.Options)
	}

	// caller options survive; debug override still wins
	p := payload.Payload{Data: entries(1), Options: &payload.Options{Debug: false, Summary: false}}
	if _, err := c.Submit(context.Background(), p, SubmitOptions{Debug: true}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.Options == nil || !got.Options.Debug || got.Options.Summary {
		t.Fatalf("wire options = %+v, want debug on and summary off", got.Options)
	}
	if p.Options.Debug {
		t.Fatal("caller payload mutated by options merge")
	}
}

func TestSubmitLenientBodyParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, nil)
	resp, err := c.Submit(context.Background(), payload.Payload{Data: entries(1)}, SubmitOptions{})
	if err != nil {
		t.Fatalf("unparseable 2xx body must not fail: %v", err)
	}
	if resp == nil || resp.Summary != nil {
		t.Fatalf("resp = %+v, want empty response", resp)
	}
}

func TestSubmitTimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		okBody(w, 1)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, func(o *Options) { o.Timeout = 20 * time.Millisecond })
	_, err := c.Submit(context.Background(), payload.Payload{Data: entries(1)}, SubmitOptions{Retry: false})
	if !perr.IsCode(err, perr.ErrorCodeTimeout) {
		t.Fatalf("code = %v, want timeout", perr.CodeOf(err))
	}
}

func TestSubmitConnectionFailureClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, _ := newTestClient(t, url, nil)
	_, err := c.Submit(context.Background(), payload.Payload{Data: entries(1)}, SubmitOptions{Retry: false})
	if !perr.IsCode(err, perr.ErrorCodeConnection) {
		t.Fatalf("code = %v, want connection", perr.CodeOf(err))
	}
}

func TestSubmitManyPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p payload.Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		if p.Data[0].IoC.Value == "fail.example.com" {
			http.Error(w, `{"message":"bad entry"}`, http.StatusBadRequest)
			return
		}
		okBody(w, len(p.Data))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, nil)
	mk := func(value string) payload.Payload {
		return payload.Payload{Data: []payload.Entry{{
			IoC:       payload.IoC{Type: payload.IoCTypeDomain, Value: value},
			Detection: payload.Detection{Type: payload.DetectionTypeCorrelation},
		}}}
	}
	payloads := []payload.Payload{mk("a.example.com"), mk("fail.example.com"), mk("b.example.com")}

	outcomes, err := c.SubmitMany(context.Background(), payloads, SubmitOptions{}, true)
	if err != nil {
		t.Fatalf("submit many: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}
	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Fatalf("good payloads failed: %v %v", outcomes[0].Err, outcomes[2].Err)
	}
	if !perr.IsCode(outcomes[1].Err, perr.ErrorCodeClient) {
		t.Fatalf("outcome[1] = %v, want the bad payload's failure in place", outcomes[1].Err)
	}

	// without error collection the first failure by input order surfaces
	if _, err := c.SubmitMany(context.Background(), payloads, SubmitOptions{}, false); !perr.IsCode(err, perr.ErrorCodeClient) {
		t.Fatalf("err = %v, want first failure", err)
	}
}

func TestSubmitLargeSumsChunkSummaries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var p payload.Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		if len(p.Data) > 5 {
			t.Errorf("chunk of %d entries exceeds the limit", len(p.Data))
		}
		okBody(w, len(p.Data))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, nil)
	resp, err := c.SubmitLarge(context.Background(), payload.Payload{Data: entries(25)}, 5, SubmitOptions{})
	if err != nil {
		t.Fatalf("submit large: %v", err)
	}
	if hits.Load() != 5 {
		t.Fatalf("hits = %d, want 5 chunks", hits.Load())
	}
	if resp.Summary.Submitted != 25 || resp.Summary.Processed != 25 || resp.Summary.Dropped != 0 {
		t.Fatalf("summary = %+v, want 25/25/0", resp.Summary)
	}
}

func TestSubmitLargeMissingSummariesContributeZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, nil)
	resp, err := c.SubmitLarge(context.Background(), payload.Payload{Data: entries(10)}, 4, SubmitOptions{})
	if err != nil {
		t.Fatalf("submit large: %v", err)
	}
	if resp.Summary == nil || resp.Summary.Submitted != 0 {
		t.Fatalf("summary = %+v, want zero aggregate", resp.Summary)
	}
}

func TestConcurrencyCeiling(t *testing.T) {
	var inflight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inflight.Add(-1)
		okBody(w, 1)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, func(o *Options) { o.MaxConcurrent = 2 })
	payloads := make([]payload.Payload, 8)
	for i := range payloads {
		payloads[i] = payload.Payload{Data: entries(1)}
	}
	if _, err := c.SubmitMany(context.Background(), payloads, SubmitOptions{}, false); err != nil {
		t.Fatalf("submit many: %v", err)
	}
	if got := peak.Load(); got > 2 {
		t.Fatalf("peak in-flight = %d, want at most 2", got)
	}
}

func TestSubmitContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		okBody(w, 1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, _ := newTestClient(t, srv.URL, nil)
	if _, err := c.Submit(ctx, payload.Payload{Data: entries(1)}, SubmitOptions{}); err == nil {
		t.Fatal("want error on cancelled context")
	}
}
