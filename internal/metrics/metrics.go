// Package metrics tracks per-run performance of API submissions: call
// counts, latency spread, throughput, batch sizes and an error histogram
package metrics

import (
	"sync"
	"time"

	perr "detrelay/internal/platform/errors"
	"detrelay/internal/platform/logger"
	ptime "detrelay/internal/platform/time"

	"github.com/rs/zerolog"
)

// Recorder accumulates metrics for one batch run. Safe for concurrent use
// by the run's submission goroutines; never shared across runs
type Recorder struct {
	mu sync.Mutex

	calls   int
	success int
	failed  int

	sumLatency time.Duration
	minLatency time.Duration
	maxLatency time.Duration

	retries  int
	entities int

	batchSizes []int

	errors map[string]int

	started time.Time
	ended   time.Time

	now  func() time.Time // seam for tests
	prom *Prom            // optional prometheus view
}

// New returns an empty Recorder
func New() *Recorder {
	return &Recorder{
		errors: make(map[string]int),
		now:    time.Now,
	}
}

// WithProm attaches a prometheus counter view updated alongside the recorder
func (r *Recorder) WithProm(p *Prom) *Recorder {
	r.prom = p
	return r
}

// Start marks the beginning of the measured run
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = r.now()
}

// End marks the end of the measured run
func (r *Recorder) End() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = r.now()
}

// RecordCall records one completed API attempt. Latency feeds the min/max/avg
// spread only on success; batchSize > 0 is tracked for the batching section
func (r *Recorder) RecordCall(latency time.Duration, success bool, batchSize int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if success {
		r.success++
		r.sumLatency += latency
		if r.minLatency == 0 || latency < r.minLatency {
			r.minLatency = latency
		}
		if latency > r.maxLatency {
			r.maxLatency = latency
		}
	} else {
		r.failed++
	}
	if batchSize > 0 {
		r.batchSizes = append(r.batchSizes, batchSize)
	}
	if r.prom != nil {
		r.prom.recordCall(latency, success)
	}
}

// RecordRetry counts one retry attempt
func (r *Recorder) RecordRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
	if r.prom != nil {
		r.prom.recordRetry()
	}
}

// RecordEntities counts indicators handed to the API
func (r *Recorder) RecordEntities(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities += n
	if r.prom != nil {
		r.prom.recordEntities(n)
	}
}

// RecordError counts a failure under its stable error label
func (r *Recorder) RecordError(code perr.ErrorCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[code.String()]++
	if r.prom != nil {
		r.prom.recordError(code.String())
	}
}

// CallsSummary is the api_calls section of a snapshot
type CallsSummary struct {
	Total       int     `json:"total"`
	Success     int     `json:"success"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// TimeSummary is the time section of a snapshot; latencies are in seconds
type TimeSummary struct {
	TotalSeconds float64    `json:"total_seconds"`
	Start        *time.Time `json:"start"`
	End          *time.Time `json:"end"`
	AvgCallTime  float64    `json:"avg_call_time"`
	MinCallTime  float64    `json:"min_call_time"`
	MaxCallTime  float64    `json:"max_call_time"`
}

// ThroughputSummary is the throughput section of a snapshot
type ThroughputSummary struct {
	EntitiesProcessed int     `json:"entities_processed"`
	EntitiesPerSecond float64 `json:"entities_per_second"`
}

// BatchingSummary is the batching section of a snapshot. OptimalBatchSize is
// the arithmetic mean of observed batch sizes
type BatchingSummary struct {
	BatchCount       int `json:"batch_count"`
	OptimalBatchSize int `json:"optimal_batch_size"`
}

// Summary is a point-in-time view of the recorder
type Summary struct {
	APICalls   CallsSummary      `json:"api_calls"`
	Time       TimeSummary       `json:"time"`
	Retries    int               `json:"retries"`
	Throughput ThroughputSummary `json:"throughput"`
	Batching   BatchingSummary   `json:"batching"`
	Errors     map[string]int    `json:"errors"`
}

// Snapshot returns the current summary. Safe to call while the run is live;
// elapsed time then reads up to now instead of the end mark
func (r *Recorder) Snapshot() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := r.elapsedLocked()

	s := Summary{
		APICalls: CallsSummary{
			Total:   r.calls,
			Success: r.success,
			Failed:  r.failed,
		},
		Time: TimeSummary{
			TotalSeconds: elapsed.Seconds(),
			Start:        ptime.Ptr(r.started),
			End:          ptime.Ptr(r.ended),
			MinCallTime:  r.minLatency.Seconds(),
			MaxCallTime:  r.maxLatency.Seconds(),
		},
		Retries: r.retries,
		Throughput: ThroughputSummary{
			EntitiesProcessed: r.entities,
		},
		Batching: BatchingSummary{
			BatchCount: len(r.batchSizes),
		},
		Errors: make(map[string]int, len(r.errors)),
	}
	if r.calls > 0 {
		s.APICalls.SuccessRate = float64(r.success) / float64(r.calls) * 100
	}
	if r.success > 0 {
		s.Time.AvgCallTime = (r.sumLatency / time.Duration(r.success)).Seconds()
	}
	if r.entities > 0 && elapsed > 0 {
		s.Throughput.EntitiesPerSecond = float64(r.entities) / elapsed.Seconds()
	}
	if len(r.batchSizes) > 0 {
		sum := 0
		for _, b := range r.batchSizes {
			sum += b
		}
		s.Batching.OptimalBatchSize = sum / len(r.batchSizes)
	}
	for k, v := range r.errors {
		s.Errors[k] = v
	}
	return s
}

func (r *Recorder) elapsedLocked() time.Duration {
	if r.started.IsZero() {
		return 0
	}
	end := r.ended
	if end.IsZero() {
		end = r.now()
	}
	return end.Sub(r.started)
}

// LogSummary renders the multi-line digest at the given level
func (r *Recorder) LogSummary(log *logger.Logger, level zerolog.Level) {
	s := r.Snapshot()

	log.WithLevel(level).Msg("performance summary:")
	log.WithLevel(level).
		Float64("total_seconds", s.Time.TotalSeconds).
		Msgf("total time: %.2fs", s.Time.TotalSeconds)
	log.WithLevel(level).
		Int("total", s.APICalls.Total).
		Int("success", s.APICalls.Success).
		Int("failed", s.APICalls.Failed).
		Msgf("api calls: %d total, %d success, %d failed (%.1f%% success rate)",
			s.APICalls.Total, s.APICalls.Success, s.APICalls.Failed, s.APICalls.SuccessRate)

	if s.APICalls.Success > 0 {
		log.WithLevel(level).Msgf("call times: avg=%.2fs, min=%.2fs, max=%.2fs",
			s.Time.AvgCallTime, s.Time.MinCallTime, s.Time.MaxCallTime)
	}
	if s.Retries > 0 {
		log.WithLevel(level).Int("retries", s.Retries).Msgf("retries: %d", s.Retries)
	}
	if s.Throughput.EntitiesProcessed > 0 {
		log.WithLevel(level).Msgf("throughput: %d entities in %.2fs (%.2f entities/sec)",
			s.Throughput.EntitiesProcessed, s.Time.TotalSeconds, s.Throughput.EntitiesPerSecond)
	}
	if s.Batching.BatchCount > 0 {
		log.WithLevel(level).Msgf("batching: %d batches, optimal size=%d",
			s.Batching.BatchCount, s.Batching.OptimalBatchSize)
	}
	for typ, count := range s.Errors {
		log.WithLevel(level).Str("error_type", typ).Int("count", count).
			Msgf("errors: %s: %d", typ, count)
	}
}
