// Package batch orchestrates submission runs over many payload files, CSV
// inputs, directories, or oversized single payloads, aggregating outcomes
// and per-run performance metrics
package batch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"detrelay/internal/convert"
	"detrelay/internal/ingestapi"
	"detrelay/internal/metrics"
	"detrelay/internal/payload"
	perr "detrelay/internal/platform/errors"
	"detrelay/internal/platform/logger"
)

const defaultBatchSize = 100

// Config sets up a Processor
type Config struct {
	Token string

	// URL overrides the ingestion endpoint
	URL string

	// MaxConcurrent bounds in-flight requests across the whole run
	MaxConcurrent int

	// BatchSize caps entries per request when splitting large payloads
	BatchSize int

	MaxRetries int
	Timeout    time.Duration

	// RetryStatus overrides the set of HTTP statuses worth retrying
	RetryStatus []int

	// Encoding is the character set of CSV inputs
	Encoding string

	// Progress surfaces per-run progress lines at info level; without it
	// they drop to debug and only outcomes are logged
	Progress bool

	// Registry optionally receives prometheus counters accumulated across
	// all runs of this processor
	Registry prometheus.Registerer
}

// Processor drives multi-input submission runs over one shared client
type Processor struct {
	cfg    Config
	client *ingestapi.Client
	conv   *convert.Converter
	prom   *metrics.Prom
	log    logger.Logger
}

// Failure records one input that could not be submitted
type Failure struct {
	// Path of the originating file, when the input came from disk
	Path string `json:"path,omitempty"`

	// Index of the input within the run, 0-based
	Index int `json:"index"`

	Code  string `json:"code"`
	Error string `json:"error"`
}

// Result aggregates one processing run
type Result struct {
	RunID string `json:"run_id"`

	Submitted int `json:"submitted"`
	Processed int `json:"processed"`
	Dropped   int `json:"dropped"`

	// Succeeded and Failed count inputs, not entries
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	Failures []Failure       `json:"failures,omitempty"`
	Metrics  metrics.Summary `json:"metrics"`
}

// New creates a Processor and its underlying client
func New(cfg Config) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	client := ingestapi.New(ingestapi.Options{
		URL:           cfg.URL,
		Token:         cfg.Token,
		Timeout:       cfg.Timeout,
		MaxRetries:    cfg.MaxRetries,
		RetryStatus:   cfg.RetryStatus,
		MaxConcurrent: cfg.MaxConcurrent,
	})
	p := &Processor{
		cfg:    cfg,
		client: client,
		conv:   convert.New(convert.Options{Encoding: cfg.Encoding}),
		log:    *logger.Named("batch"),
	}
	if cfg.Registry != nil {
		p.prom = metrics.NewProm(cfg.Registry)
	}
	return p
}

// newRecorder returns a fresh per-run recorder, attached to the shared
// prometheus view when one is configured
func (p *Processor) newRecorder() *metrics.Recorder {
	rec := metrics.New()
	if p.prom != nil {
		rec = rec.WithProm(p.prom)
	}
	return rec
}

func (p *Processor) progressLevel() zerolog.Level {
	if p.cfg.Progress {
		return zerolog.InfoLevel
	}
	return zerolog.DebugLevel
}

// ProcessFiles loads each path as a JSON payload file and submits all of
// them concurrently. Read and parse failures propagate immediately since a
// malformed input file is a caller bug; per-submission failures are
// captured into the result, except an authentication failure which aborts
// the whole run
func (p *Processor) ProcessFiles(ctx context.Context, paths []string, debug bool) (*Result, error) {
	payloads := make([]payload.Payload, 0, len(paths))
	for _, path := range paths {
		pl, err := loadPayloadFile(path)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, *pl)
	}
	return p.run(ctx, payloads, paths, debug)
}

// ProcessCSVFiles converts each CSV to a payload first, then submits like
// ProcessFiles. Conversion failures propagate
func (p *Processor) ProcessCSVFiles(ctx context.Context, paths []string, debug bool) (*Result, error) {
	payloads := make([]payload.Payload, 0, len(paths))
	for _, path := range paths {
		pl, err := p.conv.Payload(path)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, *pl)
	}
	return p.run(ctx, payloads, paths, debug)
}

// ProcessDirectory resolves files matching pattern under dir and delegates
// to ProcessFiles. An empty match is not an error
func (p *Processor) ProcessDirectory(ctx context.Context, dir, pattern string, recursive, debug bool) (*Result, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, perr.WithPath(perr.Wrapf(err, perr.ErrorCodeFile, "directory not found"), dir)
	}

	var paths []string
	if recursive {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			if ok, _ := filepath.Match(pattern, d.Name()); ok {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, perr.WithPath(perr.Wrapf(err, perr.ErrorCodeFile, "directory walk failed"), dir)
		}
	} else {
		var err error
		paths, err = filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeFile, "bad file pattern %q", pattern)
		}
	}

	if len(paths) == 0 {
		p.log.Warn().Str("pattern", pattern).Str("dir", dir).Msg("no files matched")
		return &Result{RunID: uuid.NewString()}, nil
	}
	p.log.WithLevel(p.progressLevel()).
		Int("files", len(paths)).Str("pattern", pattern).Str("dir", dir).Msg("found input files")
	return p.ProcessFiles(ctx, paths, debug)
}

// ProcessLargePayload splits one oversized payload into batches of at most
// BatchSize entries and submits them concurrently
func (p *Processor) ProcessLargePayload(ctx context.Context, pl payload.Payload, debug bool) (*Result, error) {
	runID := uuid.NewString()
	rec := p.newRecorder()
	rec.Start()

	log := p.log.With().Str("run_id", runID).Logger()
	log.WithLevel(p.progressLevel()).
		Int("entries", len(pl.Data)).Int("batch_size", p.cfg.BatchSize).Msg("processing large payload")

	resp, err := p.client.SubmitLarge(ctx, pl, p.cfg.BatchSize, ingestapi.SubmitOptions{
		Debug:    debug,
		Retry:    true,
		Recorder: rec,
	})
	rec.End()
	if err != nil {
		return nil, err
	}
	rec.RecordEntities(len(pl.Data))

	res := &Result{RunID: runID, Succeeded: 1, Metrics: rec.Snapshot()}
	addSummary(res, resp)
	rec.LogSummary(&log, p.progressLevel())
	return res, nil
}

// ProcessLargeFile loads one JSON file and delegates to ProcessLargePayload
func (p *Processor) ProcessLargeFile(ctx context.Context, path string, debug bool) (*Result, error) {
	pl, err := loadPayloadFile(path)
	if err != nil {
		return nil, err
	}
	return p.ProcessLargePayload(ctx, *pl, debug)
}

// run submits the loaded payloads and folds the outcomes into a Result
func (p *Processor) run(ctx context.Context, payloads []payload.Payload, paths []string, debug bool) (*Result, error) {
	runID := uuid.NewString()
	res := &Result{RunID: runID}
	if len(payloads) == 0 {
		return res, nil
	}

	rec := p.newRecorder()
	rec.Start()

	log := p.log.With().Str("run_id", runID).Logger()
	log.WithLevel(p.progressLevel()).Int("payloads", len(payloads)).Msg("processing payloads")

	outcomes, err := p.client.SubmitMany(ctx, payloads, ingestapi.SubmitOptions{
		Debug:    debug,
		Retry:    true,
		Recorder: rec,
	}, true)
	rec.End()
	if err != nil {
		return nil, err
	}

	for i, o := range outcomes {
		path := ""
		if i < len(paths) {
			path = paths[i]
		}
		if o.Err != nil {
			// a rejected credential dooms every remaining call too
			if perr.IsCode(o.Err, perr.ErrorCodeUnauthorized) {
				log.Error().Err(o.Err).Str("file", path).Msg("authentication failed, aborting run")
				return nil, o.Err
			}
			log.Error().Err(o.Err).Str("file", path).Msg("submission failed")
			res.Failed++
			res.Failures = append(res.Failures, Failure{
				Path:  path,
				Index: i,
				Code:  perr.CodeOf(o.Err).String(),
				Error: o.Err.Error(),
			})
			continue
		}
		res.Succeeded++
		rec.RecordEntities(len(payloads[i].Data))
		addSummary(res, o.Resp)
	}

	res.Metrics = rec.Snapshot()
	log.Info().
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Int("submitted", res.Submitted).
		Int("processed", res.Processed).
		Int("dropped", res.Dropped).
		Msg("run complete")
	rec.LogSummary(&log, p.progressLevel())
	return res, nil
}

func addSummary(res *Result, resp *ingestapi.Response) {
	if resp == nil || resp.Summary == nil {
		return
	}
	res.Submitted += resp.Summary.Submitted
	res.Processed += resp.Summary.Processed
	res.Dropped += resp.Summary.Dropped
}

// loadPayloadFile reads one JSON payload from disk with typed errors
func loadPayloadFile(path string) (*payload.Payload, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, perr.WithPath(perr.Wrapf(err, perr.ErrorCodeFile, "failed to read payload file"), path)
	}
	var pl payload.Payload
	if err := json.Unmarshal(buf, &pl); err != nil {
		return nil, perr.WithPath(perr.Wrapf(err, perr.ErrorCodeJSON, "invalid json in payload file"), path)
	}
	return &pl, nil
}
