// Package export renders batch results and their performance metrics as
// JSON or CSV reports
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"detrelay/internal/batch"
	perr "detrelay/internal/platform/errors"
	"detrelay/internal/platform/logger"
)

// Exporter writes report files into a target directory
type Exporter struct {
	dir string
	log logger.Logger

	now func() time.Time
}

// New creates an Exporter rooted at dir, defaulting to the working directory
func New(dir string) *Exporter {
	if dir == "" {
		dir = "."
	}
	return &Exporter{dir: dir, log: *logger.Named("export"), now: time.Now}
}

// WriteJSON renders one result, metrics included, as indented JSON
func WriteJSON(w io.Writer, res *batch.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeJSON, "result encode failed")
	}
	return nil
}

// summaryHeader is the column order of summary CSV reports
var summaryHeader = []string{
	"run_id", "submitted", "processed", "dropped", "success_rate",
	"succeeded", "failed", "total_time_seconds", "avg_call_time_seconds",
	"entities_processed", "entities_per_second",
}

// WriteSummaryCSV renders one row per result with totals and timing columns
func WriteSummaryCSV(w io.Writer, results []*batch.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeFile, "summary csv write failed")
	}
	for _, res := range results {
		rate := 0.0
		if res.Submitted > 0 {
			rate = float64(res.Processed) / float64(res.Submitted) * 100
		}
		row := []string{
			res.RunID,
			strconv.Itoa(res.Submitted),
			strconv.Itoa(res.Processed),
			strconv.Itoa(res.Dropped),
			formatFloat(rate),
			strconv.Itoa(res.Succeeded),
			strconv.Itoa(res.Failed),
			formatFloat(res.Metrics.Time.TotalSeconds),
			formatFloat(res.Metrics.Time.AvgCallTime),
			strconv.Itoa(res.Metrics.Throughput.EntitiesProcessed),
			formatFloat(res.Metrics.Throughput.EntitiesPerSecond),
		}
		if err := cw.Write(row); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeFile, "summary csv write failed")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeFile, "summary csv write failed")
	}
	return nil
}

// errorsHeader is the column order of error CSV reports
var errorsHeader = []string{"run_id", "index", "file", "code", "error"}

// WriteErrorsCSV renders every captured failure across the given results
func WriteErrorsCSV(w io.Writer, results []*batch.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(errorsHeader); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeFile, "errors csv write failed")
	}
	for _, res := range results {
		for _, f := range res.Failures {
			row := []string{res.RunID, strconv.Itoa(f.Index), f.Path, f.Code, f.Error}
			if err := cw.Write(row); err != nil {
				return perr.Wrapf(err, perr.ErrorCodeFile, "errors csv write failed")
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeFile, "errors csv write failed")
	}
	return nil
}

// ExportJSON writes one result to <dir>/<name>. An empty name generates a
// timestamped one
func (e *Exporter) ExportJSON(res *batch.Result, name string) (string, error) {
	if name == "" {
		name = fmt.Sprintf("result_%s.json", e.stamp())
	}
	return e.toFile(name, func(w io.Writer) error { return WriteJSON(w, res) })
}

// ExportSummaryCSV writes the summary report to <dir>/<name>
func (e *Exporter) ExportSummaryCSV(results []*batch.Result, name string) (string, error) {
	if name == "" {
		name = fmt.Sprintf("summary_%s.csv", e.stamp())
	}
	return e.toFile(name, func(w io.Writer) error { return WriteSummaryCSV(w, results) })
}

// ExportErrorsCSV writes the failure report to <dir>/<name>
func (e *Exporter) ExportErrorsCSV(results []*batch.Result, name string) (string, error) {
	if name == "" {
		name = fmt.Sprintf("errors_%s.csv", e.stamp())
	}
	return e.toFile(name, func(w io.Writer) error { return WriteErrorsCSV(w, results) })
}

func (e *Exporter) stamp() string {
	return e.now().Format("20060102_150405")
}

func (e *Exporter) toFile(name string, write func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", perr.WithPath(perr.Wrapf(err, perr.ErrorCodeFile, "failed to create export directory"), e.dir)
	}
	path := filepath.Join(e.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", perr.WithPath(perr.Wrapf(err, perr.ErrorCodeFile, "failed to create report file"), path)
	}
	defer func() { _ = f.Close() }()

	if err := write(f); err != nil {
		return "", perr.WithPath(err, path)
	}
	e.log.Info().Str("file", path).Msg("wrote report")
	return path, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
