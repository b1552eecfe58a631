// detrelay-batch runs high-volume submission jobs: whole directories of
// payload files, CSV inputs, or one oversized payload split into batches.
// Reports are written as JSON and CSV when an export dir is given
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"

	"detrelay/internal/batch"
	"detrelay/internal/export"
	"detrelay/internal/platform/config"
	"detrelay/internal/platform/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.New().Prefix("DETRELAY_")
	l := logger.Get()

	var (
		fToken       = flag.String("token", "", "API token (defaults to DETRELAY_API_TOKEN)")
		fURL         = flag.String("url", "", "ingestion endpoint (defaults to DETRELAY_API_URL)")
		fDebug       = flag.Bool("debug", false, "submit in debug mode (server-side dry run)")
		fBatchSize   = flag.Int("batch-size", cfg.MayInt("BATCH_SIZE", 100), "max entries per request when splitting")
		fConcurrency = flag.Int("concurrency", cfg.MayInt("MAX_CONCURRENT", 5), "max concurrent requests")
		fRetries     = flag.Int("retries", cfg.MayInt("MAX_RETRIES", 3), "max retry attempts per request")
		fTimeout     = flag.Duration("timeout", cfg.MayDuration("TIMEOUT", 30*time.Second), "per-request timeout")

		fDir       = flag.String("dir", "", "process every matching file under this directory")
		fPattern   = flag.String("pattern", "*.json", "glob pattern used with -dir")
		fRecursive = flag.Bool("recursive", false, "search subdirectories with -dir")
		fCSV       = flag.Bool("csv", false, "treat positional inputs as CSV files")
		fEncoding  = flag.String("encoding", cfg.MayString("CSV_ENCODING", "utf-8"), "CSV source encoding")
		fLarge     = flag.Bool("large", false, "split one oversized payload file into batches")

		fNoProgress = flag.Bool("no-progress", false, "suppress progress log lines")

		fExportDir = flag.String("export-dir", cfg.MayString("EXPORT_DIR", ""), "write JSON/CSV reports into this directory")
	)
	flag.Parse()

	token := *fToken
	if token == "" {
		token = cfg.MustString("API_TOKEN")
	}
	url := *fURL
	if url == "" {
		url = cfg.MustString("API_URL")
	}

	p := batch.New(batch.Config{
		Token:         token,
		URL:           url,
		MaxConcurrent: *fConcurrency,
		BatchSize:     *fBatchSize,
		MaxRetries:    *fRetries,
		Timeout:       *fTimeout,
		RetryStatus:   cfg.MayIntCSV("RETRY_STATUS", nil),
		Encoding:      *fEncoding,
		Progress:      !*fNoProgress,
	})

	ctx := context.Background()
	paths := flag.Args()

	var (
		res *batch.Result
		err error
	)
	switch {
	case *fDir != "":
		res, err = p.ProcessDirectory(ctx, *fDir, *fPattern, *fRecursive, *fDebug)
	case *fLarge:
		if len(paths) != 1 {
			l.Fatal().Msg("-large takes exactly one payload file")
		}
		res, err = p.ProcessLargeFile(ctx, paths[0], *fDebug)
	case *fCSV:
		if len(paths) == 0 {
			l.Fatal().Msg("no csv files given")
		}
		res, err = p.ProcessCSVFiles(ctx, paths, *fDebug)
	default:
		if len(paths) == 0 {
			l.Fatal().Msg("no input files; use -dir, -large or positional paths")
		}
		res, err = p.ProcessFiles(ctx, paths, *fDebug)
	}
	if err != nil {
		l.Fatal().Err(err).Msg("batch run failed")
	}

	if *fExportDir != "" {
		e := export.New(*fExportDir)
		if _, err := e.ExportJSON(res, ""); err != nil {
			l.Error().Err(err).Msg("json report failed")
		}
		if _, err := e.ExportSummaryCSV([]*batch.Result{res}, ""); err != nil {
			l.Error().Err(err).Msg("summary report failed")
		}
		if len(res.Failures) > 0 {
			if _, err := e.ExportErrorsCSV([]*batch.Result{res}, ""); err != nil {
				l.Error().Err(err).Msg("errors report failed")
			}
		}
	}

	if err := export.WriteJSON(os.Stdout, res); err != nil {
		l.Fatal().Err(err).Msg("could not render result")
	}
	if res.Failed > 0 && res.Succeeded == 0 {
		os.Exit(1)
	}
}
