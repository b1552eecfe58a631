// detrelay-send submits detection payload files to the ingestion API
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
		fRetries     = flag.Int("retries", cfg.MayInt("MAX_RETRIES", 3), "max retry attempts per request")
		fConcurrency = flag.Int("concurrency", cfg.MayInt("MAX_CONCURRENT", 5), "max concurrent requests")
		fTimeout     = flag.Duration("timeout", cfg.MayDuration("TIMEOUT", 30*time.Second), "per-request timeout")
		fCSV         = flag.Bool("csv", false, "treat inputs as CSV files and convert before sending")
		fEncoding    = flag.String("encoding", cfg.MayString("CSV_ENCODING", "utf-8"), "CSV source encoding")
		fNoProgress  = flag.Bool("no-progress", false, "suppress progress log lines")
	)
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		l.Fatal().Msg("no input files; usage: detrelay-send [flags] file.json ...")
	}

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
		MaxRetries:    *fRetries,
		Timeout:       *fTimeout,
		RetryStatus:   cfg.MayIntCSV("RETRY_STATUS", nil),
		Encoding:      *fEncoding,
		Progress:      !*fNoProgress,
	})

	ctx := context.Background()
	var (
		res *batch.Result
		err error
	)
	if *fCSV {
		res, err = p.ProcessCSVFiles(ctx, paths, *fDebug)
	} else {
		res, err = p.ProcessFiles(ctx, paths, *fDebug)
	}
	if err != nil {
		l.Fatal().Err(err).Msg("run failed")
	}

	if err := export.WriteJSON(os.Stdout, res); err != nil {
		l.Fatal().Err(err).Msg("could not render result")
	}
	if res.Failed > 0 && res.Succeeded == 0 {
		os.Exit(1)
	}
}
