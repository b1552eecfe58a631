// detrelay-convert turns detection CSV files into JSON payload files
package main

import (
	"flag"

	"github.com/joho/godotenv"

	"detrelay/internal/convert"
	"detrelay/internal/platform/config"
	"detrelay/internal/platform/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.New().Prefix("DETRELAY_")
	l := logger.Get()

	var (
		fInputDir  = flag.String("input-dir", cfg.MayString("CSV_INPUT_DIR", "."), "directory searched for CSV files")
		fOutputDir = flag.String("output-dir", cfg.MayString("CSV_OUTPUT_DIR", ""), "directory for JSON output (defaults to input dir)")
		fPattern   = flag.String("pattern", cfg.MayString("CSV_PATTERN", "*.csv"), "glob pattern for CSV files")
		fEncoding  = flag.String("encoding", cfg.MayString("CSV_ENCODING", "utf-8"), "CSV source encoding")
	)
	flag.Parse()

	c := convert.New(convert.Options{
		InputDir:  *fInputDir,
		OutputDir: *fOutputDir,
		Pattern:   *fPattern,
		Encoding:  *fEncoding,
	})

	// explicit files beat the directory scan
	if paths := flag.Args(); len(paths) > 0 {
		for _, path := range paths {
			if _, err := c.ConvertFile(path, ""); err != nil {
				l.Fatal().Err(err).Str("file", path).Msg("conversion failed")
			}
		}
		return
	}

	files, err := c.Run()
	if err != nil {
		l.Fatal().Err(err).Msg("conversion run failed")
	}
	l.Info().Int("converted", len(files)).Msg("done")
}
