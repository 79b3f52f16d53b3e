// Package main implements the dataingest command line tool: it lists a date
// range of measurement archive objects, downloads and decodes them, and
// writes the resulting cross-linked observation rows to local per-table CSV
// files.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cloud.google.com/go/civil"

	"github.com/DecFox/data/archive"
	"github.com/DecFox/data/db"
	"github.com/DecFox/data/pipeline"
)

// stringListFlag accumulates repeated flag occurrences (and a single
// comma-separated value) into a []string.
type stringListFlag []string

func (f *stringListFlag) String() string {
	return strings.Join(*f, ",")
}

func (f *stringListFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			*f = append(*f, part)
		}
	}
	return nil
}

var (
	fStartDay = flag.String("start-day", "", "First day to process, as YYYY-MM-DD (required).")
	fEndDay   = flag.String("end-day", "", "Day to stop before, as YYYY-MM-DD (required).")

	fCountries stringListFlag
	fTestNames stringListFlag

	fEndpoint = flag.String("endpoint", "s3.amazonaws.com", "S3-compatible endpoint serving the measurement archive.")
	fUseSSL   = flag.Bool("use-ssl", true, "Use TLS when connecting to -endpoint.")

	fCacheDir    = flag.String("cache-dir", "", "Local directory for cached archive downloads (required).")
	fKeepCache   = flag.Bool("keep-cache", false, "Keep downloaded files in -cache-dir after processing instead of deleting them.")
	fOutputDir   = flag.String("output-dir", "", "Directory to write per-table CSV output into (required).")
	fParallelism = flag.Int("parallelism", 0, "Number of archive files processed concurrently (0 uses the pipeline default).")
	fProgress    = flag.Bool("progress", true, "Print a live progress bar to stderr.")
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	flag.Var(&fCountries, "country", "Country code to include (repeatable, or comma-separated); default is all countries.")
	flag.Var(&fTestNames, "test-name", "Test name to include (repeatable, or comma-separated); default is all test names.")
}

func main() {
	flag.Parse()

	startDay, endDay, err := parseRange(*fStartDay, *fEndDay)
	if err != nil {
		log.Fatal(err)
	}
	if *fCacheDir == "" || *fOutputDir == "" {
		log.Fatal("-cache-dir and -output-dir are required")
	}
	if err := os.MkdirAll(*fOutputDir, 0o755); err != nil {
		log.Fatalf("output-dir: %v", err)
	}

	store, err := archive.NewAnonymousObjectStore(*fEndpoint, *fUseSSL)
	if err != nil {
		log.Fatalf("object store: %v", err)
	}

	writer := db.NewCSVWriter(*fOutputDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := pipeline.Options{
		Countries:   fCountries,
		TestNames:   fTestNames,
		StartDay:    startDay,
		EndDay:      endDay,
		Writer:      writer,
		CacheRoot:   *fCacheDir,
		KeepCache:   *fKeepCache,
		Parallelism: *fParallelism,
	}
	if *fProgress {
		opts.ProgressOutput = os.Stderr
	}

	summary, runErr := pipeline.ProcessRange(ctx, store, opts)
	if closeErr := writer.Close(); closeErr != nil {
		log.Printf("close writer: %v", closeErr)
	}
	if runErr != nil {
		if ctx.Err() != nil {
			log.Printf("process range: %v", runErr)
			os.Exit(130)
		}
		log.Fatalf("process range: %v", runErr)
	}

	log.Println(summary.String())

	if ctx.Err() != nil {
		os.Exit(130)
	}
}

func parseRange(startStr, endStr string) (civil.Date, civil.Date, error) {
	if startStr == "" || endStr == "" {
		return civil.Date{}, civil.Date{}, fmt.Errorf("-start-day and -end-day are required")
	}
	start, err := civil.ParseDate(startStr)
	if err != nil {
		return civil.Date{}, civil.Date{}, fmt.Errorf("-start-day: %w", err)
	}
	end, err := civil.ParseDate(endStr)
	if err != nil {
		return civil.Date{}, civil.Date{}, fmt.Errorf("-end-day: %w", err)
	}
	return start, end, nil
}
