// Package pipeline wires the archive, cache, container, measurement,
// observation and db packages into one end-to-end ingestion run, the same
// role the teacher's task.Task plays for a single tar file, generalized
// across a whole date range with a bounded worker pool in place of the
// single-goroutine ProcessAllTests loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/errgroup"

	"github.com/DecFox/data/archive"
	"github.com/DecFox/data/cache"
	"github.com/DecFox/data/container"
	"github.com/DecFox/data/db"
	"github.com/DecFox/data/measurement"
	"github.com/DecFox/data/metrics"
	"github.com/DecFox/data/observation"
)

// Options configures a ProcessRange run.
type Options struct {
	Countries []string
	TestNames []string
	StartDay  civil.Date
	EndDay    civil.Date

	Writer       db.Writer
	NetInfo      observation.NetInfoDB      // nil uses observation.NopNetInfoDB.
	Fingerprints observation.FingerprintDB  // nil uses observation.NopFingerprintDB.

	CacheRoot   string
	KeepCache   bool
	Parallelism int // number of files processed concurrently; <=0 uses defaultParallelism.

	// ProgressOutput, if non-nil, receives a live byte-throughput bar for
	// the duration of the run.
	ProgressOutput io.Writer
}

// Summary reports on one ProcessRange run's outcome. Counters are updated
// from multiple goroutines, so read them only after ProcessRange returns.
type Summary struct {
	FilesListed         int64
	FilesProcessed      int64
	FilesFailed         int64
	MeasurementsWritten int64
}

// defaultParallelism caps concurrency at 24 archive files at once, but never
// exceeds the machine's CPU count.
func defaultParallelism() int {
	if n := runtime.NumCPU(); n < 24 {
		return n
	}
	return 24
}

// errWrite marks a processOne failure caused by opts.Writer rejecting a row.
var errWrite = errors.New("write")

type dayBatch struct {
	day     civil.Date
	entries []archive.FileEntry
}

// ProcessRange lists every archive object in [opts.StartDay, opts.EndDay),
// downloads and caches it, decodes and transforms every measurement it
// contains, and writes the resulting observation rows through opts.Writer.
// A single file's failure is logged and counted rather than aborting the
// run, mirroring the teacher's ProcessAllTests loop (task/task.go). A
// download size mismatch (cache.ErrSizeMismatch) or a row the Writer
// rejects is also counted as a failed file but ends the run with that
// error, as do a listing error and context cancellation.
func ProcessRange(ctx context.Context, store archive.ObjectStore, opts Options) (Summary, error) {
	netinfo := opts.NetInfo
	if netinfo == nil {
		netinfo = observation.NopNetInfoDB{}
	}
	fingerprints := opts.Fingerprints
	if fingerprints == nil {
		fingerprints = observation.NopFingerprintDB{}
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism()
	}

	entries, listErrs := archive.ListForRange(ctx, store, opts.Countries, opts.TestNames, opts.StartDay, opts.EndDay)
	batches := groupByDay(entries)

	est := newEstimator(time.Now(), opts.StartDay, opts.EndDay)
	var summary Summary

	var progress *progressReporter
	if opts.ProgressOutput != nil {
		progress = newProgressReporter(opts.ProgressOutput)
		defer progress.finish()
	}

	metrics.WorkerState.WithLabelValues("process_range").Inc()
	defer metrics.WorkerState.WithLabelValues("process_range").Dec()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for batch := range batches {
		total := len(batch.entries)
		for i, entry := range batch.entries {
			i, entry := i, entry
			atomic.AddInt64(&summary.FilesListed, 1)
			metrics.ETASeconds.Set(est.Update(time.Now(), batch.day, i, total).Seconds())
			if progress != nil {
				progress.fileListed(entry.SizeBytes)
			}

			g.Go(func() error {
				if err := processOne(gctx, store, entry, opts, netinfo, fingerprints, &summary); err != nil {
					atomic.AddInt64(&summary.FilesFailed, 1)
					log.Printf("pipeline: %s: %v", entry.ObjectPath, err)
					if errors.Is(err, cache.ErrSizeMismatch) || errors.Is(err, errWrite) {
						return err
					}
					return nil
				}
				atomic.AddInt64(&summary.FilesProcessed, 1)
				metrics.BytesProcessed.Add(float64(entry.SizeBytes))
				if progress != nil {
					progress.fileDone(entry.SizeBytes)
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}

	for err := range listErrs {
		if err != nil {
			return summary, err
		}
	}

	return summary, nil
}

// processOne downloads, decodes, transforms and writes every measurement in
// a single archive file. Per-measurement decode/transform failures are
// logged and skipped; a failure to fetch, stream, or write is fatal to the
// file (returned to the caller) since it indicates the file or the sink is
// unusable rather than one bad record among many.
func processOne(ctx context.Context, store archive.ObjectStore, entry archive.FileEntry, opts Options, netinfo observation.NetInfoDB, fingerprints observation.FingerprintDB, summary *Summary) error {
	metrics.WorkerState.WithLabelValues("download").Inc()
	localPath, err := cache.Fetch(ctx, store, entry, opts.CacheRoot)
	metrics.WorkerState.WithLabelValues("download").Dec()
	if err != nil {
		return fmt.Errorf("fetch %s: %w", entry.ObjectPath, err)
	}
	defer cache.Release(entry, opts.CacheRoot, opts.KeepCache)

	metrics.WorkerState.WithLabelValues("transform").Inc()
	defer metrics.WorkerState.WithLabelValues("transform").Dec()

	raws, rerrs := container.Stream(ctx, localPath, entry.Ext)
	for raw := range raws {
		m, err := measurement.Decode(raw.Body, raw.UID)
		if err != nil {
			metrics.RecordParseErrors.WithLabelValues(entry.Ext).Inc()
			log.Printf("pipeline: decode %s/%s: %v", entry.ObjectPath, raw.UID, err)
			continue
		}
		result, err := observation.Transform(m, netinfo, fingerprints)
		if err != nil {
			metrics.UnknownTestName.WithLabelValues(m.TestName).Inc()
			log.Printf("pipeline: transform %s: %v", m.MeasurementUID, err)
			continue
		}
		if err := writeResult(ctx, opts.Writer, result); err != nil {
			return fmt.Errorf("%w %s: %w", errWrite, m.MeasurementUID, err)
		}
		atomic.AddInt64(&summary.MeasurementsWritten, 1)
	}

	select {
	case err := <-rerrs:
		if err != nil {
			return fmt.Errorf("stream %s: %w", entry.ObjectPath, err)
		}
	default:
	}
	return nil
}

func writeResult(ctx context.Context, w db.Writer, result observation.Result) error {
	for _, row := range result.WebObservations {
		if err := w.WriteRow(ctx, "web_observation", db.RowOf(row)); err != nil {
			return err
		}
	}
	for _, row := range result.WebControlObservations {
		if err := w.WriteRow(ctx, "web_control_observation", db.RowOf(row)); err != nil {
			return err
		}
	}
	for _, row := range result.HTTPMiddleboxObservations {
		if err := w.WriteRow(ctx, "http_middlebox_observation", row.Row()); err != nil {
			return err
		}
	}
	return nil
}

// groupByDay batches consecutive same-day entries together, so the
// estimator can compute fileIndex/fileCount progress within a day the same
// way the original tracks progress within a single can's record count.
// ListForRange emits entries day-ordered, so each day appears as exactly
// one batch.
func groupByDay(entries <-chan archive.FileEntry) <-chan dayBatch {
	out := make(chan dayBatch)
	go func() {
		defer close(out)
		var current *dayBatch
		for e := range entries {
			if current != nil && current.day != e.Day {
				out <- *current
				current = nil
			}
			if current == nil {
				current = &dayBatch{day: e.Day}
			}
			current.entries = append(current.entries, e)
		}
		if current != nil {
			out <- *current
		}
	}()
	return out
}
