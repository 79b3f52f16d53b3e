// Package container streams individual measurement records out of the
// heterogeneous archive container formats (tar.lz4, json.lz4, yaml.lz4,
// jsonl.gz, tar.gz minicans) without ever materializing a whole file in
// memory.
package container

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/DecFox/data/etl"
	"github.com/DecFox/data/metrics"
)

// RawMeasurement is one record pulled off a container, before it is decoded
// into a measurement.Measurement: the parsed JSON body plus the UID the
// container format supplied (filename-derived for new-format containers,
// empty for legacy ones so the caller falls back to measurement.StableUID).
type RawMeasurement struct {
	Body json.RawMessage
	UID  string
}

// ErrUnknownFormat is returned by Stream when the extension doesn't match
// any known container grammar.
var ErrUnknownFormat = errors.New("container: unknown format")

// Stream opens localPath and streams its records, dispatching on ext (the
// longest matching suffix from etl.Ext*). The returned channels are closed
// once the file is exhausted, an unrecoverable error occurs, or ctx is
// cancelled. Per-record parse failures are logged and the record skipped;
// they do not close the channels early.
func Stream(ctx context.Context, localPath, ext string) (<-chan RawMeasurement, <-chan error) {
	out := make(chan RawMeasurement)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		f, err := os.Open(localPath)
		if err != nil {
			errs <- fmt.Errorf("container: open %s: %w", localPath, err)
			return
		}
		defer f.Close()

		switch ext {
		case etl.ExtTarLZ4:
			err = streamTarLZ4(ctx, f, localPath, out)
		case etl.ExtJSONLZ4:
			err = streamLZ4JSONLines(ctx, f, out)
		case etl.ExtYAMLLZ4:
			err = streamLZ4YAML(ctx, f, localPath, out)
		case etl.ExtJSONLGz:
			err = streamGzipJSONLines(ctx, f, out)
		case etl.ExtTarGz:
			err = streamMinican(ctx, f, out)
		case etl.IndexFilename:
			// silently ignored per the bucket layout contract
		default:
			err = fmt.Errorf("%w: %s", ErrUnknownFormat, ext)
		}
		if err != nil {
			errs <- err
		}
	}()

	return out, errs
}

// streamTarLZ4 iterates an LZ4-framed tar archive member by member. .json
// members yield one record per line; .yaml members are normalized through
// NormalizeLegacyYAML first.
func streamTarLZ4(ctx context.Context, r io.Reader, localPath string, out chan<- RawMeasurement) error {
	lzr := lz4.NewReader(r)
	tr := tar.NewReader(lzr)
	bucketTstamp, reportFilename := legacyCanPathParts(localPath)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("container: tar.lz4 next: %w", err)
		}

		switch {
		case strings.HasSuffix(hdr.Name, ".json"):
			if err := emitJSONLines(ctx, tr, out); err != nil {
				return err
			}
		case strings.HasSuffix(hdr.Name, ".yaml"):
			docs, derrs := NormalizeLegacyYAML(tr, bucketTstamp, reportFilename)
			if err := drainNormalized(ctx, docs, derrs, out); err != nil {
				return err
			}
		default:
			log.Printf("container: skipping unexpected tar.lz4 member %q", hdr.Name)
		}
	}
}

func streamLZ4JSONLines(ctx context.Context, r io.Reader, out chan<- RawMeasurement) error {
	lzr := lz4.NewReader(r)
	return emitJSONLines(ctx, lzr, out)
}

func streamLZ4YAML(ctx context.Context, r io.Reader, localPath string, out chan<- RawMeasurement) error {
	lzr := lz4.NewReader(r)
	bucketTstamp, reportFilename := legacyCanPathParts(localPath)
	docs, derrs := NormalizeLegacyYAML(lzr, bucketTstamp, reportFilename)
	return drainNormalized(ctx, docs, derrs, out)
}

func streamGzipJSONLines(ctx context.Context, r io.Reader, out chan<- RawMeasurement) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("container: gzip: %w", err)
	}
	defer gzr.Close()
	return emitJSONLines(ctx, gzr, out)
}

// streamMinican iterates a tar of *.post envelopes. The tar stream is
// gunzipped when it starts with the gzip magic bytes and read as a plain tar
// otherwise. Each envelope has a "format" field
// of "json" or "yaml"; only "json" is yielded (yaml minicans are skipped
// entirely — the archive never actually produced useful ones). The
// measurement UID is taken from the member filename minus the ".post"
// suffix rather than computed, since new-format containers always carry
// their own UID.
func streamMinican(ctx context.Context, r io.Reader, out chan<- RawMeasurement) error {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("container: minican gzip: %w", err)
		}
		defer gzr.Close()
		src = gzr
	}
	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("container: minican tar next: %w", err)
		}
		if !strings.HasSuffix(hdr.Name, ".post") {
			log.Printf("container: skipping unexpected minican member %q", hdr.Name)
			continue
		}

		var envelope struct {
			Format  string          `json:"format"`
			Content json.RawMessage `json:"content"`
		}
		dec := json.NewDecoder(tr)
		if err := dec.Decode(&envelope); err != nil {
			metrics.RecordParseErrors.WithLabelValues(etl.ExtTarGz).Inc()
			log.Printf("container: skipping unparseable minican envelope %q: %v", hdr.Name, err)
			continue
		}

		switch envelope.Format {
		case "json":
			uid := strings.TrimSuffix(lastPathSegment(hdr.Name), ".post")
			select {
			case out <- RawMeasurement{Body: envelope.Content, UID: uid}:
			case <-ctx.Done():
				return ctx.Err()
			}
		case "yaml":
			metrics.MinicanYAMLSkipped.Inc()
			log.Printf("container: skipping yaml-format minican envelope %q", hdr.Name)
		default:
			log.Printf("container: ignoring minican envelope %q with invalid format %q", hdr.Name, envelope.Format)
		}
	}
}

// emitJSONLines scans r line by line, parsing each non-empty line as one
// JSON record, without ever reading the whole stream into memory.
func emitJSONLines(ctx context.Context, r io.Reader, out chan<- RawMeasurement) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var body json.RawMessage
		if err := json.Unmarshal(line, &body); err != nil {
			metrics.RecordParseErrors.WithLabelValues("jsonl").Inc()
			log.Printf("container: skipping unparseable json line: %v", err)
			continue
		}
		select {
		case out <- RawMeasurement{Body: body}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("container: scan: %w", err)
	}
	return nil
}

func drainNormalized(ctx context.Context, docs <-chan json.RawMessage, derrs <-chan error, out chan<- RawMeasurement) error {
	for {
		select {
		case doc, ok := <-docs:
			if !ok {
				docs = nil
			} else {
				select {
				case out <- RawMeasurement{Body: doc}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		case err, ok := <-derrs:
			if ok && err != nil {
				return err
			}
			derrs = nil
		case <-ctx.Done():
			return ctx.Err()
		}
		if docs == nil && derrs == nil {
			return nil
		}
	}
}

// legacyCanPathParts extracts (bucket_tstamp, report_filename) the way
// s3feeder.py does: bucket_tstamp is the parent directory name, and
// report_filename is "<bucket_tstamp>/<basename>".
func legacyCanPathParts(localPath string) (bucketTstamp, reportFilename string) {
	parts := strings.Split(localPath, "/")
	if len(parts) < 2 {
		return "", localPath
	}
	bucketTstamp = parts[len(parts)-2]
	reportFilename = bucketTstamp + "/" + parts[len(parts)-1]
	return bucketTstamp, reportFilename
}

func lastPathSegment(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
