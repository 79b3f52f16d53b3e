// Package archive enumerates objects in the measurement archive and parses
// their filenames into FileEntry catalog records.
package archive

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/DecFox/data/etl"
)

// FileEntry is an immutable, value-semantics catalog record for a single
// archive object. (bucket, objectPath) uniquely identifies the object.
type FileEntry struct {
	Day         civil.Date
	CountryCode string
	TestName    string
	Filename    string
	SizeBytes   int64
	Ext         string
	ObjectPath  string
	BucketName  string
}

// MatchesFilter reports whether the entry satisfies the given country and
// test-name filters. An empty filter set means "all".
func (fe FileEntry) MatchesFilter(countries, testNames map[string]bool) bool {
	if len(countries) > 0 && !countries[fe.CountryCode] {
		return false
	}
	if len(testNames) > 0 && !testNames[fe.TestName] {
		return false
	}
	return true
}

// CachePath returns the local cache path for this entry, rooted at root.
func (fe FileEntry) CachePath(root string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", root, fe.TestName, fe.CountryCode,
		fe.Day.String(), fe.Filename)
}

// ErrUnexpectedFilename is returned by filename parsers when a listing
// entry does not match any known filename grammar.
var ErrUnexpectedFilename = errors.New("unexpected archive filename")

// parseLegacyCanFilename parses a filename found directly under
// canned/YYYY-MM-DD/. It implements the three historical grammars:
// tar.lz4 (dot-segment test name, XX country), and dash-separated
// json.lz4/yaml.lz4 (country at index 1, test name at index 3).
func parseLegacyCanFilename(day civil.Date, bucket, filename string, size int64) (FileEntry, error) {
	if filename == etl.IndexFilename {
		return FileEntry{}, ErrUnexpectedFilename
	}
	switch {
	case strings.HasSuffix(filename, "."+etl.ExtTarLZ4):
		testName := etl.CanonicalTestName(strings.SplitN(filename, ".", 2)[0])
		return FileEntry{
			Day:         day,
			CountryCode: etl.XXCountryCode,
			TestName:    testName,
			Filename:    filename,
			SizeBytes:   size,
			Ext:         etl.ExtTarLZ4,
			ObjectPath:  "canned/" + day.String() + "/" + filename,
			BucketName:  bucket,
		}, nil

	case strings.HasSuffix(filename, "."+etl.ExtJSONLZ4), strings.HasSuffix(filename, "."+etl.ExtYAMLLZ4):
		parts := strings.Split(filename, "-")
		if len(parts) < 4 {
			return FileEntry{}, fmt.Errorf("%w: %s", ErrUnexpectedFilename, filename)
		}
		extParts := strings.Split(filename, ".")
		if len(extParts) < 2 {
			return FileEntry{}, fmt.Errorf("%w: %s", ErrUnexpectedFilename, filename)
		}
		ext := strings.Join(extParts[len(extParts)-2:], ".")
		return FileEntry{
			Day:         day,
			CountryCode: parts[1],
			TestName:    etl.CanonicalTestName(strings.SplitN(parts[3], ".", 2)[0]),
			Filename:    filename,
			SizeBytes:   size,
			Ext:         ext,
			ObjectPath:  "canned/" + day.String() + "/" + filename,
			BucketName:  bucket,
		}, nil
	}
	return FileEntry{}, fmt.Errorf("%w: %s", ErrUnexpectedFilename, filename)
}

// parseNewFormatFilename parses the underscore-separated filename grammar
// used by both minican (raw/YYYYMMDD/HH/<CC>/<test>/...) and jsonl
// (jsonl/<test>/<CC>/YYYYMMDD/...) objects: <YYYYMMDDHH>_<CC>_<test>.nX.Y.ext
func parseNewFormatFilename(bucket, objectPath, filename string, size int64) (FileEntry, error) {
	parts := strings.SplitN(filename, "_", 3)
	if len(parts) != 3 || len(parts[0]) < 8 {
		return FileEntry{}, fmt.Errorf("%w: %s", ErrUnexpectedFilename, filename)
	}
	// parts[2] looks like "signal.n1.0.tar.gz": test name, a version infix
	// of unpredictable length, then the real (possibly multi-segment)
	// extension. Only the leading test-name segment and the trailing two
	// segments (the extension) are structurally guaranteed, so split on
	// dots and take from both ends rather than assuming a fixed infix width.
	segs := strings.Split(parts[2], ".")
	if len(segs) < 3 {
		return FileEntry{}, fmt.Errorf("%w: %s", ErrUnexpectedFilename, filename)
	}
	t, err := time.Parse("20060102", parts[0][:8])
	if err != nil {
		return FileEntry{}, fmt.Errorf("%w: %s: %v", ErrUnexpectedFilename, filename, err)
	}
	return FileEntry{
		Day:         civil.DateOf(t),
		CountryCode: parts[1],
		TestName:    etl.CanonicalTestName(segs[0]),
		Filename:    filename,
		SizeBytes:   size,
		Ext:         strings.Join(segs[len(segs)-2:], "."),
		ObjectPath:  objectPath,
		BucketName:  bucket,
	}, nil
}
