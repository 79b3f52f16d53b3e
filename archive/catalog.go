package archive

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/DecFox/data/etl"
	"github.com/DecFox/data/metrics"
)

// Bucket names for the two archive generations. Matching the production
// archive's actual bucket split keeps object paths meaningful even though
// this package only ever receives an ObjectStore interface.
const (
	CanBucketName = "ooni-data"
	MCBucketName  = "ooni-data-eu-fra"
)

var legacyCanDeadline = civil.Date{Year: 2020, Month: time.October, Day: 21}

// ListForRange lists every FileEntry in [startDay, endDay) matching the
// given country and test-name filters (empty slices mean "all"). It returns
// immediately with two channels: entries, and listing errors. Both channels
// are closed once enumeration completes or ctx is cancelled. Parse failures
// on unexpected filenames are logged and the offending object skipped
// rather than surfaced as an error.
func ListForRange(ctx context.Context, store ObjectStore, countries, testNames []string, startDay, endDay civil.Date) (<-chan FileEntry, <-chan error) {
	entries := make(chan FileEntry)
	errs := make(chan error, 1)

	countrySet := toSet(countries)
	testSet := toSet(testNames)

	go func() {
		defer close(entries)
		defer close(errs)

		today := civil.DateOf(time.Now().UTC())
		stop := endDay
		if stop.After(today) {
			stop = today
		}
		if !startDay.Before(stop) {
			errs <- fmt.Errorf("archive: empty or invalid range [%s, %s)", startDay, endDay)
			return
		}

		// Bound the remote-listing fan-out: only attempt the precise
		// test x country x day cross product when both filters are narrow
		// and the product doesn't exceed the configured ceiling; otherwise
		// fall back to per-test-name listing with in-memory filtering.
		numDays := stop.DaysSince(startDay)
		combos := len(testSet) * len(countrySet) * numDays
		narrowPrefixes := len(testSet) > 0 && len(countrySet) > 0 && combos <= etl.MaxListingPrefixes

		for day := startDay; day.Before(stop); day = day.AddDays(1) {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			default:
			}

			// The legacy canned/ prefix, the newer raw/ minican prefix, and
			// the jsonl/ prefix are independent buckets of the same
			// underlying data: a day on or before the legacy deadline can
			// still have minicans or jsonl objects alongside its legacy
			// can, so all three are listed for every day rather than
			// treating the deadline as an either/or switch.
			if !day.After(legacyCanDeadline) {
				if err := listLegacyDay(ctx, store, day, countrySet, testSet, entries); err != nil {
					errs <- err
					return
				}
			}

			if err := listMinicanDay(ctx, store, day, countrySet, testSet, entries); err != nil {
				errs <- err
				return
			}
			if err := listJSONLDay(ctx, store, day, testNames, countrySet, testSet, narrowPrefixes, entries); err != nil {
				errs <- err
				return
			}
		}
	}()

	return entries, errs
}

func toSet(ss []string) map[string]bool {
	if len(ss) == 0 {
		return nil
	}
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}

// listLegacyDay lists the canned/YYYY-MM-DD/ prefix for a single day.
func listLegacyDay(ctx context.Context, store ObjectStore, day civil.Date, countries, testNames map[string]bool, out chan<- FileEntry) error {
	prefix := "canned/" + day.String() + "/"
	for obj := range store.ListObjects(ctx, CanBucketName, prefix, "") {
		if obj.Err != nil {
			return obj.Err
		}
		filename := lastPathSegment(obj.Key)
		fe, err := parseLegacyCanFilename(day, CanBucketName, filename, obj.Size)
		if err != nil {
			metrics.FilenameParseErrors.WithLabelValues(CanBucketName).Inc()
			log.Printf("archive: skipping unparseable legacy filename %q: %v", obj.Key, err)
			continue
		}
		if !fe.MatchesFilter(countries, testNames) {
			continue
		}
		select {
		case out <- fe:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// listMinicanDay lists the raw/YYYYMMDD/ prefix (minicans) for a single day.
func listMinicanDay(ctx context.Context, store ObjectStore, day civil.Date, countries, testNames map[string]bool, out chan<- FileEntry) error {
	tstamp := day.In(time.UTC).Format("20060102")
	prefix := "raw/" + tstamp + "/"
	for obj := range store.ListObjects(ctx, MCBucketName, prefix, "") {
		if obj.Err != nil {
			return obj.Err
		}
		filename := lastPathSegment(obj.Key)
		fe, err := parseNewFormatFilename(MCBucketName, obj.Key, filename, obj.Size)
		if err != nil {
			metrics.FilenameParseErrors.WithLabelValues(MCBucketName).Inc()
			log.Printf("archive: skipping unparseable minican filename %q: %v", obj.Key, err)
			continue
		}
		if fe.Ext != etl.ExtTarGz {
			continue
		}
		if !fe.MatchesFilter(countries, testNames) {
			continue
		}
		select {
		case out <- fe:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// listJSONLDay lists the jsonl/<test>/<cc>/<YYYYMMDD>/ prefix family for a
// single day. When both testNames and countries are narrow, it enumerates
// the precise test x country prefix for this day (bounded, per §4.1);
// otherwise it lists at the test-name level only and filters country/day
// in-memory, to bound the number of remote listing calls.
func listJSONLDay(ctx context.Context, store ObjectStore, day civil.Date, testNamesList []string, countries, testNames map[string]bool, narrow bool, out chan<- FileEntry) error {
	tstamp := day.In(time.UTC).Format("20060102")

	if narrow {
		for test := range testNames {
			for cc := range countries {
				prefix := fmt.Sprintf("jsonl/%s/%s/%s/", test, cc, tstamp)
				if err := listJSONLPrefix(ctx, store, prefix, day, countries, testNames, out); err != nil {
					return err
				}
			}
		}
		return nil
	}

	tests := testNamesList
	if len(tests) == 0 {
		discovered, err := discoverTestNames(ctx, store)
		if err != nil {
			return err
		}
		tests = discovered
	}
	for _, test := range tests {
		prefix := fmt.Sprintf("jsonl/%s/", test)
		if err := listJSONLPrefix(ctx, store, prefix, day, countries, testNames, out); err != nil {
			return err
		}
	}
	return nil
}

func listJSONLPrefix(ctx context.Context, store ObjectStore, prefix string, day civil.Date, countries, testNames map[string]bool, out chan<- FileEntry) error {
	for obj := range store.ListObjects(ctx, MCBucketName, prefix, "") {
		if obj.Err != nil {
			return obj.Err
		}
		filename := lastPathSegment(obj.Key)
		if filename == "index.json.gz" {
			continue
		}
		fe, err := parseJSONLObjectPath(obj.Key, obj.Size)
		if err != nil {
			metrics.FilenameParseErrors.WithLabelValues(MCBucketName).Inc()
			log.Printf("archive: skipping unparseable jsonl filename %q: %v", obj.Key, err)
			continue
		}
		if fe.Day != day {
			continue
		}
		if !fe.MatchesFilter(countries, testNames) {
			continue
		}
		if fe.SizeBytes == 0 {
			continue
		}
		select {
		case out <- fe:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// parseJSONLObjectPath parses jsonl/<test>/<cc>/<YYYYMMDD>/<filename>.
func parseJSONLObjectPath(objectPath string, size int64) (FileEntry, error) {
	parts := strings.Split(objectPath, "/")
	if len(parts) < 5 || parts[0] != "jsonl" {
		return FileEntry{}, fmt.Errorf("%w: %s", ErrUnexpectedFilename, objectPath)
	}
	test, cc, daystr, filename := parts[1], parts[2], parts[3], parts[len(parts)-1]
	t, err := time.Parse("20060102", daystr)
	if err != nil {
		return FileEntry{}, fmt.Errorf("%w: %s: %v", ErrUnexpectedFilename, objectPath, err)
	}
	if !strings.HasSuffix(filename, "."+etl.ExtJSONLGz) {
		return FileEntry{}, fmt.Errorf("%w: %s", ErrUnexpectedFilename, objectPath)
	}
	return FileEntry{
		Day:         civil.DateOf(t),
		CountryCode: cc,
		TestName:    test,
		Filename:    filename,
		SizeBytes:   size,
		Ext:         etl.ExtJSONLGz,
		ObjectPath:  objectPath,
		BucketName:  MCBucketName,
	}, nil
}

// discoverTestNames lists the top-level jsonl/ common prefixes to find
// every test name present in the archive.
func discoverTestNames(ctx context.Context, store ObjectStore) ([]string, error) {
	var names []string
	for obj := range store.ListObjects(ctx, MCBucketName, "jsonl/", "/") {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if !obj.IsPrefix {
			continue
		}
		name := strings.Trim(strings.TrimPrefix(obj.Key, "jsonl/"), "/")
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func lastPathSegment(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
