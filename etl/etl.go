// Package etl holds the small set of constants and filename-parsing helpers
// shared across the archive, container, measurement and pipeline packages.
package etl

import "strings"

// Container extensions recognized by the archive catalog and container reader.
const (
	ExtTarLZ4  = "tar.lz4"
	ExtJSONLZ4 = "json.lz4"
	ExtYAMLLZ4 = "yaml.lz4"
	ExtJSONLGz = "jsonl.gz"
	ExtTarGz   = "tar.gz"

	// IndexFilename is silently skipped wherever it is encountered.
	IndexFilename = "index.json.gz"
)

// LegacyCanDeadline is the last calendar day (inclusive) filed under the
// legacy canned/YYYY-MM-DD/ prefix family.
const LegacyCanDeadline = "2020-10-21"

// XXCountryCode is the sentinel country code used by legacy aggregated cans
// that are not attributable to a single country.
const XXCountryCode = "XX"

// CanonicalTestName lowercases and strips underscores from a test name, so
// that "web_connectivity", "WebConnectivity" and "webconnectivity" all
// canonicalize to the same catalog key.
func CanonicalTestName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "")
}

// MaxListingPrefixes bounds the cross-product of test_name x country x day
// prefixes the catalog will enumerate before falling back to listing each
// test name's whole jsonl/<test>/ prefix with in-memory filtering.
const MaxListingPrefixes = 1_000_000
