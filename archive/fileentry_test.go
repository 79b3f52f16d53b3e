package archive

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func TestParseLegacyCanFilename(t *testing.T) {
	day := civil.Date{Year: 2020, Month: time.October, Day: 20}

	tests := []struct {
		name         string
		filename     string
		wantCountry  string
		wantTestName string
		wantExt      string
	}{
		{"tar.lz4", "webconnectivity.tar.lz4", "XX", "webconnectivity", "tar.lz4"},
		{"json.lz4", "2020-US-probe-web_connectivity.json.lz4", "US", "webconnectivity", "json.lz4"},
		{"yaml.lz4", "2020-IT-probe-tor.yaml.lz4", "IT", "tor", "yaml.lz4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe, err := parseLegacyCanFilename(day, CanBucketName, tt.filename, 123)
			if err != nil {
				t.Fatalf("parseLegacyCanFilename(%q) error: %v", tt.filename, err)
			}
			if fe.CountryCode != tt.wantCountry || fe.TestName != tt.wantTestName || fe.Ext != tt.wantExt {
				t.Errorf("parseLegacyCanFilename(%q) = %+v, want country=%s test=%s ext=%s",
					tt.filename, fe, tt.wantCountry, tt.wantTestName, tt.wantExt)
			}
		})
	}

	if _, err := parseLegacyCanFilename(day, CanBucketName, "index.json.gz", 0); err == nil {
		t.Error("expected error for index.json.gz, got nil")
	}
}

func TestParseNewFormatFilename(t *testing.T) {
	// The version infix between the test name and the extension has no
	// fixed width ("n1.0", "n2.1.3", ...), so the parser must not assume
	// the extension starts right after the first dot.
	fe, err := parseNewFormatFilename(MCBucketName,
		"raw/20220101/10/US/signal/2022010110_US_signal.n1.0.tar.gz",
		"2022010110_US_signal.n1.0.tar.gz", 4096)
	if err != nil {
		t.Fatalf("parseNewFormatFilename error: %v", err)
	}
	if fe.TestName != "signal" {
		t.Errorf("TestName = %q, want %q", fe.TestName, "signal")
	}
	if fe.Ext != "tar.gz" {
		t.Errorf("Ext = %q, want %q", fe.Ext, "tar.gz")
	}
	if fe.CountryCode != "US" {
		t.Errorf("CountryCode = %q, want %q", fe.CountryCode, "US")
	}
	wantDay := civil.Date{Year: 2022, Month: time.January, Day: 1}
	if fe.Day != wantDay {
		t.Errorf("Day = %v, want %v", fe.Day, wantDay)
	}

	fe, err = parseNewFormatFilename(MCBucketName,
		"jsonl/webconnectivity/BR/2022010112_BR_webconnectivity.n2.1.3.jsonl.gz",
		"2022010112_BR_webconnectivity.n2.1.3.jsonl.gz", 2048)
	if err != nil {
		t.Fatalf("parseNewFormatFilename error: %v", err)
	}
	if fe.TestName != "webconnectivity" || fe.Ext != "jsonl.gz" {
		t.Errorf("got TestName=%q Ext=%q, want webconnectivity/jsonl.gz", fe.TestName, fe.Ext)
	}
}
