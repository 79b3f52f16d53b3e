package container

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pierrec/lz4/v4"

	"github.com/DecFox/data/etl"
)

func writeLZ4JSONLines(t *testing.T, path string, lines []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := lz4.NewWriter(f)
	for _, line := range lines {
		if _, err := w.Write([]byte(line + "\n")); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestStream_JSONLZ4(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.json.lz4")
	writeLZ4JSONLines(t, path, []string{
		`{"test_name": "telegram", "a": 1}`,
		`{"test_name": "tor", "a": 2}`,
	})

	out, errs := Stream(context.Background(), path, etl.ExtJSONLZ4)
	var got []RawMeasurement
	for rm := range out {
		got = append(got, rm)
	}
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	var first map[string]interface{}
	if err := json.Unmarshal(got[0].Body, &first); err != nil {
		t.Fatal(err)
	}
	if first["test_name"] != "telegram" {
		t.Errorf("first record test_name = %v, want telegram", first["test_name"])
	}
}

func TestStream_GzipJSONL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.jsonl.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gw := gzip.NewWriter(f)
	gw.Write([]byte("{\"test_name\": \"signal\"}\n"))
	gw.Write([]byte("\n")) // blank line must be skipped, not error
	gw.Write([]byte("{\"test_name\": \"whatsapp\"}\n"))
	gw.Close()
	f.Close()

	out, errs := Stream(context.Background(), path, etl.ExtJSONLGz)
	var got []RawMeasurement
	for rm := range out {
		got = append(got, rm)
	}
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
}

func TestStream_Minican(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.tar.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	tw := tar.NewWriter(f)

	writeEnvelope := func(name string, envelope map[string]interface{}) {
		body, _ := json.Marshal(envelope)
		hdr := &tar.Header{Name: name, Mode: 0600, Size: int64(len(body))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write(body); err != nil {
			t.Fatal(err)
		}
	}

	writeEnvelope("20210614004521.999962_JO_signal_68eb19b439326d60.post", map[string]interface{}{
		"format":  "json",
		"content": map[string]interface{}{"test_name": "signal"},
	})
	writeEnvelope("some_other_envelope.post", map[string]interface{}{
		"format": "yaml",
	})
	tw.Close()
	f.Close()

	out, errs := Stream(context.Background(), path, etl.ExtTarGz)
	var got []RawMeasurement
	for rm := range out {
		got = append(got, rm)
	}
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1 (yaml envelope must be skipped)", len(got))
	}
	if got[0].UID != "20210614004521.999962_JO_signal_68eb19b439326d60" {
		t.Errorf("UID = %q, want 20210614004521.999962_JO_signal_68eb19b439326d60", got[0].UID)
	}
}

func TestNormalizeLegacyYAML(t *testing.T) {
	yamlDoc := "test_name: web_connectivity\ninput: https://example.com\nnested:\n  a: 1\n"
	docs, errs := NormalizeLegacyYAML(bytes.NewBufferString(yamlDoc), "2019-07-16", "2019-07-16/report.yaml")

	var got []json.RawMessage
	for d := range docs {
		got = append(got, d)
	}
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d docs, want 1", len(got))
	}
	var v map[string]interface{}
	if err := json.Unmarshal(got[0], &v); err != nil {
		t.Fatal(err)
	}
	if v["test_name"] != "web_connectivity" {
		t.Errorf("test_name = %v", v["test_name"])
	}
	if v["report_filename"] != "2019-07-16/report.yaml" {
		t.Errorf("report_filename = %v", v["report_filename"])
	}
}
