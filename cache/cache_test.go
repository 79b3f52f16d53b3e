package cache

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/DecFox/data/archive"
)

type fakeStore struct {
	content []byte
	calls   int
	failN   int // fail the first failN GetObject calls
}

func (f *fakeStore) ListObjects(ctx context.Context, bucket, prefix, delimiter string) <-chan archive.ObjectInfo {
	ch := make(chan archive.ObjectInfo)
	close(ch)
	return ch
}

func (f *fakeStore) GetObject(ctx context.Context, bucket, key string, w io.Writer, progress func(int64)) error {
	f.calls++
	if f.calls <= f.failN {
		return io.ErrUnexpectedEOF
	}
	_, err := w.Write(f.content)
	return err
}

func TestFetch_DownloadsOnMiss(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{content: []byte("hello world")}
	entry := archive.FileEntry{
		Day:         civil.Date{Year: 2022, Month: time.January, Day: 1},
		CountryCode: "US",
		TestName:    "signal",
		Filename:    "sample.jsonl.gz",
		SizeBytes:   int64(len(store.content)),
		BucketName:  "ooni-data-eu-fra",
		ObjectPath:  "jsonl/signal/US/20220101/sample.jsonl.gz",
	}

	path, err := Fetch(context.Background(), store, entry, dir)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Errorf("content = %q", data)
	}
	if store.calls != 1 {
		t.Errorf("GetObject called %d times, want 1", store.calls)
	}
}

func TestFetch_HitsCacheOnMatchingSize(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{content: []byte("cached content!")}
	entry := archive.FileEntry{
		Day:        civil.Date{Year: 2022, Month: time.January, Day: 1},
		TestName:   "tor",
		Filename:   "sample.tar.gz",
		SizeBytes:  int64(len(store.content)),
		BucketName: "ooni-data-eu-fra",
		ObjectPath: "raw/20220101/10/US/tor/sample.tar.gz",
	}

	path1, err := Fetch(context.Background(), store, entry, dir)
	if err != nil {
		t.Fatalf("first Fetch error: %v", err)
	}
	path2, err := Fetch(context.Background(), store, entry, dir)
	if err != nil {
		t.Fatalf("second Fetch error: %v", err)
	}
	if path1 != path2 {
		t.Errorf("paths differ: %s != %s", path1, path2)
	}
	if store.calls != 1 {
		t.Errorf("GetObject called %d times on cache hit, want 1 (only the first Fetch)", store.calls)
	}
}

func TestFetch_SizeMismatchIsFatal(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{content: []byte("short")}
	entry := archive.FileEntry{
		TestName:   "webconnectivity",
		Filename:   "sample.tar.gz",
		SizeBytes:  999999, // deliberately wrong
		BucketName: "ooni-data-eu-fra",
		ObjectPath: "raw/20220101/10/US/webconnectivity/sample.tar.gz",
	}
	if _, err := Fetch(context.Background(), store, entry, dir); err == nil {
		t.Fatal("expected ErrSizeMismatch, got nil")
	}
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{content: []byte("eventually ok"), failN: 2}
	entry := archive.FileEntry{
		TestName:   "dnscheck",
		Filename:   "sample.jsonl.gz",
		SizeBytes:  int64(len(store.content)),
		BucketName: "ooni-data-eu-fra",
		ObjectPath: "jsonl/dnscheck/US/20220101/sample.jsonl.gz",
	}
	path, err := Fetch(context.Background(), store, entry, dir)
	if err != nil {
		t.Fatalf("Fetch error after transient failures: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "eventually ok" {
		t.Errorf("content = %q", data)
	}
	if store.calls != 3 {
		t.Errorf("GetObject called %d times, want 3 (2 failures + 1 success)", store.calls)
	}
}

func TestRelease_RemovesUnlessKept(t *testing.T) {
	dir := t.TempDir()
	entry := archive.FileEntry{TestName: "tor", CountryCode: "US", Day: civil.Date{Year: 2022, Month: time.January, Day: 1}, Filename: "x.tar.gz"}
	path := entry.CachePath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	Release(entry, dir, true)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("KeepCache=true must not remove the file: %v", err)
	}

	Release(entry, dir, false)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("KeepCache=false must remove the file, stat err = %v", err)
	}
}
