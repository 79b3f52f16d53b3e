package archive_test

import (
	"context"
	"io"
	"sort"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/DecFox/data/archive"
)

type fakeObject struct {
	bucket, key string
	size        int64
}

// fakeStore is an in-memory ObjectStore used to test catalog listing
// without talking to a real archive.
type fakeStore struct {
	objects []fakeObject
}

func (f *fakeStore) ListObjects(ctx context.Context, bucket, prefix, delimiter string) <-chan archive.ObjectInfo {
	out := make(chan archive.ObjectInfo)
	go func() {
		defer close(out)
		seen := map[string]bool{}
		for _, o := range f.objects {
			if o.bucket != bucket {
				continue
			}
			if len(prefix) > 0 && (len(o.key) < len(prefix) || o.key[:len(prefix)] != prefix) {
				continue
			}
			rest := o.key[len(prefix):]
			if delimiter != "" {
				if idx := indexByte(rest, delimiter[0]); idx >= 0 {
					group := prefix + rest[:idx+1]
					if seen[group] {
						continue
					}
					seen[group] = true
					out <- archive.ObjectInfo{Key: group, IsPrefix: true}
					continue
				}
			}
			out <- archive.ObjectInfo{Key: o.key, Size: o.size}
		}
	}()
	return out
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func (f *fakeStore) GetObject(ctx context.Context, bucket, key string, w io.Writer, progress func(n int64)) error {
	return nil
}

func TestListForRange_LegacyAndNewNoDuplicates(t *testing.T) {
	store := &fakeStore{objects: []fakeObject{
		{archive.CanBucketName, "canned/2020-10-20/webconnectivity.tar.lz4", 1000},
		{archive.MCBucketName, "raw/20201021/15/US/webconnectivity/2020102115_US_webconnectivity.n1.0.tar.gz", 2000},
	}}

	entries, errs := archive.ListForRange(context.Background(), store, nil, nil,
		civil.Date{Year: 2020, Month: time.October, Day: 20},
		civil.Date{Year: 2020, Month: time.October, Day: 22})

	var got []archive.FileEntry
	for fe := range entries {
		got = append(got, fe)
	}
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(got), got)
	}

	sort.Slice(got, func(i, j int) bool { return got[i].ObjectPath < got[j].ObjectPath })
	if got[0].TestName != "webconnectivity" || got[0].CountryCode != "XX" {
		t.Errorf("legacy entry parsed wrong: %+v", got[0])
	}
	if got[1].TestName != "webconnectivity" || got[1].CountryCode != "US" {
		t.Errorf("minican entry parsed wrong: %+v", got[1])
	}
}

func TestListForRange_FilterCorrectness(t *testing.T) {
	store := &fakeStore{objects: []fakeObject{
		{archive.MCBucketName, "raw/20220101/10/US/signal/2022010110_US_signal.n1.0.tar.gz", 100},
		{archive.MCBucketName, "raw/20220101/10/VE/signal/2022010110_VE_signal.n1.0.tar.gz", 100},
		{archive.MCBucketName, "raw/20220101/10/US/tor/2022010110_US_tor.n1.0.tar.gz", 100},
	}}

	entries, errs := archive.ListForRange(context.Background(), store, []string{"US"}, []string{"signal"},
		civil.Date{Year: 2022, Month: time.January, Day: 1},
		civil.Date{Year: 2022, Month: time.January, Day: 2})

	var got []archive.FileEntry
	for fe := range entries {
		got = append(got, fe)
	}
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1: %+v", len(got), got)
	}
	if got[0].CountryCode != "US" || got[0].TestName != "signal" {
		t.Errorf("wrong entry matched filter: %+v", got[0])
	}
}
