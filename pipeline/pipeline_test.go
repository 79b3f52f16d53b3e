package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/DecFox/data/archive"
)

// telegramRecord is one jsonl line: the whole measurement on a single line.
const telegramRecord = `{"measurement_uid": "", "report_id": "20220101T000000Z_telegram_US_1234_n1_abc", "measurement_start_time": "2022-01-01 00:00:00.123456", "probe_asn": "AS1234", "probe_cc": "US", "software_name": "ooniprobe", "software_version": "3.18.0", "test_name": "telegram", "test_keys": {"queries": [{"hostname": "web.telegram.org", "query_type": "A", "answers": [{"answer_type": "A", "ipv4": "1.2.3.4"}]}], "telegram_http_blocking": false, "telegram_tcp_blocking": false, "telegram_web_status": "ok"}}
`

func gzipJSONL(lines string) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	io.WriteString(w, lines)
	w.Close()
	return buf.Bytes()
}

type fakeStore struct {
	content []byte
}

func (f *fakeStore) ListObjects(ctx context.Context, bucket, prefix, delimiter string) <-chan archive.ObjectInfo {
	ch := make(chan archive.ObjectInfo, 1)
	if prefix == "jsonl/telegram/US/20220101/" {
		ch <- archive.ObjectInfo{Key: prefix + "20220101_US_telegram.jsonl.gz", Size: int64(len(f.content))}
	}
	close(ch)
	return ch
}

func (f *fakeStore) GetObject(ctx context.Context, bucket, key string, w io.Writer, progress func(int64)) error {
	_, err := w.Write(f.content)
	return err
}

type collectingWriter struct {
	mu   sync.Mutex
	rows map[string]int
}

func newCollectingWriter() *collectingWriter {
	return &collectingWriter{rows: make(map[string]int)}
}

func (c *collectingWriter) WriteRow(ctx context.Context, table string, row map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[table]++
	return nil
}

func TestProcessRange_EndToEnd(t *testing.T) {
	content := gzipJSONL(telegramRecord)
	store := &fakeStore{content: content}
	writer := newCollectingWriter()

	start := civil.Date{Year: 2022, Month: time.January, Day: 1}
	end := civil.Date{Year: 2022, Month: time.January, Day: 2}

	opts := Options{
		Countries:   []string{"US"},
		TestNames:   []string{"telegram"},
		StartDay:    start,
		EndDay:      end,
		Writer:      writer,
		CacheRoot:   t.TempDir(),
		Parallelism: 2,
	}

	summary, err := ProcessRange(context.Background(), store, opts)
	if err != nil {
		t.Fatalf("ProcessRange error: %v", err)
	}
	if summary.FilesProcessed != 1 {
		t.Errorf("FilesProcessed = %d, want 1", summary.FilesProcessed)
	}
	if summary.FilesFailed != 0 {
		t.Errorf("FilesFailed = %d, want 0", summary.FilesFailed)
	}
	if summary.MeasurementsWritten != 1 {
		t.Errorf("MeasurementsWritten = %d, want 1", summary.MeasurementsWritten)
	}
	if writer.rows["web_observation"] == 0 {
		t.Errorf("expected web_observation rows, got none: %+v", writer.rows)
	}
}

func TestEstimator_Update(t *testing.T) {
	t0 := time.Now()
	start := civil.Date{Year: 2022, Month: time.January, Day: 1}
	stop := civil.Date{Year: 2022, Month: time.January, Day: 11}
	e := newEstimator(t0, start, stop)

	// One minute in, with the only file of the first day dispatched, one of
	// ten days counts as done: 60s * 10 / 1 = 600s total, 540s remaining.
	remaining := e.Update(t0.Add(time.Minute), start, 0, 1)
	if remaining != 9*time.Minute {
		t.Errorf("remaining after the first day of a 10-day run = %v, want 9m0s", remaining)
	}
}

func TestGroupByDay(t *testing.T) {
	day1 := civil.Date{Year: 2022, Month: time.January, Day: 1}
	day2 := civil.Date{Year: 2022, Month: time.January, Day: 2}

	in := make(chan archive.FileEntry, 3)
	in <- archive.FileEntry{Day: day1, Filename: "a"}
	in <- archive.FileEntry{Day: day1, Filename: "b"}
	in <- archive.FileEntry{Day: day2, Filename: "c"}
	close(in)

	out := groupByDay(in)

	var batches []dayBatch
	for b := range out {
		batches = append(batches, b)
	}
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if len(batches[0].entries) != 2 || len(batches[1].entries) != 1 {
		t.Errorf("batch sizes = %d, %d; want 2, 1", len(batches[0].entries), len(batches[1].entries))
	}
}
