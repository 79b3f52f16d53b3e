package db

import (
	"context"
	"io"
	"log"
	"sync"

	"github.com/m-lab/go/logx"
)

// Sink commits a batch of rows for one table and reports how many of them
// actually committed. Implementations must be thread-safe.
type Sink interface {
	Commit(table string, rows []map[string]interface{}) (int, error)
	io.Closer
}

// Stats reports on the row-lifecycle counts for one table, mirroring the
// teacher's row.Stats.
type Stats struct {
	Buffered  int
	Pending   int
	Committed int
	Failed    int
}

// Total returns the total number of rows handled.
func (s Stats) Total() int {
	return s.Buffered + s.Pending + s.Committed + s.Failed
}

// activeStats is a mutex-guarded Stats, ported from the teacher's
// row.ActiveStats.
type activeStats struct {
	mu sync.RWMutex
	Stats
}

func (as *activeStats) get() Stats {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return as.Stats
}

func (as *activeStats) inc() {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.Buffered++
}

func (as *activeStats) moveToPending(n int) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.Buffered -= n
	if as.Buffered < 0 {
		log.Println("db: BROKEN - negative buffered")
	}
	as.Pending += n
}

func (as *activeStats) done(n int, err error) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.Pending -= n
	if as.Pending < 0 {
		log.Println("db: BROKEN - negative pending")
	}
	if err != nil {
		as.Failed += n
	} else {
		as.Committed += n
	}
	logx.Debug.Printf("db: done %d->%d %v\n", as.Pending+n, as.Pending, err)
}

// BufferedWriter batches WriteRow calls per table and flushes to an
// underlying Sink once a table's buffer reaches bufSize, or on an explicit
// Flush/Close. Ported from the teacher's row.Buffer/row.Base pair,
// generalized from a single fixed table to per-table buffering since this
// domain's Writer fans out across many destination tables at once.
type BufferedWriter struct {
	sink    Sink
	bufSize int

	mu      sync.Mutex
	buffers map[string][]map[string]interface{}
	stats   map[string]*activeStats
}

// NewBufferedWriter returns a BufferedWriter flushing each table's buffer to
// sink once it reaches bufSize rows.
func NewBufferedWriter(sink Sink, bufSize int) *BufferedWriter {
	return &BufferedWriter{
		sink:    sink,
		bufSize: bufSize,
		buffers: make(map[string][]map[string]interface{}),
		stats:   make(map[string]*activeStats),
	}
}

func (w *BufferedWriter) statsFor(table string) *activeStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.stats[table]
	if !ok {
		st = &activeStats{}
		w.stats[table] = st
	}
	return st
}

// WriteRow appends row to table's buffer, flushing synchronously once full.
// There is no ordering guarantee across concurrent WriteRow calls to
// different tables, but a single table's rows commit in append order.
func (w *BufferedWriter) WriteRow(ctx context.Context, table string, row map[string]interface{}) error {
	w.mu.Lock()
	buf := append(w.buffers[table], row)
	var toCommit []map[string]interface{}
	if len(buf) >= w.bufSize {
		toCommit = buf
		buf = nil
	}
	w.buffers[table] = buf
	w.mu.Unlock()

	w.statsFor(table).inc()

	if toCommit != nil {
		return w.commit(table, toCommit)
	}
	return nil
}

func (w *BufferedWriter) commit(table string, rows []map[string]interface{}) error {
	st := w.statsFor(table)
	st.moveToPending(len(rows))

	done, err := w.sink.Commit(table, rows)
	if done > 0 {
		st.done(done, nil)
	}
	if err != nil {
		log.Printf("db: commit %s: %v", table, err)
		st.done(len(rows)-done, err)
		return ErrCommitRow{Err: err}
	}
	return nil
}

// Flush synchronously commits every table's pending buffer.
func (w *BufferedWriter) Flush() error {
	w.mu.Lock()
	pending := w.buffers
	w.buffers = make(map[string][]map[string]interface{})
	w.mu.Unlock()

	var firstErr error
	for table, rows := range pending {
		if len(rows) == 0 {
			continue
		}
		if err := w.commit(table, rows); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats returns the current row-lifecycle counts for table.
func (w *BufferedWriter) Stats(table string) Stats {
	return w.statsFor(table).get()
}

// Close flushes any pending rows and closes the underlying sink.
func (w *BufferedWriter) Close() error {
	flushErr := w.Flush()
	if err := w.sink.Close(); err != nil {
		return err
	}
	return flushErr
}
