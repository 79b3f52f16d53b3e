package db

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// CSVWriter writes observation rows to one CSV file per table under
// outputDir, for local testing and debugging. Grounded on the original's
// CSVConnection (original_source/oonidata/processing.py): one file per
// table, header written from the first row's keys, a DictWriter-equivalent
// thereafter. It implements Writer directly (unbuffered — every WriteRow
// call appends and flushes immediately) since CSV output has no meaningful
// transaction boundary to batch against.
type CSVWriter struct {
	outputDir string

	mu      sync.Mutex
	writers map[string]*csvTableWriter
}

type csvTableWriter struct {
	f       *os.File
	w       *csv.Writer
	columns []string
}

// NewCSVWriter returns a CSVWriter rooted at outputDir, which must already
// exist and be writable.
func NewCSVWriter(outputDir string) *CSVWriter {
	return &CSVWriter{outputDir: outputDir, writers: make(map[string]*csvTableWriter)}
}

// WriteRow appends row to table's CSV file, opening and header-writing it
// on first use. The column order is the sorted key order of the first row
// written for table; every subsequent row must supply the same key set.
func (c *CSVWriter) WriteRow(ctx context.Context, table string, row map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tw, ok := c.writers[table]
	if !ok {
		var err error
		tw, err = c.openTable(table, row)
		if err != nil {
			return err
		}
		c.writers[table] = tw
	}

	record := make([]string, len(tw.columns))
	for i, col := range tw.columns {
		record[i] = fmt.Sprintf("%v", row[col])
	}
	if err := tw.w.Write(record); err != nil {
		return fmt.Errorf("db: csv write row to %s: %w", table, err)
	}
	tw.w.Flush()
	return tw.w.Error()
}

func (c *CSVWriter) openTable(table string, firstRow map[string]interface{}) (*csvTableWriter, error) {
	path := filepath.Join(c.outputDir, table+".csv")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("db: csv create %s: %w", path, err)
	}

	columns := make([]string, 0, len(firstRow))
	for col := range firstRow {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		f.Close()
		return nil, fmt.Errorf("db: csv header %s: %w", path, err)
	}
	w.Flush()

	return &csvTableWriter{f: f, w: w, columns: columns}, nil
}

// Close closes every open table file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, tw := range c.writers {
		tw.w.Flush()
		if err := tw.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
