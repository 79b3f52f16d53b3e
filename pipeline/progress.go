package pipeline

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
)

// progressReporter prints a live byte-throughput bar to an io.Writer, the
// same role a multi-gigabyte transfer tool's progress bar plays during a
// long-running download: the total grows as more files are listed, rather
// than being known up front, so the bar's total is bumped on the fly
// instead of set once at Start.
type progressReporter struct {
	bar        *pb.ProgressBar
	totalBytes int64
	doneBytes  int64
}

func newProgressReporter(out io.Writer) *progressReporter {
	bar := pb.New64(0)
	bar.SetTemplateString(`{{counters . }} {{bar . }} {{percent . }} {{etime . }}`)
	bar.SetWriter(out)
	bar.Start()
	return &progressReporter{bar: bar}
}

// fileListed grows the bar's total as archive.ListForRange discovers more
// files, so the percentage stays meaningful without a two-pass listing.
func (p *progressReporter) fileListed(sizeBytes int64) {
	total := atomic.AddInt64(&p.totalBytes, sizeBytes)
	p.bar.SetTotal(total)
}

// fileDone advances the bar by the file's size once it has been fully
// downloaded and processed.
func (p *progressReporter) fileDone(sizeBytes int64) {
	done := atomic.AddInt64(&p.doneBytes, sizeBytes)
	p.bar.SetCurrent(done)
}

func (p *progressReporter) finish() {
	p.bar.Finish()
}

// Summary renders a one-line human-readable recap, in the same
// humanize.Bytes/humanize.Comma idiom used for upload-recap logging
// elsewhere in the ecosystem.
func (s Summary) String() string {
	return fmt.Sprintf(
		"%s files processed, %s failed, %s measurements written",
		humanize.Comma(s.FilesProcessed),
		humanize.Comma(s.FilesFailed),
		humanize.Comma(s.MeasurementsWritten),
	)
}
