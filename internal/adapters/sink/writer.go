// Package sink persists visit records.
//
// Every record is encoded once as an NDJSON line, mirrored to a live stream
// (stdout by default) and, when enabled, appended to
// <dir>/visits-YYYY-MM-DD.ndjson. Stream and file have separate locks so a
// slow disk never stalls the stream; each line goes out in a single Write.
package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/footprint/internal/domain/model"
	"github.com/okian/footprint/pkg/logger"
	"github.com/okian/footprint/pkg/metrics"
)

// Default writer configuration constants.
const (
	defaultDir = "./data/logs"
	dayLayout  = "2006-01-02"
	filePrefix = "visits-"
	fileSuffix = ".ndjson"
	dirPerm    = 0o755
	filePerm   = 0o644
	sinkStream = "stream"
	sinkFile   = "file"
	openFlags  = os.O_APPEND | os.O_CREATE | os.O_WRONLY
)

// Writer appends records to the stream and the day file. Safe for concurrent use.
type Writer struct {
	streamMu sync.Mutex
	stream   io.Writer

	fileMu sync.Mutex
	file   *os.File
	day    string
	closed bool

	fileEnabled bool
	dir         string
	fsync       bool
	loc         *time.Location

	logger logger.Logger
}

// NewWriter creates a writer. File output is on by default.
func NewWriter(opts ...Option) *Writer {
	w := &Writer{
		stream:      os.Stdout,
		fileEnabled: true,
		dir:         defaultDir,
		fsync:       true,
		loc:         time.UTC,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("sink")
	}
	return w
}

// FileName returns the day file name for t in loc.
func FileName(t time.Time, loc *time.Location) string {
	return filePrefix + t.In(loc).Format(dayLayout) + fileSuffix
}

// Write encodes rec and appends it to the stream, then to the day file.
// The stream line is emitted even when the file append fails.
func (w *Writer) Write(ctx context.Context, rec model.Record) error {
	line, err := model.MarshalLine(rec)
	if err != nil {
		metrics.RecordErrorByComponent("sink", "encode_error")
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	w.writeStream(ctx, line)

	if !w.fileEnabled {
		return nil
	}

	start := time.Now()
	err = w.appendFile(rec.CapturedAt(), line)
	metrics.RecordRecordWriteLatency(sinkFile, float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordRecordWriteError(sinkFile)
		metrics.RecordErrorByComponent("sink", "file_error")
		metrics.RecordErrorByType("file_error", "high")
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	metrics.RecordRecordWritten(sinkFile)
	return nil
}

func (w *Writer) writeStream(ctx context.Context, line []byte) {
	w.streamMu.Lock()
	_, err := w.stream.Write(line)
	w.streamMu.Unlock()

	if err != nil {
		metrics.RecordRecordWriteError(sinkStream)
		w.logger.Warn(ctx, "stream write failed", logger.Error(err))
		return
	}
	metrics.RecordRecordWritten(sinkStream)
}

func (w *Writer) appendFile(at time.Time, line []byte) error {
	w.fileMu.Lock()
	defer w.fileMu.Unlock()

	if w.closed {
		return ErrClosed
	}

	day := at.In(w.loc).Format(dayLayout)
	if w.file == nil || w.day != day {
		if err := w.rotate(day); err != nil {
			return err
		}
	}

	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("append %s: %w", w.file.Name(), err)
	}
	if w.fsync {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("fsync %s: %w", w.file.Name(), err)
		}
	}
	return nil
}

// rotate switches to the file for day. Must be called with fileMu held.
func (w *Writer) rotate(day string) error {
	if err := os.MkdirAll(w.dir, dirPerm); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(w.dir, filePrefix+day+fileSuffix)
	f, err := os.OpenFile(path, openFlags, filePerm) //nolint:gosec // path is built from configured dir and a date
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	if w.file != nil {
		if err := w.file.Close(); err != nil {
			w.logger.Warn(context.Background(), "closing previous day file failed",
				logger.String("file", w.file.Name()),
				logger.Error(err),
			)
		}
		metrics.RecordFileRotation()
	}

	w.file = f
	w.day = day
	return nil
}

// CurrentFile returns the path of the open day file, or "" if none is open.
func (w *Writer) CurrentFile() string {
	w.fileMu.Lock()
	defer w.fileMu.Unlock()
	if w.file == nil {
		return ""
	}
	return w.file.Name()
}

// FileEnabled reports whether the durable sink is on.
func (w *Writer) FileEnabled() bool {
	return w.fileEnabled
}

// Close flushes and closes the open day file. Later file writes fail with ErrClosed.
func (w *Writer) Close() error {
	w.fileMu.Lock()
	defer w.fileMu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("fsync %s: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", f.Name(), err)
	}
	return nil
}
