package sink

import (
	"io"
	"time"

	"github.com/okian/footprint/pkg/logger"
)

// Option applies a configuration option to the Writer.
type Option func(*Writer)

// WithStream sets the live stream every record is mirrored to. Defaults to os.Stdout.
func WithStream(w io.Writer) Option {
	return func(s *Writer) {
		if w != nil {
			s.stream = w
		}
	}
}

// WithFileEnabled toggles the durable day-partitioned file sink.
func WithFileEnabled(enabled bool) Option {
	return func(s *Writer) {
		s.fileEnabled = enabled
	}
}

// WithDir sets the directory day files are created in.
func WithDir(dir string) Option {
	return func(s *Writer) {
		if dir != "" {
			s.dir = dir
		}
	}
}

// WithFsync controls whether each file append is followed by fsync.
func WithFsync(fsync bool) Option {
	return func(s *Writer) {
		s.fsync = fsync
	}
}

// WithLocation sets the time zone that decides which day a record belongs to.
func WithLocation(loc *time.Location) Option {
	return func(s *Writer) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets a custom logger for the writer.
func WithLogger(l logger.Logger) Option {
	return func(s *Writer) {
		if l != nil {
			s.logger = l
		}
	}
}
