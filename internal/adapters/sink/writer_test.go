package sink_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/footprint/internal/adapters/sink"
	"github.com/okian/footprint/internal/domain/model"
	"github.com/okian/footprint/internal/domain/payload"
	logging "github.com/okian/footprint/pkg/logger"
)

// lockedBuffer lets the test read the stream while writers are running.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSuffix(b.buf.String(), "\n"), "\n")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func readLines(path string) []map[string]any {
	f, err := os.Open(path)
	So(err, ShouldBeNil)
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var m map[string]any
		So(json.Unmarshal(sc.Bytes(), &m), ShouldBeNil)
		out = append(out, m)
	}
	So(sc.Err(), ShouldBeNil)
	return out
}

func pageview(id string, at time.Time) model.PageviewRecord {
	return model.PageviewRecord{
		ID:        id,
		Timestamp: at,
		Path:      "/",
		Method:    "GET",
		IPHash:    "0123456789abcdef0123456789abcdef",
		UserAgent: strings.Repeat("Mozilla/5.0 ", 200),
		Headers:   map[string]string{"host": "example.test"},
	}
}

func TestWriter(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	Convey("Given a writer with file output", t, func() {
		_ = logging.Init(logging.WithOutput(io.Discard))
		dir := filepath.Join(t.TempDir(), "nested", "logs")
		stream := &lockedBuffer{}
		w := sink.NewWriter(
			sink.WithStream(stream),
			sink.WithDir(dir),
			sink.WithFsync(true),
		)
		Reset(func() { _ = w.Close() })

		Convey("When two records are written concurrently", func() {
			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs[i] = w.Write(ctx, pageview(fmt.Sprintf("rec-%d", i), day))
				}(i)
			}
			wg.Wait()

			Convey("Then the day file holds two complete parseable lines", func() {
				So(errs[0], ShouldBeNil)
				So(errs[1], ShouldBeNil)
				lines := readLines(filepath.Join(dir, "visits-2025-06-01.ndjson"))
				So(lines, ShouldHaveLength, 2)
				ids := []any{lines[0]["id"], lines[1]["id"]}
				So(ids, ShouldContain, "rec-0")
				So(ids, ShouldContain, "rec-1")
			})

			Convey("Then the stream mirrors both lines", func() {
				So(stream.Lines(), ShouldHaveLength, 2)
			})
		})

		Convey("When many records are written concurrently", func() {
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_ = w.Write(ctx, pageview(fmt.Sprintf("rec-%d", i), day))
				}(i)
			}
			wg.Wait()

			Convey("Then no line is interleaved", func() {
				So(readLines(filepath.Join(dir, "visits-2025-06-01.ndjson")), ShouldHaveLength, 100)
				for _, l := range stream.Lines() {
					So(json.Valid([]byte(l)), ShouldBeTrue)
				}
			})
		})

		Convey("When the directory does not exist yet", func() {
			So(w.Write(ctx, pageview("a", day)), ShouldBeNil)

			Convey("Then it is created", func() {
				info, err := os.Stat(dir)
				So(err, ShouldBeNil)
				So(info.IsDir(), ShouldBeTrue)
				So(w.CurrentFile(), ShouldEqual, filepath.Join(dir, "visits-2025-06-01.ndjson"))
			})
		})

		Convey("When records cross midnight", func() {
			So(w.Write(ctx, pageview("before", day)), ShouldBeNil)
			So(w.Write(ctx, pageview("after", day.Add(12*time.Hour))), ShouldBeNil)

			Convey("Then each lands in its own day file", func() {
				So(readLines(filepath.Join(dir, "visits-2025-06-01.ndjson")), ShouldHaveLength, 1)
				next := readLines(filepath.Join(dir, "visits-2025-06-02.ndjson"))
				So(next, ShouldHaveLength, 1)
				So(next[0]["id"], ShouldEqual, "after")
			})
		})

		Convey("When the writer is closed", func() {
			So(w.Write(ctx, pageview("a", day)), ShouldBeNil)
			So(w.Close(), ShouldBeNil)
			So(w.Close(), ShouldBeNil)

			Convey("Then further file writes fail but still reach the stream", func() {
				err := w.Write(ctx, pageview("b", day))
				So(errors.Is(err, sink.ErrWrite), ShouldBeTrue)
				So(errors.Is(err, sink.ErrClosed), ShouldBeTrue)
				So(stream.Lines(), ShouldHaveLength, 2)
			})
		})

		Convey("When a client record is written", func() {
			consent := true
			rec := model.ClientRecord{
				ID:        "c-1",
				Timestamp: day,
				IPHash:    "hash",
				Client:    payload.ClientPayload{Consent: &consent},
			}
			So(w.Write(ctx, rec), ShouldBeNil)

			Convey("Then the line carries the payload", func() {
				lines := readLines(filepath.Join(dir, "visits-2025-06-01.ndjson"))
				So(lines[0]["kind"], ShouldEqual, "client")
				So(lines[0]["client"], ShouldResemble, map[string]any{"consent": true})
			})
		})
	})

	Convey("Given a writer with file output disabled", t, func() {
		_ = logging.Init(logging.WithOutput(io.Discard))
		dir := filepath.Join(t.TempDir(), "never")
		stream := &lockedBuffer{}
		w := sink.NewWriter(sink.WithStream(stream), sink.WithDir(dir), sink.WithFileEnabled(false))

		Convey("When a record is written", func() {
			So(w.Write(ctx, pageview("a", day)), ShouldBeNil)

			Convey("Then only the stream receives it", func() {
				So(stream.Lines(), ShouldHaveLength, 1)
				_, err := os.Stat(dir)
				So(os.IsNotExist(err), ShouldBeTrue)
				So(w.FileEnabled(), ShouldBeFalse)
				So(w.CurrentFile(), ShouldEqual, "")
			})
		})
	})

	Convey("Given a writer whose stream is broken", t, func() {
		_ = logging.Init(logging.WithOutput(io.Discard))
		dir := t.TempDir()
		w := sink.NewWriter(sink.WithStream(failingWriter{}), sink.WithDir(dir), sink.WithFsync(false))
		Reset(func() { _ = w.Close() })

		Convey("When a record is written", func() {
			err := w.Write(ctx, pageview("a", day))

			Convey("Then the file still receives it", func() {
				So(err, ShouldBeNil)
				So(readLines(filepath.Join(dir, "visits-2025-06-01.ndjson")), ShouldHaveLength, 1)
			})
		})
	})

	Convey("Given a writer partitioning by a non-UTC zone", t, func() {
		_ = logging.Init(logging.WithOutput(io.Discard))
		loc := time.FixedZone("UTC+3", 3*3600)
		dir := t.TempDir()
		w := sink.NewWriter(sink.WithStream(io.Discard), sink.WithDir(dir), sink.WithLocation(loc))
		Reset(func() { _ = w.Close() })

		Convey("When a record is captured late in the UTC day", func() {
			at := time.Date(2025, 6, 1, 22, 30, 0, 0, time.UTC)
			So(w.Write(ctx, pageview("a", at)), ShouldBeNil)

			Convey("Then it lands in the local next-day file", func() {
				So(sink.FileName(at, loc), ShouldEqual, "visits-2025-06-02.ndjson")
				So(readLines(filepath.Join(dir, "visits-2025-06-02.ndjson")), ShouldHaveLength, 1)
			})
		})
	})

	Convey("Given a directory path that is a regular file", t, func() {
		_ = logging.Init(logging.WithOutput(io.Discard))
		blocker := filepath.Join(t.TempDir(), "blocker")
		So(os.WriteFile(blocker, []byte("x"), 0o600), ShouldBeNil)
		w := sink.NewWriter(sink.WithStream(io.Discard), sink.WithDir(filepath.Join(blocker, "logs")))

		Convey("When a record is written", func() {
			err := w.Write(ctx, pageview("a", day))

			Convey("Then ErrWrite is returned", func() {
				So(errors.Is(err, sink.ErrWrite), ShouldBeTrue)
			})
		})
	})
}
