// Package changelog appends replication records to hourly zstd-compressed
// JSONL files.
package changelog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"outpostforge.ai/internal/gen/scene"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Write appends one JSON line per value and flushes once.
func (w *JSONLZstdWriter) Write(vs ...any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	for _, v := range vs {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := w.w.Write(b); err != nil {
			return err
		}
		if err := w.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Record is one replicated change of a committed outpost.
type Record struct {
	Run string `json:"run"`
	scene.Change
}

// ChangeLog writes the change log of every committed outpost.
type ChangeLog struct {
	w   *JSONLZstdWriter
	run func() string
}

// NewChangeLog writes under dir/changes. run labels each batch; it may be
// nil.
func NewChangeLog(dir string, run func() string) *ChangeLog {
	return &ChangeLog{w: NewJSONLZstdWriter(filepath.Join(dir, "changes"), "changes"), run: run}
}

func (l *ChangeLog) WriteChanges(changes []scene.Change) error {
	id := ""
	if l.run != nil {
		id = l.run()
	}
	return l.WriteRun(id, changes)
}

// WriteRun writes changes labelled with an explicit run id.
func (l *ChangeLog) WriteRun(run string, changes []scene.Change) error {
	if len(changes) == 0 {
		return nil
	}
	vs := make([]any, len(changes))
	for i, c := range changes {
		vs[i] = Record{Run: run, Change: c}
	}
	return l.w.Write(vs...)
}

func (l *ChangeLog) Close() error { return l.w.Close() }
