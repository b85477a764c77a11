package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxlayer.ai/internal/sim/editor"
	"voxlayer.ai/internal/sim/voxel"
)

// JSONLZstdWriter appends JSON lines to zstd files rotated every UTC hour.
// Each rotation starts a new zstd frame, so a file reopened within the same
// hour stays readable.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time
	// OnClose, if set, receives the path of every file the writer finishes.
	OnClose func(path string)

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

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

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
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
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
		if w.OnClose != nil {
			w.OnClose(w.pathForHour(w.curHour))
		}
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// EditLogger journals one JSONL entry per accepted edit (compressed).
type EditLogger struct{ w *JSONLZstdWriter }

func NewEditLogger(layerDir string) *EditLogger {
	return &EditLogger{w: NewJSONLZstdWriter(filepath.Join(layerDir, "edits"), "edits")}
}

func (l *EditLogger) WriteEdit(e editor.EditEntry) error { return l.w.Write(e) }
func (l *EditLogger) Close() error                      { return l.w.Close() }

// OnClose registers fn for journal files finished by rotation or Close.
func (l *EditLogger) OnClose(fn func(path string)) { l.w.OnClose = fn }

// ReadEdits decodes every entry of one journal file, in order.
func ReadEdits(path string) ([]editor.EditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []editor.EditEntry
	jd := json.NewDecoder(dec)
	for {
		var e editor.EditEntry
		if err := jd.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("%s: entry %d: %w", path, len(out)+1, err)
		}
		out = append(out, e)
	}
}

// JournalFiles lists the journal files under layerDir, oldest first.
func JournalFiles(layerDir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(layerDir, "edits", "edits-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// ReplayResult summarizes a Replay run.
type ReplayResult struct {
	Files   int
	Applied int
	Skipped int
	LastSeq uint64
}

// Replay applies journaled edits with seq > after onto l, oldest file first.
// stop, if non-zero, bounds the replay to seq <= stop. A damaged tail in the
// newest file is tolerated: everything readable is applied and the read error
// is returned alongside the result.
func Replay(layerDir string, l *voxel.Layer, after, stop uint64) (ReplayResult, error) {
	res := ReplayResult{LastSeq: after}
	files, err := JournalFiles(layerDir)
	if err != nil {
		return res, err
	}
	for i, path := range files {
		entries, readErr := ReadEdits(path)
		res.Files++
		for _, e := range entries {
			if e.Seq <= res.LastSeq || (stop > 0 && e.Seq > stop) {
				res.Skipped++
				continue
			}
			if err := editor.Apply(l, e); err != nil {
				return res, err
			}
			res.Applied++
			res.LastSeq = e.Seq
		}
		if readErr != nil {
			if i == len(files)-1 {
				return res, readErr
			}
			return res, fmt.Errorf("journal damaged before newest file: %w", readErr)
		}
	}
	return res, nil
}

// LastSeq returns the highest seq journaled under layerDir, or 0 when there is
// no journal. Files are read newest first until one yields entries; a read
// error is returned alongside whatever seq was found.
func LastSeq(layerDir string) (uint64, error) {
	files, err := JournalFiles(layerDir)
	if err != nil {
		return 0, err
	}
	var last uint64
	var firstErr error
	for i := len(files) - 1; i >= 0 && last == 0; i-- {
		entries, err := ReadEdits(files[i])
		if err != nil && firstErr == nil {
			firstErr = err
		}
		for _, e := range entries {
			if e.Seq > last {
				last = e.Seq
			}
		}
	}
	return last, firstErr
}
