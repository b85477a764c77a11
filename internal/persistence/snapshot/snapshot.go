// Package snapshot stores layers on disk, either as the bare layer stream
// (.layer) or as a zstd file holding a JSON header line followed by that
// stream (.layer.zst).
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"voxlayer.ai/internal/sim/voxel"
)

const Version = 1

const (
	ExtRaw  = ".layer"
	ExtZstd = ".layer.zst"
)

var (
	ErrDigestMismatch = errors.New("snapshot: digest mismatch")
	ErrBadHeader      = errors.New("snapshot: bad header")
)

type Header struct {
	Version   int    `json:"version"`
	LayerID   string `json:"layer_id"`
	Name      string `json:"name"`
	Seq       uint64 `json:"seq"`
	Chunks    int    `json:"chunks"`
	Solids    int    `json:"solids"`
	Digest    string `json:"digest"`
	CreatedAt string `json:"created_at,omitempty"`
}

// HeaderOf describes l as it stands at edit sequence seq.
func HeaderOf(layerID string, seq uint64, l *voxel.Layer) Header {
	return Header{
		Version: Version,
		LayerID: layerID,
		Name:    l.Name(),
		Seq:     seq,
		Chunks:  l.ChunkCount(),
		Solids:  l.Solids(),
		Digest:  l.Digest(),
	}
}

// ParseLevel maps a tuning name to a zstd level. Empty means default.
func ParseLevel(name string) (zstd.EncoderLevel, error) {
	if name == "" {
		return zstd.SpeedDefault, nil
	}
	ok, lvl := zstd.EncoderLevelFromString(name)
	if !ok {
		return 0, fmt.Errorf("unknown zstd level %q", name)
	}
	return lvl, nil
}

// Write stores data, an encoded layer, at path. The suffix picks the format;
// hdr is only written for .layer.zst.
func Write(path string, hdr Header, data []byte, level zstd.EncoderLevel) error {
	switch {
	case strings.HasSuffix(path, ExtZstd):
		return writeAtomic(path, func(w io.Writer) error { return writeCompressed(w, hdr, data, level) })
	case strings.HasSuffix(path, ExtRaw):
		return writeAtomic(path, func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		})
	default:
		return fmt.Errorf("%s: unknown snapshot suffix", path)
	}
}

// WriteLayer encodes l and writes it with Write.
func WriteLayer(path, layerID string, seq uint64, l *voxel.Layer, level zstd.EncoderLevel) (Header, error) {
	data, err := l.MarshalBinary()
	if err != nil {
		return Header{}, err
	}
	hdr := HeaderOf(layerID, seq, l)
	return hdr, Write(path, hdr, data, level)
}

func writeCompressed(w io.Writer, hdr Header, data []byte, level zstd.EncoderLevel) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(hdr)
	if err != nil {
		enc.Close()
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if _, err := bw.Write(data); err != nil {
		enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// writeAtomic writes through a temp file in the target directory and renames
// it into place, so readers never see a partial snapshot.
func writeAtomic(path string, fill func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if err := fill(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Read loads the layer at path. For raw files the header is derived from the
// decoded layer and carries no sequence or layer id. For compressed files the
// stored digest is checked against the decoded layer.
func Read(path string) (Header, *voxel.Layer, error) {
	switch {
	case strings.HasSuffix(path, ExtZstd):
		return readCompressed(path)
	case strings.HasSuffix(path, ExtRaw):
		b, err := os.ReadFile(path)
		if err != nil {
			return Header{}, nil, err
		}
		var l voxel.Layer
		if err := l.UnmarshalBinary(b); err != nil {
			return Header{}, nil, fmt.Errorf("%s: %w", path, err)
		}
		return HeaderOf("", 0, &l), &l, nil
	default:
		return Header{}, nil, fmt.Errorf("%s: unknown snapshot suffix", path)
	}
}

func readCompressed(path string) (Header, *voxel.Layer, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return Header{}, nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	hdr, err := readHeaderLine(br)
	if err != nil {
		return Header{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return Header{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	var l voxel.Layer
	if err := l.UnmarshalBinary(body); err != nil {
		return Header{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	if got := l.Digest(); hdr.Digest != "" && got != hdr.Digest {
		return Header{}, nil, fmt.Errorf("%s: %w: header %s, layer %s", path, ErrDigestMismatch, hdr.Digest, got)
	}
	return hdr, &l, nil
}

// ReadHeader returns only the header line of a .layer.zst file.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return Header{}, err
	}
	defer dec.Close()
	return readHeaderLine(bufio.NewReader(dec))
}

func readHeaderLine(br *bufio.Reader) (Header, error) {
	line, err := br.ReadBytes('\n')
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	var hdr Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &hdr); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if hdr.Version != Version {
		return Header{}, fmt.Errorf("%w: version %d", ErrBadHeader, hdr.Version)
	}
	return hdr, nil
}

// PathFor names the compressed snapshot for seq inside dir.
func PathFor(dir string, seq uint64) string {
	return filepath.Join(dir, strconv.FormatUint(seq, 10)+ExtZstd)
}

// Latest returns the highest-sequence "<seq>.layer.zst" in dir, or "" if none.
func Latest(dir string) (path string, seq uint64) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return "", 0
	}
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ExtZstd) {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ExtZstd), 10, 64)
		if err != nil {
			continue
		}
		if path == "" || n > seq {
			seq = n
			path = filepath.Join(dir, name)
		}
	}
	return path, seq
}
