package encoding

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// All multi-byte integers are little-endian.

// growGranularity is the first allocation size of a Writer; later growth doubles.
const growGranularity = 4096

// MaxStringLen is the longest string a length-prefixed field can carry.
const MaxStringLen = 255

var (
	ErrTruncated     = errors.New("encoding: truncated input")
	ErrStringTooLong = errors.New("encoding: string longer than 255 bytes")
)

// Writer is an append-only byte buffer. Offsets returned by Len stay valid
// across growth; only the backing array moves.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{}
}

// Len is the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Cap is the current capacity of the backing array.
func (w *Writer) Cap() int { return cap(w.buf) }

// Bytes returns the written bytes. The slice aliases the buffer until the next write.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) ensure(n int) {
	need := len(w.buf) + n
	if need <= cap(w.buf) {
		return
	}
	size := cap(w.buf)
	if size == 0 {
		size = (n + growGranularity - 1) / growGranularity * growGranularity
	}
	for size < need {
		size *= 2
	}
	next := make([]byte, len(w.buf), size)
	copy(next, w.buf)
	w.buf = next
}

func (w *Writer) WriteU8(v uint8) {
	w.ensure(1)
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteU32(v uint32) {
	w.ensure(4)
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) WriteI32(v int32) {
	w.WriteU32(uint32(v))
}

// WriteString writes a one-byte length followed by the raw bytes of s.
// Nothing is written when s does not fit.
func (w *Writer) WriteString(s string) error {
	if len(s) > MaxStringLen {
		return fmt.Errorf("%w: %d", ErrStringTooLong, len(s))
	}
	w.ensure(1 + len(s))
	w.buf = append(w.buf, uint8(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

// Reader is a forward-only cursor over a byte slice. Reads never go past the
// end: a request larger than what remains fails with ErrTruncated and leaves
// the cursor where it was.
type Reader struct {
	data []byte
	off  int
}

func NewReader(b []byte) *Reader {
	return &Reader{data: b}
}

// Available is the number of unread bytes.
func (r *Reader) Available() int { return len(r.data) - r.off }

// Offset is the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Available() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.off, r.Available())
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// ReadBytes returns the next n bytes without copying.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	return r.take(n)
}

// ReadString reads a length-prefixed string into a destination of the given
// capacity, one byte of which is reserved for a terminator. Content longer
// than capacity-1 is truncated and the rest skipped, so the cursor always
// advances by 1+len on success.
func (r *Reader) ReadString(capacity int) (string, error) {
	if capacity < 1 {
		panic(fmt.Sprintf("encoding: string capacity %d < 1", capacity))
	}
	start := r.off
	n, err := r.ReadU8()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		r.off = start
		return "", err
	}
	if keep := capacity - 1; len(b) > keep {
		b = b[:keep]
	}
	return string(b), nil
}
