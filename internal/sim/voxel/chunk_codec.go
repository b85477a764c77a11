package voxel

import (
	"fmt"

	"voxlayer.ai/internal/sim/encoding"
)

// chunkRecordSize is the encoded size of one chunk: key plus Volume cells of
// (solid, r, g, b).
const chunkRecordSize = 3*4 + Volume*4

// Encode appends the chunk record to w. Empty chunks are never written; doing
// so is a caller bug.
func (c *Chunk) Encode(w *encoding.Writer) {
	if c.solid == 0 {
		panic(fmt.Sprintf("voxel: encode of empty chunk %v", c.key))
	}
	w.WriteI32(c.key.X)
	w.WriteI32(c.key.Y)
	w.WriteI32(c.key.Z)
	for i := range c.cells {
		p := &c.cells[i]
		if p.solid {
			w.WriteU8(1)
		} else {
			w.WriteU8(0)
		}
		w.WriteU8(p.color.R)
		w.WriteU8(p.color.G)
		w.WriteU8(p.color.B)
	}
}

// DecodeChunk reads one chunk record. It checks the full record length before
// allocating anything. Any non-zero solid byte counts as solid.
func DecodeChunk(r *encoding.Reader) (*Chunk, error) {
	if r.Available() < chunkRecordSize {
		return nil, fmt.Errorf("chunk record at offset %d: %w", r.Offset(), encoding.ErrTruncated)
	}
	var key ChunkKey
	var err error
	if key.X, err = r.ReadI32(); err != nil {
		return nil, err
	}
	if key.Y, err = r.ReadI32(); err != nil {
		return nil, err
	}
	if key.Z, err = r.ReadI32(); err != nil {
		return nil, err
	}
	raw, err := r.ReadBytes(Volume * 4)
	if err != nil {
		return nil, err
	}

	c := NewChunk(key)
	for i := range c.cells {
		b := raw[i*4 : i*4+4]
		c.cells[i] = cell{
			solid: b[0] != 0,
			color: Color{R: b[1], G: b[2], B: b[3]},
		}
		if b[0] != 0 {
			c.solid++
		}
	}
	return c, nil
}
