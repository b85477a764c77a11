package voxel

import (
	"errors"
	"fmt"

	"voxlayer.ai/internal/sim/encoding"
)

var ErrMalformed = errors.New("voxel: malformed layer data")

// headerFixedSize covers origin and extent, the part of the header read before the name.
const headerFixedSize = 6 * 4

// headerTailSize covers blend mode and chunk count.
const headerTailSize = 1 + 4

func (l *Layer) encodeHeader(w *encoding.Writer) error {
	for _, v := range l.Origin {
		w.WriteI32(v)
	}
	for _, v := range l.Extent {
		w.WriteU32(v)
	}
	if err := w.WriteString(l.name); err != nil {
		return fmt.Errorf("layer name: %w", err)
	}
	w.WriteU8(uint8(l.Blend))
	w.WriteU32(uint32(l.chunks.Len()))
	return nil
}

// Encode appends the layer header and all chunks, in key order, to w.
func (l *Layer) Encode(w *encoding.Writer) error {
	if err := l.encodeHeader(w); err != nil {
		return err
	}
	for _, k := range l.Keys() {
		l.chunks.Lookup(k).Encode(w)
	}
	return nil
}

func (l *Layer) MarshalBinary() ([]byte, error) {
	w := encoding.NewWriter()
	if err := l.Encode(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// UnmarshalBinary replaces l with the decoded layer. On error l is unchanged.
func (l *Layer) UnmarshalBinary(b []byte) error {
	dec, err := DecodeLayer(encoding.NewReader(b))
	if err != nil {
		return err
	}
	*l = *dec
	return nil
}

// DecodeLayer reads one layer. It either returns a complete layer or an error
// and no layer; chunks read before a failure are discarded.
func DecodeLayer(r *encoding.Reader) (*Layer, error) {
	if r.Available() < headerFixedSize {
		return nil, fmt.Errorf("layer header: %w", encoding.ErrTruncated)
	}
	l := NewLayer(0, 0, 0)
	var err error
	for i := range l.Origin {
		if l.Origin[i], err = r.ReadI32(); err != nil {
			return nil, err
		}
	}
	for i := range l.Extent {
		if l.Extent[i], err = r.ReadU32(); err != nil {
			return nil, err
		}
	}
	if l.name, err = r.ReadString(MaxNameLen + 1); err != nil {
		return nil, fmt.Errorf("layer name: %w", err)
	}
	if r.Available() < headerTailSize {
		return nil, fmt.Errorf("layer header: %w", encoding.ErrTruncated)
	}
	blend, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	l.Blend = BlendMode(blend)
	if !l.Blend.Valid() {
		return nil, fmt.Errorf("%w: blend mode %d", ErrMalformed, blend)
	}
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if uint64(count)*chunkRecordSize > uint64(r.Available()) {
		return nil, fmt.Errorf("layer declares %d chunks, %d bytes remain: %w", count, r.Available(), encoding.ErrTruncated)
	}

	for i := uint32(0); i < count; i++ {
		c, err := DecodeChunk(r)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, count, err)
		}
		if c.Solid() == 0 {
			continue
		}
		if !l.chunks.Insert(c) {
			return nil, fmt.Errorf("%w: duplicate chunk %v", ErrMalformed, c.Key())
		}
	}
	l.Selected = false
	return l, nil
}
