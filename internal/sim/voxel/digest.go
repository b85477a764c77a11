package voxel

import (
	"crypto/sha256"
	"encoding/hex"

	"voxlayer.ai/internal/sim/encoding"
)

type digestCache struct {
	dirty bool
	hash  [32]byte
}

// Digest is the sha256 of the chunk record, cached until the next edit.
func (c *Chunk) Digest() [32]byte {
	if c.digest.dirty {
		w := encoding.NewWriter()
		c.Encode(w)
		c.digest.hash = sha256.Sum256(w.Bytes())
		c.digest.dirty = false
	}
	return c.digest.hash
}

// Digest hashes the layer header and every chunk digest in key order. Two
// layers with the same content have the same digest regardless of edit history.
func (l *Layer) Digest() string {
	h := sha256.New()
	w := encoding.NewWriter()
	// The name is at most MaxNameLen bytes (SetName, DecodeLayer), well under
	// the string limit, so the header always encodes.
	_ = l.encodeHeader(w)
	h.Write(w.Bytes())
	for _, k := range l.Keys() {
		d := l.chunks.Lookup(k).Digest()
		h.Write(d[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
