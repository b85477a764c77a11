package voxel

import (
	"errors"
	"fmt"
	"sort"

	"voxlayer.ai/internal/sim/logic/mathx"
)

var ErrNameTooLong = errors.New("voxel: layer name too long")

// Layer is a sparse voxel grid addressed by global int32 coordinates. Chunks
// are allocated when their first cell turns solid and freed as soon as their
// last solid cell turns to air, so every resident chunk is non-empty.
//
// A Layer is not safe for concurrent use.
type Layer struct {
	// Origin is informational; voxel coordinates are not offset by it.
	Origin [3]int32
	// Extent is the size of the selection box anchored at Origin.
	Extent [3]uint32
	// Selected is UI state; it is not persisted and is false after a load.
	Selected bool
	Blend    BlendMode

	name   string
	chunks Directory
}

func NewLayer(x, y, z int32) *Layer {
	return &Layer{
		Origin: [3]int32{x, y, z},
		Blend:  KeepNone,
		name:   DefaultName,
		chunks: newDirectory(),
	}
}

func (l *Layer) Name() string { return l.name }

func (l *Layer) SetName(name string) error {
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: %d bytes, max %d", ErrNameTooLong, len(name), MaxNameLen)
	}
	l.name = name
	return nil
}

func local(x, y, z int32) (int, int, int) {
	return int(mathx.LocalOf(x)), int(mathx.LocalOf(y)), int(mathx.LocalOf(z))
}

func (l *Layer) IsSolid(x, y, z int32) bool {
	c := l.chunks.Lookup(KeyOf(x, y, z))
	if c == nil {
		return false
	}
	lx, ly, lz := local(x, y, z)
	return c.IsSolid(lx, ly, lz)
}

// Color returns the color of a solid voxel. Callers check IsSolid first; asking
// about a voxel in an unallocated chunk panics.
func (l *Layer) Color(x, y, z int32) Color {
	k := KeyOf(x, y, z)
	c := l.chunks.Lookup(k)
	if c == nil {
		panic(fmt.Sprintf("voxel: color of (%d,%d,%d) in unallocated chunk %v", x, y, z, k))
	}
	lx, ly, lz := local(x, y, z)
	return c.Color(lx, ly, lz)
}

// SetAir clears a voxel. If that empties its chunk, the chunk is dropped
// immediately.
func (l *Layer) SetAir(x, y, z int32) {
	k := KeyOf(x, y, z)
	c := l.chunks.Lookup(k)
	if c == nil {
		return
	}
	lx, ly, lz := local(x, y, z)
	c.SetAir(lx, ly, lz)
	if c.Solid() == 0 {
		l.chunks.Erase(k)
	}
}

func (l *Layer) SetSolid(x, y, z int32, color Color) {
	k := KeyOf(x, y, z)
	c := l.chunks.Lookup(k)
	if c == nil {
		c = NewChunk(k)
		l.chunks.Insert(c)
	}
	lx, ly, lz := local(x, y, z)
	c.SetSolid(lx, ly, lz, color)
}

// Chunk returns the resident chunk at k, or nil. The pointer is invalid after
// any SetAir that empties the chunk.
func (l *Layer) Chunk(k ChunkKey) *Chunk {
	return l.chunks.Lookup(k)
}

// ChunkCount is the number of resident chunks.
func (l *Layer) ChunkCount() int { return l.chunks.Len() }

// Solids counts solid voxels across all chunks.
func (l *Layer) Solids() int {
	n := 0
	l.chunks.Range(func(c *Chunk) bool {
		n += c.Solid()
		return true
	})
	return n
}

// Keys returns the resident chunk keys in sorted order.
func (l *Layer) Keys() []ChunkKey {
	keys := make([]ChunkKey, 0, l.chunks.Len())
	l.chunks.Range(func(c *Chunk) bool {
		keys = append(keys, c.key)
		return true
	})
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Render passes every resident chunk to r.
func (l *Layer) Render(r ChunkRenderer) {
	l.chunks.Range(func(c *Chunk) bool {
		c.Render(r)
		return true
	})
}
