package voxel

// ChunkRenderer consumes the solid cells of one chunk as packed (x,y,z) byte
// tuples. It is the only way chunk content leaves this package for drawing.
type ChunkRenderer interface {
	RenderChunk(key ChunkKey, vertices []byte)
}

type renderCache struct {
	dirty    bool
	vertices []byte
	rebuilds int
}

// Vertices returns one 3-byte local (x,y,z) tuple per solid cell in cell
// order. The list is rebuilt only after the chunk changed; callers must not
// modify or retain it across edits.
func (c *Chunk) Vertices() []byte {
	if !c.render.dirty {
		return c.render.vertices
	}
	out := c.render.vertices[:0]
	if cap(out) < 3*c.solid {
		out = make([]byte, 0, 3*c.solid)
	}
	for i := range c.cells {
		if !c.cells[i].solid {
			continue
		}
		x := i % Size
		y := (i / Size) % Size
		z := i / (Size * Size)
		out = append(out, uint8(x), uint8(y), uint8(z))
	}
	c.render.vertices = out
	c.render.dirty = false
	c.render.rebuilds++
	return out
}

// VertexColors returns the colors of the cells listed by Vertices, in the same order.
func (c *Chunk) VertexColors() []Color {
	v := c.Vertices()
	out := make([]Color, 0, len(v)/3)
	for i := 0; i+2 < len(v); i += 3 {
		out = append(out, c.cells[index(int(v[i]), int(v[i+1]), int(v[i+2]))].color)
	}
	return out
}

// RenderDirty reports whether the next Vertices call will rebuild.
func (c *Chunk) RenderDirty() bool { return c.render.dirty }

// Rebuilds counts vertex list rebuilds since the chunk was created.
func (c *Chunk) Rebuilds() int { return c.render.rebuilds }

// Render hands the chunk's current vertex list to r.
func (c *Chunk) Render(r ChunkRenderer) {
	r.RenderChunk(c.key, c.Vertices())
}
