package voxel

import "fmt"

type cell struct {
	solid bool
	color Color
}

// Chunk is a dense Size³ block of cells. Cells are laid out as
// x + (y + z*Size)*Size.
type Chunk struct {
	key   ChunkKey
	cells []cell
	solid int

	render renderCache
	digest digestCache
}

// NewChunk allocates an all-air chunk.
func NewChunk(key ChunkKey) *Chunk {
	return &Chunk{
		key:    key,
		cells:  make([]cell, Volume),
		render: renderCache{dirty: true},
		digest: digestCache{dirty: true},
	}
}

func (c *Chunk) Key() ChunkKey { return c.key }

// Solid is the number of solid cells.
func (c *Chunk) Solid() int { return c.solid }

func index(x, y, z int) int {
	return x + (y+z*Size)*Size
}

func checkLocal(x, y, z int) {
	if x < 0 || y < 0 || z < 0 || x >= Size || y >= Size || z >= Size {
		panic(fmt.Sprintf("voxel: local coordinate (%d,%d,%d) outside [0,%d)", x, y, z, Size))
	}
}

func (c *Chunk) IsSolid(x, y, z int) bool {
	checkLocal(x, y, z)
	if c.solid == 0 {
		return false
	}
	return c.cells[index(x, y, z)].solid
}

// Color returns the color stored at a cell. The cell must be solid; for air
// cells the result is whatever was last stored there.
func (c *Chunk) Color(x, y, z int) Color {
	checkLocal(x, y, z)
	return c.cells[index(x, y, z)].color
}

func (c *Chunk) SetAir(x, y, z int) {
	checkLocal(x, y, z)
	p := &c.cells[index(x, y, z)]
	if !p.solid {
		return
	}
	p.solid = false
	c.solid--
	c.touch()
}

func (c *Chunk) SetSolid(x, y, z int, color Color) {
	checkLocal(x, y, z)
	p := &c.cells[index(x, y, z)]
	if p.solid && p.color == color {
		return
	}
	if !p.solid {
		p.solid = true
		c.solid++
	}
	p.color = color
	c.touch()
}

func (c *Chunk) touch() {
	c.render.dirty = true
	c.digest.dirty = true
}
