package voxel

import "fmt"

// Box is an inclusive region of global voxel coordinates.
type Box struct {
	Min, Max [3]int32
}

// NewBox orders the corners so Min <= Max on every axis.
func NewBox(a, b [3]int32) Box {
	var bx Box
	for i := 0; i < 3; i++ {
		bx.Min[i], bx.Max[i] = a[i], b[i]
		if bx.Min[i] > bx.Max[i] {
			bx.Min[i], bx.Max[i] = bx.Max[i], bx.Min[i]
		}
	}
	return bx
}

// Volume is the number of voxels in the box.
func (b Box) Volume() uint64 {
	v := uint64(1)
	for i := 0; i < 3; i++ {
		v *= uint64(int64(b.Max[i]) - int64(b.Min[i]) + 1)
	}
	return v
}

func (b Box) Contains(x, y, z int32) bool {
	return x >= b.Min[0] && x <= b.Max[0] &&
		y >= b.Min[1] && y <= b.Max[1] &&
		z >= b.Min[2] && z <= b.Max[2]
}

func (b Box) String() string {
	return fmt.Sprintf("%d,%d,%d:%d,%d,%d", b.Min[0], b.Min[1], b.Min[2], b.Max[0], b.Max[1], b.Max[2])
}

// each walks the box without overflowing at the int32 limits.
func (b Box) each(fn func(x, y, z int32)) {
	for z := int64(b.Min[2]); z <= int64(b.Max[2]); z++ {
		for y := int64(b.Min[1]); y <= int64(b.Max[1]); y++ {
			for x := int64(b.Min[0]); x <= int64(b.Max[0]); x++ {
				fn(int32(x), int32(y), int32(z))
			}
		}
	}
}

// Selection returns the layer's selection box, or false when any extent is zero.
func (l *Layer) Selection() (Box, bool) {
	if l.Extent[0] == 0 || l.Extent[1] == 0 || l.Extent[2] == 0 {
		return Box{}, false
	}
	var b Box
	for i := 0; i < 3; i++ {
		b.Min[i] = l.Origin[i]
		end := int64(l.Origin[i]) + int64(l.Extent[i]) - 1
		if end > int64(^uint32(0)>>1) {
			end = int64(^uint32(0) >> 1)
		}
		b.Max[i] = int32(end)
	}
	return b, true
}

// Fill sets every voxel in b solid with color and returns how many changed.
func (l *Layer) Fill(b Box, color Color) int {
	n := 0
	b.each(func(x, y, z int32) {
		if l.IsSolid(x, y, z) && l.Color(x, y, z) == color {
			return
		}
		l.SetSolid(x, y, z, color)
		n++
	})
	return n
}

// Clear sets every voxel in b to air and returns how many were solid.
func (l *Layer) Clear(b Box) int {
	n := 0
	b.each(func(x, y, z int32) {
		if !l.IsSolid(x, y, z) {
			return
		}
		l.SetAir(x, y, z)
		n++
	})
	return n
}
