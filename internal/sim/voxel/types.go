package voxel

import (
	"fmt"
	"strings"

	"voxlayer.ai/internal/sim/logic/mathx"
)

// Size is the chunk edge length. Chunks hold Size³ cells.
const Size = mathx.ChunkSize

// Volume is the number of cells in one chunk.
const Volume = Size * Size * Size

// MaxNameLen is the longest layer name that survives a save/load cycle.
const MaxNameLen = 16

// DefaultName is given to freshly created layers.
const DefaultName = "New layer"

type Color struct {
	R, G, B uint8
}

// Packed returns the color as 0xRRGGBB.
func (c Color) Packed() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

func ColorFromPacked(v uint32) Color {
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseColor accepts "#rrggbb" or "rrggbb".
func ParseColor(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return Color{}, fmt.Errorf("bad color %q: want rrggbb", s)
	}
	var v uint32
	for _, ch := range s {
		var d uint32
		switch {
		case ch >= '0' && ch <= '9':
			d = uint32(ch - '0')
		case ch >= 'a' && ch <= 'f':
			d = uint32(ch-'a') + 10
		case ch >= 'A' && ch <= 'F':
			d = uint32(ch-'A') + 10
		default:
			return Color{}, fmt.Errorf("bad color %q: not hex", s)
		}
		v = v<<4 | d
	}
	return ColorFromPacked(v), nil
}

// ChunkKey is a chunk coordinate: global coordinate floor-divided by Size.
type ChunkKey struct {
	X, Y, Z int32
}

// KeyOf returns the key of the chunk containing the global voxel (x,y,z).
func KeyOf(x, y, z int32) ChunkKey {
	return ChunkKey{X: mathx.ChunkOf(x), Y: mathx.ChunkOf(y), Z: mathx.ChunkOf(z)}
}

func (k ChunkKey) hash() uint32 {
	return mathx.Hash3(k.X, k.Y, k.Z)
}

// Less orders keys by X, then Y, then Z.
func (k ChunkKey) Less(o ChunkKey) bool {
	if k.X != o.X {
		return k.X < o.X
	}
	if k.Y != o.Y {
		return k.Y < o.Y
	}
	return k.Z < o.Z
}

// BlendMode says how a layer combines with the one beneath it. It is stored
// and loaded but not interpreted here.
type BlendMode uint8

const (
	KeepNone BlendMode = iota
	KeepAir
	KeepSpecial
	SubtractSolid
)

var blendNames = [...]string{
	KeepNone:      "KEEP_NONE",
	KeepAir:       "KEEP_AIR",
	KeepSpecial:   "KEEP_SPECIAL",
	SubtractSolid: "SUBTRACT_SOLID",
}

func (b BlendMode) Valid() bool { return int(b) < len(blendNames) }

func (b BlendMode) String() string {
	if !b.Valid() {
		return fmt.Sprintf("BLEND(%d)", uint8(b))
	}
	return blendNames[b]
}

func ParseBlendMode(s string) (BlendMode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range blendNames {
		if name == s {
			return BlendMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown blend mode %q", s)
}

func (b BlendMode) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("blend mode %d out of range", uint8(b))
	}
	return []byte(b.String()), nil
}

func (b *BlendMode) UnmarshalText(text []byte) error {
	v, err := ParseBlendMode(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}
