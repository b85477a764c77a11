package editor

import (
	"errors"
	"fmt"

	"voxlayer.ai/internal/sim/voxel"
)

var ErrBadEntry = errors.New("editor: bad journal entry")

// Apply redoes one journaled edit on l. Entries are idempotent, so applying
// one that l already reflects changes nothing.
func Apply(l *voxel.Layer, e EditEntry) error {
	x, y, z := e.Pos[0], e.Pos[1], e.Pos[2]
	box := func() (voxel.Box, error) {
		if e.Max == nil {
			return voxel.Box{}, fmt.Errorf("%w: seq %d %s without max", ErrBadEntry, e.Seq, e.Op)
		}
		return voxel.NewBox(e.Pos, *e.Max), nil
	}

	switch e.Op {
	case OpSetSolid:
		c, err := voxel.ParseColor(e.Color)
		if err != nil {
			return fmt.Errorf("%w: seq %d: %v", ErrBadEntry, e.Seq, err)
		}
		l.SetSolid(x, y, z, c)
	case OpSetAir:
		l.SetAir(x, y, z)
	case OpFill:
		b, err := box()
		if err != nil {
			return err
		}
		c, err := voxel.ParseColor(e.Color)
		if err != nil {
			return fmt.Errorf("%w: seq %d: %v", ErrBadEntry, e.Seq, err)
		}
		l.Fill(b, c)
	case OpClear:
		b, err := box()
		if err != nil {
			return err
		}
		l.Clear(b)
	case OpMeta:
		if e.Meta == nil || !e.Meta.Blend.Valid() {
			return fmt.Errorf("%w: seq %d META without valid meta", ErrBadEntry, e.Seq)
		}
		if err := l.SetName(e.Meta.Name); err != nil {
			return fmt.Errorf("%w: seq %d: %v", ErrBadEntry, e.Seq, err)
		}
		l.Origin = e.Meta.Origin
		l.Extent = e.Meta.Extent
		l.Blend = e.Meta.Blend
	default:
		return fmt.Errorf("%w: seq %d unknown op %q", ErrBadEntry, e.Seq, e.Op)
	}
	return nil
}
