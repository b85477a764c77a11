package voxel

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestLayer_Defaults(t *testing.T) {
	l := NewLayer(1, -2, 3)
	if l.Name() != "New layer" || l.Blend != KeepNone || l.Selected {
		t.Fatalf("defaults: name=%q blend=%v selected=%v", l.Name(), l.Blend, l.Selected)
	}
	if l.Origin != [3]int32{1, -2, 3} || l.ChunkCount() != 0 {
		t.Fatalf("origin=%v chunks=%d", l.Origin, l.ChunkCount())
	}
}

func TestLayer_ExampleScenario(t *testing.T) {
	l := NewLayer(0, 0, 0)
	l.SetSolid(5, 5, 5, Color{255, 0, 255})
	l.SetSolid(5, 5, 6, Color{0, 255, 0})

	if l.ChunkCount() != 1 {
		t.Fatalf("chunks=%d want 1", l.ChunkCount())
	}
	c := l.Chunk(ChunkKey{0, 0, 0})
	if c == nil || c.Solid() != 2 {
		t.Fatalf("chunk (0,0,0) missing or wrong count")
	}

	l.SetAir(5, 5, 5)
	c = l.Chunk(ChunkKey{0, 0, 0})
	if c == nil || c.Solid() != 1 {
		t.Fatalf("after first clear: chunk resident=%v", c != nil)
	}
	if l.Color(5, 5, 6) != (Color{0, 255, 0}) {
		t.Fatalf("remaining voxel color=%v", l.Color(5, 5, 6))
	}

	l.SetAir(5, 5, 6)
	if l.ChunkCount() != 0 || l.Chunk(ChunkKey{0, 0, 0}) != nil {
		t.Fatalf("empty chunk still resident")
	}
	if l.IsSolid(5, 5, 6) {
		t.Fatalf("cleared voxel still solid")
	}
}

func TestLayer_NegativeCoordinatesLandInFloorChunks(t *testing.T) {
	l := NewLayer(0, 0, 0)
	l.SetSolid(-1, -16, -17, Color{1, 2, 3})
	c := l.Chunk(ChunkKey{-1, -1, -2})
	if c == nil {
		t.Fatalf("chunk (-1,-1,-2) not allocated; have %v", l.Keys())
	}
	if !c.IsSolid(15, 0, 15) {
		t.Fatalf("wrong local cell")
	}
	if l.IsSolid(0, -16, -17) || l.IsSolid(-1, -15, -17) {
		t.Fatalf("neighbour reported solid")
	}
	l.SetSolid(16, 0, 0, Color{})
	if l.Chunk(ChunkKey{1, 0, 0}) == nil {
		t.Fatalf("x=16 not in chunk 1")
	}
}

func TestLayer_SetAirOnMissIsNoop(t *testing.T) {
	l := NewLayer(0, 0, 0)
	l.SetAir(100, 100, 100)
	if l.ChunkCount() != 0 {
		t.Fatalf("SetAir allocated a chunk")
	}
	l.SetSolid(0, 0, 0, Color{1, 1, 1})
	l.SetAir(1, 0, 0)
	if l.ChunkCount() != 1 || l.Solids() != 1 {
		t.Fatalf("SetAir on air cell mutated layer")
	}
}

func TestLayer_ColorOnMissPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	NewLayer(0, 0, 0).Color(1, 2, 3)
}

func TestLayer_SetNameLimit(t *testing.T) {
	l := NewLayer(0, 0, 0)
	if err := l.SetName("sixteen-chars-ok"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	if err := l.SetName("seventeen-chars-x"); !errors.Is(err, ErrNameTooLong) {
		t.Fatalf("err=%v want ErrNameTooLong", err)
	}
	if l.Name() != "sixteen-chars-ok" {
		t.Fatalf("rejected name replaced old one: %q", l.Name())
	}
}

func TestLayer_OccupancyInvariantUnderRandomEdits(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	l := NewLayer(0, 0, 0)
	ref := map[[3]int32]Color{}

	for i := 0; i < 20000; i++ {
		p := [3]int32{int32(rng.Intn(80) - 40), int32(rng.Intn(80) - 40), int32(rng.Intn(40) - 20)}
		if rng.Intn(3) == 0 {
			l.SetAir(p[0], p[1], p[2])
			delete(ref, p)
		} else {
			c := Color{uint8(rng.Intn(4)), 0, 0}
			l.SetSolid(p[0], p[1], p[2], c)
			ref[p] = c
		}
	}

	if l.Solids() != len(ref) {
		t.Fatalf("solids=%d want %d", l.Solids(), len(ref))
	}
	for _, k := range l.Keys() {
		c := l.Chunk(k)
		if c.Solid() <= 0 {
			t.Fatalf("resident chunk %v has %d solids", k, c.Solid())
		}
		n := 0
		for i := range c.cells {
			if c.cells[i].solid {
				n++
			}
		}
		if n != c.Solid() {
			t.Fatalf("chunk %v counter=%d actual=%d", k, c.Solid(), n)
		}
	}
	for p, want := range ref {
		if !l.IsSolid(p[0], p[1], p[2]) || l.Color(p[0], p[1], p[2]) != want {
			t.Fatalf("voxel %v mismatch", p)
		}
	}
}

func TestLayer_ExtremeCoordinates(t *testing.T) {
	l := NewLayer(0, 0, 0)
	l.SetSolid(math.MinInt32, math.MaxInt32, 0, Color{7, 7, 7})
	if !l.IsSolid(math.MinInt32, math.MaxInt32, 0) {
		t.Fatalf("extreme voxel not solid")
	}
	if l.Chunk(ChunkKey{math.MinInt32 / Size, math.MaxInt32 / Size, 0}) == nil {
		t.Fatalf("extreme chunk missing: %v", l.Keys())
	}
}

func TestLayer_FillAndClear(t *testing.T) {
	l := NewLayer(0, 0, 0)
	b := NewBox([3]int32{3, 3, 1}, [3]int32{-20, -4, 0})
	if b.Volume() != 24*8*2 {
		t.Fatalf("volume=%d", b.Volume())
	}
	red := Color{255, 0, 0}
	if n := l.Fill(b, red); n != int(b.Volume()) {
		t.Fatalf("fill changed %d", n)
	}
	if n := l.Fill(b, red); n != 0 {
		t.Fatalf("refill changed %d", n)
	}
	if l.Solids() != int(b.Volume()) {
		t.Fatalf("solids=%d", l.Solids())
	}
	if n := l.Clear(b); n != int(b.Volume()) {
		t.Fatalf("clear removed %d", n)
	}
	if l.ChunkCount() != 0 {
		t.Fatalf("clear left %d chunks", l.ChunkCount())
	}
}

func TestLayer_Selection(t *testing.T) {
	l := NewLayer(-4, 0, 10)
	if _, ok := l.Selection(); ok {
		t.Fatalf("zero extent should have no selection")
	}
	l.Extent = [3]uint32{8, 1, 2}
	b, ok := l.Selection()
	if !ok || b.Min != [3]int32{-4, 0, 10} || b.Max != [3]int32{3, 0, 11} {
		t.Fatalf("selection=%v ok=%v", b, ok)
	}
}
