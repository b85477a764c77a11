package mathx

import (
	"math"
	"math/rand"
	"testing"
)

func TestChunkOf_Boundaries(t *testing.T) {
	cases := []struct {
		g    int32
		want int32
	}{
		{0, 0},
		{15, 0},
		{16, 1},
		{17, 1},
		{-1, -1},
		{-16, -1},
		{-17, -2},
		{-32, -2},
		{-33, -3},
		{math.MaxInt32, math.MaxInt32 / ChunkSize},
		{math.MinInt32, math.MinInt32 / ChunkSize},
	}
	for _, tc := range cases {
		if got := ChunkOf(tc.g); got != tc.want {
			t.Fatalf("ChunkOf(%d)=%d want %d", tc.g, got, tc.want)
		}
	}
}

func TestLocalOf_Boundaries(t *testing.T) {
	cases := []struct {
		g    int32
		want int32
	}{
		{0, 0},
		{1, 1},
		{15, 15},
		{16, 0},
		{17, 1},
		{-1, 15},
		{-15, 1},
		{-16, 0},
		{-17, 15},
		{math.MinInt32, 0},
		{math.MaxInt32, 15},
	}
	for _, tc := range cases {
		if got := LocalOf(tc.g); got != tc.want {
			t.Fatalf("LocalOf(%d)=%d want %d", tc.g, got, tc.want)
		}
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b < 0 {
		q--
	}
	return q
}

func TestChunkAndLocal_AgreeWithFloorDivision(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	check := func(g int32) {
		t.Helper()
		if got, want := ChunkOf(g), int32(floorDiv(int64(g), ChunkSize)); got != want {
			t.Fatalf("ChunkOf(%d)=%d, floor=%d", g, got, want)
		}
		if got, want := LocalOf(g), int32(int64(g) - floorDiv(int64(g), ChunkSize)*ChunkSize); got != want {
			t.Fatalf("LocalOf(%d)=%d, floor mod=%d", g, got, want)
		}
		if back := ChunkOf(g)*ChunkSize + LocalOf(g); back != g {
			t.Fatalf("recompose(%d)=%d", g, back)
		}
	}
	for g := int32(-4096); g <= 4096; g++ {
		check(g)
	}
	for i := 0; i < 100000; i++ {
		check(int32(rng.Uint32()))
	}
	check(math.MinInt32)
	check(math.MaxInt32)
}

func TestHash32_KnownValues(t *testing.T) {
	if got := Hash32(0); got != 0 {
		t.Fatalf("Hash32(0)=%#x want 0", got)
	}
	// Mixing must be deterministic and spread neighbouring inputs.
	if Hash32(1) == Hash32(2) {
		t.Fatalf("adjacent inputs collide")
	}
	if Hash32(1) != Hash32(1) {
		t.Fatalf("hash not deterministic")
	}
}

func TestHash3_FoldsPerAxisMix(t *testing.T) {
	for _, k := range [][3]int32{{0, 0, 0}, {1, -1, 7}, {-17, 16, 3}, {math.MaxInt32, math.MinInt32, 0}} {
		want := Hash32(uint32(k[0])) ^ Hash32(uint32(k[1])) ^ Hash32(uint32(k[2]))
		if got := Hash3(k[0], k[1], k[2]); got != want {
			t.Fatalf("Hash3(%v)=%#x want %#x", k, got, want)
		}
	}
}

func TestHash3_SpreadsAxisAlignedRows(t *testing.T) {
	// A row of chunks along one axis must not pile into a few buckets.
	seen := map[uint32]struct{}{}
	for x := int32(-512); x < 512; x++ {
		seen[Hash3(x, 3, -2)] = struct{}{}
	}
	if len(seen) != 1024 {
		t.Fatalf("row collisions: %d distinct of 1024", len(seen))
	}
}
