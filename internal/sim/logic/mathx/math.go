package mathx

// ChunkShift is log2 of the chunk edge length.
const ChunkShift = 4

// ChunkSize is the chunk edge length in voxels. Must stay a power of two:
// LocalOf relies on masking.
const ChunkSize = 1 << ChunkShift

// ChunkOf returns the chunk coordinate containing global coordinate g.
// Go's integer division truncates toward zero, so negative inputs are
// shifted by one before dividing to get floor semantics.
func ChunkOf(g int32) int32 {
	if g >= 0 {
		return g / ChunkSize
	}
	return (g+1)/ChunkSize - 1
}

// LocalOf returns g's offset inside its chunk, always in [0, ChunkSize).
func LocalOf(g int32) int32 {
	return g & (ChunkSize - 1)
}

// Hash32 is the integer mix used for chunk directory keys.
func Hash32(x uint32) uint32 {
	x = ((x >> 16) ^ x) * 0x45D9F3B
	x = ((x >> 16) ^ x) * 0x45D9F3B
	x = (x >> 16) ^ x
	return x
}

// Hash3 mixes each axis independently and folds them with xor.
func Hash3(x, y, z int32) uint32 {
	return Hash32(uint32(x)) ^ Hash32(uint32(y)) ^ Hash32(uint32(z))
}
