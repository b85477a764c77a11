package voxel

// Directory maps chunk keys to chunks. Keys are bucketed by the per-axis
// integer mix in mathx.Hash3 and compared on all three components, so
// permuted keys that share a bucket stay distinct.
type Directory struct {
	buckets map[uint32][]*Chunk
	n       int
}

func newDirectory() Directory {
	return Directory{buckets: make(map[uint32][]*Chunk, 256)}
}

func (d *Directory) Len() int { return d.n }

// Lookup returns the chunk at k, or nil.
func (d *Directory) Lookup(k ChunkKey) *Chunk {
	for _, c := range d.buckets[k.hash()] {
		if c.key == k {
			return c
		}
	}
	return nil
}

// Insert adds c under its own key. It reports false and leaves the directory
// unchanged when the key is already present.
func (d *Directory) Insert(c *Chunk) bool {
	h := c.key.hash()
	for _, o := range d.buckets[h] {
		if o.key == c.key {
			return false
		}
	}
	d.buckets[h] = append(d.buckets[h], c)
	d.n++
	return true
}

// Erase removes and returns the chunk at k, or nil if absent.
func (d *Directory) Erase(k ChunkKey) *Chunk {
	h := k.hash()
	b := d.buckets[h]
	for i, c := range b {
		if c.key != k {
			continue
		}
		last := len(b) - 1
		b[i] = b[last]
		b[last] = nil
		if last == 0 {
			delete(d.buckets, h)
		} else {
			d.buckets[h] = b[:last]
		}
		d.n--
		return c
	}
	return nil
}

// Range calls fn for every chunk until fn returns false. fn must not insert
// or erase.
func (d *Directory) Range(fn func(*Chunk) bool) {
	for _, b := range d.buckets {
		for _, c := range b {
			if !fn(c) {
				return
			}
		}
	}
}
