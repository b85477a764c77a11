// Package editor serializes access to one layer and fans edits out to the
// journal, the index and live observers.
package editor

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"voxlayer.ai/internal/sim/voxel"
)

var ErrBoxTooLarge = errors.New("editor: box too large")

type Op string

const (
	OpSetSolid Op = "SET_SOLID"
	OpSetAir   Op = "SET_AIR"
	OpFill     Op = "FILL"
	OpClear    Op = "CLEAR"
	OpMeta     Op = "META"
)

// EditEntry is one journaled edit. Pos is the voxel for single-voxel ops and
// the min corner for box ops.
type EditEntry struct {
	Time    string    `json:"time"`
	Seq     uint64    `json:"seq"`
	Op      Op        `json:"op"`
	Pos     [3]int32  `json:"pos"`
	Max     *[3]int32 `json:"max,omitempty"`
	Color   string    `json:"color,omitempty"`
	Meta    *Meta     `json:"meta,omitempty"`
	Changed int       `json:"changed"`
}

type EditSink interface {
	WriteEdit(EditEntry) error
}

type Options struct {
	// SnapshotEveryEdits raises a snapshot request after that many accepted
	// edits. Zero disables it.
	SnapshotEveryEdits int
	// MaxBoxVolume bounds Fill and Clear. Zero means unbounded.
	MaxBoxVolume uint64
	Sinks        []EditSink
	Logger       *log.Logger
}

type Stats struct {
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
	Solids int    `json:"solids"`
	Seq    uint64 `json:"seq"`
	Digest string `json:"digest"`
}

type Meta struct {
	Name   string          `json:"name"`
	Origin [3]int32        `json:"origin"`
	Extent [3]uint32       `json:"extent"`
	Blend  voxel.BlendMode `json:"blend"`
}

// Capture is a consistent encoding of the layer at one edit sequence.
type Capture struct {
	Seq    uint64
	Name   string
	Chunks int
	Solids int
	Digest string
	Data   []byte
}

// ChunkView is a copy of one chunk's render data.
type ChunkView struct {
	Key      voxel.ChunkKey
	Vertices []byte
	Colors   []uint32
}

type Editor struct {
	mu    sync.Mutex
	layer *voxel.Layer
	seq   uint64
	since int

	opts   Options
	logger *log.Logger

	subs    map[int]chan voxel.ChunkKey
	nextSub int
	snapReq chan struct{}

	now func() time.Time
}

// New wraps layer. seq is the edit sequence the layer was loaded at.
func New(layer *voxel.Layer, seq uint64, opts Options) *Editor {
	if layer == nil {
		layer = voxel.NewLayer(0, 0, 0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Editor{
		layer:   layer,
		seq:     seq,
		opts:    opts,
		logger:  logger,
		subs:    map[int]chan voxel.ChunkKey{},
		snapReq: make(chan struct{}, 1),
		now:     time.Now,
	}
}

// SnapshotRequests fires when enough edits accumulated since the last Capture.
// Requests coalesce.
func (e *Editor) SnapshotRequests() <-chan struct{} { return e.snapReq }

func (e *Editor) SetSolid(x, y, z int32, c voxel.Color) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.layer.IsSolid(x, y, z) && e.layer.Color(x, y, z) == c {
		return false
	}
	e.layer.SetSolid(x, y, z, c)
	e.commitLocked(EditEntry{Op: OpSetSolid, Pos: [3]int32{x, y, z}, Color: c.String(), Changed: 1})
	e.publishLocked(voxel.KeyOf(x, y, z))
	return true
}

func (e *Editor) SetAir(x, y, z int32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.layer.IsSolid(x, y, z) {
		return false
	}
	e.layer.SetAir(x, y, z)
	e.commitLocked(EditEntry{Op: OpSetAir, Pos: [3]int32{x, y, z}, Changed: 1})
	e.publishLocked(voxel.KeyOf(x, y, z))
	return true
}

func (e *Editor) Fill(b voxel.Box, c voxel.Color) (int, error) {
	if err := e.checkBox(b); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.layer.Fill(b, c)
	if n > 0 {
		hi := b.Max
		e.commitLocked(EditEntry{Op: OpFill, Pos: b.Min, Max: &hi, Color: c.String(), Changed: n})
		e.publishBoxLocked(b)
	}
	return n, nil
}

func (e *Editor) Clear(b voxel.Box) (int, error) {
	if err := e.checkBox(b); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.layer.Clear(b)
	if n > 0 {
		hi := b.Max
		e.commitLocked(EditEntry{Op: OpClear, Pos: b.Min, Max: &hi, Changed: n})
		e.publishBoxLocked(b)
	}
	return n, nil
}

func (e *Editor) checkBox(b voxel.Box) error {
	if e.opts.MaxBoxVolume > 0 && b.Volume() > e.opts.MaxBoxVolume {
		return fmt.Errorf("%w: %s has %d voxels, max %d", ErrBoxTooLarge, b, b.Volume(), e.opts.MaxBoxVolume)
	}
	return nil
}

func (e *Editor) IsSolid(x, y, z int32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layer.IsSolid(x, y, z)
}

// Color reports the color of a solid voxel; ok is false for air.
func (e *Editor) Color(x, y, z int32) (c voxel.Color, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.layer.IsSolid(x, y, z) {
		return voxel.Color{}, false
	}
	return e.layer.Color(x, y, z), true
}

func (e *Editor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Name:   e.layer.Name(),
		Chunks: e.layer.ChunkCount(),
		Solids: e.layer.Solids(),
		Seq:    e.seq,
		Digest: e.layer.Digest(),
	}
}

func (e *Editor) Meta() Meta {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metaLocked()
}

func (e *Editor) metaLocked() Meta {
	return Meta{
		Name:   e.layer.Name(),
		Origin: e.layer.Origin,
		Extent: e.layer.Extent,
		Blend:  e.layer.Blend,
	}
}

// SetMeta replaces the layer header fields. Voxels are untouched. Setting the
// current values is a no-op and is not journaled.
func (e *Editor) SetMeta(m Meta) error {
	if !m.Blend.Valid() {
		return fmt.Errorf("blend mode %d out of range", m.Blend)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.metaLocked() == m {
		return nil
	}
	if err := e.layer.SetName(m.Name); err != nil {
		return err
	}
	e.layer.Origin = m.Origin
	e.layer.Extent = m.Extent
	e.layer.Blend = m.Blend
	e.commitLocked(EditEntry{Op: OpMeta, Pos: m.Origin, Meta: &m})
	return nil
}

// Capture encodes the layer and resets the auto-snapshot counter.
func (e *Editor) Capture() (Capture, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.layer.MarshalBinary()
	if err != nil {
		return Capture{}, err
	}
	e.since = 0
	return Capture{
		Seq:    e.seq,
		Name:   e.layer.Name(),
		Chunks: e.layer.ChunkCount(),
		Solids: e.layer.Solids(),
		Digest: e.layer.Digest(),
		Data:   b,
	}, nil
}

// ChunkViews returns up to limit chunks in key order. limit <= 0 means all.
func (e *Editor) ChunkViews(limit int) []ChunkView {
	views, _ := e.SelectChunkViews(nil, limit)
	return views
}

// SelectChunkViews copies, in key order, the chunks keep accepts (all when
// keep is nil), stopping after limit of them. more reports whether accepted
// chunks were left out. Rejected chunks are never copied or rebuilt.
func (e *Editor) SelectChunkViews(keep func(voxel.ChunkKey) bool, limit int) (views []ChunkView, more bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, k := range e.layer.Keys() {
		if keep != nil && !keep(k) {
			continue
		}
		if limit > 0 && len(views) >= limit {
			return views, true
		}
		views = append(views, viewOf(e.layer.Chunk(k)))
	}
	return views, false
}

// ChunkView returns the chunk at k, or false if it is not resident.
func (e *Editor) ChunkView(k voxel.ChunkKey) (ChunkView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.layer.Chunk(k)
	if c == nil {
		return ChunkView{}, false
	}
	return viewOf(c), true
}

func viewOf(c *voxel.Chunk) ChunkView {
	v := c.Vertices()
	colors := c.VertexColors()
	packed := make([]uint32, len(colors))
	for i, col := range colors {
		packed[i] = col.Packed()
	}
	return ChunkView{
		Key:      c.Key(),
		Vertices: append([]byte(nil), v...),
		Colors:   packed,
	}
}

// Subscribe returns a channel of keys of chunks that changed (or vanished).
// Keys are dropped when the channel is full.
func (e *Editor) Subscribe(buf int) (<-chan voxel.ChunkKey, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan voxel.ChunkKey, buf)
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
			close(ch)
		})
	}
}

func (e *Editor) commitLocked(entry EditEntry) {
	e.seq++
	entry.Seq = e.seq
	entry.Time = e.now().UTC().Format(time.RFC3339Nano)
	for _, s := range e.opts.Sinks {
		if err := s.WriteEdit(entry); err != nil {
			e.logger.Printf("journal edit %d: %v", entry.Seq, err)
		}
	}
	e.since++
	if e.opts.SnapshotEveryEdits > 0 && e.since >= e.opts.SnapshotEveryEdits {
		select {
		case e.snapReq <- struct{}{}:
		default:
		}
	}
}

func (e *Editor) publishLocked(k voxel.ChunkKey) {
	for _, ch := range e.subs {
		select {
		case ch <- k:
		default:
		}
	}
}

func (e *Editor) publishBoxLocked(b voxel.Box) {
	if len(e.subs) == 0 {
		return
	}
	lo := voxel.KeyOf(b.Min[0], b.Min[1], b.Min[2])
	hi := voxel.KeyOf(b.Max[0], b.Max[1], b.Max[2])
	for z := int64(lo.Z); z <= int64(hi.Z); z++ {
		for y := int64(lo.Y); y <= int64(hi.Y); y++ {
			for x := int64(lo.X); x <= int64(hi.X); x++ {
				e.publishLocked(voxel.ChunkKey{X: int32(x), Y: int32(y), Z: int32(z)})
			}
		}
	}
}
