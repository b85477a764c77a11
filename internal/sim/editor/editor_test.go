package editor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"voxlayer.ai/internal/sim/voxel"
)

type memSink struct {
	mu      sync.Mutex
	entries []EditEntry
	err     error
}

func (s *memSink) WriteEdit(e EditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return s.err
}

func newTestEditor(opts Options) *Editor {
	e := New(voxel.NewLayer(0, 0, 0), 0, opts)
	e.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return e
}

func TestEditor_JournalsOnlyChanges(t *testing.T) {
	sink := &memSink{}
	e := newTestEditor(Options{Sinks: []EditSink{sink}})
	red := voxel.Color{R: 255}

	if !e.SetSolid(1, 2, 3, red) {
		t.Fatalf("first SetSolid reported no change")
	}
	if e.SetSolid(1, 2, 3, red) {
		t.Fatalf("repeat SetSolid reported a change")
	}
	if e.SetAir(9, 9, 9) {
		t.Fatalf("SetAir on air reported a change")
	}
	if !e.SetAir(1, 2, 3) {
		t.Fatalf("SetAir on solid reported no change")
	}
	if len(sink.entries) != 2 {
		t.Fatalf("entries=%d want 2", len(sink.entries))
	}
	if sink.entries[0].Op != OpSetSolid || sink.entries[0].Seq != 1 || sink.entries[0].Color != "#ff0000" {
		t.Fatalf("entry0=%+v", sink.entries[0])
	}
	if sink.entries[1].Op != OpSetAir || sink.entries[1].Seq != 2 {
		t.Fatalf("entry1=%+v", sink.entries[1])
	}
	if sink.entries[0].Time != "2026-01-02T03:04:05Z" {
		t.Fatalf("time=%q", sink.entries[0].Time)
	}
	if st := e.Stats(); st.Seq != 2 || st.Chunks != 0 || st.Solids != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestEditor_SinkErrorDoesNotRejectEdit(t *testing.T) {
	sink := &memSink{err: errors.New("disk full")}
	e := newTestEditor(Options{Sinks: []EditSink{sink}})
	if !e.SetSolid(0, 0, 0, voxel.Color{G: 1}) {
		t.Fatalf("edit rejected")
	}
	if !e.IsSolid(0, 0, 0) {
		t.Fatalf("voxel not set")
	}
}

func TestEditor_ColorOnAir(t *testing.T) {
	e := newTestEditor(Options{})
	if _, ok := e.Color(5, 5, 5); ok {
		t.Fatalf("air reported a color")
	}
	e.SetSolid(5, 5, 5, voxel.Color{B: 7})
	if c, ok := e.Color(5, 5, 5); !ok || c != (voxel.Color{B: 7}) {
		t.Fatalf("color=%v ok=%v", c, ok)
	}
}

func TestEditor_FillClearAndLimit(t *testing.T) {
	sink := &memSink{}
	e := newTestEditor(Options{Sinks: []EditSink{sink}, MaxBoxVolume: 1000})
	b := voxel.NewBox([3]int32{-8, 0, 0}, [3]int32{7, 1, 1})
	n, err := e.Fill(b, voxel.Color{R: 1})
	if err != nil || n != 64 {
		t.Fatalf("Fill n=%d err=%v", n, err)
	}
	if st := e.Stats(); st.Chunks != 2 || st.Solids != 64 {
		t.Fatalf("stats=%+v", st)
	}
	if n, _ := e.Fill(b, voxel.Color{R: 1}); n != 0 {
		t.Fatalf("refill changed %d", n)
	}
	if n, err := e.Clear(b); err != nil || n != 64 {
		t.Fatalf("Clear n=%d err=%v", n, err)
	}
	if st := e.Stats(); st.Chunks != 0 {
		t.Fatalf("chunks after clear=%d", st.Chunks)
	}
	if len(sink.entries) != 2 || sink.entries[0].Max == nil || *sink.entries[0].Max != b.Max {
		t.Fatalf("entries=%+v", sink.entries)
	}

	big := voxel.NewBox([3]int32{0, 0, 0}, [3]int32{10, 10, 10})
	if _, err := e.Fill(big, voxel.Color{}); !errors.Is(err, ErrBoxTooLarge) {
		t.Fatalf("err=%v want ErrBoxTooLarge", err)
	}
}

func TestEditor_MetaRoundTrip(t *testing.T) {
	e := newTestEditor(Options{})
	m := Meta{Name: "walls", Origin: [3]int32{1, 2, 3}, Extent: [3]uint32{4, 5, 6}, Blend: voxel.KeepAir}
	if err := e.SetMeta(m); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	if got := e.Meta(); got != m {
		t.Fatalf("meta=%+v want %+v", got, m)
	}
	m.Name = "this name is far too long"
	if err := e.SetMeta(m); !errors.Is(err, voxel.ErrNameTooLong) {
		t.Fatalf("err=%v want ErrNameTooLong", err)
	}
	m.Name = "ok"
	m.Blend = 9
	if err := e.SetMeta(m); err == nil {
		t.Fatalf("bad blend accepted")
	}
	if e.Meta().Name != "walls" {
		t.Fatalf("failed SetMeta changed the name")
	}
}

func TestEditor_UnchangedMetaNotJournaled(t *testing.T) {
	sink := &memSink{}
	e := newTestEditor(Options{Sinks: []EditSink{sink}})
	if err := e.SetMeta(e.Meta()); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	if len(sink.entries) != 0 || e.Stats().Seq != 0 {
		t.Fatalf("no-op meta journaled: entries=%d seq=%d", len(sink.entries), e.Stats().Seq)
	}

	m := e.Meta()
	m.Extent = [3]uint32{2, 2, 2}
	if err := e.SetMeta(m); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	if err := e.SetMeta(m); err != nil {
		t.Fatalf("repeat SetMeta: %v", err)
	}
	if len(sink.entries) != 1 || sink.entries[0].Op != OpMeta || e.Stats().Seq != 1 {
		t.Fatalf("entries=%+v seq=%d", sink.entries, e.Stats().Seq)
	}
}

func TestEditor_CaptureDecodes(t *testing.T) {
	e := newTestEditor(Options{})
	e.SetSolid(-1, -1, -1, voxel.Color{R: 3, G: 4, B: 5})
	e.SetSolid(40, 0, 0, voxel.Color{R: 6})
	c, err := e.Capture()
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if c.Seq != 2 || c.Chunks != 2 || c.Solids != 2 || c.Name != voxel.DefaultName {
		t.Fatalf("capture=%+v", c)
	}
	var l voxel.Layer
	if err := l.UnmarshalBinary(c.Data); err != nil {
		t.Fatalf("decode capture: %v", err)
	}
	if l.Color(-1, -1, -1) != (voxel.Color{R: 3, G: 4, B: 5}) {
		t.Fatalf("decoded color wrong")
	}
	if l.Digest() != c.Digest {
		t.Fatalf("digest mismatch")
	}
}

func TestEditor_SnapshotRequests(t *testing.T) {
	e := newTestEditor(Options{SnapshotEveryEdits: 3})
	for i := int32(0); i < 2; i++ {
		e.SetSolid(i, 0, 0, voxel.Color{R: 1})
	}
	select {
	case <-e.SnapshotRequests():
		t.Fatalf("request after 2 edits")
	default:
	}
	e.SetSolid(2, 0, 0, voxel.Color{R: 1})
	select {
	case <-e.SnapshotRequests():
	default:
		t.Fatalf("no request after 3 edits")
	}
	if _, err := e.Capture(); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	e.SetSolid(3, 0, 0, voxel.Color{R: 1})
	select {
	case <-e.SnapshotRequests():
		t.Fatalf("counter not reset by Capture")
	default:
	}
}

func TestEditor_SubscribeSeesChangedChunks(t *testing.T) {
	e := newTestEditor(Options{})
	ch, cancel := e.Subscribe(16)
	defer cancel()

	e.SetSolid(17, 0, 0, voxel.Color{R: 1})
	if k := <-ch; k != (voxel.ChunkKey{X: 1}) {
		t.Fatalf("key=%v", k)
	}
	e.SetSolid(17, 0, 0, voxel.Color{R: 1})
	select {
	case k := <-ch:
		t.Fatalf("no-op edit published %v", k)
	default:
	}

	if _, err := e.Fill(voxel.NewBox([3]int32{-1, 0, 0}, [3]int32{0, 0, 0}), voxel.Color{G: 1}); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	got := map[voxel.ChunkKey]bool{<-ch: true, <-ch: true}
	if !got[voxel.ChunkKey{X: -1}] || !got[voxel.ChunkKey{X: 0}] {
		t.Fatalf("fill published %v", got)
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("channel open after cancel")
	}
	cancel()
	e.SetSolid(100, 0, 0, voxel.Color{R: 1})
}

func TestEditor_SlowSubscriberDrops(t *testing.T) {
	e := newTestEditor(Options{})
	ch, cancel := e.Subscribe(1)
	defer cancel()
	for i := int32(0); i < 5; i++ {
		e.SetSolid(i*16, 0, 0, voxel.Color{R: 1})
	}
	if len(ch) != 1 {
		t.Fatalf("buffered=%d", len(ch))
	}
}

func TestEditor_ChunkViews(t *testing.T) {
	e := newTestEditor(Options{})
	e.SetSolid(1, 0, 0, voxel.Color{R: 0xAA, G: 0xBB, B: 0xCC})
	e.SetSolid(0, 0, 0, voxel.Color{R: 1})
	e.SetSolid(-20, 0, 0, voxel.Color{R: 2})

	views := e.ChunkViews(0)
	if len(views) != 2 || views[0].Key != (voxel.ChunkKey{X: -2}) {
		t.Fatalf("views=%+v", views)
	}
	v := views[1]
	if string(v.Vertices) != string([]byte{0, 0, 0, 1, 0, 0}) {
		t.Fatalf("vertices=%v", v.Vertices)
	}
	if len(v.Colors) != 2 || v.Colors[0] != 0x010000 || v.Colors[1] != 0xAABBCC {
		t.Fatalf("colors=%x", v.Colors)
	}
	if len(e.ChunkViews(1)) != 1 {
		t.Fatalf("limit ignored")
	}

	e.SetAir(0, 0, 0)
	if string(v.Vertices) != string([]byte{0, 0, 0, 1, 0, 0}) {
		t.Fatalf("view aliased the chunk buffer")
	}
	if _, ok := e.ChunkView(voxel.ChunkKey{X: 5}); ok {
		t.Fatalf("view of absent chunk")
	}
}

func TestEditor_SelectChunkViewsCopiesOnlyKept(t *testing.T) {
	e := newTestEditor(Options{})
	for x := int32(0); x < 4; x++ {
		e.SetSolid(x*voxel.Size, 0, 0, voxel.Color{G: uint8(x)})
	}
	odd := func(k voxel.ChunkKey) bool { return k.X%2 == 1 }

	views, more := e.SelectChunkViews(odd, 0)
	if more || len(views) != 2 || views[0].Key.X != 1 || views[1].Key.X != 3 {
		t.Fatalf("views=%+v more=%v", views, more)
	}
	for _, x := range []int32{0, 2} {
		if !e.layer.Chunk(voxel.ChunkKey{X: x}).RenderDirty() {
			t.Fatalf("rejected chunk %d was rebuilt", x)
		}
	}

	views, more = e.SelectChunkViews(odd, 1)
	if !more || len(views) != 1 || views[0].Key.X != 1 {
		t.Fatalf("limited views=%+v more=%v", views, more)
	}
	if views, more = e.SelectChunkViews(odd, 2); more || len(views) != 2 {
		t.Fatalf("exact limit: len=%d more=%v", len(views), more)
	}
}
