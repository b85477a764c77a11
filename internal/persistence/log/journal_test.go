package log

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"voxlayer.ai/internal/sim/editor"
	"voxlayer.ai/internal/sim/voxel"
)

func TestEditLogger_RoundTripAcrossRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewEditLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	for i := uint64(1); i <= 3; i++ {
		if err := l.WriteEdit(editor.EditEntry{Seq: i, Op: editor.OpSetSolid, Pos: [3]int32{int32(i), 0, -1}, Color: "#010203", Changed: 1}); err != nil {
			t.Fatalf("WriteEdit: %v", err)
		}
	}
	clock = clock.Add(2 * time.Minute)
	hi := [3]int32{4, 4, 4}
	if err := l.WriteEdit(editor.EditEntry{Seq: 4, Op: editor.OpClear, Max: &hi, Changed: 9}); err != nil {
		t.Fatalf("WriteEdit: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := JournalFiles(dir)
	if err != nil {
		t.Fatalf("JournalFiles: %v", err)
	}
	want := []string{
		filepath.Join(dir, "edits", "edits-2026-03-01-10.jsonl.zst"),
		filepath.Join(dir, "edits", "edits-2026-03-01-11.jsonl.zst"),
	}
	if len(files) != 2 || files[0] != want[0] || files[1] != want[1] {
		t.Fatalf("files=%v", files)
	}

	first, err := ReadEdits(files[0])
	if err != nil {
		t.Fatalf("ReadEdits: %v", err)
	}
	if len(first) != 3 || first[2].Seq != 3 || first[2].Pos != [3]int32{3, 0, -1} {
		t.Fatalf("first=%+v", first)
	}
	second, err := ReadEdits(files[1])
	if err != nil {
		t.Fatalf("ReadEdits: %v", err)
	}
	if len(second) != 1 || second[0].Op != editor.OpClear || second[0].Max == nil || *second[0].Max != hi {
		t.Fatalf("second=%+v", second)
	}
}

func TestEditLogger_ReopenSameHourAppends(t *testing.T) {
	dir := t.TempDir()
	clock := func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	for i := uint64(1); i <= 2; i++ {
		l := NewEditLogger(dir)
		l.w.now = clock
		if err := l.WriteEdit(editor.EditEntry{Seq: i, Op: editor.OpSetAir}); err != nil {
			t.Fatalf("WriteEdit: %v", err)
		}
		if err := l.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	files, _ := JournalFiles(dir)
	if len(files) != 1 {
		t.Fatalf("files=%v", files)
	}
	got, err := ReadEdits(files[0])
	if err != nil {
		t.Fatalf("ReadEdits: %v", err)
	}
	if len(got) != 2 || got[0].Seq != 1 || got[1].Seq != 2 {
		t.Fatalf("got=%+v", got)
	}
}

func TestReadEdits_Missing(t *testing.T) {
	if _, err := ReadEdits(filepath.Join(t.TempDir(), "nope.jsonl.zst")); !os.IsNotExist(err) {
		t.Fatalf("err=%v", err)
	}
}

func TestReplay_AppliesEntriesAfterSeq(t *testing.T) {
	dir := t.TempDir()
	l := NewEditLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	hi := [3]int32{1, 1, 1}
	entries := []editor.EditEntry{
		{Seq: 1, Op: editor.OpSetSolid, Pos: [3]int32{100, 0, 0}, Color: "#ff0000", Changed: 1},
		{Seq: 2, Op: editor.OpFill, Pos: [3]int32{0, 0, 0}, Max: &hi, Color: "#00ff00", Changed: 8},
		{Seq: 3, Op: editor.OpSetAir, Pos: [3]int32{0, 0, 0}, Changed: 1},
		{Seq: 4, Op: editor.OpSetSolid, Pos: [3]int32{-1, -1, -1}, Color: "#0000ff", Changed: 1},
	}
	for i, e := range entries {
		if i == 2 {
			clock = clock.Add(time.Hour)
		}
		if err := l.WriteEdit(e); err != nil {
			t.Fatalf("WriteEdit: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	layer := voxel.NewLayer(0, 0, 0)
	res, err := Replay(dir, layer, 1, 3)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Files != 2 || res.Applied != 2 || res.Skipped != 2 || res.LastSeq != 3 {
		t.Fatalf("res=%+v", res)
	}
	if layer.IsSolid(100, 0, 0) {
		t.Fatalf("seq 1 should have been skipped")
	}
	if layer.IsSolid(0, 0, 0) || !layer.IsSolid(1, 1, 1) {
		t.Fatalf("fill then set_air not replayed")
	}
	if layer.IsSolid(-1, -1, -1) {
		t.Fatalf("seq 4 is past stop")
	}
}

func TestReplay_NoJournal(t *testing.T) {
	layer := voxel.NewLayer(0, 0, 0)
	res, err := Replay(t.TempDir(), layer, 7, 0)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Files != 0 || res.LastSeq != 7 {
		t.Fatalf("res=%+v", res)
	}
}

func TestEditLogger_OnCloseReportsFinishedFiles(t *testing.T) {
	dir := t.TempDir()
	l := NewEditLogger(dir)
	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }
	var closed []string
	l.OnClose(func(p string) { closed = append(closed, filepath.Base(p)) })

	_ = l.WriteEdit(editor.EditEntry{Seq: 1, Op: editor.OpSetAir})
	clock = clock.Add(time.Hour)
	_ = l.WriteEdit(editor.EditEntry{Seq: 2, Op: editor.OpSetAir})
	if len(closed) != 1 || closed[0] != "edits-2026-03-01-08.jsonl.zst" {
		t.Fatalf("after rotation closed=%v", closed)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(closed) != 2 || closed[1] != "edits-2026-03-01-09.jsonl.zst" {
		t.Fatalf("after close closed=%v", closed)
	}
}

func TestLastSeq(t *testing.T) {
	dir := t.TempDir()
	if seq, err := LastSeq(dir); err != nil || seq != 0 {
		t.Fatalf("empty: seq=%d err=%v", seq, err)
	}

	l := NewEditLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }
	_ = l.WriteEdit(editor.EditEntry{Seq: 4, Op: editor.OpSetAir})
	_ = l.WriteEdit(editor.EditEntry{Seq: 9, Op: editor.OpSetAir})
	clock = clock.Add(time.Hour)
	_ = l.WriteEdit(editor.EditEntry{Seq: 12, Op: editor.OpSetAir})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if seq, err := LastSeq(dir); err != nil || seq != 12 {
		t.Fatalf("seq=%d err=%v want 12", seq, err)
	}
}
