package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	persistlog "voxlayer.ai/internal/persistence/log"
	"voxlayer.ai/internal/persistence/snapshot"
	"voxlayer.ai/internal/sim/editor"
	"voxlayer.ai/internal/sim/tuning"
	"voxlayer.ai/internal/sim/voxel"
)

func TestParseBox(t *testing.T) {
	b, err := parseBox(" 5,-1,3 : -2,4,3 ")
	if err != nil {
		t.Fatalf("parseBox: %v", err)
	}
	if b.Min != [3]int32{-2, -1, 3} || b.Max != [3]int32{5, 4, 3} {
		t.Fatalf("box=%v", b)
	}
	for _, bad := range []string{"", "1,2,3", "1,2:3,4,5", "1,2,x:1,2,3", "1,2,3:1,2,99999999999"} {
		if _, err := parseBox(bad); err == nil {
			t.Fatalf("parseBox(%q) should fail", bad)
		}
	}
}

func TestCreateEditConvertVerify(t *testing.T) {
	dir := t.TempDir()
	zst := filepath.Join(dir, "a"+snapshot.ExtZstd)
	tune := tuning.Defaults()
	tune.Layer.Name = "walls"
	tune.Layer.Origin = [3]int32{-1, 0, 0}
	tune.Layer.Extent = [3]uint32{18, 2, 2}

	if _, err := createLayer(zst, "alpha", tune, zstd.SpeedFastest); err != nil {
		t.Fatalf("createLayer: %v", err)
	}
	if _, err := createLayer(zst, "alpha", tune, zstd.SpeedFastest); err == nil {
		t.Fatalf("createLayer should refuse to overwrite")
	}

	n, hdr, err := editFile("fill", zst, "", voxel.NewBox([3]int32{-1, 0, 0}, [3]int32{16, 1, 1}), voxel.Color{R: 7}, zstd.SpeedFastest)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if n != 18*2*2 || hdr.LayerID != "alpha" || hdr.Chunks != 3 {
		t.Fatalf("n=%d hdr=%+v", n, hdr)
	}
	n, _, err = editFile("unset", zst, "", voxel.NewBox([3]int32{0, 0, 0}, [3]int32{0, 0, 0}), voxel.Color{}, zstd.SpeedFastest)
	if err != nil || n != 1 {
		t.Fatalf("unset n=%d err=%v", n, err)
	}

	raw := filepath.Join(dir, "a"+snapshot.ExtRaw)
	if _, err := convertFile(zst, raw, "", zstd.SpeedFastest); err != nil {
		t.Fatalf("convert to raw: %v", err)
	}
	if _, err := convertFile(raw, filepath.Join(dir, "b"+snapshot.ExtRaw), "", zstd.SpeedFastest); err == nil {
		t.Fatalf("same-format convert should fail")
	}
	back := filepath.Join(dir, "b"+snapshot.ExtZstd)
	conv, err := convertFile(raw, back, "beta", zstd.SpeedFastest)
	if err != nil {
		t.Fatalf("convert to zstd: %v", err)
	}
	if conv.LayerID != "beta" || conv.Solids != 18*2*2-1 {
		t.Fatalf("conv=%+v", conv)
	}

	for _, p := range []string{zst, raw, back} {
		if _, err := verifyFile(p); err != nil {
			t.Fatalf("verify %s: %v", p, err)
		}
	}
	info, err := describe(raw)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if info.Format != "raw" || info.Header.Name != "walls" || info.Selection != "-1,0,0:16,1,1" {
		t.Fatalf("info=%+v", info)
	}
}

func TestVerifyFile_RejectsNonCanonicalRaw(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "x"+snapshot.ExtRaw)
	l := voxel.NewLayer(0, 0, 0)
	l.SetSolid(1, 2, 3, voxel.Color{B: 1})
	b, err := l.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	// Trailing bytes decode fine but do not survive a re-encode.
	if err := os.WriteFile(raw, append(b, 0, 0), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := verifyFile(raw); !errors.Is(err, errNotCanonical) {
		t.Fatalf("verify err=%v want errNotCanonical", err)
	}
}

func TestRunReplay_PointInTime(t *testing.T) {
	layerDir := t.TempDir()
	journal := persistlog.NewEditLogger(layerDir)
	ed := editor.New(nil, 0, editor.Options{Sinks: []editor.EditSink{journal}})
	ed.SetSolid(1, 1, 1, voxel.Color{R: 1})
	ed.SetSolid(2, 2, 2, voxel.Color{G: 1})
	mid := ed.Stats()
	ed.SetAir(1, 1, 1)
	if err := journal.Close(); err != nil {
		t.Fatalf("journal close: %v", err)
	}

	rep, err := runReplay(replayPlan{
		LayerDir: layerDir,
		LayerID:  "alpha",
		Tune:     tuning.Defaults(),
		ToSeq:    mid.Seq,
		Level:    zstd.SpeedFastest,
	})
	if err != nil {
		t.Fatalf("runReplay: %v", err)
	}
	if rep.Result.Applied != 2 || rep.Header.Seq != 2 {
		t.Fatalf("rep=%+v", rep)
	}
	hdr, l, err := snapshot.Read(rep.Out)
	if err != nil {
		t.Fatalf("read replay output: %v", err)
	}
	if hdr.Digest != mid.Digest || !l.IsSolid(1, 1, 1) {
		t.Fatalf("replayed to seq 2 digest=%s want %s", hdr.Digest, mid.Digest)
	}

	// A later base snapshot is chosen for a full replay.
	if got := pickBase(filepath.Join(layerDir, "snapshots"), 0); got != rep.Out {
		t.Fatalf("pickBase=%q want %q", got, rep.Out)
	}
	if got := pickBase(filepath.Join(layerDir, "snapshots"), 1); got != "" {
		t.Fatalf("pickBase past seq 1 = %q", got)
	}

	full, err := runReplay(replayPlan{
		LayerDir: layerDir,
		LayerID:  "alpha",
		Snapshot: rep.Out,
		Out:      filepath.Join(layerDir, "full"+snapshot.ExtZstd),
		Level:    zstd.SpeedFastest,
	})
	if err != nil {
		t.Fatalf("runReplay full: %v", err)
	}
	if full.From != 2 || full.Result.Applied != 1 || full.Header.Digest != ed.Stats().Digest {
		t.Fatalf("full=%+v", full)
	}
}

func TestRemoteEditBody(t *testing.T) {
	b, err := remoteEditBody("fill", "", "3,3,3:0,0,0", "#102030")
	if err != nil {
		t.Fatalf("remoteEditBody: %v", err)
	}
	var got struct {
		Op    string    `json:"op"`
		Pos   [3]int32  `json:"pos"`
		Max   *[3]int32 `json:"max"`
		Color string    `json:"color"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Op != "FILL" || got.Pos != [3]int32{0, 0, 0} || got.Max == nil || *got.Max != [3]int32{3, 3, 3} || got.Color != "#102030" {
		t.Fatalf("got=%+v", got)
	}

	b, err = remoteEditBody("SET_AIR", "1,2,3", "", "#102030")
	if err != nil {
		t.Fatalf("remoteEditBody: %v", err)
	}
	got.Color, got.Max = "", nil
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Color != "" || got.Max != nil {
		t.Fatalf("SET_AIR carried extras: %s", b)
	}
	if _, err := remoteEditBody("EXPLODE", "1,2,3", "", ""); err == nil {
		t.Fatalf("unknown op should fail")
	}
}
