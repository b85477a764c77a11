package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	persistlog "voxlayer.ai/internal/persistence/log"
	"voxlayer.ai/internal/persistence/snapshot"
	"voxlayer.ai/internal/sim/tuning"
	"voxlayer.ai/internal/sim/voxel"
)

type replayPlan struct {
	LayerDir string
	LayerID  string
	// Snapshot to start from. Empty starts from a fresh layer built from Tune
	// at seq 0.
	Snapshot string
	Tune     tuning.Tuning
	// ToSeq bounds the replay; zero replays the whole journal.
	ToSeq uint64
	Out   string
	Level zstd.EncoderLevel
}

type replayReport struct {
	From    uint64
	Result  persistlog.ReplayResult
	Header  snapshot.Header
	Out     string
	Partial error
}

// pickBase returns the newest snapshot at or before toSeq (any when toSeq is
// zero), or "" when none qualifies.
func pickBase(dir string, toSeq uint64) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestSeq uint64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapshot.ExtZstd) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		hdr, err := snapshot.ReadHeader(path)
		if err != nil {
			continue
		}
		if toSeq > 0 && hdr.Seq > toSeq {
			continue
		}
		if best == "" || hdr.Seq > bestSeq {
			best, bestSeq = path, hdr.Seq
		}
	}
	return best
}

func runReplay(p replayPlan) (replayReport, error) {
	var rep replayReport
	var l *voxel.Layer
	if p.Snapshot != "" {
		hdr, loaded, err := snapshot.Read(p.Snapshot)
		if err != nil {
			return rep, err
		}
		if formatOf(p.Snapshot) == "raw" {
			return rep, fmt.Errorf("%s: raw layers carry no seq; replay needs a %s snapshot", p.Snapshot, snapshot.ExtZstd)
		}
		if p.ToSeq > 0 && hdr.Seq > p.ToSeq {
			return rep, fmt.Errorf("snapshot seq %d is past -to_seq %d", hdr.Seq, p.ToSeq)
		}
		l, rep.From = loaded, hdr.Seq
	} else {
		fresh, err := p.Tune.NewLayer()
		if err != nil {
			return rep, err
		}
		l = fresh
	}

	res, err := persistlog.Replay(p.LayerDir, l, rep.From, p.ToSeq)
	rep.Result = res
	if err != nil {
		if res.Applied == 0 && res.Files == 0 {
			return rep, err
		}
		rep.Partial = err
	}

	out := p.Out
	if out == "" {
		out = filepath.Join(p.LayerDir, "snapshots", fmt.Sprintf("%d.replay%s", res.LastSeq, snapshot.ExtZstd))
	}
	hdr, err := snapshot.WriteLayer(out, p.LayerID, res.LastSeq, l, p.Level)
	if err != nil {
		return rep, err
	}
	rep.Header, rep.Out = hdr, out
	return rep, nil
}

func replayCmd(args []string) {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	layerID := fs.String("layer", "", "layer id")
	snapPath := fs.String("snapshot", "", "snapshot to start from (optional; defaults to newest at or before -to_seq)")
	tuningPath := fs.String("tuning", "", "tuning.yaml used when no snapshot qualifies (optional)")
	toSeq := fs.Uint64("to_seq", 0, "stop after this edit seq (inclusive, optional; defaults to end of journal)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	lvl := levelFlag(fs)
	_ = fs.Parse(args)

	if strings.TrimSpace(*layerID) == "" {
		fmt.Fprintln(os.Stderr, "missing -layer")
		os.Exit(2)
	}
	layerDir := layerDirFor(*dataDir, *layerID)
	tune, err := tuning.Load(strings.TrimSpace(*tuningPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}

	base := strings.TrimSpace(*snapPath)
	if base == "" {
		base = pickBase(filepath.Join(layerDir, "snapshots"), *toSeq)
	}

	rep, err := runReplay(replayPlan{
		LayerDir: layerDir,
		LayerID:  *layerID,
		Snapshot: base,
		Tune:     tune,
		ToSeq:    *toSeq,
		Out:      strings.TrimSpace(*outPath),
		Level:    mustLevel(*lvl),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	if rep.Partial != nil {
		fmt.Fprintln(os.Stderr, "warning: journal read stopped early:", rep.Partial)
	}
	from := "fresh"
	if base != "" {
		from = filepath.Base(base)
	}
	fmt.Printf("replay ok: from=%s seq=%d..%d files=%d applied=%d skipped=%d chunks=%d out=%s\n",
		from, rep.From, rep.Result.LastSeq, rep.Result.Files, rep.Result.Applied, rep.Result.Skipped, rep.Header.Chunks, rep.Out)
}
