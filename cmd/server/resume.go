package main

import (
	"fmt"
	"strings"

	persistlog "voxlayer.ai/internal/persistence/log"
	"voxlayer.ai/internal/persistence/snapshot"
	"voxlayer.ai/internal/sim/tuning"
	"voxlayer.ai/internal/sim/voxel"
)

// resumeState is what the editor starts from.
type resumeState struct {
	Layer *voxel.Layer
	// Seq is the edit sequence the editor continues from.
	Seq uint64

	// BaseSeq is the seq of the loaded .layer.zst when HaveBase is set.
	BaseSeq  uint64
	HaveBase bool

	// Rebase is set for raw .layer resumes: the layer must be written as
	// <Seq>.layer.zst before edits are accepted.
	Rebase bool

	Replay    persistlog.ReplayResult
	ReplayErr error
}

// resumeLayer opens path (or a fresh layer when empty) and lines it up with
// the journal under layerDir.
//
// A .layer.zst base is brought forward by replaying journaled edits past its
// seq. A raw .layer file has no seq; it replaces the layer content outright
// and continues after the highest seq already used by the journal or any
// snapshot, so new edits never reuse a seq.
func resumeLayer(layerDir, path string, tune tuning.Tuning, replay bool) (resumeState, error) {
	layer, seq, err := openLayer(path, tune)
	if err != nil {
		return resumeState{}, err
	}
	st := resumeState{Layer: layer, Seq: seq}

	if strings.HasSuffix(path, snapshot.ExtRaw) {
		_, snapSeq := snapshot.Latest(snapshotDir(layerDir))
		journalSeq, err := persistlog.LastSeq(layerDir)
		if err != nil && journalSeq == 0 {
			return resumeState{}, fmt.Errorf("raw resume: read journal: %w", err)
		}
		st.Seq = max(snapSeq, journalSeq)
		st.Rebase = true
		return st, nil
	}

	if path != "" {
		st.BaseSeq, st.HaveBase = seq, true
	}
	if replay {
		st.Replay, st.ReplayErr = persistlog.Replay(layerDir, layer, seq, 0)
		st.Seq = st.Replay.LastSeq
	}
	return st, nil
}

// adoptBase writes a raw-resumed layer as <seq>.layer.zst so the next start
// finds it through snapshot.Latest and replays only edits made after it.
func (a *app) adoptBase(st resumeState) error {
	if !st.Rebase {
		return nil
	}
	_, _, err := a.writeSnapshot()
	return err
}
