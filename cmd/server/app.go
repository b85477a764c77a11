package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxlayer.ai/internal/persistence/archive"
	"voxlayer.ai/internal/persistence/mirror"
	"voxlayer.ai/internal/persistence/snapshot"
	"voxlayer.ai/internal/sim/editor"
	"voxlayer.ai/internal/sim/tuning"
	"voxlayer.ai/internal/sim/voxel"
	"voxlayer.ai/internal/transport/observer"
)

// app wires one layer's editor to its snapshot files, index and HTTP surface.
type app struct {
	layerID  string
	layerDir string
	tune     tuning.Tuning
	level    zstd.EncoderLevel
	ed       *editor.Editor
	idx      runtimeIndex
	mirror   *mirror.Mirror
	logger   *log.Logger

	snapMu      sync.Mutex
	lastSnapSeq uint64
	haveSnap    bool

	snapshots     atomic.Uint64
	snapshotFails atomic.Uint64
	lastSnapBytes atomic.Int64
}

func (a *app) snapshotDir() string { return snapshotDir(a.layerDir) }

// writeSnapshot captures the layer and stores it as <seq>.layer.zst. When
// nothing changed since the last snapshot it returns that one without
// writing.
func (a *app) writeSnapshot() (snapshot.Header, string, error) {
	a.snapMu.Lock()
	defer a.snapMu.Unlock()

	c, err := a.ed.Capture()
	if err != nil {
		a.snapshotFails.Add(1)
		return snapshot.Header{}, "", err
	}
	hdr := snapshot.Header{
		Version:   snapshot.Version,
		LayerID:   a.layerID,
		Name:      c.Name,
		Seq:       c.Seq,
		Chunks:    c.Chunks,
		Solids:    c.Solids,
		Digest:    c.Digest,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	path := snapshot.PathFor(a.snapshotDir(), c.Seq)
	if a.haveSnap && c.Seq == a.lastSnapSeq {
		return hdr, path, nil
	}
	if err := snapshot.Write(path, hdr, c.Data, a.level); err != nil {
		a.snapshotFails.Add(1)
		return snapshot.Header{}, "", err
	}
	a.lastSnapSeq = c.Seq
	a.haveSnap = true
	n := a.snapshots.Add(1)

	var size int64
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
		a.lastSnapBytes.Store(size)
	}
	if a.idx != nil {
		a.idx.RecordSnapshot(path, hdr, size)
	}

	a.mirror.Enqueue(path)

	if id, archivedPath, ok, err := archive.ArchiveSnapshot(a.layerDir, path, hdr, n, a.tune.ArchiveEverySnapshots); err != nil {
		a.logger.Printf("archive snapshot: %v", err)
	} else if ok {
		if a.idx != nil {
			a.idx.RecordArchive(id, hdr.Seq, archivedPath)
		}
		a.mirror.Enqueue(archivedPath)
		a.mirror.EnqueueIfExists(filepath.Join(filepath.Dir(archivedPath), "meta.json"))
	}
	return hdr, path, nil
}

func (a *app) handleState(rw http.ResponseWriter, r *http.Request) {
	if !observer.IsLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	resp := struct {
		LayerID   string       `json:"layer_id"`
		Stats     editor.Stats `json:"stats"`
		Meta      editor.Meta  `json:"meta"`
		Snapshots uint64       `json:"snapshots"`
	}{
		LayerID:   a.layerID,
		Stats:     a.ed.Stats(),
		Meta:      a.ed.Meta(),
		Snapshots: a.snapshots.Load(),
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(resp)
}

func (a *app) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !observer.IsLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	hdr, path, err := a.writeSnapshot()
	rw.Header().Set("Content-Type", "application/json")
	if err != nil {
		rw.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
		return
	}
	_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "seq": hdr.Seq, "path": path, "digest": hdr.Digest})
}

type editRequest struct {
	Op    editor.Op    `json:"op"`
	Pos   [3]int32     `json:"pos"`
	Max   *[3]int32    `json:"max,omitempty"`
	Color string       `json:"color,omitempty"`
	Meta  *editor.Meta `json:"meta,omitempty"`
}

type editResponse struct {
	OK      bool   `json:"ok"`
	Changed int    `json:"changed"`
	Seq     uint64 `json:"seq"`
	Error   string `json:"error,omitempty"`
}

var errBadEdit = errors.New("bad edit")

func (a *app) applyEdit(req editRequest) (int, error) {
	box := func() (voxel.Box, error) {
		if req.Max == nil {
			return voxel.Box{}, fmt.Errorf("%w: %s needs max", errBadEdit, req.Op)
		}
		return voxel.NewBox(req.Pos, *req.Max), nil
	}
	color := func() (voxel.Color, error) {
		c, err := voxel.ParseColor(req.Color)
		if err != nil {
			return c, fmt.Errorf("%w: %v", errBadEdit, err)
		}
		return c, nil
	}
	x, y, z := req.Pos[0], req.Pos[1], req.Pos[2]

	switch req.Op {
	case editor.OpSetSolid:
		c, err := color()
		if err != nil {
			return 0, err
		}
		if a.ed.SetSolid(x, y, z, c) {
			return 1, nil
		}
		return 0, nil
	case editor.OpSetAir:
		if a.ed.SetAir(x, y, z) {
			return 1, nil
		}
		return 0, nil
	case editor.OpFill:
		b, err := box()
		if err != nil {
			return 0, err
		}
		c, err := color()
		if err != nil {
			return 0, err
		}
		return a.ed.Fill(b, c)
	case editor.OpClear:
		b, err := box()
		if err != nil {
			return 0, err
		}
		return a.ed.Clear(b)
	case editor.OpMeta:
		if req.Meta == nil {
			return 0, fmt.Errorf("%w: META needs meta", errBadEdit)
		}
		if err := a.ed.SetMeta(*req.Meta); err != nil {
			return 0, fmt.Errorf("%w: %v", errBadEdit, err)
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: unknown op %q", errBadEdit, req.Op)
	}
}

func (a *app) handleEdit(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !observer.IsLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	rw.Header().Set("Content-Type", "application/json")

	var req editRequest
	if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 64*1024)).Decode(&req); err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(rw).Encode(editResponse{Error: err.Error()})
		return
	}
	n, err := a.applyEdit(req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errBadEdit) || errors.Is(err, editor.ErrBoxTooLarge) {
			status = http.StatusBadRequest
		}
		rw.WriteHeader(status)
		_ = json.NewEncoder(rw).Encode(editResponse{Error: err.Error()})
		return
	}
	_ = json.NewEncoder(rw).Encode(editResponse{OK: true, Changed: n, Seq: a.ed.Stats().Seq})
}

func (a *app) handleVoxel(rw http.ResponseWriter, r *http.Request) {
	if !observer.IsLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	var p [3]int32
	for i, name := range []string{"x", "y", "z"} {
		v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 32)
		if err != nil {
			http.Error(rw, fmt.Sprintf("bad %s", name), http.StatusBadRequest)
			return
		}
		p[i] = int32(v)
	}
	resp := struct {
		Pos   [3]int32 `json:"pos"`
		Solid bool     `json:"solid"`
		Color string   `json:"color,omitempty"`
	}{Pos: p}
	if c, ok := a.ed.Color(p[0], p[1], p[2]); ok {
		resp.Solid = true
		resp.Color = c.String()
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(resp)
}

// buildMux registers the HTTP surface. Admin and observer endpoints are
// loopback-only.
func (a *app) buildMux(enableAdmin bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", a.metricsHandler())
	if enableAdmin {
		mux.HandleFunc("/admin/v1/state", a.handleState)
		mux.HandleFunc("/admin/v1/snapshot", a.handleSnapshot)
		mux.HandleFunc("/admin/v1/edit", a.handleEdit)
		mux.HandleFunc("/admin/v1/voxel", a.handleVoxel)

		obsSrv := observer.NewServer(a.ed, a.layerID, a.tune.Observer, a.logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	}
	return mux
}
