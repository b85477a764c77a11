package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	persistlog "voxlayer.ai/internal/persistence/log"
	"voxlayer.ai/internal/persistence/snapshot"
	"voxlayer.ai/internal/sim/editor"
	"voxlayer.ai/internal/sim/tuning"
	"voxlayer.ai/internal/sim/voxel"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		layerFlag  = flag.String("layer", "", "layer id (default: tuning layer_id)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (edits + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to a .layer or .layer.zst to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
		replay     = flag.Bool("replay_journal", true, "redo journaled edits newer than the loaded snapshot")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if id := strings.TrimSpace(*layerFlag); id != "" {
		tune.LayerID = id
		if err := tune.Validate(); err != nil {
			logger.Fatalf("layer id: %v", err)
		}
	}
	level, err := snapshot.ParseLevel(tune.SnapshotZstdLevel)
	if err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	layerDir := filepath.Join(*dataDir, "layers", tune.LayerID)
	_ = os.MkdirAll(layerDir, 0o755)

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad, _ = snapshot.Latest(snapshotDir(layerDir))
	}
	st, err := resumeLayer(layerDir, snapshotToLoad, tune, *replay)
	if err != nil {
		logger.Fatalf("open layer: %v", err)
	}
	layer := st.Layer
	if snapshotToLoad != "" {
		var size string
		if fi, err := os.Stat(snapshotToLoad); err == nil {
			size = humanize.Bytes(uint64(fi.Size()))
		}
		logger.Printf("resumed from snapshot=%s (%s) seq=%d chunks=%d solids=%s",
			filepath.Base(snapshotToLoad), size, st.BaseSeq, layer.ChunkCount(), humanize.Comma(int64(layer.Solids())))
	} else {
		logger.Printf("fresh layer %q", layer.Name())
	}
	if st.ReplayErr != nil {
		logger.Printf("journal replay: %v", st.ReplayErr)
	}
	if st.Replay.Applied > 0 {
		logger.Printf("journal replay: applied=%d files=%d seq %d -> %d", st.Replay.Applied, st.Replay.Files, st.BaseSeq, st.Seq)
	}
	if st.Rebase {
		logger.Printf("raw layer has no seq; continuing at seq=%d", st.Seq)
	}

	// Optional: queryable index (the JSONL journal is the source of truth).
	idx, err := openRuntimeIndex(layerDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	mir, err := buildMirror(*dataDir, logger)
	if err != nil {
		logger.Fatalf("init mirror: %v", err)
	}
	if mir != nil {
		logger.Printf("mirroring snapshots, archives and journals (prefix=%q)", os.Getenv("VL_MIRROR_PREFIX"))
	}

	journal := persistlog.NewEditLogger(layerDir)
	journal.OnClose(mir.Enqueue)
	sinks := []editor.EditSink{journal}
	if idx != nil {
		sinks = append(sinks, idx)
	}

	ed := editor.New(layer, st.Seq, editor.Options{
		SnapshotEveryEdits: tune.SnapshotEveryEdits,
		MaxBoxVolume:       tune.MaxBoxVolume,
		Sinks:              sinks,
		Logger:             logger,
	})

	a := &app{
		layerID:  tune.LayerID,
		layerDir: layerDir,
		tune:     tune,
		level:    level,
		ed:       ed,
		idx:      idx,
		mirror:   mir,
		logger:   logger,
	}
	a.lastSnapSeq, a.haveSnap = st.BaseSeq, st.HaveBase
	if err := a.adoptBase(st); err != nil {
		logger.Fatalf("write base snapshot: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Snapshot writer.
	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ed.SnapshotRequests():
				hdr, path, err := a.writeSnapshot()
				if err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				logger.Printf("snapshot seq=%d chunks=%d -> %s", hdr.Seq, hdr.Chunks, filepath.Base(path))
			}
		}
	}()

	enableAdminHTTP := envBool("VL_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("VL_ENABLE_PPROF_HTTP", false)
	if !enableAdminHTTP {
		logger.Printf("admin endpoints disabled (VL_ENABLE_ADMIN_HTTP=false)")
	}
	mux := a.buildMux(enableAdminHTTP)
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (VL_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("layer %s listening on %s", tune.LayerID, *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	cancel()
	<-snapDone
	if hdr, path, err := a.writeSnapshot(); err != nil {
		logger.Printf("final snapshot: %v", err)
	} else {
		logger.Printf("final snapshot seq=%d -> %s", hdr.Seq, filepath.Base(path))
	}
	if err := journal.Close(); err != nil {
		logger.Printf("journal close: %v", err)
	}
	mir.Close()
}

func snapshotDir(layerDir string) string {
	return filepath.Join(layerDir, "snapshots")
}

// openLayer loads path, or builds a fresh layer from tuning when path is empty.
func openLayer(path string, tune tuning.Tuning) (*voxel.Layer, uint64, error) {
	if path == "" {
		l, err := tune.NewLayer()
		return l, 0, err
	}
	hdr, l, err := snapshot.Read(path)
	if err != nil {
		return nil, 0, err
	}
	if hdr.LayerID != "" && hdr.LayerID != tune.LayerID {
		return nil, 0, fmt.Errorf("snapshot layer id mismatch: want=%s snap=%s", tune.LayerID, hdr.LayerID)
	}
	return l, hdr.Seq, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
