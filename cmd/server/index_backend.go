package main

import (
	"fmt"
	"os"
	"strings"

	"voxlayer.ai/internal/persistence/indexdb"
	"voxlayer.ai/internal/persistence/snapshot"
	"voxlayer.ai/internal/sim/editor"
)

type runtimeIndex interface {
	editor.EditSink
	Close() error
	RecordSnapshot(path string, hdr snapshot.Header, size int64)
	RecordArchive(id string, seq uint64, path string)
	Stats() indexdb.Stats
}

func indexPath(layerDir string) string { return indexdb.SQLitePath(layerDir) }

func openRuntimeIndex(layerDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VL_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(indexPath(layerDir))
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "badger":
		idx, err := indexdb.OpenBadger(indexdb.BadgerDir(layerDir))
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown VL_INDEX_BACKEND=%q", backend)
	}
}
