package indexdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"voxlayer.ai/internal/sim/editor"
)

// Reader is the query side shared by the index backends.
type Reader interface {
	ListSnapshots(ctx context.Context, limit int) ([]SnapshotRow, error)
	EditsAt(ctx context.Context, x, y, z int32) ([]editor.EditEntry, error)
	ListArchives(ctx context.Context) ([]ArchiveRow, error)
	Close() error
}

var (
	_ Reader = (*SQLiteIndex)(nil)
	_ Reader = (*BadgerIndex)(nil)
)

func SQLitePath(layerDir string) string { return filepath.Join(layerDir, "index", "layer.sqlite") }
func BadgerDir(layerDir string) string  { return filepath.Join(layerDir, "index", "badger") }

// OpenExisting opens whichever index a server left under layerDir, preferring
// sqlite when both exist.
func OpenExisting(layerDir string) (Reader, error) {
	if _, err := os.Stat(SQLitePath(layerDir)); err == nil {
		return OpenSQLite(SQLitePath(layerDir))
	}
	if _, err := os.Stat(BadgerDir(layerDir)); err == nil {
		return OpenBadger(BadgerDir(layerDir))
	}
	return nil, fmt.Errorf("no index under %s", filepath.Join(layerDir, "index"))
}
