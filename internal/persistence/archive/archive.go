package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"voxlayer.ai/internal/persistence/snapshot"
)

type Meta struct {
	ID        string `json:"id"`
	LayerID   string `json:"layer_id"`
	Name      string `json:"name"`
	Seq       uint64 `json:"seq"`
	Chunks    int    `json:"chunks"`
	Solids    int    `json:"solids"`
	Digest    string `json:"digest"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
}

// ArchiveSnapshot copies every nth snapshot (counted by archiveSeq, starting
// at 1) into `layerDir/archives/<uuid>/` next to a meta.json. It returns the
// archive id and copied path when it archived.
func ArchiveSnapshot(layerDir, snapshotPath string, hdr snapshot.Header, archiveSeq uint64, every int) (id, archivedPath string, archived bool, err error) {
	if every <= 0 || archiveSeq == 0 || archiveSeq%uint64(every) != 0 {
		return "", "", false, nil
	}

	id = uuid.NewString()
	archiveDir := filepath.Join(layerDir, "archives", id)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", "", false, fmt.Errorf("archive %s: %w", snapshotPath, err)
	}

	meta := Meta{
		ID:        id,
		LayerID:   hdr.LayerID,
		Name:      hdr.Name,
		Seq:       hdr.Seq,
		Chunks:    hdr.Chunks,
		Solids:    hdr.Solids,
		Digest:    hdr.Digest,
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := writeMeta(archiveDir, meta); err != nil {
		// An archive without meta.json is invisible to List.
		_ = os.RemoveAll(archiveDir)
		return "", "", false, fmt.Errorf("archive %s: %w", snapshotPath, err)
	}

	return id, dst, true, nil
}

func writeMeta(dir string, m Meta) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
}

// List reads the meta.json of every archive under layerDir.
func List(layerDir string) ([]Meta, error) {
	paths, err := filepath.Glob(filepath.Join(layerDir, "archives", "*", "meta.json"))
	if err != nil {
		return nil, err
	}
	out := make([]Meta, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		var m Meta
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
