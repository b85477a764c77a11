package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"voxlayer.ai/internal/sim/voxel"
)

type Tuning struct {
	LayerID string `yaml:"layer_id"`

	// Layer is applied only when no snapshot exists yet.
	Layer LayerDefaults `yaml:"layer"`

	SnapshotEveryEdits int    `yaml:"snapshot_every_edits"`
	SnapshotZstdLevel  string `yaml:"snapshot_zstd_level"`
	// ArchiveEverySnapshots copies every Nth snapshot to archives/. Zero disables it.
	ArchiveEverySnapshots int `yaml:"archive_every_snapshots"`

	MaxBoxVolume uint64 `yaml:"max_box_volume"`

	Observer ObserverLimits `yaml:"observer"`
}

type LayerDefaults struct {
	Name   string    `yaml:"name"`
	Origin [3]int32  `yaml:"origin"`
	Extent [3]uint32 `yaml:"extent"`
	Blend  string    `yaml:"blend"`
}

type ObserverLimits struct {
	MaxChunks      int `yaml:"max_chunks"`
	UpdateBuffer   int `yaml:"update_buffer"`
	SendQueue      int `yaml:"send_queue"`
	WriteTimeoutMs int `yaml:"write_timeout_ms"`
}

func Defaults() Tuning {
	return Tuning{
		LayerID: "default",
		Layer: LayerDefaults{
			Name:  voxel.DefaultName,
			Blend: voxel.KeepNone.String(),
		},
		SnapshotEveryEdits:    5000,
		SnapshotZstdLevel:     "default",
		ArchiveEverySnapshots: 0,
		MaxBoxVolume:          1 << 24,
		Observer: ObserverLimits{
			MaxChunks:      4096,
			UpdateBuffer:   1024,
			SendQueue:      64,
			WriteTimeoutMs: 2000,
		},
	}
}

// Load reads path over Defaults. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	d := Defaults()
	t.LayerID = strings.TrimSpace(t.LayerID)
	if t.LayerID == "" {
		t.LayerID = d.LayerID
	}
	if strings.TrimSpace(t.Layer.Blend) == "" {
		t.Layer.Blend = d.Layer.Blend
	}
	if t.SnapshotZstdLevel == "" {
		t.SnapshotZstdLevel = d.SnapshotZstdLevel
	}
	if t.Observer.MaxChunks <= 0 {
		t.Observer.MaxChunks = d.Observer.MaxChunks
	}
	if t.Observer.UpdateBuffer <= 0 {
		t.Observer.UpdateBuffer = d.Observer.UpdateBuffer
	}
	if t.Observer.SendQueue <= 0 {
		t.Observer.SendQueue = d.Observer.SendQueue
	}
	if t.Observer.WriteTimeoutMs <= 0 {
		t.Observer.WriteTimeoutMs = d.Observer.WriteTimeoutMs
	}
}

func (t Tuning) Validate() error {
	if strings.ContainsAny(t.LayerID, `/\`) || t.LayerID == "." || t.LayerID == ".." {
		return fmt.Errorf("layer_id %q must be a plain directory name", t.LayerID)
	}
	if len(t.Layer.Name) > voxel.MaxNameLen {
		return fmt.Errorf("layer.name %q longer than %d bytes", t.Layer.Name, voxel.MaxNameLen)
	}
	if _, err := voxel.ParseBlendMode(t.Layer.Blend); err != nil {
		return fmt.Errorf("layer.blend: %w", err)
	}
	if t.SnapshotEveryEdits < 0 {
		return fmt.Errorf("snapshot_every_edits must be >= 0")
	}
	if t.ArchiveEverySnapshots < 0 {
		return fmt.Errorf("archive_every_snapshots must be >= 0")
	}
	switch strings.ToLower(t.SnapshotZstdLevel) {
	case "fastest", "default", "better", "best":
	default:
		return fmt.Errorf("snapshot_zstd_level %q must be fastest, default, better or best", t.SnapshotZstdLevel)
	}
	return nil
}

// NewLayer builds the empty layer described by Layer.
func (t Tuning) NewLayer() (*voxel.Layer, error) {
	l := voxel.NewLayer(t.Layer.Origin[0], t.Layer.Origin[1], t.Layer.Origin[2])
	l.Extent = t.Layer.Extent
	if t.Layer.Name != "" {
		if err := l.SetName(t.Layer.Name); err != nil {
			return nil, err
		}
	}
	b, err := voxel.ParseBlendMode(t.Layer.Blend)
	if err != nil {
		return nil, err
	}
	l.Blend = b
	return l, nil
}
