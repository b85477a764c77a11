package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"voxlayer.ai/internal/sim/voxel"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "info":
			infoCmd(os.Args[2:])
			return
		case "new":
			newCmd(os.Args[2:])
			return
		case "fill", "clear", "set", "unset":
			editCmd(os.Args[1], os.Args[2:])
			return
		case "convert":
			convertCmd(os.Args[2:])
			return
		case "verify":
			verifyCmd(os.Args[2:])
			return
		case "replay":
			replayCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "remote-edit":
			remoteEditCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	layerID := fs.String("layer", "", "layer id (optional; lists its snapshots)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "layers")
	if *layerID != "" {
		base = filepath.Join(base, *layerID, "snapshots")
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

func layerDirFor(dataDir, layerID string) string {
	return filepath.Join(dataDir, "layers", layerID)
}

// parseBox reads "x1,y1,z1:x2,y2,z2". Corners may come in any order.
func parseBox(s string) (voxel.Box, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return voxel.Box{}, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return voxel.Box{}, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return voxel.Box{}, err
	}
	return voxel.NewBox(a, b), nil
}

func parseVec3(s string) ([3]int32, error) {
	var v [3]int32
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.ParseInt(strings.TrimSpace(parts[i]), 10, 32)
		if err != nil {
			return v, err
		}
		v[i] = int32(n)
	}
	return v, nil
}
