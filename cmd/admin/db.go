package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"voxlayer.ai/internal/persistence/archive"
	"voxlayer.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	layerID := fs.String("layer", "", "layer id (required unless -db)")
	dbPath := fs.String("db", "", "index path: sqlite file or badger dir (optional)")
	limit := fs.Int("limit", 20, "result limit (snapshots)")
	pos := fs.String("pos", "", "voxel x,y,z (edits)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	var idx indexdb.Reader
	var err error
	switch path := strings.TrimSpace(*dbPath); {
	case path != "":
		fi, serr := os.Stat(path)
		if serr != nil {
			fmt.Fprintln(os.Stderr, "open:", serr)
			os.Exit(1)
		}
		if fi.IsDir() {
			idx, err = indexdb.OpenBadger(path)
		} else {
			idx, err = indexdb.OpenSQLite(path)
		}
	case strings.TrimSpace(*layerID) != "":
		idx, err = indexdb.OpenExisting(layerDirFor(*dataDir, *layerID))
	default:
		fmt.Fprintln(os.Stderr, "missing -layer or -db")
		os.Exit(2)
	}
	if err != nil && q == "archives" && *dbPath == "" {
		// No index: archives are still listable from their meta.json files.
		metas, lerr := archive.List(layerDirFor(*dataDir, *layerID))
		if lerr != nil {
			fmt.Fprintln(os.Stderr, "list:", lerr)
			os.Exit(1)
		}
		for _, m := range metas {
			printJSON(m)
		}
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch q {
	case "snapshots":
		if *limit <= 0 {
			*limit = 20
		}
		rows, err := idx.ListSnapshots(ctx, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "edits":
		p, err := parseVec3(*pos)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -pos:", err)
			os.Exit(2)
		}
		rows, err := idx.EditsAt(ctx, p[0], p[1], p[2])
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "archives":
		rows, err := idx.ListArchives(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-layer LAYER|-db PATH] [-pos x,y,z] snapshots|edits|archives")
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
