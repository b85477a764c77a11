package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"

	"voxlayer.ai/internal/persistence/snapshot"
	"voxlayer.ai/internal/sim/tuning"
	"voxlayer.ai/internal/sim/voxel"
)

type layerInfo struct {
	Path      string          `json:"path"`
	Format    string          `json:"format"`
	Bytes     int64           `json:"bytes"`
	Size      string          `json:"size"`
	Header    snapshot.Header `json:"header"`
	Origin    [3]int32        `json:"origin"`
	Extent    [3]uint32       `json:"extent"`
	Blend     string          `json:"blend"`
	Selection string          `json:"selection,omitempty"`
}

func formatOf(path string) string {
	if strings.HasSuffix(path, snapshot.ExtZstd) {
		return "zstd"
	}
	return "raw"
}

func describe(path string) (layerInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return layerInfo{}, err
	}
	hdr, l, err := snapshot.Read(path)
	if err != nil {
		return layerInfo{}, err
	}
	info := layerInfo{
		Path:   path,
		Format: formatOf(path),
		Bytes:  fi.Size(),
		Size:   humanize.Bytes(uint64(fi.Size())),
		Header: hdr,
		Origin: l.Origin,
		Extent: l.Extent,
		Blend:  l.Blend.String(),
	}
	if b, ok := l.Selection(); ok {
		info.Selection = b.String()
	}
	return info, nil
}

// saveLayer writes l to path, keeping the layer id and seq of the file it
// came from.
func saveLayer(path string, from snapshot.Header, l *voxel.Layer, level zstd.EncoderLevel) (snapshot.Header, error) {
	return snapshot.WriteLayer(path, from.LayerID, from.Seq, l, level)
}

func createLayer(path, layerID string, tune tuning.Tuning, level zstd.EncoderLevel) (snapshot.Header, error) {
	if _, err := os.Stat(path); err == nil {
		return snapshot.Header{}, fmt.Errorf("%s already exists", path)
	}
	l, err := tune.NewLayer()
	if err != nil {
		return snapshot.Header{}, err
	}
	return snapshot.WriteLayer(path, layerID, 0, l, level)
}

// editFile applies one offline edit. Offline edits are not journaled, so a
// server replaying its journal over the result may overwrite them.
func editFile(op, in, out string, box voxel.Box, color voxel.Color, level zstd.EncoderLevel) (int, snapshot.Header, error) {
	hdr, l, err := snapshot.Read(in)
	if err != nil {
		return 0, snapshot.Header{}, err
	}
	var n int
	switch op {
	case "fill":
		n = l.Fill(box, color)
	case "clear":
		n = l.Clear(box)
	case "set":
		x, y, z := box.Min[0], box.Min[1], box.Min[2]
		if !l.IsSolid(x, y, z) || l.Color(x, y, z) != color {
			l.SetSolid(x, y, z, color)
			n = 1
		}
	case "unset":
		x, y, z := box.Min[0], box.Min[1], box.Min[2]
		if l.IsSolid(x, y, z) {
			l.SetAir(x, y, z)
			n = 1
		}
	default:
		return 0, snapshot.Header{}, fmt.Errorf("unknown edit %q", op)
	}
	if out == "" {
		out = in
	}
	next, err := saveLayer(out, hdr, l, level)
	return n, next, err
}

func convertFile(in, out, layerID string, level zstd.EncoderLevel) (snapshot.Header, error) {
	if formatOf(in) == formatOf(out) {
		return snapshot.Header{}, fmt.Errorf("%s and %s have the same format", in, out)
	}
	hdr, l, err := snapshot.Read(in)
	if err != nil {
		return snapshot.Header{}, err
	}
	if hdr.LayerID == "" {
		hdr.LayerID = layerID
	}
	return saveLayer(out, hdr, l, level)
}

var errNotCanonical = errors.New("layer stream is not canonical")

// verifyFile decodes path (checking the stored digest) and confirms the
// layer re-encodes to the same bytes after a second decode.
func verifyFile(path string) (snapshot.Header, error) {
	hdr, l, err := snapshot.Read(path)
	if err != nil {
		return hdr, err
	}
	first, err := l.MarshalBinary()
	if err != nil {
		return hdr, err
	}
	if formatOf(path) == "raw" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return hdr, err
		}
		if !bytes.Equal(raw, first) {
			return hdr, fmt.Errorf("%w: file has %d bytes, re-encode has %d", errNotCanonical, len(raw), len(first))
		}
	}
	again := &voxel.Layer{}
	if err := again.UnmarshalBinary(first); err != nil {
		return hdr, err
	}
	second, err := again.MarshalBinary()
	if err != nil {
		return hdr, err
	}
	if !bytes.Equal(first, second) || again.Digest() != l.Digest() {
		return hdr, errNotCanonical
	}
	return hdr, nil
}

func levelFlag(fs *flag.FlagSet) *string {
	return fs.String("zstd_level", "", "zstd level for .layer.zst output (fastest|default|better|best)")
}

func mustLevel(name string) zstd.EncoderLevel {
	level, err := snapshot.ParseLevel(name)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -zstd_level:", err)
		os.Exit(2)
	}
	return level
}

func infoCmd(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: admin info FILE...")
		os.Exit(2)
	}
	failed := false
	for _, path := range fs.Args() {
		info, err := describe(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, path+":", err)
			failed = true
			continue
		}
		printJSON(info)
	}
	if failed {
		os.Exit(1)
	}
}

func newCmd(args []string) {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	out := fs.String("out", "", "output path (.layer or .layer.zst)")
	tuningPath := fs.String("tuning", "", "tuning.yaml for layer defaults (optional)")
	layerID := fs.String("layer", "", "layer id recorded in .layer.zst headers (default: tuning layer_id)")
	name := fs.String("name", "", "layer name (max 16 bytes)")
	blend := fs.String("blend", "", "blend mode (KEEP_NONE|KEEP_AIR|KEEP_SPECIAL|SUBTRACT_SOLID)")
	origin := fs.String("origin", "", "origin x,y,z")
	lvl := levelFlag(fs)
	_ = fs.Parse(args)

	if strings.TrimSpace(*out) == "" {
		fmt.Fprintln(os.Stderr, "missing -out")
		os.Exit(2)
	}
	tune, err := tuning.Load(strings.TrimSpace(*tuningPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	if *name != "" {
		tune.Layer.Name = *name
	}
	if *blend != "" {
		tune.Layer.Blend = *blend
	}
	if *origin != "" {
		v, err := parseVec3(*origin)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -origin:", err)
			os.Exit(2)
		}
		tune.Layer.Origin = v
	}
	if *layerID != "" {
		tune.LayerID = *layerID
	}
	if err := tune.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid layer:", err)
		os.Exit(2)
	}

	hdr, err := createLayer(*out, tune.LayerID, tune, mustLevel(*lvl))
	if err != nil {
		fmt.Fprintln(os.Stderr, "new:", err)
		os.Exit(1)
	}
	fmt.Printf("created %s name=%q layer=%s\n", *out, hdr.Name, hdr.LayerID)
}

func editCmd(op string, args []string) {
	fs := flag.NewFlagSet(op, flag.ExitOnError)
	in := fs.String("in", "", "layer file to edit")
	out := fs.String("out", "", "output path (default: overwrite -in)")
	boxFlag := fs.String("box", "", "box x1,y1,z1:x2,y2,z2 (fill, clear)")
	posFlag := fs.String("pos", "", "voxel x,y,z (set, unset)")
	colorFlag := fs.String("color", "#ffffff", "color #rrggbb (fill, set)")
	lvl := levelFlag(fs)
	_ = fs.Parse(args)

	if strings.TrimSpace(*in) == "" {
		fmt.Fprintln(os.Stderr, "missing -in")
		os.Exit(2)
	}
	var box voxel.Box
	var err error
	switch op {
	case "fill", "clear":
		box, err = parseBox(*boxFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -box:", err)
			os.Exit(2)
		}
	default:
		p, perr := parseVec3(*posFlag)
		if perr != nil {
			fmt.Fprintln(os.Stderr, "bad -pos:", perr)
			os.Exit(2)
		}
		box = voxel.NewBox(p, p)
	}
	color, err := voxel.ParseColor(*colorFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -color:", err)
		os.Exit(2)
	}

	n, hdr, err := editFile(op, *in, *out, box, color, mustLevel(*lvl))
	if err != nil {
		fmt.Fprintln(os.Stderr, op+":", err)
		os.Exit(1)
	}
	fmt.Printf("%s ok: box=%s changed=%s chunks=%d solids=%s\n",
		op, box, humanize.Comma(int64(n)), hdr.Chunks, humanize.Comma(int64(hdr.Solids)))
}

func convertCmd(args []string) {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	layerID := fs.String("layer", "", "layer id for headers when converting from .layer")
	lvl := levelFlag(fs)
	_ = fs.Parse(args)
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: admin convert [-layer ID] IN OUT")
		os.Exit(2)
	}
	in, out := fs.Arg(0), fs.Arg(1)
	hdr, err := convertFile(in, out, *layerID, mustLevel(*lvl))
	if err != nil {
		fmt.Fprintln(os.Stderr, "convert:", err)
		os.Exit(1)
	}
	var size string
	if fi, err := os.Stat(out); err == nil {
		size = humanize.Bytes(uint64(fi.Size()))
	}
	fmt.Printf("converted %s -> %s (%s) digest=%s\n", in, out, size, hdr.Digest)
}

func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: admin verify FILE...")
		os.Exit(2)
	}
	failed := false
	for _, path := range fs.Args() {
		hdr, err := verifyFile(path)
		if err != nil {
			fmt.Printf("FAIL %s: %v\n", path, err)
			failed = true
			continue
		}
		fmt.Printf("ok   %s chunks=%d solids=%s digest=%s\n", path, hdr.Chunks, humanize.Comma(int64(hdr.Solids)), hdr.Digest)
	}
	if failed {
		os.Exit(1)
	}
}
