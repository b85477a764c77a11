package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/snapshot"
	req, _ := http.NewRequest(http.MethodPost, u, nil)
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

// remoteEditCmd sends one edit to a running server, which journals it.
func remoteEditCmd(args []string) {
	fs := flag.NewFlagSet("remote-edit", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	op := fs.String("op", "", "SET_SOLID|SET_AIR|FILL|CLEAR")
	boxFlag := fs.String("box", "", "box x1,y1,z1:x2,y2,z2 (FILL, CLEAR)")
	posFlag := fs.String("pos", "", "voxel x,y,z (SET_SOLID, SET_AIR)")
	color := fs.String("color", "#ffffff", "color #rrggbb")
	_ = fs.Parse(args)

	body, err := remoteEditBody(*op, *posFlag, *boxFlag, *color)
	if err != nil {
		fmt.Fprintln(os.Stderr, "remote-edit:", err)
		os.Exit(2)
	}

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/edit"
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Post(u, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func remoteEditBody(op, pos, box, color string) ([]byte, error) {
	req := struct {
		Op    string    `json:"op"`
		Pos   [3]int32  `json:"pos"`
		Max   *[3]int32 `json:"max,omitempty"`
		Color string    `json:"color,omitempty"`
	}{Op: strings.ToUpper(strings.TrimSpace(op))}

	switch req.Op {
	case "SET_SOLID", "SET_AIR":
		p, err := parseVec3(pos)
		if err != nil {
			return nil, fmt.Errorf("bad -pos: %w", err)
		}
		req.Pos = p
	case "FILL", "CLEAR":
		b, err := parseBox(box)
		if err != nil {
			return nil, fmt.Errorf("bad -box: %w", err)
		}
		hi := b.Max
		req.Pos, req.Max = b.Min, &hi
	default:
		return nil, fmt.Errorf("unknown -op %q", op)
	}
	if req.Op == "SET_SOLID" || req.Op == "FILL" {
		req.Color = color
	}
	return json.Marshal(req)
}
