package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxlayer.ai/internal/persistence/snapshot"
	"voxlayer.ai/internal/sim/editor"
)

// SQLiteIndex is a queryable secondary index over the edit journal and the
// snapshot files. Writes are queued and applied by one goroutine; when the
// queue is full they are dropped and counted.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEdit     atomic.Uint64
	dropSnapshot atomic.Uint64
	dropArchive  atomic.Uint64
}

type reqKind int

const (
	reqEdit reqKind = iota + 1
	reqSnapshot
	reqArchive
)

type req struct {
	kind reqKind

	edit     editor.EditEntry
	snapshot SnapshotRow
	archive  ArchiveRow
}

type SnapshotRow struct {
	Seq        uint64 `json:"seq"`
	Path       string `json:"path"`
	LayerID    string `json:"layer_id"`
	Name       string `json:"name"`
	Chunks     int    `json:"chunks"`
	Solids     int    `json:"solids"`
	Digest     string `json:"digest"`
	Bytes      int64  `json:"bytes"`
	RecordedAt string `json:"recorded_at"`
}

type ArchiveRow struct {
	ID         string `json:"id"`
	Seq        uint64 `json:"seq"`
	Path       string `json:"path"`
	RecordedAt string `json:"recorded_at"`
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropEditTotal     uint64 `json:"drop_edit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	DropArchiveTotal  uint64 `json:"drop_archive_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS edits (
			seq INTEGER PRIMARY KEY,
			time TEXT NOT NULL,
			op TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			changed INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_pos ON edits(x, z, y, seq);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			seq INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			layer_id TEXT NOT NULL,
			name TEXT NOT NULL,
			chunks INTEGER NOT NULL,
			solids INTEGER NOT NULL,
			digest TEXT NOT NULL,
			bytes INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS archives (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			path TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_archives_seq ON archives(seq);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropEditTotal:     s.dropEdit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropArchiveTotal:  s.dropArchive.Load(),
	}
}

func (s *SQLiteIndex) WriteEdit(entry editor.EditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEdit, edit: entry}:
	default:
		// The JSONL journal stays the source of truth.
		s.dropEdit.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, hdr snapshot.Header, size int64) {
	if s == nil || s.closed.Load() {
		return
	}
	r := SnapshotRow{
		Seq:        hdr.Seq,
		Path:       path,
		LayerID:    hdr.LayerID,
		Name:       hdr.Name,
		Chunks:     hdr.Chunks,
		Solids:     hdr.Solids,
		Digest:     hdr.Digest,
		Bytes:      size,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

func (s *SQLiteIndex) RecordArchive(id string, seq uint64, path string) {
	if s == nil || s.closed.Load() {
		return
	}
	if id == "" || path == "" {
		return
	}
	r := ArchiveRow{
		ID:         id,
		Seq:        seq,
		Path:       path,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqArchive, archive: r}:
	default:
		s.dropArchive.Add(1)
	}
}

// ListSnapshots returns up to limit snapshot rows, newest first.
func (s *SQLiteIndex) ListSnapshots(ctx context.Context, limit int) ([]SnapshotRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq,path,layer_id,name,chunks,solids,digest,bytes,recorded_at FROM snapshots ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		var seq int64
		if err := rows.Scan(&seq, &r.Path, &r.LayerID, &r.Name, &r.Chunks, &r.Solids, &r.Digest, &r.Bytes, &r.RecordedAt); err != nil {
			return nil, err
		}
		r.Seq = uint64(seq)
		out = append(out, r)
	}
	return out, rows.Err()
}

// EditsAt returns the journaled edits whose position is (x,y,z), oldest first.
// Box edits match on their min corner only.
func (s *SQLiteIndex) EditsAt(ctx context.Context, x, y, z int32) ([]editor.EditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT raw_json FROM edits WHERE x=? AND z=? AND y=? ORDER BY seq`, x, z, y)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []editor.EditEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e editor.EditEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) ListArchives(ctx context.Context) ([]ArchiveRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,seq,path,recorded_at FROM archives ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ArchiveRow
	for rows.Next() {
		var r ArchiveRow
		var seq int64
		if err := rows.Scan(&r.ID, &seq, &r.Path, &r.RecordedAt); err != nil {
			return nil, err
		}
		r.Seq = uint64(seq)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared on db; executed within tx.
	insertEdit, _ := s.db.Prepare(`INSERT OR REPLACE INTO edits(seq,time,op,x,y,z,changed,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(seq,path,layer_id,name,chunks,solids,digest,bytes,recorded_at) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertArchive, _ := s.db.Prepare(`INSERT OR REPLACE INTO archives(id,seq,path,recorded_at) VALUES(?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEdit, insertSnapshot, insertArchive} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for {
		var r req
		var ok bool
		if tx == nil {
			r, ok = <-s.ch
		} else {
			// Idle with an open tx: commit once it has waited long enough.
			select {
			case r, ok = <-s.ch:
			case <-time.After(commitMaxWait):
				commit()
				continue
			}
		}
		if !ok {
			break
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEdit:
			e := r.edit
			raw, _ := json.Marshal(e)
			exec(insertEdit, int64(e.Seq), e.Time, string(e.Op), e.Pos[0], e.Pos[1], e.Pos[2], e.Changed, string(raw))
		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Seq), sn.Path, sn.LayerID, sn.Name, sn.Chunks, sn.Solids, sn.Digest, sn.Bytes, sn.RecordedAt)
		case reqArchive:
			a := r.archive
			exec(insertArchive, a.ID, int64(a.Seq), a.Path, a.RecordedAt)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
