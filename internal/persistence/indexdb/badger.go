package indexdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"

	"voxlayer.ai/internal/persistence/snapshot"
	"voxlayer.ai/internal/sim/editor"
)

// Key layout:
//
//	e/<seq>            edit entry JSON
//	p/<x><y><z><seq>   empty; position index over edits
//	s/<seq>            SnapshotRow JSON
//	a/<seq><id>        ArchiveRow JSON
//
// Integers are big-endian; int32 coordinates have the sign bit flipped so
// byte order matches numeric order.
var (
	prefixEdit     = []byte("e/")
	prefixPos      = []byte("p/")
	prefixSnapshot = []byte("s/")
	prefixArchive  = []byte("a/")
)

// BadgerIndex is the embedded key-value alternative to SQLiteIndex. Writes
// are synchronous; failures are counted the same way SQLiteIndex counts
// drops.
type BadgerIndex struct {
	db   *badger.DB
	once sync.Once

	closed atomic.Bool

	dropEdit     atomic.Uint64
	dropSnapshot atomic.Uint64
	dropArchive  atomic.Uint64
}

func OpenBadger(dir string) (*BadgerIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", dir, err)
	}
	return &BadgerIndex{db: db}, nil
}

func (b *BadgerIndex) Close() error {
	var err error
	b.once.Do(func() {
		b.closed.Store(true)
		err = b.db.Close()
	})
	return err
}

func (b *BadgerIndex) Stats() Stats {
	if b == nil {
		return Stats{}
	}
	return Stats{
		DropEditTotal:     b.dropEdit.Load(),
		DropSnapshotTotal: b.dropSnapshot.Load(),
		DropArchiveTotal:  b.dropArchive.Load(),
	}
}

func seqKey(prefix []byte, seq uint64) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], seq)
	return k
}

func posPrefix(x, y, z int32) []byte {
	k := make([]byte, len(prefixPos)+12)
	copy(k, prefixPos)
	for i, v := range [3]int32{x, y, z} {
		binary.BigEndian.PutUint32(k[len(prefixPos)+4*i:], uint32(v)^0x80000000)
	}
	return k
}

func (b *BadgerIndex) WriteEdit(entry editor.EditEntry) error {
	if b == nil || b.closed.Load() {
		return nil
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		b.dropEdit.Add(1)
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(seqKey(prefixEdit, entry.Seq), raw); err != nil {
			return err
		}
		p := entry.Pos
		return txn.Set(seqKey(posPrefix(p[0], p[1], p[2]), entry.Seq), nil)
	})
	if err != nil {
		b.dropEdit.Add(1)
	}
	return err
}

func (b *BadgerIndex) RecordSnapshot(path string, hdr snapshot.Header, size int64) {
	if b == nil || b.closed.Load() {
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
	if err := b.put(seqKey(prefixSnapshot, r.Seq), r); err != nil {
		b.dropSnapshot.Add(1)
	}
}

func (b *BadgerIndex) RecordArchive(id string, seq uint64, path string) {
	if b == nil || b.closed.Load() || id == "" || path == "" {
		return
	}
	r := ArchiveRow{
		ID:         id,
		Seq:        seq,
		Path:       path,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := b.put(append(seqKey(prefixArchive, seq), id...), r); err != nil {
		b.dropArchive.Add(1)
	}
}

func (b *BadgerIndex) put(key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, raw)
	})
}

// scan visits the values under prefix in key order, or reverse key order.
// fn returns false to stop.
func (b *BadgerIndex) scan(ctx context.Context, prefix []byte, reverse bool, fn func(key, val []byte) (bool, error)) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = reverse
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		start := prefix
		if reverse {
			start = append(append([]byte{}, prefix...), 0xff)
		}
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			more, err := fn(item.KeyCopy(nil), val)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		return nil
	})
}

func (b *BadgerIndex) ListSnapshots(ctx context.Context, limit int) ([]SnapshotRow, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []SnapshotRow
	err := b.scan(ctx, prefixSnapshot, true, func(_, val []byte) (bool, error) {
		var r SnapshotRow
		if err := json.Unmarshal(val, &r); err != nil {
			return false, err
		}
		out = append(out, r)
		return len(out) < limit, nil
	})
	return out, err
}

func (b *BadgerIndex) EditsAt(ctx context.Context, x, y, z int32) ([]editor.EditEntry, error) {
	prefix := posPrefix(x, y, z)
	var seqs []uint64
	err := b.scan(ctx, prefix, false, func(key, _ []byte) (bool, error) {
		seqs = append(seqs, binary.BigEndian.Uint64(key[len(prefix):]))
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]editor.EditEntry, 0, len(seqs))
	err = b.db.View(func(txn *badger.Txn) error {
		for _, seq := range seqs {
			item, err := txn.Get(seqKey(prefixEdit, seq))
			if err != nil {
				return err
			}
			var e editor.EditEntry
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

func (b *BadgerIndex) ListArchives(ctx context.Context) ([]ArchiveRow, error) {
	var out []ArchiveRow
	err := b.scan(ctx, prefixArchive, false, func(_, val []byte) (bool, error) {
		var r ArchiveRow
		if err := json.Unmarshal(val, &r); err != nil {
			return false, err
		}
		out = append(out, r)
		return true, nil
	})
	return out, err
}
