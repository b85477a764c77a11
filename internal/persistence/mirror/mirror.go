// Package mirror copies finished snapshot, archive and journal files to an
// object store in the background.
package mirror

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Stats struct {
	QueueDepth         int    `json:"queue_depth"`
	QueueCapacity      int    `json:"queue_capacity"`
	EnqueuedTotal      uint64 `json:"enqueued_total"`
	DroppedTotal       uint64 `json:"dropped_total"`
	UploadSuccessTotal uint64 `json:"upload_success_total"`
	UploadFailTotal    uint64 `json:"upload_fail_total"`
	LastSuccessUnix    int64  `json:"last_success_unix"`
}

type Options struct {
	Workers     int
	Queue       int
	EnqueueWait time.Duration
	Attempts    int
	Logger      *log.Logger
}

// Mirror uploads files under baseDir, keyed by their path relative to
// baseDir (plus prefix). A nil *Mirror is a no-op.
type Mirror struct {
	up      Uploader
	baseDir string
	prefix  string
	opts    Options

	jobs chan string
	wg   sync.WaitGroup

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	success  atomic.Uint64
	fail     atomic.Uint64
	lastOK   atomic.Int64

	backoff func(attempt int) time.Duration
}

func New(up Uploader, baseDir, prefix string, opts Options) *Mirror {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Queue <= 0 {
		opts.Queue = 256
	}
	if opts.EnqueueWait <= 0 {
		opts.EnqueueWait = 25 * time.Millisecond
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 4
	}
	m := &Mirror{
		up:      up,
		baseDir: baseDir,
		prefix:  strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		opts:    opts,
		jobs:    make(chan string, opts.Queue),
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * 200 * time.Millisecond
		},
	}
	for i := 0; i < opts.Workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for p := range m.jobs {
				m.uploadOne(p)
			}
		}()
	}
	return m
}

// Enqueue schedules localPath. It waits at most EnqueueWait for queue space
// and drops the file otherwise.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil {
		return
	}
	m.enqueued.Add(1)
	select {
	case m.jobs <- localPath:
		return
	default:
	}
	timer := time.NewTimer(m.opts.EnqueueWait)
	defer timer.Stop()
	select {
	case m.jobs <- localPath:
	case <-timer.C:
		n := m.dropped.Add(1)
		m.printf("mirror drop local=%s reason=queue_full dropped_total=%d", localPath, n)
	}
}

// EnqueueIfExists is Enqueue for files that may legitimately be missing.
func (m *Mirror) EnqueueIfExists(localPath string) {
	if m == nil {
		return
	}
	if _, err := os.Stat(localPath); err == nil {
		m.Enqueue(localPath)
	}
}

// Close drains the queue and waits for in-flight uploads.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	close(m.jobs)
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:         len(m.jobs),
		QueueCapacity:      cap(m.jobs),
		EnqueuedTotal:      m.enqueued.Load(),
		DroppedTotal:       m.dropped.Load(),
		UploadSuccessTotal: m.success.Load(),
		UploadFailTotal:    m.fail.Load(),
		LastSuccessUnix:    m.lastOK.Load(),
	}
}

func (m *Mirror) uploadOne(localPath string) {
	key, err := m.ObjectKey(localPath)
	if err != nil {
		m.fail.Add(1)
		m.printf("mirror skip local=%s err=%v", localPath, err)
		return
	}
	var lastErr error
	for attempt := 1; attempt <= m.opts.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		lastErr = m.up.PutFile(ctx, key, localPath)
		cancel()
		if lastErr == nil {
			break
		}
		if attempt < m.opts.Attempts {
			time.Sleep(m.backoff(attempt))
		}
	}
	if lastErr != nil {
		m.fail.Add(1)
		m.printf("mirror upload failed key=%s err=%v", key, lastErr)
		return
	}
	m.success.Add(1)
	m.lastOK.Store(time.Now().Unix())
	m.printf("mirror uploaded key=%s", key)
}

// ObjectKey maps a file under baseDir to its object key.
func (m *Mirror) ObjectKey(localPath string) (string, error) {
	if localPath == "" {
		return "", fmt.Errorf("empty local path")
	}
	absBase, err := filepath.Abs(m.baseDir)
	if err != nil {
		return "", err
	}
	absLocal, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absBase, absLocal)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %s is outside %s", absLocal, absBase)
	}
	if m.prefix != "" {
		return path.Join(m.prefix, rel), nil
	}
	return rel, nil
}

func (m *Mirror) printf(format string, args ...any) {
	if m.opts.Logger != nil {
		m.opts.Logger.Printf(format, args...)
	}
}
