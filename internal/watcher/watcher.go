// Package watcher ingests files dropped into inbox directories, using fsnotify with debouncing.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/kotae/internal/fileid"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// IngestFunc ingests the file at path.
type IngestFunc func(ctx context.Context, path string) error

// Inbox watches directories and hands every new or rewritten file with an allowed
// extension to an IngestFunc once writes to it have settled. Files are ingested
// one at a time, and a file whose content has not changed since its last
// successful ingestion is skipped.
type Inbox struct {
	dirs       []string
	extensions []string
	recursive  bool
	ingest     IngestFunc
	debounce   time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	pending  map[string]*time.Timer
	ingested map[string]string // path id -> content checksum
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight sync.WaitGroup

	ingestMu sync.Mutex
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(in *Inbox) { in.logger = l }
}

// WithDebounce sets how long a file must stay unchanged before it is ingested.
func WithDebounce(d time.Duration) Option {
	return func(in *Inbox) {
		if d > 0 {
			in.debounce = d
		}
	}
}

// NewInbox creates an inbox over dirs. An empty extensions list accepts every file.
func NewInbox(dirs, extensions []string, recursive bool, ingest IngestFunc, opts ...Option) *Inbox {
	in := &Inbox{
		dirs:       dirs,
		extensions: extensions,
		recursive:  recursive,
		ingest:     ingest,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		pending:    make(map[string]*time.Timer),
		ingested:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Start begins watching. Missing directories are created. The inbox runs until
// ctx is cancelled or Stop is called.
func (in *Inbox) Start(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.fsw != nil {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range in.dirs {
		if err := addTree(fsw, dir, in.recursive); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	in.fsw = fsw
	in.ctx, in.cancel = context.WithCancel(ctx)
	in.logger.Info("inbox watching",
		zap.Strings("directories", in.dirs),
		zap.Strings("extensions", in.extensions),
		zap.Bool("recursive", in.recursive))

	in.wg.Add(1)
	go in.run(in.ctx, fsw)
	return nil
}

func addTree(fsw *fsnotify.Watcher, root string, recursive bool) error {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	if !recursive {
		return fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func (in *Inbox) run(ctx context.Context, fsw *fsnotify.Watcher) {
	defer in.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			in.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			in.logger.Warn("inbox watch error", zap.Error(err))
		}
	}
}

func (in *Inbox) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	in.logger.Debug("inbox event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if ev.Has(fsnotify.Create) && in.recursive {
				in.handleNewDirectory(path)
			}
			return
		}
		if matchExtension(path, in.extensions) {
			in.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		in.cancelPending(path)
	}
}

// handleNewDirectory watches a directory created under a root and schedules the
// files already inside it.
func (in *Inbox) handleNewDirectory(dir string) {
	in.mu.Lock()
	fsw := in.fsw
	in.mu.Unlock()
	if fsw == nil {
		return
	}
	if err := addTree(fsw, dir, true); err != nil {
		in.logger.Warn("inbox failed to watch directory", zap.String("path", dir), zap.Error(err))
		return
	}
	for _, path := range in.matchingFiles(dir) {
		in.schedule(path)
	}
}

func (in *Inbox) schedule(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.ctx == nil || in.ctx.Err() != nil {
		return
	}
	if t, ok := in.pending[path]; ok {
		t.Stop()
	}
	ctx := in.ctx
	in.pending[path] = time.AfterFunc(in.debounce, func() {
		in.mu.Lock()
		delete(in.pending, path)
		if ctx.Err() != nil {
			in.mu.Unlock()
			return
		}
		in.inflight.Add(1)
		in.mu.Unlock()
		defer in.inflight.Done()
		in.process(ctx, path)
	})
}

func (in *Inbox) cancelPending(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Stop()
		delete(in.pending, path)
	}
}

// process ingests path unless its content matches the last successful ingestion.
func (in *Inbox) process(ctx context.Context, path string) {
	in.ingestMu.Lock()
	defer in.ingestMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		in.logger.Debug("inbox file vanished", zap.String("path", path), zap.Error(err))
		return
	}
	id := fileid.PathDocID(path)
	sum := fileid.Checksum(content)

	in.mu.Lock()
	unchanged := in.ingested[id] == sum
	in.mu.Unlock()
	if unchanged {
		in.logger.Debug("inbox file unchanged", zap.String("path", path))
		return
	}

	if err := in.ingest(ctx, path); err != nil {
		in.logger.Warn("inbox ingestion failed", zap.String("path", path), zap.Error(err))
		return
	}
	in.mu.Lock()
	in.ingested[id] = sum
	in.mu.Unlock()
	in.logger.Info("inbox ingested file", zap.String("path", path))
}

// SyncExisting ingests the files already present in the inbox directories.
func (in *Inbox) SyncExisting(ctx context.Context) {
	for _, dir := range in.dirs {
		for _, path := range in.matchingFiles(dir) {
			in.process(ctx, path)
		}
	}
}

// SyncInBackground runs SyncExisting on the inbox's own context. Stop cancels
// the sync and waits for it. It does nothing unless the inbox is started.
func (in *Inbox) SyncInBackground() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.fsw == nil {
		return
	}
	ctx := in.ctx
	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		in.SyncExisting(ctx)
	}()
}

func (in *Inbox) matchingFiles(root string) []string {
	var out []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && !in.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if matchExtension(path, in.extensions) {
			out = append(out, path)
		}
		return nil
	})
	return out
}

// Directories returns the watched root directories.
func (in *Inbox) Directories() []string {
	return append([]string(nil), in.dirs...)
}

// Stop stops watching, drops pending files, and waits for the event loop to exit.
// An ingestion already in progress finishes first.
func (in *Inbox) Stop() {
	in.mu.Lock()
	if in.fsw == nil {
		in.mu.Unlock()
		return
	}
	for path, t := range in.pending {
		t.Stop()
		delete(in.pending, path)
	}
	in.cancel()
	_ = in.fsw.Close()
	in.fsw = nil
	in.mu.Unlock()
	in.wg.Wait()
	in.inflight.Wait()
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}
