// Package watch implements ChangeWatcher: filesystem change detection
// with debouncing and a bounded worker pool feeding IndexingPipeline.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	defaultDebounce  = 500 * time.Millisecond
	defaultWorkers   = 2
	defaultQueueSize = 10000
)

// FileProcessor is the subset of indexing.Pipeline the watcher drives.
type FileProcessor interface {
	ProcessSingleFile(ctx context.Context, path string) error
	RemoveFile(ctx context.Context, path string) error
}

// Options configures a Watcher.
type Options struct {
	Debounce  time.Duration
	Workers   int
	QueueSize int
	Logger    *zap.Logger
}

// Watcher is the ChangeWatcher component: it observes one or more root
// directories and feeds Created/Modified/Deleted/Renamed events into
// FileProcessor, debouncing repeated events and bounding queue depth.
type Watcher struct {
	roots      []string
	extensions []string
	processor  FileProcessor
	debounce   time.Duration
	logger     *zap.Logger

	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	debounceMap map[string]*time.Timer
	rootPaths   map[string][]string
	started     bool
	stopOnce    sync.Once
	done        chan struct{}

	queue   chan string
	dropped int64
	closed  int32
	wg      sync.WaitGroup
}

// New builds a Watcher over roots, filtering events to the given
// extensions (empty = all), feeding changes into processor.
func New(roots, extensions []string, processor FileProcessor, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	w := &Watcher{
		roots:       roots,
		extensions:  extensions,
		processor:   processor,
		debounce:    opts.Debounce,
		logger:      opts.Logger,
		debounceMap: make(map[string]*time.Timer),
		rootPaths:   make(map[string][]string),
		done:        make(chan struct{}),
		queue:       make(chan string, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}
	return w
}

// DroppedCount returns the number of upsert events dropped for queue
// overflow (backpressure).
func (w *Watcher) DroppedCount() int64 {
	return atomic.LoadInt64(&w.dropped)
}

// Start begins watching the configured roots. It runs until ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fsw
	w.started = true
	for _, root := range w.roots {
		if err := w.addRootLocked(root); err != nil {
			_ = fsw.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("watch error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	path := ev.Name
	if !w.underRoot(path) {
		return
	}
	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			w.handleNewDirectory(ctx, path)
			return
		}
		if w.matchExtension(path) {
			w.debounceUpsert(path)
		}
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A Rename delivers only the old path under inotify; the new
		// path, if any, arrives as a separate Create event. Treating
		// Rename the same as Remove here realizes Deleted(from) +
		// Created(to) without needing to pair the two events.
		w.cancelDebounce(path)
		if w.matchExtension(path) {
			if err := w.processor.RemoveFile(ctx, path); err != nil && w.logger != nil {
				w.logger.Warn("watch failed to remove file", zap.String("path", path), zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleNewDirectory(ctx context.Context, dirPath string) {
	w.mu.Lock()
	watcher := w.watcher
	w.mu.Unlock()
	if watcher == nil {
		return
	}
	filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			_ = watcher.Add(path)
		}
		return nil
	})
	w.syncDirectory(dirPath)
}

func (w *Watcher) underRoot(path string) bool {
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	w.mu.Unlock()
	clean := filepath.Clean(path)
	for _, root := range roots {
		rootClean := filepath.Clean(root)
		if rootClean == clean || inDir(rootClean, clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) matchExtension(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range w.extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) debounceUpsert(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.enqueue(path)
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

// enqueue hands path to the worker pool, dropping it if the queue is
// full rather than blocking the event-delivery goroutine.
func (w *Watcher) enqueue(path string) {
	if atomic.LoadInt32(&w.closed) == 1 {
		return
	}
	select {
	case w.queue <- path:
	default:
		atomic.AddInt64(&w.dropped, 1)
		if w.logger != nil {
			w.logger.Warn("watch queue full, dropping event", zap.String("path", path), zap.Int64("dropped_total", atomic.LoadInt64(&w.dropped)))
		}
	}
}

func (w *Watcher) worker() {
	defer w.wg.Done()
	for path := range w.queue {
		if err := w.processor.ProcessSingleFile(context.Background(), path); err != nil && w.logger != nil {
			w.logger.Warn("watch failed to process file", zap.String("path", path), zap.Error(err))
		}
	}
}

func (w *Watcher) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(root, 0o755); err != nil {
				return err
			}
		} else {
			return err
		}
	}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return err
	}
	w.rootPaths[root] = paths
	return nil
}

func (w *Watcher) syncDirectory(root string) {
	w.mu.Lock()
	exts := append([]string(nil), w.extensions...)
	w.mu.Unlock()
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if matchExtensionList(path, exts) {
			w.debounceUpsert(path)
		}
		return nil
	})
}

func matchExtensionList(path string, extensions []string) bool {
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

// Stop halts event delivery and the worker pool.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() {
		close(w.done)
		atomic.StoreInt32(&w.closed, 1)
		close(w.queue)
	})
	w.wg.Wait()
}
