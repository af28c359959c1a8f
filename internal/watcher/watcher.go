// Package watcher ingests manifests dropped into a directory, using fsnotify
// with debouncing. Handled manifests are moved to processed/ or failed/.
package watcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/internal/models"
)

const (
	defaultDebounce = 400 * time.Millisecond
	manifestExt     = ".json"
	processedDir    = "processed"
	failedDir       = "failed"
)

// Handler runs one manifest. path is the manifest file.
type Handler func(ctx context.Context, path string, m *models.Manifest) error

// Watcher watches one drop directory and hands each manifest to a Handler,
// one at a time in arrival order.
type Watcher struct {
	dir         string
	handle      Handler
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	queued      map[string]bool
	queue       chan string
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger // optional; when set, logs debug events
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must be quiet before it is handled.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher of dir.
func NewWatcher(dir string, handle Handler, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:         filepath.Clean(dir),
		handle:      handle,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		queued:      make(map[string]bool),
		queue:       make(chan string, 64),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Start creates the directory if needed, queues manifests already present and
// watches for new ones. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		w.mu.Unlock()
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	w.debug("watcher starting", zap.String("dir", w.dir))
	go w.work(ctx)
	go w.run(ctx, watcher)
	w.syncExisting()
	return nil
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if filepath.Dir(path) != w.dir || !isManifest(path) {
		return
	}
	w.debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			w.debounceQueue(path)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancelDebounce(path)
	}
}

func isManifest(path string) bool {
	base := filepath.Base(path)
	return strings.EqualFold(filepath.Ext(base), manifestExt) && !strings.HasPrefix(base, ".")
}

func (w *Watcher) debounceQueue(path string) {
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

func (w *Watcher) enqueue(path string) {
	w.mu.Lock()
	if w.queued[path] {
		w.mu.Unlock()
		return
	}
	w.queued[path] = true
	w.mu.Unlock()
	select {
	case w.queue <- path:
	case <-w.done:
	}
}

// syncExisting queues the manifests present before the watch began, by name.
func (w *Watcher) syncExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.debug("watcher sync failed", zap.Error(err))
		return
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && isManifest(e.Name()) {
			paths = append(paths, filepath.Join(w.dir, e.Name()))
		}
	}
	sort.Strings(paths)
	go func() {
		for _, p := range paths {
			w.enqueue(p)
		}
	}()
}

func (w *Watcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case path := <-w.queue:
			w.process(ctx, path)
			w.mu.Lock()
			delete(w.queued, path)
			w.mu.Unlock()
		}
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	m, err := LoadManifest(path)
	if err == nil {
		err = w.handle(ctx, path, m)
	}
	dest := processedDir
	if err != nil {
		dest = failedDir
		if w.logger != nil {
			w.logger.Error("manifest failed", zap.String("path", path), zap.Error(err))
		}
	}
	if moveErr := moveInto(path, filepath.Join(w.dir, dest)); moveErr != nil && w.logger != nil {
		w.logger.Error("failed to move manifest", zap.String("path", path), zap.Error(moveErr))
	}
}

func moveInto(path, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dir, filepath.Base(path)))
}

// LoadManifest reads a manifest file. A relative transcriptPath is resolved
// against the manifest's directory.
func LoadManifest(path string) (*models.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m models.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperr.NewParseError(filepath.Base(path), "invalid manifest JSON", err)
	}
	if m.TranscriptPath != "" && !filepath.IsAbs(m.TranscriptPath) {
		m.TranscriptPath = filepath.Join(filepath.Dir(path), m.TranscriptPath)
	}
	return &m, nil
}

func (w *Watcher) debug(msg string, fields ...zap.Field) {
	if w.logger != nil {
		w.logger.Debug(msg, fields...)
	}
}

// Stop stops the watcher. A manifest being handled runs to completion.
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
	w.stopOnce.Do(func() { close(w.done) })
}
