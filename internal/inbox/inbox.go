// Package inbox watches a drop folder and imports documents placed in
// it. Files are moved into a processed/ subfolder after import so a
// restart never imports them twice.
package inbox

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/choislab/hanisearch/internal/docs"
	"github.com/choislab/hanisearch/internal/extract"
	"github.com/choislab/hanisearch/internal/logging"
	"github.com/choislab/hanisearch/internal/platform"
)

var inboxLog = logging.ForComponent(logging.CompInbox)

// DefaultDebounce is the settle time after the last write event before
// a dropped file is imported. Copies in progress keep firing writes.
const DefaultDebounce = 300 * time.Millisecond

const processedDir = "processed"

// Watcher imports files dropped into a folder.
type Watcher struct {
	dir      string
	debounce time.Duration
	adapter  *docs.Adapter
	registry *extract.Registry
	watcher  *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a watcher over dir. The folder is created if missing.
func New(dir string, debounce time.Duration, adapter *docs.Adapter, registry *extract.Registry) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if err := os.MkdirAll(filepath.Join(dir, processedDir), 0700); err != nil {
		return nil, fmt.Errorf("inbox: mkdir: %w", err)
	}
	if warn := platform.CheckFsnotifySupport(dir); warn != "" {
		inboxLog.Warn(warn, slog.String("dir", dir))
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("inbox: watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("inbox: watch %s: %w", dir, err)
	}

	w := &Watcher{
		dir:      dir,
		debounce: debounce,
		adapter:  adapter,
		registry: registry,
		watcher:  fw,
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	return w, nil
}

// Start imports files already sitting in the folder, then follows
// events until Stop.
func (w *Watcher) Start() {
	w.sweep()
	w.wg.Add(1)
	go w.loop()
}

// Stop ends the watch loop and cancels pending imports.
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
}

// sweep imports supported files that predate the watcher.
func (w *Watcher) sweep() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		inboxLog.Warn("sweep failed", slog.String("error", err.Error()))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !w.registry.Supported(entry.Name()) {
			continue
		}
		w.importFile(filepath.Join(w.dir, entry.Name()))
	}
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !w.registry.Supported(event.Name) {
				continue
			}
			if strings.Contains(event.Name, string(filepath.Separator)+processedDir+string(filepath.Separator)) {
				continue
			}

			// Debounce: wait for the last write on this path.
			w.mu.Lock()
			if timer, exists := w.timers[event.Name]; exists {
				timer.Stop()
			}
			w.timers[event.Name] = time.AfterFunc(w.debounce, func() {
				w.importFile(event.Name)
				w.mu.Lock()
				delete(w.timers, event.Name)
				w.mu.Unlock()
			})
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			inboxLog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) importFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		inboxLog.Warn("open dropped file failed",
			slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	d, err := w.adapter.Import(filepath.Base(path), f)
	f.Close()
	if err != nil {
		inboxLog.Warn("import failed",
			slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	dest := filepath.Join(w.dir, processedDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		inboxLog.Warn("move to processed failed",
			slog.String("path", path), slog.String("error", err.Error()))
	}
	inboxLog.Info("document imported from drop folder",
		slog.String("id", d.ID), slog.String("name", d.Name))
}
