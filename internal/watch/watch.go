// Package watch keeps a mapping store in sync with a directory of map files.
// New and changed files are loaded after a quiet period, so a map file that
// is still being copied is loaded once it settles.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	ignore "github.com/sabhiram/go-gitignore"

	"unfuscator/internal/dotfuscator"
)

// DefaultDebounce is the quiet period after the last write to a file before
// it is loaded.
const DefaultDebounce = 500 * time.Millisecond

// Config holds watcher configuration.
type Config struct {
	Dir      string
	Debounce time.Duration
	// InitialLoad loads the maps already in Dir before watching.
	InitialLoad bool
}

// Status is a snapshot of the watcher's activity.
type Status struct {
	Dir       string    `json:"dir"`
	StartedAt time.Time `json:"started_at"`
	Loaded    int       `json:"loaded"`
	Failed    int       `json:"failed"`
	LastPath  string    `json:"last_path,omitempty"`
	LastLoad  time.Time `json:"last_load,omitzero"`
	LastError string    `json:"last_error,omitempty"`
	Pending   int       `json:"pending"`
}

// Watcher loads map files from a directory as they appear or change.
type Watcher struct {
	cfg    Config
	loader *dotfuscator.Loader
	logger *slog.Logger

	watcher     *fsnotify.Watcher
	loadQueue   chan string
	debounceMap map[string]*time.Timer
	debounceMu  sync.Mutex

	ignoreMu sync.RWMutex
	ignore   *ignore.GitIgnore

	statusMu sync.Mutex
	status   Status
}

// New creates a watcher for cfg.Dir loading through loader.
func New(cfg Config, loader *dotfuscator.Loader, logger *slog.Logger) (*Watcher, error) {
	cfg.Dir = dotfuscator.CleanPath(cfg.Dir)
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch directory: %s is not a directory", cfg.Dir)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{
		cfg:         cfg,
		loader:      loader,
		logger:      logger,
		watcher:     fw,
		loadQueue:   make(chan string, 100),
		debounceMap: make(map[string]*time.Timer),
		ignore:      dotfuscator.LoadIgnore(cfg.Dir),
		status:      Status{Dir: cfg.Dir},
	}, nil
}

// Run watches the directory until ctx is cancelled. It returns nil on
// cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	defer w.stopTimers()

	if err := w.watcher.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.cfg.Dir, err)
	}
	w.statusMu.Lock()
	w.status.StartedAt = time.Now()
	w.statusMu.Unlock()
	w.logger.Info("watching map directory", "dir", w.cfg.Dir, "debounce", w.cfg.Debounce)

	if w.cfg.InitialLoad {
		paths, err := dotfuscator.ListDir(w.cfg.Dir)
		if err != nil {
			return err
		}
		for _, path := range paths {
			w.load(ctx, path)
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.loadWorker(ctx)
	}()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping", "dir", w.cfg.Dir)
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// Status returns a snapshot of the watcher's activity.
func (w *Watcher) Status() Status {
	w.statusMu.Lock()
	st := w.status
	w.statusMu.Unlock()

	w.debounceMu.Lock()
	st.Pending = len(w.debounceMap)
	w.debounceMu.Unlock()
	return st
}

// handleEvent debounces loads of map files that were created or written.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	name := filepath.Base(event.Name)
	if name == dotfuscator.IgnoreFile {
		w.ignoreMu.Lock()
		w.ignore = dotfuscator.LoadIgnore(w.cfg.Dir)
		w.ignoreMu.Unlock()
		w.logger.Info("reloaded ignore file", "dir", w.cfg.Dir)
		return
	}
	if !w.wants(name) {
		return
	}

	w.schedule(event.Name)
}

// schedule (re)starts the debounce timer of path.
func (w *Watcher) schedule(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	if old, ok := w.debounceMap[path]; ok {
		old.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(w.cfg.Debounce, func() { w.fire(path, &timer) })
	w.debounceMap[path] = timer
}

// fire queues path for loading unless timer has been replaced by a later
// event, whose own timer will queue it.
func (w *Watcher) fire(path string, timer **time.Timer) {
	w.debounceMu.Lock()
	if w.debounceMap[path] != *timer {
		w.debounceMu.Unlock()
		return
	}
	delete(w.debounceMap, path)
	w.debounceMu.Unlock()

	select {
	case w.loadQueue <- path:
		w.logger.Debug("queued map load", "path", path)
	default:
		w.logger.Warn("load queue full, skipping", "path", path)
	}
}

// wants reports whether a file name in the watched directory is a map file
// that is not ignored.
func (w *Watcher) wants(name string) bool {
	if filepath.Ext(name) != ".xml" || !dotfuscator.MatchesFileName(name) {
		return false
	}
	w.ignoreMu.RLock()
	defer w.ignoreMu.RUnlock()
	return !w.ignore.MatchesPath(name)
}

func (w *Watcher) loadWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.loadQueue:
			w.load(ctx, path)
		}
	}
}

// load reads one map file into the store, tagged with its file-name version.
func (w *Watcher) load(ctx context.Context, path string) {
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return
	}
	ver, err := dotfuscator.VersionFromFilename(path)
	if err == nil {
		_, err = w.loader.LoadFile(ctx, path, ver, nil)
	}

	w.statusMu.Lock()
	defer w.statusMu.Unlock()
	w.status.LastPath = path
	w.status.LastLoad = time.Now()
	if err != nil {
		w.status.Failed++
		w.status.LastError = err.Error()
		w.logger.Error("map load failed", "path", path, "error", err)
		return
	}
	w.status.Loaded++
	w.status.LastError = ""
}

func (w *Watcher) stopTimers() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	for path, timer := range w.debounceMap {
		timer.Stop()
		delete(w.debounceMap, path)
	}
}
