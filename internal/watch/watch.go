// Package watch triggers a callback when files under the dictionary paths
// change. Bursts of events collapse into one call.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sagerenn/gdengine/internal/config"
)

const defaultDebounce = 2 * time.Second

type Option func(*Watcher)

func WithLogger(log *slog.Logger) Option {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithIgnore skips events under dir, typically the index directory.
func WithIgnore(dir string) Option {
	return func(w *Watcher) {
		if abs, err := filepath.Abs(dir); err == nil {
			w.ignore = append(w.ignore, abs)
		}
	}
}

type Watcher struct {
	paths    []config.SourcePath
	onChange func()
	debounce time.Duration
	ignore   []string
	log      *slog.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timer    *time.Timer
	done     chan struct{}
	stopOnce sync.Once
}

func New(paths []config.SourcePath, onChange func(), opts ...Option) *Watcher {
	w := &Watcher{
		paths:    paths,
		onChange: onChange,
		debounce: defaultDebounce,
		log:      slog.New(slog.DiscardHandler),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start watches every configured path down to its depth and runs until ctx
// ends or Stop is called. Missing directories are logged and skipped.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.watcher = fw
	w.mu.Unlock()
	for _, p := range w.paths {
		w.addTree(filepath.Clean(p.Path), p.Depth)
	}
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.timer != nil {
			w.timer.Stop()
		}
		if w.watcher != nil {
			_ = w.watcher.Close()
		}
	})
}

func (w *Watcher) addTree(dir string, depth int) {
	if w.ignored(dir) {
		return
	}
	if err := w.watcher.Add(dir); err != nil {
		w.log.Warn("watch directory", "dir", dir, "error", err)
		return
	}
	if depth <= 0 {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			w.addTree(filepath.Join(dir, e.Name()), depth-1)
		}
	}
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") || w.ignored(ev.Name) {
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	w.log.Debug("watch event", "op", ev.Op.String(), "path", ev.Name)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	select {
	case <-w.done:
		return
	default:
	}
	w.onChange()
}

func (w *Watcher) ignored(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, dir := range w.ignore {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
