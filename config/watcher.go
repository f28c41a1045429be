package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher calls a reload function whenever one of the registered files is
// written or replaced. Directories are watched instead of the files so that
// editors which save through a rename are noticed too.
type Watcher struct {
	fsw      *fsnotify.Watcher
	mu       sync.Mutex
	handlers map[string]func()
	dirs     map[string]bool
	debounce time.Duration
}

func NewWatcher() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("can't create file watcher: %w", err)
	}
	return &Watcher{
		fsw:      fsw,
		handlers: make(map[string]func()),
		dirs:     make(map[string]bool),
		debounce: 200 * time.Millisecond,
	}, nil
}

// Add registers reload to be called when file changes.
func (w *Watcher) Add(file string, reload func()) error {
	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirs[dir] {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("can't watch %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	w.handlers[abs] = reload
	return nil
}

// Run dispatches change events until done is closed. Bursts of events for
// the same file within the debounce window result in a single reload.
func (w *Watcher) Run(done <-chan struct{}) {
	defer w.fsw.Close()
	pending := make(map[string]*time.Timer)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-done:
			slog.Info("Config watcher stopped")
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			name := filepath.Clean(event.Name)
			w.mu.Lock()
			reload, found := w.handlers[name]
			w.mu.Unlock()
			if !found {
				continue
			}
			if t, running := pending[name]; running {
				t.Reset(w.debounce)
				continue
			}
			slog.Debug("File changed", "file", name, "op", event.Op.String())
			pending[name] = time.AfterFunc(w.debounce, reload)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}
