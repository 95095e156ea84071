package recovery

import (
	"sync"

	"github.com/fsnotify/fsnotify"
)

// WorkspaceDeletion is one best-effort early-detection signal fired when a
// tracked workspace directory disappears between Doctor sweeps.
type WorkspaceDeletion struct {
	Path string
}

// Watcher wraps fsnotify to feed WorkspaceDeletion events from the data
// directory. It supplements the authoritative Doctor sweep; a missed event
// (buffer full, watcher error) is never fatal since Doctor will catch the
// same drift on its next run.
type Watcher struct {
	fsw    *fsnotify.Watcher
	events chan WorkspaceDeletion
	mu     sync.Mutex
	closed bool
}

// NewWatcher starts watching dataDir for removals/renames.
func NewWatcher(dataDir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dataDir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		fsw:    fsw,
		events: make(chan WorkspaceDeletion, 32),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case w.events <- WorkspaceDeletion{Path: ev.Name}:
			default:
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// Events returns the channel of best-effort deletion signals.
func (w *Watcher) Events() <-chan WorkspaceDeletion {
	return w.events
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	close(w.events)
	return w.fsw.Close()
}
