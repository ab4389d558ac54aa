package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Event reports a change to a watched file.
type Event struct {
	Path    string
	File    *File
	Removed bool
	Err     error
}

// Watcher reparses watched files when they change on disk. Directories
// are watched rather than files so that editors that save by renaming
// keep being followed.
type Watcher struct {
	ws      *Workspace
	watcher *fsnotify.Watcher
	handle  func(Event)

	mu    sync.Mutex
	paths map[string]bool
	dirs  map[string]bool

	stopCh chan struct{}
	done   chan struct{}
}

func NewWatcher(ws *Workspace, handle func(Event)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	return &Watcher{
		ws:      ws,
		watcher: fw,
		handle:  handle,
		paths:   make(map[string]bool),
		dirs:    make(map[string]bool),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Add parses path and starts watching it.
func (w *Watcher) Add(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	f, err := w.ws.ScanFile(abs)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.paths[abs] = true
	dir := filepath.Dir(abs)
	if !w.dirs[dir] {
		if err := w.watcher.Add(dir); err != nil {
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	return f, nil
}

func (w *Watcher) Start() {
	go w.run()
}

// Stop ends the watch loop and waits for it to finish.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) watched(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paths[path]
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.event(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if !errors.Is(err, fsnotify.ErrEventOverflow) {
				w.handle(Event{Err: err})
			}
		}
	}
}

func (w *Watcher) event(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if !w.watched(path) {
		return
	}
	switch {
	case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
		f, err := w.ws.ScanFile(path)
		w.handle(Event{Path: path, File: f, Err: err})
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		w.ws.RemoveFile(path)
		w.handle(Event{Path: path, Removed: true})
	}
}
