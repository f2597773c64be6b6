package fs

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"glasspane/internal/events"
)

const EventChange = "fs://change"

var (
	ErrWatchUnsupported = errors.New("watching is not supported on this filesystem")
	ErrUnknownWatch     = errors.New("unknown watch")
)

type WatchEvent struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Op   string `json:"op"`
}

type watch struct {
	id        string
	watcher   *fsnotify.Watcher
	recursive bool
	done      chan struct{}
	once      sync.Once
}

func (w *watch) close() {
	w.once.Do(func() {
		_ = w.watcher.Close()
		<-w.done
	})
}

// Watch reports changes under name. Each change is published as an
// fs://change event and passed to handler when it is non-nil.
func (p *Plugin) Watch(name string, recursive bool, handler func(WatchEvent)) (string, error) {
	path, err := cleanPath(name)
	if err != nil {
		return "", err
	}

	p.mu.RLock()
	base, root, realRoot := p.base, p.root, p.realRoot
	p.mu.RUnlock()
	if base == nil {
		return "", ErrWatchUnsupported
	}
	if err := confine(root, realRoot, path); err != nil {
		return "", err
	}

	real, err := base.RealPath(path)
	if err != nil {
		return "", err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", fmt.Errorf("create watcher: %w", err)
	}
	if err := addWatchPaths(watcher, real, recursive); err != nil {
		_ = watcher.Close()
		return "", err
	}

	w := &watch{
		id:        uuid.NewString(),
		watcher:   watcher,
		recursive: recursive,
		done:      make(chan struct{}),
	}

	p.mu.Lock()
	p.watches[w.id] = w
	p.mu.Unlock()

	go p.runWatch(w, root, handler)
	return w.id, nil
}

func (p *Plugin) Unwatch(id string) error {
	p.mu.Lock()
	w, ok := p.watches[id]
	delete(p.watches, id)
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWatch, id)
	}
	w.close()
	return nil
}

func (p *Plugin) UnwatchAll() {
	p.mu.Lock()
	watches := p.watches
	p.watches = make(map[string]*watch)
	p.mu.Unlock()

	for _, w := range watches {
		w.close()
	}
}

func (p *Plugin) runWatch(w *watch, root string, handler func(WatchEvent)) {
	defer close(w.done)

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.recursive && ev.Has(fsnotify.Create) {
				_ = addWatchPaths(w.watcher, ev.Name, true)
			}

			rel, err := filepath.Rel(root, ev.Name)
			if err != nil {
				rel = ev.Name
			}
			change := WatchEvent{ID: w.id, Path: filepath.ToSlash(rel), Op: ev.Op.String()}

			if handler != nil {
				handler(change)
			}
			if p.events != nil {
				p.events.Publish(events.Event{
					Type: EventChange,
					Data: map[string]interface{}{"id": change.ID, "path": change.Path, "op": change.Op},
				})
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("FS", err, map[string]interface{}{"watch": w.id})
		}
	}
}

// addWatchPaths adds path, and every directory below it when recursive.
// fsnotify watches are not recursive on their own.
func addWatchPaths(watcher *fsnotify.Watcher, path string, recursive bool) error {
	if !recursive {
		return watcher.Add(path)
	}
	return filepath.WalkDir(path, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == path || d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
}
