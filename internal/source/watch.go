package source

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reactively triggers a refresh callback when new files land
// under a file:// source's prefix, adapted from the teacher's
// FileWatcher (cmd/bd/daemon_watcher.go): watch the prefix directory
// for create and write events and debounce bursts of them into one
// callback.
// memory:// and s3:// prefixes have no filesystem to watch; Watch is a
// documented no-op for them, and callers should keep polling refresh()
// on a timer instead.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	debounce  time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// Watch starts watching prefix (a local directory path, not a URL) for
// file creation or writes, calling onChange after debounce of quiet time. It
// returns a stop function the caller must call to release resources.
// It is a no-op (stop does nothing, err is nil) when prefix cannot be
// watched — e.g. it doesn't exist yet, or the platform has no inotify.
func Watch(ctx context.Context, prefix string, onChange func(path string)) (stop func(), err error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return func() {}, nil
	}
	if err := fw.Add(prefix); err != nil {
		_ = fw.Close()
		return func() {}, nil
	}

	w := &Watcher{fsWatcher: fw, debounce: 300 * time.Millisecond}
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		for {
			select {
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				if strings.HasPrefix(event.Name, ".") {
					continue
				}
				w.trigger(func() { onChange(event.Name) })
			case _, ok := <-fw.Errors:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		cancel()
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		_ = fw.Close()
	}, nil
}

func (w *Watcher) trigger(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, fn)
}
