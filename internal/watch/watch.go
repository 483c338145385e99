// Package watch reports repository changes, coalescing bursts of file
// system events into one callback.
package watch

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/thiagokokada/gitcore/internal/debounce"
)

const DefaultDelay = 350 * time.Millisecond

type Watcher struct {
	mu       sync.Mutex
	log      *slog.Logger
	watcher  *fsnotify.Watcher
	debounce *debounce.Debouncer
	done     chan struct{}
}

// New watches the worktree root and the git directory of the repository at
// root, calling onChange at most once per delay after activity stops.
func New(root, gitDir string, delay time.Duration, log *slog.Logger, onChange func()) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	for path := range Paths(root, gitDir) {
		log.Debug("adding path to FS watcher", slog.String("path", path))
		if err := fw.Add(path); err != nil {
			err := errors.Join(err, fw.Close())
			return nil, fmt.Errorf("watch %s: %w", path, err)
		}
	}
	w := &Watcher{
		log:      log,
		watcher:  fw,
		debounce: debounce.New(delay, onChange),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	<-w.done
	w.debounce.Stop()
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	fw := w.watcher
	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if shouldIgnore(ev.Name) {
				continue
			}
			w.log.Debug("fsnotify event", slog.String("op", ev.Op.String()), slog.String("path", ev.Name))
			w.debounce.Trigger()
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Error("fsnotify error", slog.Any("error", err))
		}
	}
}

// Paths lists the directories to watch: the worktree root, the git
// directory, and the directory holding local branch heads.
func Paths(root, gitDir string) iter.Seq[string] {
	unique := map[string]struct{}{}
	add := func(p string) {
		if p == "" {
			return
		}
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			unique[filepath.Clean(p)] = struct{}{}
		}
	}
	add(root)
	add(gitDir)
	if gitDir != "" {
		add(filepath.Join(gitDir, "refs", "heads"))
	}
	return maps.Keys(unique)
}

// shouldIgnore drops lock and ipc files, which come and go around every
// write and say nothing about the final state.
func shouldIgnore(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".lock" || ext == ".ipc"
}
