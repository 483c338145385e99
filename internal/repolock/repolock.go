// Package repolock serializes access to a repository: any number of readers
// or a single writer per repository path, within the process (RWMutex) and
// across processes (flock on a file inside the git directory).
package repolock

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	LockFile     = "gitcore.lock"
	retryBackoff = 50 * time.Millisecond
)

// Locker hands out per-path locks. The zero value is not usable; use New.
type Locker struct {
	mu    sync.Mutex
	paths map[string]*sync.RWMutex
}

func New() *Locker {
	return &Locker{paths: map[string]*sync.RWMutex{}}
}

// Key normalizes a repository path so that different spellings share a lock.
func Key(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return filepath.Clean(abs), nil
}

func (l *Locker) mutex(key string) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.paths[key]
	if !ok {
		m = &sync.RWMutex{}
		l.paths[key] = m
	}
	return m
}

// Release undoes a Read or Write.
type Release func()

// Read takes a shared lock on the repository whose metadata lives in
// gitDir. key identifies the repository within the process.
func (l *Locker) Read(ctx context.Context, key, gitDir string) (Release, error) {
	m := l.mutex(key)
	m.RLock()
	fl := flock.New(filepath.Join(gitDir, LockFile))
	ok, err := fl.TryRLockContext(ctx, retryBackoff)
	if err != nil || !ok {
		m.RUnlock()
		return nil, lockError(gitDir, err)
	}
	return func() {
		_ = fl.Unlock()
		m.RUnlock()
	}, nil
}

// Write takes an exclusive lock.
func (l *Locker) Write(ctx context.Context, key, gitDir string) (Release, error) {
	m := l.mutex(key)
	m.Lock()
	fl := flock.New(filepath.Join(gitDir, LockFile))
	ok, err := fl.TryLockContext(ctx, retryBackoff)
	if err != nil || !ok {
		m.Unlock()
		return nil, lockError(gitDir, err)
	}
	return func() {
		_ = fl.Unlock()
		m.Unlock()
	}, nil
}

func lockError(gitDir string, err error) error {
	if err == nil {
		err = context.Canceled
	}
	return fmt.Errorf("lock repository %s: %w", gitDir, err)
}
