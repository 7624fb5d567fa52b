package identity

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"tunnel-keeper/internal/logger"

	"github.com/fsnotify/fsnotify"
)

/**
 * FileProvider tracks identity.json on disk
 * @description
 * - The parent directory is watched, so login/logout (create/remove) are both observed
 * - Every effective change of the login string is signalled on Changes()
 */
type FileProvider struct {
	path    string
	mu      sync.RWMutex
	current Identity
	ok      bool
	changes chan struct{}
}

func NewFileProvider(path string) *FileProvider {
	p := &FileProvider{path: path, changes: make(chan struct{}, 1)}
	p.Reload()
	return p
}

func (p *FileProvider) Current() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ok {
		return "", false
	}
	return p.current.Login(), true
}

func (p *FileProvider) Changes() <-chan struct{} {
	return p.changes
}

// Reload re-reads the file and reports whether the login changed
func (p *FileProvider) Reload() bool {
	id, err := Load(p.path)
	ok := err == nil
	if err != nil && !errors.Is(err, ErrNotLoggedIn) {
		logger.Warnf("Identity file %s unreadable: %v", p.path, err)
	}

	p.mu.Lock()
	changed := ok != p.ok || id != p.current
	p.current, p.ok = id, ok
	p.mu.Unlock()

	if changed {
		if ok {
			logger.Infof("Logged in as %s", id.Login())
		} else {
			logger.Infof("Logged out")
		}
		select {
		case p.changes <- struct{}{}:
		default:
		}
	}
	return changed
}

/**
 * Watch the identity file until ctx is done
 * @param {context.Context} ctx - Cancels the watch
 * @returns {error} Returns error if the watcher cannot be created
 */
func (p *FileProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(p.path) {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					p.Reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("Identity watcher error: %v", err)
			}
		}
	}()
	return nil
}
