// Package watch monitors the policy file for out-of-band edits and
// reloads the store when one lands. The store's own persisted writes
// are recognized by content hash and skipped.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ppiankov/shellguard/internal/policy"
)

// debounceDelay waits for writes to settle before reloading.
const debounceDelay = 500 * time.Millisecond

// Watcher reloads a policy store when its backing file changes.
type Watcher struct {
	watcher *fsnotify.Watcher
	store   *policy.Store
	base    string
}

// New creates a file watcher for the store's policy file. The watch is
// on the parent directory, filtered by base name: the store persists
// via tmp+rename, and an inotify watch on the file itself would follow
// the replaced inode and go silent after the first persist.
func New(store *policy.Store) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	dir := filepath.Dir(store.Path())
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
	}
	return &Watcher{
		watcher: watcher,
		store:   store,
		base:    filepath.Base(store.Path()),
	}, nil
}

// Run watches for file changes and reloads the store. Blocks until
// ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			// The rename half of the store's own persist lands here
			// as a Create for the policy file; reload recognizes it
			// by content hash and skips it.
			if filepath.Base(event.Name) != w.base {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, w.reload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "policy watcher error: %v\n", err)
		}
	}
}

func (w *Watcher) reload() {
	changed, err := w.store.Reload()
	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "policy reload failed: %v\n", err)
	case changed:
		fmt.Fprintf(os.Stderr, "policy reloaded after out-of-band edit\n")
	}
}
