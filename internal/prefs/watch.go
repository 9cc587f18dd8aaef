package prefs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"debrief/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce batches the burst of events produced by one atomic write
// (temp create, write, rename).
const watchDebounce = 100 * time.Millisecond

// Watch calls fn with the freshly read document whenever the config file
// changes, until ctx is cancelled. The directory is watched rather than
// the file because atomic writes replace the file's inode.
func (s *Store) Watch(ctx context.Context, fn func(*Document)) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logging.Get(logging.CategoryWatch).Info("Watching %s", s.path)

	name := filepath.Base(s.path)
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logging.Get(logging.CategoryWatch).Debug("Watcher for %s stopped", s.path)
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(watchDebounce)
			}
			pending = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryWatch).Error("Watcher error: %v", err)

		case <-pending:
			pending = nil
			doc, err := s.Read()
			if err != nil {
				logging.Get(logging.CategoryWatch).Error("Failed to reload %s: %v", s.path, err)
				continue
			}
			fn(doc)
		}
	}
}
