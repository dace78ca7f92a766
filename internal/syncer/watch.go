package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits after the last filesystem
// event before starting a sync pass. Editors commonly produce bursts of
// writes per save; one pass per burst is enough.
const DefaultDebounce = 500 * time.Millisecond

// Watch runs an initial sync, then re-syncs whenever a markdown file in
// the directory changes, until the context is cancelled. Each pass's
// result is handed to onResult (optional). Sync errors during watch are
// reported as warnings and watching continues; only watcher failures
// and context cancellation end the loop.
func (e *Engine) Watch(ctx context.Context, debounce time.Duration, onResult func(*Result)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to initialize filesystem watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(e.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", e.Dir, err)
	}

	runSync := func() {
		result, err := e.Sync(ctx)
		if err != nil {
			e.warn("sync failed: %v", err)
		}
		if onResult != nil && result != nil {
			onResult(result)
		}
	}
	runSync()

	// The timer is armed by events and fires once per quiet period.
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)

		case <-timer.C:
			runSync()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.warn("watcher error: %v", err)
		}
	}
}
