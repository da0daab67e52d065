package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ppiankov/regwatch/internal/snapshot"
)

// DefaultDebounce is how long a snapshot file must stay quiet before it is processed.
const DefaultDebounce = 2 * time.Second

// Watch processes snapshots that appear in the snapshot directory, for
// example when an external crawler drops them there. A file is handled once
// no event has touched it for debounce. Files are processed one at a time in
// name order. onResult, when set, sees every Process result. Watch returns
// nil when ctx is done.
func (t *Tracker) Watch(ctx context.Context, debounce time.Duration, onResult func(Result, error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	dir := t.snaps.Dir()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	t.logger.Info("watching for snapshots", slog.String("dir", dir), slog.Duration("debounce", debounce))

	tick := debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	pending := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !isSnapshotFile(ev.Name) {
				continue
			}
			pending[ev.Name] = time.Now()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			t.logger.Warn("watch error", slog.String("error", err.Error()))

		case now := <-ticker.C:
			var ready []string
			for path, last := range pending {
				if now.Sub(last) >= debounce {
					ready = append(ready, path)
				}
			}
			sort.Strings(ready)
			for _, path := range ready {
				delete(pending, path)
				if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
					continue
				}
				res, err := t.Process(ctx, path)
				if err != nil {
					t.logger.Error("process snapshot failed", slog.String("path", path), slog.String("error", err.Error()))
				}
				if onResult != nil {
					onResult(res, err)
				}
				if ctx.Err() != nil {
					return nil
				}
			}
		}
	}
}

// isSnapshotFile filters out temp files and foreign extensions. The name
// pattern itself is checked by Process.
func isSnapshotFile(path string) bool {
	name := filepath.Base(path)
	return !strings.HasPrefix(name, ".") && strings.HasSuffix(name, snapshot.Ext)
}
