package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet after its last
// write event before it is ingested. Dropped files often arrive as a
// create followed by a burst of writes.
const DefaultDebounce = 500 * time.Millisecond

// Watch ingests everything already in dir, then follows create/write
// events until ctx is done. Events for the same path within the
// debounce window are coalesced.
func (w *Worker) Watch(ctx context.Context, dir string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	// Catch up on files that landed before the watch started.
	if _, err := w.IngestDir(ctx, dir); err != nil {
		return err
	}
	w.log.Info("watch_started", slog.String("dir", dir))

	var mu sync.Mutex
	timers := map[string]*time.Timer{}
	stopAll := func() {
		mu.Lock()
		defer mu.Unlock()
		for _, t := range timers {
			t.Stop()
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopAll()
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				stopAll()
				return nil
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
				continue
			}
			info, err := os.Stat(ev.Name)
			if err != nil || info.IsDir() {
				continue
			}

			path := ev.Name
			mu.Lock()
			if t, ok := timers[path]; ok {
				t.Stop()
			}
			timers[path] = time.AfterFunc(debounce, func() {
				mu.Lock()
				delete(timers, path)
				mu.Unlock()
				if _, err := w.IngestFile(ctx, path); err != nil {
					w.log.Error("ingest_failed",
						slog.String("path", path),
						slog.String("error", err.Error()))
				}
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				stopAll()
				return nil
			}
			w.log.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}
