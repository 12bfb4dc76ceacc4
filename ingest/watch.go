package ingest

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/TFMV/echoes/models"
	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events editors emit on save
const watchDebounce = 100 * time.Millisecond

// Watch reprocesses path whenever it changes and passes the result to onChange.
// Processing errors are logged and the previous concept stays in use. The
// directory is watched rather than the file so atomic-rename saves are seen.
// Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*models.Concept)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	debounce := time.NewTimer(0)
	<-debounce.C // drain initial timer
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending = true
			debounce.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Println("Watcher error:", err)

		case <-debounce.C:
			if !pending {
				continue
			}
			pending = false

			concept, err := ProcessFile(abs)
			if err != nil {
				log.Printf("Reload of %s failed: %v", path, err)
				continue
			}
			log.Printf("Reloaded %s (%d snapshots)", path, concept.Timeline.Len())
			onChange(concept)
		}
	}
}
