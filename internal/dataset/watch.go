package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"astro_insight/src/logger"

	"github.com/fsnotify/fsnotify"
)

// StartWatch reloads the catalog whenever a dataset file changes.
// It returns once the watch is registered; the channel closes when ctx ends.
func (c *Catalog) StartWatch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", c.dir, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !relevant(event) {
					continue
				}
				logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Dataset directory changed")
				if err := c.Load(); err != nil {
					logger.Warn().Err(err).Msg("Dataset reload failed")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("Dataset watcher error")
			}
		}
	}()
	return done, nil
}

func relevant(event fsnotify.Event) bool {
	if !supportedExts[strings.ToLower(filepath.Ext(event.Name))] {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
