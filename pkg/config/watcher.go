package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// SourcesWatcher serves the settings file contents and reloads them when the
// file changes on disk. A failed reload keeps the previous settings active.
type SourcesWatcher struct {
	path    string
	log     *logrus.Logger
	current atomic.Pointer[Sources]
	watcher *fsnotify.Watcher
}

// WatchSources loads the settings file and starts watching its directory.
// The returned watcher runs until ctx is cancelled.
func WatchSources(ctx context.Context, path string, log *logrus.Logger) (*SourcesWatcher, error) {
	if log == nil {
		log = logrus.New()
	}
	sources, err := LoadSources(path)
	if err != nil {
		return nil, err
	}

	w := &SourcesWatcher{path: path, log: log}
	w.current.Store(sources)
	if path == "" {
		return w, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create sources watcher: %w", err)
	}
	// Watch the directory, not the file: editors replace files on save.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch sources directory: %w", err)
	}
	w.watcher = fw

	go w.run(ctx)
	return w, nil
}

// Current returns the active settings.
func (w *SourcesWatcher) Current() *Sources {
	return w.current.Load()
}

func (w *SourcesWatcher) run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			sources, err := LoadSources(w.path)
			if err != nil {
				w.log.WithError(err).Warn("sources file reload failed, keeping previous settings")
				continue
			}
			w.current.Store(sources)
			w.log.WithField("path", w.path).Info("sources file reloaded")
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("sources file watcher error")
		}
	}
}
