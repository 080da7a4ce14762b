package catalog

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Store serves the current catalog snapshot. Readers always see a fully
// consistent catalog; reloads swap the pointer atomically. A failed
// reload keeps the previous snapshot.
type Store struct {
	current atomic.Pointer[Catalog]
}

func NewStore(initial *Catalog) *Store {
	s := &Store{}
	s.current.Store(initial)
	return s
}

// Snapshot returns the catalog in effect right now. Callers hold it for
// the duration of one evaluation so a mid-flight reload cannot mix rule
// versions.
func (s *Store) Snapshot() *Catalog {
	return s.current.Load()
}

// Swap installs a new snapshot.
func (s *Store) Swap(cat *Catalog) {
	s.current.Store(cat)
}

// Watch reloads the catalog whenever the file changes, until ctx is
// cancelled. Editors often replace files via rename, so the watch is on
// the parent directory filtered to the target name.
func (s *Store) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			cat, err := Load(path)
			if err != nil {
				logger.Error("catalog reload failed; keeping previous snapshot",
					"path", path,
					"error", err,
				)
				continue
			}
			s.Swap(cat)
			logger.Info("catalog reloaded", "path", path, "version", cat.Version)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("catalog watcher error", "error", err)
		}
	}
}
