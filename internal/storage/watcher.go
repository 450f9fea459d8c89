package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher evicts cached collections whose file is removed or renamed by
// another process, so the next access reloads from disk instead of
// resurrecting stale documents.
type Watcher struct {
	r    *Registry
	w    *fsnotify.Watcher
	done chan struct{}
}

// StartWatcher watches the data root and every database directory of r
// until ctx is canceled or Close is called.
func StartWatcher(ctx context.Context, r *Registry) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	fs := r.FileStore()
	if err := w.Add(fs.RootDir()); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", fs.RootDir(), err)
	}
	dbs, err := fs.Databases()
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	for _, db := range dbs {
		if err := w.Add(fs.DatabaseDir(db)); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to watch database %s: %w", db, err)
		}
	}
	wa := &Watcher{r: r, w: w, done: make(chan struct{})}
	go wa.run(ctx)
	return wa, nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (wa *Watcher) Close() error {
	err := wa.w.Close()
	<-wa.done
	return err
}

func (wa *Watcher) run(ctx context.Context) {
	defer close(wa.done)
	for {
		select {
		case <-ctx.Done():
			_ = wa.w.Close()
			return
		case event, ok := <-wa.w.Events:
			if !ok {
				return
			}
			wa.handle(ctx, event)
		case err, ok := <-wa.w.Errors:
			if !ok {
				return
			}
			slog.WarnContext(ctx, "Error watching data directory", "err", err)
		}
	}
}

func (wa *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	fs := wa.r.FileStore()
	if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == fs.RootDir() {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() && ValidateName(fi.Name()) == nil {
			if err := wa.w.Add(event.Name); err != nil && !errors.Is(err, fsnotify.ErrClosed) {
				slog.WarnContext(ctx, "Failed to watch new database", "db", fi.Name(), "err", err)
			}
		}
		return
	}
	if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	db, coll, ok := fs.ParsePath(event.Name)
	if !ok {
		return
	}
	if wa.r.Evict(ctx, db, coll) {
		slog.InfoContext(ctx, "Collection file removed externally", "db", db, "collection", coll)
	}
}
