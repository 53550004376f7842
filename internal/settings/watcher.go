package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher reloads the store when the settings file is edited outside the launcher.
type Watcher struct {
	store     *Store
	persister *FilePersister
	watcher   *fsnotify.Watcher
	reload    chan struct{}
	done      chan struct{}
	debounce  time.Duration
	stopOnce  sync.Once
}

// NewWatcher creates a watcher for the persister's file.
func NewWatcher(store *Store, p *FilePersister, debounce time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	return &Watcher{
		store:     store,
		persister: p,
		watcher:   w,
		reload:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		debounce:  debounce,
	}, nil
}

// Start watches the directory holding the settings file (more reliable than the file itself,
// which is replaced by rename on every save).
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.persister.Path())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch settings directory %s: %w", dir, err)
	}

	log.Info().Str("path", w.persister.Path()).Msg("Watching settings file")

	go w.watchLoop(ctx)
	go w.reloadLoop(ctx)

	return nil
}

// Stop terminates the watch loops.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) watchLoop(ctx context.Context) {
	name := filepath.Base(w.persister.Path())

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.trigger()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Settings watcher error")
		}
	}
}

func (w *Watcher) trigger() {
	select {
	case w.reload <- struct{}{}:
	default:
		// reload already pending
	}
}

func (w *Watcher) reloadLoop(ctx context.Context) {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-w.reload:
			timer.Reset(w.debounce)
		case <-timer.C:
			w.apply()
		}
	}
}

// apply reloads the file into the store. Our own saves produce equal content and are ignored.
func (w *Watcher) apply() {
	changed, err := w.store.Reload(w.persister)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to reload settings file, keeping current settings")
		return
	}

	if changed {
		log.Info().Msg("Settings reloaded from file")
	}
}
