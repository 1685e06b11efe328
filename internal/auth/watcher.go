package auth

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/colivhub/colivrt/internal/eventbus"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const watcherSource = "watcher"

// Watcher turns changes of the credential file made by other processes (ex.
// `colivrt login` in another terminal) into login and logout signals.
type Watcher struct {
	store *FileStore
	bus   *eventbus.Bus

	mu   sync.Mutex
	last string
}

func NewWatcher(store *FileStore, bus *eventbus.Bus) *Watcher {
	return &Watcher{store: store, bus: bus}
}

// Run blocks until ctx is done. The directory is watched rather than the file
// because atomic writes replace the file. A missing directory is created, no
// credential saved yet is the normal first run state.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	dir := filepath.Dir(w.store.Path())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	if err := fsw.Add(dir); err != nil {
		return err
	}
	w.mu.Lock()
	w.last, _ = CurrentToken(w.store)
	w.mu.Unlock()

	target := filepath.Clean(w.store.Path())
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.check()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Str("dir", dir).Msg("credential watcher error")
		}
	}
}

func (w *Watcher) check() {
	token, err := CurrentToken(w.store)
	if err != nil {
		log.Warn().Err(err).Msg("error reading credential file")
		return
	}
	w.mu.Lock()
	previous := w.last
	w.last = token
	w.mu.Unlock()

	switch {
	case token == previous:
	case token == "":
		log.Info().Msg("credential removed, logging out")
		eventbus.Publish(w.bus, LogoutTopic, Signal{Source: watcherSource})
	default:
		log.Info().Msg("credential changed, logging in")
		eventbus.Publish(w.bus, LoginTopic, Signal{Source: watcherSource})
	}
}
