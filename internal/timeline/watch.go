package timeline

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a records file whenever it changes on disk.
type Watcher struct {
	Path     string
	Debounce time.Duration
	// OnChange receives each successfully parsed record set, from the
	// watcher's goroutine.
	OnChange func([]Record)
	// OnError receives load failures; the previous records stay in use.
	OnError  func(error)
	Log      zerolog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// Run watches until ctx is cancelled. The parent directory is watched so
// editors that replace the file atomically are still seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	abs, err := filepath.Abs(w.Path)
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.schedule(debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Log.Warn().Err(err).Str("path", w.Path).Msg("records watch error")
		}
	}
}

func (w *Watcher) schedule(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(d, w.reload)
}

func (w *Watcher) reload() {
	recs, err := Load(w.Path)
	if err != nil {
		w.Log.Warn().Err(err).Str("path", w.Path).Msg("records reload failed; keeping previous timeline")
		if w.OnError != nil {
			w.OnError(err)
		}
		return
	}
	w.Log.Info().Int("records", len(recs)).Str("path", w.Path).Msg("records reloaded")
	if w.OnChange != nil {
		w.OnChange(recs)
	}
}
