package taxonomy

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a [FileWatcher] waits after the last event
// before reloading. Editors often write a file several times per save.
const DefaultDebounce = 100 * time.Millisecond

// FileWatcher reloads a taxonomy file when its content changes and hands
// every valid result to a callback. Invalid edits are logged and skipped.
//
// The parent directory is watched rather than the file itself so that
// editors replacing the file via rename keep being tracked.
type FileWatcher struct {
	path     string
	debounce time.Duration
	onChange func(*Taxonomy)

	fw       *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// WatchOption configures a [FileWatcher].
type WatchOption func(*FileWatcher)

// WithDebounce overrides [DefaultDebounce].
func WithDebounce(d time.Duration) WatchOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watch starts watching the taxonomy file at path. onChange runs on the
// watcher goroutine after each successful reload.
func Watch(path string, onChange func(*Taxonomy), opts ...WatchOption) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: watch %q: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("taxonomy: watch %q: %w", path, err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("taxonomy: watch %q: %w", path, err)
	}

	w := &FileWatcher{
		path:     abs,
		debounce: DefaultDebounce,
		onChange: onChange,
		fw:       fw,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Path returns the absolute path being watched.
func (w *FileWatcher) Path() string { return w.path }

// Stop ends watching and waits for the watcher goroutine to exit. It is
// safe to call more than once.
func (w *FileWatcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
		w.stopErr = w.fw.Close()
		w.wg.Wait()
	})
	return w.stopErr
}

func (w *FileWatcher) loop() {
	defer w.wg.Done()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			// A removed or renamed-away file is followed by a Create when
			// the replacement lands.
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Warn("taxonomy watcher error", "path", w.path, "err", err)

		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *FileWatcher) reload() {
	t, err := Load(w.path)
	if err != nil {
		slog.Warn("taxonomy watcher: keeping previous taxonomy", "path", w.path, "err", err)
		return
	}
	slog.Info("taxonomy file changed", "path", w.path, "categories", t.Len(), "phrases", t.PhraseCount())
	if w.onChange != nil {
		w.onChange(t)
	}
}
