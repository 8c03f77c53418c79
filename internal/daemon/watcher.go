package daemon

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// MappingWatcher signals when the mapping overrides file changes.
//
// It watches the file's directory rather than the file itself, so editors
// that save by writing a temp file and renaming it over the original are
// still seen.
type MappingWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	changes chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// WatchMapping starts watching path. Close stops it.
func WatchMapping(path string, logger *slog.Logger) (*MappingWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve mapping path: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	mw := &MappingWatcher{
		path:    abs,
		watcher: w,
		logger:  logger,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	mw.wg.Add(1)
	go mw.processEvents()
	return mw, nil
}

// Changes delivers one value per burst of changes. Pending signals coalesce.
func (mw *MappingWatcher) Changes() <-chan struct{} {
	return mw.changes
}

// Close stops the watcher and waits for its goroutine to exit.
func (mw *MappingWatcher) Close() error {
	var err error
	mw.once.Do(func() {
		close(mw.done)
		err = mw.watcher.Close()
		mw.wg.Wait()
	})
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (mw *MappingWatcher) processEvents() {
	defer mw.wg.Done()

	for {
		select {
		case <-mw.done:
			return

		case event, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			if !mw.relevant(event) {
				continue
			}
			select {
			case mw.changes <- struct{}{}:
			default:
			}

		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			mw.logger.Warn("mapping watcher error", "path", mw.path, "error", err)
		}
	}
}

func (mw *MappingWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != mw.path {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename)
}
