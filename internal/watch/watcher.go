package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ingressd/internal/log"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Source delivers paths of regular files that appeared in a directory.
type Source interface {
	// Paths delivers arrivals in the order the OS reported them.
	// It is closed after Close.
	Paths() <-chan string
	// Overflows fires when the OS dropped events and the directory must be rescanned.
	Overflows() <-chan struct{}
	// Close unsubscribes and waits for the delivery goroutine to exit.
	Close() error
}

// SourceFactory subscribes to a directory.
type SourceFactory func(dir string) (Source, error)

// Watcher is the fsnotify-backed Source. It watches one directory,
// non-recursively, for files created in it or moved into it.
type Watcher struct {
	dir       string
	fsWatcher *fsnotify.Watcher
	logger    logrus.FieldLogger

	paths     chan string
	overflows chan struct{}
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWatcher subscribes to dir using fsnotify.
func NewWatcher(dir string, logger logrus.FieldLogger) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("error accessing directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to add directory %s to watcher: %w", dir, err)
	}

	w := &Watcher{
		dir:       filepath.Clean(dir),
		fsWatcher: fsWatcher,
		logger:    log.Component(logger, "watcher").WithField("directory", dir),
		paths:     make(chan string, 64),
		overflows: make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()

	w.logger.Info("Watching directory")
	return w, nil
}

// FSNotifySource is the default SourceFactory.
func FSNotifySource(logger logrus.FieldLogger) SourceFactory {
	return func(dir string) (Source, error) {
		return NewWatcher(dir, logger)
	}
}

// Paths implements Source.
func (w *Watcher) Paths() <-chan string {
	return w.paths
}

// Overflows implements Source.
func (w *Watcher) Overflows() <-chan struct{} {
	return w.overflows
}

func (w *Watcher) run() {
	defer w.wg.Done()
	defer close(w.paths)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			path, ok := w.qualify(event)
			if !ok {
				continue
			}
			// Blocking send: arrivals are never dropped here
			select {
			case w.paths <- path:
			case <-w.stopChan:
				return
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			if err == fsnotify.ErrEventOverflow {
				w.logger.Warn("Notification queue overflowed, events were lost")
				select {
				case w.overflows <- struct{}{}:
				default:
				}
				continue
			}
			log.WithError(w.logger, err).Error("fsnotify watcher error")

		case <-w.stopChan:
			return
		}
	}
}

// qualify keeps create events (renames into the directory arrive as creates)
// for regular files directly inside the watched directory.
func (w *Watcher) qualify(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) {
		return "", false
	}
	path := filepath.Clean(event.Name)
	if path == w.dir || filepath.Dir(path) != w.dir {
		return "", false
	}

	info, err := os.Lstat(path)
	if err != nil {
		w.logger.WithField("file", filepath.Base(path)).Debug("Skipping event for unavailable file")
		return "", false
	}
	// Symlinks and directories stay where they are, as in the startup sweep
	if !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

// Close implements Source.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stopChan)
		err = w.fsWatcher.Close()
		w.wg.Wait()
		w.logger.Info("Watcher stopped")
	})
	return err
}
